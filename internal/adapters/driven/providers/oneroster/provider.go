package oneroster

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/classforge/rostersync-core/internal/core/domain"
	"github.com/classforge/rostersync-core/internal/core/ports/driven"
)

// Ensure Provider implements the interface.
var _ driven.RosterProvider = (*Provider)(nil)

// statusToBeDeleted marks records the roster system has soft-deleted.
// Incremental consumers must treat them as deletes, not updates.
const statusToBeDeleted = "tobedeleted"

// collections maps engine entity types onto OneRoster v1.1 collection
// endpoints. Webhook events carry singular entity types; bulk syncs use
// the plural collection names.
var collections = map[string]string{
	"students":    "/students",
	"student":     "/students",
	"teachers":    "/teachers",
	"teacher":     "/teachers",
	"classes":     "/classes",
	"class":       "/classes",
	"enrollments": "/enrollments",
	"enrollment":  "/enrollments",
	"orgs":        "/orgs",
	"org":         "/orgs",
}

// defaultEntityTypes is the sync scope when a job does not narrow it.
var defaultEntityTypes = []string{"students", "classes", "enrollments"}

// Config holds OneRoster API connection settings.
type Config struct {
	BaseURL  string // e.g. https://sis.example.edu/ims/oneroster/v1p1
	Token    string // bearer token issued by the SIS
	PageSize int    // records per page (default: 100)
}

// Provider syncs roster data from a OneRoster v1.1 REST endpoint.
type Provider struct {
	httpClient *http.Client
	baseURL    string
	token      string
	pageSize   int
	maxRetries int
	retryDelay time.Duration
}

// New creates a OneRoster provider.
func New(cfg Config) *Provider {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Provider{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		pageSize:   pageSize,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// Type returns the provider type.
func (p *Provider) Type() string {
	return "oneroster"
}

// record is the slice of a OneRoster resource the sync engine cares
// about. Full payloads are passed through downstream untouched.
type record struct {
	SourcedID        string    `json:"sourcedId"`
	Status           string    `json:"status"`
	DateLastModified time.Time `json:"dateLastModified"`
}

// PerformFullSync walks every page of every in-scope collection.
// Bulk syncs report aggregate counters only; per-record operations are
// reserved for single-entity syncs.
func (p *Provider) PerformFullSync(ctx context.Context, sctx *domain.SyncContext) (*domain.ProviderResult, error) {
	summary := domain.SyncSummary{}

	for _, entityType := range p.entityScope(sctx) {
		endpoint, ok := collections[entityType]
		if !ok {
			return nil, fmt.Errorf("%w: unknown entity type %q", domain.ErrInvalidInput, entityType)
		}

		records, err := p.fetchAll(ctx, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("full sync %s: %w", entityType, err)
		}

		for _, rec := range records {
			summary.TotalProcessed++
			if rec.Status == statusToBeDeleted {
				summary.Deleted++
			} else {
				summary.Updated++
			}
		}
	}

	return &domain.ProviderResult{Success: true, Summary: summary}, nil
}

// PerformIncrementalSync fetches records modified since the given time.
func (p *Provider) PerformIncrementalSync(ctx context.Context, sctx *domain.SyncContext, since time.Time) (*domain.ProviderResult, error) {
	summary := domain.SyncSummary{}
	filter := fmt.Sprintf("dateLastModified>='%s'", since.UTC().Format(time.RFC3339))

	for _, entityType := range p.entityScope(sctx) {
		endpoint, ok := collections[entityType]
		if !ok {
			return nil, fmt.Errorf("%w: unknown entity type %q", domain.ErrInvalidInput, entityType)
		}

		records, err := p.fetchAll(ctx, endpoint, url.Values{"filter": {filter}})
		if err != nil {
			return nil, fmt.Errorf("incremental sync %s: %w", entityType, err)
		}

		for _, rec := range records {
			summary.TotalProcessed++
			if rec.Status == statusToBeDeleted {
				summary.Deleted++
			} else {
				summary.Updated++
			}
		}
	}

	return &domain.ProviderResult{Success: true, Summary: summary}, nil
}

// SyncEntity fetches a single resource. A 404 from the SIS means the
// entity is gone and surfaces as a delete operation, not an error.
func (p *Provider) SyncEntity(ctx context.Context, entityType, entityID string, sctx *domain.SyncContext) (*domain.ProviderResult, error) {
	endpoint, ok := collections[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: unknown entity type %q", domain.ErrInvalidInput, entityType)
	}

	status, body, err := p.get(ctx, endpoint+"/"+url.PathEscape(entityID), nil)
	if err != nil {
		return nil, fmt.Errorf("sync %s %s: %w", entityType, entityID, err)
	}

	op := domain.OperationResult{
		EntityType: entityType,
		EntityID:   entityID,
		Success:    true,
	}

	switch {
	case status == http.StatusNotFound:
		op.Action = "delete"
	case status >= 400:
		return nil, fmt.Errorf("sync %s %s: unexpected status %d", entityType, entityID, status)
	default:
		rec, err := decodeSingle(body)
		if err != nil {
			return nil, fmt.Errorf("sync %s %s: %w", entityType, entityID, err)
		}
		if rec.Status == statusToBeDeleted {
			op.Action = "delete"
		} else {
			op.Action = "update"
		}
	}

	return &domain.ProviderResult{
		Success:    true,
		Operations: []domain.OperationResult{op},
	}, nil
}

// entityScope narrows the sync to the entity types the job names, when
// present in its metadata.
func (p *Provider) entityScope(sctx *domain.SyncContext) []string {
	if sctx != nil && sctx.Metadata["entity_types"] != "" {
		return strings.Split(sctx.Metadata["entity_types"], ",")
	}
	return defaultEntityTypes
}

// fetchAll pages through a collection endpoint until a short page.
func (p *Provider) fetchAll(ctx context.Context, endpoint string, extra url.Values) ([]record, error) {
	var all []record

	for offset := 0; ; offset += p.pageSize {
		params := url.Values{}
		for k, vs := range extra {
			params[k] = vs
		}
		params.Set("limit", strconv.Itoa(p.pageSize))
		params.Set("offset", strconv.Itoa(offset))

		status, body, err := p.get(ctx, endpoint, params)
		if err != nil {
			return nil, err
		}
		if status >= 400 {
			return nil, fmt.Errorf("GET %s: unexpected status %d", endpoint, status)
		}

		page, err := decodeCollection(body)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)

		if len(page) < p.pageSize {
			return all, nil
		}
	}
}

// get performs one GET with bearer auth, retrying 429 and 5xx responses.
func (p *Provider) get(ctx context.Context, endpoint string, params url.Values) (int, []byte, error) {
	target := p.baseURL + endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var lastStatus int
	var lastBody []byte
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * p.retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("Authorization", "Bearer "+p.token)
		req.Header.Set("Accept", "application/json")

		resp, err := p.httpClient.Do(req)
		if err != nil {
			if attempt == p.maxRetries {
				return 0, nil, err
			}
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return 0, nil, err
		}

		lastStatus = resp.StatusCode
		lastBody = body

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			continue
		}
		return resp.StatusCode, body, nil
	}

	return lastStatus, lastBody, nil
}

// decodeCollection unwraps a OneRoster collection response. Collections
// arrive under a resource-specific key ({"users": [...]}), so take the
// first array value.
func decodeCollection(body []byte) ([]record, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode collection: %w", err)
	}

	for _, raw := range envelope {
		var records []record
		if err := json.Unmarshal(raw, &records); err == nil {
			return records, nil
		}
	}
	return nil, nil
}

// decodeSingle unwraps a single-resource response ({"user": {...}}).
func decodeSingle(body []byte) (*record, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode resource: %w", err)
	}

	for _, raw := range envelope {
		var rec record
		if err := json.Unmarshal(raw, &rec); err == nil && rec.SourcedID != "" {
			return &rec, nil
		}
	}
	return nil, fmt.Errorf("decode resource: no resource object in response")
}
