package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/classforge/rostersync-core/internal/core/domain"
	"github.com/classforge/rostersync-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.IntegrationStore = (*IntegrationStore)(nil)

// IntegrationStore implements driven.IntegrationStore using PostgreSQL
type IntegrationStore struct {
	db *DB
}

// NewIntegrationStore creates a new IntegrationStore
func NewIntegrationStore(db *DB) *IntegrationStore {
	return &IntegrationStore{db: db}
}

const integrationColumns = `
	id, name, provider_type, enabled, status,
	requests_per_minute, requests_per_hour, webhook_secret_hash,
	last_successful_sync, error_count, last_error, created_at, updated_at
`

// Get retrieves an integration by ID
func (s *IntegrationStore) Get(ctx context.Context, id string) (*domain.Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations WHERE id = $1`

	integration, err := scanIntegration(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return integration, nil
}

// List retrieves all integrations
func (s *IntegrationStore) List(ctx context.Context) ([]*domain.Integration, error) {
	query := `SELECT ` + integrationColumns + ` FROM integrations ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var integrations []*domain.Integration
	for rows.Next() {
		integration, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		integrations = append(integrations, integration)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return integrations, nil
}

// Save creates or updates an integration
func (s *IntegrationStore) Save(ctx context.Context, integration *domain.Integration) error {
	query := `
		INSERT INTO integrations (
			id, name, provider_type, enabled, status,
			requests_per_minute, requests_per_hour, webhook_secret_hash,
			last_successful_sync, error_count, last_error, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			provider_type = EXCLUDED.provider_type,
			enabled = EXCLUDED.enabled,
			status = EXCLUDED.status,
			requests_per_minute = EXCLUDED.requests_per_minute,
			requests_per_hour = EXCLUDED.requests_per_hour,
			webhook_secret_hash = EXCLUDED.webhook_secret_hash,
			updated_at = now()
	`

	now := time.Now()
	if integration.CreatedAt.IsZero() {
		integration.CreatedAt = now
	}

	_, err := s.db.ExecContext(ctx, query,
		integration.ID,
		integration.Name,
		integration.ProviderType,
		integration.Enabled,
		string(integration.Status),
		integration.RateLimits.RequestsPerMinute,
		integration.RateLimits.RequestsPerHour,
		integration.WebhookSecretHash,
		NullTime(integration.LastSuccessfulSync),
		integration.ErrorCount,
		integration.LastError,
		integration.CreatedAt,
		now,
	)
	return err
}

// UpdateLastSync sets the last successful sync marker
func (s *IntegrationStore) UpdateLastSync(ctx context.Context, id string, ts time.Time) error {
	query := `
		UPDATE integrations
		SET last_successful_sync = $1, updated_at = now()
		WHERE id = $2
	`
	return s.execExpectingRow(ctx, query, ts, id)
}

// UpdateError records the most recent sync failure reason
func (s *IntegrationStore) UpdateError(ctx context.Context, id string, message string) error {
	query := `
		UPDATE integrations
		SET last_error = $1, updated_at = now()
		WHERE id = $2
	`
	return s.execExpectingRow(ctx, query, message, id)
}

// IncrementErrorCount adds one failed attempt to the counter
func (s *IntegrationStore) IncrementErrorCount(ctx context.Context, id string) error {
	query := `
		UPDATE integrations
		SET error_count = error_count + 1, updated_at = now()
		WHERE id = $1
	`
	return s.execExpectingRow(ctx, query, id)
}

// ResetErrorCount zeroes the counter after a successful sync
func (s *IntegrationStore) ResetErrorCount(ctx context.Context, id string) error {
	query := `
		UPDATE integrations
		SET error_count = 0, last_error = '', updated_at = now()
		WHERE id = $1
	`
	return s.execExpectingRow(ctx, query, id)
}

func (s *IntegrationStore) execExpectingRow(ctx context.Context, query string, args ...any) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntegration(row rowScanner) (*domain.Integration, error) {
	var integration domain.Integration
	var status string
	var lastSync sql.NullTime

	err := row.Scan(
		&integration.ID,
		&integration.Name,
		&integration.ProviderType,
		&integration.Enabled,
		&status,
		&integration.RateLimits.RequestsPerMinute,
		&integration.RateLimits.RequestsPerHour,
		&integration.WebhookSecretHash,
		&lastSync,
		&integration.ErrorCount,
		&integration.LastError,
		&integration.CreatedAt,
		&integration.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	integration.Status = domain.IntegrationStatus(status)
	integration.LastSuccessfulSync = TimePtr(lastSync)
	return &integration, nil
}
