package oneroster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/classforge/rostersync-core/internal/core/domain"
)

// fakeSIS serves canned OneRoster collections with paging and bearer
// auth checks.
type fakeSIS struct {
	students    []map[string]any
	classes     []map[string]any
	enrollments []map[string]any

	requests []string
}

func (f *fakeSIS) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	serveCollection := func(key string, records []map[string]any) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			f.requests = append(f.requests, r.URL.String())
			if r.Header.Get("Authorization") != "Bearer sis-token" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
			if limit <= 0 {
				limit = len(records)
			}

			page := []map[string]any{}
			for i := offset; i < len(records) && i < offset+limit; i++ {
				page = append(page, records[i])
			}
			_ = json.NewEncoder(w).Encode(map[string]any{key: page})
		}
	}

	mux.HandleFunc("/students", serveCollection("users", f.students))
	mux.HandleFunc("/classes", serveCollection("classes", f.classes))
	mux.HandleFunc("/enrollments", serveCollection("enrollments", f.enrollments))

	mux.HandleFunc("/students/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.requests = append(f.requests, r.URL.String())
		id := r.PathValue("id")
		for _, rec := range f.students {
			if rec["sourcedId"] == id {
				_ = json.NewEncoder(w).Encode(map[string]any{"user": rec})
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	})

	return mux
}

func makeRecords(prefix string, n int, status string) []map[string]any {
	records := make([]map[string]any, n)
	for i := range records {
		records[i] = map[string]any{
			"sourcedId":        fmt.Sprintf("%s-%d", prefix, i),
			"status":           status,
			"dateLastModified": time.Now().UTC().Format(time.RFC3339),
		}
	}
	return records
}

func newTestProvider(t *testing.T, sis *fakeSIS, pageSize int) *Provider {
	t.Helper()
	server := httptest.NewServer(sis.handler(t))
	t.Cleanup(server.Close)
	return New(Config{BaseURL: server.URL, Token: "sis-token", PageSize: pageSize})
}

func TestPerformFullSync(t *testing.T) {
	sis := &fakeSIS{
		students:    makeRecords("stu", 5, "active"),
		classes:     makeRecords("cls", 2, "active"),
		enrollments: makeRecords("enr", 3, "active"),
	}
	provider := newTestProvider(t, sis, 100)

	result, err := provider.PerformFullSync(context.Background(), &domain.SyncContext{JobID: "job-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Error("expected success")
	}
	if result.Summary.TotalProcessed != 10 {
		t.Errorf("expected 10 processed, got %d", result.Summary.TotalProcessed)
	}
	if result.Summary.Updated != 10 {
		t.Errorf("expected 10 updates, got %d", result.Summary.Updated)
	}
}

func TestPerformFullSync_Paging(t *testing.T) {
	sis := &fakeSIS{students: makeRecords("stu", 7, "active")}
	provider := newTestProvider(t, sis, 3)

	sctx := &domain.SyncContext{Metadata: map[string]string{"entity_types": "students"}}
	result, err := provider.PerformFullSync(context.Background(), sctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Summary.TotalProcessed != 7 {
		t.Errorf("expected 7 processed across pages, got %d", result.Summary.TotalProcessed)
	}
	// 3 + 3 + 1: the short page terminates paging
	if len(sis.requests) != 3 {
		t.Errorf("expected 3 page requests, got %d: %v", len(sis.requests), sis.requests)
	}
}

func TestPerformFullSync_EntityScope(t *testing.T) {
	sis := &fakeSIS{
		students: makeRecords("stu", 4, "active"),
		classes:  makeRecords("cls", 6, "active"),
	}
	provider := newTestProvider(t, sis, 100)

	sctx := &domain.SyncContext{Metadata: map[string]string{"entity_types": "classes"}}
	result, err := provider.PerformFullSync(context.Background(), sctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Summary.TotalProcessed != 6 {
		t.Errorf("expected classes only (6), got %d", result.Summary.TotalProcessed)
	}
}

func TestPerformFullSync_CountsSoftDeletes(t *testing.T) {
	records := makeRecords("stu", 4, "active")
	records = append(records, makeRecords("gone", 2, "tobedeleted")...)
	sis := &fakeSIS{students: records}
	provider := newTestProvider(t, sis, 100)

	sctx := &domain.SyncContext{Metadata: map[string]string{"entity_types": "students"}}
	result, err := provider.PerformFullSync(context.Background(), sctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Summary.Updated != 4 || result.Summary.Deleted != 2 {
		t.Errorf("expected 4 updates and 2 deletes, got %+v", result.Summary)
	}
}

func TestPerformIncrementalSync_SendsFilter(t *testing.T) {
	sis := &fakeSIS{students: makeRecords("stu", 2, "active")}
	provider := newTestProvider(t, sis, 100)

	since := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	sctx := &domain.SyncContext{Metadata: map[string]string{"entity_types": "students"}}
	result, err := provider.PerformIncrementalSync(context.Background(), sctx, since)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Summary.TotalProcessed != 2 {
		t.Errorf("expected 2 processed, got %d", result.Summary.TotalProcessed)
	}
	if len(sis.requests) == 0 {
		t.Fatal("expected a request")
	}
	if !strings.Contains(sis.requests[0], "filter=") ||
		!strings.Contains(sis.requests[0], "2026-08-01T00%3A00%3A00Z") {
		t.Errorf("expected dateLastModified filter in %s", sis.requests[0])
	}
}

func TestSyncEntity_Update(t *testing.T) {
	sis := &fakeSIS{students: makeRecords("stu", 1, "active")}
	provider := newTestProvider(t, sis, 100)

	result, err := provider.SyncEntity(context.Background(), "student", "stu-0", &domain.SyncContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Operations) != 1 {
		t.Fatalf("expected 1 operation, got %d", len(result.Operations))
	}
	op := result.Operations[0]
	if op.Action != "update" || !op.Success {
		t.Errorf("expected successful update, got %+v", op)
	}
}

func TestSyncEntity_GoneIsDelete(t *testing.T) {
	sis := &fakeSIS{}
	provider := newTestProvider(t, sis, 100)

	result, err := provider.SyncEntity(context.Background(), "student", "missing", &domain.SyncContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Operations[0].Action != "delete" {
		t.Errorf("expected delete for missing entity, got %q", result.Operations[0].Action)
	}
}

func TestSyncEntity_SoftDeletedIsDelete(t *testing.T) {
	sis := &fakeSIS{students: makeRecords("stu", 1, "tobedeleted")}
	provider := newTestProvider(t, sis, 100)

	result, err := provider.SyncEntity(context.Background(), "student", "stu-0", &domain.SyncContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Operations[0].Action != "delete" {
		t.Errorf("expected delete for tobedeleted entity, got %q", result.Operations[0].Action)
	}
}

func TestSyncEntity_UnknownType(t *testing.T) {
	provider := New(Config{BaseURL: "http://localhost", Token: "x"})

	_, err := provider.SyncEntity(context.Background(), "building", "b-1", &domain.SyncContext{})
	if err == nil {
		t.Fatal("expected error for unknown entity type")
	}
}

func TestGet_RetriesServerErrors(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"users": []map[string]any{}})
	}))
	defer server.Close()

	provider := New(Config{BaseURL: server.URL, Token: "x"})
	provider.retryDelay = time.Millisecond
	sctx := &domain.SyncContext{Metadata: map[string]string{"entity_types": "students"}}

	if _, err := provider.PerformFullSync(context.Background(), sctx); err != nil {
		t.Fatalf("unexpected error after retries: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestProviderType(t *testing.T) {
	if New(Config{}).Type() != "oneroster" {
		t.Error("unexpected provider type")
	}
}
