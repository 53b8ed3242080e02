package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/classforge/rostersync-core/internal/core/domain"
	"github.com/classforge/rostersync-core/internal/core/ports/driven/mocks"
)

// stubEngine captures the scheduling request made by the intake.
type stubEngine struct {
	lastCfg   domain.SyncJobConfig
	calls     int
	jobID     string
	scheduled error
}

func (s *stubEngine) ScheduleSyncJob(ctx context.Context, cfg domain.SyncJobConfig) (string, error) {
	s.calls++
	s.lastCfg = cfg
	if s.scheduled != nil {
		return "", s.scheduled
	}
	return s.jobID, nil
}

func (s *stubEngine) CancelSyncJob(ctx context.Context, jobID string) (bool, error) {
	return false, nil
}

func (s *stubEngine) GetSyncJobStatus(ctx context.Context, jobID string) (*domain.SyncJobStatus, error) {
	return nil, nil
}

func (s *stubEngine) GetActiveSyncJobs(ctx context.Context, integrationID string) []domain.ActiveSyncJob {
	return nil
}

func (s *stubEngine) GetSyncEngineStats(ctx context.Context) (*domain.SyncEngineStats, error) {
	return nil, nil
}

func validEvent() *domain.WebhookEvent {
	return &domain.WebhookEvent{
		ID:            "evt-1",
		IntegrationID: "district-42",
		EventType:     "student.updated",
		EntityType:    "student",
		EntityID:      "stu-7",
		Action:        domain.WebhookActionUpdate,
		ReceivedAt:    time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestProcessWebhook(t *testing.T) {
	engine := &stubEngine{jobID: "sync_district-42_real_time_1"}
	events := mocks.NewMockWebhookEventStore()
	intake := NewWebhookIntake(WebhookIntakeConfig{Engine: engine, Events: events})

	event := validEvent()
	jobID, err := intake.ProcessWebhook(context.Background(), event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jobID != "sync_district-42_real_time_1" {
		t.Errorf("unexpected job id %q", jobID)
	}

	cfg := engine.lastCfg
	if cfg.Strategy != domain.StrategyRealTime {
		t.Errorf("expected real_time strategy, got %q", cfg.Strategy)
	}
	if cfg.Priority != domain.PriorityHigh {
		t.Errorf("expected high priority, got %q", cfg.Priority)
	}
	if cfg.BatchSize != 1 {
		t.Errorf("expected batch size 1, got %d", cfg.BatchSize)
	}
	if cfg.MaxRetries != domain.RealTimeMaxRetries {
		t.Errorf("expected %d retries, got %d", domain.RealTimeMaxRetries, cfg.MaxRetries)
	}
	if cfg.Timeout != domain.RealTimeJobTimeout {
		t.Errorf("expected %v timeout, got %v", domain.RealTimeJobTimeout, cfg.Timeout)
	}
	if cfg.Metadata["entity_type"] != "student" || cfg.Metadata["entity_id"] != "stu-7" {
		t.Errorf("entity metadata missing: %v", cfg.Metadata)
	}
	if cfg.Metadata["action"] != "update" || cfg.Metadata["event_id"] != "evt-1" {
		t.Errorf("event metadata missing: %v", cfg.Metadata)
	}

	if events.Count() != 1 {
		t.Fatalf("expected one persisted event, got %d", events.Count())
	}
	if events.Get(event.IdempotencyKey()) == nil {
		t.Error("event not stored under its idempotency key")
	}
}

func TestProcessWebhook_InvalidEvent(t *testing.T) {
	engine := &stubEngine{jobID: "unused"}
	intake := NewWebhookIntake(WebhookIntakeConfig{Engine: engine})

	event := validEvent()
	event.EntityID = ""

	_, err := intake.ProcessWebhook(context.Background(), event)
	if !errors.Is(err, domain.ErrInvalidWebhookEvent) {
		t.Fatalf("expected ErrInvalidWebhookEvent, got %v", err)
	}
	if engine.calls != 0 {
		t.Error("invalid event must not reach the engine")
	}
}

func TestProcessWebhook_UnknownAction(t *testing.T) {
	engine := &stubEngine{jobID: "unused"}
	intake := NewWebhookIntake(WebhookIntakeConfig{Engine: engine})

	event := validEvent()
	event.Action = "upsert"

	_, err := intake.ProcessWebhook(context.Background(), event)
	if !errors.Is(err, domain.ErrInvalidWebhookEvent) {
		t.Fatalf("expected ErrInvalidWebhookEvent, got %v", err)
	}
}

func TestProcessWebhook_EngineRejection(t *testing.T) {
	rle := &domain.RateLimitError{IntegrationID: "district-42", Window: "minute", Limit: 60}
	engine := &stubEngine{scheduled: rle}
	events := mocks.NewMockWebhookEventStore()
	intake := NewWebhookIntake(WebhookIntakeConfig{Engine: engine, Events: events})

	_, err := intake.ProcessWebhook(context.Background(), validEvent())
	var got *domain.RateLimitError
	if !errors.As(err, &got) {
		t.Fatalf("expected rate limit error to propagate, got %v", err)
	}
	if events.Count() != 0 {
		t.Error("rejected event must not be persisted")
	}
}

func TestProcessWebhook_PersistFailureIsBestEffort(t *testing.T) {
	engine := &stubEngine{jobID: "sync_district-42_real_time_1"}
	events := mocks.NewMockWebhookEventStore()
	events.PersistErr = errors.New("postgres unavailable")
	intake := NewWebhookIntake(WebhookIntakeConfig{Engine: engine, Events: events})

	jobID, err := intake.ProcessWebhook(context.Background(), validEvent())
	if err != nil {
		t.Fatalf("persist failure must not fail the webhook: %v", err)
	}
	if jobID == "" {
		t.Error("expected job id despite persist failure")
	}
}

func TestProcessWebhook_DuplicateEventsShareIdempotencyKey(t *testing.T) {
	engine := &stubEngine{jobID: "sync_district-42_real_time_1"}
	events := mocks.NewMockWebhookEventStore()
	intake := NewWebhookIntake(WebhookIntakeConfig{Engine: engine, Events: events})

	event := validEvent()
	if _, err := intake.ProcessWebhook(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Same event delivered again with identical receipt time dedupes
	if _, err := intake.ProcessWebhook(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if events.Count() != 1 {
		t.Errorf("expected deduplicated storage, got %d entries", events.Count())
	}
	if engine.calls != 2 {
		t.Errorf("each delivery still schedules a sync, got %d calls", engine.calls)
	}
}
