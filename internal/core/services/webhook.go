package services

import (
	"log/slog"

	"context"

	"github.com/classforge/rostersync-core/internal/core/domain"
	"github.com/classforge/rostersync-core/internal/core/ports/driven"
	"github.com/classforge/rostersync-core/internal/core/ports/driving"
)

// WebhookIntake validates inbound roster webhook events and synthesizes
// high-priority real-time sync jobs from them.
//
// Sync scheduling is mandatory; persisting the raw event is best-effort
// and deduplicated by idempotency key at the storage layer.
type WebhookIntake struct {
	engine driving.SyncEngine
	events driven.WebhookEventStore
	logger *slog.Logger
}

// WebhookIntakeConfig holds dependencies for WebhookIntake.
type WebhookIntakeConfig struct {
	Engine driving.SyncEngine
	Events driven.WebhookEventStore
	Logger *slog.Logger
}

// NewWebhookIntake creates a new webhook intake.
func NewWebhookIntake(cfg WebhookIntakeConfig) *WebhookIntake {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookIntake{
		engine: cfg.Engine,
		events: cfg.Events,
		logger: logger,
	}
}

// ProcessWebhook validates the event and schedules a real-time sync.
// Returns the synthesized job id. The caller receives the id even though
// the eventual sync may still fail asynchronously.
func (w *WebhookIntake) ProcessWebhook(ctx context.Context, event *domain.WebhookEvent) (string, error) {
	if err := event.Validate(); err != nil {
		return "", err
	}

	cfg := domain.SyncJobConfig{
		IntegrationID: event.IntegrationID,
		Strategy:      domain.StrategyRealTime,
		EntityTypes:   []string{event.EntityType},
		Priority:      domain.PriorityHigh,
		BatchSize:     1,
		MaxRetries:    domain.RealTimeMaxRetries,
		Timeout:       domain.RealTimeJobTimeout,
		Metadata: map[string]string{
			"event_id":    event.ID,
			"event_type":  event.EventType,
			"entity_type": event.EntityType,
			"entity_id":   event.EntityID,
			"action":      string(event.Action),
		},
	}

	jobID, err := w.engine.ScheduleSyncJob(ctx, cfg)
	if err != nil {
		return "", err
	}

	if w.events != nil {
		if err := w.events.Persist(ctx, event, event.IdempotencyKey()); err != nil {
			// Webhook audit storage is best-effort; the sync job is not.
			w.logger.Warn("failed to persist webhook event",
				"event_id", event.ID,
				"integration_id", event.IntegrationID,
				"error", err,
			)
		}
	}

	w.logger.Info("webhook event accepted",
		"event_id", event.ID,
		"integration_id", event.IntegrationID,
		"entity_type", event.EntityType,
		"action", event.Action,
		"job_id", jobID,
	)

	return jobID, nil
}
