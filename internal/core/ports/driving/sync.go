package driving

import (
	"context"

	"github.com/classforge/rostersync-core/internal/core/domain"
)

// SyncEngine is the orchestration surface exposed to callers.
type SyncEngine interface {
	// ScheduleSyncJob admits, prioritizes, and queues a sync job.
	// Fails synchronously with domain.ErrIntegrationInactive or a
	// *domain.RateLimitError; returns the job id on success.
	ScheduleSyncJob(ctx context.Context, cfg domain.SyncJobConfig) (string, error)

	// CancelSyncJob requests removal of a queued job.
	// Returns false if the job is unknown or could not be removed;
	// errors are logged, not raised.
	CancelSyncJob(ctx context.Context, jobID string) (bool, error)

	// GetSyncJobStatus returns the materialized job view, or nil if the
	// job is unknown.
	GetSyncJobStatus(ctx context.Context, jobID string) (*domain.SyncJobStatus, error)

	// GetActiveSyncJobs lists in-flight jobs for an integration.
	// Empty integrationID lists all. Pure read, no side effects.
	GetActiveSyncJobs(ctx context.Context, integrationID string) []domain.ActiveSyncJob

	// GetSyncEngineStats summarizes queue counters, active jobs, and
	// rate-limit state.
	GetSyncEngineStats(ctx context.Context) (*domain.SyncEngineStats, error)
}

// WebhookProcessor ingests real-time roster events.
type WebhookProcessor interface {
	// ProcessWebhook validates the event, schedules a high-priority
	// real-time sync, and persists the raw event best-effort.
	// Returns the synthesized job id.
	ProcessWebhook(ctx context.Context, event *domain.WebhookEvent) (string, error)
}
