package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/classforge/rostersync-core/internal/core/domain"
	"github.com/classforge/rostersync-core/internal/core/ports/driven"
)

// SyncOrchestrator accepts sync job requests, enforces admission
// preconditions, and hands jobs to the queue substrate. It owns the
// in-memory active-job map and keeps it in lockstep with queue lifecycle
// events: every tracked job has an in-flight queue job, and terminal
// events remove the tracking entry.
type SyncOrchestrator struct {
	integrations driven.IntegrationStore
	audit        driven.AuditStore
	queue        driven.JobQueue
	limiter      *RateLimiter
	logger       *slog.Logger

	mu     sync.RWMutex
	active map[string]domain.ActiveSyncJob

	// now is injectable for tests
	now func() time.Time
}

// SyncOrchestratorConfig holds dependencies for SyncOrchestrator.
type SyncOrchestratorConfig struct {
	Integrations driven.IntegrationStore
	Audit        driven.AuditStore
	Queue        driven.JobQueue
	Limiter      *RateLimiter
	Logger       *slog.Logger
}

// NewSyncOrchestrator creates a new sync orchestrator.
func NewSyncOrchestrator(cfg SyncOrchestratorConfig) *SyncOrchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = NewRateLimiter(logger)
	}

	return &SyncOrchestrator{
		integrations: cfg.Integrations,
		audit:        cfg.Audit,
		queue:        cfg.Queue,
		limiter:      limiter,
		logger:       logger,
		active:       make(map[string]domain.ActiveSyncJob),
		now:          time.Now,
	}
}

// ScheduleSyncJob admits and queues a sync job.
// Precondition failures (inactive integration, rate limit) are returned
// synchronously and leave no trace in the queue.
func (o *SyncOrchestrator) ScheduleSyncJob(ctx context.Context, cfg domain.SyncJobConfig) (string, error) {
	if cfg.IntegrationID == "" || !cfg.Strategy.Valid() {
		return "", fmt.Errorf("%w: integration id and valid strategy are required", domain.ErrInvalidInput)
	}
	if cfg.Priority == "" {
		cfg.Priority = domain.PriorityNormal
	}
	if !cfg.Priority.Valid() {
		return "", fmt.Errorf("%w: unknown priority %q", domain.ErrInvalidInput, cfg.Priority)
	}

	integration, err := o.integrations.Get(ctx, cfg.IntegrationID)
	if errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("integration %s: %w", cfg.IntegrationID, domain.ErrIntegrationInactive)
	}
	if err != nil {
		// Transient store failures are not an admission verdict
		return "", fmt.Errorf("failed to load integration %s: %w", cfg.IntegrationID, err)
	}
	if !integration.Active() {
		return "", fmt.Errorf("integration %s is disabled or not active: %w",
			cfg.IntegrationID, domain.ErrIntegrationInactive)
	}

	if err := o.limiter.Check(cfg.IntegrationID, integration.RateLimits); err != nil {
		return "", err
	}

	job := domain.NewSyncJob(cfg, o.now())

	if err := o.queue.Submit(ctx, job); err != nil {
		return "", fmt.Errorf("failed to submit sync job: %w", err)
	}

	o.track(job)

	o.appendAudit(ctx, &domain.AuditEntry{
		IntegrationID: cfg.IntegrationID,
		EventType:     domain.AuditSyncScheduled,
		Severity:      domain.AuditSeverityInfo,
		Description:   fmt.Sprintf("scheduled %s sync with %s priority", cfg.Strategy, cfg.Priority),
		Details: map[string]string{
			"job_id":   job.ID,
			"strategy": string(cfg.Strategy),
			"priority": string(cfg.Priority),
		},
		CorrelationID: uuid.NewString(),
		CreatedAt:     o.now(),
	})

	o.logger.Info("sync job scheduled",
		"job_id", job.ID,
		"integration_id", cfg.IntegrationID,
		"strategy", cfg.Strategy,
		"priority", cfg.Priority,
		"weight", job.Weight,
	)

	return job.ID, nil
}

// CancelSyncJob requests removal of a queued job.
// Failures are logged and reported as false, never raised.
func (o *SyncOrchestrator) CancelSyncJob(ctx context.Context, jobID string) (bool, error) {
	job, err := o.queue.GetJob(ctx, jobID)
	if err != nil {
		o.logger.Error("failed to look up job for cancellation", "job_id", jobID, "error", err)
		return false, nil
	}
	if job == nil {
		return false, nil
	}

	removed, err := o.queue.Remove(ctx, jobID)
	if err != nil {
		o.logger.Error("failed to remove job from queue", "job_id", jobID, "error", err)
		return false, nil
	}
	if !removed {
		return false, nil
	}

	o.untrack(jobID)

	o.appendAudit(ctx, &domain.AuditEntry{
		IntegrationID: job.Config.IntegrationID,
		EventType:     domain.AuditSyncCancelled,
		Severity:      domain.AuditSeverityInfo,
		Description:   fmt.Sprintf("cancelled %s sync", job.Config.Strategy),
		Details:       map[string]string{"job_id": jobID},
		CorrelationID: uuid.NewString(),
		CreatedAt:     o.now(),
	})

	o.logger.Info("sync job cancelled", "job_id", jobID, "integration_id", job.Config.IntegrationID)
	return true, nil
}

// GetSyncJobStatus returns the materialized view of a job, or nil if the
// queue does not know it.
func (o *SyncOrchestrator) GetSyncJobStatus(ctx context.Context, jobID string) (*domain.SyncJobStatus, error) {
	job, err := o.queue.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	if job == nil {
		return nil, nil
	}
	return job.StatusView(), nil
}

// GetActiveSyncJobs lists in-flight jobs, optionally filtered by
// integration. Pure read.
func (o *SyncOrchestrator) GetActiveSyncJobs(ctx context.Context, integrationID string) []domain.ActiveSyncJob {
	o.mu.RLock()
	defer o.mu.RUnlock()

	jobs := make([]domain.ActiveSyncJob, 0, len(o.active))
	for _, j := range o.active {
		if integrationID == "" || j.IntegrationID == integrationID {
			jobs = append(jobs, j)
		}
	}
	return jobs
}

// GetSyncEngineStats combines queue counters with in-memory state.
func (o *SyncOrchestrator) GetSyncEngineStats(ctx context.Context) (*domain.SyncEngineStats, error) {
	counts, err := o.queue.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue counts: %w", err)
	}

	o.mu.RLock()
	activeCount := len(o.active)
	o.mu.RUnlock()

	total := counts.Completed + counts.Failed
	successRate := 0.0
	if total > 0 {
		successRate = float64(counts.Completed) / float64(total) * 100
	}

	return &domain.SyncEngineStats{
		ActiveJobs:         activeCount,
		PendingJobs:        counts.Pending,
		ProcessingJobs:     counts.Processing,
		DelayedJobs:        counts.Delayed,
		CompletedJobs:      counts.Completed,
		FailedJobs:         counts.Failed,
		TotalJobsProcessed: total,
		SuccessRate:        successRate,
		RateLimits:         o.limiter.Snapshot(),
		ByStrategy:         map[domain.SyncStrategy]int64{},
		ByPriority:         map[domain.SyncPriority]int64{},
	}, nil
}

// Run consumes queue lifecycle events until the context is cancelled or
// the event channel closes. It must run whenever workers are processing
// jobs, or tracking state and integration health fields will drift.
func (o *SyncOrchestrator) Run(ctx context.Context) {
	o.logger.Info("orchestrator event loop started")
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator event loop stopped")
			return
		case ev, ok := <-o.queue.Events():
			if !ok {
				o.logger.Info("queue event channel closed")
				return
			}
			o.handleEvent(ctx, ev)
		}
	}
}

// handleEvent applies one lifecycle transition.
func (o *SyncOrchestrator) handleEvent(ctx context.Context, ev driven.JobEvent) {
	switch ev.Type {
	case driven.JobEventCompleted:
		o.handleCompleted(ctx, ev)
	case driven.JobEventFailed:
		o.handleFailed(ctx, ev)
	case driven.JobEventStalled:
		// Stalled jobs are retried or re-failed by the queue substrate;
		// log only.
		o.logger.Warn("sync job stalled",
			"job_id", ev.JobID,
			"integration_id", ev.IntegrationID,
			"strategy", ev.Strategy,
		)
	default:
		o.logger.Warn("unknown job event", "type", ev.Type, "job_id", ev.JobID)
	}
}

func (o *SyncOrchestrator) handleCompleted(ctx context.Context, ev driven.JobEvent) {
	o.untrack(ev.JobID)

	if ev.Result == nil || !ev.Result.Success {
		return
	}

	// Incremental syncs advance last_successful_sync to the job start
	// time inside the processor, so changes during a long-running sync
	// are not skipped. Overwriting it with the end time here would undo
	// that.
	if ev.Strategy != domain.StrategyIncremental {
		if err := o.integrations.UpdateLastSync(ctx, ev.IntegrationID, ev.Result.CompletedAt); err != nil {
			o.logger.Error("failed to update last sync time",
				"integration_id", ev.IntegrationID, "error", err)
		}
	}

	if err := o.integrations.ResetErrorCount(ctx, ev.IntegrationID); err != nil {
		o.logger.Error("failed to reset error count",
			"integration_id", ev.IntegrationID, "error", err)
	}

	o.logger.Info("sync job completed",
		"job_id", ev.JobID,
		"integration_id", ev.IntegrationID,
		"strategy", ev.Strategy,
		"processed", ev.Result.Summary.TotalProcessed,
	)
}

func (o *SyncOrchestrator) handleFailed(ctx context.Context, ev driven.JobEvent) {
	o.untrack(ev.JobID)

	// Every failed attempt increments the counter, not just the final one.
	if err := o.integrations.IncrementErrorCount(ctx, ev.IntegrationID); err != nil {
		o.logger.Error("failed to increment error count",
			"integration_id", ev.IntegrationID, "error", err)
	}
	if err := o.integrations.UpdateError(ctx, ev.IntegrationID, ev.Error); err != nil {
		o.logger.Error("failed to record sync error",
			"integration_id", ev.IntegrationID, "error", err)
	}

	o.logger.Error("sync job failed",
		"job_id", ev.JobID,
		"integration_id", ev.IntegrationID,
		"strategy", ev.Strategy,
		"will_retry", ev.WillRetry,
		"reason", ev.Error,
	)
}

// track inserts the job's tracking entry.
func (o *SyncOrchestrator) track(job *domain.SyncJob) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active[job.ID] = domain.ActiveSyncJob{
		JobID:         job.ID,
		IntegrationID: job.Config.IntegrationID,
		Strategy:      job.Config.Strategy,
		StartedAt:     job.Context.StartedAt,
		EntityTypes:   job.Config.EntityTypes,
	}
}

// untrack removes the job's tracking entry. Safe on unknown ids.
func (o *SyncOrchestrator) untrack(jobID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, jobID)
}

// appendAudit writes best-effort: failures are logged, never propagated.
func (o *SyncOrchestrator) appendAudit(ctx context.Context, entry *domain.AuditEntry) {
	if o.audit == nil {
		return
	}
	if err := o.audit.Append(ctx, entry); err != nil {
		o.logger.Warn("failed to append audit entry",
			"integration_id", entry.IntegrationID,
			"event_type", entry.EventType,
			"error", err,
		)
	}
}
