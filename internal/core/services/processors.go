package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/classforge/rostersync-core/internal/core/domain"
	"github.com/classforge/rostersync-core/internal/core/ports/driven"
)

// JobProcessor executes a dequeued sync job against the provider
// abstraction and converts the outcome into a uniform SyncJobResult.
//
// Execution failures are returned alongside the failed result so the
// queue substrate's retry policy applies regardless of failure cause.
type JobProcessor struct {
	providers    driven.ProviderRegistry
	integrations driven.IntegrationStore
	audit        driven.AuditStore
	logger       *slog.Logger

	// now is injectable for tests
	now func() time.Time
}

// JobProcessorConfig holds dependencies for JobProcessor.
type JobProcessorConfig struct {
	Providers    driven.ProviderRegistry
	Integrations driven.IntegrationStore
	Audit        driven.AuditStore
	Logger       *slog.Logger
}

// NewJobProcessor creates a new job processor.
func NewJobProcessor(cfg JobProcessorConfig) *JobProcessor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &JobProcessor{
		providers:    cfg.Providers,
		integrations: cfg.Integrations,
		audit:        cfg.Audit,
		logger:       logger,
		now:          time.Now,
	}
}

// Process dispatches a job to its strategy handler.
// All four strategies converge on the same SyncJobResult shape.
func (p *JobProcessor) Process(ctx context.Context, job *domain.SyncJob) (*domain.SyncJobResult, error) {
	switch job.Config.Strategy {
	case domain.StrategyFull, domain.StrategyManual:
		return p.processFull(ctx, job)
	case domain.StrategyIncremental:
		return p.processIncremental(ctx, job)
	case domain.StrategyRealTime:
		return p.processRealTime(ctx, job)
	default:
		err := fmt.Errorf("%w: unknown strategy %q", domain.ErrInvalidInput, job.Config.Strategy)
		return p.failResult(ctx, job, err), err
	}
}

// processFull handles full syncs; manual syncs use the same path.
func (p *JobProcessor) processFull(ctx context.Context, job *domain.SyncJob) (*domain.SyncJobResult, error) {
	provider, err := p.providers.ResolveCapable(ctx, job.Config.IntegrationID, driven.CapabilityFullSync)
	if err != nil {
		return p.failResult(ctx, job, err), err
	}

	pr, err := provider.PerformFullSync(ctx, &job.Context)
	if err != nil {
		return p.failResult(ctx, job, err), err
	}

	return p.successResult(ctx, job, pr, nil), nil
}

// processIncremental syncs changes since the integration's last
// successful sync (the epoch when none is recorded). On success the
// last-sync marker advances to the job's start time, not its end time,
// so changes that occurred during a long-running sync are picked up by
// the next incremental run.
func (p *JobProcessor) processIncremental(ctx context.Context, job *domain.SyncJob) (*domain.SyncJobResult, error) {
	provider, err := p.providers.ResolveCapable(ctx, job.Config.IntegrationID, driven.CapabilityIncrementalSync)
	if err != nil {
		return p.failResult(ctx, job, err), err
	}

	since := time.Unix(0, 0)
	if integration, err := p.integrations.Get(ctx, job.Config.IntegrationID); err == nil {
		if integration.LastSuccessfulSync != nil {
			since = *integration.LastSuccessfulSync
		}
	} else {
		p.logger.Warn("failed to read integration for incremental sync, using epoch",
			"integration_id", job.Config.IntegrationID, "error", err)
	}

	pr, err := provider.PerformIncrementalSync(ctx, &job.Context, since)
	if err != nil {
		return p.failResult(ctx, job, err), err
	}

	// A provider may report success=false without erroring. The marker
	// must not advance then, or the changes that failed to apply would be
	// skipped by every later incremental run.
	if pr.Success {
		if err := p.integrations.UpdateLastSync(ctx, job.Config.IntegrationID, job.Context.StartedAt); err != nil {
			p.logger.Error("failed to advance last sync time",
				"integration_id", job.Config.IntegrationID, "error", err)
		}
	}

	return p.successResult(ctx, job, pr, map[string]string{"since": since.UTC().Format(time.RFC3339)}), nil
}

// processRealTime syncs the single entity named by the originating
// webhook event.
func (p *JobProcessor) processRealTime(ctx context.Context, job *domain.SyncJob) (*domain.SyncJobResult, error) {
	entityType := job.Context.Metadata["entity_type"]
	entityID := job.Context.Metadata["entity_id"]
	if entityType == "" || entityID == "" {
		err := fmt.Errorf("%w: real-time job missing entity_type/entity_id metadata", domain.ErrInvalidInput)
		return p.failResult(ctx, job, err), err
	}

	provider, err := p.providers.ResolveCapable(ctx, job.Config.IntegrationID, driven.CapabilityEntitySync)
	if err != nil {
		return p.failResult(ctx, job, err), err
	}

	pr, err := provider.SyncEntity(ctx, entityType, entityID, &job.Context)
	if err != nil {
		return p.failResult(ctx, job, err), err
	}

	// Single-entity summary is derived from the one operation's outcome,
	// not an aggregate.
	if len(pr.Operations) > 0 {
		pr.Summary = summarizeOperation(pr.Operations[0])
	}

	meta := map[string]string{
		"webhook_event_id": job.Context.Metadata["event_id"],
		"entity_type":      entityType,
		"entity_id":        entityID,
	}
	return p.successResult(ctx, job, pr, meta), nil
}

// summarizeOperation maps one operation outcome onto summary counters.
func summarizeOperation(op domain.OperationResult) domain.SyncSummary {
	s := domain.SyncSummary{TotalProcessed: 1}
	if !op.Success {
		s.Errors = 1
		return s
	}
	switch op.Action {
	case "create":
		s.Created = 1
	case "update":
		s.Updated = 1
	case "delete":
		s.Deleted = 1
	default:
		s.Skipped = 1
	}
	return s
}

// successResult builds, audits, and returns a successful job result.
func (p *JobProcessor) successResult(ctx context.Context, job *domain.SyncJob, pr *domain.ProviderResult, extra map[string]string) *domain.SyncJobResult {
	end := p.now()
	result := &domain.SyncJobResult{
		JobID:         job.ID,
		IntegrationID: job.Config.IntegrationID,
		Strategy:      job.Config.Strategy,
		EntityTypes:   job.Config.EntityTypes,
		StartedAt:     job.Context.StartedAt,
		CompletedAt:   end,
		Duration:      end.Sub(job.Context.StartedAt),
		Success:       pr.Success,
		Operations:    pr.Operations,
		Summary:       pr.Summary,
		Metadata:      extra,
	}

	p.appendAudit(ctx, &domain.AuditEntry{
		IntegrationID: job.Config.IntegrationID,
		EventType:     domain.AuditSyncCompleted,
		Severity:      domain.AuditSeverityInfo,
		Description:   fmt.Sprintf("%s sync completed", job.Config.Strategy),
		Details: map[string]string{
			"job_id":    job.ID,
			"processed": fmt.Sprintf("%d", pr.Summary.TotalProcessed),
		},
		CorrelationID: job.ID,
		Duration:      result.Duration,
		CreatedAt:     end,
	})

	return result
}

// failResult builds and audits a failed job result. The caller re-raises
// the originating error so the queue's retry policy engages.
func (p *JobProcessor) failResult(ctx context.Context, job *domain.SyncJob, cause error) *domain.SyncJobResult {
	end := p.now()
	result := &domain.SyncJobResult{
		JobID:         job.ID,
		IntegrationID: job.Config.IntegrationID,
		Strategy:      job.Config.Strategy,
		EntityTypes:   job.Config.EntityTypes,
		StartedAt:     job.Context.StartedAt,
		CompletedAt:   end,
		Duration:      end.Sub(job.Context.StartedAt),
		Success:       false,
		Summary:       domain.SyncSummary{Errors: 1},
		Errors:        []string{cause.Error()},
	}

	p.appendAudit(ctx, &domain.AuditEntry{
		IntegrationID: job.Config.IntegrationID,
		EventType:     domain.AuditSyncFailed,
		Severity:      domain.AuditSeverityError,
		Description:   fmt.Sprintf("%s sync failed", job.Config.Strategy),
		Details:       map[string]string{"job_id": job.ID},
		CorrelationID: job.ID,
		Duration:      result.Duration,
		ErrorMessage:  cause.Error(),
		CreatedAt:     end,
	})

	return result
}

func (p *JobProcessor) appendAudit(ctx context.Context, entry *domain.AuditEntry) {
	if p.audit == nil {
		return
	}
	if err := p.audit.Append(ctx, entry); err != nil {
		p.logger.Warn("failed to append audit entry",
			"integration_id", entry.IntegrationID,
			"event_type", entry.EventType,
			"error", err,
		)
	}
}
