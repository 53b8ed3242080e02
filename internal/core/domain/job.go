package domain

import (
	"fmt"
	"strings"
	"time"
)

// SyncStrategy determines which provider operation a job invokes
type SyncStrategy string

const (
	// StrategyFull re-syncs every entity the provider exposes
	StrategyFull SyncStrategy = "full"
	// StrategyIncremental syncs changes since the last successful sync
	StrategyIncremental SyncStrategy = "incremental"
	// StrategyRealTime syncs a single entity in response to a webhook event
	StrategyRealTime SyncStrategy = "real_time"
	// StrategyManual is an operator-triggered full sync
	StrategyManual SyncStrategy = "manual"
)

// Valid reports whether s is a known strategy.
func (s SyncStrategy) Valid() bool {
	switch s {
	case StrategyFull, StrategyIncremental, StrategyRealTime, StrategyManual:
		return true
	}
	return false
}

// SyncPriority orders jobs for queue admission
type SyncPriority string

const (
	PriorityLow      SyncPriority = "low"
	PriorityNormal   SyncPriority = "normal"
	PriorityHigh     SyncPriority = "high"
	PriorityCritical SyncPriority = "critical"
)

// Valid reports whether p is a known priority.
func (p SyncPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Weight maps a priority to its queue weight.
// Lower weight is serviced first. Unknown priorities weigh as normal.
func (p SyncPriority) Weight() int {
	switch p {
	case PriorityLow:
		return 10
	case PriorityNormal:
		return 5
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 1
	default:
		return 5
	}
}

// Scheduling defaults. Real-time jobs fail fast; batch strategies get the
// long timeout.
const (
	DefaultMaxRetries  = 3
	DefaultJobTimeout  = 5 * time.Minute
	RealTimeJobTimeout = 30 * time.Second
	RealTimeMaxRetries = 2
)

// SyncJobConfig is the immutable request to schedule a sync job.
// It is never mutated after submission.
type SyncJobConfig struct {
	IntegrationID string            `json:"integration_id"`
	Strategy      SyncStrategy      `json:"strategy"`
	EntityTypes   []string          `json:"entity_types,omitempty"`
	Priority      SyncPriority      `json:"priority"`
	BatchSize     int               `json:"batch_size,omitempty"`
	MaxRetries    int               `json:"max_retries,omitempty"`
	Timeout       time.Duration     `json:"timeout,omitempty"`
	Delay         time.Duration     `json:"delay,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// NewJobID builds the canonical job identifier.
// Format: sync_{integrationID}_{strategy}_{unixMillis}
func NewJobID(integrationID string, strategy SyncStrategy, at time.Time) string {
	return fmt.Sprintf("sync_%s_%s_%d", integrationID, strategy, at.UnixMilli())
}

// SyncContext is the per-invocation envelope passed into the strategy
// processor and the provider call. Read-only after creation.
type SyncContext struct {
	JobID         string            `json:"job_id"`
	IntegrationID string            `json:"integration_id"`
	StartedAt     time.Time         `json:"started_at"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// ActiveSyncJob is the in-memory tracking entry for an in-flight job.
// Owned exclusively by the orchestrator; not persisted.
type ActiveSyncJob struct {
	JobID         string       `json:"job_id"`
	IntegrationID string       `json:"integration_id"`
	Strategy      SyncStrategy `json:"strategy"`
	StartedAt     time.Time    `json:"started_at"`
	EntityTypes   []string     `json:"entity_types,omitempty"`
}

// OperationResult is the outcome of a single entity operation within a sync.
type OperationResult struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id,omitempty"`
	Action     string `json:"action"` // create, update, delete, skip
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// SyncSummary holds aggregate counts for a sync job.
type SyncSummary struct {
	TotalProcessed int `json:"total_processed"`
	Created        int `json:"created"`
	Updated        int `json:"updated"`
	Deleted        int `json:"deleted"`
	Skipped        int `json:"skipped"`
	Errors         int `json:"errors"`
}

// SyncJobResult is the uniform output of every strategy processor.
// It is persisted to the audit log and returned to status pollers.
type SyncJobResult struct {
	JobID         string            `json:"job_id"`
	IntegrationID string            `json:"integration_id"`
	Strategy      SyncStrategy      `json:"strategy"`
	EntityTypes   []string          `json:"entity_types,omitempty"`
	StartedAt     time.Time         `json:"started_at"`
	CompletedAt   time.Time         `json:"completed_at"`
	Duration      time.Duration     `json:"duration"`
	Success       bool              `json:"success"`
	Operations    []OperationResult `json:"operations,omitempty"`
	Summary       SyncSummary       `json:"summary"`
	Errors        []string          `json:"errors,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// ProviderResult is what a roster provider returns from any sync operation.
type ProviderResult struct {
	Success    bool              `json:"success"`
	Operations []OperationResult `json:"operations,omitempty"`
	Summary    SyncSummary       `json:"summary"`
}

// JobStatus represents the queue-level state of a sync job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

// SyncJob is the queue envelope for a scheduled sync.
type SyncJob struct {
	// ID is the canonical job identifier (sync_{integration}_{strategy}_{ts})
	ID string `json:"id"`

	// Config is the originating request, carried verbatim
	Config SyncJobConfig `json:"config"`

	// Context is the per-invocation envelope handed to the processor
	Context SyncContext `json:"context"`

	// Status is the current queue-level state
	Status JobStatus `json:"status"`

	// Weight orders dequeuing; lower is serviced first
	Weight int `json:"weight"`

	// Attempts is how many times this job has been dispatched
	Attempts int `json:"attempts"`

	// MaxAttempts is the retry budget before the job is failed terminally
	MaxAttempts int `json:"max_attempts"`

	// Timeout bounds a single execution attempt
	Timeout time.Duration `json:"timeout"`

	// Progress is 0-100, set to 100 on completion
	Progress int `json:"progress"`

	// Error holds the most recent failure reason
	Error string `json:"error,omitempty"`

	// Result is populated once a terminal attempt produces one
	Result *SyncJobResult `json:"result,omitempty"`

	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ScheduledFor time.Time  `json:"scheduled_for"`
}

// NewSyncJob builds a queue job from a scheduling request.
// Retry and timeout defaults are applied here so the queue envelope is
// always fully specified.
func NewSyncJob(cfg SyncJobConfig, now time.Time) *SyncJob {
	maxAttempts := cfg.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxRetries
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		if cfg.Strategy == StrategyRealTime {
			timeout = RealTimeJobTimeout
		} else {
			timeout = DefaultJobTimeout
		}
	}

	id := NewJobID(cfg.IntegrationID, cfg.Strategy, now)

	meta := map[string]string{
		"strategy": string(cfg.Strategy),
		"priority": string(cfg.Priority),
	}
	if len(cfg.EntityTypes) > 0 {
		meta["entity_types"] = strings.Join(cfg.EntityTypes, ",")
	}
	for k, v := range cfg.Metadata {
		meta[k] = v
	}

	return &SyncJob{
		ID:     id,
		Config: cfg,
		Context: SyncContext{
			JobID:         id,
			IntegrationID: cfg.IntegrationID,
			StartedAt:     now,
			Metadata:      meta,
		},
		Status:       JobStatusPending,
		Weight:       cfg.Priority.Weight(),
		MaxAttempts:  maxAttempts,
		Timeout:      timeout,
		CreatedAt:    now,
		UpdatedAt:    now,
		ScheduledFor: now.Add(cfg.Delay),
	}
}

// CanRetry returns true if the job has retry budget left
func (j *SyncJob) CanRetry() bool {
	return j.Attempts < j.MaxAttempts
}

// IsReady returns true if the job is ready to be dispatched
func (j *SyncJob) IsReady() bool {
	return j.Status == JobStatusPending && time.Now().After(j.ScheduledFor)
}

// MarkProcessing updates the job to processing state
func (j *SyncJob) MarkProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.StartedAt = &now
	j.UpdatedAt = now
	j.Attempts++
}

// MarkCompleted updates the job to completed state with its result
func (j *SyncJob) MarkCompleted(result *SyncJobResult) {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
	j.Progress = 100
	j.Result = result
	j.Error = ""
}

// MarkFailed updates the job to terminally failed state
func (j *SyncJob) MarkFailed(reason string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.UpdatedAt = now
	j.Error = reason
}

// MarkCancelled updates the job to cancelled state
func (j *SyncJob) MarkCancelled() {
	now := time.Now()
	j.Status = JobStatusCancelled
	j.UpdatedAt = now
	j.Error = "cancelled"
}

// Retry resets the job for another attempt with exponential backoff.
// Backoff: 1s, 2s, 4s, ... capped at 5 minutes.
func (j *SyncJob) Retry(reason string) {
	now := time.Now()
	j.Status = JobStatusPending
	j.UpdatedAt = now
	j.Error = reason

	backoff := time.Duration(1<<j.Attempts) * time.Second
	if backoff > 5*time.Minute {
		backoff = 5 * time.Minute
	}
	j.ScheduledFor = now.Add(backoff)
}

// SyncJobStatus is the materialized view returned to status pollers.
type SyncJobStatus struct {
	JobID         string         `json:"job_id"`
	IntegrationID string         `json:"integration_id"`
	Strategy      SyncStrategy   `json:"strategy"`
	Priority      SyncPriority   `json:"priority"`
	Status        JobStatus      `json:"status"`
	Progress      int            `json:"progress"`
	Attempts      int            `json:"attempts"`
	Result        *SyncJobResult `json:"result,omitempty"`
	FailedReason  string         `json:"failed_reason,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// StatusView materializes the poller-facing view of a job.
func (j *SyncJob) StatusView() *SyncJobStatus {
	s := &SyncJobStatus{
		JobID:         j.ID,
		IntegrationID: j.Config.IntegrationID,
		Strategy:      j.Config.Strategy,
		Priority:      j.Config.Priority,
		Status:        j.Status,
		Progress:      j.Progress,
		Attempts:      j.Attempts,
		Result:        j.Result,
		CreatedAt:     j.CreatedAt,
		StartedAt:     j.StartedAt,
		CompletedAt:   j.CompletedAt,
	}
	if j.Status == JobStatusFailed || (j.Error != "" && j.Status == JobStatusPending) {
		s.FailedReason = j.Error
	}
	return s
}

// SyncEngineStats summarizes engine health for operators.
type SyncEngineStats struct {
	ActiveJobs     int   `json:"active_jobs"`
	PendingJobs    int64 `json:"pending_jobs"`
	ProcessingJobs int64 `json:"processing_jobs"`
	DelayedJobs    int64 `json:"delayed_jobs"`
	CompletedJobs  int64 `json:"completed_jobs"`
	FailedJobs     int64 `json:"failed_jobs"`

	// TotalJobsProcessed is lifetime completed+failed
	TotalJobsProcessed int64 `json:"total_jobs_processed"`

	// SuccessRate is completed/(completed+failed)*100, 0 with no history
	SuccessRate float64 `json:"success_rate"`

	// RateLimits is a point-in-time snapshot per integration
	RateLimits map[string]RateLimitSnapshot `json:"rate_limits,omitempty"`

	// ByStrategy and ByPriority require persistent counters the engine
	// does not keep; they are reported as zero.
	ByStrategy map[SyncStrategy]int64 `json:"by_strategy"`
	ByPriority map[SyncPriority]int64 `json:"by_priority"`
}

// RateLimitSnapshot is a point-in-time view of one integration's counters.
type RateLimitSnapshot struct {
	MinuteCount   int        `json:"minute_count"`
	HourCount     int        `json:"hour_count"`
	NextAvailable *time.Time `json:"next_available,omitempty"`
}
