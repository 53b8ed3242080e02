package driven

import (
	"context"

	"github.com/classforge/rostersync-core/internal/core/domain"
)

// JobEventType is a terminal (or stall) transition reported by the queue.
type JobEventType string

const (
	JobEventCompleted JobEventType = "completed"
	JobEventFailed    JobEventType = "failed"
	JobEventStalled   JobEventType = "stalled"
)

// JobEvent is emitted by the queue substrate on job state transitions.
// Failed events fire once per failed attempt, not once per job, so
// consumers can count every failure.
type JobEvent struct {
	Type          JobEventType
	JobID         string
	IntegrationID string
	Strategy      domain.SyncStrategy

	// Result is set on completed events
	Result *domain.SyncJobResult

	// Error is set on failed events
	Error string

	// WillRetry is true on failed events when the queue will re-dispatch
	WillRetry bool
}

// JobCounts holds aggregate queue counters.
type JobCounts struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Delayed    int64 `json:"delayed"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// JobQueue is the durable job queue substrate.
// Implementations can use Redis (preferred) or Postgres (fallback).
// Priority weight, delay, retry budget, and timeout all travel on the
// domain.SyncJob envelope.
type JobQueue interface {
	// Submit enqueues a job. Jobs with a future ScheduledFor are held
	// back until due; dequeue order among due jobs follows Weight
	// (lower first).
	Submit(ctx context.Context, job *domain.SyncJob) error

	// GetJob retrieves a job by ID. Returns nil, nil if unknown.
	GetJob(ctx context.Context, jobID string) (*domain.SyncJob, error)

	// Remove removes a pending job from the queue. Returns false if the
	// job is unknown or already processing.
	Remove(ctx context.Context, jobID string) (bool, error)

	// Dequeue retrieves the next due job for the given strategy, waiting
	// up to timeout seconds. Returns nil, nil on timeout.
	// The job is marked processing and hidden from other workers.
	Dequeue(ctx context.Context, strategy domain.SyncStrategy, timeoutSeconds int) (*domain.SyncJob, error)

	// Ack acknowledges successful completion, storing the result and
	// emitting a completed event.
	Ack(ctx context.Context, jobID string, result *domain.SyncJobResult) error

	// Nack reports a failed attempt. The job is re-queued with backoff
	// while retry budget remains, else failed terminally. A failed event
	// is emitted either way.
	Nack(ctx context.Context, jobID string, reason string) error

	// Counts returns aggregate queue counters.
	Counts(ctx context.Context) (*JobCounts, error)

	// Events returns the channel of job state transitions.
	// The channel is owned by the queue and closed on Close.
	Events() <-chan JobEvent

	// Ping checks if the queue backend is healthy.
	Ping(ctx context.Context) error

	// Close cleans up resources.
	Close() error
}
