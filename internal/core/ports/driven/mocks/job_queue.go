package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/classforge/rostersync-core/internal/core/domain"
	"github.com/classforge/rostersync-core/internal/core/ports/driven"
)

// MockJobQueue is a functional in-memory JobQueue for testing.
// It honors weight ordering, scheduled delays, retry budgets, and emits
// lifecycle events like the real adapters.
type MockJobQueue struct {
	mu     sync.Mutex
	jobs   map[string]*domain.SyncJob
	events chan driven.JobEvent
	closed bool

	completed int64
	failed    int64

	// Error injection
	SubmitErr error
	RemoveErr error
	GetErr    error
}

// NewMockJobQueue creates a new MockJobQueue
func NewMockJobQueue() *MockJobQueue {
	return &MockJobQueue{
		jobs:   make(map[string]*domain.SyncJob),
		events: make(chan driven.JobEvent, 64),
	}
}

func (m *MockJobQueue) Submit(ctx context.Context, job *domain.SyncJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubmitErr != nil {
		return m.SubmitErr
	}
	m.jobs[job.ID] = job
	return nil
}

func (m *MockJobQueue) GetJob(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	return m.jobs[jobID], nil
}

func (m *MockJobQueue) Remove(ctx context.Context, jobID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RemoveErr != nil {
		return false, m.RemoveErr
	}
	job, ok := m.jobs[jobID]
	if !ok || job.Status == domain.JobStatusProcessing {
		return false, nil
	}
	delete(m.jobs, jobID)
	return true, nil
}

// Dequeue returns the lowest-weight due pending job for the strategy,
// without blocking.
func (m *MockJobQueue) Dequeue(ctx context.Context, strategy domain.SyncStrategy, timeoutSeconds int) (*domain.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []*domain.SyncJob
	now := time.Now()
	for _, job := range m.jobs {
		if job.Config.Strategy == strategy &&
			job.Status == domain.JobStatusPending &&
			!job.ScheduledFor.After(now) {
			due = append(due, job)
		}
	}
	if len(due) == 0 {
		return nil, nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Weight != due[j].Weight {
			return due[i].Weight < due[j].Weight
		}
		return due[i].CreatedAt.Before(due[j].CreatedAt)
	})

	job := due[0]
	job.MarkProcessing()
	return job, nil
}

func (m *MockJobQueue) Ack(ctx context.Context, jobID string, result *domain.SyncJobResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	job.MarkCompleted(result)
	m.completed++
	m.emit(driven.JobEvent{
		Type:          driven.JobEventCompleted,
		JobID:         jobID,
		IntegrationID: job.Config.IntegrationID,
		Strategy:      job.Config.Strategy,
		Result:        result,
	})
	return nil
}

func (m *MockJobQueue) Nack(ctx context.Context, jobID string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	willRetry := job.CanRetry()
	if willRetry {
		job.Retry(reason)
	} else {
		job.MarkFailed(reason)
		m.failed++
	}
	m.emit(driven.JobEvent{
		Type:          driven.JobEventFailed,
		JobID:         jobID,
		IntegrationID: job.Config.IntegrationID,
		Strategy:      job.Config.Strategy,
		Error:         reason,
		WillRetry:     willRetry,
	})
	return nil
}

func (m *MockJobQueue) Counts(ctx context.Context) (*driven.JobCounts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := &driven.JobCounts{Completed: m.completed, Failed: m.failed}
	now := time.Now()
	for _, job := range m.jobs {
		switch job.Status {
		case domain.JobStatusPending:
			if job.ScheduledFor.After(now) {
				counts.Delayed++
			} else {
				counts.Pending++
			}
		case domain.JobStatusProcessing:
			counts.Processing++
		}
	}
	return counts, nil
}

func (m *MockJobQueue) Events() <-chan driven.JobEvent {
	return m.events
}

func (m *MockJobQueue) Ping(ctx context.Context) error { return nil }

func (m *MockJobQueue) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.events)
	}
	return nil
}

func (m *MockJobQueue) emit(ev driven.JobEvent) {
	if m.closed {
		return
	}
	select {
	case m.events <- ev:
	default:
	}
}

// Helper methods for testing

// EmitStalled injects a stalled event, as the real queue does when it
// claims an abandoned job.
func (m *MockJobQueue) EmitStalled(jobID, integrationID string, strategy domain.SyncStrategy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emit(driven.JobEvent{
		Type:          driven.JobEventStalled,
		JobID:         jobID,
		IntegrationID: integrationID,
		Strategy:      strategy,
	})
}

func (m *MockJobQueue) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

func (m *MockJobQueue) SetCounts(completed, failed int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = completed
	m.failed = failed
}
