package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/classforge/rostersync-core/internal/core/domain"
)

// MockScheduleStore is an in-memory ScheduleStore for testing
type MockScheduleStore struct {
	mu        sync.RWMutex
	schedules map[string]*domain.SyncSchedule

	// ListDueErr, when set, is returned from ListDue
	ListDueErr error
}

// NewMockScheduleStore creates a new MockScheduleStore
func NewMockScheduleStore() *MockScheduleStore {
	return &MockScheduleStore{
		schedules: make(map[string]*domain.SyncSchedule),
	}
}

func (m *MockScheduleStore) Get(ctx context.Context, id string) (*domain.SyncSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (m *MockScheduleStore) List(ctx context.Context) ([]*domain.SyncSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.SyncSchedule
	for _, s := range m.schedules {
		result = append(result, s)
	}
	return result, nil
}

func (m *MockScheduleStore) ListDue(ctx context.Context) ([]*domain.SyncSchedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ListDueErr != nil {
		return nil, m.ListDueErr
	}
	var result []*domain.SyncSchedule
	for _, s := range m.schedules {
		if s.IsDue() {
			result = append(result, s)
		}
	}
	return result, nil
}

func (m *MockScheduleStore) Save(ctx context.Context, schedule *domain.SyncSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[schedule.ID] = schedule
	return nil
}

func (m *MockScheduleStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.schedules, id)
	return nil
}

func (m *MockScheduleStore) UpdateLastRun(ctx context.Context, id string, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	s.LastRun = &now
	s.NextRun = now.Add(s.Interval)
	s.LastError = lastError
	return nil
}
