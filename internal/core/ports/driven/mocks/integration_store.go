package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/classforge/rostersync-core/internal/core/domain"
)

// MockIntegrationStore is an in-memory IntegrationStore for testing
type MockIntegrationStore struct {
	mu           sync.RWMutex
	integrations map[string]*domain.Integration

	// Optional error injection
	GetErr    error
	UpdateErr error
}

// NewMockIntegrationStore creates a new MockIntegrationStore
func NewMockIntegrationStore() *MockIntegrationStore {
	return &MockIntegrationStore{
		integrations: make(map[string]*domain.Integration),
	}
}

func (m *MockIntegrationStore) Get(ctx context.Context, id string) (*domain.Integration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	integration, ok := m.integrations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return integration, nil
}

func (m *MockIntegrationStore) List(ctx context.Context) ([]*domain.Integration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*domain.Integration
	for _, i := range m.integrations {
		result = append(result, i)
	}
	return result, nil
}

func (m *MockIntegrationStore) Save(ctx context.Context, integration *domain.Integration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.integrations[integration.ID] = integration
	return nil
}

func (m *MockIntegrationStore) UpdateLastSync(ctx context.Context, id string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	integration, ok := m.integrations[id]
	if !ok {
		return domain.ErrNotFound
	}
	integration.LastSuccessfulSync = &ts
	return nil
}

func (m *MockIntegrationStore) UpdateError(ctx context.Context, id string, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	integration, ok := m.integrations[id]
	if !ok {
		return domain.ErrNotFound
	}
	integration.LastError = message
	return nil
}

func (m *MockIntegrationStore) IncrementErrorCount(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	integration, ok := m.integrations[id]
	if !ok {
		return domain.ErrNotFound
	}
	integration.ErrorCount++
	return nil
}

func (m *MockIntegrationStore) ResetErrorCount(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	integration, ok := m.integrations[id]
	if !ok {
		return domain.ErrNotFound
	}
	integration.ErrorCount = 0
	return nil
}

// Helper methods for testing

func (m *MockIntegrationStore) Put(integration *domain.Integration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.integrations[integration.ID] = integration
}

func (m *MockIntegrationStore) ErrorCount(id string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i, ok := m.integrations[id]; ok {
		return i.ErrorCount
	}
	return 0
}

func (m *MockIntegrationStore) LastSync(id string) *time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i, ok := m.integrations[id]; ok {
		return i.LastSuccessfulSync
	}
	return nil
}
