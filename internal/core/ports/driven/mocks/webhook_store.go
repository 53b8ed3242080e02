package mocks

import (
	"context"
	"sync"

	"github.com/classforge/rostersync-core/internal/core/domain"
)

// MockWebhookEventStore is an in-memory WebhookEventStore for testing.
// Like the real storage layer, it deduplicates by idempotency key.
type MockWebhookEventStore struct {
	mu     sync.RWMutex
	events map[string]*domain.WebhookEvent

	// PersistErr, when set, is returned from Persist
	PersistErr error
}

// NewMockWebhookEventStore creates a new MockWebhookEventStore
func NewMockWebhookEventStore() *MockWebhookEventStore {
	return &MockWebhookEventStore{
		events: make(map[string]*domain.WebhookEvent),
	}
}

func (m *MockWebhookEventStore) Persist(ctx context.Context, event *domain.WebhookEvent, idempotencyKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PersistErr != nil {
		return m.PersistErr
	}
	// Duplicate keys overwrite rather than duplicate
	m.events[idempotencyKey] = event
	return nil
}

// Helper methods for testing

func (m *MockWebhookEventStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}

func (m *MockWebhookEventStore) Get(idempotencyKey string) *domain.WebhookEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.events[idempotencyKey]
}
