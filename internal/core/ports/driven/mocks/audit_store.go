package mocks

import (
	"context"
	"sync"

	"github.com/classforge/rostersync-core/internal/core/domain"
)

// MockAuditStore records audit entries in memory for testing
type MockAuditStore struct {
	mu      sync.RWMutex
	entries []*domain.AuditEntry

	// AppendErr, when set, is returned from Append
	AppendErr error
}

// NewMockAuditStore creates a new MockAuditStore
func NewMockAuditStore() *MockAuditStore {
	return &MockAuditStore{}
}

func (m *MockAuditStore) Append(ctx context.Context, entry *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AppendErr != nil {
		return m.AppendErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

// Helper methods for testing

func (m *MockAuditStore) Entries() []*domain.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.AuditEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *MockAuditStore) CountByType(eventType string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, e := range m.entries {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}
