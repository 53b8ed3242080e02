package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/classforge/rostersync-core/internal/core/domain"
	"github.com/classforge/rostersync-core/internal/core/ports/driven"
)

// MockRosterProvider is a configurable RosterProvider for testing
type MockRosterProvider struct {
	ProviderType string

	FullSyncFn        func(ctx context.Context, sctx *domain.SyncContext) (*domain.ProviderResult, error)
	IncrementalSyncFn func(ctx context.Context, sctx *domain.SyncContext, since time.Time) (*domain.ProviderResult, error)
	SyncEntityFn      func(ctx context.Context, entityType, entityID string, sctx *domain.SyncContext) (*domain.ProviderResult, error)

	mu            sync.Mutex
	FullCalls     int
	IncrCalls     int
	EntityCalls   int
	LastSince     time.Time
	LastEntityArg [2]string
}

// NewMockRosterProvider creates a provider that succeeds with empty results
func NewMockRosterProvider(providerType string) *MockRosterProvider {
	return &MockRosterProvider{ProviderType: providerType}
}

func (m *MockRosterProvider) Type() string {
	return m.ProviderType
}

func (m *MockRosterProvider) PerformFullSync(ctx context.Context, sctx *domain.SyncContext) (*domain.ProviderResult, error) {
	m.mu.Lock()
	m.FullCalls++
	m.mu.Unlock()
	if m.FullSyncFn != nil {
		return m.FullSyncFn(ctx, sctx)
	}
	return &domain.ProviderResult{Success: true}, nil
}

func (m *MockRosterProvider) PerformIncrementalSync(ctx context.Context, sctx *domain.SyncContext, since time.Time) (*domain.ProviderResult, error) {
	m.mu.Lock()
	m.IncrCalls++
	m.LastSince = since
	m.mu.Unlock()
	if m.IncrementalSyncFn != nil {
		return m.IncrementalSyncFn(ctx, sctx, since)
	}
	return &domain.ProviderResult{Success: true}, nil
}

func (m *MockRosterProvider) SyncEntity(ctx context.Context, entityType, entityID string, sctx *domain.SyncContext) (*domain.ProviderResult, error) {
	m.mu.Lock()
	m.EntityCalls++
	m.LastEntityArg = [2]string{entityType, entityID}
	m.mu.Unlock()
	if m.SyncEntityFn != nil {
		return m.SyncEntityFn(ctx, entityType, entityID, sctx)
	}
	return &domain.ProviderResult{
		Success:    true,
		Operations: []domain.OperationResult{{EntityType: entityType, EntityID: entityID, Action: "update", Success: true}},
		Summary:    domain.SyncSummary{TotalProcessed: 1, Updated: 1},
	}, nil
}

// MockProviderRegistry resolves a fixed provider per integration
type MockProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]driven.RosterProvider

	// ResolveErr, when set, is returned from ResolveCapable
	ResolveErr error
}

// NewMockProviderRegistry creates an empty registry
func NewMockProviderRegistry() *MockProviderRegistry {
	return &MockProviderRegistry{
		providers: make(map[string]driven.RosterProvider),
	}
}

func (m *MockProviderRegistry) Register(integrationID string, p driven.RosterProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.providers[integrationID] = p
}

func (m *MockProviderRegistry) ResolveCapable(ctx context.Context, integrationID string, capability driven.ProviderCapability) (driven.RosterProvider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ResolveErr != nil {
		return nil, m.ResolveErr
	}
	p, ok := m.providers[integrationID]
	if !ok {
		return nil, domain.ErrProviderNotFound
	}
	return p, nil
}
