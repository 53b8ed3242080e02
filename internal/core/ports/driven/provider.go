package driven

import (
	"context"
	"time"

	"github.com/classforge/rostersync-core/internal/core/domain"
)

// ProviderCapability names a sync operation a provider may support.
type ProviderCapability string

const (
	CapabilityFullSync        ProviderCapability = "full_sync"
	CapabilityIncrementalSync ProviderCapability = "incremental_sync"
	CapabilityEntitySync      ProviderCapability = "entity_sync"
)

// RosterProvider talks to one external roster system.
// Implementations live outside the orchestration core; the engine only
// depends on this contract.
type RosterProvider interface {
	// Type returns the provider type (e.g. "clever", "oneroster").
	Type() string

	// PerformFullSync re-syncs every entity type named in the context.
	PerformFullSync(ctx context.Context, sctx *domain.SyncContext) (*domain.ProviderResult, error)

	// PerformIncrementalSync syncs changes since the given time.
	PerformIncrementalSync(ctx context.Context, sctx *domain.SyncContext, since time.Time) (*domain.ProviderResult, error)

	// SyncEntity syncs a single entity identified by type and id.
	SyncEntity(ctx context.Context, entityType, entityID string, sctx *domain.SyncContext) (*domain.ProviderResult, error)
}

// ProviderRegistry resolves the provider responsible for an integration.
type ProviderRegistry interface {
	// ResolveCapable returns a provider for the integration that supports
	// the capability. Returns domain.ErrProviderNotFound if none is
	// registered.
	ResolveCapable(ctx context.Context, integrationID string, capability ProviderCapability) (RosterProvider, error)
}
