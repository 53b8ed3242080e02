package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/classforge/rostersync-core/internal/core/domain"
	"github.com/classforge/rostersync-core/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.ProviderRegistry = (*Registry)(nil)

// Registry resolves roster providers for integrations. Providers register
// by type together with the capabilities they support; integrations are
// mapped to a provider through their configured provider type.
type Registry struct {
	mu           sync.RWMutex
	providers    map[string]driven.RosterProvider
	capabilities map[string]map[driven.ProviderCapability]bool

	integrations driven.IntegrationStore
}

// NewRegistry creates a provider registry.
func NewRegistry(integrations driven.IntegrationStore) *Registry {
	return &Registry{
		providers:    make(map[string]driven.RosterProvider),
		capabilities: make(map[string]map[driven.ProviderCapability]bool),
		integrations: integrations,
	}
}

// Register registers a provider for its type with the capabilities it
// supports. Registering the same type again replaces the previous entry.
func (r *Registry) Register(provider driven.RosterProvider, capabilities ...driven.ProviderCapability) {
	r.mu.Lock()
	defer r.mu.Unlock()

	caps := make(map[driven.ProviderCapability]bool, len(capabilities))
	for _, c := range capabilities {
		caps[c] = true
	}
	r.providers[provider.Type()] = provider
	r.capabilities[provider.Type()] = caps
}

// ResolveCapable returns the provider serving the integration, checked
// for the requested capability.
func (r *Registry) ResolveCapable(ctx context.Context, integrationID string, capability driven.ProviderCapability) (driven.RosterProvider, error) {
	integration, err := r.integrations.Get(ctx, integrationID)
	if err != nil {
		return nil, fmt.Errorf("resolve provider for integration %s: %w", integrationID, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[integration.ProviderType]
	if !ok {
		return nil, fmt.Errorf("%w: no provider registered for type %q", domain.ErrProviderNotFound, integration.ProviderType)
	}
	if !r.capabilities[integration.ProviderType][capability] {
		return nil, fmt.Errorf("%w: provider %q does not support %s", domain.ErrProviderNotFound, integration.ProviderType, capability)
	}
	return provider, nil
}

// SupportedTypes returns all registered provider types.
func (r *Registry) SupportedTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.providers))
	for t := range r.providers {
		types = append(types, t)
	}
	return types
}
