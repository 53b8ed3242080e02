package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/classforge/rostersync-core/internal/core/domain"
	"github.com/classforge/rostersync-core/internal/core/ports/driven"
	"github.com/classforge/rostersync-core/internal/core/ports/driven/mocks"
)

type staticProvider struct{ providerType string }

func (p staticProvider) Type() string { return p.providerType }

func (p staticProvider) PerformFullSync(ctx context.Context, sctx *domain.SyncContext) (*domain.ProviderResult, error) {
	return &domain.ProviderResult{Success: true}, nil
}

func (p staticProvider) PerformIncrementalSync(ctx context.Context, sctx *domain.SyncContext, since time.Time) (*domain.ProviderResult, error) {
	return &domain.ProviderResult{Success: true}, nil
}

func (p staticProvider) SyncEntity(ctx context.Context, entityType, entityID string, sctx *domain.SyncContext) (*domain.ProviderResult, error) {
	return &domain.ProviderResult{Success: true}, nil
}

func setupRegistry(t *testing.T) (*Registry, *mocks.MockIntegrationStore) {
	t.Helper()
	integrations := mocks.NewMockIntegrationStore()
	integrations.Put(&domain.Integration{
		ID:           "district-42",
		ProviderType: "oneroster",
		Enabled:      true,
		Status:       domain.IntegrationStatusActive,
	})
	return NewRegistry(integrations), integrations
}

func TestRegistry_ResolveCapable(t *testing.T) {
	registry, _ := setupRegistry(t)
	registry.Register(staticProvider{providerType: "oneroster"},
		driven.CapabilityFullSync, driven.CapabilityIncrementalSync)

	provider, err := registry.ResolveCapable(context.Background(), "district-42", driven.CapabilityFullSync)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.Type() != "oneroster" {
		t.Errorf("expected oneroster provider, got %s", provider.Type())
	}
}

func TestRegistry_MissingCapability(t *testing.T) {
	registry, _ := setupRegistry(t)
	registry.Register(staticProvider{providerType: "oneroster"}, driven.CapabilityFullSync)

	_, err := registry.ResolveCapable(context.Background(), "district-42", driven.CapabilityEntitySync)
	if !errors.Is(err, domain.ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestRegistry_UnregisteredType(t *testing.T) {
	registry, _ := setupRegistry(t)
	registry.Register(staticProvider{providerType: "clever"}, driven.CapabilityFullSync)

	_, err := registry.ResolveCapable(context.Background(), "district-42", driven.CapabilityFullSync)
	if !errors.Is(err, domain.ErrProviderNotFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestRegistry_UnknownIntegration(t *testing.T) {
	registry, _ := setupRegistry(t)

	_, err := registry.ResolveCapable(context.Background(), "nope", driven.CapabilityFullSync)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistry_ReplaceOnReregister(t *testing.T) {
	registry, _ := setupRegistry(t)
	registry.Register(staticProvider{providerType: "oneroster"}, driven.CapabilityFullSync)
	registry.Register(staticProvider{providerType: "oneroster"}, driven.CapabilityEntitySync)

	if _, err := registry.ResolveCapable(context.Background(), "district-42", driven.CapabilityFullSync); err == nil {
		t.Error("expected old capability set to be replaced")
	}
	if _, err := registry.ResolveCapable(context.Background(), "district-42", driven.CapabilityEntitySync); err != nil {
		t.Errorf("expected new capability set to apply: %v", err)
	}
}

func TestRegistry_SupportedTypes(t *testing.T) {
	registry, _ := setupRegistry(t)
	registry.Register(staticProvider{providerType: "oneroster"}, driven.CapabilityFullSync)
	registry.Register(staticProvider{providerType: "clever"}, driven.CapabilityFullSync)

	types := registry.SupportedTypes()
	if len(types) != 2 {
		t.Fatalf("expected 2 types, got %v", types)
	}
}
