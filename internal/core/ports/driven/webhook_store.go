package driven

import (
	"context"

	"github.com/classforge/rostersync-core/internal/core/domain"
)

// WebhookEventStore persists raw webhook events for audit and replay.
// Storage deduplicates by idempotency key: persisting the same key twice
// must not create two records.
type WebhookEventStore interface {
	// Persist stores the event under the given idempotency key.
	Persist(ctx context.Context, event *domain.WebhookEvent, idempotencyKey string) error
}
