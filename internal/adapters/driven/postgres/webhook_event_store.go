package postgres

import (
	"context"
	"encoding/json"

	"github.com/classforge/rostersync-core/internal/core/domain"
	"github.com/classforge/rostersync-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.WebhookEventStore = (*WebhookEventStore)(nil)

// WebhookEventStore implements driven.WebhookEventStore using PostgreSQL.
// Duplicate deliveries are absorbed by the idempotency key primary key.
type WebhookEventStore struct {
	db *DB
}

// NewWebhookEventStore creates a new WebhookEventStore
func NewWebhookEventStore(db *DB) *WebhookEventStore {
	return &WebhookEventStore{db: db}
}

// Persist stores one webhook event. Re-delivery of the same event under
// the same idempotency key is a silent no-op.
func (s *WebhookEventStore) Persist(ctx context.Context, event *domain.WebhookEvent, idempotencyKey string) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		payload = []byte("{}")
	}

	query := `
		INSERT INTO webhook_events (
			idempotency_key, event_id, integration_id, event_type,
			entity_type, entity_id, action, payload, received_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (idempotency_key) DO NOTHING
	`

	_, err = s.db.ExecContext(ctx, query,
		idempotencyKey,
		event.ID,
		event.IntegrationID,
		event.EventType,
		event.EntityType,
		event.EntityID,
		string(event.Action),
		payload,
		event.ReceivedAt,
	)
	return err
}
