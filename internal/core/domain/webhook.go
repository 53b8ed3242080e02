package domain

import (
	"fmt"
	"time"
)

// WebhookAction is the change kind carried by a roster webhook event
type WebhookAction string

const (
	WebhookActionCreate WebhookAction = "create"
	WebhookActionUpdate WebhookAction = "update"
	WebhookActionDelete WebhookAction = "delete"
)

// Valid reports whether a is a recognized action.
func (a WebhookAction) Valid() bool {
	switch a {
	case WebhookActionCreate, WebhookActionUpdate, WebhookActionDelete:
		return true
	}
	return false
}

// WebhookEvent is an inbound change notification from a roster system.
// It is validated and consumed exactly once by the webhook intake.
type WebhookEvent struct {
	ID            string            `json:"id"`
	IntegrationID string            `json:"integration_id"`
	EventType     string            `json:"event_type"`
	EntityType    string            `json:"entity_type"` // e.g. "student", "class", "enrollment"
	EntityID      string            `json:"entity_id"`
	Action        WebhookAction     `json:"action"`
	Payload       map[string]any    `json:"payload,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	Signature     string            `json:"signature,omitempty"`
	ReceivedAt    time.Time         `json:"received_at"`
}

// Validate checks the fields the engine needs to synthesize a real-time
// sync job. All failures wrap ErrInvalidWebhookEvent.
func (e *WebhookEvent) Validate() error {
	switch {
	case e == nil:
		return fmt.Errorf("%w: event is nil", ErrInvalidWebhookEvent)
	case e.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidWebhookEvent)
	case e.IntegrationID == "":
		return fmt.Errorf("%w: missing integration id", ErrInvalidWebhookEvent)
	case e.EventType == "":
		return fmt.Errorf("%w: missing event type", ErrInvalidWebhookEvent)
	case e.EntityType == "":
		return fmt.Errorf("%w: missing entity type", ErrInvalidWebhookEvent)
	case e.EntityID == "":
		return fmt.Errorf("%w: missing entity id", ErrInvalidWebhookEvent)
	case !e.Action.Valid():
		return fmt.Errorf("%w: unrecognized action %q", ErrInvalidWebhookEvent, e.Action)
	}
	return nil
}

// IdempotencyKey derives the composite key used to deduplicate webhook
// persistence: integration id + event id + receipt time in milliseconds.
func (e *WebhookEvent) IdempotencyKey() string {
	return fmt.Sprintf("%s:%s:%d", e.IntegrationID, e.ID, e.ReceivedAt.UnixMilli())
}
