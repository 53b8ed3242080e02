package domain

import (
	"errors"
	"testing"
	"time"
)

func validEvent() *WebhookEvent {
	return &WebhookEvent{
		ID:            "evt-1",
		IntegrationID: "district-42",
		EventType:     "roster.student.updated",
		EntityType:    "student",
		EntityID:      "s-100",
		Action:        WebhookActionUpdate,
		ReceivedAt:    time.UnixMilli(1700000000000),
	}
}

func TestWebhookEvent_Validate_OK(t *testing.T) {
	if err := validEvent().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWebhookEvent_Validate_MissingFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*WebhookEvent)
	}{
		{"missing id", func(e *WebhookEvent) { e.ID = "" }},
		{"missing integration id", func(e *WebhookEvent) { e.IntegrationID = "" }},
		{"missing event type", func(e *WebhookEvent) { e.EventType = "" }},
		{"missing entity type", func(e *WebhookEvent) { e.EntityType = "" }},
		{"missing entity id", func(e *WebhookEvent) { e.EntityID = "" }},
		{"missing action", func(e *WebhookEvent) { e.Action = "" }},
		{"unknown action", func(e *WebhookEvent) { e.Action = "upsert" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := validEvent()
			tt.mutate(ev)
			err := ev.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.Is(err, ErrInvalidWebhookEvent) {
				t.Errorf("expected ErrInvalidWebhookEvent, got %v", err)
			}
		})
	}
}

func TestWebhookEvent_IdempotencyKey(t *testing.T) {
	ev := validEvent()
	want := "district-42:evt-1:1700000000000"
	if got := ev.IdempotencyKey(); got != want {
		t.Errorf("IdempotencyKey = %q, want %q", got, want)
	}
}

func TestWebhookEvent_IdempotencyKey_Stable(t *testing.T) {
	a := validEvent()
	b := validEvent()
	if a.IdempotencyKey() != b.IdempotencyKey() {
		t.Error("same event must derive the same idempotency key")
	}
}

func TestIntegration_Active(t *testing.T) {
	i := &Integration{Enabled: true, Status: IntegrationStatusActive}
	if !i.Active() {
		t.Error("enabled active integration should be active")
	}

	i.Enabled = false
	if i.Active() {
		t.Error("disabled integration should not be active")
	}

	i.Enabled = true
	i.Status = IntegrationStatusPaused
	if i.Active() {
		t.Error("paused integration should not be active")
	}

	var nilIntegration *Integration
	if nilIntegration.Active() {
		t.Error("nil integration should not be active")
	}
}
