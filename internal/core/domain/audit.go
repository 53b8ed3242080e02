package domain

import "time"

// AuditSeverity classifies audit entries
type AuditSeverity string

const (
	AuditSeverityInfo    AuditSeverity = "info"
	AuditSeverityWarning AuditSeverity = "warning"
	AuditSeverityError   AuditSeverity = "error"
)

// Audit event types written by the engine
const (
	AuditSyncScheduled = "sync_scheduled"
	AuditSyncCancelled = "sync_cancelled"
	AuditSyncCompleted = "sync_completed"
	AuditSyncFailed    = "sync_failed"
)

// AuditEntry is an append-only record of an engine-level event.
// Audit writes are best-effort: failures are logged, never propagated.
type AuditEntry struct {
	ID            string            `json:"id"`
	IntegrationID string            `json:"integration_id"`
	EventType     string            `json:"event_type"`
	Severity      AuditSeverity     `json:"severity"`
	Description   string            `json:"description"`
	Details       map[string]string `json:"details,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Duration      time.Duration     `json:"duration,omitempty"`
	ErrorMessage  string            `json:"error_message,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}
