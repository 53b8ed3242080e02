package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/classforge/rostersync-core/internal/core/domain"
	"github.com/classforge/rostersync-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.AuditStore = (*AuditStore)(nil)

// AuditStore implements driven.AuditStore using PostgreSQL.
// The table is append-only; rows are never updated.
type AuditStore struct {
	db *DB
}

// NewAuditStore creates a new AuditStore
func NewAuditStore(db *DB) *AuditStore {
	return &AuditStore{db: db}
}

// Append writes one audit entry
func (s *AuditStore) Append(ctx context.Context, entry *domain.AuditEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		details = []byte("{}")
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO sync_audit_log (
			integration_id, event_type, severity, description,
			details, correlation_id, duration_ns, error_message, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = s.db.ExecContext(ctx, query,
		entry.IntegrationID,
		entry.EventType,
		string(entry.Severity),
		entry.Description,
		details,
		entry.CorrelationID,
		int64(entry.Duration),
		entry.ErrorMessage,
		createdAt,
	)
	return err
}
