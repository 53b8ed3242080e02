package driven

import (
	"context"

	"github.com/classforge/rostersync-core/internal/core/domain"
)

// AuditStore is the append-only sync audit log.
// Writes are best-effort: callers log failures and never propagate them,
// since observability must not block the sync path.
type AuditStore interface {
	// Append writes a single audit entry.
	Append(ctx context.Context, entry *domain.AuditEntry) error
}
