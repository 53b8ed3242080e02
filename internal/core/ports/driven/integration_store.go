package driven

import (
	"context"
	"time"

	"github.com/classforge/rostersync-core/internal/core/domain"
)

// IntegrationStore persists roster integration records and their sync
// health fields.
type IntegrationStore interface {
	// Get retrieves an integration by ID.
	// Returns domain.ErrNotFound if it does not exist.
	Get(ctx context.Context, id string) (*domain.Integration, error)

	// List retrieves all integrations.
	List(ctx context.Context) ([]*domain.Integration, error)

	// Save creates or updates an integration record.
	Save(ctx context.Context, integration *domain.Integration) error

	// UpdateLastSync advances the integration's last successful sync time.
	UpdateLastSync(ctx context.Context, id string, ts time.Time) error

	// UpdateError records the most recent failure message.
	UpdateError(ctx context.Context, id string, message string) error

	// IncrementErrorCount bumps the error counter by exactly one.
	// Called once per failed sync attempt, not once per job.
	IncrementErrorCount(ctx context.Context, id string) error

	// ResetErrorCount zeroes the error counter after a successful sync.
	ResetErrorCount(ctx context.Context, id string) error
}
