package driven

import (
	"context"

	"github.com/classforge/rostersync-core/internal/core/domain"
)

// ScheduleStore persists recurring sync schedules.
// Separate from JobQueue because schedules are configuration, not
// transient queue items.
type ScheduleStore interface {
	// Get retrieves a schedule by ID.
	Get(ctx context.Context, id string) (*domain.SyncSchedule, error)

	// List retrieves all schedules.
	List(ctx context.Context) ([]*domain.SyncSchedule, error)

	// ListDue retrieves enabled schedules whose next run is in the past.
	ListDue(ctx context.Context) ([]*domain.SyncSchedule, error)

	// Save creates or updates a schedule.
	Save(ctx context.Context, schedule *domain.SyncSchedule) error

	// Delete removes a schedule.
	Delete(ctx context.Context, id string) error

	// UpdateLastRun records a firing (or its error) and advances next run.
	UpdateLastRun(ctx context.Context, id string, lastError string) error
}
