package driving

import (
	"context"

	"github.com/classforge/rostersync-core/internal/core/domain"
)

// ScheduleManager manages recurring sync schedules.
type ScheduleManager interface {
	// CreateSchedule creates a new recurring schedule.
	CreateSchedule(ctx context.Context, schedule *domain.SyncSchedule) error

	// GetSchedule retrieves a schedule by ID.
	// Returns domain.ErrNotFound for unknown schedules.
	GetSchedule(ctx context.Context, id string) (*domain.SyncSchedule, error)

	// ListSchedules lists all schedules.
	ListSchedules(ctx context.Context) ([]*domain.SyncSchedule, error)

	// UpdateSchedule updates a schedule.
	UpdateSchedule(ctx context.Context, schedule *domain.SyncSchedule) error

	// DeleteSchedule deletes a schedule.
	DeleteSchedule(ctx context.Context, id string) error

	// SetScheduleEnabled flips a schedule on or off.
	SetScheduleEnabled(ctx context.Context, id string, enabled bool) error

	// TriggerNow immediately fires a schedule, ignoring its timing.
	// The job passes the same admission checks as an ad-hoc sync.
	TriggerNow(ctx context.Context, id string) (string, error)
}
