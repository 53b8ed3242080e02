package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/classforge/rostersync-core/internal/core/domain"
	"github.com/classforge/rostersync-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ScheduleStore = (*ScheduleStore)(nil)

// ScheduleStore implements driven.ScheduleStore using PostgreSQL
type ScheduleStore struct {
	db *DB
}

// NewScheduleStore creates a new ScheduleStore
func NewScheduleStore(db *DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

const scheduleColumns = `
	id, name, integration_id, strategy, entity_types, priority,
	interval_ns, enabled, last_run, next_run, last_error
`

// Get retrieves a schedule by ID
func (s *ScheduleStore) Get(ctx context.Context, id string) (*domain.SyncSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM sync_schedules WHERE id = $1`

	schedule, err := scanSchedule(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return schedule, nil
}

// List retrieves all schedules
func (s *ScheduleStore) List(ctx context.Context) ([]*domain.SyncSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM sync_schedules ORDER BY next_run ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSchedules(rows)
}

// ListDue retrieves enabled schedules whose next run has passed
func (s *ScheduleStore) ListDue(ctx context.Context) ([]*domain.SyncSchedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM sync_schedules
		WHERE enabled = true AND next_run <= $1
		ORDER BY next_run ASC
	`

	rows, err := s.db.QueryContext(ctx, query, time.Now())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSchedules(rows)
}

// Save creates or updates a schedule
func (s *ScheduleStore) Save(ctx context.Context, schedule *domain.SyncSchedule) error {
	query := `
		INSERT INTO sync_schedules (
			id, name, integration_id, strategy, entity_types, priority,
			interval_ns, enabled, last_run, next_run, last_error
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			integration_id = EXCLUDED.integration_id,
			strategy = EXCLUDED.strategy,
			entity_types = EXCLUDED.entity_types,
			priority = EXCLUDED.priority,
			interval_ns = EXCLUDED.interval_ns,
			enabled = EXCLUDED.enabled,
			last_run = EXCLUDED.last_run,
			next_run = EXCLUDED.next_run,
			last_error = EXCLUDED.last_error
	`

	_, err := s.db.ExecContext(ctx, query,
		schedule.ID,
		schedule.Name,
		schedule.IntegrationID,
		string(schedule.Strategy),
		pq.Array(schedule.EntityTypes),
		string(schedule.Priority),
		int64(schedule.Interval),
		schedule.Enabled,
		NullTime(schedule.LastRun),
		schedule.NextRun,
		schedule.LastError,
	)
	return err
}

// Delete removes a schedule
func (s *ScheduleStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sync_schedules WHERE id = $1`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateLastRun records a firing and advances the next run by the
// schedule's interval
func (s *ScheduleStore) UpdateLastRun(ctx context.Context, id string, lastError string) error {
	now := time.Now()

	query := `
		UPDATE sync_schedules
		SET last_run = $1,
			next_run = $1 + (interval_ns * interval '1 nanosecond'),
			last_error = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, now, lastError, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanSchedule(row rowScanner) (*domain.SyncSchedule, error) {
	var schedule domain.SyncSchedule
	var strategy, priority string
	var entityTypes pq.StringArray
	var intervalNs int64
	var lastRun sql.NullTime

	err := row.Scan(
		&schedule.ID,
		&schedule.Name,
		&schedule.IntegrationID,
		&strategy,
		&entityTypes,
		&priority,
		&intervalNs,
		&schedule.Enabled,
		&lastRun,
		&schedule.NextRun,
		&schedule.LastError,
	)
	if err != nil {
		return nil, err
	}

	schedule.Strategy = domain.SyncStrategy(strategy)
	schedule.Priority = domain.SyncPriority(priority)
	schedule.EntityTypes = entityTypes
	schedule.Interval = time.Duration(intervalNs)
	schedule.LastRun = TimePtr(lastRun)
	return &schedule, nil
}

func scanSchedules(rows *sql.Rows) ([]*domain.SyncSchedule, error) {
	var schedules []*domain.SyncSchedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return schedules, nil
}
