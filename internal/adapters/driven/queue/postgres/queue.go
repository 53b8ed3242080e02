package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/classforge/rostersync-core/internal/adapters/driven/postgres"
	"github.com/classforge/rostersync-core/internal/core/domain"
	"github.com/classforge/rostersync-core/internal/core/ports/driven"
)

const (
	// Claim timeout - how long a dispatched job may sit without an ack
	// before it is considered abandoned
	claimTimeout = 5 * time.Minute

	// Poll interval while a Dequeue call is waiting for work
	dequeuePollInterval = 500 * time.Millisecond

	eventBufferSize = 256
)

// Verify interface compliance
var _ driven.JobQueue = (*Queue)(nil)

// Queue implements JobQueue on PostgreSQL.
//
// This is the fallback substrate for deployments without Redis. Dequeue
// uses FOR UPDATE SKIP LOCKED so concurrent workers never contend on the
// same row, ordered by weight then submission time. It polls rather than
// pushes, so expect slightly higher dispatch latency than the Redis
// queue.
type Queue struct {
	db     *postgres.DB
	logger *slog.Logger
	events chan driven.JobEvent
	closed chan struct{}
}

// NewQueue creates a new PostgreSQL-backed job queue.
func NewQueue(db *postgres.DB) (*Queue, error) {
	if db == nil {
		return nil, errors.New("database is required")
	}
	return &Queue{
		db:     db,
		logger: slog.Default(),
		events: make(chan driven.JobEvent, eventBufferSize),
		closed: make(chan struct{}),
	}, nil
}

// Submit adds a job to the queue.
func (q *Queue) Submit(ctx context.Context, job *domain.SyncJob) error {
	if job == nil {
		return errors.New("job is required")
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	query := `
		INSERT INTO sync_jobs (id, integration_id, strategy, status, weight, payload, scheduled_for, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`
	_, err = q.db.ExecContext(ctx, query,
		job.ID,
		job.Config.IntegrationID,
		string(job.Config.Strategy),
		string(job.Status),
		job.Weight,
		payload,
		job.ScheduledFor,
		job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to submit job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID. Returns (nil, nil) for unknown jobs.
func (q *Queue) GetJob(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	var payload []byte
	err := q.db.QueryRowContext(ctx,
		`SELECT payload FROM sync_jobs WHERE id = $1`, jobID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var job domain.SyncJob
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Remove deletes a job that has not been dispatched yet.
func (q *Queue) Remove(ctx context.Context, jobID string) (bool, error) {
	result, err := q.db.ExecContext(ctx,
		`DELETE FROM sync_jobs WHERE id = $1 AND status = 'pending'`, jobID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to remove job: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

// Dequeue claims the highest-priority due job for the strategy, waiting
// up to timeoutSeconds. Returns (nil, nil) when nothing arrives in time.
func (q *Queue) Dequeue(ctx context.Context, strategy domain.SyncStrategy, timeoutSeconds int) (*domain.SyncJob, error) {
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)

	for {
		if err := q.reclaimAbandoned(ctx, strategy); err != nil && !errors.Is(err, context.Canceled) {
			_ = err // best effort
		}

		job, err := q.claimOne(ctx, strategy)
		if err != nil {
			return nil, err
		}
		if job != nil {
			return job, nil
		}

		if timeoutSeconds <= 0 || !time.Now().Add(dequeuePollInterval).Before(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, nil
		case <-time.After(dequeuePollInterval):
		}
	}
}

// claimOne locks and dispatches a single ready row.
func (q *Queue) claimOne(ctx context.Context, strategy domain.SyncStrategy) (*domain.SyncJob, error) {
	var job *domain.SyncJob

	err := q.db.Transaction(ctx, func(tx *sql.Tx) error {
		var payload []byte
		err := tx.QueryRowContext(ctx, `
			SELECT payload FROM sync_jobs
			WHERE strategy = $1 AND status = 'pending' AND scheduled_for <= now()
			ORDER BY weight ASC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		`, string(strategy)).Scan(&payload)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to claim job: %w", err)
		}

		var claimed domain.SyncJob
		if err := json.Unmarshal(payload, &claimed); err != nil {
			return fmt.Errorf("failed to unmarshal job: %w", err)
		}

		claimed.MarkProcessing()
		updated, err := json.Marshal(&claimed)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE sync_jobs
			SET status = 'processing', payload = $1, claim_deadline = $2, updated_at = now()
			WHERE id = $3
		`, updated, time.Now().Add(claimTimeout), claimed.ID)
		if err != nil {
			return fmt.Errorf("failed to mark job processing: %w", err)
		}

		job = &claimed
		return nil
	})
	return job, err
}

// Ack records successful completion of a dispatched job.
func (q *Queue) Ack(ctx context.Context, jobID string, result *domain.SyncJobResult) error {
	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return domain.ErrJobNotFound
	}

	job.MarkCompleted(result)
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = q.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE sync_jobs
			SET status = 'completed', payload = $1, claim_deadline = NULL, updated_at = now()
			WHERE id = $2
		`, payload, jobID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE sync_job_counters SET value = value + 1 WHERE name = 'completed'`)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}

	q.emit(driven.JobEvent{
		Type:          driven.JobEventCompleted,
		JobID:         jobID,
		IntegrationID: job.Config.IntegrationID,
		Strategy:      job.Config.Strategy,
		Result:        result,
	})
	return nil
}

// Nack records a failed attempt, re-queuing with backoff while retry
// budget remains.
func (q *Queue) Nack(ctx context.Context, jobID string, reason string) error {
	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return domain.ErrJobNotFound
	}

	willRetry := job.CanRetry()
	if willRetry {
		job.Retry(reason)
	} else {
		job.MarkFailed(reason)
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	err = q.db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			UPDATE sync_jobs
			SET status = $1, payload = $2, scheduled_for = $3, claim_deadline = NULL, updated_at = now()
			WHERE id = $4
		`, string(job.Status), payload, job.ScheduledFor, jobID); err != nil {
			return err
		}
		if !willRetry {
			_, err := tx.ExecContext(ctx,
				`UPDATE sync_job_counters SET value = value + 1 WHERE name = 'failed'`)
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to nack job: %w", err)
	}

	q.emit(driven.JobEvent{
		Type:          driven.JobEventFailed,
		JobID:         jobID,
		IntegrationID: job.Config.IntegrationID,
		Strategy:      job.Config.Strategy,
		Error:         reason,
		WillRetry:     willRetry,
	})
	return nil
}

// Counts returns queue-level counters.
func (q *Queue) Counts(ctx context.Context) (*driven.JobCounts, error) {
	counts := &driven.JobCounts{}

	err := q.db.QueryRowContext(ctx, `
		SELECT
			count(*) FILTER (WHERE status = 'pending' AND scheduled_for <= now()),
			count(*) FILTER (WHERE status = 'pending' AND scheduled_for > now()),
			count(*) FILTER (WHERE status = 'processing')
		FROM sync_jobs
	`).Scan(&counts.Pending, &counts.Delayed, &counts.Processing)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	err = q.db.QueryRowContext(ctx, `
		SELECT
			coalesce(max(value) FILTER (WHERE name = 'completed'), 0),
			coalesce(max(value) FILTER (WHERE name = 'failed'), 0)
		FROM sync_job_counters
	`).Scan(&counts.Completed, &counts.Failed)
	if err != nil {
		return nil, fmt.Errorf("failed to read counters: %w", err)
	}

	return counts, nil
}

// Events returns the lifecycle event channel.
func (q *Queue) Events() <-chan driven.JobEvent {
	return q.events
}

// Ping checks if the queue backend is healthy.
func (q *Queue) Ping(ctx context.Context) error {
	return q.db.PingContext(ctx)
}

// Close stops event delivery. The database handle is shared and is not
// closed here.
func (q *Queue) Close() error {
	select {
	case <-q.closed:
	default:
		close(q.closed)
		close(q.events)
	}
	return nil
}

// reclaimAbandoned re-queues processing jobs whose claim deadline has
// passed, emitting stalled events. Every worker slot polls this, so
// each expired claim is taken over with a conditional UPDATE: exactly
// one poller sees a row change and handles the job, the rest see zero
// rows and skip. Row locks from a plain SELECT would not do — they are
// released when the statement ends, long before the Nack.
func (q *Queue) reclaimAbandoned(ctx context.Context, strategy domain.SyncStrategy) error {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id FROM sync_jobs
		WHERE strategy = $1 AND status = 'processing' AND claim_deadline <= now()
	`, string(strategy))
	if err != nil {
		return err
	}

	var expired []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		expired = append(expired, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range expired {
		result, err := q.db.ExecContext(ctx, `
			UPDATE sync_jobs
			SET claim_deadline = $2, updated_at = now()
			WHERE id = $1 AND status = 'processing' AND claim_deadline <= now()
		`, id, time.Now().Add(claimTimeout))
		if err != nil {
			return err
		}
		claimed, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if claimed == 0 {
			// Another poller won the takeover
			continue
		}

		job, err := q.GetJob(ctx, id)
		if err != nil || job == nil {
			continue
		}

		q.emit(driven.JobEvent{
			Type:          driven.JobEventStalled,
			JobID:         job.ID,
			IntegrationID: job.Config.IntegrationID,
			Strategy:      job.Config.Strategy,
		})
		if err := q.Nack(ctx, job.ID, "abandoned by worker"); err != nil {
			return err
		}
	}
	return nil
}

// emit delivers an event without ever blocking a queue operation.
// Drops are logged: the orchestrator's tracking map and integration
// health fields drift until the consumer catches up.
func (q *Queue) emit(ev driven.JobEvent) {
	select {
	case <-q.closed:
		return
	default:
	}
	select {
	case q.events <- ev:
	default:
		q.logger.Warn("job event dropped, buffer full",
			"type", ev.Type,
			"job_id", ev.JobID,
			"integration_id", ev.IntegrationID,
		)
	}
}
