package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/classforge/rostersync-core/internal/core/domain"
	"github.com/classforge/rostersync-core/internal/core/ports/driven"
)

const (
	// Key prefixes
	jobKeyPrefix   = "rostersync:job:"
	readyPrefix    = "rostersync:ready:"
	procPrefix     = "rostersync:processing:"
	delayedJobsKey = "rostersync:delayed"

	// Lifetime counters
	completedCounterKey = "rostersync:stats:completed"
	failedCounterKey    = "rostersync:stats:failed"

	// Job payload TTL. Terminal jobs stay readable this long for status
	// polling, then expire.
	jobTTL = 24 * time.Hour

	// Claim timeout - how long a dispatched job may sit without an ack
	// before it is considered abandoned
	claimTimeout = 5 * time.Minute

	// Poll interval while a Dequeue call is waiting for work
	dequeuePollInterval = 500 * time.Millisecond

	// Buffered event channel size; events beyond this are dropped rather
	// than blocking queue operations
	eventBufferSize = 256
)

// Verify interface compliance
var _ driven.JobQueue = (*Queue)(nil)

// Queue implements JobQueue on Redis sorted sets.
//
// Each strategy has its own ready set so worker pools drain
// independently. Ready sets are scored by job weight then submission
// time, which gives strict priority ordering with FIFO tie-break —
// something a Redis stream cannot do. Dispatched jobs move to a
// per-strategy processing set scored by their claim deadline; jobs still
// there past the deadline are treated as abandoned and re-queued.
//
// Lifecycle events are emitted on the instance that observed them
// (ack, nack, or stalled-claim), so the orchestrator event loop must run
// wherever workers run.
type Queue struct {
	client *redis.Client
	logger *slog.Logger
	events chan driven.JobEvent
	closed chan struct{}
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &Queue{
		client: client,
		logger: slog.Default(),
		events: make(chan driven.JobEvent, eventBufferSize),
		closed: make(chan struct{}),
	}, nil
}

// readyScore orders a ready set by weight first, submission time second.
// Weights are small integers, so the multiplier keeps the two components
// from colliding without losing float64 precision.
func readyScore(weight int, at time.Time) float64 {
	return float64(weight)*1e13 + float64(at.Unix())
}

func readyKey(strategy domain.SyncStrategy) string {
	return readyPrefix + string(strategy)
}

func procKey(strategy domain.SyncStrategy) string {
	return procPrefix + string(strategy)
}

// Submit adds a job to its strategy's queue.
func (q *Queue) Submit(ctx context.Context, job *domain.SyncJob) error {
	if job == nil {
		return errors.New("job is required")
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.Pipeline()
	pipe.Set(ctx, jobKeyPrefix+job.ID, data, jobTTL)

	if job.ScheduledFor.After(time.Now()) {
		pipe.ZAdd(ctx, delayedJobsKey, redis.Z{
			Score:  float64(job.ScheduledFor.Unix()),
			Member: job.ID,
		})
	} else {
		pipe.ZAdd(ctx, readyKey(job.Config.Strategy), redis.Z{
			Score:  readyScore(job.Weight, job.CreatedAt),
			Member: job.ID,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to submit job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID. Returns (nil, nil) for unknown jobs.
func (q *Queue) GetJob(ctx context.Context, jobID string) (*domain.SyncJob, error) {
	data, err := q.client.Get(ctx, jobKeyPrefix+jobID).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var job domain.SyncJob
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Remove deletes a job that has not been dispatched yet.
// Returns false for unknown or already-processing jobs.
func (q *Queue) Remove(ctx context.Context, jobID string) (bool, error) {
	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	if job.Status != domain.JobStatusPending {
		return false, nil
	}

	fromReady, err := q.client.ZRem(ctx, readyKey(job.Config.Strategy), jobID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to remove job from ready set: %w", err)
	}
	fromDelayed, err := q.client.ZRem(ctx, delayedJobsKey, jobID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to remove job from delayed set: %w", err)
	}
	if fromReady+fromDelayed == 0 {
		// Raced with a dequeue
		return false, nil
	}

	if err := q.client.Del(ctx, jobKeyPrefix+jobID).Err(); err != nil {
		return false, fmt.Errorf("failed to delete job data: %w", err)
	}
	return true, nil
}

// Dequeue pops the highest-priority due job for the strategy, waiting up
// to timeoutSeconds. Returns (nil, nil) when nothing arrives in time.
func (q *Queue) Dequeue(ctx context.Context, strategy domain.SyncStrategy, timeoutSeconds int) (*domain.SyncJob, error) {
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)

	for {
		// Promote due delayed jobs and reclaim abandoned ones first, so
		// retries and stalled work re-enter the ready sets.
		if err := q.promoteDelayed(ctx); err != nil && !errors.Is(err, context.Canceled) {
			_ = err // best effort
		}
		if err := q.reclaimAbandoned(ctx, strategy); err != nil && !errors.Is(err, context.Canceled) {
			_ = err
		}

		job, err := q.popReady(ctx, strategy)
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

// popReady takes one job off the strategy's ready set and moves it to
// the processing set.
func (q *Queue) popReady(ctx context.Context, strategy domain.SyncStrategy) (*domain.SyncJob, error) {
	popped, err := q.client.ZPopMin(ctx, readyKey(strategy), 1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop ready job: %w", err)
	}
	if len(popped) == 0 {
		return nil, nil
	}

	jobID, ok := popped[0].Member.(string)
	if !ok {
		return nil, nil
	}

	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		// Payload expired out from under the queue entry; skip
		return nil, nil
	}

	job.MarkProcessing()
	if err := q.saveJob(ctx, job); err != nil {
		return nil, err
	}

	claimDeadline := time.Now().Add(claimTimeout)
	if err := q.client.ZAdd(ctx, procKey(strategy), redis.Z{
		Score:  float64(claimDeadline.Unix()),
		Member: job.ID,
	}).Err(); err != nil {
		return nil, fmt.Errorf("failed to track processing job: %w", err)
	}

	return job, nil
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

	pipe := q.client.Pipeline()
	data, _ := json.Marshal(job)
	pipe.Set(ctx, jobKeyPrefix+jobID, data, jobTTL)
	pipe.ZRem(ctx, procKey(job.Config.Strategy), jobID)
	pipe.Incr(ctx, completedCounterKey)
	if _, err := pipe.Exec(ctx); err != nil {
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

// Nack records a failed attempt. Jobs with retry budget left are
// re-queued with backoff; exhausted jobs are failed terminally.
func (q *Queue) Nack(ctx context.Context, jobID string, reason string) error {
	job, err := q.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return domain.ErrJobNotFound
	}

	willRetry := job.CanRetry()

	pipe := q.client.Pipeline()
	pipe.ZRem(ctx, procKey(job.Config.Strategy), jobID)

	if willRetry {
		job.Retry(reason)
		data, _ := json.Marshal(job)
		pipe.Set(ctx, jobKeyPrefix+jobID, data, jobTTL)
		pipe.ZAdd(ctx, delayedJobsKey, redis.Z{
			Score:  float64(job.ScheduledFor.Unix()),
			Member: jobID,
		})
	} else {
		job.MarkFailed(reason)
		data, _ := json.Marshal(job)
		pipe.Set(ctx, jobKeyPrefix+jobID, data, jobTTL)
		pipe.Incr(ctx, failedCounterKey)
	}

	if _, err := pipe.Exec(ctx); err != nil {
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

// Counts returns queue-level counters across all strategies.
func (q *Queue) Counts(ctx context.Context) (*driven.JobCounts, error) {
	counts := &driven.JobCounts{}

	for _, strategy := range []domain.SyncStrategy{
		domain.StrategyFull, domain.StrategyIncremental,
		domain.StrategyRealTime, domain.StrategyManual,
	} {
		pending, err := q.client.ZCard(ctx, readyKey(strategy)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to count ready jobs: %w", err)
		}
		counts.Pending += pending

		processing, err := q.client.ZCard(ctx, procKey(strategy)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to count processing jobs: %w", err)
		}
		counts.Processing += processing
	}

	delayed, err := q.client.ZCard(ctx, delayedJobsKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to count delayed jobs: %w", err)
	}
	counts.Delayed = delayed

	counts.Completed, _ = q.client.Get(ctx, completedCounterKey).Int64()
	counts.Failed, _ = q.client.Get(ctx, failedCounterKey).Int64()

	return counts, nil
}

// Events returns the lifecycle event channel.
func (q *Queue) Events() <-chan driven.JobEvent {
	return q.events
}

// Ping checks if the queue backend is healthy.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close stops event delivery. The Redis client is shared and is not
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

// promoteDelayed moves due delayed jobs onto their ready sets.
func (q *Queue) promoteDelayed(ctx context.Context) error {
	due, err := q.client.ZRangeByScore(ctx, delayedJobsKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", time.Now().Unix()),
	}).Result()
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	pipe := q.client.Pipeline()
	for _, jobID := range due {
		job, err := q.GetJob(ctx, jobID)
		if err != nil || job == nil {
			pipe.ZRem(ctx, delayedJobsKey, jobID)
			continue
		}
		pipe.ZAdd(ctx, readyKey(job.Config.Strategy), redis.Z{
			Score:  readyScore(job.Weight, job.CreatedAt),
			Member: jobID,
		})
		pipe.ZRem(ctx, delayedJobsKey, jobID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// reclaimAbandoned re-queues jobs whose claim deadline passed without an
// ack, emitting a stalled event per job. Jobs out of retry budget are
// failed terminally instead.
func (q *Queue) reclaimAbandoned(ctx context.Context, strategy domain.SyncStrategy) error {
	stalled, err := q.client.ZRangeByScore(ctx, procKey(strategy), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", time.Now().Unix()),
	}).Result()
	if err != nil {
		return err
	}

	for _, jobID := range stalled {
		// Only one instance wins the removal; the others skip
		removed, err := q.client.ZRem(ctx, procKey(strategy), jobID).Result()
		if err != nil || removed == 0 {
			continue
		}

		job, err := q.GetJob(ctx, jobID)
		if err != nil || job == nil {
			continue
		}

		q.emit(driven.JobEvent{
			Type:          driven.JobEventStalled,
			JobID:         jobID,
			IntegrationID: job.Config.IntegrationID,
			Strategy:      job.Config.Strategy,
		})

		if job.CanRetry() {
			job.Retry("abandoned by worker")
			if err := q.saveJob(ctx, job); err != nil {
				continue
			}
			q.client.ZAdd(ctx, delayedJobsKey, redis.Z{
				Score:  float64(job.ScheduledFor.Unix()),
				Member: jobID,
			})
		} else {
			job.MarkFailed("abandoned by worker")
			if err := q.saveJob(ctx, job); err != nil {
				continue
			}
			q.client.Incr(ctx, failedCounterKey)
			q.emit(driven.JobEvent{
				Type:          driven.JobEventFailed,
				JobID:         jobID,
				IntegrationID: job.Config.IntegrationID,
				Strategy:      job.Config.Strategy,
				Error:         "abandoned by worker",
				WillRetry:     false,
			})
		}
	}
	return nil
}

func (q *Queue) saveJob(ctx context.Context, job *domain.SyncJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.Set(ctx, jobKeyPrefix+job.ID, data, jobTTL).Err(); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
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
