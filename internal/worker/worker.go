package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/classforge/rostersync-core/internal/core/domain"
	"github.com/classforge/rostersync-core/internal/core/ports/driven"
	"github.com/classforge/rostersync-core/internal/core/services"
)

// Default pool sizes per strategy. Real-time events are latency-sensitive
// and cheap, so they get the widest pool; full syncs are heavyweight and
// get the narrowest.
var defaultPoolSizes = map[domain.SyncStrategy]int{
	domain.StrategyFull:        3,
	domain.StrategyIncremental: 5,
	domain.StrategyRealTime:    10,
	domain.StrategyManual:      2,
}

// Worker drains the job queue and executes sync jobs through the
// strategy processor. Each strategy gets its own goroutine pool so a
// backlog of full syncs cannot starve real-time events.
type Worker struct {
	queue     driven.JobQueue
	processor *services.JobProcessor
	scheduler *services.SyncScheduler
	logger    *slog.Logger

	poolSizes      map[domain.SyncStrategy]int
	dequeueTimeout int // seconds

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// WorkerConfig holds configuration for the worker.
type WorkerConfig struct {
	Queue     driven.JobQueue
	Processor *services.JobProcessor
	Scheduler *services.SyncScheduler // Optional: recurring schedule firing
	Logger    *slog.Logger

	// PoolSizes overrides the per-strategy pool sizes. Strategies absent
	// from the map keep their defaults; zero or negative disables the pool.
	PoolSizes map[domain.SyncStrategy]int

	DequeueTimeout int // Seconds to block waiting for a job (default: 5)
}

// NewWorker creates a new sync worker.
func NewWorker(cfg WorkerConfig) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dequeueTimeout := cfg.DequeueTimeout
	if dequeueTimeout <= 0 {
		dequeueTimeout = 5
	}

	poolSizes := make(map[domain.SyncStrategy]int, len(defaultPoolSizes))
	for strategy, n := range defaultPoolSizes {
		poolSizes[strategy] = n
	}
	for strategy, n := range cfg.PoolSizes {
		poolSizes[strategy] = n
	}

	return &Worker{
		queue:          cfg.Queue,
		processor:      cfg.Processor,
		scheduler:      cfg.Scheduler,
		logger:         logger,
		poolSizes:      poolSizes,
		dequeueTimeout: dequeueTimeout,
	}
}

// Start begins the worker pools.
// It runs until Stop is called or the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("worker starting",
		"pools", w.poolSizes,
		"dequeue_timeout", w.dequeueTimeout,
	)

	if w.scheduler != nil {
		if err := w.scheduler.Start(ctx); err != nil {
			w.logger.Error("failed to start scheduler", "error", err)
		}
	}

	var wg sync.WaitGroup
	for strategy, size := range w.poolSizes {
		for i := 0; i < size; i++ {
			wg.Add(1)
			go func(strategy domain.SyncStrategy, slot int) {
				defer wg.Done()
				w.processLoop(ctx, strategy, slot)
			}(strategy, i)
		}
	}

	go func() {
		wg.Wait()
		close(w.doneCh)
	}()

	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.stopCh)
	w.mu.Unlock()

	if w.scheduler != nil {
		w.scheduler.Stop()
	}

	<-w.doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("worker stopped")
}

// Wait blocks until the worker stops.
func (w *Worker) Wait() {
	<-w.doneCh
}

// processLoop drains one strategy's queue from a single pool slot.
func (w *Worker) processLoop(ctx context.Context, strategy domain.SyncStrategy, slot int) {
	logger := w.logger.With("strategy", strategy, "slot", slot)
	logger.Info("worker goroutine started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("worker context cancelled")
			return
		case <-w.stopCh:
			logger.Info("worker stop signal received")
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx, strategy, w.dequeueTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			logger.Error("failed to dequeue job", "error", err)
			time.Sleep(time.Second) // Back off on error
			continue
		}

		if job == nil {
			continue
		}

		w.processJob(ctx, job, logger)
	}
}

// processJob executes one job under its configured timeout and reports
// the outcome back to the queue.
func (w *Worker) processJob(ctx context.Context, job *domain.SyncJob, logger *slog.Logger) {
	logger = logger.With("job_id", job.ID, "integration_id", job.Config.IntegrationID)
	logger.Info("processing sync job", "attempt", job.Attempts)

	jobCtx := ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	startTime := time.Now()
	result, err := w.processor.Process(jobCtx, job)
	duration := time.Since(startTime)

	if err != nil {
		logger.Error("sync job failed", "duration", duration, "error", err)
		if nackErr := w.queue.Nack(ctx, job.ID, err.Error()); nackErr != nil {
			logger.Error("failed to nack job", "nack_error", nackErr)
		}
		return
	}

	logger.Info("sync job completed",
		"duration", duration,
		"processed", result.Summary.TotalProcessed,
	)

	if ackErr := w.queue.Ack(ctx, job.ID, result); ackErr != nil {
		logger.Error("failed to ack job", "ack_error", ackErr)
	}
}

// Health reports worker liveness and queue reachability.
type Health struct {
	Running     bool   `json:"running"`
	QueueHealth bool   `json:"queue_health"`
	Error       string `json:"error,omitempty"`
}

// Health returns the health status of the worker.
func (w *Worker) Health(ctx context.Context) Health {
	w.mu.RLock()
	running := w.running
	w.mu.RUnlock()

	health := Health{
		Running: running,
	}

	if err := w.queue.Ping(ctx); err != nil {
		health.QueueHealth = false
		health.Error = err.Error()
	} else {
		health.QueueHealth = true
	}

	return health
}
