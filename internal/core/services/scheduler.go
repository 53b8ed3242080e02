package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/classforge/rostersync-core/internal/core/domain"
	"github.com/classforge/rostersync-core/internal/core/ports/driven"
	"github.com/classforge/rostersync-core/internal/core/ports/driving"
)

// Verify interface compliance
var _ driving.ScheduleManager = (*SyncScheduler)(nil)

// SyncScheduler fires recurring sync schedules. It runs on worker nodes,
// polls the schedule store, and routes due schedules through the engine
// so the same admission checks (integration health, rate limits) apply
// as for ad-hoc syncs.
//
// For multi-instance deployments, configure a DistributedLock to prevent
// duplicate schedule firing across instances.
type SyncScheduler struct {
	store  driven.ScheduleStore
	engine driving.SyncEngine
	lock   driven.DistributedLock
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	interval     time.Duration
	lockTTL      time.Duration
	lockRequired bool
}

// SyncSchedulerConfig holds configuration for the scheduler.
type SyncSchedulerConfig struct {
	Store        driven.ScheduleStore
	Engine       driving.SyncEngine
	Lock         driven.DistributedLock // Optional: multi-instance coordination
	Logger       *slog.Logger
	PollInterval time.Duration // How often to check for due schedules (default: 30s)
	LockTTL      time.Duration // TTL for the distributed lock (default: 60s)
	LockRequired bool          // If true, skip a cycle when the lock cannot be acquired
}

// NewSyncScheduler creates a new scheduler.
func NewSyncScheduler(cfg SyncSchedulerConfig) *SyncScheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	interval := cfg.PollInterval
	if interval == 0 {
		interval = 30 * time.Second
	}

	lockTTL := cfg.LockTTL
	if lockTTL == 0 {
		lockTTL = 60 * time.Second
	}

	// A provided lock is load-bearing: default to requiring it.
	lockRequired := cfg.LockRequired
	if cfg.Lock != nil && !cfg.LockRequired {
		lockRequired = true
	}

	return &SyncScheduler{
		store:        cfg.Store,
		engine:       cfg.Engine,
		lock:         cfg.Lock,
		logger:       logger,
		interval:     interval,
		lockTTL:      lockTTL,
		lockRequired: lockRequired,
	}
}

// Start begins the scheduler loop.
// It runs until Stop is called or the context is cancelled.
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("sync scheduler starting", "poll_interval", s.interval)

	go s.run(ctx)

	return nil
}

// Stop gracefully stops the scheduler.
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.mu.Unlock()

	<-s.doneCh

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("sync scheduler stopped")
}

func (s *SyncScheduler) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.fireDue(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync scheduler context cancelled")
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.fireDue(ctx)
		}
	}
}

// fireDue schedules sync jobs for every due schedule. With a configured
// lock, only one instance fires per cycle.
func (s *SyncScheduler) fireDue(ctx context.Context) {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, "sync-scheduler", s.lockTTL)
		if err != nil {
			s.logger.Warn("failed to acquire scheduler lock", "error", err)
			if s.lockRequired {
				return
			}
		} else if !acquired {
			s.logger.Debug("scheduler lock held by another instance, skipping cycle")
			return
		} else {
			defer func() {
				if err := s.lock.Release(ctx, "sync-scheduler"); err != nil {
					s.logger.Warn("failed to release scheduler lock", "error", err)
				}
			}()
		}
	}

	schedules, err := s.store.ListDue(ctx)
	if err != nil {
		s.logger.Error("failed to list due schedules", "error", err)
		return
	}

	for _, schedule := range schedules {
		if !schedule.Enabled || !schedule.IsDue() {
			continue
		}
		s.fire(ctx, schedule)
	}
}

// fire schedules one sync job for a due schedule and advances its next
// run. A rejected admission (rate limit, paused integration) is recorded
// on the schedule and retried on the next due cycle.
func (s *SyncScheduler) fire(ctx context.Context, schedule *domain.SyncSchedule) {
	jobID, err := s.engine.ScheduleSyncJob(ctx, domain.SyncJobConfig{
		IntegrationID: schedule.IntegrationID,
		Strategy:      schedule.Strategy,
		EntityTypes:   schedule.EntityTypes,
		Priority:      schedule.Priority,
		Metadata:      map[string]string{"schedule_id": schedule.ID},
	})
	if err != nil {
		s.logger.Error("failed to fire sync schedule",
			"schedule_id", schedule.ID,
			"integration_id", schedule.IntegrationID,
			"error", err,
		)
		_ = s.store.UpdateLastRun(ctx, schedule.ID, err.Error())
		return
	}

	s.logger.Info("fired sync schedule",
		"schedule_id", schedule.ID,
		"integration_id", schedule.IntegrationID,
		"strategy", schedule.Strategy,
		"job_id", jobID,
	)

	if err := s.store.UpdateLastRun(ctx, schedule.ID, ""); err != nil {
		s.logger.Warn("failed to update schedule last run",
			"schedule_id", schedule.ID,
			"error", err,
		)
	}
}

// CreateSchedule creates a new recurring schedule.
func (s *SyncScheduler) CreateSchedule(ctx context.Context, schedule *domain.SyncSchedule) error {
	return s.store.Save(ctx, schedule)
}

// GetSchedule retrieves a schedule by ID.
func (s *SyncScheduler) GetSchedule(ctx context.Context, id string) (*domain.SyncSchedule, error) {
	return s.store.Get(ctx, id)
}

// ListSchedules lists all schedules.
func (s *SyncScheduler) ListSchedules(ctx context.Context) ([]*domain.SyncSchedule, error) {
	return s.store.List(ctx)
}

// UpdateSchedule updates a schedule.
func (s *SyncScheduler) UpdateSchedule(ctx context.Context, schedule *domain.SyncSchedule) error {
	return s.store.Save(ctx, schedule)
}

// DeleteSchedule deletes a schedule.
func (s *SyncScheduler) DeleteSchedule(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// SetScheduleEnabled flips a schedule on or off.
func (s *SyncScheduler) SetScheduleEnabled(ctx context.Context, id string, enabled bool) error {
	schedule, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	schedule.Enabled = enabled
	return s.store.Save(ctx, schedule)
}

// TriggerNow immediately fires a schedule, ignoring its timing.
func (s *SyncScheduler) TriggerNow(ctx context.Context, id string) (string, error) {
	schedule, err := s.store.Get(ctx, id)
	if err != nil {
		return "", err
	}

	jobID, err := s.engine.ScheduleSyncJob(ctx, domain.SyncJobConfig{
		IntegrationID: schedule.IntegrationID,
		Strategy:      schedule.Strategy,
		EntityTypes:   schedule.EntityTypes,
		Priority:      schedule.Priority,
		Metadata:      map[string]string{"schedule_id": schedule.ID, "trigger": "manual"},
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("manually triggered schedule", "schedule_id", id, "job_id", jobID)
	return jobID, nil
}
