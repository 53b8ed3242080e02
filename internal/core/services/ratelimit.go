package services

import (
	"log/slog"
	"sync"
	"time"

	"github.com/classforge/rostersync-core/internal/core/domain"
)

// Default admission limits applied when an integration has none configured.
const (
	DefaultRequestsPerMinute = 60
	DefaultRequestsPerHour   = 3600
)

// rateLimitTracker holds the fixed-window counters for one integration.
type rateLimitTracker struct {
	minuteCount   int
	hourCount     int
	minuteBucket  int64
	hourBucket    int64
	nextAvailable time.Time
}

// RateLimiter gates sync job admission per integration with two
// fixed-window counters bucketed by wall-clock minute and hour.
//
// This is a fixed-window counter, not a true sliding window: bursts at
// window boundaries can exceed the nominal rate by up to 2x. That is an
// accepted trade-off for simplicity.
//
// Trackers are created lazily and never destroyed, so the map grows with
// the number of distinct integrations seen.
type RateLimiter struct {
	mu       sync.Mutex
	trackers map[string]*rateLimitTracker
	logger   *slog.Logger

	// now is injectable for tests
	now func() time.Time
}

// NewRateLimiter creates a new RateLimiter.
func NewRateLimiter(logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		trackers: make(map[string]*rateLimitTracker),
		logger:   logger,
		now:      time.Now,
	}
}

// Check admits or rejects one sync request for the integration.
// On rejection it returns a *domain.RateLimitError carrying the start of
// the next window; on admission it increments both counters.
func (r *RateLimiter) Check(integrationID string, limits domain.RateLimits) error {
	perMinute := limits.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = DefaultRequestsPerMinute
	}
	perHour := limits.RequestsPerHour
	if perHour <= 0 {
		perHour = DefaultRequestsPerHour
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	minuteBucket := now.UnixMilli() / 60_000
	hourBucket := now.UnixMilli() / 3_600_000

	tracker, ok := r.trackers[integrationID]
	if !ok {
		tracker = &rateLimitTracker{minuteBucket: minuteBucket, hourBucket: hourBucket}
		r.trackers[integrationID] = tracker
	}

	if tracker.minuteBucket != minuteBucket {
		tracker.minuteCount = 0
		tracker.minuteBucket = minuteBucket
	}
	if tracker.hourBucket != hourBucket {
		tracker.hourCount = 0
		tracker.hourBucket = hourBucket
	}

	if tracker.minuteCount >= perMinute {
		tracker.nextAvailable = time.UnixMilli((minuteBucket + 1) * 60_000)
		r.logger.Warn("sync rate limit exceeded",
			"integration_id", integrationID,
			"window", "minute",
			"limit", perMinute,
			"next_available", tracker.nextAvailable,
		)
		return &domain.RateLimitError{
			IntegrationID: integrationID,
			Window:        "minute",
			Limit:         perMinute,
			NextAvailable: tracker.nextAvailable,
		}
	}
	if tracker.hourCount >= perHour {
		tracker.nextAvailable = time.UnixMilli((hourBucket + 1) * 3_600_000)
		r.logger.Warn("sync rate limit exceeded",
			"integration_id", integrationID,
			"window", "hour",
			"limit", perHour,
			"next_available", tracker.nextAvailable,
		)
		return &domain.RateLimitError{
			IntegrationID: integrationID,
			Window:        "hour",
			Limit:         perHour,
			NextAvailable: tracker.nextAvailable,
		}
	}

	tracker.minuteCount++
	tracker.hourCount++
	return nil
}

// Snapshot returns a point-in-time view of all trackers for stats.
func (r *RateLimiter) Snapshot() map[string]domain.RateLimitSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]domain.RateLimitSnapshot, len(r.trackers))
	for id, tracker := range r.trackers {
		snap := domain.RateLimitSnapshot{
			MinuteCount: tracker.minuteCount,
			HourCount:   tracker.hourCount,
		}
		if !tracker.nextAvailable.IsZero() {
			t := tracker.nextAvailable
			snap.NextAvailable = &t
		}
		out[id] = snap
	}
	return out
}
