package domain

import "time"

// SyncSchedule is a recurring sync configuration for an integration.
// Schedules are configuration, not transient queue items.
type SyncSchedule struct {
	ID            string       `json:"id"`
	Name          string       `json:"name"`
	IntegrationID string       `json:"integration_id"`
	Strategy      SyncStrategy `json:"strategy"`
	EntityTypes   []string     `json:"entity_types,omitempty"`
	Priority      SyncPriority `json:"priority"`
	Interval      time.Duration `json:"interval"`
	Enabled       bool         `json:"enabled"`
	LastRun       *time.Time   `json:"last_run,omitempty"`
	NextRun       time.Time    `json:"next_run"`
	LastError     string       `json:"last_error,omitempty"`
}

// NewSyncSchedule creates a schedule that first fires one interval from now.
func NewSyncSchedule(id, name, integrationID string, strategy SyncStrategy, interval time.Duration) *SyncSchedule {
	return &SyncSchedule{
		ID:            id,
		Name:          name,
		IntegrationID: integrationID,
		Strategy:      strategy,
		Priority:      PriorityNormal,
		Interval:      interval,
		Enabled:       true,
		NextRun:       time.Now().Add(interval),
	}
}

// IsDue returns true if the schedule should fire now.
func (s *SyncSchedule) IsDue() bool {
	return s.Enabled && time.Now().After(s.NextRun)
}

// UpdateNextRun advances the schedule after firing.
func (s *SyncSchedule) UpdateNextRun() {
	now := time.Now()
	s.LastRun = &now
	s.NextRun = now.Add(s.Interval)
}
