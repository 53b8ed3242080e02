package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/classforge/rostersync-core/internal/core/domain"
)

// webhookSecretHeader carries the integration's shared secret on inbound
// webhook calls
const webhookSecretHeader = "X-Webhook-Secret"

// Health endpoints

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.queue != nil {
		if err := s.queue.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  "queue unavailable",
			})
			return
		}
	}
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  "database unavailable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// Sync endpoints

type scheduleSyncRequest struct {
	IntegrationID string              `json:"integration_id"`
	Strategy      domain.SyncStrategy `json:"strategy"`
	EntityTypes   []string            `json:"entity_types,omitempty"`
	Priority      domain.SyncPriority `json:"priority,omitempty"`
	BatchSize     int                 `json:"batch_size,omitempty"`
	Metadata      map[string]string   `json:"metadata,omitempty"`
}

// handleScheduleSync admits an ad-hoc sync job. The job id is returned
// immediately; execution happens on the worker pools.
func (s *Server) handleScheduleSync(w http.ResponseWriter, r *http.Request) {
	var req scheduleSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	jobID, err := s.engine.ScheduleSyncJob(r.Context(), domain.SyncJobConfig{
		IntegrationID: req.IntegrationID,
		Strategy:      req.Strategy,
		EntityTypes:   req.EntityTypes,
		Priority:      req.Priority,
		BatchSize:     req.BatchSize,
		Metadata:      req.Metadata,
	})
	if err != nil {
		writeSyncError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": "queued",
	})
}

func (s *Server) handleGetSyncJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing job id")
		return
	}

	status, err := s.engine.GetSyncJobStatus(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get job status")
		return
	}
	if status == nil {
		writeError(w, http.StatusNotFound, "sync job not found")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleCancelSync(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing job id")
		return
	}

	cancelled, err := s.engine.CancelSyncJob(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to cancel job")
		return
	}
	if !cancelled {
		writeError(w, http.StatusNotFound, "sync job not found or already dispatched")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleListActiveSyncs(w http.ResponseWriter, r *http.Request) {
	integrationID := r.URL.Query().Get("integration_id")

	jobs := s.engine.GetActiveSyncJobs(r.Context(), integrationID)
	if jobs == nil {
		jobs = []domain.ActiveSyncJob{}
	}

	writeJSON(w, http.StatusOK, jobs)
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.GetSyncEngineStats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get engine stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// Webhook intake

// handleWebhook ingests a roster change notification for an integration.
// The caller authenticates with the integration's shared secret, not a
// bearer token.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	integrationID := r.PathValue("integrationId")
	if integrationID == "" {
		writeError(w, http.StatusBadRequest, "missing integration id")
		return
	}

	integration, err := s.integrations.Get(r.Context(), integrationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "integration not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load integration")
		return
	}

	secret := r.Header.Get(webhookSecretHeader)
	if secret == "" || bcrypt.CompareHashAndPassword(
		[]byte(integration.WebhookSecretHash), []byte(secret)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid webhook secret")
		return
	}

	var event domain.WebhookEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// The path, not the payload, decides which integration this event
	// belongs to.
	event.IntegrationID = integrationID
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now()
	}

	jobID, err := s.webhooks.ProcessWebhook(r.Context(), &event)
	if err != nil {
		writeSyncError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": "queued",
	})
}

// Schedule endpoints

type createScheduleRequest struct {
	Name            string              `json:"name"`
	IntegrationID   string              `json:"integration_id"`
	Strategy        domain.SyncStrategy `json:"strategy"`
	EntityTypes     []string            `json:"entity_types,omitempty"`
	Priority        domain.SyncPriority `json:"priority,omitempty"`
	IntervalSeconds int                 `json:"interval_seconds"`
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" || req.IntegrationID == "" {
		writeError(w, http.StatusBadRequest, "name and integration_id are required")
		return
	}
	if !req.Strategy.Valid() {
		writeError(w, http.StatusBadRequest, "unrecognized sync strategy")
		return
	}
	if req.IntervalSeconds <= 0 {
		writeError(w, http.StatusBadRequest, "interval_seconds must be positive")
		return
	}

	schedule := domain.NewSyncSchedule(
		uuid.NewString(),
		req.Name,
		req.IntegrationID,
		req.Strategy,
		time.Duration(req.IntervalSeconds)*time.Second,
	)
	schedule.EntityTypes = req.EntityTypes
	if req.Priority != "" {
		if !req.Priority.Valid() {
			writeError(w, http.StatusBadRequest, "unrecognized priority")
			return
		}
		schedule.Priority = req.Priority
	}

	if err := s.schedules.CreateSchedule(r.Context(), schedule); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create schedule")
		return
	}

	writeJSON(w, http.StatusCreated, schedule)
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.schedules.ListSchedules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list schedules")
		return
	}
	if schedules == nil {
		schedules = []*domain.SyncSchedule{}
	}

	writeJSON(w, http.StatusOK, schedules)
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing schedule id")
		return
	}

	schedule, err := s.schedules.GetSchedule(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get schedule")
		return
	}

	writeJSON(w, http.StatusOK, schedule)
}

type updateScheduleRequest struct {
	Name            string              `json:"name,omitempty"`
	Strategy        domain.SyncStrategy `json:"strategy,omitempty"`
	EntityTypes     []string            `json:"entity_types,omitempty"`
	Priority        domain.SyncPriority `json:"priority,omitempty"`
	IntervalSeconds int                 `json:"interval_seconds,omitempty"`
	Enabled         *bool               `json:"enabled,omitempty"`
}

func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing schedule id")
		return
	}

	schedule, err := s.schedules.GetSchedule(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get schedule")
		return
	}

	var req updateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != "" {
		schedule.Name = req.Name
	}
	if req.Strategy != "" {
		if !req.Strategy.Valid() {
			writeError(w, http.StatusBadRequest, "unrecognized sync strategy")
			return
		}
		schedule.Strategy = req.Strategy
	}
	if req.EntityTypes != nil {
		schedule.EntityTypes = req.EntityTypes
	}
	if req.Priority != "" {
		if !req.Priority.Valid() {
			writeError(w, http.StatusBadRequest, "unrecognized priority")
			return
		}
		schedule.Priority = req.Priority
	}
	if req.IntervalSeconds > 0 {
		schedule.Interval = time.Duration(req.IntervalSeconds) * time.Second
	}
	if req.Enabled != nil {
		schedule.Enabled = *req.Enabled
	}

	if err := s.schedules.UpdateSchedule(r.Context(), schedule); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update schedule")
		return
	}

	writeJSON(w, http.StatusOK, schedule)
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing schedule id")
		return
	}

	if err := s.schedules.DeleteSchedule(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete schedule")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleTriggerSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing schedule id")
		return
	}

	jobID, err := s.schedules.TriggerNow(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
		writeSyncError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": "queued",
	})
}

func (s *Server) handleEnableSchedule(w http.ResponseWriter, r *http.Request) {
	s.setScheduleEnabled(w, r, true)
}

func (s *Server) handleDisableSchedule(w http.ResponseWriter, r *http.Request) {
	s.setScheduleEnabled(w, r, false)
}

func (s *Server) setScheduleEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing schedule id")
		return
	}

	if err := s.schedules.SetScheduleEnabled(r.Context(), id, enabled); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update schedule")
		return
	}

	status := "disabled"
	if enabled {
		status = "enabled"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// Helper functions

// writeSyncError maps engine admission failures onto HTTP status codes.
func writeSyncError(w http.ResponseWriter, err error) {
	var rateLimitErr *domain.RateLimitError
	switch {
	case errors.As(err, &rateLimitErr):
		retryAfter := int(time.Until(rateLimitErr.NextAvailable).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeError(w, http.StatusTooManyRequests, rateLimitErr.Error())
	case errors.Is(err, domain.ErrIntegrationInactive):
		writeError(w, http.StatusConflict, "integration is not active")
	case errors.Is(err, domain.ErrInvalidWebhookEvent):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "failed to schedule sync")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
