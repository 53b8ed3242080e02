package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/classforge/rostersync-core/internal/core/domain"
	"github.com/classforge/rostersync-core/internal/core/ports/driven/mocks"
)

const testAuthSecret = "test-auth-secret"

// fakeEngine is a scriptable SyncEngine for handler tests.
type fakeEngine struct {
	lastCfg     domain.SyncJobConfig
	scheduleErr error
	jobID       string

	cancelResult bool
	cancelErr    error

	status    *domain.SyncJobStatus
	statusErr error

	active []domain.ActiveSyncJob

	stats    *domain.SyncEngineStats
	statsErr error
}

func (f *fakeEngine) ScheduleSyncJob(ctx context.Context, cfg domain.SyncJobConfig) (string, error) {
	f.lastCfg = cfg
	if f.scheduleErr != nil {
		return "", f.scheduleErr
	}
	if f.jobID == "" {
		return "sync_test_full_1", nil
	}
	return f.jobID, nil
}

func (f *fakeEngine) CancelSyncJob(ctx context.Context, jobID string) (bool, error) {
	return f.cancelResult, f.cancelErr
}

func (f *fakeEngine) GetSyncJobStatus(ctx context.Context, jobID string) (*domain.SyncJobStatus, error) {
	return f.status, f.statusErr
}

func (f *fakeEngine) GetActiveSyncJobs(ctx context.Context, integrationID string) []domain.ActiveSyncJob {
	return f.active
}

func (f *fakeEngine) GetSyncEngineStats(ctx context.Context) (*domain.SyncEngineStats, error) {
	return f.stats, f.statsErr
}

// fakeWebhooks is a scriptable WebhookProcessor.
type fakeWebhooks struct {
	lastEvent *domain.WebhookEvent
	jobID     string
	err       error
}

func (f *fakeWebhooks) ProcessWebhook(ctx context.Context, event *domain.WebhookEvent) (string, error) {
	f.lastEvent = event
	if f.err != nil {
		return "", f.err
	}
	return f.jobID, nil
}

// fakeSchedules is an in-memory ScheduleManager.
type fakeSchedules struct {
	schedules map[string]*domain.SyncSchedule
	triggerID string
	saveErr   error
}

func newFakeSchedules() *fakeSchedules {
	return &fakeSchedules{schedules: make(map[string]*domain.SyncSchedule)}
}

func (f *fakeSchedules) CreateSchedule(ctx context.Context, schedule *domain.SyncSchedule) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.schedules[schedule.ID] = schedule
	return nil
}

func (f *fakeSchedules) GetSchedule(ctx context.Context, id string) (*domain.SyncSchedule, error) {
	schedule, ok := f.schedules[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return schedule, nil
}

func (f *fakeSchedules) ListSchedules(ctx context.Context) ([]*domain.SyncSchedule, error) {
	var result []*domain.SyncSchedule
	for _, s := range f.schedules {
		result = append(result, s)
	}
	return result, nil
}

func (f *fakeSchedules) UpdateSchedule(ctx context.Context, schedule *domain.SyncSchedule) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.schedules[schedule.ID] = schedule
	return nil
}

func (f *fakeSchedules) DeleteSchedule(ctx context.Context, id string) error {
	if _, ok := f.schedules[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.schedules, id)
	return nil
}

func (f *fakeSchedules) SetScheduleEnabled(ctx context.Context, id string, enabled bool) error {
	schedule, ok := f.schedules[id]
	if !ok {
		return domain.ErrNotFound
	}
	schedule.Enabled = enabled
	return nil
}

func (f *fakeSchedules) TriggerNow(ctx context.Context, id string) (string, error) {
	if _, ok := f.schedules[id]; !ok {
		return "", domain.ErrNotFound
	}
	return f.triggerID, nil
}

type healthyPinger struct{ err error }

func (p healthyPinger) Ping(ctx context.Context) error { return p.err }

type testServer struct {
	server       *Server
	engine       *fakeEngine
	webhooks     *fakeWebhooks
	schedules    *fakeSchedules
	integrations *mocks.MockIntegrationStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	engine := &fakeEngine{}
	webhooks := &fakeWebhooks{jobID: "sync_test_real_time_1"}
	schedules := newFakeSchedules()
	integrations := mocks.NewMockIntegrationStore()

	cfg := DefaultConfig()
	cfg.AuthSecret = testAuthSecret

	server := NewServer(cfg, engine, webhooks, schedules, integrations,
		healthyPinger{}, nil, nil)

	return &testServer{
		server:       server,
		engine:       engine,
		webhooks:     webhooks,
		schedules:    schedules,
		integrations: integrations,
	}
}

func signToken(t *testing.T, role string, expiresIn time.Duration) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, APIClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "test-caller",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	})
	signed, err := token.SignedString([]byte(testAuthSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func doRequest(ts *testServer, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}

	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

func TestHandleScheduleSync(t *testing.T) {
	ts := newTestServer(t)
	ts.engine.jobID = "sync_district-42_full_1700000000000"
	token := signToken(t, RoleOperator, time.Hour)

	rec := doRequest(ts, http.MethodPost, "/api/v1/sync", token, scheduleSyncRequest{
		IntegrationID: "district-42",
		Strategy:      domain.StrategyFull,
		Priority:      domain.PriorityHigh,
		EntityTypes:   []string{"students"},
	})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["job_id"] != "sync_district-42_full_1700000000000" {
		t.Errorf("unexpected job id %q", body["job_id"])
	}
	if ts.engine.lastCfg.IntegrationID != "district-42" {
		t.Errorf("expected config passed through, got %+v", ts.engine.lastCfg)
	}
	if ts.engine.lastCfg.Priority != domain.PriorityHigh {
		t.Errorf("expected high priority, got %s", ts.engine.lastCfg.Priority)
	}
}

func TestHandleScheduleSync_Unauthenticated(t *testing.T) {
	ts := newTestServer(t)

	rec := doRequest(ts, http.MethodPost, "/api/v1/sync", "", scheduleSyncRequest{
		IntegrationID: "district-42",
		Strategy:      domain.StrategyFull,
	})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleScheduleSync_RateLimited(t *testing.T) {
	ts := newTestServer(t)
	ts.engine.scheduleErr = &domain.RateLimitError{
		IntegrationID: "district-42",
		Window:        "minute",
		Limit:         60,
		NextAvailable: time.Now().Add(30 * time.Second),
	}
	token := signToken(t, RoleOperator, time.Hour)

	rec := doRequest(ts, http.MethodPost, "/api/v1/sync", token, scheduleSyncRequest{
		IntegrationID: "district-42",
		Strategy:      domain.StrategyFull,
	})

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}

func TestHandleScheduleSync_InactiveIntegration(t *testing.T) {
	ts := newTestServer(t)
	ts.engine.scheduleErr = domain.ErrIntegrationInactive
	token := signToken(t, RoleOperator, time.Hour)

	rec := doRequest(ts, http.MethodPost, "/api/v1/sync", token, scheduleSyncRequest{
		IntegrationID: "district-42",
		Strategy:      domain.StrategyFull,
	})

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestHandleScheduleSync_InvalidInput(t *testing.T) {
	ts := newTestServer(t)
	ts.engine.scheduleErr = domain.ErrInvalidInput
	token := signToken(t, RoleOperator, time.Hour)

	rec := doRequest(ts, http.MethodPost, "/api/v1/sync", token, scheduleSyncRequest{})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleGetSyncJob(t *testing.T) {
	ts := newTestServer(t)
	ts.engine.status = &domain.SyncJobStatus{
		JobID:  "sync_district-42_full_1",
		Status: domain.JobStatusProcessing,
	}
	token := signToken(t, RoleOperator, time.Hour)

	rec := doRequest(ts, http.MethodGet, "/api/v1/sync/jobs/sync_district-42_full_1", token, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status domain.SyncJobStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if status.Status != domain.JobStatusProcessing {
		t.Errorf("expected processing status, got %s", status.Status)
	}
}

func TestHandleGetSyncJob_Unknown(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, RoleOperator, time.Hour)

	rec := doRequest(ts, http.MethodGet, "/api/v1/sync/jobs/nope", token, nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleCancelSync(t *testing.T) {
	ts := newTestServer(t)
	ts.engine.cancelResult = true
	token := signToken(t, RoleOperator, time.Hour)

	rec := doRequest(ts, http.MethodDelete, "/api/v1/sync/jobs/sync_x_full_1", token, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if decodeBody(t, rec)["status"] != "cancelled" {
		t.Error("expected cancelled status")
	}
}

func TestHandleCancelSync_AlreadyDispatched(t *testing.T) {
	ts := newTestServer(t)
	ts.engine.cancelResult = false
	token := signToken(t, RoleOperator, time.Hour)

	rec := doRequest(ts, http.MethodDelete, "/api/v1/sync/jobs/sync_x_full_1", token, nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleListActiveSyncs(t *testing.T) {
	ts := newTestServer(t)
	ts.engine.active = []domain.ActiveSyncJob{
		{JobID: "sync_a_full_1", IntegrationID: "a", Strategy: domain.StrategyFull},
	}
	token := signToken(t, RoleOperator, time.Hour)

	rec := doRequest(ts, http.MethodGet, "/api/v1/sync/jobs?integration_id=a", token, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var jobs []domain.ActiveSyncJob
	if err := json.Unmarshal(rec.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("failed to decode jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].JobID != "sync_a_full_1" {
		t.Errorf("unexpected jobs: %+v", jobs)
	}
}

func TestHandleListActiveSyncs_EmptyIsArray(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, RoleOperator, time.Hour)

	rec := doRequest(ts, http.MethodGet, "/api/v1/sync/jobs", token, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := bytes.TrimSpace(rec.Body.Bytes()); string(got) != "[]" {
		t.Errorf("expected empty JSON array, got %s", got)
	}
}

func TestHandleGetStats(t *testing.T) {
	ts := newTestServer(t)
	ts.engine.stats = &domain.SyncEngineStats{
		CompletedJobs: 8,
		FailedJobs:    2,
		SuccessRate:   80,
	}
	token := signToken(t, RoleOperator, time.Hour)

	rec := doRequest(ts, http.MethodGet, "/api/v1/sync/stats", token, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var stats domain.SyncEngineStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.SuccessRate != 80 {
		t.Errorf("expected success rate 80, got %v", stats.SuccessRate)
	}
}

// Webhook intake

func putWebhookIntegration(t *testing.T, ts *testServer, secret string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash secret: %v", err)
	}
	ts.integrations.Put(&domain.Integration{
		ID:                "district-42",
		Name:              "District 42",
		ProviderType:      "clever",
		Enabled:           true,
		Status:            domain.IntegrationStatusActive,
		WebhookSecretHash: string(hash),
	})
}

func webhookBody() map[string]any {
	return map[string]any{
		"id":          "evt-1",
		"event_type":  "student.updated",
		"entity_type": "student",
		"entity_id":   "stu-9",
		"action":      "update",
	}
}

func TestHandleWebhook(t *testing.T) {
	ts := newTestServer(t)
	putWebhookIntegration(t, ts, "s3cret")

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(webhookBody())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/district-42", &buf)
	req.Header.Set(webhookSecretHeader, "s3cret")

	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if ts.webhooks.lastEvent == nil {
		t.Fatal("expected event to reach the processor")
	}
	if ts.webhooks.lastEvent.IntegrationID != "district-42" {
		t.Errorf("expected integration id from path, got %q", ts.webhooks.lastEvent.IntegrationID)
	}
	if ts.webhooks.lastEvent.ReceivedAt.IsZero() {
		t.Error("expected receipt time to be stamped")
	}
}

func TestHandleWebhook_BadSecret(t *testing.T) {
	ts := newTestServer(t)
	putWebhookIntegration(t, ts, "s3cret")

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(webhookBody())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/district-42", &buf)
	req.Header.Set(webhookSecretHeader, "wrong")

	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if ts.webhooks.lastEvent != nil {
		t.Error("expected event to be rejected before processing")
	}
}

func TestHandleWebhook_MissingSecret(t *testing.T) {
	ts := newTestServer(t)
	putWebhookIntegration(t, ts, "s3cret")

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(webhookBody())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/district-42", &buf)

	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleWebhook_UnknownIntegration(t *testing.T) {
	ts := newTestServer(t)

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(webhookBody())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/nope", &buf)
	req.Header.Set(webhookSecretHeader, "s3cret")

	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHandleWebhook_InvalidEvent(t *testing.T) {
	ts := newTestServer(t)
	putWebhookIntegration(t, ts, "s3cret")
	ts.webhooks.err = domain.ErrInvalidWebhookEvent

	var buf bytes.Buffer
	_ = json.NewEncoder(&buf).Encode(map[string]any{"id": "evt-1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/district-42", &buf)
	req.Header.Set(webhookSecretHeader, "s3cret")

	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

// Schedules

func TestHandleCreateSchedule(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, RoleAdmin, time.Hour)

	rec := doRequest(ts, http.MethodPost, "/api/v1/schedules", token, createScheduleRequest{
		Name:            "nightly full",
		IntegrationID:   "district-42",
		Strategy:        domain.StrategyFull,
		Priority:        domain.PriorityLow,
		IntervalSeconds: 86400,
	})

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var schedule domain.SyncSchedule
	if err := json.Unmarshal(rec.Body.Bytes(), &schedule); err != nil {
		t.Fatalf("failed to decode schedule: %v", err)
	}
	if schedule.ID == "" {
		t.Error("expected generated schedule id")
	}
	if schedule.Interval != 24*time.Hour {
		t.Errorf("expected 24h interval, got %v", schedule.Interval)
	}
	if !schedule.Enabled {
		t.Error("expected new schedule to be enabled")
	}
	if len(ts.schedules.schedules) != 1 {
		t.Errorf("expected schedule to be stored")
	}
}

func TestHandleCreateSchedule_Validation(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, RoleAdmin, time.Hour)

	tests := []struct {
		name string
		req  createScheduleRequest
	}{
		{"missing name", createScheduleRequest{IntegrationID: "a", Strategy: domain.StrategyFull, IntervalSeconds: 60}},
		{"missing integration", createScheduleRequest{Name: "x", Strategy: domain.StrategyFull, IntervalSeconds: 60}},
		{"bad strategy", createScheduleRequest{Name: "x", IntegrationID: "a", Strategy: "bogus", IntervalSeconds: 60}},
		{"bad interval", createScheduleRequest{Name: "x", IntegrationID: "a", Strategy: domain.StrategyFull}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(ts, http.MethodPost, "/api/v1/schedules", token, tt.req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestHandleCreateSchedule_RequiresAdmin(t *testing.T) {
	ts := newTestServer(t)
	token := signToken(t, RoleOperator, time.Hour)

	rec := doRequest(ts, http.MethodPost, "/api/v1/schedules", token, createScheduleRequest{
		Name:            "nightly full",
		IntegrationID:   "district-42",
		Strategy:        domain.StrategyFull,
		IntervalSeconds: 86400,
	})

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHandleUpdateSchedule(t *testing.T) {
	ts := newTestServer(t)
	schedule := domain.NewSyncSchedule("sched-1", "hourly", "district-42", domain.StrategyIncremental, time.Hour)
	ts.schedules.schedules["sched-1"] = schedule
	token := signToken(t, RoleAdmin, time.Hour)

	disabled := false
	rec := doRequest(ts, http.MethodPut, "/api/v1/schedules/sched-1", token, updateScheduleRequest{
		Name:            "every two hours",
		IntervalSeconds: 7200,
		Enabled:         &disabled,
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if schedule.Name != "every two hours" {
		t.Errorf("expected name update, got %q", schedule.Name)
	}
	if schedule.Interval != 2*time.Hour {
		t.Errorf("expected 2h interval, got %v", schedule.Interval)
	}
	if schedule.Enabled {
		t.Error("expected schedule to be disabled")
	}
}

func TestHandleDeleteSchedule(t *testing.T) {
	ts := newTestServer(t)
	ts.schedules.schedules["sched-1"] = domain.NewSyncSchedule(
		"sched-1", "hourly", "district-42", domain.StrategyIncremental, time.Hour)
	token := signToken(t, RoleAdmin, time.Hour)

	rec := doRequest(ts, http.MethodDelete, "/api/v1/schedules/sched-1", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doRequest(ts, http.MethodDelete, "/api/v1/schedules/sched-1", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestHandleTriggerSchedule(t *testing.T) {
	ts := newTestServer(t)
	ts.schedules.schedules["sched-1"] = domain.NewSyncSchedule(
		"sched-1", "hourly", "district-42", domain.StrategyIncremental, time.Hour)
	ts.schedules.triggerID = "sync_district-42_incremental_1"
	token := signToken(t, RoleAdmin, time.Hour)

	rec := doRequest(ts, http.MethodPost, "/api/v1/schedules/sched-1/trigger", token, nil)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if decodeBody(t, rec)["job_id"] != "sync_district-42_incremental_1" {
		t.Error("expected triggered job id in response")
	}
}

func TestHandleEnableDisableSchedule(t *testing.T) {
	ts := newTestServer(t)
	schedule := domain.NewSyncSchedule(
		"sched-1", "hourly", "district-42", domain.StrategyIncremental, time.Hour)
	ts.schedules.schedules["sched-1"] = schedule
	token := signToken(t, RoleAdmin, time.Hour)

	rec := doRequest(ts, http.MethodPost, "/api/v1/schedules/sched-1/disable", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if schedule.Enabled {
		t.Error("expected schedule disabled")
	}

	rec = doRequest(ts, http.MethodPost, "/api/v1/schedules/sched-1/enable", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !schedule.Enabled {
		t.Error("expected schedule enabled")
	}
}

// Health

func TestHandleHealthAndVersion(t *testing.T) {
	ts := newTestServer(t)

	rec := doRequest(ts, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doRequest(ts, http.MethodGet, "/version", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if decodeBody(t, rec)["version"] != "dev" {
		t.Error("expected default version")
	}
}

func TestHandleReady_QueueDown(t *testing.T) {
	engine := &fakeEngine{}
	cfg := DefaultConfig()
	cfg.AuthSecret = testAuthSecret
	server := NewServer(cfg, engine, &fakeWebhooks{}, newFakeSchedules(),
		mocks.NewMockIntegrationStore(),
		healthyPinger{err: errors.New("connection refused")}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
