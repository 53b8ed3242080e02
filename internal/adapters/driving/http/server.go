package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/classforge/rostersync-core/internal/core/ports/driven"
	"github.com/classforge/rostersync-core/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string
	authSecret []byte
	logger     *slog.Logger

	// Services
	engine    driving.SyncEngine
	webhooks  driving.WebhookProcessor
	schedules driving.ScheduleManager

	// Infrastructure
	integrations driven.IntegrationStore // webhook secret verification
	queue        Pinger                  // job queue health check
	db           Pinger                  // PostgreSQL health check (optional)
}

// Config holds server configuration
type Config struct {
	Host    string
	Port    int
	Version string

	// AuthSecret signs and verifies API bearer tokens (HMAC-SHA256)
	AuthSecret string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:    "0.0.0.0",
		Port:    8080,
		Version: "dev",
	}
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	engine driving.SyncEngine,
	webhooks driving.WebhookProcessor,
	schedules driving.ScheduleManager,
	integrations driven.IntegrationStore,
	queue Pinger,
	db Pinger, // can be nil
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:       http.NewServeMux(),
		version:      cfg.Version,
		authSecret:   []byte(cfg.AuthSecret),
		logger:       logger,
		engine:       engine,
		webhooks:     webhooks,
		schedules:    schedules,
		integrations: integrations,
		queue:        queue,
		db:           db,
	}

	s.setupRoutes()

	recovery := NewRecoveryMiddleware(logger)
	logging := NewLoggingMiddleware(logger)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      recovery.Handler(logging.Handler(s.router)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	authMiddleware := NewAuthMiddleware(s.authSecret)

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Webhook intake (no bearer auth; verified against the integration's
	// shared secret)
	s.router.HandleFunc("POST /api/v1/webhooks/{integrationId}", s.handleWebhook)

	// Sync endpoints
	s.router.Handle("POST /api/v1/sync",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleScheduleSync)))
	s.router.Handle("GET /api/v1/sync/jobs",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleListActiveSyncs)))
	s.router.Handle("GET /api/v1/sync/jobs/{id}",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleGetSyncJob)))
	s.router.Handle("DELETE /api/v1/sync/jobs/{id}",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleCancelSync)))
	s.router.Handle("GET /api/v1/sync/stats",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleGetStats)))

	// Schedule endpoints (admin-only for mutations)
	s.router.Handle("GET /api/v1/schedules",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleListSchedules)))
	s.router.Handle("GET /api/v1/schedules/{id}",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleGetSchedule)))
	s.router.Handle("POST /api/v1/schedules",
		authMiddleware.Authenticate(
			authMiddleware.RequireAdmin(http.HandlerFunc(s.handleCreateSchedule))))
	s.router.Handle("PUT /api/v1/schedules/{id}",
		authMiddleware.Authenticate(
			authMiddleware.RequireAdmin(http.HandlerFunc(s.handleUpdateSchedule))))
	s.router.Handle("DELETE /api/v1/schedules/{id}",
		authMiddleware.Authenticate(
			authMiddleware.RequireAdmin(http.HandlerFunc(s.handleDeleteSchedule))))
	s.router.Handle("POST /api/v1/schedules/{id}/trigger",
		authMiddleware.Authenticate(
			authMiddleware.RequireAdmin(http.HandlerFunc(s.handleTriggerSchedule))))
	s.router.Handle("POST /api/v1/schedules/{id}/enable",
		authMiddleware.Authenticate(
			authMiddleware.RequireAdmin(http.HandlerFunc(s.handleEnableSchedule))))
	s.router.Handle("POST /api/v1/schedules/{id}/disable",
		authMiddleware.Authenticate(
			authMiddleware.RequireAdmin(http.HandlerFunc(s.handleDisableSchedule))))
}

// Handler exposes the configured handler chain, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server with graceful shutdown
func (s *Server) Start() error {
	// Channel to listen for OS signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server failure
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-stop:
	}

	s.logger.Info("shutting down http server")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Attempt graceful shutdown
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("http server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
