package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sfdxb7/oc-hub/internal/core/ports/driven"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer  *http.Server
	router      *http.ServeMux
	version     string
	libraryRoot string
	logger      *slog.Logger

	// Services
	reportService    driving.ReportService
	retrievalService driving.RetrievalService
	newsService      driving.NewsService
	scheduleService  driving.ScheduleService

	// Infrastructure
	taskQueue   driven.TaskQueue
	db          Pinger       // PostgreSQL health check
	redisClient Pinger       // Redis health check (optional)
	metrics     http.Handler // Prometheus exposition (optional)
}

// Config holds server configuration
type Config struct {
	Host    string
	Port    int
	Version string

	// LibraryRoot resolves relative folders in ingest and batch requests
	LibraryRoot string

	// AllowedOrigins enables CORS for these origins ("*" for any)
	AllowedOrigins []string
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
	reportService driving.ReportService,
	retrievalService driving.RetrievalService,
	newsService driving.NewsService,
	scheduleService driving.ScheduleService, // can be nil
	taskQueue driven.TaskQueue,
	db Pinger,
	redisClient Pinger, // can be nil
	metrics http.Handler, // can be nil
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router:           http.NewServeMux(),
		version:          cfg.Version,
		libraryRoot:      cfg.LibraryRoot,
		logger:           logger,
		reportService:    reportService,
		retrievalService: retrievalService,
		newsService:      newsService,
		scheduleService:  scheduleService,
		taskQueue:        taskQueue,
		db:               db,
		redisClient:      redisClient,
		metrics:          metrics,
	}

	s.setupRoutes()

	var handler http.Handler = s.router
	if len(cfg.AllowedOrigins) > 0 {
		handler = NewCORSMiddleware(cfg.AllowedOrigins).Handler(handler)
	}
	handler = NewLoggingMiddleware(logger).Handler(handler)
	handler = NewRecoveryMiddleware(logger).Handler(handler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second, // retrieval and news analysis call out to the LLM
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health endpoints
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)
	if s.metrics != nil {
		s.router.Handle("GET /metrics", s.metrics)
	}

	// Ingestion is asynchronous; both endpoints return a task to poll
	s.router.HandleFunc("POST /api/v1/ingest", s.handleIngest)
	s.router.HandleFunc("POST /api/v1/batches", s.handleCreateBatch)
	s.router.HandleFunc("GET /api/v1/tasks/{id}", s.handleGetTask)

	// Report endpoints
	s.router.HandleFunc("GET /api/v1/reports", s.handleListReports)
	s.router.HandleFunc("GET /api/v1/reports/{id}", s.handleGetReport)
	s.router.HandleFunc("DELETE /api/v1/reports/{id}", s.handleDeleteReport)
	s.router.HandleFunc("GET /api/v1/reports/{id}/databank", s.handleGetDataBank)

	// Retrieval and analysis
	s.router.HandleFunc("POST /api/v1/retrieve", s.handleRetrieve)
	s.router.HandleFunc("POST /api/v1/news/analyze", s.handleAnalyzeNews)

	// Recurring tasks
	s.router.HandleFunc("GET /api/v1/schedules", s.handleListSchedules)
	s.router.HandleFunc("PATCH /api/v1/schedules/{id}", s.handleUpdateSchedule)
	s.router.HandleFunc("POST /api/v1/schedules/{id}/trigger", s.handleTriggerSchedule)
}

// Handler returns the fully wrapped handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
