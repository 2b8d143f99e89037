package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/labelspool/internal/config"
	"github.com/mattjoyce/labelspool/internal/dispatch"
	"github.com/mattjoyce/labelspool/internal/events"
	"github.com/mattjoyce/labelspool/internal/history"
	"github.com/mattjoyce/labelspool/internal/metrics"
	"github.com/mattjoyce/labelspool/internal/printer"
)

// Submitter prints operator-chosen files.
type Submitter interface {
	Submit(ctx context.Context, paths []string, target printer.Target) []dispatch.Result
}

// HistoryReader lists recent dispatches.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

// PrinterLister enumerates printers the operator can pick.
type PrinterLister interface {
	List(ctx context.Context) ([]string, error)
}

// PrinterListerFunc adapts a function to PrinterLister.
type PrinterListerFunc func(ctx context.Context) ([]string, error)

func (f PrinterListerFunc) List(ctx context.Context) ([]string, error) { return f(ctx) }

// SelectionStore loads and saves the printer/folder selection.
type SelectionStore interface {
	Load() (config.Selection, error)
	Save(config.Selection) error
}

// MonitorStatus exposes the folder monitor's in-flight paths.
type MonitorStatus interface {
	InFlight() []string
}

// Config holds API server configuration
type Config struct {
	Listen  string
	APIKey  string
	Version string
}

// Deps are the collaborators behind the HTTP handlers. Monitor is optional.
type Deps struct {
	Submitter Submitter
	History   HistoryReader
	Printers  PrinterLister
	Selection SelectionStore
	Monitor   MonitorStatus
	Events    *events.Hub
}

// Server represents the HTTP API server
type Server struct {
	config    Config
	deps      Deps
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance
func New(config Config, deps Deps, logger *slog.Logger) *Server {
	if deps.Events == nil {
		deps.Events = events.NewHub(256)
	}
	return &Server{
		config:    config,
		deps:      deps,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.setupRoutes(),
		ReadTimeout: 10 * time.Second,
		// POST /print holds the connection until every file has been sent.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// setupRoutes configures the HTTP router
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoints.
	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/openapi.json", s.handleOpenAPI)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/print", s.handlePrint)
		r.Get("/history", s.handleHistory)
		r.Get("/printers", s.handlePrinters)
		r.Get("/selection", s.handleGetSelection)
		r.Put("/selection", s.handlePutSelection)
		r.Get("/events", s.handleEvents)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
