package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gogins/csound-ac/internal/action"
	"github.com/gogins/csound-ac/internal/auth"
	"github.com/gogins/csound-ac/internal/dispatch"
	"github.com/gogins/csound-ac/internal/events"
	"github.com/gogins/csound-ac/internal/journal"
	"github.com/gogins/csound-ac/internal/launch"
)

// Invoker runs actions. *dispatch.Dispatcher satisfies it.
type Invoker interface {
	Catalog() *action.Catalog
	Invoke(ctx context.Context, inv dispatch.Invocation) (*dispatch.Result, error)
}

// LaunchRegistry exposes the launches that are still running.
type LaunchRegistry interface {
	List() []*launch.Handle
	Get(pid int) (*launch.Handle, bool)
	Len() int
}

// History reads the launch journal.
type History interface {
	Recent(ctx context.Context, limit int, action string) ([]journal.Entry, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey is a single bearer token with full access.
	APIKey string
	// Tokens is an optional list of scoped bearer tokens.
	Tokens []auth.TokenConfig
	// StopGrace is how long DELETE /launches/{pid} waits before SIGKILL.
	StopGrace time.Duration
}

// Server represents the HTTP bridge.
type Server struct {
	config    Config
	invoker   Invoker
	launches  LaunchRegistry
	history   History
	events    *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance. history may be nil when no state
// database is configured.
func New(config Config, invoker Invoker, launches LaunchRegistry, history History, hub *events.Hub, logger *slog.Logger) *Server {
	if hub == nil {
		hub = events.NewHub(256)
	}
	return &Server{
		config:    config,
		invoker:   invoker,
		launches:  launches,
		history:   history,
		events:    hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        s.config.Listen,
		Handler:     s.setupRoutes(),
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: /events streams for as long as the client stays.
		IdleTimeout: 60 * time.Second,
		// Request contexts end with ctx so open /events streams let Shutdown finish.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	r.Get("/openapi.json", s.handleOpenAPI)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.With(s.requireScopes(auth.ScopeActionsRO)).Get("/actions", s.handleListActions)
		r.With(s.requireScopes(auth.ScopeActionsRW)).Post("/actions/{action}", s.handleInvoke)
		r.With(s.requireScopes(auth.ScopeLaunchesRO)).Get("/launches", s.handleListLaunches)
		r.With(s.requireScopes(auth.ScopeLaunchesRW)).Delete("/launches/{pid}", s.handleStopLaunch)
		r.With(s.requireScopes(auth.ScopeHistoryRO, auth.ScopeLaunchesRO)).Get("/history", s.handleHistory)
		r.With(s.requireScopes(auth.ScopeEventsRO)).Get("/events", s.handleEvents)
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
