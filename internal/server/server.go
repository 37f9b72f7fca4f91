// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It decides:
//   - which URL patterns map to which handler functions
//   - which middleware runs on which routes
//   - how the server starts, sweeps expired state, and stops gracefully
//
// Services and stores are built by the caller (cmd/platform) and handed in
// through Deps, so tests can build a Server around fakes and drive it
// with httptest without opening a port.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sakif/debugging-platform/internal/auth"
	"github.com/sakif/debugging-platform/internal/handler"
	"github.com/sakif/debugging-platform/internal/metrics"
	"github.com/sakif/debugging-platform/internal/middleware"
	"github.com/sakif/debugging-platform/internal/ratelimit"
	"github.com/sakif/debugging-platform/internal/security"
)

// Config holds server configuration.
type Config struct {
	Port            int
	SessionTimeout  time.Duration // cookie lifetime, matches the session idle timeout
	SecureCookies   bool          // true behind HTTPS
	SweepInterval   time.Duration // how often expired sessions and rate windows are dropped
	ShutdownTimeout time.Duration

	// ExecutionTimeout is the sandbox deadline. The write timeout is kept
	// longer so a run that uses all of it still gets its response out.
	ExecutionTimeout time.Duration
}

// Write deadline bounds. A response gets at least minWriteTimeout, and
// writeMargin on top of the execution deadline for the database write and
// encoding.
const (
	minWriteTimeout = 30 * time.Second
	writeMargin     = 15 * time.Second
)

// WriteTimeout is the http.Server write deadline for c.
func (c Config) WriteTimeout() time.Duration {
	return max(minWriteTimeout, c.ExecutionTimeout+writeMargin)
}

// Deps are the already-constructed components the routes call into.
type Deps struct {
	Auth     handler.Authenticator
	Runs     handler.CodeRunner
	Health   handler.HealthReporter
	Metrics  *metrics.Sink
	Gatherer prometheus.Gatherer // served on /metrics; nil disables the endpoint
	Sessions *security.Manager
	Limiter  *ratelimit.Limiter
}

// Server represents the HTTP server and all its dependencies.
type Server struct {
	router *chi.Mux
	config Config
	deps   Deps
	logger *slog.Logger
}

// New creates a Server and registers every route.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET  /healthz                     → health report (200 / 503)
//	GET  /metrics                     → Prometheus exposition
//	POST /api/auth/register           → create student account        [limit by IP]
//	POST /api/auth/login              → open session                  [limit by IP]
//	POST /api/auth/logout             → destroy session               [limit by IP]
//	GET  /api/me                      → current user                  [session]
//	POST /api/validate                → scan code only                [session]
//	POST /api/run                     → scan and execute              [session]
//	POST /api/tests/{testID}/submit   → scan, execute, store          [session]
//	GET  /api/submissions             → own submission history        [session]
//	GET  /api/admin/metrics           → metrics snapshot + host usage [session, admin]
//
// MIDDLEWARE ORDER MATTERS:
// RequestID and RealIP run before Logger so the log line carries both;
// Recoverer sits inside Logger so a panic is still logged as a 500.
// Inside /api the request limiter runs after RequireSession, which lets
// it key authenticated callers by student instead of by address.
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	authHandler := handler.NewAuthHandler(s.deps.Auth, s.config.SessionTimeout, s.config.SecureCookies, s.logger)
	executeHandler := handler.NewExecuteHandler(s.deps.Runs, s.logger)
	obsHandler := handler.NewObservabilityHandler(s.deps.Health, s.deps.Metrics)

	s.router.Get("/healthz", obsHandler.HandleHealth)
	if s.deps.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api", func(r chi.Router) {
		// Public: limited per client address.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(s.deps.Limiter))
			r.Post("/auth/register", authHandler.HandleRegister)
			r.Post("/auth/login", authHandler.HandleLogin)
			r.Post("/auth/logout", authHandler.HandleLogout)
		})

		// Authenticated: limited per student.
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireSession(s.deps.Sessions))
			r.Use(middleware.RateLimit(s.deps.Limiter))

			r.Get("/me", authHandler.HandleMe)
			r.Post("/validate", executeHandler.HandleValidate)
			r.Post("/run", executeHandler.HandleRun)
			r.Post("/tests/{testID}/submit", executeHandler.HandleSubmit)
			r.Get("/submissions", executeHandler.HandleHistory)

			r.With(auth.RequireRole(security.RoleAdmin)).Get("/admin/metrics", obsHandler.HandleMetrics)
		})
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections
//  2. Wait for in-flight requests (a code run can take the full execution
//     timeout) up to ShutdownTimeout
//  3. Stop the sweeper
//
// Closing the database and the sandbox is left to the caller, which owns them.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.config.WriteTimeout(),
		IdleTimeout:       60 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.sweep(sweepCtx)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
		return nil
	}
}

// sweep periodically drops expired sessions and idle rate-limit windows
// so neither map grows with every student who ever logged in.
func (s *Server) sweep(ctx context.Context) {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Server) sweepOnce() {
	sessions := s.deps.Sessions.SweepSessions()
	windows := s.deps.Limiter.Sweep()
	if sessions > 0 || windows > 0 {
		s.logger.Debug("swept expired state",
			slog.Int("sessions", sessions),
			slog.Int("rateWindows", windows),
		)
	}
}
