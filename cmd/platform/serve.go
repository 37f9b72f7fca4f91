package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/sakif/debugging-platform/internal/audit"
	"github.com/sakif/debugging-platform/internal/auth"
	"github.com/sakif/debugging-platform/internal/config"
	"github.com/sakif/debugging-platform/internal/health"
	"github.com/sakif/debugging-platform/internal/logger"
	"github.com/sakif/debugging-platform/internal/metrics"
	"github.com/sakif/debugging-platform/internal/ratelimit"
	sqliteRepo "github.com/sakif/debugging-platform/internal/repository/sqlite"
	"github.com/sakif/debugging-platform/internal/safety"
	"github.com/sakif/debugging-platform/internal/security"
	"github.com/sakif/debugging-platform/internal/server"
	"github.com/sakif/debugging-platform/internal/service"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the platform HTTP server.

Examples:
  platform serve
  platform serve --port 9090
  SANDBOX_BACKEND=docker platform serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

// runServe is the composition root: every component is built here, in
// dependency order, and handed to the next one.
func runServe(cmd *cobra.Command, args []string) error {
	// === 1. CONFIGURATION ===
	cfg, err := config.Load(configFlag)
	if err != nil {
		return err
	}
	if portFlag > 0 {
		cfg.Port = portFlag
	}

	// === 2. LOGGING ===
	log, closeLog, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}
	defer closeLog.Close()

	auditLog, closeAudit, err := logger.NewAudit(cfg.Log)
	if err != nil {
		return fmt.Errorf("setting up audit logging: %w", err)
	}
	defer closeAudit.Close()
	trail := audit.NewTrail(auditLog)

	// === 3. DATABASE ===
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	// === 4. METRICS ===
	// The sink mirrors into this registry, which /metrics serves along
	// with the Go runtime and process collectors.
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sink := metrics.NewSink(registry)

	// === 5. TRUST BOUNDARY ===
	validator := safety.New(sink, log,
		safety.WithExtraPatterns(cfg.Security.ExtraDenyPatterns...),
		safety.WithAudit(trail),
	)

	box, err := newSandbox(cfg, sink, log)
	if err != nil {
		return err
	}
	defer box.close()

	limiter := ratelimit.New(ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		CodeRunsPerMinute: cfg.RateLimit.CodeRunsPerMinute,
	}, sink, log)

	sessions := security.NewManager(security.Config{
		MaxLoginAttempts: cfg.Security.MaxLoginAttempts,
		LockoutDuration:  cfg.LockoutDuration(),
		SessionTimeout:   cfg.SessionTimeout(),
	}, trail, sink, log)

	// === 6. SERVICES ===
	authSvc := service.NewAuthService(db.Users(), auth.NewPasswordService(), sessions, sink, log)
	runSvc := service.NewRunService(limiter, validator, box.engine, db.Submissions(), sink, log)

	if err := authSvc.EnsureAdmin(cmd.Context(), cfg.Admin.Email, cfg.Admin.Password); err != nil {
		return err
	}

	healthOpts := []health.Option{health.WithDiskPath(filepath.Dir(cfg.DBPath))}
	if box.pinger != nil {
		healthOpts = append(healthOpts, health.WithSandbox(box.pinger))
	}
	checker := health.New(db, log, healthOpts...)

	// === 7. SERVER ===
	srv := server.New(server.Config{
		Port:            cfg.Port,
		SessionTimeout:  cfg.SessionTimeout(),
		SecureCookies:   cfg.Production,
		SweepInterval:   time.Minute,
		ShutdownTimeout: 30 * time.Second,

		ExecutionTimeout: cfg.ExecutionTimeout(),
	}, server.Deps{
		Auth:     authSvc,
		Runs:     runSvc,
		Health:   checker,
		Metrics:  sink,
		Gatherer: registry,
		Sessions: sessions,
		Limiter:  limiter,
	}, log)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("platform starting",
		slog.Bool("production", cfg.Production),
		slog.String("database", cfg.DBPath),
		slog.Bool("rateLimit", cfg.RateLimit.Enabled),
	)
	return srv.Start(ctx)
}
