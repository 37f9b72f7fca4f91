package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sakif/debugging-platform/internal/config"
	"github.com/sakif/debugging-platform/internal/executor"
	"github.com/sakif/debugging-platform/internal/executor/docker"
	"github.com/sakif/debugging-platform/internal/executor/process"
	"github.com/sakif/debugging-platform/internal/health"
	"github.com/sakif/debugging-platform/internal/metrics"
)

// sandbox is the configured backend wrapped in an Engine.
type sandbox struct {
	engine *executor.Engine
	pinger health.Pinger // nil for the process backend
	close  func()
}

// newSandbox builds the isolation backend named by SANDBOX_BACKEND.
func newSandbox(cfg *config.Config, sink *metrics.Sink, logger *slog.Logger) (*sandbox, error) {
	var (
		backend executor.Backend
		pinger  health.Pinger
		closeFn = func() {}
	)

	switch cfg.Sandbox.Backend {
	case config.BackendDocker:
		dcfg := docker.DefaultConfig()
		dcfg.Image = cfg.Sandbox.DockerImage
		dcfg.MemoryLimit = cfg.SandboxMemoryBytes()
		dcfg.CPULimit = cfg.Sandbox.CPULimit
		dcfg.PoolSize = cfg.Sandbox.PoolSize

		b, err := docker.New(dcfg, logger)
		if err != nil {
			return nil, fmt.Errorf("starting docker sandbox: %w", err)
		}
		backend, pinger = b, b
		closeFn = func() {
			if err := b.Close(); err != nil {
				logger.Warn("closing docker sandbox", slog.String("error", err.Error()))
			}
		}

	default:
		b, err := process.New(cfg.Sandbox.Python, os.TempDir(), logger)
		if err != nil {
			return nil, fmt.Errorf("starting process sandbox: %w", err)
		}
		backend = b
	}

	engine := executor.NewEngine(backend, executor.EngineConfig{
		Timeout:         cfg.ExecutionTimeout(),
		MaxCodeLength:   cfg.Execution.MaxCodeLength,
		MaxOutputLength: cfg.Execution.MaxOutputLength,
		MemoryLimit:     cfg.SandboxMemoryBytes(),
	}, sink, logger)

	logger.Info("sandbox ready", slog.String("backend", engine.Backend()))
	return &sandbox{engine: engine, pinger: pinger, close: closeFn}, nil
}
