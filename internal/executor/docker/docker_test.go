package docker_test

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/debugging-platform/internal/executor"
	"github.com/sakif/debugging-platform/internal/executor/docker"
	"github.com/sakif/debugging-platform/internal/metrics"
)

func TestDockerBackend(t *testing.T) {
	// Skip in CI environments if docker is not available
	if os.Getenv("CI") != "" {
		t.Skip("Skipping docker test in CI environment")
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg := docker.DefaultConfig()
	// reduce pool size for local test speed
	cfg.PoolSize = 1

	backend, err := docker.New(cfg, logger)
	if err != nil {
		t.Skipf("docker daemon not available: %v", err)
	}
	defer backend.Close()

	require.NoError(t, backend.Ping(context.Background()))
	assert.Equal(t, "docker", backend.Name())

	engine := executor.NewEngine(backend, executor.EngineConfig{
		Timeout:         5 * time.Second,
		MaxCodeLength:   10000,
		MaxOutputLength: 10000,
		MemoryLimit:     cfg.MemoryLimit,
	}, metrics.NewSink(nil), logger)

	t.Run("successful execution", func(t *testing.T) {
		res := engine.Run(context.Background(), executor.ExecutionRequest{
			Code: `print("Hello from test sandbox!")`,
		})
		assert.True(t, res.Success)
		assert.Contains(t, res.Stdout, "Hello from test sandbox!")
		assert.Empty(t, res.Stderr)
		assert.Greater(t, res.Duration, time.Duration(0))
	})

	t.Run("syntax error", func(t *testing.T) {
		res := engine.Run(context.Background(), executor.ExecutionRequest{
			Code: `print("Missing parenthesis"`,
		})
		assert.False(t, res.Success)
		assert.Equal(t, executor.KindSyntax, res.ErrorKind)
		assert.Contains(t, res.Stderr, "Syntax Error")
		assert.Empty(t, res.Stdout)
	})

	t.Run("infinite loop timeout", func(t *testing.T) {
		res := engine.Run(context.Background(), executor.ExecutionRequest{
			Code:    `while True: pass`,
			Timeout: 2 * time.Second,
		})
		assert.Equal(t, executor.KindTimeout, res.ErrorKind)
		assert.Contains(t, res.Stderr, "Execution timeout (2s exceeded)")
	})

	t.Run("multiline logic", func(t *testing.T) {
		res := engine.Run(context.Background(), executor.ExecutionRequest{
			Code: strings.Join([]string{
				"def fib(n):",
				"    if n <= 1: return n",
				"    return fib(n-1) + fib(n-2)",
				"print(fib(5))",
			}, "\n"),
		})
		assert.True(t, res.Success)
		assert.Equal(t, "5\n", res.Stdout)
	})
}
