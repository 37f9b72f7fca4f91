// Package docker runs submissions inside pre-warmed, throwaway containers.
//
// Every container serves exactly one invocation and is force-removed
// afterwards, so nothing a submission does survives into the next run.
package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/sakif/debugging-platform/internal/executor"
)

// exitKilled is what the daemon reports for an exec killed by SIGKILL,
// which inside a memory-capped container means the OOM killer.
const exitKilled = 137

// exitCPU is 128 + SIGXCPU, raised when the harness CPU rlimit trips.
const exitCPU = 152

// Backend implements executor.Backend using Docker.
type Backend struct {
	cli    *client.Client
	config Config
	logger *slog.Logger
	pool   *Pool
}

var _ executor.Backend = (*Backend)(nil)

// New creates a new Docker Backend, pulls the image and starts the pool.
func New(cfg Config, logger *slog.Logger) (*Backend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	// Make sure the image is pulled
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger.Info("ensuring docker image is available", slog.String("image", cfg.Image))
	reader, err := cli.ImagePull(ctx, cfg.Image, image.PullOptions{})
	if err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()
	// Read everything to block until the pull is complete
	if _, err := io.Copy(io.Discard, reader); err != nil {
		cli.Close()
		return nil, fmt.Errorf("failed to pull image: %w", err)
	}
	logger.Info("docker image is ready")

	b := &Backend{
		cli:    cli,
		config: cfg,
		logger: logger,
	}

	b.pool = NewPool(cli, cfg, logger)
	b.pool.Start()

	return b, nil
}

// Name implements executor.Backend.
func (b *Backend) Name() string { return "docker" }

// Close shuts down the pool and docker client.
func (b *Backend) Close() error {
	b.pool.Stop()
	return b.cli.Close()
}

// Ping reports whether the daemon is reachable. Used by the health check.
func (b *Backend) Ping(ctx context.Context) error {
	_, err := b.cli.Ping(ctx)
	return err
}

// Run implements executor.Backend. The container is removed when Run
// returns, which also kills the interpreter if the deadline fired.
func (b *Backend) Run(ctx context.Context, inv executor.Invocation) (*executor.Outcome, error) {
	// Get a pre-warmed container ID from the pool
	containerID, err := b.pool.GetContainer(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return &executor.Outcome{ExitCode: -1, TimedOut: ctx.Err() == context.DeadlineExceeded}, nil
		}
		return nil, fmt.Errorf("failed to get container from pool: %w", err)
	}

	// Always ensure we clean up the container that we acquired
	defer b.pool.removeContainer(containerID)

	execConfig := container.ExecOptions{
		AttachStdout: true,
		AttachStderr: true,
		User:         "nobody",
		WorkingDir:   "/tmp",
		Env:          []string{"PYTHONIOENCODING=utf-8", "HOME=/tmp"},
		Cmd:          append([]string{"python3"}, executor.HarnessArgs(inv)...),
	}

	execResp, err := b.cli.ContainerExecCreate(ctx, containerID, execConfig)
	if err != nil {
		return b.interrupted(ctx, nil, nil, fmt.Errorf("failed to create exec: %w", err))
	}

	attachResp, err := b.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return b.interrupted(ctx, nil, nil, fmt.Errorf("failed to attach to exec: %w", err))
	}
	defer attachResp.Close()

	stdout := executor.NewBoundedBuffer(inv.OutputLimit)
	stderr := executor.NewBoundedBuffer(executor.StderrLimit)

	done := make(chan error, 1)
	go func() {
		// Use stdcopy to demultiplex stdout from stderr
		_, err := stdcopy.StdCopy(stdout, stderr, attachResp.Reader)
		done <- err
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// Closing the hijacked connection unblocks StdCopy; the deferred
		// removal kills the interpreter.
		attachResp.Close()
		return b.interrupted(ctx, stdout, stderr, ctx.Err())
	}

	exitCode, err := b.waitExit(ctx, execResp.ID)
	if err != nil {
		return b.interrupted(ctx, stdout, stderr, err)
	}

	out := &executor.Outcome{
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		StdoutTruncated: stdout.Truncated(),
		ExitCode:        exitCode,
	}
	switch exitCode {
	case exitKilled:
		out.Signal = "killed"
	case exitCPU:
		out.Signal = "SIGXCPU"
	}
	return out, nil
}

// waitExit polls the exec until the daemon reports it finished. The output
// stream can close a moment before the exit code is recorded.
func (b *Backend) waitExit(ctx context.Context, execID string) (int, error) {
	for {
		inspect, err := b.cli.ContainerExecInspect(ctx, execID)
		if err != nil {
			return 0, fmt.Errorf("failed to inspect exec: %w", err)
		}
		if !inspect.Running {
			return inspect.ExitCode, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
}

// interrupted builds the outcome for a run cut short. A deadline is a
// normal outcome; anything else is an infrastructure error.
func (b *Backend) interrupted(ctx context.Context, stdout, stderr *executor.BoundedBuffer, cause error) (*executor.Outcome, error) {
	out := &executor.Outcome{ExitCode: -1}
	if stdout != nil {
		out.Stdout = stdout.String()
		out.StdoutTruncated = stdout.Truncated()
	}
	if stderr != nil {
		out.Stderr = stderr.String()
	}
	if ctx.Err() == context.DeadlineExceeded {
		out.TimedOut = true
		return out, nil
	}
	return out, cause
}
