// Package process runs each submission in a fresh local interpreter process.
//
// ISOLATION:
//   - one process per invocation, nothing shared between runs
//   - empty environment and a private temporary working directory
//   - its own process group, killed as a whole when the deadline passes
//   - rlimits (address space, CPU, file size, descriptors) set by the harness
//
// This backend needs no daemon and is the default for development and for
// small classroom deployments. Use the docker backend when submissions must
// also be cut off from the host filesystem and network.
package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/sakif/debugging-platform/internal/executor"
)

// waitDelay bounds how long Wait blocks on output pipes after the kill.
const waitDelay = 500 * time.Millisecond

// Backend implements executor.Backend with os/exec.
type Backend struct {
	python  string
	workDir string
	logger  *slog.Logger
}

var _ executor.Backend = (*Backend)(nil)

// New returns a Backend that runs python (a name on PATH or an absolute path).
// Temporary directories are created under workDir, or the OS default when empty.
func New(python, workDir string, logger *slog.Logger) (*Backend, error) {
	path, err := exec.LookPath(python)
	if err != nil {
		return nil, fmt.Errorf("process: locating interpreter %q: %w", python, err)
	}
	return &Backend{python: path, workDir: workDir, logger: logger}, nil
}

// Name implements executor.Backend.
func (b *Backend) Name() string { return "process" }

// Run implements executor.Backend.
func (b *Backend) Run(ctx context.Context, inv executor.Invocation) (*executor.Outcome, error) {
	dir, err := os.MkdirTemp(b.workDir, "submission-*")
	if err != nil {
		return nil, fmt.Errorf("process: creating work dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			b.logger.Warn("failed to remove work dir", slog.String("dir", dir), slog.String("error", err.Error()))
		}
	}()

	stdout := executor.NewBoundedBuffer(inv.OutputLimit)
	stderr := executor.NewBoundedBuffer(executor.StderrLimit)

	cmd := exec.CommandContext(ctx, b.python, executor.HarnessArgs(inv)...)
	cmd.Dir = dir
	cmd.Env = []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + dir,
		"LANG=C.UTF-8",
		"PYTHONIOENCODING=utf-8",
	}
	cmd.Stdin = nil
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	isolate(cmd)

	runErr := cmd.Run()

	out := &executor.Outcome{
		Stdout:          stdout.String(),
		Stderr:          stderr.String(),
		StdoutTruncated: stdout.Truncated(),
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		out.TimedOut = errors.Is(ctxErr, context.DeadlineExceeded)
		out.ExitCode = -1
		if !out.TimedOut {
			return out, ctxErr
		}
		return out, nil
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		return out, nil
	case errors.As(runErr, &exitErr):
		out.ExitCode = exitErr.ExitCode()
		out.Signal = signalOf(exitErr.ProcessState)
		return out, nil
	case errors.Is(runErr, exec.ErrWaitDelay):
		// The interpreter exited but something it spawned kept the pipes open.
		return out, nil
	default:
		return nil, fmt.Errorf("process: running interpreter: %w", runErr)
	}
}
