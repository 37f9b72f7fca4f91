package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sakif/debugging-platform/internal/metrics"
)

// TruncationMarker is appended to stdout that exceeded the output limit.
const TruncationMarker = "\n... (output truncated)"

// timingName is the timing series recorded for every invocation.
const timingName = "execute_code"

// Error kinds recorded in the metrics sink besides execute_code itself.
const (
	ErrorUnexpectedFault = "unexpected_fault"
	ErrorInterpreterExit = "interpreter_exit"
)

// outcomeCounters names the one counter incremented per invocation.
var outcomeCounters = map[ErrorKind]string{
	KindNone:         "code_execution_success",
	KindRejected:     "code_execution_rejected",
	KindCompilation:  "code_compilation_error",
	KindSyntax:       "code_syntax_error",
	KindName:         "code_name_error",
	KindType:         "code_type_error",
	KindValue:        "code_value_error",
	KindZeroDivision: "code_zero_division_error",
	KindMemory:       "code_memory_error",
	KindRecursion:    "code_recursion_error",
	KindRuntime:      "code_runtime_error",
	KindTimeout:      "code_execution_timeout",
	KindErrorOutput:  "code_execution_error",
}

// CounterFor returns the metrics counter name for an outcome kind.
func CounterFor(kind ErrorKind) string {
	if name, ok := outcomeCounters[kind]; ok {
		return name
	}
	return outcomeCounters[KindRuntime]
}

// EngineConfig bounds every run.
type EngineConfig struct {
	Timeout         time.Duration
	MaxCodeLength   int   // characters
	MaxOutputLength int   // characters
	MemoryLimit     int64 // bytes
}

// Engine applies execution policy on top of a Backend.
// It is stateless between invocations and safe for concurrent use.
type Engine struct {
	backend Backend
	cfg     EngineConfig
	metrics *metrics.Sink
	logger  *slog.Logger
	now     func() time.Time
}

var _ Runner = (*Engine)(nil)

// NewEngine creates an Engine.
func NewEngine(backend Backend, cfg EngineConfig, sink *metrics.Sink, logger *slog.Logger) *Engine {
	return &Engine{
		backend: backend,
		cfg:     cfg,
		metrics: sink,
		logger:  logger,
		now:     time.Now,
	}
}

// Backend returns the name of the isolation backend in use.
func (e *Engine) Backend() string {
	return e.backend.Name()
}

// Run executes req and always returns a result. Failures are reported in
// the result, never as a Go error, and each call increments exactly one
// outcome counter plus one timing sample. A backend failure is also counted
// as an execute_code error.
func (e *Engine) Run(ctx context.Context, req ExecutionRequest) *ExecutionResult {
	var res *ExecutionResult
	start := e.now()
	_ = e.metrics.Track(timingName, func() error {
		var err error
		res, err = e.run(ctx, req, start)
		return err
	})

	elapsed := e.now().Sub(start)
	res.Duration = elapsed
	res.ElapsedSeconds = elapsed.Seconds()

	e.metrics.Increment(CounterFor(res.ErrorKind))
	if res.Success {
		e.logger.Info("code executed successfully",
			slog.String("actor", req.Actor),
			slog.Duration("elapsed", elapsed),
		)
	}
	return res
}

// run returns the result and, separately, the backend failure behind it.
func (e *Engine) run(ctx context.Context, req ExecutionRequest, start time.Time) (*ExecutionResult, error) {
	// LengthChecked
	if utf8.RuneCountInString(req.Code) > e.cfg.MaxCodeLength {
		return failure(KindRejected, "", fmt.Sprintf("Code too long. Maximum %d characters allowed", e.cfg.MaxCodeLength)), nil
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Timeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Compiled + Executing happen inside the backend unit.
	out, err := e.backend.Run(runCtx, Invocation{
		Code:        req.Code,
		Timeout:     timeout,
		MemoryLimit: e.cfg.MemoryLimit,
		OutputLimit: CaptureLimit(e.cfg.MaxOutputLength),
	})
	elapsed := e.now().Sub(start)
	if err == nil && out == nil {
		err = errors.New("backend returned no outcome")
	}

	deadlineHit := errors.Is(runCtx.Err(), context.DeadlineExceeded) || elapsed > timeout
	if out != nil && out.TimedOut {
		deadlineHit = true
	}

	if deadlineHit {
		var stdout string
		if out != nil {
			stdout = e.truncate(out.Stdout, out.StdoutTruncated)
		}
		return failure(KindTimeout, stdout, fmt.Sprintf("Execution timeout (%s exceeded)", formatSeconds(timeout))), nil
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		e.logger.Warn("execution cancelled by caller", slog.String("actor", req.Actor))
		return failure(KindRuntime, "", "Runtime Error: execution was cancelled"), nil
	}

	if err != nil {
		e.logger.Error("sandbox backend failed",
			slog.String("backend", e.backend.Name()),
			slog.String("actor", req.Actor),
			slog.String("error", err.Error()),
		)
		return failure(KindRuntime, "", "Runtime Error: the code could not be executed, please try again"),
			fmt.Errorf("%s backend: %w", e.backend.Name(), err)
	}

	stdout := e.truncate(out.Stdout, out.StdoutTruncated)

	if fault, rest, ok := parseFault(out.Stderr); ok {
		if fault.Kind == KindRuntime {
			e.metrics.RecordError(ErrorUnexpectedFault)
			e.logger.Error("unexpected fault in submitted code",
				slog.String("actor", req.Actor),
				slog.String("message", fault.Message),
				slog.String("detail", fault.Detail),
			)
		}
		if _, known := outcomeCounters[fault.Kind]; !known || fault.Kind == KindNone {
			fault.Kind = KindRuntime
		}
		res := failure(fault.Kind, stdout, fault.Message)
		if rest != "" {
			res.Stderr = fault.Message + "\n" + rest
		}
		return res, nil
	}

	if out.ExitCode != 0 {
		return e.abnormalExit(req, out, stdout), nil
	}

	if strings.TrimSpace(out.Stderr) != "" {
		return failure(KindErrorOutput, stdout, out.Stderr), nil
	}

	return &ExecutionResult{Success: true, Stdout: stdout}, nil
}

// abnormalExit handles an interpreter that died without writing a report.
func (e *Engine) abnormalExit(req ExecutionRequest, out *Outcome, stdout string) *ExecutionResult {
	switch out.Signal {
	case "SIGXCPU":
		return failure(KindTimeout, stdout, fmt.Sprintf("Execution timeout (%s exceeded)", formatSeconds(e.timeoutFor(req))))
	case "SIGKILL", "killed":
		return failure(KindMemory, stdout, "Memory Error: Code used too much memory")
	}

	e.metrics.RecordError(ErrorInterpreterExit)
	e.logger.Error("interpreter exited without a fault report",
		slog.String("backend", e.backend.Name()),
		slog.String("actor", req.Actor),
		slog.Int("exitCode", out.ExitCode),
		slog.String("signal", out.Signal),
		slog.String("stderr", out.Stderr),
	)
	return failure(KindRuntime, stdout, fmt.Sprintf("Runtime Error: interpreter exited with status %d", out.ExitCode))
}

func (e *Engine) timeoutFor(req ExecutionRequest) time.Duration {
	if req.Timeout > 0 {
		return req.Timeout
	}
	return e.cfg.Timeout
}

// truncate cuts stdout to MaxOutputLength characters and appends the marker.
func (e *Engine) truncate(stdout string, dropped bool) string {
	if !utf8.ValidString(stdout) {
		// The byte-level capture may have split a multi-byte character.
		stdout = strings.ToValidUTF8(stdout, "")
	}
	if utf8.RuneCountInString(stdout) > e.cfg.MaxOutputLength {
		return string([]rune(stdout)[:e.cfg.MaxOutputLength]) + TruncationMarker
	}
	if dropped {
		return stdout + TruncationMarker
	}
	return stdout
}

func failure(kind ErrorKind, stdout, stderr string) *ExecutionResult {
	return &ExecutionResult{
		Success:   false,
		Stdout:    stdout,
		Stderr:    stderr,
		ErrorKind: kind,
	}
}

// formatSeconds renders 5s as "5s" and 1.5s as "1.5s".
func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%gs", d.Seconds())
}
