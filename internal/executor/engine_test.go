package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/debugging-platform/internal/metrics"
)

// fakeBackend returns a canned outcome, or blocks until ctx is done.
type fakeBackend struct {
	outcome *Outcome
	err     error
	block   bool
	calls   atomic.Int32
	last    Invocation
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Run(ctx context.Context, inv Invocation) (*Outcome, error) {
	f.calls.Add(1)
	f.last = inv
	if f.block {
		<-ctx.Done()
		return &Outcome{Stdout: "partial\n", TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded)}, nil
	}
	return f.outcome, f.err
}

func newTestEngine(b Backend) (*Engine, *metrics.Sink) {
	sink := metrics.NewSink(nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEngine(b, EngineConfig{
		Timeout:         200 * time.Millisecond,
		MaxCodeLength:   50,
		MaxOutputLength: 10,
		MemoryLimit:     64 << 20,
	}, sink, logger), sink
}

func faultLine(kind ErrorKind, message string) string {
	return "\n" + faultMarker + `{"kind":"` + string(kind) + `","message":"` + message + `","detail":""}` + "\n"
}

// ===== TESTS =====

func TestEngineRejectsLongCode(t *testing.T) {
	backend := &fakeBackend{outcome: &Outcome{}}
	engine, sink := newTestEngine(backend)

	res := engine.Run(context.Background(), ExecutionRequest{Code: strings.Repeat("x", 51)})

	assert.False(t, res.Success)
	assert.Equal(t, KindRejected, res.ErrorKind)
	assert.Equal(t, "Code too long. Maximum 50 characters allowed", res.Stderr)
	assert.Zero(t, backend.calls.Load(), "rejected code must never reach the backend")
	assert.Equal(t, int64(1), sink.Snapshot().Counter("code_execution_rejected"))
}

func TestEngineLengthCountsCharacters(t *testing.T) {
	backend := &fakeBackend{outcome: &Outcome{}}
	engine, _ := newTestEngine(backend)

	// 50 characters, 100 bytes.
	res := engine.Run(context.Background(), ExecutionRequest{Code: strings.Repeat("é", 50)})
	assert.True(t, res.Success)
	assert.Equal(t, int32(1), backend.calls.Load())
}

func TestEngineOutcomeMapping(t *testing.T) {
	tests := []struct {
		name     string
		outcome  *Outcome
		wantKind ErrorKind
		wantErr  string
		counter  string
	}{
		{
			name:     "clean run",
			outcome:  &Outcome{Stdout: "Sum: 30\n"},
			wantKind: KindNone,
			counter:  "code_execution_success",
		},
		{
			name:     "syntax fault",
			outcome:  &Outcome{Stderr: faultLine(KindSyntax, "Syntax Error: invalid syntax"), ExitCode: 1},
			wantKind: KindSyntax,
			wantErr:  "Syntax Error: invalid syntax",
			counter:  "code_syntax_error",
		},
		{
			name:     "name fault",
			outcome:  &Outcome{Stderr: faultLine(KindName, "Name Error: name 'x' is not defined"), ExitCode: 1},
			wantKind: KindName,
			wantErr:  "Name Error: name 'x' is not defined",
			counter:  "code_name_error",
		},
		{
			name:     "zero division fault",
			outcome:  &Outcome{Stderr: faultLine(KindZeroDivision, "Zero Division Error: division by zero"), ExitCode: 1},
			wantKind: KindZeroDivision,
			wantErr:  "Zero Division Error: division by zero",
			counter:  "code_zero_division_error",
		},
		{
			name:     "restricted grammar",
			outcome:  &Outcome{Stderr: faultLine(KindCompilation, "Line 1: import statements are not allowed"), ExitCode: 1},
			wantKind: KindCompilation,
			wantErr:  "Line 1: import statements are not allowed",
			counter:  "code_compilation_error",
		},
		{
			name:     "recursion fault",
			outcome:  &Outcome{Stderr: faultLine(KindRecursion, "Recursion Error: Maximum recursion depth exceeded"), ExitCode: 1},
			wantKind: KindRecursion,
			wantErr:  "Recursion Error: Maximum recursion depth exceeded",
			counter:  "code_recursion_error",
		},
		{
			name:     "unknown fault kind becomes runtime",
			outcome:  &Outcome{Stderr: faultLine("weird", "Runtime Error: boom"), ExitCode: 1},
			wantKind: KindRuntime,
			wantErr:  "Runtime Error: boom",
			counter:  "code_runtime_error",
		},
		{
			name:     "stderr without a fault",
			outcome:  &Outcome{Stdout: "ok\n", Stderr: "some warning"},
			wantKind: KindErrorOutput,
			wantErr:  "some warning",
			counter:  "code_execution_error",
		},
		{
			name:     "killed by the kernel",
			outcome:  &Outcome{ExitCode: -1, Signal: "SIGKILL"},
			wantKind: KindMemory,
			wantErr:  "Memory Error: Code used too much memory",
			counter:  "code_memory_error",
		},
		{
			name:     "container oom",
			outcome:  &Outcome{ExitCode: 137, Signal: "killed"},
			wantKind: KindMemory,
			wantErr:  "Memory Error: Code used too much memory",
			counter:  "code_memory_error",
		},
		{
			name:     "cpu limit",
			outcome:  &Outcome{ExitCode: -1, Signal: "SIGXCPU"},
			wantKind: KindTimeout,
			wantErr:  "Execution timeout (0.2s exceeded)",
			counter:  "code_execution_timeout",
		},
		{
			name:     "silent crash",
			outcome:  &Outcome{ExitCode: 3},
			wantKind: KindRuntime,
			wantErr:  "Runtime Error: interpreter exited with status 3",
			counter:  "code_runtime_error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, sink := newTestEngine(&fakeBackend{outcome: tt.outcome})

			res := engine.Run(context.Background(), ExecutionRequest{Code: "print(1)", Actor: "s1"})

			assert.Equal(t, tt.wantKind, res.ErrorKind)
			assert.Equal(t, tt.wantKind == KindNone, res.Success)
			assert.Equal(t, tt.wantErr, res.Stderr)

			snap := sink.Snapshot()
			assert.Equal(t, int64(1), snap.Counter(tt.counter))
			var total int64
			for _, v := range snap.Counters {
				total += v
			}
			assert.Equal(t, int64(1), total, "exactly one outcome counter per run")
			assert.Equal(t, 1, snap.Timings["execute_code"].Count)
		})
	}
}

func TestEngineTimeout(t *testing.T) {
	backend := &fakeBackend{block: true}
	engine, sink := newTestEngine(backend)

	res := engine.Run(context.Background(), ExecutionRequest{Code: "while True: pass"})

	assert.False(t, res.Success)
	assert.Equal(t, KindTimeout, res.ErrorKind)
	assert.Equal(t, "Execution timeout (0.2s exceeded)", res.Stderr)
	assert.Equal(t, "partial\n", res.Stdout)
	assert.GreaterOrEqual(t, res.Duration, 200*time.Millisecond)
	assert.Equal(t, int64(1), sink.Snapshot().Counter("code_execution_timeout"))
}

func TestEngineRequestTimeoutOverride(t *testing.T) {
	backend := &fakeBackend{block: true}
	engine, _ := newTestEngine(backend)

	res := engine.Run(context.Background(), ExecutionRequest{Code: "x", Timeout: 50 * time.Millisecond})
	assert.Equal(t, "Execution timeout (0.05s exceeded)", res.Stderr)
	assert.Equal(t, 50*time.Millisecond, backend.last.Timeout)
}

func TestEngineSlowBackendStillTimesOut(t *testing.T) {
	// A backend that overran the deadline without noticing.
	engine, _ := newTestEngine(&fakeBackend{outcome: &Outcome{Stdout: "done\n"}})
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	calls := 0
	engine.now = func() time.Time {
		calls++
		if calls == 1 {
			return clock
		}
		return clock.Add(time.Second)
	}

	res := engine.Run(context.Background(), ExecutionRequest{Code: "x"})
	assert.Equal(t, KindTimeout, res.ErrorKind)
	assert.Equal(t, "done\n", res.Stdout)
}

func TestEngineCallerCancel(t *testing.T) {
	engine, sink := newTestEngine(&fakeBackend{block: true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := engine.Run(ctx, ExecutionRequest{Code: "x"})
	assert.Equal(t, KindRuntime, res.ErrorKind)
	assert.Equal(t, "Runtime Error: execution was cancelled", res.Stderr)
	assert.Equal(t, int64(1), sink.Snapshot().Counter("code_runtime_error"))
}

func TestEngineBackendError(t *testing.T) {
	engine, sink := newTestEngine(&fakeBackend{err: errors.New("daemon unreachable")})

	res := engine.Run(context.Background(), ExecutionRequest{Code: "x"})
	assert.Equal(t, KindRuntime, res.ErrorKind)
	assert.NotContains(t, res.Stderr, "daemon unreachable", "internal errors stay in the logs")

	snap := sink.Snapshot()
	assert.Equal(t, map[string]int64{"execute_code": 1}, snap.Errors)
	assert.Equal(t, int64(1), snap.Counter("code_runtime_error"))
	assert.Equal(t, 1, snap.Timings["execute_code"].Count)
}

func TestEngineRecordsErrors(t *testing.T) {
	tests := []struct {
		name    string
		outcome *Outcome
		want    map[string]int64
	}{
		{
			name:    "clean run",
			outcome: &Outcome{Stdout: "ok\n"},
			want:    map[string]int64{},
		},
		{
			name:    "expected fault",
			outcome: &Outcome{ExitCode: 1, Stderr: faultLine(KindZeroDivision, "Zero Division Error: division by zero")},
			want:    map[string]int64{},
		},
		{
			name:    "unexpected fault",
			outcome: &Outcome{ExitCode: 1, Stderr: faultLine(KindRuntime, "Runtime Error: list index out of range")},
			want:    map[string]int64{ErrorUnexpectedFault: 1},
		},
		{
			name:    "interpreter died without a report",
			outcome: &Outcome{ExitCode: 3},
			want:    map[string]int64{ErrorInterpreterExit: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, sink := newTestEngine(&fakeBackend{outcome: tt.outcome})

			engine.Run(context.Background(), ExecutionRequest{Code: "print(1)"})

			assert.Equal(t, tt.want, sink.Snapshot().Errors)
		})
	}
}

func TestEngineNilOutcome(t *testing.T) {
	engine, _ := newTestEngine(&fakeBackend{})

	res := engine.Run(context.Background(), ExecutionRequest{Code: "x"})
	assert.Equal(t, KindRuntime, res.ErrorKind)
}

func TestEngineTruncation(t *testing.T) {
	tests := []struct {
		name    string
		outcome *Outcome
		want    string
	}{
		{"fits", &Outcome{Stdout: "0123456789"}, "0123456789"},
		{"too many characters", &Outcome{Stdout: "0123456789abc"}, "0123456789" + TruncationMarker},
		{"capture dropped bytes", &Outcome{Stdout: "short", StdoutTruncated: true}, "short" + TruncationMarker},
		{"multibyte counted as characters", &Outcome{Stdout: strings.Repeat("ü", 12)}, strings.Repeat("ü", 10) + TruncationMarker},
		{"split multibyte dropped", &Outcome{Stdout: "abc\xc3", StdoutTruncated: true}, "abc" + TruncationMarker},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _ := newTestEngine(&fakeBackend{outcome: tt.outcome})
			res := engine.Run(context.Background(), ExecutionRequest{Code: "x"})
			assert.Equal(t, tt.want, res.Stdout)
		})
	}
}

func TestEngineInvocation(t *testing.T) {
	backend := &fakeBackend{outcome: &Outcome{}}
	engine, _ := newTestEngine(backend)

	engine.Run(context.Background(), ExecutionRequest{Code: "print(1)"})

	assert.Equal(t, "print(1)", backend.last.Code)
	assert.Equal(t, 200*time.Millisecond, backend.last.Timeout)
	assert.Equal(t, int64(64<<20), backend.last.MemoryLimit)
	assert.Equal(t, 41, backend.last.OutputLimit)
	assert.Equal(t, "fake", engine.Backend())
}

func TestParseFault(t *testing.T) {
	t.Run("report after other output", func(t *testing.T) {
		stderr := "warning: something\n" + faultLine(KindValue, "Value Error: bad")
		f, rest, ok := parseFault(stderr)
		require.True(t, ok)
		assert.Equal(t, KindValue, f.Kind)
		assert.Equal(t, "Value Error: bad", f.Message)
		assert.Equal(t, "warning: something", rest)
	})

	t.Run("marker not at line start is ignored", func(t *testing.T) {
		_, _, ok := parseFault(`Runtime Error: x` + faultMarker + `{"kind":"syntax"}`)
		assert.False(t, ok)
	})

	t.Run("malformed payload", func(t *testing.T) {
		_, _, ok := parseFault(faultMarker + "{not json")
		assert.False(t, ok)
	})

	t.Run("no report", func(t *testing.T) {
		_, rest, ok := parseFault("plain stderr")
		assert.False(t, ok)
		assert.Equal(t, "plain stderr", rest)
	})
}

func TestHarnessArgs(t *testing.T) {
	args := HarnessArgs(Invocation{Code: "print(1)", Timeout: 1500 * time.Millisecond, MemoryLimit: 1024})

	require.Len(t, args, 8)
	assert.Equal(t, []string{"-I", "-S", "-B", "-c"}, args[:4])
	assert.Contains(t, args[4], "RestrictedGrammar")
	assert.Equal(t, "cHJpbnQoMSk=", args[5])
	assert.Equal(t, "1024", args[6])
	assert.Equal(t, "3", args[7])
}

func TestBoundedBuffer(t *testing.T) {
	b := NewBoundedBuffer(5)

	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.False(t, b.Truncated())

	n, err = b.Write([]byte("defgh"))
	require.NoError(t, err)
	assert.Equal(t, 5, n, "writes always report full length")
	assert.Equal(t, "abcde", b.String())
	assert.True(t, b.Truncated())
}
