// Package executor runs untrusted Python submissions.
//
// LAYERS:
//
//	Engine   → policy: length check, deadline, fault mapping, truncation, metrics
//	Backend  → isolation: a fresh subprocess (process) or a pooled container (docker)
//	harness  → the Python side: rlimits, restricted grammar, allow-listed builtins
//
// The Engine never holds a lock while code runs, and every invocation gets its
// own backend unit (process or container) that is killed on the deadline.
package executor

import (
	"context"
	"time"
)

// ErrorKind classifies a failed execution. Empty means success.
type ErrorKind string

const (
	KindNone         ErrorKind = ""
	KindRejected     ErrorKind = "rejected"
	KindCompilation  ErrorKind = "compilation"
	KindSyntax       ErrorKind = "syntax"
	KindName         ErrorKind = "name"
	KindType         ErrorKind = "type"
	KindValue        ErrorKind = "value"
	KindZeroDivision ErrorKind = "zero_division"
	KindMemory       ErrorKind = "memory"
	KindRecursion    ErrorKind = "recursion"
	KindRuntime      ErrorKind = "runtime"
	KindTimeout      ErrorKind = "timeout"
	KindErrorOutput  ErrorKind = "error_output"
)

// ExecutionRequest represents a request to execute Python code.
type ExecutionRequest struct {
	Code    string        `json:"code"`
	Actor   string        `json:"-"`
	Timeout time.Duration `json:"-"` // zero = engine default
}

// ExecutionResult is what the caller shows the student.
type ExecutionResult struct {
	Success        bool          `json:"success"`
	Stdout         string        `json:"stdout"`
	Stderr         string        `json:"stderr"`
	ErrorKind      ErrorKind     `json:"errorKind,omitempty"`
	Duration       time.Duration `json:"duration"`
	ElapsedSeconds float64       `json:"elapsedSeconds"`
}

// Runner is implemented by Engine. Services depend on this interface.
type Runner interface {
	Run(ctx context.Context, req ExecutionRequest) *ExecutionResult
}

// Invocation is one unit of work handed to a Backend.
type Invocation struct {
	Code        string
	Timeout     time.Duration
	MemoryLimit int64 // bytes, applied inside the harness
	OutputLimit int   // bytes of stdout to keep
}

// Outcome is the raw result of a backend run, before policy is applied.
type Outcome struct {
	Stdout          string
	Stderr          string
	ExitCode        int
	StdoutTruncated bool
	TimedOut        bool   // the backend observed the deadline and killed the unit
	Signal          string // set when the unit died from a signal we did not send
}

// Backend runs an Invocation in an isolated unit. Implementations must
// terminate the unit and release its resources when ctx is done.
type Backend interface {
	Name() string
	Run(ctx context.Context, inv Invocation) (*Outcome, error)
}
