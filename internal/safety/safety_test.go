package safety

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/sakif/debugging-platform/internal/audit"
	"github.com/sakif/debugging-platform/internal/metrics"
)

func newTestValidator(opts ...Option) (*Validator, *metrics.Sink) {
	sink := metrics.NewSink(nil)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	return New(sink, logger, opts...), sink
}

func TestScan_DenyList(t *testing.T) {
	tests := []struct {
		name        string
		source      string
		wantPattern string
	}{
		{"import os", "import os\nprint(os.getcwd())", "import os"},
		{"case insensitive", "IMPORT SUBPROCESS", "import subprocess"},
		{"eval call", "x = eval('1+1')", "eval("},
		{"open call", "open('/etc/passwd').read()", "open("},
		{"dunder import", "__import__('os')", "__import__"},
		{"getattr", "getattr(obj, 'x')", "getattr"},
		{"builtins access", "print(__builtins__)", "__builtins__"},
		{"from import", "from os import path", "from os"},
		{"subclass walk", "().__class__.__bases__[0].__subclasses__()", "__class__"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, sink := newTestValidator()

			got := v.ScanAs("student", tt.source)

			if got.Allowed {
				t.Fatalf("Scan(%q) allowed, want rejection", tt.source)
			}
			if got.Pattern != tt.wantPattern {
				t.Errorf("Pattern = %q, want %q", got.Pattern, tt.wantPattern)
			}
			if want := "Dangerous operation detected: " + tt.wantPattern; got.Reason != want {
				t.Errorf("Reason = %q, want %q", got.Reason, want)
			}
			if n := sink.Snapshot().Counter("code_security_violation"); n != 1 {
				t.Errorf("code_security_violation = %d, want 1", n)
			}
		})
	}
}

func TestScan_FirstMatchWins(t *testing.T) {
	v, _ := newTestValidator()

	// Both "import sys" and "eval(" appear; "import sys" is earlier in the list.
	got := v.Scan("eval('2')\nimport sys")

	if got.Pattern != "import sys" {
		t.Errorf("Pattern = %q, want %q", got.Pattern, "import sys")
	}
}

func TestScan_LoopHeuristic(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		allowed bool
	}{
		{"five whiles allowed", strings.Repeat("while False: pass\n", 5), true},
		{"six whiles rejected", strings.Repeat("while False: pass\n", 6), false},
		{"ten fors allowed", strings.Repeat("for i in range(1): pass\n", 10), true},
		{"eleven fors rejected", strings.Repeat("for i in range(1): pass\n", 11), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, sink := newTestValidator()

			got := v.ScanAs("student", tt.source)

			if got.Allowed != tt.allowed {
				t.Fatalf("Allowed = %v, want %v (reason %q)", got.Allowed, tt.allowed, got.Reason)
			}
			if !tt.allowed {
				if got.Reason != ReasonExcessiveLoop {
					t.Errorf("Reason = %q, want %q", got.Reason, ReasonExcessiveLoop)
				}
				snap := sink.Snapshot()
				if n := snap.Counter("code_excessive_loops"); n != 1 {
					t.Errorf("code_excessive_loops = %d, want 1", n)
				}
				if n := snap.Counter("code_security_violation"); n != 1 {
					t.Errorf("code_security_violation = %d, want 1", n)
				}
			}
		})
	}
}

func TestScan_LoopHeuristicAudited(t *testing.T) {
	trail := audit.NewTrail(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	v, sink := newTestValidator(WithAudit(trail))

	got := v.ScanAs("student-3", strings.Repeat("for i in range(1): pass\n", 11))

	if got.Allowed {
		t.Fatal("Scan() allowed eleven for loops")
	}
	entries := trail.Recent(0)
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(entries))
	}
	if e := entries[0]; e.Event != audit.SecurityViolation || e.Actor != "student-3" || e.Detail != "loops: while=0 for=11" {
		t.Errorf("audit entry = %+v", e)
	}
	if n := sink.Snapshot().Counter("code_validation_passed"); n != 0 {
		t.Errorf("code_validation_passed = %d, want 0", n)
	}
}

func TestScan_SafeCode(t *testing.T) {
	v, sink := newTestValidator()

	src := "def add(a, b):\n    return a + b\n\nprint(add(2, 3))\n"
	got := v.Scan(src)

	if !got.Allowed {
		t.Fatalf("Scan() rejected safe code: %q", got.Reason)
	}
	if got.Reason != ReasonSafe {
		t.Errorf("Reason = %q, want %q", got.Reason, ReasonSafe)
	}
	if n := sink.Snapshot().Counter("code_validation_passed"); n != 1 {
		t.Errorf("code_validation_passed = %d, want 1", n)
	}
}

func TestScan_ExtraPatternsAndAudit(t *testing.T) {
	var buf bytes.Buffer
	trail := audit.NewTrail(slog.New(slog.NewTextHandler(&buf, nil)))
	v, _ := newTestValidator(WithExtraPatterns("  Breakpoint(  ", ""), WithAudit(trail))

	got := v.ScanAs("student-7", "breakpoint()")

	if got.Allowed || got.Pattern != "breakpoint(" {
		t.Fatalf("Scan() = %+v, want rejection on breakpoint(", got)
	}
	entries := trail.Recent(0)
	if len(entries) != 1 || entries[0].Event != audit.SecurityViolation || entries[0].Actor != "student-7" {
		t.Errorf("audit entries = %+v, want one SECURITY_VIOLATION for student-7", entries)
	}
}
