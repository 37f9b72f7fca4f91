// Package safety screens submitted Python source before it is executed.
//
// The screen is a cheap first pass: a case-insensitive substring deny-list
// plus a loop-count heuristic. It is NOT the isolation boundary. Code that
// slips past it still runs inside the executor's restricted harness and
// sandbox backend.
package safety

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/debugging-platform/internal/audit"
	"github.com/sakif/debugging-platform/internal/metrics"
)

// Loop heuristics. More occurrences than these are rejected.
const (
	MaxWhileKeywords = 5
	MaxForKeywords   = 10
)

// Reasons returned in a Verdict.
const (
	ReasonSafe          = "Code is safe"
	ReasonExcessiveLoop = "Too many loops detected (potential infinite loop)"
)

// Metric names.
const (
	metricPassed    = "code_validation_passed"
	metricViolation = "code_security_violation"
	metricLoops     = "code_excessive_loops"
)

// DefaultDenyList is checked in order; the first match decides the reason.
var DefaultDenyList = []string{
	"import os",
	"import sys",
	"import subprocess",
	"import socket",
	"import requests",
	"__import__",
	"eval(",
	"exec(",
	"compile(",
	"open(",
	"file(",
	"input(",
	"raw_input(",
	"import shutil",
	"import pickle",
	"import marshal",
	"import ctypes",
	"import multiprocessing",
	"__builtins__",
	"globals(",
	"locals(",
	"delattr",
	"setattr",
	"getattr",
	"from os",
	"from sys",
	"from subprocess",
	"from socket",
	"import importlib",
	"__class__",
	"__subclasses__",
	"__globals__",
	"vars(",
}

// Verdict is the result of a scan.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	Pattern string `json:"pattern,omitempty"` // the deny-list entry that matched, if any
}

// Option configures a Validator.
type Option func(*Validator)

// WithExtraPatterns appends operator-supplied patterns to the deny-list.
func WithExtraPatterns(patterns ...string) Option {
	return func(v *Validator) {
		for _, p := range patterns {
			p = strings.ToLower(strings.TrimSpace(p))
			if p != "" {
				v.patterns = append(v.patterns, p)
			}
		}
	}
}

// WithAudit reports rejections to the security audit trail.
func WithAudit(trail *audit.Trail) Option {
	return func(v *Validator) { v.audit = trail }
}

// Validator decides whether source text may be executed.
// It holds no mutable state after construction and is safe for concurrent use.
type Validator struct {
	patterns []string
	metrics  *metrics.Sink
	logger   *slog.Logger
	audit    *audit.Trail
}

// New creates a Validator with the default deny-list.
func New(sink *metrics.Sink, logger *slog.Logger, opts ...Option) *Validator {
	v := &Validator{
		patterns: append([]string(nil), DefaultDenyList...),
		metrics:  sink,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Scan checks source and returns a verdict.
func (v *Validator) Scan(source string) Verdict {
	return v.ScanAs("anonymous", source)
}

// ScanAs is Scan with the submitting actor named in logs and audit entries.
func (v *Validator) ScanAs(actor, source string) Verdict {
	lowered := strings.ToLower(source)

	for _, pattern := range v.patterns {
		if strings.Contains(lowered, pattern) {
			v.metrics.Increment(metricViolation)
			v.logger.Warn("security violation in submitted code",
				slog.String("actor", actor),
				slog.String("pattern", pattern),
			)
			if v.audit != nil {
				v.audit.Record(audit.SecurityViolation, actor, "pattern: "+pattern)
			}
			return Verdict{
				Allowed: false,
				Reason:  fmt.Sprintf("Dangerous operation detected: %s", pattern),
				Pattern: pattern,
			}
		}
	}

	whiles, fors := strings.Count(source, "while"), strings.Count(source, "for")
	if whiles > MaxWhileKeywords || fors > MaxForKeywords {
		v.metrics.Increment(metricViolation)
		v.metrics.Increment(metricLoops)
		detail := fmt.Sprintf("loops: while=%d for=%d", whiles, fors)
		v.logger.Warn("excessive loops in submitted code",
			slog.String("actor", actor),
			slog.Int("while", whiles),
			slog.Int("for", fors),
		)
		if v.audit != nil {
			v.audit.Record(audit.SecurityViolation, actor, detail)
		}
		return Verdict{Allowed: false, Reason: ReasonExcessiveLoop}
	}

	v.metrics.Increment(metricPassed)
	return Verdict{Allowed: true, Reason: ReasonSafe}
}
