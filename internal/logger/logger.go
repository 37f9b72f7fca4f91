// Package logger builds the slog loggers used across the platform.
//
// TWO LOGGERS:
//   - the application logger: requests, executions, operator errors
//   - the audit logger: login lockouts, session lifecycle, security violations
//
// Both write to stdout, and to a size-rotated file when one is configured.
// Rotation is handled by lumberjack, which implements io.WriteCloser and
// rolls the file over once it reaches MaxSize megabytes.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sakif/debugging-platform/internal/config"
)

// nopCloser is returned when no file is involved.
type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ParseLevel maps a LOG_LEVEL string to a slog level. Unknown values fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "critical":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns the application logger. The returned Closer flushes and closes
// the rotated file, if any; callers should defer it.
func New(cfg config.LogConfig) (*slog.Logger, io.Closer, error) {
	w, closer, err := output(cfg.File, cfg)
	if err != nil {
		return nil, nil, err
	}
	return slog.New(newHandler(w, cfg)), closer, nil
}

// NewAudit returns the security audit logger. Every entry carries component=audit.
func NewAudit(cfg config.LogConfig) (*slog.Logger, io.Closer, error) {
	w, closer, err := output(cfg.AuditFile, cfg)
	if err != nil {
		return nil, nil, err
	}
	return slog.New(newHandler(w, cfg)).With(slog.String("component", "audit")), closer, nil
}

// Discard returns a logger that drops everything. Used by tests and the CLI.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHandler(w io.Writer, cfg config.LogConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// output picks stdout, or stdout plus a rotated file when path is set.
func output(path string, cfg config.LogConfig) (io.Writer, io.Closer, error) {
	if path == "" {
		return os.Stdout, nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("logger: creating log directory for %s: %w", path, err)
	}

	rotated := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   false,
	}
	return io.MultiWriter(os.Stdout, rotated), rotated, nil
}
