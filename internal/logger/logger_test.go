package logger

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sakif/debugging-platform/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"Error", slog.LevelError},
		{"critical", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewAudit_WritesToRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "audit.log")
	cfg := config.LogConfig{
		Level:      "info",
		Format:     "json",
		AuditFile:  path,
		MaxSizeMB:  1,
		MaxBackups: 1,
	}

	audit, closer, err := NewAudit(cfg)
	if err != nil {
		t.Fatalf("NewAudit() error = %v", err)
	}
	audit.Info("ACCOUNT_LOCKED", slog.String("actor", "student@example.com"))
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading audit log: %v", err)
	}
	line := string(data)
	for _, want := range []string{`"component":"audit"`, `"msg":"ACCOUNT_LOCKED"`, `"actor":"student@example.com"`} {
		if !strings.Contains(line, want) {
			t.Errorf("audit log %q missing %s", line, want)
		}
	}
}

func TestNew_StdoutOnly(t *testing.T) {
	log, closer, err := New(config.LogConfig{Level: "debug"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !log.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("logger should have debug enabled")
	}
	if err := closer.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
