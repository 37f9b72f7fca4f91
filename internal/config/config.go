// Package config loads the platform configuration.
//
// WHERE DO VALUES COME FROM?
// Every setting has a safe default. Environment variables override the
// defaults, and an optional YAML file (passed with --config) sits in between:
//
//	defaults  <  config file  <  environment
//
// The env var names are the upper-cased keys below, e.g. MAX_CODE_LENGTH.
// viper handles the lookup; this package turns the flat keys into one
// typed Config value that main.go injects into every component.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Sandbox backend names accepted by SANDBOX_BACKEND.
const (
	BackendProcess = "process"
	BackendDocker  = "docker"
)

// minAdminPasswordLength mirrors the password strength rule in the security package.
const minAdminPasswordLength = 8

// Config is the root configuration value.
type Config struct {
	Port       int
	DBPath     string
	Production bool
	Debug      bool

	Log       LogConfig
	Execution ExecutionConfig
	RateLimit RateLimitConfig
	Security  SecurityConfig
	Sandbox   SandboxConfig
	Admin     AdminConfig
}

// LogConfig controls the application and audit loggers.
type LogConfig struct {
	Level      string // debug, info, warn, error
	Format     string // text or json
	File       string // empty = stdout only
	AuditFile  string // empty = stdout
	MaxSizeMB  int
	MaxBackups int
}

// ExecutionConfig bounds a single code run.
type ExecutionConfig struct {
	TimeoutSeconds  int
	MaxCodeLength   int
	MaxOutputLength int
}

// RateLimitConfig holds the per-minute ceilings for each request class.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	CodeRunsPerMinute int
}

// SecurityConfig holds lockout and session settings.
type SecurityConfig struct {
	MaxLoginAttempts      int
	LockoutSeconds        int
	SessionTimeoutSeconds int
	// ExtraDenyPatterns are added to the validator's built-in deny-list.
	ExtraDenyPatterns []string
}

// SandboxConfig selects and tunes the isolation backend.
type SandboxConfig struct {
	Backend     string
	Python      string
	MemoryMB    int
	DockerImage string
	PoolSize    int
	CPULimit    float64
}

// AdminConfig is used to bootstrap the first admin account.
type AdminConfig struct {
	Email    string
	Password string
}

// setDefaults registers every key so that AutomaticEnv can override it.
// viper only consults the environment for keys it already knows about.
func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("db_path", "data/platform.db")
	v.SetDefault("production", false)
	v.SetDefault("debug", false)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_file", "")
	v.SetDefault("audit_log_file", "")
	v.SetDefault("log_max_size_mb", 10)
	v.SetDefault("log_max_backups", 5)

	v.SetDefault("code_execution_timeout", 5)
	v.SetDefault("max_code_length", 10000)
	v.SetDefault("max_output_length", 5000)

	v.SetDefault("rate_limit_enabled", true)
	v.SetDefault("max_requests_per_minute", 60)
	v.SetDefault("max_code_runs_per_minute", 10)

	v.SetDefault("max_login_attempts", 5)
	v.SetDefault("lockout_duration", 900)
	v.SetDefault("session_timeout", 3600)
	v.SetDefault("safety_extra_patterns", "")

	v.SetDefault("sandbox_backend", BackendProcess)
	v.SetDefault("sandbox_python", "python3")
	v.SetDefault("sandbox_memory_mb", 128)
	v.SetDefault("sandbox_docker_image", "python:3.12-alpine")
	v.SetDefault("sandbox_pool_size", 3)
	v.SetDefault("sandbox_cpu_limit", 0.5)

	v.SetDefault("admin_email", "admin@platform.com")
	v.SetDefault("admin_password", "")
}

// Load reads defaults, the optional config file and the environment,
// then validates the result. path may be empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration with every key at its default value.
// Handy for tests and for the CLI commands that run without a server.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	return fromViper(v)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Port:       v.GetInt("port"),
		DBPath:     v.GetString("db_path"),
		Production: v.GetBool("production"),
		Debug:      v.GetBool("debug"),
		Log: LogConfig{
			Level:      v.GetString("log_level"),
			Format:     v.GetString("log_format"),
			File:       v.GetString("log_file"),
			AuditFile:  v.GetString("audit_log_file"),
			MaxSizeMB:  v.GetInt("log_max_size_mb"),
			MaxBackups: v.GetInt("log_max_backups"),
		},
		Execution: ExecutionConfig{
			TimeoutSeconds:  v.GetInt("code_execution_timeout"),
			MaxCodeLength:   v.GetInt("max_code_length"),
			MaxOutputLength: v.GetInt("max_output_length"),
		},
		RateLimit: RateLimitConfig{
			Enabled:           v.GetBool("rate_limit_enabled"),
			RequestsPerMinute: v.GetInt("max_requests_per_minute"),
			CodeRunsPerMinute: v.GetInt("max_code_runs_per_minute"),
		},
		Security: SecurityConfig{
			MaxLoginAttempts:      v.GetInt("max_login_attempts"),
			LockoutSeconds:        v.GetInt("lockout_duration"),
			SessionTimeoutSeconds: v.GetInt("session_timeout"),
			ExtraDenyPatterns:     splitList(v.GetString("safety_extra_patterns")),
		},
		Sandbox: SandboxConfig{
			Backend:     strings.ToLower(v.GetString("sandbox_backend")),
			Python:      v.GetString("sandbox_python"),
			MemoryMB:    v.GetInt("sandbox_memory_mb"),
			DockerImage: v.GetString("sandbox_docker_image"),
			PoolSize:    v.GetInt("sandbox_pool_size"),
			CPULimit:    v.GetFloat64("sandbox_cpu_limit"),
		},
		Admin: AdminConfig{
			Email:    v.GetString("admin_email"),
			Password: v.GetString("admin_password"),
		},
	}
}

// Validate rejects settings the rest of the platform cannot run with.
// In production it also refuses debug mode and a weak admin password.
func (c *Config) Validate() error {
	var errs []error

	positive := []struct {
		name  string
		value int
	}{
		{"CODE_EXECUTION_TIMEOUT", c.Execution.TimeoutSeconds},
		{"MAX_CODE_LENGTH", c.Execution.MaxCodeLength},
		{"MAX_OUTPUT_LENGTH", c.Execution.MaxOutputLength},
		{"MAX_REQUESTS_PER_MINUTE", c.RateLimit.RequestsPerMinute},
		{"MAX_CODE_RUNS_PER_MINUTE", c.RateLimit.CodeRunsPerMinute},
		{"MAX_LOGIN_ATTEMPTS", c.Security.MaxLoginAttempts},
		{"LOCKOUT_DURATION", c.Security.LockoutSeconds},
		{"SESSION_TIMEOUT", c.Security.SessionTimeoutSeconds},
		{"SANDBOX_MEMORY_MB", c.Sandbox.MemoryMB},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", p.name, p.value))
		}
	}

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}

	switch c.Sandbox.Backend {
	case BackendProcess:
		if c.Sandbox.Python == "" {
			errs = append(errs, errors.New("SANDBOX_PYTHON must not be empty"))
		}
	case BackendDocker:
		if c.Sandbox.DockerImage == "" {
			errs = append(errs, errors.New("SANDBOX_DOCKER_IMAGE must not be empty"))
		}
		if c.Sandbox.PoolSize <= 0 {
			errs = append(errs, fmt.Errorf("SANDBOX_POOL_SIZE must be positive, got %d", c.Sandbox.PoolSize))
		}
	default:
		errs = append(errs, fmt.Errorf("SANDBOX_BACKEND must be %q or %q, got %q",
			BackendProcess, BackendDocker, c.Sandbox.Backend))
	}

	if c.Production {
		if c.Debug {
			errs = append(errs, errors.New("DEBUG must be false in production"))
		}
		if len(c.Admin.Password) < minAdminPasswordLength {
			errs = append(errs, errors.New("ADMIN_PASSWORD must be set to a strong value in production"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// ExecutionTimeout is the per-run deadline.
func (c *Config) ExecutionTimeout() time.Duration {
	return time.Duration(c.Execution.TimeoutSeconds) * time.Second
}

// LockoutDuration is both the failure-counting window and the lock length.
func (c *Config) LockoutDuration() time.Duration {
	return time.Duration(c.Security.LockoutSeconds) * time.Second
}

// SessionTimeout is the idle timeout for sessions.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.Security.SessionTimeoutSeconds) * time.Second
}

// SandboxMemoryBytes converts SANDBOX_MEMORY_MB to bytes.
func (c *Config) SandboxMemoryBytes() int64 {
	return int64(c.Sandbox.MemoryMB) * 1024 * 1024
}

// splitList parses a comma-separated env value, dropping empty entries.
func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
