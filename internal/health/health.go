// Package health reports whether the platform can serve requests and how
// loaded the host is.
//
// CHECKS:
//
//	database   → Ping on the store
//	disk_space → usage of the data volume, warn above 80%, fail above 90%
//	memory     → virtual memory usage, same thresholds
//	sandbox    → optional, Ping on the execution backend (docker only)
//
// A warning keeps the report healthy; only an error flips it.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
)

const (
	WarnPercent     = 80.0
	CriticalPercent = 90.0

	// cpuSampleWindow is how long System samples CPU usage for.
	cpuSampleWindow = 100 * time.Millisecond
)

// Check statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Pinger is anything that can report its own liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check is the outcome of one probe.
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Report is the overall health of the process.
type Report struct {
	Healthy   bool             `json:"healthy"`
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]Check `json:"checks"`
}

// SystemMetrics is a point-in-time view of host resources.
type SystemMetrics struct {
	CPUPercent    float64 `json:"cpuPercent"`
	MemoryPercent float64 `json:"memoryPercent"`
	MemoryUsedMB  float64 `json:"memoryUsedMB"`
	MemoryTotalMB float64 `json:"memoryTotalMB"`
	DiskPercent   float64 `json:"diskPercent"`
	DiskUsedGB    float64 `json:"diskUsedGB"`
	DiskTotalGB   float64 `json:"diskTotalGB"`
}

// usage is what the memory and disk probes return.
type usage struct {
	Percent float64
	Used    uint64
	Total   uint64
}

// Checker runs the probes. The zero value is not usable; call New.
type Checker struct {
	db       Pinger
	sandbox  Pinger
	diskPath string
	logger   *slog.Logger
	now      func() time.Time

	cpuUsage    func(ctx context.Context) (float64, error)
	memoryUsage func(ctx context.Context) (usage, error)
	diskUsage   func(ctx context.Context, path string) (usage, error)
}

// Option configures a Checker.
type Option func(*Checker)

// WithSandbox adds a "sandbox" check backed by p.
func WithSandbox(p Pinger) Option {
	return func(c *Checker) { c.sandbox = p }
}

// WithDiskPath measures the volume holding path instead of "/".
func WithDiskPath(path string) Option {
	return func(c *Checker) {
		if path != "" {
			c.diskPath = path
		}
	}
}

// New creates a Checker for db.
func New(db Pinger, logger *slog.Logger, opts ...Option) *Checker {
	c := &Checker{
		db:          db,
		diskPath:    "/",
		logger:      logger,
		now:         time.Now,
		cpuUsage:    cpuPercent,
		memoryUsage: memoryUsage,
		diskUsage:   diskUsage,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Status runs every check and reports healthy only if none failed.
func (c *Checker) Status(ctx context.Context) Report {
	checks := map[string]Check{
		"database":   c.checkDatabase(ctx),
		"disk_space": c.checkUsage(ctx, "Disk space", func(ctx context.Context) (usage, error) { return c.diskUsage(ctx, c.diskPath) }),
		"memory":     c.checkUsage(ctx, "Memory", c.memoryUsage),
	}
	if c.sandbox != nil {
		checks["sandbox"] = c.checkSandbox(ctx)
	}

	healthy := true
	for name, check := range checks {
		if check.Status != StatusOK {
			healthy = false
			c.logger.Warn("health check failed", slog.String("check", name), slog.String("message", check.Message))
		}
	}

	return Report{
		Healthy:   healthy,
		Timestamp: c.now().UTC(),
		Checks:    checks,
	}
}

// System samples host resources. Probes that fail are left at zero and logged.
func (c *Checker) System(ctx context.Context) SystemMetrics {
	var m SystemMetrics

	if pct, err := c.cpuUsage(ctx); err != nil {
		c.logger.Error("failed to sample cpu", slog.String("error", err.Error()))
	} else {
		m.CPUPercent = pct
	}

	if u, err := c.memoryUsage(ctx); err != nil {
		c.logger.Error("failed to read memory usage", slog.String("error", err.Error()))
	} else {
		m.MemoryPercent = u.Percent
		m.MemoryUsedMB = float64(u.Used) / (1 << 20)
		m.MemoryTotalMB = float64(u.Total) / (1 << 20)
	}

	if u, err := c.diskUsage(ctx, c.diskPath); err != nil {
		c.logger.Error("failed to read disk usage", slog.String("error", err.Error()))
	} else {
		m.DiskPercent = u.Percent
		m.DiskUsedGB = float64(u.Used) / (1 << 30)
		m.DiskTotalGB = float64(u.Total) / (1 << 30)
	}

	return m
}

func (c *Checker) checkDatabase(ctx context.Context) Check {
	if err := c.db.Ping(ctx); err != nil {
		return Check{Status: StatusError, Message: "Database error: " + err.Error()}
	}
	return Check{Status: StatusOK, Message: "Database OK"}
}

func (c *Checker) checkSandbox(ctx context.Context) Check {
	if err := c.sandbox.Ping(ctx); err != nil {
		return Check{Status: StatusError, Message: "Sandbox error: " + err.Error()}
	}
	return Check{Status: StatusOK, Message: "Sandbox OK"}
}

// checkUsage applies the warn and critical thresholds to a usage probe.
func (c *Checker) checkUsage(ctx context.Context, label string, probe func(context.Context) (usage, error)) Check {
	u, err := probe(ctx)
	if err != nil {
		return Check{Status: StatusError, Message: fmt.Sprintf("%s check error: %v", label, err)}
	}
	switch {
	case u.Percent > CriticalPercent:
		return Check{Status: StatusError, Message: fmt.Sprintf("%s critical: %.1f%% used", label, u.Percent)}
	case u.Percent > WarnPercent:
		return Check{Status: StatusOK, Message: fmt.Sprintf("%s warning: %.1f%% used", label, u.Percent)}
	default:
		return Check{Status: StatusOK, Message: fmt.Sprintf("%s OK: %.1f%% used", label, u.Percent)}
	}
}

// ===== gopsutil probes =====

func cpuPercent(ctx context.Context) (float64, error) {
	pcts, err := cpu.PercentWithContext(ctx, cpuSampleWindow, false)
	if err != nil {
		return 0, err
	}
	if len(pcts) == 0 {
		return 0, fmt.Errorf("health: no cpu samples")
	}
	return pcts[0], nil
}

func memoryUsage(ctx context.Context) (usage, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return usage{}, err
	}
	return usage{Percent: vm.UsedPercent, Used: vm.Used, Total: vm.Total}, nil
}

func diskUsage(ctx context.Context, path string) (usage, error) {
	du, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return usage{}, err
	}
	return usage{Percent: du.UsedPercent, Used: du.Used, Total: du.Total}, nil
}
