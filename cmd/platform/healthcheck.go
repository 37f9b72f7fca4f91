package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sakif/debugging-platform/internal/config"
	"github.com/sakif/debugging-platform/internal/health"
	"github.com/sakif/debugging-platform/internal/logger"
	sqliteRepo "github.com/sakif/debugging-platform/internal/repository/sqlite"
)

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check database, disk and memory; exit 1 if unhealthy",
	Long: `Run the health checks in-process and print the result.

Suitable as a container HEALTHCHECK. The exit status is 0 when every
check passes (warnings included) and 1 otherwise.`,
	Args: cobra.NoArgs,
	RunE: runHealthcheck,
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
}

var errUnhealthy = errors.New("unhealthy")

func runHealthcheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return err
	}

	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	checker := health.New(db, logger.Discard())
	report := checker.Status(ctx)
	out := cmd.OutOrStdout()

	if !report.Healthy {
		fmt.Fprintln(out, "Status: Unhealthy")
		for name, check := range report.Checks {
			if check.Status != health.StatusOK {
				fmt.Fprintf(out, "  %s: %s\n", name, check.Message)
			}
		}
		return errUnhealthy
	}

	sys := checker.System(ctx)
	fmt.Fprintln(out, "Status: Healthy")
	for _, name := range []string{"database", "disk_space", "memory"} {
		fmt.Fprintf(out, "  %s: %s\n", name, report.Checks[name].Message)
	}
	fmt.Fprintln(out, "\nMetrics:")
	fmt.Fprintf(out, "  CPU: %.1f%%\n", sys.CPUPercent)
	fmt.Fprintf(out, "  Memory: %.1f%%\n", sys.MemoryPercent)
	fmt.Fprintf(out, "  Disk: %.1f%%\n", sys.DiskPercent)
	return nil
}
