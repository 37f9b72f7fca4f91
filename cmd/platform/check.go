package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/debugging-platform/internal/config"
	"github.com/sakif/debugging-platform/internal/executor"
	"github.com/sakif/debugging-platform/internal/logger"
	"github.com/sakif/debugging-platform/internal/metrics"
	"github.com/sakif/debugging-platform/internal/safety"
)

var validateOnly bool

var checkCmd = &cobra.Command{
	Use:   "check FILE",
	Short: "Validate and run a Python file in the configured sandbox",
	Long: `Screen a Python file with the same validator the API uses, then run it
in the configured sandbox and print what a student would see.

Examples:
  platform check solution.py
  platform check --validate-only solution.py
  SANDBOX_BACKEND=docker platform check solution.py`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&validateOnly, "validate-only", false, "Only run the safety scan")
	rootCmd.AddCommand(checkCmd)
}

var errCheckFailed = errors.New("check failed")

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return err
	}

	src, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}
	code := string(src)
	out := cmd.OutOrStdout()

	log := logger.Discard()
	if cfg.Debug {
		log = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	sink := metrics.NewSink(nil)

	verdict := safety.New(sink, log, safety.WithExtraPatterns(cfg.Security.ExtraDenyPatterns...)).Scan(code)
	if !verdict.Allowed {
		fmt.Fprintf(out, "Security Error: %s\n", verdict.Reason)
		return errCheckFailed
	}
	if validateOnly {
		fmt.Fprintln(out, verdict.Reason)
		return nil
	}

	box, err := newSandbox(cfg, sink, log)
	if err != nil {
		return err
	}
	defer box.close()

	res := box.engine.Run(cmd.Context(), executor.ExecutionRequest{Code: code, Actor: "cli"})
	printResult(out, res)
	if !res.Success {
		return errCheckFailed
	}
	return nil
}

func printResult(w io.Writer, res *executor.ExecutionResult) {
	if res.Stdout != "" {
		fmt.Fprint(w, res.Stdout)
		if res.Stdout[len(res.Stdout)-1] != '\n' {
			fmt.Fprintln(w)
		}
	}
	if res.Success {
		fmt.Fprintf(w, "OK (%.3fs)\n", res.ElapsedSeconds)
		return
	}
	fmt.Fprintf(w, "%s\n[%s, %.3fs]\n", res.Stderr, res.ErrorKind, res.ElapsedSeconds)
}
