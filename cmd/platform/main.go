// Command platform runs the debugging platform.
//
//	platform serve        start the HTTP API
//	platform healthcheck  check database, disk and memory, exit 1 if unhealthy
//	platform check FILE   validate and run one Python file in the sandbox
//
// Configuration comes from the environment (see internal/config), with an
// optional YAML file given by --config.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "platform",
	Short: "Python debugging practice platform",
	Long: `platform serves the debugging practice API: students register, log in,
and run or submit Python code that is screened and then executed in a sandbox.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to a YAML config file (environment still overrides it)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
