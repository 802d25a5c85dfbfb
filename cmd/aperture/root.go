package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "aperture",
	Short: "Aperture Gateway - multi-tenant AI-provider reverse proxy",
	Long: `Aperture Gateway is a reverse proxy for LLM provider APIs.

It authenticates inbound clients against per-tenant service APIs and
forwards their requests upstream, providing:
  - Per-tenant credential pools with round-robin, weighted, and
    health-based key scheduling
  - Automatic rate-limit recovery and proactive OAuth token refresh
  - Immediate two-phase request tracing with token and cost extraction
  - Configurable auth boundaries between management and proxy surfaces

For more information, visit: https://github.com/aperturegw/gateway`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Disable default completion command (we'll add our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
