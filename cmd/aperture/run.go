package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"aperturegw/gateway/pkg/cli"
	"aperturegw/gateway/pkg/config"
	"aperturegw/gateway/pkg/supervisor"
	"aperturegw/gateway/pkg/telemetry/logging"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gateway proxy server",
	Long: `Start the gateway proxy server with the specified configuration.

The server listens on the configured address and proxies requests through
the auth resolver, credential pool, and provider pipeline.

Examples:
  # Start with default config
  aperture run

  # Start with custom config
  aperture run --config /etc/aperture/config.yaml

  # Override listen address
  aperture run --listen 0.0.0.0:8080

  # Validate config without starting server
  aperture run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting server")
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	if runFlags.listenAddress != "" {
		cfg.Proxy.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}

	tlog, err := logging.New(logging.Config{
		Level:      cfg.Telemetry.Logging.Level,
		Format:     cfg.Telemetry.Logging.Format,
		AddSource:  cfg.Telemetry.Logging.AddSource,
		RedactPII:  cfg.Telemetry.Logging.RedactPII,
		BufferSize: 10000,
		Writer:     os.Stdout,
	})
	if err != nil {
		return cli.NewConfigError("telemetry.logging", fmt.Sprintf("invalid logging config: %v", err))
	}
	defer tlog.Shutdown()
	slog.SetDefault(tlog.SlogLogger())

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	printBanner(cfg)

	slog.Info("initializing gateway", "store_backend", cfg.Gateway.Store.Backend)
	sup, err := supervisor.New(cfg)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to wire gateway: %w", err))
	}

	fmt.Println("✓ Gateway components wired (store, health, reset scheduler, oauth refresh, auth resolver, credential pool, tracer)")
	fmt.Printf("✓ Listening on %s\n", cfg.Proxy.ListenAddress)
	fmt.Println("\nPress Ctrl+C to stop")

	ctx := context.Background()
	if err := sup.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Println("✓ Server stopped")
	return nil
}

func printBanner(cfg *config.Config) {
	fmt.Printf("Aperture Gateway v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	if len(cfg.Gateway.OAuthProviders) > 0 {
		slog.Debug("oauth providers configured", "count", len(cfg.Gateway.OAuthProviders))
	}
}
