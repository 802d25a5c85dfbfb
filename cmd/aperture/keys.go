package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"aperturegw/gateway/pkg/authresolver"
	"aperturegw/gateway/pkg/cli"
	"aperturegw/gateway/pkg/config"
	"aperturegw/gateway/pkg/gatewaydb"
)

var keysFlags struct {
	prefix string
	tenant string
	revoke bool
	reason string
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Provider-key and credential utilities",
	Long: `Operator utilities for gateway credentials.

Inbound clients authenticate with an opaque credential whose SHA-256
fingerprint is bound to a ServiceAPI. These subcommands generate fresh
credentials, compute fingerprints for binding, and inspect upstream
provider-key health.

Subcommands:
  generate     - Generate a new inbound credential and its fingerprint
  fingerprint  - Compute the fingerprint of an existing credential
  rate-limited - List provider keys currently rate-limited
  sessions     - List (or bulk-revoke) a tenant's OAuth sessions

Examples:
  # Mint a credential for a new ServiceAPI
  aperture keys generate

  # Fingerprint a credential a tenant already holds
  aperture keys fingerprint sk-my-inbound-token

  # Show keys waiting on a rate-limit reset
  aperture keys rate-limited --config /etc/aperture/config.yaml`,
}

var keysGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new inbound credential",
	Long: `Generate a cryptographically random inbound credential and print it
alongside its SHA-256 fingerprint.

Store the fingerprint on the ServiceAPI; hand the credential itself to
the tenant. The gateway never persists the raw credential.`,
	RunE: generateCredential,
}

var keysFingerprintCmd = &cobra.Command{
	Use:   "fingerprint <credential>",
	Short: "Compute a credential's fingerprint",
	Long: `Compute the SHA-256 fingerprint the auth resolver uses to look up the
ServiceAPI bound to a credential.`,
	Args: cobra.ExactArgs(1),
	RunE: fingerprintCredential,
}

var keysRateLimitedCmd = &cobra.Command{
	Use:   "rate-limited",
	Short: "List rate-limited provider keys",
	Long: `List every provider key the store currently records as rate_limited,
with its reset instant. The same listing seeds the reset scheduler's
crash recovery at startup.`,
	RunE: listRateLimitedKeys,
}

var keysSessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List or revoke a tenant's OAuth sessions",
	Long: `List a tenant's non-terminal OAuth sessions, or bulk-revoke them with
--revoke (e.g. when offboarding a tenant). Revocation marks each
session revoked with the given reason; the credential pool stops
selecting their backing keys on the next request.`,
	RunE: tenantSessions,
}

func init() {
	rootCmd.AddCommand(keysCmd)
	keysCmd.AddCommand(keysGenerateCmd, keysFingerprintCmd, keysRateLimitedCmd, keysSessionsCmd)

	keysGenerateCmd.Flags().StringVar(&keysFlags.prefix, "prefix", "agw", "credential prefix")

	keysSessionsCmd.Flags().StringVar(&keysFlags.tenant, "tenant", "", "tenant ID (required)")
	keysSessionsCmd.Flags().BoolVar(&keysFlags.revoke, "revoke", false, "revoke the listed sessions")
	keysSessionsCmd.Flags().StringVar(&keysFlags.reason, "reason", "revoked by operator", "revocation reason")
	_ = keysSessionsCmd.MarkFlagRequired("tenant")
}

// newCredential mints a random URL-safe credential with the given
// prefix, long enough that the fingerprint lookup is the only feasible
// way to match it.
func newCredential(prefix string) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate credential: %w", err)
	}
	return prefix + "_" + base64.RawURLEncoding.EncodeToString(raw), nil
}

func generateCredential(cmd *cobra.Command, args []string) error {
	credential, err := newCredential(keysFlags.prefix)
	if err != nil {
		return err
	}

	fmt.Printf("Credential:  %s\n", credential)
	fmt.Printf("Fingerprint: %s\n", authresolver.Fingerprint(credential))
	fmt.Println()
	fmt.Println("⚠️  Hand the credential to the tenant now; the gateway stores only the fingerprint")

	return nil
}

func fingerprintCredential(cmd *cobra.Command, args []string) error {
	fmt.Println(authresolver.Fingerprint(args[0]))
	return nil
}

// openConfiguredStore opens the store the running gateway persists to.
// Only the sqlite backend is reachable from a separate process.
func openConfiguredStore(op string) (gatewaydb.Store, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	switch cfg.Gateway.Store.Backend {
	case "", "memory":
		return nil, cli.NewConfigError("gateway.store.backend",
			"the memory backend holds no state outside a running gateway")
	case "sqlite":
		s, err := gatewaydb.NewSQLiteStore(&gatewaydb.SQLiteConfig{Path: cfg.Gateway.Store.SQLitePath})
		if err != nil {
			return nil, cli.NewCommandError(op, err)
		}
		return s, nil
	default:
		return nil, cli.NewConfigError("gateway.store.backend",
			fmt.Sprintf("unknown backend %q", cfg.Gateway.Store.Backend))
	}
}

func listRateLimitedKeys(cmd *cobra.Command, args []string) error {
	store, err := openConfiguredStore("keys rate-limited")
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	keys, err := store.ListRateLimitedKeys(ctx)
	if err != nil {
		return cli.NewCommandError("keys rate-limited", err)
	}

	if len(keys) == 0 {
		fmt.Println("No rate-limited keys")
		return nil
	}

	fmt.Printf("%-36s %-36s %s\n", "KEY", "TENANT", "RESETS AT")
	for _, k := range keys {
		resets := "unknown"
		if k.RateLimitResetsAt != nil {
			resets = k.RateLimitResetsAt.Format(time.RFC3339)
		}
		fmt.Printf("%-36s %-36s %s\n", k.ID, k.TenantID, resets)
	}
	return nil
}

func tenantSessions(cmd *cobra.Command, args []string) error {
	store, err := openConfiguredStore("keys sessions")
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if keysFlags.revoke {
		revoked, err := store.RevokeTenantSessions(ctx, keysFlags.tenant, keysFlags.reason)
		if err != nil {
			return cli.NewCommandError("keys sessions", err)
		}
		fmt.Printf("✓ Revoked %d session(s) for tenant %s\n", revoked, keysFlags.tenant)
		return nil
	}

	sessions, err := store.ListActiveSessionsForTenant(ctx, keysFlags.tenant)
	if err != nil {
		return cli.NewCommandError("keys sessions", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No active sessions")
		return nil
	}

	fmt.Printf("%-36s %-12s %s\n", "SESSION", "STATUS", "TOKEN EXPIRES")
	for _, s := range sessions {
		expires := "unknown"
		if s.ExpiresAt != nil {
			expires = s.ExpiresAt.Format(time.RFC3339)
		}
		fmt.Printf("%-36s %-12s %s\n", s.SessionID, s.Status, expires)
	}
	return nil
}
