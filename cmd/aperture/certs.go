package main

import (
	"github.com/spf13/cobra"
)

var certsCmd = &cobra.Command{
	Use:   "certs",
	Short: "Manage TLS certificates",
	Long: `Inspect, validate, and generate TLS certificates for the gateway
listener.

Subcommands:
  validate - Check a certificate/key pair and optionally its chain
  info     - Print certificate details as text or JSON
  generate - Mint a self-signed pair for local development

Examples:
  aperture certs validate --cert server.crt --key server.key
  aperture certs info server.crt
  aperture certs generate --host localhost`,
}

func init() {
	rootCmd.AddCommand(certsCmd)
}
