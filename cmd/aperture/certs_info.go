package main

import (
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"time"

	securityTLS "aperturegw/gateway/pkg/security/tls"

	"github.com/spf13/cobra"
)

var infoFlags struct {
	format string
}

var certsInfoCmd = &cobra.Command{
	Use:   "info [cert-file]",
	Short: "Display certificate details",
	Long: `Print a certificate's subject, issuer, validity window, SANs, and
algorithms, as text or as JSON for scripting.

Examples:
  aperture certs info server.crt
  aperture certs info --format json server.crt`,
	Args: cobra.ExactArgs(1),
	RunE: displayCertInfo,
}

func init() {
	certsCmd.AddCommand(certsInfoCmd)
	certsInfoCmd.Flags().StringVar(&infoFlags.format, "format", "text", "output format: text, json")
}

func loadPEMCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("failed to parse certificate PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}

func displayCertInfo(cmd *cobra.Command, args []string) error {
	cert, err := loadPEMCertificate(args[0])
	if err != nil {
		return err
	}

	if infoFlags.format == "json" {
		return printCertJSON(cert)
	}
	return printCertText(cert, args[0])
}

func printCertText(cert *x509.Certificate, file string) error {
	info := securityTLS.ExtractCertificateInfo(cert)

	fmt.Printf("Certificate: %s\n\n", file)
	fmt.Printf("Subject:  %s\n", info.Subject)
	fmt.Printf("Issuer:   %s\n", info.Issuer)
	fmt.Printf("Serial:   %s\n", info.SerialNumber)

	fmt.Println("\nValidity:")
	fmt.Printf("  Not Before: %s\n", info.NotBefore.Format(time.RFC3339))
	fmt.Printf("  Not After:  %s\n", info.NotAfter.Format(time.RFC3339))
	if time.Now().After(info.NotAfter) {
		fmt.Printf("  Status:     ✗ EXPIRED on %s\n", info.NotAfter.Format("2006-01-02"))
	} else {
		days, warning := securityTLS.CheckCertificateExpiration(cert)
		fmt.Printf("  Status:     ✓ Valid (%d days remaining)\n", days)
		if warning != "" {
			fmt.Printf("  Warning:    ⚠  %s\n", warning)
		}
	}

	if len(info.DNSNames) > 0 || len(info.IPAddresses) > 0 {
		fmt.Println("\nSubject Alternative Names:")
		for _, san := range info.DNSNames {
			fmt.Printf("  - DNS: %s\n", san)
		}
		for _, ip := range info.IPAddresses {
			fmt.Printf("  - IP: %s\n", ip)
		}
	}

	fmt.Println("\nAlgorithms:")
	fmt.Printf("  Signature:  %s\n", info.SignatureAlgorithm)
	fmt.Printf("  Public Key: %s\n", info.PublicKeyAlgorithm)
	fmt.Printf("\nIs CA: %v\n", cert.IsCA)

	return nil
}

func printCertJSON(cert *x509.Certificate) error {
	info := securityTLS.ExtractCertificateInfo(cert)
	days, _ := securityTLS.CheckCertificateExpiration(cert)

	data := map[string]any{
		"subject":              info.Subject,
		"issuer":               info.Issuer,
		"serial_number":        info.SerialNumber,
		"not_before":           info.NotBefore.Format(time.RFC3339),
		"not_after":            info.NotAfter.Format(time.RFC3339),
		"days_remaining":       days,
		"is_expired":           time.Now().After(info.NotAfter),
		"dns_names":            info.DNSNames,
		"ip_addresses":         info.IPAddresses,
		"signature_algorithm":  info.SignatureAlgorithm,
		"public_key_algorithm": info.PublicKeyAlgorithm,
		"is_ca":                cert.IsCA,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
