package secrets

import (
	"context"
	"fmt"
)

// The cloud KMS and Vault providers below are recognized configuration
// shapes without a live client behind them yet: they hold their
// connection settings, report their names, and decline every lookup.
// Keeping them in the chain means a config written for a deployment
// that does use them still loads everywhere else.

// AWSKMSProvider holds AWS KMS connection settings.
type AWSKMSProvider struct {
	Enabled bool
	Region  string
	KeyID   string
}

// NewAWSKMSProvider builds the AWS KMS placeholder provider.
func NewAWSKMSProvider(region, keyID string, enabled bool) *AWSKMSProvider {
	return &AWSKMSProvider{Enabled: enabled, Region: region, KeyID: keyID}
}

// GetSecret always fails: no KMS client is wired yet.
func (p *AWSKMSProvider) GetSecret(ctx context.Context, name string) (string, error) {
	if !p.Enabled {
		return "", fmt.Errorf("AWS KMS provider not enabled")
	}
	return "", fmt.Errorf("AWS KMS provider has no client implementation")
}

// ListSecrets always fails: no KMS client is wired yet.
func (p *AWSKMSProvider) ListSecrets(ctx context.Context) ([]string, error) {
	if !p.Enabled {
		return nil, fmt.Errorf("AWS KMS provider not enabled")
	}
	return nil, fmt.Errorf("AWS KMS provider has no client implementation")
}

// Provider returns "aws_kms".
func (p *AWSKMSProvider) Provider() string { return "aws_kms" }

// Supports declines every name so the chain falls through.
func (p *AWSKMSProvider) Supports(name string) bool { return false }

// GCPKMSProvider holds GCP KMS connection settings.
type GCPKMSProvider struct {
	Enabled  bool
	Project  string
	Location string
	KeyRing  string
	Key      string
}

// NewGCPKMSProvider builds the GCP KMS placeholder provider.
func NewGCPKMSProvider(project, location, keyRing, key string, enabled bool) *GCPKMSProvider {
	return &GCPKMSProvider{
		Enabled:  enabled,
		Project:  project,
		Location: location,
		KeyRing:  keyRing,
		Key:      key,
	}
}

// GetSecret always fails: no KMS client is wired yet.
func (p *GCPKMSProvider) GetSecret(ctx context.Context, name string) (string, error) {
	if !p.Enabled {
		return "", fmt.Errorf("GCP KMS provider not enabled")
	}
	return "", fmt.Errorf("GCP KMS provider has no client implementation")
}

// ListSecrets always fails: no KMS client is wired yet.
func (p *GCPKMSProvider) ListSecrets(ctx context.Context) ([]string, error) {
	if !p.Enabled {
		return nil, fmt.Errorf("GCP KMS provider not enabled")
	}
	return nil, fmt.Errorf("GCP KMS provider has no client implementation")
}

// Provider returns "gcp_kms".
func (p *GCPKMSProvider) Provider() string { return "gcp_kms" }

// Supports declines every name so the chain falls through.
func (p *GCPKMSProvider) Supports(name string) bool { return false }

// VaultProvider holds HashiCorp Vault connection settings.
type VaultProvider struct {
	Enabled bool
	Address string
	Token   string
	Path    string
}

// NewVaultProvider builds the Vault placeholder provider.
func NewVaultProvider(address, token, path string, enabled bool) *VaultProvider {
	return &VaultProvider{Enabled: enabled, Address: address, Token: token, Path: path}
}

// GetSecret always fails: no Vault client is wired yet.
func (p *VaultProvider) GetSecret(ctx context.Context, name string) (string, error) {
	if !p.Enabled {
		return "", fmt.Errorf("vault provider not enabled")
	}
	return "", fmt.Errorf("vault provider has no client implementation")
}

// ListSecrets always fails: no Vault client is wired yet.
func (p *VaultProvider) ListSecrets(ctx context.Context) ([]string, error) {
	if !p.Enabled {
		return nil, fmt.Errorf("vault provider not enabled")
	}
	return nil, fmt.Errorf("vault provider has no client implementation")
}

// Provider returns "vault".
func (p *VaultProvider) Provider() string { return "vault" }

// Supports declines every name so the chain falls through.
func (p *VaultProvider) Supports(name string) bool { return false }
