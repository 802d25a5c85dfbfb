package tls

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"
)

// Config describes the proxy listener's TLS surface: server
// certificate, minimum version (1.2 or 1.3, never lower), optional
// cipher-suite pinning, certificate reload cadence, and optional mTLS.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// MinVersion is "1.2" or "1.3". Anything else falls back to 1.3;
	// 1.0 and 1.1 are not offered at all.
	MinVersion string `yaml:"min_version"`

	// CipherSuites pins the TLS 1.2 suite list. Empty uses Go's
	// defaults, which is almost always right.
	CipherSuites []string `yaml:"cipher_suites"`

	// ReloadInterval is how often the reloader polls the certificate
	// files for renewal, e.g. "5m".
	ReloadInterval string `yaml:"cert_reload_interval"`

	MTLS MTLSConfig `yaml:"mtls"`
}

// MTLSConfig describes client-certificate authentication.
type MTLSConfig struct {
	Enabled      bool   `yaml:"enabled"`
	ClientCAFile string `yaml:"client_ca_file"`

	// ClientAuthType is "require", "request", or "verify_if_given".
	// Unknown values harden to "require".
	ClientAuthType string `yaml:"client_auth_type"`

	VerifyClientCert bool `yaml:"verify_client_cert"`

	// IdentitySource selects where the client identity is read from:
	// "subject.CN" (default), "subject.OU", "subject.O", or "SAN".
	IdentitySource string `yaml:"identity_source"`
}

// ToTLSConfig materializes a crypto/tls.Config: certificate loaded and
// expiry-checked, version floor applied, mTLS CA pool built when
// enabled. Returns (nil, nil) when TLS is disabled.
func (c *Config) ToTLSConfig() (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}
	if c.CertFile == "" {
		return nil, fmt.Errorf("cert_file is required when TLS is enabled")
	}
	if c.KeyFile == "" {
		return nil, fmt.Errorf("key_file is required when TLS is enabled")
	}

	if _, err := os.Stat(c.CertFile); err != nil {
		return nil, fmt.Errorf("certificate file not found: %s: %w", c.CertFile, err)
	}
	if _, err := os.Stat(c.KeyFile); err != nil {
		return nil, fmt.Errorf("key file not found: %s: %w", c.KeyFile, err)
	}

	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	if err := ValidateCertificate(&cert); err != nil {
		return nil, fmt.Errorf("certificate validation failed: %w", err)
	}

	out := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   c.minVersion(),
		CipherSuites: c.cipherSuites(),
	}

	if c.MTLS.Enabled {
		if err := c.applyMTLS(out); err != nil {
			return nil, fmt.Errorf("failed to configure mTLS: %w", err)
		}
	}
	return out, nil
}

func (c *Config) minVersion() uint16 {
	if c.MinVersion == "1.2" {
		return tls.VersionTLS12
	}
	return tls.VersionTLS13
}

func (c *Config) cipherSuites() []uint16 {
	if len(c.CipherSuites) == 0 {
		return nil
	}
	var suites []uint16
	for _, name := range c.CipherSuites {
		if id, ok := cipherSuiteIDs[name]; ok {
			suites = append(suites, id)
		}
	}
	return suites
}

// ParseReloadInterval returns the configured reload cadence, defaulting
// to five minutes when unset or unparsable.
func (c *Config) ParseReloadInterval() time.Duration {
	d, err := time.ParseDuration(c.ReloadInterval)
	if err != nil || c.ReloadInterval == "" {
		return 5 * time.Minute
	}
	return d
}

// cipherSuiteIDs maps config names to suite constants. Only suites
// still considered secure are listed; a name outside this set is
// silently dropped rather than weakening the listener.
var cipherSuiteIDs = map[string]uint16{
	"TLS_AES_128_GCM_SHA256":       tls.TLS_AES_128_GCM_SHA256,
	"TLS_AES_256_GCM_SHA384":       tls.TLS_AES_256_GCM_SHA384,
	"TLS_CHACHA20_POLY1305_SHA256": tls.TLS_CHACHA20_POLY1305_SHA256,

	"TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256":   tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384":   tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256": tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	"TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384": tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	"TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305":    tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
	"TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305":  tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
}

func (c *Config) applyMTLS(out *tls.Config) error {
	if c.MTLS.ClientCAFile == "" {
		return fmt.Errorf("client_ca_file is required when mTLS is enabled")
	}

	pem, err := os.ReadFile(c.MTLS.ClientCAFile)
	if err != nil {
		return fmt.Errorf("failed to read client CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return fmt.Errorf("failed to parse client CA certificate")
	}

	out.ClientCAs = pool
	out.ClientAuth = c.clientAuthType()
	return nil
}

func (c *Config) clientAuthType() tls.ClientAuthType {
	switch c.MTLS.ClientAuthType {
	case "request":
		return tls.RequestClientCert
	case "verify_if_given":
		return tls.VerifyClientCertIfGiven
	default:
		return tls.RequireAndVerifyClientCert
	}
}
