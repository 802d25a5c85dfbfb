package config

import (
	"time"
)

// Config is the root configuration structure for the Aperture Gateway.
// It contains the proxy listener, the gateway's request-plane tunables,
// security, and telemetry sections, loaded from a YAML file with
// optional environment variable overrides.
type Config struct {
	// Proxy contains HTTP proxy server configuration.
	Proxy ProxyConfig `yaml:"proxy"`

	// Security contains TLS and secret-management configuration.
	Security SecurityConfig `yaml:"security"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Gateway contains configuration for the multi-tenant AI-provider
	// gateway's request plane: data store, schedulers, credential
	// pool, auth resolver, and proxy pipeline.
	Gateway GatewayConfig `yaml:"gateway"`
}

// GatewayConfig contains configuration for the AI-provider gateway's
// core subsystems.
type GatewayConfig struct {
	// Store configures the gateway's tenant/credential/trace data store.
	Store GatewayStoreConfig `yaml:"store"`

	// AuthResolver configures inbound credential resolution.
	AuthResolver GatewayAuthResolverConfig `yaml:"auth_resolver"`

	// CredentialPool configures ProviderKey selection.
	CredentialPool GatewayCredentialPoolConfig `yaml:"credential_pool"`

	// ResetScheduler configures the rate-limit reset scheduler.
	ResetScheduler GatewayResetSchedulerConfig `yaml:"reset_scheduler"`

	// OAuthRefresh configures the OAuth token refresh scheduler.
	OAuthRefresh GatewayOAuthRefreshConfig `yaml:"oauth_refresh"`

	// Pipeline configures the proxy request pipeline's FORWARD stage.
	Pipeline GatewayPipelineConfig `yaml:"pipeline"`

	// OAuthProviders configures the OAuth endpoints consumed per
	// provider type, keyed by ProviderType.ID.
	OAuthProviders map[string]GatewayOAuthProviderConfig `yaml:"oauth_providers"`

	// Boundary configures the proxy port's auth-boundary policy.
	Boundary GatewayBoundaryConfig `yaml:"boundary"`

	// Retention configures scheduled pruning of old trace rows.
	Retention GatewayRetentionConfig `yaml:"retention"`
}

// GatewayStoreConfig selects and tunes the gateway's storage backend.
type GatewayStoreConfig struct {
	// Backend selects the storage backend.
	// Options: "memory", "sqlite"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLitePath is the file path for the SQLite database when
	// Backend is "sqlite".
	// Default: "data/gateway.db"
	SQLitePath string `yaml:"sqlite_path"`
}

// GatewayAuthResolverConfig tunes the auth resolver.
type GatewayAuthResolverConfig struct {
	// DefaultQueryParamName is the query parameter probed for a
	// credential before the owning ServiceAPI (and its own configured
	// param name) is known.
	// Default: "api_key"
	DefaultQueryParamName string `yaml:"default_query_param_name"`

	// CacheTTLSeconds is the resolution cache's time-to-live.
	// Default: 60
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`

	// CacheMaxEntries bounds the resolution cache before LRU eviction.
	// Default: 10000
	CacheMaxEntries int `yaml:"cache_max_entries"`
}

// GatewayCredentialPoolConfig tunes ProviderKey selection.
type GatewayCredentialPoolConfig struct {
	// AllowDegraded enables falling back to the full active set when
	// the eligible set is empty but the active set is non-empty. A
	// pointer so an explicit false survives defaulting.
	// Default: true
	AllowDegraded *bool `yaml:"allow_degraded"`
}

// DegradedAllowed resolves AllowDegraded with its default.
func (c *GatewayCredentialPoolConfig) DegradedAllowed() bool {
	if c.AllowDegraded == nil {
		return DefaultGatewayAllowDegraded
	}
	return *c.AllowDegraded
}

// GatewayResetSchedulerConfig tunes the rate-limit reset scheduler.
type GatewayResetSchedulerConfig struct {
	// FireTimeout bounds a single delayed-validation reset callback.
	// Default: 5s
	FireTimeout time.Duration `yaml:"fire_timeout"`
}

// GatewayOAuthRefreshConfig tunes the OAuth refresh scheduler.
type GatewayOAuthRefreshConfig struct {
	// MaxConcurrentRefreshes bounds the scheduler's fan-out parallelism.
	// Default: 8
	MaxConcurrentRefreshes int `yaml:"max_concurrent_refreshes"`

	// RefreshLeadTime is how long before a token's expiry the scheduler
	// proactively refreshes it.
	// Default: 5m
	RefreshLeadTime time.Duration `yaml:"refresh_lead_time"`

	// MaxRetries bounds backoff retries for a transient refresh failure
	// before the owning session is marked errored.
	// Default: 3
	MaxRetries int `yaml:"max_retries"`
}

// GatewayPipelineConfig tunes the proxy request pipeline.
type GatewayPipelineConfig struct {
	// ForwardTimeout bounds the upstream round-trip.
	// Default: 60s
	ForwardTimeout time.Duration `yaml:"forward_timeout"`
}

// GatewayBoundaryConfig declares which inbound auth methods the proxy
// port accepts. Method names: "bearer", "api_key", "query_param".
type GatewayBoundaryConfig struct {
	// AllowedMethods is the port's allowed set. Empty allows every
	// method not explicitly forbidden.
	AllowedMethods []string `yaml:"allowed_methods"`

	// ForbiddenMethods is the port's forbidden set; it wins over
	// AllowedMethods.
	ForbiddenMethods []string `yaml:"forbidden_methods"`
}

// GatewayRetentionConfig controls scheduled trace pruning.
type GatewayRetentionConfig struct {
	// MaxAge is how long completed trace rows are kept.
	// Default: 2160h (90 days)
	MaxAge time.Duration `yaml:"max_age"`

	// Schedule is a cron expression for when pruning runs. Empty
	// disables the retention job.
	// Default: "0 3 * * *"
	Schedule string `yaml:"schedule"`
}

// GatewayOAuthProviderConfig is one ProviderType's OAuth endpoint
// configuration.
type GatewayOAuthProviderConfig struct {
	AuthorizeURL string   `yaml:"authorize_url"`
	TokenURL     string   `yaml:"token_url"`
	RedirectURI  string   `yaml:"redirect_uri"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
	PKCERequired bool     `yaml:"pkce_required"`
}

// ProxyConfig tunes the inbound HTTP listener.
type ProxyConfig struct {
	// ListenAddress is the proxy's host:port.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout bounds reading one request including its body.
	// Negative disables it; zero takes the default.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds writing one response. Streaming LLM
	// responses run long, so the default is generous.
	// Default: 120s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout bounds keep-alive idle time between requests; zero
	// falls back to ReadTimeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the grace period for in-flight requests when
	// the gateway stops.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes caps request-header parsing; the body is not
	// limited here.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// SecurityConfig groups the listener's TLS surface and the secret
// provider chain.
type SecurityConfig struct {
	TLS     TLSConfig     `yaml:"tls"`
	Secrets SecretsConfig `yaml:"secrets"`
}

// TLSConfig configures TLS on the proxy listener.
type TLSConfig struct {
	// Enabled turns TLS on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// CertFile/KeyFile are the PEM pair, required when Enabled.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// MinVersion is "1.2" or "1.3"; nothing lower is offered.
	// Default: "1.3"
	MinVersion string `yaml:"min_version"`

	// CipherSuites pins the TLS 1.2 suite list; empty uses Go's
	// defaults.
	CipherSuites []string `yaml:"cipher_suites"`

	// ReloadInterval is the certificate reloader's polling cadence,
	// e.g. "5m".
	// Default: "5m"
	ReloadInterval string `yaml:"cert_reload_interval"`

	MTLS MTLSConfig `yaml:"mtls"`
}

// MTLSConfig configures client-certificate authentication.
type MTLSConfig struct {
	// Enabled turns mTLS on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// ClientCAFile verifies presented client certificates, required
	// when Enabled.
	ClientCAFile string `yaml:"client_ca_file"`

	// ClientAuthType is "require", "request", or "verify_if_given";
	// unknown values harden to "require".
	ClientAuthType string `yaml:"client_auth_type"`

	// VerifyClientCert is passed through to the TLS layer, which does
	// not consult it; whether presented certificates are verified
	// against the CA follows ClientAuthType.
	// Default: false
	VerifyClientCert bool `yaml:"verify_client_cert"`

	// IdentitySource picks the identity field: "subject.CN"
	// (default), "subject.OU", "subject.O", or "SAN".
	IdentitySource string `yaml:"identity_source"`
}

// SecretsConfig configures the secret provider chain backing
// ${secret:name} references in stored credential material.
type SecretsConfig struct {
	// Providers are tried in order; the first that resolves a name
	// wins.
	Providers []SecretProviderConfig `yaml:"providers"`

	Cache SecretsCacheConfig `yaml:"cache"`
}

// SecretProviderConfig declares one provider in the chain. Type
// selects which of the remaining fields apply.
type SecretProviderConfig struct {
	// Type is "env", "file", "aws_kms", "gcp_kms", or "vault".
	Type string `yaml:"type"`

	// Enabled defaults to false. A provider other than "env" is skipped
	// unless Enabled is true; the env provider is always used.
	Enabled bool `yaml:"enabled"`

	// Prefix namespaces env-provider variables, e.g. "APERTURE_SECRET_".
	Prefix string `yaml:"prefix,omitempty"`

	// Path is the file provider's secret directory.
	Path string `yaml:"path,omitempty"`

	// Watch makes the file provider follow directory changes.
	Watch bool `yaml:"watch,omitempty"`

	// AWS KMS fields.
	Region string `yaml:"region,omitempty"`
	KeyID  string `yaml:"key_id,omitempty"`

	// GCP KMS fields.
	Project  string `yaml:"project,omitempty"`
	Location string `yaml:"location,omitempty"`
	KeyRing  string `yaml:"keyring,omitempty"`
	Key      string `yaml:"key,omitempty"`

	// Vault fields.
	Address   string `yaml:"address,omitempty"`
	Token     string `yaml:"token,omitempty"`
	VaultPath string `yaml:"vault_path,omitempty"`
}

// SecretsCacheConfig tunes the resolved-secret cache.
type SecretsCacheConfig struct {
	// Enabled defaults to false.
	Enabled bool `yaml:"enabled"`

	// TTL is a duration string, e.g. "5m".
	// Default: "5m"
	TTL string `yaml:"ttl"`

	// MaxSize caps cached entries.
	// Default: 1000
	MaxSize int `yaml:"max_size"`
}

// TelemetryConfig groups logging and metrics.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig configures the process-wide structured logger.
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json", "text", or "console".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource stamps file:line onto entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactPII scrubs credentials and PII from log output.
	// Default: false
	RedactPII bool `yaml:"redact_pii"`

	// BufferSize is the async write buffer, in entries.
	// Default: 10000
	BufferSize int `yaml:"buffer_size"`

	// RedactPatterns adds custom redaction patterns on top of the
	// built-ins.
	RedactPatterns []RedactPattern `yaml:"redact_patterns"`
}

// RedactPattern is one custom redaction rule.
type RedactPattern struct {
	Name        string `yaml:"name"`
	Pattern     string `yaml:"pattern"`
	Replacement string `yaml:"replacement"`
}

// MetricsConfig configures Prometheus exposition.
type MetricsConfig struct {
	// Enabled turns collection on.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Path is the exposition endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Port is the dedicated metrics listener; 0 disables it. Metrics
	// never share the proxy port, keeping its auth boundary clean.
	// Default: 0
	Port int `yaml:"port"`

	// Namespace/Subsystem prefix metric names.
	// Defaults: "aperture", "gateway"
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`

	// RequestDurationBuckets are histogram bounds in seconds.
	// Default: [0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0]
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`
}
