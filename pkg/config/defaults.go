package config

import "time"

// Defaults applied to zero-valued fields after YAML decoding.
const (
	// Proxy defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 120 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1 << 20 // 1MB

	// Logging defaults
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "json"
	DefaultLogBufferSize = 10000

	// Metrics defaults
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "aperture"
	DefaultMetricsSubsystem = "gateway"

	// TLS defaults
	DefaultTLSMinVersion      = "1.3"
	DefaultTLSReloadInterval  = "5m"
	DefaultMTLSClientAuthType = "require"
	DefaultMTLSIdentitySource = "subject.CN"

	// Secrets defaults
	DefaultSecretsCacheTTL     = "5m"
	DefaultSecretsCacheMaxSize = 1000

	// Gateway defaults
	DefaultGatewayStoreBackend         = "sqlite"
	DefaultGatewayStoreSQLitePath      = "data/gateway.db"
	DefaultGatewayQueryParamName       = "api_key"
	DefaultGatewayCacheTTLSeconds      = 60
	DefaultGatewayCacheMaxEntries      = 10000
	DefaultGatewayAllowDegraded        = true
	DefaultGatewayResetFireTimeout     = 5 * time.Second
	DefaultGatewayOAuthMaxConcurrent   = 8
	DefaultGatewayOAuthRefreshLeadTime = 5 * time.Minute
	DefaultGatewayOAuthMaxRetries      = 3
	DefaultGatewayForwardTimeout       = 60 * time.Second
	DefaultGatewayRetentionMaxAge      = 90 * 24 * time.Hour
	DefaultGatewayRetentionSchedule    = "0 3 * * *"
)

// ApplyDefaults fills every zero-valued field with its default.
// Idempotent.
func ApplyDefaults(cfg *Config) {
	// Proxy defaults
	if cfg.Proxy.ListenAddress == "" {
		cfg.Proxy.ListenAddress = DefaultListenAddress
	}
	if cfg.Proxy.ReadTimeout == 0 {
		cfg.Proxy.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Proxy.WriteTimeout == 0 {
		cfg.Proxy.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Proxy.IdleTimeout == 0 {
		cfg.Proxy.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Proxy.ShutdownTimeout == 0 {
		cfg.Proxy.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Proxy.MaxHeaderBytes == 0 {
		cfg.Proxy.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	applyTelemetryDefaults(cfg)
	applySecurityDefaults(cfg)
	applyGatewayDefaults(cfg)
}

// applyTelemetryDefaults fills the logging and metrics sections.
func applyTelemetryDefaults(cfg *Config) {
	logging := &cfg.Telemetry.Logging
	if logging.Level == "" {
		logging.Level = DefaultLogLevel
	}
	if logging.Format == "" {
		logging.Format = DefaultLogFormat
	}
	if logging.BufferSize == 0 {
		logging.BufferSize = DefaultLogBufferSize
	}

	metrics := &cfg.Telemetry.Metrics
	if metrics.Path == "" {
		metrics.Path = DefaultMetricsPath
	}
	if metrics.Namespace == "" {
		metrics.Namespace = DefaultMetricsNamespace
	}
	if metrics.Subsystem == "" {
		metrics.Subsystem = DefaultMetricsSubsystem
	}
}

// applySecurityDefaults fills the TLS and secrets sections.
func applySecurityDefaults(cfg *Config) {
	tls := &cfg.Security.TLS
	if tls.MinVersion == "" {
		tls.MinVersion = DefaultTLSMinVersion
	}
	if tls.ReloadInterval == "" {
		tls.ReloadInterval = DefaultTLSReloadInterval
	}
	if tls.MTLS.ClientAuthType == "" {
		tls.MTLS.ClientAuthType = DefaultMTLSClientAuthType
	}
	if tls.MTLS.IdentitySource == "" {
		tls.MTLS.IdentitySource = DefaultMTLSIdentitySource
	}

	secrets := &cfg.Security.Secrets
	if secrets.Cache.TTL == "" {
		secrets.Cache.TTL = DefaultSecretsCacheTTL
	}
	if secrets.Cache.MaxSize == 0 {
		secrets.Cache.MaxSize = DefaultSecretsCacheMaxSize
	}
}

// applyGatewayDefaults fills the request-plane sections.
func applyGatewayDefaults(cfg *Config) {
	if cfg.Gateway.Store.Backend == "" {
		cfg.Gateway.Store.Backend = DefaultGatewayStoreBackend
	}
	if cfg.Gateway.Store.SQLitePath == "" {
		cfg.Gateway.Store.SQLitePath = DefaultGatewayStoreSQLitePath
	}
	if cfg.Gateway.AuthResolver.DefaultQueryParamName == "" {
		cfg.Gateway.AuthResolver.DefaultQueryParamName = DefaultGatewayQueryParamName
	}
	if cfg.Gateway.AuthResolver.CacheTTLSeconds == 0 {
		cfg.Gateway.AuthResolver.CacheTTLSeconds = DefaultGatewayCacheTTLSeconds
	}
	if cfg.Gateway.AuthResolver.CacheMaxEntries == 0 {
		cfg.Gateway.AuthResolver.CacheMaxEntries = DefaultGatewayCacheMaxEntries
	}
	if cfg.Gateway.CredentialPool.AllowDegraded == nil {
		allow := DefaultGatewayAllowDegraded
		cfg.Gateway.CredentialPool.AllowDegraded = &allow
	}
	if cfg.Gateway.ResetScheduler.FireTimeout == 0 {
		cfg.Gateway.ResetScheduler.FireTimeout = DefaultGatewayResetFireTimeout
	}
	if cfg.Gateway.OAuthRefresh.MaxConcurrentRefreshes == 0 {
		cfg.Gateway.OAuthRefresh.MaxConcurrentRefreshes = DefaultGatewayOAuthMaxConcurrent
	}
	if cfg.Gateway.OAuthRefresh.RefreshLeadTime == 0 {
		cfg.Gateway.OAuthRefresh.RefreshLeadTime = DefaultGatewayOAuthRefreshLeadTime
	}
	if cfg.Gateway.OAuthRefresh.MaxRetries == 0 {
		cfg.Gateway.OAuthRefresh.MaxRetries = DefaultGatewayOAuthMaxRetries
	}
	if cfg.Gateway.Pipeline.ForwardTimeout == 0 {
		cfg.Gateway.Pipeline.ForwardTimeout = DefaultGatewayForwardTimeout
	}
	if cfg.Gateway.Retention.MaxAge == 0 {
		cfg.Gateway.Retention.MaxAge = DefaultGatewayRetentionMaxAge
	}
	if cfg.Gateway.Retention.Schedule == "" {
		cfg.Gateway.Retention.Schedule = DefaultGatewayRetentionSchedule
	}
}
