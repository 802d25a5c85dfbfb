package config

import (
	"testing"
	"time"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	if cfg.Proxy.ListenAddress != DefaultListenAddress {
		t.Errorf("listen address = %q, want %q", cfg.Proxy.ListenAddress, DefaultListenAddress)
	}
	if cfg.Proxy.ReadTimeout != DefaultReadTimeout {
		t.Errorf("read timeout = %v, want %v", cfg.Proxy.ReadTimeout, DefaultReadTimeout)
	}
	if cfg.Proxy.MaxHeaderBytes != DefaultMaxHeaderBytes {
		t.Errorf("max header bytes = %d, want %d", cfg.Proxy.MaxHeaderBytes, DefaultMaxHeaderBytes)
	}

	if cfg.Telemetry.Logging.Level != DefaultLogLevel {
		t.Errorf("log level = %q, want %q", cfg.Telemetry.Logging.Level, DefaultLogLevel)
	}
	if cfg.Telemetry.Metrics.Namespace != DefaultMetricsNamespace {
		t.Errorf("metrics namespace = %q, want %q", cfg.Telemetry.Metrics.Namespace, DefaultMetricsNamespace)
	}

	if cfg.Security.TLS.MinVersion != DefaultTLSMinVersion {
		t.Errorf("TLS min version = %q, want %q", cfg.Security.TLS.MinVersion, DefaultTLSMinVersion)
	}
	if cfg.Security.Secrets.Cache.TTL != DefaultSecretsCacheTTL {
		t.Errorf("secrets cache TTL = %q, want %q", cfg.Security.Secrets.Cache.TTL, DefaultSecretsCacheTTL)
	}

	if cfg.Gateway.Store.Backend != DefaultGatewayStoreBackend {
		t.Errorf("store backend = %q, want %q", cfg.Gateway.Store.Backend, DefaultGatewayStoreBackend)
	}
	if cfg.Gateway.OAuthRefresh.RefreshLeadTime != DefaultGatewayOAuthRefreshLeadTime {
		t.Errorf("refresh lead time = %v, want %v",
			cfg.Gateway.OAuthRefresh.RefreshLeadTime, DefaultGatewayOAuthRefreshLeadTime)
	}
	if cfg.Gateway.Retention.Schedule != DefaultGatewayRetentionSchedule {
		t.Errorf("retention schedule = %q, want %q",
			cfg.Gateway.Retention.Schedule, DefaultGatewayRetentionSchedule)
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Proxy.ListenAddress = "0.0.0.0:18080"
	cfg.Proxy.ReadTimeout = 5 * time.Second
	cfg.Gateway.Store.Backend = "memory"
	cfg.Telemetry.Logging.Level = "debug"

	ApplyDefaults(cfg)

	if cfg.Proxy.ListenAddress != "0.0.0.0:18080" {
		t.Errorf("explicit listen address was overridden: %q", cfg.Proxy.ListenAddress)
	}
	if cfg.Proxy.ReadTimeout != 5*time.Second {
		t.Errorf("explicit read timeout was overridden: %v", cfg.Proxy.ReadTimeout)
	}
	if cfg.Gateway.Store.Backend != "memory" {
		t.Errorf("explicit store backend was overridden: %q", cfg.Gateway.Store.Backend)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("explicit log level was overridden: %q", cfg.Telemetry.Logging.Level)
	}
}

func TestApplyDefaults_Idempotent(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	first := *cfg
	ApplyDefaults(cfg)

	if cfg.Proxy.ListenAddress != first.Proxy.ListenAddress ||
		cfg.Gateway.Store.Backend != first.Gateway.Store.Backend ||
		cfg.Gateway.Retention.MaxAge != first.Gateway.Retention.MaxAge {
		t.Error("second ApplyDefaults changed values")
	}
}

func TestApplyDefaults_ExplicitDegradedFalseSurvives(t *testing.T) {
	cfg := &Config{}
	off := false
	cfg.Gateway.CredentialPool.AllowDegraded = &off

	ApplyDefaults(cfg)

	if cfg.Gateway.CredentialPool.DegradedAllowed() {
		t.Error("explicit allow_degraded=false was overridden by defaulting")
	}

	cfg = &Config{}
	ApplyDefaults(cfg)
	if !cfg.Gateway.CredentialPool.DegradedAllowed() {
		t.Error("unset allow_degraded did not default to true")
	}
}
