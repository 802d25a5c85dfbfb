package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads a YAML file, applies defaults, and validates the
// result. Environment overrides are not consulted here; the CLI path
// goes through LoadConfigWithEnvOverrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides is LoadConfig plus APERTURE_* environment
// overrides, re-validated after they apply. The environment always
// wins over the file.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides folds APERTURE_SECTION_FIELD variables into cfg.
// A value that fails to parse is ignored, keeping the file/default.
func applyEnvOverrides(cfg *Config) {
	// Proxy overrides
	if val := os.Getenv("APERTURE_PROXY_LISTEN_ADDRESS"); val != "" {
		cfg.Proxy.ListenAddress = val
	}
	if val := os.Getenv("APERTURE_PROXY_READ_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Proxy.ReadTimeout = d
		}
	}
	if val := os.Getenv("APERTURE_PROXY_WRITE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Proxy.WriteTimeout = d
		}
	}
	if val := os.Getenv("APERTURE_PROXY_IDLE_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Proxy.IdleTimeout = d
		}
	}
	if val := os.Getenv("APERTURE_PROXY_MAX_HEADER_BYTES"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Proxy.MaxHeaderBytes = n
		}
	}

	// Gateway overrides
	if val := os.Getenv("APERTURE_GATEWAY_STORE_BACKEND"); val != "" {
		cfg.Gateway.Store.Backend = val
	}
	if val := os.Getenv("APERTURE_GATEWAY_STORE_SQLITE_PATH"); val != "" {
		cfg.Gateway.Store.SQLitePath = val
	}
	if val := os.Getenv("APERTURE_GATEWAY_FORWARD_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Gateway.Pipeline.ForwardTimeout = d
		}
	}
	if val := os.Getenv("APERTURE_GATEWAY_ALLOW_DEGRADED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Gateway.CredentialPool.AllowDegraded = &b
		}
	}
	if val := os.Getenv("APERTURE_GATEWAY_OAUTH_REFRESH_LEAD_TIME"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Gateway.OAuthRefresh.RefreshLeadTime = d
		}
	}
	if val := os.Getenv("APERTURE_GATEWAY_RETENTION_MAX_AGE"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Gateway.Retention.MaxAge = d
		}
	}
	if val := os.Getenv("APERTURE_GATEWAY_RETENTION_SCHEDULE"); val != "" {
		cfg.Gateway.Retention.Schedule = val
	}

	// Telemetry overrides
	if val := os.Getenv("APERTURE_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("APERTURE_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("APERTURE_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = b
		}
	}
	if val := os.Getenv("APERTURE_TELEMETRY_METRICS_PORT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Telemetry.Metrics.Port = n
		}
	}
	if val := os.Getenv("APERTURE_TELEMETRY_METRICS_PATH"); val != "" {
		cfg.Telemetry.Metrics.Path = val
	}

	// Security overrides
	if val := os.Getenv("APERTURE_SECURITY_TLS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Security.TLS.Enabled = b
		}
	}
	if val := os.Getenv("APERTURE_SECURITY_TLS_CERT_FILE"); val != "" {
		cfg.Security.TLS.CertFile = val
	}
	if val := os.Getenv("APERTURE_SECURITY_TLS_KEY_FILE"); val != "" {
		cfg.Security.TLS.KeyFile = val
	}
	if val := os.Getenv("APERTURE_SECURITY_MTLS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Security.TLS.MTLS.Enabled = b
		}
	}
	if val := os.Getenv("APERTURE_SECURITY_MTLS_CA_FILE"); val != "" {
		cfg.Security.TLS.MTLS.ClientCAFile = val
	}
}
