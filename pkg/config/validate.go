package config

import (
	"fmt"
	"net/url"
	"strings"
)

// FieldError is one validation failure, addressed by dotted field path.
type FieldError struct {
	Field   string // dotted path, e.g. "proxy.listen_address"
	Message string
}

// Error formats the failure as "field: message".
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every FieldError found in one pass, so an
// operator fixes a broken file once instead of error-by-error.
type ValidationError struct {
	Errors []FieldError
}

// Error lists every collected failure.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate checks every section, returning a ValidationError carrying
// all failures, or nil for a valid configuration.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateProxy(&cfg.Proxy)...)
	errs = append(errs, validateGateway(&cfg.Gateway)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateSecurity(&cfg.Security)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateProxy checks the listener section.
func validateProxy(cfg *ProxyConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "proxy.listen_address",
			Message: "listen address is required",
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "proxy.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "proxy.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.IdleTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "proxy.idle_timeout",
			Message: "idle timeout must be positive",
		})
	}

	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "proxy.max_header_bytes",
			Message: "max header bytes must be non-negative",
		})
	}
	if cfg.MaxHeaderBytes > 10*1024*1024 {
		errs = append(errs, FieldError{
			Field:   "proxy.max_header_bytes",
			Message: "max header bytes exceeds reasonable limit (10MB)",
		})
	}

	return errs
}

// validGatewayStoreBackends enumerates the supported store backends.
var validGatewayStoreBackends = map[string]bool{
	"memory": true,
	"sqlite": true,
}

// validBoundaryMethods enumerates the auth methods an auth-boundary
// policy may name.
var validBoundaryMethods = map[string]bool{
	"bearer":         true,
	"authorization":  true,
	"api_key":        true,
	"api_key_header": true,
	"query_param":    true,
}

// validateGateway checks the request-plane section.
func validateGateway(cfg *GatewayConfig) []FieldError {
	var errs []FieldError

	if cfg.Store.Backend != "" && !validGatewayStoreBackends[cfg.Store.Backend] {
		errs = append(errs, FieldError{
			Field:   "gateway.store.backend",
			Message: fmt.Sprintf("invalid backend %q (must be 'memory' or 'sqlite')", cfg.Store.Backend),
		})
	}
	if cfg.Store.Backend == "sqlite" && cfg.Store.SQLitePath == "" {
		errs = append(errs, FieldError{
			Field:   "gateway.store.sqlite_path",
			Message: "sqlite path is required when backend is 'sqlite'",
		})
	}

	if cfg.AuthResolver.CacheTTLSeconds < 0 {
		errs = append(errs, FieldError{
			Field:   "gateway.auth_resolver.cache_ttl_seconds",
			Message: "cache TTL must be non-negative",
		})
	}
	if cfg.AuthResolver.CacheMaxEntries < 0 {
		errs = append(errs, FieldError{
			Field:   "gateway.auth_resolver.cache_max_entries",
			Message: "cache max entries must be non-negative",
		})
	}

	if cfg.OAuthRefresh.MaxConcurrentRefreshes < 0 {
		errs = append(errs, FieldError{
			Field:   "gateway.oauth_refresh.max_concurrent_refreshes",
			Message: "max concurrent refreshes must be non-negative",
		})
	}
	if cfg.OAuthRefresh.RefreshLeadTime < 0 {
		errs = append(errs, FieldError{
			Field:   "gateway.oauth_refresh.refresh_lead_time",
			Message: "refresh lead time must be non-negative",
		})
	}

	if cfg.Pipeline.ForwardTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "gateway.pipeline.forward_timeout",
			Message: "forward timeout must be non-negative",
		})
	}

	for name, provider := range cfg.OAuthProviders {
		prefix := fmt.Sprintf("gateway.oauth_providers.%s", name)
		if provider.TokenURL == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".token_url",
				Message: "token URL is required",
			})
		} else if _, err := url.Parse(provider.TokenURL); err != nil {
			errs = append(errs, FieldError{
				Field:   prefix + ".token_url",
				Message: fmt.Sprintf("invalid URL: %v", err),
			})
		}
		if provider.ClientID == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".client_id",
				Message: "client ID is required",
			})
		}
	}

	for _, m := range cfg.Boundary.AllowedMethods {
		if !validBoundaryMethods[m] {
			errs = append(errs, FieldError{
				Field:   "gateway.boundary.allowed_methods",
				Message: fmt.Sprintf("unknown auth method %q", m),
			})
		}
	}
	for _, m := range cfg.Boundary.ForbiddenMethods {
		if !validBoundaryMethods[m] {
			errs = append(errs, FieldError{
				Field:   "gateway.boundary.forbidden_methods",
				Message: fmt.Sprintf("unknown auth method %q", m),
			})
		}
	}

	if cfg.Retention.MaxAge < 0 {
		errs = append(errs, FieldError{
			Field:   "gateway.retention.max_age",
			Message: "retention max age must be non-negative",
		})
	}

	return errs
}

// validLogLevels are the levels pkg/telemetry/logging accepts.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validLogFormats are the formats pkg/telemetry/logging accepts.
var validLogFormats = map[string]bool{
	"json":    true,
	"text":    true,
	"console": true,
}

// validateTelemetry checks logging and metrics.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	if cfg.Logging.Level != "" && !validLogLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be debug, info, warn, or error)", cfg.Logging.Level),
		})
	}
	if cfg.Logging.Format != "" && !validLogFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json, text, or console)", cfg.Logging.Format),
		})
	}
	if cfg.Logging.BufferSize < 0 {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.buffer_size",
			Message: "buffer size must be non-negative",
		})
	}

	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.port",
			Message: "port must be between 0 and 65535",
		})
	}
	if cfg.Metrics.Path != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "path must start with '/'",
		})
	}

	return errs
}

// validTLSVersions are the minimum versions the listener offers.
var validTLSVersions = map[string]bool{
	"1.2": true,
	"1.3": true,
}

// validClientAuthTypes are the recognized mTLS client-auth modes.
var validClientAuthTypes = map[string]bool{
	"require":         true,
	"request":         true,
	"verify_if_given": true,
}

// validateSecurity checks TLS, mTLS, and the secret provider chain.
func validateSecurity(cfg *SecurityConfig) []FieldError {
	var errs []FieldError

	if cfg.TLS.Enabled {
		if cfg.TLS.CertFile == "" {
			errs = append(errs, FieldError{
				Field:   "security.tls.cert_file",
				Message: "certificate file is required when TLS is enabled",
			})
		}
		if cfg.TLS.KeyFile == "" {
			errs = append(errs, FieldError{
				Field:   "security.tls.key_file",
				Message: "key file is required when TLS is enabled",
			})
		}
		if cfg.TLS.MinVersion != "" && !validTLSVersions[cfg.TLS.MinVersion] {
			errs = append(errs, FieldError{
				Field:   "security.tls.min_version",
				Message: fmt.Sprintf("invalid TLS version %q (must be '1.2' or '1.3')", cfg.TLS.MinVersion),
			})
		}
	}

	if cfg.TLS.MTLS.Enabled {
		if !cfg.TLS.Enabled {
			errs = append(errs, FieldError{
				Field:   "security.tls.mtls.enabled",
				Message: "mTLS requires TLS to be enabled",
			})
		}
		if cfg.TLS.MTLS.ClientCAFile == "" {
			errs = append(errs, FieldError{
				Field:   "security.tls.mtls.client_ca_file",
				Message: "client CA file is required when mTLS is enabled",
			})
		}
		if cfg.TLS.MTLS.ClientAuthType != "" && !validClientAuthTypes[cfg.TLS.MTLS.ClientAuthType] {
			errs = append(errs, FieldError{
				Field:   "security.tls.mtls.client_auth_type",
				Message: fmt.Sprintf("invalid client auth type %q", cfg.TLS.MTLS.ClientAuthType),
			})
		}
	}

	for i, provider := range cfg.Secrets.Providers {
		prefix := fmt.Sprintf("security.secrets.providers[%d]", i)
		switch provider.Type {
		case "env", "aws_kms", "gcp_kms", "vault":
		case "file":
			if provider.Path == "" {
				errs = append(errs, FieldError{
					Field:   prefix + ".path",
					Message: "path is required for the file provider",
				})
			}
		case "":
			errs = append(errs, FieldError{
				Field:   prefix + ".type",
				Message: "provider type is required",
			})
		default:
			errs = append(errs, FieldError{
				Field:   prefix + ".type",
				Message: fmt.Sprintf("unknown provider type %q", provider.Type),
			})
		}
	}

	return errs
}
