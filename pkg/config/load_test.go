package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoadConfig_AppliesFileValuesAndDefaults(t *testing.T) {
	path := writeConfigFile(t, `
proxy:
  listen_address: "0.0.0.0:9000"

gateway:
  store:
    backend: "memory"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Proxy.ListenAddress != "0.0.0.0:9000" {
		t.Errorf("file value not applied: %q", cfg.Proxy.ListenAddress)
	}
	// Unset fields fall back to defaults.
	if cfg.Proxy.ReadTimeout != DefaultReadTimeout {
		t.Errorf("default not applied: %v", cfg.Proxy.ReadTimeout)
	}
	if cfg.Gateway.AuthResolver.DefaultQueryParamName != DefaultGatewayQueryParamName {
		t.Errorf("default not applied: %q", cfg.Gateway.AuthResolver.DefaultQueryParamName)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/config.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	path := writeConfigFile(t, "proxy: [this is not a mapping")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestLoadConfig_InvalidConfigRejected(t *testing.T) {
	path := writeConfigFile(t, `
gateway:
  store:
    backend: "postgres"
`)
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected validation failure for unknown backend")
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
proxy:
  listen_address: "127.0.0.1:8080"

telemetry:
  logging:
    level: "info"
`)

	os.Setenv("APERTURE_PROXY_LISTEN_ADDRESS", "0.0.0.0:9090")
	os.Setenv("APERTURE_TELEMETRY_LOGGING_LEVEL", "debug")
	os.Setenv("APERTURE_GATEWAY_STORE_BACKEND", "memory")
	defer func() {
		os.Unsetenv("APERTURE_PROXY_LISTEN_ADDRESS")
		os.Unsetenv("APERTURE_TELEMETRY_LOGGING_LEVEL")
		os.Unsetenv("APERTURE_GATEWAY_STORE_BACKEND")
	}()

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides: %v", err)
	}

	if cfg.Proxy.ListenAddress != "0.0.0.0:9090" {
		t.Errorf("env override not applied: %q", cfg.Proxy.ListenAddress)
	}
	if cfg.Telemetry.Logging.Level != "debug" {
		t.Errorf("env override not applied: %q", cfg.Telemetry.Logging.Level)
	}
	if cfg.Gateway.Store.Backend != "memory" {
		t.Errorf("env override not applied: %q", cfg.Gateway.Store.Backend)
	}
}

func TestLoadConfigWithEnvOverrides_DurationParsing(t *testing.T) {
	path := writeConfigFile(t, `
proxy:
  listen_address: "127.0.0.1:8080"
`)

	os.Setenv("APERTURE_PROXY_READ_TIMEOUT", "120s")
	os.Setenv("APERTURE_GATEWAY_FORWARD_TIMEOUT", "45s")
	defer func() {
		os.Unsetenv("APERTURE_PROXY_READ_TIMEOUT")
		os.Unsetenv("APERTURE_GATEWAY_FORWARD_TIMEOUT")
	}()

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides: %v", err)
	}

	if cfg.Proxy.ReadTimeout != 120*time.Second {
		t.Errorf("duration override not applied: %v", cfg.Proxy.ReadTimeout)
	}
	if cfg.Gateway.Pipeline.ForwardTimeout != 45*time.Second {
		t.Errorf("duration override not applied: %v", cfg.Gateway.Pipeline.ForwardTimeout)
	}
}

func TestLoadConfigWithEnvOverrides_InvalidValuesIgnored(t *testing.T) {
	path := writeConfigFile(t, `
proxy:
  listen_address: "127.0.0.1:8080"
  max_header_bytes: 4096
`)

	os.Setenv("APERTURE_PROXY_MAX_HEADER_BYTES", "not-a-number")
	defer os.Unsetenv("APERTURE_PROXY_MAX_HEADER_BYTES")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("LoadConfigWithEnvOverrides: %v", err)
	}

	if cfg.Proxy.MaxHeaderBytes != 4096 {
		t.Errorf("invalid env value should be ignored, got %d", cfg.Proxy.MaxHeaderBytes)
	}
}

func TestLoadConfigWithEnvOverrides_RevalidatesAfterOverride(t *testing.T) {
	path := writeConfigFile(t, `
proxy:
  listen_address: "127.0.0.1:8080"
`)

	os.Setenv("APERTURE_GATEWAY_STORE_BACKEND", "postgres")
	defer os.Unsetenv("APERTURE_GATEWAY_STORE_BACKEND")

	if _, err := LoadConfigWithEnvOverrides(path); err == nil {
		t.Fatal("expected validation failure for env-injected bad backend")
	}
}
