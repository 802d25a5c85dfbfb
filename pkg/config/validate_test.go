package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate_DefaultedConfigIsValid(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidate_MissingListenAddress(t *testing.T) {
	cfg := validConfig()
	cfg.Proxy.ListenAddress = ""

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "proxy.listen_address") {
		t.Errorf("error should name the field: %v", err)
	}
}

func TestValidate_UnknownStoreBackend(t *testing.T) {
	cfg := validConfig()
	cfg.Gateway.Store.Backend = "postgres"

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "gateway.store.backend") {
		t.Fatalf("expected store backend error, got %v", err)
	}
}

func TestValidate_SQLiteRequiresPath(t *testing.T) {
	cfg := validConfig()
	cfg.Gateway.Store.Backend = "sqlite"
	cfg.Gateway.Store.SQLitePath = ""

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "gateway.store.sqlite_path") {
		t.Fatalf("expected sqlite path error, got %v", err)
	}
}

func TestValidate_OAuthProviderRequirements(t *testing.T) {
	cfg := validConfig()
	cfg.Gateway.OAuthProviders = map[string]GatewayOAuthProviderConfig{
		"pt-1": {TokenURL: "", ClientID: ""},
	}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors for empty oauth provider")
	}
	msg := err.Error()
	if !strings.Contains(msg, "token_url") || !strings.Contains(msg, "client_id") {
		t.Errorf("error should name token_url and client_id: %v", err)
	}
}

func TestValidate_BoundaryMethodNames(t *testing.T) {
	cfg := validConfig()
	cfg.Gateway.Boundary.AllowedMethods = []string{"bearer", "carrier_pigeon"}

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "carrier_pigeon") {
		t.Fatalf("expected unknown-method error, got %v", err)
	}

	cfg = validConfig()
	cfg.Gateway.Boundary.AllowedMethods = []string{"bearer", "api_key", "query_param"}
	if err := Validate(cfg); err != nil {
		t.Fatalf("known method names should validate, got %v", err)
	}
}

func TestValidate_LogLevelAndFormat(t *testing.T) {
	cfg := validConfig()
	cfg.Telemetry.Logging.Level = "verbose"

	if err := Validate(cfg); err == nil {
		t.Fatal("expected invalid log level error")
	}

	cfg = validConfig()
	cfg.Telemetry.Logging.Format = "xml"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected invalid log format error")
	}
}

func TestValidate_MetricsPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Telemetry.Metrics.Port = 70000

	if err := Validate(cfg); err == nil {
		t.Fatal("expected metrics port error")
	}
}

func TestValidate_TLSRequiresCertAndKey(t *testing.T) {
	cfg := validConfig()
	cfg.Security.TLS.Enabled = true

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected TLS cert/key errors")
	}
	msg := err.Error()
	if !strings.Contains(msg, "cert_file") || !strings.Contains(msg, "key_file") {
		t.Errorf("error should name cert_file and key_file: %v", err)
	}
}

func TestValidate_MTLSRequiresTLS(t *testing.T) {
	cfg := validConfig()
	cfg.Security.TLS.Enabled = false
	cfg.Security.TLS.MTLS.Enabled = true
	cfg.Security.TLS.MTLS.ClientCAFile = "/tmp/ca.pem"

	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "mTLS requires TLS") {
		t.Fatalf("expected mTLS-requires-TLS error, got %v", err)
	}
}

func TestValidate_SecretProviderTypes(t *testing.T) {
	cfg := validConfig()
	cfg.Security.Secrets.Providers = []SecretProviderConfig{
		{Type: "env", Enabled: true, Prefix: "APERTURE_SECRET_"},
		{Type: "file", Enabled: true}, // missing path
		{Type: "etcd"},                // unknown type
	}

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected secret provider errors")
	}
	msg := err.Error()
	if !strings.Contains(msg, "providers[1].path") || !strings.Contains(msg, "etcd") {
		t.Errorf("errors should name the bad providers: %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Proxy.ListenAddress = ""
	cfg.Gateway.Store.Backend = "postgres"
	cfg.Telemetry.Logging.Level = "verbose"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}

	var verr ValidationError
	if ok := errorsAs(err, &verr); !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if len(verr.Errors) != 3 {
		t.Errorf("expected 3 collected errors, got %d: %v", len(verr.Errors), verr)
	}
}

// errorsAs is a tiny local shim so the test reads like the stdlib call
// without importing errors for a value-type target.
func errorsAs(err error, target *ValidationError) bool {
	verr, ok := err.(ValidationError)
	if ok {
		*target = verr
	}
	return ok
}
