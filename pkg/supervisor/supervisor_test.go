package supervisor

import (
	"context"
	"testing"
	"time"

	"aperturegw/gateway/pkg/config"
)

func testConfig(t *testing.T, listenAddr string) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Gateway.Store.Backend = "memory"
	cfg.Proxy.ListenAddress = listenAddr
	return cfg
}

func TestNew_WiresMemoryBackedGateway(t *testing.T) {
	cfg := testConfig(t, "127.0.0.1:0")

	sup, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if sup.store == nil {
		t.Fatal("expected a wired store")
	}
	if sup.pipeline == nil {
		t.Fatal("expected a wired pipeline")
	}
}

func TestNew_WiresSecretsManagerFromConfiguredProviders(t *testing.T) {
	cfg := testConfig(t, "127.0.0.1:0")
	cfg.Security.Secrets.Providers = []config.SecretProviderConfig{
		{Type: "env", Enabled: true, Prefix: "APERTURE_TEST_SECRET_"},
	}

	sup, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if sup.secrets == nil {
		t.Fatal("expected a wired secrets manager")
	}
}

func TestNew_NoSecretsManagerWithoutProviders(t *testing.T) {
	cfg := testConfig(t, "127.0.0.1:0")

	sup, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if sup.secrets != nil {
		t.Fatal("expected no secrets manager when no providers are configured")
	}
}

func TestNew_RejectsUnknownStoreBackend(t *testing.T) {
	cfg := testConfig(t, "127.0.0.1:0")
	cfg.Gateway.Store.Backend = "postgres"

	if _, err := New(cfg); err == nil {
		t.Fatal("expected an error for an unknown store backend")
	}
}

func TestStartShutdown_StopsOnContextCancel(t *testing.T) {
	cfg := testConfig(t, "127.0.0.1:18099")

	sup, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if sup.IsRunning() {
		t.Fatal("expected supervisor to be stopped after Shutdown")
	}
}
