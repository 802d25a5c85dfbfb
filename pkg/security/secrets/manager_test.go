package secrets

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// stubProvider is an in-memory SecretProvider for manager tests.
type stubProvider struct {
	name    string
	values  map[string]string
	calls   int
	listErr error
}

func (s *stubProvider) GetSecret(ctx context.Context, name string) (string, error) {
	s.calls++
	if v, ok := s.values[name]; ok {
		return v, nil
	}
	return "", errors.New("not held")
}

func (s *stubProvider) ListSecrets(ctx context.Context) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var names []string
	for n := range s.values {
		names = append(names, n)
	}
	return names, nil
}

func (s *stubProvider) Provider() string { return s.name }

func (s *stubProvider) Supports(name string) bool {
	_, ok := s.values[name]
	return ok
}

func TestManager_FirstClaimingProviderWins(t *testing.T) {
	first := &stubProvider{name: "a", values: map[string]string{"shared": "from-a"}}
	second := &stubProvider{name: "b", values: map[string]string{"shared": "from-b", "only-b": "b-val"}}
	m := NewManager([]SecretProvider{first, second}, CacheConfig{})

	got, err := m.GetSecret(context.Background(), "shared")
	if err != nil || got != "from-a" {
		t.Errorf("GetSecret(shared) = %q, %v, want from-a", got, err)
	}

	got, err = m.GetSecret(context.Background(), "only-b")
	if err != nil || got != "b-val" {
		t.Errorf("GetSecret(only-b) = %q, %v, want b-val", got, err)
	}
}

func TestManager_UnknownSecret(t *testing.T) {
	m := NewManager([]SecretProvider{&stubProvider{name: "a"}}, CacheConfig{})
	if _, err := m.GetSecret(context.Background(), "ghost"); err == nil {
		t.Error("GetSecret(unknown) expected error")
	}
}

func TestManager_CacheShortCircuitsProviders(t *testing.T) {
	p := &stubProvider{name: "a", values: map[string]string{"k": "v"}}
	m := NewManager([]SecretProvider{p}, CacheConfig{Enabled: true, TTL: time.Minute, MaxSize: 10})

	for i := 0; i < 3; i++ {
		if _, err := m.GetSecret(context.Background(), "k"); err != nil {
			t.Fatalf("GetSecret() error = %v", err)
		}
	}
	if p.calls != 1 {
		t.Errorf("provider calls = %d, want 1 (cache hits after first)", p.calls)
	}
}

func TestManager_ResolveReferences(t *testing.T) {
	p := &stubProvider{name: "a", values: map[string]string{"openai-prod": "sk-resolved"}}
	m := NewManager([]SecretProvider{p}, CacheConfig{})

	got, err := m.ResolveReferences(context.Background(), "${secret:openai-prod}")
	if err != nil || got != "sk-resolved" {
		t.Errorf("ResolveReferences() = %q, %v", got, err)
	}

	// Plain strings pass through untouched.
	got, err = m.ResolveReferences(context.Background(), "sk-literal-key")
	if err != nil || got != "sk-literal-key" {
		t.Errorf("ResolveReferences(literal) = %q, %v", got, err)
	}
}

func TestManager_ResolveReferences_UnresolvableKeepsReference(t *testing.T) {
	m := NewManager([]SecretProvider{&stubProvider{name: "a"}}, CacheConfig{})

	got, err := m.ResolveReferences(context.Background(), "prefix ${secret:missing} suffix")
	if err == nil {
		t.Error("expected error for unresolvable reference")
	}
	if !strings.Contains(got, "${secret:missing}") {
		t.Errorf("unresolved reference rewritten: %q", got)
	}
}

func TestManager_RefreshClearsCache(t *testing.T) {
	p := &stubProvider{name: "a", values: map[string]string{"k": "v"}}
	m := NewManager([]SecretProvider{p}, CacheConfig{Enabled: true, TTL: time.Hour, MaxSize: 10})

	m.GetSecret(context.Background(), "k")
	if err := m.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	m.GetSecret(context.Background(), "k")

	if p.calls != 2 {
		t.Errorf("provider calls = %d, want 2 (cache cleared between)", p.calls)
	}
}

func TestManager_ListSecretsUnion(t *testing.T) {
	m := NewManager([]SecretProvider{
		&stubProvider{name: "a", values: map[string]string{"x": "1", "y": "2"}},
		&stubProvider{name: "b", values: map[string]string{"y": "3", "z": "4"}},
		&stubProvider{name: "c", listErr: errors.New("down")},
	}, CacheConfig{})

	names, err := m.ListSecrets(context.Background())
	if err != nil {
		t.Fatalf("ListSecrets() error = %v", err)
	}
	if len(names) != 3 {
		t.Errorf("ListSecrets() = %v, want 3 distinct names", names)
	}
}

func TestPlaceholderProvidersDeclineEverything(t *testing.T) {
	providers := []SecretProvider{
		NewAWSKMSProvider("us-east-1", "key-1", true),
		NewGCPKMSProvider("proj", "global", "ring", "key", true),
		NewVaultProvider("https://vault.local:8200", "tok", "secret/gw", true),
	}
	for _, p := range providers {
		if p.Supports("anything") {
			t.Errorf("%s Supports() = true, want false", p.Provider())
		}
		if _, err := p.GetSecret(context.Background(), "anything"); err == nil {
			t.Errorf("%s GetSecret() expected error", p.Provider())
		}
	}
}
