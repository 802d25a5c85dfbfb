package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// secretRefPattern matches ${secret:name} references in stored
// credential material.
var secretRefPattern = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Manager chains secret providers behind a TTL cache. The gateway's
// REWRITE stage calls ResolveReferences on each selected ProviderKey's
// secret material, so a key row can hold "${secret:openai-prod}"
// instead of the raw upstream credential.
type Manager struct {
	providers []SecretProvider
	cache     *Cache
}

// NewManager builds a Manager over providers, tried in order.
func NewManager(providers []SecretProvider, cacheConfig CacheConfig) *Manager {
	return &Manager{
		providers: providers,
		cache:     NewCache(cacheConfig),
	}
}

// GetSecret resolves name through the cache and then the provider
// chain. The first provider that claims the name and returns a value
// wins; its value is cached.
func (m *Manager) GetSecret(ctx context.Context, name string) (string, error) {
	if value, ok := m.cache.Get(name); ok {
		return value, nil
	}

	var lastErr error
	for _, p := range m.providers {
		if !p.Supports(name) {
			continue
		}
		value, err := p.GetSecret(ctx, name)
		if err != nil {
			lastErr = err
			slog.Debug("secret provider miss",
				"provider", p.Provider(), "name", hintName(name), "error", err)
			continue
		}
		m.cache.Set(name, value)
		return value, nil
	}

	if lastErr != nil {
		return "", fmt.Errorf("failed to get secret %q: %w", name, lastErr)
	}
	return "", fmt.Errorf("secret not found: %q (no provider supports this secret)", name)
}

// ResolveReferences substitutes every ${secret:name} in input with the
// named secret's value. Unresolvable references are left in place and
// reported together in the returned error, so the caller can decide
// whether a partially resolved string is usable.
func (m *Manager) ResolveReferences(ctx context.Context, input string) (string, error) {
	var failures []string

	output := secretRefPattern.ReplaceAllStringFunc(input, func(ref string) string {
		name := secretRefPattern.FindStringSubmatch(ref)[1]
		value, err := m.GetSecret(ctx, name)
		if err != nil {
			failures = append(failures, fmt.Sprintf("failed to resolve secret %q: %v", name, err))
			return ref
		}
		return value
	})

	if len(failures) > 0 {
		return output, fmt.Errorf("failed to resolve secret references: %s", strings.Join(failures, "; "))
	}
	return output, nil
}

// Refresh reloads every refreshable provider and clears the cache, for
// secret rotation.
func (m *Manager) Refresh(ctx context.Context) error {
	var failures []string
	for _, p := range m.providers {
		refreshable, ok := p.(RefreshableProvider)
		if !ok {
			continue
		}
		if err := refreshable.Refresh(ctx); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", p.Provider(), err))
			slog.Error("secret provider refresh failed", "provider", p.Provider(), "error", err)
		}
	}
	m.cache.Clear()

	if len(failures) > 0 {
		return fmt.Errorf("failed to refresh some providers: %s", strings.Join(failures, "; "))
	}
	return nil
}

// ListSecrets returns the union of names across all providers, values
// never included.
func (m *Manager) ListSecrets(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	for _, p := range m.providers {
		names, err := p.ListSecrets(ctx)
		if err != nil {
			slog.Warn("listing secrets failed", "provider", p.Provider(), "error", err)
			continue
		}
		for _, n := range names {
			seen[n] = true
		}
	}

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	return out, nil
}

// hintName keeps enough of a secret name to debug with, without
// putting the full name in logs.
func hintName(name string) string {
	if len(name) <= 4 {
		return "***"
	}
	return name[:2] + "..." + name[len(name)-2:]
}
