package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// EnvProvider reads secrets from environment variables. A secret name
// maps to an env var by uppercasing, swapping hyphens for underscores,
// and prepending the configured prefix:
//
//	"openai-prod" with prefix "APERTURE_SECRET_" → APERTURE_SECRET_OPENAI_PROD
type EnvProvider struct {
	Prefix string
}

// NewEnvProvider builds an environment-variable provider with the
// given prefix.
func NewEnvProvider(prefix string) *EnvProvider {
	return &EnvProvider{Prefix: prefix}
}

// GetSecret reads the mapped environment variable.
func (p *EnvProvider) GetSecret(ctx context.Context, name string) (string, error) {
	envVar := p.envVarFor(name)
	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("secret not found in environment: %s (env var: %s)", name, envVar)
	}
	return value, nil
}

// ListSecrets scans the environment for variables under the prefix,
// mapping their names back to secret form.
func (p *EnvProvider) ListSecrets(ctx context.Context) ([]string, error) {
	var names []string
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, p.Prefix) {
			continue
		}
		key, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		names = append(names, p.secretNameFor(key))
	}
	return names, nil
}

// Provider returns "env".
func (p *EnvProvider) Provider() string { return "env" }

// Supports always reports true: any name might be set in the
// environment, which makes this provider the natural last link of a
// chain.
func (p *EnvProvider) Supports(name string) bool { return true }

func (p *EnvProvider) envVarFor(name string) string {
	return p.Prefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

func (p *EnvProvider) secretNameFor(envVar string) string {
	trimmed := strings.TrimPrefix(envVar, p.Prefix)
	return strings.ToLower(strings.ReplaceAll(trimmed, "_", "-"))
}
