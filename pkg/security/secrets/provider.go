package secrets

import "context"

// SecretProvider is one backend the manager can pull secret material
// from. Providers are chained: the first one that claims a name and
// returns a value wins.
type SecretProvider interface {
	// GetSecret returns the named secret's value, or an error when the
	// backend doesn't hold it or can't be reached.
	GetSecret(ctx context.Context, name string) (string, error)

	// ListSecrets returns the names this provider currently holds,
	// never the values.
	ListSecrets(ctx context.Context) ([]string, error)

	// Provider returns the backend's config-level name
	// (env, file, aws_kms, gcp_kms, vault).
	Provider() string

	// Supports reports whether this provider might hold the named
	// secret, letting the chain skip backends cheaply.
	Supports(name string) bool
}

// RefreshableProvider is a SecretProvider whose backing material can
// rotate at runtime (e.g. a mounted secret directory being updated).
type RefreshableProvider interface {
	SecretProvider

	// Refresh drops any internal state so the next GetSecret re-reads
	// the backend.
	Refresh(ctx context.Context) error
}
