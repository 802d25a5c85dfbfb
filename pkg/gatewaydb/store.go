package gatewaydb

import (
	"context"
	"time"
)

// Store is the gateway's typed data-access interface. Every operation
// is fallible and context-aware; implementations must never panic and
// must surface failures as *DataStoreError.
type Store interface {
	// LoadTenant loads a Tenant by ID.
	LoadTenant(ctx context.Context, id string) (*Tenant, error)

	// LoadServiceAPI loads a ServiceAPI by ID. A cross-tenant pool
	// reference (a PoolKeyIDs entry owned by a different tenant) is
	// rejected here as a *ConfigError rather than surfacing later as a
	// selection failure.
	LoadServiceAPI(ctx context.Context, id string) (*ServiceAPI, error)

	// LoadServiceAPIByFingerprint looks up a ServiceAPI by its bound
	// credential's SHA-256 fingerprint, the indexed lookup performed
	// on every inbound request.
	LoadServiceAPIByFingerprint(ctx context.Context, fingerprint string) (*ServiceAPI, error)

	// LoadProviderType loads a ProviderType by ID.
	LoadProviderType(ctx context.Context, id string) (*ProviderType, error)

	// LoadProviderKeys loads keys by ID, preserving the order of ids,
	// filtered to active keys at the storage level.
	LoadProviderKeys(ctx context.Context, ids []string) ([]*ProviderKey, error)

	// LoadOAuthSession loads a session by ID.
	LoadOAuthSession(ctx context.Context, sessionID string) (*OAuthSession, error)

	// PersistOAuthTokens writes refreshed/exchanged tokens back onto a
	// session.
	PersistOAuthTokens(ctx context.Context, sessionID, accessToken, refreshToken, idToken string, expiresAt *time.Time) error

	// MarkOAuthSessionError transitions a session to OAuthError status,
	// recording cause as its error_message, for a permanently failed
	// exchange or refresh.
	MarkOAuthSessionError(ctx context.Context, sessionID, cause string) error

	// MarkKeyHealth sets a key's health status and, for rate_limited,
	// its resets_at timestamp.
	MarkKeyHealth(ctx context.Context, keyID string, status HealthStatus, resetsAt *time.Time) error

	// MarkKeyReset performs delayed validation: it transitions a key to
	// healthy only if the key is still rate_limited at call time,
	// silently no-opping otherwise (the key may have been marked
	// unhealthy, removed, or already reset).
	MarkKeyReset(ctx context.Context, keyID string) error

	// TraceInsert is tracing writer Phase 1: an unconditional insert at
	// START, synchronous, must return before AUTH proceeds.
	TraceInsert(ctx context.Context, t *Trace) error

	// TraceUpdateIntermediate performs a best-effort field update (e.g.
	// provider_type_id after RESOLVE_UPSTREAM). Failures must be logged
	// by the caller, never surfaced as a request failure.
	TraceUpdateIntermediate(ctx context.Context, requestID string, fields map[string]any) error

	// TraceUpdateCompletion is tracing writer Phase 2: the single
	// completion update, called exactly once per request.
	TraceUpdateCompletion(ctx context.Context, t *Trace) error

	// ListRateLimitedKeys lists all currently rate_limited keys, used
	// for reset-scheduler startup crash recovery.
	ListRateLimitedKeys(ctx context.Context) ([]*ProviderKey, error)

	// ListAuthorizedOAuthSessions lists authorized sessions referenced
	// by active OAuth-typed keys, used for refresh-scheduler startup
	// seeding.
	ListAuthorizedOAuthSessions(ctx context.Context) ([]*OAuthSession, error)

	// ListActiveSessionsForTenant lists a tenant's sessions that are
	// neither terminal nor past their session lifetime, for operator
	// inspection.
	ListActiveSessionsForTenant(ctx context.Context, tenantID string) ([]*OAuthSession, error)

	// RevokeTenantSessions bulk-revokes a tenant's active sessions,
	// recording reason and stamping completion, returning the number
	// revoked.
	RevokeTenantSessions(ctx context.Context, tenantID, reason string) (int64, error)

	// PruneTraces deletes trace rows completed before cutoff, returning
	// the number removed. Run periodically by the retention job.
	PruneTraces(ctx context.Context, cutoff time.Time) (int64, error)

	// Close releases resources held by the store.
	Close() error
}
