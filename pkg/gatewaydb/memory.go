package gatewaydb

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store using in-memory maps guarded by a
// single RWMutex. It is intended for tests and as a zero-dependency
// fallback.
type MemoryStore struct {
	mu            sync.RWMutex
	tenants       map[string]*Tenant
	providerTypes map[string]*ProviderType
	providerKeys  map[string]*ProviderKey
	oauthSessions map[string]*OAuthSession
	serviceAPIs   map[string]*ServiceAPI
	traces        map[string]*Trace
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants:       make(map[string]*Tenant),
		providerTypes: make(map[string]*ProviderType),
		providerKeys:  make(map[string]*ProviderKey),
		oauthSessions: make(map[string]*OAuthSession),
		serviceAPIs:   make(map[string]*ServiceAPI),
		traces:        make(map[string]*Trace),
	}
}

// Seed helpers below let tests and the CLI populate the store directly,
// bypassing any management-plane API (which is explicitly out of scope).

func (m *MemoryStore) PutTenant(t *Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.tenants[t.ID] = &cp
}

func (m *MemoryStore) PutProviderType(p *ProviderType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.providerTypes[p.ID] = &cp
}

func (m *MemoryStore) PutProviderKey(k *ProviderKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *k
	m.providerKeys[k.ID] = &cp
}

func (m *MemoryStore) PutOAuthSession(s *OAuthSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.oauthSessions[s.SessionID] = &cp
}

func (m *MemoryStore) PutServiceAPI(s *ServiceAPI) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.serviceAPIs[s.ID] = &cp
}

func (m *MemoryStore) LoadTenant(ctx context.Context, id string) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenants[id]
	if !ok {
		return nil, NewNotFoundError("memory", "load_tenant")
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) LoadServiceAPI(ctx context.Context, id string) (*ServiceAPI, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sa, ok := m.serviceAPIs[id]
	if !ok {
		return nil, NewNotFoundError("memory", "load_service_api")
	}

	for _, keyID := range sa.PoolKeyIDs {
		if k, ok := m.providerKeys[keyID]; ok && k.TenantID != sa.TenantID {
			return nil, NewConfigError(sa.ID, "pool references a key owned by a different tenant")
		}
	}

	cp := *sa
	return &cp, nil
}

func (m *MemoryStore) LoadServiceAPIByFingerprint(ctx context.Context, fingerprint string) (*ServiceAPI, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sa := range m.serviceAPIs {
		if sa.CredentialFingerprint == fingerprint {
			for _, keyID := range sa.PoolKeyIDs {
				if k, ok := m.providerKeys[keyID]; ok && k.TenantID != sa.TenantID {
					return nil, NewConfigError(sa.ID, "pool references a key owned by a different tenant")
				}
			}
			cp := *sa
			return &cp, nil
		}
	}
	return nil, NewNotFoundError("memory", "load_service_api_by_fingerprint")
}

func (m *MemoryStore) LoadProviderType(ctx context.Context, id string) (*ProviderType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pt, ok := m.providerTypes[id]
	if !ok {
		return nil, NewNotFoundError("memory", "load_provider_type")
	}
	cp := *pt
	return &cp, nil
}

func (m *MemoryStore) LoadProviderKeys(ctx context.Context, ids []string) ([]*ProviderKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*ProviderKey, 0, len(ids))
	for _, id := range ids {
		k, ok := m.providerKeys[id]
		if !ok || !k.Active {
			continue
		}
		cp := *k
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) LoadOAuthSession(ctx context.Context, sessionID string) (*OAuthSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.oauthSessions[sessionID]
	if !ok {
		return nil, NewNotFoundError("memory", "load_oauth_session")
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) PersistOAuthTokens(ctx context.Context, sessionID, accessToken, refreshToken, idToken string, expiresAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.oauthSessions[sessionID]
	if !ok {
		return NewNotFoundError("memory", "persist_oauth_tokens")
	}

	s.AccessToken = accessToken
	if refreshToken != "" {
		s.RefreshToken = refreshToken
	}
	if idToken != "" {
		s.IDToken = idToken
	}
	s.ExpiresAt = expiresAt
	s.Status = OAuthAuthorized
	return nil
}

func (m *MemoryStore) MarkOAuthSessionError(ctx context.Context, sessionID, cause string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.oauthSessions[sessionID]
	if !ok {
		return NewNotFoundError("memory", "mark_oauth_session_error")
	}
	s.Status = OAuthError
	s.ErrorMessage = cause
	return nil
}

func (m *MemoryStore) MarkKeyHealth(ctx context.Context, keyID string, status HealthStatus, resetsAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k, ok := m.providerKeys[keyID]
	if !ok {
		return NewNotFoundError("memory", "mark_key_health")
	}

	k.HealthStatus = status
	switch status {
	case HealthRateLimited:
		k.RateLimitResetsAt = resetsAt
		k.LastErrorAt = nil
	case HealthUnhealthy:
		k.RateLimitResetsAt = nil
		now := time.Now()
		k.LastErrorAt = &now
	case HealthHealthy:
		k.RateLimitResetsAt = nil
		k.LastErrorAt = nil
	}
	return nil
}

func (m *MemoryStore) MarkKeyReset(ctx context.Context, keyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k, ok := m.providerKeys[keyID]
	if !ok {
		// Deleted keys are silently skipped: delayed validation means
		// there is no separate cancellation path for pending resets.
		return nil
	}
	if k.HealthStatus != HealthRateLimited {
		return nil
	}
	k.HealthStatus = HealthHealthy
	k.RateLimitResetsAt = nil
	return nil
}

func (m *MemoryStore) TraceInsert(ctx context.Context, t *Trace) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *t
	m.traces[t.RequestID] = &cp
	return nil
}

func (m *MemoryStore) TraceUpdateIntermediate(ctx context.Context, requestID string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.traces[requestID]
	if !ok {
		return NewNotFoundError("memory", "trace_update_intermediate")
	}
	if v, ok := fields["provider_type_id"].(string); ok {
		t.ProviderTypeID = v
	}
	if v, ok := fields["provider_key_id"].(string); ok {
		t.ProviderKeyID = v
	}
	if v, ok := fields["service_api_id"].(string); ok {
		t.ServiceAPIID = v
	}
	return nil
}

func (m *MemoryStore) TraceUpdateCompletion(ctx context.Context, t *Trace) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.traces[t.RequestID]
	if !ok {
		return NewNotFoundError("memory", "trace_update_completion")
	}

	existing.StatusCode = t.StatusCode
	existing.Success = t.Success
	existing.CompletedAt = t.CompletedAt
	existing.DurationMS = t.DurationMS
	existing.TokensPrompt = t.TokensPrompt
	existing.TokensCompletion = t.TokensCompletion
	existing.TokensTotal = t.TokensTotal
	existing.CacheCreateTokens = t.CacheCreateTokens
	existing.CacheReadTokens = t.CacheReadTokens
	existing.Cost = t.Cost
	existing.CostCurrency = t.CostCurrency
	existing.ModelUsed = t.ModelUsed
	existing.ErrorType = t.ErrorType
	existing.ErrorMessage = t.ErrorMessage
	existing.ProviderTypeID = t.ProviderTypeID
	existing.ProviderKeyID = t.ProviderKeyID
	return nil
}

func (m *MemoryStore) ListRateLimitedKeys(ctx context.Context) ([]*ProviderKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*ProviderKey, 0)
	for _, k := range m.providerKeys {
		if k.HealthStatus == HealthRateLimited {
			cp := *k
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListAuthorizedOAuthSessions(ctx context.Context) ([]*OAuthSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	referenced := make(map[string]bool)
	for _, k := range m.providerKeys {
		if k.Active && k.AuthType == AuthTypeOAuth && k.OAuthSessionID != "" {
			referenced[k.OAuthSessionID] = true
		}
	}

	out := make([]*OAuthSession, 0)
	for id, sess := range m.oauthSessions {
		if referenced[id] && sess.Status == OAuthAuthorized {
			cp := *sess
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) ListActiveSessionsForTenant(ctx context.Context, tenantID string) ([]*OAuthSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*OAuthSession, 0)
	for _, sess := range m.oauthSessions {
		if sess.TenantID != tenantID {
			continue
		}
		if sess.Status == OAuthError || sess.Status == OAuthRevoked || sess.Status == OAuthExpired {
			continue
		}
		if sess.IsExpired() {
			continue
		}
		cp := *sess
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MemoryStore) RevokeTenantSessions(ctx context.Context, tenantID, reason string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var revoked int64
	for _, sess := range m.oauthSessions {
		if sess.TenantID != tenantID {
			continue
		}
		if sess.Status == OAuthError || sess.Status == OAuthRevoked || sess.Status == OAuthExpired {
			continue
		}
		sess.Status = OAuthRevoked
		sess.ErrorMessage = reason
		sess.CompletedAt = &now
		revoked++
	}
	return revoked, nil
}

func (m *MemoryStore) PruneTraces(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted int64
	for id, t := range m.traces {
		if t.CompletedAt != nil && t.CompletedAt.Before(cutoff) {
			delete(m.traces, id)
			deleted++
		}
	}
	return deleted, nil
}

// TraceRequestIDs lists the request IDs of every stored trace row,
// for tests; the Store interface itself never enumerates traces.
func (m *MemoryStore) TraceRequestIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.traces))
	for id := range m.traces {
		out = append(out, id)
	}
	return out
}

// LoadTrace returns a trace row by request ID, for tests and operator
// inspection; the Store interface itself never reads traces back.
func (m *MemoryStore) LoadTrace(requestID string) (*Trace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.traces[requestID]
	if !ok {
		return nil, NewNotFoundError("memory", "load_trace")
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
