package gatewaydb

import (
	"context"
	"testing"
	"time"
)

func TestLoadProviderKeys_PreservesRequestOrder(t *testing.T) {
	m := NewMemoryStore()
	for _, id := range []string{"a", "b", "c"} {
		m.PutProviderKey(&ProviderKey{ID: id, Active: true, HealthStatus: HealthHealthy})
	}

	keys, err := m.LoadProviderKeys(context.Background(), []string{"c", "a", "b"})
	if err != nil {
		t.Fatalf("LoadProviderKeys: %v", err)
	}
	got := []string{keys[0].ID, keys[1].ID, keys[2].ID}
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestLoadProviderKeys_FiltersInactive(t *testing.T) {
	m := NewMemoryStore()
	m.PutProviderKey(&ProviderKey{ID: "live", Active: true, HealthStatus: HealthHealthy})
	m.PutProviderKey(&ProviderKey{ID: "dead", Active: false, HealthStatus: HealthHealthy})

	keys, err := m.LoadProviderKeys(context.Background(), []string{"live", "dead"})
	if err != nil {
		t.Fatalf("LoadProviderKeys: %v", err)
	}
	if len(keys) != 1 || keys[0].ID != "live" {
		t.Fatalf("keys = %+v, want only the active key", keys)
	}
}

func TestMarkKeyReset_DelayedValidation(t *testing.T) {
	m := NewMemoryStore()
	resetsAt := time.Now().Add(time.Minute)
	m.PutProviderKey(&ProviderKey{ID: "k1", Active: true, HealthStatus: HealthRateLimited, RateLimitResetsAt: &resetsAt})

	if err := m.MarkKeyReset(context.Background(), "k1"); err != nil {
		t.Fatalf("MarkKeyReset: %v", err)
	}
	keys, _ := m.LoadProviderKeys(context.Background(), []string{"k1"})
	if keys[0].HealthStatus != HealthHealthy || keys[0].RateLimitResetsAt != nil {
		t.Fatalf("key = %+v, want healthy with cleared resets_at", keys[0])
	}

	// A reset on an unhealthy key, and on a deleted key, both no-op.
	m.PutProviderKey(&ProviderKey{ID: "k2", Active: true, HealthStatus: HealthUnhealthy})
	if err := m.MarkKeyReset(context.Background(), "k2"); err != nil {
		t.Fatalf("MarkKeyReset on unhealthy: %v", err)
	}
	keys, _ = m.LoadProviderKeys(context.Background(), []string{"k2"})
	if keys[0].HealthStatus != HealthUnhealthy {
		t.Fatalf("unhealthy key transitioned by reset: %+v", keys[0])
	}

	if err := m.MarkKeyReset(context.Background(), "missing"); err != nil {
		t.Fatalf("MarkKeyReset on a deleted key should no-op, got %v", err)
	}
}

func TestListAuthorizedOAuthSessions_OnlyActiveOAuthKeys(t *testing.T) {
	m := NewMemoryStore()
	exp := time.Now().Add(time.Hour)

	m.PutOAuthSession(&OAuthSession{SessionID: "s-live", Status: OAuthAuthorized, ExpiresAt: &exp})
	m.PutOAuthSession(&OAuthSession{SessionID: "s-errored", Status: OAuthError, ExpiresAt: &exp})
	m.PutOAuthSession(&OAuthSession{SessionID: "s-orphan", Status: OAuthAuthorized, ExpiresAt: &exp})

	m.PutProviderKey(&ProviderKey{ID: "k1", Active: true, AuthType: AuthTypeOAuth, OAuthSessionID: "s-live"})
	m.PutProviderKey(&ProviderKey{ID: "k2", Active: true, AuthType: AuthTypeOAuth, OAuthSessionID: "s-errored"})
	m.PutProviderKey(&ProviderKey{ID: "k3", Active: false, AuthType: AuthTypeOAuth, OAuthSessionID: "s-orphan"})

	sessions, err := m.ListAuthorizedOAuthSessions(context.Background())
	if err != nil {
		t.Fatalf("ListAuthorizedOAuthSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].SessionID != "s-live" {
		t.Fatalf("sessions = %+v, want only s-live", sessions)
	}
}

func TestTenantSessionLifecycle(t *testing.T) {
	m := NewMemoryStore()
	future := time.Now().Add(time.Hour)

	m.PutOAuthSession(&OAuthSession{SessionID: "s1", TenantID: "t1", Status: OAuthAuthorized, SessionExpiresAt: future})
	m.PutOAuthSession(&OAuthSession{SessionID: "s2", TenantID: "t1", Status: OAuthPending, SessionExpiresAt: future})
	m.PutOAuthSession(&OAuthSession{SessionID: "s3", TenantID: "t1", Status: OAuthRevoked, SessionExpiresAt: future})
	m.PutOAuthSession(&OAuthSession{SessionID: "s4", TenantID: "t2", Status: OAuthAuthorized, SessionExpiresAt: future})
	m.PutOAuthSession(&OAuthSession{SessionID: "s5", TenantID: "t1", Status: OAuthAuthorized,
		SessionExpiresAt: time.Now().Add(-time.Minute)})

	active, err := m.ListActiveSessionsForTenant(context.Background(), "t1")
	if err != nil {
		t.Fatalf("ListActiveSessionsForTenant: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("active sessions = %d, want 2 (authorized + pending, excluding revoked/other-tenant/lifetime-expired)", len(active))
	}

	revoked, err := m.RevokeTenantSessions(context.Background(), "t1", "tenant offboarded")
	if err != nil {
		t.Fatalf("RevokeTenantSessions: %v", err)
	}
	if revoked != 3 {
		// s1, s2, and s5 (lifetime-expired but not yet terminal) all flip.
		t.Fatalf("revoked = %d, want 3", revoked)
	}

	s1, _ := m.LoadOAuthSession(context.Background(), "s1")
	if s1.Status != OAuthRevoked || s1.CompletedAt == nil || s1.ErrorMessage != "tenant offboarded" {
		t.Errorf("revoked session = %+v", s1)
	}

	other, _ := m.LoadOAuthSession(context.Background(), "s4")
	if other.Status != OAuthAuthorized {
		t.Error("other tenant's session must be untouched")
	}
}

func TestPruneTraces_RemovesOnlyCompletedOldRows(t *testing.T) {
	m := NewMemoryStore()
	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now()

	m.TraceInsert(context.Background(), &Trace{RequestID: "r-old", CreatedAt: old})
	m.TraceUpdateCompletion(context.Background(), &Trace{RequestID: "r-old", CompletedAt: &old, StatusCode: 200, Success: true})

	m.TraceInsert(context.Background(), &Trace{RequestID: "r-recent", CreatedAt: recent})
	m.TraceUpdateCompletion(context.Background(), &Trace{RequestID: "r-recent", CompletedAt: &recent, StatusCode: 200, Success: true})

	m.TraceInsert(context.Background(), &Trace{RequestID: "r-inflight", CreatedAt: old})

	deleted, err := m.PruneTraces(context.Background(), time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneTraces: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
	if _, err := m.LoadTrace("r-recent"); err != nil {
		t.Error("recent completed trace should survive pruning")
	}
	if _, err := m.LoadTrace("r-inflight"); err != nil {
		t.Error("in-flight trace should survive pruning regardless of age")
	}
}

func TestTraceLifecycle_TwoPhase(t *testing.T) {
	m := NewMemoryStore()
	created := time.Now()

	if err := m.TraceInsert(context.Background(), &Trace{
		RequestID: "r1", Method: "POST", Path: "/v1/messages", CreatedAt: created,
	}); err != nil {
		t.Fatalf("TraceInsert: %v", err)
	}

	completed := created.Add(150 * time.Millisecond)
	if err := m.TraceUpdateCompletion(context.Background(), &Trace{
		RequestID: "r1", StatusCode: 200, Success: true,
		CompletedAt: &completed, DurationMS: 150, TokensPrompt: 12, TokensCompletion: 34,
	}); err != nil {
		t.Fatalf("TraceUpdateCompletion: %v", err)
	}

	got, err := m.LoadTrace("r1")
	if err != nil {
		t.Fatalf("LoadTrace: %v", err)
	}
	if got.Method != "POST" || got.StatusCode != 200 || !got.Success || got.CompletedAt == nil {
		t.Fatalf("trace = %+v, want merged phase-1+phase-2 fields", got)
	}

	if err := m.TraceUpdateCompletion(context.Background(), &Trace{RequestID: "missing"}); err == nil {
		t.Error("completion of an unknown request should fail")
	}
}
