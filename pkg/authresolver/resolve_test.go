package authresolver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"aperturegw/gateway/pkg/gatewaydb"
)

func newResolverStore(t *testing.T, tenant *gatewaydb.Tenant, sa *gatewaydb.ServiceAPI) *gatewaydb.MemoryStore {
	t.Helper()
	store := gatewaydb.NewMemoryStore()
	store.PutTenant(tenant)
	store.PutServiceAPI(sa)
	return store
}

func bearerRequest(token string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestResolver_Resolve_Success(t *testing.T) {
	tenant := &gatewaydb.Tenant{ID: "tenant-1", Active: true}
	sa := &gatewaydb.ServiceAPI{
		ID:                    "svc-1",
		TenantID:              "tenant-1",
		CredentialFingerprint: Fingerprint("sk-live-abc"),
		Active:                true,
	}
	store := newResolverStore(t, tenant, sa)
	r := New(store, Config{})
	defer r.Close()

	result, err := r.Resolve(context.Background(), bearerRequest("sk-live-abc"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TenantID != "tenant-1" || result.ServiceAPI.ID != "svc-1" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Credential.Surface != SurfaceBearer {
		t.Fatalf("expected bearer surface, got %s", result.Credential.Surface)
	}
}

func TestResolver_Resolve_NoCredential(t *testing.T) {
	store := gatewaydb.NewMemoryStore()
	r := New(store, Config{})
	defer r.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	_, err := r.Resolve(context.Background(), req)

	var authErr *AuthenticationFailedError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthenticationFailedError, got %v", err)
	}
}

func TestResolver_Resolve_UnknownFingerprint(t *testing.T) {
	store := gatewaydb.NewMemoryStore()
	r := New(store, Config{})
	defer r.Close()

	_, err := r.Resolve(context.Background(), bearerRequest("sk-unknown"))

	var authErr *AuthenticationFailedError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthenticationFailedError, got %v", err)
	}
}

func TestResolver_Resolve_InactiveTenantRejected(t *testing.T) {
	tenant := &gatewaydb.Tenant{ID: "tenant-1", Active: false}
	sa := &gatewaydb.ServiceAPI{
		ID:                    "svc-1",
		TenantID:              "tenant-1",
		CredentialFingerprint: Fingerprint("sk-live-abc"),
		Active:                true,
	}
	store := newResolverStore(t, tenant, sa)
	r := New(store, Config{})
	defer r.Close()

	_, err := r.Resolve(context.Background(), bearerRequest("sk-live-abc"))
	var authErr *AuthenticationFailedError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthenticationFailedError, got %v", err)
	}
}

func TestResolver_Resolve_InactiveServiceAPIRejected(t *testing.T) {
	tenant := &gatewaydb.Tenant{ID: "tenant-1", Active: true}
	sa := &gatewaydb.ServiceAPI{
		ID:                    "svc-1",
		TenantID:              "tenant-1",
		CredentialFingerprint: Fingerprint("sk-live-abc"),
		Active:                false,
	}
	store := newResolverStore(t, tenant, sa)
	r := New(store, Config{})
	defer r.Close()

	_, err := r.Resolve(context.Background(), bearerRequest("sk-live-abc"))
	var authErr *AuthenticationFailedError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthenticationFailedError, got %v", err)
	}
}

func TestResolver_Resolve_RateLimitEnforced(t *testing.T) {
	tenant := &gatewaydb.Tenant{ID: "tenant-1", Active: true}
	sa := &gatewaydb.ServiceAPI{
		ID:                    "svc-1",
		TenantID:              "tenant-1",
		CredentialFingerprint: Fingerprint("sk-live-abc"),
		RateLimitPerMinute:    1,
		Active:                true,
	}
	store := newResolverStore(t, tenant, sa)
	r := New(store, Config{})
	defer r.Close()

	if _, err := r.Resolve(context.Background(), bearerRequest("sk-live-abc")); err != nil {
		t.Fatalf("first request should be allowed: %v", err)
	}

	_, err := r.Resolve(context.Background(), bearerRequest("sk-live-abc"))
	var limitErr *UsageLimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected UsageLimitExceededError, got %v", err)
	}
	if limitErr.Kind != "requests_per_min" {
		t.Fatalf("unexpected kind: %s", limitErr.Kind)
	}
}

func TestResolver_Resolve_PathRestriction(t *testing.T) {
	tenant := &gatewaydb.Tenant{ID: "tenant-1", Active: true}
	sa := &gatewaydb.ServiceAPI{
		ID:                    "svc-1",
		TenantID:              "tenant-1",
		CredentialFingerprint: Fingerprint("sk-live-abc"),
		AllowedPathPrefixes:   []string{"/v1/messages"},
		Active:                true,
	}
	store := newResolverStore(t, tenant, sa)
	r := New(store, Config{})
	defer r.Close()

	_, err := r.Resolve(context.Background(), bearerRequest("sk-live-abc"))
	var authErr *AuthenticationFailedError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected path restriction to reject, got %v", err)
	}
}

func TestResolver_Resolve_CacheHitSkipsStoreLookup(t *testing.T) {
	tenant := &gatewaydb.Tenant{ID: "tenant-1", Active: true}
	sa := &gatewaydb.ServiceAPI{
		ID:                    "svc-1",
		TenantID:              "tenant-1",
		CredentialFingerprint: Fingerprint("sk-live-abc"),
		Active:                true,
	}
	store := newResolverStore(t, tenant, sa)
	r := New(store, Config{})
	defer r.Close()

	if _, err := r.Resolve(context.Background(), bearerRequest("sk-live-abc")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store.PutServiceAPI(&gatewaydb.ServiceAPI{ID: "svc-1", TenantID: "tenant-1", Active: false})

	result, err := r.Resolve(context.Background(), bearerRequest("sk-live-abc"))
	if err != nil {
		t.Fatalf("expected cached hit to bypass the now-inactive store row: %v", err)
	}
	if result.ServiceAPI.ID != "svc-1" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestResolver_Resolve_InvalidateForcesReload(t *testing.T) {
	tenant := &gatewaydb.Tenant{ID: "tenant-1", Active: true}
	sa := &gatewaydb.ServiceAPI{
		ID:                    "svc-1",
		TenantID:              "tenant-1",
		CredentialFingerprint: Fingerprint("sk-live-abc"),
		Active:                true,
	}
	store := newResolverStore(t, tenant, sa)
	r := New(store, Config{})
	defer r.Close()

	if _, err := r.Resolve(context.Background(), bearerRequest("sk-live-abc")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	store.PutServiceAPI(&gatewaydb.ServiceAPI{
		ID: "svc-1", TenantID: "tenant-1",
		CredentialFingerprint: Fingerprint("sk-live-abc"),
		Active:                false,
	})
	r.Invalidate(Fingerprint("sk-live-abc"))

	_, err := r.Resolve(context.Background(), bearerRequest("sk-live-abc"))
	var authErr *AuthenticationFailedError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected invalidation to force a reload reflecting the inactive row, got %v", err)
	}
}
