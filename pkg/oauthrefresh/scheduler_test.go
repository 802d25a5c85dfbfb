package oauthrefresh

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"aperturegw/gateway/pkg/gatewaydb"
	"aperturegw/gateway/pkg/oauthclient"
)

func seedSession(store *gatewaydb.MemoryStore, sessionID string, expiresAt time.Time) {
	store.PutOAuthSession(&gatewaydb.OAuthSession{
		SessionID:        sessionID,
		TenantID:         "tenant-1",
		ProviderTypeID:   "pt-1",
		Status:           gatewaydb.OAuthAuthorized,
		AccessToken:      "old-access",
		RefreshToken:     "old-refresh",
		ExpiresAt:        &expiresAt,
		SessionExpiresAt: time.Now().Add(24 * time.Hour),
	})
	store.PutProviderKey(&gatewaydb.ProviderKey{
		ID: "key-" + sessionID, TenantID: "tenant-1", ProviderTypeID: "pt-1",
		AuthType: gatewaydb.AuthTypeOAuth, OAuthSessionID: sessionID,
		HealthStatus: gatewaydb.HealthHealthy, Active: true,
	})
}

func tokenEndpoint(t *testing.T, handler http.HandlerFunc) (ClientFor, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	clientFor := func(providerTypeID string) (*oauthclient.Client, error) {
		return oauthclient.New(oauthclient.ProviderEndpoints{
			TokenURL: srv.URL + "/token",
			ClientID: "client-1",
		}), nil
	}
	return clientFor, srv.Close
}

func TestRefreshNowLocked_PersistsRotatedTokens(t *testing.T) {
	store := gatewaydb.NewMemoryStore()
	seedSession(store, "sess-1", time.Now().Add(time.Minute))

	clientFor, closeSrv := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.FormValue("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.FormValue("refresh_token"); got != "old-refresh" {
			t.Errorf("refresh_token = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","refresh_token":"new-refresh","expires_in":3600,"token_type":"Bearer"}`))
	})
	defer closeSrv()

	s := New(store, clientFor, DefaultConfig())
	s.Start(context.Background(), nil)
	defer s.Stop(time.Second)

	if err := s.RefreshNowLocked(context.Background(), "sess-1"); err != nil {
		t.Fatalf("RefreshNowLocked: %v", err)
	}

	sess, err := store.LoadOAuthSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("LoadOAuthSession: %v", err)
	}
	if sess.AccessToken != "new-access" {
		t.Errorf("access token = %q, want new-access", sess.AccessToken)
	}
	if sess.RefreshToken != "new-refresh" {
		t.Errorf("refresh token = %q, want new-refresh", sess.RefreshToken)
	}
	if sess.ExpiresAt == nil || time.Until(*sess.ExpiresAt) < 50*time.Minute {
		t.Errorf("expires_at = %v, want roughly an hour out", sess.ExpiresAt)
	}
}

func TestRefresh_MissingRefreshTokenKeepsPrevious(t *testing.T) {
	store := gatewaydb.NewMemoryStore()
	seedSession(store, "sess-1", time.Now().Add(time.Minute))

	clientFor, closeSrv := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","expires_in":3600,"token_type":"Bearer"}`))
	})
	defer closeSrv()

	s := New(store, clientFor, DefaultConfig())
	s.Start(context.Background(), nil)
	defer s.Stop(time.Second)

	if err := s.RefreshNowLocked(context.Background(), "sess-1"); err != nil {
		t.Fatalf("RefreshNowLocked: %v", err)
	}

	sess, _ := store.LoadOAuthSession(context.Background(), "sess-1")
	if sess.RefreshToken != "old-refresh" {
		t.Errorf("refresh token = %q, want the previous one kept", sess.RefreshToken)
	}
}

func TestRefresh_InvalidGrantMarksSessionError(t *testing.T) {
	store := gatewaydb.NewMemoryStore()
	seedSession(store, "sess-1", time.Now().Add(time.Minute))

	clientFor, closeSrv := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	})
	defer closeSrv()

	s := New(store, clientFor, DefaultConfig())
	s.Start(context.Background(), nil)
	defer s.Stop(time.Second)

	if err := s.RefreshNowLocked(context.Background(), "sess-1"); err == nil {
		t.Fatal("expected an error for invalid_grant")
	}

	sess, _ := store.LoadOAuthSession(context.Background(), "sess-1")
	if sess.Status != gatewaydb.OAuthError {
		t.Errorf("session status = %s, want error", sess.Status)
	}
}

func TestRefresh_SkipsUnauthorizedSession(t *testing.T) {
	store := gatewaydb.NewMemoryStore()
	exp := time.Now().Add(time.Minute)
	store.PutOAuthSession(&gatewaydb.OAuthSession{
		SessionID: "sess-1", Status: gatewaydb.OAuthRevoked,
		RefreshToken: "old-refresh", ExpiresAt: &exp,
		SessionExpiresAt: time.Now().Add(24 * time.Hour),
	})

	var hits atomic.Int32
	clientFor, closeSrv := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})
	defer closeSrv()

	s := New(store, clientFor, DefaultConfig())
	s.Start(context.Background(), nil)
	defer s.Stop(time.Second)

	if err := s.RefreshNowLocked(context.Background(), "sess-1"); err != nil {
		t.Fatalf("RefreshNowLocked on revoked session should no-op, got %v", err)
	}
	if hits.Load() != 0 {
		t.Errorf("token endpoint hit %d times for a revoked session", hits.Load())
	}
}

func TestScheduler_StartupSeedsDueSessionImmediately(t *testing.T) {
	store := gatewaydb.NewMemoryStore()
	seedSession(store, "sess-1", time.Now().Add(time.Minute))

	refreshed := make(chan struct{}, 1)
	clientFor, closeSrv := tokenEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case refreshed <- struct{}{}:
		default:
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"new-access","expires_in":3600,"token_type":"Bearer"}`))
	})
	defer closeSrv()

	s := New(store, clientFor, DefaultConfig())
	s.Start(context.Background(), []Seed{{SessionID: "sess-1", NextRefreshAt: time.Now().Add(-time.Second)}})
	defer s.Stop(time.Second)

	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("past-due seed was not refreshed at startup")
	}
}
