package authresolver

import (
	"net/http/httptest"
	"testing"
)

func TestExtract_OrderedSurfaces(t *testing.T) {
	t.Run("bearer wins over everything else", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/chat/completions?api_key=query-cred", nil)
		req.Header.Set("Authorization", "Bearer bearer-cred")
		req.Header.Set("x-api-key", "header-cred")

		cred, ok := Extract(req, "api_key")
		if !ok || cred.Raw != "bearer-cred" || cred.Surface != SurfaceBearer {
			t.Fatalf("unexpected credential: %+v ok=%v", cred, ok)
		}
	})

	t.Run("x-api-key wins over api-key and query", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/chat/completions?api_key=query-cred", nil)
		req.Header.Set("x-api-key", "header-cred")
		req.Header.Set("api-key", "alt-header-cred")

		cred, ok := Extract(req, "api_key")
		if !ok || cred.Raw != "header-cred" || cred.Surface != SurfaceAPIKeyHdr {
			t.Fatalf("unexpected credential: %+v ok=%v", cred, ok)
		}
	})

	t.Run("api-key header used when x-api-key absent", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/chat/completions", nil)
		req.Header.Set("api-key", "alt-header-cred")

		cred, ok := Extract(req, "api_key")
		if !ok || cred.Raw != "alt-header-cred" || cred.Surface != SurfaceAPIKeyHdr {
			t.Fatalf("unexpected credential: %+v ok=%v", cred, ok)
		}
	})

	t.Run("query param is the last resort", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/chat/completions?api_key=query-cred", nil)

		cred, ok := Extract(req, "api_key")
		if !ok || cred.Raw != "query-cred" || cred.Surface != SurfaceQueryParam {
			t.Fatalf("unexpected credential: %+v ok=%v", cred, ok)
		}
	})

	t.Run("empty bearer token falls through", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/chat/completions", nil)
		req.Header.Set("Authorization", "Bearer ")

		_, ok := Extract(req, "api_key")
		if ok {
			t.Fatal("expected no credential for an empty bearer token")
		}
	})

	t.Run("nothing present", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/chat/completions", nil)
		_, ok := Extract(req, "api_key")
		if ok {
			t.Fatal("expected no credential")
		}
	})
}

func TestFingerprint_StableAndDistinct(t *testing.T) {
	a := Fingerprint("sk-live-abc")
	b := Fingerprint("sk-live-abc")
	c := Fingerprint("sk-live-xyz")

	if a != b {
		t.Fatal("fingerprint must be stable for the same input")
	}
	if a == c {
		t.Fatal("fingerprint must differ for different input")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64-char hex digest, got %d chars", len(a))
	}
}
