package authresolver

import (
	"testing"
	"time"

	"aperturegw/gateway/pkg/gatewaydb"
)

func TestResolutionCache_SetAndGet(t *testing.T) {
	cache := NewResolutionCache(time.Hour, 100)
	defer cache.Close()

	sa := &gatewaydb.ServiceAPI{ID: "svc-1"}
	cache.Set("fp-1", sa)

	got, ok := cache.Get("fp-1")
	if !ok || got.ID != "svc-1" {
		t.Fatalf("Get() = %+v, ok=%v", got, ok)
	}

	if _, ok := cache.Get("fp-missing"); ok {
		t.Error("Get() returned true for a missing fingerprint")
	}
}

func TestResolutionCache_Expiry(t *testing.T) {
	cache := NewResolutionCache(50*time.Millisecond, 100)
	defer cache.Close()

	cache.Set("fp-1", &gatewaydb.ServiceAPI{ID: "svc-1"})

	if _, ok := cache.Get("fp-1"); !ok {
		t.Fatal("Get() failed immediately after Set()")
	}

	time.Sleep(100 * time.Millisecond)

	if _, ok := cache.Get("fp-1"); ok {
		t.Error("Get() returned true for an expired entry")
	}
}

func TestResolutionCache_LRUEviction(t *testing.T) {
	cache := NewResolutionCache(time.Hour, 2)
	defer cache.Close()

	cache.Set("fp-1", &gatewaydb.ServiceAPI{ID: "svc-1"})
	cache.Set("fp-2", &gatewaydb.ServiceAPI{ID: "svc-2"})
	cache.Get("fp-1")

	time.Sleep(10 * time.Millisecond)
	cache.Set("fp-3", &gatewaydb.ServiceAPI{ID: "svc-3"})

	if _, ok := cache.Get("fp-1"); !ok {
		t.Error("fp-1 was evicted but should have been kept (recently accessed)")
	}
	if _, ok := cache.Get("fp-2"); ok {
		t.Error("fp-2 should have been evicted as least-recently-used")
	}
	if _, ok := cache.Get("fp-3"); !ok {
		t.Error("fp-3 should be in cache")
	}
}

func TestResolutionCache_Invalidate(t *testing.T) {
	cache := NewResolutionCache(time.Hour, 100)
	defer cache.Close()

	cache.Set("fp-1", &gatewaydb.ServiceAPI{ID: "svc-1"})
	cache.Invalidate("fp-1")

	if _, ok := cache.Get("fp-1"); ok {
		t.Error("Get() succeeded after Invalidate()")
	}
}

func TestResolutionCache_RemoveExpired(t *testing.T) {
	cache := NewResolutionCache(50*time.Millisecond, 100)
	defer cache.Close()

	cache.Set("fp-1", &gatewaydb.ServiceAPI{ID: "svc-1"})
	cache.Set("fp-2", &gatewaydb.ServiceAPI{ID: "svc-2"})

	time.Sleep(100 * time.Millisecond)
	cache.removeExpired()

	if len(cache.entries) != 0 {
		t.Errorf("len(entries) = %d after removeExpired(), want 0", len(cache.entries))
	}
}
