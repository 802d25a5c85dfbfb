package authresolver

import (
	"sync"

	"aperturegw/gateway/pkg/limits/ratelimit"
)

// apiLimiters lazily builds one TokenBucket per ServiceAPI, keyed by ID.
// A ServiceAPI with RateLimitPerMinute <= 0 is unlimited and never gets
// a bucket.
type apiLimiters struct {
	mu      sync.Mutex
	buckets map[string]*ratelimit.TokenBucket
}

func newAPILimiters() *apiLimiters {
	return &apiLimiters{buckets: make(map[string]*ratelimit.TokenBucket)}
}

func (l *apiLimiters) bucketFor(serviceAPIID string, perMinute int) *ratelimit.TokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[serviceAPIID]; ok {
		return b
	}
	b := ratelimit.NewTokenBucket(int64(perMinute), float64(perMinute)/60.0)
	l.buckets[serviceAPIID] = b
	return b
}
