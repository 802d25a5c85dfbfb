// Package health implements the gateway's key health service: a thin,
// concurrency-safe API over gatewaydb.Store that records per-key
// health transitions and serves cached reads.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"aperturegw/gateway/pkg/gatewaydb"
)

// Service tracks key health. Writes go through gatewaydb.Store; reads
// of ListHealthy are served from an in-memory read-mostly cache kept
// under a RWMutex. The cache is filled only by this service's own
// writes; it is never loaded from the store.
type Service struct {
	store  gatewaydb.Store
	logger *slog.Logger

	mu     sync.RWMutex
	cached map[string]gatewaydb.HealthStatus
	warm   bool
}

// NewService constructs a health service over the given store.
func NewService(store gatewaydb.Store) *Service {
	return &Service{
		store:  store,
		logger: slog.Default().With("component", "health"),
		cached: make(map[string]gatewaydb.HealthStatus),
	}
}

// MarkRateLimited records a key as rate-limited until resetsAt and
// enqueues a reset event on the reset scheduler. Failure is a warn log,
// never a retry.
func (s *Service) MarkRateLimited(ctx context.Context, keyID string, resetsAt time.Time, notify func(keyID string, at time.Time)) {
	if err := s.store.MarkKeyHealth(ctx, keyID, gatewaydb.HealthRateLimited, &resetsAt); err != nil {
		s.logger.Warn("mark_rate_limited failed", "key_id", keyID, "error", err)
		return
	}
	s.setCached(keyID, gatewaydb.HealthRateLimited)
	if notify != nil {
		notify(keyID, resetsAt)
	}
}

// MarkUnhealthy records a key as unhealthy, clearing resets_at and
// stamping the error time.
func (s *Service) MarkUnhealthy(ctx context.Context, keyID string) {
	if err := s.store.MarkKeyHealth(ctx, keyID, gatewaydb.HealthUnhealthy, nil); err != nil {
		s.logger.Warn("mark_unhealthy failed", "key_id", keyID, "error", err)
		return
	}
	s.setCached(keyID, gatewaydb.HealthUnhealthy)
}

// MarkHealthy clears resets_at/detail/last_error_time and marks the key
// healthy.
func (s *Service) MarkHealthy(ctx context.Context, keyID string) {
	if err := s.store.MarkKeyHealth(ctx, keyID, gatewaydb.HealthHealthy, nil); err != nil {
		s.logger.Warn("mark_healthy failed", "key_id", keyID, "error", err)
		return
	}
	s.setCached(keyID, gatewaydb.HealthHealthy)
}

// ListRateLimited lists every key the store currently considers rate
// limited, for the reset scheduler's crash-recovery reload.
func (s *Service) ListRateLimited(ctx context.Context) ([]*gatewaydb.ProviderKey, error) {
	return s.store.ListRateLimitedKeys(ctx)
}

// ListHealthy returns the IDs of keys this process has observed as
// healthy, for warming pool snapshots without a store round-trip.
func (s *Service) ListHealthy() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.cached))
	for id, st := range s.cached {
		if st == gatewaydb.HealthHealthy {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Service) setCached(keyID string, status gatewaydb.HealthStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached[keyID] = status
	s.warm = true
}

// MarkHealthyIfStillRateLimited implements resetscheduler.Resetter: it
// performs the delayed-validation reset a fired reset-queue entry
// triggers, deferring the "is it still rate_limited" check to the
// store so a key that was separately marked unhealthy or removed in
// the meantime is silently left alone.
func (s *Service) MarkHealthyIfStillRateLimited(ctx context.Context, keyID string) error {
	if err := s.store.MarkKeyReset(ctx, keyID); err != nil {
		return err
	}
	s.setCached(keyID, gatewaydb.HealthHealthy)
	return nil
}

// CachedStatus returns the last-known status for a key from the local
// cache, or ("", false) if it has never been observed by this process.
func (s *Service) CachedStatus(keyID string) (gatewaydb.HealthStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.cached[keyID]
	return st, ok
}
