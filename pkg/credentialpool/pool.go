// Package credentialpool implements the credential pool/scheduler:
// resolve a ServiceAPI's key pool, filter to eligible keys, fall back
// to the full active set in degraded mode, and apply a scheduling
// strategy to pick one key.
package credentialpool

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"aperturegw/gateway/pkg/gatewaydb"
	"aperturegw/gateway/pkg/telemetry/metrics"
)

// Config tunes degraded-mode behavior.
type Config struct {
	// AllowDegraded enables falling back to the full active set when
	// the eligible set is empty but the active set is non-empty,
	// preserving availability at the risk of hitting known-bad keys.
	AllowDegraded bool

	// Metrics receives selection instrumentation. Nil disables it.
	Metrics *metrics.Collector
}

// Pool selects ProviderKeys for ServiceAPIs. It caches nothing
// durable across calls; selection always re-resolves the pool from
// the store.
type Pool struct {
	store         gatewaydb.Store
	sessionStatus SessionStatusFor
	config        Config
	logger        *slog.Logger

	mu         sync.Mutex
	strategies map[string]KeyStrategy // by ServiceAPI.ID, built lazily per strategy kind

	quotas *keyQuotas
}

// New constructs a Pool. sessionStatus may be nil if no OAuth keys are
// in use.
func New(store gatewaydb.Store, sessionStatus SessionStatusFor, config Config) *Pool {
	return &Pool{
		store:         store,
		sessionStatus: sessionStatus,
		config:        config,
		logger:        slog.Default().With("component", "credentialpool"),
		strategies:    make(map[string]KeyStrategy),
		quotas:        newKeyQuotas(),
	}
}

// SelectionContext carries the request-scoped detail strategies may
// eventually use (route_group, requested_model); currently only
// RequestID is consumed.
type SelectionContext struct {
	RequestID      string
	RouteGroup     string
	RequestedModel string
}

// Select resolves sa's pool, filters to eligible keys, applies
// degraded mode if configured and needed, and dispatches to sa's
// configured strategy.
func (p *Pool) Select(ctx context.Context, sa *gatewaydb.ServiceAPI, sc SelectionContext) (*gatewaydb.ProviderKey, error) {
	if len(sa.PoolKeyIDs) == 0 {
		return nil, &NoAvailableKeyError{ServiceAPIID: sa.ID, Reason: "pool is empty"}
	}

	active, err := p.store.LoadProviderKeys(ctx, sa.PoolKeyIDs)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, &NoAvailableKeyError{ServiceAPIID: sa.ID, Reason: "no active keys in pool"}
	}

	now := time.Now()
	eligible := make([]*gatewaydb.ProviderKey, 0, len(active))
	for _, k := range active {
		if isEligible(k, p.sessionStatus, now) {
			eligible = append(eligible, k)
		}
	}

	if len(eligible) == 0 {
		if !p.config.AllowDegraded {
			return nil, &NoAvailableKeyError{ServiceAPIID: sa.ID, Reason: "eligible set empty"}
		}
		p.logger.Warn("credential pool degraded: using active set, eligibility bypassed",
			"service_api_id", sa.ID, "request_id", sc.RequestID)
		p.config.Metrics.RecordKeySelection("degraded")
		eligible = active
	}

	strategy := p.strategyFor(sa)

	// The strategy picks from the eligible set; a pick whose own quota
	// is exhausted is dropped and the strategy re-runs over the rest,
	// so one throttled key never starves the pool.
	for len(eligible) > 0 {
		key, err := strategy.SelectKey(sa.ID, eligible)
		if err != nil {
			return nil, &NoAvailableKeyError{ServiceAPIID: sa.ID, Reason: err.Error()}
		}
		if p.quotas.admit(key) {
			return key, nil
		}
		p.logger.Debug("key quota exhausted, trying next",
			"service_api_id", sa.ID, "key_id", key.ID, "request_id", sc.RequestID)
		eligible = withoutKey(eligible, key.ID)
	}
	return nil, &NoAvailableKeyError{ServiceAPIID: sa.ID, Reason: "all eligible keys are over quota"}
}

func withoutKey(keys []*gatewaydb.ProviderKey, id string) []*gatewaydb.ProviderKey {
	out := make([]*gatewaydb.ProviderKey, 0, len(keys)-1)
	for _, k := range keys {
		if k.ID != id {
			out = append(out, k)
		}
	}
	return out
}

// RecordTokenUsage feeds observed prompt-token usage into the key's
// per-minute token quota window.
func (p *Pool) RecordTokenUsage(keyID string, promptTokens int) {
	p.quotas.recordTokens(keyID, promptTokens)
}

// RecordOutcome feeds request results back into health-based ranking,
// a no-op for strategies that don't track history.
func (p *Pool) RecordOutcome(sa *gatewaydb.ServiceAPI, keyID string, success bool) {
	strategy := p.strategyFor(sa)
	if hb, ok := strategy.(*HealthBasedStrategy); ok {
		hb.RecordOutcome(keyID, success)
	}
}

func (p *Pool) strategyFor(sa *gatewaydb.ServiceAPI) KeyStrategy {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := sa.ID + ":" + string(sa.SchedulingStrategy)
	s, ok := p.strategies[key]
	if !ok {
		s = NewStrategy(sa.SchedulingStrategy)
		p.strategies[key] = s
	}
	return s
}
