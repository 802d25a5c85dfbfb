package credentialpool

import (
	"sync"

	"aperturegw/gateway/pkg/gatewaydb"
	"aperturegw/gateway/pkg/limits/ratelimit"
)

// keyQuotas enforces each ProviderKey's own quotas (requests per
// minute/day, prompt tokens per minute) with one ratelimit.Limiter per
// key, lazily built from the key's quota fields. A key with no quotas
// configured never gets a limiter.
//
// The limiters live in process memory only; after a restart quota
// accounting starts fresh, which errs on the permissive side the same
// way the degraded-mode fallback does.
type keyQuotas struct {
	mu       sync.Mutex
	limiters map[string]*ratelimit.Limiter
}

func newKeyQuotas() *keyQuotas {
	return &keyQuotas{limiters: make(map[string]*ratelimit.Limiter)}
}

func hasQuotas(k *gatewaydb.ProviderKey) bool {
	return k.QuotaRequestsPerMin > 0 || k.QuotaRequestsPerDay > 0 || k.QuotaPromptTokensPM > 0
}

func (q *keyQuotas) limiterFor(k *gatewaydb.ProviderKey) *ratelimit.Limiter {
	if !hasQuotas(k) {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	l, ok := q.limiters[k.ID]
	if !ok {
		l = ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: k.QuotaRequestsPerMin,
			RequestsPerDay:    k.QuotaRequestsPerDay,
			TokensPerMinute:   k.QuotaPromptTokensPM,
		})
		q.limiters[k.ID] = l
	}
	return l
}

// admit consumes one request slot from the key's quota, reporting
// whether the key may serve another request right now. A key with no
// quotas is always admitted.
func (q *keyQuotas) admit(k *gatewaydb.ProviderKey) bool {
	l := q.limiterFor(k)
	if l == nil {
		return true
	}
	if res := l.CheckRequest(); !res.Allowed {
		return false
	}
	if k.QuotaPromptTokensPM > 0 {
		if res := l.CheckTokens(0); !res.Allowed {
			return false
		}
	}
	return true
}

// recordTokens feeds observed prompt-token usage back into the key's
// per-minute token window after a response completes.
func (q *keyQuotas) recordTokens(keyID string, promptTokens int) {
	if promptTokens <= 0 {
		return
	}
	q.mu.Lock()
	l, ok := q.limiters[keyID]
	q.mu.Unlock()
	if ok {
		l.RecordTokens(promptTokens)
	}
}
