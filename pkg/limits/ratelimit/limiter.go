package ratelimit

import (
	"time"
)

// Limiter enforces one credential's quota dimensions together: a
// per-minute and per-day request bucket, and a rolling per-minute
// prompt-token window. Each dimension is independent; the first one
// exceeded rejects the request with its own reset hint.
//
// The auth resolver holds one Limiter-backed bucket per ServiceAPI,
// and the credential pool holds one Limiter per quota-carrying
// ProviderKey.
type Limiter struct {
	reqPerMinute *TokenBucket
	reqPerDay    *TokenBucket
	tokensPerMin *SlidingWindow

	config Config
}

// NewLimiter builds a Limiter enforcing the non-zero dimensions of
// config.
func NewLimiter(config Config) *Limiter {
	l := &Limiter{config: config}

	if config.RequestsPerMinute > 0 {
		// Burst up to the full minute's allowance.
		l.reqPerMinute = NewTokenBucket(int64(config.RequestsPerMinute), float64(config.RequestsPerMinute)/60.0)
	}

	if config.RequestsPerDay > 0 {
		// Burst bounded to an hour's share of the day, floor 1, so a
		// single spike can't consume the whole day up front.
		burst := int64(config.RequestsPerDay / 24)
		if burst < 1 {
			burst = 1
		}
		l.reqPerDay = NewTokenBucket(burst, float64(config.RequestsPerDay)/86400.0)
	}

	if config.TokensPerMinute > 0 {
		l.tokensPerMin = NewSlidingWindow(time.Minute, time.Second)
	}

	return l
}

// CheckRequest consumes one slot from each request dimension, stopping
// at the first dimension that has none left.
func (l *Limiter) CheckRequest() *CheckResult {
	if l.reqPerMinute != nil && !l.reqPerMinute.Take(1) {
		return &CheckResult{
			Reason:     "requests per minute limit exceeded",
			Limit:      l.reqPerMinute.Capacity(),
			Remaining:  l.reqPerMinute.Remaining(),
			Reset:      time.Now().Add(time.Minute),
			RetryAfter: l.reqPerMinute.TimeUntilAvailable(1),
		}
	}

	if l.reqPerDay != nil && !l.reqPerDay.Take(1) {
		return &CheckResult{
			Reason:     "requests per day limit exceeded",
			Limit:      int64(l.config.RequestsPerDay),
			Remaining:  l.reqPerDay.Remaining(),
			Reset:      time.Now().Add(24 * time.Hour),
			RetryAfter: l.reqPerDay.TimeUntilAvailable(1),
		}
	}

	return allowed()
}

// CheckTokens reports whether estimatedTokens more prompt tokens would
// fit in the rolling minute window. It consumes nothing — actual usage
// is fed back through RecordTokens once the response reports it.
func (l *Limiter) CheckTokens(estimatedTokens int) *CheckResult {
	if l.tokensPerMin == nil {
		return allowed()
	}

	used := l.tokensPerMin.Sum()
	limit := int64(l.config.TokensPerMinute)
	if used+int64(estimatedTokens) > limit {
		return &CheckResult{
			Reason:     "prompt tokens per minute limit exceeded",
			Limit:      limit,
			Remaining:  limit - used,
			Reset:      time.Now().Add(time.Minute),
			RetryAfter: time.Minute,
		}
	}
	return allowed()
}

// RecordTokens credits actual prompt-token usage to the rolling
// window after a response completes.
func (l *Limiter) RecordTokens(actualTokens int) {
	if l.tokensPerMin != nil {
		l.tokensPerMin.Add(int64(actualTokens))
	}
}

// Reset clears every dimension.
func (l *Limiter) Reset() {
	if l.reqPerMinute != nil {
		l.reqPerMinute.Reset()
	}
	if l.reqPerDay != nil {
		l.reqPerDay.Reset()
	}
	if l.tokensPerMin != nil {
		l.tokensPerMin.Reset()
	}
}
