package authresolver

import (
	"fmt"
	"time"
)

// AuthenticationFailedError reports a request whose credential could not
// be resolved to an active ServiceAPI (no surface present, unknown
// fingerprint, or an inactive tenant/API).
type AuthenticationFailedError struct {
	Reason string
}

func (e *AuthenticationFailedError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Reason)
}

// NewAuthenticationFailedError builds an AuthenticationFailedError.
func NewAuthenticationFailedError(reason string) *AuthenticationFailedError {
	return &AuthenticationFailedError{Reason: reason}
}

// UsageLimitExceededError reports a request rejected by the per-API
// rate limiter, carrying the structured fields the response body
// exposes.
type UsageLimitExceededError struct {
	Kind     string // "requests_per_min", mirrors the quota field the bucket enforces
	Limit    int64
	Current  int64
	ResetsIn time.Duration
}

func (e *UsageLimitExceededError) Error() string {
	return fmt.Sprintf("usage limit exceeded [kind=%s limit=%d current=%d resets_in=%s]",
		e.Kind, e.Limit, e.Current, e.ResetsIn)
}
