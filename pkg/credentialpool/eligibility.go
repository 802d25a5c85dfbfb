package credentialpool

import (
	"time"

	"aperturegw/gateway/pkg/gatewaydb"
)

// SessionStatusFor resolves the current OAuthSessionStatus for a
// ProviderKey with AuthType oauth, so the eligibility filter can reject
// keys whose backing session is no longer authorized without loading
// the full session record.
type SessionStatusFor func(sessionID string) (gatewaydb.OAuthSessionStatus, bool)

// isEligible applies the selection predicate: in order, reject keys
// failing auth-status, expiry, and health checks; a rate_limited key
// is admitted iff now is past its reset time.
func isEligible(k *gatewaydb.ProviderKey, sessionStatus SessionStatusFor, now time.Time) bool {
	if !k.Active {
		return false
	}
	if !passesAuthStatus(k, sessionStatus) {
		return false
	}
	if !passesExpiry(k, now) {
		return false
	}
	return passesHealth(k, now)
}

// passesAuthStatus admits keys with no backing OAuth session (api_key
// auth) or whose session is currently authorized.
func passesAuthStatus(k *gatewaydb.ProviderKey, sessionStatus SessionStatusFor) bool {
	if k.AuthType != gatewaydb.AuthTypeOAuth {
		return true
	}
	if k.OAuthSessionID == "" || sessionStatus == nil {
		return true
	}
	status, ok := sessionStatus(k.OAuthSessionID)
	if !ok {
		return true
	}
	return status == gatewaydb.OAuthAuthorized
}

func passesExpiry(k *gatewaydb.ProviderKey, now time.Time) bool {
	return k.ExpiresAt == nil || k.ExpiresAt.After(now)
}

// passesHealth admits healthy keys outright, and rate_limited keys
// whose reset time has already passed — the delayed-validation
// pattern means a key can be legitimately selectable before the
// scheduler has gotten around to marking it healthy again.
func passesHealth(k *gatewaydb.ProviderKey, now time.Time) bool {
	switch k.HealthStatus {
	case gatewaydb.HealthHealthy:
		return true
	case gatewaydb.HealthRateLimited:
		return k.RateLimitResetsAt != nil && now.After(*k.RateLimitResetsAt)
	default:
		return false
	}
}
