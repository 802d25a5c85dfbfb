// Package gatewaydb defines the data-store interface and entities for the
// gateway's core state: tenants, provider types, provider keys, OAuth
// sessions, service APIs, and request traces.
package gatewaydb

import "time"

// AuthType distinguishes how a ProviderKey authenticates against its
// upstream provider.
type AuthType string

const (
	AuthTypeAPIKey AuthType = "api_key"
	AuthTypeOAuth  AuthType = "oauth"
)

// HealthStatus is the health state of a ProviderKey.
type HealthStatus string

const (
	HealthHealthy     HealthStatus = "healthy"
	HealthRateLimited HealthStatus = "rate_limited"
	HealthUnhealthy   HealthStatus = "unhealthy"
)

// OAuthSessionStatus is the lifecycle state of an OAuthSession.
type OAuthSessionStatus string

const (
	OAuthPending    OAuthSessionStatus = "pending"
	OAuthAuthorized OAuthSessionStatus = "authorized"
	OAuthError      OAuthSessionStatus = "error"
	OAuthExpired    OAuthSessionStatus = "expired"
	OAuthRevoked    OAuthSessionStatus = "revoked"
)

// SchedulingStrategy selects how a ServiceAPI's key pool is scheduled.
type SchedulingStrategy string

const (
	StrategyRoundRobin  SchedulingStrategy = "round_robin"
	StrategyWeighted    SchedulingStrategy = "weighted"
	StrategyHealthBased SchedulingStrategy = "health_based"
)

// Tenant is the top-level owner of ServiceAPIs and ProviderKeys.
type Tenant struct {
	ID          string
	DisplayName string
	Active      bool
}

// TokenMapping describes how to extract one usage field (e.g. prompt
// tokens) from a provider's response body. See pkg/extraction for the
// tagged-variant decoder that interprets these at runtime.
type TokenMapping struct {
	Kind          string // direct, expression, default, conditional, fallback
	Path          string
	Formula       string
	Value         string
	ConditionLHS  string
	ConditionOp   string
	ConditionRHS  string
	TrueValue     string
	FalseValue    string
	FallbackPaths []string

	// Fallback is tried when this mapping yields no value. Chains are
	// bounded at validation time.
	Fallback *TokenMapping
}

// ModelExtractionRule describes one ordered rule for recovering the
// model name actually used by a provider from the response.
type ModelExtractionRule struct {
	Kind      string // body_json, url_regex, query_param
	Path      string
	Pattern   string
	ParamName string
	Priority  int
}

// ProviderType is a configured upstream vendor (OpenAI, Anthropic,
// Gemini, or a custom OpenAI-compatible endpoint).
type ProviderType struct {
	ID                     string
	Name                   string
	BaseURL                string
	AuthHeaderTemplate     string
	TokenMappings          map[string]TokenMapping
	ModelExtractionRules   []ModelExtractionRule
	FallbackModel          string
	DefaultRateLimitWindow time.Duration
	StripPathPrefix        string // trimmed from the inbound path before forwarding upstream
	Active                 bool
}

// ProviderKey is a single credential within a ServiceAPI's pool.
type ProviderKey struct {
	ID                  string
	TenantID            string
	ProviderTypeID      string
	AuthType            AuthType
	SecretMaterial      string // API key value, or empty when AuthType == oauth
	OAuthSessionID      string // set when AuthType == oauth
	Weight              int
	QuotaRequestsPerMin int
	QuotaRequestsPerDay int
	QuotaPromptTokensPM int
	HealthStatus        HealthStatus
	RateLimitResetsAt   *time.Time
	LastErrorAt         *time.Time
	ExpiresAt           *time.Time
	ProjectID           string
	Active              bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// OAuthSession tracks one authorization-code-with-PKCE flow and its
// resulting tokens for a single ProviderKey.
type OAuthSession struct {
	SessionID        string
	TenantID         string
	ProviderTypeID   string
	Status           OAuthSessionStatus
	State            string
	CodeVerifier     string
	CodeChallenge    string
	RedirectURI      string
	Scopes           []string
	AccessToken      string
	RefreshToken     string
	IDToken          string
	ExpiresAt        *time.Time
	SessionExpiresAt time.Time
	CompletedAt      *time.Time
	ErrorMessage     string
}

// IsExpired reports whether the session's overall lifetime has elapsed.
// Computed at read time, never persisted, so there is no second
// source of truth to drift.
func (s *OAuthSession) IsExpired() bool {
	return time.Now().After(s.SessionExpiresAt)
}

// IsCompleted reports whether the session has reached a terminal state.
func (s *OAuthSession) IsCompleted() bool {
	return s.CompletedAt != nil
}

// ServiceAPI is the externally addressable credential boundary: a
// tenant's ordered pool of ProviderKeys behind one scheduling strategy.
type ServiceAPI struct {
	ID                    string
	TenantID              string
	ProviderTypeID        string
	PoolKeyIDs            []string
	SchedulingStrategy    SchedulingStrategy
	RouteOverrides        map[string]string
	AllowedModels         []string
	AuthQueryParamName    string
	CredentialFingerprint string // SHA-256 hex digest of the bound credential, indexed for resolver lookup
	RateLimitPerMinute    int    // 0 means unlimited; enforced by the auth resolver's token bucket
	AllowedCIDRs          []string
	AllowedPathPrefixes   []string
	Active                bool
}

// Trace is one row of immediate request tracing.
type Trace struct {
	RequestID         string
	TenantID          string
	ServiceAPIID      string
	ProviderTypeID    string // late-bound at RESOLVE_UPSTREAM
	ProviderKeyID     string // late-bound at SELECT_KEY
	Method            string
	Path              string
	ClientIP          string
	UserAgent         string
	StatusCode        int
	Success           bool
	CreatedAt         time.Time
	CompletedAt       *time.Time
	DurationMS        int64
	TokensPrompt      int
	TokensCompletion  int
	TokensTotal       int
	CacheCreateTokens int
	CacheReadTokens   int
	Cost              float64
	CostCurrency      string
	ModelUsed         string
	ErrorType         string
	ErrorMessage      string
}
