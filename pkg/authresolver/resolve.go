package authresolver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"aperturegw/gateway/pkg/gatewaydb"
)

func secondsToDuration(seconds int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// Result is the successful outcome of Resolve: the (tenant_id,
// service_api) pair, plus the credential surface it arrived on (the
// proxy pipeline's REWRITE state needs this to know how the inbound
// request carried auth).
type Result struct {
	TenantID   string
	ServiceAPI *gatewaydb.ServiceAPI
	Credential Credential
}

// Resolver implements the auth resolver: credential extraction,
// fingerprinting, cached ServiceAPI lookup, tenant/API activity and
// restriction checks, and per-API rate limiting.
type Resolver struct {
	store           gatewaydb.Store
	cache           *ResolutionCache
	limiters        *apiLimiters
	defaultQueryKey string
}

// Config configures a Resolver.
type Config struct {
	// DefaultQueryParamName is used to probe the query-param auth
	// surface before a ServiceAPI (and its own configured param name)
	// has been resolved. ServiceAPIs that configure a different name
	// are only reachable via Bearer or header auth, or by matching
	// this default — a tradeoff inherent to looking up the ServiceAPI
	// by the credential's fingerprint rather than by a pre-known ID.
	DefaultQueryParamName string
	CacheTTLSeconds       int
	CacheMaxEntries       int
}

// New constructs a Resolver.
func New(store gatewaydb.Store, cfg Config) *Resolver {
	queryKey := cfg.DefaultQueryParamName
	if queryKey == "" {
		queryKey = "api_key"
	}
	var ttl int
	if cfg.CacheTTLSeconds > 0 {
		ttl = cfg.CacheTTLSeconds
	}
	return &Resolver{
		store:           store,
		cache:           NewResolutionCache(secondsToDuration(ttl), cfg.CacheMaxEntries),
		limiters:        newAPILimiters(),
		defaultQueryKey: queryKey,
	}
}

// Close stops the resolver's background cache-cleanup goroutine.
func (r *Resolver) Close() {
	r.cache.Close()
}

// Invalidate drops a fingerprint's cached resolution, for management-
// plane events (key rotation, deactivation).
func (r *Resolver) Invalidate(fingerprint string) {
	r.cache.Invalidate(fingerprint)
}

// Resolve runs the full auth-resolver procedure against an inbound
// request.
func (r *Resolver) Resolve(ctx context.Context, req *http.Request) (*Result, error) {
	cred, ok := Extract(req, r.defaultQueryKey)
	if !ok {
		return nil, NewAuthenticationFailedError("no credential present on any recognized surface")
	}

	fingerprint := Fingerprint(cred.Raw)

	sa, ok := r.cache.Get(fingerprint)
	if !ok {
		loaded, err := r.store.LoadServiceAPIByFingerprint(ctx, fingerprint)
		if err != nil {
			var dse *gatewaydb.DataStoreError
			if errors.As(err, &dse) && dse.NotFound {
				return nil, NewAuthenticationFailedError("credential does not match any service API")
			}
			return nil, err
		}
		sa = loaded
		r.cache.Set(fingerprint, sa)
	}

	if !sa.Active {
		return nil, NewAuthenticationFailedError("service API is inactive")
	}

	tenant, err := r.store.LoadTenant(ctx, sa.TenantID)
	if err != nil {
		var dse *gatewaydb.DataStoreError
		if errors.As(err, &dse) && dse.NotFound {
			return nil, NewAuthenticationFailedError("owning tenant does not exist")
		}
		return nil, err
	}
	if !tenant.Active {
		return nil, NewAuthenticationFailedError("owning tenant is inactive")
	}

	if err := checkIPRestriction(req, sa.AllowedCIDRs); err != nil {
		return nil, err
	}
	if err := checkPathRestriction(req, sa.AllowedPathPrefixes); err != nil {
		return nil, err
	}

	if sa.RateLimitPerMinute > 0 {
		bucket := r.limiters.bucketFor(sa.ID, sa.RateLimitPerMinute)
		if !bucket.Take(1) {
			return nil, &UsageLimitExceededError{
				Kind:     "requests_per_min",
				Limit:    bucket.Capacity(),
				Current:  bucket.Capacity() - bucket.Remaining(),
				ResetsIn: bucket.TimeUntilAvailable(1),
			}
		}
	}

	return &Result{TenantID: sa.TenantID, ServiceAPI: sa, Credential: cred}, nil
}

func checkIPRestriction(req *http.Request, allowedCIDRs []string) error {
	if len(allowedCIDRs) == 0 {
		return nil
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host = req.RemoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return NewAuthenticationFailedError("client address could not be parsed for IP restriction")
	}
	for _, cidr := range allowedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if network.Contains(ip) {
			return nil
		}
	}
	return NewAuthenticationFailedError("client address is not in an allowed range")
}

func checkPathRestriction(req *http.Request, allowedPrefixes []string) error {
	if len(allowedPrefixes) == 0 {
		return nil
	}
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(req.URL.Path, prefix) {
			return nil
		}
	}
	return NewAuthenticationFailedError("request path is not within an allowed prefix")
}
