package gatewayproxy

import (
	"log/slog"
	"net/http"
	"sync/atomic"

	"aperturegw/gateway/pkg/authresolver"
	"aperturegw/gateway/pkg/telemetry/metrics"
)

// BoundaryPolicy is a port's auth-boundary policy: the set
// of auth methods the port accepts and the set it explicitly forbids.
// The policy is immutable after construction; only the violation
// counter mutates, atomically.
type BoundaryPolicy struct {
	allowed   map[authresolver.Surface]bool
	forbidden map[authresolver.Surface]bool

	violations atomic.Uint64
}

// NewBoundaryPolicy builds a policy from surface-name lists. An empty
// allowed list admits every method not in the forbidden list, so a
// zero-config deployment behaves as if no boundary were declared.
// Unknown surface names are ignored.
func NewBoundaryPolicy(allowed, forbidden []string) *BoundaryPolicy {
	p := &BoundaryPolicy{
		allowed:   make(map[authresolver.Surface]bool),
		forbidden: make(map[authresolver.Surface]bool),
	}
	for _, name := range allowed {
		if s, ok := surfaceByName(name); ok {
			p.allowed[s] = true
		}
	}
	for _, name := range forbidden {
		if s, ok := surfaceByName(name); ok {
			p.forbidden[s] = true
		}
	}
	return p
}

// surfaceByName maps the config-level method names onto auth surfaces.
func surfaceByName(name string) (authresolver.Surface, bool) {
	switch name {
	case "bearer", "authorization":
		return authresolver.SurfaceBearer, true
	case "api_key", "api_key_header":
		return authresolver.SurfaceAPIKeyHdr, true
	case "query_param":
		return authresolver.SurfaceQueryParam, true
	}
	return "", false
}

// Allows reports whether a credential carried on s may authenticate on
// this port. Forbidden wins over allowed.
func (p *BoundaryPolicy) Allows(s authresolver.Surface) bool {
	if p.forbidden[s] {
		return false
	}
	if len(p.allowed) == 0 {
		return true
	}
	return p.allowed[s]
}

// Violations returns the number of requests this policy has rejected
// since startup.
func (p *BoundaryPolicy) Violations() uint64 {
	return p.violations.Load()
}

// recordViolation bumps the policy's own counter and the Prometheus
// counter when a collector is wired.
func (p *BoundaryPolicy) recordViolation(collector *metrics.Collector) {
	p.violations.Add(1)
	collector.RecordBoundaryViolation()
}

// BoundaryMiddleware enforces policy on every request before the
// pipeline runs. A request whose credential arrived on a surface
// outside the port's allowed set is rejected with the
// boundary_violation envelope and counted; a request with no
// recognizable credential passes through so AUTH can produce its
// ordinary authentication_failed envelope.
func BoundaryMiddleware(policy *BoundaryPolicy, collector *metrics.Collector, queryParamName string, next http.Handler) http.Handler {
	if policy == nil {
		return next
	}
	logger := slog.Default().With("component", "gatewayproxy.boundary")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cred, ok := authresolver.Extract(r, queryParamName)
		if ok && !policy.Allows(cred.Surface) {
			policy.recordViolation(collector)
			logger.Warn("auth boundary violation",
				"surface", string(cred.Surface), "path", r.URL.Path, "client", r.RemoteAddr)
			writeError(w, newPipelineError(KindBoundaryViolation,
				"credential presented via an auth method this port does not accept", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}
