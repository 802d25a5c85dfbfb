package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"aperturegw/gateway/pkg/config"
)

// Collector owns the gateway's Prometheus registry and every metric the
// request plane records into. A nil *Collector is valid and records
// nothing, so components can hold one unconditionally.
type Collector struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec

	keySelections      *prometheus.CounterVec
	keyHealthChanges   *prometheus.CounterVec
	rateLimitResets    prometheus.Counter
	oauthRefreshes     *prometheus.CounterVec
	boundaryViolations prometheus.Counter
	tracesDropped      prometheus.Counter
}

// NewCollector creates a collector registering against its own registry.
// Defaults mirror the config defaults so a zero MetricsConfig still
// yields usable metric names and buckets.
func NewCollector(cfg *config.MetricsConfig) *Collector {
	ns := cfg.Namespace
	if ns == "" {
		ns = "aperture"
	}
	sub := cfg.Subsystem
	if sub == "" {
		sub = "gateway"
	}
	durationBuckets := cfg.RequestDurationBuckets
	if len(durationBuckets) == 0 {
		// LLM request latencies run 100ms to tens of seconds.
		durationBuckets = []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0}
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: sub,
				Name:      "requests_total",
				Help:      "Total proxied requests by provider type and outcome",
			},
			[]string{"provider_type", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: ns,
				Subsystem: sub,
				Name:      "request_duration_seconds",
				Help:      "Proxied request duration in seconds",
				Buckets:   durationBuckets,
			},
			[]string{"provider_type"},
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: sub,
				Name:      "tokens_total",
				Help:      "Tokens extracted from upstream responses, by direction",
			},
			[]string{"provider_type", "type"},
		),

		keySelections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: sub,
				Name:      "key_selections_total",
				Help:      "Credential pool selections by outcome",
			},
			[]string{"outcome"},
		),

		keyHealthChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: sub,
				Name:      "key_health_transitions_total",
				Help:      "Provider key health transitions by new status",
			},
			[]string{"status"},
		),

		rateLimitResets: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: sub,
				Name:      "rate_limit_resets_total",
				Help:      "Rate-limited keys transitioned back to healthy by the reset scheduler",
			},
		),

		oauthRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: sub,
				Name:      "oauth_refreshes_total",
				Help:      "OAuth token refresh attempts by outcome",
			},
			[]string{"outcome"},
		),

		boundaryViolations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: sub,
				Name:      "auth_boundary_violations_total",
				Help:      "Requests rejected for using an auth method outside the port's allowed set",
			},
		),

		tracesDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: ns,
				Subsystem: sub,
				Name:      "trace_completions_dropped_total",
				Help:      "Phase-2 trace completions dropped because the writer's buffer was full",
			},
		),
	}

	c.registry.MustRegister(
		c.requestsTotal,
		c.requestDuration,
		c.tokensTotal,
		c.keySelections,
		c.keyHealthChanges,
		c.rateLimitResets,
		c.oauthRefreshes,
		c.boundaryViolations,
		c.tracesDropped,
	)

	return c
}

// RecordRequest records a completed proxied request.
func (c *Collector) RecordRequest(providerType, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.requestsTotal.WithLabelValues(providerType, status).Inc()
	c.requestDuration.WithLabelValues(providerType).Observe(duration.Seconds())
}

// RecordTokens records token counts extracted from an upstream response.
// tokenType is "prompt", "completion", "cache_create", or "cache_read".
func (c *Collector) RecordTokens(providerType, tokenType string, count int) {
	if c == nil || count <= 0 {
		return
	}
	c.tokensTotal.WithLabelValues(providerType, tokenType).Add(float64(count))
}

// RecordKeySelection records one pool selection. outcome is "selected",
// "degraded", or "exhausted".
func (c *Collector) RecordKeySelection(outcome string) {
	if c == nil {
		return
	}
	c.keySelections.WithLabelValues(outcome).Inc()
}

// RecordKeyHealthChange records a key health transition.
func (c *Collector) RecordKeyHealthChange(status string) {
	if c == nil {
		return
	}
	c.keyHealthChanges.WithLabelValues(status).Inc()
}

// RecordRateLimitReset records one successful scheduler-driven reset.
func (c *Collector) RecordRateLimitReset() {
	if c == nil {
		return
	}
	c.rateLimitResets.Inc()
}

// RecordOAuthRefresh records one refresh attempt. outcome is "success",
// "transient_error", or "permanent_error".
func (c *Collector) RecordOAuthRefresh(outcome string) {
	if c == nil {
		return
	}
	c.oauthRefreshes.WithLabelValues(outcome).Inc()
}

// RecordBoundaryViolation counts a request rejected by the port's
// auth-boundary policy.
func (c *Collector) RecordBoundaryViolation() {
	if c == nil {
		return
	}
	c.boundaryViolations.Inc()
}

// RecordTraceDropped counts a Phase-2 completion the writer had to drop.
func (c *Collector) RecordTraceDropped() {
	if c == nil {
		return
	}
	c.tracesDropped.Inc()
}
