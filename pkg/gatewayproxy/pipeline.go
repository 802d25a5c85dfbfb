package gatewayproxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"aperturegw/gateway/pkg/authresolver"
	"aperturegw/gateway/pkg/credentialpool"
	"aperturegw/gateway/pkg/extraction"
	"aperturegw/gateway/pkg/gatewaydb"
	"aperturegw/gateway/pkg/oauthrefresh"
	"aperturegw/gateway/pkg/resetscheduler"
	"aperturegw/gateway/pkg/security/secrets"
	"aperturegw/gateway/pkg/telemetry/metrics"
	"aperturegw/gateway/pkg/tracing"
	"aperturegw/gateway/pkg/upstream"
)

// expirySkew is the margin for on-demand refresh: an OAuth session's
// access token is refreshed when it expires within this window of now,
// rather than waiting for it to expire mid-flight.
const expirySkew = 30 * time.Second

// defaultRateLimitResetWindow is the fallback window used when an
// upstream 429 carries no Retry-After header.
const defaultRateLimitResetWindow = 60 * time.Second

// Config tunes the pipeline's forward behavior.
type Config struct {
	// ForwardTimeout bounds the entire upstream round-trip, including
	// connect and the full response read for non-streamed bodies.
	ForwardTimeout time.Duration

	// Metrics receives request-plane instrumentation. Nil disables it.
	Metrics *metrics.Collector
}

// DefaultConfig returns the pipeline's default configuration.
func DefaultConfig() Config {
	return Config{ForwardTimeout: 60 * time.Second}
}

// Pipeline wires together every component the request states invoke:
// authentication, upstream resolution, key selection, header rewrite,
// the forward round-trip, and response-extraction observability.
type Pipeline struct {
	store      gatewaydb.Store
	resolver   *authresolver.Resolver
	pool       *credentialpool.Pool
	tracer     *tracing.Writer
	resetSched *resetscheduler.Scheduler
	oauthSched *oauthrefresh.Scheduler
	secrets    *secrets.Manager
	client     *http.Client
	config     Config
	metrics    *metrics.Collector
	logger     *slog.Logger
}

// New constructs a Pipeline. oauthSched may be nil when no OAuth-typed
// keys are configured, in which case an OAuth key nearing expiry fails
// rather than silently forwarding a stale token. secretsMgr may be nil,
// in which case a key's secret material is used as stored, unresolved.
func New(store gatewaydb.Store, resolver *authresolver.Resolver, pool *credentialpool.Pool, tracer *tracing.Writer, resetSched *resetscheduler.Scheduler, oauthSched *oauthrefresh.Scheduler, secretsMgr *secrets.Manager, config Config) *Pipeline {
	if config.ForwardTimeout <= 0 {
		config.ForwardTimeout = DefaultConfig().ForwardTimeout
	}
	return &Pipeline{
		store:      store,
		resolver:   resolver,
		pool:       pool,
		tracer:     tracer,
		resetSched: resetSched,
		oauthSched: oauthSched,
		secrets:    secretsMgr,
		client:     &http.Client{Timeout: config.ForwardTimeout},
		config:     config,
		metrics:    config.Metrics,
		logger:     slog.Default().With("component", "gatewayproxy"),
	}
}

// requestState carries the per-request values successive states
// accumulate, threaded through the pipeline by argument rather than a
// context value bag.
type requestState struct {
	requestID    string
	startedAt    time.Time
	trace        *gatewaydb.Trace
	resolution   *authresolver.Result
	providerType *gatewaydb.ProviderType
	target       *upstream.Target
	key          *gatewaydb.ProviderKey
}

// ServeHTTP drives one request through the full START→...→END pipeline.
// Every exit path completes the trace row exactly once before
// returning.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	st, pe := p.start(r)
	if pe != nil {
		p.observeError(w, r, st, pe)
		return
	}

	if pe := p.auth(r, st); pe != nil {
		p.observeError(w, r, st, pe)
		return
	}

	if pe := p.resolveUpstream(r.Context(), st); pe != nil {
		p.observeError(w, r, st, pe)
		return
	}

	if pe := p.selectKey(r.Context(), st); pe != nil {
		p.observeError(w, r, st, pe)
		return
	}

	upstreamReq, pe := p.rewrite(r, st)
	if pe != nil {
		p.observeError(w, r, st, pe)
		return
	}

	resp, pe := p.forward(upstreamReq, st)
	if pe != nil {
		p.observeError(w, r, st, pe)
		return
	}

	p.observeSuccess(w, r, st, resp)
}

// start is the START state: allocate request_id, capture client
// metadata, and perform the synchronous Phase 1 trace insert.
func (p *Pipeline) start(r *http.Request) (*requestState, *pipelineError) {
	now := time.Now()
	st := &requestState{
		requestID: uuid.NewString(),
		startedAt: now,
	}

	st.trace = &gatewaydb.Trace{
		RequestID: st.requestID,
		Method:    r.Method,
		Path:      r.URL.Path,
		ClientIP:  clientIP(r),
		UserAgent: r.UserAgent(),
		CreatedAt: now,
	}

	if err := p.tracer.Insert(r.Context(), st.trace); err != nil {
		// Fail-closed observability: a request whose start row can't be
		// written never proceeds to AUTH. The caller still completes
		// END via observeError, whose own persist failure is logged,
		// not retried.
		p.logger.Error("trace phase 1 insert failed", "request_id", st.requestID, "error", err)
		return st, newPipelineError(KindInternalError, "request trace could not be recorded", err)
	}

	return st, nil
}

// auth is the AUTH state.
func (p *Pipeline) auth(r *http.Request, st *requestState) *pipelineError {
	result, err := p.resolver.Resolve(r.Context(), r)
	if err != nil {
		var usageErr *authresolver.UsageLimitExceededError
		if errors.As(err, &usageErr) {
			pe := newPipelineError(KindUsageLimitReached, err.Error(), err)
			pe.RetryAfter = int(usageErr.ResetsIn.Seconds())
			return pe
		}
		return newPipelineError(KindAuthenticationFailed, err.Error(), err)
	}

	st.resolution = result
	st.trace.TenantID = result.TenantID
	st.trace.ServiceAPIID = result.ServiceAPI.ID
	return nil
}

// resolveUpstream is the RESOLVE_UPSTREAM state.
func (p *Pipeline) resolveUpstream(ctx context.Context, st *requestState) *pipelineError {
	pt, err := p.store.LoadProviderType(ctx, st.resolution.ServiceAPI.ProviderTypeID)
	if err != nil {
		return newPipelineError(KindUpstreamNotAvailable, "provider type not found", err)
	}
	if !pt.Active {
		return newPipelineError(KindUpstreamNotAvailable, "provider type inactive", nil)
	}
	if err := validateProviderType(pt); err != nil {
		pe := newPipelineError(KindUpstreamNotAvailable, "provider type misconfigured", err)
		pe.TraceErrorType = "provider_config_invalid"
		return pe
	}

	target, err := upstream.Resolve(pt.BaseURL)
	if err != nil {
		return newPipelineError(KindUpstreamNotAvailable, "invalid upstream target", err)
	}

	st.providerType = pt
	st.target = target
	st.trace.ProviderTypeID = pt.ID

	p.tracer.UpdateIntermediate(ctx, st.requestID, map[string]any{
		"provider_type_id": pt.ID,
	})
	return nil
}

// selectKey is the SELECT_KEY state.
func (p *Pipeline) selectKey(ctx context.Context, st *requestState) *pipelineError {
	key, err := p.pool.Select(ctx, st.resolution.ServiceAPI, credentialpool.SelectionContext{
		RequestID: st.requestID,
	})
	if err != nil {
		p.metrics.RecordKeySelection("exhausted")
		pe := newPipelineError(KindUpstreamNotAvailable, "no available credential", err)
		pe.TraceErrorType = "api_key_selection_failed"
		return pe
	}
	p.metrics.RecordKeySelection("selected")

	st.key = key
	st.trace.ProviderKeyID = key.ID
	return nil
}

// rewrite is the REWRITE state: it produces the outbound *http.Request
// aimed at the resolved target, with the inbound Authorization,
// X-Api-Key and Api-Key headers removed and the provider's own auth
// header substituted in. The query string is forwarded unchanged,
// including any credential carried in a query parameter.
func (p *Pipeline) rewrite(r *http.Request, st *requestState) (*http.Request, *pipelineError) {
	secret, err := p.credentialSecret(r.Context(), st.key)
	if err != nil {
		return nil, newPipelineError(KindUpstreamNotAvailable, "credential unavailable", err)
	}

	path := r.URL.Path
	if prefix := st.providerType.StripPathPrefix; prefix != "" {
		if trimmed, ok := trimPrefix(path, prefix); ok {
			path = trimmed
		}
	}

	outURL := *r.URL
	outURL.Scheme = st.target.Scheme
	outURL.Host = st.target.Addr
	outURL.Path = path

	upstreamReq, err := http.NewRequestWithContext(r.Context(), r.Method, outURL.String(), r.Body)
	if err != nil {
		return nil, newPipelineError(KindInternalError, "failed to build upstream request", err)
	}
	upstreamReq.ContentLength = r.ContentLength

	upstreamReq.Header = r.Header.Clone()
	upstreamReq.Header.Del("Authorization")
	upstreamReq.Header.Del("X-Api-Key")
	upstreamReq.Header.Del("Api-Key")

	applyProviderAuth(upstreamReq.Header, st.providerType, secret, st.key.ProjectID)

	upstreamReq.Host = st.target.HostHeader
	upstreamReq.Header.Set("X-Request-Id", st.requestID)
	upstreamReq.Header.Set("X-Upstream-Server", st.target.HostHeader)

	return upstreamReq, nil
}

// credentialSecret returns the value {key} should be substituted with:
// the key's own secret material for an api_key-typed key, or the bound
// OAuth session's access token, refreshed on-demand if it expires
// within expirySkew. An api_key-typed key's secret material may itself
// be a ${secret:name} reference into an external secret backend; when
// a secrets manager is configured it is resolved here before forwarding.
func (p *Pipeline) credentialSecret(ctx context.Context, key *gatewaydb.ProviderKey) (string, error) {
	if key.AuthType != gatewaydb.AuthTypeOAuth {
		if p.secrets == nil {
			return key.SecretMaterial, nil
		}
		resolved, err := p.secrets.ResolveReferences(ctx, key.SecretMaterial)
		if err != nil {
			return "", fmt.Errorf("resolving provider key secret material: %w", err)
		}
		return resolved, nil
	}

	session, err := p.store.LoadOAuthSession(ctx, key.OAuthSessionID)
	if err != nil {
		return "", err
	}

	if session.ExpiresAt != nil && session.ExpiresAt.Before(time.Now().Add(expirySkew)) {
		if p.oauthSched == nil {
			return "", errors.New("oauth session nearing expiry and no refresh scheduler configured")
		}
		if err := p.oauthSched.RefreshNowLocked(ctx, key.OAuthSessionID); err != nil {
			return "", err
		}
		session, err = p.store.LoadOAuthSession(ctx, key.OAuthSessionID)
		if err != nil {
			return "", err
		}
	}

	return session.AccessToken, nil
}

// forward is the FORWARD state: the raw byte-level round-trip. The
// request and response bodies pass through unmodified, streamed on
// each side rather than buffered and re-marshaled.
func (p *Pipeline) forward(upstreamReq *http.Request, st *requestState) (*http.Response, *pipelineError) {
	resp, err := p.client.Do(upstreamReq)
	if err != nil {
		return nil, classifyForwardError(err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		p.handleRateLimited(resp, st)
	}

	return resp, nil
}

// handleRateLimited notifies the reset scheduler: an upstream 429
// marks the key rate_limited and schedules its reset for Retry-After
// (or a provider-specific default window when the header is absent).
func (p *Pipeline) handleRateLimited(resp *http.Response, st *requestState) {
	window := defaultRateLimitResetWindow
	if st.providerType.DefaultRateLimitWindow > 0 {
		window = st.providerType.DefaultRateLimitWindow
	}
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil {
			window = time.Duration(secs) * time.Second
		}
	}

	resetsAt := time.Now().Add(window)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.store.MarkKeyHealth(ctx, st.key.ID, gatewaydb.HealthRateLimited, &resetsAt); err != nil {
		p.logger.Warn("failed to mark key rate_limited", "key_id", st.key.ID, "error", err)
	}
	p.metrics.RecordKeyHealthChange(string(gatewaydb.HealthRateLimited))
	p.resetSched.Schedule(ctx, st.key.ID, resetsAt)
}

// observeSuccess is the OBSERVE state on the success path: it streams
// the upstream response to the client, then extracts usage/cost/model
// from a peeked copy of the body before completing the trace row.
func (p *Pipeline) observeSuccess(w http.ResponseWriter, r *http.Request, st *requestState, resp *http.Response) {
	defer resp.Body.Close()

	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	body, copyErr := copyAndExtract(w, resp.Body)

	p.pool.RecordOutcome(st.resolution.ServiceAPI, st.key.ID, resp.StatusCode < 400)

	completed := time.Now()
	st.trace.StatusCode = resp.StatusCode
	st.trace.Success = resp.StatusCode < 400
	st.trace.CompletedAt = &completed
	st.trace.DurationMS = completed.Sub(st.startedAt).Milliseconds()

	if copyErr != nil {
		// The status line is already on the wire, so the failure can
		// only be recorded on the trace, not sent as an envelope. The
		// classifier distinguishes upstream read timeouts from
		// client-side write failures here.
		pe := classifyForwardError(copyErr)
		st.trace.Success = false
		st.trace.ErrorType = string(pe.Kind)
		st.trace.ErrorMessage = "response stream interrupted: " + pe.Message
		p.logger.Warn("response stream interrupted",
			"request_id", st.requestID, "kind", pe.Kind, "error", copyErr)
	}

	if body != nil {
		p.extractUsage(st, body, r.URL.String())
		p.pool.RecordTokenUsage(st.key.ID, st.trace.TokensPrompt)
	}

	status := "success"
	if !st.trace.Success {
		status = "upstream_error"
	}
	p.metrics.RecordRequest(st.providerType.Name, status, completed.Sub(st.startedAt))
	p.metrics.RecordTokens(st.providerType.Name, "prompt", st.trace.TokensPrompt)
	p.metrics.RecordTokens(st.providerType.Name, "completion", st.trace.TokensCompletion)
	p.metrics.RecordTokens(st.providerType.Name, "cache_create", st.trace.CacheCreateTokens)
	p.metrics.RecordTokens(st.providerType.Name, "cache_read", st.trace.CacheReadTokens)

	p.tracer.Complete(st.trace)
}

// extractUsage applies ProviderType.TokenMappings and
// ModelExtractionRules to a decoded response body.
func (p *Pipeline) extractUsage(st *requestState, body map[string]any, requestURL string) {
	mappings := tokenMappingsFor(st.providerType)
	if m, ok := mappings["prompt_tokens"]; ok {
		if v, ok := extraction.Evaluate(m, body); ok {
			st.trace.TokensPrompt = int(v)
		}
	}
	if m, ok := mappings["completion_tokens"]; ok {
		if v, ok := extraction.Evaluate(m, body); ok {
			st.trace.TokensCompletion = int(v)
		}
	}
	if m, ok := mappings["total_tokens"]; ok {
		if v, ok := extraction.Evaluate(m, body); ok {
			st.trace.TokensTotal = int(v)
		}
	}
	if m, ok := mappings["cache_create_tokens"]; ok {
		if v, ok := extraction.Evaluate(m, body); ok {
			st.trace.CacheCreateTokens = int(v)
		}
	}
	if m, ok := mappings["cache_read_tokens"]; ok {
		if v, ok := extraction.Evaluate(m, body); ok {
			st.trace.CacheReadTokens = int(v)
		}
	}
	if m, ok := mappings["cost"]; ok {
		if v, ok := extraction.Evaluate(m, body); ok {
			st.trace.Cost = v
		}
	}

	extractor := extraction.NewModelExtractor(st.providerType.ModelExtractionRules, st.providerType.FallbackModel)
	if model, ok := extractor.Extract(body, requestURL); ok {
		st.trace.ModelUsed = model
	}
}

// observeError is the ERROR→OBSERVE→END path: every non-success exit
// from the pipeline funnels through here so the trace row always
// completes exactly once.
func (p *Pipeline) observeError(w http.ResponseWriter, r *http.Request, st *requestState, pe *pipelineError) {
	status := writeError(w, pe)

	p.logger.Warn("pipeline request failed",
		"request_id", st.requestID, "kind", pe.Kind, "status", status, "error", pe.Error())

	completed := time.Now()
	st.trace.StatusCode = status
	st.trace.Success = false
	st.trace.CompletedAt = &completed
	st.trace.DurationMS = completed.Sub(st.startedAt).Milliseconds()
	st.trace.ErrorType = string(pe.Kind)
	if pe.TraceErrorType != "" {
		st.trace.ErrorType = pe.TraceErrorType
	}
	st.trace.ErrorMessage = pe.Message

	providerName := "unresolved"
	if st.providerType != nil {
		providerName = st.providerType.Name
	}
	p.metrics.RecordRequest(providerName, string(pe.Kind), completed.Sub(st.startedAt))

	p.tracer.Complete(st.trace)
}

// classifyForwardError maps a transport-level failure to an envelope
// kind: timeouts (connect/read/write distinguished where possible),
// DNS/TCP/TLS failures, and client cancellation.
func classifyForwardError(err error) *pipelineError {
	if errors.Is(err, context.Canceled) {
		return newPipelineError(KindClientCancelled, "client disconnected", err)
	}

	// A socket-level deadline error carries the I/O direction in its
	// OpError; a timeout with no direction (context deadline,
	// http.Client.Timeout while awaiting headers) is reported as a
	// connect-phase timeout.
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Timeout() {
		switch opErr.Op {
		case "read":
			return newPipelineError(KindReadTimeout, "timed out reading from upstream", err)
		case "write":
			return newPipelineError(KindWriteTimeout, "timed out writing to upstream", err)
		}
		return newPipelineError(KindConnectionTimeout, "upstream connection timed out", err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return newPipelineError(KindConnectionTimeout, "upstream request timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newPipelineError(KindConnectionTimeout, "upstream request timed out", err)
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return newPipelineError(KindUpstreamNotAvailable, "upstream DNS resolution failed", err)
	}

	if errors.As(err, &opErr) {
		return newPipelineError(KindUpstreamNotAvailable, "upstream connection failed", err)
	}

	return newPipelineError(KindBadGateway, "upstream request failed", err)
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func trimPrefix(path, prefix string) (string, bool) {
	if len(path) < len(prefix) || path[:len(prefix)] != prefix {
		return path, false
	}
	trimmed := path[len(prefix):]
	if trimmed == "" {
		trimmed = "/"
	}
	return trimmed, true
}

// copyAndExtract streams resp.Body to w while also decoding it as JSON
// for response-extraction, when the body is small enough and JSON
// shaped; for streamed/large bodies it copies through without
// attempting extraction, returning a nil map.
func copyAndExtract(w io.Writer, body io.Reader) (map[string]any, error) {
	return streamingCopyAndDecode(w, body)
}
