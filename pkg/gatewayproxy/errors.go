// Package gatewayproxy implements the per-request proxy pipeline: a
// straight-line state machine from inbound connection to upstream
// forward and back.
package gatewayproxy

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorKind is the client-facing error envelope's "type" field.
type ErrorKind string

const (
	KindAuthenticationFailed ErrorKind = "authentication_failed"
	KindUsageLimitReached    ErrorKind = "usage_limit_reached"
	KindBoundaryViolation    ErrorKind = "boundary_violation"
	KindUpstreamNotAvailable ErrorKind = "upstream_not_available"
	KindBadGateway           ErrorKind = "bad_gateway"
	KindConnectionTimeout    ErrorKind = "connection_timeout"
	KindReadTimeout          ErrorKind = "read_timeout"
	KindWriteTimeout         ErrorKind = "write_timeout"
	KindClientCancelled      ErrorKind = "client_cancelled"
	KindInternalError        ErrorKind = "internal_error"
)

// statusForKind maps an envelope kind to its HTTP status.
var statusForKind = map[ErrorKind]int{
	KindAuthenticationFailed: http.StatusUnauthorized,
	KindUsageLimitReached:    http.StatusTooManyRequests,
	KindBoundaryViolation:    http.StatusUnauthorized,
	KindUpstreamNotAvailable: http.StatusServiceUnavailable,
	KindBadGateway:           http.StatusBadGateway,
	KindConnectionTimeout:    http.StatusGatewayTimeout,
	KindReadTimeout:          http.StatusGatewayTimeout,
	KindWriteTimeout:         http.StatusGatewayTimeout,
	KindClientCancelled:      0, // never written to the client; the connection is already gone
	KindInternalError:        http.StatusInternalServerError,
}

// pipelineError carries the envelope kind and human message alongside
// the status, retry hint, and underlying cause used for trace rows.
type pipelineError struct {
	Kind       ErrorKind
	Message    string
	RetryAfter int // seconds, 0 when not applicable
	Cause      error

	// TraceErrorType overrides the error_type recorded on the trace row
	// when it needs to be finer-grained than the client-facing kind
	// (e.g. api_key_selection_failed behind upstream_not_available).
	TraceErrorType string
}

func (e *pipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("gatewayproxy: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("gatewayproxy: %s: %s", e.Kind, e.Message)
}

func (e *pipelineError) Unwrap() error { return e.Cause }

func newPipelineError(kind ErrorKind, message string, cause error) *pipelineError {
	return &pipelineError{Kind: kind, Message: message, Cause: cause}
}

// errorEnvelope is the client-facing error wire shape.
type errorEnvelope struct {
	Error envelopeBody `json:"error"`
}

type envelopeBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// writeError serializes a pipelineError as the JSON error envelope and
// sets Retry-After when the error carries one.
func writeError(w http.ResponseWriter, pe *pipelineError) int {
	if pe.Kind == KindClientCancelled {
		// The inbound connection is already gone; nothing to write.
		return 499
	}

	status, ok := statusForKind[pe.Kind]
	if !ok || status == 0 {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	if pe.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", pe.RetryAfter))
	}
	w.WriteHeader(status)

	body := errorEnvelope{Error: envelopeBody{Type: string(pe.Kind), Message: pe.Message}}
	_ = json.NewEncoder(w).Encode(body)
	return status
}
