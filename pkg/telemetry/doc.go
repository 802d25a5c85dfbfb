// Package telemetry groups the gateway's observability subpackages.
//
//   - logging: structured slog wrapper with credential/PII redaction
//     and asynchronous writes, installed as the process default.
//   - metrics: Prometheus collectors for the request plane, exposed on
//     a dedicated listener so the proxy port's auth boundary stays
//     clean.
//
// Request tracing is deliberately not here: per-request lifecycle
// records are domain data written through pkg/tracing into the data
// store, not an export concern.
package telemetry
