// Package metrics provides Prometheus instrumentation for the gateway's
// request plane: per-request counters and duration histograms, credential
// selection and health-transition counters, OAuth refresh outcomes, and
// the auth-boundary violation counter.
//
// All metrics register against a private prometheus.Registry owned by the
// Collector, exposed over HTTP via Collector.Handler. Recording is cheap
// enough to sit inline on the request path.
package metrics
