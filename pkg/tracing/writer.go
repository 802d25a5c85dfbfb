// Package tracing implements the gateway's immediate request tracing:
// a two-phase writer against gatewaydb.Store. Phase 1 is synchronous,
// not fire-and-forget — a request whose start row can't be written
// must not proceed to authentication — while Phase 2 completions are
// buffered off the response-latency path.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"aperturegw/gateway/pkg/gatewaydb"
	"aperturegw/gateway/pkg/telemetry/metrics"
)

// Config configures a Writer.
type Config struct {
	// AsyncBuffer is the size of the Phase 2 completion channel.
	AsyncBuffer int

	// WriteTimeout bounds how long a completion write may take before
	// it is dropped and logged.
	WriteTimeout time.Duration

	// Metrics receives drop instrumentation. Nil disables it.
	Metrics *metrics.Collector
}

// DefaultConfig returns the writer's default configuration.
func DefaultConfig() Config {
	return Config{
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Writer performs the two-phase trace write.
type Writer struct {
	store  gatewaydb.Store
	config Config
	logger *slog.Logger

	completions chan *gatewaydb.Trace
	wg          sync.WaitGroup
	done        chan struct{}
}

// New constructs a Writer and starts its Phase 2 background worker.
func New(store gatewaydb.Store, config Config) *Writer {
	if config.AsyncBuffer <= 0 {
		config.AsyncBuffer = DefaultConfig().AsyncBuffer
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultConfig().WriteTimeout
	}

	w := &Writer{
		store:       store,
		config:      config,
		logger:      slog.Default().With("component", "tracing.writer"),
		completions: make(chan *gatewaydb.Trace, config.AsyncBuffer),
		done:        make(chan struct{}),
	}

	w.wg.Add(1)
	go w.worker()

	return w
}

// Insert is Phase 1: an unconditional, synchronous insert at pipeline
// START. The caller must treat a failure here as fatal to the request
// (fail-closed observability) — it is never retried or deferred.
func (w *Writer) Insert(ctx context.Context, t *gatewaydb.Trace) error {
	return w.store.TraceInsert(ctx, t)
}

// UpdateIntermediate performs a best-effort field update mid-pipeline
// (e.g. service_api_id/provider_type_id after RESOLVE_UPSTREAM).
// Failures are logged at warn level and never propagated.
func (w *Writer) UpdateIntermediate(ctx context.Context, requestID string, fields map[string]any) {
	if err := w.store.TraceUpdateIntermediate(ctx, requestID, fields); err != nil {
		w.logger.Warn("intermediate trace update failed",
			"request_id", requestID, "error", err)
	}
}

// Complete enqueues Phase 2: the single completion update for a
// request, off the response-latency path.
func (w *Writer) Complete(t *gatewaydb.Trace) {
	select {
	case w.completions <- t:
	case <-time.After(w.config.WriteTimeout):
		w.logger.Error("trace completion channel full, dropping",
			"request_id", t.RequestID, "channel_capacity", w.config.AsyncBuffer)
		w.config.Metrics.RecordTraceDropped()
	case <-w.done:
		w.logger.Warn("writer shutting down, dropping trace completion",
			"request_id", t.RequestID)
	}
}

// Close drains pending completions and stops the background worker.
func (w *Writer) Close() error {
	close(w.done)
	w.wg.Wait()
	return nil
}

func (w *Writer) worker() {
	defer w.wg.Done()

	for {
		select {
		case t := <-w.completions:
			w.writeCompletion(t)
		case <-w.done:
			for {
				select {
				case t := <-w.completions:
					w.writeCompletion(t)
				default:
					return
				}
			}
		}
	}
}

func (w *Writer) writeCompletion(t *gatewaydb.Trace) {
	ctx, cancel := context.WithTimeout(context.Background(), w.config.WriteTimeout)
	defer cancel()

	if err := w.store.TraceUpdateCompletion(ctx, t); err != nil {
		w.logger.Warn("trace completion write failed",
			"request_id", t.RequestID, "error", err)
	}
}
