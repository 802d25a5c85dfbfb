package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"aperturegw/gateway/pkg/gatewaydb"
)

// RetentionConfig controls scheduled trace pruning.
type RetentionConfig struct {
	// MaxAge is how long completed trace rows are kept. Zero disables
	// pruning entirely.
	MaxAge time.Duration

	// Schedule is a cron expression for when pruning runs, e.g.
	// "0 3 * * *" for daily at 3 AM. Empty disables the scheduler.
	Schedule string
}

// RetentionScheduler prunes old trace rows on a cron schedule. Derived
// statistics are computed over the live Trace table at query time, so
// pruning is the only maintenance the table needs.
type RetentionScheduler struct {
	store  gatewaydb.Store
	config RetentionConfig
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewRetentionScheduler creates a scheduler; Start arms it.
func NewRetentionScheduler(store gatewaydb.Store, config RetentionConfig) *RetentionScheduler {
	return &RetentionScheduler{
		store:  store,
		config: config,
		cron:   cron.New(),
		logger: slog.Default().With("component", "tracing.retention"),
	}
}

// Start begins scheduled pruning. With no schedule or no max age
// configured it logs and does nothing, so callers can start it
// unconditionally.
func (s *RetentionScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.Schedule == "" || s.config.MaxAge <= 0 {
		s.logger.Info("trace retention not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(s.config.Schedule); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", s.config.Schedule, err)
	}

	if _, err := s.cron.AddFunc(s.config.Schedule, func() {
		s.runPruning(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule trace pruning: %w", err)
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("trace retention scheduler started",
		"schedule", s.config.Schedule, "max_age", s.config.MaxAge)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	return nil
}

func (s *RetentionScheduler) runPruning(ctx context.Context) {
	cutoff := time.Now().Add(-s.config.MaxAge)

	deleted, err := s.store.PruneTraces(ctx, cutoff)
	if err != nil {
		s.logger.Error("scheduled trace pruning failed", "error", err)
		return
	}

	if deleted > 0 {
		s.logger.Info("scheduled trace pruning completed", "deleted_count", deleted, "cutoff", cutoff)
	} else {
		s.logger.Debug("scheduled trace pruning completed, no rows deleted")
	}
}

// Stop stops the scheduler and waits for a running prune to finish.
func (s *RetentionScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil && s.running {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.running = false
		s.logger.Info("trace retention scheduler stopped")
	}
}
