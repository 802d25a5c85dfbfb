package tracing

import (
	"context"
	"testing"
	"time"

	"aperturegw/gateway/pkg/gatewaydb"
)

func TestRetentionScheduler_InvalidScheduleRejected(t *testing.T) {
	s := NewRetentionScheduler(gatewaydb.NewMemoryStore(), RetentionConfig{
		MaxAge:   time.Hour,
		Schedule: "not a cron expression",
	})
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected an error for a malformed schedule")
	}
}

func TestRetentionScheduler_UnconfiguredIsNoop(t *testing.T) {
	s := NewRetentionScheduler(gatewaydb.NewMemoryStore(), RetentionConfig{})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start with no schedule should no-op, got %v", err)
	}
	s.Stop()
}

func TestRetentionScheduler_PrunesBeyondMaxAge(t *testing.T) {
	store := gatewaydb.NewMemoryStore()
	old := time.Now().Add(-72 * time.Hour)
	store.TraceInsert(context.Background(), &gatewaydb.Trace{RequestID: "r-old", CreatedAt: old})
	store.TraceUpdateCompletion(context.Background(), &gatewaydb.Trace{RequestID: "r-old", CompletedAt: &old})

	s := NewRetentionScheduler(store, RetentionConfig{MaxAge: 24 * time.Hour, Schedule: "0 3 * * *"})
	s.runPruning(context.Background())

	if _, err := store.LoadTrace("r-old"); err == nil {
		t.Error("trace older than max age should have been pruned")
	}
}
