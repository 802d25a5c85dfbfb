package main

import (
	"testing"
	"time"
)

func TestLatencyStats(t *testing.T) {
	var latencies []time.Duration
	for i := 1; i <= 100; i++ {
		latencies = append(latencies, time.Duration(i)*time.Millisecond)
	}

	stats := latencyStats(latencies)
	if stats["min"] != 1 {
		t.Errorf("min = %d, want 1", stats["min"])
	}
	if stats["max"] != 100 {
		t.Errorf("max = %d, want 100", stats["max"])
	}
	if stats["median"] != 51 {
		t.Errorf("median = %d, want 51", stats["median"])
	}
	if stats["p95"] != 96 {
		t.Errorf("p95 = %d, want 96", stats["p95"])
	}
	if stats["mean"] != 50 {
		t.Errorf("mean = %d, want 50", stats["mean"])
	}
}

func TestLatencyStats_Empty(t *testing.T) {
	if got := latencyStats(nil); got != nil {
		t.Errorf("latencyStats(nil) = %v, want nil", got)
	}
}

func TestLatencyStats_SingleSample(t *testing.T) {
	stats := latencyStats([]time.Duration{42 * time.Millisecond})
	for _, q := range []string{"min", "median", "p95", "p99", "max"} {
		if stats[q] != 42 {
			t.Errorf("%s = %d, want 42", q, stats[q])
		}
	}
}
