package credentialpool

import (
	"sync"
	"sync/atomic"

	"aperturegw/gateway/pkg/gatewaydb"
)

// RoundRobinStrategy distributes selections evenly across a pool's
// eligible keys using a per-pool monotonic counter modulo the eligible
// set size.
type RoundRobinStrategy struct {
	mu       sync.Mutex
	counters map[string]*atomic.Int64
}

// NewRoundRobinStrategy constructs a round-robin key strategy.
func NewRoundRobinStrategy() *RoundRobinStrategy {
	return &RoundRobinStrategy{counters: make(map[string]*atomic.Int64)}
}

func (s *RoundRobinStrategy) counterFor(poolID string) *atomic.Int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[poolID]
	if !ok {
		c = &atomic.Int64{}
		s.counters[poolID] = c
	}
	return c
}

// SelectKey picks the next key using the pool's counter modulo the
// eligible set size.
func (s *RoundRobinStrategy) SelectKey(poolID string, eligible []*gatewaydb.ProviderKey) (*gatewaydb.ProviderKey, error) {
	if len(eligible) == 0 {
		return nil, noKeysErr()
	}
	if len(eligible) == 1 {
		return eligible[0], nil
	}

	counter := s.counterFor(poolID)
	count := counter.Add(1) - 1
	if count >= 1_000_000_000 {
		counter.CompareAndSwap(count+1, 0)
		count = 0
	}

	return eligible[int(count%int64(len(eligible)))], nil
}

// Name returns the strategy's configuration name.
func (s *RoundRobinStrategy) Name() string { return string(gatewaydb.StrategyRoundRobin) }
