package credentialpool

import (
	"sync"
	"sync/atomic"

	"aperturegw/gateway/pkg/gatewaydb"
)

// WeightedStrategy performs weighted round-robin selection over
// key.Weight (default 1; zero/negative treated as 1). Each key takes
// Weight consecutive turns before the next key is chosen; selections
// are not interleaved across keys.
type WeightedStrategy struct {
	mu       sync.Mutex
	counters map[string]*atomic.Int64
}

// NewWeightedStrategy constructs a weighted key strategy.
func NewWeightedStrategy() *WeightedStrategy {
	return &WeightedStrategy{counters: make(map[string]*atomic.Int64)}
}

func (s *WeightedStrategy) counterFor(poolID string) *atomic.Int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[poolID]
	if !ok {
		c = &atomic.Int64{}
		s.counters[poolID] = c
	}
	return c
}

// SelectKey builds a weighted list (each key repeated key.Weight times,
// floor 1) and indexes into it with the pool's counter.
func (s *WeightedStrategy) SelectKey(poolID string, eligible []*gatewaydb.ProviderKey) (*gatewaydb.ProviderKey, error) {
	if len(eligible) == 0 {
		return nil, noKeysErr()
	}

	weighted := make([]*gatewaydb.ProviderKey, 0, len(eligible))
	for _, k := range eligible {
		w := k.Weight
		if w <= 0 {
			w = 1
		}
		for i := 0; i < w; i++ {
			weighted = append(weighted, k)
		}
	}
	if len(weighted) == 0 {
		weighted = eligible
	}

	counter := s.counterFor(poolID)
	count := counter.Add(1) - 1
	if count >= 1_000_000_000 {
		counter.CompareAndSwap(count+1, 0)
		count = 0
	}

	return weighted[int(count%int64(len(weighted)))], nil
}

// Name returns the strategy's configuration name.
func (s *WeightedStrategy) Name() string { return string(gatewaydb.StrategyWeighted) }
