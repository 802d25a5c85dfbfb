package credentialpool

import (
	"sort"
	"sync"
	"time"

	"aperturegw/gateway/pkg/gatewaydb"
)

// HealthBasedStrategy ranks eligible keys by recent failure ratio
// (lowest first), breaking ties by least-recent-use. Eligibility has
// already excluded keys that fail the health predicate outright; this
// strategy further prefers the least recently troubled key among
// those that remain.
type HealthBasedStrategy struct {
	mu    sync.Mutex
	stats map[string]*keyStat
}

type keyStat struct {
	failures int64
	total    int64
	lastUsed time.Time
}

// NewHealthBasedStrategy constructs a health-ranked key strategy.
func NewHealthBasedStrategy() *HealthBasedStrategy {
	return &HealthBasedStrategy{stats: make(map[string]*keyStat)}
}

// RecordOutcome lets the pipeline feed back request results so future
// selections can rank by observed failure ratio.
func (s *HealthBasedStrategy) RecordOutcome(keyID string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[keyID]
	if !ok {
		st = &keyStat{}
		s.stats[keyID] = st
	}
	st.total++
	if !success {
		st.failures++
	}
}

// SelectKey ranks eligible by failure ratio ascending, ties by
// least-recent-use, and returns the best-ranked key.
func (s *HealthBasedStrategy) SelectKey(poolID string, eligible []*gatewaydb.ProviderKey) (*gatewaydb.ProviderKey, error) {
	if len(eligible) == 0 {
		return nil, noKeysErr()
	}

	s.mu.Lock()
	ranked := make([]*gatewaydb.ProviderKey, len(eligible))
	copy(ranked, eligible)
	ratio := make(map[string]float64, len(ranked))
	lastUsed := make(map[string]time.Time, len(ranked))
	for _, k := range ranked {
		st, ok := s.stats[k.ID]
		if !ok || st.total == 0 {
			ratio[k.ID] = 0
			continue
		}
		ratio[k.ID] = float64(st.failures) / float64(st.total)
		lastUsed[k.ID] = st.lastUsed
	}
	s.mu.Unlock()

	sort.SliceStable(ranked, func(i, j int) bool {
		ri, rj := ratio[ranked[i].ID], ratio[ranked[j].ID]
		if ri != rj {
			return ri < rj
		}
		return lastUsed[ranked[i].ID].Before(lastUsed[ranked[j].ID])
	})

	chosen := ranked[0]

	s.mu.Lock()
	st, ok := s.stats[chosen.ID]
	if !ok {
		st = &keyStat{}
		s.stats[chosen.ID] = st
	}
	st.lastUsed = time.Now()
	s.mu.Unlock()

	return chosen, nil
}

// Name returns the strategy's configuration name.
func (s *HealthBasedStrategy) Name() string { return string(gatewaydb.StrategyHealthBased) }
