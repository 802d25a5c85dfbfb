package credentialpool

import (
	"fmt"

	"aperturegw/gateway/pkg/gatewaydb"
)

// KeyStrategy selects one ProviderKey from an already-eligible slice.
// Strategies keep their own per-pool state (counters, outcome history)
// keyed by pool ID.
type KeyStrategy interface {
	SelectKey(poolID string, eligible []*gatewaydb.ProviderKey) (*gatewaydb.ProviderKey, error)
	Name() string
}

// NewStrategy builds the KeyStrategy named by a ServiceAPI's
// SchedulingStrategy field.
func NewStrategy(strategy gatewaydb.SchedulingStrategy) KeyStrategy {
	switch strategy {
	case gatewaydb.StrategyWeighted:
		return NewWeightedStrategy()
	case gatewaydb.StrategyHealthBased:
		return NewHealthBasedStrategy()
	default:
		return NewRoundRobinStrategy()
	}
}

func noKeysErr() error {
	return fmt.Errorf("credentialpool: no keys available for selection")
}
