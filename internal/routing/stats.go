package routing

import (
	"sync"
	"time"

	"github.com/tributary-ai/model-router/internal/types"
)

// statsCollector accumulates router counters under a mutex
type statsCollector struct {
	mu            sync.Mutex
	stats         types.RouterStats
	decisionTotal time.Duration
}

func newStatsCollector() *statsCollector {
	c := &statsCollector{}
	c.reset()
	return c
}

func (c *statsCollector) reset() {
	c.stats = types.RouterStats{
		ModelDistribution:    make(map[string]int64),
		StrategyDistribution: make(map[string]int64),
	}
	c.decisionTotal = 0
}

func (c *statsCollector) recordSuccess(result *types.RoutingResult, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.TotalRoutings++
	c.stats.SuccessfulRoutings++
	c.stats.ModelDistribution[result.SelectedModel]++
	c.stats.StrategyDistribution[result.Strategy]++
	if len(result.FallbackChain) > 0 {
		c.stats.FallbackUsage++
	}
	c.decisionTotal += elapsed
	c.stats.AverageDecisionMs = float64(c.decisionTotal.Microseconds()) / 1000 / float64(c.stats.TotalRoutings)
}

func (c *statsCollector) recordFailure(elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.TotalRoutings++
	c.stats.FailedRoutings++
	c.decisionTotal += elapsed
	c.stats.AverageDecisionMs = float64(c.decisionTotal.Microseconds()) / 1000 / float64(c.stats.TotalRoutings)
}

// snapshot returns a deep copy
func (c *statsCollector) snapshot() types.RouterStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.stats
	out.ModelDistribution = make(map[string]int64, len(c.stats.ModelDistribution))
	for k, v := range c.stats.ModelDistribution {
		out.ModelDistribution[k] = v
	}
	out.StrategyDistribution = make(map[string]int64, len(c.stats.StrategyDistribution))
	for k, v := range c.stats.StrategyDistribution {
		out.StrategyDistribution[k] = v
	}
	return out
}

func (c *statsCollector) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}
