package strategy

import (
	"github.com/tributary-ai/model-router/internal/scoring"
	"github.com/tributary-ai/model-router/internal/types"
)

// costOptimized prefers cheap models that still fit the task well. The cost
// weight grows with task complexity.
type costOptimized struct {
	weights types.RoutingWeights
}

func (costOptimized) Name() Name { return CostOptimized }

func (s costOptimized) Rank(candidates []types.ProviderMatch, analysis *types.TaskAnalysis) ([]types.ProviderMatch, error) {
	w := s.weights
	w.Cost *= 1 + complexityOf(analysis)/100*0.5
	return rank(candidates,
		func(m types.ProviderMatch) bool { return m.CapabilityMatch >= 70 },
		func(m types.ProviderMatch) types.ProviderMatch { return scoring.Reweight(m, w, 0) },
		byOverall,
	)
}

type latencyOptimized struct {
	weights types.RoutingWeights
}

func (latencyOptimized) Name() Name { return LatencyOptimized }

func (s latencyOptimized) Rank(candidates []types.ProviderMatch, analysis *types.TaskAnalysis) ([]types.ProviderMatch, error) {
	bonus := 0.0
	if analysis != nil && analysis.RequiredCapabilities.FastResponse {
		bonus = 20
	}
	return rank(candidates,
		func(m types.ProviderMatch) bool { return m.HealthScore >= 50 },
		func(m types.ProviderMatch) types.ProviderMatch { return scoring.Reweight(m, s.weights, bonus) },
		byOverall,
	)
}

type qualityOptimized struct {
	weights types.RoutingWeights
}

func (qualityOptimized) Name() Name { return QualityOptimized }

func (s qualityOptimized) Rank(candidates []types.ProviderMatch, analysis *types.TaskAnalysis) ([]types.ProviderMatch, error) {
	bonus := complexityOf(analysis) * 0.3
	return rank(candidates,
		func(m types.ProviderMatch) bool { return m.CapabilityMatch >= 60 },
		func(m types.ProviderMatch) types.ProviderMatch { return scoring.Reweight(m, s.weights, bonus) },
		byOverall,
	)
}

type balancedStrategy struct {
	weights types.RoutingWeights
}

func (balancedStrategy) Name() Name { return Balanced }

func (s balancedStrategy) Rank(candidates []types.ProviderMatch, _ *types.TaskAnalysis) ([]types.ProviderMatch, error) {
	return rank(candidates,
		keepAll,
		func(m types.ProviderMatch) types.ProviderMatch { return scoring.Reweight(m, s.weights, 0) },
		byOverall,
	)
}

// capabilityFirst orders by capability match, then quality
type capabilityFirst struct {
	weights types.RoutingWeights
}

func (capabilityFirst) Name() Name { return CapabilityFirst }

func (s capabilityFirst) Rank(candidates []types.ProviderMatch, _ *types.TaskAnalysis) ([]types.ProviderMatch, error) {
	return rank(candidates,
		keepAll,
		func(m types.ProviderMatch) types.ProviderMatch { return scoring.Reweight(m, s.weights, 0) },
		func(a, b types.ProviderMatch) bool {
			if a.CapabilityMatch != b.CapabilityMatch {
				return a.CapabilityMatch > b.CapabilityMatch
			}
			if a.QualityScore != b.QualityScore {
				return a.QualityScore > b.QualityScore
			}
			return byOverall(a, b)
		},
	)
}

type healthAware struct {
	weights types.RoutingWeights
}

func (healthAware) Name() Name { return HealthAware }

func (s healthAware) Rank(candidates []types.ProviderMatch, _ *types.TaskAnalysis) ([]types.ProviderMatch, error) {
	return rank(candidates,
		func(m types.ProviderMatch) bool { return m.HealthScore >= 60 },
		func(m types.ProviderMatch) types.ProviderMatch { return scoring.Reweight(m, s.weights, 0) },
		byOverall,
	)
}
