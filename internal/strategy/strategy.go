package strategy

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/tributary-ai/model-router/internal/scoring"
	"github.com/tributary-ai/model-router/internal/types"
)

var (
	// ErrUnknownStrategy is returned for names outside the built-in set
	ErrUnknownStrategy = errors.New("unknown routing strategy")
	// ErrStrategyFailed marks an internal fault while ranking
	ErrStrategyFailed = errors.New("routing strategy failed")
)

// Name identifies a ranking strategy
type Name string

const (
	CostOptimized    Name = "cost_optimized"
	LatencyOptimized Name = "latency_optimized"
	QualityOptimized Name = "quality_optimized"
	Balanced         Name = "balanced"
	CapabilityFirst  Name = "capability_first"
	HealthAware      Name = "health_aware"
)

// Names lists every built-in strategy
func Names() []Name {
	return []Name{CostOptimized, LatencyOptimized, QualityOptimized, Balanced, CapabilityFirst, HealthAware}
}

// Strategy filters and orders scored candidates
type Strategy interface {
	Name() Name
	Rank(candidates []types.ProviderMatch, analysis *types.TaskAnalysis) ([]types.ProviderMatch, error)
}

// Factory owns one instance of every strategy
type Factory struct {
	strategies  map[Name]Strategy
	defaultName Name
}

// NewFactory builds the strategy set. balanced is the weight profile used by
// the balanced strategy; defaultName is used when preferences select nothing.
func NewFactory(balanced types.RoutingWeights, defaultName Name) (*Factory, error) {
	if err := scoring.ValidateWeights(balanced); err != nil {
		return nil, fmt.Errorf("balanced strategy: %w", err)
	}
	if defaultName == "" {
		defaultName = Balanced
	}

	f := &Factory{
		strategies: map[Name]Strategy{
			CostOptimized:    costOptimized{weights: scoring.MustWeightsFor(scoring.ProfileCostFocused)},
			LatencyOptimized: latencyOptimized{weights: scoring.MustWeightsFor(scoring.ProfileLatencyFocused)},
			QualityOptimized: qualityOptimized{weights: scoring.MustWeightsFor(scoring.ProfileQualityFocused)},
			Balanced:         balancedStrategy{weights: balanced},
			CapabilityFirst:  capabilityFirst{weights: scoring.MustWeightsFor(scoring.ProfileCapabilityFirst)},
			HealthAware:      healthAware{weights: scoring.MustWeightsFor(scoring.ProfileHealthAware)},
		},
		defaultName: defaultName,
	}
	if _, ok := f.strategies[defaultName]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, defaultName)
	}
	return f, nil
}

// Get returns the named strategy
func (f *Factory) Get(name Name) (Strategy, error) {
	s, ok := f.strategies[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
	return s, nil
}

// Resolve picks the strategy for a request. An explicit, known strategy name
// wins; then the speed/quality tradeoff; then high cost optimization when
// cost routing is enabled; then the default.
func (f *Factory) Resolve(prefs *types.Preferences, costRouting bool) Strategy {
	if prefs != nil {
		if s, ok := f.strategies[Name(prefs.Strategy)]; ok {
			if s.Name() != CostOptimized || costRouting {
				return s
			}
		}
		switch {
		case prefs.QualitySpeedTradeoff == types.TradeoffSpeed:
			return f.strategies[LatencyOptimized]
		case prefs.QualitySpeedTradeoff == types.TradeoffQuality:
			return f.strategies[QualityOptimized]
		case prefs.CostOptimization == types.CostOptimizationHigh && costRouting:
			return f.strategies[CostOptimized]
		}
	}
	return f.strategies[f.defaultName]
}

// rank keeps the candidates accepted by keep, reweights them and sorts them
// with less
func rank(
	candidates []types.ProviderMatch,
	keep func(types.ProviderMatch) bool,
	reweight func(types.ProviderMatch) types.ProviderMatch,
	less func(a, b types.ProviderMatch) bool,
) ([]types.ProviderMatch, error) {
	ranked := make([]types.ProviderMatch, 0, len(candidates))
	for _, c := range candidates {
		if !keep(c) {
			continue
		}
		m := reweight(c)
		if math.IsNaN(m.OverallScore) {
			return nil, fmt.Errorf("%w: invalid score for model %s", ErrStrategyFailed, m.ModelID)
		}
		ranked = append(ranked, m)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return less(ranked[i], ranked[j]) })
	return ranked, nil
}

// byOverall orders by overall score, then quality, then model id
func byOverall(a, b types.ProviderMatch) bool {
	if a.OverallScore != b.OverallScore {
		return a.OverallScore > b.OverallScore
	}
	if a.QualityScore != b.QualityScore {
		return a.QualityScore > b.QualityScore
	}
	return a.ModelID < b.ModelID
}

func keepAll(types.ProviderMatch) bool { return true }

func complexityOf(analysis *types.TaskAnalysis) float64 {
	if analysis == nil {
		return 0
	}
	return analysis.ComplexityScore
}
