package strategy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tributary-ai/model-router/internal/scoring"
	"github.com/tributary-ai/model-router/internal/types"
)

func createTestFactory(t *testing.T) *Factory {
	t.Helper()
	f, err := NewFactory(scoring.MustWeightsFor(scoring.ProfileBalanced), Balanced)
	require.NoError(t, err)
	return f
}

func match(id string, capability, health, cost, latency, quality float64) types.ProviderMatch {
	m := types.ProviderMatch{
		ProviderID:      "p-" + id,
		ModelID:         id,
		ModelName:       id,
		CapabilityMatch: capability,
		HealthScore:     health,
		CostScore:       cost,
		LatencyScore:    latency,
		QualityScore:    quality,
		Weights:         scoring.MustWeightsFor(scoring.ProfileBalanced),
		Reason:          "Acceptable match",
	}
	m.OverallScore = m.Recompute()
	return m
}

func testCandidates() []types.ProviderMatch {
	return []types.ProviderMatch{
		match("cheap-weak", 50, 90, 100, 90, 40),
		match("fast", 75, 95, 60, 100, 60),
		match("flagship", 95, 80, 10, 60, 98),
		match("sick", 90, 20, 70, 40, 85),
		match("middle", 70, 65, 50, 50, 70),
	}
}

func modelIDs(ms []types.ProviderMatch) []string {
	ids := make([]string, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m.ModelID)
	}
	return ids
}

func TestStrategiesProduceNonIncreasingScores(t *testing.T) {
	f := createTestFactory(t)
	analysis := &types.TaskAnalysis{ComplexityScore: 75, RequiredCapabilities: types.RequiredCapabilities{FastResponse: true}}

	for _, name := range Names() {
		t.Run(string(name), func(t *testing.T) {
			s, err := f.Get(name)
			require.NoError(t, err)
			assert.Equal(t, name, s.Name())

			ranked, err := s.Rank(testCandidates(), analysis)
			require.NoError(t, err)
			require.NotEmpty(t, ranked)

			for i := 1; i < len(ranked); i++ {
				if name == CapabilityFirst {
					assert.GreaterOrEqual(t, ranked[i-1].CapabilityMatch, ranked[i].CapabilityMatch)
					continue
				}
				assert.GreaterOrEqual(t, ranked[i-1].OverallScore, ranked[i].OverallScore)
			}
			for _, m := range ranked {
				assert.InDelta(t, m.Recompute(), m.OverallScore, 1e-12)
			}
		})
	}
}

func TestCostOptimizedPrefersCheaper(t *testing.T) {
	f := createTestFactory(t)
	s, err := f.Get(CostOptimized)
	require.NoError(t, err)

	candidates := []types.ProviderMatch{
		match("pricey", 80, 90, 20, 80, 80),
		match("cheap", 80, 90, 100, 80, 80),
	}
	ranked, err := s.Rank(candidates, &types.TaskAnalysis{ComplexityScore: 50})
	require.NoError(t, err)

	assert.Equal(t, []string{"cheap", "pricey"}, modelIDs(ranked))
	// cost weight 40 grows by 25% at complexity 50
	assert.Equal(t, 50.0, ranked[0].Weights.Cost)
	assert.Equal(t, 0.0, ranked[0].Bonus)
}

func TestCostOptimizedFiltersWeakCapability(t *testing.T) {
	f := createTestFactory(t)
	s, _ := f.Get(CostOptimized)

	ranked, err := s.Rank(testCandidates(), nil)
	require.NoError(t, err)

	assert.NotContains(t, modelIDs(ranked), "cheap-weak")
	assert.Contains(t, modelIDs(ranked), "middle")
}

func TestLatencyOptimized(t *testing.T) {
	f := createTestFactory(t)
	s, _ := f.Get(LatencyOptimized)

	ranked, err := s.Rank(testCandidates(), &types.TaskAnalysis{})
	require.NoError(t, err)
	assert.NotContains(t, modelIDs(ranked), "sick")
	assert.Equal(t, "fast", ranked[0].ModelID)
	assert.Equal(t, 0.0, ranked[0].Bonus)

	fast := &types.TaskAnalysis{RequiredCapabilities: types.RequiredCapabilities{FastResponse: true}}
	boosted, err := s.Rank(testCandidates(), fast)
	require.NoError(t, err)
	assert.Equal(t, 20.0, boosted[0].Bonus)
}

func TestQualityOptimized(t *testing.T) {
	f := createTestFactory(t)
	s, _ := f.Get(QualityOptimized)

	ranked, err := s.Rank(testCandidates(), &types.TaskAnalysis{ComplexityScore: 50})
	require.NoError(t, err)

	assert.Equal(t, "flagship", ranked[0].ModelID)
	assert.NotContains(t, modelIDs(ranked), "cheap-weak")
	assert.Equal(t, 15.0, ranked[0].Bonus)
}

func TestBalancedKeepsEveryCandidate(t *testing.T) {
	f := createTestFactory(t)
	s, _ := f.Get(Balanced)

	ranked, err := s.Rank(testCandidates(), nil)
	require.NoError(t, err)
	assert.Len(t, ranked, 5)
}

func TestCapabilityFirstOrdering(t *testing.T) {
	f := createTestFactory(t)
	s, _ := f.Get(CapabilityFirst)

	candidates := []types.ProviderMatch{
		match("a", 80, 100, 100, 100, 50),
		match("b", 90, 10, 0, 0, 60),
		match("c", 80, 100, 100, 100, 90),
	}
	ranked, err := s.Rank(candidates, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "c", "a"}, modelIDs(ranked))
	assert.Equal(t, scoring.MustWeightsFor(scoring.ProfileCapabilityFirst), ranked[0].Weights)
}

func TestHealthAwareDropsUnhealthy(t *testing.T) {
	f := createTestFactory(t)
	s, _ := f.Get(HealthAware)

	allSick := []types.ProviderMatch{
		match("x", 90, 20, 90, 90, 90),
		match("y", 90, 59, 90, 90, 90),
	}
	ranked, err := s.Rank(allSick, nil)
	require.NoError(t, err)
	assert.Empty(t, ranked)

	ranked, err = s.Rank(testCandidates(), nil)
	require.NoError(t, err)
	assert.NotContains(t, modelIDs(ranked), "sick")
	assert.Contains(t, modelIDs(ranked), "middle")
}

func TestRankDoesNotMutateInput(t *testing.T) {
	f := createTestFactory(t)
	s, _ := f.Get(QualityOptimized)
	candidates := testCandidates()
	before := testCandidates()

	_, err := s.Rank(candidates, &types.TaskAnalysis{ComplexityScore: 100})
	require.NoError(t, err)
	assert.Equal(t, before, candidates)
}

func TestRankRejectsInvalidScores(t *testing.T) {
	f := createTestFactory(t)
	s, _ := f.Get(Balanced)
	bad := match("bad", math.NaN(), 50, 50, 50, 50)

	_, err := s.Rank([]types.ProviderMatch{bad}, nil)
	assert.ErrorIs(t, err, ErrStrategyFailed)
}

func TestResolve(t *testing.T) {
	f := createTestFactory(t)

	tests := []struct {
		name        string
		prefs       *types.Preferences
		costRouting bool
		expected    Name
	}{
		{"no preferences", nil, true, Balanced},
		{"speed", &types.Preferences{QualitySpeedTradeoff: "speed"}, true, LatencyOptimized},
		{"quality", &types.Preferences{QualitySpeedTradeoff: "quality"}, true, QualityOptimized},
		{"speed beats cost", &types.Preferences{QualitySpeedTradeoff: "speed", CostOptimization: "high"}, true, LatencyOptimized},
		{"high cost", &types.Preferences{CostOptimization: "high"}, true, CostOptimized},
		{"high cost with routing disabled", &types.Preferences{CostOptimization: "high"}, false, Balanced},
		{"medium cost", &types.Preferences{CostOptimization: "medium"}, true, Balanced},
		{"explicit strategy", &types.Preferences{Strategy: "health_aware", QualitySpeedTradeoff: "speed"}, true, HealthAware},
		{"explicit cost with routing disabled", &types.Preferences{Strategy: "cost_optimized"}, false, Balanced},
		{"unknown explicit strategy", &types.Preferences{Strategy: "round_robin", QualitySpeedTradeoff: "quality"}, true, QualityOptimized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, f.Resolve(tt.prefs, tt.costRouting).Name())
		})
	}
}

func TestResolveUsesConfiguredDefault(t *testing.T) {
	f, err := NewFactory(scoring.MustWeightsFor(scoring.ProfileBalanced), HealthAware)
	require.NoError(t, err)
	assert.Equal(t, HealthAware, f.Resolve(nil, true).Name())
}

func TestNewFactoryValidation(t *testing.T) {
	_, err := NewFactory(types.RoutingWeights{CapabilityMatch: 50}, Balanced)
	assert.ErrorIs(t, err, scoring.ErrInvalidWeights)

	_, err = NewFactory(scoring.MustWeightsFor(scoring.ProfileBalanced), "round_robin")
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	f := createTestFactory(t)
	_, err = f.Get("round_robin")
	assert.ErrorIs(t, err, ErrUnknownStrategy)
}
