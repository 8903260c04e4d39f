package types

import (
	"math"
	"time"
)

// Preference values
const (
	TradeoffSpeed    = "speed"
	TradeoffQuality  = "quality"
	TradeoffBalanced = "balanced"

	CostOptimizationHigh   = "high"
	CostOptimizationMedium = "medium"
	CostOptimizationLow    = "low"
)

// Preferences are caller-supplied routing hints
type Preferences struct {
	QualitySpeedTradeoff string `json:"quality_speed_tradeoff,omitempty"` // speed, quality, balanced
	CostOptimization     string `json:"cost_optimization,omitempty"`      // high, medium, low
	Strategy             string `json:"strategy,omitempty"`               // explicit strategy name
}

// RoutingRequest is the input to the router
type RoutingRequest struct {
	Messages       []Message        `json:"messages"`
	RequestedModel string           `json:"requested_model,omitempty"`
	Preferences    *Preferences     `json:"preferences,omitempty"`
	Options        *AnalysisOptions `json:"options,omitempty"`
}

// RoutingWeights are percentages applied to the five sub-scores
type RoutingWeights struct {
	CapabilityMatch float64 `json:"capability_match" yaml:"capability_match"`
	Health          float64 `json:"health" yaml:"health"`
	Cost            float64 `json:"cost" yaml:"cost"`
	Latency         float64 `json:"latency" yaml:"latency"`
	Quality         float64 `json:"quality" yaml:"quality"`
}

// Sum of the five weights
func (w RoutingWeights) Sum() float64 {
	return w.CapabilityMatch + w.Health + w.Cost + w.Latency + w.Quality
}

// DegradedReason names a degraded path taken while routing
type DegradedReason string

const (
	DegradedHealthUnavailable DegradedReason = "health_unavailable"
	DegradedHealthTimeout     DegradedReason = "health_timeout"
	DegradedHealthDisabled    DegradedReason = "health_routing_disabled"
	DegradedLatencyUnknown    DegradedReason = "latency_unknown"
	DegradedPricingDefault    DegradedReason = "pricing_default"
	DegradedNoCandidates      DegradedReason = "no_viable_candidates"
	DegradedUnknownModel      DegradedReason = "requested_model_unknown"
	DegradedAutoSelectOff     DegradedReason = "auto_select_disabled"
)

// ProviderMatch is the scored view of one candidate
type ProviderMatch struct {
	ProviderID      string           `json:"provider_id"`
	ModelID         string           `json:"model_id"`
	ModelName       string           `json:"model_name"`
	CapabilityMatch float64          `json:"capability_match"`
	HealthScore     float64          `json:"health_score"`
	CostScore       float64          `json:"cost_score"`
	LatencyScore    float64          `json:"latency_score"`
	QualityScore    float64          `json:"quality_score"`
	OverallScore    float64          `json:"overall_score"`
	Reason          string           `json:"reason"`
	Weights         RoutingWeights   `json:"weights"`
	Bonus           float64          `json:"bonus,omitempty"`
	Degraded        []DegradedReason `json:"degraded,omitempty"`
}

// Recompute derives the overall score from the sub-scores, weights and bonus
func (m *ProviderMatch) Recompute() float64 {
	sum := m.CapabilityMatch*m.Weights.CapabilityMatch +
		m.HealthScore*m.Weights.Health +
		m.CostScore*m.Weights.Cost +
		m.LatencyScore*m.Weights.Latency +
		m.QualityScore*m.Weights.Quality
	return math.Max(0, math.Min(100, sum/100+m.Bonus))
}

// RoutingResult is the router's decision
type RoutingResult struct {
	SelectedModel    string           `json:"selected_model"`
	SelectedProvider string           `json:"selected_provider"`
	Ranked           []ProviderMatch  `json:"ranked"`
	FallbackChain    []string         `json:"fallback_chain"`
	Analysis         *TaskAnalysis    `json:"analysis,omitempty"`
	Confidence       float64          `json:"confidence"`
	Reason           string           `json:"reason"`
	Strategy         string           `json:"strategy"`
	EstimatedCost    float64          `json:"estimated_cost"`
	EstimatedLatency int64            `json:"estimated_latency_ms"`
	Degraded         []DegradedReason `json:"degraded,omitempty"`
	Timestamp        time.Time        `json:"timestamp"`
}

// IsFallback reports whether no candidate was ranked
func (r *RoutingResult) IsFallback() bool {
	return len(r.Ranked) == 0 && r.Confidence == 0
}

// RouterStats are cumulative router counters
type RouterStats struct {
	TotalRoutings        int64            `json:"total_routings"`
	SuccessfulRoutings   int64            `json:"successful_routings"`
	FailedRoutings       int64            `json:"failed_routings"`
	ModelDistribution    map[string]int64 `json:"model_distribution"`
	StrategyDistribution map[string]int64 `json:"strategy_distribution"`
	FallbackUsage        int64            `json:"fallback_usage"`
	AverageDecisionMs    float64          `json:"average_decision_ms"`
}
