package scoring

import (
	"math"
	"strings"

	"github.com/tributary-ai/model-router/internal/types"
)

// Pricing resolves a provider-level price per 1K tokens
type Pricing interface {
	Price(providerID string, kind types.PriceKind) (float64, bool)
}

const (
	neutralScore = 50.0

	cheapCost     = 0.01
	expensiveCost = 0.10

	fastLatencyMs = 500
	slowLatencyMs = 5000

	largeWindow = 100000

	goodMatchThreshold = 70.0
	maxReasonSignals   = 3
)

// Engine computes provider matches. It is stateless apart from the pricing
// lookup and safe for concurrent use.
type Engine struct {
	pricing Pricing
}

// NewEngine creates a scoring engine. pricing may be nil.
func NewEngine(pricing Pricing) *Engine {
	return &Engine{pricing: pricing}
}

// Score rates one candidate for the analyzed task. health may be nil.
func (e *Engine) Score(entry types.CapabilityEntry, analysis *types.TaskAnalysis, health *types.HealthSnapshot, weights types.RoutingWeights) types.ProviderMatch {
	m := types.ProviderMatch{
		ProviderID: entry.ProviderID,
		ModelID:    entry.ID,
		ModelName:  entry.DisplayName(),
		Weights:    weights,
	}

	m.CapabilityMatch = capabilityMatch(&entry, analysis)

	if health == nil {
		m.HealthScore = neutralScore
		m.LatencyScore = neutralScore
		m.Degraded = append(m.Degraded, types.DegradedHealthUnavailable)
	} else {
		m.HealthScore = healthScore(health)
		if health.LatencyMs == nil {
			m.LatencyScore = neutralScore
			m.Degraded = append(m.Degraded, types.DegradedLatencyUnknown)
		} else {
			m.LatencyScore = LatencyScore(*health.LatencyMs)
		}
	}

	cost, defaulted := e.EstimateCost(entry, analysis)
	if defaulted {
		m.Degraded = append(m.Degraded, types.DegradedPricingDefault)
	}
	m.CostScore = CostScore(cost)
	m.QualityScore = qualityScore(&entry)

	m.OverallScore = m.Recompute()
	m.Reason = reason(&entry, analysis, m.OverallScore)
	return m
}

// Reweight re-derives the overall score of a match under a different weight
// set and bonus
func Reweight(m types.ProviderMatch, weights types.RoutingWeights, bonus float64) types.ProviderMatch {
	m.Weights = weights
	m.Bonus = bonus
	m.OverallScore = m.Recompute()
	if m.Reason == reasonGood || m.Reason == reasonAcceptable {
		m.Reason = fallbackReason(m.OverallScore)
	}
	if len(m.Degraded) > 0 {
		m.Degraded = append([]types.DegradedReason(nil), m.Degraded...)
	}
	return m
}

// EstimateCost returns the expected request cost in dollars and whether any
// price had to fall back to the fixed default
func (e *Engine) EstimateCost(entry types.CapabilityEntry, analysis *types.TaskAnalysis) (float64, bool) {
	in, inDefault := e.price(entry, types.PriceInput)
	out, outDefault := e.price(entry, types.PriceOutput)
	if analysis == nil {
		return 0, inDefault || outDefault
	}
	cost := in*float64(analysis.EstimatedInputTokens)/1000 + out*float64(analysis.EstimatedOutputTokens)/1000
	return cost, inDefault || outDefault
}

func (e *Engine) price(entry types.CapabilityEntry, kind types.PriceKind) (float64, bool) {
	configured := entry.InputPricePer1K
	fallback := types.DefaultInputPricePer1K
	if kind == types.PriceOutput {
		configured = entry.OutputPricePer1K
		fallback = types.DefaultOutputPricePer1K
	}
	if configured > 0 {
		return configured, false
	}
	if e.pricing != nil {
		if p, ok := e.pricing.Price(entry.ProviderID, kind); ok {
			return p, false
		}
	}
	return fallback, true
}

func capabilityMatch(entry *types.CapabilityEntry, analysis *types.TaskAnalysis) float64 {
	if analysis == nil {
		return neutralScore
	}
	req := analysis.RequiredCapabilities
	score := neutralScore

	if req.Vision {
		score += presence(entry.HasCapability(types.CapabilityVision), 15)
	}
	if req.Coding {
		score += presence(entry.HasCapability(types.CapabilityCoding), 15)
	}
	if req.Reasoning && entry.HasCapability(types.CapabilityReasoning) {
		score += 10
	}
	if req.Analysis && entry.HasCapability(types.CapabilityAnalysis) {
		score += 10
	}

	needed := analysis.EstimatedInputTokens + analysis.EstimatedOutputTokens
	switch {
	case req.LargeContext && entry.ContextWindow >= largeWindow && entry.ContextWindow >= needed:
		score += 10
	case req.LargeContext:
		score -= 15
	case entry.ContextWindow > 0 && entry.ContextWindow < needed:
		score -= 15
	}

	return clamp(score)
}

func presence(has bool, delta float64) float64 {
	if has {
		return delta
	}
	return -delta
}

func healthScore(h *types.HealthSnapshot) float64 {
	score := neutralScore
	switch h.Status {
	case types.HealthHealthy:
		score += 40
	case types.HealthDegraded:
		score += 10
	case types.HealthUnhealthy:
		score -= 30
	}
	score += h.SuccessRate * 20
	score -= math.Min(20, float64(h.QueueLength)*2)
	return clamp(score)
}

// CostScore maps a dollar cost onto [0,100]; cheaper is higher
func CostScore(cost float64) float64 {
	switch {
	case cost <= cheapCost:
		return 100
	case cost >= expensiveCost:
		return 0
	default:
		return 100 * (expensiveCost - cost) / (expensiveCost - cheapCost)
	}
}

// LatencyScore maps a latency in milliseconds onto [0,100]; faster is higher
func LatencyScore(latencyMs int64) float64 {
	switch {
	case latencyMs < fastLatencyMs:
		return 100
	case latencyMs > slowLatencyMs:
		return 0
	default:
		return 100 * float64(slowLatencyMs-latencyMs) / float64(slowLatencyMs-fastLatencyMs)
	}
}

func qualityScore(entry *types.CapabilityEntry) float64 {
	score := neutralScore + float64(3-entry.PriorityTier)*15
	switch {
	case entry.ContextWindow >= 1000000:
		score += 15
	case entry.ContextWindow >= 100000:
		score += 10
	case entry.ContextWindow >= 32000:
		score += 5
	}
	score += math.Min(15, float64(len(entry.Capabilities))*2)
	return clamp(score)
}

const (
	reasonGood       = "Good match"
	reasonAcceptable = "Acceptable match"
)

var categoryTags = map[types.TaskCategory]string{
	types.CategoryCoding:               types.CapabilityCoding,
	types.CategoryDataAnalysis:         types.CapabilityAnalysis,
	types.CategoryReasoning:            types.CapabilityReasoning,
	types.CategoryTechnicalExplanation: types.CapabilityReasoning,
	types.CategoryVision:               types.CapabilityVision,
}

// reason assembles up to three matched signals
func reason(entry *types.CapabilityEntry, analysis *types.TaskAnalysis, overall float64) string {
	var signals []string

	if analysis != nil && coversRequired(entry, analysis.RequiredCapabilities) {
		signals = append(signals, "Supports all required capabilities")
	}
	if entry.PriorityTier == 1 {
		signals = append(signals, "Top-tier model")
	}
	if analysis != nil && analysis.RequiredCapabilities.LargeContext && entry.ContextWindow >= largeWindow {
		signals = append(signals, "Large context window")
	}
	if analysis != nil {
		if tag, ok := categoryTags[analysis.Category]; ok && entry.HasCapability(tag) {
			signals = append(signals, "Well suited for "+strings.ReplaceAll(string(analysis.Category), "_", " "))
		}
	}

	if len(signals) == 0 {
		return fallbackReason(overall)
	}
	if len(signals) > maxReasonSignals {
		signals = signals[:maxReasonSignals]
	}
	return strings.Join(signals, "; ")
}

func fallbackReason(overall float64) string {
	if overall > goodMatchThreshold {
		return reasonGood
	}
	return reasonAcceptable
}

// coversRequired is true when at least one tag-backed capability is required
// and the entry has all of them
func coversRequired(entry *types.CapabilityEntry, req types.RequiredCapabilities) bool {
	required := 0
	for tag, needed := range map[string]bool{
		types.CapabilityVision:    req.Vision,
		types.CapabilityCoding:    req.Coding,
		types.CapabilityReasoning: req.Reasoning,
		types.CapabilityAnalysis:  req.Analysis,
	} {
		if !needed {
			continue
		}
		required++
		if !entry.HasCapability(tag) {
			return false
		}
	}
	return required > 0
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
