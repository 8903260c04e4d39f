package routing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tributary-ai/model-router/internal/analyzer"
	"github.com/tributary-ai/model-router/internal/scoring"
	"github.com/tributary-ai/model-router/internal/strategy"
	"github.com/tributary-ai/model-router/internal/types"
)

// Strategy labels for results that bypass ranking
const (
	StrategyExplicit = "explicit"
	StrategyDefault  = "default"
)

// Result reasons
const (
	ReasonExplicit      = "Explicit user selection"
	ReasonFallback      = "No suitable providers found, using fallback"
	ReasonAutoSelectOff = "Auto-selection disabled, using default model"
)

const (
	fallbackLatencyMs = 5000
	defaultLatencyMs  = 1000
)

// Registry is the catalog the router ranks
type Registry interface {
	ListAvailable() []types.CapabilityEntry
	Get(id string) (types.CapabilityEntry, error)
}

// HealthSource supplies provider health snapshots
type HealthSource interface {
	GetHealth(ctx context.Context, providerID string) (*types.HealthSnapshot, error)
}

// Observer receives routing outcomes, e.g. for metrics export
type Observer interface {
	ObserveRoute(result *types.RoutingResult, elapsed time.Duration)
	ObserveFailure(strategy string, elapsed time.Duration)
}

type strategyResolver interface {
	Resolve(prefs *types.Preferences, costRouting bool) strategy.Strategy
}

// Config holds router settings
type Config struct {
	DefaultModel        string
	AutoSelect          bool
	CostRouting         bool
	HealthRouting       bool
	MaxFallbackAttempts int
	WeightProfile       scoring.Profile
	DefaultStrategy     strategy.Name
	AnalysisCacheTTL    time.Duration
	AnalysisCacheSize   int
	HealthCacheTTL      time.Duration
	HealthTimeout       time.Duration
	Analyzer            analyzer.Config
}

// DefaultConfig returns the default router settings
func DefaultConfig() Config {
	return Config{
		DefaultModel:        "gpt-4o-mini",
		AutoSelect:          true,
		CostRouting:         true,
		HealthRouting:       true,
		MaxFallbackAttempts: 3,
		WeightProfile:       scoring.ProfileBalanced,
		DefaultStrategy:     strategy.Balanced,
		AnalysisCacheTTL:    60 * time.Second,
		AnalysisCacheSize:   1024,
		HealthCacheTTL:      10 * time.Second,
		HealthTimeout:       2 * time.Second,
	}
}

// Router decides which model serves a conversation
type Router struct {
	cfg        Config
	weights    types.RoutingWeights
	analyzer   *analyzer.Analyzer
	scorer     *scoring.Engine
	strategies strategyResolver
	registry   Registry
	health     HealthSource
	analyses   *analysisCache
	healthSnap *healthCache
	stats      *statsCollector
	observer   Observer
	logger     *logrus.Logger
}

// NewRouter creates a router. health and pricing may be nil.
func NewRouter(cfg Config, registry Registry, health HealthSource, pricing scoring.Pricing, logger *logrus.Logger) (*Router, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.DefaultModel == "" {
		return nil, errors.New("default model is required")
	}
	if cfg.MaxFallbackAttempts < 0 {
		return nil, fmt.Errorf("max fallback attempts must be >= 0, got %d", cfg.MaxFallbackAttempts)
	}
	if cfg.WeightProfile == "" {
		cfg.WeightProfile = scoring.ProfileBalanced
	}
	if cfg.AnalysisCacheTTL <= 0 {
		cfg.AnalysisCacheTTL = DefaultConfig().AnalysisCacheTTL
	}
	if cfg.HealthCacheTTL <= 0 {
		cfg.HealthCacheTTL = DefaultConfig().HealthCacheTTL
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = DefaultConfig().HealthTimeout
	}

	weights, err := scoring.WeightsFor(cfg.WeightProfile)
	if err != nil {
		return nil, err
	}
	factory, err := strategy.NewFactory(weights, cfg.DefaultStrategy)
	if err != nil {
		return nil, err
	}

	return &Router{
		cfg:        cfg,
		weights:    weights,
		analyzer:   analyzer.New(cfg.Analyzer, logger),
		scorer:     scoring.NewEngine(pricing),
		strategies: factory,
		registry:   registry,
		health:     health,
		analyses:   newAnalysisCache(cfg.AnalysisCacheSize, cfg.AnalysisCacheTTL),
		healthSnap: newHealthCache(cfg.HealthCacheTTL),
		stats:      newStatsCollector(),
		logger:     logger,
	}, nil
}

// SetObserver attaches an observer for routing outcomes
func (r *Router) SetObserver(o Observer) {
	r.observer = o
}

// Route picks a model for the request. The only error is an internal fault
// while ranking; every degraded path still produces a result.
func (r *Router) Route(ctx context.Context, req *types.RoutingRequest) (*types.RoutingResult, error) {
	start := time.Now()
	if req == nil {
		req = &types.RoutingRequest{}
	}

	var result *types.RoutingResult
	switch {
	case req.RequestedModel != "":
		result = r.explicitResult(req, req.RequestedModel, StrategyExplicit, ReasonExplicit)
	case !r.cfg.AutoSelect:
		result = r.explicitResult(req, r.cfg.DefaultModel, StrategyDefault, ReasonAutoSelectOff)
		result.Degraded = append(result.Degraded, types.DegradedAutoSelectOff)
	default:
		var err error
		result, err = r.rank(ctx, req)
		if err != nil {
			elapsed := time.Since(start)
			r.stats.recordFailure(elapsed)
			if r.observer != nil {
				r.observer.ObserveFailure(result.Strategy, elapsed)
			}
			r.logger.WithError(err).WithField("strategy", result.Strategy).Error("Routing failed")
			return nil, err
		}
	}

	elapsed := time.Since(start)
	r.stats.recordSuccess(result, elapsed)
	if r.observer != nil {
		r.observer.ObserveRoute(result, elapsed)
	}

	r.logger.WithFields(logrus.Fields{
		"model":       result.SelectedModel,
		"provider":    result.SelectedProvider,
		"strategy":    result.Strategy,
		"confidence":  result.Confidence,
		"fallbacks":   len(result.FallbackChain),
		"degraded":    result.Degraded,
		"duration_ms": elapsed.Milliseconds(),
	}).Info("Request routed")

	return result, nil
}

// Analyze classifies the request's conversation, using the analysis cache
func (r *Router) Analyze(req *types.RoutingRequest) *types.TaskAnalysis {
	opts := analysisOptions(req)
	key := analysisKey(req.Messages, opts)
	if cached, ok := r.analyses.get(key); ok {
		r.logger.WithField("analysis_id", cached.ID).Debug("Analysis cache hit")
		return cached
	}
	analysis := r.analyzer.Analyze(req.Messages, opts)
	r.analyses.add(key, analysis)
	return analysis
}

// Stats returns a copy of the router counters
func (r *Router) Stats() types.RouterStats {
	return r.stats.snapshot()
}

// ResetStats zeroes the router counters
func (r *Router) ResetStats() {
	r.stats.clear()
}

// InvalidateCaches drops cached analyses and health snapshots
func (r *Router) InvalidateCaches() {
	r.analyses.lru.Purge()
	r.healthSnap.lru.Purge()
}

// rank runs the scored ranking path. On error the returned result is a stub
// carrying the strategy name.
func (r *Router) rank(ctx context.Context, req *types.RoutingRequest) (*types.RoutingResult, error) {
	analysis := r.Analyze(req)
	candidates := r.registry.ListAvailable()
	healthMap, degraded := r.fetchHealth(ctx, candidates)

	scored := make([]types.ProviderMatch, 0, len(candidates))
	for _, entry := range candidates {
		scored = append(scored, r.scorer.Score(entry, analysis, healthMap[entry.ProviderID], r.weights))
	}

	strat := r.strategies.Resolve(preferences(req), r.cfg.CostRouting)
	ranked, err := runStrategy(strat, scored, analysis)
	if err != nil {
		return &types.RoutingResult{Strategy: string(strat.Name())}, err
	}

	if len(ranked) == 0 {
		result := r.fallbackResult(analysis, string(strat.Name()))
		result.Degraded = mergeDegraded(degraded, result.Degraded)
		r.logger.WithFields(logrus.Fields{
			"strategy":   strat.Name(),
			"candidates": len(candidates),
			"default":    r.cfg.DefaultModel,
		}).Warn("No suitable providers, using fallback model")
		return result, nil
	}

	selected := ranked[0]
	result := &types.RoutingResult{
		SelectedModel:    selected.ModelID,
		SelectedProvider: selected.ProviderID,
		Ranked:           ranked,
		FallbackChain:    fallbackChain(ranked, r.cfg.MaxFallbackAttempts),
		Analysis:         analysis,
		Confidence:       confidence(ranked),
		Reason:           selected.Reason,
		Strategy:         string(strat.Name()),
		EstimatedLatency: estimatedLatency(healthMap[selected.ProviderID]),
		Timestamp:        time.Now(),
	}
	if entry, err := r.registry.Get(selected.ModelID); err == nil {
		result.EstimatedCost, _ = r.scorer.EstimateCost(entry, analysis)
	}
	result.Degraded = mergeDegraded(degraded, selected.Degraded)
	return result, nil
}

// explicitResult builds the single-candidate result for a model chosen
// outside ranking
func (r *Router) explicitResult(req *types.RoutingRequest, modelID, strategyName, reason string) *types.RoutingResult {
	analysis := r.Analyze(req)
	result := &types.RoutingResult{
		SelectedModel:    modelID,
		FallbackChain:    []string{},
		Analysis:         analysis,
		Confidence:       100,
		Reason:           reason,
		Strategy:         strategyName,
		EstimatedLatency: defaultLatencyMs,
		Timestamp:        time.Now(),
	}

	entry, err := r.registry.Get(modelID)
	if err != nil {
		entry = types.CapabilityEntry{ID: modelID}
		result.Degraded = append(result.Degraded, types.DegradedUnknownModel)
		r.logger.WithField("model", modelID).Warn("Requested model not in catalog")
	}
	result.SelectedProvider = entry.ProviderID

	var pricingDefault bool
	result.EstimatedCost, pricingDefault = r.scorer.EstimateCost(entry, analysis)
	if pricingDefault {
		result.Degraded = append(result.Degraded, types.DegradedPricingDefault)
	}
	if snap, ok := r.healthSnap.get(entry.ProviderID); ok {
		result.EstimatedLatency = estimatedLatency(snap)
	}

	match := types.ProviderMatch{
		ProviderID:      entry.ProviderID,
		ModelID:         modelID,
		ModelName:       entry.DisplayName(),
		CapabilityMatch: 100,
		HealthScore:     100,
		CostScore:       100,
		LatencyScore:    100,
		QualityScore:    100,
		Reason:          reason,
		Weights:         r.weights,
	}
	match.OverallScore = match.Recompute()
	result.Ranked = []types.ProviderMatch{match}
	return result
}

// fallbackResult is returned when no candidate survives ranking
func (r *Router) fallbackResult(analysis *types.TaskAnalysis, strategyName string) *types.RoutingResult {
	result := &types.RoutingResult{
		SelectedModel:    r.cfg.DefaultModel,
		Ranked:           []types.ProviderMatch{},
		FallbackChain:    []string{},
		Analysis:         analysis,
		Confidence:       0,
		Reason:           ReasonFallback,
		Strategy:         strategyName,
		EstimatedLatency: fallbackLatencyMs,
		Degraded:         []types.DegradedReason{types.DegradedNoCandidates},
		Timestamp:        time.Now(),
	}
	if entry, err := r.registry.Get(r.cfg.DefaultModel); err == nil {
		result.SelectedProvider = entry.ProviderID
		result.EstimatedCost, _ = r.scorer.EstimateCost(entry, analysis)
	}
	return result
}

// fetchHealth gathers one snapshot per candidate provider concurrently.
// A provider whose fetch fails or times out gets an unknown snapshot.
func (r *Router) fetchHealth(ctx context.Context, candidates []types.CapabilityEntry) (map[string]*types.HealthSnapshot, []types.DegradedReason) {
	out := make(map[string]*types.HealthSnapshot)
	if !r.cfg.HealthRouting || r.health == nil {
		return out, []types.DegradedReason{types.DegradedHealthDisabled}
	}

	var (
		mu       sync.Mutex
		degraded []types.DegradedReason
		g        errgroup.Group
	)
	var misses []string
	for _, providerID := range providerIDs(candidates) {
		if snap, ok := r.healthSnap.get(providerID); ok {
			out[providerID] = snap
			continue
		}
		misses = append(misses, providerID)
	}
	for _, providerID := range misses {
		g.Go(func() error {
			snap, reason := r.fetchOne(ctx, providerID)
			mu.Lock()
			defer mu.Unlock()
			out[providerID] = snap
			if reason != "" {
				degraded = append(degraded, reason)
			}
			return nil
		})
	}
	_ = g.Wait()
	return out, mergeDegraded(nil, degraded)
}

// fetchOne asks the health source for one provider, bounded by the health
// timeout even when the source ignores its context
func (r *Router) fetchOne(ctx context.Context, providerID string) (*types.HealthSnapshot, types.DegradedReason) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.HealthTimeout)
	defer cancel()

	type reply struct {
		snap *types.HealthSnapshot
		err  error
	}
	ch := make(chan reply, 1)
	go func() {
		snap, err := r.health.GetHealth(ctx, providerID)
		ch <- reply{snap, err}
	}()

	select {
	case rep := <-ch:
		if rep.err != nil || rep.snap == nil {
			err := rep.err
			if err == nil {
				err = errors.New("empty health snapshot")
			}
			r.logger.WithError(err).WithField("provider", providerID).Warn("Health fetch failed, treating as unknown")
			return types.UnknownHealth(providerID, err), types.DegradedHealthUnavailable
		}
		r.healthSnap.add(providerID, rep.snap)
		return rep.snap, ""
	case <-ctx.Done():
		r.logger.WithField("provider", providerID).Warn("Health fetch timed out, treating as unknown")
		return types.UnknownHealth(providerID, ctx.Err()), types.DegradedHealthTimeout
	}
}

// runStrategy ranks with s, converting a panic into an error
func runStrategy(s strategy.Strategy, scored []types.ProviderMatch, analysis *types.TaskAnalysis) (ranked []types.ProviderMatch, err error) {
	defer func() {
		if p := recover(); p != nil {
			ranked = nil
			err = fmt.Errorf("%w: %s panicked: %v", strategy.ErrStrategyFailed, s.Name(), p)
		}
	}()
	return s.Rank(scored, analysis)
}

// fallbackChain lists the model ids ranked after the selected one
func fallbackChain(ranked []types.ProviderMatch, max int) []string {
	chain := []string{}
	for i := 1; i < len(ranked) && len(chain) < max; i++ {
		chain = append(chain, ranked[i].ModelID)
	}
	return chain
}

// confidence grows with the margin between the two best candidates
func confidence(ranked []types.ProviderMatch) float64 {
	if len(ranked) == 1 {
		return 80
	}
	c := 70 + 2*(ranked[0].OverallScore-ranked[1].OverallScore)
	if c > 100 {
		return 100
	}
	if c < 0 {
		return 0
	}
	return c
}

func estimatedLatency(snap *types.HealthSnapshot) int64 {
	if snap == nil || snap.LatencyMs == nil {
		return defaultLatencyMs
	}
	return *snap.LatencyMs
}

func providerIDs(entries []types.CapabilityEntry) []string {
	seen := make(map[string]struct{}, len(entries))
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.ProviderID]; ok {
			continue
		}
		seen[e.ProviderID] = struct{}{}
		ids = append(ids, e.ProviderID)
	}
	return ids
}

func preferences(req *types.RoutingRequest) *types.Preferences {
	if req.Preferences != nil {
		return req.Preferences
	}
	if req.Options != nil {
		return req.Options.Preferences
	}
	return nil
}

// analysisOptions folds request-level preferences into the analyzer options
func analysisOptions(req *types.RoutingRequest) *types.AnalysisOptions {
	prefs := preferences(req)
	if req.Options == nil {
		if prefs == nil {
			return nil
		}
		return &types.AnalysisOptions{Preferences: prefs}
	}
	opts := *req.Options
	opts.Preferences = prefs
	return &opts
}

// mergeDegraded combines reason lists without duplicates, in stable order
func mergeDegraded(lists ...[]types.DegradedReason) []types.DegradedReason {
	seen := make(map[types.DegradedReason]struct{})
	var out []types.DegradedReason
	for _, l := range lists {
		for _, d := range l {
			if _, ok := seen[d]; ok {
				continue
			}
			seen[d] = struct{}{}
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
