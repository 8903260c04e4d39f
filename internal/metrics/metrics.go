package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tributary-ai/model-router/internal/types"
)

// Recorder exports router, provider and HTTP metrics
type Recorder struct {
	Routings         *prometheus.CounterVec
	Selections       *prometheus.CounterVec
	FallbackChains   prometheus.Counter
	Degraded         *prometheus.CounterVec
	DecisionDuration *prometheus.HistogramVec
	Confidence       prometheus.Histogram

	ProviderRequests *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewRecorder registers the metrics on reg
func NewRecorder(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		Routings: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "model_router_routings_total",
				Help: "Total number of routing decisions",
			},
			[]string{"strategy", "outcome"},
		),
		Selections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "model_router_selections_total",
				Help: "Models selected by the router",
			},
			[]string{"model", "provider"},
		),
		FallbackChains: f.NewCounter(
			prometheus.CounterOpts{
				Name: "model_router_fallback_chains_total",
				Help: "Routing decisions that produced a non-empty fallback chain",
			},
		),
		Degraded: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "model_router_degraded_total",
				Help: "Degraded paths taken while routing",
			},
			[]string{"reason"},
		),
		DecisionDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "model_router_decision_duration_seconds",
				Help:    "Time spent deciding a route",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"strategy"},
		),
		Confidence: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "model_router_confidence",
				Help:    "Confidence of routing decisions",
				Buckets: prometheus.LinearBuckets(0, 10, 11),
			},
		),
		ProviderRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "model_router_provider_requests_total",
				Help: "Completions sent to providers",
			},
			[]string{"provider", "model", "status"},
		),
		ProviderLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "model_router_provider_latency_seconds",
				Help: "Provider completion latency in seconds",
			},
			[]string{"provider"},
		),
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "model_router_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "model_router_http_request_duration_seconds",
				Help: "HTTP request duration in seconds",
			},
			[]string{"method", "route"},
		),
	}
}

// ObserveRoute records a routing decision
func (r *Recorder) ObserveRoute(result *types.RoutingResult, elapsed time.Duration) {
	outcome := "selected"
	if result.IsFallback() {
		outcome = "fallback"
	}
	r.Routings.WithLabelValues(result.Strategy, outcome).Inc()
	r.Selections.WithLabelValues(result.SelectedModel, result.SelectedProvider).Inc()
	if len(result.FallbackChain) > 0 {
		r.FallbackChains.Inc()
	}
	for _, d := range result.Degraded {
		r.Degraded.WithLabelValues(string(d)).Inc()
	}
	r.DecisionDuration.WithLabelValues(result.Strategy).Observe(elapsed.Seconds())
	r.Confidence.Observe(result.Confidence)
}

// ObserveFailure records a routing attempt that ended in an internal error
func (r *Recorder) ObserveFailure(strategy string, elapsed time.Duration) {
	r.Routings.WithLabelValues(strategy, "error").Inc()
	r.DecisionDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

// ObserveProvider records one provider completion attempt
func (r *Recorder) ObserveProvider(provider, model string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.ProviderRequests.WithLabelValues(provider, model, status).Inc()
	r.ProviderLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// ObserveHTTP records one served HTTP request
func (r *Recorder) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	r.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
