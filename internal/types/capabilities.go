package types

import "time"

// Capability tags understood by the scoring engine
const (
	CapabilityVision    = "vision"
	CapabilityCoding    = "coding"
	CapabilityReasoning = "reasoning"
	CapabilityAnalysis  = "analysis"
)

// ModelStatus is the catalog status of a model
type ModelStatus string

const (
	ModelAvailable   ModelStatus = "available"
	ModelUnavailable ModelStatus = "unavailable"
	ModelDeprecated  ModelStatus = "deprecated"
)

// CapabilityEntry describes one routable model
type CapabilityEntry struct {
	ID               string      `json:"id" yaml:"id"`
	Name             string      `json:"name,omitempty" yaml:"name"`
	ProviderID       string      `json:"provider_id" yaml:"provider"`
	Capabilities     []string    `json:"capabilities" yaml:"capabilities"`
	ContextWindow    int         `json:"context_window" yaml:"context_window"`
	InputPricePer1K  float64     `json:"input_price_per_1k" yaml:"input_price_per_1k"`
	OutputPricePer1K float64     `json:"output_price_per_1k" yaml:"output_price_per_1k"`
	PriorityTier     int         `json:"priority_tier" yaml:"priority_tier"` // 1 = best
	Status           ModelStatus `json:"status" yaml:"status"`
}

// HasCapability reports whether the entry carries the given tag
func (e *CapabilityEntry) HasCapability(tag string) bool {
	for _, c := range e.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// DisplayName falls back to the id when no name is configured
func (e *CapabilityEntry) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	return e.ID
}

// PriceKind selects the input or output side of a price
type PriceKind string

const (
	PriceInput  PriceKind = "input"
	PriceOutput PriceKind = "output"
)

// Fallback prices per 1K tokens when neither the entry nor the pricing lookup knows better
const (
	DefaultInputPricePer1K  = 0.01
	DefaultOutputPricePer1K = 0.03
)

// HealthState is the coarse state of a provider
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
	HealthUnknown   HealthState = "unknown"
)

// HealthSnapshot is a point-in-time view of a provider's health
type HealthSnapshot struct {
	ProviderID  string      `json:"provider_id"`
	Status      HealthState `json:"status"`
	LatencyMs   *int64      `json:"latency_ms,omitempty"`
	Error       string      `json:"error,omitempty"`
	QueueLength int         `json:"queue_length"`
	SuccessRate float64     `json:"success_rate"` // 0..1
	CheckedAt   time.Time   `json:"checked_at"`
}

// UnknownHealth builds the snapshot used when a provider could not be checked
func UnknownHealth(providerID string, err error) *HealthSnapshot {
	snap := &HealthSnapshot{
		ProviderID: providerID,
		Status:     HealthUnknown,
		CheckedAt:  time.Now(),
	}
	if err != nil {
		snap.Error = err.Error()
	}
	return snap
}
