package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tributary-ai/model-router/internal/types"
)

// ErrModelNotFound is returned for ids missing from the catalog
var ErrModelNotFound = errors.New("model not found")

// ProviderPricing holds default prices per 1K tokens for a provider
type ProviderPricing struct {
	InputPer1K  float64 `yaml:"input_price_per_1k"`
	OutputPer1K float64 `yaml:"output_price_per_1k"`
}

// Registry is the catalog of routable models
type Registry struct {
	mu      sync.RWMutex
	entries map[string]types.CapabilityEntry
	pricing map[string]ProviderPricing
	logger  *logrus.Logger
}

// New builds a registry from catalog entries. Entries without a status are
// treated as available.
func New(entries []types.CapabilityEntry, pricing map[string]ProviderPricing, logger *logrus.Logger) (*Registry, error) {
	if logger == nil {
		logger = logrus.New()
	}
	r := &Registry{
		entries: make(map[string]types.CapabilityEntry, len(entries)),
		pricing: make(map[string]ProviderPricing, len(pricing)),
		logger:  logger,
	}
	for id, p := range pricing {
		r.pricing[id] = p
	}

	for _, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("catalog entry without id (provider %q)", e.ProviderID)
		}
		if e.ProviderID == "" {
			return nil, fmt.Errorf("model %s: provider is required", e.ID)
		}
		if _, dup := r.entries[e.ID]; dup {
			return nil, fmt.Errorf("model %s: duplicate catalog entry", e.ID)
		}
		if e.PriorityTier <= 0 {
			e.PriorityTier = 3
		}
		if e.Status == "" {
			e.Status = types.ModelAvailable
		}
		e.Capabilities = append([]string(nil), e.Capabilities...)
		r.entries[e.ID] = e
	}

	logger.WithField("models", len(r.entries)).Info("Capability registry loaded")
	return r, nil
}

// ListAvailable returns a snapshot of the available entries ordered by id
func (r *Registry) ListAvailable() []types.CapabilityEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.CapabilityEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.Status == types.ModelAvailable {
			out = append(out, copyEntry(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// List returns every entry regardless of status
func (r *Registry) List() []types.CapabilityEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.CapabilityEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, copyEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get looks up a model by id
func (r *Registry) Get(id string) (types.CapabilityEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return types.CapabilityEntry{}, fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	return copyEntry(e), nil
}

// SetStatus changes the catalog status of a model
func (r *Registry) SetStatus(id string, status types.ModelStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrModelNotFound, id)
	}
	if e.Status != status {
		r.logger.WithFields(logrus.Fields{
			"model": id,
			"from":  e.Status,
			"to":    status,
		}).Info("Model status changed")
	}
	e.Status = status
	r.entries[id] = e
	return nil
}

// DisableProvider marks every model of a provider unavailable
func (r *Registry) DisableProvider(providerID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, e := range r.entries {
		if e.ProviderID == providerID && e.Status == types.ModelAvailable {
			e.Status = types.ModelUnavailable
			r.entries[id] = e
			n++
		}
	}
	if n > 0 {
		r.logger.WithFields(logrus.Fields{
			"provider": providerID,
			"models":   n,
		}).Warn("Provider not configured, models disabled")
	}
	return n
}

// Providers returns the distinct provider ids in the catalog
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, e := range r.entries {
		seen[e.ProviderID] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Price returns the provider-level default price per 1K tokens
func (r *Registry) Price(providerID string, kind types.PriceKind) (float64, bool) {
	r.mu.RLock()
	p, ok := r.pricing[providerID]
	r.mu.RUnlock()
	if !ok {
		return 0, false
	}

	v := p.InputPer1K
	if kind == types.PriceOutput {
		v = p.OutputPer1K
	}
	if v <= 0 {
		return 0, false
	}
	return v, true
}

func copyEntry(e types.CapabilityEntry) types.CapabilityEntry {
	e.Capabilities = append([]string(nil), e.Capabilities...)
	return e
}
