package scoring

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/tributary-ai/model-router/internal/types"
)

// ErrInvalidWeights is returned when a weight set is negative or does not total 100
var ErrInvalidWeights = errors.New("invalid routing weights")

// Profile names a built-in weight set
type Profile string

const (
	ProfileCostFocused     Profile = "cost_focused"
	ProfileLatencyFocused  Profile = "latency_focused"
	ProfileQualityFocused  Profile = "quality_focused"
	ProfileBalanced        Profile = "balanced"
	ProfileCapabilityFirst Profile = "capability_first"
	ProfileHealthAware     Profile = "health_aware"
)

const weightTolerance = 1e-9

var profiles = map[Profile]types.RoutingWeights{
	ProfileCostFocused:     mustWeights(20, 15, 40, 10, 15),
	ProfileLatencyFocused:  mustWeights(20, 20, 10, 40, 10),
	ProfileQualityFocused:  mustWeights(30, 15, 5, 10, 40),
	ProfileBalanced:        mustWeights(30, 20, 20, 15, 15),
	ProfileCapabilityFirst: mustWeights(40, 15, 15, 15, 15),
	ProfileHealthAware:     mustWeights(20, 30, 15, 25, 10),
}

// NewWeights builds a validated weight set
func NewWeights(capability, health, cost, latency, quality float64) (types.RoutingWeights, error) {
	w := types.RoutingWeights{
		CapabilityMatch: capability,
		Health:          health,
		Cost:            cost,
		Latency:         latency,
		Quality:         quality,
	}
	if err := ValidateWeights(w); err != nil {
		return types.RoutingWeights{}, err
	}
	return w, nil
}

// ValidateWeights checks that every weight is non-negative and the total is 100
func ValidateWeights(w types.RoutingWeights) error {
	for name, v := range map[string]float64{
		"capability_match": w.CapabilityMatch,
		"health":           w.Health,
		"cost":             w.Cost,
		"latency":          w.Latency,
		"quality":          w.Quality,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%w: %s weight is %v", ErrInvalidWeights, name, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-100) > weightTolerance {
		return fmt.Errorf("%w: weights sum to %v, expected 100", ErrInvalidWeights, sum)
	}
	return nil
}

func mustWeights(capability, health, cost, latency, quality float64) types.RoutingWeights {
	w, err := NewWeights(capability, health, cost, latency, quality)
	if err != nil {
		panic(err)
	}
	return w
}

// WeightsFor returns the named built-in profile
func WeightsFor(p Profile) (types.RoutingWeights, error) {
	w, ok := profiles[p]
	if !ok {
		return types.RoutingWeights{}, fmt.Errorf("%w: unknown profile %q", ErrInvalidWeights, p)
	}
	return w, nil
}

// MustWeightsFor is WeightsFor for the built-in profile constants
func MustWeightsFor(p Profile) types.RoutingWeights {
	w, err := WeightsFor(p)
	if err != nil {
		panic(err)
	}
	return w
}

// ProfileNames lists the built-in profiles in stable order
func ProfileNames() []Profile {
	names := make([]Profile, 0, len(profiles))
	for p := range profiles {
		names = append(names, p)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
