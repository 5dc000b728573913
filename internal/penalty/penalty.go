// Package penalty implements the Penalty Controller: self-adjusting
// multipliers for each soft constraint, threaded into Tour/Schedule cost
// formulas rather than read from shared mutable state (spec §4.5, §9).
package penalty

import (
	"github.com/logistics-labs/alns-core/internal/tour"
)

// Kind identifies one soft constraint the controller tracks independently.
type Kind int

const (
	KindVolume Kind = iota
	KindWeight
	KindTimeWindow
	KindDuration
	KindAccessibility
	KindHomeDepot
	KindBackorder
	KindContainer
	numKinds
)

// Params are the controller's tunable thresholds (spec §4.5).
type Params struct {
	SegmentLength int     // not read by Controller: each Step call is one adjustment check
	LowFraction   float64 // f_low
	HighFraction  float64 // f_high
	AdjustFactor  float64 // eta_up > 1
	Min           float64 // lambda_min
	Max           float64 // lambda_max
}

// Controller owns one multiplier per Kind plus a sliding window of recent
// per-kind feasibility observations.
type Controller struct {
	params  Params
	initial [numKinds]float64
	lambda  [numKinds]float64

	feasibleCount [numKinds]int
	totalCount    [numKinds]int
}

// New builds a Controller seeded with the given initial multipliers,
// indexed by Kind.
func New(params Params, initial [numKinds]float64) *Controller {
	c := &Controller{params: params, initial: initial}
	c.Reset()
	return c
}

// Reset restores every multiplier to its initial value and clears the
// observation window. Called when a new problem instance/run starts.
func (c *Controller) Reset() {
	c.lambda = c.initial
	c.feasibleCount = [numKinds]int{}
	c.totalCount = [numKinds]int{}
}

// Multiplier returns the current lambda for the given constraint kind.
func (c *Controller) Multiplier(k Kind) float64 { return c.lambda[k] }

// Observe records one iteration's feasibility per kind: feasible[k] is
// true if that constraint had zero violation on the evaluated solution.
func (c *Controller) Observe(feasible [numKinds]bool) {
	for k := Kind(0); k < numKinds; k++ {
		c.totalCount[k]++
		if feasible[k] {
			c.feasibleCount[k]++
		}
	}
}

// Step examines the feasibility window accumulated since the last Step and
// adjusts each lambda: below f_low feasible fraction multiplies by
// AdjustFactor (constraint is too often violated, penalize harder); above
// f_high divides by AdjustFactor (constraint is essentially always
// satisfied, ease off). Bounds lambda to [Min,Max] and clears the window.
func (c *Controller) Step() {
	for k := Kind(0); k < numKinds; k++ {
		if c.totalCount[k] == 0 {
			continue
		}
		fraction := float64(c.feasibleCount[k]) / float64(c.totalCount[k])
		switch {
		case fraction < c.params.LowFraction:
			c.lambda[k] *= c.params.AdjustFactor
		case fraction > c.params.HighFraction:
			c.lambda[k] /= c.params.AdjustFactor
		}
		if c.lambda[k] < c.params.Min {
			c.lambda[k] = c.params.Min
		}
		if c.lambda[k] > c.params.Max {
			c.lambda[k] = c.params.Max
		}
	}
	c.feasibleCount = [numKinds]int{}
	c.totalCount = [numKinds]int{}
}

// TourWeights projects the six tour-level multipliers into tour.Weights,
// the struct Tour.Cost consumes.
func (c *Controller) TourWeights() tour.Weights {
	return tour.Weights{
		Volume:        c.lambda[KindVolume],
		Weight:        c.lambda[KindWeight],
		TimeWindow:    c.lambda[KindTimeWindow],
		Duration:      c.lambda[KindDuration],
		Accessibility: c.lambda[KindAccessibility],
		HomeDepot:     c.lambda[KindHomeDepot],
	}
}

// BackorderLambda returns the schedule-level backorder multiplier.
func (c *Controller) BackorderLambda() float64 { return c.lambda[KindBackorder] }

// ContainerLambda returns the schedule-level container-violation multiplier.
func (c *Controller) ContainerLambda() float64 { return c.lambda[KindContainer] }

// DefaultParams returns reasonable defaults for the adjustment thresholds,
// matching the magnitudes used in the engine's default EngineConfig.
func DefaultParams() Params {
	return Params{
		SegmentLength: 100,
		LowFraction:   0.05,
		HighFraction:  0.2,
		AdjustFactor:  1.2,
		Min:           0.5,
		Max:           5000,
	}
}

// DefaultInitial seeds every multiplier at 1.0.
func DefaultInitial() [8]float64 {
	var init [numKinds]float64
	for k := range init {
		init[k] = 1.0
	}
	return init
}
