// Package problem models the immutable problem instance consumed by every
// other engine component: points, trucks, the distance matrix, the planning
// horizon and cost parameters.
//
// Data is built once per solver run (or once per rollover, for the
// rolling-horizon driver) and is never mutated afterwards. Every other
// component — Tracker, Tour, Schedule, the overflow Tree — refers into it
// by integer index rather than by pointer, so that deep-copying mutable
// solver state never has to deep-copy Data itself (arena allocation, see
// the design notes this module follows).
package problem

import (
	"fmt"

	"github.com/logistics-labs/alns-core/pkg/apperror"
)

// PointIndex indexes into Data.Points.
type PointIndex int

// TruckIndex indexes into Data.Trucks.
type TruckIndex int

// Variant selects which family of problem this Data describes. It drives
// which Tracker policy is active and which operator-index table Schedule
// exposes. Every variant builds overflow Trees from its containers' tail
// tables.
type Variant int

const (
	VariantIRP Variant = iota
	VariantIRPDistribution
	VariantVRP
	VariantTSP
)

// String returns the variant's canonical short name.
func (v Variant) String() string {
	switch v {
	case VariantIRP:
		return "IRP"
	case VariantIRPDistribution:
		return "IRP-D"
	case VariantVRP:
		return "VRP"
	case VariantTSP:
		return "TSP"
	default:
		return "UNKNOWN"
	}
}

// PointKind tags which of the three point roles a Point plays.
type PointKind int

const (
	KindStartingPoint PointKind = iota
	KindContainer
	KindDump
)

func (k PointKind) String() string {
	switch k {
	case KindStartingPoint:
		return "starting_point"
	case KindContainer:
		return "container"
	case KindDump:
		return "dump"
	default:
		return "unknown"
	}
}

// ContainerAttrs holds the fields that only apply to KindContainer points.
// It is the zero value for every other kind.
type ContainerAttrs struct {
	Volume             float64 // V, nominal capacity
	EffectiveVolume    float64 // V_eff = policy_fraction * V
	FlowSpecificWeight float64
	InitialLevelPct    float64 // percent, [0,100]
	InitialVolumeLoad  float64
	InitialWeightLoad  float64

	// ForecastLevel/Volume/WeightDemand have length == Data.Horizon.
	ForecastLevelDemand  []float64
	ForecastVolumeDemand []float64
	ForecastWeightDemand []float64

	HoldingCost  float64
	ShortageCost float64

	ClosestDump       PointIndex
	RoundTripToDump   float64

	Tail TailTables
}

// Point is a tagged-variant location: a starting point, a container, or a
// dump. Common fields apply to every kind; Container is populated only when
// Kind == KindContainer.
type Point struct {
	ID     string
	Kind   PointKind
	DIndex int // index into Data.Distance

	X, Y float64 // used by benchmark loaders and Euclidean rounding

	ServiceDuration float64 // hours
	TWLower         float64 // hours since midnight
	TWUpper         float64

	// Accessible reports, per truck index, whether that truck may visit
	// this point. A nil/empty slice means every truck may visit it.
	Accessible []bool

	Container ContainerAttrs
}

// IsAccessibleBy reports whether the given truck may visit this point.
func (p *Point) IsAccessibleBy(truck TruckIndex) bool {
	if len(p.Accessible) == 0 {
		return true
	}
	if int(truck) < 0 || int(truck) >= len(p.Accessible) {
		return false
	}
	return p.Accessible[truck]
}

// Truck is a single vehicle available to the schedule.
type Truck struct {
	ID string

	VolumeCap float64 // V_max
	WeightCap float64 // W_max
	Speed     float64 // km/h

	FixedCost    float64
	DistanceCost float64
	TimeCost     float64

	// MaxDuration bounds a tour's total travel+service time in hours; 0
	// means unconstrained. Exceeding it is the "duration violation" soft
	// constraint (spec §4.3).
	MaxDuration float64

	HomeStartingPoint    PointIndex
	CurrentStartingPoint PointIndex
	FlexibleStartingPoints []PointIndex // must include HomeStartingPoint

	// Available/RequiredReturnHome have length == Data.Horizon.
	Available          []bool
	RequiredReturnHome []bool
}

// IsFlexibleStartingPoint reports whether p is among the truck's allowed
// final starting points for a tour.
func (t *Truck) IsFlexibleStartingPoint(p PointIndex) bool {
	for _, fp := range t.FlexibleStartingPoints {
		if fp == p {
			return true
		}
	}
	return false
}

// CostParams are the fixed, non-adaptive cost coefficients read by Tour and
// Schedule cost formulas (spec §4.3, §4.4). The adaptive soft-constraint
// multipliers live in the penalty package, not here — Data is the read-only
// half of the cost model, Penalty is the half that self-tunes.
type CostParams struct {
	EmergencyCost           float64 // cost of an emergency collection on overflow
	OverflowCost            float64 // cost attributed to the overflow event itself
	RouteFailureMultiplier  float64 // per-unit cost of a day>0 route failure
	BackorderLambda         float64 // lambda_b
	ContainerViolationLambda float64 // lambda_c
}

// Data is the immutable problem instance. Build it once with New, validate
// it with Validate, then share it read-only across every concurrent run
// (spec §5).
type Data struct {
	Variant Variant
	Horizon int

	Points []Point
	Trucks []Truck

	// Distance is indexed by DIndex, Distance[i][j] is the travel distance
	// in kilometers from the point whose DIndex is i to the one whose
	// DIndex is j.
	Distance [][]float64

	Cost CostParams

	// RoundingPolicy is applied to every computed distance before it is
	// used in a cost or feasibility check. Benchmark loaders set this to
	// an Euclidean-integer rounding function for the flavors that require
	// it (spec §6); it defaults to the identity function.
	RoundingPolicy func(float64) float64
}

// New constructs a Data value with an identity rounding policy. Callers
// that need benchmark-specific rounding should set RoundingPolicy
// afterwards, before the first call to Validate.
func New(variant Variant, horizon int) *Data {
	return &Data{
		Variant:        variant,
		Horizon:        horizon,
		RoundingPolicy: func(d float64) float64 { return d },
	}
}

// DistanceBetween returns the (rounded) travel distance between two points.
func (d *Data) DistanceBetween(a, b PointIndex) float64 {
	pa, pb := &d.Points[a], &d.Points[b]
	raw := d.Distance[pa.DIndex][pb.DIndex]
	return d.RoundingPolicy(raw)
}

// Validate checks every invariant named in spec §3 and returns a critical
// *apperror.Error describing the first violation found, or nil.
func (d *Data) Validate() error {
	if d == nil {
		return apperror.ErrNilProblemData
	}
	if d.Horizon <= 0 {
		return apperror.NewCritical(apperror.CodeInvalidHorizon, "horizon must be positive")
	}
	if len(d.Trucks) == 0 {
		return apperror.NewCritical(apperror.CodeMissingTruck, "at least one truck is required")
	}

	hasContainer := false
	for i := range d.Points {
		p := &d.Points[i]
		if err := d.validatePoint(PointIndex(i), p); err != nil {
			return err
		}
		if p.Kind == KindContainer {
			hasContainer = true
		}
	}
	if !hasContainer && d.Variant != VariantTSP {
		return apperror.NewCritical(apperror.CodeEmptyContainerSet, "no container points in problem data")
	}

	for i := range d.Trucks {
		if err := d.validateTruck(TruckIndex(i), &d.Trucks[i]); err != nil {
			return err
		}
	}

	return nil
}

func (d *Data) validatePoint(idx PointIndex, p *Point) error {
	if p.Kind != KindContainer {
		return nil
	}
	c := &p.Container
	if c.InitialLevelPct < 0 || c.InitialLevelPct > 100 {
		return apperror.NewCritical(apperror.CodeInvalidPoint,
			fmt.Sprintf("container %s: initial level %v out of [0,100]", p.ID, c.InitialLevelPct)).
			WithField("initial_level_pct").WithDetails("point_index", int(idx))
	}
	if c.EffectiveVolume > c.Volume {
		return apperror.NewCritical(apperror.CodeInvalidPoint,
			fmt.Sprintf("container %s: effective volume %v exceeds nominal volume %v", p.ID, c.EffectiveVolume, c.Volume)).
			WithField("effective_volume").WithDetails("point_index", int(idx))
	}
	if len(c.ForecastLevelDemand) != d.Horizon ||
		len(c.ForecastVolumeDemand) != d.Horizon ||
		len(c.ForecastWeightDemand) != d.Horizon {
		return apperror.NewCritical(apperror.CodeInvalidPoint,
			fmt.Sprintf("container %s: forecast arrays must have length %d", p.ID, d.Horizon)).
			WithDetails("point_index", int(idx))
	}
	for _, v := range c.ForecastLevelDemand {
		if v == ForecastSentinel {
			return apperror.NewCritical(apperror.CodeForecastSentinel,
				fmt.Sprintf("container %s: forecast sentinel -404 present", p.ID)).
				WithDetails("point_index", int(idx))
		}
	}
	return nil
}

func (d *Data) validateTruck(idx TruckIndex, t *Truck) error {
	if len(t.FlexibleStartingPoints) == 0 {
		return apperror.NewCritical(apperror.CodeMissingTruck,
			fmt.Sprintf("truck %s: flexible starting point set must be non-empty", t.ID)).
			WithDetails("truck_index", int(idx))
	}
	if !t.IsFlexibleStartingPoint(t.HomeStartingPoint) {
		return apperror.NewCritical(apperror.CodeMissingTruck,
			fmt.Sprintf("truck %s: home starting point must be in the flexible set", t.ID)).
			WithDetails("truck_index", int(idx))
	}
	if len(t.Available) != d.Horizon || len(t.RequiredReturnHome) != d.Horizon {
		return apperror.NewCritical(apperror.CodeMissingTruck,
			fmt.Sprintf("truck %s: availability/required-return bit vectors must have length %d", t.ID, d.Horizon)).
			WithDetails("truck_index", int(idx))
	}
	return nil
}

// ForecastSentinel is the fatal-input sentinel value from spec §6: any
// forecast array containing it indicates an upstream forecasting failure.
const ForecastSentinel = -404
