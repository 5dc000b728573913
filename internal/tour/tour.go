// Package tour implements the Tour: an ordered sequence of points served
// by one truck on one day, sentinelled at both ends by starting points.
// It owns incremental insert/remove/swap primitives, delta-cost queries,
// the per-tour cost/feasibility model and a restricted local-search pass.
// The destroy/repair operator catalogue itself lives one level up, in
// package schedule, built on these primitives.
package tour

import (
	"math"
	"math/rand"

	"github.com/logistics-labs/alns-core/internal/problem"
	"github.com/logistics-labs/alns-core/internal/tracker"
)

// Weights are the penalty controller's current soft-constraint
// multipliers, threaded into every cost computation rather than read from
// shared mutable state (spec §9: no global mutable cost parameters).
type Weights struct {
	Volume        float64
	Weight        float64
	TimeWindow    float64
	Duration      float64
	Accessibility float64
	HomeDepot     float64
}

// Feasibility aggregates the scalar violation signals a Tour reports;
// Schedule and the engine read these to decide acceptance and to drive
// penalty-controller feedback.
type Feasibility struct {
	VolumeViolation        float64
	WeightViolation        float64
	TimeWindowViolation    float64
	DurationViolation      float64
	AccessibilityViolation float64
	HomeDepotViolation     float64
	RouteFailure           float64 // cumulative load exceedance just before a dump visit
}

// Tour is an ordered sequence of PointIndex, index 0 and len-1 always
// being starting points (origin/destination sentinels).
type Tour struct {
	Day   int
	Truck problem.TruckIndex
	Points []problem.PointIndex

	data    *problem.Data
	tracker *tracker.Tracker
}

// New creates an empty tour for the given day/truck, sentinelled at both
// ends by the truck's current starting point.
func New(data *problem.Data, trk *tracker.Tracker, day int, truckIdx problem.TruckIndex) *Tour {
	start := data.Trucks[truckIdx].CurrentStartingPoint
	return &Tour{
		Day:     day,
		Truck:   truckIdx,
		Points:  []problem.PointIndex{start, start},
		data:    data,
		tracker: trk,
	}
}

// Clone returns a deep copy sharing the read-only Data/Tracker pointers —
// only the Points slice (the mutable arena handle sequence) is copied.
func (t *Tour) Clone() *Tour {
	cp := make([]problem.PointIndex, len(t.Points))
	copy(cp, t.Points)
	return &Tour{Day: t.Day, Truck: t.Truck, Points: cp, data: t.data, tracker: t.tracker}
}

// CloneWithTracker returns a deep copy of the Points sequence bound to a
// different Tracker — used by Schedule.Clone, where every tour in the copy
// must read/write the schedule's own cloned Tracker rather than sharing the
// original's (spec §8 "copy-then-modify" law).
func (t *Tour) CloneWithTracker(trk *tracker.Tracker) *Tour {
	cp := make([]problem.PointIndex, len(t.Points))
	copy(cp, t.Points)
	return &Tour{Day: t.Day, Truck: t.Truck, Points: cp, data: t.data, tracker: trk}
}

// Len returns the number of points, including both sentinels.
func (t *Tour) Len() int { return len(t.Points) }

// Insert places p at position pos, shifting the tail right. pos must be in
// [1, Len()-1] so neither sentinel is displaced.
func (t *Tour) Insert(pos int, p problem.PointIndex) {
	t.Points = append(t.Points, 0)
	copy(t.Points[pos+1:], t.Points[pos:len(t.Points)-1])
	t.Points[pos] = p
}

// Remove deletes and returns the point at pos. pos must be in
// [1, Len()-2].
func (t *Tour) Remove(pos int) problem.PointIndex {
	p := t.Points[pos]
	copy(t.Points[pos:], t.Points[pos+1:])
	t.Points = t.Points[:len(t.Points)-1]
	return p
}

// Swap exchanges the points at positions i and j.
func (t *Tour) Swap(i, j int) {
	t.Points[i], t.Points[j] = t.Points[j], t.Points[i]
}

// SetPoint overwrites the point at pos in place.
func (t *Tour) SetPoint(pos int, p problem.PointIndex) {
	t.Points[pos] = p
}

// SetOriginStartingPoint reassigns the origin sentinel.
func (t *Tour) SetOriginStartingPoint(p problem.PointIndex) {
	t.Points[0] = p
}

// SetDestinationStartingPoint reassigns the destination sentinel.
func (t *Tour) SetDestinationStartingPoint(p problem.PointIndex) {
	t.Points[len(t.Points)-1] = p
}

// ContainerPositions returns the tour positions holding container points.
func (t *Tour) ContainerPositions() []int {
	var out []int
	for i, p := range t.Points {
		if t.data.Points[p].Kind == problem.KindContainer {
			out = append(out, i)
		}
	}
	return out
}

// DumpPositions returns the tour positions holding dump points.
func (t *Tour) DumpPositions() []int {
	var out []int
	for i, p := range t.Points {
		if t.data.Points[p].Kind == problem.KindDump {
			out = append(out, i)
		}
	}
	return out
}

// insertionDelta returns the distance of inserting p between the points
// currently at pos-1 and pos (i.e. the cost delta of splicing p in,
// before removing the direct pos-1→pos edge).
func (t *Tour) insertionDelta(pos int, p problem.PointIndex) float64 {
	prev, next := t.Points[pos-1], t.Points[pos]
	before := t.data.DistanceBetween(prev, next)
	after := t.data.DistanceBetween(prev, p) + t.data.DistanceBetween(p, next)
	return after - before
}

// removalDelta returns the distance saved by removing the point at pos.
func (t *Tour) removalDelta(pos int) float64 {
	prev, cur, next := t.Points[pos-1], t.Points[pos], t.Points[pos+1]
	before := t.data.DistanceBetween(prev, cur) + t.data.DistanceBetween(cur, next)
	after := t.data.DistanceBetween(prev, next)
	return before - after
}

// BestContainerInsertion finds the cheapest position to insert container c.
func (t *Tour) BestContainerInsertion(c problem.PointIndex) (pos int, delta float64, ok bool) {
	return t.bestInsertion(c)
}

// BestDumpInsertion finds the cheapest position to insert dump d.
func (t *Tour) BestDumpInsertion(d problem.PointIndex) (pos int, delta float64, ok bool) {
	return t.bestInsertion(d)
}

func (t *Tour) bestInsertion(p problem.PointIndex) (pos int, delta float64, ok bool) {
	if !t.data.Points[p].IsAccessibleBy(t.Truck) {
		return 0, 0, false
	}
	best := math.Inf(1)
	bestPos := -1
	for i := 1; i < len(t.Points); i++ {
		d := t.insertionDelta(i, p)
		if d < best {
			best = d
			bestPos = i
		}
	}
	if bestPos < 0 {
		return 0, 0, false
	}
	return bestPos, best, true
}

// WorstContainerRemoval finds the container position whose removal saves
// the most travel distance.
func (t *Tour) WorstContainerRemoval() (pos int, saving float64, ok bool) {
	return t.worstRemoval(t.ContainerPositions())
}

// WorstDumpRemoval finds the dump position whose removal saves the most
// travel distance.
func (t *Tour) WorstDumpRemoval() (pos int, saving float64, ok bool) {
	return t.worstRemoval(t.DumpPositions())
}

func (t *Tour) worstRemoval(positions []int) (pos int, saving float64, ok bool) {
	best := math.Inf(-1)
	bestPos := -1
	for _, i := range positions {
		s := t.removalDelta(i)
		if s > best {
			best = s
			bestPos = i
		}
	}
	if bestPos < 0 {
		return 0, 0, false
	}
	return bestPos, best, true
}

// ContainerInsertionRegret returns the best position along with
// (cost_k - cost_1), the regret value R10 uses to prioritize insertions.
func (t *Tour) ContainerInsertionRegret(c problem.PointIndex, k int) (pos int, regret float64, ok bool) {
	return t.insertionRegret(c, k)
}

// DumpInsertionRegret is the dump analogue of ContainerInsertionRegret.
func (t *Tour) DumpInsertionRegret(d problem.PointIndex, k int) (pos int, regret float64, ok bool) {
	return t.insertionRegret(d, k)
}

func (t *Tour) insertionRegret(p problem.PointIndex, k int) (pos int, regret float64, ok bool) {
	if !t.data.Points[p].IsAccessibleBy(t.Truck) {
		return 0, 0, false
	}
	deltas := make([]float64, 0, len(t.Points))
	positions := make([]int, 0, len(t.Points))
	for i := 1; i < len(t.Points); i++ {
		deltas = append(deltas, t.insertionDelta(i, p))
		positions = append(positions, i)
	}
	if len(deltas) == 0 {
		return 0, 0, false
	}
	// simple selection sort for the k smallest; neighborhood sizes are
	// small enough that this beats pulling in a sort-with-index helper.
	for i := 0; i < len(deltas) && i < k; i++ {
		minIdx := i
		for j := i + 1; j < len(deltas); j++ {
			if deltas[j] < deltas[minIdx] {
				minIdx = j
			}
		}
		deltas[i], deltas[minIdx] = deltas[minIdx], deltas[i]
		positions[i], positions[minIdx] = positions[minIdx], positions[i]
	}
	kIdx := k - 1
	if kIdx >= len(deltas) {
		kIdx = len(deltas) - 1
	}
	return positions[0], deltas[kIdx] - deltas[0], true
}

// Cost computes this tour's contribution to the schedule objective: fixed
// + distance + time + weighted soft-constraint penalties + attributed
// overflow cost for the containers it serves + route-failure cost (charged
// only on days after day 0).
func (t *Tour) Cost(weights Weights) float64 {
	truck := &t.data.Trucks[t.Truck]
	var distance, duration float64
	for i := 1; i < len(t.Points); i++ {
		distance += t.data.DistanceBetween(t.Points[i-1], t.Points[i])
	}
	for _, p := range t.Points {
		duration += t.data.Points[p].ServiceDuration
	}
	if truck.Speed > 0 {
		duration += distance / truck.Speed
	}

	cost := truck.FixedCost + distance*truck.DistanceCost + duration*truck.TimeCost

	f := t.Feasibility()
	cost += f.VolumeViolation * weights.Volume
	cost += f.WeightViolation * weights.Weight
	cost += f.TimeWindowViolation * weights.TimeWindow
	cost += f.DurationViolation * weights.Duration
	cost += f.AccessibilityViolation * weights.Accessibility
	cost += f.HomeDepotViolation * weights.HomeDepot
	if t.Day > 0 {
		cost += f.RouteFailure * t.data.Cost.RouteFailureMultiplier
	}

	if t.tracker != nil {
		for _, pos := range t.ContainerPositions() {
			cost += t.tracker.AttributedOverflowCost(t.Points[pos], t.Day)
		}
	}
	return cost
}

// Feasibility computes the aggregated violation signals for this tour.
func (t *Tour) Feasibility() Feasibility {
	var f Feasibility
	truck := &t.data.Trucks[t.Truck]

	var vol, wt, duration float64
	clock := t.data.Points[t.Points[0]].TWLower
	var cumLoadBeforeDump float64
	for i, p := range t.Points {
		pt := &t.data.Points[p]

		if i > 0 {
			leg := t.data.DistanceBetween(t.Points[i-1], p) / maxf(truck.Speed, 1e-9)
			clock += leg
			duration += leg
		}
		duration += pt.ServiceDuration

		if clock < pt.TWLower {
			clock = pt.TWLower
		}
		if clock > pt.TWUpper {
			f.TimeWindowViolation += clock - pt.TWUpper
		}
		clock += pt.ServiceDuration

		if !pt.IsAccessibleBy(t.Truck) {
			f.AccessibilityViolation++
		}

		switch pt.Kind {
		case problem.KindContainer:
			vol += pt.Container.Volume
			wt += pt.Container.Volume * pt.Container.FlowSpecificWeight
			cumLoadBeforeDump = vol
		case problem.KindDump:
			if cumLoadBeforeDump > truck.VolumeCap {
				f.RouteFailure += cumLoadBeforeDump - truck.VolumeCap
			}
			vol, wt = 0, 0
			cumLoadBeforeDump = 0
		}
	}
	if vol > truck.VolumeCap {
		f.VolumeViolation = vol - truck.VolumeCap
	}
	if wt > truck.WeightCap {
		f.WeightViolation = wt - truck.WeightCap
	}
	if truck.MaxDuration > 0 && duration > truck.MaxDuration {
		f.DurationViolation = duration - truck.MaxDuration
	}

	dest := t.Points[len(t.Points)-1]
	if t.Day < len(truck.RequiredReturnHome) && truck.RequiredReturnHome[t.Day] && dest != truck.HomeStartingPoint {
		f.HomeDepotViolation = 1
	}
	return f
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// LocalSearch runs a swap-based 2-opt-style pass: it accepts the first
// improving swap found at each pass and stops when no swap improves cost,
// restricted to the interior (non-sentinel) positions.
func (t *Tour) LocalSearch(weights Weights, maxPasses int) {
	for pass := 0; pass < maxPasses; pass++ {
		improved := false
		base := t.Cost(weights)
		for i := 1; i < len(t.Points)-1 && !improved; i++ {
			for j := i + 1; j < len(t.Points)-1; j++ {
				t.Swap(i, j)
				if t.Cost(weights) < base {
					improved = true
					break
				}
				t.Swap(i, j)
			}
		}
		if !improved {
			return
		}
	}
}

// RandomNeighborhoodSize draws ρ(n) from the discrete semi-triangular
// distribution spec §4.4 specifies to bias small neighborhood sizes:
// ρ(n) = round(n + 0.5 - sqrt(1-U)*n), U in [0,1).
func RandomNeighborhoodSize(rng *rand.Rand, n int) int {
	if n <= 0 {
		return 0
	}
	u := rng.Float64()
	v := float64(n) + 0.5 - math.Sqrt(1-u)*float64(n)
	size := int(math.Round(v))
	if size < 1 {
		size = 1
	}
	if size > n {
		size = n
	}
	return size
}
