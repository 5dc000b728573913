// Package tracker implements the Container Tracker: per-container,
// per-day volume/weight load, violation and attributed-overflow-cost
// bookkeeping, backed by one overflow.Tree per container. A single
// concrete Tracker serves both the collection and distribution problem
// families, selected by Policy rather than by subtype — the two policies
// differ only in a handful of numeric update rules (spec §4.1, §9).
package tracker

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/logistics-labs/alns-core/internal/overflow"
	"github.com/logistics-labs/alns-core/internal/problem"
	"github.com/logistics-labs/alns-core/pkg/apperror"
)

// Policy selects the numeric rules the Tracker applies on init/update.
type Policy int

const (
	// PolicyCollection: load grows with demand between visits and resets
	// to (near) zero on a visit; violation is overload above V_eff.
	PolicyCollection Policy = iota
	// PolicyDistribution: load falls with demand and is refilled
	// (order-up-to V_eff) on a visit; violation is negative inventory. The
	// depot inventory series is allocated but not written by Init or
	// Update, so DepotLoad/DepotViolation read as zero.
	PolicyDistribution
)

// Tracker owns the per-container day-indexed state arrays and Trees.
type Tracker struct {
	data   *problem.Data
	policy Policy

	// containers holds the PointIndex of every KindContainer point, in
	// Data.Points order; containerOf maps a PointIndex back to its
	// position in this slice.
	containers []problem.PointIndex
	containerOf map[problem.PointIndex]int

	trees []*overflow.Tree

	vis  [][]bool    // [c][day]
	vol  [][]float64 // [c][day]
	wt   [][]float64 // [c][day]
	viol [][]float64 // [c][day]
	oca  [][]float64 // [c][day]

	// Distribution-variant depot series, allocated (all zero) under
	// PolicyDistribution; no update rule writes to them. Left nil under
	// PolicyCollection.
	depotLoad []float64
	depotViol []float64
}

// New builds a Tracker for the given problem data and policy. It does not
// seed any state; call Init before use.
func New(data *problem.Data, policy Policy) (*Tracker, error) {
	if data == nil {
		return nil, apperror.ErrNilProblemData
	}
	t := &Tracker{
		data:        data,
		policy:      policy,
		containerOf: make(map[problem.PointIndex]int),
	}
	for i := range data.Points {
		if data.Points[i].Kind == problem.KindContainer {
			t.containerOf[problem.PointIndex(i)] = len(t.containers)
			t.containers = append(t.containers, problem.PointIndex(i))
		}
	}
	n := len(t.containers)
	h := data.Horizon
	t.trees = make([]*overflow.Tree, n)
	t.vis = make([][]bool, n)
	t.vol = make([][]float64, n)
	t.wt = make([][]float64, n)
	t.viol = make([][]float64, n)
	t.oca = make([][]float64, n)
	for c := 0; c < n; c++ {
		t.vis[c] = make([]bool, h+1)
		t.vol[c] = make([]float64, h+1)
		t.wt[c] = make([]float64, h+1)
		t.viol[c] = make([]float64, h+1)
		t.oca[c] = make([]float64, h+1)
	}
	if policy == PolicyDistribution {
		t.depotLoad = make([]float64, h+1)
		t.depotViol = make([]float64, h+1)
	}
	return t, nil
}

// containerIndex maps a PointIndex to its tracker-local container index,
// or -1 if the point is not a container.
func (t *Tracker) containerIndex(p problem.PointIndex) int {
	if idx, ok := t.containerOf[p]; ok {
		return idx
	}
	return -1
}

// Init seeds vol/wt/viol from initial loads and forecast demands, fills
// oca[c,d] from the no-visit overflow probability, and builds every
// container's Tree with no visits scheduled.
func (t *Tracker) Init() error {
	for c, pIdx := range t.containers {
		p := &t.data.Points[pIdx]
		tree, err := overflow.Build(p.Container.Tail, t.data.Horizon)
		if err != nil {
			return apperror.Wrap(err, apperror.CodeInvariantBreach,
				fmt.Sprintf("building overflow tree for container %s", p.ID))
		}
		t.trees[c] = tree

		switch t.policy {
		case PolicyCollection:
			t.initCollection(c, p)
		case PolicyDistribution:
			t.initDistribution(c, p)
		}
		if err := t.refreshCostsFrom(c, 0); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tracker) initCollection(c int, p *problem.Point) {
	vol := p.Container.InitialVolumeLoad
	wt := p.Container.InitialWeightLoad
	for d := 0; d <= t.data.Horizon; d++ {
		if d > 0 {
			vol += p.Container.ForecastVolumeDemand[d-1]
			wt += p.Container.ForecastWeightDemand[d-1]
		}
		t.vol[c][d] = vol
		t.wt[c][d] = wt
		t.viol[c][d] = math.Max(0, vol-p.Container.EffectiveVolume)
	}
}

func (t *Tracker) initDistribution(c int, p *problem.Point) {
	vol := p.Container.InitialVolumeLoad
	wt := p.Container.InitialWeightLoad
	for d := 0; d <= t.data.Horizon; d++ {
		if d > 0 {
			vol -= p.Container.ForecastVolumeDemand[d-1]
			wt -= p.Container.ForecastWeightDemand[d-1]
		}
		t.vol[c][d] = vol
		t.wt[c][d] = wt
		t.viol[c][d] = math.Max(0, -vol)
	}
}

// Update is the sole mutator during local search moves. If point is not a
// container it is a no-op. Otherwise it flips vis[c,day], tells the Tree
// to recompute from day forward, and recomputes vol/wt/viol/oca from
// day+1, stopping at the next scheduled visit.
func (t *Tracker) Update(point problem.PointIndex, day int, inserted bool) error {
	c := t.containerIndex(point)
	if c < 0 {
		return nil
	}
	if day < 0 || day > t.data.Horizon {
		return apperror.NewCritical(apperror.CodeInvalidArgument,
			fmt.Sprintf("update day %d out of [0,%d]", day, t.data.Horizon))
	}
	t.vis[c][day] = inserted

	var err error
	if inserted {
		err = t.trees[c].ApplyVisit(day)
	} else {
		err = t.trees[c].RemoveVisit(day)
	}
	if err != nil {
		return apperror.Wrap(err, apperror.CodeInvariantBreach,
			fmt.Sprintf("updating overflow tree for container %s on day %d", t.data.Points[point].ID, day))
	}

	if inserted {
		t.resetLoadOnVisit(c, day)
	}
	return t.refreshCostsFrom(c, day+1)
}

// resetLoadOnVisit applies the visit-day load reset: collection resets
// toward zero, distribution refills to effective volume (order-up-to).
func (t *Tracker) resetLoadOnVisit(c, day int) {
	pIdx := t.containers[c]
	p := &t.data.Points[pIdx]
	switch t.policy {
	case PolicyCollection:
		t.vol[c][day] = 0
		t.wt[c][day] = 0
		t.viol[c][day] = 0
	case PolicyDistribution:
		t.vol[c][day] = p.Container.EffectiveVolume
		t.wt[c][day] = p.Container.EffectiveVolume * p.Container.FlowSpecificWeight
		t.viol[c][day] = 0
	}
}

// refreshCostsFrom recomputes vol/wt/viol/oca for days [from, next visit]
// (inclusive of the next visit day, exclusive beyond it) using the
// container's forecast demand and its Tree's current overflow
// probabilities.
func (t *Tracker) refreshCostsFrom(c, from int) error {
	pIdx := t.containers[c]
	p := &t.data.Points[pIdx]
	h := t.data.Horizon

	for d := from; d <= h; d++ {
		if d > 0 && !t.vis[c][d] {
			switch t.policy {
			case PolicyCollection:
				t.vol[c][d] = t.vol[c][d-1] + p.Container.ForecastVolumeDemand[d-1]
				t.wt[c][d] = t.wt[c][d-1] + p.Container.ForecastWeightDemand[d-1]
				t.viol[c][d] = math.Max(0, t.vol[c][d]-p.Container.EffectiveVolume)
			case PolicyDistribution:
				t.vol[c][d] = t.vol[c][d-1] - p.Container.ForecastVolumeDemand[d-1]
				t.wt[c][d] = t.wt[c][d-1] - p.Container.ForecastWeightDemand[d-1]
				t.viol[c][d] = math.Max(0, -t.vol[c][d])
			}
		} else if d > 0 && t.vis[c][d] {
			t.resetLoadOnVisit(c, d)
		}

		prob := t.trees[c].OverflowProbability(d)
		if t.vis[c][d] {
			t.oca[c][d] = prob * t.data.Cost.OverflowCost
		} else {
			t.oca[c][d] = prob * (t.data.Cost.EmergencyCost + t.data.Cost.OverflowCost)
		}

		if t.vis[c][d] && d < h {
			// Stop extending past the visit we just reset; the caller's
			// next refresh (triggered by the next Update) covers beyond.
			if d > from {
				break
			}
		}
	}
	return nil
}

// Policy returns the numeric policy (collection or distribution) this
// tracker was built with.
func (t *Tracker) Policy() Policy { return t.policy }

// Containers returns the PointIndex of every container this tracker
// tracks, in Data.Points order.
func (t *Tracker) Containers() []problem.PointIndex {
	out := make([]problem.PointIndex, len(t.containers))
	copy(out, t.containers)
	return out
}

// Clone returns a deep copy: every per-container day-indexed array and
// every container's Tree is copied, so mutating the clone (via Update)
// never touches the original (spec §8 "copy-then-modify" law). Data is
// immutable and shared by pointer, per the arena-allocation design.
func (t *Tracker) Clone() *Tracker {
	n := len(t.containers)
	cp := &Tracker{
		data:        t.data,
		policy:      t.policy,
		containers:  append([]problem.PointIndex(nil), t.containers...),
		containerOf: make(map[problem.PointIndex]int, n),
		trees:       make([]*overflow.Tree, n),
		vis:         make([][]bool, n),
		vol:         make([][]float64, n),
		wt:          make([][]float64, n),
		viol:        make([][]float64, n),
		oca:         make([][]float64, n),
	}
	for k, v := range t.containerOf {
		cp.containerOf[k] = v
	}
	for c := 0; c < n; c++ {
		cp.trees[c] = t.trees[c].Clone()
		cp.vis[c] = append([]bool(nil), t.vis[c]...)
		cp.vol[c] = append([]float64(nil), t.vol[c]...)
		cp.wt[c] = append([]float64(nil), t.wt[c]...)
		cp.viol[c] = append([]float64(nil), t.viol[c]...)
		cp.oca[c] = append([]float64(nil), t.oca[c]...)
	}
	if t.depotLoad != nil {
		cp.depotLoad = append([]float64(nil), t.depotLoad...)
		cp.depotViol = append([]float64(nil), t.depotViol...)
	}
	return cp
}

// Visited reports whether container point p was serviced on day.
func (t *Tracker) Visited(p problem.PointIndex, day int) bool {
	c := t.containerIndex(p)
	if c < 0 || day < 0 || day > t.data.Horizon {
		return false
	}
	return t.vis[c][day]
}

// Volume returns the container's volume load on day.
func (t *Tracker) Volume(p problem.PointIndex, day int) float64 {
	return t.field(t.vol, p, day)
}

// Weight returns the container's weight load on day.
func (t *Tracker) Weight(p problem.PointIndex, day int) float64 {
	return t.field(t.wt, p, day)
}

// Violation returns the container's capacity/inventory violation on day.
func (t *Tracker) Violation(p problem.PointIndex, day int) float64 {
	return t.field(t.viol, p, day)
}

// AttributedOverflowCost returns oca[c,day].
func (t *Tracker) AttributedOverflowCost(p problem.PointIndex, day int) float64 {
	return t.field(t.oca, p, day)
}

// OverflowProbability returns the container's Tree overflow probability
// for the given day.
func (t *Tracker) OverflowProbability(p problem.PointIndex, day int) float64 {
	c := t.containerIndex(p)
	if c < 0 {
		return 0
	}
	return t.trees[c].OverflowProbability(day)
}

func (t *Tracker) field(table [][]float64, p problem.PointIndex, day int) float64 {
	c := t.containerIndex(p)
	if c < 0 || day < 0 || day > t.data.Horizon {
		return 0
	}
	return table[c][day]
}

// HoldingCost returns the inventory-holding cost accrued by container p on
// day, proportional to its volume load.
func (t *Tracker) HoldingCost(p problem.PointIndex, day int) float64 {
	c := t.containerIndex(p)
	if c < 0 {
		return 0
	}
	pt := &t.data.Points[t.containers[c]]
	return pt.Container.HoldingCost * t.vol[c][day]
}

// UnvisitedContainers returns the PointIndex of every container not
// serviced on the given day.
func (t *Tracker) UnvisitedContainers(day int) []problem.PointIndex {
	var out []problem.PointIndex
	for c, pIdx := range t.containers {
		if day < 0 || day > t.data.Horizon || !t.vis[c][day] {
			out = append(out, pIdx)
		}
	}
	return out
}

// DaysSinceLastVisit returns how many days have elapsed since container p
// was last serviced at or before day, or day+1 if never serviced.
func (t *Tracker) DaysSinceLastVisit(p problem.PointIndex, day int) int {
	c := t.containerIndex(p)
	if c < 0 {
		return 0
	}
	for d := day; d >= 0; d-- {
		if t.vis[c][d] {
			return day - d
		}
	}
	return day + 1
}

// Simulate draws one demand realization per day with Gaussian perturbation
// scaled by errSigma (0 for a deterministic replay), recomputing loads and
// violations against nominal volume V (not V_eff), without touching
// visits. This matches the source's intentional divergence between
// routing feasibility (which always bounds against V_eff) and this
// replay path (which always bounds against V).
func (t *Tracker) Simulate(rng *rand.Rand, errSigma float64, randomize bool) error {
	if randomize && rng == nil {
		return apperror.NewCritical(apperror.CodeInvalidArgument, "simulate requires a PRNG when randomize is true")
	}
	for c, pIdx := range t.containers {
		p := &t.data.Points[pIdx]
		vol := p.Container.InitialVolumeLoad
		wt := p.Container.InitialWeightLoad
		for d := 0; d <= t.data.Horizon; d++ {
			if d > 0 {
				volDemand := p.Container.ForecastVolumeDemand[d-1]
				wtDemand := p.Container.ForecastWeightDemand[d-1]
				if randomize && errSigma > 0 {
					volDemand += rng.NormFloat64() * errSigma
					wtDemand += rng.NormFloat64() * errSigma
				}
				switch t.policy {
				case PolicyCollection:
					if t.vis[c][d] {
						vol, wt = 0, 0
					} else {
						vol += volDemand
						wt += wtDemand
					}
				case PolicyDistribution:
					if t.vis[c][d] {
						vol = p.Container.EffectiveVolume
						wt = p.Container.EffectiveVolume * p.Container.FlowSpecificWeight
					} else {
						vol -= volDemand
						wt -= wtDemand
					}
				}
			}
			t.vol[c][d] = vol
			t.wt[c][d] = wt
			switch t.policy {
			case PolicyCollection:
				t.viol[c][d] = math.Max(0, vol-p.Container.Volume)
			case PolicyDistribution:
				t.viol[c][d] = math.Max(0, -vol)
			}
		}
	}
	return nil
}

// DepotLoad returns the distribution-variant depot inventory level on day.
// It is always 0 under PolicyCollection.
func (t *Tracker) DepotLoad(day int) float64 {
	if t.policy != PolicyDistribution || day < 0 || day > t.data.Horizon {
		return 0
	}
	return t.depotLoad[day]
}

// DepotViolation returns the distribution-variant depot violation on day.
func (t *Tracker) DepotViolation(day int) float64 {
	if t.policy != PolicyDistribution || day < 0 || day > t.data.Horizon {
		return 0
	}
	return t.depotViol[day]
}
