// Package overflow builds and maintains the per-container binary
// overflow-probability tree (problem.TailTables consumer). The tree is
// built and updated iteratively — depth is bounded in practice (H <= ~14)
// but nothing here recurses, so there is no stack-depth concern and no
// per-node heap allocation beyond the flat per-depth slices.
package overflow

import (
	"fmt"
	"math"

	"github.com/logistics-labs/alns-core/internal/problem"
	"github.com/logistics-labs/alns-core/pkg/apperror"
)

// node is one vertex of the tree. Overflow nodes are "lower" children
// reached by the container overflowing on the day they were created;
// non-overflow nodes are "upper" children.
//
// pin is the day index of the most recent event that reset the
// container's inventory baseline along this node's branch — either a
// scheduled visit or an overflow — or -1 if neither has happened yet.
// pinIsOverflow distinguishes the two, since a visit and an overflow
// consult different tail-probability tables.
type node struct {
	Pin           int
	PinIsOverflow bool
	Overflow      bool
	NodeProb      float64 // probability this node was reached from its parent
	BranchProb    float64 // probability of the full path root..this node
}

// Tree is the depth-(H+1) binary probability tree for a single container.
// Levels[d] holds the 2^d nodes at depth d, depth 0 being the single root
// (the state before day 1).
type Tree struct {
	horizon int
	tail    problem.TailTables
	levels  [][]node
	visits  []bool // visits[d] true if the container is serviced on day d (1-indexed in levels, visits has length horizon+1)

	overflowProb []float64 // overflowProb[d] = P(overflow on day d), d in [1,horizon]
}

// Build constructs the tree assuming no visits across the horizon.
func Build(tail problem.TailTables, horizon int) (*Tree, error) {
	t := &Tree{
		horizon: horizon,
		tail:    tail,
		visits:  make([]bool, horizon+1),
	}
	if err := t.rebuildFrom(0); err != nil {
		return nil, err
	}
	return t, nil
}

// Horizon returns the tree's depth bound H.
func (t *Tree) Horizon() int { return t.horizon }

// OverflowProbability returns P(overflow on day d), 1 <= d <= horizon: the
// summed branch probability of every overflow node at depth d.
func (t *Tree) OverflowProbability(day int) float64 {
	if day < 1 || day > t.horizon {
		return 0
	}
	return t.overflowProb[day]
}

// ApplyVisit marks the container as serviced on the given day and
// recomputes every level from the visit day through the horizon; node and
// branch probabilities before `day` are untouched.
func (t *Tree) ApplyVisit(day int) error {
	if day < 0 || day > t.horizon {
		return apperror.NewCritical(apperror.CodeInvalidArgument,
			fmt.Sprintf("visit day %d out of [0,%d]", day, t.horizon))
	}
	t.visits[day] = true
	if day == 0 {
		return t.rebuildFrom(0)
	}
	return t.rebuildFrom(day - 1)
}

// RemoveVisit undoes a previously applied visit and recomputes the
// affected span.
func (t *Tree) RemoveVisit(day int) error {
	if day < 0 || day > t.horizon {
		return apperror.NewCritical(apperror.CodeInvalidArgument,
			fmt.Sprintf("visit day %d out of [0,%d]", day, t.horizon))
	}
	t.visits[day] = false
	prev := t.previousVisit(day)
	return t.rebuildFrom(prev)
}

// previousVisit returns the latest day <= from on which a visit is
// scheduled, or 0 (the root) if none.
func (t *Tree) previousVisit(from int) int {
	for d := from; d > 0; d-- {
		if t.visits[d] {
			return d
		}
	}
	return 0
}

// rebuildFrom recomputes every level after `from` through the horizon.
// Level `from` and the levels before it are assumed already correct and are
// read, not recomputed — callers pass the most recent unaffected day (the
// "prev" node of spec §4.2's update rule). A rebuild from 0 also re-pins the
// root to day 0 when a day-0 visit is scheduled.
func (t *Tree) rebuildFrom(from int) error {
	if t.levels == nil {
		t.levels = make([][]node, t.horizon+1)
		t.levels[0] = []node{{Pin: -1, PinIsOverflow: false, BranchProb: 1, NodeProb: 1}}
		t.overflowProb = make([]float64, t.horizon+1)
		from = 0
	}
	if from == 0 {
		t.levels[0][0].Pin = -1
		if t.visits[0] {
			t.levels[0][0].Pin = 0
		}
	}
	if from >= t.horizon {
		return nil
	}
	for d := from + 1; d <= t.horizon; d++ {
		parents := t.levels[d-1]
		level := make([]node, len(parents)*2)
		var sum float64
		for i, parent := range parents {
			p := parent
			lowerProb, err := t.lowerChildProbability(d, &p)
			if err != nil {
				return err
			}
			if lowerProb < 0 || lowerProb > 1 || math.IsNaN(lowerProb) {
				return apperror.NewCritical(apperror.CodeTreeProbabilityDrift,
					fmt.Sprintf("invalid overflow probability %v at day %d", lowerProb, d))
			}

			visited := t.visits[d]
			upperPin, upperOverflow := p.Pin, p.PinIsOverflow
			lowerPin, lowerOverflow := d, true
			if visited {
				// Service happens regardless of which branch is taken; the
				// container cannot be mid-overflow once serviced.
				upperPin, upperOverflow = d, false
				lowerPin, lowerOverflow = d, false
				lowerProb = 0
			}

			lower := node{
				Pin: lowerPin, PinIsOverflow: lowerOverflow,
				Overflow: !visited, NodeProb: lowerProb,
				BranchProb: p.BranchProb * lowerProb,
			}
			upper := node{
				Pin: upperPin, PinIsOverflow: upperOverflow,
				Overflow: false, NodeProb: 1 - lowerProb,
				BranchProb: p.BranchProb * (1 - lowerProb),
			}
			level[2*i] = lower
			level[2*i+1] = upper
			if lower.Overflow {
				sum += lower.BranchProb
			}
		}
		t.levels[d] = level
		t.overflowProb[d] = sum
	}
	return nil
}

// lowerChildProbability implements the four-case table lookup from spec
// §4.2: whether the container overflows on day d, given the parent node's
// inventory-reset history.
func (t *Tree) lowerChildProbability(d int, parent *node) (float64, error) {
	switch {
	case parent.Pin == -1 && d == 1:
		return t.tail.UStart, nil
	case parent.Pin == d-1 && parent.PinIsOverflow:
		return t.at(t.tail.UZero, d)
	case parent.Pin == d-1 && !parent.PinIsOverflow:
		return t.at(t.tail.CStart, d)
	case parent.Pin < 0:
		// Still on the virgin root branch with no reset at all (no overflow,
		// no visit) more than one day in. This is still "the uppermost branch,
		// no prior emergency" from spec §4.2's third case, just with more than
		// one elapsed day, so it uses the same starting-inventory table as the
		// day-after-reset case above.
		return t.at(t.tail.CStart, d)
	default:
		gap := d - parent.Pin
		if parent.Pin < 0 || parent.Pin >= len(t.tail.CZero) {
			return 0, apperror.NewCritical(apperror.CodeTreeProbabilityDrift,
				fmt.Sprintf("pin day %d out of range for CZero table", parent.Pin))
		}
		row := t.tail.CZero[parent.Pin]
		if gap < 0 || gap >= len(row) {
			return 0, apperror.NewCritical(apperror.CodeTreeProbabilityDrift,
				fmt.Sprintf("gap %d out of range for CZero[%d]", gap, parent.Pin))
		}
		return row[gap], nil
	}
}

func (t *Tree) at(table []float64, idx int) (float64, error) {
	if idx < 0 || idx >= len(table) {
		return 0, apperror.NewCritical(apperror.CodeTreeProbabilityDrift,
			fmt.Sprintf("index %d out of range for tail table of length %d", idx, len(table)))
	}
	return table[idx], nil
}

// Clone returns a deep copy of the tree. The tail tables are shared (never
// mutated after construction), but every per-day level, visit flag and
// overflow-probability entry is copied so the clone can be updated
// independently of the original.
func (t *Tree) Clone() *Tree {
	levels := make([][]node, len(t.levels))
	for i, lvl := range t.levels {
		cp := make([]node, len(lvl))
		copy(cp, lvl)
		levels[i] = cp
	}
	visits := make([]bool, len(t.visits))
	copy(visits, t.visits)
	overflowProb := make([]float64, len(t.overflowProb))
	copy(overflowProb, t.overflowProb)
	return &Tree{
		horizon:      t.horizon,
		tail:         t.tail,
		levels:       levels,
		visits:       visits,
		overflowProb: overflowProb,
	}
}

// CheckConservation verifies, for each depth, that branch probabilities of
// the two children of every node sum to the parent's branch probability —
// the invariant spec §4.2 names explicitly. It is intended for tests and
// debug builds, not the hot path.
func (t *Tree) CheckConservation() error {
	const eps = 1e-9
	for d := 1; d <= t.horizon; d++ {
		parents := t.levels[d-1]
		level := t.levels[d]
		for i, parent := range parents {
			sum := level[2*i].BranchProb + level[2*i+1].BranchProb
			if math.Abs(sum-parent.BranchProb) > eps {
				return apperror.NewCritical(apperror.CodeTreeProbabilityDrift,
					fmt.Sprintf("day %d node %d: children sum %v != parent branch probability %v", d, i, sum, parent.BranchProb))
			}
		}
	}
	return nil
}
