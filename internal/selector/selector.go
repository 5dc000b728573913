// Package selector implements the adaptive-roulette-wheel Operator
// Selector (spec §4.6): independent destroy and repair wheels, each
// tracking a per-operator score/usage/weight triple updated at segment
// boundaries and sampled proportionally to weight.
package selector

import "math/rand"

// Outcome classifies how a candidate solution produced by an operator
// pair fared, driving which score increment (sigma1..sigma4) that
// operator receives.
type Outcome int

const (
	// OutcomeNewBest: the candidate became the new global best (sigma1).
	OutcomeNewBest Outcome = iota
	// OutcomeBetter: accepted and improved on current, but not a new best (sigma2).
	OutcomeBetter
	// OutcomeAccepted: accepted though worse than current (sigma3, SA acceptance).
	OutcomeAccepted
	// OutcomeNotUsed: the operator was not applied this iteration, or its
	// candidate was rejected outright (sigma4).
	OutcomeNotUsed
)

// Scores are the sigma1..sigma4 increments spec §4.6 names.
type Scores struct {
	NewBest  float64 // sigma1
	Better   float64 // sigma2
	Accepted float64 // sigma3
	NotUsed  float64 // sigma4
}

// DefaultScores returns the commonly-used ALNS increments (33, 9, 13, 0).
func DefaultScores() Scores {
	return Scores{NewBest: 33, Better: 9, Accepted: 13, NotUsed: 0}
}

// Wheel is one independent adaptive roulette wheel over n operators.
type Wheel struct {
	n            int
	reactionRate float64 // r in (0,1]

	score  []float64 // s_i, accumulated since the last segment boundary
	uses   []float64 // u_i, accumulated since the last segment boundary
	weight []float64 // w_i, current sampling weight
}

// NewWheel builds a wheel over n operators with uniform initial weights.
func NewWheel(n int, reactionRate float64) *Wheel {
	w := &Wheel{n: n, reactionRate: reactionRate}
	w.score = make([]float64, n)
	w.uses = make([]float64, n)
	w.weight = make([]float64, n)
	w.ResetUniform()
	return w
}

// ResetUniform re-seeds every weight to 1/n and clears segment accumulators.
// Called once at engine start (spec §4.6: "reset only at engine start, not
// at reheating").
func (w *Wheel) ResetUniform() {
	uniform := 1.0
	if w.n > 0 {
		uniform = 1.0 / float64(w.n)
	}
	for i := range w.weight {
		w.weight[i] = uniform
		w.score[i] = 0
		w.uses[i] = 0
	}
}

// Select samples an operator index proportionally to current weight.
func (w *Wheel) Select(rng *rand.Rand) int {
	if w.n == 0 {
		return -1
	}
	var total float64
	for _, ww := range w.weight {
		total += ww
	}
	if total <= 0 {
		return rng.Intn(w.n)
	}
	target := rng.Float64() * total
	var cum float64
	for i, ww := range w.weight {
		cum += ww
		if target < cum {
			return i
		}
	}
	return w.n - 1
}

// Record accrues usage and the score increment for outcome against
// operator i, to be folded into its weight at the next SegmentUpdate.
func (w *Wheel) Record(i int, outcome Outcome, scores Scores) {
	if i < 0 || i >= w.n {
		return
	}
	w.uses[i]++
	switch outcome {
	case OutcomeNewBest:
		w.score[i] += scores.NewBest
	case OutcomeBetter:
		w.score[i] += scores.Better
	case OutcomeAccepted:
		w.score[i] += scores.Accepted
	case OutcomeNotUsed:
		w.score[i] += scores.NotUsed
	}
}

// SegmentUpdate folds the accumulated segment scores into each weight:
// w_i = (1-r)*w_i + r*(s_i/max(1,u_i)), then clears the segment
// accumulators for the next segment.
func (w *Wheel) SegmentUpdate() {
	r := w.reactionRate
	for i := range w.weight {
		denom := w.uses[i]
		if denom < 1 {
			denom = 1
		}
		w.weight[i] = (1-r)*w.weight[i] + r*(w.score[i]/denom)
		w.score[i] = 0
		w.uses[i] = 0
	}
}

// Weights returns a copy of the current sampling weights, exposed for
// metrics gauges (pkg/metrics OperatorWeight).
func (w *Wheel) Weights() []float64 {
	out := make([]float64, len(w.weight))
	copy(out, w.weight)
	return out
}

// Selector bundles the independent destroy and repair wheels (spec §4.6:
// "Destroy and repair wheels are independent").
type Selector struct {
	Destroy *Wheel
	Repair  *Wheel
}

// New builds a Selector with numDestroy destroy operators and numRepair
// repair operators, both reacting at rate r.
func New(numDestroy, numRepair int, reactionRate float64) *Selector {
	return &Selector{
		Destroy: NewWheel(numDestroy, reactionRate),
		Repair:  NewWheel(numRepair, reactionRate),
	}
}

// ResetUniform re-seeds both wheels. Only called at engine start.
func (s *Selector) ResetUniform() {
	s.Destroy.ResetUniform()
	s.Repair.ResetUniform()
}

// SegmentUpdate folds both wheels' accumulated segment scores into weight.
func (s *Selector) SegmentUpdate() {
	s.Destroy.SegmentUpdate()
	s.Repair.SegmentUpdate()
}
