// Package engine implements the SA-ALNS outer loop (spec §4.7): construct
// an initial solution, then repeatedly destroy/repair/accept candidates
// under a simulated-annealing temperature schedule, driven by the adaptive
// operator Selector and the self-tuning Penalty Controller, until the
// iteration budget or cooperative cancellation ends the run.
package engine

import (
	"context"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/logistics-labs/alns-core/internal/penalty"
	"github.com/logistics-labs/alns-core/internal/problem"
	"github.com/logistics-labs/alns-core/internal/schedule"
	"github.com/logistics-labs/alns-core/internal/selector"
	"github.com/logistics-labs/alns-core/internal/tour"
	"github.com/logistics-labs/alns-core/internal/tracker"
	"github.com/logistics-labs/alns-core/pkg/apperror"
	"github.com/logistics-labs/alns-core/pkg/logger"
	"github.com/logistics-labs/alns-core/pkg/metrics"
)

// Params are the tunable knobs the SA-ALNS loop runs under. Callers
// typically build this from pkg/config.EngineConfig plus the relatedness
// mix and penalty-controller seed values a run needs.
type Params struct {
	InitialAcceptanceProbability float64
	CoolingFactor                float64
	MinTemperature               float64
	MaxIterations                int
	SegmentLength                int
	ReheatingFactor              float64
	ReheatingTriggerSegments     int
	ReactionRate                 float64
	EnableLocalSearch            bool
	Timeout                      time.Duration

	Relatedness    schedule.RelatednessWeights
	PenaltyParams  penalty.Params
	PenaltyInitial [8]float64
}

// Solution is the best schedule an engine run found, together with the
// cost it was evaluated at under the final penalty weights.
type Solution struct {
	RunID    string
	Schedule *schedule.Schedule
	Cost     float64
}

// Run builds an initial solution over data, then runs the SA-ALNS loop
// until MaxIterations, MinTemperature, ctx cancellation, Timeout or a
// caller close of cancel ends it. The returned bool reports whether the
// run ended early due to cancellation; it is not an error, the best
// solution found so far is always returned.
func Run(ctx context.Context, data *problem.Data, seed int64, params Params, cancel <-chan struct{}) (*Solution, bool, error) {
	if err := data.Validate(); err != nil {
		return nil, false, err
	}
	runID := uuid.New().String()
	log := logger.WithRunID(runID).With("component", "engine", "variant", data.Variant.String())

	if params.Timeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeout(ctx, params.Timeout)
		defer stop()
	}

	policy := tracker.PolicyCollection
	if data.Variant == problem.VariantIRPDistribution {
		policy = tracker.PolicyDistribution
	}
	trk, err := tracker.New(data, policy)
	if err != nil {
		return nil, false, err
	}
	if err := trk.Init(); err != nil {
		return nil, false, err
	}

	sched := schedule.New(data, trk)
	if err := constructInitial(data, sched); err != nil {
		return nil, false, apperror.Wrap(err, apperror.CodeInvariantBreach, "constructing initial solution")
	}

	rng := rand.New(rand.NewSource(seed))
	initDestroys, initRepairs := sched.VariantOperatorTables()
	sel := selector.New(len(initDestroys), len(initRepairs), params.ReactionRate)
	sel.ResetUniform()

	pc := penalty.New(params.PenaltyParams, params.PenaltyInitial)
	pc.Reset()

	m := metrics.Default()
	m.RunsTotal.WithLabelValues(data.Variant.String()).Inc()
	runStart := time.Now()

	weights := pc.TourWeights()
	lambdas := schedule.Lambdas{Backorder: pc.BackorderLambda(), Container: pc.ContainerLambda()}
	currentCost := sched.Cost(weights, lambdas)

	best := sched.Clone()
	bestCost := currentCost

	T := initialTemperature(currentCost, params.InitialAcceptanceProbability)

	log.Info("run_started",
		"max_iterations", params.MaxIterations,
		"segment_length", params.SegmentLength,
		"initial_cost", currentCost,
		"initial_temperature", T,
	)

	improvedThisSegment := false
	segmentsSinceImprovement := 0
	cancelled := false

	iter := 0
iterLoop:
	for ; iter < params.MaxIterations && T > params.MinTemperature; iter++ {
		select {
		case <-cancel:
			cancelled = true
			break iterLoop
		case <-ctx.Done():
			cancelled = true
			break iterLoop
		default:
		}

		candidate := sched.Clone()
		candDestroys, candRepairs := candidate.VariantOperatorTables()
		di := sel.Destroy.Select(rng)
		ri := sel.Repair.Select(rng)

		opCtx := schedule.OperatorContext{RNG: rng, Weights: weights, Relatedness: params.Relatedness}
		if _, err := candDestroys[di](opCtx); err != nil {
			return nil, false, apperror.Wrap(err, apperror.CodeInvariantBreach, "applying destroy operator")
		}
		if _, err := candRepairs[ri](opCtx); err != nil {
			return nil, false, apperror.Wrap(err, apperror.CodeInvariantBreach, "applying repair operator")
		}
		if params.EnableLocalSearch {
			for _, t := range candidate.Tours {
				t.LocalSearch(weights, 5)
			}
		}

		candCost := candidate.Cost(weights, lambdas)
		delta := candCost - currentCost

		accept := delta <= 0
		if !accept && T > 0 {
			accept = rng.Float64() < math.Exp(-delta/T)
		}

		outcome := selector.OutcomeNotUsed
		if accept {
			sched = candidate
			currentCost = candCost
			switch {
			case candCost < bestCost:
				best = candidate.Clone()
				bestCost = candCost
				outcome = selector.OutcomeNewBest
				improvedThisSegment = true
			case delta <= 0:
				outcome = selector.OutcomeBetter
			default:
				outcome = selector.OutcomeAccepted
			}
			m.AcceptedTotal.WithLabelValues(runID).Inc()
		}

		scores := selector.DefaultScores()
		sel.Destroy.Record(di, outcome, scores)
		sel.Repair.Record(ri, outcome, scores)

		pc.Observe(feasibilityVector(sched.Feasibility()))

		m.IterationsTotal.WithLabelValues(runID).Inc()
		m.CurrentCost.WithLabelValues(runID).Set(currentCost)
		m.BestCost.WithLabelValues(runID).Set(bestCost)
		m.Temperature.WithLabelValues(runID).Set(T)

		if (iter+1)%params.SegmentLength == 0 {
			sel.SegmentUpdate()
			pc.Step()
			weights = pc.TourWeights()
			lambdas = schedule.Lambdas{Backorder: pc.BackorderLambda(), Container: pc.ContainerLambda()}

			publishOperatorWeights(m, runID, "destroy", sel.Destroy.Weights())
			publishOperatorWeights(m, runID, "repair", sel.Repair.Weights())

			if improvedThisSegment {
				segmentsSinceImprovement = 0
			} else {
				segmentsSinceImprovement++
			}
			improvedThisSegment = false

			if segmentsSinceImprovement >= params.ReheatingTriggerSegments {
				T *= params.ReheatingFactor
				segmentsSinceImprovement = 0
				m.ReheatsTotal.WithLabelValues(runID).Inc()
				log.Info("reheat", "iteration", iter+1, "temperature", T)
			} else {
				T *= params.CoolingFactor
			}
			log.Debug("segment_update", "iteration", iter+1, "current_cost", currentCost, "best_cost", bestCost, "temperature", T)
		}
	}

	m.RunDuration.WithLabelValues(data.Variant.String()).Observe(time.Since(runStart).Seconds())
	log.Info("run_finished", "iterations", iter, "best_cost", bestCost, "cancelled", cancelled)

	return &Solution{RunID: runID, Schedule: best, Cost: bestCost}, cancelled, nil
}

// initialTemperature derives T0 so that a 5% worsening move is accepted
// with probability p at the start of the run (spec §4.7):
// p = exp(-0.05*cost/T0)  =>  T0 = -0.05*cost / ln(p).
func initialTemperature(initialCost, p float64) float64 {
	delta := 0.05 * math.Abs(initialCost)
	if delta <= 0 {
		return 1e-6
	}
	if p <= 0 || p >= 1 {
		p = 0.5
	}
	T := -delta / math.Log(p)
	if T <= 0 {
		T = 1e-6
	}
	return T
}

// feasibilityVector maps a schedule.FeasibilityReport onto the penalty
// controller's per-Kind observation vector. The field order of
// FeasibilityReport is defined to match penalty.Kind's iota order.
func feasibilityVector(fr schedule.FeasibilityReport) [8]bool {
	return [8]bool{
		fr.Volume,
		fr.Weight,
		fr.TimeWindow,
		fr.Duration,
		fr.Accessibility,
		fr.HomeDepot,
		fr.Backorder,
		fr.Container,
	}
}

func publishOperatorWeights(m *metrics.Metrics, runID, kind string, weights []float64) {
	for i, w := range weights {
		m.OperatorWeight.WithLabelValues(runID, kind, strconv.Itoa(i)).Set(w)
	}
}

// constructInitial builds one tour per (day, available truck) and
// greedily inserts every container into the day/tour combination that
// cheapens the route the least while favoring days with higher overflow
// urgency, then attaches the nearest feasible dump to every non-empty
// tour. It is a simple constructive heuristic, not itself part of the
// destroy/repair catalogue (spec §4.7 "construct an initial solution").
func constructInitial(data *problem.Data, sched *schedule.Schedule) error {
	trk := sched.Tracker()

	for day := 0; day < data.Horizon; day++ {
		for ti := range data.Trucks {
			truck := &data.Trucks[ti]
			if day < len(truck.Available) && truck.Available[day] {
				sched.Tours = append(sched.Tours, tour.New(data, trk, day, problem.TruckIndex(ti)))
			}
		}
	}

	const urgencyWeight = 1e6
	for _, c := range trk.Containers() {
		bestDay, bestTourIdx, bestPos := -1, -1, -1
		bestScore := math.Inf(1)
		for day := 0; day < data.Horizon; day++ {
			urgency := trk.OverflowProbability(c, day)
			for ti, t := range sched.Tours {
				if t.Day != day {
					continue
				}
				pos, delta, ok := t.BestContainerInsertion(c)
				if !ok {
					continue
				}
				score := delta - urgency*urgencyWeight
				if score < bestScore {
					bestScore, bestDay, bestTourIdx, bestPos = score, day, ti, pos
				}
			}
		}
		if bestTourIdx < 0 {
			continue
		}
		sched.Tours[bestTourIdx].Insert(bestPos, c)
		if err := trk.Update(c, bestDay, true); err != nil {
			return err
		}
	}

	var dumps []problem.PointIndex
	for i := range data.Points {
		if data.Points[i].Kind == problem.KindDump {
			dumps = append(dumps, problem.PointIndex(i))
		}
	}
	if len(dumps) == 0 {
		return nil
	}
	for _, t := range sched.Tours {
		if len(t.ContainerPositions()) == 0 {
			continue
		}
		bestDump, bestPos := -1, -1
		bestDelta := math.Inf(1)
		for _, d := range dumps {
			pos, delta, ok := t.BestDumpInsertion(d)
			if ok && delta < bestDelta {
				bestDump, bestPos, bestDelta = int(d), pos, delta
			}
		}
		if bestDump >= 0 {
			t.Insert(bestPos, problem.PointIndex(bestDump))
		}
	}
	return nil
}
