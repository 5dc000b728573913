// Package rolling implements the Rolling-Horizon Driver (spec §4.8): it
// repeatedly invokes the SA-ALNS engine on sliding truncated-horizon
// instances, carrying forward per-container load state and per-truck
// starting positions across rollovers, and accumulates the day-0 routing
// and overflow cost of each rollover's committed solution.
package rolling

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/logistics-labs/alns-core/internal/engine"
	"github.com/logistics-labs/alns-core/internal/forecast"
	"github.com/logistics-labs/alns-core/internal/problem"
	"github.com/logistics-labs/alns-core/internal/schedule"
	"github.com/logistics-labs/alns-core/internal/tour"
	"github.com/logistics-labs/alns-core/internal/tracker"
	"github.com/logistics-labs/alns-core/pkg/apperror"
	"github.com/logistics-labs/alns-core/pkg/logger"
	"github.com/logistics-labs/alns-core/pkg/metrics"
)

// Config controls the rolling-horizon driver's window shape (spec §4.8).
type Config struct {
	HorizonLength int // h, the truncated window length each rollover plans over
	Rollovers     int // R, the number of rollovers to execute
}

// Params bundles everything a Driver.Run call needs beyond the base
// instance: the window shape, the engine parameters every rollover's
// inner run uses, and the forecast provider consulted to rebuild each
// rollover's tail-probability tables. Callers typically pass a
// forecast.RollingProvider here so the tail statistics never re-derive
// sigma from a full forecast service between rollovers (spec §6).
type Params struct {
	Config       Config
	EngineParams engine.Params
	Provider     forecast.Provider
}

// RolloverResult is one rollover's committed outcome.
type RolloverResult struct {
	Day         int
	Schedule    *schedule.Schedule // the full truncated-horizon best solution
	Cost        float64            // the engine's reported cost for that run
	DayZeroCost float64            // routing + overflow cost of the committed day-0 slice
	Cancelled   bool
}

// Result is the accumulated outcome across every rollover a Driver.Run
// call executed.
type Result struct {
	Rollovers []RolloverResult
	TotalCost float64
}

// containerState carries the per-container hand-off spec §4.8 names:
// the load at the start of the next rollover's day 0, and the most
// recent real day the container was actually visited.
type containerState struct {
	volumeLoad   float64
	weightLoad   float64
	lastVisitDay int // -1 until the first visit
}

// Driver repeats the SA-ALNS engine over sliding truncated horizons.
type Driver struct{}

// New creates a Driver. Driver carries no state of its own between Run
// calls; all rollover hand-off state lives on the stack of a single Run.
func New() *Driver { return &Driver{} }

// Run executes Config.Rollovers rollovers of length min(Config.HorizonLength,
// base.Horizon-day) each, starting from base's own initial container
// loads and truck positions, and returns the accumulated result. If cancel
// fires or ctx is done before a rollover starts, it returns the rollovers
// completed so far. If the engine reports cancellation during a rollover,
// that rollover's best-so-far schedule is still committed and recorded with
// Cancelled set, and Run returns.
func (d *Driver) Run(ctx context.Context, base *problem.Data, seed int64, params Params, cancel <-chan struct{}) (*Result, error) {
	if base == nil {
		return nil, apperror.ErrNilProblemData
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}
	if params.Config.HorizonLength <= 0 {
		return nil, apperror.NewCritical(apperror.CodeInvalidArgument, "rolling horizon length must be positive")
	}
	if params.Config.Rollovers <= 0 {
		return nil, apperror.NewCritical(apperror.CodeInvalidArgument, "rollovers must be positive")
	}
	if params.Provider == nil {
		return nil, apperror.New(apperror.CodeNilInput, "rolling driver requires a forecast provider")
	}

	driverID := uuid.New().String()
	log := logger.WithComponent("rolling").With("driver_id", driverID, "variant", base.Variant.String())
	m := metrics.Default()

	states := make(map[problem.PointIndex]*containerState)
	for i := range base.Points {
		if base.Points[i].Kind != problem.KindContainer {
			continue
		}
		c := &base.Points[i].Container
		states[problem.PointIndex(i)] = &containerState{
			volumeLoad:   c.InitialVolumeLoad,
			weightLoad:   c.InitialWeightLoad,
			lastVisitDay: -1,
		}
	}
	truckPos := make(map[problem.TruckIndex]problem.PointIndex, len(base.Trucks))
	for i := range base.Trucks {
		truckPos[problem.TruckIndex(i)] = base.Trucks[i].CurrentStartingPoint
	}

	res := &Result{}

	log.Info("driver_started", "rollovers", params.Config.Rollovers, "horizon_length", params.Config.HorizonLength, "base_horizon", base.Horizon)

	for day := 0; day < params.Config.Rollovers; day++ {
		select {
		case <-cancel:
			return res, nil
		case <-ctx.Done():
			return res, nil
		default:
		}

		h := min(params.Config.HorizonLength, base.Horizon-day)
		if h <= 0 {
			break
		}

		sub, err := buildRolloverData(base, day, h, params.Provider, states, truckPos)
		if err != nil {
			return res, apperror.Wrap(err, apperror.CodeInternal,
				fmt.Sprintf("building rollover %d instance", day))
		}

		sol, cancelled, err := engine.Run(ctx, sub, seed+int64(day), params.EngineParams, cancel)
		if err != nil {
			return res, apperror.Wrap(err, apperror.CodeInternal,
				fmt.Sprintf("running engine for rollover %d", day))
		}

		commitRollover(sol.Schedule, day, h, states, truckPos)

		dayZero := dayZeroCost(sol.Schedule)
		res.TotalCost += dayZero
		res.Rollovers = append(res.Rollovers, RolloverResult{
			Day:         day,
			Schedule:    sol.Schedule,
			Cost:        sol.Cost,
			DayZeroCost: dayZero,
			Cancelled:   cancelled,
		})

		m.RolloverCostTotal.WithLabelValues(driverID).Add(dayZero)
		log.Info("rollover_completed", "day", day, "horizon", h, "day_zero_cost", dayZero, "engine_cost", sol.Cost, "cancelled", cancelled)

		if cancelled {
			res.Rollovers[len(res.Rollovers)-1].Cancelled = true
			return res, nil
		}
	}

	log.Info("driver_finished", "rollovers_completed", len(res.Rollovers), "total_cost", res.TotalCost)
	return res, nil
}

// buildRolloverData constructs the truncated-horizon instance for the
// given real day, reusing base's points/trucks/distance matrix but
// overwriting each container's per-day forecast window, initial load and
// tail-probability tables, and each truck's per-day availability window
// and current starting point (spec §4.8 steps 1-3).
func buildRolloverData(base *problem.Data, day, h int, provider forecast.Provider, states map[problem.PointIndex]*containerState, truckPos map[problem.TruckIndex]problem.PointIndex) (*problem.Data, error) {
	data := problem.New(base.Variant, h)
	data.RoundingPolicy = base.RoundingPolicy
	data.Cost = base.Cost
	data.Distance = base.Distance

	points := make([]problem.Point, len(base.Points))
	copy(points, base.Points)
	for i := range points {
		if points[i].Kind != problem.KindContainer {
			continue
		}
		st := states[problem.PointIndex(i)]
		c := points[i].Container

		volDemand := append([]float64(nil), c.ForecastVolumeDemand[day:day+h]...)
		wtDemand := append([]float64(nil), c.ForecastWeightDemand[day:day+h]...)
		levelDemand := append([]float64(nil), c.ForecastLevelDemand[day:day+h]...)

		c.InitialVolumeLoad = st.volumeLoad
		c.InitialWeightLoad = st.weightLoad
		if c.Volume > 0 {
			c.InitialLevelPct = clampPct(st.volumeLoad / c.Volume * 100)
		}
		c.ForecastVolumeDemand = volDemand
		c.ForecastWeightDemand = wtDemand
		c.ForecastLevelDemand = levelDemand
		c.Tail = forecast.BuildTailTables(provider, points[i].ID, h, c.EffectiveVolume, st.volumeLoad, volDemand)

		points[i].Container = c
	}
	data.Points = points

	trucks := make([]problem.Truck, len(base.Trucks))
	copy(trucks, base.Trucks)
	for i := range trucks {
		trucks[i].Available = append([]bool(nil), base.Trucks[i].Available[day:day+h]...)
		trucks[i].RequiredReturnHome = append([]bool(nil), base.Trucks[i].RequiredReturnHome[day:day+h]...)
		if pos, ok := truckPos[problem.TruckIndex(i)]; ok {
			trucks[i].CurrentStartingPoint = pos
		}
	}
	data.Trucks = trucks

	if err := data.Validate(); err != nil {
		return nil, err
	}
	return data, nil
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// commitRollover folds a finished rollover's day-0 outcome back into the
// carried-forward state (spec §4.8 step 4): containers visited on day 0
// record day as their most recent visit, every container's load for the
// next rollover's day 0 is read directly off the committed schedule's
// Tracker at day 1 (which already reflects the reset-on-visit/grow-on-no-
// visit rule for the day just committed), and every truck that ran a tour
// on day 0 has its current starting point advanced to that tour's
// destination sentinel.
func commitRollover(sched *schedule.Schedule, day, h int, states map[problem.PointIndex]*containerState, truckPos map[problem.TruckIndex]problem.PointIndex) {
	trk := sched.Tracker()
	for pIdx, st := range states {
		if trk.Visited(pIdx, 0) {
			st.lastVisitDay = day
		}
		st.volumeLoad = trk.Volume(pIdx, 1)
		st.weightLoad = trk.Weight(pIdx, 1)
	}

	for truckIdx := range truckPos {
		t, _, ok := sched.TourOnDay(0, truckIdx)
		if !ok || len(t.Points) == 0 {
			continue
		}
		truckPos[truckIdx] = t.Points[len(t.Points)-1]
	}
}

// dayZeroCost sums the committed rollover's day-0 routing cost (fixed +
// distance + time + route-failure, with every soft-constraint violation
// weight zeroed since this is a reporting figure, not the engine's
// acceptance criterion) plus the attributed overflow cost of every
// container not visited on day 0 — the same split Schedule.Cost applies
// per-day, restricted to day 0 (spec §4.8 step 5 "accumulate day-0
// routing and overflow costs").
func dayZeroCost(sched *schedule.Schedule) float64 {
	var total float64
	for _, t := range sched.Tours {
		if t.Day != 0 {
			continue
		}
		total += t.Cost(tour.Weights{})
	}
	if sched.Tracker().Policy() == tracker.PolicyCollection {
		for _, c := range sched.Tracker().Containers() {
			if !sched.Tracker().Visited(c, 0) {
				total += sched.Tracker().AttributedOverflowCost(c, 0)
			}
		}
	}
	return total
}
