package rolling

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logistics-labs/alns-core/internal/engine"
	"github.com/logistics-labs/alns-core/internal/forecast"
	"github.com/logistics-labs/alns-core/internal/penalty"
	"github.com/logistics-labs/alns-core/internal/problem"
	"github.com/logistics-labs/alns-core/internal/schedule"
)

// newTestData builds an IRP instance of the given horizon: one depot, two containers,
// one dump, a single truck. A zero-sigma GaussianProvider makes overflow
// probabilities degenerate (0 or 1) so rollover commits are easy to reason
// about.
func newTestData(t *testing.T, horizon int) *problem.Data {
	t.Helper()
	data := problem.New(problem.VariantIRP, horizon)
	demand := make([]float64, horizon)
	for i := range demand {
		demand[i] = 5
	}

	mkContainer := func(id string) problem.Point {
		return problem.Point{
			ID:      id,
			Kind:    problem.KindContainer,
			TWUpper: 24,
			Container: problem.ContainerAttrs{
				Volume:               100,
				EffectiveVolume:      80,
				FlowSpecificWeight:   1,
				InitialVolumeLoad:    10,
				InitialWeightLoad:    10,
				ForecastVolumeDemand: append([]float64(nil), demand...),
				ForecastWeightDemand: append([]float64(nil), demand...),
				ForecastLevelDemand:  append([]float64(nil), demand...),
				HoldingCost:          0.01,
				Tail:                 problem.NewTailTables(horizon),
			},
		}
	}

	data.Points = []problem.Point{
		{ID: "depot", Kind: problem.KindStartingPoint, TWUpper: 24},
		mkContainer("c1"),
		mkContainer("c2"),
		{ID: "dump", Kind: problem.KindDump, TWUpper: 24},
	}
	for i := range data.Points {
		data.Points[i].DIndex = i
	}
	data.Distance = [][]float64{
		{0, 5, 8, 4},
		{5, 0, 3, 6},
		{8, 3, 0, 7},
		{4, 6, 7, 0},
	}
	data.Trucks = []problem.Truck{
		{
			ID:                     "truck1",
			VolumeCap:              1000,
			WeightCap:              1000,
			Speed:                  50,
			FixedCost:              10,
			DistanceCost:           1,
			TimeCost:               1,
			HomeStartingPoint:      0,
			CurrentStartingPoint:   0,
			FlexibleStartingPoints: []problem.PointIndex{0},
			Available:              repeat(true, horizon),
			RequiredReturnHome:     repeat(false, horizon),
		},
	}
	data.Cost = problem.CostParams{
		EmergencyCost:            50,
		OverflowCost:             20,
		RouteFailureMultiplier:   5,
		BackorderLambda:          1,
		ContainerViolationLambda: 1,
	}
	require.NoError(t, data.Validate())
	return data
}

func repeat(v bool, n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func testEngineParams() engine.Params {
	return engine.Params{
		InitialAcceptanceProbability: 0.5,
		CoolingFactor:                0.9,
		MinTemperature:               1e-3,
		MaxIterations:                100,
		SegmentLength:                10,
		ReheatingFactor:              1.5,
		ReheatingTriggerSegments:     3,
		ReactionRate:                 0.2,
		EnableLocalSearch:            true,
		Relatedness:                  schedule.RelatednessWeights{Distance: 1, TimeWindow: 0.5, Overflow: 0.5},
		PenaltyParams:                penalty.DefaultParams(),
		PenaltyInitial:               penalty.DefaultInitial(),
	}
}

func TestDriver_Run_ExecutesEveryRollover(t *testing.T) {
	data := newTestData(t, 6)
	d := New()
	params := Params{
		Config:       Config{HorizonLength: 3, Rollovers: 3},
		EngineParams: testEngineParams(),
		Provider:     forecast.NewGaussianProvider(),
	}
	res, err := d.Run(context.Background(), data, 11, params, nil)
	require.NoError(t, err)
	require.Len(t, res.Rollovers, 3)
	for i, r := range res.Rollovers {
		assert.Equal(t, i, r.Day)
		assert.False(t, r.Cancelled)
		assert.False(t, math.IsNaN(r.DayZeroCost))
		assert.False(t, math.IsInf(r.DayZeroCost, 0))
	}
	assert.False(t, math.IsNaN(res.TotalCost))
}

func TestDriver_Run_ShrinksFinalWindowToRemainingHorizon(t *testing.T) {
	data := newTestData(t, 4)
	d := New()
	params := Params{
		Config:       Config{HorizonLength: 3, Rollovers: 4},
		EngineParams: testEngineParams(),
		Provider:     forecast.NewGaussianProvider(),
	}
	res, err := d.Run(context.Background(), data, 3, params, nil)
	require.NoError(t, err)
	require.Len(t, res.Rollovers, 4)
	// Rollover 0 plans days [0,3), the full requested window; rollover 3
	// only has 1 day left (day 3 of a 4-day base), so it must plan a
	// shrunk horizon of length 1, not error out.
	assert.Equal(t, 3, res.Rollovers[0].Schedule.Data().Horizon)
	assert.Equal(t, 1, res.Rollovers[3].Schedule.Data().Horizon)
}

func TestDriver_Run_RequiresProvider(t *testing.T) {
	data := newTestData(t, 3)
	d := New()
	params := Params{Config: Config{HorizonLength: 3, Rollovers: 1}, EngineParams: testEngineParams()}
	_, err := d.Run(context.Background(), data, 1, params, nil)
	require.Error(t, err)
}

func TestDriver_Run_RejectsNonPositiveConfig(t *testing.T) {
	data := newTestData(t, 3)
	d := New()
	provider := forecast.NewGaussianProvider()

	_, err := d.Run(context.Background(), data, 1, Params{
		Config: Config{HorizonLength: 0, Rollovers: 1}, EngineParams: testEngineParams(), Provider: provider,
	}, nil)
	assert.Error(t, err)

	_, err = d.Run(context.Background(), data, 1, Params{
		Config: Config{HorizonLength: 3, Rollovers: 0}, EngineParams: testEngineParams(), Provider: provider,
	}, nil)
	assert.Error(t, err)
}

func TestDriver_Run_CancellationStopsBetweenRollovers(t *testing.T) {
	data := newTestData(t, 9)
	d := New()
	cancel := make(chan struct{})
	close(cancel)

	params := Params{
		Config:       Config{HorizonLength: 3, Rollovers: 3},
		EngineParams: testEngineParams(),
		Provider:     forecast.NewGaussianProvider(),
	}
	res, err := d.Run(context.Background(), data, 1, params, cancel)
	require.NoError(t, err)
	assert.Empty(t, res.Rollovers)
}

func TestDriver_Run_CarriesForwardTruckPosition(t *testing.T) {
	data := newTestData(t, 6)
	d := New()
	params := Params{
		Config:       Config{HorizonLength: 2, Rollovers: 3},
		EngineParams: testEngineParams(),
		Provider:     forecast.NewGaussianProvider(),
	}
	res, err := d.Run(context.Background(), data, 5, params, nil)
	require.NoError(t, err)
	require.Len(t, res.Rollovers, 3)
	// Every sub-instance's truck must start from a point in its flexible
	// set, i.e. the carried-forward position is always structurally valid.
	for _, r := range res.Rollovers {
		sub := r.Schedule.Data()
		truck := sub.Trucks[0]
		assert.True(t, truck.IsFlexibleStartingPoint(truck.CurrentStartingPoint) || truck.CurrentStartingPoint == truck.HomeStartingPoint)
	}
}
