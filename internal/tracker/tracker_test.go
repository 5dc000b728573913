package tracker

import (
	"math/rand"
	"testing"

	"github.com/logistics-labs/alns-core/internal/problem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testData(horizon int) *problem.Data {
	d := problem.New(problem.VariantIRP, horizon)
	d.Cost = problem.CostParams{EmergencyCost: 50, OverflowCost: 10}
	tail := problem.NewTailTables(horizon)
	tail.UStart = 0.1
	for i := range tail.UZero {
		tail.UZero[i] = 0.05
	}
	for i := range tail.CStart {
		tail.CStart[i] = 0.02
	}
	for day := range tail.CZero {
		for gap := range tail.CZero[day] {
			tail.CZero[day][gap] = 0.03
		}
	}
	d.Points = []problem.Point{
		{ID: "depot", Kind: problem.KindStartingPoint, DIndex: 0},
		{
			ID: "c1", Kind: problem.KindContainer, DIndex: 1,
			Container: problem.ContainerAttrs{
				Volume: 100, EffectiveVolume: 90,
				InitialVolumeLoad: 10, InitialWeightLoad: 5,
				ForecastVolumeDemand: repeat(horizon, 20),
				ForecastWeightDemand: repeat(horizon, 10),
				HoldingCost:          0.5,
				Tail:                 tail,
			},
		},
	}
	d.Trucks = []problem.Truck{{ID: "t1", FlexibleStartingPoints: []problem.PointIndex{0},
		Available: make([]bool, horizon), RequiredReturnHome: make([]bool, horizon)}}
	d.Distance = [][]float64{{0, 1}, {1, 0}}
	return d
}

func repeat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestNew_IndexesContainers(t *testing.T) {
	d := testData(5)
	tr, err := New(d, PolicyCollection)
	require.NoError(t, err)
	assert.Equal(t, 1, len(tr.containers))
}

func TestInit_CollectionGrowsLoad(t *testing.T) {
	d := testData(5)
	tr, err := New(d, PolicyCollection)
	require.NoError(t, err)
	require.NoError(t, tr.Init())

	c1 := problem.PointIndex(1)
	assert.Equal(t, 10.0, tr.Volume(c1, 0))
	assert.Equal(t, 30.0, tr.Volume(c1, 1))
	assert.Equal(t, 50.0, tr.Volume(c1, 2))
}

func TestInit_CollectionViolationAboveEffectiveVolume(t *testing.T) {
	d := testData(5)
	tr, err := New(d, PolicyCollection)
	require.NoError(t, err)
	require.NoError(t, tr.Init())

	c1 := problem.PointIndex(1)
	// day 4: 10 + 20*4 = 90, exactly at effective volume -> no violation
	assert.Equal(t, 0.0, tr.Violation(c1, 4))
	// day 5: 110, 20 over effective volume of 90
	assert.InDelta(t, 20.0, tr.Violation(c1, 5), 1e-9)
}

func TestInit_DistributionFallsWithDemand(t *testing.T) {
	d := testData(5)
	tr, err := New(d, PolicyDistribution)
	require.NoError(t, err)
	require.NoError(t, tr.Init())

	c1 := problem.PointIndex(1)
	assert.Equal(t, 10.0, tr.Volume(c1, 0))
	assert.Equal(t, -10.0, tr.Volume(c1, 1))
	assert.InDelta(t, 10.0, tr.Violation(c1, 1), 1e-9)
}

func TestUpdate_NonContainerIsNoop(t *testing.T) {
	d := testData(5)
	tr, err := New(d, PolicyCollection)
	require.NoError(t, err)
	require.NoError(t, tr.Init())
	assert.NoError(t, tr.Update(problem.PointIndex(0), 2, true))
}

func TestUpdate_VisitResetsLoadAndPropagates(t *testing.T) {
	d := testData(5)
	tr, err := New(d, PolicyCollection)
	require.NoError(t, err)
	require.NoError(t, tr.Init())

	c1 := problem.PointIndex(1)
	require.NoError(t, tr.Update(c1, 2, true))

	assert.True(t, tr.Visited(c1, 2))
	assert.Equal(t, 0.0, tr.Volume(c1, 2))
	assert.Equal(t, 20.0, tr.Volume(c1, 3))
}

func TestUpdate_RemovingVisitRestoresGrowth(t *testing.T) {
	d := testData(5)
	tr, err := New(d, PolicyCollection)
	require.NoError(t, err)
	require.NoError(t, tr.Init())

	c1 := problem.PointIndex(1)
	require.NoError(t, tr.Update(c1, 2, true))
	require.NoError(t, tr.Update(c1, 2, false))
	assert.False(t, tr.Visited(c1, 2))
}

func TestUpdate_InvalidDay(t *testing.T) {
	d := testData(5)
	tr, err := New(d, PolicyCollection)
	require.NoError(t, err)
	require.NoError(t, tr.Init())
	err = tr.Update(problem.PointIndex(1), 99, true)
	assert.Error(t, err)
}

func TestUnvisitedContainers(t *testing.T) {
	d := testData(5)
	tr, err := New(d, PolicyCollection)
	require.NoError(t, err)
	require.NoError(t, tr.Init())

	unvisited := tr.UnvisitedContainers(0)
	assert.Len(t, unvisited, 1)

	require.NoError(t, tr.Update(problem.PointIndex(1), 0, true))
	assert.Empty(t, tr.UnvisitedContainers(0))
}

func TestDaysSinceLastVisit(t *testing.T) {
	d := testData(5)
	tr, err := New(d, PolicyCollection)
	require.NoError(t, err)
	require.NoError(t, tr.Init())

	c1 := problem.PointIndex(1)
	require.NoError(t, tr.Update(c1, 1, true))
	assert.Equal(t, 2, tr.DaysSinceLastVisit(c1, 3))
	assert.Equal(t, 0, tr.DaysSinceLastVisit(c1, 1))
}

func TestHoldingCost(t *testing.T) {
	d := testData(5)
	tr, err := New(d, PolicyCollection)
	require.NoError(t, err)
	require.NoError(t, tr.Init())

	c1 := problem.PointIndex(1)
	assert.InDelta(t, 5.0, tr.HoldingCost(c1, 0), 1e-9)
}

func TestSimulate_Deterministic(t *testing.T) {
	d := testData(5)
	tr, err := New(d, PolicyCollection)
	require.NoError(t, err)
	require.NoError(t, tr.Init())

	require.NoError(t, tr.Simulate(nil, 0, false))
	c1 := problem.PointIndex(1)
	assert.Equal(t, 30.0, tr.Volume(c1, 1))
}

func TestSimulate_RandomizeRequiresRNG(t *testing.T) {
	d := testData(5)
	tr, err := New(d, PolicyCollection)
	require.NoError(t, err)
	require.NoError(t, tr.Init())
	assert.Error(t, tr.Simulate(nil, 1.0, true))
}

func TestSimulate_RandomizeWithRNG(t *testing.T) {
	d := testData(5)
	tr, err := New(d, PolicyCollection)
	require.NoError(t, err)
	require.NoError(t, tr.Init())
	rng := rand.New(rand.NewSource(42))
	assert.NoError(t, tr.Simulate(rng, 1.0, true))
}

func TestDepotLoad_ZeroUnderCollectionPolicy(t *testing.T) {
	d := testData(5)
	tr, err := New(d, PolicyCollection)
	require.NoError(t, err)
	require.NoError(t, tr.Init())
	assert.Equal(t, 0.0, tr.DepotLoad(0))
	assert.Equal(t, 0.0, tr.DepotViolation(0))
}
