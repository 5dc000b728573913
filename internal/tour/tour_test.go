package tour

import (
	"math/rand"
	"testing"

	"github.com/logistics-labs/alns-core/internal/problem"
	"github.com/logistics-labs/alns-core/internal/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testData() *problem.Data {
	d := problem.New(problem.VariantIRP, 3)
	d.Points = []problem.Point{
		{ID: "depot", Kind: problem.KindStartingPoint, DIndex: 0, TWLower: 0, TWUpper: 100},
		{ID: "c1", Kind: problem.KindContainer, DIndex: 1, TWLower: 0, TWUpper: 100,
			Container: problem.ContainerAttrs{Volume: 10, EffectiveVolume: 9,
				ForecastVolumeDemand: make([]float64, 3), ForecastWeightDemand: make([]float64, 3),
				Tail: problem.NewTailTables(3)}},
		{ID: "c2", Kind: problem.KindContainer, DIndex: 2, TWLower: 0, TWUpper: 100,
			Container: problem.ContainerAttrs{Volume: 10, EffectiveVolume: 9,
				ForecastVolumeDemand: make([]float64, 3), ForecastWeightDemand: make([]float64, 3),
				Tail: problem.NewTailTables(3)}},
		{ID: "dump", Kind: problem.KindDump, DIndex: 3, TWLower: 0, TWUpper: 100},
	}
	d.Trucks = []problem.Truck{
		{ID: "t1", VolumeCap: 1000, WeightCap: 1000, Speed: 50,
			HomeStartingPoint: 0, CurrentStartingPoint: 0,
			FlexibleStartingPoints: []problem.PointIndex{0},
			Available:              make([]bool, 3), RequiredReturnHome: make([]bool, 3)},
	}
	d.Distance = [][]float64{
		{0, 5, 7, 10},
		{5, 0, 3, 4},
		{7, 3, 0, 4},
		{10, 4, 4, 0},
	}
	return d
}

func testTracker(t *testing.T, d *problem.Data) *tracker.Tracker {
	tr, err := tracker.New(d, tracker.PolicyCollection)
	require.NoError(t, err)
	require.NoError(t, tr.Init())
	return tr
}

func TestNew_SentinelledAtBothEnds(t *testing.T) {
	d := testData()
	tr := testTracker(t, d)
	tour := New(d, tr, 0, 0)
	assert.Equal(t, 2, tour.Len())
	assert.Equal(t, problem.PointIndex(0), tour.Points[0])
	assert.Equal(t, problem.PointIndex(0), tour.Points[1])
}

func TestInsertAndRemove(t *testing.T) {
	d := testData()
	tr := testTracker(t, d)
	tour := New(d, tr, 0, 0)

	tour.Insert(1, problem.PointIndex(1))
	assert.Equal(t, 3, tour.Len())
	assert.Equal(t, problem.PointIndex(1), tour.Points[1])

	removed := tour.Remove(1)
	assert.Equal(t, problem.PointIndex(1), removed)
	assert.Equal(t, 2, tour.Len())
}

func TestSwap(t *testing.T) {
	d := testData()
	tr := testTracker(t, d)
	tour := New(d, tr, 0, 0)
	tour.Insert(1, 1)
	tour.Insert(2, 2)
	tour.Swap(1, 2)
	assert.Equal(t, problem.PointIndex(2), tour.Points[1])
	assert.Equal(t, problem.PointIndex(1), tour.Points[2])
}

func TestSetOriginAndDestination(t *testing.T) {
	d := testData()
	tr := testTracker(t, d)
	tour := New(d, tr, 0, 0)
	tour.SetOriginStartingPoint(0)
	tour.SetDestinationStartingPoint(0)
	assert.Equal(t, problem.PointIndex(0), tour.Points[0])
	assert.Equal(t, problem.PointIndex(0), tour.Points[tour.Len()-1])
}

func TestBestContainerInsertion(t *testing.T) {
	d := testData()
	tr := testTracker(t, d)
	tour := New(d, tr, 0, 0)
	pos, delta, ok := tour.BestContainerInsertion(1)
	require.True(t, ok)
	assert.Equal(t, 1, pos)
	assert.InDelta(t, 10.0, delta, 1e-9) // 5+5-0
}

func TestWorstContainerRemoval(t *testing.T) {
	d := testData()
	tr := testTracker(t, d)
	tour := New(d, tr, 0, 0)
	tour.Insert(1, 1)
	tour.Insert(2, 2)

	pos, saving, ok := tour.WorstContainerRemoval()
	require.True(t, ok)
	assert.True(t, saving >= 0)
	assert.True(t, pos == 1 || pos == 2)
}

func TestContainerInsertionRegret(t *testing.T) {
	d := testData()
	tr := testTracker(t, d)
	tour := New(d, tr, 0, 0)
	tour.Insert(1, 3) // dump at position 1, gives two candidate slots
	pos, regret, ok := tour.ContainerInsertionRegret(1, 2)
	require.True(t, ok)
	assert.True(t, regret >= 0)
	assert.True(t, pos >= 1)
}

func TestCost_IncludesFixedDistanceAndTime(t *testing.T) {
	d := testData()
	d.Trucks[0].FixedCost = 100
	d.Trucks[0].DistanceCost = 1
	d.Trucks[0].TimeCost = 1
	tr := testTracker(t, d)
	tour := New(d, tr, 0, 0)
	cost := tour.Cost(Weights{})
	assert.True(t, cost >= 100)
}

func TestFeasibility_VolumeViolation(t *testing.T) {
	d := testData()
	d.Trucks[0].VolumeCap = 5
	tr := testTracker(t, d)
	tour := New(d, tr, 0, 0)
	tour.Insert(1, 1)
	tour.Insert(2, 2)
	f := tour.Feasibility()
	assert.True(t, f.VolumeViolation > 0)
}

func TestFeasibility_HomeDepotViolation(t *testing.T) {
	d := testData()
	d.Trucks[0].RequiredReturnHome[0] = true
	tr := testTracker(t, d)
	tour := New(d, tr, 0, 0)
	tour.SetDestinationStartingPoint(0)
	f := tour.Feasibility()
	assert.Equal(t, 0.0, f.HomeDepotViolation)
}

func TestLocalSearch_DoesNotPanic(t *testing.T) {
	d := testData()
	tr := testTracker(t, d)
	tour := New(d, tr, 0, 0)
	tour.Insert(1, 2)
	tour.Insert(1, 1)
	tour.LocalSearch(Weights{}, 5)
}

func TestRandomNeighborhoodSize_WithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		size := RandomNeighborhoodSize(rng, 10)
		assert.True(t, size >= 1 && size <= 10)
	}
}

func TestRandomNeighborhoodSize_ZeroN(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	assert.Equal(t, 0, RandomNeighborhoodSize(rng, 0))
}

func TestClone_IndependentPointsSlice(t *testing.T) {
	d := testData()
	tr := testTracker(t, d)
	tour := New(d, tr, 0, 0)
	tour.Insert(1, 1)
	clone := tour.Clone()
	clone.Insert(1, 2)
	assert.NotEqual(t, tour.Len(), clone.Len())
}
