package problem

import (
	"testing"

	"github.com/logistics-labs/alns-core/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validData(horizon int) *Data {
	d := New(VariantIRP, horizon)
	d.Points = []Point{
		{ID: "depot", Kind: KindStartingPoint, DIndex: 0},
		{
			ID: "c1", Kind: KindContainer, DIndex: 1,
			Container: ContainerAttrs{
				Volume: 100, EffectiveVolume: 90, InitialLevelPct: 20,
				ForecastLevelDemand:  make([]float64, horizon),
				ForecastVolumeDemand: make([]float64, horizon),
				ForecastWeightDemand: make([]float64, horizon),
			},
		},
		{ID: "dump", Kind: KindDump, DIndex: 2},
	}
	d.Trucks = []Truck{
		{
			ID: "t1", VolumeCap: 500, WeightCap: 1000,
			HomeStartingPoint:      0,
			FlexibleStartingPoints: []PointIndex{0},
			Available:              make([]bool, horizon),
			RequiredReturnHome:     make([]bool, horizon),
		},
	}
	d.Distance = [][]float64{
		{0, 5, 8},
		{5, 0, 3},
		{8, 3, 0},
	}
	return d
}

func TestValidate_OK(t *testing.T) {
	d := validData(7)
	assert.NoError(t, d.Validate())
}

func TestValidate_NilData(t *testing.T) {
	var d *Data
	err := d.Validate()
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeNilInput))
}

func TestValidate_BadHorizon(t *testing.T) {
	d := validData(7)
	d.Horizon = 0
	err := d.Validate()
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeInvalidHorizon))
	assert.True(t, apperror.IsCritical(err))
}

func TestValidate_NoTrucks(t *testing.T) {
	d := validData(7)
	d.Trucks = nil
	err := d.Validate()
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeMissingTruck))
}

func TestValidate_LevelOutOfRange(t *testing.T) {
	d := validData(7)
	d.Points[1].Container.InitialLevelPct = 150
	err := d.Validate()
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeInvalidPoint))
}

func TestValidate_EffectiveVolumeExceedsNominal(t *testing.T) {
	d := validData(7)
	d.Points[1].Container.EffectiveVolume = 200
	err := d.Validate()
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeInvalidPoint))
}

func TestValidate_ForecastLengthMismatch(t *testing.T) {
	d := validData(7)
	d.Points[1].Container.ForecastLevelDemand = make([]float64, 3)
	err := d.Validate()
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeInvalidPoint))
}

func TestValidate_ForecastSentinel(t *testing.T) {
	d := validData(7)
	d.Points[1].Container.ForecastLevelDemand[2] = ForecastSentinel
	err := d.Validate()
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeForecastSentinel))
}

func TestValidate_EmptyContainerSet(t *testing.T) {
	d := validData(7)
	d.Points = d.Points[:1]
	err := d.Validate()
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeEmptyContainerSet))
}

func TestValidate_TruckMissingFlexibleSet(t *testing.T) {
	d := validData(7)
	d.Trucks[0].FlexibleStartingPoints = nil
	err := d.Validate()
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeMissingTruck))
}

func TestValidate_TruckHomeNotInFlexibleSet(t *testing.T) {
	d := validData(7)
	d.Trucks[0].FlexibleStartingPoints = []PointIndex{2}
	err := d.Validate()
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeMissingTruck))
}

func TestValidate_TruckBitVectorLengthMismatch(t *testing.T) {
	d := validData(7)
	d.Trucks[0].Available = make([]bool, 3)
	err := d.Validate()
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeMissingTruck))
}

func TestDistanceBetween_AppliesRoundingPolicy(t *testing.T) {
	d := validData(7)
	d.RoundingPolicy = func(v float64) float64 { return v * 2 }
	assert.Equal(t, 10.0, d.DistanceBetween(0, 1))
}

func TestPoint_IsAccessibleBy(t *testing.T) {
	p := Point{Accessible: []bool{true, false, true}}
	assert.True(t, p.IsAccessibleBy(0))
	assert.False(t, p.IsAccessibleBy(1))
	assert.False(t, p.IsAccessibleBy(5))

	unrestricted := Point{}
	assert.True(t, unrestricted.IsAccessibleBy(9))
}

func TestTruck_IsFlexibleStartingPoint(t *testing.T) {
	tr := Truck{FlexibleStartingPoints: []PointIndex{0, 3}}
	assert.True(t, tr.IsFlexibleStartingPoint(0))
	assert.True(t, tr.IsFlexibleStartingPoint(3))
	assert.False(t, tr.IsFlexibleStartingPoint(1))
}

func TestNewTailTables_Shape(t *testing.T) {
	tt := NewTailTables(5)
	assert.Len(t, tt.UZero, 6)
	assert.Len(t, tt.CStart, 6)
	assert.Len(t, tt.CZero, 6)
	assert.Len(t, tt.CZero[0], 6)
	assert.Len(t, tt.CZero[5], 1)
}

func TestVariant_String(t *testing.T) {
	assert.Equal(t, "IRP", VariantIRP.String())
	assert.Equal(t, "IRP-D", VariantIRPDistribution.String())
	assert.Equal(t, "VRP", VariantVRP.String())
	assert.Equal(t, "TSP", VariantTSP.String())
}

func TestPointKind_String(t *testing.T) {
	assert.Equal(t, "starting_point", KindStartingPoint.String())
	assert.Equal(t, "container", KindContainer.String())
	assert.Equal(t, "dump", KindDump.String())
}
