package cluster

import (
	"testing"

	"github.com/logistics-labs/alns-core/internal/problem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gridData() *problem.Data {
	d := problem.New(problem.VariantIRP, 1)
	d.Points = make([]problem.Point, 6)
	for i := range d.Points {
		d.Points[i] = problem.Point{ID: "p", Kind: problem.KindContainer, DIndex: i}
	}
	d.Distance = [][]float64{
		{0, 1, 2, 10, 11, 12},
		{1, 0, 1, 10, 11, 12},
		{2, 1, 0, 10, 11, 12},
		{10, 10, 10, 0, 1, 2},
		{11, 11, 11, 1, 0, 1},
		{12, 12, 12, 2, 1, 0},
	}
	return d
}

func TestClusters_SplitsIntoTwoGroups(t *testing.T) {
	d := gridData()
	containers := []problem.PointIndex{0, 1, 2, 3, 4, 5}
	groups, err := Clusters(d, containers, 2)
	require.NoError(t, err)
	assert.Len(t, groups, 2)

	total := 0
	for _, g := range groups {
		total += len(g)
	}
	assert.Equal(t, 6, total)
}

func TestClusters_SingleContainer(t *testing.T) {
	d := gridData()
	groups, err := Clusters(d, []problem.PointIndex{0}, 2)
	require.NoError(t, err)
	assert.Len(t, groups, 1)
	assert.Len(t, groups[0], 1)
}

func TestClusters_EmptyInput(t *testing.T) {
	d := gridData()
	groups, err := Clusters(d, nil, 2)
	require.NoError(t, err)
	assert.Nil(t, groups)
}

func TestClusters_KClampedToContainerCount(t *testing.T) {
	d := gridData()
	groups, err := Clusters(d, []problem.PointIndex{0, 1}, 5)
	require.NoError(t, err)
	assert.Len(t, groups, 2)
}
