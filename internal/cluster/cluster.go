// Package cluster implements the D10 cluster-removal destroy operator's
// support routine: partition a day's containers into k groups by cutting
// the k-1 heaviest edges of their minimum spanning tree.
package cluster

import (
	"fmt"
	"sort"

	"github.com/katalvlaran/lvlath/core"
	"github.com/katalvlaran/lvlath/prim_kruskal"

	"github.com/logistics-labs/alns-core/internal/problem"
	"github.com/logistics-labs/alns-core/pkg/apperror"
)

// weightScale converts a float64 distance into the int64 weight lvlath's
// edges require. Only relative edge order matters to Kruskal, so a fixed
// truncated scale is sufficient precision for clustering purposes.
const weightScale = 1e6

// Clusters partitions the given container points into k groups by
// building a complete weighted graph over them (edge weight = distance
// between the points' DIndex), computing its MST with
// prim_kruskal.Kruskal, then cutting the k-1 heaviest surviving MST edges.
// k is clamped into [2, len(containers)].
func Clusters(data *problem.Data, containers []problem.PointIndex, k int) ([][]problem.PointIndex, error) {
	if k < 2 {
		k = 2
	}
	if len(containers) == 0 {
		return nil, nil
	}
	if k > len(containers) {
		k = len(containers)
	}
	if len(containers) == 1 {
		return [][]problem.PointIndex{containers}, nil
	}

	g := core.NewGraph(core.WithWeighted(), core.WithDirected(false))
	vertexID := func(p problem.PointIndex) string { return fmt.Sprintf("p%d", p) }
	for _, p := range containers {
		if err := g.AddVertex(vertexID(p)); err != nil {
			return nil, apperror.Wrap(err, apperror.CodeInternal, "adding cluster vertex")
		}
	}
	for i := 0; i < len(containers); i++ {
		for j := i + 1; j < len(containers); j++ {
			d := data.DistanceBetween(containers[i], containers[j])
			w := int64(d * weightScale)
			if _, err := g.AddEdge(vertexID(containers[i]), vertexID(containers[j]), w); err != nil {
				return nil, apperror.Wrap(err, apperror.CodeInternal, "adding cluster edge")
			}
		}
	}

	mst, _, err := prim_kruskal.Kruskal(g)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeInternal, "computing MST for clustering")
	}

	sort.Slice(mst, func(i, j int) bool { return mst[i].Weight > mst[j].Weight })
	cut := k - 1
	if cut > len(mst) {
		cut = len(mst)
	}
	kept := mst[cut:]

	parent := make(map[string]string, len(containers))
	for _, p := range containers {
		parent[vertexID(p)] = vertexID(p)
	}
	var find func(string) string
	find = func(u string) string {
		if parent[u] != u {
			parent[u] = find(parent[u])
		}
		return parent[u]
	}
	union := func(u, v string) {
		ru, rv := find(u), find(v)
		if ru != rv {
			parent[ru] = rv
		}
	}
	for _, e := range kept {
		union(e.From, e.To)
	}

	groups := make(map[string][]problem.PointIndex)
	for _, p := range containers {
		root := find(vertexID(p))
		groups[root] = append(groups[root], p)
	}

	out := make([][]problem.PointIndex, 0, len(groups))
	for _, g := range groups {
		out = append(out, g)
	}
	return out, nil
}
