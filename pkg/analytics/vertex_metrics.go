package analytics

import (
	"context"

	"github.com/dd0wney/cluso-connectome/pkg/logging"
	"github.com/dd0wney/cluso-connectome/pkg/partition"
)

// VertexMetrics are degree totals over the whole graph
type VertexMetrics struct {
	// TotalOut and TotalIn count directed edges by their owned endpoint;
	// both equal the number of distinct directed edges.
	TotalOut uint64
	TotalIn  uint64
	// TotalRefs is the sum of neighbor list lengths.
	TotalRefs uint64
	// Isolated counts nodes with no neighbor.
	Isolated  uint64
	MaxDegree uint64
	// MaxDegreeByRank and EdgeCutsByRank are indexed by rank.
	MaxDegreeByRank []uint64
	EdgeCutsByRank  []uint64

	Partition *partition.PartitionMetrics
}

// EdgeCuts returns the number of neighbor references owned by another rank
func (vm *VertexMetrics) EdgeCuts() uint64 {
	var n uint64
	for _, c := range vm.EdgeCutsByRank {
		n += c
	}
	return n
}

// ComputeVertexMetrics reduces the degree figures of every rank's table
// with one AllReduceSum. Per-rank figures travel in the rank's own slot.
func ComputeVertexMetrics(ctx context.Context, rc *RunContext, table *AdjacencyTable) (*VertexMetrics, error) {
	rank, size := rc.Rank(), rc.Size()

	var out, in, refs, isolated, cuts, maxDeg uint64
	for _, e := range table.Entries() {
		out += e.OutDegree
		in += e.InDegree
		refs += e.Degree()
		if e.Degree() == 0 {
			isolated++
		}
		maxDeg = max(maxDeg, e.Degree())
		for _, nb := range e.Neighbors {
			if !rc.owns(nb) {
				cuts++
			}
		}
	}

	values := make([]float64, 4+2*size)
	values[0] = float64(out)
	values[1] = float64(in)
	values[2] = float64(refs)
	values[3] = float64(isolated)
	values[4+rank] = float64(cuts)
	values[4+size+rank] = float64(maxDeg)

	sums, err := reduceFailed(ctx, rc, ComponentVertex, values, nil)
	if err != nil {
		return nil, err
	}

	vm := &VertexMetrics{
		TotalOut:        uint64(sums[0]),
		TotalIn:         uint64(sums[1]),
		TotalRefs:       uint64(sums[2]),
		Isolated:        uint64(sums[3]),
		EdgeCutsByRank:  make([]uint64, size),
		MaxDegreeByRank: make([]uint64, size),
	}
	for r := 0; r < size; r++ {
		vm.EdgeCutsByRank[r] = uint64(sums[4+r])
		vm.MaxDegreeByRank[r] = uint64(sums[4+size+r])
		vm.MaxDegree = max(vm.MaxDegree, vm.MaxDegreeByRank[r])
	}
	vm.Partition = partition.ComputePartitionMetrics(rc.Map)
	vm.Partition.SetEdgeCuts(vm.EdgeCutsByRank, vm.TotalRefs)

	rc.Logger.Debug("vertex metrics reduced",
		logging.Uint64("edges", vm.TotalOut),
		logging.Uint64("edge_cuts", vm.EdgeCuts()),
		logging.Uint64("max_degree", vm.MaxDegree))
	return vm, nil
}
