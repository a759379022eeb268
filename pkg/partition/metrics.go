package partition

import "math"

// PartitionMetrics contains partitioning quality metrics
type PartitionMetrics struct {
	PartitionSizes []uint64 // Nodes per partition
	EdgeCuts       []uint64 // Neighbor references owned by another partition, per partition
	LoadBalance    float64  // 0-1 (1 = perfect balance)
	CutRatio       float64  // Fraction of neighbor references that are cuts
}

// ComputePartitionMetrics derives size and balance figures from the map
// alone. Edge cuts need adjacency and are filled in with SetEdgeCuts.
func ComputePartitionMetrics(m NodeRankMap) *PartitionMetrics {
	partCount := m.GetPartitionCount()
	sizes := make([]uint64, partCount)
	for r := 0; r < partCount; r++ {
		sizes[r] = m.OwnedCount(r)
	}

	return &PartitionMetrics{
		PartitionSizes: sizes,
		EdgeCuts:       make([]uint64, partCount),
		LoadBalance:    loadBalance(sizes, m.TotalNodes()),
	}
}

// loadBalance maps the variance of partition sizes to (0, 1]
func loadBalance(sizes []uint64, total uint64) float64 {
	if len(sizes) == 0 || total == 0 {
		return 1.0
	}
	avg := float64(total) / float64(len(sizes))
	variance := 0.0
	for _, size := range sizes {
		diff := float64(size) - avg
		variance += diff * diff
	}
	variance /= float64(len(sizes))
	return 1.0 / (1.0 + variance/avg)
}

// SetEdgeCuts records per-partition cut counts and the global cut ratio.
// totalRefs is the number of neighbor references across all partitions.
func (pm *PartitionMetrics) SetEdgeCuts(cuts []uint64, totalRefs uint64) {
	pm.EdgeCuts = append(pm.EdgeCuts[:0], cuts...)
	var sum uint64
	for _, c := range cuts {
		sum += c
	}
	if totalRefs == 0 {
		pm.CutRatio = 0
		return
	}
	pm.CutRatio = math.Min(1.0, float64(sum)/float64(totalRefs))
}
