// Package partition assigns the global node-id space to worker ranks.
//
// Every map here is a pure function of (totalNodes, worldSize): each rank
// builds its own copy and uses it as a routing oracle without talking to
// any other rank.
package partition

import (
	"fmt"
	"strings"
)

// Strategy names a partitioning scheme
type Strategy string

const (
	// StrategyBlock assigns contiguous id ranges, which keeps range queries
	// against the partitioned store local.
	StrategyBlock Strategy = "block"
	// StrategyRoundRobin assigns id i to rank i mod P.
	StrategyRoundRobin Strategy = "round_robin"
)

// PartitionStrategy defines how node ids map to partitions
type PartitionStrategy interface {
	GetPartition(nodeID uint64) int
	GetPartitionCount() int
}

// IDRange is a half-open node id range [Start, End)
type IDRange struct {
	Start uint64
	End   uint64
}

// Len returns the number of ids in the range
func (r IDRange) Len() uint64 {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Contains reports whether id lies in the range
func (r IDRange) Contains(id uint64) bool {
	return id >= r.Start && id < r.End
}

func (r IDRange) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// NodeRankMap is the total function NodeID -> rank shared by every worker
type NodeRankMap interface {
	PartitionStrategy

	// Owner returns the rank owning nodeID, or ErrNodeOutOfRange.
	Owner(nodeID uint64) (int, error)
	// TotalNodes returns N.
	TotalNodes() uint64
	// Strategy returns the scheme the map was built with.
	Strategy() Strategy
	// OwnedCount returns how many ids rank owns.
	OwnedCount(rank int) uint64
	// ForEachOwned calls fn for every id owned by rank in ascending order
	// until fn returns false.
	ForEachOwned(rank int, fn func(nodeID uint64) bool)
	// Ranges returns the contiguous ranges owned by rank, or nil when the
	// strategy is not range based.
	Ranges(rank int) []IDRange
}

// Assign builds the node rank map for totalNodes ids over worldSize ranks.
// N < P is legal: the trailing ranks get empty blocks.
func Assign(totalNodes uint64, worldSize int, strategy Strategy) (NodeRankMap, error) {
	switch Strategy(strings.ToLower(string(strategy))) {
	case StrategyBlock, "":
		return NewBlockPartition(totalNodes, worldSize)
	case StrategyRoundRobin, "roundrobin", "round-robin":
		return NewRoundRobinPartition(totalNodes, worldSize)
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidPartition, strategy)
	}
}

func checkWorldSize(worldSize int) error {
	if worldSize < 1 {
		return fmt.Errorf("%w: world size %d must be at least 1", ErrInvalidPartition, worldSize)
	}
	return nil
}

// BlockPartition partitions [0, N) into P contiguous blocks. Rank i gets
// ceil(remaining / (P - i)) ids, so the first N mod P ranks hold one id
// more than the rest and the sizes always sum to N.
type BlockPartition struct {
	totalNodes     uint64
	partitionCount int
	base           uint64 // floor(N/P)
	extra          uint64 // N mod P; ranks below this hold base+1 ids
}

// NewBlockPartition creates a contiguous block partitioning
func NewBlockPartition(totalNodes uint64, worldSize int) (*BlockPartition, error) {
	if err := checkWorldSize(worldSize); err != nil {
		return nil, err
	}
	p := uint64(worldSize)
	return &BlockPartition{
		totalNodes:     totalNodes,
		partitionCount: worldSize,
		base:           totalNodes / p,
		extra:          totalNodes % p,
	}, nil
}

// Block returns the id range owned by rank
func (bp *BlockPartition) Block(rank int) IDRange {
	if rank < 0 || rank >= bp.partitionCount {
		return IDRange{}
	}
	r := uint64(rank)
	var start uint64
	if r < bp.extra {
		start = r * (bp.base + 1)
	} else {
		start = bp.extra*(bp.base+1) + (r-bp.extra)*bp.base
	}
	size := bp.base
	if r < bp.extra {
		size++
	}
	return IDRange{Start: start, End: start + size}
}

// BlockSizes returns the size of every block in rank order
func (bp *BlockPartition) BlockSizes() []uint64 {
	sizes := make([]uint64, bp.partitionCount)
	for r := range sizes {
		sizes[r] = bp.Block(r).Len()
	}
	return sizes
}

// GetPartition returns the owning rank, or -1 for ids outside [0, N)
func (bp *BlockPartition) GetPartition(nodeID uint64) int {
	rank, err := bp.Owner(nodeID)
	if err != nil {
		return -1
	}
	return rank
}

// Owner returns the rank owning nodeID
func (bp *BlockPartition) Owner(nodeID uint64) (int, error) {
	if nodeID >= bp.totalNodes {
		return -1, fmt.Errorf("%w: %d not in [0,%d)", ErrNodeOutOfRange, nodeID, bp.totalNodes)
	}
	wide := bp.extra * (bp.base + 1)
	if nodeID < wide {
		return int(nodeID / (bp.base + 1)), nil
	}
	// base > 0 here: with base == 0 every id is below wide
	return int(bp.extra + (nodeID-wide)/bp.base), nil
}

// GetPartitionCount returns total number of partitions
func (bp *BlockPartition) GetPartitionCount() int {
	return bp.partitionCount
}

func (bp *BlockPartition) TotalNodes() uint64 { return bp.totalNodes }
func (bp *BlockPartition) Strategy() Strategy { return StrategyBlock }

func (bp *BlockPartition) OwnedCount(rank int) uint64 {
	return bp.Block(rank).Len()
}

func (bp *BlockPartition) ForEachOwned(rank int, fn func(nodeID uint64) bool) {
	block := bp.Block(rank)
	for id := block.Start; id < block.End; id++ {
		if !fn(id) {
			return
		}
	}
}

func (bp *BlockPartition) Ranges(rank int) []IDRange {
	block := bp.Block(rank)
	if block.Len() == 0 {
		return nil
	}
	return []IDRange{block}
}

// RoundRobinPartition assigns id i to rank i mod P
type RoundRobinPartition struct {
	totalNodes     uint64
	partitionCount int
}

// NewRoundRobinPartition creates a round-robin partitioning
func NewRoundRobinPartition(totalNodes uint64, worldSize int) (*RoundRobinPartition, error) {
	if err := checkWorldSize(worldSize); err != nil {
		return nil, err
	}
	return &RoundRobinPartition{
		totalNodes:     totalNodes,
		partitionCount: worldSize,
	}, nil
}

// GetPartition returns the owning rank, or -1 for ids outside [0, N)
func (rp *RoundRobinPartition) GetPartition(nodeID uint64) int {
	if nodeID >= rp.totalNodes {
		return -1
	}
	return int(nodeID % uint64(rp.partitionCount))
}

func (rp *RoundRobinPartition) Owner(nodeID uint64) (int, error) {
	if nodeID >= rp.totalNodes {
		return -1, fmt.Errorf("%w: %d not in [0,%d)", ErrNodeOutOfRange, nodeID, rp.totalNodes)
	}
	return int(nodeID % uint64(rp.partitionCount)), nil
}

func (rp *RoundRobinPartition) GetPartitionCount() int { return rp.partitionCount }
func (rp *RoundRobinPartition) TotalNodes() uint64     { return rp.totalNodes }
func (rp *RoundRobinPartition) Strategy() Strategy     { return StrategyRoundRobin }

func (rp *RoundRobinPartition) OwnedCount(rank int) uint64 {
	if rank < 0 || rank >= rp.partitionCount {
		return 0
	}
	p, r := uint64(rp.partitionCount), uint64(rank)
	if r >= rp.totalNodes {
		return 0
	}
	return (rp.totalNodes-r-1)/p + 1
}

func (rp *RoundRobinPartition) ForEachOwned(rank int, fn func(nodeID uint64) bool) {
	if rank < 0 || rank >= rp.partitionCount {
		return
	}
	for id := uint64(rank); id < rp.totalNodes; id += uint64(rp.partitionCount) {
		if !fn(id) {
			return
		}
	}
}

func (rp *RoundRobinPartition) Ranges(rank int) []IDRange { return nil }
