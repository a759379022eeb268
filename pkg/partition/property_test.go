package partition

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestBlockInvariants checks that blocks tile [0, N) exactly for arbitrary (N, P)
func TestBlockInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("block sizes sum to N", prop.ForAll(
		func(n uint64, p int) bool {
			bp, err := NewBlockPartition(n, p)
			if err != nil {
				return false
			}
			var sum uint64
			for _, size := range bp.BlockSizes() {
				sum += size
			}
			return sum == n
		},
		gen.UInt64Range(0, 1<<40),
		gen.IntRange(1, 4096),
	))

	properties.Property("blocks are adjacent and cover [0, N)", prop.ForAll(
		func(n uint64, p int) bool {
			bp, err := NewBlockPartition(n, p)
			if err != nil {
				return false
			}
			next := uint64(0)
			for r := 0; r < p; r++ {
				block := bp.Block(r)
				if block.Start != next {
					return false
				}
				next = block.End
			}
			return next == n
		},
		gen.UInt64Range(0, 1<<40),
		gen.IntRange(1, 4096),
	))

	properties.Property("block sizes differ by at most one", prop.ForAll(
		func(n uint64, p int) bool {
			bp, _ := NewBlockPartition(n, p)
			sizes := bp.BlockSizes()
			return sizes[0]-sizes[len(sizes)-1] <= 1
		},
		gen.UInt64Range(0, 1<<40),
		gen.IntRange(1, 4096),
	))

	properties.TestingRun(t)
}

// TestOwnershipInvariants checks that every id has exactly one owner and
// that the owner's enumeration includes it
func TestOwnershipInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	for _, strategy := range []Strategy{StrategyBlock, StrategyRoundRobin} {
		strategy := strategy
		properties.Property(string(strategy)+": exactly one owner per id", prop.ForAll(
			func(n uint64, p int) bool {
				m, err := Assign(n, p, strategy)
				if err != nil {
					return false
				}
				owners := make([]int, n)
				for i := range owners {
					owners[i] = -1
				}
				for r := 0; r < p; r++ {
					ok := true
					m.ForEachOwned(r, func(id uint64) bool {
						if owners[id] != -1 {
							ok = false
							return false
						}
						owners[id] = r
						return true
					})
					if !ok {
						return false
					}
				}
				for id, r := range owners {
					if r == -1 || m.GetPartition(uint64(id)) != r {
						return false
					}
				}
				return true
			},
			gen.UInt64Range(0, 2000),
			gen.IntRange(1, 64),
		))
	}

	properties.TestingRun(t)
}
