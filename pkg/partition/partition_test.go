package partition

import (
	"errors"
	"testing"
)

// --- BlockPartition Tests ---

func TestNewBlockPartition(t *testing.T) {
	tests := []struct {
		name       string
		totalNodes uint64
		worldSize  int
		wantErr    bool
	}{
		{"single rank", 10, 1, false},
		{"even split", 12, 4, false},
		{"uneven split", 10, 3, false},
		{"fewer nodes than ranks", 2, 5, false},
		{"empty graph", 0, 3, false},
		{"zero ranks", 10, 0, true},
		{"negative ranks", 10, -2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bp, err := NewBlockPartition(tt.totalNodes, tt.worldSize)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPartition) {
					t.Fatalf("err = %v, want ErrInvalidPartition", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBlockPartition failed: %v", err)
			}
			if bp.GetPartitionCount() != tt.worldSize {
				t.Errorf("GetPartitionCount() = %d, want %d", bp.GetPartitionCount(), tt.worldSize)
			}
		})
	}
}

func TestBlockPartition_RemainderPolicy(t *testing.T) {
	tests := []struct {
		totalNodes uint64
		worldSize  int
		want       []uint64
	}{
		{10, 3, []uint64{4, 3, 3}},
		{4, 2, []uint64{2, 2}},
		{11, 4, []uint64{3, 3, 3, 2}},
		{2, 4, []uint64{1, 1, 0, 0}},
		{0, 2, []uint64{0, 0}},
		{7, 1, []uint64{7}},
	}

	for _, tt := range tests {
		bp, err := NewBlockPartition(tt.totalNodes, tt.worldSize)
		if err != nil {
			t.Fatalf("NewBlockPartition(%d, %d) failed: %v", tt.totalNodes, tt.worldSize, err)
		}
		got := bp.BlockSizes()
		if len(got) != len(tt.want) {
			t.Fatalf("BlockSizes(%d, %d) = %v, want %v", tt.totalNodes, tt.worldSize, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("BlockSizes(%d, %d) = %v, want %v", tt.totalNodes, tt.worldSize, got, tt.want)
				break
			}
		}
	}
}

func TestBlockPartition_Blocks(t *testing.T) {
	bp, _ := NewBlockPartition(10, 3)

	want := []IDRange{{0, 4}, {4, 7}, {7, 10}}
	for r, w := range want {
		if got := bp.Block(r); got != w {
			t.Errorf("Block(%d) = %v, want %v", r, got, w)
		}
	}

	if got := bp.Block(3); got.Len() != 0 {
		t.Errorf("Block(3) = %v, want empty", got)
	}
	if got := bp.Block(-1); got.Len() != 0 {
		t.Errorf("Block(-1) = %v, want empty", got)
	}
}

func TestBlockPartition_Owner(t *testing.T) {
	bp, _ := NewBlockPartition(10, 3)

	tests := []struct {
		nodeID uint64
		want   int
	}{
		{0, 0}, {3, 0}, {4, 1}, {6, 1}, {7, 2}, {9, 2},
	}
	for _, tt := range tests {
		got, err := bp.Owner(tt.nodeID)
		if err != nil {
			t.Fatalf("Owner(%d) failed: %v", tt.nodeID, err)
		}
		if got != tt.want {
			t.Errorf("Owner(%d) = %d, want %d", tt.nodeID, got, tt.want)
		}
		if bp.GetPartition(tt.nodeID) != tt.want {
			t.Errorf("GetPartition(%d) = %d, want %d", tt.nodeID, bp.GetPartition(tt.nodeID), tt.want)
		}
	}

	if _, err := bp.Owner(10); !errors.Is(err, ErrNodeOutOfRange) {
		t.Errorf("Owner(10) err = %v, want ErrNodeOutOfRange", err)
	}
	if bp.GetPartition(^uint64(0)) != -1 {
		t.Error("GetPartition(max) should be -1")
	}
}

func TestBlockPartition_OwnerMatchesBlocks(t *testing.T) {
	for _, tc := range []struct {
		n uint64
		p int
	}{{1, 1}, {5, 7}, {100, 7}, {1000, 13}, {64, 8}} {
		bp, _ := NewBlockPartition(tc.n, tc.p)
		for r := 0; r < tc.p; r++ {
			bp.ForEachOwned(r, func(id uint64) bool {
				if owner := bp.GetPartition(id); owner != r {
					t.Errorf("N=%d P=%d: node %d in block %d but Owner = %d", tc.n, tc.p, id, r, owner)
				}
				return true
			})
		}
	}
}

func TestBlockPartition_Ranges(t *testing.T) {
	bp, _ := NewBlockPartition(2, 4)

	if got := bp.Ranges(0); len(got) != 1 || got[0] != (IDRange{0, 1}) {
		t.Errorf("Ranges(0) = %v", got)
	}
	if got := bp.Ranges(3); got != nil {
		t.Errorf("Ranges(3) = %v, want nil for empty block", got)
	}
}

// --- RoundRobinPartition Tests ---

func TestRoundRobinPartition(t *testing.T) {
	rp, err := NewRoundRobinPartition(10, 3)
	if err != nil {
		t.Fatalf("NewRoundRobinPartition failed: %v", err)
	}

	wantCounts := []uint64{4, 3, 3}
	for r, want := range wantCounts {
		if got := rp.OwnedCount(r); got != want {
			t.Errorf("OwnedCount(%d) = %d, want %d", r, got, want)
		}

		var seen uint64
		rp.ForEachOwned(r, func(id uint64) bool {
			if int(id%3) != r {
				t.Errorf("ForEachOwned(%d) yielded %d", r, id)
			}
			seen++
			return true
		})
		if seen != want {
			t.Errorf("ForEachOwned(%d) yielded %d ids, want %d", r, seen, want)
		}
	}

	if rp.Ranges(0) != nil {
		t.Error("round robin should not report ranges")
	}
	if _, err := rp.Owner(10); !errors.Is(err, ErrNodeOutOfRange) {
		t.Errorf("Owner(10) err = %v, want ErrNodeOutOfRange", err)
	}

	small, _ := NewRoundRobinPartition(2, 5)
	if small.OwnedCount(4) != 0 {
		t.Errorf("OwnedCount(4) = %d, want 0", small.OwnedCount(4))
	}
}

func TestForEachOwned_StopsEarly(t *testing.T) {
	bp, _ := NewBlockPartition(100, 2)
	visited := 0
	bp.ForEachOwned(0, func(uint64) bool {
		visited++
		return visited < 5
	})
	if visited != 5 {
		t.Errorf("visited = %d, want 5", visited)
	}
}

// --- Assign Tests ---

func TestAssign(t *testing.T) {
	tests := []struct {
		strategy Strategy
		want     Strategy
		wantErr  bool
	}{
		{"", StrategyBlock, false},
		{StrategyBlock, StrategyBlock, false},
		{StrategyRoundRobin, StrategyRoundRobin, false},
		{"Round-Robin", StrategyRoundRobin, false},
		{"hash", "", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			m, err := Assign(10, 3, tt.strategy)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPartition) {
					t.Fatalf("err = %v, want ErrInvalidPartition", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Assign failed: %v", err)
			}
			if m.Strategy() != tt.want {
				t.Errorf("Strategy() = %q, want %q", m.Strategy(), tt.want)
			}
			if m.TotalNodes() != 10 {
				t.Errorf("TotalNodes() = %d, want 10", m.TotalNodes())
			}
		})
	}
}

func TestAssign_IdenticalAcrossCalls(t *testing.T) {
	a, _ := Assign(1_000_003, 17, StrategyBlock)
	b, _ := Assign(1_000_003, 17, StrategyBlock)
	for _, id := range []uint64{0, 1, 58_823, 58_824, 500_000, 1_000_002} {
		if a.GetPartition(id) != b.GetPartition(id) {
			t.Errorf("maps disagree on node %d", id)
		}
	}
}

// --- Metrics Tests ---

func TestComputePartitionMetrics(t *testing.T) {
	bp, _ := NewBlockPartition(12, 4)
	pm := ComputePartitionMetrics(bp)

	if len(pm.PartitionSizes) != 4 {
		t.Fatalf("PartitionSizes = %v", pm.PartitionSizes)
	}
	if pm.LoadBalance != 1.0 {
		t.Errorf("LoadBalance = %f, want 1.0 for an even split", pm.LoadBalance)
	}

	skewed, _ := NewBlockPartition(2, 4)
	if got := ComputePartitionMetrics(skewed).LoadBalance; got >= 1.0 || got <= 0 {
		t.Errorf("LoadBalance = %f, want in (0,1) for a skewed split", got)
	}
}

func TestPartitionMetrics_SetEdgeCuts(t *testing.T) {
	bp, _ := NewBlockPartition(4, 2)
	pm := ComputePartitionMetrics(bp)

	pm.SetEdgeCuts([]uint64{2, 2}, 8)
	if pm.CutRatio != 0.5 {
		t.Errorf("CutRatio = %f, want 0.5", pm.CutRatio)
	}

	pm.SetEdgeCuts([]uint64{0, 0}, 0)
	if pm.CutRatio != 0 {
		t.Errorf("CutRatio = %f, want 0", pm.CutRatio)
	}
}
