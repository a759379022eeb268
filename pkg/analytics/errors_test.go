package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dd0wney/cluso-connectome/pkg/comm"
	"github.com/dd0wney/cluso-connectome/pkg/partition"
	"github.com/dd0wney/cluso-connectome/pkg/store"
	"github.com/dd0wney/cluso-connectome/pkg/wire"
)

func TestAbortKindRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind wire.AbortKind
	}{
		{"store", fmt.Errorf("read: %w", store.ErrUnavailable), wire.AbortStoreUnavailable},
		{"ownership", ownershipError(1, ComponentDegrees, 7, "x"), wire.AbortOwnershipInconsistency},
		{"partition", partition.ErrInvalidPartition, wire.AbortInvalidPartition},
		{"range", partition.ErrNodeOutOfRange, wire.AbortNodeOutOfRange},
		{"timeout", comm.ErrCollectiveTimeout, wire.AbortCollectiveTimeout},
		{"other", errors.New("boom"), wire.AbortUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := abortKind(tt.err); got != tt.kind {
				t.Fatalf("abortKind = %v, want %v", got, tt.kind)
			}
			remote := newRemoteAbort(wire.DecodeAbort(wire.EncodeAbort(tt.kind, 2, tt.err.Error())))
			if tt.kind != wire.AbortUnknown {
				for _, sentinel := range []error{store.ErrUnavailable, ErrOwnershipInconsistency,
					partition.ErrInvalidPartition, partition.ErrNodeOutOfRange, comm.ErrCollectiveTimeout} {
					if errors.Is(tt.err, sentinel) && !errors.Is(remote, sentinel) {
						t.Errorf("remote abort lost %v", sentinel)
					}
				}
			} else if !errors.Is(remote, ErrRemoteFailure) {
				t.Errorf("unknown abort should unwrap to ErrRemoteFailure")
			}
			// a remote abort forwarded again keeps its kind
			if abortKind(remote) != tt.kind {
				t.Errorf("abortKind(remote) = %v, want %v", abortKind(remote), tt.kind)
			}
		})
	}
}

func TestRankError(t *testing.T) {
	err := ownershipError(3, ComponentClustering, 42, "node %d", 42)
	if !errors.Is(err, ErrOwnershipInconsistency) {
		t.Error("RankError should unwrap to its cause")
	}
	msg := err.Error()
	for _, part := range []string{"rank 3", ComponentClustering, "[42,43)"} {
		if !strings.Contains(msg, part) {
			t.Errorf("message %q lacks %q", msg, part)
		}
	}

	plain := &RankError{Rank: 1, Component: ComponentRun, Err: errors.New("x")}
	if plain.Error() != "rank 1 run: x" {
		t.Errorf("Error() = %q", plain.Error())
	}
}

func TestOwnedSpan(t *testing.T) {
	tests := []struct {
		name     string
		n        uint64
		size     int
		strategy partition.Strategy
		rank     int
		want     string
	}{
		{"block", 10, 3, partition.StrategyBlock, 1, "rank 1 degrees [4,7): x"},
		{"block last", 10, 3, partition.StrategyBlock, 2, "rank 2 degrees [7,10): x"},
		{"round robin", 10, 3, partition.StrategyRoundRobin, 1, "rank 1 degrees [1,8) step 3: x"},
		{"round robin single", 4, 3, partition.StrategyRoundRobin, 2, "rank 2 degrees [2,3): x"},
		{"empty", 2, 3, partition.StrategyBlock, 2, "rank 2 degrees: x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := partition.Assign(tt.n, tt.size, tt.strategy)
			if err != nil {
				t.Fatalf("Assign failed: %v", err)
			}
			re := &RankError{Rank: tt.rank, Component: ComponentDegrees, Err: errors.New("x")}
			re.Start, re.End, re.Stride = ownedSpan(m, tt.rank)
			if re.Error() != tt.want {
				t.Errorf("Error() = %q, want %q", re.Error(), tt.want)
			}
		})
	}
}

func TestRankError_TimeoutNamesRange(t *testing.T) {
	g, err := comm.NewLocalGroup(2, comm.WithTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewLocalGroup failed: %v", err)
	}
	defer g.Close()

	c, err := g.Member(1)
	if err != nil {
		t.Fatalf("Member failed: %v", err)
	}
	m, err := partition.Assign(10, 2, partition.StrategyBlock)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	rc := newTestRunContext(t, c, m)
	if rc == nil {
		return
	}

	// rank 0 never joins the round
	_, err = rc.exchange(context.Background(), ComponentNeighbors, make([][]byte, 2), nil)
	if err == nil {
		t.Fatal("exchange should time out")
	}
	if !errors.Is(err, comm.ErrCollectiveTimeout) {
		t.Errorf("expected ErrCollectiveTimeout, got %v", err)
	}
	msg := err.Error()
	for _, part := range []string{"rank 1", ComponentNeighbors, "[5,10)"} {
		if !strings.Contains(msg, part) {
			t.Errorf("message %q lacks %q", msg, part)
		}
	}
}
