package comm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestNewLocalGroup(t *testing.T) {
	if _, err := NewLocalGroup(0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("NewLocalGroup(0) err = %v, want ErrInvalidArgument", err)
	}

	g, err := NewLocalGroup(3)
	if err != nil {
		t.Fatalf("NewLocalGroup failed: %v", err)
	}
	defer g.Close()

	if _, err := g.Member(3); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Member(3) err = %v, want ErrInvalidArgument", err)
	}
	m, err := g.Member(2)
	if err != nil {
		t.Fatalf("Member(2) failed: %v", err)
	}
	if m.Rank() != 2 || m.Size() != 3 {
		t.Errorf("Rank/Size = %d/%d, want 2/3", m.Rank(), m.Size())
	}
}

func TestLocal_AllToAll(t *testing.T) {
	const size = 4
	results := make([][][]byte, size)

	err := RunLocal(context.Background(), size, func(ctx context.Context, c Communicator) error {
		sends := make([][]byte, size)
		for dst := range sends {
			sends[dst] = []byte(fmt.Sprintf("%d->%d", c.Rank(), dst))
		}
		recv, err := c.AllToAll(ctx, sends)
		if err != nil {
			return err
		}
		results[c.Rank()] = recv
		return nil
	})
	if err != nil {
		t.Fatalf("RunLocal failed: %v", err)
	}

	for dst, recv := range results {
		for src, payload := range recv {
			want := fmt.Sprintf("%d->%d", src, dst)
			if string(payload) != want {
				t.Errorf("rank %d got %q from %d, want %q", dst, payload, src, want)
			}
		}
	}
}

func TestLocal_AllToAllWrongLength(t *testing.T) {
	g, _ := NewLocalGroup(2)
	defer g.Close()
	m, _ := g.Member(0)

	if _, err := m.AllToAll(context.Background(), make([][]byte, 3)); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestLocal_Broadcast(t *testing.T) {
	const size = 3
	got := make([][]byte, size)

	err := RunLocal(context.Background(), size, func(ctx context.Context, c Communicator) error {
		var payload []byte
		if c.Rank() == 1 {
			payload = []byte("run-42")
		}
		b, err := c.Broadcast(ctx, 1, payload)
		got[c.Rank()] = b
		return err
	})
	if err != nil {
		t.Fatalf("RunLocal failed: %v", err)
	}
	for r, b := range got {
		if !bytes.Equal(b, []byte("run-42")) {
			t.Errorf("rank %d got %q", r, b)
		}
	}
}

func TestLocal_AllReduceSumDeterministic(t *testing.T) {
	const size = 5
	// values whose float sum depends on addition order
	partials := []float64{1e16, 1.0, -1e16, 1.0, 0.5}

	var first []float64
	for attempt := 0; attempt < 20; attempt++ {
		sums := make([][]float64, size)
		err := RunLocal(context.Background(), size, func(ctx context.Context, c Communicator) error {
			// stagger arrival so ranks reach the reduction in varying order
			time.Sleep(time.Duration((c.Rank()*7+attempt)%5) * time.Millisecond)
			s, err := c.AllReduceSum(ctx, []float64{partials[c.Rank()], 1})
			sums[c.Rank()] = s
			return err
		})
		if err != nil {
			t.Fatalf("RunLocal failed: %v", err)
		}
		for r := 1; r < size; r++ {
			if sums[r][0] != sums[0][0] || sums[r][1] != sums[0][1] {
				t.Fatalf("rank %d sum %v differs from rank 0 sum %v", r, sums[r], sums[0])
			}
		}
		if first == nil {
			first = sums[0]
		} else if first[0] != sums[0][0] {
			t.Fatalf("attempt %d sum %v differs from first %v", attempt, sums[0], first)
		}
	}
	if first[1] != size {
		t.Errorf("count sum = %v, want %d", first[1], size)
	}
}

func TestLocal_Mismatch(t *testing.T) {
	err := RunLocal(context.Background(), 2, func(ctx context.Context, c Communicator) error {
		if c.Rank() == 0 {
			return c.Barrier(ctx)
		}
		_, err := c.AllToAll(ctx, make([][]byte, 2))
		return err
	})
	if !errors.Is(err, ErrCollectiveMismatch) {
		t.Fatalf("err = %v, want ErrCollectiveMismatch", err)
	}
}

func TestLocal_BroadcastRootMismatch(t *testing.T) {
	err := RunLocal(context.Background(), 2, func(ctx context.Context, c Communicator) error {
		_, err := c.Broadcast(ctx, c.Rank(), []byte("x"))
		return err
	})
	if !errors.Is(err, ErrCollectiveMismatch) {
		t.Fatalf("err = %v, want ErrCollectiveMismatch", err)
	}
}

func TestLocal_Timeout(t *testing.T) {
	g, _ := NewLocalGroup(2, WithTimeout(50*time.Millisecond))
	defer g.Close()
	m, _ := g.Member(0)

	start := time.Now()
	err := m.Barrier(context.Background())
	if !errors.Is(err, ErrCollectiveTimeout) {
		t.Fatalf("err = %v, want ErrCollectiveTimeout", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout took far longer than configured")
	}
}

func TestLocal_FailingRankUnblocksPeers(t *testing.T) {
	boom := errors.New("store exploded")
	err := RunLocal(context.Background(), 3, func(ctx context.Context, c Communicator) error {
		if c.Rank() == 2 {
			return boom
		}
		return c.Barrier(ctx)
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the failing rank's error", err)
	}
}

func TestLocal_Closed(t *testing.T) {
	g, _ := NewLocalGroup(2)
	m, _ := g.Member(0)
	g.Close()

	if err := m.Barrier(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestLocal_SingleRank(t *testing.T) {
	err := RunLocal(context.Background(), 1, func(ctx context.Context, c Communicator) error {
		recv, err := c.AllToAll(ctx, [][]byte{[]byte("self")})
		if err != nil {
			return err
		}
		if string(recv[0]) != "self" {
			return fmt.Errorf("recv = %q", recv[0])
		}
		sum, err := c.AllReduceSum(ctx, []float64{2.5})
		if err != nil {
			return err
		}
		if sum[0] != 2.5 {
			return fmt.Errorf("sum = %v", sum)
		}
		return c.Barrier(ctx)
	})
	if err != nil {
		t.Fatalf("RunLocal failed: %v", err)
	}
}

func TestLocal_ManyRounds(t *testing.T) {
	const size, rounds = 4, 50
	err := RunLocal(context.Background(), size, func(ctx context.Context, c Communicator) error {
		for i := 0; i < rounds; i++ {
			sum, err := c.AllReduceSum(ctx, []float64{float64(i)})
			if err != nil {
				return err
			}
			if sum[0] != float64(i*size) {
				return fmt.Errorf("round %d sum = %v", i, sum[0])
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunLocal failed: %v", err)
	}
}
