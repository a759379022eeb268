package comm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// LocalGroup is an in-process group of ranks exchanging through shared
// memory. It backs unit tests and single-process runs.
type LocalGroup struct {
	size    int
	timeout time.Duration

	mu     sync.Mutex
	rounds map[uint64]*localRound
	closed bool
	done   chan struct{}
}

type localRound struct {
	o        op
	mismatch *op
	slots    [][][]byte // slots[src][dst]
	arrived  int
	consumed int
	ready    chan struct{}
}

// LocalOption configures a LocalGroup
type LocalOption func(*LocalGroup)

// WithTimeout bounds every collective of the group
func WithTimeout(d time.Duration) LocalOption {
	return func(g *LocalGroup) { g.timeout = d }
}

// NewLocalGroup creates an in-process group of size ranks
func NewLocalGroup(size int, opts ...LocalOption) (*LocalGroup, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: group size %d", ErrInvalidArgument, size)
	}
	g := &LocalGroup{
		size:   size,
		rounds: make(map[uint64]*localRound),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Member returns the communicator of one rank. Each rank must use its
// own member from a single goroutine at a time.
func (g *LocalGroup) Member(rank int) (Communicator, error) {
	if rank < 0 || rank >= g.size {
		return nil, fmt.Errorf("%w: rank %d outside [0,%d)", ErrInvalidArgument, rank, g.size)
	}
	return &group{ex: &localMember{g: g, r: rank}, timeout: g.timeout}, nil
}

// Size returns the number of ranks
func (g *LocalGroup) Size() int { return g.size }

// Close fails all pending and future collectives with ErrClosed
func (g *LocalGroup) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		g.closed = true
		close(g.done)
	}
	return nil
}

type localMember struct {
	g   *LocalGroup
	r   int
	seq uint64
}

func (m *localMember) rank() int { return m.r }
func (m *localMember) size() int { return m.g.size }

// close closes the member only; the group is closed by its owner
func (m *localMember) close() error { return nil }

func (m *localMember) exchange(ctx context.Context, o op, sends [][]byte) ([][]byte, error) {
	g := m.g
	seq := m.seq
	m.seq++

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return nil, ErrClosed
	}
	round, ok := g.rounds[seq]
	if !ok {
		round = &localRound{
			o:     o,
			slots: make([][][]byte, g.size),
			ready: make(chan struct{}),
		}
		g.rounds[seq] = round
	}
	if round.o != o && round.mismatch == nil {
		mismatched := o
		round.mismatch = &mismatched
	}
	round.slots[m.r] = sends
	round.arrived++
	if round.arrived == g.size {
		close(round.ready)
	}
	g.mu.Unlock()

	select {
	case <-round.ready:
	case <-ctx.Done():
		return nil, fmt.Errorf("round %d %s: %w", seq, o.kind, ctx.Err())
	case <-g.done:
		return nil, ErrClosed
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	round.consumed++
	if round.consumed == g.size {
		delete(g.rounds, seq)
	}
	if round.mismatch != nil {
		return nil, mismatchError(seq, m.r, round.o, *round.mismatch)
	}

	recv := make([][]byte, g.size)
	for src, row := range round.slots {
		if m.r < len(row) {
			recv[src] = row[m.r]
		}
	}
	return recv, nil
}

// RunLocal runs fn once per rank of a fresh LocalGroup, each on its own
// goroutine, and returns the first error. A failing rank cancels the
// context of the others so they do not wait on it forever.
func RunLocal(ctx context.Context, size int, fn func(ctx context.Context, c Communicator) error, opts ...LocalOption) error {
	g, err := NewLocalGroup(size, opts...)
	if err != nil {
		return err
	}
	defer g.Close()

	eg, egCtx := errgroup.WithContext(ctx)
	for r := 0; r < size; r++ {
		member, err := g.Member(r)
		if err != nil {
			return err
		}
		eg.Go(func() error {
			return fn(egCtx, member)
		})
	}
	return eg.Wait()
}
