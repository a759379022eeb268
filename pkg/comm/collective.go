package comm

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// exchanger moves one round of per-destination payloads. The returned
// slice is indexed by source rank. Implementations compare op across
// ranks and report disagreement with ErrCollectiveMismatch.
type exchanger interface {
	rank() int
	size() int
	exchange(ctx context.Context, o op, sends [][]byte) ([][]byte, error)
	close() error
}

// group implements every collective on top of a single exchange primitive
type group struct {
	ex      exchanger
	timeout time.Duration
}

func (g *group) Rank() int { return g.ex.rank() }
func (g *group) Size() int { return g.ex.size() }

func (g *group) run(ctx context.Context, o op, sends [][]byte) ([][]byte, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	recv, err := g.ex.exchange(ctx, o, sends)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: rank %d waiting on %s: %v", ErrCollectiveTimeout, g.Rank(), o.kind, err)
		}
		return nil, err
	}
	return recv, nil
}

func (g *group) Broadcast(ctx context.Context, root int, payload []byte) ([]byte, error) {
	if root < 0 || root >= g.Size() {
		return nil, fmt.Errorf("%w: broadcast root %d outside [0,%d)", ErrInvalidArgument, root, g.Size())
	}
	sends := make([][]byte, g.Size())
	if g.Rank() == root {
		for i := range sends {
			sends[i] = payload
		}
	}
	recv, err := g.run(ctx, op{kind: KindBroadcast, param: uint32(root)}, sends)
	if err != nil {
		return nil, err
	}
	return recv[root], nil
}

func (g *group) AllToAll(ctx context.Context, sends [][]byte) ([][]byte, error) {
	if len(sends) != g.Size() {
		return nil, fmt.Errorf("%w: %d payloads for %d ranks", ErrInvalidArgument, len(sends), g.Size())
	}
	return g.run(ctx, op{kind: KindAllToAll}, sends)
}

func (g *group) AllReduceSum(ctx context.Context, values []float64) ([]float64, error) {
	encoded := encodeFloats(values)
	sends := make([][]byte, g.Size())
	for i := range sends {
		sends[i] = encoded
	}
	recv, err := g.run(ctx, op{kind: KindAllReduce, param: uint32(len(values))}, sends)
	if err != nil {
		return nil, err
	}

	sum := make([]float64, len(values))
	for src, frame := range recv {
		partial, err := decodeFloats(frame)
		if err != nil {
			return nil, fmt.Errorf("allreduce partial from rank %d: %w", src, err)
		}
		if len(partial) != len(sum) {
			return nil, fmt.Errorf("%w: rank %d reduced %d values, rank %d reduced %d",
				ErrCollectiveMismatch, src, len(partial), g.Rank(), len(sum))
		}
		for i, v := range partial {
			sum[i] += v
		}
	}
	return sum, nil
}

func (g *group) Barrier(ctx context.Context) error {
	_, err := g.run(ctx, op{kind: KindBarrier}, make([][]byte, g.Size()))
	return err
}

func (g *group) Close() error {
	return g.ex.close()
}

func encodeFloats(values []float64) []byte {
	buf := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return buf
}

func decodeFloats(buf []byte) ([]float64, error) {
	if len(buf)%8 != 0 {
		return nil, fmt.Errorf("%w: float payload of %d bytes", ErrInvalidArgument, len(buf))
	}
	values := make([]float64, len(buf)/8)
	for i := range values {
		values[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*i:]))
	}
	return values, nil
}
