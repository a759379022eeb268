// Package comm provides the collective operations the analytics ranks use
// to talk to each other.
//
// Every collective is a barrier: a rank that issues one blocks until all
// ranks of the group issued the matching call. Calls are matched by a
// per-communicator sequence number, and each carries its kind so a rank
// that issues collectives in a different order than its peers fails with
// ErrCollectiveMismatch instead of silently pairing unrelated messages.
package comm

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrCollectiveTimeout is returned when a collective does not complete
	// before its deadline. The group cannot recover from it.
	ErrCollectiveTimeout = errors.New("collective timeout")
	// ErrCollectiveMismatch is returned when ranks issue different
	// collectives for the same round.
	ErrCollectiveMismatch = errors.New("collective mismatch")
	// ErrClosed is returned by collectives on a closed communicator.
	ErrClosed = errors.New("communicator closed")
	// ErrInvalidArgument is returned for malformed collective arguments.
	ErrInvalidArgument = errors.New("invalid collective argument")
	// ErrRecvTimeout is returned by sockets whose receive deadline expired.
	ErrRecvTimeout = errors.New("receive timeout")
)

// Communicator is the collective communication substrate of one rank
type Communicator interface {
	// Rank returns this member's rank in [0, Size()).
	Rank() int
	// Size returns the number of ranks in the group.
	Size() int
	// Broadcast returns root's payload on every rank.
	Broadcast(ctx context.Context, root int, payload []byte) ([]byte, error)
	// AllToAll sends sends[i] to rank i and returns recv where recv[i]
	// came from rank i. len(sends) must equal Size().
	AllToAll(ctx context.Context, sends [][]byte) ([][]byte, error)
	// AllReduceSum returns the element-wise sum of values over all ranks.
	// Partials are added in rank order so the result is bit-identical on
	// every rank and independent of message arrival order.
	AllReduceSum(ctx context.Context, values []float64) ([]float64, error)
	// Barrier blocks until every rank reached it.
	Barrier(ctx context.Context) error
	Close() error
}

// Kind identifies a collective operation
type Kind uint8

const (
	KindBroadcast Kind = iota + 1
	KindAllToAll
	KindAllReduce
	KindBarrier
)

func (k Kind) String() string {
	switch k {
	case KindBroadcast:
		return "broadcast"
	case KindAllToAll:
		return "alltoall"
	case KindAllReduce:
		return "allreduce"
	case KindBarrier:
		return "barrier"
	default:
		return "unknown"
	}
}

// op is the header every rank must agree on for a round
type op struct {
	kind  Kind
	param uint32 // broadcast root or reduce width
}

func (o op) String() string {
	return fmt.Sprintf("%s(%d)", o.kind, o.param)
}

func mismatchError(seq uint64, rank int, local, remote op) error {
	return fmt.Errorf("%w: round %d: rank %d issued %s, peer issued %s",
		ErrCollectiveMismatch, seq, rank, local, remote)
}
