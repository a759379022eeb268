package analytics

import (
	"errors"
	"fmt"

	"github.com/dd0wney/cluso-connectome/pkg/comm"
	"github.com/dd0wney/cluso-connectome/pkg/partition"
	"github.com/dd0wney/cluso-connectome/pkg/store"
	"github.com/dd0wney/cluso-connectome/pkg/wire"
)

var (
	// ErrOwnershipInconsistency is returned when a rank is asked about a
	// node it does not own, or holds data for a node owned elsewhere.
	ErrOwnershipInconsistency = errors.New("ownership inconsistency")
	// ErrRemoteFailure is the kind of a remote abort that carries no
	// more specific cause.
	ErrRemoteFailure = errors.New("remote rank failed")
)

// Component names used in diagnostics
const (
	ComponentRun        = "run"
	ComponentNeighbors  = "neighbors"
	ComponentDegrees    = "degrees"
	ComponentClustering = "clustering"
	ComponentVertex     = "vertex_metrics"
)

// RankError names the rank, component and node id range a failure
// happened at. A Stride above one means every Stride-th id of
// [Start, End), as owned under round robin.
type RankError struct {
	Rank      int
	Component string
	Start     uint64
	End       uint64
	Stride    uint64
	Err       error
}

func (e *RankError) Error() string {
	switch {
	case e.Start == e.End:
		return fmt.Sprintf("rank %d %s: %v", e.Rank, e.Component, e.Err)
	case e.Stride > 1:
		return fmt.Sprintf("rank %d %s [%d,%d) step %d: %v", e.Rank, e.Component, e.Start, e.End, e.Stride, e.Err)
	default:
		return fmt.Sprintf("rank %d %s [%d,%d): %v", e.Rank, e.Component, e.Start, e.End, e.Err)
	}
}

func (e *RankError) Unwrap() error { return e.Err }

// RemoteAbortError is returned on a rank whose peer aborted a collective.
// It unwraps to the sentinel of the peer's failure so errors.Is matches
// the same kind on every rank.
type RemoteAbortError struct {
	Rank    int
	Kind    wire.AbortKind
	Message string
}

func (e *RemoteAbortError) Error() string {
	return fmt.Sprintf("rank %d aborted the run (%s): %s", e.Rank, e.Kind, e.Message)
}

func (e *RemoteAbortError) Unwrap() error {
	switch e.Kind {
	case wire.AbortStoreUnavailable:
		return store.ErrUnavailable
	case wire.AbortOwnershipInconsistency:
		return ErrOwnershipInconsistency
	case wire.AbortInvalidPartition:
		return partition.ErrInvalidPartition
	case wire.AbortNodeOutOfRange:
		return partition.ErrNodeOutOfRange
	case wire.AbortCollectiveTimeout:
		return comm.ErrCollectiveTimeout
	default:
		return ErrRemoteFailure
	}
}

func newRemoteAbort(err error) error {
	var a *wire.Abort
	if !errors.As(err, &a) {
		return &RemoteAbortError{Rank: -1, Kind: wire.AbortUnknown, Message: err.Error()}
	}
	return &RemoteAbortError{Rank: a.Rank, Kind: a.Kind, Message: a.Message}
}

// abortKind classifies a local failure for an abort frame
func abortKind(err error) wire.AbortKind {
	var remote *RemoteAbortError
	switch {
	case errors.As(err, &remote):
		return remote.Kind
	case errors.Is(err, store.ErrUnavailable):
		return wire.AbortStoreUnavailable
	case errors.Is(err, ErrOwnershipInconsistency):
		return wire.AbortOwnershipInconsistency
	case errors.Is(err, partition.ErrInvalidPartition):
		return wire.AbortInvalidPartition
	case errors.Is(err, partition.ErrNodeOutOfRange):
		return wire.AbortNodeOutOfRange
	case errors.Is(err, comm.ErrCollectiveTimeout):
		return wire.AbortCollectiveTimeout
	default:
		return wire.AbortUnknown
	}
}

func ownershipError(rank int, component string, id uint64, format string, args ...any) error {
	return &RankError{
		Rank:      rank,
		Component: component,
		Start:     id,
		End:       id + 1,
		Err:       fmt.Errorf("%w: %s", ErrOwnershipInconsistency, fmt.Sprintf(format, args...)),
	}
}
