// Package analytics computes local clustering coefficients of a graph
// partitioned across the ranks of a communicator.
//
// Every exported operation is collective: all ranks of the group must
// call it with the same arguments, in the same order.
package analytics

import (
	"context"
	"fmt"

	"github.com/dd0wney/cluso-connectome/pkg/comm"
	"github.com/dd0wney/cluso-connectome/pkg/logging"
	"github.com/dd0wney/cluso-connectome/pkg/metrics"
	"github.com/dd0wney/cluso-connectome/pkg/partition"
	"github.com/dd0wney/cluso-connectome/pkg/wire"
)

// RunContext carries what every component of one run needs
type RunContext struct {
	Comm    comm.Communicator
	Map     partition.NodeRankMap
	Logger  logging.Logger
	Metrics *metrics.Registry // optional
	RunID   string

	// aborted is set once peers know this run failed
	aborted bool
}

// NewRunContext checks that the map was built for the communicator's
// group size
func NewRunContext(c comm.Communicator, m partition.NodeRankMap, logger logging.Logger, reg *metrics.Registry, runID string) (*RunContext, error) {
	if c == nil || m == nil {
		return nil, fmt.Errorf("%w: run context needs a communicator and a map", partition.ErrInvalidPartition)
	}
	if m.GetPartitionCount() != c.Size() {
		return nil, fmt.Errorf("%w: map has %d partitions, group has %d ranks",
			partition.ErrInvalidPartition, m.GetPartitionCount(), c.Size())
	}
	logger = logging.ForRank(logger, c.Rank(), c.Size())
	if runID != "" {
		logger = logger.With(logging.RunID(runID))
	}
	return &RunContext{
		Comm:    c,
		Map:     m,
		Logger:  logger,
		Metrics: reg,
		RunID:   runID,
	}, nil
}

// Rank returns this rank
func (rc *RunContext) Rank() int { return rc.Comm.Rank() }

// Size returns the number of ranks
func (rc *RunContext) Size() int { return rc.Comm.Size() }

func (rc *RunContext) owns(id uint64) bool {
	return rc.Map.GetPartition(id) == rc.Rank()
}

// rankError wraps err with this rank's owned id range. An error that
// already names a rank is returned unchanged.
func (rc *RunContext) rankError(component string, err error) error {
	if _, ok := err.(*RankError); ok {
		return err
	}
	re := &RankError{Rank: rc.Rank(), Component: component, Err: err}
	re.Start, re.End, re.Stride = ownedSpan(rc.Map, rc.Rank())
	return re
}

// ownedSpan describes the ids rank owns as [start, end) with a stride;
// zero values for a rank that owns nothing
func ownedSpan(m partition.NodeRankMap, rank int) (start, end, stride uint64) {
	if rs := m.Ranges(rank); len(rs) == 1 {
		return rs[0].Start, rs[0].End, 0
	}
	n := m.OwnedCount(rank)
	if n == 0 {
		return 0, 0, 0
	}
	first, found := uint64(0), false
	m.ForEachOwned(rank, func(id uint64) bool {
		first, found = id, true
		return false
	})
	if !found {
		return 0, 0, 0
	}
	if n == 1 {
		return first, first + 1, 0
	}
	stride = uint64(m.GetPartitionCount())
	return first, first + (n-1)*stride + 1, stride
}

// exchange runs one all-to-all round for component. A rank that failed
// before the round passes its error as localErr and sends abort frames in
// place of payloads, so every peer fails in the same round instead of
// waiting for the next one.
func (rc *RunContext) exchange(ctx context.Context, component string, sends [][]byte, localErr error) ([][]byte, error) {
	if localErr != nil {
		rc.sendAbort(ctx, localErr)
		return nil, localErr
	}

	recv, err := rc.Comm.AllToAll(ctx, sends)
	if err != nil {
		rc.aborted = true
		return nil, rc.rankError(component, err)
	}
	if abort := wire.FirstAbort(recv); abort != nil {
		rc.aborted = true
		return nil, newRemoteAbort(abort)
	}
	return recv, nil
}

func (rc *RunContext) sendAbort(ctx context.Context, cause error) {
	rc.aborted = true
	frame := wire.EncodeAbort(abortKind(cause), rc.Rank(), cause.Error())
	frames := make([][]byte, rc.Size())
	for i := range frames {
		frames[i] = frame
	}
	if _, err := rc.Comm.AllToAll(ctx, frames); err != nil {
		rc.Logger.Warn("abort exchange failed", logging.Error(err))
	}
}

// Abort tells peers that this rank failed with err after its last
// exchange. It does nothing when peers already know.
func (rc *RunContext) Abort(ctx context.Context, err error) {
	if rc.aborted || err == nil {
		return
	}
	rc.Logger.Error("aborting run", logging.Error(err))
	rc.sendAbort(ctx, err)
}

// reduceFailed sums a failure flag with the rest of a reduction so a
// rank that failed before it does not leave its peers waiting
func reduceFailed(ctx context.Context, rc *RunContext, component string, values []float64, localErr error) ([]float64, error) {
	flag := 0.0
	if localErr != nil {
		flag = 1
	}
	sums, err := rc.Comm.AllReduceSum(ctx, append(values, flag))
	if err != nil {
		rc.aborted = true
		if localErr != nil {
			return nil, localErr
		}
		return nil, rc.rankError(component, err)
	}
	if localErr != nil {
		rc.aborted = true
		return nil, localErr
	}
	if failed := sums[len(sums)-1]; failed > 0 {
		rc.aborted = true
		return nil, &RemoteAbortError{
			Rank:    -1,
			Kind:    wire.AbortUnknown,
			Message: fmt.Sprintf("%d rank(s) failed before the %s reduction", int(failed), component),
		}
	}
	return sums[:len(sums)-1], nil
}
