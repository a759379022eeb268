package analytics

import (
	"context"
	"fmt"

	"github.com/dd0wney/cluso-connectome/pkg/logging"
	"github.com/dd0wney/cluso-connectome/pkg/wire"
)

// DegreeResolver resolves the degree of every remote neighbor with one
// request round and one answer round
type DegreeResolver struct{}

// NewDegreeResolver creates a resolver
func NewDegreeResolver() *DegreeResolver {
	return &DegreeResolver{}
}

// Resolve returns a degree table holding every owned node and every
// distinct remote neighbor of table
func (dr *DegreeResolver) Resolve(ctx context.Context, rc *RunContext, table *AdjacencyTable) (*DegreeTable, error) {
	rank, size := rc.Rank(), rc.Size()
	if table.Rank() != rank {
		return nil, rc.rankError(ComponentDegrees, fmt.Errorf("%w: table of rank %d", ErrOwnershipInconsistency, table.Rank()))
	}

	requests := remoteRequests(rc, table)
	degrees := newDegreeTable(table.Len(), countIDs(requests))
	for _, e := range table.Entries() {
		degrees.owned[e.Node] = e.Degree()
	}

	sends := make([][]byte, size)
	for dst := range sends {
		sends[dst] = wire.EncodeIDs(requests[dst])
	}
	recv, err := rc.exchange(ctx, ComponentDegrees, sends, nil)
	if err != nil {
		return nil, err
	}

	answers, answered, localErr := answerDegrees(rc, table, recv)
	if rc.Metrics != nil {
		rc.Metrics.DegreeRequestsTotal.Add(float64(answered))
	}

	recv, err = rc.exchange(ctx, ComponentDegrees, answers, localErr)
	if err != nil {
		return nil, err
	}

	for src, frame := range recv {
		if src == rank {
			continue
		}
		counts, err := wire.DecodeCounts(frame)
		if err != nil {
			return nil, rc.rankError(ComponentDegrees, fmt.Errorf("answers from rank %d: %w", src, err))
		}
		if len(counts) != len(requests[src]) {
			return nil, rc.rankError(ComponentDegrees,
				fmt.Errorf("%w: rank %d answered %d of %d requests", ErrOwnershipInconsistency, src, len(counts), len(requests[src])))
		}
		for i, id := range requests[src] {
			degrees.cached[id] = counts[i]
		}
	}

	if rc.Metrics != nil {
		rc.Metrics.SetRankLoad(rank, uint64(table.Len()), uint64(degrees.CachedLen()))
	}
	rc.Logger.Debug("degrees resolved",
		logging.Int("owned", degrees.OwnedLen()),
		logging.Int("cached", degrees.CachedLen()))
	return degrees, nil
}

// remoteRequests groups the distinct remote neighbor ids of table by
// owner rank, each list ascending
func remoteRequests(rc *RunContext, table *AdjacencyTable) [][]uint64 {
	size := rc.Size()
	seen := make([]map[uint64]struct{}, size)
	for i := range seen {
		seen[i] = make(map[uint64]struct{})
	}
	for _, e := range table.Entries() {
		for _, nb := range e.Neighbors {
			owner := rc.Map.GetPartition(nb)
			if owner == rc.Rank() {
				continue
			}
			seen[owner][nb] = struct{}{}
		}
	}

	requests := make([][]uint64, size)
	for dst, set := range seen {
		ids := make([]uint64, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		requests[dst] = sortUnique(ids)
	}
	return requests
}

func countIDs(lists [][]uint64) int {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	return n
}

// answerDegrees answers the requests of every peer in request order. The
// first request for a node this rank does not own is returned as the
// local error of the answer round.
func answerDegrees(rc *RunContext, table *AdjacencyTable, recv [][]byte) ([][]byte, int, error) {
	rank := rc.Rank()
	answers := make([][]byte, len(recv))
	answered := 0
	for src, frame := range recv {
		ids, err := wire.DecodeIDs(frame)
		if err != nil {
			return nil, answered, rc.rankError(ComponentDegrees, fmt.Errorf("requests from rank %d: %w", src, err))
		}
		counts := make([]uint64, len(ids))
		for i, id := range ids {
			entry, ok := table.Entry(id)
			if !ok || !rc.owns(id) {
				return nil, answered, ownershipError(rank, ComponentDegrees, id,
					"rank %d asked for the degree of node %d, owner is rank %d", src, id, rc.Map.GetPartition(id))
			}
			counts[i] = entry.Degree()
		}
		answers[src] = wire.EncodeCounts(counts)
		if src != rank {
			answered += len(ids)
		}
	}
	return answers, answered, nil
}
