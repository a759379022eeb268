package analytics

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dd0wney/cluso-connectome/pkg/logging"
	"github.com/dd0wney/cluso-connectome/pkg/partition"
	"github.com/dd0wney/cluso-connectome/pkg/store"
	"github.com/dd0wney/cluso-connectome/pkg/wire"
)

// NeighborOptions configures how adjacency is read and routed
type NeighborOptions struct {
	// IOSize is the number of ranks that read the store, the first
	// IOSize ranks. Zero means every rank.
	IOSize int
	// Projections restricts the read; nil reads every projection.
	Projections []store.Projection
	// Directed keeps u->v only in u's neighbor list. By default both
	// endpoints record the edge.
	Directed bool
}

// NeighborResolver builds the adjacency table of each rank
type NeighborResolver struct {
	opts NeighborOptions
}

// NewNeighborResolver creates a resolver
func NewNeighborResolver(opts NeighborOptions) *NeighborResolver {
	return &NeighborResolver{opts: opts}
}

// outbox collects the fragments one I/O rank routes to one owner
type outbox map[uint64]*wire.Record

func (o outbox) fragment(id uint64) *wire.Record {
	rec, ok := o[id]
	if !ok {
		rec = &wire.Record{Node: id}
		o[id] = rec
	}
	return rec
}

func (o outbox) encode() []byte {
	records := make([]wire.Record, 0, len(o))
	for _, rec := range o {
		slices.Sort(rec.Out)
		slices.Sort(rec.In)
		records = append(records, *rec)
	}
	slices.SortFunc(records, func(a, b wire.Record) int {
		switch {
		case a.Node < b.Node:
			return -1
		case a.Node > b.Node:
			return 1
		}
		return 0
	})
	return wire.EncodeRecords(records)
}

// Resolve reads this rank's share of the store, forwards every record to
// the owner of its node with one all-to-all and returns the owned table.
// Ranks at or above IOSize never touch st and may pass nil.
func (nr *NeighborResolver) Resolve(ctx context.Context, rc *RunContext, st store.Store) (*AdjacencyTable, error) {
	rank, size := rc.Rank(), rc.Size()
	ioSize := nr.opts.IOSize
	if ioSize == 0 {
		ioSize = size
	}
	if ioSize < 1 || ioSize > size {
		return nil, rc.rankError(ComponentNeighbors,
			fmt.Errorf("%w: io size %d outside [1,%d]", partition.ErrInvalidPartition, ioSize, size))
	}

	boxes := make([]outbox, size)
	for i := range boxes {
		boxes[i] = make(outbox)
	}

	var localErr error
	if rank < ioSize {
		ioMap, err := partition.NewBlockPartition(rc.Map.TotalNodes(), ioSize)
		if err != nil {
			return nil, rc.rankError(ComponentNeighbors, err)
		}
		localErr = nr.read(ctx, rc, st, ioMap.Block(rank), boxes)
	}

	sends := make([][]byte, size)
	var forwarded int
	for dst, box := range boxes {
		sends[dst] = box.encode()
		if dst != rank {
			forwarded += len(box)
		}
	}
	if rc.Metrics != nil {
		rc.Metrics.StoreForwardedRecs.Add(float64(forwarded))
	}

	recv, err := rc.exchange(ctx, ComponentNeighbors, sends, localErr)
	if err != nil {
		return nil, err
	}

	table, err := nr.merge(rc, recv)
	if err != nil {
		return nil, err
	}
	rc.Logger.Debug("adjacency resolved",
		logging.Count(table.Len()),
		logging.Int("forwarded_fragments", forwarded))
	return table, nil
}

// read fills boxes with the fragments of every edge whose source lies in rng
func (nr *NeighborResolver) read(ctx context.Context, rc *RunContext, st store.Store, rng partition.IDRange, boxes []outbox) error {
	rank := rc.Rank()
	fail := func(err error) error {
		return &RankError{Rank: rank, Component: ComponentNeighbors, Start: rng.Start, End: rng.End, Err: err}
	}
	if st == nil {
		return fail(fmt.Errorf("%w: no store on I/O rank", store.ErrUnavailable))
	}

	prjs := nr.opts.Projections
	if prjs == nil {
		var err error
		if prjs, err = st.Projections(ctx); err != nil {
			return fail(err)
		}
	}

	n := rc.Map.TotalNodes()
	for _, prj := range prjs {
		start := time.Now()
		records, err := st.ReadRange(ctx, prj, rng.Start, rng.End)
		if rc.Metrics != nil {
			rc.Metrics.RecordStoreRead(prj.String(), len(records), time.Since(start), err)
		}
		if err != nil {
			return fail(err)
		}
		rc.Logger.Debug("read projection",
			logging.Projection(prj.Source, prj.Destination),
			logging.NodeRange(rng.Start, rng.End),
			logging.Count(len(records)))

		for _, rec := range records {
			if !rng.Contains(rec.Node) {
				return fail(fmt.Errorf("%w: store returned node %d for %s", partition.ErrNodeOutOfRange, rec.Node, rng))
			}
			src := boxes[rc.Map.GetPartition(rec.Node)].fragment(rec.Node)
			for _, nb := range rec.Neighbors {
				if nb >= n {
					return fail(fmt.Errorf("%w: edge %d->%d of %s, graph has %d nodes", partition.ErrNodeOutOfRange, rec.Node, nb, prj, n))
				}
				if nb == rec.Node {
					continue
				}
				src.Out = append(src.Out, nb)
				dst := boxes[rc.Map.GetPartition(nb)].fragment(nb)
				dst.In = append(dst.In, rec.Node)
			}
		}
	}
	return nil
}

// merge combines the fragments received from every I/O rank into one
// entry per owned node
func (nr *NeighborResolver) merge(rc *RunContext, recv [][]byte) (*AdjacencyTable, error) {
	rank := rc.Rank()
	type sides struct{ out, in []uint64 }
	gathered := make(map[uint64]*sides)

	for src, frame := range recv {
		records, err := wire.DecodeRecords(frame)
		if err != nil {
			return nil, rc.rankError(ComponentNeighbors, fmt.Errorf("records from rank %d: %w", src, err))
		}
		for _, rec := range records {
			if !rc.owns(rec.Node) {
				return nil, ownershipError(rank, ComponentNeighbors, rec.Node,
					"rank %d routed node %d here, owner is rank %d", src, rec.Node, rc.Map.GetPartition(rec.Node))
			}
			s, ok := gathered[rec.Node]
			if !ok {
				s = &sides{}
				gathered[rec.Node] = s
			}
			s.out = append(s.out, rec.Out...)
			s.in = append(s.in, rec.In...)
		}
	}

	entries := make([]AdjacencyEntry, 0, rc.Map.OwnedCount(rank))
	rc.Map.ForEachOwned(rank, func(id uint64) bool {
		entry := AdjacencyEntry{Node: id}
		if s, ok := gathered[id]; ok {
			out := sortUnique(s.out)
			in := sortUnique(s.in)
			entry.OutDegree = uint64(len(out))
			entry.InDegree = uint64(len(in))
			if nr.opts.Directed {
				entry.Neighbors = out
			} else {
				entry.Neighbors = sortUnique(append(out, in...))
			}
		}
		entries = append(entries, entry)
		return true
	})
	return newAdjacencyTable(rank, !nr.opts.Directed, entries), nil
}

func sortUnique(ids []uint64) []uint64 {
	if len(ids) == 0 {
		return nil
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
