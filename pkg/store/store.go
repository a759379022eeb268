// Package store reads partitioned connectome adjacency.
//
// A graph is a set of populations, each a contiguous range of global
// node ids, and a set of projections, each holding the directed edges
// from one population to another. Every adapter answers range reads by
// source node so I/O ranks can split the id space between them.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrUnavailable is returned when the backing store cannot be read.
	// It is fatal for a run; nothing retries it.
	ErrUnavailable = errors.New("graph store unavailable")
	// ErrUnknownProjection is returned for a projection the store does not hold
	ErrUnknownProjection = errors.New("unknown projection")
	// ErrInvalidRange is returned for a read range with start > end
	ErrInvalidRange = errors.New("invalid node range")

	errClosed = errors.New("store closed")
)

// Population is a named contiguous range of global node ids
type Population struct {
	Name  string `yaml:"name" validate:"popname"`
	Start uint64 `yaml:"start"`
	Count uint64 `yaml:"count"`
}

// End returns one past the last node id of the population
func (p Population) End() uint64 { return p.Start + p.Count }

// Projection names the edges from one population to another
type Projection struct {
	Source      string `yaml:"source" validate:"popname"`
	Destination string `yaml:"destination" validate:"popname"`
}

func (p Projection) String() string {
	return p.Source + "->" + p.Destination
}

// Record holds the directed edges Node -> Neighbors[i] of one projection
type Record struct {
	Node      uint64
	Neighbors []uint64
}

// Edge is one directed edge
type Edge struct {
	Src uint64
	Dst uint64
}

// Store is the read interface of a partitioned graph store
type Store interface {
	Populations(ctx context.Context) ([]Population, error)
	Projections(ctx context.Context) ([]Projection, error)
	// NumNodes returns N; valid node ids are [0, N).
	NumNodes(ctx context.Context) (uint64, error)
	// ReadRange returns the records of prj whose source node lies in
	// [start, end), sorted by node id. Nodes without edges may be absent.
	ReadRange(ctx context.Context, prj Projection, start, end uint64) ([]Record, error)
	Close() error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

func checkRange(start, end uint64) error {
	if start > end {
		return fmt.Errorf("%w: [%d,%d)", ErrInvalidRange, start, end)
	}
	return nil
}

// groupEdges turns edges into records sorted by source node
func groupEdges(edges []Edge) []Record {
	sorted := slices.Clone(edges)
	slices.SortFunc(sorted, func(a, b Edge) int {
		if a.Src != b.Src {
			if a.Src < b.Src {
				return -1
			}
			return 1
		}
		if a.Dst < b.Dst {
			return -1
		}
		if a.Dst > b.Dst {
			return 1
		}
		return 0
	})

	var records []Record
	for _, e := range sorted {
		if n := len(records); n > 0 && records[n-1].Node == e.Src {
			records[n-1].Neighbors = append(records[n-1].Neighbors, e.Dst)
			continue
		}
		records = append(records, Record{Node: e.Src, Neighbors: []uint64{e.Dst}})
	}
	return records
}

// filterRange returns the records with start <= Node < end from a slice
// sorted by node id
func filterRange(records []Record, start, end uint64) []Record {
	lo, _ := slices.BinarySearchFunc(records, start, func(r Record, id uint64) int {
		return compareID(r.Node, id)
	})
	hi, _ := slices.BinarySearchFunc(records, end, func(r Record, id uint64) int {
		return compareID(r.Node, id)
	})
	if lo >= hi {
		return nil
	}
	return records[lo:hi]
}

func compareID(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ReadAll reads every projection of st over the full id range
func ReadAll(ctx context.Context, st Store) (map[Projection][]Record, error) {
	n, err := st.NumNodes(ctx)
	if err != nil {
		return nil, err
	}
	prjs, err := st.Projections(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[Projection][]Record, len(prjs))
	for _, prj := range prjs {
		records, err := st.ReadRange(ctx, prj, 0, n)
		if err != nil {
			return nil, err
		}
		out[prj] = records
	}
	return out, nil
}
