package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
)

// FaultFunc decides whether a read fails. A non-nil return is reported
// wrapped in ErrUnavailable.
type FaultFunc func(prj Projection, start, end uint64) error

// MemoryStore holds a whole graph in memory. It backs tests, small runs
// and the graph broadcast by BroadcastGraph.
type MemoryStore struct {
	mu          sync.RWMutex
	numNodes    uint64
	populations []Population
	projections map[Projection][]Record
	order       []Projection
	fault       FaultFunc
	closed      bool

	reads atomic.Int64
}

// NewMemoryStore creates an empty store over the ids [0, numNodes) with
// the given populations. Without populations a single population named
// "all" covers every node.
func NewMemoryStore(numNodes uint64, populations ...Population) *MemoryStore {
	if len(populations) == 0 {
		populations = []Population{{Name: "all", Start: 0, Count: numNodes}}
	}
	return &MemoryStore{
		numNodes:    numNodes,
		populations: slices.Clone(populations),
		projections: make(map[Projection][]Record),
	}
}

// NewMemoryStoreFromEdges creates a single-population store holding edges
// in the projection all->all
func NewMemoryStoreFromEdges(numNodes uint64, edges []Edge) *MemoryStore {
	m := NewMemoryStore(numNodes)
	m.AddEdges(DefaultProjection, edges)
	return m
}

// DefaultProjection is the projection of single-population stores
var DefaultProjection = Projection{Source: "all", Destination: "all"}

// AddEdges appends edges to a projection, creating it if needed
func (m *MemoryStore) AddEdges(prj Projection, edges []Edge) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.projections[prj]
	if !ok {
		m.order = append(m.order, prj)
	}
	var all []Edge
	for _, rec := range existing {
		for _, dst := range rec.Neighbors {
			all = append(all, Edge{Src: rec.Node, Dst: dst})
		}
	}
	m.projections[prj] = groupEdges(append(all, edges...))
}

// SetRecords replaces a projection with already grouped records
func (m *MemoryStore) SetRecords(prj Projection, records []Record) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.projections[prj]; !ok {
		m.order = append(m.order, prj)
	}
	sorted := slices.Clone(records)
	slices.SortFunc(sorted, func(a, b Record) int { return compareID(a.Node, b.Node) })
	m.projections[prj] = sorted
}

// SetFault installs a fault injector consulted on every ReadRange
func (m *MemoryStore) SetFault(fn FaultFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fault = fn
}

// Reads returns the number of ReadRange calls served
func (m *MemoryStore) Reads() int64 {
	return m.reads.Load()
}

func (m *MemoryStore) Populations(ctx context.Context) ([]Population, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, unavailable("populations", errClosed)
	}
	return slices.Clone(m.populations), nil
}

func (m *MemoryStore) Projections(ctx context.Context) ([]Projection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, unavailable("projections", errClosed)
	}
	return slices.Clone(m.order), nil
}

func (m *MemoryStore) NumNodes(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, unavailable("num nodes", errClosed)
	}
	return m.numNodes, nil
}

func (m *MemoryStore) ReadRange(ctx context.Context, prj Projection, start, end uint64) ([]Record, error) {
	if err := checkRange(start, end); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, unavailable("read "+prj.String(), err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	m.reads.Add(1)

	if m.closed {
		return nil, unavailable("read "+prj.String(), errClosed)
	}
	if m.fault != nil {
		if err := m.fault(prj, start, end); err != nil {
			return nil, unavailable(fmt.Sprintf("read %s [%d,%d)", prj, start, end), err)
		}
	}
	records, ok := m.projections[prj]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProjection, prj)
	}

	window := filterRange(records, start, end)
	out := make([]Record, len(window))
	for i, rec := range window {
		out[i] = Record{Node: rec.Node, Neighbors: slices.Clone(rec.Neighbors)}
	}
	return out, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var _ Store = (*MemoryStore)(nil)
