package analytics

import (
	"slices"
)

// AdjacencyEntry is the neighborhood of one owned node
type AdjacencyEntry struct {
	Node uint64
	// Neighbors is sorted, de-duplicated and free of self-loops.
	Neighbors []uint64
	// OutDegree and InDegree count distinct directed edge partners.
	OutDegree uint64
	InDegree  uint64
}

// Degree returns the number of neighbors
func (e *AdjacencyEntry) Degree() uint64 { return uint64(len(e.Neighbors)) }

// HasNeighbor reports whether id is a neighbor of the entry's node
func (e *AdjacencyEntry) HasNeighbor(id uint64) bool {
	_, found := slices.BinarySearch(e.Neighbors, id)
	return found
}

// AdjacencyTable holds an entry for every node a rank owns, sorted by id.
// It is read-only once built.
type AdjacencyTable struct {
	rank      int
	symmetric bool
	entries   []AdjacencyEntry
	index     map[uint64]int
}

func newAdjacencyTable(rank int, symmetric bool, entries []AdjacencyEntry) *AdjacencyTable {
	index := make(map[uint64]int, len(entries))
	for i := range entries {
		index[entries[i].Node] = i
	}
	return &AdjacencyTable{rank: rank, symmetric: symmetric, entries: entries, index: index}
}

// Rank returns the rank owning the table
func (t *AdjacencyTable) Rank() int { return t.rank }

// Symmetric reports whether every edge was recorded on both endpoints
func (t *AdjacencyTable) Symmetric() bool { return t.symmetric }

// Len returns the number of owned nodes
func (t *AdjacencyTable) Len() int { return len(t.entries) }

// Entries returns the entries in ascending node order. Callers must not
// modify them.
func (t *AdjacencyTable) Entries() []AdjacencyEntry { return t.entries }

// Entry returns the entry of an owned node
func (t *AdjacencyTable) Entry(id uint64) (*AdjacencyEntry, bool) {
	i, ok := t.index[id]
	if !ok {
		return nil, false
	}
	return &t.entries[i], true
}

// DegreeTable maps node ids to degrees. Owned entries are authoritative;
// cached entries were resolved from their owners and are read-only.
type DegreeTable struct {
	owned  map[uint64]uint64
	cached map[uint64]uint64
}

func newDegreeTable(owned, cached int) *DegreeTable {
	return &DegreeTable{
		owned:  make(map[uint64]uint64, owned),
		cached: make(map[uint64]uint64, cached),
	}
}

// Degree returns the degree of an owned or cached node
func (d *DegreeTable) Degree(id uint64) (uint64, bool) {
	if deg, ok := d.owned[id]; ok {
		return deg, true
	}
	deg, ok := d.cached[id]
	return deg, ok
}

// IsCached reports whether id is a remote node whose degree was resolved
func (d *DegreeTable) IsCached(id uint64) bool {
	_, ok := d.cached[id]
	return ok
}

// IsOwned reports whether id has an authoritative entry
func (d *DegreeTable) IsOwned(id uint64) bool {
	_, ok := d.owned[id]
	return ok
}

// OwnedLen returns the number of authoritative entries
func (d *DegreeTable) OwnedLen() int { return len(d.owned) }

// CachedLen returns the number of resolved remote entries
func (d *DegreeTable) CachedLen() int { return len(d.cached) }

// ClusteringResult holds the coefficients of owned nodes and, after the
// reduction, the global aggregate
type ClusteringResult struct {
	Mode TriangleMode
	// Coefficients holds C(v) for every owned node; 0 below degree 2.
	Coefficients map[uint64]float64
	// Triangles holds the closed neighbor pairs of every owned node.
	Triangles map[uint64]uint64

	// LocalSum and LocalCount are this rank's partial aggregate over
	// nodes of degree two or more.
	LocalSum   float64
	LocalCount uint64

	// Sum, Count and Mean are global.
	Sum   float64
	Count uint64
	Mean  float64
	// TriangleIncidences counts closed pairs over all ranks. On a
	// symmetric table every triangle is counted once per corner.
	TriangleIncidences uint64

	// MembershipRounds is the number of query/answer round pairs of exact
	// mode, the same on every rank.
	MembershipRounds int
	// PeakQueries is the most distinct pairs this rank asked in one round.
	PeakQueries int
}
