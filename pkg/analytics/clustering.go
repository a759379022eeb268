package analytics

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/dd0wney/cluso-connectome/pkg/logging"
	"github.com/dd0wney/cluso-connectome/pkg/parallel"
	"github.com/dd0wney/cluso-connectome/pkg/wire"
)

// TriangleMode selects how neighbor pairs owned elsewhere are tested
type TriangleMode int

const (
	// TrianglesExact asks the owner of a pair's endpoint whether the
	// pair is connected, with one extra request/response round.
	TrianglesExact TriangleMode = iota
	// TrianglesLocal only tests pairs with an endpoint owned locally and
	// skips the rest. No extra round; undercounts across rank boundaries.
	TrianglesLocal
)

func (m TriangleMode) String() string {
	switch m {
	case TrianglesExact:
		return "exact"
	case TrianglesLocal:
		return "local"
	default:
		return fmt.Sprintf("TriangleMode(%d)", int(m))
	}
}

// ParseTriangleMode parses "exact" or "local"
func ParseTriangleMode(s string) (TriangleMode, error) {
	switch strings.ToLower(s) {
	case "", "exact":
		return TrianglesExact, nil
	case "local":
		return TrianglesLocal, nil
	default:
		return 0, fmt.Errorf("unknown triangle mode %q", s)
	}
}

// ClusteringOptions configures the engine
type ClusteringOptions struct {
	Mode TriangleMode
	// Workers is the size of the per-rank worker pool; zero uses
	// GOMAXPROCS.
	Workers int
	// ChunkSize is the number of nodes per pool task.
	ChunkSize int
	// BatchPairs caps the neighbor pairs one rank plans per membership
	// round. Exact mode runs as many rounds as the busiest rank needs.
	BatchPairs int
}

// DefaultBatchPairs is the membership batch used when none is set
const DefaultBatchPairs = 1 << 16

// ClusteringEngine computes local clustering coefficients
type ClusteringEngine struct {
	opts ClusteringOptions
}

// NewClusteringEngine creates an engine
func NewClusteringEngine(opts ClusteringOptions) *ClusteringEngine {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 256
	}
	if opts.BatchPairs <= 0 {
		opts.BatchPairs = DefaultBatchPairs
	}
	return &ClusteringEngine{opts: opts}
}

// pairTester decides whether two neighbors of a node are connected
type pairTester struct {
	rc      *RunContext
	table   *AdjacencyTable
	degrees *DegreeTable
	prune   bool
	mode    TriangleMode
}

// orient returns the endpoint whose adjacency is consulted first: the one
// with the smaller degree, the smaller id on ties
func (pt *pairTester) orient(u, w uint64) (wire.Pair, bool, error) {
	du, ok := pt.degrees.Degree(u)
	if !ok {
		return wire.Pair{}, false, ownershipError(pt.rc.Rank(), ComponentClustering, u, "no degree for neighbor %d", u)
	}
	dw, ok := pt.degrees.Degree(w)
	if !ok {
		return wire.Pair{}, false, ownershipError(pt.rc.Rank(), ComponentClustering, w, "no degree for neighbor %d", w)
	}
	// a neighbor whose only neighbor is the center closes no pair
	if pt.prune && (du < 2 || dw < 2) {
		return wire.Pair{}, false, nil
	}
	if dw < du || (dw == du && w < u) {
		u, w = w, u
	}
	return wire.Pair{U: u, W: w}, true, nil
}

// closed reports whether p.W is a neighbor of p.U from owned adjacency.
// ok is false when the pair has to be asked of another rank, or cannot be
// answered at all in local mode.
func (pt *pairTester) closed(p wire.Pair) (closed, ok bool) {
	if e, owned := pt.table.Entry(p.U); owned {
		return e.HasNeighbor(p.W), true
	}
	if pt.mode == TrianglesLocal {
		if e, owned := pt.table.Entry(p.W); owned && pt.table.Symmetric() {
			return e.HasNeighbor(p.U), true
		}
	}
	return false, false
}

// pairCursor is a position in the neighbor pairs of a table: entry index,
// then the two neighbor indexes i < j
type pairCursor struct {
	entry, i, j int
}

func newPairCursor() *pairCursor { return &pairCursor{j: 1} }

// scanRemote calls fn for every pair from cur on whose oriented endpoint
// is owned by another rank. It stops when fn returns false and leaves cur
// on the pair fn rejected.
func (pt *pairTester) scanRemote(cur *pairCursor, fn func(entry int, p wire.Pair) bool) error {
	entries := pt.table.Entries()
	for ; cur.entry < len(entries); cur.entry, cur.i, cur.j = cur.entry+1, 0, 1 {
		nbs := entries[cur.entry].Neighbors
		for ; cur.i < len(nbs); cur.i, cur.j = cur.i+1, cur.i+2 {
			for ; cur.j < len(nbs); cur.j++ {
				p, ok, err := pt.orient(nbs[cur.i], nbs[cur.j])
				if err != nil {
					return err
				}
				if !ok || pt.rc.owns(p.U) {
					continue
				}
				if !fn(cur.entry, p) {
					return nil
				}
			}
		}
	}
	return nil
}

// Compute returns the coefficient of every owned node and the global
// aggregate. Nodes of degree below two get 0 and do not count towards
// the mean.
func (ce *ClusteringEngine) Compute(ctx context.Context, rc *RunContext, table *AdjacencyTable, degrees *DegreeTable) (*ClusteringResult, error) {
	pt := &pairTester{
		rc:      rc,
		table:   table,
		degrees: degrees,
		prune:   table.Symmetric(),
		mode:    ce.opts.Mode,
	}

	entries := table.Entries()
	triangles := make([]uint64, len(entries))
	res := &ClusteringResult{
		Mode:         ce.opts.Mode,
		Coefficients: make(map[uint64]float64, len(entries)),
		Triangles:    make(map[uint64]uint64, len(entries)),
	}

	if ce.opts.Mode == TrianglesExact {
		if err := ce.membershipRounds(ctx, rc, pt, triangles, res); err != nil {
			return nil, err
		}
	}

	coeffs := make([]float64, len(entries))
	localErr := parallel.ForEachChunk(ce.opts.Workers, len(entries), ce.opts.ChunkSize, func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			t, err := countTriangles(pt, &entries[i])
			if err != nil {
				return err
			}
			triangles[i] += t
			coeffs[i] = coefficient(entries[i].Degree(), triangles[i])
		}
		return nil
	})

	var localTriangles uint64
	if localErr == nil {
		// ascending node order keeps the partial sum bit-identical
		for i := range entries {
			id := entries[i].Node
			res.Coefficients[id] = coeffs[i]
			res.Triangles[id] = triangles[i]
			localTriangles += triangles[i]
			if entries[i].Degree() >= 2 {
				res.LocalSum += coeffs[i]
				res.LocalCount++
			}
		}
	} else {
		localErr = rc.rankError(ComponentClustering, localErr)
	}
	if rc.Metrics != nil {
		rc.Metrics.TrianglesTotal.Add(float64(localTriangles))
	}

	sums, err := reduceFailed(ctx, rc, ComponentClustering,
		[]float64{res.LocalSum, float64(res.LocalCount), float64(localTriangles)}, localErr)
	if err != nil {
		return nil, err
	}
	res.Sum = sums[0]
	res.Count = uint64(sums[1])
	res.TriangleIncidences = uint64(sums[2])
	if res.Count > 0 {
		res.Mean = res.Sum / float64(res.Count)
	}

	rc.Logger.Debug("clustering computed",
		logging.Int("nodes", len(entries)),
		logging.Float64("local_sum", res.LocalSum),
		logging.Float64("mean", res.Mean))
	return res, nil
}

func coefficient(degree, triangles uint64) float64 {
	if degree < 2 {
		return 0
	}
	return 2 * float64(triangles) / float64(degree*(degree-1))
}

// countTriangles counts the closed pairs of e answerable without asking
// another rank
func countTriangles(pt *pairTester, e *AdjacencyEntry) (uint64, error) {
	var t uint64
	nbs := e.Neighbors
	for i := 0; i < len(nbs); i++ {
		for j := i + 1; j < len(nbs); j++ {
			p, ok, err := pt.orient(nbs[i], nbs[j])
			if err != nil {
				return 0, err
			}
			if !ok {
				continue
			}
			if closed, known := pt.closed(p); known && closed {
				t++
			}
		}
	}
	return t, nil
}

// membershipRounds asks the owner of each remote pair's first endpoint
// whether the pair is connected and adds the closed ones to triangles.
// Pairs are planned BatchPairs at a time; all ranks first exchange their
// batch counts, then run a query and an answer exchange per round.
func (ce *ClusteringEngine) membershipRounds(ctx context.Context, rc *RunContext, pt *pairTester, triangles []uint64, res *ClusteringResult) error {
	size := rc.Size()
	batch := ce.opts.BatchPairs

	var planned uint64
	planErr := pt.scanRemote(newPairCursor(), func(int, wire.Pair) bool {
		planned++
		return true
	})
	if planErr != nil {
		planErr = rc.rankError(ComponentClustering, planErr)
	}

	// every rank learns every batch count; the busiest rank sets the
	// round count
	mine := wire.EncodeCounts([]uint64{(planned + uint64(batch) - 1) / uint64(batch)})
	sends := make([][]byte, size)
	for dst := range sends {
		sends[dst] = mine
	}
	recv, err := rc.exchange(ctx, ComponentClustering, sends, planErr)
	if err != nil {
		return err
	}
	rounds := 0
	for src, frame := range recv {
		counts, err := wire.DecodeCounts(frame)
		if err != nil || len(counts) != 1 {
			return rc.rankError(ComponentClustering, fmt.Errorf("batch count from rank %d: %v", src, err))
		}
		rounds = max(rounds, int(counts[0]))
	}

	cur := newPairCursor()
	for range rounds {
		if err := ce.membershipRound(ctx, rc, pt, cur, triangles, res); err != nil {
			return err
		}
	}
	res.MembershipRounds = rounds
	if rounds > 0 {
		rc.Logger.Debug("membership resolved",
			logging.Int("rounds", rounds),
			logging.Uint64("planned_pairs", planned),
			logging.Int("peak_queries", res.PeakQueries))
	}
	return nil
}

type plannedPair struct {
	entry int
	pair  wire.Pair
}

// membershipRound plans up to BatchPairs remote pairs from cur, runs one
// query and one answer exchange, and counts the closed pairs
func (ce *ClusteringEngine) membershipRound(ctx context.Context, rc *RunContext, pt *pairTester, cur *pairCursor, triangles []uint64, res *ClusteringResult) error {
	rank, size := rc.Rank(), rc.Size()

	plan := make([]plannedPair, 0, min(ce.opts.BatchPairs, 1024))
	queries := make([]map[wire.Pair]struct{}, size)
	for i := range queries {
		queries[i] = make(map[wire.Pair]struct{})
	}
	planErr := pt.scanRemote(cur, func(entry int, p wire.Pair) bool {
		if len(plan) == ce.opts.BatchPairs {
			return false
		}
		plan = append(plan, plannedPair{entry: entry, pair: p})
		queries[rc.Map.GetPartition(p.U)][p] = struct{}{}
		return true
	})
	if planErr != nil {
		planErr = rc.rankError(ComponentClustering, planErr)
	}

	asked := make([][]wire.Pair, size)
	sends := make([][]byte, size)
	distinct := 0
	for dst, set := range queries {
		pairs := make([]wire.Pair, 0, len(set))
		for p := range set {
			pairs = append(pairs, p)
		}
		slices.SortFunc(pairs, comparePairs)
		asked[dst] = pairs
		sends[dst] = wire.EncodePairs(pairs)
		distinct += len(pairs)
	}
	res.PeakQueries = max(res.PeakQueries, distinct)

	recv, err := rc.exchange(ctx, ComponentClustering, sends, planErr)
	if err != nil {
		return err
	}

	replies := make([][]byte, size)
	var answered int
	var answerErr error
	for src, frame := range recv {
		pairs, err := wire.DecodePairs(frame)
		if err != nil {
			answerErr = rc.rankError(ComponentClustering, fmt.Errorf("queries from rank %d: %w", src, err))
			break
		}
		bits := make([]bool, len(pairs))
		for i, p := range pairs {
			entry, ok := pt.table.Entry(p.U)
			if !ok {
				answerErr = ownershipError(rank, ComponentClustering, p.U,
					"rank %d asked about the neighbors of node %d, owner is rank %d", src, p.U, rc.Map.GetPartition(p.U))
				break
			}
			bits[i] = entry.HasNeighbor(p.W)
		}
		if answerErr != nil {
			break
		}
		replies[src] = wire.EncodeBits(bits)
		answered += len(pairs)
	}
	if rc.Metrics != nil {
		rc.Metrics.MembershipQueriesTotal.Add(float64(answered))
	}

	recv, err = rc.exchange(ctx, ComponentClustering, replies, answerErr)
	if err != nil {
		return err
	}

	answers := make(map[wire.Pair]bool, distinct)
	for src, frame := range recv {
		if src == rank {
			continue
		}
		bits, err := wire.DecodeBits(frame)
		if err != nil {
			return rc.rankError(ComponentClustering, fmt.Errorf("answers from rank %d: %w", src, err))
		}
		if len(bits) != len(asked[src]) {
			return rc.rankError(ComponentClustering,
				fmt.Errorf("%w: rank %d answered %d of %d membership queries", ErrOwnershipInconsistency, src, len(bits), len(asked[src])))
		}
		for i, p := range asked[src] {
			answers[p] = bits[i]
		}
	}
	for _, pp := range plan {
		if answers[pp.pair] {
			triangles[pp.entry]++
		}
	}
	return nil
}

func comparePairs(a, b wire.Pair) int {
	switch {
	case a.U < b.U:
		return -1
	case a.U > b.U:
		return 1
	case a.W < b.W:
		return -1
	case a.W > b.W:
		return 1
	}
	return 0
}
