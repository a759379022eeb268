package analytics

import (
	"context"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/dd0wney/cluso-connectome/pkg/comm"
	"github.com/dd0wney/cluso-connectome/pkg/logging"
	"github.com/dd0wney/cluso-connectome/pkg/partition"
	"github.com/dd0wney/cluso-connectome/pkg/store"
)

const testTimeout = 5 * time.Second

// fourNodeEdges is a triangle 0-1-2 with a pendant node 3 on node 2
func fourNodeEdges() []store.Edge {
	return []store.Edge{{Src: 0, Dst: 1}, {Src: 1, Dst: 2}, {Src: 2, Dst: 0}, {Src: 2, Dst: 3}}
}

// runRanks runs fn on every rank of a local group without cancelling the
// others when one fails, so error propagation between ranks is observable
func runRanks(t *testing.T, size int, fn func(ctx context.Context, c comm.Communicator) error) []error {
	t.Helper()
	g, err := comm.NewLocalGroup(size, comm.WithTimeout(testTimeout))
	if err != nil {
		t.Fatalf("NewLocalGroup failed: %v", err)
	}
	defer g.Close()

	errs := make([]error, size)
	var wg sync.WaitGroup
	for r := 0; r < size; r++ {
		member, err := g.Member(r)
		if err != nil {
			t.Fatalf("Member(%d) failed: %v", r, err)
		}
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			errs[r] = fn(context.Background(), member)
		}(r)
	}
	wg.Wait()
	return errs
}

// runPipeline runs a pipeline on size ranks. storeFor returns the store
// of each rank.
func runPipeline(t *testing.T, size int, opts Options, storeFor func(rank int) store.Store) ([]*Report, []error) {
	t.Helper()
	reports := make([]*Report, size)
	errs := runRanks(t, size, func(ctx context.Context, c comm.Communicator) error {
		report, err := NewPipeline(opts, logging.NewNopLogger(), nil).Run(ctx, c, storeFor(c.Rank()))
		reports[c.Rank()] = report
		return err
	})
	return reports, errs
}

func shared(st store.Store) func(int) store.Store {
	return func(int) store.Store { return st }
}

// mergedCoefficients joins the owned coefficients of every rank
func mergedCoefficients(t *testing.T, reports []*Report) map[uint64]float64 {
	t.Helper()
	all := make(map[uint64]float64)
	for r, rep := range reports {
		if rep == nil || rep.Clustering == nil {
			t.Fatalf("rank %d has no clustering result", r)
		}
		for id, c := range rep.Clustering.Coefficients {
			if _, dup := all[id]; dup {
				t.Fatalf("node %d has a coefficient on more than one rank", id)
			}
			all[id] = c
		}
	}
	return all
}

// newTestRunContext builds a run context on a member of a local group
func newTestRunContext(t *testing.T, c comm.Communicator, m partition.NodeRankMap) *RunContext {
	t.Helper()
	rc, err := NewRunContext(c, m, logging.NewNopLogger(), nil, "test")
	if err != nil {
		t.Errorf("NewRunContext failed: %v", err)
		return nil
	}
	return rc
}

// referenceClustering computes coefficients of an undirected graph on a
// single adjacency map
func referenceClustering(n uint64, edges []store.Edge) map[uint64]float64 {
	adj := make(map[uint64]map[uint64]bool)
	for id := uint64(0); id < n; id++ {
		adj[id] = make(map[uint64]bool)
	}
	for _, e := range edges {
		if e.Src == e.Dst {
			continue
		}
		adj[e.Src][e.Dst] = true
		adj[e.Dst][e.Src] = true
	}

	coeffs := make(map[uint64]float64, n)
	for v, nbs := range adj {
		list := make([]uint64, 0, len(nbs))
		for u := range nbs {
			list = append(list, u)
		}
		k := uint64(len(list))
		if k < 2 {
			coeffs[v] = 0
			continue
		}
		var closed uint64
		for i := range list {
			for j := i + 1; j < len(list); j++ {
				if adj[list[i]][list[j]] {
					closed++
				}
			}
		}
		coeffs[v] = 2 * float64(closed) / float64(k*(k-1))
	}
	return coeffs
}

// randomEdges returns m seeded random directed edges over [0, n),
// self-loops and duplicates included
func randomEdges(n uint64, m int, seed uint64) []store.Edge {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	edges := make([]store.Edge, m)
	for i := range edges {
		edges[i] = store.Edge{Src: rng.Uint64N(n), Dst: rng.Uint64N(n)}
	}
	return edges
}

type metricWriter interface {
	Write(*dto.Metric) error
}

func gaugeValue(t *testing.T, m metricWriter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := m.Write(&metric); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	return metric.GetGauge().GetValue()
}

func counterValue(t *testing.T, m metricWriter) float64 {
	t.Helper()
	var metric dto.Metric
	if err := m.Write(&metric); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	return metric.GetCounter().GetValue()
}
