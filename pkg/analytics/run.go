package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dd0wney/cluso-connectome/pkg/comm"
	"github.com/dd0wney/cluso-connectome/pkg/logging"
	"github.com/dd0wney/cluso-connectome/pkg/metrics"
	"github.com/dd0wney/cluso-connectome/pkg/partition"
	"github.com/dd0wney/cluso-connectome/pkg/store"
	"github.com/dd0wney/cluso-connectome/pkg/wire"
)

// Stage names
const (
	StageBroadcast  = "broadcast"
	StageNeighbors  = "neighbors"
	StageDegrees    = "degrees"
	StageClustering = "clustering"
	StageVertex     = "vertex_metrics"
)

// Options configures a pipeline run
type Options struct {
	Strategy     partition.Strategy
	IOSize       int
	Projections  []store.Projection
	Directed     bool
	TriangleMode TriangleMode
	Workers      int
	ChunkSize    int
	BatchPairs   int
	// BroadcastGraph replicates the whole graph from rank 0 before the
	// run. Only rank 0 needs a store.
	BroadcastGraph bool
}

// StageTiming is the wall time of one stage on one rank
type StageTiming struct {
	Stage    string
	Duration time.Duration
}

// Report is the outcome of a run as seen by one rank. Clustering and
// Vertex carry the global aggregates on every rank.
type Report struct {
	RunID      string
	Rank       int
	WorldSize  int
	TotalNodes uint64
	Strategy   partition.Strategy

	Clustering *ClusteringResult
	Vertex     *VertexMetrics
	Stages     []StageTiming
	// Collectives lists the collectives this rank issued, in order.
	Collectives []comm.Event
}

// Pipeline runs assign, neighbors, degrees, clustering and vertex
// metrics on one rank
type Pipeline struct {
	opts    Options
	logger  logging.Logger
	metrics *metrics.Registry
}

// NewPipeline creates a pipeline. reg may be nil.
func NewPipeline(opts Options, logger logging.Logger, reg *metrics.Registry) *Pipeline {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Pipeline{opts: opts, logger: logger, metrics: reg}
}

// Run executes the pipeline. Every rank of c must call it; st is needed
// on the I/O ranks and on rank 0.
func (p *Pipeline) Run(ctx context.Context, c comm.Communicator, st store.Store) (report *Report, err error) {
	var observer comm.Observer
	if p.metrics != nil {
		observer = p.metrics
	}
	rec := comm.NewRecorder(c, observer)
	report = &Report{Rank: c.Rank(), WorldSize: c.Size()}
	logger := logging.ForRank(p.logger, c.Rank(), c.Size())

	defer func() {
		report.Collectives = rec.Events()
		if p.metrics != nil {
			p.metrics.RecordRun(err)
		}
	}()

	if p.opts.BroadcastGraph {
		t := logging.StartTimer(logger, "stage finished", logging.Stage(StageBroadcast))
		replica, err := store.BroadcastGraph(ctx, rec, st)
		if err != nil {
			t.EndError(err)
			return report, &RankError{Rank: c.Rank(), Component: ComponentRun, Err: err}
		}
		report.Stages = append(report.Stages, p.endStage(t, StageBroadcast))
		st = replica
	}

	header, err := p.openRun(ctx, rec, st)
	if err != nil {
		logger.Error("run header failed", logging.Error(err))
		return report, err
	}
	report.RunID = header.RunID
	report.TotalNodes = header.NumNodes

	m, err := partition.Assign(header.NumNodes, c.Size(), p.opts.Strategy)
	if err != nil {
		return report, &RankError{Rank: c.Rank(), Component: ComponentRun, Err: err}
	}
	report.Strategy = m.Strategy()

	rc, err := NewRunContext(rec, m, p.logger, p.metrics, header.RunID)
	if err != nil {
		return report, err
	}
	rc.Logger.Info("run started",
		logging.Uint64("nodes", header.NumNodes),
		logging.String("strategy", string(m.Strategy())),
		logging.String("triangle_mode", p.opts.TriangleMode.String()))

	fail := func(t *logging.TimedOperation, err error) (*Report, error) {
		t.EndError(err)
		rc.Abort(ctx, err)
		return report, err
	}

	t := logging.StartTimer(rc.Logger, "stage finished", logging.Stage(StageNeighbors))
	table, err := NewNeighborResolver(NeighborOptions{
		IOSize:      p.opts.IOSize,
		Projections: p.opts.Projections,
		Directed:    p.opts.Directed,
	}).Resolve(ctx, rc, st)
	if err != nil {
		return fail(t, err)
	}
	report.Stages = append(report.Stages, p.endStage(t, StageNeighbors, logging.Count(table.Len())))

	t = logging.StartTimer(rc.Logger, "stage finished", logging.Stage(StageDegrees))
	degrees, err := NewDegreeResolver().Resolve(ctx, rc, table)
	if err != nil {
		return fail(t, err)
	}
	report.Stages = append(report.Stages, p.endStage(t, StageDegrees, logging.Int("cached", degrees.CachedLen())))

	t = logging.StartTimer(rc.Logger, "stage finished", logging.Stage(StageClustering))
	result, err := NewClusteringEngine(ClusteringOptions{
		Mode:       p.opts.TriangleMode,
		Workers:    p.opts.Workers,
		ChunkSize:  p.opts.ChunkSize,
		BatchPairs: p.opts.BatchPairs,
	}).Compute(ctx, rc, table, degrees)
	if err != nil {
		return fail(t, err)
	}
	report.Clustering = result
	report.Stages = append(report.Stages, p.endStage(t, StageClustering, logging.Float64("mean", result.Mean)))

	t = logging.StartTimer(rc.Logger, "stage finished", logging.Stage(StageVertex))
	vm, err := ComputeVertexMetrics(ctx, rc, table)
	if err != nil {
		return fail(t, err)
	}
	report.Vertex = vm
	report.Stages = append(report.Stages, p.endStage(t, StageVertex, logging.Uint64("edge_cuts", vm.EdgeCuts())))

	if p.metrics != nil && rc.Rank() == 0 {
		p.metrics.SetResult(result.Mean, result.Count, vm.EdgeCuts(), vm.Partition.LoadBalance)
	}
	return report, nil
}

func (p *Pipeline) endStage(t *logging.TimedOperation, stage string, fields ...logging.Field) StageTiming {
	d := t.End(fields...)
	if p.metrics != nil {
		p.metrics.RecordStage(stage, d)
	}
	return StageTiming{Stage: stage, Duration: d}
}

// openRun broadcasts the run id and node count from rank 0. A store
// failure on rank 0 is broadcast in their place.
func (p *Pipeline) openRun(ctx context.Context, c comm.Communicator, st store.Store) (wire.Header, error) {
	var payload []byte
	var localErr error
	if c.Rank() == 0 {
		n, err := numNodes(ctx, st)
		if err != nil {
			localErr = &RankError{Rank: 0, Component: ComponentRun, Err: err}
			payload = wire.EncodeAbort(abortKind(err), 0, localErr.Error())
		} else {
			payload = wire.EncodeHeader(wire.Header{RunID: uuid.NewString(), NumNodes: n})
		}
	}

	got, err := c.Broadcast(ctx, 0, payload)
	if localErr != nil {
		return wire.Header{}, localErr
	}
	if err != nil {
		return wire.Header{}, &RankError{Rank: c.Rank(), Component: ComponentRun, Err: err}
	}
	header, err := wire.DecodeHeader(got)
	if err != nil {
		var abort *wire.Abort
		if errors.As(err, &abort) {
			return wire.Header{}, newRemoteAbort(err)
		}
		return wire.Header{}, &RankError{Rank: c.Rank(), Component: ComponentRun, Err: err}
	}
	return header, nil
}

func numNodes(ctx context.Context, st store.Store) (uint64, error) {
	if st == nil {
		return 0, fmt.Errorf("%w: rank 0 has no store", store.ErrUnavailable)
	}
	return st.NumNodes(ctx)
}
