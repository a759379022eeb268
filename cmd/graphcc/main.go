// Command graphcc computes local clustering coefficients of a connectome
// graph over a group of ranks.
//
// With transport local every rank runs in this process. With nng or zmq
// one process runs one rank; start one per entry of peers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dd0wney/cluso-connectome/pkg/analytics"
	"github.com/dd0wney/cluso-connectome/pkg/comm"
	"github.com/dd0wney/cluso-connectome/pkg/config"
	"github.com/dd0wney/cluso-connectome/pkg/logging"
	"github.com/dd0wney/cluso-connectome/pkg/metrics"
	"github.com/dd0wney/cluso-connectome/pkg/store"
)

func main() {
	var (
		configFile = flag.String("config", "graphcc.yaml", "Run configuration file")
		rank       = flag.Int("rank", -1, "Rank of this process (overrides config)")
		size       = flag.Int("size", 0, "Number of ranks (overrides config)")
		edges      = flag.String("edges", "", "Edge list for a memory store (overrides config)")
	)
	flag.Parse()

	cfg, err := config.LoadFile(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "graphcc: %v\n", err)
		os.Exit(2)
	}
	if *rank >= 0 {
		cfg.Rank = *rank
	}
	if *size > 0 {
		cfg.WorldSize = *size
	}
	if *edges != "" {
		cfg.Store.Kind = config.StoreMemory
		cfg.Store.EdgeFile = *edges
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "graphcc: %v\n", err)
		os.Exit(2)
	}

	logger := logging.NewJSONLogger(os.Stderr, logging.ParseLevel(cfg.LogLevel))
	reg := metrics.NewRegistry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(reg), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", logging.Error(err))
			}
		}()
		defer srv.Close()
		logger.Info("serving metrics", logging.String("addr", cfg.MetricsAddr))
	}

	report, err := run(ctx, cfg, logger, reg)
	if err != nil {
		logger.Error("run failed", logging.Error(err))
		fmt.Fprintf(os.Stderr, "graphcc: %v\n", err)
		os.Exit(1)
	}
	if report != nil {
		fmt.Println(renderSummary(report))
	}
}

func metricsMux(reg *metrics.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	return mux
}

// run executes the pipeline and returns the report of rank 0, or nil on
// a process that runs another rank
func run(ctx context.Context, cfg *config.Config, logger logging.Logger, reg *metrics.Registry) (*analytics.Report, error) {
	opts, err := cfg.PipelineOptions()
	if err != nil {
		return nil, err
	}
	pipeline := analytics.NewPipeline(opts, logger, reg)

	if cfg.Transport == config.TransportLocal {
		return runLocal(ctx, cfg, pipeline)
	}
	return runSocket(ctx, cfg, pipeline, logger)
}

func runLocal(ctx context.Context, cfg *config.Config, pipeline *analytics.Pipeline) (*analytics.Report, error) {
	st, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	var report *analytics.Report
	err = comm.RunLocal(ctx, cfg.WorldSize, func(ctx context.Context, c comm.Communicator) error {
		rep, err := pipeline.Run(ctx, c, st)
		if c.Rank() == 0 {
			report = rep
		}
		return err
	}, comm.WithTimeout(cfg.CollectiveTimeout))
	if err != nil {
		return nil, err
	}
	return report, nil
}

func runSocket(ctx context.Context, cfg *config.Config, pipeline *analytics.Pipeline, logger logging.Logger) (*analytics.Report, error) {
	factory, err := comm.NewSocketFactory(cfg.Transport)
	if err != nil {
		return nil, err
	}
	c, err := comm.NewSocketComm(factory, comm.SocketConfig{
		Rank:              cfg.Rank,
		Peers:             cfg.Peers,
		CollectiveTimeout: cfg.CollectiveTimeout,
		SendTimeout:       cfg.SendTimeout,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}
	defer c.Close()

	// ranks that do not read leave st nil
	var st store.Store
	if cfg.ReadsStore(cfg.Rank) {
		opened, err := openStore(ctx, cfg)
		if err != nil {
			// still join the run so peers learn of the failure
			logger.Error("store unavailable", logging.Error(err))
		} else {
			st = opened
			defer opened.Close()
		}
	}

	report, err := pipeline.Run(ctx, c, st)
	if err != nil {
		return nil, err
	}
	if cfg.Rank != 0 {
		return nil, nil
	}
	return report, nil
}
