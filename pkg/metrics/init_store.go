package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initStoreMetrics() {
	r.StoreReadsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphcc_store_reads_total",
			Help: "Total number of graph store range reads",
		},
		[]string{"projection", "status"},
	)

	r.StoreReadDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphcc_store_read_duration_seconds",
			Help:    "Graph store range read duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"projection"},
	)

	r.StoreRecordsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "graphcc_store_records_total",
			Help: "Adjacency records read from the graph store",
		},
	)

	r.StoreForwardedRecs = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "graphcc_store_forwarded_records_total",
			Help: "Records forwarded to another rank after reading",
		},
	)
}
