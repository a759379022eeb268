package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initCollectiveMetrics() {
	r.CollectivesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphcc_collectives_total",
			Help: "Total number of collective operations issued",
		},
		[]string{"kind", "status"},
	)

	r.CollectiveDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphcc_collective_duration_seconds",
			Help:    "Time a rank spent blocked in a collective",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"kind"},
	)

	r.CollectiveBytes = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphcc_collective_bytes_total",
			Help: "Uncompressed payload bytes moved by collectives",
		},
		[]string{"kind", "direction"},
	)
}
