package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initPipelineMetrics() {
	r.RunsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "graphcc_runs_total",
			Help: "Total number of pipeline runs by outcome",
		},
		[]string{"status"},
	)

	r.StageDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "graphcc_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"stage"},
	)

	r.NodesOwned = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "graphcc_nodes_owned",
			Help: "Nodes owned by a rank",
		},
		[]string{"rank"},
	)

	r.RemoteRefs = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "graphcc_remote_refs",
			Help: "Distinct neighbor ids a rank resolved from other ranks",
		},
		[]string{"rank"},
	)

	r.DegreeRequestsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "graphcc_degree_requests_total",
			Help: "Remote degree lookups answered",
		},
	)

	r.MembershipQueriesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "graphcc_membership_queries_total",
			Help: "Remote edge-membership queries answered",
		},
	)

	r.TrianglesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "graphcc_triangle_incidences_total",
			Help: "Closed neighbor pairs counted at their center node",
		},
	)
}

func (r *Registry) initResultMetrics() {
	r.ClusteringMean = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "graphcc_clustering_coefficient_mean",
			Help: "Mean local clustering coefficient of the last run",
		},
	)

	r.ClusteringNodes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "graphcc_clustering_nodes",
			Help: "Nodes of degree two or more in the last run",
		},
	)

	r.EdgeCutsTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "graphcc_edge_cuts",
			Help: "Neighbor references crossing a rank boundary in the last run",
		},
	)

	r.LoadBalance = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "graphcc_load_balance",
			Help: "Ratio of the smallest to the largest rank partition",
		},
	)
}
