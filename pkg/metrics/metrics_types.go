// Package metrics exposes the Prometheus metrics of an analytics run.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the application
type Registry struct {
	// Collective Metrics
	CollectivesTotal   *prometheus.CounterVec
	CollectiveDuration *prometheus.HistogramVec
	CollectiveBytes    *prometheus.CounterVec

	// Store Metrics
	StoreReadsTotal    *prometheus.CounterVec
	StoreReadDuration  *prometheus.HistogramVec
	StoreRecordsTotal  prometheus.Counter
	StoreForwardedRecs prometheus.Counter

	// Pipeline Metrics
	RunsTotal              *prometheus.CounterVec
	StageDuration          *prometheus.HistogramVec
	NodesOwned             *prometheus.GaugeVec
	RemoteRefs             *prometheus.GaugeVec
	DegreeRequestsTotal    prometheus.Counter
	MembershipQueriesTotal prometheus.Counter
	TrianglesTotal         prometheus.Counter

	// Result Metrics
	ClusteringMean  prometheus.Gauge
	ClusteringNodes prometheus.Gauge
	EdgeCutsTotal   prometheus.Gauge
	LoadBalance     prometheus.Gauge

	// System Metrics
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge
	MemorySysBytes   prometheus.Gauge

	registry *prometheus.Registry
	started  time.Time
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		started:  time.Now(),
	}

	r.initCollectiveMetrics()
	r.initStoreMetrics()
	r.initPipelineMetrics()
	r.initResultMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
