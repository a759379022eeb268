package metrics

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveCollective records one collective. It lets a Registry observe a
// comm.Recorder.
func (r *Registry) ObserveCollective(kind string, bytesOut, bytesIn int, duration time.Duration, err error) {
	r.CollectivesTotal.WithLabelValues(kind, status(err)).Inc()
	r.CollectiveDuration.WithLabelValues(kind).Observe(duration.Seconds())
	r.CollectiveBytes.WithLabelValues(kind, "out").Add(float64(bytesOut))
	r.CollectiveBytes.WithLabelValues(kind, "in").Add(float64(bytesIn))
}

// RecordStoreRead records one range read of a projection
func (r *Registry) RecordStoreRead(projection string, records int, duration time.Duration, err error) {
	r.StoreReadsTotal.WithLabelValues(projection, status(err)).Inc()
	r.StoreReadDuration.WithLabelValues(projection).Observe(duration.Seconds())
	r.StoreRecordsTotal.Add(float64(records))
}

// RecordStage records the duration of a pipeline stage
func (r *Registry) RecordStage(stage string, duration time.Duration) {
	r.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordRun counts a finished run
func (r *Registry) RecordRun(err error) {
	r.RunsTotal.WithLabelValues(status(err)).Inc()
}

// SetRankLoad sets the per-rank partition gauges
func (r *Registry) SetRankLoad(rank int, owned, remoteRefs uint64) {
	label := strconv.Itoa(rank)
	r.NodesOwned.WithLabelValues(label).Set(float64(owned))
	r.RemoteRefs.WithLabelValues(label).Set(float64(remoteRefs))
}

// SetResult publishes the global outcome of a run
func (r *Registry) SetResult(mean float64, nodes, edgeCuts uint64, loadBalance float64) {
	r.ClusteringMean.Set(mean)
	r.ClusteringNodes.Set(float64(nodes))
	r.EdgeCutsTotal.Set(float64(edgeCuts))
	r.LoadBalance.Set(loadBalance)
}

// UpdateSystemMetrics samples uptime, goroutines and memory
func (r *Registry) UpdateSystemMetrics() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	r.UptimeSeconds.Set(time.Since(r.started).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
	r.MemoryAllocBytes.Set(float64(ms.Alloc))
	r.MemorySysBytes.Set(float64(ms.Sys))
}

// Handler serves the registry in the Prometheus exposition format,
// sampling the system metrics on every scrape
func (r *Registry) Handler() http.Handler {
	inner := promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.UpdateSystemMetrics()
		inner.ServeHTTP(w, req)
	})
}
