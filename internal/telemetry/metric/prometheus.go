package metric

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "timemachine"

// Restore outcomes recorded by RecordRestore.
const (
	OutcomeLoaded       = "loaded"
	OutcomeRestarted    = "restarted"
	OutcomeNotFound     = "not_found"
	OutcomeCorrupt      = "corrupt"
	OutcomeIncompatible = "incompatible"
	OutcomeDeclined     = "declined"
	OutcomeError        = "error"
)

// GC run results recorded by RecordGCRun.
const (
	GCResultCompleted = "completed"
	GCResultPartial   = "partial"
	GCResultSkipped   = "skipped"
)

// Registry holds all application metrics on a private Prometheus registry.
type Registry struct {
	registry *prometheus.Registry

	// Snapshot metrics
	SnapshotsWritten     prometheus.Counter
	SnapshotBytesWritten prometheus.Counter
	SnapshotWriteErrors  prometheus.Counter

	// Restore metrics
	RestoreTotal    *prometheus.CounterVec
	RestoreDuration prometheus.Histogram

	// GC metrics
	GCSessionsDeleted prometheus.Counter
	GCDeleteFailures  prometheus.Counter
	GCRuns            *prometheus.CounterVec

	// Storage metrics
	StoreSize prometheus.Gauge

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

var (
	globalOnce     sync.Once
	globalRegistry *Registry
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}

// Handler returns an HTTP handler serving the global registry.
func Handler() http.Handler {
	return Global().Handler()
}

// NewRegistry creates a registry with every application metric plus the Go
// runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,

		SnapshotsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_written_total",
			Help:      "Snapshots persisted after a completed round",
		}),
		SnapshotBytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_bytes_written_total",
			Help:      "Encoded snapshot bytes persisted",
		}),
		SnapshotWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_errors_total",
			Help:      "Snapshot writes that failed",
		}),

		RestoreTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restore_total",
			Help:      "Restore attempts by outcome",
		}, []string{"outcome"}),
		RestoreDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "restore_duration_seconds",
			Help:      "Time to fetch, decode and check a snapshot",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),

		GCSessionsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gc_sessions_deleted_total",
			Help:      "Orphaned sessions removed by garbage collection",
		}),
		GCDeleteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gc_delete_failures_total",
			Help:      "Orphaned sessions garbage collection failed to remove",
		}),
		GCRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gc_runs_total",
			Help:      "Garbage collection passes by result",
		}, []string{"result"}),

		StoreSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_size_bytes",
			Help:      "Last measured snapshot storage footprint",
		}),

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		r.SnapshotsWritten,
		r.SnapshotBytesWritten,
		r.SnapshotWriteErrors,
		r.RestoreTotal,
		r.RestoreDuration,
		r.GCSessionsDeleted,
		r.GCDeleteFailures,
		r.GCRuns,
		r.StoreSize,
		r.RequestsTotal,
		r.RequestDuration,
	)

	return r
}

// Prometheus returns the underlying registry, for components that register
// their own collectors.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}

// Handler returns an HTTP handler serving this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// RecordSnapshotWritten counts one persisted snapshot of n bytes.
func (r *Registry) RecordSnapshotWritten(n int) {
	r.SnapshotsWritten.Inc()
	r.SnapshotBytesWritten.Add(float64(n))
}

// IncSnapshotWriteError counts one failed snapshot write.
func (r *Registry) IncSnapshotWriteError() {
	r.SnapshotWriteErrors.Inc()
}

// RecordRestore counts a restore attempt and, for attempts that reached
// the store, its duration.
func (r *Registry) RecordRestore(outcome string, seconds float64) {
	r.RestoreTotal.WithLabelValues(outcome).Inc()
	if seconds > 0 {
		r.RestoreDuration.Observe(seconds)
	}
}

// RecordGCRun records one garbage collection pass.
func (r *Registry) RecordGCRun(result string, deleted, failed int) {
	r.GCRuns.WithLabelValues(result).Inc()
	r.GCSessionsDeleted.Add(float64(deleted))
	r.GCDeleteFailures.Add(float64(failed))
}

// SetStoreSize records the storage footprint.
func (r *Registry) SetStoreSize(bytes int64) {
	r.StoreSize.Set(float64(bytes))
}

// RecordRequest counts one HTTP request.
func (r *Registry) RecordRequest(method, route, status string) {
	r.RequestsTotal.WithLabelValues(method, route, status).Inc()
}

// ObserveRequestDuration records HTTP request latency.
func (r *Registry) ObserveRequestDuration(method, route string, seconds float64) {
	r.RequestDuration.WithLabelValues(method, route).Observe(seconds)
}
