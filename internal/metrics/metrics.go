// Package metrics exposes the Prometheus counters and gauges the
// ingestion pipeline needs for day-to-day operation: queue depth, drop
// counts, reconnects, merge outcomes, and flush cadence. This is
// pipeline observability, not the out-of-scope hardware-resource
// telemetry task or the out-of-scope browser dashboard.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the registered collectors. A single instance is built
// in main and passed by reference to every component.
type Metrics struct {
	QueueDepth       *prometheus.GaugeVec
	SnapshotsDropped *prometheus.CounterVec
	FramesDropped    *prometheus.CounterVec
	Reconnects       *prometheus.CounterVec
	BucketRotations  *prometheus.CounterVec
	CompressFailures *prometheus.CounterVec
	MergeJobs        *prometheus.CounterVec
	FlushInterval    *prometheus.HistogramVec
}

// New constructs and registers all collectors against reg. Passing a
// fresh prometheus.NewRegistry() (rather than the global default
// registry) keeps repeated test construction free of duplicate
// registration panics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "rtdata",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Current number of buffered snapshots per symbol.",
		}, []string{"symbol"}),

		SnapshotsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtdata",
			Subsystem: "queue",
			Name:      "snapshots_dropped_total",
			Help:      "Snapshots dropped because the per-symbol queue stayed full past the grace window.",
		}, []string{"symbol"}),

		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtdata",
			Subsystem: "ingest",
			Name:      "frames_dropped_total",
			Help:      "Upstream frames dropped before enqueue, by reason.",
		}, []string{"symbol", "reason"}),

		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtdata",
			Subsystem: "ingest",
			Name:      "reconnects_total",
			Help:      "Successful upstream WebSocket connections (initial and reconnects), by consumer role.",
		}, []string{"role"}),

		BucketRotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtdata",
			Subsystem: "writer",
			Name:      "bucket_rotations_total",
			Help:      "Bucket-file rotations performed by the per-symbol writer.",
		}, []string{"symbol"}),

		CompressFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtdata",
			Subsystem: "writer",
			Name:      "compress_failures_total",
			Help:      "Rotation-time compression failures, bucket file left in place.",
		}, []string{"symbol"}),

		MergeJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtdata",
			Subsystem: "merge",
			Name:      "jobs_total",
			Help:      "Day-merge jobs dispatched, by outcome.",
		}, []string{"symbol", "outcome"}),

		FlushInterval: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rtdata",
			Subsystem: "writer",
			Name:      "flush_interval_seconds",
			Help:      "Time between consecutive successful flushes for a symbol.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"symbol"}),
	}

	reg.MustRegister(
		m.QueueDepth,
		m.SnapshotsDropped,
		m.FramesDropped,
		m.Reconnects,
		m.BucketRotations,
		m.CompressFailures,
		m.MergeJobs,
		m.FlushInterval,
	)

	return m
}
