// Package metrics holds the Prometheus instrumentation of the table reader.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ReaderMetrics holds the resolver and frame metrics
type ReaderMetrics struct {
	// Resolution metrics
	ResolveTotal    *prometheus.CounterVec
	ResolveDuration *prometheus.HistogramVec
	FilesLive       prometheus.Histogram
	FilesPruned     prometheus.Counter

	// Partition read metrics
	PartitionReads    *prometheus.CounterVec
	PartitionDuration prometheus.Histogram
	RowsRead          prometheus.Counter

	// Snapshot cache metrics
	CacheRequests *prometheus.CounterVec
}

// NewReaderMetrics registers the reader metrics with reg. A nil reg
// creates unregistered collectors.
func NewReaderMetrics(reg prometheus.Registerer) *ReaderMetrics {
	factory := promauto.With(reg)

	return &ReaderMetrics{
		ResolveTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deltaframe_resolve_total",
				Help: "Total number of table resolutions",
			},
			[]string{"status"},
		),
		ResolveDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deltaframe_resolve_duration_seconds",
				Help:    "Time spent replaying the delta log",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		FilesLive: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "deltaframe_resolve_live_files",
				Help:    "Number of live data files per resolved version",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		FilesPruned: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "deltaframe_files_pruned_total",
				Help: "Total number of data files skipped by partition pruning",
			},
		),
		PartitionReads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deltaframe_partition_reads_total",
				Help: "Total number of data file reads",
			},
			[]string{"status"},
		),
		PartitionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "deltaframe_partition_read_duration_seconds",
				Help:    "Data file read and decode time in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		RowsRead: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "deltaframe_rows_read_total",
				Help: "Total number of rows produced by data file reads",
			},
		),
		CacheRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deltaframe_snapshot_cache_requests_total",
				Help: "Snapshot cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

// Status classifies an error for the status label
func Status(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "error"
}

// RecordResolve records one resolution
func (m *ReaderMetrics) RecordResolve(duration time.Duration, err error) {
	if m == nil {
		return
	}

	status := Status(err)
	m.ResolveTotal.WithLabelValues(status).Inc()
	m.ResolveDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordFiles records the live and pruned file counts of a resolution
func (m *ReaderMetrics) RecordFiles(live, pruned int) {
	if m == nil {
		return
	}

	m.FilesLive.Observe(float64(live))
	if pruned > 0 {
		m.FilesPruned.Add(float64(pruned))
	}
}

// RecordPartition records a data file read. It matches the frame
// observer signature.
func (m *ReaderMetrics) RecordPartition(key string, rows int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}

	m.PartitionReads.WithLabelValues(Status(err)).Inc()
	m.PartitionDuration.Observe(elapsed.Seconds())
	if err == nil && rows > 0 {
		m.RowsRead.Add(float64(rows))
	}
}

// RecordCache records a snapshot cache lookup
func (m *ReaderMetrics) RecordCache(hit bool) {
	if m == nil {
		return
	}

	if hit {
		m.CacheRequests.WithLabelValues("hit").Inc()
	} else {
		m.CacheRequests.WithLabelValues("miss").Inc()
	}
}
