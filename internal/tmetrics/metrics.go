// Package metrics exposes Prometheus collectors for a thunder database
// instance. Metrics are registered into a private registry rather than the
// global default registerer, so an embedding process can expose them on its
// own /metrics endpoint without colliding with other libraries.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var registry = prometheus.NewRegistry()

var (
	CommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "thunder_commits_total",
			Help: "Total number of write transactions committed",
		},
	)

	CommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "thunder_commit_duration_seconds",
			Help:    "Time taken for a write transaction to commit, including group-commit wait",
			Buckets: prometheus.DefBuckets,
		},
	)

	FsyncsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "thunder_fsyncs_total",
			Help: "Total number of fsync calls issued by the group-commit coordinator",
		},
	)

	GroupCommitBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "thunder_group_commit_batch_size",
			Help:    "Number of commits flushed together by a single group-commit fsync",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 100, 200},
		},
	)

	CheckpointsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "thunder_checkpoints_total",
			Help: "Total number of checkpoints performed",
		},
	)

	CheckpointDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "thunder_checkpoint_duration_seconds",
			Help:    "Time taken to perform a checkpoint",
			Buckets: prometheus.DefBuckets,
		},
	)

	WALSizeBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "thunder_wal_size_bytes",
			Help: "Approximate total size of WAL segments on disk",
		},
	)

	WALSegmentsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "thunder_wal_segments_total",
			Help: "Number of WAL segment files currently on disk",
		},
	)

	BloomBits = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "thunder_bloom_bits",
			Help: "Size of the bloom filter bit array in bits",
		},
	)

	BloomItems = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "thunder_bloom_items",
			Help: "Number of items inserted into the bloom filter",
		},
	)

	OverflowPagesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "thunder_overflow_pages_total",
			Help: "High-water mark (next unallocated page id) of the overflow page region",
		},
	)

	EntriesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "thunder_entries_total",
			Help: "Number of live key-value entries in the working set",
		},
	)

	ReadTxActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "thunder_read_tx_active",
			Help: "Number of currently open read transactions",
		},
	)
)

func init() {
	registry.MustRegister(
		CommitsTotal,
		CommitDuration,
		FsyncsTotal,
		GroupCommitBatchSize,
		CheckpointsTotal,
		CheckpointDuration,
		WALSizeBytes,
		WALSegmentsTotal,
		BloomBits,
		BloomItems,
		OverflowPagesTotal,
		EntriesTotal,
		ReadTxActive,
	)
}

// Registry returns the Prometheus registry backing these collectors, for an
// embedding process to mount under its own /metrics handler.
func Registry() *prometheus.Registry {
	return registry
}

// Timer is a helper for timing operations and recording their duration to a
// histogram once the operation completes.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer, starting now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
