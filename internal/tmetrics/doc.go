/*
Package metrics provides Prometheus metrics collection for a thunder database.

The metrics package defines and registers thunder's instrumentation using the
Prometheus client library: commit and checkpoint throughput and latency,
group-commit batching efficiency, WAL size, and bloom filter occupancy.
Metrics live on a private registry owned by the package so an embedding
process can mount them under its own endpoint rather than colliding with the
Go default registerer.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Private Prometheus Registry         │          │
	│  │  - registry := prometheus.NewRegistry()      │          │
	│  │  - MustRegister at package init              │          │
	│  │  - Registry() exposes it for embedding        │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Categories               │          │
	│  │                                              │          │
	│  │  Commit:    commits_total, commit_duration  │          │
	│  │  Durability: fsyncs_total, batch_size       │          │
	│  │  Checkpoint: checkpoints_total, duration    │          │
	│  │  WAL:       size_bytes, segments_total      │          │
	│  │  Bloom:     bits, items                     │          │
	│  │  Storage:   overflow_pages, entries_total   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Collector                       │          │
	│  │  - polls a StatsSource on a ticker           │          │
	│  │  - writes point-in-time gauges               │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Metrics vars:
  - CommitsTotal / CommitDuration: write-transaction throughput and latency
  - FsyncsTotal / GroupCommitBatchSize: group-commit amortization
  - CheckpointsTotal / CheckpointDuration: checkpoint cadence and cost
  - WALSizeBytes / WALSegmentsTotal: on-disk WAL footprint
  - BloomBits / BloomItems: bloom filter sizing
  - OverflowPagesTotal / EntriesTotal: working-set and overflow footprint
  - ReadTxActive: concurrent reader count

Collector:
  - Samples a StatsSource (implemented by the database façade) on an
    interval and writes the gauges above. Counters and histograms are
    updated inline by the commit/checkpoint/WAL code paths themselves.

Timer:
  - Small helper wrapping time.Since for histogram observation.

# Usage

	db, _ := thunder.Open(path, thunder.Options{})
	metrics.NewCollector(db, 15*time.Second).Start()
	http.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
*/
package metrics
