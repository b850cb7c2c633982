/*
Package log provides structured logging for thunder using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific child loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("wal")                     │          │
	│  │  - WithTxID(42)                             │          │
	│  │  - WithSegment(segmentID)                   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {"level":"info","component":"checkpoint",  │          │
	│  │   "time":"2026-01-01T00:00:00Z",           │          │
	│  │   "message":"checkpoint completed"}         │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF checkpoint completed component=checkpoint │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance, initialized once via log.Init()
  - Thread-safe concurrent writes; no per-call allocation when the level
    is disabled

Context Loggers:
  - WithComponent: tags every record with the owning subsystem (wal,
    checkpoint, groupcommit, bucket, overflow, db)
  - WithTxID: tags records with the write-transaction id they belong to
  - WithSegment: tags records with a WAL segment id

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	walLog := log.WithComponent("wal")
	walLog.Info().Uint64("lsn", lsn).Msg("segment rolled")

	log.Logger.Error().Err(err).Str("component", "checkpoint").Msg("checkpoint failed")

# Design notes

thunder never calls log.Fatal from inside the engine — durability-affecting
failures are returned as errors to the caller, not exited on. log.Fatal
exists only for CLI entrypoints that cannot proceed (e.g. a malformed
config file at startup).

No secrets or user key/value bytes are logged; components log counts,
sizes, LSNs, and page ids, never payload contents.
*/
package log
