// Package checkpoint decides when a full persist is due and drives it,
// bounding how much WAL a crash recovery must replay (§4.8).
package checkpoint

import (
	"encoding/binary"
	"time"

	"github.com/cuemby/thunder/internal/terr"
)

// InfoSize is the encoded size of Info.
const InfoSize = 24

// Info is checkpoint bookkeeping. The meta page stores its LSN and
// EntryCount (as CheckpointLSN and EntryCount); Timestamp is not stored
// there.
type Info struct {
	LSN        uint64
	Timestamp  uint64 // unix seconds
	EntryCount uint64
}

// Encode serializes i to InfoSize bytes.
func (i Info) Encode() []byte {
	buf := make([]byte, InfoSize)
	binary.LittleEndian.PutUint64(buf[0:8], i.LSN)
	binary.LittleEndian.PutUint64(buf[8:16], i.Timestamp)
	binary.LittleEndian.PutUint64(buf[16:24], i.EntryCount)
	return buf
}

// Decode parses a buffer produced by Encode.
func Decode(buf []byte) (Info, error) {
	if len(buf) < InfoSize {
		return Info{}, terr.New(terr.KindCorrupted, "checkpoint: short info")
	}
	return Info{
		LSN:        binary.LittleEndian.Uint64(buf[0:8]),
		Timestamp:  binary.LittleEndian.Uint64(buf[8:16]),
		EntryCount: binary.LittleEndian.Uint64(buf[16:24]),
	}, nil
}

// Valid reports whether i looks like a real checkpoint rather than a
// zero-value placeholder.
func (i Info) Valid() bool {
	return i.LSN > 0 || i.Timestamp > 0
}

// Config tunes when a checkpoint becomes due.
type Config struct {
	Interval     time.Duration
	WALThreshold uint64
	MinRecords   uint64
}

// DefaultConfig matches thunder's defaults: a 5 minute interval, 128MiB of
// WAL growth, or 10,000 records since the last checkpoint.
func DefaultConfig() Config {
	return Config{Interval: 300 * time.Second, WALThreshold: 128 * 1024 * 1024, MinRecords: 10_000}
}

// WALSizer reports the WAL's current approximate size, the only fact the
// Manager needs from it to evaluate its growth trigger.
type WALSizer interface {
	ApproximateSize() uint64
}

// Manager tracks checkpoint-due triggers and orchestrates a checkpoint run.
type Manager struct {
	cfg Config

	lastLSN             uint64
	lastTime            time.Time
	recordsSince        uint64
	walSizeAtCheckpoint uint64
}

// New creates a Manager with no prior checkpoint recorded.
func New(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// Restore recreates a Manager's state from a checkpoint Info loaded from
// the meta page, for use immediately after recovery.
func Restore(cfg Config, info Info) *Manager {
	m := &Manager{cfg: cfg, lastLSN: info.LSN}
	if info.Timestamp > 0 {
		m.lastTime = time.Now()
	}
	return m
}

// RecordWrites tallies count records written since the last checkpoint.
func (m *Manager) RecordWrites(count uint64) {
	m.recordsSince += count
}

// ShouldCheckpoint reports whether any configured trigger has fired.
func (m *Manager) ShouldCheckpoint(wal WALSizer) bool {
	if !m.lastTime.IsZero() && time.Since(m.lastTime) >= m.cfg.Interval {
		return true
	}

	growth := wal.ApproximateSize()
	if growth >= m.walSizeAtCheckpoint {
		growth -= m.walSizeAtCheckpoint
	} else {
		growth = 0
	}
	if growth >= m.cfg.WALThreshold {
		return true
	}

	return m.recordsSince >= m.cfg.MinRecords
}

// RecordCheckpoint resets trigger state after a checkpoint completes at lsn
// with the WAL now walSize bytes.
func (m *Manager) RecordCheckpoint(lsn uint64, walSize uint64) {
	m.lastLSN = lsn
	m.lastTime = time.Now()
	m.recordsSince = 0
	m.walSizeAtCheckpoint = walSize
}

// LastLSN returns the LSN of the most recently completed checkpoint.
func (m *Manager) LastLSN() uint64 {
	return m.lastLSN
}

// BuildInfo stamps an Info for lsn/entryCount with the current wall-clock
// time.
func (m *Manager) BuildInfo(lsn, entryCount uint64) Info {
	return Info{LSN: lsn, Timestamp: uint64(time.Now().Unix()), EntryCount: entryCount}
}

// Truncator is the WAL operation a checkpoint uses to drop obsolete
// segments once their data is durably persisted elsewhere.
type Truncator interface {
	TruncateBefore(lsn uint64) (int, error)
}

// Result reports what a checkpoint run actually did.
type Result struct {
	LSN               uint64
	SegmentsTruncated int
	Duration          time.Duration
}

// Run performs a checkpoint: persistFn is expected to write every entry of
// the current working set to the data file and fsync it; the WAL is then
// truncated of everything strictly before lsn.
func Run(lsn uint64, wal Truncator, persistFn func() error) (Result, error) {
	start := time.Now()

	if err := persistFn(); err != nil {
		return Result{}, err
	}

	truncated, err := wal.TruncateBefore(lsn)
	if err != nil {
		return Result{}, err
	}

	return Result{LSN: lsn, SegmentsTruncated: truncated, Duration: time.Since(start)}, nil
}
