// Package thunder is an embedded, single-file, transactional ordered
// key-value storage engine: concurrent snapshot readers, a single writer,
// durable group commit over a write-ahead log, bounded-time recovery via
// checkpointing, hierarchical bucket namespaces, large-value overflow
// storage, and a bloom filter maintained over committed keys.
//
// A Thunder database is one file on disk (plus a `.wal` directory and a
// `.bloom` sidecar living next to it). Open it with Open, read through
// ReadTx, write through WriteTx, and Close it when done:
//
//	db, err := thunder.Open("orders.thunder", thunder.DefaultOptions())
//	if err != nil { ... }
//	defer db.Close()
//
//	wtx := db.WriteTx()
//	_ = wtx.Put([]byte("order:1"), []byte("..."))
//	if err := wtx.Commit(); err != nil { ... }
//
//	rtx := db.ReadTx()
//	defer rtx.Close()
//	v, err := rtx.Get([]byte("order:1"))
package thunder

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cuemby/thunder/internal/bucket"
	events "github.com/cuemby/thunder/internal/tevents"
	"github.com/cuemby/thunder/internal/terr"
	metrics "github.com/cuemby/thunder/internal/tmetrics"
	"github.com/cuemby/thunder/internal/txn"
)

// DB is an open Thunder database. Safe for concurrent use: any number of
// goroutines may hold ReadTx snapshots at once, but only one WriteTx may be
// open at a time — a second WriteTx call blocks until the first commits or
// rolls back (§5).
type DB struct {
	eng *txn.Engine
}

// Open opens the database at path, creating it if it doesn't exist. A zero
// Options resolves to DefaultOptions.
func Open(path string, opts Options) (*DB, error) {
	cfg := opts.withDefaults().toEngineConfig()

	if _, err := os.Stat(path); err == nil {
		eng, openErr := txn.Open(path, cfg)
		if openErr != nil {
			return nil, openErr
		}
		return &DB{eng: eng}, nil
	} else if !os.IsNotExist(err) {
		return nil, terr.Wrap(terr.KindFileOpen, "thunder: stat database file", err)
	}

	eng, err := txn.Create(path, cfg)
	if err != nil {
		return nil, err
	}
	return &DB{eng: eng}, nil
}

// Close persists the bloom filter sidecar and releases the database's file,
// WAL, and background collaborators. Close does not implicitly checkpoint.
func (db *DB) Close() error {
	return db.eng.Close()
}

// Path returns the path the database was opened from.
func (db *DB) Path() string {
	return db.eng.Path()
}

// ReadTx opens a snapshot read transaction: it observes the database
// exactly as it was at the moment of this call, regardless of any writes
// that commit afterward. Opening one is O(1) and never blocks a writer.
func (db *DB) ReadTx() *ReadTx {
	return &ReadTx{inner: db.eng.Read()}
}

// WriteTx opens the single write transaction Thunder allows at a time,
// blocking until any prior WriteTx commits or rolls back. Callers must
// eventually call Commit or Rollback, or the database deadlocks.
func (db *DB) WriteTx() *WriteTx {
	return &WriteTx{inner: db.eng.Begin()}
}

// Checkpoint forces a full persist of the working set to the data file and
// truncates the WAL tail up to the LSN that persist covers. Checkpoints
// also run automatically as commits accumulate (Options.CheckpointInterval,
// CheckpointWALThreshold, CheckpointMinRecords).
func (db *DB) Checkpoint() error {
	return db.eng.Checkpoint()
}

// Stats is a point-in-time snapshot of database-level counters, suitable
// for logging or an operator-facing `stats` command.
type Stats struct {
	EntryCount        int
	RawEntryCount     uint64
	WALSegments       int
	WALSize           uint64
	BloomBits         uint32
	BloomItems        uint64
	OverflowNextPage  uint64
	LastCheckpointLSN uint64
	ActiveReadTx      int
}

// Stats reports the current database-level counters.
func (db *DB) Stats() Stats {
	s := db.eng.Stats()
	return Stats{
		EntryCount:        s.EntryCount,
		RawEntryCount:     s.RawEntryCount,
		WALSegments:       s.WALSegments,
		WALSize:           s.WALSize,
		BloomBits:         s.BloomBits,
		BloomItems:        s.BloomItems,
		OverflowNextPage:  s.OverflowNextPage,
		LastCheckpointLSN: s.LastCheckpointLSN,
		ActiveReadTx:      s.ActiveReadTx,
	}
}

// The methods below satisfy internal/tmetrics.StatsSource, letting a
// metrics.Collector sample this database directly — see Collector.

// Entries reports the number of live entries in the working set.
func (db *DB) Entries() uint64 { return db.eng.Entries() }

// WALSizeBytes reports the approximate on-disk size of the WAL's segments.
func (db *DB) WALSizeBytes() uint64 { return db.eng.WALSizeBytes() }

// WALSegments reports how many WAL segment files currently exist.
func (db *DB) WALSegments() int { return db.eng.WALSegments() }

// BloomBits reports the bloom filter's bit array size.
func (db *DB) BloomBits() uint32 { return db.eng.BloomBits() }

// BloomItems reports how many keys have been inserted into the bloom
// filter.
func (db *DB) BloomItems() uint64 { return db.eng.BloomItems() }

// OverflowPages reports the high-water mark of the overflow region.
func (db *DB) OverflowPages() uint64 { return db.eng.OverflowPages() }

// ActiveReadTx reports how many ReadTx are currently open against this
// database.
func (db *DB) ActiveReadTx() int { return db.eng.ActiveReadTx() }

// Collector returns a metrics.Collector that samples this database's
// counters into its Prometheus gauges every interval, for a long-running
// host process that wants its `/metrics` endpoint to stay current between
// explicit Stats calls. Start must be called to begin sampling, and Stop
// to release its background goroutine.
func (db *DB) Collector(interval time.Duration) *metrics.Collector {
	return metrics.NewCollector(db, interval)
}

// Registry exposes the Prometheus registry Thunder's own collectors are
// registered against, so a host process can mount it under its own
// `/metrics` handler. Thunder never binds a socket itself.
func (db *DB) Registry() *prometheus.Registry {
	return db.eng.Registry()
}

// Subscribe returns a channel of engine lifecycle events (commits applied,
// checkpoints started/completed). Publishing
// never blocks the durability path; a slow or absent subscriber only drops
// events, never stalls a writer.
func (db *DB) Subscribe() events.Subscriber {
	return db.eng.Subscribe()
}

// ReadTx is a snapshot read transaction opened against a DB. See DB.ReadTx.
type ReadTx struct {
	inner *txn.ReadTx
}

// Get reads a root-level key.
func (tx *ReadTx) Get(key []byte) ([]byte, error) {
	return tx.inner.Get(key)
}

// Ascend visits every root-level key/value pair in ascending order. fn
// returning false stops the scan early.
func (tx *ReadTx) Ascend(fn func(key, value []byte) bool) error {
	return tx.inner.Ascend(fn)
}

// Bucket returns a handle scoped to the named bucket path for reads. path
// is one or more names; len(path) > 1 addresses a bucket nested inside
// another.
func (tx *ReadTx) Bucket(path ...string) *ReadBucket {
	return &ReadBucket{tx: tx.inner, path: bucket.Path(path)}
}

// Buckets returns the names of every top-level bucket visible to this
// snapshot.
func (tx *ReadTx) Buckets() []string {
	return tx.inner.BucketList()
}

// Close releases tx's reference to its snapshot. Never blocks a writer or
// a checkpoint.
func (tx *ReadTx) Close() error {
	return tx.inner.Close()
}

// ReadBucket scopes read operations to one bucket path.
type ReadBucket struct {
	tx   *txn.ReadTx
	path bucket.Path
}

// Exists reports whether this bucket exists in the snapshot it was opened
// from.
func (b *ReadBucket) Exists() bool {
	return b.tx.BucketExists(b.path)
}

// Get reads userKey from the bucket.
func (b *ReadBucket) Get(userKey []byte) ([]byte, error) {
	return b.tx.BucketGet(b.path, userKey)
}

// Ascend visits every key/value pair in the bucket, ascending.
func (b *ReadBucket) Ascend(fn func(key, value []byte) bool) error {
	return b.tx.BucketAscend(b.path, fn)
}

// AscendRange visits key/value pairs in the bucket with key in [lo, hi),
// ascending. A nil hi means unbounded.
func (b *ReadBucket) AscendRange(lo, hi []byte, fn func(key, value []byte) bool) error {
	return b.tx.BucketAscendRange(b.path, lo, hi, fn)
}

// WriteTx is the single write transaction a DB allows at a time. See
// DB.WriteTx.
type WriteTx struct {
	inner *txn.WriteTx
}

// Put stages key=value as a root-level write, visible to this
// transaction's own subsequent reads immediately, to every other reader
// only once Commit succeeds.
func (tx *WriteTx) Put(key, value []byte) error {
	return tx.inner.Put(key, value)
}

// Delete stages the removal of a root-level key.
func (tx *WriteTx) Delete(key []byte) error {
	return tx.inner.Delete(key)
}

// Get reads key as this transaction would see it right now: its own
// pending writes layered over the snapshot it began from.
func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	return tx.inner.Get(key)
}

// Bucket returns a handle scoped to the named bucket path for writes.
func (tx *WriteTx) Bucket(path ...string) *WriteBucket {
	return &WriteBucket{tx: tx.inner, path: bucket.Path(path)}
}

// CreateBucket creates a new bucket at path. The parent must already exist
// for a nested path.
func (tx *WriteTx) CreateBucket(path ...string) error {
	return tx.inner.BucketCreate(bucket.Path(path))
}

// DeleteBucket removes a bucket and everything stored beneath it.
func (tx *WriteTx) DeleteBucket(path ...string) error {
	return tx.inner.BucketDelete(bucket.Path(path))
}

// Commit durably appends this transaction's operations to the WAL, applies
// them to a new working-set snapshot, and publishes that snapshot so
// subsequent ReadTx calls observe the write. The write lock is released
// before Commit returns, successful or not.
func (tx *WriteTx) Commit() error {
	return tx.inner.Commit()
}

// Rollback discards every staged operation without touching the published
// working set, and releases the write lock.
func (tx *WriteTx) Rollback() error {
	return tx.inner.Rollback()
}

// WriteBucket scopes write operations to one bucket path.
type WriteBucket struct {
	tx   *txn.WriteTx
	path bucket.Path
}

// Put stores value for userKey inside the bucket.
func (b *WriteBucket) Put(userKey, value []byte) error {
	return b.tx.BucketPut(b.path, userKey, value)
}

// Delete removes userKey from the bucket.
func (b *WriteBucket) Delete(userKey []byte) error {
	return b.tx.BucketDeleteKey(b.path, userKey)
}

// Get reads userKey as this transaction would see it right now.
func (b *WriteBucket) Get(userKey []byte) ([]byte, error) {
	return b.tx.BucketGet(b.path, userKey)
}
