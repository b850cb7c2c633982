package txn

import (
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cuemby/thunder/internal/bloom"
	"github.com/cuemby/thunder/internal/checkpoint"
	"github.com/cuemby/thunder/internal/dbfile"
	events "github.com/cuemby/thunder/internal/tevents"
	"github.com/cuemby/thunder/internal/freelist"
	"github.com/cuemby/thunder/internal/groupcommit"
	log "github.com/cuemby/thunder/internal/tlog"
	metrics "github.com/cuemby/thunder/internal/tmetrics"
	"github.com/cuemby/thunder/internal/omap"
	"github.com/cuemby/thunder/internal/overflow"
	"github.com/cuemby/thunder/internal/page"
	"github.com/cuemby/thunder/internal/terr"
	"github.com/cuemby/thunder/internal/wal"
)

// Config gathers every tunable the engine needs, translated from the root
// package's Options so this package stays independent of the façade.
type Config struct {
	PageSize               page.Size
	OverflowThreshold      int
	WALSegmentSize         int64
	SyncPolicy             wal.SyncPolicy
	SyncInterval           time.Duration
	CheckpointInterval     time.Duration
	CheckpointWALThreshold uint64
	CheckpointMinRecords   uint64
	GroupCommitMaxWait     time.Duration
	GroupCommitMaxBatch    int
}

// Engine owns every collaborator a transaction touches: the data file, the
// WAL, the group-commit coordinator, the checkpoint manager, the overflow
// manager, the bloom filter, and the current working-set snapshot. It is
// wrapped, not duplicated, by the root façade.
type Engine struct {
	cfg Config

	file     *dbfile.File
	wal      *wal.WAL
	gc       *groupcommit.Coordinator
	ckpt     *checkpoint.Manager
	overflow *overflow.Manager
	free     *freelist.List
	broker   *events.Broker

	writeMu sync.Mutex // held for the lifetime of the one live WriteTx

	working atomic.Pointer[omap.Map]

	bloomMu sync.RWMutex
	filter  *bloom.Filter

	nextTxid     atomic.Uint64
	rawEntries   atomic.Uint64 // on-disk entry_count, including superseded duplicates
	activeReadTx atomic.Int64
}

func walDir(path string) string    { return path + ".wal" }
func bloomPath(path string) string { return path + ".bloom" }

// Create makes a brand-new database at path.
func Create(path string, cfg Config) (*Engine, error) {
	instanceID, err := uuid.NewRandom()
	if err != nil {
		return nil, terr.Wrap(terr.KindFileOpen, "txn: generate instance id", err)
	}
	var idBytes [16]byte
	copy(idBytes[:], instanceID[:])

	f, err := dbfile.Create(path, cfg.PageSize, idBytes)
	if err != nil {
		return nil, err
	}

	w, err := wal.Open(walDir(path), wal.Config{
		SegmentSize:  cfg.WALSegmentSize,
		Sync:         cfg.SyncPolicy,
		SyncInterval: cfg.SyncInterval,
	})
	if err != nil {
		f.Close()
		return nil, err
	}

	e := newEngine(f, w, cfg)
	e.working.Store(omap.New())
	e.filter = bloom.WithCapacity(1 << 16)
	e.free = freelist.New()
	e.overflow = overflow.NewManager(cfg.PageSize, page.ID(f.Meta().NextOverflowPage), e.free)
	e.nextTxid.Store(1)
	return e, nil
}

// Open recovers an existing database at path: load the active meta slot,
// read the entries region up to its high-water mark, load the bloom
// sidecar (rebuilding it from the working set if missing or undecodable), then
// replay any WAL records written after the meta's checkpoint LSN.
func Open(path string, cfg Config) (*Engine, error) {
	f, err := dbfile.Open(path)
	if err != nil {
		return nil, err
	}

	w, err := wal.Open(walDir(path), wal.Config{
		SegmentSize:  cfg.WALSegmentSize,
		Sync:         cfg.SyncPolicy,
		SyncInterval: cfg.SyncInterval,
	})
	if err != nil {
		f.Close()
		return nil, err
	}

	e := newEngine(f, w, cfg)
	e.free = freelist.New()
	e.overflow = overflow.NewManager(f.PageSize(), page.ID(f.Meta().NextOverflowPage), e.free)

	entries, err := f.ReadEntries()
	if err != nil {
		f.Close()
		w.Close()
		return nil, err
	}

	working := omap.New()
	for _, ent := range entries {
		if ent.IsOverflowRef {
			working.Put(ent.Key, encodeRefBytes(ent.Value))
		} else {
			working.Put(ent.Key, encodeInline(ent.Value))
		}
	}
	e.rawEntries.Store(uint64(len(entries)))

	meta := f.Meta()
	e.ckpt = checkpoint.Restore(checkpointConfig(cfg), checkpoint.Info{
		LSN:        meta.CheckpointLSN,
		EntryCount: meta.EntryCount,
	})

	filter := loadBloomSidecar(bloomPath(path), working)

	if err := e.replayWAL(meta.CheckpointLSN, working, filter); err != nil {
		f.Close()
		w.Close()
		return nil, err
	}

	e.working.Store(working)
	e.filter = filter
	e.nextTxid.Store(meta.Txid + 1)
	return e, nil
}

// loadBloomSidecar reads path and returns its filter, or rebuilds one from
// working's live keys if the sidecar is missing or fails to decode — the
// filter only ever causes false MayContain answers to cost an extra lookup,
// never a missed one, so a rebuild is always a safe fallback (§4.6).
func loadBloomSidecar(path string, working *omap.Map) *bloom.Filter {
	buf, err := os.ReadFile(path)
	if err == nil {
		f, decErr := bloom.Decode(buf)
		if decErr == nil {
			return f
		}
		log.Errorf("bloom sidecar corrupt at "+path+", rebuilding", decErr)
	}

	filter := bloom.WithCapacity(maxInt(working.Len(), 1024))
	working.Ascend(func(k, _ []byte) bool {
		filter.Insert(k)
		return true
	})
	return filter
}

func saveBloomSidecar(path string, filter *bloom.Filter) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, filter.Encode(), 0o644); err != nil {
		return terr.Wrap(terr.KindFileWrite, "txn: write bloom sidecar", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return terr.Wrap(terr.KindFileWrite, "txn: rename bloom sidecar", err)
	}
	return nil
}

func newEngine(f *dbfile.File, w *wal.WAL, cfg Config) *Engine {
	e := &Engine{cfg: cfg, file: f, wal: w, broker: events.NewBroker()}
	e.broker.Start()
	e.gc = groupcommit.New(w, groupcommit.Config{
		MaxWait:      cfg.GroupCommitMaxWait,
		MaxBatchSize: cfg.GroupCommitMaxBatch,
	})
	e.ckpt = checkpoint.New(checkpointConfig(cfg))
	return e
}

func checkpointConfig(cfg Config) checkpoint.Config {
	return checkpoint.Config{
		Interval:     cfg.CheckpointInterval,
		WALThreshold: cfg.CheckpointWALThreshold,
		MinRecords:   cfg.CheckpointMinRecords,
	}
}

// replayWAL applies every Put/Delete record whose transaction committed
// (TxCommit seen) and whose LSN is strictly after checkpointLSN, mutating
// working and filter in place.
func (e *Engine) replayWAL(checkpointLSN uint64, working *omap.Map, filter *bloom.Filter) error {
	it, err := e.wal.IterFrom(checkpointLSN)
	if err != nil {
		return err
	}

	type op struct {
		del   bool
		key   []byte
		value []byte
	}
	var staged []op

	for {
		_, rec, ok := it.Next()
		if !ok {
			break
		}
		switch rec.Type {
		case wal.TypePut:
			staged = append(staged, op{key: rec.Key, value: rec.Value})
		case wal.TypeDelete:
			staged = append(staged, op{del: true, key: rec.Key})
		case wal.TypeTxCommit:
			for _, o := range staged {
				if o.del {
					working.Delete(o.key)
				} else {
					working.Put(o.key, o.value)
					filter.Insert(o.key)
				}
			}
			staged = staged[:0]
		case wal.TypeTxAbort:
			staged = staged[:0]
		}
	}
	if it.Err() != nil {
		return terr.Wrap(terr.KindWALRecordInvalid, "txn: wal replay", it.Err())
	}
	return nil
}

func encodeRefBytes(refBytes []byte) []byte {
	buf := make([]byte, 1+len(refBytes))
	buf[0] = envRef
	copy(buf[1:], refBytes)
	return buf
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Close persists the bloom sidecar and releases every collaborator.
func (e *Engine) Close() error {
	e.bloomMu.RLock()
	saveErr := saveBloomSidecar(bloomPath(e.file.Path()), e.filter)
	e.bloomMu.RUnlock()
	if saveErr != nil {
		log.Errorf("failed to persist bloom sidecar on close", saveErr)
	}

	e.broker.Stop()
	if err := e.wal.Close(); err != nil {
		return err
	}
	return e.file.Close()
}

// Path returns the path the database file was opened from.
func (e *Engine) Path() string { return e.file.Path() }

// Registry exposes the shared Prometheus registry for embedding.
func (e *Engine) Registry() *prometheus.Registry { return metrics.Registry() }

// Subscribe returns a new event subscriber.
func (e *Engine) Subscribe() events.Subscriber { return e.broker.Subscribe() }

// Stats is a point-in-time snapshot of engine-level counters.
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

// Stats reports the current engine-level counters.
func (e *Engine) Stats() Stats {
	snap := e.working.Load()
	e.bloomMu.RLock()
	bits, items := e.filter.SizeBits(), e.filter.ItemCount()
	e.bloomMu.RUnlock()
	s := Stats{
		EntryCount:        snap.Len(),
		RawEntryCount:     e.rawEntries.Load(),
		WALSegments:       e.wal.SegmentCount(),
		WALSize:           e.wal.ApproximateSize(),
		BloomBits:         bits,
		BloomItems:        items,
		OverflowNextPage:  uint64(e.overflow.NextPageID()),
		LastCheckpointLSN: e.ckpt.LastLSN(),
		ActiveReadTx:      int(e.activeReadTx.Load()),
	}
	metrics.WALSizeBytes.Set(float64(s.WALSize))
	metrics.WALSegmentsTotal.Set(float64(s.WALSegments))
	metrics.BloomBits.Set(float64(s.BloomBits))
	metrics.BloomItems.Set(float64(s.BloomItems))
	metrics.EntriesTotal.Set(float64(s.EntryCount))
	metrics.ReadTxActive.Set(float64(s.ActiveReadTx))
	return s
}

// Entries reports the number of live entries in the published working set.
// Satisfies metrics.StatsSource.
func (e *Engine) Entries() uint64 { return uint64(e.working.Load().Len()) }

// WALSizeBytes reports the approximate on-disk size of the WAL's segments.
// Satisfies metrics.StatsSource.
func (e *Engine) WALSizeBytes() uint64 { return e.wal.ApproximateSize() }

// WALSegments reports how many WAL segment files currently exist.
// Satisfies metrics.StatsSource.
func (e *Engine) WALSegments() int { return e.wal.SegmentCount() }

// BloomBits reports the bloom filter's bit array size. Satisfies
// metrics.StatsSource.
func (e *Engine) BloomBits() uint32 {
	e.bloomMu.RLock()
	defer e.bloomMu.RUnlock()
	return e.filter.SizeBits()
}

// BloomItems reports how many keys have been inserted into the bloom
// filter. Satisfies metrics.StatsSource.
func (e *Engine) BloomItems() uint64 {
	e.bloomMu.RLock()
	defer e.bloomMu.RUnlock()
	return e.filter.ItemCount()
}

// OverflowPages reports the high-water mark of the overflow region.
// Satisfies metrics.StatsSource.
func (e *Engine) OverflowPages() uint64 { return uint64(e.overflow.NextPageID()) }

// ActiveReadTx reports how many ReadTx are currently open against this
// engine. Satisfies metrics.StatsSource.
func (e *Engine) ActiveReadTx() int { return int(e.activeReadTx.Load()) }

// Checkpoint forces a full persist and WAL truncation right now.
func (e *Engine) Checkpoint() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	e.broker.Publish(&events.Event{Type: events.EventCheckpointStarted})
	timer := metrics.NewTimer()

	working := e.working.Load()
	entries := snapshotToEntries(working)
	lastLSN := e.lastAppendedLSN()

	result, err := checkpoint.Run(lastLSN, e.wal, func() error {
		newEnd, err := e.file.RewriteEntries(entries)
		if err != nil {
			return err
		}
		next := e.file.Meta()
		next.DataEnd = newEnd
		next.CheckpointLSN = lastLSN
		next.EntryCount = uint64(len(entries))
		e.bloomMu.RLock()
		next.BloomBits = e.filter.SizeBits()
		next.BloomHashes = e.filter.NumHashes()
		e.bloomMu.RUnlock()
		if err := e.file.PersistMeta(&next); err != nil {
			return err
		}
		e.rawEntries.Store(uint64(len(entries)))
		return e.file.Remap()
	})
	if err != nil {
		log.Errorf("checkpoint failed", err)
		return err
	}

	e.bloomMu.RLock()
	bloomErr := saveBloomSidecar(bloomPath(e.file.Path()), e.filter)
	e.bloomMu.RUnlock()
	if bloomErr != nil {
		log.Errorf("failed to persist bloom sidecar after checkpoint", bloomErr)
	}

	e.ckpt.RecordCheckpoint(result.LSN, e.wal.ApproximateSize())
	metrics.CheckpointsTotal.Inc()
	timer.ObserveDuration(metrics.CheckpointDuration)
	e.broker.Publish(&events.Event{
		Type: events.EventCheckpointCompleted,
		Metadata: map[string]string{
			"lsn":     strconv.FormatUint(result.LSN, 10),
			"entries": strconv.Itoa(len(entries)),
		},
	})
	return nil
}

// maybeCheckpoint runs a checkpoint if the manager's triggers say it's due.
// Commit starts it in its own goroutine, so the checkpoint's own writeMu
// acquisition waits for that commit to release the lock instead of
// deadlocking against it.
func (e *Engine) maybeCheckpoint() {
	if e.ckpt.ShouldCheckpoint(e.wal) {
		if err := e.Checkpoint(); err != nil {
			log.Errorf("auto-checkpoint failed", err)
		}
	}
}

// lastAppendedLSN reports the highest LSN durably appended to the WAL so
// far, used as the checkpoint cutoff (everything up to and including it is
// now also durable in the data file).
func (e *Engine) lastAppendedLSN() uint64 {
	return e.wal.ApproximateSize()
}

func snapshotToEntries(m *omap.Map) []dbfile.Entry {
	entries := make([]dbfile.Entry, 0, m.Len())
	m.Ascend(func(k, v []byte) bool {
		tag, payload, err := decodeEnvelope(v)
		if err != nil {
			return true
		}
		if tag == envRef {
			entries = append(entries, dbfile.Entry{Key: append([]byte(nil), k...), Value: append([]byte(nil), payload...), IsOverflowRef: true})
		} else {
			entries = append(entries, dbfile.Entry{Key: append([]byte(nil), k...), Value: append([]byte(nil), payload...)})
		}
		return true
	})
	return entries
}
