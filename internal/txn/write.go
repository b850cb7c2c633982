package txn

import (
	"strconv"

	"github.com/cuemby/thunder/internal/bucket"
	"github.com/cuemby/thunder/internal/dbfile"
	metrics "github.com/cuemby/thunder/internal/tmetrics"
	"github.com/cuemby/thunder/internal/omap"
	"github.com/cuemby/thunder/internal/overflow"
	"github.com/cuemby/thunder/internal/terr"
	events "github.com/cuemby/thunder/internal/tevents"
	"github.com/cuemby/thunder/internal/wal"
)

type opKind uint8

const (
	opPut opKind = iota
	opDelete
)

// stagedOp is one mutation recorded in commit order, so WAL replay
// reproduces the exact sequence a crash-recovered engine must see.
type stagedOp struct {
	kind  opKind
	key   []byte
	value []byte // envelope-encoded for opPut; unused for opDelete
}

// WriteTx is thunder's single-writer transaction: only one may be open at
// a time per Engine, enforced by writeMu, so every commit observes and
// extends a single linear history (§4.2). Reads within a WriteTx see its
// own uncommitted writes layered over the snapshot it began from.
type WriteTx struct {
	eng  *Engine
	txid uint64

	base    *omap.Map // snapshot at Begin, read-only
	pending *omap.Map // base.Clone(), mutated as ops are staged

	ops                   []stagedOp
	pendingOverflowWrites []overflow.Write
	done                  bool
}

// Begin opens the one write transaction the engine allows at a time,
// blocking until any prior WriteTx commits or rolls back.
func (e *Engine) Begin() *WriteTx {
	e.writeMu.Lock()
	base := e.working.Load()
	return &WriteTx{
		eng:     e,
		txid:    e.nextTxid.Add(1) - 1,
		base:    base,
		pending: base.Clone(),
	}
}

func (tx *WriteTx) checkOpen() error {
	if tx.done {
		return terr.ErrTxClosed
	}
	return nil
}

// Put stages key=value as a root-level write, visible to this transaction's
// own subsequent Get calls immediately, and to every other reader
// only once Commit succeeds.
func (tx *WriteTx) Put(key, value []byte) error {
	return tx.putEncoded(bucket.RootKey(key), value)
}

// Delete stages the removal of a root-level key.
func (tx *WriteTx) Delete(key []byte) error {
	return tx.deleteEncoded(bucket.RootKey(key))
}

// Get reads key as this transaction would see it right now: its own
// pending writes layered over the snapshot it began from.
func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	stored, ok := tx.pending.Get(bucket.RootKey(key))
	if !ok {
		return nil, terr.ErrKeyNotFound
	}
	return materialize(stored, tx.eng.overflow, tx.eng.file.ReadPage)
}

// BucketCreate creates a new bucket, staging a marker-entry write that
// participates in the same commit as any other operation in this
// transaction.
func (tx *WriteTx) BucketCreate(path bucket.Path) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	if err := path.Validate(); err != nil {
		return err
	}
	if len(path) > 1 && !bucket.Exists(tx.pending, path[:len(path)-1]) {
		return terr.ErrBucketNotFound
	}
	if bucket.Exists(tx.pending, path) {
		return terr.ErrBucketExists
	}
	return tx.putEncoded(bucket.MetaKey(path), nil)
}

// BucketDelete removes a bucket and everything beneath it.
func (tx *WriteTx) BucketDelete(path bucket.Path) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	var removed [][]byte
	before := tx.pending.Clone()
	if err := bucket.Delete(tx.pending, path); err != nil {
		return err
	}
	before.Ascend(func(k, _ []byte) bool {
		if _, ok := tx.pending.Get(k); !ok {
			removed = append(removed, append([]byte(nil), k...))
		}
		return true
	})
	for _, k := range removed {
		tx.ops = append(tx.ops, stagedOp{kind: opDelete, key: k})
	}
	return nil
}

// BucketPut stores value for userKey inside the named bucket.
func (tx *WriteTx) BucketPut(path bucket.Path, userKey, value []byte) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	if !bucket.Exists(tx.pending, path) {
		return terr.ErrBucketNotFound
	}
	return tx.putEncoded(bucket.DataKey(path, userKey), value)
}

// BucketDeleteKey removes userKey from the named bucket.
func (tx *WriteTx) BucketDeleteKey(path bucket.Path, userKey []byte) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	if !bucket.Exists(tx.pending, path) {
		return terr.ErrBucketNotFound
	}
	return tx.deleteEncoded(bucket.DataKey(path, userKey))
}

// BucketGet reads userKey from the named bucket as this transaction would
// see it right now: its own pending writes layered over the snapshot it
// began from.
func (tx *WriteTx) BucketGet(path bucket.Path, userKey []byte) ([]byte, error) {
	if err := tx.checkOpen(); err != nil {
		return nil, err
	}
	if !bucket.Exists(tx.pending, path) {
		return nil, terr.ErrBucketNotFound
	}
	stored, ok := tx.pending.Get(bucket.DataKey(path, userKey))
	if !ok {
		return nil, terr.ErrKeyNotFound
	}
	return materialize(stored, tx.eng.overflow, tx.eng.file.ReadPage)
}

func (tx *WriteTx) putEncoded(storedKey, value []byte) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	var envelope []byte
	if overflow.ShouldOverflow(len(value), tx.eng.cfg.OverflowThreshold) {
		ref, writes := tx.eng.overflow.Allocate(value)
		tx.pendingOverflowWrites = append(tx.pendingOverflowWrites, writes...)
		envelope = encodeRef(ref)
	} else {
		envelope = encodeInline(value)
	}
	tx.pending.Put(storedKey, envelope)
	tx.ops = append(tx.ops, stagedOp{kind: opPut, key: storedKey, value: envelope})
	return nil
}

func (tx *WriteTx) deleteEncoded(storedKey []byte) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	if stored, ok := tx.pending.Get(storedKey); ok {
		if tag, payload, err := decodeEnvelope(stored); err == nil && tag == envRef {
			if ref, rErr := overflow.DecodeRef(payload); rErr == nil {
				tx.eng.overflow.Free(ref, tx.eng.file.ReadPage)
			}
		}
	}
	tx.pending.Delete(storedKey)
	tx.ops = append(tx.ops, stagedOp{kind: opDelete, key: storedKey})
	return nil
}

// Rollback discards every staged operation without touching the engine's
// published working set, and releases the write lock.
func (tx *WriteTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.eng.writeMu.Unlock()
	return nil
}

// Commit durably appends this transaction's operations to the WAL (through
// the group-commit coordinator), applies them to a cloned working set, and
// publishes that clone so subsequent ReadTx snapshots observe the write
// (§4.9). The write lock is released before Commit returns, successful or
// not.
func (tx *WriteTx) Commit() error {
	defer func() {
		tx.done = true
		tx.eng.writeMu.Unlock()
	}()
	if err := tx.checkOpen(); err != nil {
		return err
	}

	timer := metrics.NewTimer()

	if len(tx.ops) == 0 {
		return nil
	}

	if _, err := tx.eng.wal.Append(wal.NewTxBegin(tx.txid)); err != nil {
		return err
	}
	hasDelete := false
	for _, op := range tx.ops {
		var rec wal.Record
		switch op.kind {
		case opPut:
			rec = wal.NewPut(op.key, op.value)
		case opDelete:
			hasDelete = true
			rec = wal.NewDelete(op.key)
		}
		if _, err := tx.eng.wal.Append(rec); err != nil {
			return err
		}
	}
	if _, err := tx.eng.wal.Append(wal.NewTxCommit(tx.txid)); err != nil {
		return err
	}

	if err := tx.eng.gc.Commit(); err != nil {
		return terr.Wrap(terr.KindFileSync, "txn: group commit fsync", err)
	}

	if len(tx.pendingOverflowWrites) > 0 {
		if err := tx.persistOverflowWrites(); err != nil {
			return err
		}
		if err := tx.eng.file.Remap(); err != nil {
			return err
		}
	}

	newCount := uint64(tx.pending.Len())
	var newEnd uint64
	var newRaw uint64
	var err error
	if hasDelete {
		rewritten := snapshotToEntries(tx.pending)
		newEnd, err = tx.eng.file.RewriteEntries(rewritten)
		newRaw = uint64(len(rewritten))
	} else {
		appended := opsToEntries(tx.ops)
		newEnd, err = tx.eng.file.AppendEntries(appended, newCount)
		newRaw = tx.eng.rawEntries.Load() + uint64(len(appended))
	}
	if err != nil {
		return err
	}

	next := tx.eng.file.Meta()
	next.Txid = tx.txid
	next.DataEnd = newEnd
	next.EntryCount = newCount
	tx.eng.bloomMu.Lock()
	for _, op := range tx.ops {
		if op.kind == opPut {
			tx.eng.filter.Insert(op.key)
		}
	}
	next.BloomBits = tx.eng.filter.SizeBits()
	next.BloomHashes = tx.eng.filter.NumHashes()
	tx.eng.bloomMu.Unlock()

	if err := tx.eng.file.PersistMeta(&next); err != nil {
		return err
	}
	tx.eng.rawEntries.Store(newRaw)

	tx.eng.working.Store(tx.pending)

	tx.eng.ckpt.RecordWrites(uint64(len(tx.ops)))
	metrics.CommitsTotal.Inc()
	timer.ObserveDuration(metrics.CommitDuration)
	tx.eng.broker.Publish(&events.Event{
		Type: events.EventCommitApplied,
		Metadata: map[string]string{
			"txid": strconv.FormatUint(tx.txid, 10),
			"ops":  strconv.Itoa(len(tx.ops)),
		},
	})

	go tx.eng.maybeCheckpoint()
	return nil
}

// persistOverflowWrites writes every page this transaction's Allocate
// calls produced, growing the overflow region first if the manager's
// high-water mark has moved past the current file layout's boundary.
func (tx *WriteTx) persistOverflowWrites() error {
	needed := uint64(tx.eng.overflow.NextPageID())
	if _, err := tx.eng.file.GrowOverflowRegion(needed); err != nil {
		return err
	}

	writes := make([]dbfile.Write, len(tx.pendingOverflowWrites))
	for i, w := range tx.pendingOverflowWrites {
		writes[i] = dbfile.Write{ID: w.ID, Data: w.Data}
	}
	return tx.eng.file.WritePages(writes)
}

func opsToEntries(ops []stagedOp) []dbfile.Entry {
	entries := make([]dbfile.Entry, 0, len(ops))
	for _, op := range ops {
		if op.kind != opPut {
			continue
		}
		tag, payload, err := decodeEnvelope(op.value)
		if err != nil {
			continue
		}
		entries = append(entries, dbfile.Entry{
			Key:           op.key,
			Value:         payload,
			IsOverflowRef: tag == envRef,
		})
	}
	return entries
}
