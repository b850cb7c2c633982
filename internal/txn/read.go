package txn

import (
	"github.com/cuemby/thunder/internal/bucket"
	"github.com/cuemby/thunder/internal/omap"
	"github.com/cuemby/thunder/internal/terr"
)

// ReadTx is a snapshot read transaction: it sees the working set exactly as
// it was published at the moment the transaction was opened, regardless of
// any writes that commit afterward (§4.2's snapshot isolation). Opening one
// is O(1) — it only takes a reference to the engine's current *omap.Map,
// which the O(1) Clone in a concurrent WriteTx never mutates in place.
type ReadTx struct {
	eng  *Engine
	snap *omap.Map
}

func newReadTx(eng *Engine) *ReadTx {
	eng.activeReadTx.Add(1)
	return &ReadTx{eng: eng, snap: eng.working.Load()}
}

// Read opens a new snapshot read transaction against the engine's current
// published working set.
func (e *Engine) Read() *ReadTx {
	return newReadTx(e)
}

func (tx *ReadTx) materializeStored(stored []byte) ([]byte, error) {
	return materialize(stored, tx.eng.overflow, tx.eng.file.ReadPage)
}

// Get reads a root-level key, one stored with no bucket involved.
func (tx *ReadTx) Get(key []byte) ([]byte, error) {
	stored, ok := tx.snap.Get(bucket.RootKey(key))
	if !ok {
		return nil, terr.ErrKeyNotFound
	}
	return tx.materializeStored(stored)
}

// Ascend visits every root-level key/value pair in ascending order.
func (tx *ReadTx) Ascend(fn func(key, value []byte) bool) error {
	prefix := bucket.RootKey(nil)
	var firstErr error
	tx.snap.AscendRange(prefix, rootUpperBound(prefix), func(k, v []byte) bool {
		value, err := tx.materializeStored(v)
		if err != nil {
			firstErr = err
			return false
		}
		return fn(k[len(prefix):], value)
	})
	return firstErr
}

func rootUpperBound(prefix []byte) []byte {
	bound := append([]byte(nil), prefix...)
	for i := len(bound) - 1; i >= 0; i-- {
		if bound[i] != 0xFF {
			bound[i]++
			return bound[:i+1]
		}
	}
	return nil
}

// BucketGet reads userKey from the named bucket.
func (tx *ReadTx) BucketGet(path bucket.Path, userKey []byte) ([]byte, error) {
	stored, err := bucket.Get(tx.snap, path, userKey)
	if err != nil {
		return nil, err
	}
	return tx.materializeStored(stored)
}

// BucketExists reports whether the named bucket exists in this snapshot.
func (tx *ReadTx) BucketExists(path bucket.Path) bool {
	return bucket.Exists(tx.snap, path)
}

// BucketList returns the names of every top-level bucket in this snapshot.
func (tx *ReadTx) BucketList() []string {
	return bucket.List(tx.snap)
}

// BucketAscend visits every key/value pair in the named bucket, ascending,
// with overflow values materialized and the bucket prefix stripped.
func (tx *ReadTx) BucketAscend(path bucket.Path, fn func(key, value []byte) bool) error {
	var firstErr error
	err := bucket.Ascend(tx.snap, path, func(k, v []byte) bool {
		value, mErr := tx.materializeStored(v)
		if mErr != nil {
			firstErr = mErr
			return false
		}
		return fn(k, value)
	})
	if err != nil {
		return err
	}
	return firstErr
}

// BucketAscendRange visits key/value pairs in the named bucket with key in
// [lo, hi), ascending. A nil hi means unbounded.
func (tx *ReadTx) BucketAscendRange(path bucket.Path, lo, hi []byte, fn func(key, value []byte) bool) error {
	var firstErr error
	err := bucket.AscendRange(tx.snap, path, lo, hi, func(k, v []byte) bool {
		value, mErr := tx.materializeStored(v)
		if mErr != nil {
			firstErr = mErr
			return false
		}
		return fn(k, value)
	})
	if err != nil {
		return err
	}
	return firstErr
}

// Close releases tx's reference to its snapshot. Snapshots are plain
// garbage-collected *omap.Map values, so Close has nothing to do beyond
// making the read transaction's lifetime explicit to callers and updating
// the active-reader count; it never blocks a writer or a checkpoint. Close
// is safe to call more than once.
func (tx *ReadTx) Close() error {
	if tx.snap == nil {
		return nil
	}
	tx.snap = nil
	tx.eng.activeReadTx.Add(-1)
	return nil
}
