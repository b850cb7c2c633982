// Package omap is thunder's in-memory ordered key space: the working set a
// write transaction mutates and a read transaction sees a frozen view of.
// It wraps google/btree's generic B-tree, whose Clone is O(1) (copy-on-write
// node sharing) rather than O(n) — that is what makes publishing a commit a
// cheap snapshot swap instead of a full copy (§4.9).
package omap

import "github.com/google/btree"

// degree controls the branching factor of the underlying B-tree. 32 is
// google/btree's own suggested default and keeps node fan-out high enough
// that iteration stays cache-friendly for thunder's typical key counts.
const degree = 32

// Entry is one key/value pair stored in the working set. Value holds either
// inline bytes or an encoded overflow.Ref, depending on size; omap does not
// interpret it.
type Entry struct {
	Key   []byte
	Value []byte
}

func less(a, b Entry) bool {
	return string(a.Key) < string(b.Key)
}

// Map is an ordered, copy-on-write map from key to value bytes.
type Map struct {
	tree *btree.BTreeG[Entry]
}

// New creates an empty Map.
func New() *Map {
	return &Map{tree: btree.NewG(degree, less)}
}

// Get returns the value stored for key, if any.
func (m *Map) Get(key []byte) ([]byte, bool) {
	e, ok := m.tree.Get(Entry{Key: key})
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// Put inserts or replaces the value for key.
func (m *Map) Put(key, value []byte) {
	m.tree.ReplaceOrInsert(Entry{Key: key, Value: value})
}

// Delete removes key, reporting whether it was present.
func (m *Map) Delete(key []byte) bool {
	_, ok := m.tree.Delete(Entry{Key: key})
	return ok
}

// Len returns the number of entries.
func (m *Map) Len() int {
	return m.tree.Len()
}

// Ascend visits every entry in ascending key order, stopping early if fn
// returns false.
func (m *Map) Ascend(fn func(key, value []byte) bool) {
	m.tree.Ascend(func(e Entry) bool {
		return fn(e.Key, e.Value)
	})
}

// AscendRange visits entries with key in [start, end) in ascending order,
// stopping early if fn returns false. A nil end means unbounded.
func (m *Map) AscendRange(start, end []byte, fn func(key, value []byte) bool) {
	visit := func(e Entry) bool {
		if end != nil && string(e.Key) >= string(end) {
			return false
		}
		return fn(e.Key, e.Value)
	}
	if start == nil {
		m.tree.Ascend(visit)
		return
	}
	m.tree.AscendGreaterOrEqual(Entry{Key: start}, visit)
}

// Clone returns an independent Map that initially shares storage with m via
// copy-on-write: O(1) regardless of m's size. Mutating the clone or the
// original triggers node copies only where their paths diverge. This is
// what lets a write transaction fork a private working set from the
// engine's published one without copying the whole tree up front.
func (m *Map) Clone() *Map {
	return &Map{tree: m.tree.Clone()}
}
