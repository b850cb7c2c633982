// Package freelist tracks released page ids for reuse, so that deleting
// overflow chains and superseded pages does not leak space in the data
// file between checkpoints.
package freelist

import (
	"encoding/binary"

	"github.com/cuemby/thunder/internal/page"
	"github.com/cuemby/thunder/internal/terr"
)

// List is a set of free page ids with deterministic smallest-first
// allocation (§4.2). Free and Contains are map operations; the first
// Allocate or Serialize after a Free rebuilds the sorted order with an
// insertion sort, so that call is O(n²) in the number of free ids.
type List struct {
	pages map[page.ID]struct{}
	order []page.ID // kept sorted; rebuilt lazily on Allocate
	dirty bool
}

// New creates an empty freelist.
func New() *List {
	return &List{pages: make(map[page.ID]struct{})}
}

// Free marks id as available for reuse. Freeing an already-free id is a
// no-op (duplicates are idempotent).
func (l *List) Free(id page.ID) {
	if _, ok := l.pages[id]; ok {
		return
	}
	l.pages[id] = struct{}{}
	l.dirty = true
}

// Allocate removes and returns the smallest free page id, or false if the
// freelist is empty.
func (l *List) Allocate() (page.ID, bool) {
	l.ensureSorted()
	if len(l.order) == 0 {
		return 0, false
	}
	id := l.order[0]
	l.order = l.order[1:]
	delete(l.pages, id)
	return id, true
}

// Contains reports whether id is currently free.
func (l *List) Contains(id page.ID) bool {
	_, ok := l.pages[id]
	return ok
}

// Len returns the number of free pages tracked.
func (l *List) Len() int {
	return len(l.pages)
}

func (l *List) ensureSorted() {
	if !l.dirty && len(l.order) == len(l.pages) {
		return
	}
	l.order = l.order[:0]
	for id := range l.pages {
		l.order = append(l.order, id)
	}
	// insertion sort is fine: freelists are small relative to the data file
	for i := 1; i < len(l.order); i++ {
		for j := i; j > 0 && l.order[j-1] > l.order[j]; j-- {
			l.order[j-1], l.order[j] = l.order[j], l.order[j-1]
		}
	}
	l.dirty = false
}

// Serialize writes the freelist as [count u64][ids u64...], sorted
// ascending for deterministic output.
func (l *List) Serialize() []byte {
	l.ensureSorted()
	buf := make([]byte, 8+8*len(l.order))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(len(l.order)))
	for i, id := range l.order {
		binary.LittleEndian.PutUint64(buf[8+8*i:16+8*i], uint64(id))
	}
	return buf
}

// Deserialize replaces the freelist's contents from a buffer produced by
// Serialize.
func Deserialize(buf []byte) (*List, error) {
	if len(buf) < 8 {
		return nil, terr.New(terr.KindCorrupted, "freelist: truncated header")
	}
	count := binary.LittleEndian.Uint64(buf[0:8])
	want := 8 + 8*int(count)
	if uint64(want) < count || len(buf) < want {
		return nil, terr.New(terr.KindCorrupted, "freelist: truncated body")
	}
	l := New()
	for i := uint64(0); i < count; i++ {
		off := 8 + 8*i
		id := page.ID(binary.LittleEndian.Uint64(buf[off : off+8]))
		l.Free(id)
	}
	return l, nil
}
