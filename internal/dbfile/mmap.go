package dbfile

import (
	"sync"
	"sync/atomic"

	"github.com/cuemby/thunder/internal/terr"
)

// minMmapSize and mmapGrowthStep follow bbolt's doubling strategy: start
// small, double until a step ceiling, then grow linearly. The size is not
// rounded to a page boundary.
const (
	minMmapSize    = 4 << 20 // 4MiB
	mmapGrowthStep = 1 << 30 // 1GiB
)

// mapping is a read-only view of the data file's current byte range. remap
// replaces it with a new, larger mapping as the file grows; readers that
// already captured a *mapping via slice keep referencing its backing array
// (and therefore the underlying OS mapping, pinned by refcount) even after
// the File swaps in a newer one, satisfying the "old mapping stays live
// until the last in-flight reader drops it" rule.
type mapping struct {
	data   []byte
	refs   int32
	mu     sync.Mutex
	closed bool
}

func (m *mapping) acquire() {
	atomic.AddInt32(&m.refs, 1)
}

func (m *mapping) release() {
	if atomic.AddInt32(&m.refs, -1) != 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	if m.data != nil {
		munmapPlatform(m.data)
	}
}

// slice returns the mmap'd bytes for [offset, offset+length), acquiring a
// reference so the mapping cannot be released out from under the caller.
// Every successful call must be paired with a release() once the caller is
// done with the slice; ReadPage copies the bytes out and releases before
// returning.
func (m *mapping) slice(offset, length int64) ([]byte, bool) {
	if m == nil || offset < 0 || length < 0 || offset+length > int64(len(m.data)) {
		return nil, false
	}
	m.acquire()
	return m.data[offset : offset+length], true
}

func mmapSizeFor(fileSize int64) int64 {
	size := fileSize
	if size < minMmapSize {
		size = minMmapSize
	} else if size < mmapGrowthStep {
		size *= 2
	} else {
		size += mmapGrowthStep
	}
	return size
}

// Remap re-establishes the mmap to cover the file's latest size. Callers
// that grow the file outside of Create/Open (overflow region growth,
// checkpoint rewrites) call this afterward so later ReadPage calls regain
// the zero-copy path instead of permanently falling back to ReadAt.
func (fi *File) Remap() error {
	return fi.remap()
}

// remap grows (or establishes) the active mmap to cover the file's current
// size, releasing this File's reference to the prior mapping. Any reader
// still holding a slice from the old mapping keeps it alive via refcount.
func (fi *File) remap() error {
	info, err := fi.f.Stat()
	if err != nil {
		return terr.Wrap(terr.KindFileMetadata, "dbfile: stat for remap", err)
	}

	size := info.Size()
	if size < int64(fi.pageSize)*2 {
		// Nothing durable to map yet; reads fall back to ReadAt.
		return nil
	}

	mapped, ok := mmapPlatform(fi.f, mmapSizeFor(size))
	if !ok {
		// Platform doesn't support mmap (or it failed); ReadPage/ReadAt
		// fallback covers every read path, so this is not fatal.
		fi.mmap = nil
		return nil
	}

	next := &mapping{data: mapped, refs: 1}
	prev := fi.mmap
	fi.mmap = next
	if prev != nil {
		prev.release()
	}
	return nil
}
