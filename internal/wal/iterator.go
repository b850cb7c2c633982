package wal

import (
	"io"
	"os"

	"github.com/cuemby/thunder/internal/terr"
)

// Iterator replays records starting at a given LSN, in order, across
// segment boundaries. It stops silently at the first malformed or
// CRC-failed record: a torn tail from an interrupted write is expected,
// not corruption of the records that came before it (§4.6).
type Iterator struct {
	w        *WAL
	segIdx   int
	buf      []byte
	pos      int
	segStart uint64
	done     bool
	err      error
}

// IterFrom returns an Iterator that replays every record with LSN >= from.
func (w *WAL) IterFrom(from uint64) (*Iterator, error) {
	w.mu.Lock()
	segs := append([]segmentMeta(nil), w.segments...)
	segSize := w.segmentSize
	w.mu.Unlock()

	segIdx := 0
	for i, seg := range segs {
		segEnd := (seg.id + 1) * uint64(segSize)
		if segEnd > from {
			segIdx = i
			break
		}
		segIdx = i + 1
	}

	it := &Iterator{w: w}
	if segIdx >= len(segs) {
		it.done = true
		return it, nil
	}

	if err := it.loadSegment(segs[segIdx]); err != nil {
		return nil, err
	}
	it.segIdx = segIdx

	offset := from - it.segStart
	if offset > uint64(len(it.buf)) {
		it.done = true
	} else {
		it.pos = int(offset)
	}
	return it, nil
}

func (it *Iterator) loadSegment(seg segmentMeta) error {
	data, err := os.ReadFile(it.w.segmentPath(seg.id))
	if err != nil {
		return terr.Wrap(terr.KindFileRead, "wal: read segment", err)
	}
	it.buf = data
	it.pos = 0
	it.segStart = seg.id * uint64(it.w.segmentSize)
	return nil
}

// Next advances to the next record, returning (lsn, record, true) on
// success, or (0, Record{}, false) once the stream ends (whether by
// reaching the end of all segments or by hitting a torn/corrupt record).
// Err returns non-nil only for I/O failures distinct from a torn tail.
func (it *Iterator) Next() (uint64, Record, bool) {
	if it.done {
		return 0, Record{}, false
	}

	for {
		if it.pos >= len(it.buf) {
			it.w.mu.Lock()
			segs := append([]segmentMeta(nil), it.w.segments...)
			it.w.mu.Unlock()

			nextIdx := it.segIdx + 1
			if nextIdx >= len(segs) {
				it.done = true
				return 0, Record{}, false
			}
			if err := it.loadSegment(segs[nextIdx]); err != nil {
				it.done = true
				it.err = err
				return 0, Record{}, false
			}
			it.segIdx = nextIdx
			continue
		}

		lsn := it.segStart + uint64(it.pos)
		rec, n, err := Decode(it.buf[it.pos:])
		if err != nil {
			// Torn tail or corruption: stop the stream here, without
			// surfacing err — earlier records remain valid.
			it.done = true
			return 0, Record{}, false
		}
		it.pos += n
		return lsn, rec, true
	}
}

// Err returns the first I/O error encountered while iterating, if any. A
// normal end-of-stream (including a torn tail) is not an error.
func (it *Iterator) Err() error {
	if it.err == io.EOF {
		return nil
	}
	return it.err
}
