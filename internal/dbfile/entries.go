package dbfile

import (
	"bufio"
	"encoding/binary"
	"io"
	"runtime"

	"github.com/cuemby/thunder/internal/overflow"
	"github.com/cuemby/thunder/internal/page"
	"github.com/cuemby/thunder/internal/terr"
)

// Bounds enforced while reading the entries region back from disk, so a
// corrupted length field can never force an enormous allocation (§4.10).
const (
	maxEntryCount = 100_000_000
	maxKeyLen     = 64 * 1024
	maxValueLen   = 512 * 1024 * 1024
)

// Entry is one key/value pair as stored in the entries region. Value is
// either the literal bytes or, if IsOverflowRef is set, an encoded
// overflow.Ref (see overflow.DecodeRef).
type Entry struct {
	Key           []byte
	Value         []byte
	IsOverflowRef bool
}

func (fi *File) writeEntriesHeader(count uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, count)
	if _, err := fi.f.WriteAt(buf, int64(fi.entriesStart())); err != nil {
		return terr.Wrap(terr.KindFileWrite, "dbfile: write entries header", err)
	}
	return nil
}

func encodeEntry(e Entry) []byte {
	valLen := uint32(len(e.Value))
	if e.IsOverflowRef {
		valLen = overflow.RefMarker
	}
	buf := make([]byte, 4+len(e.Key)+4+len(e.Value))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(e.Key)))
	copy(buf[4:], e.Key)
	off := 4 + len(e.Key)
	binary.LittleEndian.PutUint32(buf[off:off+4], valLen)
	copy(buf[off+4:], e.Value)
	return buf
}

// GrowOverflowRegion relocates the entries region to start right after
// newNextOverflowPage, for the case where a commit's overflow writes need
// more pages than the current gap between the overflow region and the
// entries region leaves free. It reads out the existing entries, advances
// meta.NextOverflowPage in memory, and rewrites the entries region at its
// new (higher) offset — the stretch of file this vacates becomes part of
// the overflow region, ready for the pending page writes. Callers persist
// the returned meta themselves once the overflow pages are also written.
func (fi *File) GrowOverflowRegion(newNextOverflowPage uint64) (*page.Meta, error) {
	if newNextOverflowPage <= fi.meta.NextOverflowPage {
		m := fi.Meta()
		return &m, nil
	}

	entries, err := fi.ReadEntries()
	if err != nil {
		return nil, err
	}

	next := fi.Meta()
	next.NextOverflowPage = newNextOverflowPage
	fi.meta = &next

	newEnd, err := fi.RewriteEntries(entries)
	if err != nil {
		return nil, err
	}
	next.DataEnd = newEnd
	return &next, nil
}

// RewriteEntries replaces the entire entries region with entries, used
// after any deletion and during a checkpoint's full persist (§4.10). It
// returns the new DataEnd (the file's resulting total size).
func (fi *File) RewriteEntries(entries []Entry) (uint64, error) {
	start := int64(fi.entriesStart())
	if err := fi.f.Truncate(start); err != nil {
		return 0, terr.Wrap(terr.KindFileWrite, "dbfile: truncate before rewrite", err)
	}

	w := bufio.NewWriterSize(&fileWriterAt{f: fi.f, offset: start}, 1<<20)
	var countBuf [8]byte
	binary.LittleEndian.PutUint64(countBuf[:], uint64(len(entries)))
	if _, err := w.Write(countBuf[:]); err != nil {
		return 0, terr.Wrap(terr.KindFileWrite, "dbfile: write entry count", err)
	}

	total := int64(8)
	for _, e := range entries {
		buf := encodeEntry(e)
		if _, err := w.Write(buf); err != nil {
			return 0, terr.Wrap(terr.KindFileWrite, "dbfile: write entry", err)
		}
		total += int64(len(buf))
	}
	if err := w.Flush(); err != nil {
		return 0, terr.Wrap(terr.KindFileWrite, "dbfile: flush rewrite", err)
	}
	if err := datasync(fi.f); err != nil {
		return 0, err
	}
	return uint64(start + total), nil
}

// AppendEntries appends newEntries after the current DataEnd and rewrites
// the leading entry-count header in place, for the incremental-append path
// taken when a commit contains no deletions (§4.10). totalEntryCount is the
// working set's size after the append. It returns the new DataEnd.
func (fi *File) AppendEntries(newEntries []Entry, totalEntryCount uint64) (uint64, error) {
	if err := fi.writeEntriesHeader(totalEntryCount); err != nil {
		return 0, err
	}

	offset := int64(fi.meta.DataEnd)
	w := bufio.NewWriterSize(&fileWriterAt{f: fi.f, offset: offset}, 1<<20)
	for _, e := range newEntries {
		buf := encodeEntry(e)
		if _, err := w.Write(buf); err != nil {
			return 0, terr.Wrap(terr.KindFileWrite, "dbfile: append entry", err)
		}
		offset += int64(len(buf))
	}
	if err := w.Flush(); err != nil {
		return 0, terr.Wrap(terr.KindFileWrite, "dbfile: flush append", err)
	}
	if err := datasync(fi.f); err != nil {
		return 0, err
	}
	return uint64(offset), nil
}

// ReadEntries parses every entry in the entries region, from the file's
// current meta up to DataEnd, validating size bounds as it goes.
func (fi *File) ReadEntries() ([]Entry, error) {
	start := fi.entriesStart()
	size := fi.meta.DataEnd - start
	if size < 8 {
		return nil, terr.New(terr.KindCorrupted, "dbfile: entries region shorter than header")
	}

	buf := make([]byte, size)
	if _, err := fi.f.ReadAt(buf, int64(start)); err != nil {
		return nil, terr.Wrap(terr.KindFileRead, "dbfile: read entries region", err)
	}

	count := binary.LittleEndian.Uint64(buf[0:8])
	if count > maxEntryCount {
		return nil, terr.New(terr.KindCorrupted, "dbfile: entry_count exceeds maximum")
	}

	entries := make([]Entry, 0, count)
	pos := 8
	for i := uint64(0); i < count; i++ {
		e, n, err := decodeEntryAt(buf, pos)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
		pos += n
	}
	return entries, nil
}

func decodeEntryAt(buf []byte, pos int) (Entry, int, error) {
	start := pos
	if pos+4 > len(buf) {
		return Entry{}, 0, terr.WrapAt(terr.KindCorrupted, "dbfile: truncated key length", int64(pos), io.ErrUnexpectedEOF)
	}
	keyLen := int(binary.LittleEndian.Uint32(buf[pos : pos+4]))
	if keyLen > maxKeyLen {
		return Entry{}, 0, terr.WrapAt(terr.KindCorrupted, "dbfile: key_len exceeds maximum", int64(pos), nil)
	}
	pos += 4
	if pos+keyLen > len(buf) {
		return Entry{}, 0, terr.WrapAt(terr.KindCorrupted, "dbfile: truncated key", int64(pos), io.ErrUnexpectedEOF)
	}
	key := append([]byte(nil), buf[pos:pos+keyLen]...)
	pos += keyLen

	if pos+4 > len(buf) {
		return Entry{}, 0, terr.WrapAt(terr.KindCorrupted, "dbfile: truncated value length", int64(pos), io.ErrUnexpectedEOF)
	}
	valLen := binary.LittleEndian.Uint32(buf[pos : pos+4])
	pos += 4

	isRef := valLen == overflow.RefMarker
	actualLen := int(valLen)
	if isRef {
		actualLen = overflow.RefSize
	} else if valLen > maxValueLen {
		return Entry{}, 0, terr.WrapAt(terr.KindCorrupted, "dbfile: value_len exceeds maximum", int64(pos), nil)
	}
	if pos+actualLen > len(buf) {
		return Entry{}, 0, terr.WrapAt(terr.KindCorrupted, "dbfile: truncated value", int64(pos), io.ErrUnexpectedEOF)
	}
	value := append([]byte(nil), buf[pos:pos+actualLen]...)
	pos += actualLen

	return Entry{Key: key, Value: value, IsOverflowRef: isRef}, pos - start, nil
}

// fileWriterAt adapts an *os.File + running offset to io.Writer for use
// with bufio.Writer, so large appends and rewrites go through one
// buffered, sequential write path instead of many small WriteAt calls.
type fileWriterAt struct {
	f      writerAt
	offset int64
}

type writerAt interface {
	WriteAt(p []byte, off int64) (int, error)
}

func (w *fileWriterAt) Write(p []byte) (int, error) {
	n, err := w.f.WriteAt(p, w.offset)
	w.offset += int64(n)
	return n, err
}

func datasync(f interface{ Fd() uintptr }) error {
	if err := dataSyncPlatform(f); err != nil {
		return terr.Wrap(terr.KindFileSync, "dbfile: fdatasync", err)
	}
	runtime.KeepAlive(f)
	return nil
}
