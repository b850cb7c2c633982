package dbfile

import (
	"github.com/cuemby/thunder/internal/page"
	"github.com/cuemby/thunder/internal/terr"
)

// ReadPage returns the page_size bytes of page id, preferring the active
// mmap view and falling back to a positional read (§4.11).
func (fi *File) ReadPage(id page.ID) ([]byte, error) {
	offset := int64(id) * int64(fi.pageSize)

	if m := fi.mmap; m != nil {
		if view, ok := m.slice(offset, int64(fi.pageSize)); ok {
			// Copy out immediately: the reference is only held for the
			// duration of this call, so the source mapping can be released
			// and later unmapped the instant a concurrent remap replaces
			// it, without the caller needing to manage mapping lifetimes.
			buf := append([]byte(nil), view...)
			m.release()
			return buf, nil
		}
	}

	buf := make([]byte, fi.pageSize)
	if _, err := fi.f.ReadAt(buf, offset); err != nil {
		return nil, terr.Wrap(terr.KindFileRead, "dbfile: read page", err)
	}
	return buf, nil
}

// WritePage writes data (must be exactly one page) at page id's offset.
// The caller is responsible for keeping meta.NextOverflowPage in sync with
// the highest page id it has allocated.
func (fi *File) WritePage(id page.ID, data []byte) error {
	if len(data) != int(fi.pageSize) {
		return terr.New(terr.KindFileWrite, "dbfile: page write size mismatch")
	}
	if _, err := fi.f.WriteAt(data, int64(id)*int64(fi.pageSize)); err != nil {
		return terr.Wrap(terr.KindFileWrite, "dbfile: write page", err)
	}
	return nil
}

// WritePages writes a batch of overflow pages. It does not touch the meta:
// callers grow the overflow region (GrowOverflowRegion) beforehand.
func (fi *File) WritePages(writes []Write) error {
	for _, w := range writes {
		if err := fi.WritePage(w.ID, w.Data); err != nil {
			return err
		}
	}
	return nil
}

// Write is one overflow (or other page-addressed) write, mirroring
// overflow.Write so this package does not need to import overflow just for
// a struct shape.
type Write struct {
	ID   page.ID
	Data []byte
}
