// Package dbfile owns the single on-disk file thunder persists to: the
// two-slot meta header, the page-addressed overflow region, and the flat
// entries region that holds the working set's durable copy (§4.10). It is
// the only package that touches raw file offsets.
package dbfile

import (
	"os"

	"github.com/cuemby/thunder/internal/page"
	"github.com/cuemby/thunder/internal/terr"
)

// File is an open thunder data file.
//
// Layout:
//
//	[meta slot 0][meta slot 1][overflow pages 2..N][entries region]
//
// Meta slots occupy exactly one page each (page 0 and page 1). The
// overflow region holds pages addressed by page id, growing upward from
// page 2; meta.NextOverflowPage marks its current end. The entries region
// begins at that page-aligned offset and holds `entry_count` followed by
// flat (key_len|key|value_len|value) records; meta.DataEnd is its end
// offset, i.e. the file's total size.
type File struct {
	f        *os.File
	path     string
	pageSize page.Size
	meta     *page.Meta
	metaSlot int
	mmap     *mapping
}

// entriesStart returns the byte offset at which the entries region begins,
// given the current overflow high-water mark.
func (fi *File) entriesStart() uint64 {
	return fi.meta.NextOverflowPage * uint64(fi.pageSize)
}

// Create makes a brand-new data file at path with the given page size and
// instance id, and returns it open.
func Create(path string, pageSize page.Size, instanceID [16]byte) (*File, error) {
	if !pageSize.Valid() {
		pageSize = page.DefaultSize
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, terr.Wrap(terr.KindFileOpen, "dbfile: create", err)
	}

	meta := &page.Meta{
		PageSize:         pageSize,
		Txid:             0,
		NextOverflowPage: 2,
		InstanceID:       instanceID,
	}
	meta.DataEnd = meta.NextOverflowPage*uint64(pageSize) + 8 // entry_count header

	fi := &File{f: f, path: path, pageSize: pageSize, meta: meta, metaSlot: 0}

	if err := fi.writeMetaSlot(0, meta); err != nil {
		f.Close()
		return nil, err
	}
	// Slot 1 starts as a copy so a crash before the first real commit
	// still leaves a valid (if stale) meta to recover from.
	if err := fi.writeMetaSlot(1, meta); err != nil {
		f.Close()
		return nil, err
	}
	if err := fi.writeEntriesHeader(0); err != nil {
		f.Close()
		return nil, err
	}
	if err := fi.f.Sync(); err != nil {
		f.Close()
		return nil, terr.Wrap(terr.KindFileSync, "dbfile: initial sync", err)
	}

	if err := fi.remap(); err != nil {
		f.Close()
		return nil, err
	}
	return fi, nil
}

// Open opens an existing data file, selecting the newest valid meta slot.
func Open(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, terr.Wrap(terr.KindFileOpen, "dbfile: open", err)
	}

	// Page size is unknown until we've read a meta slot, so probe with the
	// smallest supported size first; meta.PageSize then tells us the real
	// slot stride for re-reading if it differs.
	probe := make([]byte, page.DefaultSize*2)
	if _, err := f.ReadAt(probe, 0); err != nil {
		f.Close()
		return nil, terr.Wrap(terr.KindFileRead, "dbfile: read meta probe", err)
	}
	meta, slot, err := page.Select(probe[:page.MetaSize], probe[page.DefaultSize:page.DefaultSize+page.MetaSize])
	if err != nil {
		f.Close()
		return nil, err
	}

	if meta.PageSize != page.DefaultSize {
		slot0 := make([]byte, page.MetaSize)
		slot1 := make([]byte, page.MetaSize)
		if _, err := f.ReadAt(slot0, 0); err != nil {
			f.Close()
			return nil, terr.Wrap(terr.KindFileRead, "dbfile: reread meta slot 0", err)
		}
		if _, err := f.ReadAt(slot1, int64(meta.PageSize)); err != nil {
			f.Close()
			return nil, terr.Wrap(terr.KindFileRead, "dbfile: reread meta slot 1", err)
		}
		meta, slot, err = page.Select(slot0, slot1)
		if err != nil {
			f.Close()
			return nil, err
		}
	}

	fi := &File{f: f, path: path, pageSize: meta.PageSize, meta: meta, metaSlot: slot}
	if err := fi.remap(); err != nil {
		f.Close()
		return nil, err
	}
	return fi, nil
}

// Close releases the file and any active mapping.
func (fi *File) Close() error {
	if fi.mmap != nil {
		fi.mmap.release()
	}
	if err := fi.f.Close(); err != nil {
		return terr.Wrap(terr.KindFileWrite, "dbfile: close", err)
	}
	return nil
}

// Path returns the file path this File was opened from.
func (fi *File) Path() string { return fi.path }

// PageSize returns the database's configured page size.
func (fi *File) PageSize() page.Size { return fi.pageSize }

// Meta returns a copy of the currently active meta.
func (fi *File) Meta() page.Meta { return *fi.meta }

func (fi *File) writeMetaSlot(slot int, m *page.Meta) error {
	buf := make([]byte, fi.pageSize)
	copy(buf, m.Encode())
	if _, err := fi.f.WriteAt(buf, int64(slot)*int64(fi.pageSize)); err != nil {
		return terr.Wrap(terr.KindFileWrite, "dbfile: write meta slot", err)
	}
	return nil
}

// PersistMeta writes next (with Txid already advanced) to the slot its
// parity selects, fsyncs it, and adopts it as current.
func (fi *File) PersistMeta(next *page.Meta) error {
	slot := page.NextSlot(next.Txid)
	if err := fi.writeMetaSlot(slot, next); err != nil {
		return err
	}
	if err := fi.f.Sync(); err != nil {
		return terr.Wrap(terr.KindFileSync, "dbfile: sync meta", err)
	}
	fi.meta = next
	fi.metaSlot = slot
	return nil
}
