package dbfile

import (
	"path/filepath"
	"testing"

	"github.com/cuemby/thunder/internal/page"
	"github.com/stretchr/testify/require"
)

func newTestFile(t *testing.T) *File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.thunder")
	fi, err := Create(path, page.Size4K, [16]byte{1, 2, 3})
	require.NoError(t, err)
	t.Cleanup(func() { fi.Close() })
	return fi
}

func TestCreateThenOpenRecoversMeta(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.thunder")
	fi, err := Create(path, page.Size4K, [16]byte{9})
	require.NoError(t, err)
	require.Equal(t, page.Size4K, fi.PageSize())
	require.Equal(t, uint64(2), fi.Meta().NextOverflowPage)
	require.NoError(t, fi.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	require.Equal(t, page.Size4K, reopened.PageSize())
	require.Equal(t, uint64(2), reopened.Meta().NextOverflowPage)
}

func TestPersistMetaAlternatesSlotsByParity(t *testing.T) {
	fi := newTestFile(t)

	next := fi.Meta()
	next.Txid = 1
	require.NoError(t, fi.PersistMeta(&next))
	require.Equal(t, uint64(1), fi.Meta().Txid)
	require.Equal(t, 1, fi.metaSlot)

	next2 := fi.Meta()
	next2.Txid = 2
	require.NoError(t, fi.PersistMeta(&next2))
	require.Equal(t, uint64(2), fi.Meta().Txid)
	require.Equal(t, 0, fi.metaSlot)
}

func TestWritePageThenReadPageRoundtrips(t *testing.T) {
	fi := newTestFile(t)

	data := make([]byte, fi.PageSize())
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, fi.WritePage(2, data))

	got, err := fi.ReadPage(2)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestWritePageRejectsWrongSize(t *testing.T) {
	fi := newTestFile(t)
	err := fi.WritePage(2, []byte{1, 2, 3})
	require.Error(t, err)
}

func TestEntriesRoundtripViaRewrite(t *testing.T) {
	fi := newTestFile(t)

	entries := []Entry{
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("b"), Value: []byte("2")},
	}
	newEnd, err := fi.RewriteEntries(entries)
	require.NoError(t, err)

	m := fi.Meta()
	m.DataEnd = newEnd
	m.EntryCount = uint64(len(entries))
	require.NoError(t, fi.PersistMeta(&m))

	got, err := fi.ReadEntries()
	require.NoError(t, err)
	require.Equal(t, entries, got)
}

func TestEntriesRoundtripViaAppend(t *testing.T) {
	fi := newTestFile(t)

	first := []Entry{{Key: []byte("a"), Value: []byte("1")}}
	newEnd, err := fi.RewriteEntries(first)
	require.NoError(t, err)
	m := fi.Meta()
	m.DataEnd = newEnd
	m.EntryCount = 1
	require.NoError(t, fi.PersistMeta(&m))

	second := []Entry{{Key: []byte("b"), Value: []byte("2")}}
	newEnd, err = fi.AppendEntries(second, 2)
	require.NoError(t, err)
	m = fi.Meta()
	m.DataEnd = newEnd
	m.EntryCount = 2
	require.NoError(t, fi.PersistMeta(&m))

	got, err := fi.ReadEntries()
	require.NoError(t, err)
	require.Equal(t, append(first, second...), got)
}

func TestEntriesWithOverflowRef(t *testing.T) {
	fi := newTestFile(t)

	entries := []Entry{
		{Key: []byte("big"), Value: make([]byte, 12), IsOverflowRef: true},
	}
	newEnd, err := fi.RewriteEntries(entries)
	require.NoError(t, err)
	m := fi.Meta()
	m.DataEnd = newEnd
	require.NoError(t, fi.PersistMeta(&m))

	got, err := fi.ReadEntries()
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.True(t, got[0].IsOverflowRef)
}

func TestGrowOverflowRegionRelocatesEntries(t *testing.T) {
	fi := newTestFile(t)

	entries := []Entry{{Key: []byte("a"), Value: []byte("1")}}
	newEnd, err := fi.RewriteEntries(entries)
	require.NoError(t, err)
	m := fi.Meta()
	m.DataEnd = newEnd
	m.EntryCount = 1
	require.NoError(t, fi.PersistMeta(&m))

	oldStart := fi.entriesStart()
	next, err := fi.GrowOverflowRegion(fi.Meta().NextOverflowPage + 4)
	require.NoError(t, err)
	require.Greater(t, fi.entriesStart(), oldStart)
	require.NoError(t, fi.PersistMeta(next))

	got, err := fi.ReadEntries()
	require.NoError(t, err)
	require.Equal(t, entries, got)
}

func TestReadEntriesRejectsOversizedCount(t *testing.T) {
	fi := newTestFile(t)
	m := fi.Meta()
	m.DataEnd = fi.entriesStart() + 8 + 4
	require.NoError(t, fi.PersistMeta(&m))

	buf := make([]byte, 8)
	buf[7] = 0xFF // entry_count interpreted as an enormous value
	_, err := fi.f.WriteAt(buf, int64(fi.entriesStart()))
	require.NoError(t, err)

	_, err = fi.ReadEntries()
	require.Error(t, err)
}
