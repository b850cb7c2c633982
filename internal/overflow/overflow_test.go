package overflow

import (
	"testing"

	"github.com/cuemby/thunder/internal/freelist"
	"github.com/cuemby/thunder/internal/page"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundtrip(t *testing.T) {
	hdr := Header{NextPage: 42, DataLen: 1024, Checksum: 0xDEADBEEF}
	got, err := DecodeHeader(hdr.Encode())
	require.NoError(t, err)
	require.Equal(t, hdr, got)
}

func TestRefRoundtrip(t *testing.T) {
	ref := Ref{StartPage: 100, TotalLen: 50000}
	got, err := DecodeRef(ref.Encode())
	require.NoError(t, err)
	require.Equal(t, ref, got)
}

func TestShouldOverflow(t *testing.T) {
	require.False(t, ShouldOverflow(1024, 2048))
	require.False(t, ShouldOverflow(2048, 2048))
	require.True(t, ShouldOverflow(2049, 2048))
	require.True(t, ShouldOverflow(10000, 2048))
}

func TestManagerAllocateAndRead(t *testing.T) {
	mgr := NewManager(page.Size4K, 10, freelist.New())

	value := make([]byte, 10*1024)
	for i := range value {
		value[i] = 0xAB
	}

	ref, writes := mgr.Allocate(value)
	require.Equal(t, page.ID(10), ref.StartPage)
	require.Equal(t, uint32(len(value)), ref.TotalLen)
	require.Len(t, writes, 3) // 10KB / (4096-24) needs 3 pages

	hdr0, err := DecodeHeader(writes[0].Data)
	require.NoError(t, err)
	hdr1, err := DecodeHeader(writes[1].Data)
	require.NoError(t, err)
	hdr2, err := DecodeHeader(writes[2].Data)
	require.NoError(t, err)
	require.Equal(t, writes[1].ID, hdr0.NextPage)
	require.Equal(t, writes[2].ID, hdr1.NextPage)
	require.Equal(t, page.ID(0), hdr2.NextPage)

	pages := make(map[page.ID][]byte, len(writes))
	for _, w := range writes {
		pages[w.ID] = w.Data
	}
	read := func(id page.ID) ([]byte, error) { return pages[id], nil }

	got, err := mgr.Read(ref, read)
	require.NoError(t, err)
	require.Equal(t, value, got)
}

func TestManagerAllocateEmptyValue(t *testing.T) {
	mgr := NewManager(page.Size4K, 2, freelist.New())
	ref, writes := mgr.Allocate(nil)
	require.Empty(t, writes)
	require.Equal(t, Ref{}, ref)
}

func TestManagerFreeReusesPages(t *testing.T) {
	free := freelist.New()
	mgr := NewManager(page.Size4K, 2, free)

	value := make([]byte, 3*(int(page.Size4K)-HeaderSize))
	ref, writes := mgr.Allocate(value)
	pages := make(map[page.ID][]byte, len(writes))
	for _, w := range writes {
		pages[w.ID] = w.Data
	}
	read := func(id page.ID) ([]byte, error) { return pages[id], nil }

	mgr.Free(ref, read)
	require.Equal(t, 3, free.Len())

	// Allocating again reuses the freed pages before growing the file.
	next := mgr.NextPageID()
	_, writes2 := mgr.Allocate([]byte("small"))
	require.Equal(t, next, mgr.NextPageID())
	require.True(t, free.Contains(writes2[0].ID) == false)
}

func TestManagerReadDetectsCorruption(t *testing.T) {
	mgr := NewManager(page.Size4K, 2, freelist.New())
	ref, writes := mgr.Allocate([]byte("hello overflow"))
	writes[0].Data[HeaderSize] ^= 0xFF // corrupt payload without touching checksum

	pages := map[page.ID][]byte{writes[0].ID: writes[0].Data}
	read := func(id page.ID) ([]byte, error) { return pages[id], nil }

	_, err := mgr.Read(ref, read)
	require.Error(t, err)
}
