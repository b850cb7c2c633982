// Package overflow stores values too large to keep inline in a leaf entry as
// chains of fixed-size pages elsewhere in the data file (§4.3). A leaf entry
// holding an overflowed value carries a Ref instead of the bytes themselves.
package overflow

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/cuemby/thunder/internal/freelist"
	"github.com/cuemby/thunder/internal/page"
	"github.com/cuemby/thunder/internal/terr"
)

// DefaultThreshold is the value size, in bytes, above which a value is
// written to an overflow chain instead of inline.
const DefaultThreshold = 2048

// HeaderSize is the fixed size of an overflow page's header.
const HeaderSize = 24

// maxChainLength bounds chain walks so a corrupted next_page cycle can never
// spin a reader forever.
const maxChainLength = 1_000_000

// Header is the 24-byte header at the front of every overflow page:
//
//	[0]      page_type (u8)  = page.TypeOverflow
//	[1..8]   reserved
//	[8..16]  next_page (u64) - 0 marks the end of the chain
//	[16..20] data_len (u32)  - bytes of payload in this page
//	[20..24] checksum (u32)  - CRC32 of the payload
type Header struct {
	NextPage page.ID
	DataLen  uint32
	Checksum uint32
}

// Encode serializes h into a HeaderSize-byte buffer.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	buf[0] = byte(page.TypeOverflow)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(h.NextPage))
	binary.LittleEndian.PutUint32(buf[16:20], h.DataLen)
	binary.LittleEndian.PutUint32(buf[20:24], h.Checksum)
	return buf
}

// DecodeHeader parses a page-sized (or larger) buffer's leading header.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, terr.New(terr.KindCorrupted, "overflow: short page header")
	}
	if page.Type(buf[0]) != page.TypeOverflow {
		return Header{}, terr.New(terr.KindCorrupted, "overflow: wrong page type")
	}
	return Header{
		NextPage: page.ID(binary.LittleEndian.Uint64(buf[8:16])),
		DataLen:  binary.LittleEndian.Uint32(buf[16:20]),
		Checksum: binary.LittleEndian.Uint32(buf[20:24]),
	}, nil
}

// RefMarker is written in place of a value_len field to flag that the entry
// that follows is a Ref rather than inline value bytes.
const RefMarker uint32 = 0xFFFFFFFF

// RefSize is the encoded size of a Ref (excluding RefMarker, which the
// caller writes as its own 4-byte field ahead of it).
const RefSize = 12

// Ref is stored in a leaf entry instead of value bytes once a value exceeds
// the overflow threshold.
type Ref struct {
	StartPage page.ID
	TotalLen  uint32
}

// Encode serializes r to RefSize bytes.
func (r Ref) Encode() []byte {
	buf := make([]byte, RefSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(r.StartPage))
	binary.LittleEndian.PutUint32(buf[8:12], r.TotalLen)
	return buf
}

// DecodeRef parses a RefSize-byte buffer produced by Encode.
func DecodeRef(buf []byte) (Ref, error) {
	if len(buf) < RefSize {
		return Ref{}, terr.New(terr.KindCorrupted, "overflow: short ref")
	}
	return Ref{
		StartPage: page.ID(binary.LittleEndian.Uint64(buf[0:8])),
		TotalLen:  binary.LittleEndian.Uint32(buf[8:12]),
	}, nil
}

// ShouldOverflow reports whether a value of valueLen bytes must be stored in
// an overflow chain rather than inline, given threshold.
func ShouldOverflow(valueLen, threshold int) bool {
	return valueLen > threshold
}

// Write is one page to be persisted as part of allocating a chain: the
// caller (the write transaction's commit path) is responsible for getting
// Data onto disk at offset ID*pageSize.
type Write struct {
	ID   page.ID
	Data []byte
}

// PageReader reads the full page-sized contents of page id, whether backed
// by an mmap view or a positional ReadAt fallback (§4.11).
type PageReader func(id page.ID) ([]byte, error)

// Manager allocates and reclaims overflow pages and builds/walks the chains
// that hold oversized values. It allocates from the freelist.List the
// engine hands it before extending the overflow region.
type Manager struct {
	free       *freelist.List
	nextPageID page.ID
	pageSize   page.Size
	dataSize   int
}

// NewManager creates a Manager for a database with the given page size.
// nextPageID is the first never-yet-used page id in the file.
func NewManager(pageSize page.Size, nextPageID page.ID, free *freelist.List) *Manager {
	return &Manager{
		free:       free,
		nextPageID: nextPageID,
		pageSize:   pageSize,
		dataSize:   int(pageSize) - HeaderSize,
	}
}

// DataCapacity returns the usable payload bytes per overflow page.
func (m *Manager) DataCapacity() int {
	return m.dataSize
}

// NextPageID returns the next page id that would be allocated fresh (i.e.
// not from the freelist).
func (m *Manager) NextPageID() page.ID {
	return m.nextPageID
}

// SetNextPageID restores the high-water mark after loading an existing
// database file.
func (m *Manager) SetNextPageID(id page.ID) {
	m.nextPageID = id
}

func (m *Manager) allocPage() page.ID {
	if id, ok := m.free.Allocate(); ok {
		return id
	}
	id := m.nextPageID
	m.nextPageID++
	return id
}

// Allocate splits value into DataCapacity-sized chunks, assigns each a page
// id (reusing freed pages before growing the file), and returns the Ref the
// caller should store in the leaf entry plus the raw pages to persist.
func (m *Manager) Allocate(value []byte) (Ref, []Write) {
	if len(value) == 0 {
		return Ref{}, nil
	}

	var writes []Write
	firstPage := m.allocPage()
	current := firstPage
	remaining := value

	for {
		chunkLen := len(remaining)
		if chunkLen > m.dataSize {
			chunkLen = m.dataSize
		}
		chunk := remaining[:chunkLen]
		remaining = remaining[chunkLen:]

		var next page.ID
		if len(remaining) > 0 {
			next = m.allocPage()
		}

		hdr := Header{NextPage: next, DataLen: uint32(chunkLen), Checksum: crc32.ChecksumIEEE(chunk)}
		buf := make([]byte, m.pageSize)
		copy(buf, hdr.Encode())
		copy(buf[HeaderSize:], chunk)

		writes = append(writes, Write{ID: current, Data: buf})
		if len(remaining) == 0 {
			break
		}
		current = next
	}

	return Ref{StartPage: firstPage, TotalLen: uint32(len(value))}, writes
}

// Read reconstructs a value from its overflow chain using read to fetch
// each page's bytes.
func (m *Manager) Read(ref Ref, read PageReader) ([]byte, error) {
	if ref.StartPage == 0 {
		return nil, nil
	}

	result := make([]byte, 0, ref.TotalLen)
	current := ref.StartPage
	pagesRead := 0

	for current != 0 {
		if pagesRead >= maxChainLength {
			return nil, terr.New(terr.KindCorrupted, "overflow: chain exceeds maximum length")
		}
		buf, err := read(current)
		if err != nil {
			return nil, terr.Wrap(terr.KindEntryReadFailed, "overflow: read page", err)
		}
		hdr, err := DecodeHeader(buf)
		if err != nil {
			return nil, err
		}
		dataEnd := HeaderSize + int(hdr.DataLen)
		if dataEnd > len(buf) {
			return nil, terr.New(terr.KindCorrupted, "overflow: data_len exceeds page size")
		}
		chunk := buf[HeaderSize:dataEnd]
		if crc32.ChecksumIEEE(chunk) != hdr.Checksum {
			return nil, terr.New(terr.KindCorrupted, "overflow: checksum mismatch")
		}
		result = append(result, chunk...)
		current = hdr.NextPage
		pagesRead++
	}

	if uint32(len(result)) != ref.TotalLen {
		return nil, terr.New(terr.KindCorrupted, "overflow: reconstructed length mismatch")
	}
	return result, nil
}

// Free walks ref's chain and returns every page in it to the freelist for
// reuse, stopping at the first unreadable or malformed page (the pages
// already queued are still freed; a torn chain should not leak the healthy
// prefix).
func (m *Manager) Free(ref Ref, read PageReader) {
	current := ref.StartPage
	freed := 0

	for current != 0 && freed < maxChainLength {
		buf, err := read(current)
		if err != nil {
			return
		}
		hdr, err := DecodeHeader(buf)
		if err != nil {
			return
		}
		m.free.Free(current)
		current = hdr.NextPage
		freed++
	}
}
