package page

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/cuemby/thunder/internal/terr"
)

// MetaSize is the fixed encoded size of a Meta in bytes.
const MetaSize = 100

// Meta is thunder's two-slot database header. Exactly one slot is "current"
// at any time: the valid slot (Validate passes) with the highest Txid.
// Slot selection for the next write is by txid parity (§4.1).
type Meta struct {
	PageSize      Size
	Txid          uint64
	DataEnd       uint64 // data file write offset / high-water mark ("root")
	CheckpointLSN uint64
	EntryCount    uint64
	BloomBits     uint32 // diagnostic only; bloom filter itself lives in a sidecar
	BloomHashes   uint8
	InstanceID    [16]byte
	// NextOverflowPage is the first not-yet-allocated page id in the
	// overflow region, which occupies pages [2, NextOverflowPage) ahead of
	// DataEnd's flat entries region (see internal/dbfile).
	NextOverflowPage uint64
}

// Encode serializes m into a MetaSize-byte buffer with a trailing CRC32.
func (m *Meta) Encode() []byte {
	buf := make([]byte, MetaSize)
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], Version)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(m.PageSize))
	binary.LittleEndian.PutUint64(buf[12:20], m.Txid)
	binary.LittleEndian.PutUint64(buf[20:28], m.DataEnd)
	binary.LittleEndian.PutUint64(buf[28:36], m.CheckpointLSN)
	binary.LittleEndian.PutUint64(buf[36:44], m.EntryCount)
	binary.LittleEndian.PutUint32(buf[44:48], m.BloomBits)
	buf[48] = m.BloomHashes
	copy(buf[56:72], m.InstanceID[:])
	binary.LittleEndian.PutUint64(buf[72:80], m.NextOverflowPage)
	crc := crc32.ChecksumIEEE(buf[0:96])
	binary.LittleEndian.PutUint32(buf[96:100], crc)
	return buf
}

// Decode parses a MetaSize-byte buffer into a Meta without checking magic,
// version, or CRC. Use Validate to enforce those.
func Decode(buf []byte) (*Meta, error) {
	if len(buf) < MetaSize {
		return nil, terr.New(terr.KindInvalidMetaPage, "buffer too small")
	}
	m := &Meta{
		PageSize:      Size(binary.LittleEndian.Uint32(buf[8:12])),
		Txid:          binary.LittleEndian.Uint64(buf[12:20]),
		DataEnd:       binary.LittleEndian.Uint64(buf[20:28]),
		CheckpointLSN: binary.LittleEndian.Uint64(buf[28:36]),
		EntryCount:    binary.LittleEndian.Uint64(buf[36:44]),
		BloomBits:     binary.LittleEndian.Uint32(buf[44:48]),
		BloomHashes:   buf[48],
	}
	copy(m.InstanceID[:], buf[56:72])
	m.NextOverflowPage = binary.LittleEndian.Uint64(buf[72:80])
	return m, nil
}

// Validate checks magic, version, page size, and CRC32 of an encoded meta
// buffer. It returns the decoded Meta only if every check passes.
func Validate(buf []byte) (*Meta, error) {
	if len(buf) < MetaSize {
		return nil, terr.New(terr.KindInvalidMetaPage, "buffer too small")
	}
	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != Magic {
		return nil, terr.New(terr.KindInvalidMetaPage, "bad magic")
	}
	version := binary.LittleEndian.Uint32(buf[4:8])
	if version != Version {
		return nil, terr.New(terr.KindInvalidMetaPage, "unsupported version")
	}
	wantCRC := binary.LittleEndian.Uint32(buf[96:100])
	gotCRC := crc32.ChecksumIEEE(buf[0:96])
	if wantCRC != gotCRC {
		return nil, terr.New(terr.KindInvalidMetaPage, "checksum mismatch")
	}
	m, err := Decode(buf)
	if err != nil {
		return nil, err
	}
	if !m.PageSize.Valid() {
		return nil, terr.New(terr.KindInvalidMetaPage, "invalid page size")
	}
	return m, nil
}

// Select chooses the current meta slot between two candidate encoded
// buffers: the valid slot with the highest Txid wins. If both are invalid,
// it reports BothMetaPagesInvalid (unrecoverable, §4.1).
func Select(slot0, slot1 []byte) (current *Meta, slotIndex int, err error) {
	m0, err0 := Validate(slot0)
	m1, err1 := Validate(slot1)

	switch {
	case err0 != nil && err1 != nil:
		return nil, -1, terr.New(terr.KindBothMetaPagesInvalid, "neither meta slot validated")
	case err0 != nil:
		return m1, 1, nil
	case err1 != nil:
		return m0, 0, nil
	case m0.Txid > m1.Txid:
		return m0, 0, nil
	default:
		return m1, 1, nil
	}
}

// NextSlot returns the slot index (0 or 1) that should be overwritten for
// the given next transaction id, selected by parity (§4.1 invariant 2).
func NextSlot(nextTxid uint64) int {
	return int(nextTxid % 2)
}
