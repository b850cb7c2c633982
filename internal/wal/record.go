// Package wal is thunder's write-ahead log: a directory of fixed-size
// segment files holding a contiguous run of self-describing, CRC32-checked
// records (§4.6). Every committed mutation is durable once its TxCommit
// record's segment has been fsynced.
package wal

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/cuemby/thunder/internal/terr"
)

// HeaderSize is the fixed [len|type|crc32] prefix on every record.
const HeaderSize = 9

// MaxRecordPayload bounds a single record's payload, guarding against a
// corrupted length field forcing a huge allocation.
const MaxRecordPayload = 64 * 1024 * 1024

// MaxKeySize bounds a Put/Delete record's key.
const MaxKeySize = 64 * 1024

// Type tags the kind of operation a record describes.
type Type uint8

const (
	TypePut Type = iota + 1
	TypeDelete
	TypeTxBegin
	TypeTxCommit
	TypeTxAbort
	TypeCheckpoint
)

func (t Type) valid() bool {
	return t >= TypePut && t <= TypeCheckpoint
}

// Record is one WAL entry. Which fields are meaningful depends on Type:
// Put uses Key/Value, Delete uses Key, the Tx* records use Txid, and
// Checkpoint uses LSN.
type Record struct {
	Type  Type
	Key   []byte
	Value []byte
	Txid  uint64
	LSN   uint64
}

// NewPut builds a Put record.
func NewPut(key, value []byte) Record { return Record{Type: TypePut, Key: key, Value: value} }

// NewDelete builds a Delete record.
func NewDelete(key []byte) Record { return Record{Type: TypeDelete, Key: key} }

// NewTxBegin builds a TxBegin record.
func NewTxBegin(txid uint64) Record { return Record{Type: TypeTxBegin, Txid: txid} }

// NewTxCommit builds a TxCommit record.
func NewTxCommit(txid uint64) Record { return Record{Type: TypeTxCommit, Txid: txid} }

// NewTxAbort builds a TxAbort record.
func NewTxAbort(txid uint64) Record { return Record{Type: TypeTxAbort, Txid: txid} }

// NewCheckpoint builds a Checkpoint record.
func NewCheckpoint(lsn uint64) Record { return Record{Type: TypeCheckpoint, LSN: lsn} }

// Encode serializes the record as [total_len u32][type u8][crc32
// u32][payload...], where the CRC covers the type byte and payload.
func (r Record) Encode() []byte {
	payload := r.encodePayload()
	totalLen := HeaderSize + len(payload)

	buf := make([]byte, totalLen)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(totalLen))
	buf[4] = byte(r.Type)
	copy(buf[HeaderSize:], payload)

	crc := crc32.ChecksumIEEE(buf[4:5])
	crc = crc32.Update(crc, crc32.IEEETable, payload)
	binary.LittleEndian.PutUint32(buf[5:9], crc)
	return buf
}

func (r Record) encodePayload() []byte {
	switch r.Type {
	case TypePut:
		buf := make([]byte, 4+len(r.Key)+4+len(r.Value))
		binary.LittleEndian.PutUint32(buf[0:4], uint32(len(r.Key)))
		copy(buf[4:], r.Key)
		off := 4 + len(r.Key)
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(len(r.Value)))
		copy(buf[off+4:], r.Value)
		return buf
	case TypeDelete:
		buf := make([]byte, 4+len(r.Key))
		binary.LittleEndian.PutUint32(buf[0:4], uint32(len(r.Key)))
		copy(buf[4:], r.Key)
		return buf
	case TypeTxBegin, TypeTxCommit, TypeTxAbort:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, r.Txid)
		return buf
	case TypeCheckpoint:
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, r.LSN)
		return buf
	default:
		return nil
	}
}

// Decode parses one record from the front of data, returning the record and
// the number of bytes consumed. It validates the header, the CRC, and
// type-specific payload bounds.
func Decode(data []byte) (Record, int, error) {
	if len(data) < HeaderSize {
		return Record{}, 0, terr.New(terr.KindWALRecordInvalid, "buffer shorter than header")
	}

	totalLen := int(binary.LittleEndian.Uint32(data[0:4]))
	rtype := Type(data[4])
	storedCRC := binary.LittleEndian.Uint32(data[5:9])

	if totalLen < HeaderSize {
		return Record{}, 0, terr.New(terr.KindWALRecordInvalid, "record length smaller than header")
	}
	if totalLen > len(data) {
		return Record{}, 0, terr.New(terr.KindWALRecordInvalid, "record length exceeds buffer")
	}
	payloadLen := totalLen - HeaderSize
	if payloadLen > MaxRecordPayload {
		return Record{}, 0, terr.New(terr.KindWALRecordInvalid, "payload exceeds maximum size")
	}
	if !rtype.valid() {
		return Record{}, 0, terr.New(terr.KindWALRecordInvalid, "unknown record type")
	}

	payload := data[HeaderSize:totalLen]
	crc := crc32.ChecksumIEEE(data[4:5])
	crc = crc32.Update(crc, crc32.IEEETable, payload)
	if crc != storedCRC {
		return Record{}, 0, terr.New(terr.KindWALRecordInvalid, "crc32 mismatch")
	}

	rec, err := decodePayload(rtype, payload)
	if err != nil {
		return Record{}, 0, err
	}
	return rec, totalLen, nil
}

func decodePayload(rtype Type, payload []byte) (Record, error) {
	switch rtype {
	case TypePut:
		if len(payload) < 4 {
			return Record{}, terr.New(terr.KindWALRecordInvalid, "put payload too small")
		}
		keyLen := int(binary.LittleEndian.Uint32(payload[0:4]))
		if keyLen > MaxKeySize {
			return Record{}, terr.New(terr.KindWALRecordInvalid, "key exceeds maximum size")
		}
		if len(payload) < 4+keyLen+4 {
			return Record{}, terr.New(terr.KindWALRecordInvalid, "put payload truncated")
		}
		key := append([]byte(nil), payload[4:4+keyLen]...)
		valOff := 4 + keyLen
		valLen := int(binary.LittleEndian.Uint32(payload[valOff : valOff+4]))
		if len(payload) < valOff+4+valLen {
			return Record{}, terr.New(terr.KindWALRecordInvalid, "put value truncated")
		}
		value := append([]byte(nil), payload[valOff+4:valOff+4+valLen]...)
		return Record{Type: TypePut, Key: key, Value: value}, nil

	case TypeDelete:
		if len(payload) < 4 {
			return Record{}, terr.New(terr.KindWALRecordInvalid, "delete payload too small")
		}
		keyLen := int(binary.LittleEndian.Uint32(payload[0:4]))
		if keyLen > MaxKeySize {
			return Record{}, terr.New(terr.KindWALRecordInvalid, "key exceeds maximum size")
		}
		if len(payload) < 4+keyLen {
			return Record{}, terr.New(terr.KindWALRecordInvalid, "delete key truncated")
		}
		key := append([]byte(nil), payload[4:4+keyLen]...)
		return Record{Type: TypeDelete, Key: key}, nil

	case TypeTxBegin, TypeTxCommit, TypeTxAbort:
		if len(payload) < 8 {
			return Record{}, terr.New(terr.KindWALRecordInvalid, "tx payload too small")
		}
		return Record{Type: rtype, Txid: binary.LittleEndian.Uint64(payload[0:8])}, nil

	case TypeCheckpoint:
		if len(payload) < 8 {
			return Record{}, terr.New(terr.KindWALRecordInvalid, "checkpoint payload too small")
		}
		return Record{Type: TypeCheckpoint, LSN: binary.LittleEndian.Uint64(payload[0:8])}, nil

	default:
		return Record{}, terr.New(terr.KindWALRecordInvalid, "unknown record type")
	}
}
