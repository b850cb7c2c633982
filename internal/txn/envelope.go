// Package txn implements thunder's transaction layer: snapshot reads,
// staged writes, and the commit pipeline tying together the WAL, the
// group-commit coordinator, the overflow manager, the bloom filter, and the
// on-disk data file (§4.9).
package txn

import (
	"github.com/cuemby/thunder/internal/overflow"
	"github.com/cuemby/thunder/internal/terr"
)

// Every value stored in the working set carries a one-byte envelope so a
// Get can tell, without a side lookup, whether the bytes are the literal
// value or a reference into the overflow chain that holds it (§4.9's
// "materializes overflow values if the stored slot is an overflow ref").
const (
	envInline byte = 0
	envRef    byte = 1
)

func encodeInline(value []byte) []byte {
	buf := make([]byte, 1+len(value))
	buf[0] = envInline
	copy(buf[1:], value)
	return buf
}

func encodeRef(ref overflow.Ref) []byte {
	encoded := ref.Encode()
	buf := make([]byte, 1+len(encoded))
	buf[0] = envRef
	copy(buf[1:], encoded)
	return buf
}

// decodeEnvelope splits a stored value back into its tag and payload.
func decodeEnvelope(stored []byte) (tag byte, payload []byte, err error) {
	if len(stored) == 0 {
		return 0, nil, terr.New(terr.KindCorrupted, "txn: empty stored value envelope")
	}
	return stored[0], stored[1:], nil
}

// materialize resolves a stored envelope to its full value, reading the
// overflow chain via mgr if the envelope is a reference.
func materialize(stored []byte, mgr *overflow.Manager, read overflow.PageReader) ([]byte, error) {
	tag, payload, err := decodeEnvelope(stored)
	if err != nil {
		return nil, err
	}
	if tag == envInline {
		return payload, nil
	}
	ref, err := overflow.DecodeRef(payload)
	if err != nil {
		return nil, err
	}
	return mgr.Read(ref, read)
}
