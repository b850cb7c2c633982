// Package bloom implements the probabilistic membership filter thunder
// keeps over committed keys: a negative answer means the key is definitely
// absent (§4.6). The engine inserts every committed key, persists the
// filter and reports its size in stats; read transactions do not consult
// it. The filter lives in its own sidecar file next to the data file,
// rather than inline in a meta page, so it can be rebuilt independently of
// a checkpoint (see DESIGN.md for the tradeoff).
package bloom

import (
	"encoding/binary"
	"math"

	"github.com/cuemby/thunder/internal/terr"
)

// headerSize is the encoded size of the filter's fixed header, preceding
// the bit array: num_bits(4) + num_hashes(1) + item_count(8).
const headerSize = 13

// fnvOffsetBasis and fnvPrime are the 64-bit FNV-1a constants.
const (
	fnvOffsetBasis uint64 = 0xcbf29ce484222325
	fnvPrime       uint64 = 0x100000001b3
)

// secondSeed is XORed into the offset basis to derive an independent second
// hash for double hashing, rather than running two unrelated hash families.
const secondSeed uint64 = 0x517cc1b727220a95

// Filter is a fixed-size bit array with double-hashed FNV-1a probes.
type Filter struct {
	bits      []uint64
	numHashes uint8
	numBits   uint32
	itemCount uint64
}

// New sizes a filter for expectedItems entries at the given false-positive
// rate, picking the number of bits and hash functions that minimize the
// false-positive rate for that budget:
//
//	m = ceil(-n * ln(p) / ln(2)^2), rounded up to a 64-bit word boundary
//	k = clamp(ceil((m/n) * ln(2)), 1, 16)
func New(expectedItems int, fpRate float64) *Filter {
	if expectedItems <= 0 {
		expectedItems = 1
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = 0.01
	}

	ln2Squared := math.Ln2 * math.Ln2
	numBits := int(math.Ceil(-float64(expectedItems) * math.Log(fpRate) / ln2Squared))
	if numBits < 64 {
		numBits = 64
	}
	numWords := (numBits + 63) / 64
	numBits = numWords * 64

	numHashes := math.Ceil((float64(numBits) / float64(expectedItems)) * math.Ln2)
	numHashes = math.Max(1, math.Min(16, numHashes))

	return &Filter{
		bits:      make([]uint64, numWords),
		numHashes: uint8(numHashes),
		numBits:   uint32(numBits),
	}
}

// WithCapacity creates a filter for expectedItems at a 1% false-positive
// rate, thunder's default.
func WithCapacity(expectedItems int) *Filter {
	return New(expectedItems, 0.01)
}

// Insert adds key to the filter. After this call, MayContain(key) is
// always true.
func (f *Filter) Insert(key []byte) {
	h1, h2 := hashPair(key)
	for i := uint64(0); i < uint64(f.numHashes); i++ {
		idx := f.bitIndex(h1, h2, i)
		f.bits[idx/64] |= 1 << (idx % 64)
	}
	f.itemCount++
}

// MayContain reports whether key might be present. false means it is
// definitely absent; true means it is present with the filter's configured
// false-positive probability.
func (f *Filter) MayContain(key []byte) bool {
	h1, h2 := hashPair(key)
	for i := uint64(0); i < uint64(f.numHashes); i++ {
		idx := f.bitIndex(h1, h2, i)
		if f.bits[idx/64]&(1<<(idx%64)) == 0 {
			return false
		}
	}
	return true
}

// ItemCount returns the number of keys inserted since creation or the last
// Clear.
func (f *Filter) ItemCount() uint64 {
	return f.itemCount
}

// SizeBits returns the filter's bit-array size.
func (f *Filter) SizeBits() uint32 {
	return f.numBits
}

// SizeBytes returns the filter's bit-array size in bytes.
func (f *Filter) SizeBytes() int {
	return len(f.bits) * 8
}

// NumHashes returns the number of hash probes per operation.
func (f *Filter) NumHashes() uint8 {
	return f.numHashes
}

// Clear zeroes every bit and resets the item count, without changing the
// filter's sizing.
func (f *Filter) Clear() {
	for i := range f.bits {
		f.bits[i] = 0
	}
	f.itemCount = 0
}

// Encode serializes the filter as [num_bits u32][num_hashes u8][item_count
// u64][bit words...], matching the sidecar file format.
func (f *Filter) Encode() []byte {
	buf := make([]byte, headerSize+len(f.bits)*8)
	binary.LittleEndian.PutUint32(buf[0:4], f.numBits)
	buf[4] = f.numHashes
	binary.LittleEndian.PutUint64(buf[5:13], f.itemCount)
	for i, word := range f.bits {
		binary.LittleEndian.PutUint64(buf[headerSize+i*8:headerSize+i*8+8], word)
	}
	return buf
}

// Decode parses a buffer produced by Encode.
func Decode(buf []byte) (*Filter, error) {
	if len(buf) < headerSize {
		return nil, terr.New(terr.KindCorrupted, "bloom: short header")
	}
	numBits := binary.LittleEndian.Uint32(buf[0:4])
	numHashes := buf[4]
	itemCount := binary.LittleEndian.Uint64(buf[5:13])

	if numBits == 0 || numHashes == 0 {
		return nil, terr.New(terr.KindCorrupted, "bloom: zero-sized filter")
	}
	numWords := (int(numBits) + 63) / 64
	wantLen := headerSize + numWords*8
	if len(buf) < wantLen {
		return nil, terr.New(terr.KindCorrupted, "bloom: truncated bit array")
	}

	bits := make([]uint64, numWords)
	for i := 0; i < numWords; i++ {
		off := headerSize + i*8
		bits[i] = binary.LittleEndian.Uint64(buf[off : off+8])
	}

	return &Filter{bits: bits, numHashes: numHashes, numBits: numBits, itemCount: itemCount}, nil
}

func (f *Filter) bitIndex(h1, h2, i uint64) uint64 {
	return (h1 + i*h2) % uint64(f.numBits)
}

// hashPair derives two independent-enough FNV-1a digests for double
// hashing: h(i) = (h1 + i*h2) mod m, per Kirsch-Mitzenmacher.
func hashPair(key []byte) (uint64, uint64) {
	return fnv1a(key, 0), fnv1a(key, secondSeed)
}

func fnv1a(data []byte, seed uint64) uint64 {
	hash := fnvOffsetBasis ^ seed
	for _, b := range data {
		hash ^= uint64(b)
		hash *= fnvPrime
	}
	return hash
}
