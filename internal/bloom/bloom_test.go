package bloom

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterBasic(t *testing.T) {
	f := New(1000, 0.01)
	f.Insert([]byte("hello"))
	f.Insert([]byte("world"))

	require.True(t, f.MayContain([]byte("hello")))
	require.True(t, f.MayContain([]byte("world")))
	require.False(t, f.MayContain([]byte("absent")))
	require.Equal(t, uint64(2), f.ItemCount())
}

func TestFilterNoFalseNegatives(t *testing.T) {
	f := WithCapacity(500)
	keys := make([][]byte, 500)
	for i := range keys {
		keys[i] = []byte{byte(i), byte(i >> 8), 0xAA}
		f.Insert(keys[i])
	}
	for _, k := range keys {
		require.True(t, f.MayContain(k))
	}
}

func TestFilterSizing(t *testing.T) {
	f := New(10000, 0.01)
	require.Equal(t, uint32(0), f.SizeBits()%64)
	require.GreaterOrEqual(t, f.NumHashes(), uint8(1))
	require.LessOrEqual(t, f.NumHashes(), uint8(16))
}

func TestFilterClear(t *testing.T) {
	f := WithCapacity(10)
	f.Insert([]byte("x"))
	f.Clear()
	require.Equal(t, uint64(0), f.ItemCount())
	require.False(t, f.MayContain([]byte("x")))
}

func TestFilterEncodeDecodeRoundtrip(t *testing.T) {
	f := WithCapacity(100)
	f.Insert([]byte("a"))
	f.Insert([]byte("b"))

	decoded, err := Decode(f.Encode())
	require.NoError(t, err)
	require.Equal(t, f.SizeBits(), decoded.SizeBits())
	require.Equal(t, f.NumHashes(), decoded.NumHashes())
	require.Equal(t, f.ItemCount(), decoded.ItemCount())
	require.True(t, decoded.MayContain([]byte("a")))
	require.True(t, decoded.MayContain([]byte("b")))
}

func TestDecodeRejectsTruncated(t *testing.T) {
	_, err := Decode([]byte{1, 2, 3})
	require.Error(t, err)

	f := WithCapacity(10)
	enc := f.Encode()
	_, err = Decode(enc[:len(enc)-4])
	require.Error(t, err)
}

func TestDefaultFalsePositiveIsLowForRandomMisses(t *testing.T) {
	f := WithCapacity(2000)
	for i := 0; i < 2000; i++ {
		f.Insert([]byte{byte(i), byte(i >> 8), byte(i >> 16), 1})
	}
	falsePositives := 0
	trials := 5000
	for i := 0; i < trials; i++ {
		key := []byte{byte(i), byte(i >> 8), byte(i >> 16), 2}
		if f.MayContain(key) {
			falsePositives++
		}
	}
	// generous bound: a correct 1% filter should be nowhere near 10%
	require.Less(t, falsePositives, trials/10)
}
