package freelist

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/thunder/internal/page"
)

func TestAllocateReturnsSmallestFirst(t *testing.T) {
	l := New()
	l.Free(page.ID(5))
	l.Free(page.ID(2))
	l.Free(page.ID(9))

	first, ok := l.Allocate()
	require.True(t, ok)
	require.Equal(t, page.ID(2), first)

	second, ok := l.Allocate()
	require.True(t, ok)
	require.Equal(t, page.ID(5), second)
}

func TestAllocateEmptyReturnsFalse(t *testing.T) {
	l := New()
	_, ok := l.Allocate()
	require.False(t, ok)
}

func TestFreeIsIdempotent(t *testing.T) {
	l := New()
	l.Free(page.ID(3))
	l.Free(page.ID(3))
	require.Equal(t, 1, l.Len())
}

func TestSerializeDeserializeRoundtrip(t *testing.T) {
	l := New()
	for _, id := range []page.ID{7, 1, 4, 100} {
		l.Free(id)
	}

	buf := l.Serialize()
	restored, err := Deserialize(buf)
	require.NoError(t, err)
	require.Equal(t, l.Len(), restored.Len())

	for _, id := range []page.ID{7, 1, 4, 100} {
		require.True(t, restored.Contains(id))
	}
}

func TestDeserializeTruncatedHeaderFails(t *testing.T) {
	_, err := Deserialize([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestDeserializeTruncatedBodyFails(t *testing.T) {
	l := New()
	l.Free(page.ID(1))
	l.Free(page.ID(2))
	buf := l.Serialize()

	_, err := Deserialize(buf[:len(buf)-4])
	require.Error(t, err)
}
