package page

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSizeValid(t *testing.T) {
	require.True(t, Size4K.Valid())
	require.True(t, Size8K.Valid())
	require.True(t, Size16K.Valid())
	require.True(t, Size64K.Valid())
	require.False(t, Size(1024).Valid())
	require.False(t, Size(0).Valid())
}

func TestMagicIsASCII(t *testing.T) {
	buf := []byte{byte(Magic >> 24), byte(Magic >> 16), byte(Magic >> 8), byte(Magic)}
	require.Equal(t, "THND", string(buf))
}
