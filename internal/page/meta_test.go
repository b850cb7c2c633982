package page

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetaEncodeDecodeRoundtrip(t *testing.T) {
	m := &Meta{
		PageSize:         Size4K,
		Txid:             7,
		DataEnd:          4096 * 10,
		CheckpointLSN:    123,
		EntryCount:       42,
		BloomBits:        1024,
		BloomHashes:      5,
		NextOverflowPage: 9,
	}
	m.InstanceID[0] = 0xAB

	got, err := Decode(m.Encode())
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestMetaValidateDetectsCorruption(t *testing.T) {
	m := &Meta{PageSize: Size4K, Txid: 1}
	buf := m.Encode()

	_, err := Validate(buf)
	require.NoError(t, err)

	corrupt := append([]byte(nil), buf...)
	corrupt[50] ^= 0xFF
	_, err = Validate(corrupt)
	require.Error(t, err)
}

func TestMetaValidateRejectsBadMagicAndVersion(t *testing.T) {
	m := &Meta{PageSize: Size4K, Txid: 1}
	buf := m.Encode()

	badMagic := append([]byte(nil), buf...)
	badMagic[0] ^= 0xFF
	_, err := Validate(badMagic)
	require.Error(t, err)

	badVersion := append([]byte(nil), buf...)
	badVersion[4] ^= 0xFF
	_, err = Validate(badVersion)
	require.Error(t, err)
}

func TestSelectChoosesHighestValidTxid(t *testing.T) {
	m0 := &Meta{PageSize: Size4K, Txid: 5}
	m1 := &Meta{PageSize: Size4K, Txid: 6}

	cur, idx, err := Select(m0.Encode(), m1.Encode())
	require.NoError(t, err)
	require.Equal(t, 1, idx)
	require.Equal(t, uint64(6), cur.Txid)
}

func TestSelectFallsBackToOnlyValidSlot(t *testing.T) {
	m1 := &Meta{PageSize: Size4K, Txid: 6}
	garbage := make([]byte, MetaSize)

	cur, idx, err := Select(garbage, m1.Encode())
	require.NoError(t, err)
	require.Equal(t, 1, idx)
	require.Equal(t, uint64(6), cur.Txid)
}

func TestSelectBothInvalid(t *testing.T) {
	garbage := make([]byte, MetaSize)
	_, _, err := Select(garbage, garbage)
	require.Error(t, err)
}

func TestNextSlotParity(t *testing.T) {
	require.Equal(t, 0, NextSlot(0))
	require.Equal(t, 1, NextSlot(1))
	require.Equal(t, 0, NextSlot(2))
}
