package checkpoint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInfoRoundtrip(t *testing.T) {
	info := Info{LSN: 0x123456789ABCDEF0, Timestamp: 1704067200, EntryCount: 1_000_000}
	got, err := Decode(info.Encode())
	require.NoError(t, err)
	require.Equal(t, info, got)
	require.True(t, got.Valid())
}

func TestZeroInfoInvalid(t *testing.T) {
	require.False(t, Info{}.Valid())
}

type fakeWAL struct{ size uint64 }

func (f *fakeWAL) ApproximateSize() uint64 { return f.size }

type fakeTruncator struct {
	calledWith uint64
	truncated  int
}

func (f *fakeTruncator) TruncateBefore(lsn uint64) (int, error) {
	f.calledWith = lsn
	return f.truncated, nil
}

func TestShouldCheckpointRecordsTrigger(t *testing.T) {
	m := New(Config{Interval: time.Hour, WALThreshold: 1 << 30, MinRecords: 5})
	m.RecordWrites(3)
	require.False(t, m.ShouldCheckpoint(&fakeWAL{}))
	m.RecordWrites(3)
	require.True(t, m.ShouldCheckpoint(&fakeWAL{}))
}

func TestShouldCheckpointWALGrowthTrigger(t *testing.T) {
	m := New(Config{Interval: time.Hour, WALThreshold: 100, MinRecords: 1_000_000})
	require.False(t, m.ShouldCheckpoint(&fakeWAL{size: 50}))
	require.True(t, m.ShouldCheckpoint(&fakeWAL{size: 200}))
}

func TestShouldCheckpointTimeTrigger(t *testing.T) {
	m := New(Config{Interval: 10 * time.Millisecond, WALThreshold: 1 << 30, MinRecords: 1_000_000})
	m.RecordCheckpoint(1, 0)
	require.False(t, m.ShouldCheckpoint(&fakeWAL{}))
	time.Sleep(20 * time.Millisecond)
	require.True(t, m.ShouldCheckpoint(&fakeWAL{}))
}

func TestRunPerformsCheckpointAndTruncates(t *testing.T) {
	tr := &fakeTruncator{truncated: 3}
	persisted := false

	result, err := Run(42, tr, func() error {
		persisted = true
		return nil
	})

	require.NoError(t, err)
	require.True(t, persisted)
	require.Equal(t, uint64(42), tr.calledWith)
	require.Equal(t, 3, result.SegmentsTruncated)
	require.Equal(t, uint64(42), result.LSN)
}
