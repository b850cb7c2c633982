package thunder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOpenCreatesFileWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.thunder")

	db, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer db.Close()

	require.Equal(t, path, db.Path())
}

func TestPutGetAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundtrip.thunder")

	db, err := Open(path, DefaultOptions())
	require.NoError(t, err)

	wtx := db.WriteTx()
	require.NoError(t, wtx.Put([]byte("hello"), []byte("world")))
	require.NoError(t, wtx.Commit())
	require.NoError(t, db.Close())

	reopened, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer reopened.Close()

	rtx := reopened.ReadTx()
	defer rtx.Close()
	v, err := rtx.Get([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, []byte("world"), v)
}

func TestBucketFacadeRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buckets.thunder")
	db, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer db.Close()

	wtx := db.WriteTx()
	require.NoError(t, wtx.CreateBucket("accounts"))
	require.NoError(t, wtx.Bucket("accounts").Put([]byte("1"), []byte("alice")))
	require.NoError(t, wtx.Commit())

	rtx := db.ReadTx()
	defer rtx.Close()
	require.True(t, rtx.Bucket("accounts").Exists())
	v, err := rtx.Bucket("accounts").Get([]byte("1"))
	require.NoError(t, err)
	require.Equal(t, []byte("alice"), v)
}

func TestStatsReflectsCommittedEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.thunder")
	db, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer db.Close()

	wtx := db.WriteTx()
	require.NoError(t, wtx.Put([]byte("a"), []byte("1")))
	require.NoError(t, wtx.Put([]byte("b"), []byte("2")))
	require.NoError(t, wtx.Commit())

	s := db.Stats()
	require.Equal(t, 2, s.EntryCount)
}

func TestCheckpointSucceeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.thunder")
	db, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer db.Close()

	wtx := db.WriteTx()
	require.NoError(t, wtx.Put([]byte("a"), []byte("1")))
	require.NoError(t, wtx.Commit())

	require.NoError(t, db.Checkpoint())

	rtx := db.ReadTx()
	defer rtx.Close()
	v, err := rtx.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)
}

func TestRegistryIsNotNil(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.thunder")
	db, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer db.Close()

	require.NotNil(t, db.Registry())
}

func TestSubscribeReceivesCommitEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.thunder")
	db, err := Open(path, DefaultOptions())
	require.NoError(t, err)
	defer db.Close()

	sub := db.Subscribe()

	wtx := db.WriteTx()
	require.NoError(t, wtx.Put([]byte("a"), []byte("1")))
	require.NoError(t, wtx.Commit())

	select {
	case ev := <-sub:
		require.NotNil(t, ev)
	case <-time.After(time.Second):
		t.Fatal("no event received after commit")
	}
}
