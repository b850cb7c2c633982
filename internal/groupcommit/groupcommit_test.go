package groupcommit

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingSyncer struct {
	calls int64
	fail  bool
}

func (s *countingSyncer) Sync() error {
	atomic.AddInt64(&s.calls, 1)
	if s.fail {
		return errors.New("disk full")
	}
	return nil
}

func TestSingleCommit(t *testing.T) {
	s := &countingSyncer{}
	c := New(s, Config{MaxWait: 5 * time.Millisecond, MaxBatchSize: 10})

	require.NoError(t, c.Commit())
	require.Equal(t, int64(1), atomic.LoadInt64(&s.calls))
	require.Equal(t, uint64(1), c.CommitCount())
	require.Equal(t, uint64(1), c.BatchCount())
}

func TestConcurrentCommitsBatchIntoFewerSyncs(t *testing.T) {
	s := &countingSyncer{}
	c := New(s, Config{MaxWait: 20 * time.Millisecond, MaxBatchSize: 100})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, c.Commit())
		}()
	}
	wg.Wait()

	require.Equal(t, uint64(50), c.CommitCount())
	require.Less(t, atomic.LoadInt64(&s.calls), int64(50))
	require.Greater(t, c.AvgBatchSize(), 1.0)
}

func TestSyncFailurePropagatesToAllWaiters(t *testing.T) {
	s := &countingSyncer{fail: true}
	c := New(s, Config{MaxWait: 5 * time.Millisecond, MaxBatchSize: 10})

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = c.Commit()
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.Error(t, err)
	}
}

func TestMaxBatchSizeFlushesEarly(t *testing.T) {
	s := &countingSyncer{}
	c := New(s, Config{MaxWait: time.Second, MaxBatchSize: 3})

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.NoError(t, c.Commit())
		}()
	}
	wg.Wait()
	require.Less(t, time.Since(start), 500*time.Millisecond)
}
