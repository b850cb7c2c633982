// Package groupcommit batches concurrent committers' fsyncs into one
// syscall per batch (§4.7). A write transaction's commit blocks here after
// appending its WAL records; the first to arrive becomes the "leader" for
// the batch and performs the actual sync, waking every follower with the
// shared result once it completes.
package groupcommit

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/thunder/internal/terr"
	metrics "github.com/cuemby/thunder/internal/tmetrics"
)

// Config tunes batching behavior.
type Config struct {
	// MaxWait is how long the leader waits for more commits to join before
	// syncing the batch it has.
	MaxWait time.Duration
	// MaxBatchSize flushes immediately once this many commits are queued.
	MaxBatchSize int
}

// DefaultConfig matches thunder's defaults: a 10ms window, up to 100
// commits per fsync.
func DefaultConfig() Config {
	return Config{MaxWait: 10 * time.Millisecond, MaxBatchSize: 100}
}

// pollInterval is how often the leader re-checks batch conditions while
// waiting. Short enough to keep latency low, long enough not to spin.
const pollInterval = 500 * time.Microsecond

// Syncer is the durability operation a batch amortizes: thunder's *wal.WAL
// satisfies it via its Sync method.
type Syncer interface {
	Sync() error
}

type pendingCommit struct {
	done chan error
}

// Coordinator serializes fsyncs across concurrent committers of a single
// WAL.
type Coordinator struct {
	mu           sync.Mutex
	pending      []*pendingCommit
	leaderActive bool
	firstPending time.Time

	syncer Syncer
	cfg    Config

	batchCount  uint64
	commitCount uint64
}

// New creates a Coordinator that batches fsyncs against syncer.
func New(syncer Syncer, cfg Config) *Coordinator {
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultConfig().MaxWait
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultConfig().MaxBatchSize
	}
	return &Coordinator{syncer: syncer, cfg: cfg}
}

// Commit enqueues the caller and blocks until the batch containing its slot
// has been synced, returning the shared result. A GroupCommitFailed error
// is returned to every waiter in the batch if the sync fails — the
// coordinator never partially succeeds a batch.
func (c *Coordinator) Commit() error {
	p := &pendingCommit{done: make(chan error, 1)}

	c.mu.Lock()
	if len(c.pending) == 0 {
		c.firstPending = time.Now()
	}
	c.pending = append(c.pending, p)
	shouldLead := !c.leaderActive
	if shouldLead {
		c.leaderActive = true
	}
	c.mu.Unlock()

	if shouldLead {
		c.runLeader()
	}

	return <-p.done
}

func (c *Coordinator) runLeader() {
	for {
		deadline := time.Now().Add(c.cfg.MaxWait)
		for {
			c.mu.Lock()
			n := len(c.pending)
			c.mu.Unlock()

			if n == 0 || n >= c.cfg.MaxBatchSize || time.Now().After(deadline) {
				break
			}
			time.Sleep(pollInterval)
		}

		c.mu.Lock()
		batch := c.pending
		c.pending = nil
		c.firstPending = time.Time{}
		c.mu.Unlock()

		err := c.syncer.Sync()
		if err != nil {
			err = terr.Wrap(terr.KindGroupCommitFailed, "wal sync failed", err)
		}
		metrics.FsyncsTotal.Inc()
		metrics.GroupCommitBatchSize.Observe(float64(len(batch)))

		atomic.AddUint64(&c.batchCount, 1)
		atomic.AddUint64(&c.commitCount, uint64(len(batch)))

		for _, p := range batch {
			p.done <- err
		}

		c.mu.Lock()
		moreQueued := len(c.pending) > 0
		c.leaderActive = moreQueued
		c.mu.Unlock()

		if !moreQueued {
			return
		}
	}
}

// BatchCount returns the number of sync batches performed.
func (c *Coordinator) BatchCount() uint64 {
	return atomic.LoadUint64(&c.batchCount)
}

// CommitCount returns the total number of commits processed.
func (c *Coordinator) CommitCount() uint64 {
	return atomic.LoadUint64(&c.commitCount)
}

// AvgBatchSize returns the mean number of commits per sync batch.
func (c *Coordinator) AvgBatchSize() float64 {
	batches := c.BatchCount()
	if batches == 0 {
		return 0
	}
	return float64(c.CommitCount()) / float64(batches)
}
