package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	entries uint64
}

func (f *fakeSource) Entries() uint64       { return f.entries }
func (f *fakeSource) WALSizeBytes() uint64  { return 1024 }
func (f *fakeSource) WALSegments() int      { return 2 }
func (f *fakeSource) BloomBits() uint32     { return 4096 }
func (f *fakeSource) BloomItems() uint64    { return 10 }
func (f *fakeSource) OverflowPages() uint64 { return 3 }
func (f *fakeSource) ActiveReadTx() int     { return 1 }

// TestCollectorSamplesOnStart verifies Start takes an immediate sample
// instead of waiting for the first tick.
func TestCollectorSamplesOnStart(t *testing.T) {
	src := &fakeSource{entries: 42}
	c := NewCollector(src, time.Hour)
	c.Start()
	defer c.Stop()

	time.Sleep(20 * time.Millisecond)
	if got := testutil.ToFloat64(EntriesTotal); got != 42 {
		t.Errorf("EntriesTotal = %v, want 42", got)
	}
	if got := testutil.ToFloat64(WALSegmentsTotal); got != 2 {
		t.Errorf("WALSegmentsTotal = %v, want 2", got)
	}
	if got := testutil.ToFloat64(ReadTxActive); got != 1 {
		t.Errorf("ReadTxActive = %v, want 1", got)
	}
}

// TestCollectorStopHaltsSampling checks that no further samples land after
// Stop, by changing the source and confirming the gauge doesn't follow it.
func TestCollectorStopHaltsSampling(t *testing.T) {
	src := &fakeSource{entries: 1}
	c := NewCollector(src, 5*time.Millisecond)
	c.Start()
	time.Sleep(20 * time.Millisecond)
	c.Stop()

	src.entries = 999
	time.Sleep(20 * time.Millisecond)
	if got := testutil.ToFloat64(EntriesTotal); got == 999 {
		t.Error("EntriesTotal kept updating after Stop")
	}
}

// TestNewCollectorDefaultsInterval checks a non-positive interval falls
// back to a sane default instead of ticking immediately forever.
func TestNewCollectorDefaultsInterval(t *testing.T) {
	c := NewCollector(&fakeSource{}, 0)
	if c.interval != 15*time.Second {
		t.Errorf("interval = %v, want 15s default", c.interval)
	}
}
