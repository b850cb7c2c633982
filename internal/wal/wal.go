package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/thunder/internal/tlog"
	"github.com/cuemby/thunder/internal/terr"
)

// DefaultSegmentSize is the size, in bytes, of one WAL segment file.
const DefaultSegmentSize = 64 * 1024 * 1024

// SyncPolicy controls when Append'd records are flushed to stable storage.
// Group (the default in practice) defers to the groupcommit coordinator;
// the other policies are available for embedders that don't need batching.
type SyncPolicy int

const (
	SyncNone SyncPolicy = iota
	SyncEveryWrite
	SyncInterval
	SyncGroup
)

// Config configures a WAL instance.
type Config struct {
	SegmentSize  int64
	Sync         SyncPolicy
	SyncInterval time.Duration
}

// DefaultConfig returns thunder's default WAL configuration.
func DefaultConfig() Config {
	return Config{SegmentSize: DefaultSegmentSize, Sync: SyncGroup, SyncInterval: time.Second}
}

type segmentMeta struct {
	id   uint64
	size int64
}

// WAL is a directory of append-only segment files forming one logical,
// LSN-addressed log.
type WAL struct {
	mu          sync.Mutex
	dir         string
	segmentSize int64
	policy      SyncPolicy

	activeID   uint64
	activeFile *os.File
	activeSize int64

	segments []segmentMeta

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// Open opens (creating if necessary) the WAL directory at dir, scanning for
// existing segments and resuming the highest-numbered one as active.
func Open(dir string, cfg Config) (*WAL, error) {
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = DefaultSegmentSize
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, terr.Wrap(terr.KindFileOpen, "wal: create directory", err)
	}

	w := &WAL{dir: dir, segmentSize: cfg.SegmentSize, policy: cfg.Sync, stopCh: make(chan struct{})}

	existing, err := w.scanSegments()
	if err != nil {
		return nil, err
	}

	isNewDir := len(existing) == 0
	if isNewDir {
		existing = []segmentMeta{{id: 0, size: 0}}
	}
	w.segments = existing
	last := existing[len(existing)-1]
	w.activeID = last.id
	w.activeSize = last.size

	f, err := os.OpenFile(w.segmentPath(w.activeID), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, terr.Wrap(terr.KindFileOpen, "wal: open active segment", err)
	}
	w.activeFile = f

	if isNewDir {
		if err := syncDir(dir); err != nil {
			f.Close()
			return nil, err
		}
	}

	if cfg.Sync == SyncInterval {
		w.wg.Add(1)
		go w.syncLoop(cfg.SyncInterval)
	}

	return w, nil
}

func (w *WAL) segmentPath(id uint64) string {
	return filepath.Join(w.dir, fmt.Sprintf("%020d.seg", id))
}

func (w *WAL) scanSegments() ([]segmentMeta, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, terr.Wrap(terr.KindFileOpen, "wal: read directory", err)
	}
	var segs []segmentMeta
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		var id uint64
		if _, err := fmt.Sscanf(e.Name(), "%020d.seg", &id); err != nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, terr.Wrap(terr.KindFileMetadata, "wal: stat segment", err)
		}
		segs = append(segs, segmentMeta{id: id, size: info.Size()})
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].id < segs[j].id })
	return segs, nil
}

// Append encodes rec, rolling to a new segment first if it would not fit in
// the current one, and returns the LSN at which it was written.
func (w *WAL) Append(rec Record) (uint64, error) {
	buf := rec.Encode()

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.activeSize > 0 && w.activeSize+int64(len(buf)) > w.segmentSize {
		if err := w.rollLocked(); err != nil {
			return 0, err
		}
	}

	lsn := w.activeID*uint64(w.segmentSize) + uint64(w.activeSize)
	if _, err := w.activeFile.Write(buf); err != nil {
		return 0, terr.Wrap(terr.KindFileWrite, "wal: append record", err)
	}
	w.activeSize += int64(len(buf))
	w.segments[len(w.segments)-1].size = w.activeSize

	if w.policy == SyncEveryWrite {
		if err := w.activeFile.Sync(); err != nil {
			return 0, terr.Wrap(terr.KindFileSync, "wal: sync on write", err)
		}
	}

	return lsn, nil
}

func (w *WAL) rollLocked() error {
	if err := w.activeFile.Close(); err != nil {
		return terr.Wrap(terr.KindFileWrite, "wal: close segment on roll", err)
	}
	w.activeID++
	w.activeSize = 0
	w.segments = append(w.segments, segmentMeta{id: w.activeID, size: 0})

	f, err := os.OpenFile(w.segmentPath(w.activeID), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return terr.Wrap(terr.KindFileOpen, "wal: create new segment", err)
	}
	w.activeFile = f
	if err := syncDir(w.dir); err != nil {
		return err
	}
	tlog.WithSegment(w.activeID).Debug().Msg("wal segment rolled")
	return nil
}

// Sync fsyncs the active segment.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.activeFile.Sync(); err != nil {
		return terr.Wrap(terr.KindFileSync, "wal: sync", err)
	}
	return nil
}

// TruncateBefore deletes every segment whose entire LSN range lies strictly
// below lsn, retaining the active segment and any segment that contains
// lsn. It returns the number of segments removed.
func (w *WAL) TruncateBefore(lsn uint64) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	truncated := 0
	kept := w.segments[:0:0]
	for _, seg := range w.segments {
		segEnd := (seg.id + 1) * uint64(w.segmentSize)
		if seg.id != w.activeID && segEnd <= lsn {
			if err := os.Remove(w.segmentPath(seg.id)); err != nil && !os.IsNotExist(err) {
				return truncated, terr.Wrap(terr.KindFileWrite, "wal: remove segment", err)
			}
			truncated++
			continue
		}
		kept = append(kept, seg)
	}
	w.segments = kept
	return truncated, nil
}

// ApproximateSize returns the sum of every segment file's size.
func (w *WAL) ApproximateSize() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	var total uint64
	for _, seg := range w.segments {
		total += uint64(seg.size)
	}
	return total
}

// SegmentCount returns the number of segment files currently retained.
func (w *WAL) SegmentCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.segments)
}

// Close stops any background sync loop and closes the active segment.
func (w *WAL) Close() error {
	if w.policy == SyncInterval {
		close(w.stopCh)
		w.wg.Wait()
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.activeFile.Close(); err != nil {
		return terr.Wrap(terr.KindFileWrite, "wal: close", err)
	}
	return nil
}

func (w *WAL) syncLoop(interval time.Duration) {
	defer w.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			_ = w.Sync()
		case <-w.stopCh:
			return
		}
	}
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return terr.Wrap(terr.KindFileOpen, "wal: open directory for sync", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return terr.Wrap(terr.KindFileSync, "wal: sync directory entry", err)
	}
	return nil
}
