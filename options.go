package thunder

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/thunder/internal/page"
	"github.com/cuemby/thunder/internal/terr"
	"github.com/cuemby/thunder/internal/txn"
	"github.com/cuemby/thunder/internal/wal"
)

// SyncPolicy selects when a committed write-ahead-log record becomes
// durable relative to the transaction that wrote it.
type SyncPolicy string

const (
	SyncNone         SyncPolicy = "none"
	SyncEveryWrite   SyncPolicy = "every-write"
	SyncIntervalMode SyncPolicy = "interval"
	SyncGroup        SyncPolicy = "group"
)

func (p SyncPolicy) resolve() wal.SyncPolicy {
	switch p {
	case SyncNone:
		return wal.SyncNone
	case SyncEveryWrite:
		return wal.SyncEveryWrite
	case SyncIntervalMode:
		return wal.SyncInterval
	case SyncGroup:
		return wal.SyncGroup
	default:
		return wal.SyncGroup
	}
}

// Options configures Open. A zero Options is valid and resolves to
// DefaultOptions.
type Options struct {
	PageSize          uint32 `yaml:"pageSize"`
	OverflowThreshold int    `yaml:"overflowThreshold"`

	SyncPolicy   SyncPolicy    `yaml:"syncPolicy"`
	SyncInterval time.Duration `yaml:"syncInterval"`

	CheckpointInterval     time.Duration `yaml:"checkpointInterval"`
	CheckpointWALThreshold uint64        `yaml:"checkpointWalThreshold"`
	CheckpointMinRecords   uint64        `yaml:"checkpointMinRecords"`

	GroupCommitMaxWait  time.Duration `yaml:"groupCommitMaxWait"`
	GroupCommitMaxBatch int           `yaml:"groupCommitMaxBatch"`

	WALSegmentSize int64 `yaml:"walSegmentSize"`

	// LargeValueOptimized raises OverflowThreshold and page size for
	// workloads dominated by values the inline path would otherwise
	// fragment across many small entries.
	LargeValueOptimized bool `yaml:"largeValueOptimized"`
}

// DefaultOptions returns the configuration a fresh database opens with when
// the caller passes a zero Options.
func DefaultOptions() Options {
	return Options{
		PageSize:               uint32(page.DefaultSize),
		OverflowThreshold:      2048,
		SyncPolicy:             SyncGroup,
		SyncInterval:           time.Second,
		CheckpointInterval:     5 * time.Minute,
		CheckpointWALThreshold: 128 << 20,
		CheckpointMinRecords:   10000,
		GroupCommitMaxWait:     10 * time.Millisecond,
		GroupCommitMaxBatch:    100,
		WALSegmentSize:         64 << 20,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.PageSize == 0 {
		o.PageSize = def.PageSize
	}
	if o.OverflowThreshold == 0 {
		o.OverflowThreshold = def.OverflowThreshold
	}
	if o.SyncPolicy == "" {
		o.SyncPolicy = def.SyncPolicy
	}
	if o.SyncInterval == 0 {
		o.SyncInterval = def.SyncInterval
	}
	if o.CheckpointInterval == 0 {
		o.CheckpointInterval = def.CheckpointInterval
	}
	if o.CheckpointWALThreshold == 0 {
		o.CheckpointWALThreshold = def.CheckpointWALThreshold
	}
	if o.CheckpointMinRecords == 0 {
		o.CheckpointMinRecords = def.CheckpointMinRecords
	}
	if o.GroupCommitMaxWait == 0 {
		o.GroupCommitMaxWait = def.GroupCommitMaxWait
	}
	if o.GroupCommitMaxBatch == 0 {
		o.GroupCommitMaxBatch = def.GroupCommitMaxBatch
	}
	if o.WALSegmentSize == 0 {
		o.WALSegmentSize = def.WALSegmentSize
	}
	if o.LargeValueOptimized {
		o.OverflowThreshold = 64 << 10
		o.PageSize = uint32(page.Size64K)
	}
	return o
}

func (o Options) toEngineConfig() txn.Config {
	return txn.Config{
		PageSize:               page.Size(o.PageSize),
		OverflowThreshold:      o.OverflowThreshold,
		WALSegmentSize:         o.WALSegmentSize,
		SyncPolicy:             o.SyncPolicy.resolve(),
		SyncInterval:           o.SyncInterval,
		CheckpointInterval:     o.CheckpointInterval,
		CheckpointWALThreshold: o.CheckpointWALThreshold,
		CheckpointMinRecords:   o.CheckpointMinRecords,
		GroupCommitMaxWait:     o.GroupCommitMaxWait,
		GroupCommitMaxBatch:    o.GroupCommitMaxBatch,
	}
}

// LoadOptionsFile reads a YAML options file whose keys are the Options
// fields' yaml tags. Missing fields fall back to DefaultOptions.
func LoadOptionsFile(path string) (Options, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return Options{}, terr.Wrap(terr.KindFileRead, "thunder: read options file", err)
	}
	var opts Options
	if err := yaml.Unmarshal(buf, &opts); err != nil {
		return Options{}, terr.Wrap(terr.KindFileRead, "thunder: parse options file", err)
	}
	return opts.withDefaults(), nil
}
