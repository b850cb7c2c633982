package thunder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithDefaultsFillsZeroFields(t *testing.T) {
	opts := Options{}.withDefaults()
	def := DefaultOptions()
	require.Equal(t, def, opts)
}

func TestLargeValueOptimizedRaisesThresholdAndPageSize(t *testing.T) {
	opts := Options{LargeValueOptimized: true}.withDefaults()
	require.Greater(t, opts.OverflowThreshold, DefaultOptions().OverflowThreshold)
	require.Greater(t, opts.PageSize, DefaultOptions().PageSize)
}

func TestLoadOptionsFileAppliesDefaultsToMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "options.yaml")
	require.NoError(t, os.WriteFile(path, []byte("overflowThreshold: 4096\n"), 0o644))

	opts, err := LoadOptionsFile(path)
	require.NoError(t, err)
	require.Equal(t, 4096, opts.OverflowThreshold)
	require.Equal(t, DefaultOptions().SyncPolicy, opts.SyncPolicy)
}

func TestLoadOptionsFileMissingFile(t *testing.T) {
	_, err := LoadOptionsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
