package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitJSONOutputWritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	Info("engine opened")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "engine opened", record["message"])
	require.Equal(t, "info", record["level"])
}

func TestInitConsoleOutputIsHumanReadable(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: false, Output: &buf})

	Info("checkpoint completed")

	require.Contains(t, buf.String(), "checkpoint completed")
	require.False(t, json.Valid(buf.Bytes()), "console output should not be JSON")
}

func TestLevelFiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: WarnLevel, JSONOutput: true, Output: &buf})

	Debug("should be filtered")
	Info("also filtered")
	require.Empty(t, buf.String())

	Warn("should appear")
	require.Contains(t, buf.String(), "should appear")
}

func TestErrorfAttachesErrAsStructuredField(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	Errorf("checkpoint failed", errors.New("disk full"))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "checkpoint failed", record["message"])
	require.Equal(t, "disk full", record["error"])
}

func TestWithComponentTagsEveryRecord(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	WithComponent("wal").Info().Msg("segment rolled")

	require.True(t, strings.Contains(buf.String(), `"component":"wal"`))
}

func TestWithLSNTagsEveryRecord(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	WithLSN(42).Info().Msg("replayed")

	require.True(t, strings.Contains(buf.String(), `"lsn":42`))
}
