package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerAddsSourceOnlyForWarnAndError(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "info", Format: "json", Output: &buf})

	log.Info("ingest run finished", "run_id", "r1")
	log.Warn("analysis failed", "item_id", "i1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var info, warn map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &info))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &warn))

	assert.NotContains(t, info, slog.SourceKey)
	assert.Contains(t, warn, slog.SourceKey)
	assert.Equal(t, "r1", info["run_id"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "warn", Format: "text", Output: &buf})
	log.Info("hidden")
	log.Error("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}
