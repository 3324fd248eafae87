package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readRecords parses a JSONL log file into records, skipping unparsable lines.
func readRecords(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var records []map[string]any
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var r map[string]any
		if err := json.Unmarshal(line, &r); err == nil {
			records = append(records, r)
		}
	}
	return records
}

func findRecord(records []map[string]any, msg string) map[string]any {
	for _, r := range records {
		if r["msg"] == msg {
			return r
		}
	}
	return nil
}

func TestInitWritesJSONToLogDir(t *testing.T) {
	Shutdown()
	dir := t.TempDir()
	Init(Config{LogDir: dir})
	defer Shutdown()

	Logger().Info("cycle_changed", "sessions", 2)

	rec := findRecord(readRecords(t, filepath.Join(dir, LogFileName)), "cycle_changed")
	require.NotNil(t, rec)
	assert.EqualValues(t, 2, rec["sessions"])
}

func TestInitWithoutDirOrDebugDiscards(t *testing.T) {
	Shutdown()
	Init(Config{})
	defer Shutdown()

	require.NotNil(t, Logger())
	Logger().Info("goes_nowhere")
	assert.NoError(t, DumpRingBuffer(filepath.Join(t.TempDir(), "dump")))
}

func TestLoggerBeforeInitIsUsable(t *testing.T) {
	Shutdown()
	assert.NotPanics(t, func() {
		Logger().Warn("before_init")
		ForComponent(CompPoll).Error("before_init")
	})
}

func TestForComponentResolvesHandlerLazily(t *testing.T) {
	Shutdown()
	// Created before Init, like the package-level loggers in internal/.
	log := ForComponent(CompWindow).With(slog.Int("pid", 42))

	dir := t.TempDir()
	Init(Config{LogDir: dir})
	defer Shutdown()

	log.Warn("xdotool_failed")

	rec := findRecord(readRecords(t, filepath.Join(dir, LogFileName)), "xdotool_failed")
	require.NotNil(t, rec)
	assert.Equal(t, CompWindow, rec["component"])
	assert.EqualValues(t, 42, rec["pid"])
}

func TestLevelFiltering(t *testing.T) {
	Shutdown()
	dir := t.TempDir()
	Init(Config{LogDir: dir, Level: "warn"})
	defer Shutdown()

	Logger().Info("filtered_out")
	Logger().Warn("kept")

	records := readRecords(t, filepath.Join(dir, LogFileName))
	assert.Nil(t, findRecord(records, "filtered_out"))
	assert.NotNil(t, findRecord(records, "kept"))
}

func TestTextFormat(t *testing.T) {
	Shutdown()
	dir := t.TempDir()
	Init(Config{LogDir: dir, Format: "text"})
	defer Shutdown()

	Logger().Info("text_format")

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=text_format")
}

func TestDumpRingBuffer(t *testing.T) {
	Shutdown()
	dir := t.TempDir()
	Init(Config{LogDir: dir, RingBufferSize: 4096})
	defer Shutdown()

	Logger().Info("ring_message")

	dump := filepath.Join(dir, "crash.jsonl")
	require.NoError(t, DumpRingBuffer(dump))
	assert.NotNil(t, findRecord(readRecords(t, dump), "ring_message"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
