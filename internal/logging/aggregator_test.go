package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFileLogger(t *testing.T) (*slog.Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agg.log")
	f, err := os.Create(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return slog.New(slog.NewJSONHandler(f, nil)), path
}

func TestAggregatorSummarizesOnStop(t *testing.T) {
	logger, path := newFileLogger(t)
	agg := NewAggregator(logger, 60)
	agg.Start()

	agg.Record(CompWindow, "xprop_failed", slog.String("window", "0x1"))
	agg.Record(CompWindow, "xprop_failed", slog.String("window", "0x2"))
	agg.Record(CompWindow, "xprop_failed")
	agg.Record(CompProcess, "ps_failed")
	assert.EqualValues(t, 3, agg.Pending(CompWindow, "xprop_failed"))

	agg.Stop()

	var summary map[string]any
	for _, r := range readRecords(t, path) {
		if r["msg"] == "event_summary" && r["event"] == "xprop_failed" {
			summary = r
		}
	}
	require.NotNil(t, summary)
	assert.EqualValues(t, 3, summary["count"])
	assert.Equal(t, "0x2", summary["window"], "latest non-empty fields win")
	assert.Zero(t, agg.Pending(CompWindow, "xprop_failed"))
}

func TestAggregatorFlushesOnInterval(t *testing.T) {
	logger, path := newFileLogger(t)
	agg := NewAggregator(logger, 1)
	agg.Start()
	defer agg.Stop()

	agg.Record(CompPoll, "cycle_slow")

	require.Eventually(t, func() bool {
		for _, r := range readRecords(t, path) {
			if r["event"] == "cycle_slow" {
				return true
			}
		}
		return false
	}, 3*time.Second, 50*time.Millisecond)
	assert.Zero(t, agg.Pending(CompPoll, "cycle_slow"))
}

func TestAggregatorNilLoggerAndDoubleStop(t *testing.T) {
	agg := NewAggregator(nil, 1)
	agg.Start()
	agg.Record(CompAction, "spawn_failed")
	assert.NotPanics(t, func() {
		agg.Stop()
		agg.Stop()
	})
}
