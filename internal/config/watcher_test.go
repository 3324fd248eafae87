package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherDeliversReloadedSettings(t *testing.T) {
	dir := setupDir(t)
	w, err := NewWatcher()
	require.NoError(t, err)
	if w.Warning() != "" {
		t.Skipf("fsnotify unreliable here: %s", w.Warning())
	}
	go w.Start()
	t.Cleanup(w.Stop)

	// Give the watch a moment to register before writing.
	time.Sleep(50 * time.Millisecond)
	writeConfig(t, dir, "[indicator]\nshow_icon = \"when-running\"\n")

	select {
	case s := <-w.Changes():
		require.NotNil(t, s)
		assert.Equal(t, ShowIconWhenRunning, s.Indicator.GetShowIcon())
	case <-time.After(3 * time.Second):
		t.Fatal("no reload delivered")
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := setupDir(t)
	w, err := NewWatcher()
	require.NoError(t, err)
	go w.Start()
	t.Cleanup(w.Stop)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "debug.log"), []byte("noise"), 0o600))

	select {
	case <-w.Changes():
		t.Fatal("reload triggered by unrelated file")
	case <-time.After(4 * debounceDelay):
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	setupDir(t)
	w, err := NewWatcher()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		w.Start()
		close(done)
	}()
	w.Stop()
	w.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}
}
