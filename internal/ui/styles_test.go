package ui

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitThemeFallsBackToDark(t *testing.T) {
	t.Cleanup(func() { InitTheme(string(ThemeDark)) })

	InitTheme("light")
	assert.Equal(t, ThemeLight, GetCurrentTheme())
	assert.Equal(t, lightColors.Red, ErrorStyle.GetForeground())

	InitTheme("solarized")
	assert.Equal(t, ThemeDark, GetCurrentTheme())
	assert.Equal(t, darkColors.Red, ErrorStyle.GetForeground())
}

func TestThemeWatcherForwardsChanges(t *testing.T) {
	events := make(chan bool)
	errs := make(chan error)
	orig := watchDarkMode
	watchDarkMode = func(context.Context) (<-chan bool, <-chan error, error) {
		return events, errs, nil
	}
	t.Cleanup(func() { watchDarkMode = orig })

	tw := NewThemeWatcher(context.Background())
	require.NotNil(t, tw)
	defer tw.Close()

	events <- false
	select {
	case got := <-tw.ChangeChannel():
		assert.False(t, got)
	case <-time.After(time.Second):
		t.Fatal("no theme change delivered")
	}

	errs <- errors.New("dbus hiccup")
	events <- true
	select {
	case got := <-tw.ChangeChannel():
		assert.True(t, got, "errors do not stop the watcher")
	case <-time.After(time.Second):
		t.Fatal("no theme change delivered")
	}

	tw.Close()
	tw.Close()
}

func TestThemeWatcherUnavailable(t *testing.T) {
	orig := watchDarkMode
	watchDarkMode = func(context.Context) (<-chan bool, <-chan error, error) {
		return nil, nil, errors.New("no portal")
	}
	t.Cleanup(func() { watchDarkMode = orig })

	assert.Nil(t, NewThemeWatcher(context.Background()))
}
