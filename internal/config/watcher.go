package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/e7d/rustdesk-indicator/internal/logging"
	"github.com/e7d/rustdesk-indicator/internal/platform"
)

var configLog = logging.ForComponent(logging.CompConfig)

// debounceDelay coalesces the burst of events an editor or Save produces.
var debounceDelay = 100 * time.Millisecond

// Watcher reloads config.toml when it changes on disk and delivers the new
// settings on Changes.
type Watcher struct {
	dir     string
	watcher *fsnotify.Watcher
	changes chan *Settings
	warning string

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
}

// NewWatcher creates a watcher on the config directory, creating it if needed.
// Call Start to begin watching.
func NewWatcher() (*Watcher, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		dir:     dir,
		watcher: fw,
		changes: make(chan *Settings, 1),
		warning: platform.CheckFsnotifySupport(dir),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Warning describes a filesystem on which reload may be unreliable, or "".
func (w *Watcher) Warning() string {
	return w.warning
}

// Changes delivers reloaded settings. Only the latest is kept when the
// consumer falls behind.
func (w *Watcher) Changes() <-chan *Settings {
	return w.changes
}

// Start watches until Stop. Must be called in a goroutine.
func (w *Watcher) Start() {
	if err := w.watcher.Add(w.dir); err != nil {
		configLog.Warn("config_watch_add_failed", slog.String("dir", w.dir), slog.String("error", err.Error()))
		return
	}
	if w.warning != "" {
		configLog.Warn("config_watch_unreliable", slog.String("warning", w.warning))
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != FileName {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			configLog.Warn("config_watch_error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) reload() {
	if w.ctx.Err() != nil {
		return
	}
	s, err := Reload()
	if err != nil {
		configLog.Warn("config_reload_failed", slog.String("error", err.Error()))
		return
	}
	configLog.Info("config_reloaded")

	select {
	case w.changes <- s:
	default:
		select {
		case <-w.changes:
		default:
		}
		select {
		case w.changes <- s:
		default:
		}
	}
}

// Stop shuts down the watcher. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		w.cancel()
		_ = w.watcher.Close()
	})
}
