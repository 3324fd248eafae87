package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/e7d/rustdesk-indicator/internal/config"
	"github.com/e7d/rustdesk-indicator/internal/logging"
	"github.com/e7d/rustdesk-indicator/internal/platform"
	"github.com/e7d/rustdesk-indicator/internal/process"
	"github.com/e7d/rustdesk-indicator/internal/rustdesk"
	"github.com/e7d/rustdesk-indicator/internal/xdo"
)

var windowLog = logging.ForComponent(logging.CompWindow)

// app holds the wired observation and action pipeline for one invocation.
type app struct {
	settings  *config.Settings
	observer  *rustdesk.Observer
	commander *rustdesk.Commander
	warnings  []string
}

// newApp wires lister, window resolver, builder, observer and commander from
// the settings. Missing window tools degrade to window-less observation.
func newApp(settings *config.Settings) (*app, error) {
	rd := settings.RustDesk
	binary := rd.GetBinary()

	lister, err := process.New(rd.GetProcessBackend(), binary, rd.CommandTimeout())
	if err != nil {
		return nil, err
	}

	a := &app{settings: settings}
	tool := xdo.New(rd.CommandTimeout())

	var windows rustdesk.WindowResolver
	if reason := windowLookupBlocker(platform.Detect(), platform.DetectDisplayServer(), tool.Available); reason != "" {
		a.warn(reason + ": window lookup disabled")
	} else {
		windows = tool
	}

	builder := rustdesk.NewBuilder(lister, windows, rustdesk.NewClassifier(binary))
	a.observer = rustdesk.NewObserver(builder, rd.PollInterval())

	cfg := rustdesk.CommanderConfig{
		Binary:      binary,
		ServiceUnit: rd.GetServiceUnit(),
	}
	if windows != nil {
		cfg.Activator = tool
	}
	a.commander = rustdesk.NewCommander(cfg)
	return a, nil
}

// windowLookupBlocker names what prevents window lookup, or "" when
// xdotool and xprop can be used.
func windowLookupBlocker(p platform.Platform, d platform.DisplayServer, toolsAvailable func() error) string {
	switch {
	case !p.HasX11Tools():
		return fmt.Sprintf("platform %s", p)
	case !d.SupportsWindowLookup():
		return fmt.Sprintf("display server %q", d)
	}
	if err := toolsAvailable(); err != nil {
		return err.Error()
	}
	return ""
}

func (a *app) warn(msg string) {
	a.warnings = append(a.warnings, msg)
	windowLog.Warn("window_lookup_unavailable", slog.String("reason", msg))
}

// printWarnings reports degraded capabilities once, on stderr.
func (a *app) printWarnings() {
	for _, w := range a.warnings {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", w)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))
}
