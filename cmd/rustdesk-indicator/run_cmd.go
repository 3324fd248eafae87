package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/e7d/rustdesk-indicator/internal/config"
	"github.com/e7d/rustdesk-indicator/internal/logging"
	"github.com/e7d/rustdesk-indicator/internal/menu"
	"github.com/e7d/rustdesk-indicator/internal/rustdesk"
	"github.com/e7d/rustdesk-indicator/internal/ui"
	"github.com/e7d/rustdesk-indicator/internal/web"
)

var cliLog = logging.ForComponent(logging.CompUI)

// handleRun starts the TUI, or a headless watch when stdout is not a terminal.
func handleRun(settings *config.Settings, args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	withWeb := fs.Bool("web", settings.Web.Enabled, "Also serve the web API")
	fs.Usage = func() {
		fmt.Println("Usage: rustdesk-indicator run [options]")
		fmt.Println()
		fmt.Println("Start the terminal UI. Without a terminal this behaves like 'watch'.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		return flagExitCode(err)
	}

	if !isTerminal() {
		return handleWatch(settings, nil)
	}

	a, err := newApp(settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	a.printWarnings()

	ui.InitTheme(settings.UI.ResolveTheme())

	ctx, stop := signalContext()
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.observer.Run(ctx) })

	opts := ui.Options{
		Source:    a.observer,
		Commander: a.commander,
		Settings:  settings.Indicator,
	}

	if w, err := config.NewWatcher(); err != nil {
		cliLog.Warn("config_watcher_failed", slog.String("error", err.Error()))
	} else {
		go w.Start()
		defer w.Stop()
		opts.SettingsChanges = w.Changes()
	}

	if settings.UI.GetTheme() == "system" {
		if tw := ui.NewThemeWatcher(ctx); tw != nil {
			defer tw.Close()
			opts.ThemeChanges = tw.ChangeChannel()
		}
	}

	if *withWeb {
		srv := newWebServer(settings.Web.GetListenAddr(), os.Getenv("RUSTDESK_INDICATOR_TOKEN"), a.observer, nil)
		startWeb(ctx, g, srv)
	}

	g.Go(func() error {
		defer stop()
		return ui.Run(ctx, opts)
	})

	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// handleWatch prints one line (or JSON object) per changed cycle.
func handleWatch(settings *config.Settings, args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	jsonOutput := fs.Bool("json", false, "Print each changed state as a JSON line")
	all := fs.Bool("all", false, "Print every cycle, not only changes")
	fs.Usage = func() {
		fmt.Println("Usage: rustdesk-indicator watch [options]")
		fmt.Println()
		fmt.Println("Observe RustDesk and print state changes until interrupted.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		return flagExitCode(err)
	}

	a, err := newApp(settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	a.printWarnings()

	ctx, stop := signalContext()
	defer stop()

	updates, cancel := a.observer.Subscribe()
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.observer.Run(ctx) })
	g.Go(func() error {
		return watchLoop(ctx, updates, os.Stdout, *jsonOutput, *all)
	})
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// watchLoop writes states from updates until ctx is done or updates closes.
func watchLoop(ctx context.Context, updates <-chan rustdesk.State, w io.Writer, jsonOut, all bool) error {
	enc := json.NewEncoder(w)
	for {
		select {
		case <-ctx.Done():
			return nil
		case st, ok := <-updates:
			if !ok {
				return nil
			}
			if !all && !st.PendingChanges {
				continue
			}
			if jsonOut {
				if err := enc.Encode(st); err != nil {
					return fmt.Errorf("encode state: %w", err)
				}
				continue
			}
			if _, err := fmt.Fprintln(w, describeState(st)); err != nil {
				return err
			}
		}
	}
}

// describeState renders a one-line summary of a cycle.
func describeState(st rustdesk.State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] cycle %d:", st.ObservedAt.Format(time.TimeOnly), st.Cycle)
	fmt.Fprintf(&b, " service=%s main=%s cm=%s",
		roleWord(st.Service), roleWord(st.Main), roleWord(st.ConnectionManager))

	ids := make([]string, 0, len(st.Sessions))
	for id := range st.Sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		sess := st.Sessions[id]
		mark := " "
		switch {
		case sess.Deleted:
			mark = "-"
		case sess.Added:
			mark = "+"
		case sess.Changed:
			mark = "~"
		}
		fmt.Fprintf(&b, " %s%s", mark, menu.SessionLabel(id))
	}
	if st.PendingChanges {
		b.WriteString(" (changed)")
	}
	return b.String()
}

func roleWord(e *rustdesk.RoleEntry) string {
	switch {
	case e == nil:
		return "off"
	case e.HasWindow():
		return fmt.Sprintf("%d@%s", e.PID, e.WindowID)
	default:
		return fmt.Sprint(e.PID)
	}
}

// handleStatus observes one cycle and prints it.
func handleStatus(settings *config.Settings, args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	format := fs.String("format", "text", "Output format: text, json or yaml")
	jsonOutput := fs.Bool("json", false, "Shorthand for --format json")
	fs.Usage = func() {
		fmt.Println("Usage: rustdesk-indicator status [options]")
		fmt.Println()
		fmt.Println("Observe RustDesk once and print the state.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		return flagExitCode(err)
	}
	if *jsonOutput {
		*format = "json"
	}

	a, err := newApp(settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *format == "text" {
		a.printWarnings()
	}

	ctx, stop := signalContext()
	defer stop()
	st := a.observer.Poll(ctx)

	if err := renderStatus(os.Stdout, st, settings.Indicator, *format); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// statusReport is the json/yaml shape of `status`.
type statusReport struct {
	State rustdesk.State `json:"state" yaml:"state"`
	Menu  menu.Menu      `json:"menu" yaml:"menu"`
}

func renderStatus(w io.Writer, st rustdesk.State, s config.IndicatorSettings, format string) error {
	m := menu.Build(st, s)
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(statusReport{State: st, Menu: m})
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(statusReport{State: st, Menu: m})
	case "text":
		fmt.Fprintf(w, "Service:             %s\n", roleWord(st.Service))
		fmt.Fprintf(w, "Main window:         %s\n", roleWord(st.Main))
		fmt.Fprintf(w, "Connection manager:  %s\n", roleWord(st.ConnectionManager))
		live := st.LiveSessions()
		fmt.Fprintf(w, "Sessions:            %d\n", len(live))
		for _, sess := range live {
			fmt.Fprintf(w, "  %s %-14s connect=%s file-transfer=%s port-forward=%s\n",
				bulletSymbol, menu.SessionLabel(sess.ID),
				roleWord(sess.Connect), roleWord(sess.FileTransfer), roleWord(sess.PortForward))
		}
		if classes := m.Icon.Classes(); len(classes) > 0 {
			fmt.Fprintf(w, "Icon:                %s\n", strings.Join(classes, ", "))
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}

// handleServe runs the observer with the web API until interrupted.
func handleServe(settings *config.Settings, args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	listen := fs.String("listen", settings.Web.GetListenAddr(), "Listen address")
	token := fs.String("token", os.Getenv("RUSTDESK_INDICATOR_TOKEN"), "Bearer token for API/WS access")
	fs.Usage = func() {
		fmt.Println("Usage: rustdesk-indicator serve [options]")
		fmt.Println()
		fmt.Println("Serve the observed state over HTTP, SSE and WebSocket.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  rustdesk-indicator serve")
		fmt.Println("  rustdesk-indicator serve --listen 127.0.0.1:9000 --token s3cret")
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		return flagExitCode(err)
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "Error: unexpected arguments: %v\n", fs.Args())
		return 1
	}

	a, err := newApp(settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	a.printWarnings()

	current := newSettingsHolder(settings.Indicator)
	srv := newWebServer(*listen, *token, a.observer, current.Load)

	ctx, stop := signalContext()
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.observer.Run(ctx) })

	if w, err := config.NewWatcher(); err == nil {
		go w.Start()
		defer w.Stop()
		g.Go(func() error { return followSettings(ctx, w.Changes(), current) })
	}

	startWeb(ctx, g, srv)
	fmt.Printf("Serving on http://%s\n", srv.Addr())

	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// settingsHolder is the indicator settings /api/menu builds from.
type settingsHolder struct {
	v atomic.Pointer[config.IndicatorSettings]
}

func newSettingsHolder(s config.IndicatorSettings) *settingsHolder {
	h := &settingsHolder{}
	h.v.Store(&s)
	return h
}

func (h *settingsHolder) Load() config.IndicatorSettings {
	return *h.v.Load()
}

// followSettings stores each reloaded config into h until ctx ends.
func followSettings(ctx context.Context, changes <-chan *config.Settings, h *settingsHolder) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-changes:
			if !ok {
				return nil
			}
			if s == nil {
				continue
			}
			ind := s.Indicator
			h.v.Store(&ind)
			cliLog.Info("settings_reloaded", slog.String("show_icon", ind.GetShowIcon()))
		}
	}
}

// newWebServer builds the API server. A nil settings func falls back to the
// cached config.toml.
func newWebServer(listen, token string, source web.StateSource, settings func() config.IndicatorSettings) *web.Server {
	return web.NewServer(web.Config{
		ListenAddr: listen,
		Token:      token,
		Source:     source,
		Settings:   settings,
		Version:    Version,
	})
}

// startWeb runs srv in g and shuts it down when ctx ends.
func startWeb(ctx context.Context, g *errgroup.Group, srv *web.Server) {
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
