package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/e7d/rustdesk-indicator/internal/config"
	"github.com/e7d/rustdesk-indicator/internal/logging"
	"github.com/e7d/rustdesk-indicator/internal/platform"
)

const Version = "0.4.0"

// init sets up color profile for consistent terminal colors across environments
func init() {
	initColorProfile()
}

// initColorProfile configures the lipgloss color profile.
// RUSTDESK_INDICATOR_COLOR overrides detection: truecolor, 256, 16, none.
func initColorProfile() {
	if colorEnv := os.Getenv("RUSTDESK_INDICATOR_COLOR"); colorEnv != "" {
		if p, ok := parseColorProfile(colorEnv); ok {
			lipgloss.SetColorProfile(p)
			return
		}
	}

	colorTerm := os.Getenv("COLORTERM")
	if colorTerm == "truecolor" || colorTerm == "24bit" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}

	term := os.Getenv("TERM")
	for _, t := range []string{"xterm-256color", "screen-256color", "tmux-256color", "xterm-direct", "alacritty", "kitty", "wezterm"} {
		if strings.Contains(term, t) {
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		}
	}

	if os.Getenv("KONSOLE_VERSION") != "" || os.Getenv("VTE_VERSION") != "" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}

	lipgloss.SetColorProfile(termenv.ANSI256)
}

func parseColorProfile(name string) (termenv.Profile, bool) {
	switch strings.ToLower(name) {
	case "truecolor", "true", "24bit":
		return termenv.TrueColor, true
	case "256", "ansi256":
		return termenv.ANSI256, true
	case "16", "ansi", "basic":
		return termenv.ANSI, true
	case "none", "off", "ascii":
		return termenv.Ascii, true
	}
	return termenv.Ascii, false
}

func main() {
	debug, args := extractDebugFlag(os.Args[1:])
	if os.Getenv("RUSTDESK_INDICATOR_DEBUG") != "" {
		debug = true
	}

	cmd := "run"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "version", "--version", "-v":
		fmt.Printf("RustDesk Indicator v%s\n", Version)
		return
	case "help", "--help", "-h":
		printHelp()
		return
	case "config":
		handleConfig(args)
		return
	}

	settings, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
	}
	// Records mirrored to stderr would tear the TUI.
	mirror := !(cmd == "run" && isTerminal())
	shutdownLogging := setupLogging(settings, debug, mirror)
	defer shutdownLogging()

	var code int
	switch cmd {
	case "run":
		code = handleRun(settings, args)
	case "watch":
		code = handleWatch(settings, args)
	case "status":
		code = handleStatus(settings, args)
	case "serve":
		code = handleServe(settings, args)
	case "action":
		code = handleAction(settings, args)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", cmd)
		printHelp()
		code = 1
	}
	if code != 0 {
		shutdownLogging()
		os.Exit(code)
	}
}

// extractDebugFlag pulls --debug out of args wherever it appears.
func extractDebugFlag(args []string) (bool, []string) {
	debug := false
	remaining := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == "--debug" || arg == "-debug" {
			debug = true
			continue
		}
		remaining = append(remaining, arg)
	}
	return debug, remaining
}

// setupLogging initializes the debug log in the config directory. Without
// --debug and without a [logs] section nothing is written. mirror also copies
// debug records to stderr.
func setupLogging(settings *config.Settings, debug, mirror bool) func() {
	dir, err := config.Dir()
	if err != nil || (!debug && settings.Logs == (config.LogSettings{})) {
		logging.Init(logging.Config{Debug: debug && mirror})
		return logging.Shutdown
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		logging.Init(logging.Config{Debug: debug && mirror})
		return logging.Shutdown
	}

	cfg := settings.Logs.LoggingConfig(dir, debug)
	cfg.Debug = debug && mirror
	logging.Init(cfg)
	logging.ForComponent(logging.CompUI).Info("indicator_started",
		slog.Int("pid", os.Getpid()),
		slog.String("version", Version),
		slog.String("platform", platform.Detect().String()),
		slog.String("display", string(platform.DetectDisplayServer())))

	// SIGUSR1 dumps the ring buffer for post-mortem debugging
	usr1 := make(chan os.Signal, 1)
	signal.Notify(usr1, syscall.SIGUSR1)
	go func() {
		for range usr1 {
			dumpPath := filepath.Join(dir, fmt.Sprintf("crash-dump-%d.jsonl", time.Now().Unix()))
			if err := logging.DumpRingBuffer(dumpPath); err != nil {
				logging.ForComponent(logging.CompUI).Error("crash_dump_failed",
					slog.String("error", err.Error()))
			} else {
				logging.ForComponent(logging.CompUI).Info("crash_dump_written",
					slog.String("path", dumpPath))
			}
		}
	}()

	return func() {
		signal.Stop(usr1)
		logging.Shutdown()
	}
}

func printHelp() {
	fmt.Printf("RustDesk Indicator v%s\n", Version)
	fmt.Println("Status indicator for a local RustDesk installation")
	fmt.Println()
	fmt.Println("Usage: rustdesk-indicator [--debug] [command]")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  --debug          Write debug logs to the config directory")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  run              Start the terminal UI (default; headless watch without a TTY)")
	fmt.Println("  watch            Print state changes as they happen")
	fmt.Println("  status           Observe once and print the state")
	fmt.Println("  serve            Serve the state over HTTP, SSE and WebSocket")
	fmt.Println("  action           Run a single indicator action")
	fmt.Println("  config           Manage config.toml")
	fmt.Println("  version          Show version")
	fmt.Println("  help             Show this help")
	fmt.Println()
	fmt.Println("Action Commands:")
	fmt.Println("  action start-app                       Start RustDesk")
	fmt.Println("  action quit [PID]                      Quit RustDesk and all sessions, or one process")
	fmt.Println("  action service start|stop|restart      Control the RustDesk service")
	fmt.Println("  action session ACTION ID               Open a session (connect, file-transfer, port-forward)")
	fmt.Println("  action close-session ID                Close every process of a session")
	fmt.Println("  action close-all                       Close all sessions")
	fmt.Println("  action activate WINDOW                 Raise a window")
	fmt.Println()
	fmt.Println("Config Commands:")
	fmt.Println("  config init      Write an example config.toml")
	fmt.Println("  config path      Print the config.toml location")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  RUSTDESK_INDICATOR_CONFIG_DIR   Config directory override")
	fmt.Println("  RUSTDESK_INDICATOR_COLOR        Color mode: truecolor, 256, 16, none")
	fmt.Println("  RUSTDESK_INDICATOR_DEBUG        Same as --debug")
	fmt.Println()
	fmt.Println("Keyboard shortcuts (in TUI):")
	fmt.Println("  ↑/↓ j/k    Move")
	fmt.Println("  Enter      Run the selected entry")
	fmt.Println("  x          Close the process behind a session entry")
	fmt.Println("  /          Filter sessions")
	fmt.Println("  ?          Help")
	fmt.Println("  q          Quit")
}
