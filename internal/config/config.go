// Package config loads the user's config.toml.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	dark "github.com/thiagokokada/dark-mode-go"

	"github.com/e7d/rustdesk-indicator/internal/logging"
)

const (
	// DirName is the directory under the user config dir.
	DirName = "rustdesk-indicator"
	// FileName is the settings file inside Dir.
	FileName = "config.toml"
	// EnvConfigDir overrides the config directory.
	EnvConfigDir = "RUSTDESK_INDICATOR_CONFIG_DIR"
)

// Icon visibility modes.
const (
	ShowIconAlways      = "always"
	ShowIconWhenRunning = "when-running"
)

// Settings is the decoded config.toml.
type Settings struct {
	Indicator IndicatorSettings `toml:"indicator"`
	RustDesk  RustDeskSettings  `toml:"rustdesk"`
	Logs      LogSettings       `toml:"logs"`
	Web       WebSettings       `toml:"web"`
	UI        UISettings        `toml:"ui"`
}

// IndicatorSettings chooses what the indicator shows.
type IndicatorSettings struct {
	// ShowIcon is "always" or "when-running" (default: always)
	ShowIcon string `toml:"show_icon,omitempty"`

	// Menu sections (default: true)
	ConnectionManager *bool `toml:"connection_manager,omitempty"`
	Sessions          *bool `toml:"sessions,omitempty"`
	Service           *bool `toml:"service,omitempty"`
}

// GetShowIcon returns the icon mode, defaulting to "always".
func (s IndicatorSettings) GetShowIcon() string {
	if s.ShowIcon == ShowIconWhenRunning {
		return ShowIconWhenRunning
	}
	return ShowIconAlways
}

// GetConnectionManager reports whether the connection-manager entry is shown.
func (s IndicatorSettings) GetConnectionManager() bool {
	return boolOr(s.ConnectionManager, true)
}

// GetSessions reports whether session sections are shown.
func (s IndicatorSettings) GetSessions() bool {
	return boolOr(s.Sessions, true)
}

// GetService reports whether service controls are shown.
func (s IndicatorSettings) GetService() bool {
	return boolOr(s.Service, true)
}

// RustDeskSettings describes the local installation and how it is polled.
type RustDeskSettings struct {
	Binary           string `toml:"binary,omitempty"`
	ServiceUnit      string `toml:"service_unit,omitempty"`
	ProcessBackend   string `toml:"process_backend,omitempty"`
	PollIntervalMs   int    `toml:"poll_interval_ms,omitempty"`
	CommandTimeoutMs int    `toml:"command_timeout_ms,omitempty"`
}

func (s RustDeskSettings) GetBinary() string {
	return stringOr(s.Binary, "rustdesk")
}

func (s RustDeskSettings) GetServiceUnit() string {
	return stringOr(s.ServiceUnit, "rustdesk")
}

func (s RustDeskSettings) GetProcessBackend() string {
	return stringOr(s.ProcessBackend, "ps")
}

// PollInterval defaults to one second.
func (s RustDeskSettings) PollInterval() time.Duration {
	if s.PollIntervalMs <= 0 {
		return time.Second
	}
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

// CommandTimeout bounds each ps/xdotool/xprop call. Defaults to two seconds.
func (s RustDeskSettings) CommandTimeout() time.Duration {
	if s.CommandTimeoutMs <= 0 {
		return 2 * time.Second
	}
	return time.Duration(s.CommandTimeoutMs) * time.Millisecond
}

// LogSettings configures the debug log.
type LogSettings struct {
	DebugLevel         string `toml:"debug_level,omitempty"`
	DebugFormat        string `toml:"debug_format,omitempty"`
	DebugMaxMB         int    `toml:"debug_max_mb,omitempty"`
	DebugBackups       int    `toml:"debug_backups,omitempty"`
	DebugRetentionDays int    `toml:"debug_retention_days,omitempty"`
	DebugCompress      bool   `toml:"debug_compress,omitempty"`
	RingBufferMB       int    `toml:"ring_buffer_mb,omitempty"`
}

// LoggingConfig maps the settings onto a logging.Config writing into logDir.
func (s LogSettings) LoggingConfig(logDir string, debug bool) logging.Config {
	level := s.DebugLevel
	if level == "" {
		level = "info"
		if debug {
			level = "debug"
		}
	}
	return logging.Config{
		LogDir:         logDir,
		Level:          level,
		Format:         s.DebugFormat,
		MaxSizeMB:      s.DebugMaxMB,
		MaxBackups:     s.DebugBackups,
		MaxAgeDays:     s.DebugRetentionDays,
		Compress:       s.DebugCompress,
		RingBufferSize: s.RingBufferMB * 1024 * 1024,
		Debug:          debug,
	}
}

// WebSettings configures the read-only HTTP API.
type WebSettings struct {
	Enabled    bool   `toml:"enabled,omitempty"`
	ListenAddr string `toml:"listen_addr,omitempty"`
}

func (s WebSettings) GetListenAddr() string {
	return stringOr(s.ListenAddr, "127.0.0.1:8765")
}

// UISettings configures the terminal UI.
type UISettings struct {
	// Theme is "dark", "light" or "system"
	Theme string `toml:"theme,omitempty"`
}

// GetTheme returns the configured theme, defaulting to "dark".
func (s UISettings) GetTheme() string {
	switch s.Theme {
	case "dark", "light", "system":
		return s.Theme
	default:
		return "dark"
	}
}

// isDarkMode is swapped in tests.
var isDarkMode = dark.IsDarkMode

// ResolveTheme resolves "system" to "dark" or "light" from the desktop
// setting, falling back to "dark" when it cannot be read.
func (s UISettings) ResolveTheme() string {
	theme := s.GetTheme()
	if theme != "system" {
		return theme
	}
	isDark, err := isDarkMode()
	if err != nil || isDark {
		return "dark"
	}
	return "light"
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func stringOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Cache for settings (loaded once per process)
var (
	cache   *Settings
	cacheMu sync.RWMutex
)

// Dir returns the config directory, honoring RUSTDESK_INDICATOR_CONFIG_DIR.
func Dir() (string, error) {
	if dir := os.Getenv(EnvConfigDir); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory: %w", err)
	}
	return filepath.Join(base, DirName), nil
}

// Path returns the path to config.toml.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// Load returns the settings, reading config.toml on first use.
// A missing file yields defaults. On a parse error the defaults are cached and
// returned along with the error.
func Load() (*Settings, error) {
	cacheMu.RLock()
	if cache != nil {
		defer cacheMu.RUnlock()
		return cache, nil
	}
	cacheMu.RUnlock()

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if cache != nil {
		return cache, nil
	}

	path, err := Path()
	if err != nil {
		cache = &Settings{}
		return cache, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cache = &Settings{}
		return cache, nil
	}

	var s Settings
	if _, err := toml.DecodeFile(path, &s); err != nil {
		cache = &Settings{}
		return cache, fmt.Errorf("config.toml parse error: %w", err)
	}
	cache = &s
	return cache, nil
}

// Reload drops the cache and reads config.toml again.
func Reload() (*Settings, error) {
	ClearCache()
	return Load()
}

// ClearCache forgets the loaded settings; the next Load reads from disk.
func ClearCache() {
	cacheMu.Lock()
	cache = nil
	cacheMu.Unlock()
}

// Save writes s to config.toml atomically (temp file, fsync, rename) and
// clears the cache.
func Save(s *Settings) error {
	path, err := Path()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# RustDesk Indicator configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	// Best effort; the rename below is still atomic.
	_ = syncFile(tmpPath)
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize config save: %w", err)
	}

	ClearCache()
	return nil
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

const exampleConfig = `# RustDesk Indicator configuration
# Every key is optional; the values shown are the defaults.

[indicator]
# "always" or "when-running" (main window or a session open)
# show_icon = "always"
# connection_manager = true
# sessions = true
# service = true

[rustdesk]
# binary = "rustdesk"
# service_unit = "rustdesk"
# "ps" forks ps -fC <binary>; "gopsutil" reads /proc directly
# process_backend = "ps"
# poll_interval_ms = 1000
# command_timeout_ms = 2000

[logs]
# debug_level = "info"
# debug_format = "json"
# debug_max_mb = 10
# debug_backups = 3
# debug_retention_days = 7
# debug_compress = false
# ring_buffer_mb = 1

[web]
# enabled = false
# listen_addr = "127.0.0.1:8765"

[ui]
# "dark", "light" or "system"
# theme = "dark"
`

// CreateExample writes a commented config.toml unless one already exists.
// It reports whether a file was written.
func CreateExample() (bool, error) {
	path, err := Path()
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, err
	}
	if err := os.WriteFile(path, []byte(exampleConfig), 0o600); err != nil {
		return false, err
	}
	return true, nil
}
