package rustdesk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"syscall"

	"golang.org/x/time/rate"

	"github.com/e7d/rustdesk-indicator/internal/logging"
	"github.com/e7d/rustdesk-indicator/internal/process"
)

var (
	// ErrInvalidAction is returned for a session action other than
	// connect, file-transfer or port-forward.
	ErrInvalidAction = errors.New("invalid session action")
	// ErrInvalidSessionID is returned for a session id that is not all digits.
	ErrInvalidSessionID = errors.New("invalid session id")
	// ErrThrottled is returned when actions arrive faster than the limiter allows.
	ErrThrottled = errors.New("action throttled")
)

// DefaultServiceUnit is the systemd unit RustDesk installs.
const DefaultServiceUnit = "rustdesk"

var (
	actionLog   = logging.ForComponent(logging.CompAction)
	sessionIDRe = regexp.MustCompile(`^\d+$`)
)

// WindowActivator raises and focuses a window.
type WindowActivator interface {
	Activate(ctx context.Context, windowID string) error
}

// CommanderConfig configures a Commander. Zero values select the defaults.
type CommanderConfig struct {
	Binary      string
	ServiceUnit string
	Activator   WindowActivator

	// Spawn starts a detached command; defaults to process.Spawn.
	Spawn func(name string, args ...string) error
	// Signal delivers sig to pid; defaults to syscall.Kill.
	Signal func(pid int, sig syscall.Signal) error

	// Limit and Burst bound how often actions may be issued.
	Limit rate.Limit
	Burst int
}

// Commander issues the fire-and-forget actions the UI offers. None of them
// touch observed state; the next cycle sees their effect.
type Commander struct {
	binary      string
	serviceUnit string
	activator   WindowActivator
	spawn       func(name string, args ...string) error
	signal      func(pid int, sig syscall.Signal) error
	limiter     *rate.Limiter
}

// NewCommander creates a Commander.
func NewCommander(cfg CommanderConfig) *Commander {
	if cfg.Binary == "" {
		cfg.Binary = DefaultBinary
	}
	if cfg.ServiceUnit == "" {
		cfg.ServiceUnit = DefaultServiceUnit
	}
	if cfg.Spawn == nil {
		cfg.Spawn = process.Spawn
	}
	if cfg.Signal == nil {
		cfg.Signal = syscall.Kill
	}
	if cfg.Limit == 0 {
		cfg.Limit = rate.Limit(5)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	return &Commander{
		binary:      cfg.Binary,
		serviceUnit: cfg.ServiceUnit,
		activator:   cfg.Activator,
		spawn:       cfg.Spawn,
		signal:      cfg.Signal,
		limiter:     rate.NewLimiter(cfg.Limit, cfg.Burst),
	}
}

func (c *Commander) allow(action string) error {
	if c.limiter.Allow() {
		return nil
	}
	actionLog.Warn("action_throttled", slog.String("action", action))
	return ErrThrottled
}

func (c *Commander) run(action, name string, args ...string) error {
	if err := c.allow(action); err != nil {
		return err
	}
	actionLog.Info("action", slog.String("action", action), slog.String("cmd", name), slog.Any("args", args))
	if err := c.spawn(name, args...); err != nil {
		actionLog.Error("action_failed", slog.String("action", action), slog.String("error", err.Error()))
		return fmt.Errorf("%s: %w", action, err)
	}
	return nil
}

// StartApp launches the main application window.
func (c *Commander) StartApp() error {
	return c.run("start_app", c.binary)
}

// ExitApp asks the process to quit with SIGQUIT.
func (c *Commander) ExitApp(pid int) error {
	if err := c.allow("exit_app"); err != nil {
		return err
	}
	return c.quitPIDs("exit_app", pid)
}

// StartService starts the background service unit.
func (c *Commander) StartService() error {
	return c.run("start_service", "systemctl", "start", c.serviceUnit)
}

// StopService stops the background service unit.
func (c *Commander) StopService() error {
	return c.run("stop_service", "systemctl", "stop", c.serviceUnit)
}

// RestartService restarts the background service unit.
func (c *Commander) RestartService() error {
	return c.run("restart_service", "systemctl", "restart", c.serviceUnit)
}

// StartSession opens a session role for the peer id. action is the
// command-line keyword: connect, file-transfer or port-forward.
func (c *Commander) StartSession(action, sessionID string) error {
	if _, ok := RoleFromFlag(action); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	if !sessionIDRe.MatchString(sessionID) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	return c.run("start_session", c.binary, "--"+action, sessionID)
}

// ActivateWindow raises the window.
func (c *Commander) ActivateWindow(ctx context.Context, windowID string) error {
	if windowID == "" {
		return errors.New("activate window: empty window id")
	}
	if c.activator == nil {
		return errors.New("activate window: no window tool available")
	}
	if err := c.allow("activate_window"); err != nil {
		return err
	}
	actionLog.Info("action", slog.String("action", "activate_window"), slog.String("window", windowID))
	if err := c.activator.Activate(ctx, windowID); err != nil {
		return fmt.Errorf("activate window %s: %w", windowID, err)
	}
	return nil
}

// CloseSession quits every running role process of the session.
func (c *Commander) CloseSession(s *Session) error {
	if s == nil {
		return nil
	}
	if err := c.allow("close_session"); err != nil {
		return err
	}
	return c.quitPIDs("close_session", s.PIDs()...)
}

// CloseAllSessions quits the connect process of every session.
func (c *Commander) CloseAllSessions(sessions []*Session) error {
	if err := c.allow("close_all_sessions"); err != nil {
		return err
	}
	var pids []int
	for _, s := range sessions {
		if s.Connect != nil {
			pids = append(pids, s.Connect.PID)
		}
	}
	return c.quitPIDs("close_all_sessions", pids...)
}

// Quit closes the main window and every live session.
func (c *Commander) Quit(st State) error {
	if err := c.allow("quit"); err != nil {
		return err
	}
	var pids []int
	if st.Main != nil {
		pids = append(pids, st.Main.PID)
	}
	for _, s := range st.LiveSessions() {
		pids = append(pids, s.PIDs()...)
	}
	return c.quitPIDs("quit", pids...)
}

func (c *Commander) quitPIDs(action string, pids ...int) error {
	var errs []error
	for _, pid := range pids {
		if pid <= 0 {
			errs = append(errs, fmt.Errorf("invalid pid %d", pid))
			continue
		}
		actionLog.Info("action", slog.String("action", action), slog.Int("pid", pid))
		if err := c.signal(pid, syscall.SIGQUIT); err != nil {
			actionLog.Warn("signal_failed", slog.Int("pid", pid), slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("signal %d: %w", pid, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	return nil
}
