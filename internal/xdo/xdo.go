// Package xdo resolves process windows with xdotool and xprop.
package xdo

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/e7d/rustdesk-indicator/internal/process"
)

var windowStateRe = regexp.MustCompile(`window state: (\w+)$`)

// Tool queries the X server through the xdotool and xprop binaries.
// The zero value is ready to use.
type Tool struct {
	Timeout time.Duration

	output   func(ctx context.Context, timeout time.Duration, name string, args ...string) (string, error)
	spawn    func(name string, args ...string) error
	lookPath func(file string) (string, error)
}

// New returns a Tool bounding each query by timeout.
func New(timeout time.Duration) *Tool {
	return &Tool{Timeout: timeout}
}

func (t *Tool) run(ctx context.Context, name string, args ...string) (string, error) {
	if t.output != nil {
		return t.output(ctx, t.Timeout, name, args...)
	}
	return process.Output(ctx, t.Timeout, name, args...)
}

// Available reports which of the required binaries are missing from PATH.
func (t *Tool) Available() error {
	look := t.lookPath
	if look == nil {
		look = exec.LookPath
	}
	var missing []string
	for _, bin := range []string{"xdotool", "xprop"} {
		if _, err := look(bin); err != nil {
			missing = append(missing, bin)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("window lookup disabled, missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// FindWindow returns the first visible window owned by pid, or "" when the
// process has no mapped window yet.
func (t *Tool) FindWindow(ctx context.Context, pid int) (string, error) {
	out, err := t.run(ctx, "xdotool", "search", "--all", "--pid", strconv.Itoa(pid), "--onlyvisible", "--limit", "1")
	if err != nil {
		// xdotool exits 1 when the search matched nothing.
		if process.IsExitCode(err, 1) && !hasOutput(err) {
			return "", nil
		}
		return "", fmt.Errorf("searching window of pid %d: %w", pid, err)
	}
	for _, line := range strings.Split(out, "\n") {
		if id := strings.TrimSpace(line); id != "" {
			return id, nil
		}
	}
	return "", nil
}

// WindowState returns the WM_STATE token (Normal, Iconic, Withdrawn) of the
// window, or "" when the property is not set.
func (t *Tool) WindowState(ctx context.Context, windowID string) (string, error) {
	out, err := t.run(ctx, "xprop", "WM_STATE", "-id", windowID)
	if err != nil {
		return "", fmt.Errorf("reading state of window %s: %w", windowID, err)
	}
	return ParseWindowState(out), nil
}

// ParseWindowState extracts the last "window state: <token>" value from xprop output.
func ParseWindowState(out string) string {
	var state string
	for _, line := range strings.Split(out, "\n") {
		if m := windowStateRe.FindStringSubmatch(strings.TrimRight(line, " \t\r")); m != nil {
			state = m[1]
		}
	}
	return state
}

// Activate raises and focuses the window without waiting for xdotool to exit.
func (t *Tool) Activate(_ context.Context, windowID string) error {
	if windowID == "" {
		return errors.New("empty window id")
	}
	spawn := t.spawn
	if spawn == nil {
		spawn = process.Spawn
	}
	return spawn("xdotool", "windowactivate", windowID)
}

func hasOutput(err error) bool {
	var cmdErr *process.CommandError
	return errors.As(err, &cmdErr) && (strings.TrimSpace(cmdErr.Stdout) != "" || cmdErr.Stderr != "")
}
