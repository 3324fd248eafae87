// Package process lists the processes of one executable and spawns detached
// commands.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/e7d/rustdesk-indicator/internal/logging"
)

// DefaultTimeout bounds every external query.
const DefaultTimeout = 2 * time.Second

// CommandError is a command that ran and exited non-zero.
type CommandError struct {
	Name     string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s %s: exit status %d", e.Name, strings.Join(e.Args, " "), e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// IsExitCode reports whether err is a CommandError with the given exit code.
func IsExitCode(err error, code int) bool {
	var cmdErr *CommandError
	return errors.As(err, &cmdErr) && cmdErr.ExitCode == code
}

// Output runs name with args, bounded by timeout, and returns stdout.
// A non-zero exit is returned as *CommandError; a missing binary or a timeout
// is returned as the underlying error.
func Output(ctx context.Context, timeout time.Duration, name string, args ...string) (string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", fmt.Errorf("%s: %w", name, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return "", &CommandError{
			Name:     name,
			Args:     args,
			ExitCode: exitErr.ExitCode(),
			Stdout:   stdout.String(),
			Stderr:   strings.TrimSpace(stderr.String()),
		}
	}
	return "", fmt.Errorf("running %s: %w", name, err)
}

// Spawn starts name detached from the caller and reaps it in the background.
// Only start failures are reported.
func Spawn(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", name, err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			logging.ForComponent(logging.CompAction).Debug("spawned_exit",
				slog.String("cmd", name),
				slog.String("error", err.Error()))
		}
	}()
	return nil
}

// splitLines returns the non-blank lines of out with trailing whitespace removed.
func splitLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
