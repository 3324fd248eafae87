package process

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	gops "github.com/shirou/gopsutil/v3/process"
)

// ErrNoProcesses means the listing ran and found nothing. It is the normal
// state when the application is not running.
var ErrNoProcesses = errors.New("no matching processes")

// Backend names accepted by New.
const (
	BackendPS       = "ps"
	BackendGopsutil = "gopsutil"
)

// Lister returns `<user> <pid> ... <command>` lines for one executable.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// New returns the lister for backend. An empty backend selects ps.
func New(backend, binary string, timeout time.Duration) (Lister, error) {
	switch backend {
	case "", BackendPS:
		return &PSLister{Binary: binary, Timeout: timeout}, nil
	case BackendGopsutil:
		return &GopsutilLister{Binary: binary, Timeout: timeout}, nil
	default:
		return nil, fmt.Errorf("unknown process backend %q (want %s or %s)", backend, BackendPS, BackendGopsutil)
	}
}

// PSLister runs `ps -fC <binary>`. The header line is returned with the rest;
// it never looks like a process line.
type PSLister struct {
	Binary  string
	Timeout time.Duration

	output func(ctx context.Context, timeout time.Duration, name string, args ...string) (string, error)
}

// List runs ps once.
func (l *PSLister) List(ctx context.Context) ([]string, error) {
	run := l.output
	if run == nil {
		run = Output
	}
	out, err := run(ctx, l.Timeout, "ps", "-fC", l.Binary)
	if err != nil {
		// procps exits 1 when no process matched the selection.
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && cmdErr.ExitCode == 1 && cmdErr.Stderr == "" {
			return nil, ErrNoProcesses
		}
		return nil, fmt.Errorf("listing %s processes: %w", l.Binary, err)
	}
	return splitLines(out), nil
}

// procInfo is the subset of a gopsutil process the lister reads.
type procInfo interface {
	NameWithContext(ctx context.Context) (string, error)
	UsernameWithContext(ctx context.Context) (string, error)
	CmdlineWithContext(ctx context.Context) (string, error)
}

// GopsutilLister enumerates /proc through gopsutil instead of forking ps.
type GopsutilLister struct {
	Binary  string
	Timeout time.Duration

	processes func(ctx context.Context) ([]*gops.Process, error)
}

// List enumerates processes and renders those named Binary.
func (l *GopsutilLister) List(ctx context.Context) ([]string, error) {
	timeout := l.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	enumerate := l.processes
	if enumerate == nil {
		enumerate = gops.ProcessesWithContext
	}
	procs, err := enumerate(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerating processes: %w", err)
	}

	var lines []string
	for _, p := range procs {
		if line, ok := l.render(ctx, int(p.Pid), p); ok {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, ErrNoProcesses
	}
	return lines, nil
}

// render formats one process like a `ps -f` row minus the columns the
// classifier skips. Processes that exit mid-enumeration are dropped.
func (l *GopsutilLister) render(ctx context.Context, pid int, p procInfo) (string, bool) {
	name, err := p.NameWithContext(ctx)
	if err != nil || name != filepath.Base(l.Binary) {
		return "", false
	}
	cmdline, err := p.CmdlineWithContext(ctx)
	if err != nil || strings.TrimSpace(cmdline) == "" {
		return "", false
	}
	user, err := p.UsernameWithContext(ctx)
	if err != nil || user == "" {
		user = "?"
	}
	return fmt.Sprintf("%s %d %s", user, pid, strings.TrimSpace(cmdline)), true
}
