package process

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeOutput(out string, err error) func(context.Context, time.Duration, string, ...string) (string, error) {
	return func(context.Context, time.Duration, string, ...string) (string, error) {
		return out, err
	}
}

func TestPSListerReturnsLines(t *testing.T) {
	var gotName string
	var gotArgs []string
	l := &PSLister{Binary: "rustdesk"}
	l.output = func(_ context.Context, _ time.Duration, name string, args ...string) (string, error) {
		gotName, gotArgs = name, args
		return "UID PID PPID C STIME TTY TIME CMD\n" +
			"root 10 1 0 09:00 ? 00:00:01 /usr/bin/rustdesk --service\n" +
			"alice 11 1 0 09:01 ? 00:00:03 rustdesk   \n\n", nil
	}

	lines, err := l.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ps", gotName)
	assert.Equal(t, []string{"-fC", "rustdesk"}, gotArgs)
	assert.Equal(t, []string{
		"UID PID PPID C STIME TTY TIME CMD",
		"root 10 1 0 09:00 ? 00:00:01 /usr/bin/rustdesk --service",
		"alice 11 1 0 09:01 ? 00:00:03 rustdesk",
	}, lines)
}

func TestPSListerExitOneIsNoProcesses(t *testing.T) {
	l := &PSLister{Binary: "rustdesk"}
	l.output = fakeOutput("", &CommandError{Name: "ps", ExitCode: 1})

	_, err := l.List(context.Background())
	require.ErrorIs(t, err, ErrNoProcesses)
}

func TestPSListerOtherFailuresAreWrapped(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"usage error", &CommandError{Name: "ps", ExitCode: 1, Stderr: "error: unknown option"}},
		{"other exit", &CommandError{Name: "ps", ExitCode: 2}},
		{"missing binary", exec.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &PSLister{Binary: "rustdesk"}
			l.output = fakeOutput("", tt.err)

			_, err := l.List(context.Background())
			require.Error(t, err)
			assert.False(t, errors.Is(err, ErrNoProcesses))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

type fakeProc struct {
	name, user, cmdline string
	nameErr, userErr    error
}

func (p fakeProc) NameWithContext(context.Context) (string, error)     { return p.name, p.nameErr }
func (p fakeProc) UsernameWithContext(context.Context) (string, error) { return p.user, p.userErr }
func (p fakeProc) CmdlineWithContext(context.Context) (string, error)  { return p.cmdline, nil }

func TestGopsutilListerRender(t *testing.T) {
	l := &GopsutilLister{Binary: "/usr/bin/rustdesk"}
	ctx := context.Background()

	tests := []struct {
		name   string
		proc   fakeProc
		want   string
		wantOK bool
	}{
		{
			name:   "matching process",
			proc:   fakeProc{name: "rustdesk", user: "alice", cmdline: "/usr/bin/rustdesk --connect 42"},
			want:   "alice 77 /usr/bin/rustdesk --connect 42",
			wantOK: true,
		},
		{
			name:   "unknown user",
			proc:   fakeProc{name: "rustdesk", userErr: errors.New("no such user"), cmdline: "rustdesk"},
			want:   "? 77 rustdesk",
			wantOK: true,
		},
		{name: "other binary", proc: fakeProc{name: "bash", user: "alice", cmdline: "bash"}},
		{name: "exited", proc: fakeProc{nameErr: errors.New("gone")}},
		{name: "kernel thread", proc: fakeProc{name: "rustdesk", user: "root"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, ok := l.render(ctx, 77, tt.proc)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, line)
		})
	}
}

func TestNewSelectsBackend(t *testing.T) {
	l, err := New("", "rustdesk", time.Second)
	require.NoError(t, err)
	assert.IsType(t, &PSLister{}, l)

	l, err = New(BackendGopsutil, "rustdesk", time.Second)
	require.NoError(t, err)
	assert.IsType(t, &GopsutilLister{}, l)

	_, err = New("procfs", "rustdesk", time.Second)
	assert.ErrorContains(t, err, "unknown process backend")
}

func TestOutput(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	ctx := context.Background()

	out, err := Output(ctx, time.Second, "sh", "-c", "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)

	_, err = Output(ctx, time.Second, "sh", "-c", "echo oops >&2; exit 3")
	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 3, cmdErr.ExitCode)
	assert.Equal(t, "oops", cmdErr.Stderr)
	assert.True(t, IsExitCode(err, 3))

	_, err = Output(ctx, 50*time.Millisecond, "sh", "-c", "sleep 5")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSpawnReportsStartFailure(t *testing.T) {
	err := Spawn("/nonexistent/rustdesk-indicator-test-binary")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "starting")
}
