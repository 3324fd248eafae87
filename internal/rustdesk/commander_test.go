package rustdesk

import (
	"context"
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type recorder struct {
	spawned   [][]string
	signalled []int
	activated []string
	signalErr error
}

func (r *recorder) spawn(name string, args ...string) error {
	r.spawned = append(r.spawned, append([]string{name}, args...))
	return nil
}

func (r *recorder) signal(pid int, sig syscall.Signal) error {
	if sig != syscall.SIGQUIT {
		return errors.New("unexpected signal")
	}
	r.signalled = append(r.signalled, pid)
	return r.signalErr
}

func (r *recorder) Activate(_ context.Context, id string) error {
	r.activated = append(r.activated, id)
	return nil
}

func newTestCommander(rec *recorder) *Commander {
	return NewCommander(CommanderConfig{
		Binary:      "rustdesk",
		ServiceUnit: "rustdesk",
		Activator:   rec,
		Spawn:       rec.spawn,
		Signal:      rec.signal,
		Limit:       rate.Inf,
	})
}

func TestCommanderSpawns(t *testing.T) {
	rec := &recorder{}
	c := newTestCommander(rec)

	require.NoError(t, c.StartApp())
	require.NoError(t, c.StartService())
	require.NoError(t, c.StopService())
	require.NoError(t, c.RestartService())
	require.NoError(t, c.StartSession("connect", "42"))
	require.NoError(t, c.StartSession("file-transfer", "42"))
	require.NoError(t, c.StartSession("port-forward", "42"))

	assert.Equal(t, [][]string{
		{"rustdesk"},
		{"systemctl", "start", "rustdesk"},
		{"systemctl", "stop", "rustdesk"},
		{"systemctl", "restart", "rustdesk"},
		{"rustdesk", "--connect", "42"},
		{"rustdesk", "--file-transfer", "42"},
		{"rustdesk", "--port-forward", "42"},
	}, rec.spawned)
}

func TestCommanderStartSessionValidates(t *testing.T) {
	rec := &recorder{}
	c := newTestCommander(rec)

	assert.ErrorIs(t, c.StartSession("service", "42"), ErrInvalidAction)
	assert.ErrorIs(t, c.StartSession("connect", "42; rm -rf /"), ErrInvalidSessionID)
	assert.ErrorIs(t, c.StartSession("connect", ""), ErrInvalidSessionID)
	assert.Empty(t, rec.spawned)
}

func TestCommanderSignals(t *testing.T) {
	rec := &recorder{}
	c := newTestCommander(rec)

	s42 := &Session{ID: "42",
		Connect:     &RoleEntry{PID: 100},
		PortForward: &RoleEntry{PID: 102},
	}
	s7 := &Session{ID: "7", FileTransfer: &RoleEntry{PID: 70}}

	require.NoError(t, c.ExitApp(11))
	require.NoError(t, c.CloseSession(s42))
	require.NoError(t, c.CloseAllSessions([]*Session{s42, s7}))
	assert.Equal(t, []int{11, 100, 102, 100}, rec.signalled)

	rec.signalled = nil
	st := NewState()
	st.Main = &RoleEntry{PID: 11}
	st.Sessions["42"] = s42
	st.Sessions["7"] = s7
	st.Sessions["9"] = &Session{ID: "9", Connect: &RoleEntry{PID: 90}, Deleted: true}
	require.NoError(t, c.Quit(st))
	assert.Equal(t, []int{11, 100, 102, 70}, rec.signalled)
}

func TestCommanderExitAppRejectsBadPID(t *testing.T) {
	rec := &recorder{}
	c := newTestCommander(rec)

	assert.Error(t, c.ExitApp(0))
	assert.Empty(t, rec.signalled)
}

func TestCommanderSignalFailureIsReported(t *testing.T) {
	rec := &recorder{signalErr: syscall.ESRCH}
	c := newTestCommander(rec)

	err := c.CloseSession(&Session{ID: "1", Connect: &RoleEntry{PID: 5}, FileTransfer: &RoleEntry{PID: 6}})
	require.Error(t, err)
	assert.ErrorIs(t, err, syscall.ESRCH)
	assert.Equal(t, []int{5, 6}, rec.signalled, "every pid is attempted")
}

func TestCommanderActivateWindow(t *testing.T) {
	rec := &recorder{}
	c := newTestCommander(rec)

	require.NoError(t, c.ActivateWindow(context.Background(), "w1"))
	assert.Equal(t, []string{"w1"}, rec.activated)
	assert.Error(t, c.ActivateWindow(context.Background(), ""))

	noTool := NewCommander(CommanderConfig{Spawn: rec.spawn, Signal: rec.signal})
	assert.Error(t, noTool.ActivateWindow(context.Background(), "w1"))
}

func TestCommanderThrottles(t *testing.T) {
	rec := &recorder{}
	c := NewCommander(CommanderConfig{Spawn: rec.spawn, Signal: rec.signal, Limit: rate.Limit(0.001), Burst: 2})

	require.NoError(t, c.StartApp())
	require.NoError(t, c.StartApp())
	assert.ErrorIs(t, c.StartApp(), ErrThrottled)
	assert.Len(t, rec.spawned, 2)
}
