package rustdesk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotWith(sessions ...*Session) Snapshot {
	snap := NewSnapshot()
	for _, s := range sessions {
		snap.Sessions[s.ID] = s
	}
	return snap
}

func connectSession(id string, pid int, window string) *Session {
	return &Session{ID: id, Connect: &RoleEntry{PID: pid, WindowID: window, State: "Normal"}}
}

func TestReconcileNoOpCycleIsQuiet(t *testing.T) {
	snap := snapshotWith(connectSession("42", 100, "w42"))
	snap.Main = &RoleEntry{PID: 11, WindowID: "w1"}

	r := NewReconciler()
	first := r.Apply(snap.Clone())
	require.True(t, first.PendingChanges)
	require.True(t, first.Sessions["42"].Added)

	second := r.Apply(snap.Clone())
	assert.False(t, second.PendingChanges)
	assert.Equal(t, Changes{}, second.Changes)
	require.Contains(t, second.Sessions, "42")
	s := second.Sessions["42"]
	assert.False(t, s.Added)
	assert.False(t, s.Changed)
	assert.False(t, s.Deleted)
}

func TestReconcileTwoPhaseDelete(t *testing.T) {
	r := NewReconciler()
	r.Apply(snapshotWith(connectSession("42", 100, "w42")))

	st := r.Apply(NewSnapshot())
	require.Contains(t, st.Sessions, "42")
	assert.True(t, st.Sessions["42"].Deleted)
	assert.False(t, st.Sessions["42"].Added)
	assert.True(t, st.PendingChanges)
	assert.Empty(t, st.LiveSessions())

	st = r.Apply(NewSnapshot())
	assert.NotContains(t, st.Sessions, "42")
	assert.True(t, st.PendingChanges)
	assert.True(t, st.Changes.Sessions)

	st = r.Apply(NewSnapshot())
	assert.False(t, st.PendingChanges)
}

func TestReconcileResurrectionIsSilent(t *testing.T) {
	r := NewReconciler()
	r.Apply(snapshotWith(connectSession("42", 100, "w42")))
	r.Apply(snapshotWith(connectSession("42", 100, "w42")))

	st := r.Apply(NewSnapshot())
	require.True(t, st.Sessions["42"].Deleted)

	st = r.Apply(snapshotWith(connectSession("42", 100, "w42")))
	s := st.Sessions["42"]
	assert.False(t, s.Deleted)
	assert.False(t, s.Changed)
	assert.False(t, s.Added)
	assert.False(t, st.PendingChanges)
}

func TestReconcileResurrectionWithNewWindowIsChanged(t *testing.T) {
	r := NewReconciler()
	r.Apply(snapshotWith(connectSession("42", 100, "w42")))
	r.Apply(NewSnapshot())

	st := r.Apply(snapshotWith(connectSession("42", 100, "w43")))
	assert.True(t, st.Sessions["42"].Changed)
	assert.False(t, st.Sessions["42"].Deleted)
	assert.True(t, st.PendingChanges)
	assert.Equal(t, "w43", st.Sessions["42"].Connect.WindowID)
}

func TestReconcileRevivalRestartsTombstoneWindow(t *testing.T) {
	r := NewReconciler()
	r.Apply(snapshotWith(connectSession("42", 100, "w42"), connectSession("77", 300, "w77")))
	r.Apply(NewSnapshot())

	// 42 returns, 77 stays away and is dropped.
	st := r.Apply(snapshotWith(connectSession("42", 100, "w42")))
	assert.False(t, st.Sessions["42"].Added)
	assert.False(t, st.Sessions["42"].Deleted)
	assert.NotContains(t, st.Sessions, "77")
	assert.True(t, st.Changes.Sessions)

	// The revived session gets a full tombstone cycle again.
	st = r.Apply(NewSnapshot())
	require.Contains(t, st.Sessions, "42")
	assert.True(t, st.Sessions["42"].Deleted)

	st = r.Apply(NewSnapshot())
	assert.NotContains(t, st.Sessions, "42")
}

func TestReconcileSessionChangeComparesWindowsOnly(t *testing.T) {
	r := NewReconciler()
	r.Apply(snapshotWith(connectSession("42", 100, "w42")))
	r.Apply(snapshotWith(connectSession("42", 100, "w42")))

	restarted := connectSession("42", 200, "w42")
	restarted.Connect.State = "Iconic"
	st := r.Apply(snapshotWith(restarted))
	assert.False(t, st.Sessions["42"].Changed)
	assert.False(t, st.PendingChanges)
	assert.Equal(t, 200, st.Sessions["42"].Connect.PID, "incoming role data is kept")

	withTransfer := connectSession("42", 200, "w42")
	withTransfer.FileTransfer = &RoleEntry{PID: 201, WindowID: "w99"}
	st = r.Apply(snapshotWith(withTransfer))
	assert.True(t, st.Sessions["42"].Changed)
	assert.True(t, st.Changes.Sessions)
}

func TestReconcileAddedAndDeletedNeverCoOccur(t *testing.T) {
	r := NewReconciler()
	inputs := []Snapshot{
		snapshotWith(connectSession("1", 10, "a")),
		snapshotWith(connectSession("2", 20, "b")),
		snapshotWith(connectSession("1", 10, "a"), connectSession("2", 20, "c")),
		NewSnapshot(),
		snapshotWith(connectSession("1", 10, "a")),
		NewSnapshot(),
		NewSnapshot(),
	}
	for i, in := range inputs {
		st := r.Apply(in)
		for id, s := range st.Sessions {
			assert.False(t, s.Added && s.Deleted, "cycle %d session %s", i, id)
			assert.Equal(t, id, s.ID)
		}
	}
}

func TestReconcileSingletons(t *testing.T) {
	tests := []struct {
		name string
		prev *RoleEntry
		next *RoleEntry
		want bool
	}{
		{"both absent", nil, nil, false},
		{"appears", nil, &RoleEntry{PID: 1}, true},
		{"disappears", &RoleEntry{PID: 1}, nil, true},
		{"same", &RoleEntry{PID: 1, WindowID: "w"}, &RoleEntry{PID: 1, WindowID: "w"}, false},
		{"new pid", &RoleEntry{PID: 1}, &RoleEntry{PID: 2}, true},
		{"window mapped", &RoleEntry{PID: 1}, &RoleEntry{PID: 1, WindowID: "w"}, true},
		{"state only", &RoleEntry{PID: 1, WindowID: "w", State: "Normal"}, &RoleEntry{PID: 1, WindowID: "w", State: "Iconic"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := NewState()
			prev.Service, prev.Main, prev.ConnectionManager = tt.prev, tt.prev.Clone(), tt.prev.Clone()
			next := NewSnapshot()
			next.Service, next.Main, next.ConnectionManager = tt.next, tt.next.Clone(), tt.next.Clone()

			st := Reconcile(prev, next)
			assert.Equal(t, Changes{Service: tt.want, Main: tt.want, ConnectionManager: tt.want}, st.Changes)
			assert.Equal(t, tt.want, st.PendingChanges)
		})
	}
}

func TestReconcileDoesNotMutateInputs(t *testing.T) {
	prev := Reconcile(NewState(), snapshotWith(connectSession("42", 100, "w42")))
	next := snapshotWith(connectSession("7", 70, "w7"))

	_ = Reconcile(prev, next)

	assert.True(t, prev.Sessions["42"].Added)
	assert.False(t, prev.Sessions["42"].Deleted)
	assert.False(t, next.Sessions["7"].Added)
}

func TestReconcilerStateIsACopy(t *testing.T) {
	r := NewReconciler()
	st := r.Apply(snapshotWith(connectSession("42", 100, "w42")))
	st.Sessions["42"].Connect.WindowID = "mutated"
	delete(st.Sessions, "42")

	got := r.State()
	require.Contains(t, got.Sessions, "42")
	assert.Equal(t, "w42", got.Sessions["42"].Connect.WindowID)
}

func TestChangesMerge(t *testing.T) {
	a := Changes{Service: true}
	b := Changes{Sessions: true}
	assert.Equal(t, Changes{Service: true, Sessions: true}, a.Merge(b))
	assert.False(t, Changes{}.Any())
	assert.True(t, b.Any())
}
