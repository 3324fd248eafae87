package rustdesk

import "time"

// Changes records which parts of the state differ from the previous cycle.
type Changes struct {
	Service           bool `json:"service" yaml:"service"`
	Main              bool `json:"main" yaml:"main"`
	ConnectionManager bool `json:"connectionManager" yaml:"connection_manager"`
	Sessions          bool `json:"sessions" yaml:"sessions"`
}

// Any reports whether anything changed.
func (c Changes) Any() bool {
	return c.Service || c.Main || c.ConnectionManager || c.Sessions
}

// Merge returns the union of both change sets.
func (c Changes) Merge(o Changes) Changes {
	return Changes{
		Service:           c.Service || o.Service,
		Main:              c.Main || o.Main,
		ConnectionManager: c.ConnectionManager || o.ConnectionManager,
		Sessions:          c.Sessions || o.Sessions,
	}
}

// State is the retained, reconciled view handed to consumers once per cycle.
type State struct {
	Snapshot       `yaml:",inline"`
	Changes        Changes `json:"changes" yaml:"changes"`
	PendingChanges bool    `json:"pendingChanges" yaml:"pending_changes"`

	// Set by the Observer; zero when reconciled directly.
	Cycle      uint64    `json:"cycle" yaml:"cycle"`
	ObservedAt time.Time `json:"observedAt" yaml:"observed_at"`
}

// NewState returns the state an observer starts from: nothing running.
func NewState() State {
	return State{Snapshot: NewSnapshot()}
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	c := s
	c.Snapshot = s.Snapshot.Clone()
	return c
}

// Reconcile merges next into prev and reports what changed.
//
// Sessions are tombstoned in two phases: a session missing from next is first
// kept with Deleted set, and only dropped if it is still missing on the
// following cycle. A session that comes back in between is revived and marked
// Changed only when one of its role windows differs. Dropping a tombstone
// counts as a change.
//
// prev is not modified.
func Reconcile(prev State, next Snapshot) State {
	sessions, expiring := tombstone(prev.Sessions)

	for id, incoming := range next.Sessions {
		merged := incoming.Clone()
		merged.Added, merged.Changed, merged.Deleted = false, false, false

		existing, ok := sessions[id]
		if !ok {
			existing, ok = expiring[id]
			delete(expiring, id)
		}
		if ok {
			merged.Changed = sessionWindowsDiffer(existing, merged)
		} else {
			merged.Added = true
		}
		sessions[id] = merged
	}

	// Tombstones not revived this cycle are dropped.
	sessionsChanged := len(expiring) > 0
	for _, s := range sessions {
		if s.flagged() {
			sessionsChanged = true
			break
		}
	}

	changes := Changes{
		Service:           roleChanged(prev.Service, next.Service),
		Main:              roleChanged(prev.Main, next.Main),
		ConnectionManager: roleChanged(prev.ConnectionManager, next.ConnectionManager),
		Sessions:          sessionsChanged,
	}

	return State{
		Snapshot: Snapshot{
			Service:           next.Service.Clone(),
			Main:              next.Main.Clone(),
			ConnectionManager: next.ConnectionManager.Clone(),
			Sessions:          sessions,
		},
		Changes:        changes,
		PendingChanges: changes.Any(),
	}
}

// tombstone copies the previous sessions with transient markers cleared and
// marks them deleted. Sessions already deleted last cycle are returned
// separately in expiring; they are revived only if next carries them again.
func tombstone(prev map[string]*Session) (live, expiring map[string]*Session) {
	live = make(map[string]*Session, len(prev))
	expiring = make(map[string]*Session)
	for id, s := range prev {
		c := s.Clone()
		if s.Deleted {
			expiring[id] = c
			continue
		}
		c.Added, c.Changed, c.Deleted = false, false, true
		live[id] = c
	}
	return live, expiring
}

// roleChanged compares presence, then pid and window identity.
func roleChanged(prev, next *RoleEntry) bool {
	if (prev == nil) != (next == nil) {
		return true
	}
	return pidOf(prev) != pidOf(next) || windowIDOf(prev) != windowIDOf(next)
}

// sessionWindowsDiffer compares only the window of each session role; a role
// restarted under a new pid but the same window is not reported.
func sessionWindowsDiffer(a, b *Session) bool {
	for _, r := range SessionRoles {
		if windowIDOf(a.Role(r)) != windowIDOf(b.Role(r)) {
			return true
		}
	}
	return false
}

// Reconciler owns the retained state between cycles. It is not safe for
// concurrent use; the Observer drives it from a single goroutine.
type Reconciler struct {
	state State
}

// NewReconciler returns a reconciler starting from an empty state.
func NewReconciler() *Reconciler {
	return &Reconciler{state: NewState()}
}

// Apply reconciles next against the retained state, retains the result and
// returns a copy of it.
func (r *Reconciler) Apply(next Snapshot) State {
	r.state = Reconcile(r.state, next)
	return r.state.Clone()
}

// State returns a copy of the retained state.
func (r *Reconciler) State() State {
	return r.state.Clone()
}
