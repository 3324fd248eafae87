// Package rustdesk observes the processes of a RustDesk installation, pairs
// them with their X11 windows and reports what changed between observations.
package rustdesk

import "sort"

// Role is the functional classification of one matched process.
type Role string

const (
	RoleService           Role = "service"
	RoleMain              Role = "main"
	RoleConnectionManager Role = "connectionManager"
	RoleConnect           Role = "connect"
	RoleFileTransfer      Role = "fileTransfer"
	RolePortForward       Role = "portForward"
)

// SessionRoles lists the per-session roles in menu order.
var SessionRoles = []Role{RoleConnect, RoleFileTransfer, RolePortForward}

// IsSession reports whether the role belongs to a session rather than the application.
func (r Role) IsSession() bool {
	return r == RoleConnect || r == RoleFileTransfer || r == RolePortForward
}

// Windowed reports whether processes of this role own a window worth resolving.
// The service daemon never maps one.
func (r Role) Windowed() bool {
	return r != RoleService
}

// Flag returns the command-line action keyword that starts the role
// ("file-transfer" for RoleFileTransfer), or "" for non-session roles.
func (r Role) Flag() string {
	switch r {
	case RoleConnect:
		return "connect"
	case RoleFileTransfer:
		return "file-transfer"
	case RolePortForward:
		return "port-forward"
	}
	return ""
}

// RoleFromFlag maps an action keyword back to its session role.
func RoleFromFlag(flag string) (Role, bool) {
	for _, r := range SessionRoles {
		if r.Flag() == flag {
			return r, true
		}
	}
	return "", false
}

// RoleEntry is one running process and, when resolved, its window.
// A nil *RoleEntry means the role is not running.
type RoleEntry struct {
	PID      int    `json:"pid" yaml:"pid"`
	WindowID string `json:"windowId,omitempty" yaml:"window_id,omitempty"`
	State    string `json:"state,omitempty" yaml:"state,omitempty"`
}

// HasWindow reports whether a visible window was found for the process.
func (e *RoleEntry) HasWindow() bool {
	return e != nil && e.WindowID != ""
}

// Clone returns a copy of e (nil stays nil).
func (e *RoleEntry) Clone() *RoleEntry {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

func windowIDOf(e *RoleEntry) string {
	if e == nil {
		return ""
	}
	return e.WindowID
}

func pidOf(e *RoleEntry) int {
	if e == nil {
		return 0
	}
	return e.PID
}

// Session is one remote peer and the role processes currently serving it.
// Added, Changed and Deleted are reconciliation markers valid for one cycle.
type Session struct {
	ID           string     `json:"sessionId" yaml:"session_id"`
	Connect      *RoleEntry `json:"connect,omitempty" yaml:"connect,omitempty"`
	FileTransfer *RoleEntry `json:"fileTransfer,omitempty" yaml:"file_transfer,omitempty"`
	PortForward  *RoleEntry `json:"portForward,omitempty" yaml:"port_forward,omitempty"`

	Added   bool `json:"added,omitempty" yaml:"added,omitempty"`
	Changed bool `json:"changed,omitempty" yaml:"changed,omitempty"`
	Deleted bool `json:"deleted,omitempty" yaml:"deleted,omitempty"`
}

// Role returns the entry for a session role, nil when it is not running.
func (s *Session) Role(r Role) *RoleEntry {
	switch r {
	case RoleConnect:
		return s.Connect
	case RoleFileTransfer:
		return s.FileTransfer
	case RolePortForward:
		return s.PortForward
	}
	return nil
}

// SetRole stores e under the given session role. Non-session roles are ignored.
func (s *Session) SetRole(r Role, e *RoleEntry) {
	switch r {
	case RoleConnect:
		s.Connect = e
	case RoleFileTransfer:
		s.FileTransfer = e
	case RolePortForward:
		s.PortForward = e
	}
}

// PIDs returns the pids of every running role of the session, in menu order.
func (s *Session) PIDs() []int {
	var pids []int
	for _, r := range SessionRoles {
		if e := s.Role(r); e != nil {
			pids = append(pids, e.PID)
		}
	}
	return pids
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Connect = s.Connect.Clone()
	c.FileTransfer = s.FileTransfer.Clone()
	c.PortForward = s.PortForward.Clone()
	return &c
}

func (s *Session) flagged() bool {
	return s.Added || s.Changed || s.Deleted
}

// Snapshot is one cycle's view of every role and session.
type Snapshot struct {
	Service           *RoleEntry          `json:"service" yaml:"service"`
	Main              *RoleEntry          `json:"main" yaml:"main"`
	ConnectionManager *RoleEntry          `json:"connectionManager" yaml:"connection_manager"`
	Sessions          map[string]*Session `json:"sessions" yaml:"sessions"`
}

// NewSnapshot returns an empty snapshot: nothing running.
func NewSnapshot() Snapshot {
	return Snapshot{Sessions: make(map[string]*Session)}
}

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	c := Snapshot{
		Service:           s.Service.Clone(),
		Main:              s.Main.Clone(),
		ConnectionManager: s.ConnectionManager.Clone(),
		Sessions:          make(map[string]*Session, len(s.Sessions)),
	}
	for id, sess := range s.Sessions {
		c.Sessions[id] = sess.Clone()
	}
	return c
}

// LiveSessions returns the sessions that are not tombstoned, ordered by ID.
func (s Snapshot) LiveSessions() []*Session {
	live := make([]*Session, 0, len(s.Sessions))
	for _, sess := range s.Sessions {
		if !sess.Deleted {
			live = append(live, sess)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].ID < live[j].ID })
	return live
}

// Running reports whether any RustDesk UI process (main window or a session) exists.
func (s Snapshot) Running() bool {
	return s.Main != nil || len(s.LiveSessions()) > 0
}
