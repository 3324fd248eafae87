// Package menu derives the indicator menu from the observed RustDesk state.
// Nothing here performs I/O; Execute hands the chosen item to a Commander.
package menu

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/e7d/rustdesk-indicator/internal/config"
	"github.com/e7d/rustdesk-indicator/internal/rustdesk"
)

// Action is what selecting an item does.
type Action string

const (
	ActionActivateWindow   Action = "activate-window"
	ActionStartApp         Action = "start-app"
	ActionStartSession     Action = "start-session"
	ActionExitApp          Action = "exit-app"
	ActionCloseSession     Action = "close-session"
	ActionCloseAllSessions Action = "close-all-sessions"
	ActionStartService     Action = "start-service"
	ActionStopService      Action = "stop-service"
	ActionRestartService   Action = "restart-service"
	ActionQuit             Action = "quit"
)

// Item is one selectable entry.
type Item struct {
	Label  string `json:"label"`
	Action Action `json:"action"`

	WindowID      string `json:"windowId,omitempty"`
	SessionID     string `json:"sessionId,omitempty"`
	SessionAction string `json:"sessionAction,omitempty"`

	// ClosePID is the running process behind a session role entry; the UI
	// offers to close it next to the entry.
	ClosePID int `json:"closePid,omitempty"`
}

// Section is a group of items drawn between separators. Session sections
// carry the formatted peer id as Title.
type Section struct {
	Title     string `json:"title,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Items     []Item `json:"items"`
}

// Icon holds the status flags shown on the indicator icon.
type Icon struct {
	SessionOut     bool `json:"sessionOut"`
	SessionIn      bool `json:"sessionIn"`
	ServiceOffline bool `json:"serviceOffline"`
}

// Classes returns the style classes for the set flags.
func (i Icon) Classes() []string {
	var classes []string
	if i.SessionOut {
		classes = append(classes, "session-out")
	}
	if i.SessionIn {
		classes = append(classes, "session-in")
	}
	if i.ServiceOffline {
		classes = append(classes, "service-offline")
	}
	return classes
}

// Menu is the full indicator model for one state.
type Menu struct {
	Visible  bool      `json:"visible"`
	Icon     Icon      `json:"icon"`
	Sections []Section `json:"sections"`

	state rustdesk.State
}

// Items flattens the sections in display order.
func (m Menu) Items() []Item {
	var items []Item
	for _, s := range m.Sections {
		items = append(items, s.Items...)
	}
	return items
}

// IconFor computes the icon flags.
func IconFor(st rustdesk.State) Icon {
	return Icon{
		SessionOut:     len(st.LiveSessions()) > 0,
		SessionIn:      st.ConnectionManager != nil,
		ServiceOffline: st.Service == nil,
	}
}

// Visible reports whether the indicator is shown at all.
func Visible(st rustdesk.State, s config.IndicatorSettings) bool {
	return s.GetShowIcon() == config.ShowIconAlways || st.Running()
}

// NeedsUpdate reports whether the menu must be rebuilt.
func NeedsUpdate(force bool, st rustdesk.State, settingsPending bool) bool {
	return force || settingsPending || st.PendingChanges
}

// SessionLabel groups the digits of a peer id in threes from the right:
// "123456789" becomes "123 456 789".
func SessionLabel(id string) string {
	if len(id) <= 3 {
		return id
	}
	var b strings.Builder
	lead := len(id) % 3
	if lead > 0 {
		b.WriteString(id[:lead])
	}
	for i := lead; i < len(id); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(id[i : i+3])
	}
	return b.String()
}

var sessionEntries = []struct {
	role  rustdesk.Role
	label string
}{
	{rustdesk.RoleConnect, "Connect"},
	{rustdesk.RoleFileTransfer, "Transfer File"},
	{rustdesk.RolePortForward, "TCP Tunneling"},
}

// Build derives the menu from the state and the indicator settings.
func Build(st rustdesk.State, s config.IndicatorSettings) Menu {
	m := Menu{
		Visible: Visible(st, s),
		Icon:    IconFor(st),
		state:   st,
	}

	m.Sections = append(m.Sections, Section{Items: []Item{windowOrStart("RustDesk", st.Main)}})

	if s.GetConnectionManager() && st.ConnectionManager != nil {
		m.Sections = append(m.Sections, Section{Items: []Item{windowOrStart("Connection Manager", st.ConnectionManager)}})
	}

	live := st.LiveSessions()
	if s.GetSessions() && len(live) > 0 {
		for _, sess := range live {
			m.Sections = append(m.Sections, sessionSection(sess))
		}
		if len(live) >= 2 {
			m.Sections = append(m.Sections, Section{Items: []Item{{
				Label:  "Close all sessions",
				Action: ActionCloseAllSessions,
			}}})
		}
	}

	if s.GetService() {
		var items []Item
		if st.Service != nil {
			items = append(items,
				Item{Label: "Stop service", Action: ActionStopService},
				Item{Label: "Restart service", Action: ActionRestartService})
		} else {
			items = append(items, Item{Label: "Start service", Action: ActionStartService})
		}
		m.Sections = append(m.Sections, Section{Items: items})
	}

	if st.Main != nil || len(live) > 0 {
		m.Sections = append(m.Sections, Section{Items: []Item{{Label: "Quit", Action: ActionQuit}}})
	}
	return m
}

func windowOrStart(label string, e *rustdesk.RoleEntry) Item {
	if e.HasWindow() {
		return Item{Label: label, Action: ActionActivateWindow, WindowID: e.WindowID}
	}
	return Item{Label: label, Action: ActionStartApp}
}

func sessionSection(sess *rustdesk.Session) Section {
	sec := Section{Title: SessionLabel(sess.ID), SessionID: sess.ID}
	for _, entry := range sessionEntries {
		e := sess.Role(entry.role)
		it := Item{Label: entry.label, SessionID: sess.ID}
		if e.HasWindow() {
			it.Action = ActionActivateWindow
			it.WindowID = e.WindowID
		} else {
			it.Action = ActionStartSession
			it.SessionAction = entry.role.Flag()
		}
		if e != nil {
			it.ClosePID = e.PID
		}
		sec.Items = append(sec.Items, it)
	}
	sec.Items = append(sec.Items, Item{Label: "Close session", Action: ActionCloseSession, SessionID: sess.ID})
	return sec
}

// Commander performs the actions behind menu items. *rustdesk.Commander implements it.
type Commander interface {
	StartApp() error
	ExitApp(pid int) error
	StartService() error
	StopService() error
	RestartService() error
	StartSession(action, sessionID string) error
	ActivateWindow(ctx context.Context, windowID string) error
	CloseSession(s *rustdesk.Session) error
	CloseAllSessions(sessions []*rustdesk.Session) error
	Quit(st rustdesk.State) error
}

// Execute performs the item's action against the state the menu was built from.
func (m Menu) Execute(ctx context.Context, cmd Commander, it Item) error {
	switch it.Action {
	case ActionActivateWindow:
		return cmd.ActivateWindow(ctx, it.WindowID)
	case ActionStartApp:
		return cmd.StartApp()
	case ActionStartSession:
		return cmd.StartSession(it.SessionAction, it.SessionID)
	case ActionExitApp:
		return cmd.ExitApp(it.ClosePID)
	case ActionCloseSession:
		sess, ok := m.state.Sessions[it.SessionID]
		if !ok {
			return fmt.Errorf("close session: unknown session %q", it.SessionID)
		}
		return cmd.CloseSession(sess)
	case ActionCloseAllSessions:
		return cmd.CloseAllSessions(m.state.LiveSessions())
	case ActionStartService:
		return cmd.StartService()
	case ActionStopService:
		return cmd.StopService()
	case ActionRestartService:
		return cmd.RestartService()
	case ActionQuit:
		return cmd.Quit(m.state)
	}
	return errors.New("unknown menu action " + string(it.Action))
}

// CloseItem returns the entry that closes the role process behind it, if running.
func CloseItem(it Item) (Item, bool) {
	if it.ClosePID <= 0 {
		return Item{}, false
	}
	return Item{Label: "Close " + it.Label, Action: ActionExitApp, ClosePID: it.ClosePID, SessionID: it.SessionID}, true
}
