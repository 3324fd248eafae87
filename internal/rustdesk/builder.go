package rustdesk

import (
	"context"
	"errors"
	"log/slog"

	"github.com/e7d/rustdesk-indicator/internal/logging"
	"github.com/e7d/rustdesk-indicator/internal/process"
)

var (
	processLog = logging.ForComponent(logging.CompProcess)
	windowLog  = logging.ForComponent(logging.CompWindow)
)

// ProcessLister returns the raw process-listing lines for the RustDesk binary.
type ProcessLister interface {
	List(ctx context.Context) ([]string, error)
}

// WindowResolver maps processes to windows. An empty result with a nil error
// means "no window", which is normal while a process is starting.
type WindowResolver interface {
	FindWindow(ctx context.Context, pid int) (string, error)
	WindowState(ctx context.Context, windowID string) (string, error)
}

// Builder assembles one Snapshot per call from the process table.
type Builder struct {
	lister     ProcessLister
	windows    WindowResolver
	classifier *Classifier
}

// NewBuilder creates a Builder. windows may be nil when no display is
// available; every role is then reported without a window.
func NewBuilder(lister ProcessLister, windows WindowResolver, classifier *Classifier) *Builder {
	if classifier == nil {
		classifier = NewClassifier(DefaultBinary)
	}
	return &Builder{lister: lister, windows: windows, classifier: classifier}
}

// Build lists processes once, classifies every line and resolves windows for
// each match. It never fails: a listing failure yields an empty snapshot and a
// window lookup failure leaves that role without a window.
func (b *Builder) Build(ctx context.Context) Snapshot {
	snap := NewSnapshot()

	lines, err := b.lister.List(ctx)
	if err != nil {
		if errors.Is(err, process.ErrNoProcesses) {
			processLog.Debug("no_processes")
		} else {
			processLog.Warn("process_list_failed", slog.String("error", err.Error()))
			logging.Aggregate(logging.CompProcess, "process_list_failed")
		}
		return snap
	}

	for _, line := range lines {
		for _, m := range b.classifier.Classify(line) {
			b.fold(&snap, m, b.resolve(ctx, m))
		}
	}
	return snap
}

func (b *Builder) resolve(ctx context.Context, m Match) *RoleEntry {
	entry := &RoleEntry{PID: m.PID}
	if b.windows == nil || !m.Role.Windowed() {
		return entry
	}

	windowID, err := b.windows.FindWindow(ctx, m.PID)
	if err != nil {
		windowLog.Debug("find_window_failed",
			slog.Int("pid", m.PID),
			slog.String("role", string(m.Role)),
			slog.String("error", err.Error()))
		logging.Aggregate(logging.CompWindow, "find_window_failed", slog.String("error", err.Error()))
		return entry
	}
	if windowID == "" {
		return entry
	}
	entry.WindowID = windowID

	state, err := b.windows.WindowState(ctx, windowID)
	if err != nil {
		windowLog.Debug("window_state_failed",
			slog.String("window", windowID),
			slog.String("error", err.Error()))
		logging.Aggregate(logging.CompWindow, "window_state_failed", slog.String("error", err.Error()))
		return entry
	}
	entry.State = state
	return entry
}

// fold stores one resolved match. Session roles reported on separate lines
// merge into the same Session.
func (b *Builder) fold(snap *Snapshot, m Match, entry *RoleEntry) {
	switch m.Role {
	case RoleService:
		snap.Service = entry
	case RoleMain:
		snap.Main = entry
	case RoleConnectionManager:
		snap.ConnectionManager = entry
	default:
		sess, ok := snap.Sessions[m.SessionID]
		if !ok {
			sess = &Session{ID: m.SessionID}
			snap.Sessions[m.SessionID] = sess
		}
		sess.SetRole(m.Role, entry)
	}
}
