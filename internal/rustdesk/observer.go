package rustdesk

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/e7d/rustdesk-indicator/internal/logging"
)

// DefaultPollInterval is the delay between the end of one cycle and the start of the next.
const DefaultPollInterval = time.Second

var pollLog = logging.ForComponent(logging.CompPoll)

// SnapshotBuilder produces one snapshot per cycle. *Builder implements it.
type SnapshotBuilder interface {
	Build(ctx context.Context) Snapshot
}

// Observer runs observation cycles and fans the reconciled state out to
// subscribers. Cycles never overlap: Poll is serialized and Run re-arms its
// timer only after a cycle completes.
type Observer struct {
	builder    SnapshotBuilder
	interval   time.Duration
	reconciler *Reconciler
	now        func() time.Time

	pollMu sync.Mutex
	cycle  uint64

	stateMu sync.RWMutex
	state   State

	subscribersMu sync.Mutex
	subscribers   map[chan State]struct{}
}

// NewObserver creates an observer. A non-positive interval uses DefaultPollInterval.
func NewObserver(builder SnapshotBuilder, interval time.Duration) *Observer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Observer{
		builder:     builder,
		interval:    interval,
		reconciler:  NewReconciler(),
		now:         time.Now,
		state:       NewState(),
		subscribers: make(map[chan State]struct{}),
	}
}

// Interval returns the configured delay between cycles.
func (o *Observer) Interval() time.Duration {
	return o.interval
}

// Poll runs one full cycle: build, reconcile, publish. The returned State is a
// copy owned by the caller.
func (o *Observer) Poll(ctx context.Context) State {
	o.pollMu.Lock()
	defer o.pollMu.Unlock()

	snap := o.builder.Build(ctx)
	st := o.reconciler.Apply(snap)
	o.cycle++
	st.Cycle = o.cycle
	st.ObservedAt = o.now()

	o.stateMu.Lock()
	o.state = st.Clone()
	o.stateMu.Unlock()

	if st.PendingChanges {
		pollLog.Info("cycle_changed",
			slog.Uint64("cycle", st.Cycle),
			slog.Bool("service", st.Changes.Service),
			slog.Bool("main", st.Changes.Main),
			slog.Bool("connection_manager", st.Changes.ConnectionManager),
			slog.Bool("sessions", st.Changes.Sessions),
			slog.Int("live_sessions", len(st.LiveSessions())))
	}

	o.publish(st)
	return st
}

// Run polls until ctx is cancelled. The first cycle runs immediately.
// An in-flight cycle is allowed to finish.
func (o *Observer) Run(ctx context.Context) error {
	pollLog.Debug("observer_started", slog.Duration("interval", o.interval))
	defer pollLog.Debug("observer_stopped")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			o.Poll(ctx)
			timer.Reset(o.interval)
		}
	}
}

// State returns a copy of the most recent cycle's state.
func (o *Observer) State() State {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.state.Clone()
}

// Subscribe registers for per-cycle state delivery. The channel holds at most
// one state; when the consumer falls behind, the queued state is replaced by
// the newer one with both cycles' changes merged, so no change is lost.
// cancel unregisters and closes the channel.
func (o *Observer) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	o.subscribersMu.Lock()
	o.subscribers[ch] = struct{}{}
	o.subscribersMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			o.subscribersMu.Lock()
			if _, ok := o.subscribers[ch]; ok {
				delete(o.subscribers, ch)
				close(ch)
			}
			o.subscribersMu.Unlock()
		})
	}
	return ch, cancel
}

func (o *Observer) publish(st State) {
	o.subscribersMu.Lock()
	defer o.subscribersMu.Unlock()

	for ch := range o.subscribers {
		next := st.Clone()
		select {
		case ch <- next:
			continue
		default:
		}

		select {
		case stale := <-ch:
			next.Changes = next.Changes.Merge(stale.Changes)
			next.PendingChanges = next.PendingChanges || stale.PendingChanges
		default:
		}
		select {
		case ch <- next:
		default:
		}
	}
}
