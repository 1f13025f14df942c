package views

import (
	"sync"

	"github.com/jonathan/hiring-board/internal/types"
)

// Source is a collection that reports its changes
type Source interface {
	Snapshot() []types.EnrichedApplication
	OnChange(fn func([]types.EnrichedApplication)) (cancel func())
}

// Live keeps a candidates view current with its source collection.
type Live struct {
	mu       sync.Mutex
	apps     []types.EnrichedApplication
	filter   Filter
	view     CandidatesView
	closed   bool
	notified bool // the source delivered a state after registration
	updates  chan CandidatesView
	done     chan struct{}
	stop     func()
}

// NewLive builds the initial view from src and rebuilds it on every change.
func NewLive(src Source, filter Filter) *Live {
	l := &Live{
		filter:  filter,
		updates: make(chan CandidatesView, 1),
		done:    make(chan struct{}),
	}
	// register before reading so a change committed in between is delivered.
	// Once a change arrived the snapshot may be older than it and is dropped.
	l.stop = src.OnChange(l.onChange)
	apps := src.Snapshot()

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.notified {
		l.apps = apps
		l.view = Build(apps, filter)
	}
	return l
}

// View returns the most recently built view
func (l *Live) View() CandidatesView {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.view
}

// SetFilter rebuilds the view with a new filter
func (l *Live) SetFilter(filter Filter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.filter = filter
	l.rebuild()
}

// Updates delivers rebuilt views. Only the newest pending view is kept, so a
// slow reader skips intermediate states.
func (l *Live) Updates() <-chan CandidatesView {
	return l.updates
}

// Close detaches from the source and closes the updates channel
func (l *Live) Close() {
	// unregister before taking mu; the source may be delivering under its own lock
	l.stop()

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.updates)
	close(l.done)
}

// Done is closed once the view is closed
func (l *Live) Done() <-chan struct{} {
	return l.done
}

func (l *Live) onChange(apps []types.EnrichedApplication) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notified = true
	l.apps = apps
	l.rebuild()
}

// rebuild recomputes the view and publishes it. Caller holds mu.
func (l *Live) rebuild() {
	if l.closed {
		return
	}
	l.view = Build(l.apps, l.filter)
	select {
	case <-l.updates:
	default:
	}
	l.updates <- l.view
}
