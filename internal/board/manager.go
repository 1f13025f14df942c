package board

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// ErrSessionClosed is returned when a session was closed while it was
// still being opened
var ErrSessionClosed = errors.New("session closed while opening")

// Manager keeps at most one open session per principal.
type Manager struct {
	deps  Deps
	opts  Options
	group singleflight.Group

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	opening  map[uuid.UUID]*openTicket
}

// openTicket marks an open in flight; Close cancels it
type openTicket struct {
	cancelled bool
}

// NewManager creates a manager with no open sessions
func NewManager(deps Deps, opts Options) *Manager {
	return &Manager{
		deps:     deps,
		opts:     opts,
		sessions: make(map[uuid.UUID]*Session),
		opening:  make(map[uuid.UUID]*openTicket),
	}
}

// Session returns the principal's session, opening it on first use.
// Concurrent first calls share a single open.
func (m *Manager) Session(ctx context.Context, principal uuid.UUID) (*Session, error) {
	if s := m.lookup(principal); s != nil {
		return s, nil
	}

	v, err, _ := m.group.Do(principal.String(), func() (any, error) {
		ticket := &openTicket{}
		m.mu.Lock()
		if s := m.sessions[principal]; s != nil {
			m.mu.Unlock()
			return s, nil
		}
		m.opening[principal] = ticket
		m.mu.Unlock()

		s, err := Open(ctx, m.deps, principal, m.opts)

		m.mu.Lock()
		delete(m.opening, principal)
		if err != nil {
			m.mu.Unlock()
			return nil, err
		}
		if ticket.cancelled {
			m.mu.Unlock()
			s.Close()
			log.Printf("[board] discarded session for %s closed while opening", principal)
			return nil, ErrSessionClosed
		}
		m.sessions[principal] = s
		m.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Close discards the principal's session, including one still being opened.
// Returns false if none was open yet.
func (m *Manager) Close(principal uuid.UUID) bool {
	m.mu.Lock()
	if t := m.opening[principal]; t != nil {
		t.cancelled = true
	}
	s, ok := m.sessions[principal]
	delete(m.sessions, principal)
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.Close()
	log.Printf("[board] closed session for %s", principal)
	return true
}

// CloseAll discards every session and every open in flight
func (m *Manager) CloseAll() {
	m.mu.Lock()
	for _, t := range m.opening {
		t.cancelled = true
	}
	sessions := m.sessions
	m.sessions = make(map[uuid.UUID]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// Len returns the number of open sessions
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) lookup(principal uuid.UUID) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[principal]
}
