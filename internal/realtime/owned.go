package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// OwnedSet is the set of parent identifiers a transitive filter matches
// against, e.g. the jobs a hiring user created. It is updated from the
// parent collection's change stream so the child filter does not go stale.
type OwnedSet struct {
	mu  sync.RWMutex
	ids map[uuid.UUID]struct{}
}

// NewOwnedSet creates a set holding ids
func NewOwnedSet(ids ...uuid.UUID) *OwnedSet {
	s := &OwnedSet{ids: make(map[uuid.UUID]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// Contains reports whether id is owned
func (s *OwnedSet) Contains(id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

// Add marks id as owned
func (s *OwnedSet) Add(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
}

// Remove drops id
func (s *OwnedSet) Remove(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}

// Replace swaps the whole set, used after a full refresh
func (s *OwnedSet) Replace(ids []uuid.UUID) {
	next := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = next
}

// Len returns the number of owned ids
func (s *OwnedSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// IDs returns the owned ids in no particular order
func (s *OwnedSet) IDs() []uuid.UUID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	return ids
}
