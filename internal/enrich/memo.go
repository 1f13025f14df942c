package enrich

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// memo is a bounded cache of lookups keyed by id. Entries are evicted in
// insertion order once size is reached. Not-found results are not cached.
type memo[V any] struct {
	size  int
	group singleflight.Group

	mu      sync.Mutex
	entries map[uuid.UUID]*V
	order   []uuid.UUID
	gen     map[uuid.UUID]uint64
	epoch   uint64
	hits    uint64
	misses  uint64
}

func newMemo[V any](size int) *memo[V] {
	return &memo[V]{
		size:    size,
		entries: make(map[uuid.UUID]*V, size),
		gen:     make(map[uuid.UUID]uint64),
	}
}

// get returns the cached value for id or calls fetch once for all concurrent callers
func (m *memo[V]) get(ctx context.Context, id uuid.UUID, fetch func(context.Context, uuid.UUID) (*V, error)) (*V, error) {
	m.mu.Lock()
	if v, ok := m.entries[id]; ok {
		m.hits++
		m.mu.Unlock()
		return v, nil
	}
	m.misses++
	gen, epoch := m.gen[id], m.epoch
	m.mu.Unlock()

	res, err, _ := m.group.Do(id.String(), func() (any, error) {
		v, err := fetch(ctx, id)
		if err != nil || v == nil {
			return v, err
		}
		m.store(id, v, gen, epoch)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*V), nil
}

func (m *memo[V]) store(id uuid.UUID, v *V, gen, epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.size <= 0 || m.gen[id] != gen || m.epoch != epoch {
		// invalidated while the lookup was in flight
		return
	}
	if _, ok := m.entries[id]; !ok {
		m.order = append(m.order, id)
	}
	m.entries[id] = v
	for len(m.order) > m.size {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.entries, oldest)
	}
}

// forget drops id and makes any lookup already in flight for it uncacheable
func (m *memo[V]) forget(id uuid.UUID) {
	m.group.Forget(id.String())
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen[id]++
	if _, ok := m.entries[id]; !ok {
		return
	}
	delete(m.entries, id)
	for i, k := range m.order {
		if k == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// purge drops every entry
func (m *memo[V]) purge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		m.group.Forget(id.String())
	}
	m.epoch++
	clear(m.entries)
	clear(m.gen)
	m.order = nil
}

func (m *memo[V]) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *memo[V]) stats() (hits, misses uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits, m.misses
}
