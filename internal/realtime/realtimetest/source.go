// Package realtimetest provides an in-memory change source for tests.
package realtimetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/jonathan/hiring-board/internal/realtime"
)

// ErrDisconnected is returned by streams cut with Disconnect
var ErrDisconnected = errors.New("disconnected")

// Source fans published changes out to every open stream of the table.
type Source struct {
	mu      sync.Mutex
	streams map[string][]*stream
	opened  int
}

// NewSource creates an empty source
func NewSource() *Source {
	return &Source{streams: make(map[string][]*stream)}
}

// Subscribe opens a stream for table
func (s *Source) Subscribe(_ context.Context, table string) (realtime.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &stream{
		src:     s,
		table:   table,
		changes: make(chan *realtime.Change, 256),
		cut:     make(chan struct{}),
	}
	s.streams[table] = append(s.streams[table], st)
	s.opened++
	return st, nil
}

// Publish delivers ch to every open stream of its table
func (s *Source) Publish(ch *realtime.Change) {
	s.mu.Lock()
	streams := append([]*stream(nil), s.streams[ch.Table]...)
	s.mu.Unlock()
	for _, st := range streams {
		st.changes <- ch
	}
}

// Insert publishes an INSERT of rec
func (s *Source) Insert(table string, id uuid.UUID, rec any) {
	s.Publish(Row(realtime.OpInsert, table, id, rec))
}

// Update publishes an UPDATE of rec
func (s *Source) Update(table string, id uuid.UUID, rec any) {
	s.Publish(Row(realtime.OpUpdate, table, id, rec))
}

// Delete publishes a DELETE of id
func (s *Source) Delete(table string, id uuid.UUID) {
	s.Publish(&realtime.Change{Op: realtime.OpDelete, Table: table, ID: id, Old: &realtime.OldRecord{ID: id}})
}

// Disconnect fails every open stream of table
func (s *Source) Disconnect(table string) {
	s.mu.Lock()
	streams := s.streams[table]
	delete(s.streams, table)
	s.mu.Unlock()
	for _, st := range streams {
		st.once.Do(func() { close(st.cut) })
	}
}

// Open returns the number of open streams for table
func (s *Source) Open(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams[table])
}

// Opened returns how many streams have ever been opened
func (s *Source) Opened() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

func (s *Source) remove(st *stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.streams[st.table]
	for i, other := range list {
		if other == st {
			s.streams[st.table] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// Row builds a change carrying rec as the new row
func Row(op, table string, id uuid.UUID, rec any) *realtime.Change {
	raw, err := json.Marshal(rec)
	if err != nil {
		panic(err)
	}
	return &realtime.Change{Op: op, Table: table, ID: id, New: raw}
}

type stream struct {
	src     *Source
	table   string
	changes chan *realtime.Change
	cut     chan struct{}
	once    sync.Once
}

func (st *stream) Next(ctx context.Context) (*realtime.Change, error) {
	select {
	case ch := <-st.changes:
		return ch, nil
	case <-st.cut:
		return nil, ErrDisconnected
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (st *stream) Close() error {
	st.src.remove(st)
	st.once.Do(func() { close(st.cut) })
	return nil
}
