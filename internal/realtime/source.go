package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Wire-level operations published by the store
const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// Change is a raw change notification as published by the store.
// Partial is set when the row was too large to ship and only ID is usable.
type Change struct {
	Op      string          `json:"op"`
	Table   string          `json:"table"`
	ID      uuid.UUID       `json:"id"`
	New     json.RawMessage `json:"new,omitempty"`
	Old     *OldRecord      `json:"old,omitempty"`
	Partial bool            `json:"partial,omitempty"`
}

// OldRecord carries the identifier of a deleted row
type OldRecord struct {
	ID uuid.UUID `json:"id"`
}

// Stream delivers changes for one table until closed
type Stream interface {
	Next(ctx context.Context) (*Change, error)
	Close() error
}

// Source opens change streams
type Source interface {
	Subscribe(ctx context.Context, table string) (Stream, error)
}

// Fetcher performs the initial bounded read of a collection, newest first.
type Fetcher[R any] interface {
	Fetch(ctx context.Context) ([]R, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc[R any] func(ctx context.Context) ([]R, error)

// Fetch calls f(ctx)
func (f FetcherFunc[R]) Fetch(ctx context.Context) ([]R, error) {
	return f(ctx)
}

// Normalize converts a raw change into an event. Partial changes for
// inserts and updates cannot be decoded and must be hydrated by the caller.
func Normalize[R Keyed](ch *Change) (Event[R], error) {
	switch ch.Op {
	case OpDelete:
		id := ch.ID
		if ch.Old != nil && ch.Old.ID != uuid.Nil {
			id = ch.Old.ID
		}
		if id == uuid.Nil {
			return Event[R]{}, fmt.Errorf("delete on %s without identifier", ch.Table)
		}
		return DeletedEvent[R](id), nil
	case OpInsert, OpUpdate:
		if ch.Partial || len(ch.New) == 0 {
			return Event[R]{}, fmt.Errorf("%s on %s carries no row", ch.Op, ch.Table)
		}
		var rec R
		if err := json.Unmarshal(ch.New, &rec); err != nil {
			return Event[R]{}, fmt.Errorf("failed to decode %s row: %w", ch.Table, err)
		}
		if ch.Op == OpInsert {
			return CreatedEvent(rec), nil
		}
		return UpdatedEvent(rec), nil
	default:
		return Event[R]{}, fmt.Errorf("unknown change op %q on %s", ch.Op, ch.Table)
	}
}
