// Package realtime keeps in-memory collections in sync with a table through a
// snapshot followed by a stream of change events.
//
// A Reconciler owns one ordered collection. Snapshots go in through Seed,
// changes through Submit/Apply, and Reset tears the session down. Events for
// the same identifier are applied in arrival order; events for different
// identifiers may complete in any order.
package realtime

import (
	"github.com/google/uuid"
)

// Keyed is implemented by every synchronized record.
type Keyed interface {
	Key() uuid.UUID
}

// Kind is the type of a change event
type Kind int

const (
	// Created is emitted for inserted rows
	Created Kind = iota + 1
	// Updated is emitted for updated rows
	Updated
	// Deleted is emitted for deleted rows; only the identifier is known
	Deleted
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Event is a normalized change notification for one record.
type Event[R Keyed] struct {
	Kind   Kind
	Record R
	ID     uuid.UUID
}

// Key returns the identifier the event applies to
func (e Event[R]) Key() uuid.UUID {
	if e.Kind == Deleted {
		return e.ID
	}
	return e.Record.Key()
}

// CreatedEvent builds a Created event
func CreatedEvent[R Keyed](rec R) Event[R] {
	return Event[R]{Kind: Created, Record: rec, ID: rec.Key()}
}

// UpdatedEvent builds an Updated event
func UpdatedEvent[R Keyed](rec R) Event[R] {
	return Event[R]{Kind: Updated, Record: rec, ID: rec.Key()}
}

// DeletedEvent builds a Deleted event
func DeletedEvent[R Keyed](id uuid.UUID) Event[R] {
	return Event[R]{Kind: Deleted, ID: id}
}
