package realtime

import (
	"fmt"

	"github.com/google/uuid"
)

// UpstreamError indicates a snapshot query failed. The collection is left
// at its last known good state.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// EnrichmentError indicates a reference lookup failed. It is logged and the
// reference is left empty.
type EnrichmentError struct {
	Ref string
	ID  uuid.UUID
	Err error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("failed to resolve %s %s: %v", e.Ref, e.ID, e.Err)
}

func (e *EnrichmentError) Unwrap() error {
	return e.Err
}

// SubscriptionError indicates the change stream for a table dropped. The
// subscription resubscribes with the same filter.
type SubscriptionError struct {
	Table string
	Err   error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription to %s lost: %v", e.Table, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// StaleFilterWarning indicates a change was rejected because the filter's
// parent set did not know its parent yet.
type StaleFilterWarning struct {
	Table    string
	ID       uuid.UUID
	ParentID uuid.UUID
}

func (e *StaleFilterWarning) Error() string {
	return fmt.Sprintf("%s %s references unknown parent %s (filter may be stale)", e.Table, e.ID, e.ParentID)
}
