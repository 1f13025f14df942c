package board

import (
	"context"
	"log"

	"github.com/google/uuid"

	"github.com/jonathan/hiring-board/internal/realtime"
	"github.com/jonathan/hiring-board/internal/types"
)

// jobScope decides which applications belong to the principal. Owned job
// ids are kept current from the jobs stream; a job id missing from the set
// is checked against the store once, so applications to a job created after
// the last refresh are not lost.
type jobScope struct {
	principal uuid.UUID
	owned     *realtime.OwnedSet
	foreign   *realtime.OwnedSet
	lookup    func(ctx context.Context, id uuid.UUID) (*types.Job, error)
}

func newJobScope(principal uuid.UUID, lookup func(context.Context, uuid.UUID) (*types.Job, error)) *jobScope {
	return &jobScope{
		principal: principal,
		owned:     realtime.NewOwnedSet(),
		foreign:   realtime.NewOwnedSet(),
		lookup:    lookup,
	}
}

// allows reports whether app is to one of the principal's jobs
func (s *jobScope) allows(ctx context.Context, app types.Application) bool {
	if s.owned.Contains(app.JobID) {
		return true
	}
	if s.foreign.Contains(app.JobID) {
		return false
	}

	job, err := s.lookup(ctx, app.JobID)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[board] %v", &realtime.EnrichmentError{Ref: "job", ID: app.JobID, Err: err})
		}
		return false
	}
	if job == nil || job.CreatedBy != s.principal {
		// created_by never changes, so this answer holds
		s.foreign.Add(app.JobID)
		return false
	}

	log.Printf("[board] %v", &realtime.StaleFilterWarning{Table: "applications", ID: app.ID, ParentID: app.JobID})
	s.owned.Add(app.JobID)
	return true
}
