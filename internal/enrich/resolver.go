// Package enrich resolves an application's job and candidate references into
// embedded summaries. Resolution is best-effort: a failed or missing lookup
// leaves the summary nil and is logged.
package enrich

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/hiring-board/internal/realtime"
	"github.com/jonathan/hiring-board/internal/types"
)

// DefaultCacheSize is the number of summaries kept per reference kind
const DefaultCacheSize = 512

// errNotFound is logged when a referenced row does not exist
var errNotFound = errors.New("not found")

// Lookup performs point reads of referenced rows.
// Both methods return (nil, nil) when the row does not exist.
type Lookup interface {
	GetJobSummary(ctx context.Context, jobID uuid.UUID) (*types.JobSummary, error)
	GetCandidateSummary(ctx context.Context, candidateID uuid.UUID) (*types.CandidateSummary, error)
}

// Config holds resolver configuration.
type Config struct {
	CacheSize int
}

// Resolver enriches applications. It is safe for concurrent use.
type Resolver struct {
	lookup     Lookup
	jobs       *memo[types.JobSummary]
	candidates *memo[types.CandidateSummary]
}

// NewResolver creates a resolver backed by lookup
func NewResolver(lookup Lookup, cfg *Config) *Resolver {
	size := DefaultCacheSize
	if cfg != nil && cfg.CacheSize != 0 {
		size = cfg.CacheSize
	}
	return &Resolver{
		lookup:     lookup,
		jobs:       newMemo[types.JobSummary](size),
		candidates: newMemo[types.CandidateSummary](size),
	}
}

// Resolve looks up the application's job and candidate independently.
// It never fails; unresolved references are nil.
func (r *Resolver) Resolve(ctx context.Context, app types.Application) types.EnrichedApplication {
	out := types.EnrichedApplication{Application: app}

	var g errgroup.Group
	g.Go(func() error {
		out.Job = resolveRef(ctx, r.jobs, "job", app.JobID, r.lookup.GetJobSummary)
		return nil
	})
	if app.CandidateID != nil {
		candidateID := *app.CandidateID
		g.Go(func() error {
			out.Candidate = resolveRef(ctx, r.candidates, "candidate", candidateID, r.lookup.GetCandidateSummary)
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// Enrich implements realtime.Enricher
func (r *Resolver) Enrich(ctx context.Context, app types.Application) types.EnrichedApplication {
	return r.Resolve(ctx, app)
}

// ForgetJob drops a cached job summary, e.g. after the job was edited
func (r *Resolver) ForgetJob(jobID uuid.UUID) {
	r.jobs.forget(jobID)
}

// ForgetCandidate drops a cached candidate summary
func (r *Resolver) ForgetCandidate(candidateID uuid.UUID) {
	r.candidates.forget(candidateID)
}

// Purge drops every cached summary
func (r *Resolver) Purge() {
	r.jobs.purge()
	r.candidates.purge()
}

// CacheStats reports cache hits and misses across both reference kinds
func (r *Resolver) CacheStats() (hits, misses uint64) {
	jh, jm := r.jobs.stats()
	ch, cm := r.candidates.stats()
	return jh + ch, jm + cm
}

func resolveRef[V any](ctx context.Context, m *memo[V], ref string, id uuid.UUID, fetch func(context.Context, uuid.UUID) (*V, error)) *V {
	v, err := m.get(ctx, id, fetch)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[enrich] %v", &realtime.EnrichmentError{Ref: ref, ID: id, Err: err})
		}
		return nil
	}
	if v == nil {
		log.Printf("[enrich] %v", &realtime.EnrichmentError{Ref: ref, ID: id, Err: errNotFound})
	}
	return v
}
