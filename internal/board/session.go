// Package board keeps one principal's jobs and applications synchronized
// with the store and derives the hiring dashboard from them.
package board

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/hiring-board/internal/enrich"
	"github.com/jonathan/hiring-board/internal/realtime"
	"github.com/jonathan/hiring-board/internal/types"
	"github.com/jonathan/hiring-board/internal/views"
)

// Table names published on the change stream
const (
	JobsTable         = "jobs"
	ApplicationsTable = "applications"
)

// DefaultJobLimit bounds the jobs snapshot
const DefaultJobLimit = 10

// Store is the read side of the database used by a session
type Store interface {
	enrich.Lookup
	ListJobsByCreator(ctx context.Context, userID uuid.UUID, limit int) ([]types.Job, error)
	ListJobIDsByCreator(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	ListApplicationsForCreator(ctx context.Context, userID uuid.UUID) ([]types.Application, []uuid.UUID, error)
	GetJobByID(ctx context.Context, id uuid.UUID) (*types.Job, error)
	GetApplicationByID(ctx context.Context, id uuid.UUID) (*types.Application, error)
}

// Deps are the collaborators shared by every session
type Deps struct {
	Store  Store
	Source realtime.Source
}

// Options tune a session
type Options struct {
	JobLimit        int
	CacheSize       int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (o Options) withDefaults() Options {
	if o.JobLimit <= 0 {
		o.JobLimit = DefaultJobLimit
	}
	if o.CacheSize == 0 {
		o.CacheSize = enrich.DefaultCacheSize
	}
	return o
}

// Session is one principal's live view of their jobs and the applications
// to them.
type Session struct {
	principal uuid.UUID
	store     Store
	source    realtime.Source
	opts      Options

	resolver *enrich.Resolver
	scope    *jobScope
	jobs     *realtime.Reconciler[types.Job, types.Job]
	apps     *realtime.Reconciler[types.Application, types.EnrichedApplication]

	ctx    context.Context
	cancel context.CancelFunc

	jobsMu sync.Mutex // serializes job snapshot reads
	appsMu sync.Mutex // serializes application snapshot reads

	errMu     sync.RWMutex
	jobsErr   error
	appsErr   error
	closeOnce sync.Once

	livesMu sync.Mutex
	lives   map[*views.Live]struct{}
	closed  bool
}

// Open loads the principal's snapshot and starts following changes. It fails
// with a *realtime.UpstreamError if the snapshot cannot be read.
func Open(ctx context.Context, deps Deps, principal uuid.UUID, opts Options) (*Session, error) {
	opts = opts.withDefaults()
	s := &Session{
		principal: principal,
		store:     deps.Store,
		source:    deps.Source,
		opts:      opts,
		resolver:  enrich.NewResolver(deps.Store, &enrich.Config{CacheSize: opts.CacheSize}),
		lives:     make(map[*views.Live]struct{}),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.scope = newJobScope(principal, deps.Store.GetJobByID)
	s.jobs = realtime.NewReconciler[types.Job, types.Job](JobsTable, realtime.Identity[types.Job]())
	s.apps = realtime.NewReconciler[types.Application, types.EnrichedApplication](ApplicationsTable, s.resolver)

	ids, err := deps.Store.ListJobIDsByCreator(ctx, principal)
	if err != nil {
		s.cancel()
		return nil, &realtime.UpstreamError{Op: "list owned jobs", Err: err}
	}
	s.scope.owned.Replace(ids)

	// subscribe before reading the snapshot so nothing committed in between is missed
	s.subscribe()

	if err := s.Refresh(ctx); err != nil {
		s.Close()
		return nil, err
	}
	log.Printf("[board] opened session for %s: %d jobs, %d applications", principal, s.jobs.Len(), s.apps.Len())
	return s, nil
}

func (s *Session) subscribe() {
	jobSub := realtime.NewSubscription(realtime.SubscriptionConfig[types.Job]{
		Table:   JobsTable,
		Source:  s.source,
		Deliver: s.deliverJob,
		Filter:  func(j types.Job) bool { return j.CreatedBy == s.principal },
		Hydrate: func(ctx context.Context, id uuid.UUID) (types.Job, bool, error) {
			return hydrate(s.store.GetJobByID(ctx, id))
		},
		OnReconnect:     s.reconnected(s.refreshJobs),
		InitialInterval: s.opts.InitialInterval,
		MaxInterval:     s.opts.MaxInterval,
	})
	appSub := realtime.NewSubscription(realtime.SubscriptionConfig[types.Application]{
		Table:   ApplicationsTable,
		Source:  s.source,
		Deliver: s.deliverApplication,
		Filter:  func(a types.Application) bool { return s.scope.allows(s.ctx, a) },
		Hydrate: func(ctx context.Context, id uuid.UUID) (types.Application, bool, error) {
			return hydrate(s.store.GetApplicationByID(ctx, id))
		},
		OnReconnect:     s.reconnected(s.refreshApplications),
		InitialInterval: s.opts.InitialInterval,
		MaxInterval:     s.opts.MaxInterval,
	})

	s.jobs.Attach(jobSub)
	s.apps.Attach(appSub)
	jobSub.Start(s.ctx)
	appSub.Start(s.ctx)
}

func (s *Session) deliverJob(ev realtime.Event[types.Job]) {
	id := ev.Key()
	switch ev.Kind {
	case realtime.Created:
		s.scope.owned.Add(id)
	case realtime.Updated:
		s.scope.owned.Add(id)
		s.resolver.ForgetJob(id)
	case realtime.Deleted:
		s.scope.owned.Remove(id)
		s.resolver.ForgetJob(id)
	}
	s.jobs.Submit(ev)

	if ev.Kind == realtime.Updated {
		// applications embed the job title and company, including ones
		// whose enrichment read the job before this edit
		s.apps.ReenrichWhere(func(app types.Application) bool { return app.JobID == id })
	}
}

func (s *Session) deliverApplication(ev realtime.Event[types.Application]) {
	if ev.Kind == realtime.Created && ev.Record.CandidateID != nil {
		// a new application is the cue to pick up profile edits
		s.resolver.ForgetCandidate(*ev.Record.CandidateID)
	}
	s.apps.Submit(ev)
}

func (s *Session) reconnected(refresh func(context.Context) error) func(context.Context) {
	return func(ctx context.Context) {
		if err := refresh(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[board] refresh after reconnect failed: %v", err)
		}
	}
}

// Refresh re-reads both snapshots and reseeds the collections. Changes that
// arrive while the snapshots are read are kept. On failure the collections
// keep their last good state and the error is reported by LastError.
func (s *Session) Refresh(ctx context.Context) error {
	s.resolver.Purge()

	var g errgroup.Group
	g.Go(func() error { return s.refreshJobs(ctx) })
	g.Go(func() error { return s.refreshApplications(ctx) })
	return g.Wait()
}

func (s *Session) refreshJobs(ctx context.Context) error {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	mark := s.jobs.Version()
	jobs, err := s.store.ListJobsByCreator(ctx, s.principal, s.opts.JobLimit)
	if err == nil {
		err = s.jobs.SeedSince(ctx, jobs, mark)
	}
	if err != nil {
		err = &realtime.UpstreamError{Op: "fetch jobs", Err: err}
	}
	s.setError(&s.jobsErr, err)
	return err
}

func (s *Session) refreshApplications(ctx context.Context) error {
	s.appsMu.Lock()
	defer s.appsMu.Unlock()

	mark := s.apps.Version()
	apps, jobIDs, err := s.store.ListApplicationsForCreator(ctx, s.principal)
	if err == nil {
		for _, id := range jobIDs {
			s.scope.owned.Add(id)
		}
		err = s.apps.SeedSince(ctx, apps, mark)
	}
	if err != nil {
		err = &realtime.UpstreamError{Op: "fetch applications", Err: err}
	}
	s.setError(&s.appsErr, err)
	return err
}

func (s *Session) setError(slot *error, err error) {
	s.errMu.Lock()
	*slot = err
	s.errMu.Unlock()
	if err != nil {
		log.Printf("[board] %v", err)
	}
}

// LastError returns the error of the most recent failed snapshot read, or
// nil once later reads succeeded
func (s *Session) LastError() error {
	s.errMu.RLock()
	defer s.errMu.RUnlock()
	return errors.Join(s.jobsErr, s.appsErr)
}

// Close stops following changes, discards both collections and closes every
// view handed out by Watch.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.livesMu.Lock()
		s.closed = true
		lives := s.lives
		s.lives = nil
		s.livesMu.Unlock()
		for l := range lives {
			l.Close()
		}

		s.cancel()
		s.jobs.Reset()
		s.apps.Reset()
	})
}

// Principal returns the user the session belongs to
func (s *Session) Principal() uuid.UUID {
	return s.principal
}

// Jobs returns the principal's newest jobs
func (s *Session) Jobs() []types.Job {
	return s.jobs.Snapshot()
}

// Applications returns every application to the principal's jobs, newest first
func (s *Session) Applications() []types.EnrichedApplication {
	return s.apps.Snapshot()
}

// Candidates builds the grouped candidate view
func (s *Session) Candidates(filter views.Filter) views.CandidatesView {
	return views.Build(s.apps.Snapshot(), filter)
}

// JobStats counts the principal's jobs per status
func (s *Session) JobStats() views.JobCounts {
	return views.JobStats(s.jobs.Snapshot())
}

// Watch returns a candidate view that follows the applications collection.
// The caller must Close it; closing the session closes it too, and a view
// watched on a closed session is returned already closed.
func (s *Session) Watch(filter views.Filter) *views.Live {
	l := views.NewLive(s.apps, filter)

	s.livesMu.Lock()
	defer s.livesMu.Unlock()
	if s.closed {
		l.Close()
		return l
	}
	for prev := range s.lives {
		select {
		case <-prev.Done():
			delete(s.lives, prev)
		default:
		}
	}
	s.lives[l] = struct{}{}
	return l
}

// Settle waits until every queued change has been applied
func (s *Session) Settle() {
	s.jobs.Wait()
	s.apps.Wait()
}

func hydrate[R any](rec *R, err error) (R, bool, error) {
	var zero R
	if err != nil {
		return zero, false, err
	}
	if rec == nil {
		return zero, false, nil
	}
	return *rec, true, nil
}

// IsUpstream reports whether err came from a failed snapshot read
func IsUpstream(err error) bool {
	var ue *realtime.UpstreamError
	return errors.As(err, &ue)
}
