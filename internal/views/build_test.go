package views

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/hiring-board/internal/realtime"
	"github.com/jonathan/hiring-board/internal/types"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func app(n byte, email, status string, created time.Time) types.EnrichedApplication {
	a := types.EnrichedApplication{
		Application: types.Application{
			ID:        uuid.UUID{15: n},
			JobID:     uuid.UUID{0: 1},
			Status:    status,
			CreatedAt: created,
		},
		Job: &types.JobSummary{Title: "Backend Engineer", Company: "Acme"},
	}
	if email != "" {
		a.Candidate = &types.CandidateSummary{FullName: "Name " + email, Email: email}
	}
	return a
}

func ids(apps []types.EnrichedApplication) []uuid.UUID {
	out := make([]uuid.UUID, len(apps))
	for i, a := range apps {
		out[i] = a.ID
	}
	return out
}

func TestBuild_GroupsByEmail(t *testing.T) {
	t1 := t0.Add(time.Hour)
	// newest first, as the collection keeps it
	apps := []types.EnrichedApplication{
		app(2, "a@x", types.ApplicationStatusAccepted, t1),
		app(1, "a@x", types.ApplicationStatusPending, t0),
	}

	view := Build(apps, Filter{})

	require.Len(t, view.Groups, 1)
	g := view.Groups[0]
	assert.Equal(t, "a@x", g.Email)
	assert.Equal(t, []uuid.UUID{{15: 2}, {15: 1}}, ids(g.Applications))
	assert.Equal(t, t1, g.LastActivity)
}

func TestBuild_SortsGroupsByLastActivity(t *testing.T) {
	updated := t0.Add(5 * time.Hour)
	old := app(1, "old@x", types.ApplicationStatusPending, t0)
	old.UpdatedAt = &updated

	apps := []types.EnrichedApplication{
		app(3, "b@x", types.ApplicationStatusPending, t0.Add(2*time.Hour)),
		app(2, "c@x", types.ApplicationStatusPending, t0.Add(2*time.Hour)),
		old,
	}

	view := Build(apps, Filter{})

	require.Len(t, view.Groups, 3)
	assert.Equal(t, "old@x", view.Groups[0].Email)
	assert.Equal(t, updated, view.Groups[0].LastActivity)
	// ties keep discovery order
	assert.Equal(t, "b@x", view.Groups[1].Email)
	assert.Equal(t, "c@x", view.Groups[2].Email)
}

func TestBuild_Filter(t *testing.T) {
	apps := []types.EnrichedApplication{
		app(1, "ada@x", types.ApplicationStatusPending, t0),
		app(2, "grace@x", types.ApplicationStatusAccepted, t0),
		app(3, "linus@x", types.ApplicationStatusRejected, t0),
	}
	apps[2].Job = &types.JobSummary{Title: "Kernel Hacker"}

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"empty matches all", Filter{}, []string{"ada@x", "grace@x", "linus@x"}},
		{"all status", Filter{Status: StatusAll}, []string{"ada@x", "grace@x", "linus@x"}},
		{"status", Filter{Status: types.ApplicationStatusAccepted}, []string{"grace@x"}},
		{"email substring", Filter{Query: "GRACE"}, []string{"grace@x"}},
		{"name substring", Filter{Query: "name ada"}, []string{"ada@x"}},
		{"job title", Filter{Query: "kernel"}, []string{"linus@x"}},
		{"query and status", Filter{Query: "engineer", Status: types.ApplicationStatusPending}, []string{"ada@x"}},
		{"no match", Filter{Query: "nobody"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := Build(apps, tt.filter)
			var got []string
			for _, g := range view.Groups {
				got = append(got, g.Email)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.want), view.Stats.Visible)
			assert.Equal(t, 3, view.Stats.Total, "stats ignore the filter")
		})
	}
}

func TestBuild_Stats(t *testing.T) {
	apps := []types.EnrichedApplication{
		app(1, "a@x", types.ApplicationStatusPending, t0),
		app(2, "a@x", types.ApplicationStatusInProgress, t0),
		app(3, "b@x", types.ApplicationStatusAccepted, t0),
		app(4, "", types.ApplicationStatusPending, t0),
	}
	// job lookup failed; the application still counts
	apps[3].Job = nil

	view := Build(apps, Filter{Query: "b@x"})

	assert.Equal(t, Stats{
		Total: 4,
		ByStatus: map[string]int{
			types.ApplicationStatusPending:    2,
			types.ApplicationStatusInProgress: 1,
			types.ApplicationStatusAccepted:   1,
		},
		Pending:          2,
		InProgress:       1,
		Accepted:         1,
		UniqueCandidates: 2,
		Visible:          1,
	}, view.Stats)
}

func TestBuild_Deterministic(t *testing.T) {
	apps := []types.EnrichedApplication{
		app(1, "a@x", types.ApplicationStatusPending, t0),
		app(2, "b@x", types.ApplicationStatusPending, t0),
		app(3, "a@x", types.ApplicationStatusRejected, t0),
		app(4, "c@x", types.ApplicationStatusPending, t0),
	}
	before := append([]types.EnrichedApplication(nil), apps...)

	first := Build(apps, Filter{Status: types.ApplicationStatusPending})
	second := Build(apps, Filter{Status: types.ApplicationStatusPending})

	assert.Equal(t, first, second)
	assert.Equal(t, before, apps)
}

func TestBuild_Empty(t *testing.T) {
	view := Build(nil, Filter{})
	assert.NotNil(t, view.Groups)
	assert.Empty(t, view.Groups)
	assert.Equal(t, 0, view.Stats.Total)
}

func TestJobStats(t *testing.T) {
	jobs := []types.Job{
		{Status: types.JobStatusActive},
		{Status: types.JobStatusActive},
		{Status: types.JobStatusDraft},
		{Status: types.JobStatusClosed},
	}
	assert.Equal(t, JobCounts{Total: 4, Active: 2, Draft: 1, Closed: 1}, JobStats(jobs))
}

type fakeSource struct {
	mu        sync.Mutex
	apps      []types.EnrichedApplication
	listeners map[int]func([]types.EnrichedApplication)
	next      int
}

func (f *fakeSource) Snapshot() []types.EnrichedApplication {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.apps
}

func (f *fakeSource) OnChange(fn func([]types.EnrichedApplication)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listeners == nil {
		f.listeners = make(map[int]func([]types.EnrichedApplication))
	}
	f.next++
	id := f.next
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeSource) set(apps []types.EnrichedApplication) {
	f.mu.Lock()
	f.apps = apps
	fns := make([]func([]types.EnrichedApplication), 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(apps)
	}
}

func TestLive(t *testing.T) {
	src := &fakeSource{apps: []types.EnrichedApplication{app(1, "a@x", types.ApplicationStatusPending, t0)}}
	live := NewLive(src, Filter{})
	assert.Len(t, live.View().Groups, 1)

	src.set([]types.EnrichedApplication{
		app(2, "b@x", types.ApplicationStatusAccepted, t0.Add(time.Hour)),
		app(1, "a@x", types.ApplicationStatusPending, t0),
	})
	view := <-live.Updates()
	require.Len(t, view.Groups, 2)
	assert.Equal(t, "b@x", view.Groups[0].Email)

	live.SetFilter(Filter{Status: types.ApplicationStatusPending})
	view = <-live.Updates()
	require.Len(t, view.Groups, 1)
	assert.Equal(t, "a@x", view.Groups[0].Email)
	assert.Equal(t, 2, view.Stats.Total)

	live.Close()
	live.Close()
	_, ok := <-live.Updates()
	assert.False(t, ok)
	assert.Empty(t, src.listeners)
}

func TestLive_KeepsNewestPendingView(t *testing.T) {
	src := &fakeSource{}
	live := NewLive(src, Filter{})
	defer live.Close()

	src.set([]types.EnrichedApplication{app(1, "a@x", types.ApplicationStatusPending, t0)})
	src.set([]types.EnrichedApplication{
		app(2, "b@x", types.ApplicationStatusPending, t0),
		app(1, "a@x", types.ApplicationStatusPending, t0),
	})

	view := <-live.Updates()
	assert.Equal(t, 2, view.Stats.Total)
	select {
	case <-live.Updates():
		t.Fatal("stale view was not dropped")
	default:
	}
}

func newCollection() *realtime.Reconciler[types.Application, types.EnrichedApplication] {
	enrich := realtime.EnricherFunc[types.Application, types.EnrichedApplication](
		func(_ context.Context, a types.Application) types.EnrichedApplication {
			return types.EnrichedApplication{
				Application: a,
				Candidate:   &types.CandidateSummary{FullName: "Ada", Email: "a@x"},
			}
		})
	return realtime.NewReconciler[types.Application, types.EnrichedApplication]("applications", enrich)
}

func TestBuild_FromCollectionAfterCreate(t *testing.T) {
	ctx := context.Background()
	t1 := t0.Add(time.Hour)
	first := app(1, "a@x", types.ApplicationStatusPending, t0).Application
	second := app(2, "a@x", types.ApplicationStatusPending, t1).Application

	apps := newCollection()
	require.NoError(t, apps.Seed(ctx, []types.Application{first}))
	require.NoError(t, apps.Apply(ctx, realtime.CreatedEvent(second)))

	view := Build(apps.Snapshot(), Filter{})

	require.Len(t, view.Groups, 1)
	g := view.Groups[0]
	assert.Equal(t, []uuid.UUID{{15: 2}, {15: 1}}, ids(g.Applications))
	assert.Equal(t, t1, g.LastActivity)
	assert.Equal(t, 2, view.Stats.Total)
}

// racingSource commits a change right after each snapshot is copied
type racingSource struct {
	*realtime.Reconciler[types.Application, types.EnrichedApplication]
	once   sync.Once
	change types.Application
}

func (r *racingSource) Snapshot() []types.EnrichedApplication {
	snap := r.Reconciler.Snapshot()
	r.once.Do(func() {
		_ = r.Apply(context.Background(), realtime.CreatedEvent(r.change))
	})
	return snap
}

func TestLive_ChangeBetweenSnapshotAndRegistration(t *testing.T) {
	src := &racingSource{
		Reconciler: newCollection(),
		change:     app(1, "a@x", types.ApplicationStatusPending, t0).Application,
	}

	live := NewLive(src, Filter{})
	defer live.Close()

	require.Equal(t, 1, src.Len())
	view := live.View()
	require.Len(t, view.Groups, 1)
	assert.Equal(t, 1, view.Stats.Total)
}
