package server

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/hiring-board/internal/board"
	"github.com/jonathan/hiring-board/internal/realtime/realtimetest"
	"github.com/jonathan/hiring-board/internal/types"
)

// memStore is an in-memory database that publishes every write to src,
// standing in for the table triggers.
type memStore struct {
	mu         sync.Mutex
	src        *realtimetest.Source
	jobs       map[uuid.UUID]types.Job
	apps       map[uuid.UUID]types.Application
	candidates map[uuid.UUID]types.CandidateSummary
	pingErr    error
	readErr    error
	clock      time.Time
}

var (
	_ Store       = (*memStore)(nil)
	_ board.Store = (*memStore)(nil)
)

func newMemStore(src *realtimetest.Source) *memStore {
	return &memStore{
		src:        src,
		jobs:       make(map[uuid.UUID]types.Job),
		apps:       make(map[uuid.UUID]types.Application),
		candidates: make(map[uuid.UUID]types.CandidateSummary),
		clock:      time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (m *memStore) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

func (m *memStore) setReadErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

func (m *memStore) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingErr
}

func (m *memStore) CreateJob(_ context.Context, userID uuid.UUID, req *types.CreateJobRequest) (*types.Job, error) {
	m.mu.Lock()
	status := req.Status
	if status == "" {
		status = types.JobStatusActive
	}
	job := types.Job{
		ID:          uuid.New(),
		Title:       req.Title,
		Company:     "Acme",
		Location:    req.Location,
		WorkType:    req.WorkType,
		Description: req.Description,
		Status:      status,
		CreatedBy:   userID,
		CreatedAt:   m.tick(),
	}
	m.jobs[job.ID] = job
	m.mu.Unlock()

	m.src.Insert(board.JobsTable, job.ID, job)
	return &job, nil
}

func (m *memStore) UpdateJob(_ context.Context, id, userID uuid.UUID, req *types.UpdateJobRequest) (*types.Job, error) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok || job.CreatedBy != userID {
		m.mu.Unlock()
		return nil, nil
	}
	if req.Title != nil {
		job.Title = *req.Title
	}
	if req.Status != nil {
		job.Status = *req.Status
	}
	now := m.tick()
	job.UpdatedAt = &now
	m.jobs[id] = job
	m.mu.Unlock()

	m.src.Update(board.JobsTable, id, job)
	return &job, nil
}

func (m *memStore) DeleteJob(_ context.Context, id, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	job, ok := m.jobs[id]
	if !ok || job.CreatedBy != userID {
		m.mu.Unlock()
		return false, nil
	}
	delete(m.jobs, id)
	var cascaded []uuid.UUID
	for appID, a := range m.apps {
		if a.JobID == id {
			delete(m.apps, appID)
			cascaded = append(cascaded, appID)
		}
	}
	m.mu.Unlock()

	for _, appID := range cascaded {
		m.src.Delete(board.ApplicationsTable, appID)
	}
	m.src.Delete(board.JobsTable, id)
	return true, nil
}

func (m *memStore) CreateApplication(_ context.Context, jobID, candidateID uuid.UUID, req *types.CreateApplicationRequest) (*types.Application, error) {
	m.mu.Lock()
	if _, ok := m.jobs[jobID]; !ok {
		m.mu.Unlock()
		return nil, nil
	}
	app := types.Application{
		ID:          uuid.New(),
		JobID:       jobID,
		CandidateID: &candidateID,
		Status:      types.ApplicationStatusPending,
		CreatedAt:   m.tick(),
	}
	if req.CoverLetter != "" {
		app.CoverLetter = &req.CoverLetter
	}
	m.apps[app.ID] = app
	m.mu.Unlock()

	m.src.Insert(board.ApplicationsTable, app.ID, app)
	return &app, nil
}

func (m *memStore) UpdateApplicationStatus(_ context.Context, id, ownerID uuid.UUID, status string) (*types.Application, error) {
	m.mu.Lock()
	app, ok := m.apps[id]
	if !ok || m.jobs[app.JobID].CreatedBy != ownerID {
		m.mu.Unlock()
		return nil, nil
	}
	app.Status = status
	now := m.tick()
	app.UpdatedAt = &now
	m.apps[id] = app
	m.mu.Unlock()

	m.src.Update(board.ApplicationsTable, id, app)
	return &app, nil
}

func (m *memStore) DeleteApplication(_ context.Context, id, userID uuid.UUID) (bool, error) {
	m.mu.Lock()
	app, ok := m.apps[id]
	if !ok {
		m.mu.Unlock()
		return false, nil
	}
	isCandidate := app.CandidateID != nil && *app.CandidateID == userID
	if !isCandidate && m.jobs[app.JobID].CreatedBy != userID {
		m.mu.Unlock()
		return false, nil
	}
	delete(m.apps, id)
	m.mu.Unlock()

	m.src.Delete(board.ApplicationsTable, id)
	return true, nil
}

func (m *memStore) ListJobsByCreator(_ context.Context, userID uuid.UUID, limit int) ([]types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	var out []types.Job
	for _, j := range m.jobs {
		if j.CreatedBy == userID {
			out = append(out, j)
		}
	}
	slices.SortFunc(out, func(a, b types.Job) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ListJobIDsByCreator(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	return m.ownedLocked(userID), nil
}

func (m *memStore) ownedLocked(userID uuid.UUID) []uuid.UUID {
	var ids []uuid.UUID
	for _, j := range m.jobs {
		if j.CreatedBy == userID {
			ids = append(ids, j.ID)
		}
	}
	return ids
}

func (m *memStore) ListApplicationsForCreator(_ context.Context, userID uuid.UUID) ([]types.Application, []uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return nil, nil, m.readErr
	}
	ids := m.ownedLocked(userID)
	var out []types.Application
	for _, a := range m.apps {
		if slices.Contains(ids, a.JobID) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b types.Application) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, ids, nil
}

func (m *memStore) GetJobByID(_ context.Context, id uuid.UUID) (*types.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		return &j, nil
	}
	return nil, nil
}

func (m *memStore) GetApplicationByID(_ context.Context, id uuid.UUID) (*types.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.apps[id]; ok {
		return &a, nil
	}
	return nil, nil
}

func (m *memStore) GetJobSummary(_ context.Context, id uuid.UUID) (*types.JobSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		return &types.JobSummary{Title: j.Title, Company: j.Company}, nil
	}
	return nil, nil
}

func (m *memStore) GetCandidateSummary(_ context.Context, id uuid.UUID) (*types.CandidateSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.candidates[id]; ok {
		return &c, nil
	}
	return nil, nil
}
