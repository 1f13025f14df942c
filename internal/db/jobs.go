package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/hiring-board/internal/types"
)

// DefaultCompanyName is used when the hiring team has no company on file
const DefaultCompanyName = "Company Name"

const jobColumns = `id, title, company, location, work_type, salary_range, description,
	requirements, responsibilities, status, created_by, created_at, updated_at`

func scanJob(row rowScanner) (*types.Job, error) {
	var j types.Job
	err := row.Scan(&j.ID, &j.Title, &j.Company, &j.Location, &j.WorkType, &j.SalaryRange,
		&j.Description, &j.Requirements, &j.Responsibilities, &j.Status, &j.CreatedBy,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// ListJobsByCreator returns the newest jobs posted by userID
func (db *DB) ListJobsByCreator(ctx context.Context, userID uuid.UUID, limit int) ([]types.Job, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+jobColumns+`
		 FROM jobs
		 WHERE created_by = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []types.Job{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// ListJobIDsByCreator returns the ids of every job posted by userID
func (db *DB) ListJobIDsByCreator(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := db.pool.Query(ctx, `SELECT id FROM jobs WHERE created_by = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list job ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to list job ids: %w", err)
	}
	return ids, nil
}

// GetJobByID retrieves a job by its ID
func (db *DB) GetJobByID(ctx context.Context, id uuid.UUID) (*types.Job, error) {
	j, err := scanJob(db.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return j, nil
}

// GetJobSummary retrieves the title and company of a job
func (db *DB) GetJobSummary(ctx context.Context, id uuid.UUID) (*types.JobSummary, error) {
	var s types.JobSummary
	err := db.pool.QueryRow(ctx,
		`SELECT title, company FROM jobs WHERE id = $1`, id,
	).Scan(&s.Title, &s.Company)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job summary: %w", err)
	}
	return &s, nil
}

// CreateJob inserts a job posted by userID. The company is taken from the
// user's hiring team.
func (db *DB) CreateJob(ctx context.Context, userID uuid.UUID, req *types.CreateJobRequest) (*types.Job, error) {
	company, err := db.GetHiringTeamCompany(ctx, userID)
	if err != nil {
		return nil, err
	}
	if company == "" {
		company = DefaultCompanyName
	}

	status := req.Status
	if status == "" {
		status = types.JobStatusActive
	}
	salary := SalaryRange(req.SalaryMin, req.SalaryMax)

	j, err := scanJob(db.pool.QueryRow(ctx,
		`INSERT INTO jobs (title, company, location, work_type, salary_range, description,
		                   requirements, responsibilities, status, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING `+jobColumns,
		req.Title, company, req.Location, req.WorkType, salary, req.Description,
		req.Requirements, req.Responsibilities, status, userID,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return j, nil
}

// UpdateJob applies the non-nil fields of req to a job owned by userID.
// Returns nil if no such job exists.
func (db *DB) UpdateJob(ctx context.Context, id, userID uuid.UUID, req *types.UpdateJobRequest) (*types.Job, error) {
	j, err := scanJob(db.pool.QueryRow(ctx,
		`UPDATE jobs SET
		     title = COALESCE($3, title),
		     location = COALESCE($4, location),
		     work_type = COALESCE($5, work_type),
		     description = COALESCE($6, description),
		     requirements = COALESCE($7, requirements),
		     responsibilities = COALESCE($8, responsibilities),
		     salary_range = COALESCE($9, salary_range),
		     status = COALESCE($10, status),
		     updated_at = NOW()
		 WHERE id = $1 AND created_by = $2
		 RETURNING `+jobColumns,
		id, userID, req.Title, req.Location, req.WorkType, req.Description,
		req.Requirements, req.Responsibilities, req.SalaryRange, req.Status,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update job: %w", err)
	}
	return j, nil
}

// DeleteJob deletes a job owned by userID along with its applications.
// Returns false if no such job exists.
func (db *DB) DeleteJob(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM jobs WHERE id = $1 AND created_by = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SalaryRange formats a salary band, or returns nil when none was given
func SalaryRange(lo, hi int) *string {
	if lo == 0 && hi == 0 {
		return nil
	}
	s := fmt.Sprintf("%d-%d", lo, hi)
	return &s
}
