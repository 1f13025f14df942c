package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/hiring-board/internal/types"
)

const applicationColumns = `id, job_id, candidate_id, status, cover_letter, resume_url, created_at, updated_at`

func scanApplication(row rowScanner) (*types.Application, error) {
	var a types.Application
	err := row.Scan(&a.ID, &a.JobID, &a.CandidateID, &a.Status, &a.CoverLetter,
		&a.ResumeURL, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListApplicationsByJobIDs returns every application to the given jobs, newest first
func (db *DB) ListApplicationsByJobIDs(ctx context.Context, jobIDs []uuid.UUID) ([]types.Application, error) {
	if len(jobIDs) == 0 {
		return []types.Application{}, nil
	}

	rows, err := db.pool.Query(ctx,
		`SELECT `+applicationColumns+`
		 FROM applications
		 WHERE job_id = ANY($1)
		 ORDER BY created_at DESC`,
		jobIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	apps := []types.Application{}
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan application: %w", err)
		}
		apps = append(apps, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	return apps, nil
}

// ListApplicationsForCreator returns applications to every job posted by
// userID. jobIDs are the owned job ids the result was scoped to.
func (db *DB) ListApplicationsForCreator(ctx context.Context, userID uuid.UUID) (apps []types.Application, jobIDs []uuid.UUID, err error) {
	jobIDs, err = db.ListJobIDsByCreator(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	apps, err = db.ListApplicationsByJobIDs(ctx, jobIDs)
	if err != nil {
		return nil, nil, err
	}
	return apps, jobIDs, nil
}

// GetApplicationByID retrieves an application by its ID
func (db *DB) GetApplicationByID(ctx context.Context, id uuid.UUID) (*types.Application, error) {
	a, err := scanApplication(db.pool.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return a, nil
}

// CreateApplication records candidateID applying to jobID.
// Returns nil if the job does not exist.
func (db *DB) CreateApplication(ctx context.Context, jobID, candidateID uuid.UUID, req *types.CreateApplicationRequest) (*types.Application, error) {
	a, err := scanApplication(db.pool.QueryRow(ctx,
		`INSERT INTO applications (job_id, candidate_id, status, cover_letter, resume_url)
		 SELECT id, $2, 'pending', NULLIF($3, ''), NULLIF($4, '')
		 FROM jobs WHERE id = $1
		 RETURNING `+applicationColumns,
		jobID, candidateID, req.CoverLetter, req.ResumeURL,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to create application: %w", err)
	}
	return a, nil
}

// UpdateApplicationStatus moves an application to status. Only the owner of
// the job may do so; returns nil if no such application is visible to ownerID.
func (db *DB) UpdateApplicationStatus(ctx context.Context, id, ownerID uuid.UUID, status string) (*types.Application, error) {
	a, err := scanApplication(db.pool.QueryRow(ctx,
		`UPDATE applications a SET status = $3, updated_at = NOW()
		 FROM jobs j
		 WHERE a.id = $1 AND a.job_id = j.id AND j.created_by = $2
		 RETURNING a.id, a.job_id, a.candidate_id, a.status, a.cover_letter,
		           a.resume_url, a.created_at, a.updated_at`,
		id, ownerID, status,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to update application status: %w", err)
	}
	return a, nil
}

// DeleteApplication deletes an application. Either the candidate who applied
// or the owner of the job may delete it.
func (db *DB) DeleteApplication(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	tag, err := db.pool.Exec(ctx,
		`DELETE FROM applications a
		 USING jobs j
		 WHERE a.id = $1 AND a.job_id = j.id
		   AND (a.candidate_id = $2 OR j.created_by = $2)`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete application: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
