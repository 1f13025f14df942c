package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/hiring-board/internal/types"
)

// GetCandidateSummary retrieves the name and email of a candidate by user id
func (db *DB) GetCandidateSummary(ctx context.Context, userID uuid.UUID) (*types.CandidateSummary, error) {
	var s types.CandidateSummary
	err := db.pool.QueryRow(ctx,
		`SELECT full_name, email FROM candidate_profiles WHERE user_id = $1`, userID,
	).Scan(&s.FullName, &s.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get candidate summary: %w", err)
	}
	return &s, nil
}

// GetHiringTeamCompany returns the company name of a hiring team member, or
// "" if the user has no team.
func (db *DB) GetHiringTeamCompany(ctx context.Context, userID uuid.UUID) (string, error) {
	var name *string
	err := db.pool.QueryRow(ctx,
		`SELECT company_name FROM hiring_teams WHERE id = $1`, userID,
	).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get hiring team: %w", err)
	}
	if name == nil {
		return "", nil
	}
	return *name, nil
}

// UpsertCandidateProfile creates or updates a candidate's name and email
func (db *DB) UpsertCandidateProfile(ctx context.Context, userID uuid.UUID, fullName, email string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO candidate_profiles (user_id, full_name, email)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET
		     full_name = $2,
		     email = $3,
		     updated_at = NOW()`,
		userID, fullName, email,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert candidate profile: %w", err)
	}
	return nil
}

// UpsertHiringTeam creates or updates the hiring team of a user
func (db *DB) UpsertHiringTeam(ctx context.Context, userID uuid.UUID, companyName string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO hiring_teams (id, company_name)
		 VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET company_name = $2`,
		userID, companyName,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert hiring team: %w", err)
	}
	return nil
}
