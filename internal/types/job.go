// Package types provides the records synchronized between the store and the hiring board.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"time"

	"github.com/google/uuid"
)

// Job status values
const (
	JobStatusActive = "active"
	JobStatusDraft  = "draft"
	JobStatusClosed = "closed"
)

// JobStatuses lists every job status in display order
var JobStatuses = []string{JobStatusActive, JobStatusDraft, JobStatusClosed}

// Job is a posting owned by a hiring team member (jobs table)
type Job struct {
	ID               uuid.UUID  `json:"id"`
	Title            string     `json:"title"`
	Company          string     `json:"company"`
	Location         string     `json:"location"`
	WorkType         string     `json:"work_type"`
	SalaryRange      *string    `json:"salary_range"`
	Description      string     `json:"description"`
	Requirements     string     `json:"requirements"`
	Responsibilities string     `json:"responsibilities"`
	Status           string     `json:"status"`
	CreatedBy        uuid.UUID  `json:"created_by"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        *time.Time `json:"updated_at"`
}

// Key returns the job identifier
func (j Job) Key() uuid.UUID {
	return j.ID
}

// LastActivity returns the later of the update and creation times
func (j Job) LastActivity() time.Time {
	return lastActivity(j.CreatedAt, j.UpdatedAt)
}

// JobSummary is the denormalized job embedded into applications
type JobSummary struct {
	Title   string `json:"title"`
	Company string `json:"company"`
}

func lastActivity(created time.Time, updated *time.Time) time.Time {
	if updated != nil && updated.After(created) {
		return *updated
	}
	return created
}
