package types

import (
	"time"

	"github.com/google/uuid"
)

// Application status values
const (
	ApplicationStatusPending    = "pending"
	ApplicationStatusInProgress = "in_progress"
	ApplicationStatusAccepted   = "accepted"
	ApplicationStatusRejected   = "rejected"
)

// ApplicationStatuses lists every application status in pipeline order
var ApplicationStatuses = []string{
	ApplicationStatusPending,
	ApplicationStatusInProgress,
	ApplicationStatusAccepted,
	ApplicationStatusRejected,
}

// Application is a candidate's application to a job (applications table)
type Application struct {
	ID          uuid.UUID  `json:"id"`
	JobID       uuid.UUID  `json:"job_id"`
	CandidateID *uuid.UUID `json:"candidate_id"`
	Status      string     `json:"status"`
	CoverLetter *string    `json:"cover_letter"`
	ResumeURL   *string    `json:"resume_url"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

// Key returns the application identifier
func (a Application) Key() uuid.UUID {
	return a.ID
}

// LastActivity returns the later of the update and creation times
func (a Application) LastActivity() time.Time {
	return lastActivity(a.CreatedAt, a.UpdatedAt)
}

// CandidateSummary is the denormalized candidate profile embedded into applications
type CandidateSummary struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
}

// EnrichedApplication is an application with its job and candidate resolved.
// Job and Candidate are nil when the lookup failed or found nothing.
type EnrichedApplication struct {
	Application
	Job       *JobSummary       `json:"job,omitempty"`
	Candidate *CandidateSummary `json:"candidate,omitempty"`
}

// Base returns the application without its resolved references
func (e EnrichedApplication) Base() Application {
	return e.Application
}

// IsValidApplicationStatus reports whether s is a known application status
func IsValidApplicationStatus(s string) bool {
	for _, status := range ApplicationStatuses {
		if s == status {
			return true
		}
	}
	return false
}
