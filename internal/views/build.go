// Package views builds read models over the synchronized collections. Every
// view is recomputed from the full collection; nothing here is patched
// incrementally.
package views

import (
	"slices"
	"strings"
	"time"

	"github.com/jonathan/hiring-board/internal/types"
)

// StatusAll matches every status
const StatusAll = "all"

// Filter narrows the candidate groups. Empty fields match everything.
type Filter struct {
	Query  string `json:"q"`
	Status string `json:"status"`
}

// Matches reports whether app passes the filter. The query is matched
// case-insensitively against the candidate's name and email and the job title.
func (f Filter) Matches(app types.EnrichedApplication) bool {
	if f.Status != "" && f.Status != StatusAll && app.Status != f.Status {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	var fields []string
	if app.Candidate != nil {
		fields = append(fields, app.Candidate.FullName, app.Candidate.Email)
	}
	if app.Job != nil {
		fields = append(fields, app.Job.Title)
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	return false
}

// CandidateGroup is every visible application from one candidate
type CandidateGroup struct {
	Email        string                      `json:"email"`
	FullName     string                      `json:"full_name"`
	Applications []types.EnrichedApplication `json:"applications"`
	LastActivity time.Time                   `json:"last_activity"`
}

// Stats are dashboard counters over the whole collection
type Stats struct {
	Total            int            `json:"total"`
	ByStatus         map[string]int `json:"by_status"`
	Pending          int            `json:"pending"`
	InProgress       int            `json:"in_progress"`
	Accepted         int            `json:"accepted"`
	Rejected         int            `json:"rejected"`
	UniqueCandidates int            `json:"unique_candidates"`
	Visible          int            `json:"visible"`
}

// CandidatesView is the grouped candidate list plus its counters
type CandidatesView struct {
	Filter Filter           `json:"filter"`
	Groups []CandidateGroup `json:"groups"`
	Stats  Stats            `json:"stats"`
}

// Build groups the filtered applications by candidate email, most recently
// active first. Applications without a resolved candidate are counted in the
// stats but never grouped. Build does not modify apps.
func Build(apps []types.EnrichedApplication, filter Filter) CandidatesView {
	stats := Stats{ByStatus: make(map[string]int, len(types.ApplicationStatuses))}
	candidates := make(map[string]bool)
	for _, app := range apps {
		stats.Total++
		stats.ByStatus[app.Status]++
		if app.Candidate != nil {
			candidates[app.Candidate.Email] = true
		}
	}
	stats.Pending = stats.ByStatus[types.ApplicationStatusPending]
	stats.InProgress = stats.ByStatus[types.ApplicationStatusInProgress]
	stats.Accepted = stats.ByStatus[types.ApplicationStatusAccepted]
	stats.Rejected = stats.ByStatus[types.ApplicationStatusRejected]
	stats.UniqueCandidates = len(candidates)

	index := make(map[string]int)
	groups := []CandidateGroup{}
	for _, app := range apps {
		if app.Candidate == nil || !filter.Matches(app) {
			continue
		}
		email := app.Candidate.Email
		i, ok := index[email]
		if !ok {
			i = len(groups)
			index[email] = i
			groups = append(groups, CandidateGroup{Email: email, FullName: app.Candidate.FullName})
		}
		g := &groups[i]
		g.Applications = append(g.Applications, app)
		if at := app.LastActivity(); at.After(g.LastActivity) {
			g.LastActivity = at
		}
	}

	slices.SortStableFunc(groups, func(a, b CandidateGroup) int {
		return b.LastActivity.Compare(a.LastActivity)
	})
	stats.Visible = len(groups)

	return CandidatesView{Filter: filter, Groups: groups, Stats: stats}
}

// JobCounts are the job dashboard counters
type JobCounts struct {
	Total  int `json:"total"`
	Active int `json:"active"`
	Draft  int `json:"draft"`
	Closed int `json:"closed"`
}

// JobStats counts jobs per status
func JobStats(jobs []types.Job) JobCounts {
	var c JobCounts
	for _, j := range jobs {
		c.Total++
		switch j.Status {
		case types.JobStatusActive:
			c.Active++
		case types.JobStatusDraft:
			c.Draft++
		case types.JobStatusClosed:
			c.Closed++
		}
	}
	return c
}
