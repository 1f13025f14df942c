package server

import (
	"log"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/jonathan/hiring-board/internal/board"
	"github.com/jonathan/hiring-board/internal/types"
	"github.com/jonathan/hiring-board/internal/views"
)

// boardStatus is attached to every board response
type boardStatus struct {
	LastError string `json:"last_error,omitempty"`
}

func statusOf(s *board.Session) boardStatus {
	if err := s.LastError(); err != nil {
		return boardStatus{LastError: err.Error()}
	}
	return boardStatus{}
}

type jobsResponse struct {
	Jobs  []types.Job     `json:"jobs"`
	Stats views.JobCounts `json:"stats"`
	boardStatus
}

type applicationsResponse struct {
	Applications []types.EnrichedApplication `json:"applications"`
	boardStatus
}

type candidatesResponse struct {
	views.CandidatesView
	boardStatus
}

type statsResponse struct {
	Jobs       views.JobCounts `json:"jobs"`
	Candidates views.Stats     `json:"candidates"`
	boardStatus
}

// session returns the caller's board session, opening it on first use
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*board.Session, bool) {
	userID, err := principal(r)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	sess, err := s.boards.Session(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) handleBoardJobs(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	jobs := sess.Jobs()
	s.jsonResponse(w, http.StatusOK, jobsResponse{
		Jobs:        nonNil(jobs),
		Stats:       views.JobStats(jobs),
		boardStatus: statusOf(sess),
	})
}

func (s *Server) handleBoardApplications(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, applicationsResponse{
		Applications: nonNil(sess.Applications()),
		boardStatus:  statusOf(sess),
	})
}

func (s *Server) handleBoardCandidates(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, candidatesResponse{
		CandidatesView: sess.Candidates(filter),
		boardStatus:    statusOf(sess),
	})
}

func (s *Server) handleBoardStats(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	s.jsonResponse(w, http.StatusOK, statsResponse{
		Jobs:        sess.JobStats(),
		Candidates:  sess.Candidates(views.Filter{}).Stats,
		boardStatus: statusOf(sess),
	})
}

// handleBoardRefresh rereads both snapshots. On failure the session keeps
// its last good collections and the error is returned as 502.
func (s *Server) handleBoardRefresh(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if err := sess.Refresh(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, statsResponse{
		Jobs:       sess.JobStats(),
		Candidates: sess.Candidates(views.Filter{}).Stats,
	})
}

// handleCloseSession drops the caller's session, as on logout
func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	userID, err := principal(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.boards.Close(userID)
	w.WriteHeader(http.StatusNoContent)
}

// handleBoardStream sends a "candidates" event with the full view on connect
// and after every change to the caller's applications.
func (s *Server) handleBoardStream(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	live := sess.Watch(filter)
	defer live.Close()

	if err := sse.WriteEvent("candidates", live.View()); err != nil {
		return
	}

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case view, ok := <-live.Updates():
			if !ok {
				sse.WriteError("session closed")
				return
			}
			if err := sse.WriteEvent("candidates", view); err != nil {
				log.Printf("[board] stream to %s ended: %v", sess.Principal(), err)
				return
			}
		case <-heartbeat.C:
			if err := sse.WriteComment("ping"); err != nil {
				return
			}
		}
	}
}

func parseFilter(r *http.Request) (views.Filter, error) {
	q := r.URL.Query()
	f := views.Filter{
		Query:  strings.TrimSpace(q.Get("q")),
		Status: strings.TrimSpace(q.Get("status")),
	}
	if f.Status != "" && f.Status != views.StatusAll && !slices.Contains(types.ApplicationStatuses, f.Status) {
		return views.Filter{}, &ErrValidation{Field: "status", Message: "unknown application status " + f.Status}
	}
	return f, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
