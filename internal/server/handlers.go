package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/hiring-board/internal/server/middleware"
	"github.com/jonathan/hiring-board/internal/types"
)

const maxBodyBytes = 1 << 20

// handleHealth pings the database
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.jsonResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	userID, err := principal(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req types.CreateJobRequest
	if err := decodeBody(w, r, &req, req.Validate); err != nil {
		s.fail(w, r, err)
		return
	}

	job, err := s.store.CreateJob(r.Context(), userID, &req)
	if err != nil {
		s.fail(w, r, fmt.Errorf("failed to create job: %w", err))
		return
	}
	s.jsonResponse(w, http.StatusCreated, job)
}

func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	userID, id, err := principalAndID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req types.UpdateJobRequest
	if err := decodeBody(w, r, &req, req.Validate); err != nil {
		s.fail(w, r, err)
		return
	}

	job, err := s.store.UpdateJob(r.Context(), id, userID, &req)
	if err != nil {
		s.fail(w, r, fmt.Errorf("failed to update job: %w", err))
		return
	}
	if job == nil {
		s.fail(w, r, &ErrNotFound{Resource: "job", ID: id})
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	userID, id, err := principalAndID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	deleted, err := s.store.DeleteJob(r.Context(), id, userID)
	if err != nil {
		s.fail(w, r, fmt.Errorf("failed to delete job: %w", err))
		return
	}
	if !deleted {
		s.fail(w, r, &ErrNotFound{Resource: "job", ID: id})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCreateApplication applies the caller to the job as a candidate
func (s *Server) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	userID, jobID, err := principalAndID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req types.CreateApplicationRequest
	if err := decodeBody(w, r, &req, req.Validate); err != nil {
		s.fail(w, r, err)
		return
	}

	app, err := s.store.CreateApplication(r.Context(), jobID, userID, &req)
	if err != nil {
		s.fail(w, r, fmt.Errorf("failed to create application: %w", err))
		return
	}
	if app == nil {
		s.fail(w, r, &ErrNotFound{Resource: "job", ID: jobID})
		return
	}
	s.jsonResponse(w, http.StatusCreated, app)
}

// handleUpdateApplicationStatus moves an application through the pipeline.
// Only the owner of the job may do so.
func (s *Server) handleUpdateApplicationStatus(w http.ResponseWriter, r *http.Request) {
	userID, id, err := principalAndID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req types.UpdateApplicationStatusRequest
	if err := decodeBody(w, r, &req, req.Validate); err != nil {
		s.fail(w, r, err)
		return
	}

	app, err := s.store.UpdateApplicationStatus(r.Context(), id, userID, req.Status)
	if err != nil {
		s.fail(w, r, fmt.Errorf("failed to update application: %w", err))
		return
	}
	if app == nil {
		s.fail(w, r, &ErrNotFound{Resource: "application", ID: id})
		return
	}
	s.jsonResponse(w, http.StatusOK, app)
}

func (s *Server) handleDeleteApplication(w http.ResponseWriter, r *http.Request) {
	userID, id, err := principalAndID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	deleted, err := s.store.DeleteApplication(r.Context(), id, userID)
	if err != nil {
		s.fail(w, r, fmt.Errorf("failed to delete application: %w", err))
		return
	}
	if !deleted {
		s.fail(w, r, &ErrNotFound{Resource: "application", ID: id})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func principal(r *http.Request) (uuid.UUID, error) {
	userID, err := middleware.GetUserID(r)
	if err != nil {
		return uuid.Nil, &ErrUnauthenticated{}
	}
	return userID, nil
}

func principalAndID(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	userID, err := principal(r)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, &ErrValidation{Field: "id", Message: "must be a UUID"}
	}
	return userID, id, nil
}

// decodeBody reads a single JSON object into dst and validates it.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, validate func() error) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &ErrValidation{Field: "body", Message: "request body is empty"}
		}
		return &ErrValidation{Field: "body", Message: err.Error()}
	}
	if err := validate(); err != nil {
		return validationError(err)
	}
	return nil
}
