package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jonathan/hiring-board/internal/board"
	"github.com/jonathan/hiring-board/internal/realtime"
	"github.com/jonathan/hiring-board/internal/types"
)

func TestHTTPStatus(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &ErrValidation{Field: "title", Message: "failed required"}, http.StatusBadRequest},
		{"validator output", (&types.UpdateApplicationStatusRequest{Status: "hired"}).Validate(), http.StatusBadRequest},
		{"not found", &ErrNotFound{Resource: "job", ID: id}, http.StatusNotFound},
		{"unauthenticated", &ErrUnauthenticated{}, http.StatusUnauthorized},
		{"upstream", &realtime.UpstreamError{Op: "list jobs", Err: errors.New("timeout")}, http.StatusBadGateway},
		{"wrapped upstream", fmt.Errorf("open: %w", &realtime.UpstreamError{Op: "x", Err: errors.New("y")}), http.StatusBadGateway},
		{"closed while opening", board.ErrSessionClosed, http.StatusConflict},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestErrorMessages(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, "validation error: email - invalid format", (&ErrValidation{Field: "email", Message: "invalid format"}).Error())
	assert.Equal(t, "job not found: "+id.String(), (&ErrNotFound{Resource: "job", ID: id}).Error())
}

func TestValidationError(t *testing.T) {
	err := validationError((&types.UpdateApplicationStatusRequest{Status: "hired"}).Validate())
	var ve *ErrValidation
	assert.ErrorAs(t, err, &ve)
	assert.Equal(t, "status", ve.Field)
	assert.Equal(t, "failed oneof pending in_progress accepted rejected", ve.Message)

	err = validationError(errors.New("unexpected EOF"))
	assert.ErrorAs(t, err, &ve)
	assert.Equal(t, "body", ve.Field)
}
