// Package server provides the HTTP API of the hiring board.
package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jonathan/hiring-board/internal/board"
	"github.com/jonathan/hiring-board/internal/realtime"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrNotFound indicates the resource does not exist or is not visible to the caller
type ErrNotFound struct {
	Resource string
	ID       uuid.UUID
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrUnauthenticated indicates a board route was reached without a principal
type ErrUnauthenticated struct{}

func (e *ErrUnauthenticated) Error() string {
	return "authentication required"
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validation *ErrValidation
		notFound   *ErrNotFound
		unauth     *ErrUnauthenticated
		upstream   *realtime.UpstreamError
		invalid    validator.ValidationErrors
	)
	switch {
	case errors.As(err, &validation), errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &unauth):
		return http.StatusUnauthorized
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	case errors.Is(err, board.ErrSessionClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// validationError converts validator output into an ErrValidation naming the
// first failing field.
func validationError(err error) error {
	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) || len(invalid) == 0 {
		return &ErrValidation{Field: "body", Message: err.Error()}
	}
	fe := invalid[0]
	msg := "failed " + fe.Tag()
	if fe.Param() != "" {
		msg += " " + fe.Param()
	}
	return &ErrValidation{Field: strings.ToLower(fe.Field()), Message: msg}
}
