// Package middleware authenticates board requests.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey struct{}

// Principal is the authenticated caller
type Principal interface {
	GetUserID() uuid.UUID
}

// TokenValidator resolves a bearer token to its principal.
type TokenValidator interface {
	ValidateToken(token string) (Principal, error)
}

// TokenValidatorFunc adapts a function to TokenValidator
type TokenValidatorFunc func(token string) (Principal, error)

// ValidateToken calls f
func (f TokenValidatorFunc) ValidateToken(token string) (Principal, error) {
	return f(token)
}

// ErrNoPrincipal is returned by GetUserID outside an authenticated request
var ErrNoPrincipal = errors.New("user ID not found in request context")

// AuthMiddleware rejects requests without a valid "Bearer <token>"
// Authorization header and stores the principal's user id in the context.
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}
			principal, err := validator.ValidateToken(token)
			if err != nil || principal.GetUserID() == uuid.Nil {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), principal.GetUserID())))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", false
	}
	return token, true
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="hiring-board"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// WithUserID returns a context carrying the authenticated user id
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// GetUserID returns the authenticated user id stored by AuthMiddleware.
func GetUserID(r *http.Request) (uuid.UUID, error) {
	userID, ok := r.Context().Value(contextKey{}).(uuid.UUID)
	if !ok {
		return uuid.Nil, ErrNoPrincipal
	}
	return userID, nil
}
