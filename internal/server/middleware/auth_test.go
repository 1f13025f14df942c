package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPrincipal uuid.UUID

func (p testPrincipal) GetUserID() uuid.UUID { return uuid.UUID(p) }

func staticValidator(tokens map[string]uuid.UUID) TokenValidator {
	return TokenValidatorFunc(func(token string) (Principal, error) {
		id, ok := tokens[token]
		if !ok {
			return nil, errors.New("invalid token")
		}
		return testPrincipal(id), nil
	})
}

func TestAuthMiddleware(t *testing.T) {
	user := uuid.New()
	validator := staticValidator(map[string]uuid.UUID{
		"good":  user,
		"empty": uuid.Nil,
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid token", "Bearer good", http.StatusOK},
		{"lowercase scheme", "bearer good", http.StatusOK},
		{"surrounding space", "  Bearer good  ", http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"no scheme", "good", http.StatusUnauthorized},
		{"basic scheme", "Basic good", http.StatusUnauthorized},
		{"missing token", "Bearer ", http.StatusUnauthorized},
		{"extra parts", "Bearer good extra", http.StatusUnauthorized},
		{"unknown token", "Bearer bad", http.StatusUnauthorized},
		{"nil principal", "Bearer empty", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got uuid.UUID
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				id, err := GetUserID(r)
				require.NoError(t, err)
				got = id
			})

			req := httptest.NewRequest(http.MethodGet, "/board/jobs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			AuthMiddleware(validator)(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, user, got)
			} else {
				assert.Equal(t, uuid.Nil, got, "handler must not run")
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestGetUserID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := GetUserID(req)
	assert.ErrorIs(t, err, ErrNoPrincipal)

	id := uuid.New()
	req = req.WithContext(WithUserID(context.Background(), id))
	got, err := GetUserID(req)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	req = req.WithContext(context.WithValue(context.Background(), contextKey{}, id.String()))
	_, err = GetUserID(req)
	assert.Error(t, err, "wrong value type")
}
