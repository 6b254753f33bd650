package middlewarectx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/magabrotheeeer/goflexconnect/internal/http/middlewarectx"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
)

func TestAdminOnly(t *testing.T) {
	byEmail := func(s models.Session) bool {
		return s.IsAdmin() || s.Email == "owner@example.com"
	}

	tests := []struct {
		name       string
		session    *models.Session
		wantStatus int
	}{
		{name: "no session", session: nil, wantStatus: http.StatusUnauthorized},
		{name: "regular user", session: &models.Session{UserID: "u1", Role: "user"}, wantStatus: http.StatusForbidden},
		{name: "admin role", session: &models.Session{UserID: "u2", Role: models.RoleAdmin}, wantStatus: http.StatusOK},
		{name: "admin email", session: &models.Session{UserID: "u3", Email: "owner@example.com"}, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			mw := middlewarectx.AdminOnly(byEmail, newNoopLogger())(next)

			req := httptest.NewRequest(http.MethodGet, "/admin", nil)
			if tt.session != nil {
				req = req.WithContext(middlewarectx.WithSession(req.Context(), *tt.session))
			}
			rec := httptest.NewRecorder()
			mw.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRateLimitMiddleware_PerUser(t *testing.T) {
	limiter := middlewarectx.NewUserLimiter(0.001, 2)
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mw := middlewarectx.RateLimitMiddleware(limiter, newNoopLogger())(next)

	do := func(userID string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(middlewarectx.WithSession(req.Context(), models.Session{UserID: userID}))
		rec := httptest.NewRecorder()
		mw.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("alice"))
	assert.Equal(t, http.StatusOK, do("alice"))
	assert.Equal(t, http.StatusTooManyRequests, do("alice"))
	assert.Equal(t, http.StatusOK, do("bob"))
}
