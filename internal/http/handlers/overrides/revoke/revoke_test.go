package revoke

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Revoke(ctx context.Context, userID string) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func TestRevokeHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		deleted        bool
		err            error
		expectedStatus int
		expectedBody   string
	}{
		{name: "переопределение снято", deleted: true, expectedStatus: http.StatusOK, expectedBody: `"revoked":true`},
		{name: "переопределения не было", deleted: false, expectedStatus: http.StatusOK, expectedBody: `"revoked":false`},
		{name: "ошибка хранилища", err: errors.New("db"), expectedStatus: http.StatusInternalServerError, expectedBody: `could not revoke`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			svc.On("Revoke", mock.Anything, "user-1").Return(tt.deleted, tt.err)

			req := httptest.NewRequest(http.MethodDelete, "/admin/overrides/user-1", nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("userID", "user-1")
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
			w := httptest.NewRecorder()
			New(logger, svc).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
