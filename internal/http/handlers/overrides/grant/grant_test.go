package grant

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/goflexconnect/internal/http/middlewarectx"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
	"github.com/magabrotheeeer/goflexconnect/internal/services/overrides"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Grant(ctx context.Context, admin models.Session, p overrides.GrantParams) (*models.PlanOverride, error) {
	args := m.Called(ctx, admin, p)
	res, _ := args.Get(0).(*models.PlanOverride)
	return res, args.Error(1)
}

func TestGrantHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	admin := models.Session{UserID: "admin-1", Role: models.RoleAdmin}

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "выдача PRO",
			body: `{"plan_id":"PRO","reason":"Beta tester"}`,
			setupMock: func(m *MockService) {
				m.On("Grant", mock.Anything, admin, overrides.GrantParams{UserID: "user-1", Plan: "PRO", Reason: "Beta tester"}).
					Return(&models.PlanOverride{UserID: "user-1", PlanID: models.PlanPro, Reason: "Beta tester", GrantedBy: "admin-1"}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"granted_by":"admin-1"`,
		},
		{
			name: "FREE снимает переопределение",
			body: `{"plan_id":"FREE"}`,
			setupMock: func(m *MockService) {
				m.On("Grant", mock.Anything, admin, overrides.GrantParams{UserID: "user-1", Plan: "FREE"}).Return(nil, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"override":null`,
		},
		{
			name:           "неизвестный план",
			body:           `{"plan_id":"ENTERPRISE"}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field PlanID must be one of`,
		},
		{
			name: "дата окончания в прошлом",
			body: `{"plan_id":"PRO","expires_at":"2001-01-01T00:00:00Z"}`,
			setupMock: func(m *MockService) {
				m.On("Grant", mock.Anything, admin, mock.Anything).
					Return(nil, fmt.Errorf("overrides.Grant: %w", overrides.ErrExpiresInPast))
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `expiration date is in the past`,
		},
		{
			name: "ошибка хранилища",
			body: `{"plan_id":"PRO"}`,
			setupMock: func(m *MockService) {
				m.On("Grant", mock.Anything, admin, mock.Anything).Return(nil, errors.New("db"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `could not grant plan`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPut, "/admin/overrides/user-1", bytes.NewBufferString(tt.body))
			ctx := middlewarectx.WithSession(req.Context(), admin)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("userID", "user-1")
			req = req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rctx))
			w := httptest.NewRecorder()
			New(logger, svc).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
