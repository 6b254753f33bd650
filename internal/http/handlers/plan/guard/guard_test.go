package guard

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
	"github.com/magabrotheeeer/goflexconnect/internal/services/tracking"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) AssertCanCreateProject(ctx context.Context, session models.Session, userID string) (models.LimitCheck, error) {
	args := m.Called(ctx, session, userID)
	return args.Get(0).(models.LimitCheck), args.Error(1)
}

func (m *MockService) AssertCanCreateSurvey(ctx context.Context, session models.Session, userID, projectID string) (models.LimitCheck, error) {
	args := m.Called(ctx, session, userID, projectID)
	return args.Get(0).(models.LimitCheck), args.Error(1)
}

func (m *MockService) AssertCanRecordMeasurement(ctx context.Context, session models.Session, userID, surveyID string, count int64) (models.LimitCheck, error) {
	args := m.Called(ctx, session, userID, surveyID, count)
	return args.Get(0).(models.LimitCheck), args.Error(1)
}

func (m *MockService) AssertCanUseAIInsights(ctx context.Context, session models.Session, userID string) (models.LimitCheck, error) {
	args := m.Called(ctx, session, userID)
	return args.Get(0).(models.LimitCheck), args.Error(1)
}

func (m *MockService) AssertCanExportHeatmap(ctx context.Context, session models.Session, userID string) (models.LimitCheck, error) {
	args := m.Called(ctx, session, userID)
	return args.Get(0).(models.LimitCheck), args.Error(1)
}

func (m *MockService) AssertCanRunSpeedTest(ctx context.Context, session models.Session, userID string) (models.LimitCheck, error) {
	args := m.Called(ctx, session, userID)
	return args.Get(0).(models.LimitCheck), args.Error(1)
}

func TestGuardHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	session := models.Session{UserID: "user-1"}
	allowed := models.LimitCheck{Allowed: true}

	tests := []struct {
		name           string
		action         string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:   "проект без тела запроса",
			action: ActionProject,
			setupMock: func(m *MockService) {
				m.On("AssertCanCreateProject", mock.Anything, session, "user-1").
					Return(models.LimitCheck{Allowed: false, Current: 5, Limit: 5, Message: "limit"}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"allowed":false`,
		},
		{
			name:   "опрос в проекте",
			action: ActionSurvey,
			body:   `{"project_id":"p1"}`,
			setupMock: func(m *MockService) {
				m.On("AssertCanCreateSurvey", mock.Anything, session, "user-1", "p1").Return(allowed, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"allowed":true`,
		},
		{
			name:   "замеры по умолчанию считаются по одному",
			action: ActionMeasurement,
			body:   `{"survey_id":"s1"}`,
			setupMock: func(m *MockService) {
				m.On("AssertCanRecordMeasurement", mock.Anything, session, "user-1", "s1", int64(1)).Return(allowed, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "AI-анализ",
			action: ActionAIInsight,
			setupMock: func(m *MockService) {
				m.On("AssertCanUseAIInsights", mock.Anything, session, "user-1").Return(allowed, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "тепловая карта",
			action: ActionHeatmap,
			setupMock: func(m *MockService) {
				m.On("AssertCanExportHeatmap", mock.Anything, session, "user-1").Return(allowed, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:   "тест скорости",
			action: ActionSpeedTest,
			setupMock: func(m *MockService) {
				m.On("AssertCanRunSpeedTest", mock.Anything, session, "user-1").Return(allowed, nil)
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "неизвестное действие",
			action:         "teleport",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `unknown action`,
		},
		{
			name:   "опрос без проекта",
			action: ActionSurvey,
			setupMock: func(m *MockService) {
				m.On("AssertCanCreateSurvey", mock.Anything, session, "user-1", "").
					Return(models.LimitCheck{}, fmt.Errorf("plan.guard: %w", tracking.ErrMissingProjectID))
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `project_id is required`,
		},
		{
			name:   "ошибка хранилища",
			action: ActionProject,
			setupMock: func(m *MockService) {
				m.On("AssertCanCreateProject", mock.Anything, session, "user-1").Return(models.LimitCheck{}, errors.New("db"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `could not check action`,
		},
		{
			name:           "некорректный JSON",
			action:         ActionProject,
			body:           `{`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPost, "/plan/guard/"+tt.action, bytes.NewBufferString(tt.body))
			ctx := middlewarectx.WithSession(req.Context(), session)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("action", tt.action)
			req = req.WithContext(context.WithValue(ctx, chi.RouteCtxKey, rctx))
			w := httptest.NewRecorder()

			New(logger, svc).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
