package check

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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/goflexconnect/internal/http/middlewarectx"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
	"github.com/magabrotheeeer/goflexconnect/internal/services/tracking"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) CheckUsageLimit(ctx context.Context, p tracking.CheckParams) (models.LimitCheck, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(models.LimitCheck), args.Error(1)
}

type MockPlans struct {
	mock.Mock
}

func (m *MockPlans) EffectivePlan(ctx context.Context, session models.Session) (models.PlanID, error) {
	args := m.Called(ctx, session)
	return args.Get(0).(models.PlanID), args.Error(1)
}

func TestCheckHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	session := models.Session{UserID: "user-1"}

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService, *MockPlans)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "лимит исчерпан",
			body: `{"limit_type":"surveys","project_id":"p1"}`,
			setupMock: func(s *MockService, p *MockPlans) {
				p.On("EffectivePlan", mock.Anything, session).Return(models.PlanFree, nil)
				s.On("CheckUsageLimit", mock.Anything, tracking.CheckParams{
					UserID:    "user-1",
					PlanID:    models.PlanFree,
					LimitType: models.LimitSurveys,
					ProjectID: "p1",
				}).Return(models.LimitCheck{Allowed: false, Current: 10, Limit: 10, Message: "limit"}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"allowed":false,"current":10,"limit":10`,
		},
		{
			name: "замеры с дополнительным количеством",
			body: `{"limit_type":"measurements","survey_id":"s1","additional_count":5}`,
			setupMock: func(s *MockService, p *MockPlans) {
				p.On("EffectivePlan", mock.Anything, session).Return(models.PlanFree, nil)
				s.On("CheckUsageLimit", mock.Anything, mock.MatchedBy(func(cp tracking.CheckParams) bool {
					return cp.AdditionalCount == 5 && cp.SurveyID == "s1"
				})).Return(models.LimitCheck{Allowed: true, Current: 5, Limit: 1000}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"allowed":true`,
		},
		{
			name:           "неизвестный тип лимита",
			body:           `{"limit_type":"rockets"}`,
			setupMock:      func(_ *MockService, _ *MockPlans) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `unknown limit type`,
		},
		{
			name: "нет survey_id",
			body: `{"limit_type":"measurements"}`,
			setupMock: func(s *MockService, p *MockPlans) {
				p.On("EffectivePlan", mock.Anything, session).Return(models.PlanFree, nil)
				s.On("CheckUsageLimit", mock.Anything, mock.Anything).
					Return(models.LimitCheck{}, fmt.Errorf("op: %w", tracking.ErrMissingSurveyID))
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `survey_id is required`,
		},
		{
			name: "ошибка хранилища",
			body: `{"limit_type":"projects"}`,
			setupMock: func(s *MockService, p *MockPlans) {
				p.On("EffectivePlan", mock.Anything, session).Return(models.PlanFree, nil)
				s.On("CheckUsageLimit", mock.Anything, mock.Anything).Return(models.LimitCheck{}, errors.New("db"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `could not check usage limit`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			plans := new(MockPlans)
			tt.setupMock(svc, plans)

			req := httptest.NewRequest(http.MethodPost, "/usage/check", bytes.NewBufferString(tt.body))
			req = req.WithContext(middlewarectx.WithSession(req.Context(), session))
			w := httptest.NewRecorder()
			New(logger, svc, plans).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
			plans.AssertExpectations(t)
		})
	}
}
