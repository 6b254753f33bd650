package list

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/goflexconnect/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Recent(ctx context.Context, limit, sinceDays int, unreadOnly bool) ([]models.Alert, error) {
	args := m.Called(ctx, limit, sinceDays, unreadOnly)
	res, _ := args.Get(0).([]models.Alert)
	return res, args.Error(1)
}

func TestListHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	alert := models.Alert{
		ID:      "a-1",
		Title:   "Usage warning: projects",
		Payload: models.UsageThresholdPayload{Email: "tech@example.com", LimitType: models.LimitProjects, Current: 4, Limit: 5},
	}

	tests := []struct {
		name           string
		query          string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:  "параметры по умолчанию",
			query: "",
			setupMock: func(m *MockService) {
				m.On("Recent", mock.Anything, 0, 0, false).Return([]models.Alert{alert}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"kind":"usage_threshold"`,
		},
		{
			name:  "фильтры",
			query: "?limit=10&since_days=30&unread_only=true",
			setupMock: func(m *MockService) {
				m.On("Recent", mock.Anything, 10, 30, true).Return([]models.Alert{}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"alerts":[]`,
		},
		{
			name:           "некорректный limit",
			query:          "?limit=ten",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `limit must be an integer`,
		},
		{
			name:           "некорректный unread_only",
			query:          "?unread_only=sometimes",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:  "ошибка хранилища",
			query: "",
			setupMock: func(m *MockService) {
				m.On("Recent", mock.Anything, 0, 0, false).Return(nil, errors.New("db"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			w := httptest.NewRecorder()
			New(logger, svc).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/alerts"+tt.query, nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
