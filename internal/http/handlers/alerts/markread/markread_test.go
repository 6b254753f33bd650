package markread

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) MarkRead(ctx context.Context, ids []string) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

func TestMarkReadHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	id := "3f1c2b9e-6d4a-4e4b-9a51-1b2c3d4e5f60"

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "по идентификаторам",
			body: `{"ids":["` + id + `"]}`,
			setupMock: func(m *MockService) {
				m.On("MarkRead", mock.Anything, []string{id}).Return(int64(1), nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"updated_count":1`,
		},
		{
			name: "пустое тело помечает все",
			body: ``,
			setupMock: func(m *MockService) {
				m.On("MarkRead", mock.Anything, []string(nil)).Return(int64(4), nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"updated_count":4`,
		},
		{
			name:           "не uuid",
			body:           `{"ids":["nope"]}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `can contain only uuid`,
		},
		{
			name: "ошибка хранилища",
			body: `{}`,
			setupMock: func(m *MockService) {
				m.On("MarkRead", mock.Anything, []string(nil)).Return(int64(0), errors.New("db"))
			},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPost, "/admin/alerts/read", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			New(logger, svc).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
