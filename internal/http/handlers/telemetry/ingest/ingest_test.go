package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/goflexconnect/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Publish(ctx context.Context, sample models.TelemetrySample) error {
	return m.Called(ctx, sample).Error(0)
}

func TestIngestHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "точка принята",
			body: `{"source":"rsrp","value":-95.5,"at":"2024-06-01T12:00:00Z"}`,
			setupMock: func(m *MockService) {
				m.On("Publish", mock.Anything, models.TelemetrySample{Source: "rsrp", Value: -95.5, At: at}).Return(nil)
			},
			expectedStatus: http.StatusAccepted,
			expectedBody:   `"accepted":true`,
		},
		{
			name:           "нет источника",
			body:           `{"value":1}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field Source is a required field`,
		},
		{
			name: "канал недоступен",
			body: `{"source":"sinr","value":12}`,
			setupMock: func(m *MockService) {
				m.On("Publish", mock.Anything, mock.Anything).Return(errors.New("redis down"))
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name:           "некорректный JSON",
			body:           `{"source":`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			w := httptest.NewRecorder()
			New(logger, svc).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/telemetry", bytes.NewBufferString(tt.body)))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			svc.AssertExpectations(t)
		})
	}
}
