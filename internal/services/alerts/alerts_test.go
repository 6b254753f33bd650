package alerts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/goflexconnect/internal/models"
	"github.com/magabrotheeeer/goflexconnect/internal/storage"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) InsertAdminAlert(ctx context.Context, alert models.Alert) error {
	return m.Called(ctx, alert).Error(0)
}

func (m *RepoMock) ListAdminAlerts(ctx context.Context, filter storage.AlertFilter) ([]models.Alert, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Alert), args.Error(1)
}

func (m *RepoMock) MarkAlertsRead(ctx context.Context, ids []string) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

func (m *RepoMock) CountUnreadAlerts(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type PublisherMock struct{ mock.Mock }

func (m *PublisherMock) Publish(routingKey string, message any) error {
	return m.Called(routingKey, message).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func newAlert() models.Alert {
	return models.Alert{
		UserID:  "user-1",
		Title:   "New user registered",
		Message: "new@example.com signed up",
		Payload: models.NewUserPayload{Email: "new@example.com"},
	}
}

func TestService_Raise(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name       string
		alert      models.Alert
		setupMocks func(r *RepoMock, p *PublisherMock)
	}{
		{
			name:  "persist then publish with kind routing key",
			alert: newAlert(),
			setupMocks: func(r *RepoMock, p *PublisherMock) {
				r.On("InsertAdminAlert", mock.Anything, mock.MatchedBy(func(a models.Alert) bool {
					_, err := uuid.Parse(a.ID)
					return err == nil && a.CreatedAt.Equal(now) && a.Kind() == models.AlertNewUser
				})).Return(nil).Once()
				p.On("Publish", "new_user", mock.AnythingOfType("models.Alert")).Return(nil).Once()
			},
		},
		{
			name:  "persist failure skips publish",
			alert: newAlert(),
			setupMocks: func(r *RepoMock, _ *PublisherMock) {
				r.On("InsertAdminAlert", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()
			},
		},
		{
			name:  "publish failure is swallowed",
			alert: newAlert(),
			setupMocks: func(r *RepoMock, p *PublisherMock) {
				r.On("InsertAdminAlert", mock.Anything, mock.Anything).Return(nil).Once()
				p.On("Publish", "new_user", mock.Anything).Return(errors.New("broker down")).Once()
			},
		},
		{
			name:       "alert without payload dropped",
			alert:      models.Alert{Title: "broken"},
			setupMocks: func(_ *RepoMock, _ *PublisherMock) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			pub := new(PublisherMock)
			tt.setupMocks(repo, pub)
			s := New(repo, pub, nil, newNoopLogger())
			s.now = func() time.Time { return now }

			assert.NotPanics(t, func() { s.Raise(context.Background(), tt.alert) })

			repo.AssertExpectations(t)
			pub.AssertExpectations(t)
		})
	}
}

func TestService_Raise_WithoutPublisher(t *testing.T) {
	repo := new(RepoMock)
	repo.On("InsertAdminAlert", mock.Anything, mock.Anything).Return(nil).Once()

	s := New(repo, nil, nil, newNoopLogger())
	s.Raise(context.Background(), newAlert())
	repo.AssertExpectations(t)
}

func TestService_Recent(t *testing.T) {
	now := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		limit      int
		sinceDays  int
		wantFilter storage.AlertFilter
	}{
		{
			name:       "defaults",
			wantFilter: storage.AlertFilter{Limit: 50, Since: now.AddDate(0, 0, -7)},
		},
		{
			name: "explicit", limit: 10, sinceDays: 1,
			wantFilter: storage.AlertFilter{Limit: 10, Since: now.AddDate(0, 0, -1)},
		},
		{
			name: "limit capped", limit: 10000, sinceDays: 30,
			wantFilter: storage.AlertFilter{Limit: 500, Since: now.AddDate(0, 0, -30)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			repo.On("ListAdminAlerts", mock.Anything, tt.wantFilter).Return(nil, nil).Once()
			s := New(repo, nil, nil, newNoopLogger())
			s.now = func() time.Time { return now }

			list, err := s.Recent(context.Background(), tt.limit, tt.sinceDays, false)
			require.NoError(t, err)
			assert.NotNil(t, list)
			assert.Empty(t, list)
			repo.AssertExpectations(t)
		})
	}
}

func TestService_MarkRead(t *testing.T) {
	id := uuid.NewString()

	t.Run("valid ids", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("MarkAlertsRead", mock.Anything, []string{id}).Return(int64(1), nil).Once()
		n, err := New(repo, nil, nil, newNoopLogger()).MarkRead(context.Background(), []string{id})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("invalid id rejected before storage", func(t *testing.T) {
		repo := new(RepoMock)
		_, err := New(repo, nil, nil, newNoopLogger()).MarkRead(context.Background(), []string{"nope"})
		require.Error(t, err)
		repo.AssertNotCalled(t, "MarkAlertsRead", mock.Anything, mock.Anything)
	})
}

func TestService_UnreadCount(t *testing.T) {
	repo := new(RepoMock)
	repo.On("CountUnreadAlerts", mock.Anything).Return(int64(3), nil).Once()
	n, err := New(repo, nil, nil, newNoopLogger()).UnreadCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	repo = new(RepoMock)
	repo.On("CountUnreadAlerts", mock.Anything).Return(int64(0), errors.New("db down")).Once()
	_, err = New(repo, nil, nil, newNoopLogger()).UnreadCount(context.Background())
	require.Error(t, err)
}

func TestService_RaiseTestEmail(t *testing.T) {
	repo := new(RepoMock)
	pub := new(PublisherMock)
	repo.On("InsertAdminAlert", mock.Anything, mock.MatchedBy(func(a models.Alert) bool {
		p, ok := a.Payload.(models.TestEmailPayload)
		return ok && p.TriggeredBy == "Admin Dashboard"
	})).Return(nil).Once()
	pub.On("Publish", "test_email", mock.Anything).Return(nil).Once()

	s := New(repo, pub, nil, newNoopLogger())
	alert := s.RaiseTestEmail(context.Background(), "", 2)

	assert.Equal(t, "Test email sent to 2 admin recipient(s) via Admin Dashboard.", alert.Message)
	assert.Equal(t, models.AlertTestEmail, alert.Kind())
	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}
