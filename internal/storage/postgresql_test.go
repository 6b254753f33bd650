package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/goflexconnect/internal/models"
)

func TestStorage_UsageEvents(t *testing.T) {
	s := setupTestDatabase(t)
	f := &testDataFactory{storage: s}
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	f.event(t, "user-1", models.EventProjectCreated, "p1", "", 1, false, now)
	f.event(t, "user-1", models.EventMeasurementRecorded, "p1", "s1", 25, false, now.Add(time.Second))
	f.event(t, "user-1", models.EventProjectCreated, "p9", "", 1, true, now)
	f.event(t, "user-2", models.EventProjectCreated, "p2", "", 1, false, now)

	t.Run("list real events", func(t *testing.T) {
		events, err := s.ListUsageEvents(ctx, "user-1", false)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, models.EventProjectCreated, events[0].EventType)
		assert.Empty(t, events[0].SurveyID)
		assert.Equal(t, "s1", events[1].SurveyID)
		assert.Equal(t, 25, events[1].Count)
		assert.False(t, events[1].IsTest)
	})

	t.Run("list test events", func(t *testing.T) {
		events, err := s.ListUsageEvents(ctx, "user-1", true)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.True(t, events[0].IsTest)
	})

	t.Run("delete test events keeps real ones", func(t *testing.T) {
		n, err := s.DeleteTestUsageEvents(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = s.DeleteTestUsageEvents(ctx, "user-1")
		require.NoError(t, err)
		assert.Zero(t, n)

		events, err := s.ListUsageEvents(ctx, "user-1", false)
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("purge removes everything for one user", func(t *testing.T) {
		n, err := s.PurgeUsageEvents(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		other, err := s.ListUsageEvents(ctx, "user-2", false)
		require.NoError(t, err)
		assert.Len(t, other, 1)
	})

	t.Run("invalid count rejected", func(t *testing.T) {
		err := s.InsertUsageEvent(ctx, models.UsageEvent{
			ID: uuid.NewString(), UserID: "user-3", EventType: models.EventSpeedTestRun, Count: 0, CreatedAt: now,
		})
		require.Error(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.ListUsageEvents(cctx, "user-1", false)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestStorage_PlanOverrides(t *testing.T) {
	s := setupTestDatabase(t)
	ctx := context.Background()

	_, err := s.GetPlanOverride(ctx, "nobody")
	require.ErrorIs(t, err, ErrNotFound)

	expires := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Microsecond)
	stored, err := s.UpsertPlanOverride(ctx, models.PlanOverride{
		UserID: "user-1", PlanID: models.PlanPro, Reason: "beta tester", ExpiresAt: &expires, GrantedBy: "admin-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PlanPro, stored.PlanID)
	require.NotNil(t, stored.ExpiresAt)
	assert.True(t, expires.Equal(*stored.ExpiresAt))

	updated, err := s.UpsertPlanOverride(ctx, models.PlanOverride{
		UserID: "user-1", PlanID: models.PlanPro, Reason: "Manual PRO access", GrantedBy: "admin-2",
	})
	require.NoError(t, err)
	assert.Nil(t, updated.ExpiresAt)
	assert.Equal(t, "admin-2", updated.GrantedBy)
	assert.Equal(t, stored.CreatedAt, updated.CreatedAt)

	got, err := s.GetPlanOverride(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Manual PRO access", got.Reason)

	list, err := s.ListPlanOverrides(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	deleted, err := s.DeletePlanOverride(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeletePlanOverride(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestStorage_BillingPhase(t *testing.T) {
	s := setupTestDatabase(t)
	ctx := context.Background()

	t.Run("lazy create under concurrency", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make([]error, 8)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				state, err := s.GetBillingPhase(ctx)
				if err == nil && state.Phase != models.PhaseBetaFree {
					err = errors.New("unexpected phase " + string(state.Phase))
				}
				errs[i] = err
			}(i)
		}
		wg.Wait()
		for _, err := range errs {
			require.NoError(t, err)
		}

		var rows int
		require.NoError(t, s.DB.QueryRow(`SELECT COUNT(*) FROM app_settings`).Scan(&rows))
		assert.Equal(t, 1, rows)
	})

	t.Run("save and read notice", func(t *testing.T) {
		start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
		days := 14
		saved, err := s.SaveBillingPhase(ctx, models.BillingPhaseState{
			Phase: models.PhaseNotice, NoticeStartAt: &start, NoticeDays: &days,
		})
		require.NoError(t, err)
		assert.Equal(t, models.PhaseNotice, saved.Phase)

		got, err := s.GetBillingPhase(ctx)
		require.NoError(t, err)
		require.NotNil(t, got.NoticeStartAt)
		require.NotNil(t, got.NoticeDays)
		assert.True(t, start.Equal(*got.NoticeStartAt))
		assert.Equal(t, 14, *got.NoticeDays)
	})

	t.Run("clear notice fields", func(t *testing.T) {
		saved, err := s.SaveBillingPhase(ctx, models.BillingPhaseState{Phase: models.PhasePaidLive})
		require.NoError(t, err)
		assert.Nil(t, saved.NoticeStartAt)
		assert.Nil(t, saved.NoticeDays)
	})
}

func TestStorage_AdminAlerts(t *testing.T) {
	s := setupTestDatabase(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	first := models.Alert{
		ID: uuid.NewString(), UserID: "user-1", Title: "Usage warning", Message: "80% of projects",
		Payload: models.UsageThresholdPayload{
			Email: "tech@example.com", LimitType: models.LimitProjects, Severity: models.SeverityWarning,
			Current: 4, Limit: 5, Percentage: 80,
		},
		CreatedAt: now.Add(-time.Hour),
	}
	second := models.Alert{
		ID: uuid.NewString(), Title: "New user", Message: "signup",
		Payload:   models.NewUserPayload{Email: "new@example.com", SignedUpAt: now},
		CreatedAt: now,
	}
	old := models.Alert{
		ID: uuid.NewString(), Title: "Old", Message: "old",
		Payload:   models.TestEmailPayload{TriggeredBy: "admin"},
		CreatedAt: now.AddDate(0, 0, -30),
	}
	for _, a := range []models.Alert{first, second, old} {
		require.NoError(t, s.InsertAdminAlert(ctx, a))
	}

	require.Error(t, s.InsertAdminAlert(ctx, models.Alert{ID: uuid.NewString()}), "payload is required")

	alerts, err := s.ListAdminAlerts(ctx, AlertFilter{Limit: 10, Since: now.AddDate(0, 0, -7)})
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, second.ID, alerts[0].ID)
	assert.Equal(t, models.AlertUsageThreshold, alerts[1].Kind())
	payload, ok := alerts[1].Payload.(models.UsageThresholdPayload)
	require.True(t, ok)
	assert.Equal(t, int64(4), payload.Current)

	unread, err := s.CountUnreadAlerts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), unread)

	n, err := s.MarkAlertsRead(ctx, []string{first.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	onlyUnread, err := s.ListAdminAlerts(ctx, AlertFilter{Limit: 10, Since: now.AddDate(0, 0, -7), UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, onlyUnread, 1)
	assert.Equal(t, second.ID, onlyUnread[0].ID)

	n, err = s.MarkAlertsRead(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	unread, err = s.CountUnreadAlerts(ctx)
	require.NoError(t, err)
	assert.Zero(t, unread)
}
