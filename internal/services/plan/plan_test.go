package plan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/goflexconnect/internal/models"
	"github.com/magabrotheeeer/goflexconnect/internal/services/tracking"
	"github.com/magabrotheeeer/goflexconnect/internal/storage"
)

type OverrideRepoMock struct{ mock.Mock }

func (m *OverrideRepoMock) GetPlanOverride(ctx context.Context, userID string) (*models.PlanOverride, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PlanOverride), args.Error(1)
}

type PhaseMock struct{ mock.Mock }

func (m *PhaseMock) Fetch(ctx context.Context) models.BillingPhaseState {
	return m.Called(ctx).Get(0).(models.BillingPhaseState)
}

type LimitsMock struct{ mock.Mock }

func (m *LimitsMock) CheckUsageLimit(ctx context.Context, p tracking.CheckParams) (models.LimitCheck, error) {
	args := m.Called(ctx, p)
	return args.Get(0).(models.LimitCheck), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

var notFound = fmt.Errorf("storage.GetPlanOverride: %w", storage.ErrNotFound)

func phase(p models.BillingPhase) models.BillingPhaseState {
	return models.BillingPhaseState{Phase: p}
}

func TestResolveUserPlan(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name          string
		session       models.Session
		override      *models.PlanOverride
		overrideErr   error
		phase         models.BillingPhase
		wantPlan      models.PlanID
		wantBase      models.PlanID
		wantOverride  bool
		wantEffective models.PlanID
	}{
		{
			name:          "free user in paid live",
			session:       models.Session{UserID: "u1"},
			overrideErr:   notFound,
			phase:         models.PhasePaidLive,
			wantPlan:      models.PlanFree,
			wantBase:      models.PlanFree,
			wantEffective: models.PlanFree,
		},
		{
			name:          "free user in beta gets pro features",
			session:       models.Session{UserID: "u1"},
			overrideErr:   notFound,
			phase:         models.PhaseBetaFree,
			wantPlan:      models.PlanFree,
			wantBase:      models.PlanFree,
			wantEffective: models.PlanPro,
		},
		{
			name:          "free user in notice gets pro features",
			session:       models.Session{UserID: "u1"},
			overrideErr:   notFound,
			phase:         models.PhaseNotice,
			wantPlan:      models.PlanFree,
			wantBase:      models.PlanFree,
			wantEffective: models.PlanPro,
		},
		{
			name:          "metadata plan pro",
			session:       models.Session{UserID: "u1", Plan: "PRO"},
			overrideErr:   notFound,
			phase:         models.PhasePaidLive,
			wantPlan:      models.PlanPro,
			wantBase:      models.PlanPro,
			wantEffective: models.PlanPro,
		},
		{
			name:          "active override wins",
			session:       models.Session{UserID: "u1"},
			override:      &models.PlanOverride{UserID: "u1", PlanID: models.PlanPro, Reason: "partner", ExpiresAt: &future},
			phase:         models.PhasePaidLive,
			wantPlan:      models.PlanPro,
			wantBase:      models.PlanFree,
			wantOverride:  true,
			wantEffective: models.PlanPro,
		},
		{
			name:          "expired override ignored",
			session:       models.Session{UserID: "u1"},
			override:      &models.PlanOverride{UserID: "u1", PlanID: models.PlanPro, ExpiresAt: &past},
			phase:         models.PhasePaidLive,
			wantPlan:      models.PlanFree,
			wantBase:      models.PlanFree,
			wantEffective: models.PlanFree,
		},
		{
			name:          "permanent override",
			session:       models.Session{UserID: "u1"},
			override:      &models.PlanOverride{UserID: "u1", PlanID: models.PlanPro},
			phase:         models.PhasePaidLive,
			wantPlan:      models.PlanPro,
			wantBase:      models.PlanFree,
			wantOverride:  true,
			wantEffective: models.PlanPro,
		},
		{
			name:          "override read failure keeps base plan",
			session:       models.Session{UserID: "u1", Plan: "pro"},
			overrideErr:   errors.New("db down"),
			phase:         models.PhasePaidLive,
			wantPlan:      models.PlanPro,
			wantBase:      models.PlanPro,
			wantEffective: models.PlanPro,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(OverrideRepoMock)
			phases := new(PhaseMock)
			repo.On("GetPlanOverride", mock.Anything, "u1").Return(tt.override, tt.overrideErr).Once()
			phases.On("Fetch", mock.Anything).Return(phase(tt.phase)).Once()

			s := New(repo, phases, new(LimitsMock), newNoopLogger())
			s.now = func() time.Time { return now }

			got, err := s.ResolveUserPlan(context.Background(), tt.session, "u1")
			require.NoError(t, err)
			assert.Equal(t, tt.wantPlan, got.Plan)
			assert.Equal(t, tt.wantBase, got.BasePlan)
			assert.Equal(t, tt.wantOverride, got.Override != nil)
			assert.Equal(t, tt.wantEffective, got.EffectivePlan)
			assert.Equal(t, tt.phase, got.BillingPhase.Phase)
			if tt.wantOverride {
				assert.Equal(t, tt.override.Reason, got.Reason)
			}
		})
	}
}

func TestResolveUserPlan_UserMismatch(t *testing.T) {
	repo := new(OverrideRepoMock)
	phases := new(PhaseMock)
	s := New(repo, phases, new(LimitsMock), newNoopLogger())

	_, err := s.ResolveUserPlan(context.Background(), models.Session{UserID: "u1"}, "u2")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = s.ResolveUserPlan(context.Background(), models.Session{}, "")
	require.ErrorIs(t, err, ErrUnauthorized)

	repo.AssertNotCalled(t, "GetPlanOverride", mock.Anything, mock.Anything)
	phases.AssertNotCalled(t, "Fetch", mock.Anything)
}

func TestGuards(t *testing.T) {
	session := models.Session{UserID: "u1"}
	ctx := context.Background()

	type guardFn func(s *Service) (models.LimitCheck, error)
	guards := map[models.LimitType]struct {
		call   guardFn
		params tracking.CheckParams
	}{
		models.LimitProjects: {
			call:   func(s *Service) (models.LimitCheck, error) { return s.AssertCanCreateProject(ctx, session, "u1") },
			params: tracking.CheckParams{UserID: "u1", PlanID: models.PlanFree, LimitType: models.LimitProjects},
		},
		models.LimitSurveys: {
			call:   func(s *Service) (models.LimitCheck, error) { return s.AssertCanCreateSurvey(ctx, session, "u1", "p1") },
			params: tracking.CheckParams{UserID: "u1", PlanID: models.PlanFree, LimitType: models.LimitSurveys, ProjectID: "p1"},
		},
		models.LimitMeasurements: {
			call: func(s *Service) (models.LimitCheck, error) {
				return s.AssertCanRecordMeasurement(ctx, session, "u1", "s1", 3)
			},
			params: tracking.CheckParams{UserID: "u1", PlanID: models.PlanFree, LimitType: models.LimitMeasurements, SurveyID: "s1", AdditionalCount: 3},
		},
		models.LimitAIInsights: {
			call:   func(s *Service) (models.LimitCheck, error) { return s.AssertCanUseAIInsights(ctx, session, "u1") },
			params: tracking.CheckParams{UserID: "u1", PlanID: models.PlanFree, LimitType: models.LimitAIInsights},
		},
		models.LimitHeatmapExports: {
			call:   func(s *Service) (models.LimitCheck, error) { return s.AssertCanExportHeatmap(ctx, session, "u1") },
			params: tracking.CheckParams{UserID: "u1", PlanID: models.PlanFree, LimitType: models.LimitHeatmapExports},
		},
		models.LimitSpeedTests: {
			call:   func(s *Service) (models.LimitCheck, error) { return s.AssertCanRunSpeedTest(ctx, session, "u1") },
			params: tracking.CheckParams{UserID: "u1", PlanID: models.PlanFree, LimitType: models.LimitSpeedTests},
		},
	}

	for lt, g := range guards {
		t.Run(string(lt)+"/denied", func(t *testing.T) {
			repo := new(OverrideRepoMock)
			phases := new(PhaseMock)
			limits := new(LimitsMock)
			repo.On("GetPlanOverride", mock.Anything, "u1").Return(nil, notFound)
			phases.On("Fetch", mock.Anything).Return(phase(models.PhasePaidLive))
			denied := models.LimitCheck{Allowed: false, Current: 5, Limit: 5, Message: "limit reached"}
			limits.On("CheckUsageLimit", mock.Anything, g.params).Return(denied, nil).Once()

			got, err := g.call(New(repo, phases, limits, newNoopLogger()))
			require.NoError(t, err)
			assert.Equal(t, denied, got)
			limits.AssertExpectations(t)
		})

		t.Run(string(lt)+"/allowed", func(t *testing.T) {
			repo := new(OverrideRepoMock)
			phases := new(PhaseMock)
			limits := new(LimitsMock)
			repo.On("GetPlanOverride", mock.Anything, "u1").Return(nil, notFound)
			phases.On("Fetch", mock.Anything).Return(phase(models.PhasePaidLive))
			limits.On("CheckUsageLimit", mock.Anything, g.params).
				Return(models.LimitCheck{Allowed: true, Current: 1, Limit: 5}, nil).Once()

			got, err := g.call(New(repo, phases, limits, newNoopLogger()))
			require.NoError(t, err)
			assert.Equal(t, models.LimitCheck{Allowed: true}, got)
		})

		t.Run(string(lt)+"/beta skips limits", func(t *testing.T) {
			repo := new(OverrideRepoMock)
			phases := new(PhaseMock)
			limits := new(LimitsMock)
			repo.On("GetPlanOverride", mock.Anything, "u1").Return(nil, notFound)
			phases.On("Fetch", mock.Anything).Return(phase(models.PhaseBetaFree))

			got, err := g.call(New(repo, phases, limits, newNoopLogger()))
			require.NoError(t, err)
			assert.True(t, got.Allowed)
			limits.AssertNotCalled(t, "CheckUsageLimit", mock.Anything, mock.Anything)
		})
	}
}

func TestGuard_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("user mismatch", func(t *testing.T) {
		s := New(new(OverrideRepoMock), new(PhaseMock), new(LimitsMock), newNoopLogger())
		_, err := s.AssertCanCreateProject(ctx, models.Session{UserID: "u1"}, "u2")
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("validation error surfaces", func(t *testing.T) {
		repo := new(OverrideRepoMock)
		phases := new(PhaseMock)
		limits := new(LimitsMock)
		repo.On("GetPlanOverride", mock.Anything, "u1").Return(nil, notFound)
		phases.On("Fetch", mock.Anything).Return(phase(models.PhasePaidLive))
		limits.On("CheckUsageLimit", mock.Anything, mock.Anything).
			Return(models.LimitCheck{}, tracking.ErrMissingProjectID)

		s := New(repo, phases, limits, newNoopLogger())
		_, err := s.AssertCanCreateSurvey(ctx, models.Session{UserID: "u1"}, "u1", "")
		require.ErrorIs(t, err, tracking.ErrMissingProjectID)
	})
}
