// Package plan разрешает действующий план пользователя и предоставляет
// проверки (guards) перед тарифицируемыми действиями.
package plan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
	"github.com/magabrotheeeer/goflexconnect/internal/services/billing"
	"github.com/magabrotheeeer/goflexconnect/internal/services/tracking"
	"github.com/magabrotheeeer/goflexconnect/internal/storage"
)

// ErrUnauthorized сессия не принадлежит пользователю, о котором спрашивают.
var ErrUnauthorized = errors.New("unauthorized: user mismatch")

// OverrideRepository источник административных переопределений плана.
type OverrideRepository interface {
	GetPlanOverride(ctx context.Context, userID string) (*models.PlanOverride, error)
}

// PhaseProvider источник текущей биллинговой фазы.
type PhaseProvider interface {
	Fetch(ctx context.Context) models.BillingPhaseState
}

// LimitChecker проверка лимитов по журналу использования.
type LimitChecker interface {
	CheckUsageLimit(ctx context.Context, p tracking.CheckParams) (models.LimitCheck, error)
}

// Service разрешение планов.
type Service struct {
	overrides OverrideRepository
	phases    PhaseProvider
	limits    LimitChecker
	log       *slog.Logger
	now       func() time.Time
}

// New создает новый экземпляр Service.
func New(overrides OverrideRepository, phases PhaseProvider, limits LimitChecker, log *slog.Logger) *Service {
	return &Service{
		overrides: overrides,
		phases:    phases,
		limits:    limits,
		log:       log,
		now:       time.Now,
	}
}

// ResolveUserPlan вычисляет план пользователя userID. Базовый план берётся
// из метаданных сессии, активное переопределение заменяет его, а
// биллинговая фаза определяет EffectivePlan. Результат не кэшируется.
func (s *Service) ResolveUserPlan(ctx context.Context, session models.Session, userID string) (models.ResolvedPlan, error) {
	const op = "plan.ResolveUserPlan"
	if session.UserID == "" || session.UserID != userID {
		return models.ResolvedPlan{}, fmt.Errorf("%s: %w", op, ErrUnauthorized)
	}

	base := models.NormalizePlanID(session.Plan)
	resolved := models.ResolvedPlan{Plan: base, BasePlan: base}

	o, err := s.overrides.GetPlanOverride(ctx, userID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		s.log.Error("failed to read plan override, using base plan",
			slog.String("op", op), sl.UserID(userID), sl.Err(err))
	case o.ActiveAt(s.now()):
		p := models.NormalizePlanID(string(o.PlanID))
		resolved.Plan = p
		resolved.Override = &p
		resolved.Reason = o.Reason
	}

	resolved.BillingPhase = s.phases.Fetch(ctx)
	resolved.EffectivePlan = models.PlanFree
	if billing.ShouldHaveProFeatures(resolved.Plan, resolved.BillingPhase.Phase) {
		resolved.EffectivePlan = models.PlanPro
	}
	return resolved, nil
}

// EffectivePlan короткая форма ResolveUserPlan.
func (s *Service) EffectivePlan(ctx context.Context, session models.Session) (models.PlanID, error) {
	resolved, err := s.ResolveUserPlan(ctx, session, session.UserID)
	if err != nil {
		return "", err
	}
	return resolved.EffectivePlan, nil
}

// AssertCanCreateProject можно ли создать ещё один проект.
func (s *Service) AssertCanCreateProject(ctx context.Context, session models.Session, userID string) (models.LimitCheck, error) {
	return s.guard(ctx, session, userID, tracking.CheckParams{LimitType: models.LimitProjects})
}

// AssertCanCreateSurvey можно ли создать опрос в проекте.
func (s *Service) AssertCanCreateSurvey(ctx context.Context, session models.Session, userID, projectID string) (models.LimitCheck, error) {
	return s.guard(ctx, session, userID, tracking.CheckParams{LimitType: models.LimitSurveys, ProjectID: projectID})
}

// AssertCanRecordMeasurement можно ли добавить count замеров в опрос.
func (s *Service) AssertCanRecordMeasurement(ctx context.Context, session models.Session, userID, surveyID string, count int64) (models.LimitCheck, error) {
	return s.guard(ctx, session, userID, tracking.CheckParams{
		LimitType:       models.LimitMeasurements,
		SurveyID:        surveyID,
		AdditionalCount: count,
	})
}

// AssertCanUseAIInsights можно ли запросить AI-анализ.
func (s *Service) AssertCanUseAIInsights(ctx context.Context, session models.Session, userID string) (models.LimitCheck, error) {
	return s.guard(ctx, session, userID, tracking.CheckParams{LimitType: models.LimitAIInsights})
}

// AssertCanExportHeatmap можно ли экспортировать тепловую карту.
func (s *Service) AssertCanExportHeatmap(ctx context.Context, session models.Session, userID string) (models.LimitCheck, error) {
	return s.guard(ctx, session, userID, tracking.CheckParams{LimitType: models.LimitHeatmapExports})
}

// AssertCanRunSpeedTest можно ли запустить тест скорости.
func (s *Service) AssertCanRunSpeedTest(ctx context.Context, session models.Session, userID string) (models.LimitCheck, error) {
	return s.guard(ctx, session, userID, tracking.CheckParams{LimitType: models.LimitSpeedTests})
}

func (s *Service) guard(ctx context.Context, session models.Session, userID string, p tracking.CheckParams) (models.LimitCheck, error) {
	const op = "plan.guard"
	resolved, err := s.ResolveUserPlan(ctx, session, userID)
	if err != nil {
		return models.LimitCheck{}, err
	}
	if resolved.EffectivePlan == models.PlanPro {
		return models.LimitCheck{Allowed: true}, nil
	}

	p.UserID = userID
	p.PlanID = resolved.EffectivePlan
	check, err := s.limits.CheckUsageLimit(ctx, p)
	if err != nil {
		return models.LimitCheck{}, fmt.Errorf("%s: %w", op, err)
	}
	if !check.Allowed {
		return check, nil
	}
	return models.LimitCheck{Allowed: true}, nil
}
