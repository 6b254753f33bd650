// Package notices формирует контекстные уведомления об использовании
// для FREE-пользователей, приближающихся к лимитам плана.
package notices

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
	"github.com/magabrotheeeer/goflexconnect/internal/plans"
)

// PhaseProvider источник текущей биллинговой фазы.
type PhaseProvider interface {
	Fetch(ctx context.Context) models.BillingPhaseState
}

// PlanResolver разрешение плана пользователя.
type PlanResolver interface {
	ResolveUserPlan(ctx context.Context, session models.Session, userID string) (models.ResolvedPlan, error)
}

// SummaryProvider сводка использования.
type SummaryProvider interface {
	GetUsageSummary(ctx context.Context, userID string) (models.UsageSummary, error)
}

// AdminChecker определяет администраторов по сессии.
type AdminChecker func(session models.Session) bool

// Service уведомления об использовании.
type Service struct {
	phases  PhaseProvider
	plans   PlanResolver
	usage   SummaryProvider
	isAdmin AdminChecker
	log     *slog.Logger
}

// New создает новый экземпляр Service.
func New(phases PhaseProvider, resolver PlanResolver, usage SummaryProvider, isAdmin AdminChecker, log *slog.Logger) *Service {
	if isAdmin == nil {
		isAdmin = models.Session.IsAdmin
	}
	return &Service{
		phases:  phases,
		plans:   resolver,
		usage:   usage,
		isAdmin: isAdmin,
		log:     log,
	}
}

// Notices возвращает уведомления для экрана nc. Пустой список не ошибка:
// в BETA_FREE, для администраторов и PRO уведомлений нет.
func (s *Service) Notices(ctx context.Context, session models.Session, nc models.NoticeContext) ([]models.Notice, error) {
	const op = "notices.Notices"
	result := []models.Notice{}

	if s.phases.Fetch(ctx).Phase == models.PhaseBetaFree {
		return result, nil
	}
	if s.isAdmin(session) {
		return result, nil
	}
	resolved, err := s.plans.ResolveUserPlan(ctx, session, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resolved.Plan == models.PlanPro {
		return result, nil
	}

	summary, err := s.usage.GetUsageSummary(ctx, session.UserID)
	if err != nil {
		s.log.Error("failed to fetch usage notices", slog.String("op", op), sl.UserID(session.UserID), sl.Err(err))
		return result, nil
	}

	limits := plans.LimitsFor(models.PlanFree)
	var (
		limitType models.LimitType
		current   int64
	)
	switch nc.Type {
	case models.NoticeDashboard:
		limitType, current = models.LimitProjects, summary.ProjectCount
	case models.NoticeProject:
		limitType, current = models.LimitSurveys, summary.SurveysPerProject[nc.ProjectID]
	case models.NoticeSurvey:
		limitType, current = models.LimitMeasurements, summary.MeasurementsPerSurvey[nc.SurveyID]
	case models.NoticeAIInsights:
		limitType, current = models.LimitAIInsights, summary.AIInsightsThisMonth
	case models.NoticeHeatmap:
		limitType, current = models.LimitHeatmapExports, summary.HeatmapExportsThisMonth
	default:
		return result, nil
	}

	limit := limits.For(limitType)
	if rule, ok := FindRule(limitType, current, limit); ok {
		result = append(result, rule.Build(current, limit))
	}
	return result, nil
}
