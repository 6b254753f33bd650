// Package tracking ведёт журнал событий использования и считает по нему
// сводки и проверки лимитов. Запись событий работает по принципу fail open:
// ошибка хранилища логируется и не мешает действию пользователя.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/goflexconnect/internal/lib/period"
	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
	"github.com/magabrotheeeer/goflexconnect/internal/metrics"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
	"github.com/magabrotheeeer/goflexconnect/internal/plans"
)

// ErrValidation событие или параметры проверки не прошли валидацию.
var ErrValidation = errors.New("invalid usage event")

var (
	// ErrMissingProjectID для лимита опросов и события создания проекта
	// нужен идентификатор проекта.
	ErrMissingProjectID = fmt.Errorf("%w: project id is required", ErrValidation)
	// ErrMissingSurveyID для лимита замеров нужен идентификатор опроса.
	ErrMissingSurveyID = fmt.Errorf("%w: survey id is required for measurements limit check", ErrValidation)
	// ErrQueryTimeout выборка тестовых событий не уложилась в отведённое время.
	ErrQueryTimeout = errors.New("usage query timed out")
)

// DefaultTestQueryTimeout ограничение на выборку тестовых событий.
const DefaultTestQueryTimeout = 10 * time.Second

// EventRepository хранилище журнала событий.
type EventRepository interface {
	InsertUsageEvent(ctx context.Context, event models.UsageEvent) error
	ListUsageEvents(ctx context.Context, userID string, isTest bool) ([]models.UsageEvent, error)
}

// AlertRaiser поднимает административные оповещения.
type AlertRaiser interface {
	Raise(ctx context.Context, alert models.Alert)
}

// TrackResult результат записи события. Tracked == false означает, что
// событие потеряно; Err содержит причину. Вызывающий сам решает, критично ли это.
type TrackResult struct {
	Tracked bool
	Err     error
}

// CheckParams параметры проверки лимита.
type CheckParams struct {
	UserID          string
	PlanID          models.PlanID
	LimitType       models.LimitType
	ProjectID       string
	SurveyID        string
	AdditionalCount int64
}

// ThresholdParams параметры проверки порога для оповещения администраторов.
type ThresholdParams struct {
	UserID    string
	UserEmail string
	PlanID    models.PlanID
	LimitType models.LimitType
	ProjectID string
	SurveyID  string
}

// Service учёт использования.
type Service struct {
	repo             EventRepository
	alerts           AlertRaiser
	metrics          *metrics.Metrics
	log              *slog.Logger
	now              func() time.Time
	testQueryTimeout time.Duration
}

// Option настраивает Service.
type Option func(*Service)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithTestQueryTimeout задаёт ограничение на выборку тестовых событий.
func WithTestQueryTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.testQueryTimeout = d
		}
	}
}

// New создает новый экземпляр Service.
func New(repo EventRepository, alerts AlertRaiser, m *metrics.Metrics, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:             repo,
		alerts:           alerts,
		metrics:          m,
		log:              log,
		now:              time.Now,
		testQueryTimeout: DefaultTestQueryTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateContext проверяет, что событие несёт идентификаторы, по которым
// оно учитывается в сводке. Проект без идентификатора не попадает в
// подсчёт проектов.
func ValidateContext(eventType models.EventType, uc models.UsageContext) error {
	if eventType == models.EventProjectCreated && uc.ProjectID == "" {
		return ErrMissingProjectID
	}
	return nil
}

// TrackUsageEvent записывает одно событие. Ошибка не возвращается наружу
// как отказ: действие пользователя уже разрешено.
func (s *Service) TrackUsageEvent(ctx context.Context, userID string, eventType models.EventType, uc models.UsageContext, isTest bool) TrackResult {
	const op = "tracking.TrackUsageEvent"
	log := s.log.With(slog.String("op", op), sl.UserID(userID), slog.String("event_type", string(eventType)))

	count := uc.Count
	if count == 0 {
		count = 1
	}
	var err error
	switch {
	case userID == "":
		err = fmt.Errorf("%w: user id is empty", ErrValidation)
	case !eventType.Valid():
		err = fmt.Errorf("%w: unknown event type %q", ErrValidation, eventType)
	case count < 1:
		err = fmt.Errorf("%w: count must be positive, got %d", ErrValidation, count)
	default:
		err = ValidateContext(eventType, uc)
	}
	if err == nil {
		err = s.repo.InsertUsageEvent(ctx, models.UsageEvent{
			ID:        uuid.NewString(),
			UserID:    userID,
			EventType: eventType,
			ProjectID: uc.ProjectID,
			SurveyID:  uc.SurveyID,
			Count:     count,
			CreatedAt: s.now().UTC(),
			IsTest:    isTest,
		})
	}
	if err != nil {
		log.Error("failed to track usage event", sl.Err(err))
		s.metrics.TrackingFailed()
		return TrackResult{Err: fmt.Errorf("%s: %w", op, err)}
	}

	s.metrics.EventRecorded(string(eventType), isTest)
	return TrackResult{Tracked: true}
}

// GetUsageSummary пересчитывает сводку по всем нетестовым событиям пользователя.
func (s *Service) GetUsageSummary(ctx context.Context, userID string) (models.UsageSummary, error) {
	const op = "tracking.GetUsageSummary"
	events, err := s.repo.ListUsageEvents(ctx, userID, false)
	if err != nil {
		return models.EmptyUsageSummary(), fmt.Errorf("%s: %w", op, err)
	}
	return Summarize(events, s.now()), nil
}

// GetTestUsageSummary то же по тестовым событиям с ограничением по времени.
func (s *Service) GetTestUsageSummary(ctx context.Context, userID string) (models.UsageSummary, error) {
	const op = "tracking.GetTestUsageSummary"
	ctx, cancel := context.WithTimeout(ctx, s.testQueryTimeout)
	defer cancel()

	type result struct {
		events []models.UsageEvent
		err    error
	}
	done := make(chan result, 1)
	go func() {
		events, err := s.repo.ListUsageEvents(ctx, userID, true)
		done <- result{events: events, err: err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return models.EmptyUsageSummary(), fmt.Errorf("%s: %w", op, ErrQueryTimeout)
		}
		return models.EmptyUsageSummary(), fmt.Errorf("%s: %w", op, ctx.Err())
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) {
				return models.EmptyUsageSummary(), fmt.Errorf("%s: %w", op, ErrQueryTimeout)
			}
			return models.EmptyUsageSummary(), fmt.Errorf("%s: %w", op, r.err)
		}
		return Summarize(r.events, s.now()), nil
	}
}

// Summarize считает сводку по набору событий относительно момента now.
// Суточный период начинается в полночь UTC, месячный по часам сервера.
func Summarize(events []models.UsageEvent, now time.Time) models.UsageSummary {
	summary := models.EmptyUsageSummary()
	dayStart := period.StartOfUTCDay(now)
	monthStart := period.StartOfMonth(now)
	projects := make(map[string]struct{})

	for _, e := range events {
		count := int64(e.Count)
		if count < 1 {
			count = 1
		}
		switch e.EventType {
		case models.EventProjectCreated:
			if e.ProjectID != "" {
				projects[e.ProjectID] = struct{}{}
			}
		case models.EventSurveyCreated:
			if e.ProjectID != "" {
				summary.SurveysPerProject[e.ProjectID]++
			}
		case models.EventMeasurementRecorded:
			if e.SurveyID != "" {
				summary.MeasurementsPerSurvey[e.SurveyID] += count
			}
		case models.EventSpeedTestRun:
			if !e.CreatedAt.Before(dayStart) {
				summary.SpeedTestsToday += count
			}
		case models.EventAIInsightGenerated:
			if !e.CreatedAt.Before(monthStart) {
				summary.AIInsightsThisMonth += count
			}
		case models.EventHeatmapExported:
			if !e.CreatedAt.Before(monthStart) {
				summary.HeatmapExportsThisMonth += count
			}
		}
	}
	summary.ProjectCount = int64(len(projects))
	return summary
}

// CheckUsageLimit проверяет, уложится ли действие в лимит плана.
func (s *Service) CheckUsageLimit(ctx context.Context, p CheckParams) (models.LimitCheck, error) {
	return s.checkLimit(ctx, p, false)
}

// CheckTestUsageLimit то же по тестовым событиям.
func (s *Service) CheckTestUsageLimit(ctx context.Context, p CheckParams) (models.LimitCheck, error) {
	return s.checkLimit(ctx, p, true)
}

func (s *Service) checkLimit(ctx context.Context, p CheckParams, isTest bool) (models.LimitCheck, error) {
	const op = "tracking.CheckUsageLimit"
	if p.PlanID == models.PlanPro {
		return models.LimitCheck{Allowed: true, Limit: plans.Unlimited}, nil
	}
	if !p.LimitType.Valid() {
		return models.LimitCheck{Allowed: true, Limit: plans.Unlimited}, nil
	}
	switch {
	case p.LimitType == models.LimitSurveys && p.ProjectID == "":
		return models.LimitCheck{}, fmt.Errorf("%s: %w", op, ErrMissingProjectID)
	case p.LimitType == models.LimitMeasurements && p.SurveyID == "":
		return models.LimitCheck{}, fmt.Errorf("%s: %w", op, ErrMissingSurveyID)
	}
	additional := p.AdditionalCount
	if additional <= 0 {
		additional = 1
	}

	var (
		summary models.UsageSummary
		err     error
	)
	if isTest {
		summary, err = s.GetTestUsageSummary(ctx, p.UserID)
	} else {
		summary, err = s.GetUsageSummary(ctx, p.UserID)
	}
	if err != nil {
		// Сводка недоступна: считаем использование нулевым.
		s.log.Error("failed to get usage summary, assuming no usage",
			slog.String("op", op), sl.UserID(p.UserID), slog.Bool("is_test", isTest), sl.Err(err))
		summary = models.EmptyUsageSummary()
	}

	limit := plans.LimitsFor(p.PlanID).For(p.LimitType)
	current := CurrentFor(summary, p.LimitType, p.ProjectID, p.SurveyID)
	if limit == plans.Unlimited {
		return models.LimitCheck{Allowed: true, Current: current, Limit: limit}, nil
	}

	check := models.LimitCheck{
		Allowed: current+additional <= limit,
		Current: current,
		Limit:   limit,
	}
	if !check.Allowed {
		check.Message = LimitMessage(p.LimitType, limit)
	}
	return check, nil
}

// CurrentFor извлекает из сводки счётчик, относящийся к виду лимита.
func CurrentFor(summary models.UsageSummary, limitType models.LimitType, projectID, surveyID string) int64 {
	switch limitType {
	case models.LimitProjects:
		return summary.ProjectCount
	case models.LimitSurveys:
		return summary.SurveysPerProject[projectID]
	case models.LimitMeasurements:
		return summary.MeasurementsPerSurvey[surveyID]
	case models.LimitSpeedTests:
		return summary.SpeedTestsToday
	case models.LimitAIInsights:
		return summary.AIInsightsThisMonth
	case models.LimitHeatmapExports:
		return summary.HeatmapExportsThisMonth
	}
	return 0
}

// LimitMessage текст для пользователя при достижении лимита.
func LimitMessage(limitType models.LimitType, limit int64) string {
	switch limitType {
	case models.LimitProjects:
		return fmt.Sprintf("You've reached the maximum number of projects (%d) allowed on GoFlexConnect Free. Archive an existing project or upgrade to Pro for unlimited projects.", limit)
	case models.LimitSurveys:
		return fmt.Sprintf("You've reached the survey limit (%d) for this site on GoFlexConnect Free. Upgrade to Pro to run unlimited surveys for this site.", limit)
	case models.LimitMeasurements:
		return fmt.Sprintf("This survey already has the maximum number of measurements (%d) for GoFlexConnect Free. Start a new survey or upgrade to Pro for deeper data collection.", limit)
	case models.LimitSpeedTests:
		return fmt.Sprintf("You've used all your speed tests for today (%d) on GoFlexConnect Free. Upgrade to Pro for unlimited speed tests.", limit)
	case models.LimitAIInsights:
		return fmt.Sprintf("You've used all AI Insights for this month (%d) on GoFlexConnect Free. Upgrade to Pro for unlimited AI-powered analysis.", limit)
	case models.LimitHeatmapExports:
		return fmt.Sprintf("You've used all heatmap exports for this month (%d) on GoFlexConnect Free. Upgrade to Pro to export unlimited heatmaps.", limit)
	}
	return ""
}

// CheckAndAlertUsageThreshold поднимает оповещение usage_threshold, когда
// FREE-пользователь использовал 80% или 100% лимита. Никогда не блокирует.
func (s *Service) CheckAndAlertUsageThreshold(ctx context.Context, p ThresholdParams) {
	const op = "tracking.CheckAndAlertUsageThreshold"
	if p.PlanID == models.PlanPro {
		return
	}
	log := s.log.With(slog.String("op", op), sl.UserID(p.UserID), slog.String("limit_type", string(p.LimitType)))

	check, err := s.CheckUsageLimit(ctx, CheckParams{
		UserID:    p.UserID,
		PlanID:    p.PlanID,
		LimitType: p.LimitType,
		ProjectID: p.ProjectID,
		SurveyID:  p.SurveyID,
	})
	if err != nil {
		log.Warn("threshold check skipped", sl.Err(err))
		return
	}

	ratio := plans.Ratio(check.Current, check.Limit)
	if ratio < plans.UsageWarning {
		return
	}
	severity := models.SeverityWarning
	if ratio >= plans.UsageCritical {
		severity = models.SeverityCritical
	}
	percent := int64(math.Round(ratio * 100))
	limitName := strings.Replace(string(p.LimitType), "_", " ", 1)

	s.alerts.Raise(ctx, models.Alert{
		UserID:  p.UserID,
		Title:   fmt.Sprintf("Usage %s: %s", severity, limitName),
		Message: fmt.Sprintf("%s has reached %d%% of their %s limit (%d/%d).", p.UserEmail, percent, limitName, check.Current, check.Limit),
		Payload: models.UsageThresholdPayload{
			Email:      p.UserEmail,
			LimitType:  p.LimitType,
			Severity:   severity,
			Current:    check.Current,
			Limit:      check.Limit,
			Percentage: ratio,
			ProjectID:  p.ProjectID,
			SurveyID:   p.SurveyID,
		},
	})
}
