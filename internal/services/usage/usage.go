// Package usage единая точка входа перед тарифицируемым действием:
// проверка лимита, запись события, мягкие предупреждения и поиск
// признаков злоупотребления.
package usage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
	"github.com/magabrotheeeer/goflexconnect/internal/metrics"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
	"github.com/magabrotheeeer/goflexconnect/internal/plans"
	"github.com/magabrotheeeer/goflexconnect/internal/services/tracking"
)

// DefaultLockTTL время жизни блокировки пользователя в строгом режиме.
const DefaultLockTTL = 5 * time.Second

// Tracker журнал использования.
type Tracker interface {
	TrackUsageEvent(ctx context.Context, userID string, eventType models.EventType, uc models.UsageContext, isTest bool) tracking.TrackResult
	GetUsageSummary(ctx context.Context, userID string) (models.UsageSummary, error)
	CheckUsageLimit(ctx context.Context, p tracking.CheckParams) (models.LimitCheck, error)
	CheckAndAlertUsageThreshold(ctx context.Context, p tracking.ThresholdParams)
}

// AlertRaiser поднимает административные оповещения.
type AlertRaiser interface {
	Raise(ctx context.Context, alert models.Alert)
}

// Locker распределённая блокировка.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// RecordParams параметры записи использования.
type RecordParams struct {
	UserID    string
	UserEmail string
	PlanID    models.PlanID
	EventType models.EventType
	Context   models.UsageContext
	IsTest    bool
}

// Service оркестрация проверки и записи использования.
type Service struct {
	tracker Tracker
	alerts  AlertRaiser
	locker  Locker
	lockTTL time.Duration
	metrics *metrics.Metrics
	log     *slog.Logger
}

// Option настраивает Service.
type Option func(*Service)

// WithStrictEnforcement включает строгий режим: проверка и запись для одного
// пользователя и вида лимита выполняются под блокировкой.
func WithStrictEnforcement(locker Locker, ttl time.Duration) Option {
	return func(s *Service) {
		s.locker = locker
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// New создает новый экземпляр Service.
func New(tracker Tracker, alerts AlertRaiser, m *metrics.Metrics, log *slog.Logger, opts ...Option) *Service {
	s := &Service{
		tracker: tracker,
		alerts:  alerts,
		lockTTL: DefaultLockTTL,
		metrics: m,
		log:     log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordUsageAndCheckLimit проверяет лимит и записывает событие. Событие
// записывается и при отказе. Ошибка возвращается только для неверных
// параметров проверки или при недоступной блокировке в строгом режиме.
func (s *Service) RecordUsageAndCheckLimit(ctx context.Context, p RecordParams) (models.UsageCheckResult, error) {
	const op = "usage.RecordUsageAndCheckLimit"
	log := s.log.With(slog.String("op", op), sl.UserID(p.UserID), slog.String("event_type", string(p.EventType)))
	planID := models.NormalizePlanID(string(p.PlanID))

	if err := tracking.ValidateContext(p.EventType, p.Context); err != nil {
		return models.UsageCheckResult{}, fmt.Errorf("%s: %w", op, err)
	}

	if planID == models.PlanPro {
		s.track(ctx, p)
		return models.UsageCheckResult{Allowed: true}, nil
	}

	limitType, ok := plans.LimitTypeFor(p.EventType)
	if !ok {
		log.Error("unknown event type, allowing")
		return models.UsageCheckResult{Allowed: true}, nil
	}

	if s.locker != nil {
		unlock, err := s.lock(ctx, p.UserID, limitType)
		if err != nil {
			return models.UsageCheckResult{}, fmt.Errorf("%s: %w", op, err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				log.Warn("failed to release usage lock", sl.Err(err))
			}
		}()
	}

	additional := int64(p.Context.Count)
	if additional < 1 {
		additional = 1
	}
	check, err := s.tracker.CheckUsageLimit(ctx, tracking.CheckParams{
		UserID:          p.UserID,
		PlanID:          planID,
		LimitType:       limitType,
		ProjectID:       p.Context.ProjectID,
		SurveyID:        p.Context.SurveyID,
		AdditionalCount: additional,
	})
	if err != nil {
		return models.UsageCheckResult{}, fmt.Errorf("%s: %w", op, err)
	}

	s.track(ctx, p)

	threshold := tracking.ThresholdParams{
		UserID:    p.UserID,
		UserEmail: p.UserEmail,
		PlanID:    planID,
		LimitType: limitType,
		ProjectID: p.Context.ProjectID,
		SurveyID:  p.Context.SurveyID,
	}

	if !check.Allowed {
		s.metrics.LimitDenied(string(limitType))
		if p.UserEmail != "" {
			s.tracker.CheckAndAlertUsageThreshold(ctx, threshold)
		}
		return models.UsageCheckResult{
			Allowed: false,
			Reason:  check.Message,
			Current: check.Current,
			Limit:   check.Limit,
		}, nil
	}

	ratio := plans.Ratio(check.Current, check.Limit)
	softWarning := ratio >= plans.UsageWarning && ratio < plans.UsageCritical
	if softWarning && p.UserEmail != "" {
		s.tracker.CheckAndAlertUsageThreshold(ctx, threshold)
	}

	if !p.IsTest {
		email := p.UserEmail
		if email == "" {
			email = "unknown"
		}
		s.checkForAbusePatterns(ctx, p.UserID, email, planID)
	}

	return models.UsageCheckResult{
		Allowed:     true,
		SoftWarning: softWarning,
		Current:     check.Current,
		Limit:       check.Limit,
	}, nil
}

func (s *Service) track(ctx context.Context, p RecordParams) {
	// Результат уже залогирован в tracking; действие не блокируется.
	_ = s.tracker.TrackUsageEvent(ctx, p.UserID, p.EventType, p.Context, p.IsTest)
}

func (s *Service) lock(ctx context.Context, userID string, limitType models.LimitType) (func(context.Context) error, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTTL)
	defer cancel()
	return s.locker.Lock(lockCtx, LockKey(userID, limitType), s.lockTTL)
}

// LockKey ключ блокировки строгого режима.
func LockKey(userID string, limitType models.LimitType) string {
	return fmt.Sprintf("usage:lock:%s:%s", userID, limitType)
}

func (s *Service) checkForAbusePatterns(ctx context.Context, userID, email string, planID models.PlanID) {
	const op = "usage.checkForAbusePatterns"
	if planID == models.PlanPro {
		return
	}

	summary, err := s.tracker.GetUsageSummary(ctx, userID)
	if err != nil {
		s.log.Error("error checking abuse patterns", slog.String("op", op), sl.UserID(userID), sl.Err(err))
		return
	}

	findings := AbuseFindings(summary)
	if len(findings) == 0 {
		return
	}
	s.alerts.Raise(ctx, models.Alert{
		UserID:  userID,
		Title:   "Potential abuse detected",
		Message: fmt.Sprintf("FREE user %s has exceeded abuse thresholds:\n%s", email, strings.Join(findings, "\n")),
		Payload: models.AbuseSuspectedPayload{
			Email:    email,
			Findings: findings,
			Summary:  summary,
		},
	})
}

// AbuseFindings сравнивает сводку с порогами злоупотребления. Месячные
// счётчики сравниваются с недельным порогом (суточный × 7).
func AbuseFindings(summary models.UsageSummary) []string {
	var findings []string
	a := plans.Abuse

	if total := summary.TotalMeasurements(); total > a.MeasurementsPerDay {
		findings = append(findings, fmt.Sprintf("%d measurements today (threshold: %d)", total, a.MeasurementsPerDay))
	}
	if summary.SpeedTestsToday > a.SpeedTestsPerDay {
		findings = append(findings, fmt.Sprintf("%d speed tests today (threshold: %d)", summary.SpeedTestsToday, a.SpeedTestsPerDay))
	}
	if weekly := a.AIInsightsPerDay * 7; summary.AIInsightsThisMonth > weekly {
		findings = append(findings, fmt.Sprintf("%d AI insights this month (weekly threshold: %d)", summary.AIInsightsThisMonth, weekly))
	}
	if weekly := a.HeatmapExportsPerDay * 7; summary.HeatmapExportsThisMonth > weekly {
		findings = append(findings, fmt.Sprintf("%d heatmap exports this month (weekly threshold: %d)", summary.HeatmapExportsThisMonth, weekly))
	}
	return findings
}
