// Package selftest набор сценариев самопроверки для консоли администратора.
// Сценарии пишут тестовые события (is_test) от имени вызывающего
// администратора и проверяют лимиты по тестовой сводке.
package selftest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/goflexconnect/internal/lib/sl"
	"github.com/magabrotheeeer/goflexconnect/internal/models"
	"github.com/magabrotheeeer/goflexconnect/internal/plans"
	"github.com/magabrotheeeer/goflexconnect/internal/services/tracking"
)

// Tracker тестовый журнал использования.
type Tracker interface {
	TrackUsageEvent(ctx context.Context, userID string, eventType models.EventType, uc models.UsageContext, isTest bool) tracking.TrackResult
	GetTestUsageSummary(ctx context.Context, userID string) (models.UsageSummary, error)
	CheckTestUsageLimit(ctx context.Context, p tracking.CheckParams) (models.LimitCheck, error)
}

// Cleaner удаляет тестовые события.
type Cleaner interface {
	DeleteTestUsageEvents(ctx context.Context, userID string) (int64, error)
}

// AlertStore сохраняет оповещения без рассылки.
type AlertStore interface {
	InsertAdminAlert(ctx context.Context, alert models.Alert) error
}

// Scenario один сценарий самопроверки.
type Scenario struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	run         func(ctx context.Context, s *Service, admin models.Session) (string, bool, error)
}

// Service самопроверка.
type Service struct {
	tracker   Tracker
	cleaner   Cleaner
	alerts    AlertStore
	log       *slog.Logger
	scenarios []Scenario
	now       func() time.Time
}

// New создает новый экземпляр Service.
func New(tracker Tracker, cleaner Cleaner, alerts AlertStore, log *slog.Logger) *Service {
	return &Service{
		tracker:   tracker,
		cleaner:   cleaner,
		alerts:    alerts,
		log:       log,
		scenarios: defaultScenarios(),
		now:       time.Now,
	}
}

// Scenarios возвращает список сценариев.
func (s *Service) Scenarios() []Scenario {
	return s.scenarios
}

// RunAll запускает все сценарии.
func (s *Service) RunAll(ctx context.Context, admin models.Session) []models.TestResult {
	ids := make([]string, 0, len(s.scenarios))
	for _, sc := range s.scenarios {
		ids = append(ids, sc.ID)
	}
	return s.Run(ctx, admin, ids)
}

// Run запускает сценарии по идентификаторам. Неизвестный идентификатор
// даёт результат FAIL. После прогона тестовые события удаляются.
func (s *Service) Run(ctx context.Context, admin models.Session, ids []string) []models.TestResult {
	const op = "selftest.Run"
	log := s.log.With(slog.String("op", op), sl.UserID(admin.UserID))

	results := make([]models.TestResult, 0, len(ids))
	for _, id := range ids {
		sc, ok := s.find(id)
		if !ok {
			results = append(results, models.TestResult{
				ID:        id,
				Name:      "Unknown test",
				Status:    models.TestFail,
				Details:   fmt.Sprintf("Test %s not found", id),
				Timestamp: s.now().UTC(),
			})
			continue
		}
		results = append(results, s.runScenario(ctx, sc, admin))
	}

	if err := s.DeleteTestUser(ctx, admin.UserID); err != nil {
		log.Warn("cleanup warning", sl.Err(err))
	}
	passed := 0
	for _, r := range results {
		if r.Status == models.TestPass {
			passed++
		}
	}
	log.Info("self-test finished", slog.Int("passed", passed), slog.Int("total", len(results)))
	return results
}

func (s *Service) runScenario(ctx context.Context, sc Scenario, admin models.Session) models.TestResult {
	start := s.now()
	result := models.TestResult{ID: sc.ID, Name: sc.Name, Status: models.TestFail}

	if err := s.DeleteTestUser(ctx, admin.UserID); err != nil {
		result.Details = fmt.Sprintf("Error: %v", err)
	} else {
		details, pass, err := sc.run(ctx, s, admin)
		switch {
		case err != nil:
			result.Details = fmt.Sprintf("Error: %v", err)
		case pass:
			result.Status = models.TestPass
			result.Details = details
		default:
			result.Details = details
		}
		if err := s.DeleteTestUser(ctx, admin.UserID); err != nil {
			s.log.Warn("failed to delete test user data", slog.String("scenario", sc.ID), sl.Err(err))
		}
	}

	result.Timestamp = s.now().UTC()
	result.Duration = s.now().Sub(start)
	return result
}

func (s *Service) find(id string) (Scenario, bool) {
	for _, sc := range s.scenarios {
		if sc.ID == id {
			return sc, true
		}
	}
	return Scenario{}, false
}

// DeleteTestUser удаляет все тестовые события пользователя. Повторный вызов безопасен.
func (s *Service) DeleteTestUser(ctx context.Context, userID string) error {
	const op = "selftest.DeleteTestUser"
	if _, err := s.cleaner.DeleteTestUsageEvents(ctx, userID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Service) track(ctx context.Context, userID string, eventType models.EventType, uc models.UsageContext) error {
	if r := s.tracker.TrackUsageEvent(ctx, userID, eventType, uc, true); !r.Tracked {
		return fmt.Errorf("failed to track %s: %w", eventType, r.Err)
	}
	return nil
}

func (s *Service) trackN(ctx context.Context, userID string, eventType models.EventType, n int64, uc func() models.UsageContext) error {
	for i := int64(0); i < n; i++ {
		if err := s.track(ctx, userID, eventType, uc()); err != nil {
			return err
		}
	}
	return nil
}

func noContext() models.UsageContext { return models.UsageContext{} }

func blockedAt(check models.LimitCheck, limit int64, suffix string) (string, bool) {
	if !check.Allowed && check.Current == limit {
		return fmt.Sprintf("Correctly blocked at %d/%d%s. Current=%d, Allowed=%t", limit, limit, suffix, check.Current, check.Allowed), true
	}
	return fmt.Sprintf("Expected blocked at %d, got: allowed=%t, current=%d, limit=%d",
		limit, check.Allowed, check.Current, check.Limit), false
}

func freeLimitScenario(id, name, description string, limitType models.LimitType, eventType models.EventType) Scenario {
	return Scenario{
		ID: id, Name: name, Description: description,
		run: func(ctx context.Context, s *Service, admin models.Session) (string, bool, error) {
			limit := plans.LimitsFor(models.PlanFree).For(limitType)
			if err := s.trackN(ctx, admin.UserID, eventType, limit, noContext); err != nil {
				return "", false, err
			}
			check, err := s.tracker.CheckTestUsageLimit(ctx, tracking.CheckParams{
				UserID: admin.UserID, PlanID: models.PlanFree, LimitType: limitType,
			})
			if err != nil {
				return "", false, err
			}
			details, pass := blockedAt(check, limit, "")
			return details, pass, nil
		},
	}
}

func defaultScenarios() []Scenario {
	free := plans.LimitsFor(models.PlanFree)
	return []Scenario{
		{
			ID: "T1", Name: "FREE project limit",
			Description: "Verify FREE users are blocked after creating max projects",
			run: func(ctx context.Context, s *Service, admin models.Session) (string, bool, error) {
				initial, err := s.tracker.GetTestUsageSummary(ctx, admin.UserID)
				if err != nil {
					return "", false, err
				}
				if initial.ProjectCount != 0 {
					return fmt.Sprintf("Test data was not cleaned up: %d projects before start", initial.ProjectCount), false, nil
				}
				newProject := func() models.UsageContext { return models.UsageContext{ProjectID: uuid.NewString()} }
				if err := s.trackN(ctx, admin.UserID, models.EventProjectCreated, free.MaxProjects, newProject); err != nil {
					return "", false, err
				}
				check, err := s.tracker.CheckTestUsageLimit(ctx, tracking.CheckParams{
					UserID: admin.UserID, PlanID: models.PlanFree, LimitType: models.LimitProjects,
				})
				if err != nil {
					return "", false, err
				}
				details, pass := blockedAt(check, free.MaxProjects, "")
				return details, pass, nil
			},
		},
		{
			ID: "T2", Name: "FREE survey limit",
			Description: "Verify FREE users are blocked after creating max surveys per project",
			run: func(ctx context.Context, s *Service, admin models.Session) (string, bool, error) {
				projectID := uuid.NewString()
				if err := s.track(ctx, admin.UserID, models.EventProjectCreated, models.UsageContext{ProjectID: projectID}); err != nil {
					return "", false, err
				}
				newSurvey := func() models.UsageContext {
					return models.UsageContext{ProjectID: projectID, SurveyID: uuid.NewString()}
				}
				if err := s.trackN(ctx, admin.UserID, models.EventSurveyCreated, free.MaxSurveysPerProject, newSurvey); err != nil {
					return "", false, err
				}
				check, err := s.tracker.CheckTestUsageLimit(ctx, tracking.CheckParams{
					UserID: admin.UserID, PlanID: models.PlanFree, LimitType: models.LimitSurveys, ProjectID: projectID,
				})
				if err != nil {
					return "", false, err
				}
				details, pass := blockedAt(check, free.MaxSurveysPerProject, " for project")
				return details, pass, nil
			},
		},
		{
			ID: "T3", Name: "FREE measurement limit",
			Description: "Verify FREE users are blocked after recording max measurements per survey",
			run: func(ctx context.Context, s *Service, admin models.Session) (string, bool, error) {
				projectID, surveyID := uuid.NewString(), uuid.NewString()
				steps := []struct {
					event models.EventType
					uc    models.UsageContext
				}{
					{models.EventProjectCreated, models.UsageContext{ProjectID: projectID}},
					{models.EventSurveyCreated, models.UsageContext{ProjectID: projectID, SurveyID: surveyID}},
					{models.EventMeasurementRecorded, models.UsageContext{ProjectID: projectID, SurveyID: surveyID, Count: int(free.MaxMeasurementsPerSurvey)}},
				}
				for _, st := range steps {
					if err := s.track(ctx, admin.UserID, st.event, st.uc); err != nil {
						return "", false, err
					}
				}
				check, err := s.tracker.CheckTestUsageLimit(ctx, tracking.CheckParams{
					UserID: admin.UserID, PlanID: models.PlanFree, LimitType: models.LimitMeasurements,
					SurveyID: surveyID, AdditionalCount: 1,
				})
				if err != nil {
					return "", false, err
				}
				details, pass := blockedAt(check, free.MaxMeasurementsPerSurvey, "")
				return details, pass, nil
			},
		},
		freeLimitScenario("T4", "FREE AI insights limit",
			"Verify FREE users are blocked after using max AI insights per month",
			models.LimitAIInsights, models.EventAIInsightGenerated),
		freeLimitScenario("T5", "FREE heatmap export limit",
			"Verify FREE users are blocked after exporting max heatmaps per month",
			models.LimitHeatmapExports, models.EventHeatmapExported),
		{
			ID: "T6", Name: "PRO unlimited access",
			Description: "Verify PRO users bypass all limits",
			run: func(ctx context.Context, s *Service, admin models.Session) (string, bool, error) {
				toCreate := free.MaxProjects + 5
				newProject := func() models.UsageContext { return models.UsageContext{ProjectID: uuid.NewString()} }
				if err := s.trackN(ctx, admin.UserID, models.EventProjectCreated, toCreate, newProject); err != nil {
					return "", false, err
				}
				check, err := s.tracker.CheckTestUsageLimit(ctx, tracking.CheckParams{
					UserID: admin.UserID, PlanID: models.PlanPro, LimitType: models.LimitProjects,
				})
				if err != nil {
					return "", false, err
				}
				if check.Allowed && check.Limit == plans.Unlimited {
					return fmt.Sprintf("PRO user correctly allowed unlimited access. Created %d projects (FREE limit is %d).",
						toCreate, free.MaxProjects), true, nil
				}
				return fmt.Sprintf("PRO user should have unlimited access but got allowed=%t, limit=%d",
					check.Allowed, check.Limit), false, nil
			},
		},
		{
			ID: "T7", Name: "Admin alerts",
			Description: "Verify admin alerts are created for all event types",
			run: func(ctx context.Context, s *Service, admin models.Session) (string, bool, error) {
				return s.testAdminAlerts(ctx, admin)
			},
		},
		freeLimitScenario("T8", "FREE speed test limit",
			"Verify FREE users are blocked after running max speed tests per day",
			models.LimitSpeedTests, models.EventSpeedTestRun),
	}
}

func (s *Service) testAdminAlerts(ctx context.Context, admin models.Session) (string, bool, error) {
	email := admin.Email
	if email == "" {
		email = "selftest@goflexconnect.local"
	}
	probes := []models.Alert{
		{
			Title:   "[SELFTEST] New user alert test",
			Message: fmt.Sprintf("Self-test user %s created.", email),
			Payload: models.NewUserPayload{Email: email, SignedUpAt: s.now().UTC()},
		},
		{
			Title:   "[SELFTEST] Usage threshold test",
			Message: "Self-test user reached 80% of project limit.",
			Payload: models.UsageThresholdPayload{
				Email: email, LimitType: models.LimitProjects, Severity: models.SeverityWarning,
				Current: 4, Limit: 5, Percentage: 0.8,
			},
		},
		{
			Title:   "[SELFTEST] Bad survey quality test",
			Message: "Self-test survey has poor quality.",
			Payload: models.BadSurveyQualityPayload{ProjectID: uuid.NewString(), SurveyID: uuid.NewString(), PoorPercentage: 62.5},
		},
	}

	lines := make([]string, 0, len(probes))
	pass := true
	for _, a := range probes {
		a.ID = uuid.NewString()
		a.UserID = admin.UserID
		a.CreatedAt = s.now().UTC()
		// Проверочные оповещения сразу прочитаны и не рассылаются.
		a.IsRead = true
		if err := s.alerts.InsertAdminAlert(ctx, a); err != nil {
			pass = false
			lines = append(lines, fmt.Sprintf("✗ %s alert failed: %v", a.Kind(), err))
			continue
		}
		lines = append(lines, fmt.Sprintf("✓ %s alert created", a.Kind()))
	}
	return strings.Join(lines, ", ") + ". Note: self-test alerts are stored as read and not e-mailed.", pass, nil
}
