// Package plans описывает лимиты тарифных планов и пороги оповещений.
// Пакет не выполняет ввода-вывода: только таблица значений и поиск в ней.
package plans

import (
	"github.com/magabrotheeeer/goflexconnect/internal/models"
)

// Unlimited обозначает отсутствие лимита.
const Unlimited int64 = -1

// Limits потолки использования для одного плана.
type Limits struct {
	MaxProjects               int64 `json:"max_projects"`
	MaxSurveysPerProject      int64 `json:"max_surveys_per_project"`
	MaxMeasurementsPerSurvey  int64 `json:"max_measurements_per_survey"`
	MaxSpeedTestsPerDay       int64 `json:"max_speed_tests_per_day"`
	MaxAIInsightsPerMonth     int64 `json:"max_ai_insights_per_month"`
	MaxHeatmapExportsPerMonth int64 `json:"max_heatmap_exports_per_month"`
}

var table = map[models.PlanID]Limits{
	models.PlanFree: {
		MaxProjects:               5,
		MaxSurveysPerProject:      10,
		MaxMeasurementsPerSurvey:  500,
		MaxSpeedTestsPerDay:       20,
		MaxAIInsightsPerMonth:     20,
		MaxHeatmapExportsPerMonth: 20,
	},
	models.PlanPro: {
		MaxProjects:               Unlimited,
		MaxSurveysPerProject:      Unlimited,
		MaxMeasurementsPerSurvey:  Unlimited,
		MaxSpeedTestsPerDay:       Unlimited,
		MaxAIInsightsPerMonth:     Unlimited,
		MaxHeatmapExportsPerMonth: Unlimited,
	},
}

const (
	// UsageWarning доля лимита, начиная с которой поднимается предупреждение.
	UsageWarning = 0.8
	// UsageCritical доля лимита для критического оповещения.
	UsageCritical = 1.0
)

// AbuseThresholds абсолютные суточные пороги для FREE-пользователей,
// не зависящие от лимитов плана.
type AbuseThresholds struct {
	MeasurementsPerDay   int64
	SpeedTestsPerDay     int64
	AIInsightsPerDay     int64
	HeatmapExportsPerDay int64
}

// Abuse текущие пороги злоупотребления.
var Abuse = AbuseThresholds{
	MeasurementsPerDay:   2000,
	SpeedTestsPerDay:     100,
	AIInsightsPerDay:     50,
	HeatmapExportsPerDay: 50,
}

// Normalize приводит произвольную строку плана к PlanID.
func Normalize(plan string) models.PlanID {
	return models.NormalizePlanID(plan)
}

// IsPro сообщает, означает ли строка план PRO.
func IsPro(plan string) bool {
	return Normalize(plan) == models.PlanPro
}

// LimitsFor возвращает лимиты плана; неизвестный план получает лимиты FREE.
func LimitsFor(plan models.PlanID) Limits {
	if l, ok := table[plan]; ok {
		return l
	}
	return table[models.PlanFree]
}

// For возвращает потолок для вида лимита. Неизвестный вид не ограничен.
func (l Limits) For(limitType models.LimitType) int64 {
	switch limitType {
	case models.LimitProjects:
		return l.MaxProjects
	case models.LimitSurveys:
		return l.MaxSurveysPerProject
	case models.LimitMeasurements:
		return l.MaxMeasurementsPerSurvey
	case models.LimitSpeedTests:
		return l.MaxSpeedTestsPerDay
	case models.LimitAIInsights:
		return l.MaxAIInsightsPerMonth
	case models.LimitHeatmapExports:
		return l.MaxHeatmapExportsPerMonth
	}
	return Unlimited
}

var eventLimits = map[models.EventType]models.LimitType{
	models.EventProjectCreated:      models.LimitProjects,
	models.EventSurveyCreated:       models.LimitSurveys,
	models.EventMeasurementRecorded: models.LimitMeasurements,
	models.EventSpeedTestRun:        models.LimitSpeedTests,
	models.EventAIInsightGenerated:  models.LimitAIInsights,
	models.EventHeatmapExported:     models.LimitHeatmapExports,
}

// LimitTypeFor сопоставляет тип события виду лимита.
func LimitTypeFor(event models.EventType) (models.LimitType, bool) {
	lt, ok := eventLimits[event]
	return lt, ok
}

// Ratio доля использования current от limit. Для безлимита и нулевого лимита возвращает 0.
func Ratio(current, limit int64) float64 {
	if limit == Unlimited || limit <= 0 {
		return 0
	}
	return float64(current) / float64(limit)
}
