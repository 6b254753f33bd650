// Package models содержит доменные структуры сервиса учёта использования:
// события использования, сводки, результаты проверки лимитов, планы,
// биллинговые фазы, административные оповещения и сессию пользователя.
package models

import "time"

// EventType тип тарифицируемого действия пользователя.
type EventType string

const (
	EventProjectCreated      EventType = "project_created"
	EventSurveyCreated       EventType = "survey_created"
	EventMeasurementRecorded EventType = "measurement_recorded"
	EventSpeedTestRun        EventType = "speed_test_run"
	EventAIInsightGenerated  EventType = "ai_insight_generated"
	EventHeatmapExported     EventType = "heatmap_exported"
)

// Valid сообщает, является ли тип события известным.
func (e EventType) Valid() bool {
	switch e {
	case EventProjectCreated, EventSurveyCreated, EventMeasurementRecorded,
		EventSpeedTestRun, EventAIInsightGenerated, EventHeatmapExported:
		return true
	}
	return false
}

// LimitType вид лимита, с которым сравнивается использование.
type LimitType string

const (
	LimitProjects       LimitType = "projects"
	LimitSurveys        LimitType = "surveys"
	LimitMeasurements   LimitType = "measurements"
	LimitSpeedTests     LimitType = "speed_tests"
	LimitAIInsights     LimitType = "ai_insights"
	LimitHeatmapExports LimitType = "heatmap_exports"
)

// Valid сообщает, является ли вид лимита известным.
func (l LimitType) Valid() bool {
	switch l {
	case LimitProjects, LimitSurveys, LimitMeasurements,
		LimitSpeedTests, LimitAIInsights, LimitHeatmapExports:
		return true
	}
	return false
}

// UsageContext дополнительный контекст события: проект, опрос и количество.
type UsageContext struct {
	ProjectID string `json:"project_id,omitempty"`
	SurveyID  string `json:"survey_id,omitempty"`
	Count     int    `json:"count,omitempty"`
}

// UsageEvent неизменяемая запись об одном тарифицируемом действии.
// Пустые ProjectID и SurveyID хранятся в базе как NULL.
type UsageEvent struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	EventType EventType `json:"event_type"`
	ProjectID string    `json:"project_id,omitempty"`
	SurveyID  string    `json:"survey_id,omitempty"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"created_at"`
	IsTest    bool      `json:"is_test"`
}

// UsageSummary агрегаты использования, пересчитанные из полного набора событий.
type UsageSummary struct {
	ProjectCount            int64            `json:"project_count"`
	SurveysPerProject       map[string]int64 `json:"surveys_per_project"`
	MeasurementsPerSurvey   map[string]int64 `json:"measurements_per_survey"`
	SpeedTestsToday         int64            `json:"speed_tests_today"`
	AIInsightsThisMonth     int64            `json:"ai_insights_this_month"`
	HeatmapExportsThisMonth int64            `json:"heatmap_exports_this_month"`
}

// EmptyUsageSummary возвращает сводку с нулевыми счётчиками и пустыми картами.
func EmptyUsageSummary() UsageSummary {
	return UsageSummary{
		SurveysPerProject:     map[string]int64{},
		MeasurementsPerSurvey: map[string]int64{},
	}
}

// TotalMeasurements суммирует замеры по всем опросам.
func (s UsageSummary) TotalMeasurements() int64 {
	var total int64
	for _, c := range s.MeasurementsPerSurvey {
		total += c
	}
	return total
}

// LimitCheck результат проверки лимита. Отказ является обычным значением, не ошибкой.
// Message заполняется только при Allowed == false.
type LimitCheck struct {
	Allowed bool   `json:"allowed"`
	Current int64  `json:"current"`
	Limit   int64  `json:"limit"`
	Message string `json:"message,omitempty"`
}

// UsageCheckResult результат записи использования с проверкой лимита.
type UsageCheckResult struct {
	Allowed     bool   `json:"allowed"`
	Reason      string `json:"reason,omitempty"`
	SoftWarning bool   `json:"soft_warning"`
	Current     int64  `json:"current"`
	Limit       int64  `json:"limit"`
}

// DummyRecordUsage тело запроса на запись использования. IsTest
// учитывается только для административной сессии.
type DummyRecordUsage struct {
	EventType string `json:"event_type" validate:"required"`
	ProjectID string `json:"project_id,omitempty" validate:"omitempty,max=128"`
	SurveyID  string `json:"survey_id,omitempty" validate:"omitempty,max=128"`
	Count     int    `json:"count,omitempty" validate:"omitempty,gte=1"`
	IsTest    bool   `json:"is_test,omitempty"`
}

// DummyCheckLimit тело запроса на проверку лимита.
type DummyCheckLimit struct {
	LimitType       string `json:"limit_type" validate:"required"`
	ProjectID       string `json:"project_id,omitempty" validate:"omitempty,max=128"`
	SurveyID        string `json:"survey_id,omitempty" validate:"omitempty,max=128"`
	AdditionalCount int    `json:"additional_count,omitempty" validate:"omitempty,gte=1"`
}

// DummyGuard тело запроса проверки действия перед его выполнением.
type DummyGuard struct {
	ProjectID string `json:"project_id,omitempty" validate:"omitempty,max=128"`
	SurveyID  string `json:"survey_id,omitempty" validate:"omitempty,max=128"`
	Count     int64  `json:"count,omitempty" validate:"omitempty,gte=1"`
}
