package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// AlertKind вид административного оповещения.
type AlertKind string

const (
	AlertNewUser              AlertKind = "new_user"
	AlertUsageThreshold       AlertKind = "usage_threshold"
	AlertAbuseSuspected       AlertKind = "abuse_suspected"
	AlertBadSurveyQuality     AlertKind = "bad_survey_quality"
	AlertTestEmail            AlertKind = "test_email"
	AlertBillingNoticeExpired AlertKind = "billing_notice_expired"
)

// AlertKinds перечисляет все виды оповещений, используется при настройке очередей.
func AlertKinds() []AlertKind {
	return []AlertKind{
		AlertNewUser,
		AlertUsageThreshold,
		AlertAbuseSuspected,
		AlertBadSurveyQuality,
		AlertTestEmail,
		AlertBillingNoticeExpired,
	}
}

// AlertPayload типизированные данные конкретного вида оповещения.
type AlertPayload interface {
	Kind() AlertKind
}

// Severity уровень порогового оповещения.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// NewUserPayload регистрация нового пользователя.
type NewUserPayload struct {
	Email      string    `json:"email"`
	SignedUpAt time.Time `json:"signed_up_at"`
}

// UsageThresholdPayload пользователь достиг 80% или 100% лимита.
type UsageThresholdPayload struct {
	Email      string    `json:"email"`
	LimitType  LimitType `json:"limit_type"`
	Severity   Severity  `json:"severity"`
	Current    int64     `json:"current"`
	Limit      int64     `json:"limit"`
	Percentage float64   `json:"percentage"`
	ProjectID  string    `json:"project_id,omitempty"`
	SurveyID   string    `json:"survey_id,omitempty"`
}

// AbuseSuspectedPayload FREE-пользователь превысил абсолютные пороги злоупотребления.
type AbuseSuspectedPayload struct {
	Email    string       `json:"email"`
	Findings []string     `json:"findings"`
	Summary  UsageSummary `json:"summary"`
}

// BadSurveyQualityPayload доля плохих замеров в опросе слишком велика.
type BadSurveyQualityPayload struct {
	ProjectID      string  `json:"project_id"`
	SurveyID       string  `json:"survey_id"`
	PoorPercentage float64 `json:"poor_percentage"`
}

// TestEmailPayload проверочное письмо, отправленное из консоли администратора.
type TestEmailPayload struct {
	TriggeredBy string `json:"triggered_by"`
}

// BillingNoticeExpiredPayload уведомительный период закончился, фазу нужно сменить вручную.
type BillingNoticeExpiredPayload struct {
	ActivationDate time.Time `json:"activation_date"`
	NoticeDays     int       `json:"notice_days"`
}

func (NewUserPayload) Kind() AlertKind              { return AlertNewUser }
func (UsageThresholdPayload) Kind() AlertKind       { return AlertUsageThreshold }
func (AbuseSuspectedPayload) Kind() AlertKind       { return AlertAbuseSuspected }
func (BadSurveyQualityPayload) Kind() AlertKind     { return AlertBadSurveyQuality }
func (TestEmailPayload) Kind() AlertKind            { return AlertTestEmail }
func (BillingNoticeExpiredPayload) Kind() AlertKind { return AlertBillingNoticeExpired }

// Alert административное оповещение. Вид определяется типом Payload.
type Alert struct {
	ID        string
	UserID    string
	Title     string
	Message   string
	Payload   AlertPayload
	CreatedAt time.Time
	IsRead    bool
}

// Kind возвращает вид оповещения по его данным.
func (a Alert) Kind() AlertKind {
	if a.Payload == nil {
		return ""
	}
	return a.Payload.Kind()
}

type alertEnvelope struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id,omitempty"`
	Kind      AlertKind       `json:"kind"`
	Title     string          `json:"title"`
	Message   string          `json:"message"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	IsRead    bool            `json:"is_read"`
}

// MarshalJSON сериализует оповещение с дискриминатором kind.
func (a Alert) MarshalJSON() ([]byte, error) {
	if a.Payload == nil {
		return nil, fmt.Errorf("models.Alert: payload is required")
	}
	raw, err := json.Marshal(a.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(alertEnvelope{
		ID:        a.ID,
		UserID:    a.UserID,
		Kind:      a.Payload.Kind(),
		Title:     a.Title,
		Message:   a.Message,
		Payload:   raw,
		CreatedAt: a.CreatedAt,
		IsRead:    a.IsRead,
	})
}

// UnmarshalJSON восстанавливает типизированный Payload по полю kind.
func (a *Alert) UnmarshalJSON(data []byte) error {
	var env alertEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	payload, err := DecodeAlertPayload(env.Kind, env.Payload)
	if err != nil {
		return err
	}
	*a = Alert{
		ID:        env.ID,
		UserID:    env.UserID,
		Title:     env.Title,
		Message:   env.Message,
		Payload:   payload,
		CreatedAt: env.CreatedAt,
		IsRead:    env.IsRead,
	}
	return nil
}

// DecodeAlertPayload разбирает JSON данных оповещения в тип, соответствующий kind.
func DecodeAlertPayload(kind AlertKind, raw []byte) (AlertPayload, error) {
	var p AlertPayload
	switch kind {
	case AlertNewUser:
		p = &NewUserPayload{}
	case AlertUsageThreshold:
		p = &UsageThresholdPayload{}
	case AlertAbuseSuspected:
		p = &AbuseSuspectedPayload{}
	case AlertBadSurveyQuality:
		p = &BadSurveyQualityPayload{}
	case AlertTestEmail:
		p = &TestEmailPayload{}
	case AlertBillingNoticeExpired:
		p = &BillingNoticeExpiredPayload{}
	default:
		return nil, fmt.Errorf("models.DecodeAlertPayload: unknown alert kind %q", kind)
	}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, p); err != nil {
			return nil, fmt.Errorf("models.DecodeAlertPayload: %w", err)
		}
	}
	return deref(p), nil
}

func deref(p AlertPayload) AlertPayload {
	switch v := p.(type) {
	case *NewUserPayload:
		return *v
	case *UsageThresholdPayload:
		return *v
	case *AbuseSuspectedPayload:
		return *v
	case *BadSurveyQualityPayload:
		return *v
	case *TestEmailPayload:
		return *v
	case *BillingNoticeExpiredPayload:
		return *v
	}
	return p
}

// DummyMarkRead тело запроса на пометку оповещений прочитанными.
// Пустой список помечает все.
type DummyMarkRead struct {
	IDs []string `json:"ids" validate:"omitempty,dive,uuid"`
}
