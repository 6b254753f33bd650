package models

import (
	"strings"
	"time"
)

// PlanID тарифный план. Хранится в нормализованном нижнем регистре.
type PlanID string

const (
	PlanFree PlanID = "free"
	PlanPro  PlanID = "pro"
)

// NormalizePlanID приводит строку к регистру плана; всё, кроме "pro", считается FREE.
func NormalizePlanID(s string) PlanID {
	if strings.EqualFold(strings.TrimSpace(s), string(PlanPro)) {
		return PlanPro
	}
	return PlanFree
}

// PlanOverride выданное администратором исключение из базового плана.
// ExpiresAt == nil означает бессрочное переопределение.
type PlanOverride struct {
	UserID    string     `json:"user_id"`
	PlanID    PlanID     `json:"plan_id"`
	Reason    string     `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	GrantedBy string     `json:"granted_by"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ActiveAt сообщает, действует ли переопределение в момент now.
// Истёкшее переопределение не удаляется, а просто игнорируется.
func (o *PlanOverride) ActiveAt(now time.Time) bool {
	if o == nil {
		return false
	}
	return o.ExpiresAt == nil || !o.ExpiresAt.Before(now)
}

// ResolvedPlan результат разрешения плана; вычисляется на каждый запрос.
type ResolvedPlan struct {
	Plan          PlanID            `json:"plan"`
	BasePlan      PlanID            `json:"base_plan"`
	Override      *PlanID           `json:"override,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	BillingPhase  BillingPhaseState `json:"billing_phase"`
	EffectivePlan PlanID            `json:"effective_plan"`
}

// DummyPlanOverride тело запроса администратора на выдачу плана.
type DummyPlanOverride struct {
	PlanID    string     `json:"plan_id" validate:"required,oneof=FREE PRO free pro"`
	Reason    string     `json:"reason,omitempty" validate:"omitempty,max=500"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}
