package models

import "time"

// BillingPhase глобальная биллинговая фаза системы.
type BillingPhase string

const (
	PhaseBetaFree BillingPhase = "BETA_FREE"
	PhaseNotice   BillingPhase = "NOTICE"
	PhasePaidLive BillingPhase = "PAID_LIVE"
)

// Valid сообщает, является ли фаза одной из трёх известных.
func (p BillingPhase) Valid() bool {
	return p == PhaseBetaFree || p == PhaseNotice || p == PhasePaidLive
}

// BillingPhaseState единственная глобальная запись о фазе.
// NoticeStartAt и NoticeDays имеют смысл только в фазе NOTICE.
type BillingPhaseState struct {
	Phase         BillingPhase `json:"phase"`
	NoticeStartAt *time.Time   `json:"notice_start_at,omitempty"`
	NoticeDays    *int         `json:"notice_days,omitempty"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// DefaultBillingPhaseState состояние по умолчанию, если записи ещё нет.
func DefaultBillingPhaseState() BillingPhaseState {
	return BillingPhaseState{Phase: PhaseBetaFree}
}

// BillingPhaseUpdate частичное обновление фазы. nil-поля не меняются,
// ClearNotice сбрасывает дату и длительность уведомительного периода.
type BillingPhaseUpdate struct {
	Phase         *BillingPhase `json:"phase,omitempty"`
	NoticeStartAt *time.Time    `json:"notice_start_at,omitempty"`
	NoticeDays    *int          `json:"notice_days,omitempty" validate:"omitempty,gte=1,lte=365"`
	ClearNotice   bool          `json:"clear_notice,omitempty"`
}

// BillingPhaseInfo состояние фазы вместе с вычисленными датами для клиента.
type BillingPhaseInfo struct {
	BillingPhaseState
	ActivationDate      *time.Time `json:"billing_activation_date,omitempty"`
	DaysUntilActivation *int       `json:"days_until_activation,omitempty"`
}
