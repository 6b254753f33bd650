package models

// NoticeContextType экран клиента, для которого запрашиваются уведомления.
type NoticeContextType string

const (
	NoticeDashboard  NoticeContextType = "dashboard"
	NoticeProject    NoticeContextType = "project"
	NoticeSurvey     NoticeContextType = "survey"
	NoticeAIInsights NoticeContextType = "ai_insights"
	NoticeHeatmap    NoticeContextType = "heatmap"
)

// NoticeContext контекст запроса уведомлений.
type NoticeContext struct {
	Type      NoticeContextType
	ProjectID string
	SurveyID  string
}

// NoticeCTA кнопка действия в уведомлении.
type NoticeCTA struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// Notice уведомление об использовании для FREE-пользователя.
type Notice struct {
	ID       string     `json:"id"`
	Severity string     `json:"severity"`
	Message  string     `json:"message"`
	CTA      *NoticeCTA `json:"cta,omitempty"`
}
