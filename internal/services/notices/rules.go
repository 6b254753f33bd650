package notices

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/magabrotheeeer/goflexconnect/internal/models"
	"github.com/magabrotheeeer/goflexconnect/internal/plans"
)

const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"

	upgradeLabel  = "Upgrade to Pro"
	upgradeAction = "upgrade-modal"
)

// Rule правило уведомления: срабатывает, когда доля использования
// не меньше Threshold. Message может содержать {{current}} и {{limit}}.
type Rule struct {
	ID        string
	LimitType models.LimitType
	Threshold float64
	Severity  string
	Message   string
	CTALabel  string
	CTAAction string
}

var free = plans.LimitsFor(models.PlanFree)

// Rules правила для FREE-пользователей в порядке объявления.
var Rules = []Rule{
	{
		ID: "projects-at-limit", LimitType: models.LimitProjects, Threshold: 1.0, Severity: SeverityError,
		Message: fmt.Sprintf("You've reached the FREE project limit (%d). Delete old projects or upgrade to GoFlexConnect Pro for unlimited projects.", free.MaxProjects),
	},
	{
		ID: "projects-near-limit", LimitType: models.LimitProjects, Threshold: 0.8, Severity: SeverityWarning,
		Message: "You're nearing the FREE project limit ({{current}}/{{limit}}). Archive old projects or upgrade to GoFlexConnect Pro to create more.",
	},
	{
		ID: "surveys-at-limit", LimitType: models.LimitSurveys, Threshold: 1.0, Severity: SeverityError,
		Message: fmt.Sprintf("You've reached the FREE survey limit (%d) for this project. Delete old surveys or upgrade to GoFlexConnect Pro for unlimited surveys.", free.MaxSurveysPerProject),
	},
	{
		ID: "surveys-near-limit", LimitType: models.LimitSurveys, Threshold: 0.8, Severity: SeverityWarning,
		Message: "You're approaching the FREE survey limit ({{current}}/{{limit}}) for this project. Consider upgrading to Pro for unlimited surveys.",
	},
	{
		ID: "measurements-at-limit", LimitType: models.LimitMeasurements, Threshold: 1.0, Severity: SeverityError,
		Message: fmt.Sprintf("You've reached the FREE measurement limit (%d) for this survey. Start a new survey or upgrade to GoFlexConnect Pro for unlimited measurements.", free.MaxMeasurementsPerSurvey),
	},
	{
		ID: "measurements-near-limit", LimitType: models.LimitMeasurements, Threshold: 0.8, Severity: SeverityWarning,
		Message: "You're close to the measurement limit ({{current}}/{{limit}}) for this survey. Upgrade to Pro for unlimited measurements.",
	},
	{
		ID: "ai-insights-at-limit", LimitType: models.LimitAIInsights, Threshold: 1.0, Severity: SeverityError,
		Message: fmt.Sprintf("You've used all %d FREE AI insights this month. Upgrade to GoFlexConnect Pro for unlimited AI insights.", free.MaxAIInsightsPerMonth),
	},
	{
		ID: "ai-insights-near-limit", LimitType: models.LimitAIInsights, Threshold: 0.9, Severity: SeverityWarning,
		Message: "You're almost out of FREE AI insights ({{current}}/{{limit}}) for this month. Upgrade to Pro for unlimited insights.",
	},
	{
		ID: "heatmap-exports-at-limit", LimitType: models.LimitHeatmapExports, Threshold: 1.0, Severity: SeverityError,
		Message: fmt.Sprintf("You've used all %d FREE heatmap exports this month. Upgrade to GoFlexConnect Pro for unlimited exports.", free.MaxHeatmapExportsPerMonth),
	},
	{
		ID: "heatmap-exports-near-limit", LimitType: models.LimitHeatmapExports, Threshold: 0.9, Severity: SeverityWarning,
		Message: "You've nearly used all FREE heatmap exports ({{current}}/{{limit}}) for this month. Upgrade to Pro for unlimited exports.",
	},
}

func init() {
	for i := range Rules {
		Rules[i].CTALabel = upgradeLabel
		Rules[i].CTAAction = upgradeAction
	}
}

// FindRule возвращает правило с наибольшим порогом, которое срабатывает
// для current из limit. Нулевое использование и безлимит уведомлений не дают.
func FindRule(limitType models.LimitType, current, limit int64) (Rule, bool) {
	if limit == plans.Unlimited || limit <= 0 || current == 0 {
		return Rule{}, false
	}
	ratio := float64(current) / float64(limit)

	var candidates []Rule
	for _, r := range Rules {
		if r.LimitType == limitType {
			candidates = append(candidates, r)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Threshold > candidates[j].Threshold
	})
	for _, r := range candidates {
		if ratio >= r.Threshold {
			return r, true
		}
	}
	return Rule{}, false
}

// Interpolate подставляет значения в {{current}} и {{limit}}.
func Interpolate(message string, current, limit int64) string {
	message = strings.Replace(message, "{{current}}", strconv.FormatInt(current, 10), 1)
	return strings.Replace(message, "{{limit}}", strconv.FormatInt(limit, 10), 1)
}

// Build формирует уведомление по правилу.
func (r Rule) Build(current, limit int64) models.Notice {
	n := models.Notice{
		ID:       r.ID,
		Severity: r.Severity,
		Message:  Interpolate(r.Message, current, limit),
	}
	if r.CTALabel != "" && r.CTAAction != "" {
		n.CTA = &models.NoticeCTA{Label: r.CTALabel, Action: r.CTAAction}
	}
	return n
}
