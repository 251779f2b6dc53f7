// Package narrative turns burn-rate, SLO, and forecast state into
// human-readable reliability summaries: an executive paragraph, a
// per-service insight list with health scores, and prioritized action
// items, plus a single-service markdown report. It is template-based
// generation with data interpolation, not a call out to a model — the
// "AI" in the original platform's name described the narrative layer's
// purpose, not its implementation.
package narrative

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/flyingrobots/reliability-control-plane/internal/burnrate"
	"github.com/flyingrobots/reliability-control-plane/internal/forecast"
	"github.com/flyingrobots/reliability-control-plane/internal/model"
	"github.com/flyingrobots/reliability-control-plane/internal/slo"
	"github.com/flyingrobots/reliability-control-plane/internal/store"
)

// analysisWindow is the single rolling window insights are computed
// against, mirroring the original platform's compute_burn_rate(service_id, 60).
var analysisWindow = burnrate.WindowConfig{Minutes: 60, Label: "1h", Weight: 1.0}

// Health-score deductions. A service starts at 100 and loses points for
// each condition that fires; the floor is 0.
const (
	scoreBudgetExhausted = 50
	scoreBurnCritical    = 40
	scoreBurnElevated    = 20
	scoreBudgetCritical  = 15
	scoreTrendWorsening  = 5
)

// Burn-rate thresholds that select which insight fires. burnRateCritical
// and burnRateElevated are mutually exclusive (critical takes priority);
// budgetCriticalPercent is checked independently and can fire alongside
// either.
const (
	burnRateCritical      = 3.0
	burnRateElevated      = 1.5
	budgetCriticalPercent = 15.0
)

// Insight is one observation about a single service's reliability state.
type Insight struct {
	ServiceName string
	InsightType string // "warning" or "status"
	Message     string
	Severity    model.AlertSeverity
	Data        map[string]any
}

// Summary is the platform-wide reliability narrative.
type Summary struct {
	GeneratedAt       time.Time
	OverallHealth     string // "healthy", "degraded", "critical"
	OverallScore      float64
	ExecutiveSummary  string
	Insights          []Insight
	ActionItems       []string
	ServicesAtRisk    []string
	NearestExhaustion *forecast.Result
}

// Generator produces reliability narratives from the platform's engines.
type Generator struct {
	store    store.Store
	burn     *burnrate.Engine
	slo      *slo.Engine
	forecast *forecast.Engine
}

// New builds a narrative Generator wired to the engines it reads from.
func New(st store.Store, burnEngine *burnrate.Engine, sloEngine *slo.Engine, forecastEngine *forecast.Engine) *Generator {
	return &Generator{store: st, burn: burnEngine, slo: sloEngine, forecast: forecastEngine}
}

// GenerateSummary builds the platform-wide reliability narrative: an
// executive summary paragraph, one or more insights per active service,
// prioritized action items, and the services currently at risk.
func (g *Generator) GenerateSummary(ctx context.Context) (*Summary, error) {
	services, err := g.store.ListActiveServices(ctx)
	if err != nil {
		return nil, store.NewQueryError("narrative.list_services", err)
	}

	var insights []Insight
	var servicesAtRisk []string
	seenAtRisk := make(map[string]bool)
	var totalScore float64
	var criticalCount int

	for _, svc := range services {
		svcInsights, score := g.analyzeService(ctx, svc)
		insights = append(insights, svcInsights...)
		totalScore += score

		for _, ins := range svcInsights {
			if ins.Severity == model.SeverityCritical || ins.Severity == model.SeverityWarning {
				if !seenAtRisk[svc.Name] {
					seenAtRisk[svc.Name] = true
					servicesAtRisk = append(servicesAtRisk, svc.Name)
				}
			}
			if ins.Severity == model.SeverityCritical {
				criticalCount++
			}
		}
	}

	overallScore := 100.0
	if len(services) > 0 {
		overallScore = totalScore / float64(len(services))
	}

	var overallHealth string
	switch {
	case overallScore >= 90:
		overallHealth = "healthy"
	case overallScore >= 70:
		overallHealth = "degraded"
	default:
		overallHealth = "critical"
	}

	nearest, err := g.forecast.GetNearestExhaustion(ctx)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		GeneratedAt:       time.Now(),
		OverallHealth:     overallHealth,
		OverallScore:      round1(overallScore),
		Insights:          insights,
		ActionItems:       generateActionItems(insights, servicesAtRisk),
		ServicesAtRisk:    servicesAtRisk,
		NearestExhaustion: nearest,
	}
	summary.ExecutiveSummary = generateExecutiveSummary(len(services), servicesAtRisk, overallScore, criticalCount, nearest)
	return summary, nil
}

// analyzeService computes one service's insights and health score. A
// service with no SLO targets yet, or whose burn-rate computation fails,
// reports a single "insufficient data" status insight rather than failing
// the whole summary. A service with no recent traffic is analyzed normally
// and reads as a zero burn rate with its full budget remaining.
func (g *Generator) analyzeService(ctx context.Context, svc *model.Service) ([]Insight, float64) {
	targets, err := g.store.ListSLOTargets(ctx, svc.ID)
	if err != nil || len(targets) == 0 {
		return []Insight{{
			ServiceName: svc.Name,
			InsightType: "status",
			Message:     fmt.Sprintf("Unable to analyze %s: insufficient data", svc.Name),
			Severity:    model.SeverityInfo,
		}}, 100
	}
	target := primaryTarget(targets)

	window, err := g.burn.ComputeWindow(ctx, svc.ID, target, analysisWindow)
	if err != nil {
		return []Insight{{
			ServiceName: svc.Name,
			InsightType: "status",
			Message:     fmt.Sprintf("Unable to analyze %s: insufficient data", svc.Name),
			Severity:    model.SeverityInfo,
			Data:        map[string]any{"error": err.Error()},
		}}, 100
	}

	fc, err := g.forecast.ForecastTarget(ctx, svc, target)
	if err != nil {
		fc = &forecast.Result{Direction: "stable", Confidence: "medium"}
	}

	score := 100.0
	var insights []Insight

	switch {
	case window.ErrorBudgetRemaining <= 0:
		insights = append(insights, Insight{
			ServiceName: svc.Name,
			InsightType: "warning",
			Message:     fmt.Sprintf("%s has EXHAUSTED its error budget. All non-critical deployments should be halted.", svc.Name),
			Severity:    model.SeverityCritical,
			Data:        map[string]any{"budget_remaining": 0},
		})
		score -= scoreBudgetExhausted
	case window.BurnRate >= burnRateCritical:
		insights = append(insights, Insight{
			ServiceName: svc.Name,
			InsightType: "warning",
			Message: fmt.Sprintf("%s is burning error budget %.1f× faster than allowed. SLA breach likely in ~%s.",
				svc.Name, window.BurnRate, formatExhaustion(fc.TimeToExhaustion)),
			Severity: model.SeverityCritical,
			Data:     map[string]any{"burn_rate": window.BurnRate},
		})
		score -= scoreBurnCritical
	case window.BurnRate >= burnRateElevated:
		insights = append(insights, Insight{
			ServiceName: svc.Name,
			InsightType: "warning",
			Message: fmt.Sprintf("%s error budget consumption is elevated at %.1f× normal rate. %.1f%% budget remaining.",
				svc.Name, window.BurnRate, window.ErrorBudgetRemaining),
			Severity: model.SeverityWarning,
			Data:     map[string]any{"burn_rate": window.BurnRate},
		})
		score -= scoreBurnElevated
	}

	if window.ErrorBudgetRemaining > 0 && window.ErrorBudgetRemaining < budgetCriticalPercent {
		insights = append(insights, Insight{
			ServiceName: svc.Name,
			InsightType: "warning",
			Message:     fmt.Sprintf("%s error budget is critically low at %.1f%%. Immediate attention required.", svc.Name, window.ErrorBudgetRemaining),
			Severity:    model.SeverityWarning,
			Data:        map[string]any{"budget_remaining": window.ErrorBudgetRemaining},
		})
		score -= scoreBudgetCritical
	}

	if fc.Trend != nil && fc.Direction == "increasing" {
		severity := model.SeverityWarning
		if window.RiskLevel == model.RiskSafe {
			severity = model.SeverityInfo
		}
		insights = append(insights, Insight{
			ServiceName: svc.Name,
			InsightType: "status",
			Message: fmt.Sprintf("%s reliability is degrading. Burn rate has increased %.0f%% over the last hour.",
				svc.Name, abs(fc.Trend.Slope*100)),
			Severity: severity,
			Data:     map[string]any{"trend_slope": fc.Trend.Slope},
		})
		score -= scoreTrendWorsening
	}

	if len(insights) == 0 {
		insights = append(insights, Insight{
			ServiceName: svc.Name,
			InsightType: "status",
			Message:     fmt.Sprintf("%s is operating within error budget parameters. Current burn rate: %.2f×.", svc.Name, window.BurnRate),
			Severity:    model.SeverityInfo,
			Data:        map[string]any{"burn_rate": window.BurnRate},
		})
	}

	if score < 0 {
		score = 0
	}
	return insights, score
}

// generateExecutiveSummary bands the overall score into prose and appends
// the at-risk service list and the nearest projected exhaustion, mirroring
// the original platform's narrative ordering.
func generateExecutiveSummary(totalServices int, atRisk []string, score float64, criticalCount int, nearest *forecast.Result) string {
	var parts []string

	switch {
	case score >= 95:
		parts = append(parts, fmt.Sprintf("Platform reliability is excellent with %d services operating normally.", totalServices))
	case score >= 85:
		parts = append(parts, fmt.Sprintf("Platform reliability is good. %d of %d services are healthy.", totalServices-len(atRisk), totalServices))
	case score >= 70:
		parts = append(parts, fmt.Sprintf("Platform reliability requires attention. %d services showing elevated error rates.", len(atRisk)))
	default:
		parts = append(parts, fmt.Sprintf("Platform reliability is degraded. %d services at risk, %d critical issues detected.", len(atRisk), criticalCount))
	}

	if len(atRisk) > 0 {
		if len(atRisk) <= 3 {
			parts = append(parts, fmt.Sprintf("Services requiring attention: %s.", strings.Join(atRisk, ", ")))
		} else {
			parts = append(parts, fmt.Sprintf("%d services require attention including %s.", len(atRisk), strings.Join(atRisk[:3], ", ")))
		}
	}

	if nearest != nil && nearest.TimeToExhaustion != nil {
		parts = append(parts, fmt.Sprintf("Nearest budget exhaustion: %s in ~%s.", nearest.ServiceName, formatExhaustion(nearest.TimeToExhaustion)))
	}

	return strings.Join(parts, " ")
}

// generateActionItems prioritizes operator-facing actions: critical
// services first, then budget-freeze review, trend monitoring, and
// rollback review, falling back to a default "keep watching" line when
// nothing else fired.
func generateActionItems(insights []Insight, atRisk []string) []string {
	var actions []string

	criticalSet := make(map[string]bool)
	for _, ins := range insights {
		if ins.Severity == model.SeverityCritical {
			criticalSet[ins.ServiceName] = true
		}
	}
	if len(criticalSet) > 0 {
		names := make([]string, 0, len(criticalSet))
		for name := range criticalSet {
			names = append(names, name)
		}
		sort.Strings(names)
		actions = append(actions, fmt.Sprintf("URGENT: Investigate critical issues in %s", strings.Join(names, ", ")))
	}

	for _, ins := range insights {
		lower := strings.ToLower(ins.Message)
		if strings.Contains(lower, "budget") && strings.Contains(lower, "exhaust") {
			actions = append(actions, "Review error budget status and consider deployment freeze for affected services")
			break
		}
	}

	for _, ins := range insights {
		if ins.InsightType == "status" && strings.Contains(strings.ToLower(ins.Message), "degrading") {
			actions = append(actions, "Monitor trending services and prepare incident response")
			break
		}
	}

	if len(atRisk) > 0 {
		actions = append(actions, "Review recent deployments to at-risk services for potential rollback")
	}

	if len(actions) == 0 {
		actions = append(actions, "Continue monitoring - all systems operating normally")
	}
	return actions
}

// GenerateServiceNarrative renders a markdown reliability report for a
// single service: current risk level, burn rate, error budget, forecast,
// and trend.
func (g *Generator) GenerateServiceNarrative(ctx context.Context, serviceName string) (string, error) {
	svc, err := g.store.GetService(ctx, serviceName)
	if err != nil {
		return "Service not found.", nil
	}

	targets, err := g.store.ListSLOTargets(ctx, svc.ID)
	if err != nil || len(targets) == 0 {
		return fmt.Sprintf("Unable to generate report for %s: no SLO targets configured", svc.Name), nil
	}
	target := primaryTarget(targets)

	window, err := g.burn.ComputeWindow(ctx, svc.ID, target, analysisWindow)
	if err != nil {
		return fmt.Sprintf("Unable to generate report for %s: %s", svc.Name, err.Error()), nil
	}
	fc, err := g.forecast.ForecastTarget(ctx, svc, target)
	if err != nil {
		return fmt.Sprintf("Unable to generate report for %s: %s", svc.Name, err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## %s Reliability Report\n\n", svc.Name)
	fmt.Fprintf(&b, "**Risk Level:** %s\n", strings.ToUpper(window.RiskLevel.String()))
	fmt.Fprintf(&b, "**Burn Rate:** %.2f× (1.0 = normal)\n", window.BurnRate)
	fmt.Fprintf(&b, "**Error Budget:** %.1f%% remaining\n", window.ErrorBudgetRemaining)
	if fc.TimeToExhaustion != nil {
		fmt.Fprintf(&b, "\n**Forecast:** Budget exhaustion in ~%s\n", formatExhaustion(fc.TimeToExhaustion))
	}
	fmt.Fprintf(&b, "**Trend:** %s\n", capitalize(fc.Direction))
	fmt.Fprintf(&b, "\n%s", fc.Message)
	return b.String(), nil
}

// primaryTarget prefers the availability target, matching
// internal/releasegate's choice of which SLO target represents a
// service's headline reliability figure.
func primaryTarget(targets []*model.SLOTarget) *model.SLOTarget {
	for _, t := range targets {
		if t.Name == "availability" {
			return t
		}
	}
	return targets[0]
}

// formatExhaustion renders a time-to-exhaustion duration the way the
// original platform's _format_time banded hours: whole minutes (truncated)
// under an hour, hours with one decimal under a day, and days with one
// decimal beyond that. Unlike internal/forecast's formatDuration, it has no
// separate whole-days band for three days and more.
func formatExhaustion(d *time.Duration) string {
	if d == nil {
		return "unknown"
	}
	switch {
	case *d < time.Hour:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	case *d < 24*time.Hour:
		return fmt.Sprintf("%.1f hours", d.Hours())
	default:
		return fmt.Sprintf("%.1f days", d.Hours()/24)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
