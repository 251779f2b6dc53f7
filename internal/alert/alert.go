// Package alert evaluates burn rate and error-budget state into notifications,
// deduplicating repeats of the same (service, alert type) pair within a
// cooldown window before dispatching to a Publisher.
package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/flyingrobots/reliability-control-plane/internal/burnrate"
	"github.com/flyingrobots/reliability-control-plane/internal/config"
	"github.com/flyingrobots/reliability-control-plane/internal/forecast"
	"github.com/flyingrobots/reliability-control-plane/internal/model"
	"github.com/flyingrobots/reliability-control-plane/internal/obs"
	"github.com/flyingrobots/reliability-control-plane/internal/slo"
	"github.com/flyingrobots/reliability-control-plane/internal/store"
	"go.uber.org/zap"
)

// Alert type identifiers. These are stored verbatim in model.Alert.AlertType
// and used as the cooldown lookup key alongside ServiceID.
const (
	TypeBudgetExhausted   = "budget_exhausted"
	TypeBudgetCritical    = "budget_critical"
	TypeBurnRateHigh      = "burn_rate_high"
	TypeRiskEscalation    = "risk_escalation"
	TypeDeploymentBlocked = "deployment_blocked"
	TypeRecovery          = "recovery"
)

// budgetCriticalThreshold is the remaining-budget percentage below which a
// budget_critical alert fires (ahead of full exhaustion).
const budgetCriticalThreshold = 15.0

// burnRateHighThreshold is the burn rate at or above which a burn_rate_high
// alert fires. This check runs independently of the budget checks — both
// can fire in the same evaluation pass.
const burnRateHighThreshold = 2.0

// Args carries the values a template needs to render its title and message.
type Args struct {
	ServiceName      string
	BurnRate         float64
	RemainingPercent float64
	ForecastMessage  string
	RiskLevel        model.RiskLevel
	DeploymentID     string
	Reason           string
}

type template struct {
	severity model.AlertSeverity
	channel  model.AlertChannel
	render   func(a Args) (title, message string)
}

var templates = map[string]template{
	TypeBudgetExhausted: {
		severity: model.SeverityEmergency,
		channel:  model.ChannelSlack,
		render: func(a Args) (string, string) {
			return fmt.Sprintf("%s: error budget exhausted", a.ServiceName),
				fmt.Sprintf("%s has fully exhausted its error budget. Immediate action required.", a.ServiceName)
		},
	},
	TypeBudgetCritical: {
		severity: model.SeverityCritical,
		channel:  model.ChannelSlack,
		render: func(a Args) (string, string) {
			return fmt.Sprintf("%s: error budget critical", a.ServiceName),
				fmt.Sprintf("%s has %.1f%% error budget remaining. %s", a.ServiceName, a.RemainingPercent, a.ForecastMessage)
		},
	},
	TypeBurnRateHigh: {
		severity: model.SeverityWarning,
		channel:  model.ChannelUI,
		render: func(a Args) (string, string) {
			return fmt.Sprintf("%s: burn rate high", a.ServiceName),
				fmt.Sprintf("%s is burning error budget at %.2fx the allowed rate.", a.ServiceName, a.BurnRate)
		},
	},
	TypeRiskEscalation: {
		severity: model.SeverityWarning,
		channel:  model.ChannelUI,
		render: func(a Args) (string, string) {
			return fmt.Sprintf("%s: risk escalated to %s", a.ServiceName, a.RiskLevel.String()),
				fmt.Sprintf("%s has escalated to %s risk. %s", a.ServiceName, a.RiskLevel.String(), a.RiskLevel.Info().Action)
		},
	},
	TypeDeploymentBlocked: {
		severity: model.SeverityInfo,
		channel:  model.ChannelUI,
		render: func(a Args) (string, string) {
			return fmt.Sprintf("%s: deployment blocked", a.ServiceName),
				fmt.Sprintf("Deployment %s for %s was blocked by the release gate: %s", a.DeploymentID, a.ServiceName, a.Reason)
		},
	},
	TypeRecovery: {
		severity: model.SeverityInfo,
		channel:  model.ChannelUI,
		render: func(a Args) (string, string) {
			return fmt.Sprintf("%s: recovered", a.ServiceName),
				fmt.Sprintf("%s has returned to safe risk level.", a.ServiceName)
		},
	},
}

// Manager evaluates service state into alerts, applies cooldown dedup, and
// dispatches to a Publisher.
type Manager struct {
	store     store.Store
	burn      *burnrate.Engine
	slo       *slo.Engine
	forecast  *forecast.Engine
	cfg       *config.Config
	publisher Publisher
	log       *zap.Logger
}

// New builds an alert Manager. publisher may be nil, in which case alerts
// are persisted but not dispatched to any real-time transport.
func New(st store.Store, burnEngine *burnrate.Engine, sloEngine *slo.Engine, forecastEngine *forecast.Engine, cfg *config.Config, publisher Publisher, log *zap.Logger) *Manager {
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	return &Manager{store: st, burn: burnEngine, slo: sloEngine, forecast: forecastEngine, cfg: cfg, publisher: publisher, log: log}
}

func (m *Manager) isInCooldown(ctx context.Context, serviceID int64, alertType string) (bool, error) {
	last, err := m.store.LastAlert(ctx, serviceID, alertType)
	if err != nil {
		return false, store.NewQueryError("alert.last_alert", err)
	}
	if last == nil {
		return false, nil
	}
	cooldown := time.Duration(m.cfg.Alerts.CooldownMinutes) * time.Minute
	return time.Since(last.Timestamp) < cooldown, nil
}

// CreateAlert renders and persists an alert of the given type for a
// service, unless an alert of the same type for that service fired within
// the cooldown window. Returns (nil, nil) when suppressed by cooldown.
func (m *Manager) CreateAlert(ctx context.Context, serviceID int64, alertType string, args Args) (*model.Alert, error) {
	tmpl, ok := templates[alertType]
	if !ok {
		return nil, store.ErrAlertTypeUnknown
	}

	inCooldown, err := m.isInCooldown(ctx, serviceID, alertType)
	if err != nil {
		return nil, err
	}
	if inCooldown {
		obs.AlertsSuppressed.WithLabelValues(alertType).Inc()
		return nil, nil
	}

	title, message := tmpl.render(args)
	a := &model.Alert{
		ServiceID: serviceID,
		AlertType: alertType,
		Severity:  tmpl.severity,
		Channel:   tmpl.channel,
		Title:     title,
		Message:   message,
		Timestamp: time.Now(),
	}
	if err := m.store.InsertAlert(ctx, a); err != nil {
		return nil, store.NewQueryError("alert.insert", err)
	}

	now := time.Now()
	if err := m.publisher.Publish(ctx, a); err != nil {
		if m.log != nil {
			m.log.Warn("alert dispatch failed", obs.String("alert_type", alertType), obs.Err(err))
		}
	} else {
		a.Dispatched = true
		a.DispatchedAt = &now
	}

	obs.AlertsDispatched.WithLabelValues(alertType, string(tmpl.severity)).Inc()
	return a, nil
}

// EvaluateAndAlert checks a service's current SLO status and burn rate
// against the budget_exhausted / budget_critical / burn_rate_high
// conditions. budget_exhausted and budget_critical are mutually exclusive
// (exhausted takes priority); burn_rate_high is evaluated independently and
// can fire alongside either.
func (m *Manager) EvaluateAndAlert(ctx context.Context, svc *model.Service, target *model.SLOTarget) ([]*model.Alert, error) {
	status, err := m.slo.ComputeSLO(ctx, svc.ID, target)
	if err != nil {
		return nil, err
	}
	results, err := m.burn.ComputeAllWindows(ctx, svc.ID, target)
	if err != nil {
		return nil, err
	}
	weightedBurn, risk := burnrate.WeightedBurnRate(results)

	var alerts []*model.Alert

	switch {
	case status.RemainingPercentage <= 0:
		a, err := m.CreateAlert(ctx, svc.ID, TypeBudgetExhausted, Args{ServiceName: svc.Name, RemainingPercent: status.RemainingPercentage, RiskLevel: risk})
		if err != nil {
			return nil, err
		}
		if a != nil {
			alerts = append(alerts, a)
		}
	case status.RemainingPercentage < budgetCriticalThreshold:
		forecastMessage := ""
		if m.forecast != nil {
			if fc, err := m.forecast.ForecastTarget(ctx, svc, target); err == nil {
				forecastMessage = fc.Message
			}
		}
		a, err := m.CreateAlert(ctx, svc.ID, TypeBudgetCritical, Args{
			ServiceName:      svc.Name,
			RemainingPercent: status.RemainingPercentage,
			ForecastMessage:  forecastMessage,
			RiskLevel:        risk,
		})
		if err != nil {
			return nil, err
		}
		if a != nil {
			alerts = append(alerts, a)
		}
	}

	if weightedBurn >= burnRateHighThreshold {
		a, err := m.CreateAlert(ctx, svc.ID, TypeBurnRateHigh, Args{ServiceName: svc.Name, BurnRate: weightedBurn, RiskLevel: risk})
		if err != nil {
			return nil, err
		}
		if a != nil {
			alerts = append(alerts, a)
		}
	}

	return alerts, nil
}

// GetAlerts lists alerts matching a filter, newest first.
func (m *Manager) GetAlerts(ctx context.Context, filter store.AlertFilter) ([]*model.Alert, error) {
	alerts, err := m.store.ListAlerts(ctx, filter)
	if err != nil {
		return nil, store.NewQueryError("alert.list", err)
	}
	return alerts, nil
}

// AcknowledgeAlert marks one alert acknowledged.
func (m *Manager) AcknowledgeAlert(ctx context.Context, id int64, by string) error {
	_, err := m.store.AcknowledgeAlerts(ctx, []int64{id}, by)
	if err != nil {
		return store.NewQueryError("alert.acknowledge", err)
	}
	return nil
}

// BulkAcknowledge marks a batch of alerts acknowledged, returning the
// number actually updated.
func (m *Manager) BulkAcknowledge(ctx context.Context, ids []int64, by string) (int64, error) {
	updated, err := m.store.AcknowledgeAlerts(ctx, ids, by)
	if err != nil {
		return 0, store.NewQueryError("alert.bulk_acknowledge", err)
	}
	return updated, nil
}

// GetAlertStatistics summarizes alert volume over the trailing period.
func (m *Manager) GetAlertStatistics(ctx context.Context, periodDays int) (*store.AlertStats, error) {
	since := time.Now().Add(-time.Duration(periodDays) * 24 * time.Hour)
	stats, err := m.store.AlertStats(ctx, since)
	if err != nil {
		return nil, store.NewQueryError("alert.stats", err)
	}
	stats.PeriodDays = periodDays
	return stats, nil
}
