// Package releasegate decides whether a deployment may proceed given a
// service's current risk level, burn rate, and error-budget consumption,
// and records every decision for audit.
package releasegate

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
)

// timeToExhaustionWarningHours is the threshold below which a forecast
// that would otherwise pass the gate still gets an explicit warning.
const timeToExhaustionWarningHours = 4.0

// Request is a release gate check for one deployment attempt.
type Request struct {
	ServiceName    string
	DeploymentID   string
	Version        string
	RequestedBy    string
	Override       bool
	OverrideReason string
}

// Decision is the gate's verdict plus the context that produced it.
type Decision struct {
	Allowed       bool
	BlockedReason string
	Warnings      []string
	RiskLevel     model.RiskLevel
	BurnRate      float64
}

// Gate evaluates release requests against burn rate, risk level, and
// error-budget consumption.
type Gate struct {
	store    store.Store
	burn     *burnrate.Engine
	slo      *slo.Engine
	forecast *forecast.Engine
	cfg      *config.Config
}

// New builds a release Gate.
func New(st store.Store, burnEngine *burnrate.Engine, sloEngine *slo.Engine, forecastEngine *forecast.Engine, cfg *config.Config) *Gate {
	return &Gate{store: st, burn: burnEngine, slo: sloEngine, forecast: forecastEngine, cfg: cfg}
}

// CheckRelease evaluates one deployment request, records the decision as a
// Deployment row, and returns both. Every invocation — including an unknown
// service or an internal lookup failure — persists exactly one Deployment
// row; only a failure to persist that row itself is returned as an error.
func (g *Gate) CheckRelease(ctx context.Context, req Request) (*Decision, *model.Deployment, error) {
	svc, err := g.store.GetService(ctx, req.ServiceName)
	if err != nil {
		return g.recordDecision(ctx, 0, req, &Decision{
			Allowed:       false,
			BlockedReason: "service unknown",
			RiskLevel:     model.RiskFreeze,
		})
	}

	targets, err := g.store.ListSLOTargets(ctx, svc.ID)
	primary := primaryTarget(targets)
	var results []*burnrate.WindowResult
	if err == nil && primary != nil {
		results, err = g.burn.ComputeAllWindows(ctx, svc.ID, primary)
	}
	if err != nil {
		return g.recordDecision(ctx, svc.ID, req, &Decision{
			Allowed:       false,
			BlockedReason: "internal error",
		})
	}
	weightedBurn, risk := burnrate.WeightedBurnRate(results)

	decision := g.evaluate(ctx, svc, primary, weightedBurn, risk, req)
	return g.recordDecision(ctx, svc.ID, req, decision)
}

// recordDecision persists one Deployment row for a decision and reports the
// gate metrics, regardless of which branch of CheckRelease produced it.
func (g *Gate) recordDecision(ctx context.Context, serviceID int64, req Request, decision *Decision) (*Decision, *model.Deployment, error) {
	deployment := &model.Deployment{
		ServiceID:          serviceID,
		DeploymentID:       req.DeploymentID,
		Version:            req.Version,
		RequestedBy:        req.RequestedBy,
		RequestedAt:        time.Now(),
		Allowed:            decision.Allowed,
		BlockedReason:      decision.BlockedReason,
		RiskLevelAtRequest: decision.RiskLevel,
		BurnRateAtRequest:  decision.BurnRate,
		Status:             status(decision.Allowed),
	}
	if err := g.store.InsertDeployment(ctx, deployment); err != nil {
		return nil, nil, store.NewQueryError("releasegate.insert_deployment", err)
	}

	obs.DeploymentsRequested.WithLabelValues(req.ServiceName).Inc()
	if !decision.Allowed {
		obs.DeploymentsBlocked.WithLabelValues(req.ServiceName, decision.BlockedReason).Inc()
	}

	return decision, deployment, nil
}

// evaluate implements the gate's decision order: FREEZE and DANGER risk
// levels block unconditionally unless an override with a reason is
// supplied, in which case the release is allowed at once with the override
// recorded as a warning; below that, burn rate and budget-consumption thresholds are
// checked independently of risk level; a forecast inside the warning
// horizon is always surfaced, even on an otherwise clean pass.
func (g *Gate) evaluate(ctx context.Context, svc *model.Service, primary *model.SLOTarget, weightedBurn float64, risk model.RiskLevel, req Request) *Decision {
	d := &Decision{Allowed: true, RiskLevel: risk, BurnRate: weightedBurn}

	switch risk {
	case model.RiskFreeze:
		if !overridden(req) {
			d.Allowed = false
			d.BlockedReason = "service is in FREEZE risk state"
			return d
		}
		d.Warnings = append(d.Warnings, fmt.Sprintf("override applied during FREEZE: %s", req.OverrideReason))
		return d
	case model.RiskDanger:
		if !overridden(req) {
			d.Allowed = false
			d.BlockedReason = "service is in DANGER risk state"
			return d
		}
		d.Warnings = append(d.Warnings, fmt.Sprintf("override applied during DANGER: %s", req.OverrideReason))
		return d
	}

	if weightedBurn > g.cfg.ReleaseGate.BurnRateThreshold {
		d.Allowed = false
		d.BlockedReason = fmt.Sprintf("burn rate %.2f exceeds release gate threshold %.2f", weightedBurn, g.cfg.ReleaseGate.BurnRateThreshold)
		return d
	}

	if primary != nil {
		status, err := g.slo.ComputeSLO(ctx, svc.ID, primary)
		if err == nil {
			budgetConsumed := 100 - status.RemainingPercentage
			if budgetConsumed > g.cfg.ReleaseGate.BudgetThreshold {
				d.Allowed = false
				d.BlockedReason = fmt.Sprintf("error budget consumption %.1f%% exceeds release gate threshold %.1f%%", budgetConsumed, g.cfg.ReleaseGate.BudgetThreshold)
				return d
			}
		}

		if g.forecast != nil {
			if fc, err := g.forecast.ForecastTarget(ctx, svc, primary); err == nil && fc.TimeToExhaustion != nil {
				if fc.TimeToExhaustion.Hours() < timeToExhaustionWarningHours {
					d.Warnings = append(d.Warnings, fmt.Sprintf("budget projected to exhaust in %s", fc.TimeToExhaustion.Round(time.Minute)))
				}
			}
		}
	}

	if risk == model.RiskObserve {
		d.Warnings = append(d.Warnings, "service is in OBSERVE risk state; proceed with increased monitoring")
	}

	return d
}

func overridden(req Request) bool {
	return req.Override && req.OverrideReason != ""
}

func status(allowed bool) string {
	if allowed {
		return "approved"
	}
	return "rejected"
}

func primaryTarget(targets []*model.SLOTarget) *model.SLOTarget {
	for _, t := range targets {
		if t.Name == "availability" {
			return t
		}
	}
	if len(targets) > 0 {
		return targets[0]
	}
	return nil
}

// GetDeploymentHistory returns the most recent deployment decisions for a
// service, newest first. serviceID of 0 returns history across all
// services.
func (g *Gate) GetDeploymentHistory(ctx context.Context, serviceID int64, limit int) ([]*model.Deployment, error) {
	deployments, err := g.store.ListDeployments(ctx, serviceID, limit)
	if err != nil {
		return nil, store.NewQueryError("releasegate.list_deployments", err)
	}
	return deployments, nil
}

// GetGateStatistics summarizes gate decisions over the trailing period.
func (g *Gate) GetGateStatistics(ctx context.Context, periodDays int) (*store.DeploymentStats, error) {
	since := time.Now().Add(-time.Duration(periodDays) * 24 * time.Hour)
	stats, err := g.store.DeploymentStats(ctx, since)
	if err != nil {
		return nil, store.NewQueryError("releasegate.stats", err)
	}
	stats.PeriodDays = periodDays
	return stats, nil
}
