// Package slo computes SLO compliance and error-budget status for services,
// reusing the burn-rate engine's windowed SumMetrics aggregation but
// reporting availability against each SLOTarget's own rolling window
// instead of the burn-rate engine's three fixed windows.
package slo

import (
	"context"
	"math"
	"time"

	"github.com/flyingrobots/reliability-control-plane/internal/model"
	"github.com/flyingrobots/reliability-control-plane/internal/obs"
	"github.com/flyingrobots/reliability-control-plane/internal/store"
)

// round6 rounds an availability/error rate to 6 decimal places.
func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// round2 rounds a percentage figure to 2 decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// rollingWindows are the short-horizon windows reported alongside the
// target's own full-window compliance figure, for dashboards that want to
// see "is this getting better or worse right now".
var rollingWindows = []struct {
	Label   string
	Minutes int
}{
	{"5m", 5},
	{"1h", 60},
	{"24h", 1440},
}

// Status is one SLO target's compliance computation.
type Status struct {
	ServiceID           int64
	TargetName          string
	TargetValue         float64
	CurrentAvailability float64
	TotalBudget         float64
	ConsumedBudget      float64
	ConsumedPercentage  float64
	RemainingPercentage float64
	WindowAvailability  map[string]float64
}

// Engine computes SLO status and cross-service compliance rollups.
type Engine struct {
	store store.Store
}

// New builds an SLO Engine.
func New(st store.Store) *Engine {
	return &Engine{store: st}
}

// ComputeSLO computes the current availability and error-budget status for
// one SLO target over its configured window.
func (e *Engine) ComputeSLO(ctx context.Context, serviceID int64, target *model.SLOTarget) (*Status, error) {
	windowDays := target.WindowDays
	if windowDays <= 0 {
		windowDays = 30
	}
	since := time.Now().Add(-time.Duration(windowDays) * 24 * time.Hour)

	totalRequests, errorCount, err := e.store.SumMetrics(ctx, serviceID, since)
	if err != nil {
		return nil, store.NewQueryError("slo.sum_metrics", err)
	}

	status := &Status{
		ServiceID:           serviceID,
		TargetName:          target.Name,
		TargetValue:         target.TargetValue,
		CurrentAvailability: 100,
		RemainingPercentage: 100,
		WindowAvailability:  make(map[string]float64, len(rollingWindows)),
	}
	if totalRequests == 0 {
		return status, nil
	}

	status.CurrentAvailability = round6(float64(totalRequests-errorCount) / float64(totalRequests) * 100)

	allowedErrorRate := (100 - target.TargetValue) / 100
	status.TotalBudget = float64(totalRequests) * allowedErrorRate
	status.ConsumedBudget = float64(errorCount)
	if status.TotalBudget > 0 {
		consumed := status.ConsumedBudget / status.TotalBudget * 100
		if consumed > 100 {
			consumed = 100
		}
		status.ConsumedPercentage = round2(consumed)
		status.RemainingPercentage = round2(100 - consumed)
		if status.RemainingPercentage < 0 {
			status.RemainingPercentage = 0
		}
	}

	for _, w := range rollingWindows {
		wSince := time.Now().Add(-time.Duration(w.Minutes) * time.Minute)
		req, errs, err := e.store.SumMetrics(ctx, serviceID, wSince)
		if err != nil {
			return nil, store.NewQueryError("slo.sum_metrics_window", err)
		}
		if req == 0 {
			status.WindowAvailability[w.Label] = 100
			continue
		}
		status.WindowAvailability[w.Label] = round6(float64(req-errs) / float64(req) * 100)
	}

	return status, nil
}

// GetAllServicesSLOStatus computes SLO status for every active SLO target
// across every active service.
func (e *Engine) GetAllServicesSLOStatus(ctx context.Context) ([]*Status, error) {
	services, err := e.store.ListActiveServices(ctx)
	if err != nil {
		return nil, store.NewQueryError("slo.list_services", err)
	}

	var out []*Status
	for _, svc := range services {
		targets, err := e.store.ListSLOTargets(ctx, svc.ID)
		if err != nil {
			return nil, store.NewQueryError("slo.list_targets", err)
		}
		for _, target := range targets {
			status, err := e.ComputeSLO(ctx, svc.ID, target)
			if err != nil {
				return nil, err
			}
			out = append(out, status)
		}
	}
	return out, nil
}

// ServiceCompliance is a service's aggregate compliance across all of its
// SLO targets.
type ServiceCompliance struct {
	ServiceID         int64
	ServiceName       string
	CompliancePercent float64
	AtRisk            bool
}

// GlobalComplianceReport is the platform-wide compliance rollup: the simple
// mean of every service's compliance percentage, alongside the per-service
// breakdown it was computed from, mirroring the original platform's
// compute_global_compliance (total_services/services_meeting_slo/
// global_compliance/services_at_risk).
type GlobalComplianceReport struct {
	TotalServices      int
	ServicesMeetingSLO int
	GlobalCompliance   float64
	ServicesAtRisk     []string
	Services           []*ServiceCompliance
}

// ComputeGlobalCompliance averages each service's per-target compliance
// ratio (current availability against target, capped at 100%), flags any
// service below full compliance as at risk, and rolls the per-service
// figures up into the platform-wide mean spec.md calls "global compliance".
func (e *Engine) ComputeGlobalCompliance(ctx context.Context) (*GlobalComplianceReport, error) {
	services, err := e.store.ListActiveServices(ctx)
	if err != nil {
		return nil, store.NewQueryError("slo.list_services", err)
	}

	report := &GlobalComplianceReport{GlobalCompliance: 100, Services: make([]*ServiceCompliance, 0, len(services))}
	var sumCompliance float64
	for _, svc := range services {
		targets, err := e.store.ListSLOTargets(ctx, svc.ID)
		if err != nil {
			return nil, store.NewQueryError("slo.list_targets", err)
		}
		if len(targets) == 0 {
			continue
		}

		var sum float64
		for _, target := range targets {
			status, err := e.ComputeSLO(ctx, svc.ID, target)
			if err != nil {
				return nil, err
			}
			ratio := status.CurrentAvailability / target.TargetValue * 100
			if ratio > 100 {
				ratio = 100
			}
			sum += ratio
		}
		compliance := round2(sum / float64(len(targets)))
		atRisk := compliance < 100

		report.Services = append(report.Services, &ServiceCompliance{
			ServiceID:         svc.ID,
			ServiceName:       svc.Name,
			CompliancePercent: compliance,
			AtRisk:            atRisk,
		})
		obs.SLOCompliance.WithLabelValues(svc.Name).Set(compliance)

		sumCompliance += compliance
		if atRisk {
			report.ServicesAtRisk = append(report.ServicesAtRisk, svc.Name)
		} else {
			report.ServicesMeetingSLO++
		}
	}

	report.TotalServices = len(report.Services)
	if report.TotalServices > 0 {
		report.GlobalCompliance = round2(sumCompliance / float64(report.TotalServices))
	}
	return report, nil
}

// defaultTargets mirrors the original platform's create_default_slo_targets:
// every service gets an availability and a latency_p99 objective on a
// 30-day window with the same burn-rate thresholds.
func defaultTargets(serviceID int64) []*model.SLOTarget {
	return []*model.SLOTarget{
		{
			ServiceID:         serviceID,
			Name:              "availability",
			TargetValue:       99.9,
			WindowDays:        30,
			BurnRateThreshold: 1.0,
			CriticalBurnRate:  2.0,
		},
		{
			ServiceID:         serviceID,
			Name:              "latency_p99",
			TargetValue:       99.0,
			WindowDays:        30,
			BurnRateThreshold: 1.0,
			CriticalBurnRate:  2.0,
		},
	}
}

// SeedDefaults creates the platform's default SLO targets (availability,
// latency_p99) for a service if it has none yet.
func (e *Engine) SeedDefaults(ctx context.Context, serviceID int64) error {
	existing, err := e.store.ListSLOTargets(ctx, serviceID)
	if err != nil {
		return store.NewQueryError("slo.list_targets", err)
	}
	if len(existing) > 0 {
		return nil
	}
	for _, target := range defaultTargets(serviceID) {
		if err := e.store.CreateSLOTarget(ctx, target); err != nil {
			return store.NewQueryError("slo.create_target", err)
		}
	}
	return nil
}
