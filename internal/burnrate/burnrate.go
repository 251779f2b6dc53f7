// Package burnrate computes multi-window error-budget burn rate and the
// resulting risk classification for a service, mirroring the rolling-window
// analysis internal/anomaly-radar-slo-budget performs for queue health but
// driven off SLO targets instead of fixed anomaly thresholds.
package burnrate

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/flyingrobots/reliability-control-plane/internal/config"
	"github.com/flyingrobots/reliability-control-plane/internal/model"
	"github.com/flyingrobots/reliability-control-plane/internal/obs"
	"github.com/flyingrobots/reliability-control-plane/internal/store"
	"go.uber.org/zap"
)

// round3 rounds a burn rate to 3 decimal places.
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// round2pct rounds a percentage to 2 decimal places.
func round2pct(v float64) float64 {
	return math.Round(v*100) / 100
}

// WindowConfig describes one rolling window the engine evaluates and the
// weight it contributes to the weighted burn rate.
type WindowConfig struct {
	Minutes int
	Label   string
	Weight  float64
}

// Windows are the three canonical evaluation windows: a fast 5-minute window
// for immediate spikes, a 60-minute window for sustained burn, and a 24-hour
// window for slow leaks. Weights sum to 1.0.
var Windows = []WindowConfig{
	{Minutes: 5, Label: "5m", Weight: 0.3},
	{Minutes: 60, Label: "1h", Weight: 0.4},
	{Minutes: 1440, Label: "24h", Weight: 0.3},
}

// WindowResult is the burn-rate computation for one window.
type WindowResult struct {
	WindowMinutes        int
	TotalRequests        int64
	ErrorCount           int64
	BurnRate             float64
	ErrorBudgetConsumed  float64
	ErrorBudgetRemaining float64
	RiskLevel            model.RiskLevel
}

// Engine computes burn rate for services against their active SLO targets
// and persists the results as BurnHistory rows.
type Engine struct {
	store store.Store
	cfg   *config.Config
	log   *zap.Logger
}

// New builds a burn-rate Engine.
func New(st store.Store, cfg *config.Config, log *zap.Logger) *Engine {
	return &Engine{store: st, cfg: cfg, log: log}
}

// ClassifyRisk maps a burn rate and a consumed-budget percentage to a risk
// level, taking the worse of the two independent signals at each severity
// tier. Either signal alone can escalate the risk level.
func ClassifyRisk(burnRate, budgetConsumed float64, br config.BurnRateThresholds, eb config.ErrorBudgetThresholds) model.RiskLevel {
	switch {
	case burnRate >= br.Freeze || budgetConsumed >= eb.Freeze:
		return model.RiskFreeze
	case burnRate >= br.Danger || budgetConsumed >= eb.Danger:
		return model.RiskDanger
	case burnRate >= br.Observe || budgetConsumed >= eb.Observe:
		return model.RiskObserve
	default:
		return model.RiskSafe
	}
}

// ComputeWindow computes burn rate for a single window against one SLO
// target. A window with no traffic reports a safe, zero burn rate with its
// whole budget remaining rather than an error — silence is not an outage.
func (e *Engine) ComputeWindow(ctx context.Context, serviceID int64, target *model.SLOTarget, w WindowConfig) (*WindowResult, error) {
	since := time.Now().Add(-time.Duration(w.Minutes) * time.Minute)
	totalRequests, errorCount, err := e.store.SumMetrics(ctx, serviceID, since)
	if err != nil {
		return nil, store.NewQueryError("burnrate.sum_metrics", err)
	}

	result := &WindowResult{WindowMinutes: w.Minutes, TotalRequests: totalRequests, ErrorCount: errorCount, ErrorBudgetRemaining: 100}
	if totalRequests == 0 {
		result.RiskLevel = model.RiskSafe
		return result, nil
	}

	allowedErrorRate := (100 - target.TargetValue) / 100
	errorRate := float64(errorCount) / float64(totalRequests)
	if allowedErrorRate > 0 {
		result.BurnRate = errorRate / allowedErrorRate
	}

	totalBudget := float64(totalRequests) * allowedErrorRate
	if totalBudget > 0 {
		consumed := float64(errorCount) / totalBudget * 100
		if consumed > 100 {
			consumed = 100
		}
		result.ErrorBudgetConsumed = consumed
		result.ErrorBudgetRemaining = 100 - consumed
		if result.ErrorBudgetRemaining < 0 {
			result.ErrorBudgetRemaining = 0
		}
	}

	result.RiskLevel = ClassifyRisk(result.BurnRate, result.ErrorBudgetConsumed, e.cfg.BurnRate, e.cfg.ErrorBudget)

	result.BurnRate = round3(result.BurnRate)
	result.ErrorBudgetConsumed = round2pct(result.ErrorBudgetConsumed)
	result.ErrorBudgetRemaining = round2pct(result.ErrorBudgetRemaining)
	return result, nil
}

// ComputeAllWindows evaluates every canonical window for one SLO target.
func (e *Engine) ComputeAllWindows(ctx context.Context, serviceID int64, target *model.SLOTarget) ([]*WindowResult, error) {
	out := make([]*WindowResult, 0, len(Windows))
	for _, w := range Windows {
		r, err := e.ComputeWindow(ctx, serviceID, target, w)
		if err != nil {
			return nil, fmt.Errorf("compute window %s: %w", w.Label, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// WeightedBurnRate combines per-window results into one weighted burn rate
// and tracks the worst risk level across all windows — a brief 5-minute
// spike and a sustained 24-hour leak are both signals worth surfacing.
func WeightedBurnRate(results []*WindowResult) (weighted float64, worst model.RiskLevel) {
	byMinutes := make(map[int]*WindowResult, len(results))
	for _, r := range results {
		byMinutes[r.WindowMinutes] = r
		worst = worst.Worse(r.RiskLevel)
	}
	for _, w := range Windows {
		if r, ok := byMinutes[w.Minutes]; ok {
			weighted += r.BurnRate * w.Weight
		}
	}
	return weighted, worst
}

// RefreshService computes burn rate across all windows for a service's SLO
// target, persists each as a BurnHistory row, and updates the burn rate
// gauge. It is the unit of work the periodic coordinator drives per service
// per target each compute cycle.
func (e *Engine) RefreshService(ctx context.Context, svc *model.Service, target *model.SLOTarget) ([]*model.BurnHistory, error) {
	results, err := e.ComputeAllWindows(ctx, svc.ID, target)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	histories := make([]*model.BurnHistory, 0, len(results))
	for _, r := range results {
		h := &model.BurnHistory{
			ServiceID:            svc.ID,
			Timestamp:            now,
			WindowMinutes:        r.WindowMinutes,
			BurnRate:             r.BurnRate,
			ErrorBudgetConsumed:  r.ErrorBudgetConsumed,
			ErrorBudgetRemaining: r.ErrorBudgetRemaining,
			RiskLevel:            r.RiskLevel,
		}
		if err := e.store.InsertBurnHistory(ctx, h); err != nil {
			return nil, store.NewQueryError("burnrate.insert_history", err)
		}
		histories = append(histories, h)

		label := windowLabel(r.WindowMinutes)
		obs.BurnRate.WithLabelValues(svc.Name, label).Set(r.BurnRate)
		obs.ErrorBudgetRemaining.WithLabelValues(svc.Name, target.Name).Set(r.ErrorBudgetRemaining)
	}

	_, worst := WeightedBurnRate(results)
	obs.RiskLevel.WithLabelValues(svc.Name).Set(float64(worst))

	if e.log != nil {
		e.log.Debug("burn rate refreshed",
			obs.String("service", svc.Name),
			obs.String("slo_target", target.Name),
			obs.String("risk", worst.String()),
		)
	}

	return histories, nil
}

// GetWeightedBurnRate returns the most recent weighted burn rate and worst
// risk level across canonical windows, reading the latest persisted
// BurnHistory row per window rather than recomputing from raw metrics.
func (e *Engine) GetWeightedBurnRate(ctx context.Context, serviceID int64) (float64, model.RiskLevel, error) {
	results := make([]*WindowResult, 0, len(Windows))
	for _, w := range Windows {
		since := time.Now().Add(-24 * time.Hour)
		history, err := e.store.ListBurnHistory(ctx, serviceID, w.Minutes, since)
		if err != nil {
			return 0, model.RiskSafe, store.NewQueryError("burnrate.list_history", err)
		}
		if len(history) == 0 {
			continue
		}
		latest := history[len(history)-1]
		results = append(results, &WindowResult{
			WindowMinutes:        latest.WindowMinutes,
			BurnRate:             latest.BurnRate,
			ErrorBudgetConsumed:  latest.ErrorBudgetConsumed,
			ErrorBudgetRemaining: latest.ErrorBudgetRemaining,
			RiskLevel:            latest.RiskLevel,
		})
	}
	weighted, worst := WeightedBurnRate(results)
	return round3(weighted), worst, nil
}

// Statistics summarizes burn rate history for one service/window over a
// lookback period.
type Statistics struct {
	WindowMinutes int
	Samples       int
	MinBurnRate   float64
	MaxBurnRate   float64
	AvgBurnRate   float64
}

// GetBurnStatistics aggregates burn history for a service/window since the
// given time.
func (e *Engine) GetBurnStatistics(ctx context.Context, serviceID int64, windowMinutes int, since time.Time) (*Statistics, error) {
	history, err := e.store.ListBurnHistory(ctx, serviceID, windowMinutes, since)
	if err != nil {
		return nil, store.NewQueryError("burnrate.statistics", err)
	}
	stats := &Statistics{WindowMinutes: windowMinutes}
	if len(history) == 0 {
		return stats, nil
	}
	stats.Samples = len(history)
	stats.MinBurnRate = history[0].BurnRate
	stats.MaxBurnRate = history[0].BurnRate
	var sum float64
	for _, h := range history {
		if h.BurnRate < stats.MinBurnRate {
			stats.MinBurnRate = h.BurnRate
		}
		if h.BurnRate > stats.MaxBurnRate {
			stats.MaxBurnRate = h.BurnRate
		}
		sum += h.BurnRate
	}
	stats.AvgBurnRate = sum / float64(len(history))
	return stats, nil
}

func windowLabel(minutes int) string {
	for _, w := range Windows {
		if w.Minutes == minutes {
			return w.Label
		}
	}
	return fmt.Sprintf("%dm", minutes)
}
