// Package forecast projects error-budget exhaustion from recent burn-rate
// trend, the way internal/forecasting projects queue backlog — but using a
// direct least-squares regression over the 1-hour burn-history window
// instead of EWMA/Holt-Winters smoothing, since a handful of hourly burn
// samples is too sparse a series for exponential smoothing to earn its
// keep.
package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/flyingrobots/reliability-control-plane/internal/model"
	"github.com/flyingrobots/reliability-control-plane/internal/slo"
	"github.com/flyingrobots/reliability-control-plane/internal/store"
)

// trendLookback bounds how far back the regression looks for 1-hour burn
// samples; trendMinSamples is the fewest points it will fit a line to.
const (
	trendLookback   = 6 * time.Hour
	trendMinSamples = 3
	trendWindowMins = 60
)

// Trend is a fitted linear trend over recent burn-rate samples.
type Trend struct {
	Slope      float64 // burn rate change per hour
	Intercept  float64
	RSquared   float64
	Samples    int
	Direction  string // "increasing", "decreasing", "stable"
	Confidence string // "high", "medium", "low"
}

// CalculateTrend fits a least-squares line to burn rate vs. elapsed hours
// for a sorted-ascending set of burn history samples. Fewer than
// trendMinSamples points yields a nil trend — there isn't enough signal to
// call a direction.
func CalculateTrend(history []*model.BurnHistory) *Trend {
	if len(history) < trendMinSamples {
		return nil
	}

	base := history[0].Timestamp
	n := float64(len(history))
	var sumX, sumY, sumXY, sumXX float64
	for _, h := range history {
		x := h.Timestamp.Sub(base).Hours()
		y := h.BurnRate
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	meanX := sumX / n
	meanY := sumY / n
	denom := sumXX - n*meanX*meanX
	var slope float64
	if denom != 0 {
		slope = (sumXY - n*meanX*meanY) / denom
	}
	intercept := meanY - slope*meanX

	var ssTot, ssRes float64
	for _, h := range history {
		x := h.Timestamp.Sub(base).Hours()
		y := h.BurnRate
		predicted := intercept + slope*x
		ssRes += (y - predicted) * (y - predicted)
		ssTot += (y - meanY) * (y - meanY)
	}
	var rSquared float64
	if ssTot > 0 {
		rSquared = 1 - ssRes/ssTot
	}

	t := &Trend{Slope: slope, Intercept: intercept, RSquared: rSquared, Samples: len(history)}

	switch {
	case slope > 0.1:
		t.Direction = "increasing"
	case slope < -0.1:
		t.Direction = "decreasing"
	default:
		t.Direction = "stable"
	}

	switch {
	case rSquared > 0.7 && len(history) >= 5:
		t.Confidence = "high"
	case rSquared > 0.4 && len(history) >= 3:
		t.Confidence = "medium"
	default:
		t.Confidence = "low"
	}

	return t
}

// Result is one service/target's exhaustion forecast. Direction and
// Confidence always carry a value, even when Trend is nil: with fewer than
// trendMinSamples burn-history points there isn't enough signal to fit a
// line, so the forecast falls back to the current burn rate directly with
// "stable"/"medium", rather than leaving these external-contract fields
// absent.
type Result struct {
	ServiceID        int64
	ServiceName      string
	TargetName       string
	CurrentBurnRate  float64
	Trend            *Trend
	Direction        string
	Confidence       string
	TimeToExhaustion *time.Duration
	Message          string
}

// Engine computes exhaustion forecasts from burn history and SLO status.
type Engine struct {
	store store.Store
	slo   *slo.Engine
}

// New builds a forecast Engine.
func New(st store.Store, sloEngine *slo.Engine) *Engine {
	return &Engine{store: st, slo: sloEngine}
}

// ForecastExhaustion projects the time until a target's error budget hits
// zero given its current remaining percentage, window length, and the
// burn rate to project forward — which is adjusted upward by the fitted
// trend slope when the trend is increasing, and left as-is otherwise: a
// slowing burn doesn't get credit for continuing to slow down.
func ForecastExhaustion(remainingPercent float64, windowHours float64, currentBurnRate float64, trend *Trend) *time.Duration {
	burnRateForForecast := currentBurnRate
	if trend != nil && trend.Direction == "increasing" {
		burnRateForForecast = currentBurnRate + trend.Slope
	}
	if burnRateForForecast <= 0 {
		return nil
	}
	hours := (remainingPercent / 100) * windowHours / burnRateForForecast
	d := time.Duration(hours * float64(time.Hour))
	return &d
}

// GenerateForecastMessage renders a human-readable summary of the forecast,
// banding the burn rate into a severity phrase and the time-to-exhaustion
// into an appropriately coarse unit.
func GenerateForecastMessage(timeToExhaustion *time.Duration, burnRate float64) string {
	severity := severityPhrase(burnRate)
	if timeToExhaustion == nil {
		return fmt.Sprintf("Burn rate is %s; budget is not currently projected to be exhausted.", severity)
	}
	return fmt.Sprintf("At the current rate (%s), budget will be exhausted in %s.", severity, formatDuration(*timeToExhaustion))
}

func severityPhrase(burnRate float64) string {
	switch {
	case burnRate >= 3.0:
		return "critically fast"
	case burnRate >= 2.0:
		return fmt.Sprintf("%.1f× faster than allowed", burnRate)
	case burnRate >= 1.5:
		return fmt.Sprintf("%.1f× normal rate", burnRate)
	case burnRate >= 1.0:
		return "at the allowed rate"
	default:
		return "below normal"
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Hour:
		return fmt.Sprintf("%d minutes", int(math.Round(d.Minutes())))
	case d < 24*time.Hour:
		return fmt.Sprintf("%.1f hours", d.Hours())
	case d < 72*time.Hour:
		return fmt.Sprintf("%.1f days", d.Hours()/24)
	default:
		return fmt.Sprintf("%d days", int(math.Round(d.Hours()/24)))
	}
}

// ForecastTarget computes the full forecast for one service/SLO target.
func (e *Engine) ForecastTarget(ctx context.Context, svc *model.Service, target *model.SLOTarget) (*Result, error) {
	since := time.Now().Add(-trendLookback)
	history, err := e.store.ListBurnHistory(ctx, svc.ID, trendWindowMins, since)
	if err != nil {
		return nil, store.NewQueryError("forecast.list_history", err)
	}

	trend := CalculateTrend(history)

	var currentBurnRate float64
	if len(history) > 0 {
		currentBurnRate = history[len(history)-1].BurnRate
	}

	status, err := e.slo.ComputeSLO(ctx, svc.ID, target)
	if err != nil {
		return nil, err
	}

	windowHours := float64(target.WindowDays) * 24
	if windowHours <= 0 {
		windowHours = 30 * 24
	}

	timeToExhaustion := ForecastExhaustion(status.RemainingPercentage, windowHours, currentBurnRate, trend)

	direction, confidence := "stable", "medium"
	if trend != nil {
		direction, confidence = trend.Direction, trend.Confidence
	}

	result := &Result{
		ServiceID:        svc.ID,
		ServiceName:      svc.Name,
		TargetName:       target.Name,
		CurrentBurnRate:  currentBurnRate,
		Trend:            trend,
		Direction:        direction,
		Confidence:       confidence,
		TimeToExhaustion: timeToExhaustion,
	}
	result.Message = GenerateForecastMessage(timeToExhaustion, currentBurnRate)
	return result, nil
}

// GetAllForecasts computes forecasts for every active service/target pair.
func (e *Engine) GetAllForecasts(ctx context.Context) ([]*Result, error) {
	services, err := e.store.ListActiveServices(ctx)
	if err != nil {
		return nil, store.NewQueryError("forecast.list_services", err)
	}

	var out []*Result
	for _, svc := range services {
		targets, err := e.store.ListSLOTargets(ctx, svc.ID)
		if err != nil {
			return nil, store.NewQueryError("forecast.list_targets", err)
		}
		for _, target := range targets {
			r, err := e.ForecastTarget(ctx, svc, target)
			if err != nil {
				return nil, err
			}
			out = append(out, r)
		}
	}
	return out, nil
}

// GetNearestExhaustion returns the forecast with the soonest projected
// exhaustion time among all active service/target pairs, or nil if none
// are currently projected to exhaust.
func (e *Engine) GetNearestExhaustion(ctx context.Context) (*Result, error) {
	all, err := e.GetAllForecasts(ctx)
	if err != nil {
		return nil, err
	}
	var nearest *Result
	for _, r := range all {
		if r.TimeToExhaustion == nil {
			continue
		}
		if nearest == nil || *r.TimeToExhaustion < *nearest.TimeToExhaustion {
			nearest = r
		}
	}
	return nearest, nil
}
