package forecast

import (
	"context"
	"testing"
	"time"

	"github.com/flyingrobots/reliability-control-plane/internal/model"
	"github.com/flyingrobots/reliability-control-plane/internal/slo"
	"github.com/flyingrobots/reliability-control-plane/internal/store"
	"github.com/stretchr/testify/require"
)

func TestCalculateTrendTooFewSamples(t *testing.T) {
	history := []*model.BurnHistory{
		{Timestamp: time.Now(), BurnRate: 1.0},
		{Timestamp: time.Now().Add(time.Hour), BurnRate: 1.2},
	}
	require.Nil(t, CalculateTrend(history))
}

func TestCalculateTrendIncreasing(t *testing.T) {
	base := time.Now().Add(-5 * time.Hour)
	history := []*model.BurnHistory{
		{Timestamp: base, BurnRate: 1.0},
		{Timestamp: base.Add(time.Hour), BurnRate: 1.5},
		{Timestamp: base.Add(2 * time.Hour), BurnRate: 2.0},
		{Timestamp: base.Add(3 * time.Hour), BurnRate: 2.5},
		{Timestamp: base.Add(4 * time.Hour), BurnRate: 3.0},
	}
	trend := CalculateTrend(history)
	require.NotNil(t, trend)
	require.Equal(t, "increasing", trend.Direction)
	require.Equal(t, "high", trend.Confidence)
	require.InDelta(t, 0.5, trend.Slope, 0.01)
}

func TestCalculateTrendStable(t *testing.T) {
	base := time.Now().Add(-3 * time.Hour)
	history := []*model.BurnHistory{
		{Timestamp: base, BurnRate: 1.0},
		{Timestamp: base.Add(time.Hour), BurnRate: 1.02},
		{Timestamp: base.Add(2 * time.Hour), BurnRate: 0.98},
	}
	trend := CalculateTrend(history)
	require.NotNil(t, trend)
	require.Equal(t, "stable", trend.Direction)
}

func TestForecastExhaustionUsesSlopeWhenIncreasing(t *testing.T) {
	trend := &Trend{Slope: 0.5, Direction: "increasing"}
	d := ForecastExhaustion(50, 24*30, 1.0, trend)
	require.NotNil(t, d)

	noTrend := ForecastExhaustion(50, 24*30, 1.0, nil)
	require.NotNil(t, noTrend)
	require.Greater(t, *noTrend, *d) // higher forecast burn rate with trend -> shorter time
}

func TestForecastExhaustionNilWhenNoBurn(t *testing.T) {
	d := ForecastExhaustion(50, 24*30, 0, nil)
	require.Nil(t, d)
}

func TestGenerateForecastMessageSeverityBands(t *testing.T) {
	d := 2 * time.Hour
	msg := GenerateForecastMessage(&d, 3.5)
	require.Contains(t, msg, "critically fast")

	msg = GenerateForecastMessage(&d, 2.2)
	require.Contains(t, msg, "faster than allowed")
	require.Contains(t, msg, "×")

	msg = GenerateForecastMessage(nil, 0.5)
	require.Contains(t, msg, "not currently projected")
}

func TestForecastTargetEndToEnd(t *testing.T) {
	st := store.NewMemoryStore()
	svc, err := st.UpsertService(context.Background(), "api-gateway")
	require.NoError(t, err)

	target := &model.SLOTarget{ServiceID: svc.ID, Name: "availability", TargetValue: 99.9, WindowDays: 30}
	require.NoError(t, st.CreateSLOTarget(context.Background(), target))

	base := time.Now().Add(-5 * time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, st.InsertBurnHistory(context.Background(), &model.BurnHistory{
			ServiceID:     svc.ID,
			Timestamp:     base.Add(time.Duration(i) * time.Hour),
			WindowMinutes: 60,
			BurnRate:      1.0 + float64(i)*0.3,
		}))
	}
	require.NoError(t, st.InsertMetric(context.Background(), &model.Metric{
		ServiceID: svc.ID, Timestamp: time.Now().Add(-time.Minute), TotalRequests: 10000, ErrorCount: 15,
	}))

	sloEngine := slo.New(st)
	e := New(st, sloEngine)

	result, err := e.ForecastTarget(context.Background(), svc, target)
	require.NoError(t, err)
	require.NotNil(t, result.Trend)
	require.Equal(t, "increasing", result.Trend.Direction)
	require.NotEmpty(t, result.Message)
}
