package alert

import (
	"context"
	"testing"
	"time"

	"github.com/flyingrobots/reliability-control-plane/internal/burnrate"
	"github.com/flyingrobots/reliability-control-plane/internal/config"
	"github.com/flyingrobots/reliability-control-plane/internal/forecast"
	"github.com/flyingrobots/reliability-control-plane/internal/model"
	"github.com/flyingrobots/reliability-control-plane/internal/slo"
	"github.com/flyingrobots/reliability-control-plane/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*Manager, store.Store, *model.Service, *model.SLOTarget) {
	t.Helper()
	st := store.NewMemoryStore()
	cfg := config.DefaultConfig()
	svc, err := st.UpsertService(context.Background(), "payment-service")
	require.NoError(t, err)

	sloEngine := slo.New(st)
	require.NoError(t, sloEngine.SeedDefaults(context.Background(), svc.ID))
	targets, err := st.ListSLOTargets(context.Background(), svc.ID)
	require.NoError(t, err)

	burnEngine := burnrate.New(st, cfg, nil)
	forecastEngine := forecast.New(st, sloEngine)
	mgr := New(st, burnEngine, sloEngine, forecastEngine, cfg, nil, nil)
	return mgr, st, svc, targets[0]
}

func TestCreateAlertUnknownType(t *testing.T) {
	mgr, _, svc, _ := newTestManager(t)
	_, err := mgr.CreateAlert(context.Background(), svc.ID, "not_a_real_type", Args{})
	require.ErrorIs(t, err, store.ErrAlertTypeUnknown)
}

func TestCreateAlertCooldownSuppression(t *testing.T) {
	mgr, _, svc, _ := newTestManager(t)

	a, err := mgr.CreateAlert(context.Background(), svc.ID, TypeBurnRateHigh, Args{ServiceName: svc.Name, BurnRate: 3.0})
	require.NoError(t, err)
	require.NotNil(t, a)

	again, err := mgr.CreateAlert(context.Background(), svc.ID, TypeBurnRateHigh, Args{ServiceName: svc.Name, BurnRate: 3.0})
	require.NoError(t, err)
	require.Nil(t, again) // suppressed by cooldown
}

func TestEvaluateAndAlertBudgetExhausted(t *testing.T) {
	mgr, st, svc, target := newTestManager(t)
	// 100% error rate exhausts the budget entirely.
	require.NoError(t, st.InsertMetric(context.Background(), &model.Metric{
		ServiceID: svc.ID, Timestamp: time.Now().Add(-time.Minute), TotalRequests: 1000, ErrorCount: 1000,
	}))

	alerts, err := mgr.EvaluateAndAlert(context.Background(), svc, target)
	require.NoError(t, err)
	require.NotEmpty(t, alerts)

	var sawExhausted, sawBurnHigh bool
	for _, a := range alerts {
		if a.AlertType == TypeBudgetExhausted {
			sawExhausted = true
		}
		if a.AlertType == TypeBurnRateHigh {
			sawBurnHigh = true
		}
	}
	require.True(t, sawExhausted)
	require.True(t, sawBurnHigh) // independent check, fires alongside budget_exhausted
}

func TestEvaluateAndAlertHealthyProducesNoAlerts(t *testing.T) {
	mgr, st, svc, target := newTestManager(t)
	require.NoError(t, st.InsertMetric(context.Background(), &model.Metric{
		ServiceID: svc.ID, Timestamp: time.Now().Add(-time.Minute), TotalRequests: 10000, ErrorCount: 1,
	}))

	alerts, err := mgr.EvaluateAndAlert(context.Background(), svc, target)
	require.NoError(t, err)
	require.Empty(t, alerts)
}

func TestAcknowledgeAlert(t *testing.T) {
	mgr, _, svc, _ := newTestManager(t)
	a, err := mgr.CreateAlert(context.Background(), svc.ID, TypeRecovery, Args{ServiceName: svc.Name})
	require.NoError(t, err)
	require.NotNil(t, a)

	require.NoError(t, mgr.AcknowledgeAlert(context.Background(), a.ID, "oncall-bot"))

	alerts, err := mgr.GetAlerts(context.Background(), store.AlertFilter{ServiceID: svc.ID})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.True(t, alerts[0].Acknowledged)
	require.Equal(t, "oncall-bot", alerts[0].AcknowledgedBy)
}

func TestGetAlertStatistics(t *testing.T) {
	mgr, _, svc, _ := newTestManager(t)
	_, err := mgr.CreateAlert(context.Background(), svc.ID, TypeRecovery, Args{ServiceName: svc.Name})
	require.NoError(t, err)

	stats, err := mgr.GetAlertStatistics(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Total)
	require.Equal(t, int64(1), stats.Unacknowledged)
}
