package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/flyingrobots/reliability-control-plane/internal/alert"
	"github.com/flyingrobots/reliability-control-plane/internal/burnrate"
	"github.com/flyingrobots/reliability-control-plane/internal/config"
	"github.com/flyingrobots/reliability-control-plane/internal/forecast"
	"github.com/flyingrobots/reliability-control-plane/internal/model"
	"github.com/flyingrobots/reliability-control-plane/internal/slo"
	"github.com/flyingrobots/reliability-control-plane/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCoordinator(t *testing.T) (*Coordinator, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	cfg := config.DefaultConfig()
	cfg.Scheduler.ComputationInterval = 10 * time.Millisecond

	sloEngine := slo.New(st)
	burnEngine := burnrate.New(st, cfg, zap.NewNop())
	forecastEngine := forecast.New(st, sloEngine)
	alertMgr := alert.New(st, burnEngine, sloEngine, forecastEngine, cfg, nil, zap.NewNop())

	co := New(st, burnEngine, sloEngine, forecastEngine, alertMgr, cfg, zap.NewNop())
	return co, st
}

func TestRunCycleSeedsTargetsAndComputesBurnRate(t *testing.T) {
	co, st := newTestCoordinator(t)
	ctx := context.Background()

	svc, err := st.UpsertService(ctx, "orders-service")
	require.NoError(t, err)
	require.NoError(t, st.InsertMetric(ctx, &model.Metric{
		ServiceID: svc.ID, Timestamp: time.Now().Add(-time.Minute), TotalRequests: 1000, ErrorCount: 2,
	}))

	co.runCycle(ctx)

	targets, err := st.ListSLOTargets(ctx, svc.ID)
	require.NoError(t, err)
	require.NotEmpty(t, targets)

	history, err := st.ListBurnHistory(ctx, svc.ID, 5, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.NotEmpty(t, history)
}

func TestRunCleanupDeletesOldMetrics(t *testing.T) {
	co, st := newTestCoordinator(t)
	ctx := context.Background()

	svc, err := st.UpsertService(ctx, "stale-service")
	require.NoError(t, err)
	require.NoError(t, st.InsertMetric(ctx, &model.Metric{
		ServiceID: svc.ID, Timestamp: time.Now().AddDate(0, 0, -(co.cfg.Metrics.RetentionDays + 1)), TotalRequests: 10, ErrorCount: 0,
	}))

	co.runCleanup(ctx)

	total, _, err := st.SumMetrics(ctx, svc.ID, time.Now().AddDate(0, 0, -(co.cfg.Metrics.RetentionDays+5)))
	require.NoError(t, err)
	require.Equal(t, int64(0), total)
}

func TestRunRespectsDisabledScheduler(t *testing.T) {
	co, _ := newTestCoordinator(t)
	co.cfg.Scheduler.Enabled = false

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := co.Run(ctx)
	require.NoError(t, err)
}
