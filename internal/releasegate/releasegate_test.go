package releasegate

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

func newTestGate(t *testing.T) (*Gate, store.Store, *model.Service) {
	t.Helper()
	st := store.NewMemoryStore()
	cfg := config.DefaultConfig()
	svc, err := st.UpsertService(context.Background(), "checkout-service")
	require.NoError(t, err)

	sloEngine := slo.New(st)
	require.NoError(t, sloEngine.SeedDefaults(context.Background(), svc.ID))

	burnEngine := burnrate.New(st, cfg, nil)
	forecastEngine := forecast.New(st, sloEngine)
	gate := New(st, burnEngine, sloEngine, forecastEngine, cfg)
	return gate, st, svc
}

func seedBurn(t *testing.T, st store.Store, burnEngine *burnrate.Engine, serviceID int64, totalReq, errs int64) {
	t.Helper()
	require.NoError(t, st.InsertMetric(context.Background(), &model.Metric{
		ServiceID: serviceID, Timestamp: time.Now().Add(-time.Minute), TotalRequests: totalReq, ErrorCount: errs,
	}))
}

func TestCheckReleaseAllowsWhenSafe(t *testing.T) {
	gate, st, svc := newTestGate(t)
	seedBurn(t, st, gate.burn, svc.ID, 10000, 1)

	decision, deployment, err := gate.CheckRelease(context.Background(), Request{
		ServiceName: svc.Name, DeploymentID: "dep-1", Version: "v1.0.0", RequestedBy: "ci",
	})
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, "approved", deployment.Status)
}

func TestCheckReleaseBlocksOnFreezeWithoutOverride(t *testing.T) {
	gate, st, svc := newTestGate(t)
	// Massive error spike pushes risk to freeze.
	seedBurn(t, st, gate.burn, svc.ID, 1000, 500)

	decision, deployment, err := gate.CheckRelease(context.Background(), Request{
		ServiceName: svc.Name, DeploymentID: "dep-2", Version: "v1.0.1", RequestedBy: "ci",
	})
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, model.RiskFreeze, decision.RiskLevel)
	require.Equal(t, "rejected", deployment.Status)
}

func TestCheckReleaseOverrideAllowsFreeze(t *testing.T) {
	gate, st, svc := newTestGate(t)
	seedBurn(t, st, gate.burn, svc.ID, 1000, 500)

	decision, _, err := gate.CheckRelease(context.Background(), Request{
		ServiceName:    svc.Name,
		DeploymentID:   "dep-3",
		Version:        "v1.0.2",
		RequestedBy:    "on-call",
		Override:       true,
		OverrideReason: "hotfix for incident INC-123",
	})
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.NotEmpty(t, decision.Warnings)
}

func TestCheckReleaseUnknownServiceStillPersistsDeployment(t *testing.T) {
	gate, st, _ := newTestGate(t)

	decision, deployment, err := gate.CheckRelease(context.Background(), Request{
		ServiceName: "no-such-service", DeploymentID: "dep-unknown", Version: "v1.0.0", RequestedBy: "ci",
	})
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, model.RiskFreeze, decision.RiskLevel)
	require.Equal(t, "rejected", deployment.Status)
	require.Equal(t, int64(0), deployment.ServiceID)

	deployments, err := st.ListDeployments(context.Background(), 0, 10)
	require.NoError(t, err)
	require.Len(t, deployments, 1)
	require.Equal(t, "dep-unknown", deployments[0].DeploymentID)
}

func TestGetGateStatistics(t *testing.T) {
	gate, st, svc := newTestGate(t)
	seedBurn(t, st, gate.burn, svc.ID, 10000, 1)

	_, _, err := gate.CheckRelease(context.Background(), Request{ServiceName: svc.Name, DeploymentID: "a", Version: "v1", RequestedBy: "ci"})
	require.NoError(t, err)

	seedBurn(t, st, gate.burn, svc.ID, 1000, 500)
	_, _, err = gate.CheckRelease(context.Background(), Request{ServiceName: svc.Name, DeploymentID: "b", Version: "v2", RequestedBy: "ci"})
	require.NoError(t, err)

	stats, err := gate.GetGateStatistics(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.Total)
	require.Equal(t, int64(1), stats.Blocked)
}
