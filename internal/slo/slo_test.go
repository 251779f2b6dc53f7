package slo

import (
	"context"
	"testing"
	"time"

	"github.com/flyingrobots/reliability-control-plane/internal/model"
	"github.com/flyingrobots/reliability-control-plane/internal/store"
	"github.com/stretchr/testify/require"
)

func TestSeedDefaultsCreatesTwoTargets(t *testing.T) {
	st := store.NewMemoryStore()
	svc, err := st.UpsertService(context.Background(), "auth-service")
	require.NoError(t, err)

	e := New(st)
	require.NoError(t, e.SeedDefaults(context.Background(), svc.ID))

	targets, err := st.ListSLOTargets(context.Background(), svc.ID)
	require.NoError(t, err)
	require.Len(t, targets, 2)

	// Seeding again is a no-op.
	require.NoError(t, e.SeedDefaults(context.Background(), svc.ID))
	targets, err = st.ListSLOTargets(context.Background(), svc.ID)
	require.NoError(t, err)
	require.Len(t, targets, 2)
}

func TestComputeSLONoTraffic(t *testing.T) {
	st := store.NewMemoryStore()
	svc, err := st.UpsertService(context.Background(), "search-service")
	require.NoError(t, err)

	e := New(st)
	target := &model.SLOTarget{ServiceID: svc.ID, Name: "availability", TargetValue: 99.9, WindowDays: 30}
	status, err := e.ComputeSLO(context.Background(), svc.ID, target)
	require.NoError(t, err)
	require.Equal(t, 100.0, status.CurrentAvailability)
	require.Equal(t, 100.0, status.RemainingPercentage)
}

func TestComputeSLOWithErrors(t *testing.T) {
	st := store.NewMemoryStore()
	svc, err := st.UpsertService(context.Background(), "inventory-service")
	require.NoError(t, err)

	require.NoError(t, st.InsertMetric(context.Background(), &model.Metric{
		ServiceID: svc.ID, Timestamp: time.Now().Add(-time.Minute), TotalRequests: 10000, ErrorCount: 20,
	}))

	e := New(st)
	target := &model.SLOTarget{ServiceID: svc.ID, Name: "availability", TargetValue: 99.9, WindowDays: 30}
	status, err := e.ComputeSLO(context.Background(), svc.ID, target)
	require.NoError(t, err)
	require.InDelta(t, 99.8, status.CurrentAvailability, 0.01)
	require.Greater(t, status.ConsumedPercentage, 0.0)
	require.Less(t, status.RemainingPercentage, 100.0)
}

func TestComputeGlobalComplianceFlagsAtRisk(t *testing.T) {
	st := store.NewMemoryStore()
	healthy, err := st.UpsertService(context.Background(), "payment-service")
	require.NoError(t, err)
	atRisk, err := st.UpsertService(context.Background(), "notification-service")
	require.NoError(t, err)

	e := New(st)
	require.NoError(t, e.SeedDefaults(context.Background(), healthy.ID))
	require.NoError(t, e.SeedDefaults(context.Background(), atRisk.ID))

	// Push enough errors into atRisk to break its availability target.
	require.NoError(t, st.InsertMetric(context.Background(), &model.Metric{
		ServiceID: atRisk.ID, Timestamp: time.Now().Add(-time.Minute), TotalRequests: 1000, ErrorCount: 50,
	}))

	report, err := e.ComputeGlobalCompliance(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Services, 2)
	require.Equal(t, 2, report.TotalServices)
	require.Equal(t, 1, report.ServicesMeetingSLO)
	require.Equal(t, []string{"notification-service"}, report.ServicesAtRisk)

	byName := make(map[string]*ServiceCompliance, len(report.Services))
	for _, c := range report.Services {
		byName[c.ServiceName] = c
	}
	require.False(t, byName["payment-service"].AtRisk)
	require.True(t, byName["notification-service"].AtRisk)
}
