package narrative

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

func newTestGenerator(t *testing.T) (*Generator, store.Store) {
	t.Helper()
	st := store.NewMemoryStore()
	cfg := config.DefaultConfig()

	sloEngine := slo.New(st)
	burnEngine := burnrate.New(st, cfg, nil)
	forecastEngine := forecast.New(st, sloEngine)
	return New(st, burnEngine, sloEngine, forecastEngine), st
}

func TestGenerateSummaryHealthyServiceHasNoAtRiskEntry(t *testing.T) {
	gen, st := newTestGenerator(t)
	ctx := context.Background()

	svc, err := st.UpsertService(ctx, "checkout-service")
	require.NoError(t, err)
	require.NoError(t, gen.slo.SeedDefaults(ctx, svc.ID))
	require.NoError(t, st.InsertMetric(ctx, &model.Metric{
		ServiceID: svc.ID, Timestamp: time.Now().Add(-time.Minute), TotalRequests: 10000, ErrorCount: 1,
	}))

	summary, err := gen.GenerateSummary(ctx)
	require.NoError(t, err)
	require.Equal(t, "healthy", summary.OverallHealth)
	require.Empty(t, summary.ServicesAtRisk)
	require.Contains(t, summary.ActionItems, "Continue monitoring - all systems operating normally")
}

func TestGenerateSummaryFlagsBudgetExhaustedService(t *testing.T) {
	gen, st := newTestGenerator(t)
	ctx := context.Background()

	svc, err := st.UpsertService(ctx, "payments-service")
	require.NoError(t, err)
	require.NoError(t, gen.slo.SeedDefaults(ctx, svc.ID))
	require.NoError(t, st.InsertMetric(ctx, &model.Metric{
		ServiceID: svc.ID, Timestamp: time.Now().Add(-time.Minute), TotalRequests: 1000, ErrorCount: 500,
	}))

	summary, err := gen.GenerateSummary(ctx)
	require.NoError(t, err)
	require.Contains(t, summary.ServicesAtRisk, "payments-service")
	require.Less(t, summary.OverallScore, 100.0)

	var foundCritical bool
	for _, ins := range summary.Insights {
		if ins.Severity == model.SeverityCritical {
			foundCritical = true
		}
	}
	require.True(t, foundCritical)
	require.Contains(t, summary.ActionItems[0], "URGENT")
}

func TestGenerateSummaryNoServicesIsHealthyByDefault(t *testing.T) {
	gen, _ := newTestGenerator(t)
	summary, err := gen.GenerateSummary(context.Background())
	require.NoError(t, err)
	require.Equal(t, "healthy", summary.OverallHealth)
	require.Equal(t, 100.0, summary.OverallScore)
}

func TestGenerateServiceNarrativeUnknownService(t *testing.T) {
	gen, _ := newTestGenerator(t)
	text, err := gen.GenerateServiceNarrative(context.Background(), "no-such-service")
	require.NoError(t, err)
	require.Equal(t, "Service not found.", text)
}

func TestGenerateServiceNarrativeIncludesRiskAndBurnRate(t *testing.T) {
	gen, st := newTestGenerator(t)
	ctx := context.Background()

	svc, err := st.UpsertService(ctx, "search-service")
	require.NoError(t, err)
	require.NoError(t, gen.slo.SeedDefaults(ctx, svc.ID))
	require.NoError(t, st.InsertMetric(ctx, &model.Metric{
		ServiceID: svc.ID, Timestamp: time.Now().Add(-time.Minute), TotalRequests: 10000, ErrorCount: 5,
	}))

	text, err := gen.GenerateServiceNarrative(ctx, svc.Name)
	require.NoError(t, err)
	require.Contains(t, text, "search-service Reliability Report")
	require.Contains(t, text, "Risk Level")
	require.Contains(t, text, "Burn Rate")
}
