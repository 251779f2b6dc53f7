// Copyright 2025 James Ross
package obs

import (
	"fmt"
	"net/http"

	"github.com/flyingrobots/reliability-control-plane/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BurnRate = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "burn_rate",
		Help: "Current burn rate by service and window",
	}, []string{"service", "window"})

	RiskLevel = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "risk_level",
		Help: "Current risk level by service (0=safe,1=observe,2=danger,3=freeze)",
	}, []string{"service"})

	ErrorBudgetRemaining = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "error_budget_remaining_percent",
		Help: "Remaining error budget percentage by service and SLO target",
	}, []string{"service", "slo_target"})

	SLOCompliance = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "slo_compliance_percent",
		Help: "Current SLO compliance percentage by service",
	}, []string{"service"})

	MetricsIngested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "metrics_ingested_total",
		Help: "Total number of metric snapshots ingested",
	}, []string{"service"})

	DeploymentsRequested = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deployments_requested_total",
		Help: "Total number of release gate checks requested",
	}, []string{"service"})

	DeploymentsBlocked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "deployments_blocked_total",
		Help: "Total number of release gate checks that were blocked",
	}, []string{"service", "reason"})

	AlertsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alerts_dispatched_total",
		Help: "Total number of alerts dispatched by type and severity",
	}, []string{"alert_type", "severity"})

	AlertsSuppressed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "alerts_suppressed_cooldown_total",
		Help: "Total number of alerts suppressed by the cooldown window",
	}, []string{"alert_type"})

	ComputationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "computation_cycle_duration_seconds",
		Help:    "Histogram of periodic coordinator compute-cycle durations",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	SimulatedIncidents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "simulated_incidents_total",
		Help: "Total number of synthetic incidents injected by the metrics simulator",
	}, []string{"service"})
)

func init() {
	prometheus.MustRegister(
		BurnRate,
		RiskLevel,
		ErrorBudgetRemaining,
		SLOCompliance,
		MetricsIngested,
		DeploymentsRequested,
		DeploymentsBlocked,
		AlertsDispatched,
		AlertsSuppressed,
		ComputationDuration,
		SimulatedIncidents,
	)
}

// StartMetricsServer exposes /metrics and returns a server for controlled
// shutdown. Retained for callers that don't need the health/readiness
// endpoints StartHTTPServer also registers.
func StartMetricsServer(cfg *config.Config) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Observability.MetricsPort), Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
