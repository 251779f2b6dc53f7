// Package store defines the persistence interface for the reliability
// platform and its pluggable backends (in-memory, SQL).
//
// The shape follows internal/storage-backends' QueueBackend: a narrow
// interface, a capability descriptor, and a health check, so new backends
// can be added without touching engine code.
package store

import (
	"context"
	"time"

	"github.com/flyingrobots/reliability-control-plane/internal/model"
)

// Store is the persistence contract every reliability-platform backend
// implements.
type Store interface {
	// Services
	UpsertService(ctx context.Context, name string) (*model.Service, error)
	GetService(ctx context.Context, name string) (*model.Service, error)
	ListActiveServices(ctx context.Context) ([]*model.Service, error)

	// SLO targets
	CreateSLOTarget(ctx context.Context, t *model.SLOTarget) error
	ListSLOTargets(ctx context.Context, serviceID int64) ([]*model.SLOTarget, error)
	GetSLOTarget(ctx context.Context, serviceID int64, name string) (*model.SLOTarget, error)

	// Metrics
	InsertMetric(ctx context.Context, m *model.Metric) error
	SumMetrics(ctx context.Context, serviceID int64, since time.Time) (totalRequests, errorCount int64, err error)
	CleanupMetrics(ctx context.Context, olderThan time.Time) (int64, error)

	// Burn history
	InsertBurnHistory(ctx context.Context, h *model.BurnHistory) error
	ListBurnHistory(ctx context.Context, serviceID int64, windowMinutes int, since time.Time) ([]*model.BurnHistory, error)

	// Deployments
	InsertDeployment(ctx context.Context, d *model.Deployment) error
	ListDeployments(ctx context.Context, serviceID int64, limit int) ([]*model.Deployment, error)
	DeploymentStats(ctx context.Context, since time.Time) (*DeploymentStats, error)

	// Alerts
	InsertAlert(ctx context.Context, a *model.Alert) error
	LastAlert(ctx context.Context, serviceID int64, alertType string) (*model.Alert, error)
	ListAlerts(ctx context.Context, f AlertFilter) ([]*model.Alert, error)
	AcknowledgeAlerts(ctx context.Context, ids []int64, by string) (int64, error)
	AlertStats(ctx context.Context, since time.Time) (*AlertStats, error)

	Capabilities() Capabilities
	Health(ctx context.Context) HealthStatus
	Close() error
}

// Capabilities describes what a Store backend guarantees.
type Capabilities struct {
	Persistence bool // survives process restart
	Concurrent  bool // safe for concurrent readers/writers without external locking
}

// HealthStatus describes backend reachability.
type HealthStatus struct {
	Status    string // healthy, degraded, unhealthy
	Message   string
	CheckedAt time.Time
}

// AlertFilter narrows ListAlerts.
type AlertFilter struct {
	ServiceID    int64 // 0 = all services
	Severity     model.AlertSeverity
	Acknowledged *bool
	Since        time.Time
	Limit        int
}

// DeploymentStats mirrors get_gate_statistics.
type DeploymentStats struct {
	PeriodDays         int
	Total              int64
	Blocked            int64
	Allowed            int64
	BlockRate          float64
	RiskDistribution   map[string]int64
}

// AlertStats mirrors get_alert_statistics.
type AlertStats struct {
	PeriodDays     int
	BySeverity     map[string]int64
	Total          int64
	Unacknowledged int64
}
