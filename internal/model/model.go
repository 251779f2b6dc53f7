// Package model defines the core reliability-platform entities shared by
// every engine: services, SLO targets, metric snapshots, burn history,
// deployments and alerts.
package model

import "time"

// RiskLevel is a total order SAFE < OBSERVE < DANGER < FREEZE.
type RiskLevel int

const (
	RiskSafe RiskLevel = iota
	RiskObserve
	RiskDanger
	RiskFreeze
)

func (r RiskLevel) String() string {
	switch r {
	case RiskSafe:
		return "safe"
	case RiskObserve:
		return "observe"
	case RiskDanger:
		return "danger"
	case RiskFreeze:
		return "freeze"
	default:
		return "unknown"
	}
}

// Worse returns the higher-severity of the two risk levels.
func (r RiskLevel) Worse(other RiskLevel) RiskLevel {
	if other > r {
		return other
	}
	return r
}

// RiskInfo mirrors the original platform's RISK_THRESHOLDS table: the
// color and recommended operator action associated with a risk level.
type RiskInfo struct {
	Color  string
	Action string
}

var riskInfo = map[RiskLevel]RiskInfo{
	RiskSafe:    {Color: "#22c55e", Action: "Normal operations"},
	RiskObserve: {Color: "#eab308", Action: "Increased monitoring"},
	RiskDanger:  {Color: "#f97316", Action: "Limit non-critical changes"},
	RiskFreeze:  {Color: "#ef4444", Action: "Block all deployments"},
}

// Info returns the color/action pair associated with a risk level.
func (r RiskLevel) Info() RiskInfo {
	return riskInfo[r]
}

// Service is a monitored system with a name and active flag.
type Service struct {
	ID       int64
	Name     string
	IsActive bool
}

// SLOTarget is a single objective (availability, latency_p99, ...) tracked
// for a service over a rolling window of days.
type SLOTarget struct {
	ID                 int64
	ServiceID          int64
	Name               string
	TargetValue        float64 // e.g. 99.9 for 99.9%
	WindowDays         int
	BurnRateThreshold  float64 // "fast burn" threshold, informational
	CriticalBurnRate   float64 // "slow burn" / critical threshold
	IsActive           bool
}

// Metric is one ingested telemetry sample for a service.
type Metric struct {
	ID             int64
	ServiceID      int64
	Timestamp      time.Time
	TotalRequests  int64
	ErrorCount     int64
	LatencyP50     float64
	LatencyP95     float64
	LatencyP99     float64
	SuccessRate    *float64
}

// BurnHistory is a persisted burn-rate computation for a service/window.
type BurnHistory struct {
	ID                     int64
	ServiceID              int64
	Timestamp              time.Time
	WindowMinutes          int
	BurnRate               float64
	ErrorBudgetConsumed    float64
	ErrorBudgetRemaining   float64
	TimeToExhaustionHours  *float64
	RiskLevel              RiskLevel
}

// Deployment is one release-gate decision recorded for audit.
type Deployment struct {
	ID                  int64
	ServiceID           int64
	DeploymentID        string
	Version             string
	RequestedBy         string
	RequestedAt         time.Time
	Allowed             bool
	BlockedReason       string
	RiskLevelAtRequest  RiskLevel
	BurnRateAtRequest   float64
	Status              string // "approved" or "rejected"
}

// AlertSeverity mirrors the original platform's AlertSeverity enum.
type AlertSeverity string

const (
	SeverityInfo      AlertSeverity = "info"
	SeverityWarning   AlertSeverity = "warning"
	SeverityCritical  AlertSeverity = "critical"
	SeverityEmergency AlertSeverity = "emergency"
)

// AlertChannel is the destination a notification is simulated against.
type AlertChannel string

const (
	ChannelSlack     AlertChannel = "slack"
	ChannelEmail     AlertChannel = "email"
	ChannelPagerDuty AlertChannel = "pagerduty"
	ChannelUI        AlertChannel = "ui"
)

// Alert is a generated notification tied to a service and alert type.
//
// AlertType is a normalized, indexed column rather than a key inside a JSON
// metadata blob: the original implementation queried cooldown state with a
// JSON-containment filter, which this platform replaces with a direct
// (ServiceID, AlertType) index lookup.
type Alert struct {
	ID             int64
	ServiceID      int64
	AlertType      string
	Severity       AlertSeverity
	Channel        AlertChannel
	Title          string
	Message        string
	Timestamp      time.Time
	Dispatched     bool
	DispatchedAt   *time.Time
	Acknowledged   bool
	AcknowledgedBy string
	AcknowledgedAt *time.Time
}
