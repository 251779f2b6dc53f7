package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/flyingrobots/reliability-control-plane/internal/model"
)

// SQLStore persists all reliability-platform state to a relational
// database, selected by DSN scheme: "sqlite://path/to.db" for local
// development, "postgres://..." for production, matching the two drivers
// DATABASE_URL supports in the original platform.
//
// The alert table carries an indexed alert_type column directly, rather
// than the JSON-metadata-containment lookup the original used for
// cooldown checks — see SPEC_FULL.md §3.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// OpenSQLStore opens (and migrates) a SQL-backed Store from a DSN of the
// form "sqlite://<path>" or "postgres://<dsn>".
func OpenSQLStore(dsn string) (*SQLStore, error) {
	driver, connStr, err := splitDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, connStr)
	if err != nil {
		return nil, NewQueryError("open", err)
	}
	s := &SQLStore{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func splitDSN(dsn string) (driver, connStr string, err error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite3", strings.TrimPrefix(dsn, "sqlite://"), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn, nil
	default:
		return "", "", fmt.Errorf("store: unsupported dsn scheme in %q", dsn)
	}
}

func (s *SQLStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS services (
			id INTEGER PRIMARY KEY, name TEXT UNIQUE NOT NULL, is_active INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS slo_targets (
			id INTEGER PRIMARY KEY, service_id INTEGER NOT NULL, name TEXT NOT NULL,
			target_value REAL NOT NULL, window_days INTEGER NOT NULL,
			burn_rate_threshold REAL NOT NULL, critical_burn_rate REAL NOT NULL,
			is_active INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS metrics (
			id INTEGER PRIMARY KEY, service_id INTEGER NOT NULL, timestamp TIMESTAMP NOT NULL,
			total_requests BIGINT NOT NULL, error_count BIGINT NOT NULL,
			latency_p50 REAL, latency_p95 REAL, latency_p99 REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_metrics_service_ts ON metrics(service_id, timestamp)`,
		`CREATE TABLE IF NOT EXISTS burn_history (
			id INTEGER PRIMARY KEY, service_id INTEGER NOT NULL, timestamp TIMESTAMP NOT NULL,
			window_minutes INTEGER NOT NULL, burn_rate REAL NOT NULL,
			error_budget_consumed REAL NOT NULL, error_budget_remaining REAL NOT NULL,
			time_to_exhaustion_hours REAL, risk_level INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_burn_service_window_ts ON burn_history(service_id, window_minutes, timestamp)`,
		`CREATE TABLE IF NOT EXISTS deployments (
			id INTEGER PRIMARY KEY, service_id INTEGER NOT NULL, deployment_id TEXT NOT NULL,
			version TEXT, requested_by TEXT, requested_at TIMESTAMP NOT NULL,
			allowed INTEGER NOT NULL, blocked_reason TEXT,
			risk_level_at_request INTEGER NOT NULL, burn_rate_at_request REAL NOT NULL, status TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY, service_id INTEGER NOT NULL, alert_type TEXT NOT NULL,
			severity TEXT NOT NULL, channel TEXT NOT NULL, title TEXT NOT NULL, message TEXT NOT NULL,
			timestamp TIMESTAMP NOT NULL, dispatched INTEGER NOT NULL DEFAULT 0, dispatched_at TIMESTAMP,
			acknowledged INTEGER NOT NULL DEFAULT 0, acknowledged_by TEXT, acknowledged_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_service_type_ts ON alerts(service_id, alert_type, timestamp)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return NewQueryError("migrate", err)
		}
	}
	return nil
}

// ph returns the positional placeholder syntax for this driver:
// "?" for sqlite3, "$n" for postgres.
func (s *SQLStore) ph(n int) string {
	if s.driver == "postgres" {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) UpsertService(ctx context.Context, name string) (*model.Service, error) {
	if svc, err := s.GetService(ctx, name); err == nil {
		return svc, nil
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("INSERT INTO services (name, is_active) VALUES (%s, 1)", s.ph(1)), name)
	if err != nil {
		return nil, NewQueryError("UpsertService", err)
	}
	id, _ := res.LastInsertId()
	return &model.Service{ID: id, Name: name, IsActive: true}, nil
}

func (s *SQLStore) GetService(ctx context.Context, name string) (*model.Service, error) {
	row := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT id, name, is_active FROM services WHERE name = %s", s.ph(1)), name)
	var svc model.Service
	var active int
	if err := row.Scan(&svc.ID, &svc.Name, &active); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrServiceNotFound
		}
		return nil, NewQueryError("GetService", err)
	}
	svc.IsActive = active != 0
	return &svc, nil
}

func (s *SQLStore) ListActiveServices(ctx context.Context) ([]*model.Service, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, is_active FROM services WHERE is_active = 1 ORDER BY name")
	if err != nil {
		return nil, NewQueryError("ListActiveServices", err)
	}
	defer rows.Close()
	var out []*model.Service
	for rows.Next() {
		var svc model.Service
		var active int
		if err := rows.Scan(&svc.ID, &svc.Name, &active); err != nil {
			return nil, NewQueryError("ListActiveServices", err)
		}
		svc.IsActive = active != 0
		out = append(out, &svc)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateSLOTarget(ctx context.Context, t *model.SLOTarget) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO slo_targets (service_id, name, target_value, window_days, burn_rate_threshold, critical_burn_rate, is_active)
			VALUES (%s, %s, %s, %s, %s, %s, 1)`, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6)),
		t.ServiceID, t.Name, t.TargetValue, t.WindowDays, t.BurnRateThreshold, t.CriticalBurnRate)
	if err != nil {
		return NewQueryError("CreateSLOTarget", err)
	}
	t.ID, _ = res.LastInsertId()
	t.IsActive = true
	return nil
}

func (s *SQLStore) ListSLOTargets(ctx context.Context, serviceID int64) ([]*model.SLOTarget, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, service_id, name, target_value, window_days, burn_rate_threshold, critical_burn_rate
			FROM slo_targets WHERE service_id = %s AND is_active = 1`, s.ph(1)), serviceID)
	if err != nil {
		return nil, NewQueryError("ListSLOTargets", err)
	}
	defer rows.Close()
	var out []*model.SLOTarget
	for rows.Next() {
		t := &model.SLOTarget{IsActive: true}
		if err := rows.Scan(&t.ID, &t.ServiceID, &t.Name, &t.TargetValue, &t.WindowDays, &t.BurnRateThreshold, &t.CriticalBurnRate); err != nil {
			return nil, NewQueryError("ListSLOTargets", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetSLOTarget(ctx context.Context, serviceID int64, name string) (*model.SLOTarget, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, service_id, name, target_value, window_days, burn_rate_threshold, critical_burn_rate
			FROM slo_targets WHERE service_id = %s AND name = %s AND is_active = 1`, s.ph(1), s.ph(2)), serviceID, name)
	t := &model.SLOTarget{IsActive: true}
	if err := row.Scan(&t.ID, &t.ServiceID, &t.Name, &t.TargetValue, &t.WindowDays, &t.BurnRateThreshold, &t.CriticalBurnRate); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrSLOTargetNotFound
		}
		return nil, NewQueryError("GetSLOTarget", err)
	}
	return t, nil
}

func (s *SQLStore) InsertMetric(ctx context.Context, m *model.Metric) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO metrics (service_id, timestamp, total_requests, error_count, latency_p50, latency_p95, latency_p99)
			VALUES (%s, %s, %s, %s, %s, %s, %s)`, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7)),
		m.ServiceID, m.Timestamp, m.TotalRequests, m.ErrorCount, m.LatencyP50, m.LatencyP95, m.LatencyP99)
	if err != nil {
		return NewQueryError("InsertMetric", err)
	}
	m.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLStore) SumMetrics(ctx context.Context, serviceID int64, since time.Time) (int64, int64, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COALESCE(SUM(total_requests),0), COALESCE(SUM(error_count),0)
			FROM metrics WHERE service_id = %s AND timestamp >= %s`, s.ph(1), s.ph(2)), serviceID, since)
	var total, errs int64
	if err := row.Scan(&total, &errs); err != nil {
		return 0, 0, NewQueryError("SumMetrics", err)
	}
	return total, errs, nil
}

func (s *SQLStore) CleanupMetrics(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM metrics WHERE timestamp < %s", s.ph(1)), olderThan)
	if err != nil {
		return 0, NewQueryError("CleanupMetrics", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *SQLStore) InsertBurnHistory(ctx context.Context, h *model.BurnHistory) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO burn_history (service_id, timestamp, window_minutes, burn_rate, error_budget_consumed, error_budget_remaining, time_to_exhaustion_hours, risk_level)
			VALUES (%s, %s, %s, %s, %s, %s, %s, %s)`, s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8)),
		h.ServiceID, h.Timestamp, h.WindowMinutes, h.BurnRate, h.ErrorBudgetConsumed, h.ErrorBudgetRemaining, h.TimeToExhaustionHours, int(h.RiskLevel))
	if err != nil {
		return NewQueryError("InsertBurnHistory", err)
	}
	h.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLStore) ListBurnHistory(ctx context.Context, serviceID int64, windowMinutes int, since time.Time) ([]*model.BurnHistory, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, service_id, timestamp, window_minutes, burn_rate, error_budget_consumed, error_budget_remaining, time_to_exhaustion_hours, risk_level
			FROM burn_history WHERE service_id = %s AND window_minutes = %s AND timestamp >= %s ORDER BY timestamp`,
			s.ph(1), s.ph(2), s.ph(3)), serviceID, windowMinutes, since)
	if err != nil {
		return nil, NewQueryError("ListBurnHistory", err)
	}
	defer rows.Close()
	var out []*model.BurnHistory
	for rows.Next() {
		h := &model.BurnHistory{}
		var risk int
		if err := rows.Scan(&h.ID, &h.ServiceID, &h.Timestamp, &h.WindowMinutes, &h.BurnRate, &h.ErrorBudgetConsumed, &h.ErrorBudgetRemaining, &h.TimeToExhaustionHours, &risk); err != nil {
			return nil, NewQueryError("ListBurnHistory", err)
		}
		h.RiskLevel = model.RiskLevel(risk)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *SQLStore) InsertDeployment(ctx context.Context, d *model.Deployment) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO deployments (service_id, deployment_id, version, requested_by, requested_at, allowed, blocked_reason, risk_level_at_request, burn_rate_at_request, status)
			VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s)`,
			s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9), s.ph(10)),
		d.ServiceID, d.DeploymentID, d.Version, d.RequestedBy, d.RequestedAt, boolToInt(d.Allowed), d.BlockedReason, int(d.RiskLevelAtRequest), d.BurnRateAtRequest, d.Status)
	if err != nil {
		return NewQueryError("InsertDeployment", err)
	}
	d.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLStore) ListDeployments(ctx context.Context, serviceID int64, limit int) ([]*model.Deployment, error) {
	query := `SELECT id, service_id, deployment_id, version, requested_by, requested_at, allowed, blocked_reason, risk_level_at_request, burn_rate_at_request, status FROM deployments`
	args := []interface{}{}
	if serviceID != 0 {
		query += fmt.Sprintf(" WHERE service_id = %s", s.ph(1))
		args = append(args, serviceID)
	}
	query += " ORDER BY requested_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, NewQueryError("ListDeployments", err)
	}
	defer rows.Close()
	var out []*model.Deployment
	for rows.Next() {
		d := &model.Deployment{}
		var allowed, risk int
		var version, reqBy, reason sql.NullString
		if err := rows.Scan(&d.ID, &d.ServiceID, &d.DeploymentID, &version, &reqBy, &d.RequestedAt, &allowed, &reason, &risk, &d.BurnRateAtRequest, &d.Status); err != nil {
			return nil, NewQueryError("ListDeployments", err)
		}
		d.Version, d.RequestedBy, d.BlockedReason = version.String, reqBy.String, reason.String
		d.Allowed = allowed != 0
		d.RiskLevelAtRequest = model.RiskLevel(risk)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeploymentStats(ctx context.Context, since time.Time) (*DeploymentStats, error) {
	stats := &DeploymentStats{RiskDistribution: make(map[string]int64)}
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*), COALESCE(SUM(CASE WHEN allowed = 0 THEN 1 ELSE 0 END),0) FROM deployments WHERE requested_at >= %s`, s.ph(1)), since)
	if err := row.Scan(&stats.Total, &stats.Blocked); err != nil {
		return nil, NewQueryError("DeploymentStats", err)
	}
	stats.Allowed = stats.Total - stats.Blocked
	if stats.Total > 0 {
		stats.BlockRate = round2(float64(stats.Blocked) / float64(stats.Total) * 100)
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT risk_level_at_request, COUNT(*) FROM deployments WHERE requested_at >= %s GROUP BY risk_level_at_request`, s.ph(1)), since)
	if err != nil {
		return nil, NewQueryError("DeploymentStats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var risk int
		var n int64
		if err := rows.Scan(&risk, &n); err != nil {
			return nil, NewQueryError("DeploymentStats", err)
		}
		stats.RiskDistribution[model.RiskLevel(risk).String()] = n
	}
	return stats, rows.Err()
}

func (s *SQLStore) InsertAlert(ctx context.Context, a *model.Alert) error {
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO alerts (service_id, alert_type, severity, channel, title, message, timestamp, dispatched, dispatched_at, acknowledged)
			VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, 0)`,
			s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5), s.ph(6), s.ph(7), s.ph(8), s.ph(9)),
		a.ServiceID, a.AlertType, string(a.Severity), string(a.Channel), a.Title, a.Message, a.Timestamp, boolToInt(a.Dispatched), a.DispatchedAt)
	if err != nil {
		return NewQueryError("InsertAlert", err)
	}
	a.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLStore) LastAlert(ctx context.Context, serviceID int64, alertType string) (*model.Alert, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT id, service_id, alert_type, severity, channel, title, message, timestamp, dispatched, acknowledged
			FROM alerts WHERE service_id = %s AND alert_type = %s ORDER BY timestamp DESC LIMIT 1`, s.ph(1), s.ph(2)), serviceID, alertType)
	a := &model.Alert{}
	var severity, channel string
	var dispatched, ack int
	if err := row.Scan(&a.ID, &a.ServiceID, &a.AlertType, &severity, &channel, &a.Title, &a.Message, &a.Timestamp, &dispatched, &ack); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, NewQueryError("LastAlert", err)
	}
	a.Severity, a.Channel = model.AlertSeverity(severity), model.AlertChannel(channel)
	a.Dispatched, a.Acknowledged = dispatched != 0, ack != 0
	return a, nil
}

func (s *SQLStore) ListAlerts(ctx context.Context, f AlertFilter) ([]*model.Alert, error) {
	query := `SELECT id, service_id, alert_type, severity, channel, title, message, timestamp, dispatched, acknowledged, acknowledged_by
		FROM alerts WHERE timestamp >= ` + s.ph(1)
	args := []interface{}{f.Since}
	n := 2
	if f.ServiceID != 0 {
		query += fmt.Sprintf(" AND service_id = %s", s.ph(n))
		args = append(args, f.ServiceID)
		n++
	}
	if f.Severity != "" {
		query += fmt.Sprintf(" AND severity = %s", s.ph(n))
		args = append(args, string(f.Severity))
		n++
	}
	if f.Acknowledged != nil {
		query += fmt.Sprintf(" AND acknowledged = %s", s.ph(n))
		args = append(args, boolToInt(*f.Acknowledged))
		n++
	}
	query += " ORDER BY timestamp DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, NewQueryError("ListAlerts", err)
	}
	defer rows.Close()
	var out []*model.Alert
	for rows.Next() {
		a := &model.Alert{}
		var severity, channel string
		var dispatched, ack int
		var ackBy sql.NullString
		if err := rows.Scan(&a.ID, &a.ServiceID, &a.AlertType, &severity, &channel, &a.Title, &a.Message, &a.Timestamp, &dispatched, &ack, &ackBy); err != nil {
			return nil, NewQueryError("ListAlerts", err)
		}
		a.Severity, a.Channel = model.AlertSeverity(severity), model.AlertChannel(channel)
		a.Dispatched, a.Acknowledged, a.AcknowledgedBy = dispatched != 0, ack != 0, ackBy.String
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) AcknowledgeAlerts(ctx context.Context, ids []int64, by string) (int64, error) {
	var updated int64
	for _, id := range ids {
		res, err := s.db.ExecContext(ctx,
			fmt.Sprintf(`UPDATE alerts SET acknowledged = 1, acknowledged_by = %s, acknowledged_at = %s WHERE id = %s`, s.ph(1), s.ph(2), s.ph(3)),
			by, time.Now(), id)
		if err != nil {
			return updated, NewQueryError("AcknowledgeAlerts", err)
		}
		n, _ := res.RowsAffected()
		updated += n
	}
	return updated, nil
}

func (s *SQLStore) AlertStats(ctx context.Context, since time.Time) (*AlertStats, error) {
	stats := &AlertStats{BySeverity: make(map[string]int64)}
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*), COALESCE(SUM(CASE WHEN acknowledged = 0 THEN 1 ELSE 0 END),0) FROM alerts WHERE timestamp >= %s`, s.ph(1)), since)
	if err := row.Scan(&stats.Total, &stats.Unacknowledged); err != nil {
		return nil, NewQueryError("AlertStats", err)
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT severity, COUNT(*) FROM alerts WHERE timestamp >= %s GROUP BY severity`, s.ph(1)), since)
	if err != nil {
		return nil, NewQueryError("AlertStats", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sev string
		var n int64
		if err := rows.Scan(&sev, &n); err != nil {
			return nil, NewQueryError("AlertStats", err)
		}
		stats.BySeverity[sev] = n
	}
	return stats, rows.Err()
}

func (s *SQLStore) Capabilities() Capabilities {
	return Capabilities{Persistence: true, Concurrent: true}
}

func (s *SQLStore) Health(ctx context.Context) HealthStatus {
	if err := s.db.PingContext(ctx); err != nil {
		return HealthStatus{Status: HealthStatusUnhealthy, Message: err.Error(), CheckedAt: time.Now()}
	}
	return HealthStatus{Status: HealthStatusHealthy, CheckedAt: time.Now()}
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
