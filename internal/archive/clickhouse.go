package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"
)

// ClickHouseExporter writes aged-out Burn-History rows into a MergeTree
// table for long-horizon trend queries the primary store doesn't need to
// serve. Grounded on long-term-archives/clickhouse_exporter.go's
// connect/ensureTable/Export shape.
type ClickHouseExporter struct {
	db       *sql.DB
	log      *zap.Logger
	database string
	table    string
}

// NewClickHouseExporter opens a ClickHouse connection and ensures the
// archive table exists.
func NewClickHouseExporter(ctx context.Context, dsn, database, table string, log *zap.Logger) (*ClickHouseExporter, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{dsn},
		Auth: clickhouse.Auth{Database: database},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: 10 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	e := &ClickHouseExporter{db: conn, log: log, database: database, table: table}
	if err := e.ensureTable(ctx, database, table); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *ClickHouseExporter) ensureTable(ctx context.Context, database, table string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.%s (
			service_id UInt64,
			timestamp DateTime64(3),
			window_minutes UInt16,
			burn_rate Float64,
			budget_consumed Float64,
			budget_remaining Float64,
			time_to_exhaustion_hours Nullable(Float64),
			risk_level LowCardinality(String),
			archived_at DateTime64(3)
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(timestamp)
		ORDER BY (service_id, window_minutes, timestamp)
		TTL timestamp + INTERVAL 1 YEAR DELETE
	`, database, table)

	_, err := e.db.ExecContext(ctx, ddl)
	if err != nil {
		return fmt.Errorf("create archive table: %w", err)
	}
	return nil
}

func (e *ClickHouseExporter) Name() string { return "clickhouse" }

// Export inserts one row per Burn-History entry in the batch.
func (e *ClickHouseExporter) Export(ctx context.Context, batch Batch) (*Status, error) {
	if len(batch.Rows) == 0 {
		return nil, fmt.Errorf("archive batch %s is empty", batch.ID)
	}

	status := &Status{ID: batch.ID, Backend: e.Name(), StartedAt: time.Now(), RecordsTotal: len(batch.Rows)}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin clickhouse tx: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s.%s (service_id, timestamp, window_minutes, burn_rate, budget_consumed, budget_remaining, time_to_exhaustion_hours, risk_level, archived_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.database, e.table,
	))
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for _, row := range batch.Rows {
		if _, err := stmt.ExecContext(ctx, row.ServiceID, row.Timestamp, row.WindowMinutes, row.BurnRate,
			row.ErrorBudgetConsumed, row.ErrorBudgetRemaining, row.TimeToExhaustionHours, row.RiskLevel.String(), now); err != nil {
			status.RecordsFailed++
			e.log.Warn("clickhouse row export failed", zap.Error(err))
			continue
		}
		status.RecordsExported++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit clickhouse tx: %w", err)
	}

	completed := time.Now()
	status.CompletedAt = &completed
	return status, nil
}

func (e *ClickHouseExporter) Close() error {
	return e.db.Close()
}
