// Package archive exports aged-out Burn-History rows to long-term storage:
// ClickHouse for queryable retention beyond the metrics retention window,
// and S3 for zstd-compressed cold storage. Shape grounded on
// internal/long-term-archives: an Exporter interface, a Batch value type,
// and per-backend structs each owning their own client and ExportStatus.
package archive

import (
	"context"
	"time"

	"github.com/flyingrobots/reliability-control-plane/internal/model"
)

// Batch is one unit of archival work: a service's Burn-History rows aged
// past the retention window.
type Batch struct {
	ID        string
	ServiceID int64
	Rows      []*model.BurnHistory
	CreatedAt time.Time
}

// Status tracks one export run's progress, mirroring the teacher's
// ExportStatus.
type Status struct {
	ID              string
	Backend         string
	StartedAt       time.Time
	CompletedAt     *time.Time
	RecordsTotal    int
	RecordsExported int
	RecordsFailed   int
	ErrorMessage    string
}

// Exporter ships a Batch to a long-term store.
type Exporter interface {
	Export(ctx context.Context, batch Batch) (*Status, error)
	Name() string
}
