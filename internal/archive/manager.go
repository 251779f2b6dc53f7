package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/flyingrobots/reliability-control-plane/internal/store"
	"go.uber.org/zap"
)

// Manager builds Batches from Burn-History rows older than a service's
// retention window and ships them to every configured Exporter. Grounded
// on long-term-archives/retention_manager.go's map-of-exporters shape,
// adapted from Redis-stream cleanup to Burn-History archival.
type Manager struct {
	store     store.Store
	exporters map[string]Exporter
	log       *zap.Logger
}

// NewManager builds an archive Manager. Exporters are keyed by Name().
func NewManager(st store.Store, exporters []Exporter, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{store: st, exporters: make(map[string]Exporter, len(exporters)), log: log}
	for _, e := range exporters {
		m.exporters[e.Name()] = e
	}
	return m
}

// ArchiveService builds one Batch of a service's Burn-History rows older
// than `olderThan` and exports it through every configured backend. A
// failure on one backend does not stop the others.
func (m *Manager) ArchiveService(ctx context.Context, serviceID int64, windowMinutes int, olderThan time.Time) ([]*Status, error) {
	rows, err := m.store.ListBurnHistory(ctx, serviceID, windowMinutes, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("list burn history: %w", err)
	}

	filtered := rows[:0]
	for _, r := range rows {
		if r.Timestamp.Before(olderThan) {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) == 0 {
		return nil, nil
	}

	batch := Batch{
		ID:        uuid.NewString(),
		ServiceID: serviceID,
		Rows:      filtered,
		CreatedAt: time.Now(),
	}

	var statuses []*Status
	for name, exp := range m.exporters {
		st, err := exp.Export(ctx, batch)
		if err != nil {
			m.log.Error("archive export failed", zap.String("backend", name), zap.Int64("service_id", serviceID), zap.Error(err))
			continue
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}
