package archive

import (
	"context"
	"testing"
	"time"

	"github.com/flyingrobots/reliability-control-plane/internal/model"
	"github.com/flyingrobots/reliability-control-plane/internal/store"
	"github.com/stretchr/testify/require"
)

type fakeExporter struct {
	name    string
	batches []Batch
}

func (f *fakeExporter) Name() string { return f.name }

func (f *fakeExporter) Export(ctx context.Context, batch Batch) (*Status, error) {
	f.batches = append(f.batches, batch)
	now := time.Now()
	return &Status{ID: batch.ID, Backend: f.name, StartedAt: now, CompletedAt: &now, RecordsTotal: len(batch.Rows), RecordsExported: len(batch.Rows)}, nil
}

func TestArchiveServiceShipsAgedRowsToAllExporters(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	svc, err := st.UpsertService(ctx, "archived-service")
	require.NoError(t, err)

	old := &model.BurnHistory{ServiceID: svc.ID, Timestamp: time.Now().AddDate(0, 0, -40), WindowMinutes: 5, BurnRate: 1.2, RiskLevel: model.RiskObserve}
	recent := &model.BurnHistory{ServiceID: svc.ID, Timestamp: time.Now(), WindowMinutes: 5, BurnRate: 0.5, RiskLevel: model.RiskSafe}
	require.NoError(t, st.InsertBurnHistory(ctx, old))
	require.NoError(t, st.InsertBurnHistory(ctx, recent))

	exp1 := &fakeExporter{name: "fake-ch"}
	exp2 := &fakeExporter{name: "fake-s3"}
	mgr := NewManager(st, []Exporter{exp1, exp2}, nil)

	statuses, err := mgr.ArchiveService(ctx, svc.ID, 5, time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	require.Len(t, exp1.batches, 1)
	require.Len(t, exp1.batches[0].Rows, 1)
	require.Equal(t, old.Timestamp.Unix(), exp1.batches[0].Rows[0].Timestamp.Unix())
}

func TestArchiveServiceNoopWhenNothingAged(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()
	svc, err := st.UpsertService(ctx, "fresh-service")
	require.NoError(t, err)
	require.NoError(t, st.InsertBurnHistory(ctx, &model.BurnHistory{ServiceID: svc.ID, Timestamp: time.Now(), WindowMinutes: 5, BurnRate: 0.3, RiskLevel: model.RiskSafe}))

	exp := &fakeExporter{name: "fake"}
	mgr := NewManager(st, []Exporter{exp}, nil)

	statuses, err := mgr.ArchiveService(ctx, svc.ID, 5, time.Now().AddDate(0, 0, -30))
	require.NoError(t, err)
	require.Nil(t, statuses)
	require.Empty(t, exp.batches)
}
