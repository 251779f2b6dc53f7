package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/flyingrobots/reliability-control-plane/internal/model"
)

// MemoryStore is an in-process Store backed by mutex-guarded maps and
// slices. It is the default backend for tests and for single-process
// deployments that don't need to survive a restart.
type MemoryStore struct {
	mu sync.RWMutex

	services    map[string]*model.Service
	nextService int64

	sloTargets    map[int64][]*model.SLOTarget
	nextSLOTarget int64

	metrics map[int64][]*model.Metric

	burnHistory map[int64][]*model.BurnHistory

	deployments    []*model.Deployment
	nextDeployment int64

	alerts    []*model.Alert
	nextAlert int64

	closed bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		services:    make(map[string]*model.Service),
		sloTargets:  make(map[int64][]*model.SLOTarget),
		metrics:     make(map[int64][]*model.Metric),
		burnHistory: make(map[int64][]*model.BurnHistory),
	}
}

func (s *MemoryStore) UpsertService(ctx context.Context, name string) (*model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if svc, ok := s.services[name]; ok {
		return svc, nil
	}
	s.nextService++
	svc := &model.Service{ID: s.nextService, Name: name, IsActive: true}
	s.services[name] = svc
	return svc, nil
}

func (s *MemoryStore) GetService(ctx context.Context, name string) (*model.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[name]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return svc, nil
}

func (s *MemoryStore) ListActiveServices(ctx context.Context) ([]*model.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Service, 0, len(s.services))
	for _, svc := range s.services {
		if svc.IsActive {
			out = append(out, svc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) CreateSLOTarget(ctx context.Context, t *model.SLOTarget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSLOTarget++
	t.ID = s.nextSLOTarget
	t.IsActive = true
	s.sloTargets[t.ServiceID] = append(s.sloTargets[t.ServiceID], t)
	return nil
}

func (s *MemoryStore) ListSLOTargets(ctx context.Context, serviceID int64) ([]*model.SLOTarget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.SLOTarget
	for _, t := range s.sloTargets[serviceID] {
		if t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetSLOTarget(ctx context.Context, serviceID int64, name string) (*model.SLOTarget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.sloTargets[serviceID] {
		if t.IsActive && t.Name == name {
			return t, nil
		}
	}
	return nil, ErrSLOTargetNotFound
}

func (s *MemoryStore) InsertMetric(ctx context.Context, m *model.Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics[m.ServiceID] = append(s.metrics[m.ServiceID], m)
	return nil
}

func (s *MemoryStore) SumMetrics(ctx context.Context, serviceID int64, since time.Time) (int64, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var totalRequests, errorCount int64
	for _, m := range s.metrics[serviceID] {
		if !m.Timestamp.Before(since) {
			totalRequests += m.TotalRequests
			errorCount += m.ErrorCount
		}
	}
	return totalRequests, errorCount, nil
}

func (s *MemoryStore) CleanupMetrics(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for sid, ms := range s.metrics {
		kept := ms[:0]
		for _, m := range ms {
			if m.Timestamp.Before(olderThan) {
				deleted++
				continue
			}
			kept = append(kept, m)
		}
		s.metrics[sid] = kept
	}
	return deleted, nil
}

func (s *MemoryStore) InsertBurnHistory(ctx context.Context, h *model.BurnHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.burnHistory[h.ServiceID] = append(s.burnHistory[h.ServiceID], h)
	return nil
}

func (s *MemoryStore) ListBurnHistory(ctx context.Context, serviceID int64, windowMinutes int, since time.Time) ([]*model.BurnHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.BurnHistory
	for _, h := range s.burnHistory[serviceID] {
		if h.WindowMinutes == windowMinutes && !h.Timestamp.Before(since) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *MemoryStore) InsertDeployment(ctx context.Context, d *model.Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextDeployment++
	d.ID = s.nextDeployment
	s.deployments = append(s.deployments, d)
	return nil
}

func (s *MemoryStore) ListDeployments(ctx context.Context, serviceID int64, limit int) ([]*model.Deployment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Deployment
	for i := len(s.deployments) - 1; i >= 0; i-- {
		d := s.deployments[i]
		if serviceID != 0 && d.ServiceID != serviceID {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) DeploymentStats(ctx context.Context, since time.Time) (*DeploymentStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &DeploymentStats{RiskDistribution: make(map[string]int64)}
	for _, d := range s.deployments {
		if d.RequestedAt.Before(since) {
			continue
		}
		stats.Total++
		if !d.Allowed {
			stats.Blocked++
		}
		stats.RiskDistribution[d.RiskLevelAtRequest.String()]++
	}
	stats.Allowed = stats.Total - stats.Blocked
	if stats.Total > 0 {
		stats.BlockRate = round2(float64(stats.Blocked) / float64(stats.Total) * 100)
	}
	return stats, nil
}

func (s *MemoryStore) InsertAlert(ctx context.Context, a *model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAlert++
	a.ID = s.nextAlert
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *MemoryStore) LastAlert(ctx context.Context, serviceID int64, alertType string) (*model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.alerts) - 1; i >= 0; i-- {
		a := s.alerts[i]
		if a.ServiceID == serviceID && a.AlertType == alertType {
			return a, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListAlerts(ctx context.Context, f AlertFilter) ([]*model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Alert
	for i := len(s.alerts) - 1; i >= 0; i-- {
		a := s.alerts[i]
		if a.Timestamp.Before(f.Since) {
			continue
		}
		if f.ServiceID != 0 && a.ServiceID != f.ServiceID {
			continue
		}
		if f.Severity != "" && a.Severity != f.Severity {
			continue
		}
		if f.Acknowledged != nil && a.Acknowledged != *f.Acknowledged {
			continue
		}
		out = append(out, a)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) AcknowledgeAlerts(ctx context.Context, ids []int64, by string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	now := time.Now()
	var updated int64
	for _, a := range s.alerts {
		if want[a.ID] {
			a.Acknowledged = true
			a.AcknowledgedBy = by
			a.AcknowledgedAt = &now
			updated++
		}
	}
	return updated, nil
}

func (s *MemoryStore) AlertStats(ctx context.Context, since time.Time) (*AlertStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &AlertStats{BySeverity: make(map[string]int64)}
	for _, a := range s.alerts {
		if a.Timestamp.Before(since) {
			continue
		}
		stats.Total++
		stats.BySeverity[string(a.Severity)]++
		if !a.Acknowledged {
			stats.Unacknowledged++
		}
	}
	return stats, nil
}

func (s *MemoryStore) Capabilities() Capabilities {
	return Capabilities{Persistence: false, Concurrent: true}
}

func (s *MemoryStore) Health(ctx context.Context) HealthStatus {
	return HealthStatus{Status: HealthStatusHealthy, CheckedAt: time.Now()}
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

const (
	HealthStatusHealthy   = "healthy"
	HealthStatusDegraded  = "degraded"
	HealthStatusUnhealthy = "unhealthy"
)
