// Package simulator generates synthetic traffic and error-budget-burning
// incidents for a fixed roster of services, for demos and for seeding a
// fresh store with plausible history. The generator shape (a struct holding
// its own *rand.Rand, producing points on demand or across a historical
// range) follows internal/automatic-capacity-planning's Simulator.
package simulator

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/flyingrobots/reliability-control-plane/internal/config"
	"github.com/flyingrobots/reliability-control-plane/internal/model"
	"github.com/flyingrobots/reliability-control-plane/internal/obs"
	"github.com/flyingrobots/reliability-control-plane/internal/store"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// serviceProfile is one entry of the simulator's fixed roster.
type serviceProfile struct {
	Name          string
	BaseRPS       int64
	BaseErrorRate float64
}

// Services is the fixed roster the simulator generates traffic for,
// matching the original implementation's SERVICES table.
var Services = []serviceProfile{
	{"api-gateway", 10000, 0.001},
	{"user-service", 5000, 0.002},
	{"payment-service", 2000, 0.0005},
	{"inventory-service", 3000, 0.001},
	{"notification-service", 8000, 0.003},
	{"search-service", 6000, 0.002},
	{"recommendation-engine", 4000, 0.001},
	{"auth-service", 7000, 0.0008},
}

// Simulator produces MetricSnapshot-equivalent model.Metric rows for every
// service in Services, tracking which services are mid-incident.
type Simulator struct {
	store store.Store
	cfg   *config.Config
	log   *zap.Logger

	mu              sync.Mutex
	rng             *rand.Rand
	incidentStart   map[string]time.Time
	limiter         *rate.Limiter
}

// New builds a Simulator. The rate limiter caps how often Run may persist
// a full roster snapshot, regardless of the configured tick period.
func New(st store.Store, cfg *config.Config, log *zap.Logger) *Simulator {
	return &Simulator{
		store:         st,
		cfg:           cfg,
		log:           log,
		rng:           rand.New(rand.NewSource(1)),
		incidentStart: make(map[string]time.Time),
		limiter:       rate.NewLimiter(rate.Every(cfg.Simulator.TickPeriod/2), 1),
	}
}

// Run blocks until ctx is canceled, persisting one snapshot per service on
// every tick of the configured period.
func (s *Simulator) Run(ctx context.Context) error {
	if !s.cfg.Simulator.Enabled {
		s.log.Info("simulator disabled, idle")
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(s.cfg.Simulator.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.limiter.Wait(ctx); err != nil {
				return nil
			}
			s.GenerateSnapshot(ctx, time.Now())
		}
	}
}

// GenerateSnapshot produces and persists one metric row per service for
// the given timestamp, creating services on first use.
func (s *Simulator) GenerateSnapshot(ctx context.Context, ts time.Time) []*model.Metric {
	metrics := make([]*model.Metric, 0, len(Services))
	for _, p := range Services {
		m := s.generateServiceMetric(p, ts)
		svc, err := s.store.UpsertService(ctx, p.Name)
		if err != nil {
			if s.log != nil {
				s.log.Error("simulator upsert service failed", obs.String("service", p.Name), obs.Err(err))
			}
			continue
		}
		m.ServiceID = svc.ID
		if err := s.store.InsertMetric(ctx, m); err != nil {
			if s.log != nil {
				s.log.Error("simulator insert metric failed", obs.String("service", p.Name), obs.Err(err))
			}
			continue
		}
		obs.MetricsIngested.WithLabelValues(p.Name).Inc()
		metrics = append(metrics, m)
	}
	return metrics
}

// Backfill generates `hours` of historical snapshots at the given interval
// and persists them, for seeding a fresh store before the live loop starts.
func (s *Simulator) Backfill(ctx context.Context, hours int, interval time.Duration) error {
	end := time.Now()
	start := end.Add(-time.Duration(hours) * time.Hour)
	for t := start; !t.After(end); t = t.Add(interval) {
		s.GenerateSnapshot(ctx, t)
	}
	return nil
}

// InjectIncident forces a service into an incident state immediately,
// bypassing the random per-tick trigger.
func (s *Simulator) InjectIncident(serviceName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incidentStart[serviceName] = time.Now()
}

// ResolveIncident ends a service's incident state immediately.
func (s *Simulator) ResolveIncident(serviceName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.incidentStart, serviceName)
}

func (s *Simulator) generateServiceMetric(p serviceProfile, ts time.Time) *model.Metric {
	s.mu.Lock()
	defer s.mu.Unlock()

	chaos := s.cfg.Simulator.ChaosLevel

	hour := float64(ts.Hour())
	dayFactor := 1.0 + 0.3*math.Sin(hour/24*2*math.Pi-math.Pi/2)
	variance := 1.0 + s.rng.NormFloat64()*0.1*chaos

	_, incident := s.incidentStart[p.Name]
	if !incident && s.rng.Float64() < 0.01*chaos {
		s.incidentStart[p.Name] = ts
		incident = true
	}
	if incident {
		if start, ok := s.incidentStart[p.Name]; ok {
			durationLimit := time.Duration(300+s.rng.Intn(1500)) * time.Second
			if ts.Sub(start) > durationLimit {
				delete(s.incidentStart, p.Name)
				incident = false
			}
		}
	}

	rps := int64(float64(p.BaseRPS) * dayFactor * variance)
	if rps < 0 {
		rps = 0
	}

	var errorRate float64
	if incident {
		errorRate = p.BaseErrorRate * (5 + s.rng.Float64()*45) // U(5, 50)
	} else {
		errorRate = p.BaseErrorRate * (1.0 + s.rng.NormFloat64()*0.2*chaos)
	}
	errorRate = clamp(errorRate, 0, 1)
	errorCount := int64(float64(rps) * errorRate)
	if errorCount > rps {
		errorCount = rps
	}

	baseLatency := 10 + s.rng.Float64()*40 // U(10, 50) ms
	latencyMultiplier := 1.0
	if incident {
		latencyMultiplier = 1.5 + s.rng.Float64()*1.5 // U(1.5, 3.0)
	}
	p50 := baseLatency * latencyMultiplier * (1.0 + s.rng.NormFloat64()*0.1)
	p95 := p50 * (2 + s.rng.Float64()*2)   // U(2, 4)
	p99 := p95 * (1.5 + s.rng.Float64())   // U(1.5, 2.5)

	if incident {
		obs.SimulatedIncidents.WithLabelValues(p.Name).Inc()
	}

	return &model.Metric{
		Timestamp:     ts,
		TotalRequests: rps,
		ErrorCount:    errorCount,
		LatencyP50:    round2(p50),
		LatencyP95:    round2(p95),
		LatencyP99:    round2(p99),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
