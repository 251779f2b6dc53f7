// Package coordinator runs the platform's recurring compute cycle: for
// every active service, refresh burn rate, recompute SLO status, and
// evaluate alerts, on a fixed interval. A separate cron schedule prunes
// old metrics. The goroutine/ticker/WaitGroup shutdown shape follows
// internal/worker's Run/runOne lifecycle.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/flyingrobots/reliability-control-plane/internal/alert"
	"github.com/flyingrobots/reliability-control-plane/internal/burnrate"
	"github.com/flyingrobots/reliability-control-plane/internal/config"
	"github.com/flyingrobots/reliability-control-plane/internal/forecast"
	"github.com/flyingrobots/reliability-control-plane/internal/model"
	"github.com/flyingrobots/reliability-control-plane/internal/obs"
	"github.com/flyingrobots/reliability-control-plane/internal/slo"
	"github.com/flyingrobots/reliability-control-plane/internal/store"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Coordinator owns the periodic compute cycle and the metrics cleanup cron.
type Coordinator struct {
	store    store.Store
	burn     *burnrate.Engine
	slo      *slo.Engine
	forecast *forecast.Engine
	alerts   *alert.Manager
	cfg      *config.Config
	log      *zap.Logger

	cronSched *cron.Cron
}

// New builds a Coordinator wired to every engine it drives each cycle.
func New(st store.Store, burnEngine *burnrate.Engine, sloEngine *slo.Engine, forecastEngine *forecast.Engine, alertMgr *alert.Manager, cfg *config.Config, log *zap.Logger) *Coordinator {
	return &Coordinator{
		store:    st,
		burn:     burnEngine,
		slo:      sloEngine,
		forecast: forecastEngine,
		alerts:   alertMgr,
		cfg:      cfg,
		log:      log,
	}
}

// Run blocks until ctx is canceled, driving the computation-interval ticker
// and the cleanup cron schedule concurrently.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.cfg.Scheduler.Enabled {
		c.log.Info("scheduler disabled, coordinator idle")
		<-ctx.Done()
		return nil
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.runComputeLoop(ctx)
	}()

	c.cronSched = cron.New()
	if _, err := c.cronSched.AddFunc(c.cfg.Scheduler.CleanupCron, func() {
		c.runCleanup(ctx)
	}); err != nil {
		c.log.Error("invalid cleanup cron expression", obs.String("expr", c.cfg.Scheduler.CleanupCron), obs.Err(err))
	} else {
		c.cronSched.Start()
		defer c.cronSched.Stop()
	}

	wg.Wait()
	return nil
}

func (c *Coordinator) runComputeLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Scheduler.ComputationInterval)
	defer ticker.Stop()

	c.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runCycle(ctx)
		}
	}
}

// runCycle refreshes every active service's burn rate, SLO status, and
// alert state once. A failure on one service is logged and does not stop
// the others.
func (c *Coordinator) runCycle(ctx context.Context) {
	cycleCtx, span := obs.StartComputeCycleSpan(ctx, "all")
	defer span.End()

	start := time.Now()
	defer func() {
		obs.ComputationDuration.WithLabelValues("compute_cycle").Observe(time.Since(start).Seconds())
	}()

	services, err := c.store.ListActiveServices(cycleCtx)
	if err != nil {
		c.log.Error("list active services failed", obs.Err(err))
		obs.RecordError(cycleCtx, err)
		return
	}

	for _, svc := range services {
		c.computeService(cycleCtx, svc)
	}

	if report, err := c.slo.ComputeGlobalCompliance(cycleCtx); err != nil {
		c.log.Error("global compliance computation failed", obs.Err(err))
	} else {
		c.log.Debug("global compliance computed",
			obs.Int("total_services", report.TotalServices),
			obs.Int("services_at_risk", len(report.ServicesAtRisk)),
		)
	}
}

func (c *Coordinator) computeService(ctx context.Context, svc *model.Service) {
	targets, err := c.store.ListSLOTargets(ctx, svc.ID)
	if err != nil {
		c.log.Error("list slo targets failed", obs.String("service", svc.Name), obs.Err(err))
		return
	}
	if len(targets) == 0 {
		if err := c.slo.SeedDefaults(ctx, svc.ID); err != nil {
			c.log.Error("seed default slo targets failed", obs.String("service", svc.Name), obs.Err(err))
			return
		}
		targets, err = c.store.ListSLOTargets(ctx, svc.ID)
		if err != nil {
			c.log.Error("list slo targets failed after seeding", obs.String("service", svc.Name), obs.Err(err))
			return
		}
	}

	for _, target := range targets {
		if _, err := c.burn.RefreshService(ctx, svc, target); err != nil {
			c.log.Error("burn rate refresh failed", obs.String("service", svc.Name), obs.String("target", target.Name), obs.Err(err))
			continue
		}
		if c.alerts != nil {
			if _, err := c.alerts.EvaluateAndAlert(ctx, svc, target); err != nil {
				c.log.Error("alert evaluation failed", obs.String("service", svc.Name), obs.String("target", target.Name), obs.Err(err))
			}
		}
	}
}

func (c *Coordinator) runCleanup(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, -c.cfg.Metrics.RetentionDays)
	n, err := c.store.CleanupMetrics(ctx, cutoff)
	if err != nil {
		c.log.Error("metrics cleanup failed", obs.Err(err))
		return
	}
	c.log.Info("metrics cleanup complete", obs.Int("deleted", int(n)))
}
