// Copyright 2025 James Ross
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flyingrobots/reliability-control-plane/internal/alert"
	"github.com/flyingrobots/reliability-control-plane/internal/burnrate"
	"github.com/flyingrobots/reliability-control-plane/internal/config"
	"github.com/flyingrobots/reliability-control-plane/internal/coordinator"
	"github.com/flyingrobots/reliability-control-plane/internal/forecast"
	"github.com/flyingrobots/reliability-control-plane/internal/narrative"
	"github.com/flyingrobots/reliability-control-plane/internal/obs"
	"github.com/flyingrobots/reliability-control-plane/internal/simulator"
	"github.com/flyingrobots/reliability-control-plane/internal/slo"
	"github.com/flyingrobots/reliability-control-plane/internal/store"
)

var version = "dev"

func main() {
	var configPath string
	var role string
	var showVersion bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.StringVar(&role, "role", "all", "Role to run: coordinator|simulator|narrate|all")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	_ = fs.Parse(os.Args[1:])

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := obs.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	tp, err := obs.MaybeInitTracing(cfg)
	if err != nil {
		logger.Warn("tracing init failed", obs.Err(err))
	}
	if tp != nil {
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	st, err := openStore(cfg)
	if err != nil {
		logger.Fatal("failed to open store", obs.Err(err))
	}
	defer st.Close()

	readyCheck := func(c context.Context) error {
		health := st.Health(c)
		if health.Status != "healthy" {
			return fmt.Errorf("store unhealthy: %s", health.Message)
		}
		return nil
	}
	httpSrv := obs.StartHTTPServer(cfg, readyCheck)
	defer func() { _ = httpSrv.Shutdown(context.Background()) }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("signal received, shutting down", obs.String("signal", sig.String()))
		cancel()
		select {
		case sig2 := <-sigCh:
			logger.Warn("second signal received, exiting immediately", obs.String("signal", sig2.String()))
			os.Exit(1)
		case <-time.After(5 * time.Second):
		}
	}()

	sloEngine := slo.New(st)
	burnEngine := burnrate.New(st, cfg, logger)
	forecastEngine := forecast.New(st, sloEngine)
	alertMgr := alert.New(st, burnEngine, sloEngine, forecastEngine, cfg, alert.NoopPublisher{}, logger)

	switch role {
	case "coordinator":
		co := coordinator.New(st, burnEngine, sloEngine, forecastEngine, alertMgr, cfg, logger)
		if err := co.Run(ctx); err != nil {
			logger.Fatal("coordinator error", obs.Err(err))
		}
	case "simulator":
		sim := simulator.New(st, cfg, logger)
		if err := sim.Run(ctx); err != nil {
			logger.Fatal("simulator error", obs.Err(err))
		}
	case "narrate":
		narrator := narrative.New(st, burnEngine, sloEngine, forecastEngine)
		summary, err := narrator.GenerateSummary(ctx)
		if err != nil {
			logger.Fatal("narrative summary failed", obs.Err(err))
		}
		fmt.Println(summary.ExecutiveSummary)
		for _, item := range summary.ActionItems {
			fmt.Printf("- %s\n", item)
		}
	case "all":
		co := coordinator.New(st, burnEngine, sloEngine, forecastEngine, alertMgr, cfg, logger)
		sim := simulator.New(st, cfg, logger)
		go func() {
			if err := sim.Run(ctx); err != nil {
				logger.Error("simulator error", obs.Err(err))
				cancel()
			}
		}()
		if err := co.Run(ctx); err != nil {
			logger.Fatal("coordinator error", obs.Err(err))
		}
	default:
		logger.Fatal("unknown role", obs.String("role", role))
	}
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sql":
		return store.OpenSQLStore(cfg.Store.DSN)
	default:
		return store.NewMemoryStore(), nil
	}
}
