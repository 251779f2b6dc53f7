// Package config loads reliability-platform configuration the way
// internal/config loads the queue system's: a typed struct, viper-backed
// YAML + environment overrides, and explicit validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SLO holds the rolling-window and SLO-computation defaults.
type SLO struct {
	DefaultWindowDays     int   `mapstructure:"default_window_days"`
	RollingWindowsMinutes []int `mapstructure:"rolling_windows_minutes"`
}

// BurnRateThresholds are the risk-classification cutoffs the Burn-Rate
// Engine applies to per-window burn rates.
type BurnRateThresholds struct {
	Safe    float64 `mapstructure:"safe"`
	Observe float64 `mapstructure:"observe"`
	Danger  float64 `mapstructure:"danger"`
	Freeze  float64 `mapstructure:"freeze"`
}

// ErrorBudgetThresholds are the percent-consumed cutoffs for risk classification.
type ErrorBudgetThresholds struct {
	Observe float64 `mapstructure:"observe"`
	Danger  float64 `mapstructure:"danger"`
	Freeze  float64 `mapstructure:"freeze"`
}

// ReleaseGate holds the independent thresholds the gate checks after risk level.
type ReleaseGate struct {
	BurnRateThreshold float64 `mapstructure:"burn_rate_threshold"`
	BudgetThreshold   float64 `mapstructure:"budget_threshold"`
}

// Alerts holds alert-manager tuning.
type Alerts struct {
	CooldownMinutes int `mapstructure:"cooldown_minutes"`
}

// Metrics holds ingestion/retention tuning.
type Metrics struct {
	RetentionDays int `mapstructure:"retention_days"`
}

// Scheduler controls the Periodic Coordinator.
type Scheduler struct {
	Enabled             bool          `mapstructure:"enabled"`
	ComputationInterval time.Duration `mapstructure:"computation_interval"`
	CleanupCron         string        `mapstructure:"cleanup_cron"`
}

// Simulator controls the Metrics Simulator.
type Simulator struct {
	Enabled    bool          `mapstructure:"enabled"`
	ChaosLevel float64       `mapstructure:"chaos_level"`
	TickPeriod time.Duration `mapstructure:"tick_period"`
}

// Store selects and configures the persistence backend.
type Store struct {
	Driver string `mapstructure:"driver"` // "memory" or "sql"
	DSN    string `mapstructure:"dsn"`    // e.g. "sqlite://./reliability.db"
}

// Observability mirrors internal/obs' config surface.
type Observability struct {
	MetricsPort     int    `mapstructure:"metrics_port"`
	LogLevel        string `mapstructure:"log_level"`
	TracingEnabled  bool   `mapstructure:"tracing_enabled"`
	TracingEndpoint string `mapstructure:"tracing_endpoint"`
}

// Config is the root reliability-platform configuration.
type Config struct {
	SLO           SLO                   `mapstructure:"slo"`
	BurnRate      BurnRateThresholds    `mapstructure:"burn_rate_thresholds"`
	ErrorBudget   ErrorBudgetThresholds `mapstructure:"error_budget_thresholds"`
	ReleaseGate   ReleaseGate           `mapstructure:"release_gate"`
	Alerts        Alerts                `mapstructure:"alerts"`
	Metrics       Metrics               `mapstructure:"metrics"`
	Scheduler     Scheduler             `mapstructure:"scheduler"`
	Simulator     Simulator             `mapstructure:"simulator"`
	Store         Store                 `mapstructure:"store"`
	Observability Observability         `mapstructure:"observability"`
}

func defaultConfig() *Config {
	return &Config{
		SLO: SLO{
			DefaultWindowDays:     30,
			RollingWindowsMinutes: []int{5, 60, 1440},
		},
		BurnRate:    BurnRateThresholds{Safe: 1.0, Observe: 1.5, Danger: 2.0, Freeze: 3.0},
		ErrorBudget: ErrorBudgetThresholds{Observe: 70.0, Danger: 85.0, Freeze: 95.0},
		ReleaseGate: ReleaseGate{BurnRateThreshold: 2.0, BudgetThreshold: 90.0},
		Alerts:      Alerts{CooldownMinutes: 15},
		Metrics:     Metrics{RetentionDays: 30},
		Scheduler: Scheduler{
			Enabled:             true,
			ComputationInterval: 60 * time.Second,
			CleanupCron:         "0 0 * * *",
		},
		Simulator: Simulator{Enabled: true, ChaosLevel: 0.1, TickPeriod: 10 * time.Second},
		Store:     Store{Driver: "memory"},
		Observability: Observability{
			MetricsPort: 9090,
			LogLevel:    "info",
		},
	}
}

// Load reads configuration from a YAML file plus environment overrides,
// falling back to DefaultConfig() values for anything unset.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := defaultConfig()
	v.SetDefault("slo.default_window_days", def.SLO.DefaultWindowDays)
	v.SetDefault("slo.rolling_windows_minutes", def.SLO.RollingWindowsMinutes)

	v.SetDefault("burn_rate_thresholds.safe", def.BurnRate.Safe)
	v.SetDefault("burn_rate_thresholds.observe", def.BurnRate.Observe)
	v.SetDefault("burn_rate_thresholds.danger", def.BurnRate.Danger)
	v.SetDefault("burn_rate_thresholds.freeze", def.BurnRate.Freeze)

	v.SetDefault("error_budget_thresholds.observe", def.ErrorBudget.Observe)
	v.SetDefault("error_budget_thresholds.danger", def.ErrorBudget.Danger)
	v.SetDefault("error_budget_thresholds.freeze", def.ErrorBudget.Freeze)

	v.SetDefault("release_gate.burn_rate_threshold", def.ReleaseGate.BurnRateThreshold)
	v.SetDefault("release_gate.budget_threshold", def.ReleaseGate.BudgetThreshold)

	v.SetDefault("alerts.cooldown_minutes", def.Alerts.CooldownMinutes)
	v.SetDefault("metrics.retention_days", def.Metrics.RetentionDays)

	v.SetDefault("scheduler.enabled", def.Scheduler.Enabled)
	v.SetDefault("scheduler.computation_interval", def.Scheduler.ComputationInterval)
	v.SetDefault("scheduler.cleanup_cron", def.Scheduler.CleanupCron)

	v.SetDefault("simulator.enabled", def.Simulator.Enabled)
	v.SetDefault("simulator.chaos_level", def.Simulator.ChaosLevel)
	v.SetDefault("simulator.tick_period", def.Simulator.TickPeriod)

	v.SetDefault("store.driver", def.Store.Driver)
	v.SetDefault("store.dsn", def.Store.DSN)

	v.SetDefault("observability.metrics_port", def.Observability.MetricsPort)
	v.SetDefault("observability.log_level", def.Observability.LogLevel)
	v.SetDefault("observability.tracing_enabled", def.Observability.TracingEnabled)
	v.SetDefault("observability.tracing_endpoint", def.Observability.TracingEndpoint)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks config constraints and returns an error on invalid settings.
func Validate(cfg *Config) error {
	if len(cfg.SLO.RollingWindowsMinutes) == 0 {
		return fmt.Errorf("slo.rolling_windows_minutes must be non-empty")
	}
	if cfg.BurnRate.Safe <= 0 || cfg.BurnRate.Safe >= cfg.BurnRate.Observe ||
		cfg.BurnRate.Observe >= cfg.BurnRate.Danger || cfg.BurnRate.Danger >= cfg.BurnRate.Freeze {
		return fmt.Errorf("burn_rate_thresholds must be strictly increasing: safe < observe < danger < freeze")
	}
	if cfg.ErrorBudget.Observe >= cfg.ErrorBudget.Danger || cfg.ErrorBudget.Danger >= cfg.ErrorBudget.Freeze {
		return fmt.Errorf("error_budget_thresholds must be strictly increasing: observe < danger < freeze")
	}
	if cfg.Alerts.CooldownMinutes < 0 {
		return fmt.Errorf("alerts.cooldown_minutes must be >= 0")
	}
	if cfg.Metrics.RetentionDays < 1 {
		return fmt.Errorf("metrics.retention_days must be >= 1")
	}
	if cfg.Scheduler.ComputationInterval <= 0 {
		return fmt.Errorf("scheduler.computation_interval must be > 0")
	}
	if cfg.Simulator.ChaosLevel < 0 || cfg.Simulator.ChaosLevel > 1 {
		return fmt.Errorf("simulator.chaos_level must be in [0, 1]")
	}
	if cfg.Store.Driver != "memory" && cfg.Store.Driver != "sql" {
		return fmt.Errorf("store.driver must be 'memory' or 'sql'")
	}
	if cfg.Store.Driver == "sql" && cfg.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required when store.driver is 'sql'")
	}
	if cfg.Observability.MetricsPort <= 0 || cfg.Observability.MetricsPort > 65535 {
		return fmt.Errorf("observability.metrics_port must be 1..65535")
	}
	return nil
}

// DefaultConfig returns the platform's built-in defaults, matching the
// original implementation's core.config.Settings values.
func DefaultConfig() *Config {
	return defaultConfig()
}
