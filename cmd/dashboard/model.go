// Copyright 2025 James Ross
package main

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/flyingrobots/reliability-control-plane/internal/burnrate"
	"github.com/flyingrobots/reliability-control-plane/internal/slo"
	"github.com/flyingrobots/reliability-control-plane/internal/store"
)

// serviceRow is one row of the services table alongside the recent burn
// rate history used for its sparkline.
type serviceRow struct {
	name      string
	risk      string
	burnRate  float64
	compliant float64
	atRisk    bool
	history   []float64
}

// model is the live dashboard's bubbletea state. Shape (ctx/cancel,
// embedded clients, a focus-tracked table, a cached data snapshot, a
// spinner for the loading state) is grounded on internal/tui/model.go,
// trimmed to the dashboard's read-only purpose.
type model struct {
	ctx    context.Context
	cancel context.CancelFunc

	store store.Store
	burn  *burnrate.Engine
	slo   *slo.Engine
	log   *zap.Logger

	width  int
	height int

	tbl     table.Model
	spinner spinner.Model
	loading bool
	errText string

	rows         []serviceRow
	refreshEvery time.Duration

	spring harmonica.Spring
	anim   map[string]*rowAnim

	boxTitle lipgloss.Style
	boxBody  lipgloss.Style
}

type refreshMsg struct {
	rows []serviceRow
	err  error
}

type tickMsg struct{}

type animTickMsg struct{}

// rowAnim tracks one row's spring-eased burn rate so a new data refresh
// settles into view instead of jumping straight to the new number.
type rowAnim struct {
	pos, vel float64
}

const animFPS = 20.0

func newSpring() harmonica.Spring {
	return harmonica.NewSpring(harmonica.FPS(animFPS), 6.0, 0.85)
}

func initialModel(st store.Store, burnEngine *burnrate.Engine, sloEngine *slo.Engine, log *zap.Logger, refreshEvery time.Duration) model {
	ctx, cancel := context.WithCancel(context.Background())

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	columns := []table.Column{
		{Title: "Service", Width: 28},
		{Title: "Risk", Width: 10},
		{Title: "Burn Rate", Width: 12},
		{Title: "Compliance", Width: 12},
		{Title: "Trend", Width: 24},
	}
	t := table.New(table.WithColumns(columns), table.WithFocused(true))
	t.KeyMap.LineUp.SetKeys("k", "up")
	t.KeyMap.LineDown.SetKeys("j", "down")
	t.SetStyles(table.Styles{
		Header:   lipgloss.NewStyle().Bold(true),
		Selected: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#22c55e")),
	})

	return model{
		ctx:          ctx,
		cancel:       cancel,
		store:        st,
		burn:         burnEngine,
		slo:          sloEngine,
		log:          log,
		tbl:          t,
		spinner:      sp,
		refreshEvery: refreshEvery,
		spring:       newSpring(),
		anim:         make(map[string]*rowAnim),
		boxTitle:     lipgloss.NewStyle().Bold(true),
		boxBody:      lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	}
}

// riskColor maps a risk level string to its fixed color, matching the
// computation-contract colors from the burn-rate engine.
func riskColor(risk string) string {
	switch risk {
	case "safe":
		return "#22c55e"
	case "observe":
		return "#eab308"
	case "danger":
		return "#f97316"
	case "freeze":
		return "#ef4444"
	default:
		return "#888888"
	}
}
