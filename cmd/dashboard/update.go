// Copyright 2025 James Ross
package main

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/table"
)

func (m model) Init() tea.Cmd {
	m.loading = true
	return tea.Batch(m.spinner.Tick, m.refreshCmd(), tickCmd(m.refreshEvery), animTickCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.tbl.SetHeight(m.height - 8)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.cancel()
			return m, tea.Quit
		case "r":
			m.loading = true
			return m, m.refreshCmd()
		}
		var cmd tea.Cmd
		m.tbl, cmd = m.tbl.Update(msg)
		return m, cmd

	case tickMsg:
		return m, tea.Batch(m.refreshCmd(), tickCmd(m.refreshEvery))

	case refreshMsg:
		m.loading = false
		if msg.err != nil {
			m.errText = msg.err.Error()
			return m, nil
		}
		m.errText = ""
		m.rows = msg.rows
		m.tbl.SetRows(rowsToTable(m.rows, m.anim))
		return m, nil

	case animTickMsg:
		for _, r := range m.rows {
			a, ok := m.anim[r.name]
			if !ok {
				a = &rowAnim{pos: r.burnRate}
				m.anim[r.name] = a
			}
			a.pos, a.vel = m.spring.Update(a.pos, a.vel, r.burnRate)
		}
		m.tbl.SetRows(rowsToTable(m.rows, m.anim))
		return m, animTickCmd()

	default:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
}

// rowsToTable renders the services table, displaying each row's
// spring-eased burn rate (anim) rather than the raw polled value so a
// refresh settles into view instead of jumping straight to the new number.
func rowsToTable(rows []serviceRow, anim map[string]*rowAnim) []table.Row {
	out := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		displayed := r.burnRate
		if a, ok := anim[r.name]; ok {
			displayed = a.pos
		}
		out = append(out, table.Row{
			r.name,
			r.risk,
			formatBurnRate(displayed),
			formatCompliance(r.compliant, r.atRisk),
			sparkline(r.history),
		})
	}
	return out
}

func animTickCmd() tea.Cmd {
	return tea.Tick(time.Second/animFPS, func(time.Time) tea.Msg { return animTickMsg{} })
}
