// Copyright 2025 James Ross
package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
)

func (m model) View() string {
	title := m.boxTitle.Render("Reliability Control Plane — Live Dashboard")

	status := fmt.Sprintf("services: %d   refresh: %s", len(m.rows), m.refreshEvery)
	if m.loading {
		status = m.spinner.View() + " refreshing…  " + status
	}
	if m.errText != "" {
		status = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444")).Render("error: "+m.errText) + "   " + status
	}

	body := m.boxBody.Render(m.tbl.View())
	help := lipgloss.NewStyle().Faint(true).Render("q: quit   r: refresh now   j/k: move selection")

	return lipgloss.JoinVertical(lipgloss.Left, title, status, body, help)
}

func formatBurnRate(v float64) string {
	return fmt.Sprintf("%.2fx", v)
}

func formatCompliance(v float64, atRisk bool) string {
	s := fmt.Sprintf("%.1f%%", v)
	if atRisk {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444")).Render(s + " !")
	}
	return s
}

// sparkline renders a compact min/avg/max trend using asciigraph's plot,
// collapsed to a single line for the services table.
func sparkline(history []float64) string {
	if len(history) == 0 {
		return "no data"
	}
	graph := asciigraph.Plot(history, asciigraph.Height(1), asciigraph.Width(18))
	return lastLine(graph)
}

func lastLine(s string) string {
	last := s
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '\n' {
			last = s[i+1:]
			break
		}
	}
	return last
}
