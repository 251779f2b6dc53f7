// Copyright 2025 James Ross
package main

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func (m model) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		compliance, err := m.slo.ComputeGlobalCompliance(m.ctx)
		if err != nil {
			return refreshMsg{err: err}
		}

		rows := make([]serviceRow, 0, len(compliance.Services))
		for _, c := range compliance.Services {
			burnRate, risk, err := m.burn.GetWeightedBurnRate(m.ctx, c.ServiceID)
			if err != nil {
				continue
			}
			stats, err := m.burn.GetBurnStatistics(m.ctx, c.ServiceID, 5, time.Now().Add(-time.Hour))
			history := []float64{}
			if err == nil && stats.Samples > 0 {
				history = []float64{stats.MinBurnRate, stats.AvgBurnRate, stats.MaxBurnRate}
			}
			rows = append(rows, serviceRow{
				name:      c.ServiceName,
				risk:      risk.String(),
				burnRate:  burnRate,
				compliant: c.CompliancePercent,
				atRisk:    c.AtRisk,
				history:   history,
			})
		}
		return refreshMsg{rows: rows}
	}
}

func tickCmd(every time.Duration) tea.Cmd {
	return tea.Tick(every, func(time.Time) tea.Msg { return tickMsg{} })
}
