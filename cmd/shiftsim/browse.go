// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/ShiftSim/pkg/runstore"
	"github.com/AleutianAI/ShiftSim/pkg/simulation"
	"github.com/AleutianAI/ShiftSim/pkg/ux"
)

// browseView selects which pane has focus.
type browseView int

const (
	viewTable browseView = iota
	viewReport
)

var (
	browseTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(ux.ColorMintBright)
	browseHelpStyle  = lipgloss.NewStyle().Foreground(ux.ColorSlate)
)

// browseModel is the bubbletea model behind runs browse: a run table
// with a scrollable report pane.
type browseModel struct {
	runs []*runstore.RunRecord

	table    table.Model
	viewport viewport.Model
	view     browseView

	ready  bool
	width  int
	height int
}

func newBrowseModel(runs []*runstore.RunRecord) browseModel {
	columns := []table.Column{
		{Title: "Run ID", Width: 36},
		{Title: "Created", Width: 16},
		{Title: "Year", Width: 6},
		{Title: "Prob", Width: 6},
		{Title: "Shifters (m)", Width: 12},
	}
	rows := make([]table.Row, 0, len(runs))
	for _, rec := range runs {
		rows = append(rows, table.Row{
			rec.ID,
			time.Time(rec.CreatedAt).Format("2006-01-02 15:04"),
			strconv.Itoa(rec.Params.TaxYear),
			simulation.FloatString(rec.Params.ShiftProb),
			fmt.Sprintf("%.3f", (rec.Summary.PrimaryShifters+rec.Summary.SpouseShifters)*1e-6),
		})
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.Bold(true).Foreground(ux.ColorGreenPrimary)
	s.Selected = s.Selected.Foreground(ux.ColorCharcoal).Background(ux.ColorMintBright).Bold(true)
	t.SetStyles(s)

	return browseModel{runs: runs, table: t, view: viewTable}
}

// Init implements tea.Model.
func (m browseModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 2
		footerHeight := 2
		paneHeight := m.height - headerHeight - footerHeight
		if paneHeight < 3 {
			paneHeight = 3
		}

		if !m.ready {
			m.viewport = viewport.New(m.width, paneHeight)
			m.ready = true
		} else {
			m.viewport.Width = m.width
			m.viewport.Height = paneHeight
		}
		m.table.SetHeight(paneHeight)

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "enter":
			if m.view == viewTable {
				if rec := m.selected(); rec != nil {
					m.viewport.SetContent(rec.Report)
					m.viewport.GotoTop()
					m.view = viewReport
				}
				return m, nil
			}

		case "esc":
			if m.view == viewReport {
				m.view = viewTable
				return m, nil
			}
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	if m.view == viewTable {
		m.table, cmd = m.table.Update(msg)
	} else {
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

// selected returns the run under the cursor.
func (m browseModel) selected() *runstore.RunRecord {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.runs) {
		return nil
	}
	return m.runs[idx]
}

// View implements tea.Model.
func (m browseModel) View() string {
	if !m.ready {
		return "loading..."
	}

	var b strings.Builder
	if m.view == viewTable {
		b.WriteString(browseTitleStyle.Render(fmt.Sprintf("Stored runs (%d)", len(m.runs))))
		b.WriteString("\n\n")
		b.WriteString(m.table.View())
		b.WriteString("\n")
		b.WriteString(browseHelpStyle.Render("enter: report  ↑/↓: move  q: quit"))
	} else {
		title := "report"
		if rec := m.selected(); rec != nil {
			title = rec.ID
		}
		b.WriteString(browseTitleStyle.Render(title))
		b.WriteString("\n\n")
		b.WriteString(m.viewport.View())
		b.WriteString("\n")
		b.WriteString(browseHelpStyle.Render(fmt.Sprintf("%3.0f%%  esc: back  q: quit", m.viewport.ScrollPercent()*100)))
	}
	return b.String()
}
