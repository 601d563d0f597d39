// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the shiftsim CLI.
//
// Simulation reports are written as plain text so they can be diffed
// and piped; the helpers here style everything around them (status
// lines, warnings, run listings). Output degrades through three modes:
// rich (colors and boxes), plain (icons only), and machine (greppable
// prefixes, no ANSI codes). Mode selection is automatic for pipes.
package ux

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// ShiftSim palette: ledger greens over slate grays.
var (
	ColorMintBright   = lipgloss.Color("#3DDC97") // highlights, success
	ColorGreenPrimary = lipgloss.Color("#2EB086") // brand
	ColorGreenDeep    = lipgloss.Color("#1E7D61") // borders, accents
	ColorTealQuiet    = lipgloss.Color("#2A7F8E") // secondary elements

	ColorSlate    = lipgloss.Color("#46555F") // muted text
	ColorCharcoal = lipgloss.Color("#222B31") // backgrounds

	// Warnings and errors keep conventional colors.
	ColorSuccess = ColorMintBright
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = ColorSlate
)

// Styles holds the pre-built lipgloss styles the helpers render with.
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Box       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorMintBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorGreenPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorMintBright).Bold(true),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorGreenDeep).
		Padding(0, 1),
}

// Mode controls how much styling the helpers emit.
type Mode string

const (
	// ModeRich enables colors, icons, and boxes.
	ModeRich Mode = "rich"

	// ModePlain uses icons and basic formatting only.
	ModePlain Mode = "plain"

	// ModeMachine outputs plain text suitable for scripting and parsing.
	ModeMachine Mode = "machine"
)

var (
	currentMode = ModeRich
	modeMu      sync.RWMutex
)

// GetMode returns the current output mode.
func GetMode() Mode {
	modeMu.RLock()
	defer modeMu.RUnlock()
	return currentMode
}

// SetMode updates the current output mode.
func SetMode(m Mode) {
	modeMu.Lock()
	defer modeMu.Unlock()
	currentMode = m
}

// ParseMode converts a string to Mode
func ParseMode(s string) Mode {
	switch strings.ToLower(s) {
	case "rich", "r":
		return ModeRich
	case "plain", "p", "minimal":
		return ModePlain
	case "machine", "quiet", "q":
		return ModeMachine
	default:
		return ModeRich
	}
}

// InitMode initializes the output mode from environment and terminal state.
func InitMode() {
	// SHIFTSIM_OUTPUT overrides terminal detection
	if envMode := os.Getenv("SHIFTSIM_OUTPUT"); envMode != "" {
		SetMode(ParseMode(envMode))
		return
	}

	// Pipes and redirects get machine output
	if !isTerminal() {
		SetMode(ModeMachine)
		return
	}

	SetMode(ModeRich)
}

// isTerminal reports whether stdout is attached to a terminal
func isTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Icon is a single-rune status marker
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
	IconDelta   Icon = "Δ"
)

var iconStyles = map[Icon]lipgloss.Style{
	IconSuccess: Styles.Success,
	IconWarning: Styles.Warning,
	IconError:   Styles.Error,
	IconPending: Styles.Muted,
}

// Render colors the icon to match its meaning
func (i Icon) Render() string {
	if style, ok := iconStyles[i]; ok {
		return style.Render(string(i))
	}
	return string(i)
}

// Print helpers that respect the output mode

// Title prints a heading, or nothing in machine mode
func Title(text string) {
	if GetMode() == ModeMachine {
		return
	}
	fmt.Println(Styles.Title.Render(text))
}

// statusLine prints one icon-led status line. Machine mode swaps the
// icon for a greppable prefix and may route to stderr; the styled
// modes always write to stdout so statuses interleave with reports.
func statusLine(machineOut io.Writer, icon Icon, style lipgloss.Style, prefix, text string) {
	switch GetMode() {
	case ModeMachine:
		fmt.Fprintf(machineOut, "%s: %s\n", prefix, text)
	case ModePlain:
		fmt.Printf("%s %s\n", icon.Render(), text)
	default:
		fmt.Printf("%s %s\n", icon.Render(), style.Render(text))
	}
}

// Success prints text behind a checkmark; machine mode gets "OK:"
func Success(text string) { statusLine(os.Stdout, IconSuccess, Styles.Success, "OK", text) }

// Warning prints a warning; machine mode writes "WARN:" to stderr
func Warning(text string) { statusLine(os.Stderr, IconWarning, Styles.Warning, "WARN", text) }

// Error prints an error; machine mode writes "ERROR:" to stderr
func Error(text string) { statusLine(os.Stderr, IconError, Styles.Error, "ERROR", text) }

// Info prints a gutter-marked informational line
func Info(text string) {
	if GetMode() == ModeMachine {
		fmt.Println(text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Muted.Render(string(IconBullet)), text)
}

// Muted prints low-emphasis text, dropped entirely in machine mode
func Muted(text string) {
	if GetMode() == ModeMachine {
		return
	}
	fmt.Println(Styles.Muted.Render(text))
}

// Box frames titled content in a rounded border
func Box(title, content string) {
	if GetMode() == ModeMachine {
		fmt.Printf("%s: %s\n", title, content)
		return
	}
	framed := Styles.Box.Width(60).Render(Styles.Title.Render(title) + "\n" + content)
	fmt.Println(framed)
}

// RunStatus prints a stored run with its status icon
func RunStatus(runID string, status Icon, detail string) {
	switch GetMode() {
	case ModeMachine:
		fmt.Printf("%s\t%s\t%s\n", status, runID, detail)
	case ModePlain:
		fmt.Printf("%s %s\n", status.Render(), runID)
	default:
		line := status.Render() + " " + runID
		if detail != "" {
			line += " " + Styles.Muted.Render("("+detail+")")
		}
		fmt.Println(line)
	}
}

// Summary prints outcome counts after a batch operation.
func Summary(ok, failed, total int) {
	if GetMode() == ModeMachine {
		fmt.Printf("SUMMARY: ok=%d failed=%d total=%d\n", ok, failed, total)
		return
	}
	counts := []string{
		Styles.Success.Render(strconv.Itoa(ok)) + " " + Styles.Muted.Render("ok"),
		Styles.Error.Render(strconv.Itoa(failed)) + " " + Styles.Muted.Render("failed"),
		Styles.Bold.Render(strconv.Itoa(total)) + " " + Styles.Muted.Render("total"),
	}
	fmt.Printf("\n%s\n", strings.Join(counts, "  "))
}
