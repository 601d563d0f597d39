// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

// captureStdout swaps os.Stdout for a pipe while f runs.
func captureStdout(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// captureStderr does the same for os.Stderr.
func captureStderr(f func()) string {
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	f()

	w.Close()
	os.Stderr = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// Helper to run f with a fixed mode, restoring the previous one
func withMode(m Mode, f func()) {
	prev := GetMode()
	SetMode(m)
	defer SetMode(prev)
	f()
}

// --- Modes ---

func TestParseMode(t *testing.T) {
	tests := []struct {
		input string
		want  Mode
	}{
		{"rich", ModeRich},
		{"r", ModeRich},
		{"RICH", ModeRich},
		{"plain", ModePlain},
		{"minimal", ModePlain},
		{"p", ModePlain},
		{"machine", ModeMachine},
		{"quiet", ModeMachine},
		{"q", ModeMachine},
		{"", ModeRich},
		{"bogus", ModeRich},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseMode(tt.input)
			if got != tt.want {
				t.Errorf("ParseMode(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSetMode_GetMode(t *testing.T) {
	prev := GetMode()
	defer SetMode(prev)

	SetMode(ModeMachine)
	if GetMode() != ModeMachine {
		t.Errorf("GetMode() = %v, want ModeMachine", GetMode())
	}

	SetMode(ModePlain)
	if GetMode() != ModePlain {
		t.Errorf("GetMode() = %v, want ModePlain", GetMode())
	}
}

func TestInitMode_EnvOverride(t *testing.T) {
	prev := GetMode()
	defer SetMode(prev)

	t.Setenv("SHIFTSIM_OUTPUT", "machine")
	InitMode()
	if GetMode() != ModeMachine {
		t.Errorf("GetMode() = %v, want ModeMachine from env", GetMode())
	}
}

// --- Icons ---

func TestIcon_RenderStyled(t *testing.T) {
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconPending} {
		if icon.Render() == "" {
			t.Errorf("Render() of %q came back empty", icon)
		}
	}
}

func TestIcon_RenderUnstyled(t *testing.T) {
	// Icons without a mapped style come back as their bare rune.
	for _, icon := range []Icon{IconArrow, IconBullet, IconDelta} {
		if got := icon.Render(); got != string(icon) {
			t.Errorf("Render() of %q = %q, want the bare rune", icon, got)
		}
	}
}

// --- Machine mode, exact output ---

func TestTitle_MachineMode(t *testing.T) {
	withMode(ModeMachine, func() {
		out := captureStdout(func() { Title("Run Summary") })
		if out != "" {
			t.Errorf("Title in machine mode should print nothing, got %q", out)
		}
	})
}

func TestSuccess_MachineMode(t *testing.T) {
	withMode(ModeMachine, func() {
		out := captureStdout(func() { Success("stored run abc") })
		if out != "OK: stored run abc\n" {
			t.Errorf("Success output = %q", out)
		}
	})
}

func TestWarning_MachineMode(t *testing.T) {
	withMode(ModeMachine, func() {
		out := captureStderr(func() { Warning("reform file missing") })
		if out != "WARN: reform file missing\n" {
			t.Errorf("Warning output = %q", out)
		}
	})
}

func TestError_MachineMode(t *testing.T) {
	withMode(ModeMachine, func() {
		out := captureStderr(func() { Error("bad input") })
		if out != "ERROR: bad input\n" {
			t.Errorf("Error output = %q", out)
		}
	})
}

func TestInfo_MachineMode(t *testing.T) {
	withMode(ModeMachine, func() {
		out := captureStdout(func() { Info("scoring 100 records") })
		if out != "scoring 100 records\n" {
			t.Errorf("Info output = %q", out)
		}
	})
}

func TestMuted_MachineMode(t *testing.T) {
	withMode(ModeMachine, func() {
		out := captureStdout(func() { Muted("details") })
		if out != "" {
			t.Errorf("Muted in machine mode should print nothing, got %q", out)
		}
	})
}

func TestBox_MachineMode(t *testing.T) {
	withMode(ModeMachine, func() {
		out := captureStdout(func() { Box("Run", "complete") })
		if out != "Run: complete\n" {
			t.Errorf("Box output = %q", out)
		}
	})
}

func TestRunStatus_MachineMode(t *testing.T) {
	withMode(ModeMachine, func() {
		out := captureStdout(func() { RunStatus("run-1", IconSuccess, "2017") })
		if out != "✓\trun-1\t2017\n" {
			t.Errorf("RunStatus output = %q", out)
		}
	})
}

func TestSummary_MachineMode(t *testing.T) {
	withMode(ModeMachine, func() {
		out := captureStdout(func() { Summary(3, 1, 4) })
		if out != "SUMMARY: ok=3 failed=1 total=4\n" {
			t.Errorf("Summary output = %q", out)
		}
	})
}

// --- Styled modes, content checks ---

func TestSuccess_PlainMode(t *testing.T) {
	withMode(ModePlain, func() {
		out := captureStdout(func() { Success("done") })
		if !strings.Contains(out, "done") {
			t.Errorf("Success output should contain message: %q", out)
		}
	})
}

func TestRunStatus_PlainMode(t *testing.T) {
	withMode(ModePlain, func() {
		out := captureStdout(func() { RunStatus("run-2", IconPending, "queued") })
		if !strings.Contains(out, "run-2") {
			t.Errorf("RunStatus output should contain run id: %q", out)
		}
		// Plain mode drops the detail
		if strings.Contains(out, "queued") {
			t.Errorf("RunStatus plain output should drop detail: %q", out)
		}
	})
}

func TestTitle_RichMode(t *testing.T) {
	withMode(ModeRich, func() {
		out := captureStdout(func() { Title("Decile Report") })
		if !strings.Contains(out, "Decile Report") {
			t.Errorf("Title output should contain text: %q", out)
		}
	})
}
