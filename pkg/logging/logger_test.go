// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// --- Levels ---

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(42), "UNKNOWN"},
		{Level(-3), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestLevel_Ordering(t *testing.T) {
	ordered := []Level{LevelDebug, LevelInfo, LevelWarn, LevelError}
	for i := 1; i < len(ordered); i++ {
		if ordered[i-1] >= ordered[i] {
			t.Errorf("%v should sort before %v", ordered[i-1], ordered[i])
		}
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level(42), slog.LevelInfo}, // unknown falls back to Info
	}

	for _, tt := range tests {
		if got := tt.level.toSlogLevel(); got != tt.want {
			t.Errorf("toSlogLevel(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"WARN", LevelWarn},
		{"error", LevelError},
		{"ERROR", LevelError},
		{"", LevelInfo},
		{"verbose", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// --- Constructors ---

func TestNew_ZeroConfig(t *testing.T) {
	logger := New(Config{})
	if logger == nil {
		t.Fatal("New returned a nil logger")
	}
	defer logger.Close()

	if logger.slog == nil {
		t.Error("constructor left the slog handle unset")
	}
	if logger.file != nil {
		t.Error("no LogDir configured, file handle should be nil")
	}
}

func TestNew_QuietWithoutFile(t *testing.T) {
	// Quiet with no LogDir leaves no requested destination; the
	// constructor still wires a fallback handler so calls don't panic.
	logger := New(Config{Quiet: true})
	defer logger.Close()

	if logger.slog == nil {
		t.Fatal("logger.slog is nil in quiet mode")
	}
	logger.Info("scoring complete", "tax_year", 2017)
}

func TestNew_CreatesLogFile(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		Level:   LevelDebug,
		LogDir:  tmpDir,
		Service: "simulate",
		Quiet:   true,
	})
	defer logger.Close()

	if logger.file == nil {
		t.Fatal("file handle is nil with LogDir set")
	}

	wantName := "simulate_" + time.Now().Format("2006-01-02") + ".log"
	if _, err := os.Stat(filepath.Join(tmpDir, wantName)); err != nil {
		t.Errorf("expected log file %s: %v", wantName, err)
	}
}

func TestNew_DefaultServiceName(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{LogDir: tmpDir, Quiet: true})
	defer logger.Close()

	files, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(files) != 1 || !strings.HasPrefix(files[0].Name(), "shiftsim_") {
		t.Errorf("want a single shiftsim_*.log file, got %v", files)
	}
}

func TestNew_UnwritableLogDir(t *testing.T) {
	logger := New(Config{
		LogDir: "/proc/nonexistent/shiftsim/logs",
		Quiet:  true,
	})
	defer logger.Close()

	// Degrades to stderr-only rather than failing the run.
	if logger.file != nil {
		t.Error("file handle should be nil when LogDir cannot be created")
	}
	logger.Warn("file logging unavailable")
}

func TestDefault(t *testing.T) {
	logger := Default()
	defer logger.Close()

	if logger.config.Level != LevelInfo {
		t.Errorf("Default() level = %v, want Info", logger.config.Level)
	}
	if logger.config.Service != "shiftsim" {
		t.Errorf("Default service = %q, want shiftsim", logger.config.Service)
	}
}

// --- Logger methods ---

func TestLogger_With(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{LogDir: tmpDir, Service: "simulate", Quiet: true})
	defer logger.Close()

	child := logger.With("run_id", "es2017_3f8a91c2")
	if child == nil || child.slog == nil {
		t.Fatal("With() returned an unusable logger")
	}
	if child.file != logger.file {
		t.Error("child logger should share the parent's file handle")
	}
	if child == logger {
		t.Error("With() should return a new logger, not the receiver")
	}
}

func TestLogger_Slog(t *testing.T) {
	logger := New(Config{Quiet: true})
	defer logger.Close()

	if logger.Slog() == nil {
		t.Error("Slog should expose the underlying logger")
	}
}

func TestLogger_CloseIdempotent(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{LogDir: tmpDir, Service: "simulate", Quiet: true})
	logger.Info("run complete", "rows", 10000)

	if err := logger.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}
	// The handle is released on the first Close; a second is a no-op.
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() returned error: %v", err)
	}
}

func TestLogger_CloseWithoutFile(t *testing.T) {
	logger := New(Config{Quiet: true})
	if err := logger.Close(); err != nil {
		t.Errorf("Close() without file returned error: %v", err)
	}
}

// --- teeHandler ---

func textHandlerAt(w *bytes.Buffer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
}

func infoRecord(msg string) slog.Record {
	return slog.NewRecord(time.Now(), slog.LevelInfo, msg, 0)
}

func TestTeeHandler_EnabledAnyOf(t *testing.T) {
	var buf bytes.Buffer
	mh := teeHandler{
		textHandlerAt(&buf, slog.LevelDebug),
		textHandlerAt(&buf, slog.LevelError),
	}

	// Enabled if any destination wants the level.
	for _, level := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelError} {
		if !mh.Enabled(context.Background(), level) {
			t.Errorf("Enabled(%v) = false, want true", level)
		}
	}

	strict := teeHandler{
		textHandlerAt(&buf, slog.LevelError),
	}
	if strict.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Enabled(Debug) = true for an error-only handler set")
	}
}

func TestTeeHandler_FansOut(t *testing.T) {
	var stderr, file bytes.Buffer
	mh := teeHandler{
		textHandlerAt(&stderr, slog.LevelInfo),
		textHandlerAt(&file, slog.LevelInfo),
	}

	if err := mh.Handle(context.Background(), infoRecord("deciles published")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	for name, buf := range map[string]*bytes.Buffer{"stderr": &stderr, "file": &file} {
		if !strings.Contains(buf.String(), "deciles published") {
			t.Errorf("%s destination missing the record", name)
		}
	}
}

func TestTeeHandler_RespectsPerHandlerLevels(t *testing.T) {
	var verbose, errorsOnly bytes.Buffer
	mh := teeHandler{
		textHandlerAt(&verbose, slog.LevelDebug),
		textHandlerAt(&errorsOnly, slog.LevelError),
	}

	_ = mh.Handle(context.Background(), infoRecord("adoption draw"))

	if verbose.Len() == 0 {
		t.Error("debug-level destination should receive Info records")
	}
	if errorsOnly.Len() != 0 {
		t.Error("error-level destination should filter Info records")
	}
}

type failingHandler struct{ err error }

func (h *failingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *failingHandler) Handle(context.Context, slog.Record) error { return h.err }

func (h *failingHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }

func (h *failingHandler) WithGroup(name string) slog.Handler { return h }

func TestTeeHandler_PropagatesHandlerError(t *testing.T) {
	wantErr := errors.New("disk full")
	mh := teeHandler{&failingHandler{err: wantErr}}

	if err := mh.Handle(context.Background(), infoRecord("x")); !errors.Is(err, wantErr) {
		t.Errorf("Handle() error = %v, want %v", err, wantErr)
	}
}

func TestTeeHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	mh := teeHandler{textHandlerAt(&buf, slog.LevelInfo)}

	withAttrs := mh.WithAttrs([]slog.Attr{slog.String("scenario", "reform_partial_shift")})
	if _, ok := withAttrs.(teeHandler); !ok {
		t.Errorf("WithAttrs() returned %T, want teeHandler", withAttrs)
	}
	withGroup := mh.WithGroup("revenue")
	if _, ok := withGroup.(teeHandler); !ok {
		t.Errorf("WithGroup() returned %T, want teeHandler", withGroup)
	}
}

func TestTeeHandler_Empty(t *testing.T) {
	mh := teeHandler{}
	if mh.Enabled(context.Background(), slog.LevelError) {
		t.Error("empty handler set should report not enabled")
	}
	if err := mh.Handle(context.Background(), infoRecord("x")); err != nil {
		t.Errorf("Handle() on empty set returned error: %v", err)
	}
}

// --- Helpers ---

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()

	tests := []struct {
		input string
		want  string
	}{
		{"~/logs", filepath.Join(home, "logs")},
		{"~/.shiftsim/logs", filepath.Join(home, ".shiftsim/logs")},
		{"~", home},
		{"/var/log", "/var/log"},
		{"relative/path", "relative/path"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := expandPath(tt.input); got != tt.want {
			t.Errorf("expandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

// --- End to end ---

func TestLogger_FileEntriesAreJSON(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  tmpDir,
		Service: "simulate",
		Quiet:   true,
	})

	logger.Info("run complete", "run_id", "es2017_3f8a91c2", "rows", 10000)
	logger.Close()

	files, _ := os.ReadDir(tmpDir)
	if len(files) == 0 {
		t.Fatal("no log file created")
	}
	content, err := os.ReadFile(filepath.Join(tmpDir, files[0].Name()))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}

	for _, want := range []string{
		`"msg":"run complete"`,
		`"run_id":"es2017_3f8a91c2"`,
		`"rows":10000`,
		`"service":"simulate"`,
	} {
		if !strings.Contains(string(content), want) {
			t.Errorf("log file missing %s\ngot: %s", want, content)
		}
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		Level:   LevelWarn,
		LogDir:  tmpDir,
		Service: "simulate",
		Quiet:   true,
	})

	logger.Debug("urn draw")
	logger.Info("records loaded")
	logger.Warn("decile table empty")
	logger.Error("policy file missing")
	logger.Close()

	files, _ := os.ReadDir(tmpDir)
	if len(files) == 0 {
		t.Fatal("no log file created")
	}
	content, err := os.ReadFile(filepath.Join(tmpDir, files[0].Name()))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}

	out := string(content)
	if strings.Contains(out, "urn draw") || strings.Contains(out, "records loaded") {
		t.Error("entries below Warn should be filtered")
	}
	if !strings.Contains(out, "decile table empty") {
		t.Error("Warn entry missing from log file")
	}
	if !strings.Contains(out, "policy file missing") {
		t.Error("Error entry missing from log file")
	}
}
