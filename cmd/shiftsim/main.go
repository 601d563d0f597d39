// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// shiftsim analyzes the tax revenue implications of earnings shifting
// under a pass-through reform: wage earners recharacterizing their pay
// as pass-through business income to reach a preferential rate.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/ShiftSim/pkg/logging"
	"github.com/AleutianAI/ShiftSim/pkg/simulation"
	"github.com/AleutianAI/ShiftSim/pkg/telemetry"
	"github.com/AleutianAI/ShiftSim/pkg/ux"
)

// Config is the config.yaml schema. Every field has a default so the
// binary runs without a config file at all.
type Config struct {
	// InputCSV is the microdata file scored by simulate and watch.
	// Empty selects the synthetic sample.
	InputCSV string `yaml:"input_csv"`

	// PolicyFile and ReformFile are the parameter YAMLs the five
	// scenarios are scored under.
	PolicyFile string `yaml:"policy_file"`
	ReformFile string `yaml:"reform_file"`

	// StorePath is the run-history database directory.
	StorePath string `yaml:"store_path"`

	// SyntheticRows sizes the generated sample when InputCSV is empty.
	SyntheticRows int `yaml:"synthetic_rows"`

	Log struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`

	GCS struct {
		ProjectID string `yaml:"project_id"`
		Bucket    string `yaml:"bucket"`
		SAKeyPath string `yaml:"sa_key_path"`
		Prefix    string `yaml:"prefix"`
	} `yaml:"gcs"`
}

var config Config

var cliLogger *logging.Logger

func main() {
	os.Exit(run())
}

func run() int {
	shutdown, err := telemetry.Init(context.Background(), telemetry.CLIConfig())
	if err == nil {
		defer func() { _ = shutdown(context.Background()) }()
	}
	defer func() {
		if cliLogger != nil {
			_ = cliLogger.Close()
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		var cfgErr *simulation.ConfigError
		if errors.As(err, &cfgErr) {
			// Rejected run parameters print bare, matching the
			// analysis surface rather than the CLI's error styling.
			fmt.Fprintf(os.Stderr, "%s\n", cfgErr.Error())
		} else {
			ux.Error(err.Error())
		}
		return 1
	}
	return 0
}

func defaultConfig() Config {
	var c Config
	c.PolicyFile = "configs/policy_2017_law.yaml"
	c.ReformFile = "configs/reform_2017.yaml"
	c.StorePath = "~/.shiftsim/runs"
	c.SyntheticRows = 10000
	c.Log.Level = "info"
	return c
}

// loadConfig overlays config.yaml onto the defaults. A missing file is
// only an error when the path was set explicitly.
func loadConfig(path string, explicit bool) error {
	config = defaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) && !explicit {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// initLogging builds the process logger. Console logging stays quiet
// unless --verbose is set; reports and status lines are the CLI's
// real output.
func initLogging() {
	level := logging.ParseLevel(config.Log.Level)
	if verbose {
		level = logging.LevelDebug
	}
	cliLogger = logging.New(logging.Config{
		Level:   level,
		LogDir:  config.Log.Dir,
		Service: "shiftsim",
		JSON:    config.Log.JSON,
		Quiet:   !verbose,
	})
	slog.SetDefault(cliLogger.Slog())
}

// expandHome resolves a leading ~ against the user's home directory.
func expandHome(path string) string {
	if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
