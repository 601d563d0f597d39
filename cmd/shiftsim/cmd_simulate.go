// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ShiftSim/pkg/calc"
	"github.com/AleutianAI/ShiftSim/pkg/policy"
	"github.com/AleutianAI/ShiftSim/pkg/records"
	"github.com/AleutianAI/ShiftSim/pkg/runstore"
	"github.com/AleutianAI/ShiftSim/pkg/simulation"
	"github.com/AleutianAI/ShiftSim/pkg/ux"
)

// syntheticSeed keeps the demo sample identical across invocations so
// stored runs stay comparable.
const syntheticSeed = 20170101

// parseParams maps the optional positional arguments onto the
// documented defaults: TAXYEAR 0, MIN_EARNINGS 9e99, MIN_SAVINGS 9e99,
// SHIFT_PROB 0.0.
func parseParams(args []string) (simulation.Params, error) {
	p := simulation.DefaultParams(0)
	if len(args) > 0 {
		year, err := strconv.Atoi(args[0])
		if err != nil {
			return p, fmt.Errorf("TAXYEAR %q is not a year", args[0])
		}
		p.TaxYear = year
	}
	if len(args) > 1 {
		v, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return p, fmt.Errorf("MIN_EARNINGS %q is not a number", args[1])
		}
		p.MinEarnings = v
	}
	if len(args) > 2 {
		v, err := strconv.ParseFloat(args[2], 64)
		if err != nil {
			return p, fmt.Errorf("MIN_SAVINGS %q is not a number", args[2])
		}
		p.MinSavings = v
	}
	if len(args) > 3 {
		v, err := strconv.ParseFloat(args[3], 64)
		if err != nil {
			return p, fmt.Errorf("SHIFT_PROB %q is not a number", args[3])
		}
		p.ShiftProb = v
	}
	return p, nil
}

// buildDriver loads the configured policy and reform files and wires
// the reference engine.
func buildDriver(logger *slog.Logger) (*simulation.Driver, error) {
	pol, err := policy.Load(expandHome(config.PolicyFile))
	if err != nil {
		return nil, err
	}
	ref, err := policy.LoadReform(expandHome(config.ReformFile))
	if err != nil {
		return nil, err
	}
	return simulation.NewDriver(calc.NewFormulaEngine(), pol, ref, logger)
}

// loadInput reads the microdata named by --input or the config file,
// falling back to a synthetic sample. The returned path is empty for
// synthetic data.
func loadInput(logger *slog.Logger) (*records.RecordSet, string, error) {
	path := simInput
	if path == "" {
		path = config.InputCSV
	}
	if path == "" {
		logger.Info("no input file configured, generating synthetic sample",
			"rows", config.SyntheticRows)
		if ux.GetMode() == ux.ModeRich {
			ux.Muted(fmt.Sprintf("no input file configured; scoring a synthetic sample of %d tax units", config.SyntheticRows))
		}
		return records.Synthetic(config.SyntheticRows, syntheticSeed), "", nil
	}
	rs, err := records.NewLoader(logger).Load(expandHome(path))
	if err != nil {
		return nil, "", err
	}
	return rs, path, nil
}

// openRunStore opens the configured run-history database.
func openRunStore(logger *slog.Logger) (*runstore.Store, error) {
	cfg := runstore.DefaultConfig(expandHome(config.StorePath))
	cfg.Logger = logger
	return runstore.Open(cfg)
}

// storeRun records a completed run. Failures are reported but never
// fail the command: the report has already been printed.
func storeRun(ctx context.Context, logger *slog.Logger, rec *runstore.RunRecord) {
	store, err := openRunStore(logger)
	if err != nil {
		ux.Warning(fmt.Sprintf("run not stored: %v", err))
		return
	}
	defer store.Close()

	if err := store.Put(ctx, rec); err != nil {
		ux.Warning(fmt.Sprintf("run not stored: %v", err))
		return
	}
	logger.Info("run stored", "run_id", rec.ID, "rows", rec.Rows)
	if ux.GetMode() == ux.ModeRich {
		ux.Success("stored run " + rec.ID)
	}
}

func runSimulate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := slog.Default()

	p, err := parseParams(args)
	if err != nil {
		return err
	}
	if simInteractive {
		if err := promptParams(&p); err != nil {
			return err
		}
	}

	driver, err := buildDriver(logger)
	if err != nil {
		return err
	}

	// Rejected parameters surface before the input file is read.
	if err := p.Validate(driver.FirstReformYear()); err != nil {
		return err
	}

	input, inputPath, err := loadInput(logger)
	if err != nil {
		return err
	}

	spin := ux.NewSpinner(fmt.Sprintf("scoring %d tax units under five scenarios", input.Len()))
	if ux.GetMode() == ux.ModeRich {
		spin.Start()
	}
	res, err := driver.Run(ctx, input, p)
	spin.Stop()
	if err != nil {
		return err
	}

	if err := simulation.WriteReport(os.Stdout, res); err != nil {
		return err
	}

	if !simNoStore {
		storeRun(ctx, logger, runstore.NewRunRecord(res, inputPath))
	}
	return nil
}
