// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/ShiftSim/pkg/simulation"
	"github.com/AleutianAI/ShiftSim/pkg/ux"
	"github.com/AleutianAI/ShiftSim/pkg/watch"
)

// runWatch scores once up front, then rescores and reprints the report
// whenever the policy, reform, or input files change on disk.
func runWatch(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	p, err := parseParams(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The first pass fails hard so a bad invocation exits like simulate.
	if err := rescore(ctx, logger, p); err != nil {
		return err
	}

	paths := []string{expandHome(config.PolicyFile), expandHome(config.ReformFile)}
	if input := watchInputPath(); input != "" {
		paths = append(paths, expandHome(input))
	}

	// Later failures report and keep watching; the next edit can fix them.
	handler := func(changes []watch.Change) {
		for _, c := range changes {
			ux.Info(fmt.Sprintf("%s %s", c.Op, c.Path))
		}
		if err := rescore(ctx, logger, p); err != nil {
			var cfgErr *simulation.ConfigError
			if errors.As(err, &cfgErr) {
				fmt.Fprintf(os.Stderr, "%s\n", cfgErr.Error())
			} else {
				ux.Error(err.Error())
			}
		}
	}

	w, err := watch.NewWatcher(paths, handler, nil)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	if ux.GetMode() == ux.ModeRich {
		ux.Box("watching", strings.Join(paths, "\n"))
	}
	ux.Info("rescoring on change (ctrl-c to stop)")
	<-ctx.Done()
	return nil
}

// rescore rebuilds the driver from the files on disk, revalidates the
// parameters against the fresh reform, and prints a full report.
func rescore(ctx context.Context, logger *slog.Logger, p simulation.Params) error {
	spin := ux.NewSpinner("reloading policy and reform tables")
	if ux.GetMode() == ux.ModeRich {
		spin.Start()
	}
	defer spin.Stop()

	driver, err := buildDriver(logger)
	if err != nil {
		return err
	}
	if err := p.Validate(driver.FirstReformYear()); err != nil {
		return err
	}
	input, _, err := loadInput(logger)
	if err != nil {
		return err
	}
	spin.UpdateMessage(fmt.Sprintf("rescoring %d tax units", input.Len()))
	res, err := driver.Run(ctx, input, p)
	spin.Stop()
	if err != nil {
		return err
	}
	return simulation.WriteReport(os.Stdout, res)
}

// watchInputPath returns the input CSV to watch, or empty when runs
// score synthetic records and there is no file to follow.
func watchInputPath() string {
	if simInput != "" {
		return simInput
	}
	return config.InputCSV
}
