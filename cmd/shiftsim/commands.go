// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"

	"github.com/AleutianAI/ShiftSim/pkg/ux"
)

// --- Global Command Variables ---
var (
	cfgFile     string
	outputStyle string // rich, plain, or machine
	verbose     bool

	simInput       string
	simNoStore     bool
	simInteractive bool

	exportOutput  string
	archivePrefix string
	archiveAll    bool

	rootCmd = &cobra.Command{
		Use:   "shiftsim",
		Short: "Earnings-shifting microsimulation for pass-through tax reform",
		Long: `shiftsim scores a microdata sample under current law and a
pass-through reform, prices every earner's wage-to-K1 shifting
opportunity, and reports the revenue consequences across the
distribution.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Initialize output styling from flag or environment
			if outputStyle != "" {
				ux.SetMode(ux.ParseMode(outputStyle))
			} else {
				ux.InitMode()
			}
			explicit := cmd.Flags().Changed("config")
			if err := loadConfig(cfgFile, explicit); err != nil {
				return err
			}
			initLogging()
			return nil
		},
	}

	// --- Simulate ---
	simulateCmd = &cobra.Command{
		Use:   "simulate [TAXYEAR [MIN_EARNINGS [MIN_SAVINGS [SHIFT_PROB]]]]",
		Short: "Run the five-scenario analysis and print the comparison report",
		Long: `simulate scores the sample under current law, the reform without
shifting, two full-shift views that price each earner's savings, and
the adopted partial shift. TAXYEAR is the calendar year taxes are
computed for. MIN_EARNINGS and MIN_SAVINGS are the minimum individual
earnings and combined-tax savings for shifting to occur with
probability SHIFT_PROB; below either minimum the probability is zero.`,
		Args: cobra.MaximumNArgs(4),
		RunE: runSimulate, // Defined in cmd_simulate.go
	}

	// --- Translate ---
	translateCmd = &cobra.Command{
		Use:   "translate [input.csv [output.raw]]",
		Short: "Convert tc --dump output to TAXSIM input lines",
		Long: `translate reads a tc --dump CSV and writes one 28-field TAXSIM
input line per record. With no arguments it filters stdin to stdout.`,
		Args: cobra.MaximumNArgs(2),
		RunE: runTranslate, // Defined in cmd_translate.go
	}

	// --- Run History ---
	runsCmd = &cobra.Command{
		Use:   "runs",
		Short: "Inspect and manage stored simulation runs",
	}
	runsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List stored runs, newest first",
		RunE:  runRunsList, // Defined in cmd_runs.go
	}
	runsShowCmd = &cobra.Command{
		Use:   "show [run_id]",
		Short: "Reprint a stored run's report verbatim",
		Args:  cobra.ExactArgs(1),
		RunE:  runRunsShow, // Defined in cmd_runs.go
	}
	runsExportCmd = &cobra.Command{
		Use:   "export [run_id]",
		Short: "Export a stored run's decile tables to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  runRunsExport, // Defined in cmd_runs.go
	}
	runsDiffCmd = &cobra.Command{
		Use:   "diff [run_id] [run_id]",
		Short: "Show line differences between two stored reports",
		Args:  cobra.ExactArgs(2),
		RunE:  runRunsDiff, // Defined in cmd_runs.go
	}
	runsArchiveCmd = &cobra.Command{
		Use:   "archive [run_id]",
		Short: "Upload stored runs to Google Cloud Storage",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRunsArchive, // Defined in cmd_runs.go
	}
	runsBrowseCmd = &cobra.Command{
		Use:   "browse",
		Short: "Browse stored runs in an interactive table",
		RunE:  runRunsBrowse, // Defined in cmd_runs.go
	}
	runsDeleteCmd = &cobra.Command{
		Use:   "delete [run_id]",
		Short: "Delete a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  runRunsDelete, // Defined in cmd_runs.go
	}

	// --- Watch ---
	watchCmd = &cobra.Command{
		Use:   "watch [TAXYEAR [MIN_EARNINGS [MIN_SAVINGS [SHIFT_PROB]]]]",
		Short: "Re-run the analysis whenever the parameter files change",
		Long: `watch runs the analysis once, then watches the policy and reform
YAMLs (and the input file, when one is configured) and re-runs on
every change until interrupted.`,
		Args: cobra.MaximumNArgs(4),
		RunE: runWatch, // Defined in cmd_watch.go
	}
)

// init wires flags and registers every subcommand on rootCmd.
func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml",
		"Path to the config file")
	rootCmd.PersistentFlags().StringVar(&outputStyle, "output", "",
		"Output style: rich (default on a TTY), plain, or machine (scripting)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Log to the console at debug level")

	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVarP(&simInput, "input", "i", "",
		"Microdata CSV to score (default from config, else a synthetic sample)")
	simulateCmd.Flags().BoolVar(&simNoStore, "no-store", false,
		"Skip recording the run in the local run store")
	simulateCmd.Flags().BoolVar(&simInteractive, "interactive", false,
		"Fill in the shifting parameters through a form")

	rootCmd.AddCommand(translateCmd)

	// run history commands
	rootCmd.AddCommand(runsCmd)
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsExportCmd)
	runsExportCmd.Flags().StringVarP(&exportOutput, "output", "o", "",
		"Output filename (default: deciles_{run_id}.csv)")
	runsCmd.AddCommand(runsDiffCmd)
	runsCmd.AddCommand(runsArchiveCmd)
	runsArchiveCmd.Flags().StringVar(&archivePrefix, "prefix", "",
		"Object prefix in the bucket (default from config, else \"runs\")")
	runsArchiveCmd.Flags().BoolVar(&archiveAll, "all", false,
		"Archive every stored run instead of a single one")
	runsCmd.AddCommand(runsBrowseCmd)
	runsCmd.AddCommand(runsDeleteCmd)

	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVarP(&simInput, "input", "i", "",
		"Microdata CSV to score (default from config, else a synthetic sample)")
}
