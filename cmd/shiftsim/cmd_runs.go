// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/ShiftSim/pkg/decile"
	"github.com/AleutianAI/ShiftSim/pkg/gcs"
	"github.com/AleutianAI/ShiftSim/pkg/runstore"
	"github.com/AleutianAI/ShiftSim/pkg/simulation"
	"github.com/AleutianAI/ShiftSim/pkg/ux"
)

func runRunsList(cmd *cobra.Command, _ []string) error {
	store, err := openRunStore(slog.Default())
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		ux.Info("no stored runs")
		return nil
	}

	ux.Title(fmt.Sprintf("Stored runs (%d)", len(runs)))
	for _, rec := range runs {
		detail := fmt.Sprintf("%s  year=%d prob=%s rows=%d",
			time.Time(rec.CreatedAt).Format("2006-01-02 15:04"),
			rec.Params.TaxYear,
			simulation.FloatString(rec.Params.ShiftProb),
			rec.Rows)
		ux.RunStatus(rec.ID, ux.IconSuccess, detail)
	}
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	store, err := openRunStore(slog.Default())
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	// The stored report replays byte-for-byte.
	fmt.Print(rec.Report)
	return nil
}

func runRunsDelete(cmd *cobra.Command, args []string) error {
	store, err := openRunStore(slog.Default())
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	ux.Success("deleted run " + args[0])
	return nil
}

func runRunsExport(cmd *cobra.Command, args []string) error {
	runID := args[0]

	// Default filename
	defaultName := fmt.Sprintf("deciles_%s.csv", runID)
	var outputFile string
	if exportOutput == "" {
		outputFile = defaultName
	} else {
		// A directory argument gets the default name appended
		info, err := os.Stat(exportOutput)
		if err == nil && info.IsDir() {
			outputFile = filepath.Join(exportOutput, defaultName)
		} else {
			outputFile = exportOutput
		}
	}

	store, err := openRunStore(slog.Default())
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Get(cmd.Context(), runID)
	if err != nil {
		return err
	}

	f, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("create %s: %w", outputFile, err)
	}

	writer := csv.NewWriter(f)
	header := []string{"scenario", "decile", "returns", "expanded_income", "income_tax", "payroll_tax", "combined_tax"}
	if err := writer.Write(header); err != nil {
		_ = f.Close()
		return err
	}

	scenarios := []struct {
		name  string
		table *decile.Table
	}{
		{"baseline", rec.Baseline},
		{"no_shift", rec.NoShift},
		{"full_shift", rec.FullShift},
		{"partial", rec.Partial},
	}
	count := 0
	writeRow := func(scenario, bin string, row decile.Row) error {
		count++
		return writer.Write([]string{
			scenario,
			bin,
			fmt.Sprintf("%.2f", row.Returns),
			fmt.Sprintf("%.2f", row.ExpInc),
			fmt.Sprintf("%.2f", row.IncTax),
			fmt.Sprintf("%.2f", row.PayTax),
			fmt.Sprintf("%.2f", row.AllTax),
		})
	}
	for _, s := range scenarios {
		if s.table == nil {
			continue
		}
		for i, row := range s.table.Deciles {
			if err := writeRow(s.name, strconv.Itoa(i+1), row); err != nil {
				_ = f.Close()
				return err
			}
		}
		if err := writeRow(s.name, "ALL", s.table.All); err != nil {
			_ = f.Close()
			return err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", outputFile, err)
	}

	ux.Success(fmt.Sprintf("exported %d rows to %s", count, outputFile))
	return nil
}

func runRunsDiff(cmd *cobra.Command, args []string) error {
	store, err := openRunStore(slog.Default())
	if err != nil {
		return err
	}
	defer store.Close()

	a, err := store.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	b, err := store.Get(cmd.Context(), args[1])
	if err != nil {
		return err
	}

	// Line-mode diff keeps report rows intact instead of splitting
	// mid-number.
	dmp := diffmatchpatch.New()
	c1, c2, lines := dmp.DiffLinesToChars(a.Report, b.Report)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(c1, c2, false), lines)

	changed := 0
	var sb strings.Builder
	for _, d := range diffs {
		prefix := ""
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffEqual:
			continue
		}
		for _, line := range strings.Split(strings.TrimRight(d.Text, "\n"), "\n") {
			sb.WriteString(prefix)
			sb.WriteString(line)
			sb.WriteByte('\n')
			changed++
		}
	}

	if changed == 0 {
		ux.Info("reports are identical")
		return nil
	}
	fmt.Printf("--- %s\n+++ %s\n", a.ID, b.ID)
	fmt.Print(sb.String())
	ux.Muted(fmt.Sprintf("%s %d lines differ", ux.IconDelta, changed))
	return nil
}

func runRunsArchive(cmd *cobra.Command, args []string) error {
	if config.GCS.Bucket == "" || config.GCS.SAKeyPath == "" {
		return fmt.Errorf("archiving needs gcs.bucket and gcs.sa_key_path in %s", cfgFile)
	}
	if !archiveAll && len(args) == 0 {
		return fmt.Errorf("pass a run id or --all")
	}

	store, err := openRunStore(slog.Default())
	if err != nil {
		return err
	}
	defer store.Close()

	var recs []*runstore.RunRecord
	if archiveAll {
		recs, err = store.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			ux.Info("no stored runs")
			return nil
		}
	} else {
		rec, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		recs = []*runstore.RunRecord{rec}
	}

	client, err := gcs.NewClient(cmd.Context(), config.GCS.ProjectID, config.GCS.Bucket, expandHome(config.GCS.SAKeyPath))
	if err != nil {
		return err
	}
	defer client.Close()

	prefix := archivePrefix
	if prefix == "" {
		prefix = config.GCS.Prefix
	}
	if prefix == "" {
		prefix = "runs"
	}

	// A failed upload doesn't stop the batch; the summary and exit
	// code carry the failure.
	archived, failed := 0, 0
	for _, rec := range recs {
		objectPath, err := client.ArchiveRun(cmd.Context(), rec, prefix)
		if err != nil {
			failed++
			ux.RunStatus(rec.ID, ux.IconError, err.Error())
			continue
		}
		archived++
		ux.RunStatus(rec.ID, ux.IconSuccess, fmt.Sprintf("gs://%s/%s", config.GCS.Bucket, objectPath))
	}

	if archiveAll {
		ux.Summary(archived, failed, archived+failed)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, archived+failed)
	}
	return nil
}

func runRunsBrowse(cmd *cobra.Command, _ []string) error {
	store, err := openRunStore(slog.Default())
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		ux.Info("no stored runs")
		return nil
	}

	prog := tea.NewProgram(newBrowseModel(runs), tea.WithAltScreen())
	_, err = prog.Run()
	return err
}
