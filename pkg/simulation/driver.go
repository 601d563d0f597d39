// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/ShiftSim/pkg/calc"
	"github.com/AleutianAI/ShiftSim/pkg/decile"
	"github.com/AleutianAI/ShiftSim/pkg/policy"
	"github.com/AleutianAI/ShiftSim/pkg/records"
	"github.com/AleutianAI/ShiftSim/pkg/shift"
	"github.com/AleutianAI/ShiftSim/pkg/telemetry"
)

var runDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "shiftsim_run_duration_seconds",
		Help:    "Time to score the scenario set and build decile tables.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"status"},
)

// Driver runs the five-scenario analysis.
//
// # Description
// A run scores four full-population scenarios: current law, reform
// with no shifting, reform with a full primary-earner shift, and
// reform with a full shift of both earners. The two full-shift views
// price each earner's potential savings; the adoption model then picks
// shifters and a fifth, partially-shifted scenario is scored. Scenario
// scoring is independent, so the first four run concurrently.
//
// # Thread Safety
// A Driver is immutable after construction and safe for concurrent
// Run calls. Each Run copies the input record set per scenario and
// clones the policies, so callers may reuse the same input across
// concurrent runs.
type Driver struct {
	engine   calc.Engine
	baseline *policy.Policy
	reform   *policy.Reform
	logger   *slog.Logger
}

// Result carries everything a report or downstream sink needs from
// one run.
type Result struct {
	Params  Params
	Summary shift.Summary

	// Decile tables in report order: current law, reform without
	// shifting, reform under a full both-earner shift, reform under
	// the adopted partial shift.
	BaselineTable  *decile.Table
	NoShiftTable   *decile.Table
	FullShiftTable *decile.Table
	PartialTable   *decile.Table

	// Scored record sets for each scenario.
	Baseline    *records.RecordSet
	NoShift     *records.RecordSet
	FullPrimary *records.RecordSet
	FullBoth    *records.RecordSet
	Partial     *records.RecordSet
}

// NewDriver wires a driver. The reform is required: the analysis is
// defined as a comparison against reform law. A nil logger falls back
// to slog.Default.
func NewDriver(engine calc.Engine, baseline *policy.Policy, reform *policy.Reform, logger *slog.Logger) (*Driver, error) {
	if engine == nil {
		return nil, fmt.Errorf("simulation: nil engine")
	}
	if baseline == nil {
		return nil, fmt.Errorf("simulation: nil baseline policy")
	}
	if reform == nil {
		return nil, fmt.Errorf("simulation: nil reform")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{engine: engine, baseline: baseline, reform: reform, logger: logger}, nil
}

// FirstReformYear returns the first year of the driver's reform.
func (d *Driver) FirstReformYear() int { return d.reform.FirstYear }

// Run executes one analysis over input. Parameter problems surface as
// *ConfigError before any scoring; scenario misalignment surfaces as
// *records.ShapeError.
func (d *Driver) Run(ctx context.Context, input *records.RecordSet, p Params) (*Result, error) {
	start := time.Now()
	res, err := d.run(ctx, input, p)
	status := "ok"
	if err != nil {
		status = "error"
	}
	runDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	return res, err
}

func (d *Driver) run(ctx context.Context, input *records.RecordSet, p Params) (*Result, error) {
	ctx, span := telemetry.StartSpan(ctx, "shiftsim/simulation", "simulation.run",
		trace.WithAttributes(
			attribute.Int("tax.year", p.TaxYear),
			attribute.Float64("shift.prob", p.ShiftProb),
			attribute.Int("records.rows", input.Len()),
		))
	defer span.End()
	log := telemetry.LoggerWithTrace(ctx, d.logger)

	fail := func(err error) (*Result, error) {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if err := p.Validate(d.reform.FirstYear); err != nil {
		return fail(err)
	}
	if err := input.Validate(); err != nil {
		return fail(err)
	}
	log.InfoContext(ctx, "scoring scenario set",
		"tax_year", p.TaxYear, "rows", input.Len(), "shift_prob", p.ShiftProb)

	res := &Result{Params: p}
	g, gctx := errgroup.WithContext(ctx)
	score := func(name string, useReform bool, transform func(*records.RecordSet)) *records.RecordSet {
		rs := input.Copy()
		g.Go(func() error {
			pol := d.baseline.Clone()
			if useReform {
				if err := pol.ApplyReform(d.reform); err != nil {
					return err
				}
			}
			if err := pol.AdvanceTo(p.TaxYear); err != nil {
				return err
			}
			if transform != nil {
				transform(rs)
			}
			if err := d.engine.Score(gctx, rs, pol); err != nil {
				return fmt.Errorf("score %s: %w", name, err)
			}
			return nil
		})
		return rs
	}
	res.Baseline = score("current law", false, nil)
	res.NoShift = score("reform without shifting", true, nil)
	res.FullPrimary = score("reform full primary shift", true, func(rs *records.RecordSet) {
		shift.Full(rs, true)
	})
	res.FullBoth = score("reform full both-earner shift", true, func(rs *records.RecordSet) {
		shift.Full(rs, false)
	})
	if err := g.Wait(); err != nil {
		return fail(err)
	}

	urn := shift.NewUrn(shift.DefaultSeed)
	th := shift.Thresholds{MinEarnings: p.MinEarnings, MinSavings: p.MinSavings, Prob: p.ShiftProb}
	decision, err := shift.Decide(res.NoShift, res.FullPrimary, res.FullBoth, th, urn)
	if err != nil {
		return fail(err)
	}
	res.Summary = shift.Summarize(res.NoShift, decision)
	log.DebugContext(ctx, "adoption decided",
		"primary_shifters", res.Summary.PrimaryShifters,
		"spouse_shifters", res.Summary.SpouseShifters)

	res.Partial = input.Copy()
	if err := decision.Apply(res.Partial); err != nil {
		return fail(err)
	}
	pol := d.baseline.Clone()
	if err := pol.ApplyReform(d.reform); err != nil {
		return fail(err)
	}
	if err := pol.AdvanceTo(p.TaxYear); err != nil {
		return fail(err)
	}
	if err := d.engine.Score(ctx, res.Partial, pol); err != nil {
		return fail(fmt.Errorf("score reform partial shift: %w", err))
	}

	for _, tbl := range []struct {
		dst **decile.Table
		rs  *records.RecordSet
	}{
		{&res.BaselineTable, res.Baseline},
		{&res.NoShiftTable, res.NoShift},
		{&res.FullShiftTable, res.FullBoth},
		{&res.PartialTable, res.Partial},
	} {
		t, err := decile.Build(tbl.rs)
		if err != nil {
			return fail(err)
		}
		*tbl.dst = t
	}
	return res, nil
}
