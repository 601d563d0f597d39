// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package simulation

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ShiftSim/pkg/calc"
	"github.com/AleutianAI/ShiftSim/pkg/decile"
	"github.com/AleutianAI/ShiftSim/pkg/policy"
	"github.com/AleutianAI/ShiftSim/pkg/records"
)

const lawYAML = `
format_version: v1.0.0
start_year: 2013
inflation_rate: 0.0
standard_deduction:
  single: 10000
  joint: 20000
  separate: 10000
  head: 15000
  widow: 20000
personal_exemption: 4000
brackets:
  - rate: 0.10
    thresholds: {single: 0, joint: 0, separate: 0, head: 0, widow: 0}
  - rate: 0.25
    thresholds: {single: 50000, joint: 100000, separate: 50000, head: 75000, widow: 100000}
  - rate: 0.40
    thresholds: {single: 200000, joint: 400000, separate: 200000, head: 300000, widow: 400000}
passthrough_rate: 0.0
payroll:
  oasdi_rate: 0.062
  oasdi_wage_base: 120000
  hi_rate: 0.0145
  additional_hi_rate: 0.009
  additional_hi_threshold: {single: 200000, joint: 250000, separate: 125000, head: 200000, widow: 250000}
  seca_factor: 0.9235
`

const reformOverlayYAML = `
format_version: v1.0.0
first_year: 2017
passthrough_rate: 0.15
`

// countingEngine counts Score calls around the formula engine.
type countingEngine struct {
	inner calc.Engine
	calls atomic.Int32
}

func (c *countingEngine) Score(ctx context.Context, rs *records.RecordSet, pol *policy.Policy) error {
	c.calls.Add(1)
	return c.inner.Score(ctx, rs, pol)
}

func testDriver(t *testing.T) (*Driver, *countingEngine) {
	t.Helper()
	baseline, err := policy.Parse([]byte(lawYAML), "law.yaml")
	require.NoError(t, err)
	reform, err := policy.ParseReform([]byte(reformOverlayYAML), "reform.yaml")
	require.NoError(t, err)
	eng := &countingEngine{inner: calc.NewFormulaEngine()}
	d, err := NewDriver(eng, baseline, reform, nil)
	require.NoError(t, err)
	return d, eng
}

func TestRunRejectsEarlyYear(t *testing.T) {
	d, eng := testDriver(t)
	_, err := d.Run(context.Background(), records.Synthetic(10, 1), DefaultParams(2016))

	var cfg *ConfigError
	require.ErrorAs(t, err, &cfg)
	assert.Equal(t, "TAXYEAR=2016 before first reform year 2017", cfg.Msg)
	assert.Zero(t, eng.calls.Load(), "no scoring before validation passes")
}

func TestRunRejectsBadProbability(t *testing.T) {
	d, _ := testDriver(t)
	p := DefaultParams(2017)
	p.ShiftProb = 1.2
	_, err := d.Run(context.Background(), records.Synthetic(10, 1), p)

	var cfg *ConfigError
	require.ErrorAs(t, err, &cfg)
	assert.Equal(t, "SHIFT_PROB=1.2 not in [0,1] range", cfg.Msg)
}

func TestRunZeroProbabilityMatchesNoShift(t *testing.T) {
	d, eng := testDriver(t)
	res, err := d.Run(context.Background(), records.Synthetic(200, 42), DefaultParams(2017))
	require.NoError(t, err)

	// Five scenario scorings per run.
	assert.Equal(t, int32(5), eng.calls.Load())
	// Nobody adopts, so the partial scenario is the no-shift scenario.
	assert.Equal(t, res.NoShiftTable, res.PartialTable)
	assert.Zero(t, res.Summary.PrimaryShifters)
	assert.Zero(t, res.Summary.SpouseAmount)
}

func TestRunCertainAdoptionMatchesFullShift(t *testing.T) {
	d, _ := testDriver(t)
	p := Params{TaxYear: 2017, MinEarnings: 0, MinSavings: -9e99, ShiftProb: 1}
	res, err := d.Run(context.Background(), records.Synthetic(200, 42), p)
	require.NoError(t, err)

	// Everyone adopts both shifts, so partial equals the full
	// both-earner scenario.
	assert.Equal(t, res.FullShiftTable, res.PartialTable)
	assert.Equal(t, res.NoShiftTable.All.Returns, res.PartialTable.All.Returns)
}

func TestRunDeterminism(t *testing.T) {
	d, _ := testDriver(t)
	p := Params{TaxYear: 2017, MinEarnings: 40000, MinSavings: 1, ShiftProb: 0.5}
	input := records.Synthetic(300, 7)

	first, err := d.Run(context.Background(), input, p)
	require.NoError(t, err)
	second, err := d.Run(context.Background(), input, p)
	require.NoError(t, err)

	assert.Equal(t, first.Summary, second.Summary)
	r1, err := Report(first)
	require.NoError(t, err)
	r2, err := Report(second)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}

func TestRunThreeRowScenario(t *testing.T) {
	// One clearly eligible high earner, one below the earnings gate,
	// one with no wages at all.
	rs := records.New(3)
	wages := []float64{500000, 30000, 0}
	for i := 0; i < 3; i++ {
		rs.RecordID[i] = i + 1
		rs.FilingStatus[i] = records.StatusSingle
		rs.Weight[i] = 1
		rs.WagePrimary[i] = wages[i]
		rs.WageTotal[i] = wages[i]
	}

	d, _ := testDriver(t)
	p := Params{TaxYear: 2017, MinEarnings: 40000, MinSavings: 0, ShiftProb: 0.5}
	first, err := d.Run(context.Background(), rs, p)
	require.NoError(t, err)

	// Rows below the gate can never shift, so the only possible
	// outcomes are zero or exactly the high earner.
	assert.Contains(t, []float64{0, 1}, first.Summary.PrimaryShifters)
	assert.Equal(t, first.Summary.PrimaryShifters*500000, first.Summary.PrimaryAmount)
	assert.Zero(t, first.Summary.SpouseShifters)

	second, err := d.Run(context.Background(), rs, p)
	require.NoError(t, err)
	assert.Equal(t, first.Summary, second.Summary)
}

func TestRunCancelledContext(t *testing.T) {
	d, _ := testDriver(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.Run(ctx, records.Synthetic(50, 3), DefaultParams(2017))
	assert.Error(t, err)
}

func TestWriteReportLayout(t *testing.T) {
	d, _ := testDriver(t)
	res, err := d.Run(context.Background(), records.Synthetic(200, 42), DefaultParams(2017))
	require.NoError(t, err)

	report, err := Report(res)
	require.NoError(t, err)

	echo := "TAXYEAR,MIN_EARNINGS,MIN_SAVINGS,SHIFT_PROB= 2017 9e+99 9e+99 0.0"
	assert.True(t, strings.HasPrefix(report, echo+"\n\n==> CALC1 in 2017:\n"))
	assert.True(t, strings.HasSuffix(report, "\n"+echo+"\n"))

	sections := []string{
		"==> CALC1 in 2017:",
		"\n==> CALC2 vs CALC1 in 2017:",
		"\n==> CALC3 vs CALC2 in 2017:",
		"\n==> CALC4 in 2017 number of taxpayer shifters (#m): 0.000",
		"==> CALC4 in 2017 taxpayer earnings shifted ($b): 0.000",
		"==> CALC4 in 2017 number of   spouse shifters (#m): 0.000",
		"==> CALC4 in 2017   spouse earnings shifted ($b): 0.000",
		"\n==> CALC4 vs CALC2 in 2017:",
		"\n==> CALC4 vs CALC1 in 2017:",
	}
	last := -1
	for _, s := range sections {
		idx := strings.Index(report, s)
		require.GreaterOrEqual(t, idx, 0, "missing section %q", s)
		assert.Greater(t, idx, last, "section %q out of order", s)
		last = idx
	}

	assert.Equal(t, 5, strings.Count(report, decile.TotalsTitle))
	assert.Equal(t, 4, strings.Count(report, decile.DifferencesTitle))
}
