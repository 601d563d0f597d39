// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/ShiftSim/pkg/records"
)

const baselineYAML = `
format_version: v1.0.0
start_year: 2013
inflation_rate: 0.02
standard_deduction:
  single: 6100
  joint: 12200
  separate: 6100
  head: 8950
  widow: 12200
personal_exemption: 3900
brackets:
  - rate: 0.10
    thresholds: {single: 0, joint: 0, separate: 0, head: 0, widow: 0}
  - rate: 0.25
    thresholds: {single: 36250, joint: 72500, separate: 36250, head: 48600, widow: 72500}
  - rate: 0.396
    thresholds: {single: 400000, joint: 450000, separate: 225000, head: 425000, widow: 450000}
passthrough_rate: 0.0
payroll:
  oasdi_rate: 0.062
  oasdi_wage_base: 113700
  hi_rate: 0.0145
  additional_hi_rate: 0.009
  additional_hi_threshold: {single: 200000, joint: 250000, separate: 125000, head: 200000, widow: 250000}
  seca_factor: 0.9235
`

const reformYAML = `
format_version: v1.0.0
first_year: 2017
passthrough_rate: 0.15
standard_deduction:
  single: 12000
  joint: 24000
  separate: 12000
  head: 18000
  widow: 24000
`

func TestParseBaseline(t *testing.T) {
	p, err := Parse([]byte(baselineYAML), "baseline.yaml")
	require.NoError(t, err)
	assert.Equal(t, 2013, p.StartYear())
	assert.Equal(t, 2013, p.CurrentYear())
	assert.Equal(t, 0, p.FirstReformYear())

	params := p.Params()
	assert.Equal(t, 12200.0, params.StandardDeduction.Joint)
	assert.Equal(t, 3900.0, params.PersonalExemption)
	require.Len(t, params.Brackets, 3)
	assert.Equal(t, 0.396, params.Brackets[2].Rate)
	assert.Equal(t, 113700.0, params.Payroll.OASDIWageBase)
	assert.Equal(t, 0.9235, params.Payroll.SECAFactor)
}

func TestParseRejectsBadFormat(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"missing version", "start_year: 2013\nbrackets: [{rate: 0.1}]"},
		{"invalid version", "format_version: one\nstart_year: 2013\nbrackets: [{rate: 0.1}]"},
		{"wrong major", "format_version: v2.0.0\nstart_year: 2013\nbrackets: [{rate: 0.1}]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml), "bad.yaml")
			assert.Error(t, err)
		})
	}
}

func TestParseRejectsMissingStartYear(t *testing.T) {
	_, err := Parse([]byte("format_version: v1.0.0\nbrackets: [{rate: 0.1}]"), "bad.yaml")
	assert.ErrorContains(t, err, "start_year")
}

func TestParseRejectsUnorderedBrackets(t *testing.T) {
	src := `
format_version: v1.0.0
start_year: 2013
brackets:
  - rate: 0.25
  - rate: 0.10
`
	_, err := Parse([]byte(src), "bad.yaml")
	assert.ErrorContains(t, err, "not ascending")
}

func TestForStatus(t *testing.T) {
	a := StatusAmount{Single: 1, Joint: 2, Separate: 3, Head: 4, Widow: 5}
	assert.Equal(t, 1.0, a.ForStatus(records.StatusSingle))
	assert.Equal(t, 2.0, a.ForStatus(records.StatusJoint))
	assert.Equal(t, 3.0, a.ForStatus(records.StatusSeparate))
	assert.Equal(t, 4.0, a.ForStatus(records.StatusHead))
	assert.Equal(t, 5.0, a.ForStatus(records.StatusWidow))
	// Out-of-range codes fall back to single.
	assert.Equal(t, 1.0, a.ForStatus(0))
}

func TestAdvanceToIndexesDollars(t *testing.T) {
	p, err := Parse([]byte(baselineYAML), "baseline.yaml")
	require.NoError(t, err)
	require.NoError(t, p.AdvanceTo(2015))

	params := p.Params()
	factor := 1.02 * 1.02
	assert.InDelta(t, 12200*factor, params.StandardDeduction.Joint, 1e-9)
	assert.InDelta(t, 3900*factor, params.PersonalExemption, 1e-9)
	assert.InDelta(t, 72500*factor, params.Brackets[1].Thresholds.Joint, 1e-9)
	assert.InDelta(t, 113700*factor, params.Payroll.OASDIWageBase, 1e-9)
	// The additional-HI threshold is unindexed.
	assert.Equal(t, 250000.0, params.Payroll.AdditionalHIThreshold.Joint)
	assert.Equal(t, 2015, p.CurrentYear())
}

func TestAdvanceToBackwardsFails(t *testing.T) {
	p, err := Parse([]byte(baselineYAML), "baseline.yaml")
	require.NoError(t, err)
	require.NoError(t, p.AdvanceTo(2016))
	assert.Error(t, p.AdvanceTo(2014))
}

func TestReformAppliesAtFirstYear(t *testing.T) {
	p, err := Parse([]byte(baselineYAML), "baseline.yaml")
	require.NoError(t, err)
	r, err := ParseReform([]byte(reformYAML), "reform.yaml")
	require.NoError(t, err)
	require.NoError(t, p.ApplyReform(r))
	assert.Equal(t, 2017, p.FirstReformYear())

	// Before the reform year the baseline values are still in force.
	require.NoError(t, p.AdvanceTo(2016))
	assert.Equal(t, 0.0, p.Params().PassthroughRate)

	require.NoError(t, p.AdvanceTo(2017))
	params := p.Params()
	assert.Equal(t, 0.15, params.PassthroughRate)
	assert.Equal(t, 24000.0, params.StandardDeduction.Joint)
	// Parameters the reform does not mention keep their indexed values.
	assert.InDelta(t, 3900*1.02*1.02*1.02*1.02, params.PersonalExemption, 1e-9)

	// After the reform year the replacement values index normally.
	require.NoError(t, p.AdvanceTo(2018))
	assert.InDelta(t, 24000*1.02, p.Params().StandardDeduction.Joint, 1e-9)
}

func TestApplyReformRejectsPastFirstYear(t *testing.T) {
	p, err := Parse([]byte(baselineYAML), "baseline.yaml")
	require.NoError(t, err)
	require.NoError(t, p.AdvanceTo(2018))

	r, err := ParseReform([]byte(reformYAML), "reform.yaml")
	require.NoError(t, err)
	assert.Error(t, p.ApplyReform(r))
	assert.Error(t, p.ApplyReform(nil))
}

func TestCloneIsolation(t *testing.T) {
	p, err := Parse([]byte(baselineYAML), "baseline.yaml")
	require.NoError(t, err)
	dup := p.Clone()
	require.NoError(t, dup.AdvanceTo(2020))

	assert.Equal(t, 2013, p.CurrentYear())
	assert.Equal(t, 12200.0, p.Params().StandardDeduction.Joint)
	assert.NotEqual(t, p.Params().StandardDeduction.Joint, dup.Params().StandardDeduction.Joint)
}

func TestParamsReturnsCopy(t *testing.T) {
	p, err := Parse([]byte(baselineYAML), "baseline.yaml")
	require.NoError(t, err)
	params := p.Params()
	params.Brackets[0].Rate = 0.99
	assert.Equal(t, 0.10, p.Params().Brackets[0].Rate)
}
