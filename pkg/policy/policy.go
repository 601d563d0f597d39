// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package policy loads tax-law parameter files and advances them year
// by year. A Policy starts from the values in a baseline YAML file and
// optionally carries a Reform whose overrides replace parameters when
// the policy reaches the reform's first year. A tax engine reads the
// current-year parameters through Params().
package policy

import (
	"fmt"
	"os"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/ShiftSim/pkg/records"
)

// SupportedFormat is the parameter-file format major version this
// build understands.
const SupportedFormat = "v1"

// StatusAmount holds one dollar amount per filing status.
type StatusAmount struct {
	Single   float64 `yaml:"single"`
	Joint    float64 `yaml:"joint"`
	Separate float64 `yaml:"separate"`
	Head     float64 `yaml:"head"`
	Widow    float64 `yaml:"widow"`
}

// ForStatus returns the amount for a MARS filing-status code.
func (a StatusAmount) ForStatus(mars int) float64 {
	switch mars {
	case records.StatusJoint:
		return a.Joint
	case records.StatusSeparate:
		return a.Separate
	case records.StatusHead:
		return a.Head
	case records.StatusWidow:
		return a.Widow
	default:
		return a.Single
	}
}

func (a StatusAmount) scaled(factor float64) StatusAmount {
	return StatusAmount{
		Single:   a.Single * factor,
		Joint:    a.Joint * factor,
		Separate: a.Separate * factor,
		Head:     a.Head * factor,
		Widow:    a.Widow * factor,
	}
}

// Bracket is one ordinary-rate bracket. Thresholds are the lower bound
// of the bracket per filing status; brackets must be listed in
// ascending rate and threshold order.
type Bracket struct {
	Rate       float64      `yaml:"rate"`
	Thresholds StatusAmount `yaml:"thresholds"`
}

// Payroll holds the payroll-tax parameters. The additional-HI threshold
// is statutorily unindexed and stays fixed across years; the OASDI wage
// base is wage-indexed and moves with the inflation rate here.
type Payroll struct {
	OASDIRate             float64      `yaml:"oasdi_rate"`
	OASDIWageBase         float64      `yaml:"oasdi_wage_base"`
	HIRate                float64      `yaml:"hi_rate"`
	AdditionalHIRate      float64      `yaml:"additional_hi_rate"`
	AdditionalHIThreshold StatusAmount `yaml:"additional_hi_threshold"`
	SECAFactor            float64      `yaml:"seca_factor"`
}

// YearParams are the law parameters in force for one calendar year.
type YearParams struct {
	StandardDeduction StatusAmount `yaml:"standard_deduction"`
	PersonalExemption float64      `yaml:"personal_exemption"`
	Brackets          []Bracket    `yaml:"brackets"`

	// PassthroughRate is the preferential flat rate applied to the
	// positive pass-through business component of taxable income.
	// Zero disables the carve-out and pass-through income is taxed at
	// ordinary rates.
	PassthroughRate float64 `yaml:"passthrough_rate"`

	Payroll Payroll `yaml:"payroll"`
}

type policyFile struct {
	FormatVersion string     `yaml:"format_version"`
	StartYear     int        `yaml:"start_year"`
	InflationRate float64    `yaml:"inflation_rate"`
	Params        YearParams `yaml:",inline"`
}

// Reform is a set of parameter overrides taking effect in FirstYear.
// Dollar values are stated in FirstYear terms; they replace the indexed
// baseline values when the policy reaches that year and are indexed
// normally afterwards. Nil fields leave the baseline parameter alone.
type Reform struct {
	FormatVersion     string        `yaml:"format_version"`
	FirstYear         int           `yaml:"first_year"`
	StandardDeduction *StatusAmount `yaml:"standard_deduction"`
	PersonalExemption *float64      `yaml:"personal_exemption"`
	Brackets          []Bracket     `yaml:"brackets"`
	PassthroughRate   *float64      `yaml:"passthrough_rate"`
}

// Policy carries the law parameters for the current year plus the
// machinery to advance them. Not safe for concurrent mutation; each
// scenario clones its own Policy.
type Policy struct {
	startYear   int
	currentYear int
	inflation   float64
	params      YearParams
	reform      *Reform
}

// checkFormat rejects parameter files whose format major version this
// build does not understand.
func checkFormat(version, path string) error {
	if version == "" {
		return fmt.Errorf("parameter file %s: missing format_version", path)
	}
	if !semver.IsValid(version) {
		return fmt.Errorf("parameter file %s: invalid format_version %q", path, version)
	}
	if semver.Major(version) != SupportedFormat {
		return fmt.Errorf("parameter file %s: format_version %s not supported (want %s.x)",
			path, version, SupportedFormat)
	}
	return nil
}

// Parse builds a Policy from baseline parameter YAML.
func Parse(data []byte, path string) (*Policy, error) {
	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse parameter file %s: %w", path, err)
	}
	if err := checkFormat(pf.FormatVersion, path); err != nil {
		return nil, err
	}
	if pf.StartYear <= 0 {
		return nil, fmt.Errorf("parameter file %s: missing or invalid start_year", path)
	}
	if len(pf.Params.Brackets) == 0 {
		return nil, fmt.Errorf("parameter file %s: no brackets defined", path)
	}
	for i := 1; i < len(pf.Params.Brackets); i++ {
		if pf.Params.Brackets[i].Rate < pf.Params.Brackets[i-1].Rate {
			return nil, fmt.Errorf("parameter file %s: bracket rates not ascending at index %d", path, i)
		}
	}
	return &Policy{
		startYear:   pf.StartYear,
		currentYear: pf.StartYear,
		inflation:   pf.InflationRate,
		params:      pf.Params,
	}, nil
}

// Load reads a baseline parameter file from disk.
func Load(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read parameter file %s: %w", path, err)
	}
	return Parse(data, path)
}

// ParseReform builds a Reform from override YAML.
func ParseReform(data []byte, path string) (*Reform, error) {
	var r Reform
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse reform file %s: %w", path, err)
	}
	if err := checkFormat(r.FormatVersion, path); err != nil {
		return nil, err
	}
	if r.FirstYear <= 0 {
		return nil, fmt.Errorf("reform file %s: missing or invalid first_year", path)
	}
	return &r, nil
}

// LoadReform reads a reform file from disk.
func LoadReform(path string) (*Reform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reform file %s: %w", path, err)
	}
	return ParseReform(data, path)
}

// Clone returns an independent copy of the policy, including any
// attached reform.
func (p *Policy) Clone() *Policy {
	dup := *p
	dup.params.Brackets = append([]Bracket(nil), p.params.Brackets...)
	return &dup
}

// ApplyReform attaches reform overrides. The overrides take effect when
// AdvanceTo crosses the reform's first year. A reform whose first year
// has already passed is rejected.
func (p *Policy) ApplyReform(r *Reform) error {
	if r == nil {
		return fmt.Errorf("policy: nil reform")
	}
	if r.FirstYear <= p.currentYear {
		return fmt.Errorf("policy: reform first year %d is not after current year %d",
			r.FirstYear, p.currentYear)
	}
	p.reform = r
	return nil
}

// StartYear returns the first year of the baseline parameters.
func (p *Policy) StartYear() int { return p.startYear }

// CurrentYear returns the year the parameters currently describe.
func (p *Policy) CurrentYear() int { return p.currentYear }

// FirstReformYear returns the attached reform's first year, or 0 when
// no reform is attached.
func (p *Policy) FirstReformYear() int {
	if p.reform == nil {
		return 0
	}
	return p.reform.FirstYear
}

// Params returns a copy of the current-year parameters.
func (p *Policy) Params() YearParams {
	out := p.params
	out.Brackets = append([]Bracket(nil), p.params.Brackets...)
	return out
}

// AdvanceTo steps the parameters forward to year, indexing dollar
// amounts annually and applying the attached reform when its first
// year is reached. Advancing backwards is an error.
func (p *Policy) AdvanceTo(year int) error {
	if year < p.currentYear {
		return fmt.Errorf("policy: cannot advance from %d back to %d", p.currentYear, year)
	}
	for y := p.currentYear + 1; y <= year; y++ {
		p.indexOneYear()
		if p.reform != nil && y == p.reform.FirstYear {
			p.applyOverrides(p.reform)
		}
	}
	p.currentYear = year
	return nil
}

func (p *Policy) indexOneYear() {
	factor := 1 + p.inflation
	p.params.StandardDeduction = p.params.StandardDeduction.scaled(factor)
	p.params.PersonalExemption *= factor
	brackets := make([]Bracket, len(p.params.Brackets))
	for i, b := range p.params.Brackets {
		brackets[i] = Bracket{Rate: b.Rate, Thresholds: b.Thresholds.scaled(factor)}
	}
	p.params.Brackets = brackets
	p.params.Payroll.OASDIWageBase *= factor
}

func (p *Policy) applyOverrides(r *Reform) {
	if r.StandardDeduction != nil {
		p.params.StandardDeduction = *r.StandardDeduction
	}
	if r.PersonalExemption != nil {
		p.params.PersonalExemption = *r.PersonalExemption
	}
	if len(r.Brackets) > 0 {
		p.params.Brackets = append([]Bracket(nil), r.Brackets...)
	}
	if r.PassthroughRate != nil {
		p.params.PassthroughRate = *r.PassthroughRate
	}
}
