// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package simulation orchestrates the earnings-shifting analysis: it
// scores the scenario set under baseline and reform law, runs the
// adoption model, and assembles the comparison report.
package simulation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Default shifting parameters. The sentinel earnings and savings
// minimums keep everyone ineligible until the caller opts in.
const (
	DefaultMinEarnings = 9e99
	DefaultMinSavings  = 9e99
	DefaultShiftProb   = 0.0
)

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// ConfigError reports rejected run parameters. The text is the exact
// line the command prints to stderr before exiting nonzero.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return e.Msg }

// Params are the shifting-model knobs for one run.
type Params struct {
	// TaxYear is the calendar year taxes are computed for. It must not
	// precede the reform's first year.
	TaxYear int `json:"tax_year" validate:"gt=0"`

	// MinEarnings is the minimum individual annual earnings for
	// shifting to occur with probability ShiftProb.
	MinEarnings float64 `json:"min_earnings"`

	// MinSavings is the minimum individual combined-tax savings from
	// shifting for shifting to occur with probability ShiftProb.
	MinSavings float64 `json:"min_savings"`

	// ShiftProb is the probability of shifting for individuals at or
	// above both minimums; zero for everyone else.
	ShiftProb float64 `json:"shift_prob" validate:"gte=0,lte=1"`
}

// DefaultParams returns Params with the documented defaults and the
// given tax year.
func DefaultParams(year int) Params {
	return Params{
		TaxYear:     year,
		MinEarnings: DefaultMinEarnings,
		MinSavings:  DefaultMinSavings,
		ShiftProb:   DefaultShiftProb,
	}
}

// Validate checks the parameters against the reform's first year.
// Every failure is a *ConfigError whose message matches the report
// surface exactly.
func (p Params) Validate(firstReformYear int) error {
	if p.TaxYear < firstReformYear {
		return &ConfigError{Msg: fmt.Sprintf(
			"TAXYEAR=%d before first reform year %d", p.TaxYear, firstReformYear)}
	}
	if err := validate.Struct(p); err != nil {
		if p.ShiftProb < 0 || p.ShiftProb > 1 {
			return &ConfigError{Msg: fmt.Sprintf(
				"SHIFT_PROB=%s not in [0,1] range", FloatString(p.ShiftProb))}
		}
		return &ConfigError{Msg: err.Error()}
	}
	return nil
}

// EchoLine is the parameter line printed before and after every report.
func (p Params) EchoLine() string {
	return fmt.Sprintf("TAXYEAR,MIN_EARNINGS,MIN_SAVINGS,SHIFT_PROB= %d %s %s %s",
		p.TaxYear, FloatString(p.MinEarnings), FloatString(p.MinSavings), FloatString(p.ShiftProb))
}

// FloatString renders v in shortest round-trip notation, keeping a
// trailing .0 on integral values (0 prints as "0.0", 9e99 as "9e+99").
func FloatString(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") && !strings.ContainsAny(s, "IN") {
		s += ".0"
	}
	return s
}
