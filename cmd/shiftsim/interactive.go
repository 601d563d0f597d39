// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/AleutianAI/ShiftSim/pkg/simulation"
)

// promptParams walks the user through the four shifting parameters,
// seeded from whatever was already given on the command line. The form
// only checks that entries parse; range checks stay with the run so
// rejected values print the same message either way.
func promptParams(p *simulation.Params) error {
	year := strconv.Itoa(p.TaxYear)
	minEarnings := simulation.FloatString(p.MinEarnings)
	minSavings := simulation.FloatString(p.MinSavings)
	shiftProb := simulation.FloatString(p.ShiftProb)

	parseableInt := func(s string) error {
		if _, err := strconv.Atoi(strings.TrimSpace(s)); err != nil {
			return fmt.Errorf("enter a year, for example 2017")
		}
		return nil
	}
	parseableFloat := func(s string) error {
		if _, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return fmt.Errorf("enter a number")
		}
		return nil
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Tax year").
				Description("Calendar year taxes are computed for").
				Value(&year).
				Validate(parseableInt),
			huh.NewInput().
				Title("Minimum earnings").
				Description("Wage floor below which nobody shifts").
				Value(&minEarnings).
				Validate(parseableFloat),
			huh.NewInput().
				Title("Minimum savings").
				Description("Tax-savings floor below which nobody shifts").
				Value(&minSavings).
				Validate(parseableFloat),
			huh.NewInput().
				Title("Shift probability").
				Description("Adoption probability for those above both floors").
				Value(&shiftProb).
				Validate(parseableFloat),
		).Title("Earnings-shifting parameters"),
	)
	if err := form.Run(); err != nil {
		return err
	}

	p.TaxYear, _ = strconv.Atoi(strings.TrimSpace(year))
	p.MinEarnings, _ = strconv.ParseFloat(strings.TrimSpace(minEarnings), 64)
	p.MinSavings, _ = strconv.ParseFloat(strings.TrimSpace(minSavings), 64)
	p.ShiftProb, _ = strconv.ParseFloat(strings.TrimSpace(shiftProb), 64)
	return nil
}
