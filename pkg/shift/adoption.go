// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package shift

import (
	"fmt"
	"math/rand/v2"

	"github.com/AleutianAI/ShiftSim/pkg/records"
)

// DefaultSeed seeds the adoption stream. Fixed so that runs with equal
// inputs reproduce identical adoption decisions.
const DefaultSeed uint64 = 123456

// Thresholds gate who may adopt shifting and with what probability.
type Thresholds struct {
	MinEarnings float64
	MinSavings  float64
	Prob        float64
}

// Urn draws uniform random numbers from one seeded PCG stream. A
// single Urn serves both decision passes so the second pass continues
// the stream rather than restarting it.
type Urn struct {
	rng *rand.Rand
}

// NewUrn returns an Urn seeded with seed.
func NewUrn(seed uint64) *Urn {
	return &Urn{rng: rand.New(rand.NewPCG(seed, seed))}
}

// Draw returns n uniform draws in [0, 1).
func (u *Urn) Draw(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = u.rng.Float64()
	}
	return out
}

// Decision records which rows adopt shifting for each earner role.
type Decision struct {
	PrimaryAdopt []bool
	SpouseAdopt  []bool
}

// Decide runs the two-pass adoption model. The primary pass compares
// combined tax with no shifting against a full primary-only shift; the
// spouse pass compares the primary-only shift against a full shift of
// both earners. Earnings gates use the unshifted wage columns. Both
// passes draw for the full population so the stream consumed is
// independent of the threshold settings; a draw must be strictly below
// the row's probability to adopt.
func Decide(noShift, fullPrimary, fullBoth *records.RecordSet, th Thresholds, urn *Urn) (*Decision, error) {
	if err := noShift.SameShape(fullPrimary, "full primary shift"); err != nil {
		return nil, err
	}
	if err := noShift.SameShape(fullBoth, "full both shift"); err != nil {
		return nil, err
	}
	n := noShift.Len()

	savingsP := make([]float64, n)
	for i := 0; i < n; i++ {
		savingsP[i] = noShift.CombinedTax[i] - fullPrimary.CombinedTax[i]
	}
	probP := Probabilities(noShift.WagePrimary, savingsP, th.MinEarnings, th.MinSavings, th.Prob)
	drawsP := urn.Draw(n)

	savingsS := make([]float64, n)
	for i := 0; i < n; i++ {
		savingsS[i] = fullPrimary.CombinedTax[i] - fullBoth.CombinedTax[i]
	}
	probS := Probabilities(noShift.WageSecondary, savingsS, th.MinEarnings, th.MinSavings, th.Prob)
	drawsS := urn.Draw(n)

	d := &Decision{
		PrimaryAdopt: make([]bool, n),
		SpouseAdopt:  make([]bool, n),
	}
	for i := 0; i < n; i++ {
		d.PrimaryAdopt[i] = drawsP[i] < probP[i]
		d.SpouseAdopt[i] = drawsS[i] < probS[i]
	}
	return d, nil
}

// Apply shifts earnings on the rows the decision marked, leaving all
// other rows untouched.
func (d *Decision) Apply(rs *records.RecordSet) error {
	if rs.Len() != len(d.PrimaryAdopt) {
		return fmt.Errorf("shift: decision covers %d rows, record set has %d", len(d.PrimaryAdopt), rs.Len())
	}
	for i := 0; i < rs.Len(); i++ {
		if d.PrimaryAdopt[i] {
			ShiftPrimary(rs, i)
		}
		if d.SpouseAdopt[i] {
			ShiftSpouse(rs, i)
		}
	}
	return nil
}

// Summary holds weighted adopter counts and shifted wage amounts in
// raw units. Counts are return weights; amounts are weighted wages.
type Summary struct {
	PrimaryShifters float64
	PrimaryAmount   float64
	SpouseShifters  float64
	SpouseAmount    float64
}

// Summarize tallies a decision against the unshifted record set the
// decision was made from.
func Summarize(base *records.RecordSet, d *Decision) Summary {
	var s Summary
	for i := 0; i < base.Len(); i++ {
		if d.PrimaryAdopt[i] {
			s.PrimaryShifters += base.Weight[i]
			s.PrimaryAmount += base.Weight[i] * base.WagePrimary[i]
		}
		if d.SpouseAdopt[i] {
			s.SpouseShifters += base.Weight[i]
			s.SpouseAmount += base.Weight[i] * base.WageSecondary[i]
		}
	}
	return s
}
