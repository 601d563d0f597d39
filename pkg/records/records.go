// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package records holds the in-memory columnar store of filing-unit
// microdata that the earnings-shifting transforms operate on.
//
// A RecordSet is one column slice per variable, aligned by row. The
// shifting stages mutate a set in place; each policy scenario therefore
// works on its own deep copy so that scenario outputs can be differenced
// column by column without aliasing surprises.
package records

import (
	"fmt"
)

// Filing-status codes, following the conventional MARS encoding.
const (
	StatusSingle   = 1
	StatusJoint    = 2
	StatusSeparate = 3
	StatusHead     = 4
	StatusWidow    = 5
)

// ShapeError reports misaligned column lengths or otherwise malformed
// row data. It is an invariant violation, not a user input problem:
// callers should treat it as fatal rather than retry.
type ShapeError struct {
	Column string
	Want   int
	Got    int
	Reason string
}

func (e *ShapeError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("records: column %s: %s", e.Column, e.Reason)
	}
	return fmt.Sprintf("records: column %s has %d rows, want %d", e.Column, e.Got, e.Want)
}

// RecordSet is a columnar table of filing units.
//
// # Description
//
// Input columns describe earnings composition per unit: total wages
// plus the primary/secondary split, aggregate pass-through income, the
// business sub-component contained within it, and the K1 self-employment
// share attributable to each filer. Scored columns are written by a tax
// engine and are read-only for the shifting stages.
//
// Invariants maintained by the transforms:
//   - WagePrimary + WageSecondary <= WageTotal componentwise at load time;
//     a shift moves value between wage and pass-through columns, it never
//     creates or destroys it.
//   - PassthroughDetail is contained within Passthrough, and the K1
//     columns within PassthroughDetail, in magnitude terms.
//
// # Thread Safety
//
// A RecordSet is not safe for concurrent mutation. Each scenario owns
// its copy exclusively while a transform or scoring pass runs.
type RecordSet struct {
	// RecordID is an optional per-unit identifier carried through from
	// the input file (zero when absent).
	RecordID []int

	// FilingStatus is the MARS code (1-5); 2 marks joint units, the only
	// status for which secondary-filer earnings are meaningful.
	FilingStatus []int

	// Weight is the sampling weight of each unit (>= 0).
	Weight []float64

	WageTotal     []float64
	WagePrimary   []float64
	WageSecondary []float64

	// Passthrough is aggregate pass-through (Schedule E style) income.
	Passthrough []float64
	// PassthroughDetail is the partnership/S-corp sub-component.
	PassthroughDetail []float64
	// K1Primary and K1Secondary are the self-employment shares of the
	// detail component attributable to each filer; they feed SECA.
	K1Primary   []float64
	K1Secondary []float64

	// OtherIncome is residual ordinary income used only by the engine.
	OtherIncome []float64

	// Scored columns, filled by an Engine. Zero until scoring runs.
	IncomeTax      []float64
	PayrollTax     []float64
	CombinedTax    []float64
	ExpandedIncome []float64
}

// New returns a zeroed RecordSet with n rows in every column.
func New(n int) *RecordSet {
	return &RecordSet{
		RecordID:          make([]int, n),
		FilingStatus:      make([]int, n),
		Weight:            make([]float64, n),
		WageTotal:         make([]float64, n),
		WagePrimary:       make([]float64, n),
		WageSecondary:     make([]float64, n),
		Passthrough:       make([]float64, n),
		PassthroughDetail: make([]float64, n),
		K1Primary:         make([]float64, n),
		K1Secondary:       make([]float64, n),
		OtherIncome:       make([]float64, n),
		IncomeTax:         make([]float64, n),
		PayrollTax:        make([]float64, n),
		CombinedTax:       make([]float64, n),
		ExpandedIncome:    make([]float64, n),
	}
}

// Len returns the row count.
func (rs *RecordSet) Len() int {
	return len(rs.Weight)
}

// Copy returns a deep copy sharing no storage with the receiver.
//
// Scenario pipelines depend on this: downstream differencing compares
// scenario columns element by element, so two scenarios must never
// alias the same backing arrays.
func (rs *RecordSet) Copy() *RecordSet {
	dup := &RecordSet{
		RecordID:          append([]int(nil), rs.RecordID...),
		FilingStatus:      append([]int(nil), rs.FilingStatus...),
		Weight:            append([]float64(nil), rs.Weight...),
		WageTotal:         append([]float64(nil), rs.WageTotal...),
		WagePrimary:       append([]float64(nil), rs.WagePrimary...),
		WageSecondary:     append([]float64(nil), rs.WageSecondary...),
		Passthrough:       append([]float64(nil), rs.Passthrough...),
		PassthroughDetail: append([]float64(nil), rs.PassthroughDetail...),
		K1Primary:         append([]float64(nil), rs.K1Primary...),
		K1Secondary:       append([]float64(nil), rs.K1Secondary...),
		OtherIncome:       append([]float64(nil), rs.OtherIncome...),
		IncomeTax:         append([]float64(nil), rs.IncomeTax...),
		PayrollTax:        append([]float64(nil), rs.PayrollTax...),
		CombinedTax:       append([]float64(nil), rs.CombinedTax...),
		ExpandedIncome:    append([]float64(nil), rs.ExpandedIncome...),
	}
	return dup
}

// Validate checks column alignment and weight sign.
//
// Outputs:
//
//	error - *ShapeError naming the first offending column, or nil.
func (rs *RecordSet) Validate() error {
	n := rs.Len()
	cols := []struct {
		name string
		got  int
	}{
		{"RECID", len(rs.RecordID)},
		{"MARS", len(rs.FilingStatus)},
		{"s006", len(rs.Weight)},
		{"e00200", len(rs.WageTotal)},
		{"e00200p", len(rs.WagePrimary)},
		{"e00200s", len(rs.WageSecondary)},
		{"e02000", len(rs.Passthrough)},
		{"e26270", len(rs.PassthroughDetail)},
		{"k1bx14p", len(rs.K1Primary)},
		{"k1bx14s", len(rs.K1Secondary)},
		{"e00300", len(rs.OtherIncome)},
		{"iitax", len(rs.IncomeTax)},
		{"payrolltax", len(rs.PayrollTax)},
		{"combined", len(rs.CombinedTax)},
		{"expanded_income", len(rs.ExpandedIncome)},
	}
	for _, c := range cols {
		if c.got != n {
			return &ShapeError{Column: c.name, Want: n, Got: c.got}
		}
	}
	for i, w := range rs.Weight {
		if w < 0 {
			return &ShapeError{
				Column: "s006",
				Want:   n,
				Got:    n,
				Reason: fmt.Sprintf("negative weight %g at row %d", w, i),
			}
		}
	}
	for i, m := range rs.FilingStatus {
		if m < StatusSingle || m > StatusWidow {
			return &ShapeError{
				Column: "MARS",
				Want:   n,
				Got:    n,
				Reason: fmt.Sprintf("filing status %d out of range at row %d", m, i),
			}
		}
	}
	return nil
}

// SameShape reports a ShapeError unless other has the same row count.
func (rs *RecordSet) SameShape(other *RecordSet, label string) error {
	if other.Len() != rs.Len() {
		return &ShapeError{Column: label, Want: rs.Len(), Got: other.Len()}
	}
	return nil
}
