// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package decile bins a scored population into ten equal-weight strata
// by expanded income and reports weighted tax aggregates per stratum.
package decile

import (
	"fmt"
	"math"
	"sort"

	"github.com/AleutianAI/ShiftSim/pkg/records"
)

// Bins is the number of strata.
const Bins = 10

// Row holds one stratum's weighted aggregates in raw units: Returns is
// a weight sum, the rest are weighted dollar sums.
type Row struct {
	Returns float64
	ExpInc  float64
	IncTax  float64
	PayTax  float64
	AllTax  float64
}

func (r *Row) add(weight float64, rs *records.RecordSet, i int) {
	r.Returns += weight
	r.ExpInc += weight * rs.ExpandedIncome[i]
	r.IncTax += weight * rs.IncomeTax[i]
	r.PayTax += weight * rs.PayrollTax[i]
	r.AllTax += weight * rs.CombinedTax[i]
}

// Table is a decile report: ten strata plus the ungrouped total.
type Table struct {
	Deciles [Bins]Row
	All     Row
}

// Build ranks rows by expanded income (stable, so ties keep input
// order) and assigns each to the decile its cumulative weight reaches.
// A row landing exactly on a boundary belongs to the lower decile. The
// All row is accumulated directly from the ungrouped population and
// checked against the decile sums to one part in a million.
func Build(rs *records.RecordSet) (*Table, error) {
	n := rs.Len()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return rs.ExpandedIncome[order[a]] < rs.ExpandedIncome[order[b]]
	})

	var totalWeight float64
	for i := 0; i < n; i++ {
		totalWeight += rs.Weight[i]
	}

	t := &Table{}
	var cum float64
	for _, i := range order {
		cum += rs.Weight[i]
		bin := 0
		if totalWeight > 0 {
			bin = int(math.Ceil(cum*Bins/totalWeight)) - 1
		}
		if bin < 0 {
			bin = 0
		} else if bin >= Bins {
			bin = Bins - 1
		}
		t.Deciles[bin].add(rs.Weight[i], rs, i)
	}
	for i := 0; i < n; i++ {
		t.All.add(rs.Weight[i], rs, i)
	}

	if err := t.reconcile(); err != nil {
		return nil, err
	}
	return t, nil
}

// reconcile verifies the decile sums reproduce the ungrouped totals.
func (t *Table) reconcile() error {
	var sum Row
	for _, d := range t.Deciles {
		sum.Returns += d.Returns
		sum.ExpInc += d.ExpInc
		sum.IncTax += d.IncTax
		sum.PayTax += d.PayTax
		sum.AllTax += d.AllTax
	}
	check := func(name string, got, want float64) error {
		scale := math.Max(math.Abs(want), 1)
		if math.Abs(got-want) > 1e-6*scale {
			return fmt.Errorf("decile: %s sum %g does not reconcile with total %g", name, got, want)
		}
		return nil
	}
	if err := check("returns", sum.Returns, t.All.Returns); err != nil {
		return err
	}
	if err := check("expinc", sum.ExpInc, t.All.ExpInc); err != nil {
		return err
	}
	if err := check("inctax", sum.IncTax, t.All.IncTax); err != nil {
		return err
	}
	if err := check("paytax", sum.PayTax, t.All.PayTax); err != nil {
		return err
	}
	return check("alltax", sum.AllTax, t.All.AllTax)
}

// Diff returns the difference table against base: tax columns are
// differenced, while Returns and ExpInc keep this table's own values
// so the reader sees the scenario's population alongside the changes.
func (t *Table) Diff(base *Table) *Table {
	out := &Table{}
	for i := range t.Deciles {
		out.Deciles[i] = diffRow(t.Deciles[i], base.Deciles[i])
	}
	out.All = diffRow(t.All, base.All)
	return out
}

func diffRow(a, b Row) Row {
	return Row{
		Returns: a.Returns,
		ExpInc:  a.ExpInc,
		IncTax:  a.IncTax - b.IncTax,
		PayTax:  a.PayTax - b.PayTax,
		AllTax:  a.AllTax - b.AllTax,
	}
}
