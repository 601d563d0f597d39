// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package records

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// Column names accepted in microdata CSV files. The earnings columns
// follow the conventional PUF variable naming so real extracts load
// without renaming.
var (
	requiredColumns = []string{
		"MARS", "s006", "e00200", "e00200p", "e00200s",
		"e02000", "e26270", "k1bx14p", "k1bx14s",
	}
	optionalColumns = []string{"RECID", "e00300"}
)

// LoadCSV reads microdata rows from r.
//
// # Description
//
// The first row must be a header containing at least the required
// earnings columns; RECID and e00300 are optional and default to zero.
// Unknown columns are ignored. A missing required column or an
// unparsable cell yields a *ShapeError.
//
// Outputs:
//
//	*RecordSet - Loaded and validated set.
//	error - Non-nil on malformed input.
func LoadCSV(r io.Reader) (*RecordSet, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read microdata header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			return nil, &ShapeError{Column: name, Reason: "required column missing from header"}
		}
	}

	getFloat := func(row []string, name string, rownum int) (float64, error) {
		idx, ok := col[name]
		if !ok || idx >= len(row) || row[idx] == "" {
			return 0, nil
		}
		v, err := strconv.ParseFloat(row[idx], 64)
		if err != nil {
			return 0, &ShapeError{
				Column: name,
				Reason: fmt.Sprintf("row %d: cannot parse %q as float", rownum, row[idx]),
			}
		}
		return v, nil
	}
	getInt := func(row []string, name string, rownum int) (int, error) {
		idx, ok := col[name]
		if !ok || idx >= len(row) || row[idx] == "" {
			return 0, nil
		}
		v, err := strconv.ParseFloat(row[idx], 64)
		if err != nil {
			return 0, &ShapeError{
				Column: name,
				Reason: fmt.Sprintf("row %d: cannot parse %q as int", rownum, row[idx]),
			}
		}
		return int(v), nil
	}

	rs := New(0)
	rownum := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read microdata row %d: %w", rownum+1, err)
		}
		rownum++

		recid, err := getInt(row, "RECID", rownum)
		if err != nil {
			return nil, err
		}
		mars, err := getInt(row, "MARS", rownum)
		if err != nil {
			return nil, err
		}
		floats := make(map[string]float64, 10)
		for _, name := range []string{
			"s006", "e00200", "e00200p", "e00200s",
			"e02000", "e26270", "k1bx14p", "k1bx14s", "e00300",
		} {
			v, err := getFloat(row, name, rownum)
			if err != nil {
				return nil, err
			}
			floats[name] = v
		}

		rs.RecordID = append(rs.RecordID, recid)
		rs.FilingStatus = append(rs.FilingStatus, mars)
		rs.Weight = append(rs.Weight, floats["s006"])
		rs.WageTotal = append(rs.WageTotal, floats["e00200"])
		rs.WagePrimary = append(rs.WagePrimary, floats["e00200p"])
		rs.WageSecondary = append(rs.WageSecondary, floats["e00200s"])
		rs.Passthrough = append(rs.Passthrough, floats["e02000"])
		rs.PassthroughDetail = append(rs.PassthroughDetail, floats["e26270"])
		rs.K1Primary = append(rs.K1Primary, floats["k1bx14p"])
		rs.K1Secondary = append(rs.K1Secondary, floats["k1bx14s"])
		rs.OtherIncome = append(rs.OtherIncome, floats["e00300"])
		rs.IncomeTax = append(rs.IncomeTax, 0)
		rs.PayrollTax = append(rs.PayrollTax, 0)
		rs.CombinedTax = append(rs.CombinedTax, 0)
		rs.ExpandedIncome = append(rs.ExpandedIncome, 0)
	}

	if err := rs.Validate(); err != nil {
		return nil, err
	}
	return rs, nil
}

// WriteCSV writes the set, including scored columns, to w.
func (rs *RecordSet) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := []string{
		"RECID", "MARS", "s006", "e00200", "e00200p", "e00200s",
		"e02000", "e26270", "k1bx14p", "k1bx14s", "e00300",
		"iitax", "payrolltax", "combined", "expanded_income",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write microdata header: %w", err)
	}

	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for i := 0; i < rs.Len(); i++ {
		row := []string{
			strconv.Itoa(rs.RecordID[i]),
			strconv.Itoa(rs.FilingStatus[i]),
			f(rs.Weight[i]),
			f(rs.WageTotal[i]),
			f(rs.WagePrimary[i]),
			f(rs.WageSecondary[i]),
			f(rs.Passthrough[i]),
			f(rs.PassthroughDetail[i]),
			f(rs.K1Primary[i]),
			f(rs.K1Secondary[i]),
			f(rs.OtherIncome[i]),
			f(rs.IncomeTax[i]),
			f(rs.PayrollTax[i]),
			f(rs.CombinedTax[i]),
			f(rs.ExpandedIncome[i]),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write microdata row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
