// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package simulation

import (
	"fmt"
	"io"
	"strings"

	"github.com/AleutianAI/ShiftSim/pkg/decile"
)

// reportWriter carries the first write error so section code stays
// linear.
type reportWriter struct {
	w   io.Writer
	err error
}

func (rw *reportWriter) printf(format string, args ...any) {
	if rw.err != nil {
		return
	}
	_, rw.err = fmt.Fprintf(rw.w, format, args...)
}

// tables writes the totals table for t and, when base is non-nil, the
// differences table against it.
func (rw *reportWriter) tables(t, base *decile.Table) {
	if rw.err != nil {
		return
	}
	if rw.err = t.Write(rw.w, decile.TotalsTitle); rw.err != nil {
		return
	}
	if base != nil {
		rw.err = t.Diff(base).Write(rw.w, decile.DifferencesTitle)
	}
}

// WriteReport renders the comparison report for one run: the echo
// line, the CALC1 through CALC4 sections with their decile tables, the
// shifter tallies, and the closing echo line. Section labels, spacing,
// and number formats are fixed.
func WriteReport(w io.Writer, res *Result) error {
	year := res.Params.TaxYear
	rw := &reportWriter{w: w}

	rw.printf("%s\n\n", res.Params.EchoLine())

	rw.printf("==> CALC1 in %d:\n", year)
	rw.tables(res.BaselineTable, nil)

	rw.printf("\n==> CALC2 vs CALC1 in %d:\n", year)
	rw.tables(res.NoShiftTable, res.BaselineTable)

	rw.printf("\n==> CALC3 vs CALC2 in %d:\n", year)
	rw.tables(res.FullShiftTable, res.NoShiftTable)

	rw.printf("\n")
	rw.printf("==> CALC4 in %d number of taxpayer shifters (#m): %.3f\n",
		year, res.Summary.PrimaryShifters*1e-6)
	rw.printf("==> CALC4 in %d taxpayer earnings shifted ($b): %.3f\n",
		year, res.Summary.PrimaryAmount*1e-9)
	rw.printf("==> CALC4 in %d number of   spouse shifters (#m): %.3f\n",
		year, res.Summary.SpouseShifters*1e-6)
	rw.printf("==> CALC4 in %d   spouse earnings shifted ($b): %.3f\n",
		year, res.Summary.SpouseAmount*1e-9)

	rw.printf("\n==> CALC4 vs CALC2 in %d:\n", year)
	rw.tables(res.PartialTable, res.NoShiftTable)

	rw.printf("\n==> CALC4 vs CALC1 in %d:\n", year)
	rw.tables(res.PartialTable, res.BaselineTable)

	rw.printf("\n%s\n", res.Params.EchoLine())
	return rw.err
}

// Report renders the report to a string.
func Report(res *Result) (string, error) {
	var sb strings.Builder
	if err := WriteReport(&sb, res); err != nil {
		return "", err
	}
	return sb.String(), nil
}
