// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package decile

import (
	"fmt"
	"io"
)

// Table titles.
const (
	TotalsTitle      = "Weighted Tax Totals by Expanded-Income Decile"
	DifferencesTitle = "Weighted Tax Differences by Expanded-Income Decile"
)

const (
	headerNames = "    Returns    ExpInc    IncTax    PayTax    AllTax"
	headerUnits = "       (#m)      ($b)      ($b)      ($b)      ($b)"
	rowFormat   = "%9.2f%10.2f%10.2f%10.2f%10.2f\n"
)

// Write renders the table under title. Counts print in millions, all
// dollar sums in billions, fixed two-decimal columns.
func (t *Table) Write(w io.Writer, title string) error {
	if _, err := fmt.Fprintf(w, "%s\n%s\n%s\n", title, headerNames, headerUnits); err != nil {
		return err
	}
	for d, row := range t.Deciles {
		if _, err := fmt.Fprintf(w, "%2d"+rowFormat,
			d, row.Returns*1e-6, row.ExpInc*1e-9, row.IncTax*1e-9, row.PayTax*1e-9, row.AllTax*1e-9); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, " A"+rowFormat,
		t.All.Returns*1e-6, t.All.ExpInc*1e-9, t.All.IncTax*1e-9, t.All.PayTax*1e-9, t.All.AllTax*1e-9)
	return err
}
