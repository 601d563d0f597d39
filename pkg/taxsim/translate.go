// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package taxsim translates tax-engine dump output into the fixed
// 28-field TAXSIM results format. The emitted bytes must match the
// reference format exactly, so every field is named, positionally
// ordered, and printed with a fixed verb.
package taxsim

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// DumpRecord is one row of a tax-engine dump file, keyed by the
// engine's variable names. Fields the dump omits stay zero.
type DumpRecord struct {
	RecordID   int     // RECID
	Year       int     // FLPDYR
	IncomeTax  float64 // iitax
	PayrollTax float64 // payrolltax
	AGI        float64 // c00100
	UI         float64 // e02300
	TaxableSS  float64 // c02500
	Exemptions float64 // c04600
	// PreExemptions is the personal-exemption amount before the
	// phase-out (pre_c04600).
	PreExemptions     float64
	DeductionPhaseOut float64 // c21040
	ItemizedDeduction float64 // c04470
	TaxableIncome     float64 // c04800
	RegularTax        float64 // taxbc
	ChildTaxCredit    float64 // c07220
	RefundableCTC     float64 // c11070
	ChildCareCredit   float64 // c07180
	EITC              float64 // eitc
	AMTIncome         float64 // c62100
	AMTLiability      float64 // c09600
	TaxBeforeCredits  float64 // c05800
}

// Record is one 28-field TAXSIM results row. The struct fields are in
// output order; Line renders them.
type Record struct {
	RecordID            int     // 1: id with trailing point
	Year                int     // 2
	State               int     // 3: always 0, no state module
	IncomeTax           float64 // 4
	StateIncomeTax      float64 // 5
	PayrollTax          float64 // 6
	IncomeTaxMTR        float64 // 7
	StateTaxMTR         float64 // 8
	PayrollMTR          float64 // 9
	AGI                 float64 // 10
	UIInAGI             float64 // 11
	SocialSecurityInAGI float64 // 12
	ZeroBracketAmount   float64 // 13
	PersonalExemptions  float64 // 14
	ExemptionPhaseOut   float64 // 15
	DeductionPhaseOut   float64 // 16
	ItemizedDeductions  float64 // 17
	TaxableIncome       float64 // 18
	RegularTax          float64 // 19
	ExemptionSurtax     float64 // 20
	GeneralTaxCredit    float64 // 21
	ChildTaxCredit      float64 // 22
	RefundableChildCred float64 // 23
	ChildCareCredit     float64 // 24
	EITC                float64 // 25
	AMTIncome           float64 // 26
	AMTLiability        float64 // 27
	TaxBeforeCredits    float64 // 28
}

// FromDump maps dump variables onto the 28 output fields. Two fields
// are derived: the exemption phase-out is the pre-phase-out amount
// minus the allowed amount, and tax before credits has the AMT
// liability backed out because the reference format carries AMT
// separately in field 27.
func FromDump(d DumpRecord) Record {
	return Record{
		RecordID:            d.RecordID,
		Year:                d.Year,
		IncomeTax:           d.IncomeTax,
		PayrollTax:          d.PayrollTax,
		AGI:                 d.AGI,
		UIInAGI:             d.UI,
		SocialSecurityInAGI: d.TaxableSS,
		PersonalExemptions:  d.Exemptions,
		ExemptionPhaseOut:   d.PreExemptions - d.Exemptions,
		DeductionPhaseOut:   d.DeductionPhaseOut,
		ItemizedDeductions:  d.ItemizedDeduction,
		TaxableIncome:       d.TaxableIncome,
		RegularTax:          d.RegularTax,
		ChildTaxCredit:      d.ChildTaxCredit,
		RefundableChildCred: d.RefundableCTC,
		ChildCareCredit:     d.ChildCareCredit,
		EITC:                d.EITC,
		AMTIncome:           d.AMTIncome,
		AMTLiability:        d.AMTLiability,
		TaxBeforeCredits:    d.TaxBeforeCredits - d.AMTLiability,
	}
}

// Line renders the row: field 1 as an integer with a trailing decimal
// point, fields 2 and 3 as space-prefixed integers, fields 4 through
// 28 as space-prefixed two-decimal fixed point. No locale dependence.
func (r Record) Line() string {
	return fmt.Sprintf("%d. %d %d"+
		" %.2f %.2f %.2f %.2f %.2f %.2f %.2f %.2f %.2f %.2f %.2f %.2f %.2f"+
		" %.2f %.2f %.2f %.2f %.2f %.2f %.2f %.2f %.2f %.2f %.2f %.2f",
		r.RecordID, r.Year, r.State,
		r.IncomeTax, r.StateIncomeTax, r.PayrollTax,
		r.IncomeTaxMTR, r.StateTaxMTR, r.PayrollMTR,
		r.AGI, r.UIInAGI, r.SocialSecurityInAGI,
		r.ZeroBracketAmount, r.PersonalExemptions, r.ExemptionPhaseOut,
		r.DeductionPhaseOut, r.ItemizedDeductions, r.TaxableIncome,
		r.RegularTax, r.ExemptionSurtax, r.GeneralTaxCredit,
		r.ChildTaxCredit, r.RefundableChildCred, r.ChildCareCredit,
		r.EITC, r.AMTIncome, r.AMTLiability, r.TaxBeforeCredits)
}

// dumpColumns maps dump header names to setters on DumpRecord.
var dumpColumns = map[string]func(*DumpRecord, float64){
	"iitax":      func(d *DumpRecord, v float64) { d.IncomeTax = v },
	"payrolltax": func(d *DumpRecord, v float64) { d.PayrollTax = v },
	"c00100":     func(d *DumpRecord, v float64) { d.AGI = v },
	"e02300":     func(d *DumpRecord, v float64) { d.UI = v },
	"c02500":     func(d *DumpRecord, v float64) { d.TaxableSS = v },
	"c04600":     func(d *DumpRecord, v float64) { d.Exemptions = v },
	"pre_c04600": func(d *DumpRecord, v float64) { d.PreExemptions = v },
	"c21040":     func(d *DumpRecord, v float64) { d.DeductionPhaseOut = v },
	"c04470":     func(d *DumpRecord, v float64) { d.ItemizedDeduction = v },
	"c04800":     func(d *DumpRecord, v float64) { d.TaxableIncome = v },
	"taxbc":      func(d *DumpRecord, v float64) { d.RegularTax = v },
	"c07220":     func(d *DumpRecord, v float64) { d.ChildTaxCredit = v },
	"c11070":     func(d *DumpRecord, v float64) { d.RefundableCTC = v },
	"c07180":     func(d *DumpRecord, v float64) { d.ChildCareCredit = v },
	"eitc":       func(d *DumpRecord, v float64) { d.EITC = v },
	"c62100":     func(d *DumpRecord, v float64) { d.AMTIncome = v },
	"c09600":     func(d *DumpRecord, v float64) { d.AMTLiability = v },
	"c05800":     func(d *DumpRecord, v float64) { d.TaxBeforeCredits = v },
}

// Translate reads a dump CSV and writes one results line per row.
// RECID and FLPDYR are required; any other known column is optional
// and defaults to zero.
func Translate(r io.Reader, w io.Writer) error {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return fmt.Errorf("taxsim: read dump header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	idCol, ok := col["RECID"]
	if !ok {
		return fmt.Errorf("taxsim: dump file missing RECID column")
	}
	yearCol, ok := col["FLPDYR"]
	if !ok {
		return fmt.Errorf("taxsim: dump file missing FLPDYR column")
	}

	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("taxsim: read dump line %d: %w", line, err)
		}
		var d DumpRecord
		if d.RecordID, err = atoiField(row[idCol], "RECID", line); err != nil {
			return err
		}
		if d.Year, err = atoiField(row[yearCol], "FLPDYR", line); err != nil {
			return err
		}
		for name, set := range dumpColumns {
			idx, ok := col[name]
			if !ok {
				continue
			}
			v, err := strconv.ParseFloat(row[idx], 64)
			if err != nil {
				return fmt.Errorf("taxsim: dump line %d: column %s: %w", line, name, err)
			}
			set(&d, v)
		}
		if _, err := fmt.Fprintln(w, FromDump(d).Line()); err != nil {
			return fmt.Errorf("taxsim: write results line: %w", err)
		}
	}
	return nil
}

// atoiField parses integer ids that engines commonly dump with a
// fractional suffix (for example "1.0").
func atoiField(s, name string, line int) (int, error) {
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("taxsim: dump line %d: column %s: %w", line, name, err)
	}
	return int(f), nil
}
