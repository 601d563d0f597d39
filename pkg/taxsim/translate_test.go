// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package taxsim

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineFormat(t *testing.T) {
	r := FromDump(DumpRecord{
		RecordID:         7,
		Year:             2017,
		IncomeTax:        1234.5,
		PayrollTax:       765,
		AGI:              50000,
		Exemptions:       4050,
		PreExemptions:    4050,
		TaxableIncome:    39650,
		RegularTax:       5700.25,
		AMTIncome:        46000,
		AMTLiability:     100,
		TaxBeforeCredits: 5800.25,
	})
	line := r.Line()

	want := "7. 2017 0 1234.50 0.00 765.00 0.00 0.00 0.00 50000.00 0.00 0.00" +
		" 0.00 4050.00 0.00 0.00 0.00 39650.00 5700.25 0.00 0.00 0.00 0.00" +
		" 0.00 0.00 46000.00 100.00 5700.25"
	assert.Equal(t, want, line)

	fields := strings.Fields(line)
	require.Len(t, fields, 28)
	assert.Equal(t, "7.", fields[0])
}

func TestFromDumpDerivedFields(t *testing.T) {
	r := FromDump(DumpRecord{
		Exemptions:       3000,
		PreExemptions:    4050,
		AMTLiability:     250,
		TaxBeforeCredits: 6000,
	})
	// Field 15 is the exemption amount phased out; field 28 backs the
	// AMT out of the gross pre-credit liability.
	assert.InDelta(t, 1050.0, r.ExemptionPhaseOut, 1e-9)
	assert.InDelta(t, 5750.0, r.TaxBeforeCredits, 1e-9)
	assert.InDelta(t, 250.0, r.AMTLiability, 1e-9)
}

func TestLineNegativeValues(t *testing.T) {
	r := Record{RecordID: 1, Year: 2016, IncomeTax: -12.3}
	assert.True(t, strings.HasPrefix(r.Line(), "1. 2016 0 -12.30 0.00"))
}

func TestTranslate(t *testing.T) {
	dump := strings.Join([]string{
		"RECID,FLPDYR,iitax,payrolltax,c00100,c05800,c09600",
		"1,2016,100.5,76.25,1000,120,20",
		"2,2016,-50,0,400,0,0",
	}, "\n") + "\n"

	var out strings.Builder
	require.NoError(t, Translate(strings.NewReader(dump), &out))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "1. 2016 0 100.50 0.00 76.25 0.00 0.00 0.00 1000.00 0.00 0.00"+
		" 0.00 0.00 0.00 0.00 0.00 0.00 0.00 0.00 0.00 0.00 0.00 0.00 0.00"+
		" 0.00 20.00 100.00", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "2. 2016 0 -50.00"))
}

func TestTranslateRequiresIDColumns(t *testing.T) {
	err := Translate(strings.NewReader("FLPDYR,iitax\n2016,1\n"), &strings.Builder{})
	assert.ErrorContains(t, err, "RECID")

	err = Translate(strings.NewReader("RECID,iitax\n1,1\n"), &strings.Builder{})
	assert.ErrorContains(t, err, "FLPDYR")
}

func TestTranslateFractionalIDs(t *testing.T) {
	dump := "RECID,FLPDYR\n3.0,2016.0\n"
	var out strings.Builder
	require.NoError(t, Translate(strings.NewReader(dump), &out))
	assert.True(t, strings.HasPrefix(out.String(), "3. 2016 0 "))
}

func TestTranslateBadNumber(t *testing.T) {
	dump := "RECID,FLPDYR,iitax\n1,2016,abc\n"
	err := Translate(strings.NewReader(dump), &strings.Builder{})
	assert.ErrorContains(t, err, "line 2")
	assert.ErrorContains(t, err, "iitax")
}
