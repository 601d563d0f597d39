// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package calc

import (
	"context"
	"fmt"
	"math"

	"github.com/AleutianAI/ShiftSim/pkg/policy"
	"github.com/AleutianAI/ShiftSim/pkg/records"
)

// FormulaEngine is the reference Engine. It scores each return from
// the policy parameters alone: FICA on wages and SECA on net
// self-employment earnings (shared OASDI base, both employee and
// employer shares), an ordinary bracket schedule on taxable income,
// and an optional preferential flat rate on the active pass-through
// component. Expanded income is total market income.
type FormulaEngine struct{}

var _ Engine = (*FormulaEngine)(nil)

// NewFormulaEngine returns a stateless formula engine.
func NewFormulaEngine() *FormulaEngine { return &FormulaEngine{} }

// Score implements Engine.
func (e *FormulaEngine) Score(ctx context.Context, rs *records.RecordSet, pol *policy.Policy) error {
	if rs == nil {
		return fmt.Errorf("calc: nil record set")
	}
	if pol == nil {
		return fmt.Errorf("calc: nil policy")
	}
	params := pol.Params()
	for i := 0; i < rs.Len(); i++ {
		if i&0xfff == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("calc: scoring interrupted: %w", err)
			}
		}
		e.scoreReturn(rs, i, &params)
	}
	return nil
}

func (e *FormulaEngine) scoreReturn(rs *records.RecordSet, i int, params *policy.YearParams) {
	mars := rs.FilingStatus[i]
	pr := &params.Payroll

	seP := pr.SECAFactor * math.Max(0, rs.K1Primary[i])
	seS := pr.SECAFactor * math.Max(0, rs.K1Secondary[i])
	payrollP, halfSECAP := personPayroll(rs.WagePrimary[i], seP, pr)
	payrollS, halfSECAS := personPayroll(rs.WageSecondary[i], seS, pr)

	medicareBase := rs.WageTotal[i] + seP + seS - pr.AdditionalHIThreshold.ForStatus(mars)
	addMedicare := pr.AdditionalHIRate * math.Max(0, medicareBase)

	payroll := payrollP + payrollS + addMedicare
	halfSECA := halfSECAP + halfSECAS

	agi := rs.WageTotal[i] + rs.Passthrough[i] + rs.OtherIncome[i] - halfSECA
	exemptions := params.PersonalExemption
	if mars == records.StatusJoint {
		exemptions *= 2
	}
	taxable := math.Max(0, agi-params.StandardDeduction.ForStatus(mars)-exemptions)

	// The preferential rate reaches only the active pass-through
	// component that survives into taxable income.
	var ptBase float64
	if params.PassthroughRate > 0 {
		ptBase = math.Min(math.Max(0, rs.PassthroughDetail[i]), taxable)
	}
	incomeTax := bracketTax(taxable-ptBase, mars, params.Brackets) + params.PassthroughRate*ptBase

	rs.IncomeTax[i] = incomeTax
	rs.PayrollTax[i] = payroll
	rs.CombinedTax[i] = incomeTax + payroll
	rs.ExpandedIncome[i] = rs.WageTotal[i] + rs.Passthrough[i] + rs.OtherIncome[i]
}

// personPayroll scores one person's FICA on wages plus SECA on net
// self-employment earnings. Wages consume the OASDI base first; SECA
// OASDI applies only to the remainder. The second return value is the
// half-SECA AGI deduction.
func personPayroll(wage, se float64, pr *policy.Payroll) (float64, float64) {
	fica := 2*pr.OASDIRate*math.Min(wage, pr.OASDIWageBase) + 2*pr.HIRate*wage
	remainingBase := math.Max(0, pr.OASDIWageBase-wage)
	seca := 2*pr.OASDIRate*math.Min(se, remainingBase) + 2*pr.HIRate*se
	return fica + seca, 0.5 * seca
}

// bracketTax applies the ordinary schedule to taxable income. Brackets
// carry ascending lower thresholds; the last bracket is unbounded.
func bracketTax(taxable float64, mars int, brackets []policy.Bracket) float64 {
	if taxable <= 0 {
		return 0
	}
	var tax float64
	for bi, b := range brackets {
		lower := b.Thresholds.ForStatus(mars)
		if taxable <= lower {
			break
		}
		upper := taxable
		if bi+1 < len(brackets) {
			next := brackets[bi+1].Thresholds.ForStatus(mars)
			if next < upper {
				upper = next
			}
		}
		tax += b.Rate * (upper - lower)
	}
	return tax
}
