// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package calc defines the tax-scoring boundary used by the
// simulation driver and ships a formula-based reference engine.
package calc

import (
	"context"

	"github.com/AleutianAI/ShiftSim/pkg/policy"
	"github.com/AleutianAI/ShiftSim/pkg/records"
)

// Engine scores a record set under a policy's current-year parameters.
//
// # Description
// Score fills the tax output columns of rs (IncomeTax, PayrollTax,
// CombinedTax, ExpandedIncome) in place from the input columns and the
// parameters the policy currently describes. Callers advance the
// policy to the analysis year before scoring; how the engine turns
// parameters into liabilities is opaque to them.
//
// # Thread Safety
// Implementations must be safe for concurrent Score calls on distinct
// record sets. Two goroutines must not score the same record set.
type Engine interface {
	Score(ctx context.Context, rs *records.RecordSet, pol *policy.Policy) error
}
