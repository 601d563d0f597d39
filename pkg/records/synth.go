// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package records

import (
	"math"
	"math/rand/v2"
)

// Synthetic builds a deterministic n-row sample for demos and tests.
//
// Wages are lognormal, roughly calibrated so the top deciles sit in the
// upper ordinary brackets. About half the units are joint; only joint
// units carry secondary wages. A minority of units carry pre-existing
// pass-through income with the detail and K1 containment invariants
// already satisfied. The same seed always yields the same sample.
func Synthetic(n int, seed uint64) *RecordSet {
	rng := rand.New(rand.NewPCG(seed, seed))
	rs := New(n)

	lognormal := func(mu, sigma float64) float64 {
		return math.Exp(mu + sigma*rng.NormFloat64())
	}

	for i := 0; i < n; i++ {
		rs.RecordID[i] = i + 1
		rs.Weight[i] = 50 + 450*rng.Float64()

		joint := rng.Float64() < 0.48
		if joint {
			rs.FilingStatus[i] = StatusJoint
		} else {
			switch {
			case rng.Float64() < 0.70:
				rs.FilingStatus[i] = StatusSingle
			case rng.Float64() < 0.5:
				rs.FilingStatus[i] = StatusHead
			default:
				rs.FilingStatus[i] = StatusSeparate
			}
		}

		wp := math.Round(lognormal(10.6, 0.85))
		var ws float64
		if joint && rng.Float64() < 0.62 {
			ws = math.Round(lognormal(10.2, 0.90))
		}
		rs.WagePrimary[i] = wp
		rs.WageSecondary[i] = ws
		rs.WageTotal[i] = wp + ws

		if rng.Float64() < 0.18 {
			pt := math.Round(lognormal(9.8, 1.1))
			detail := math.Round(pt * (0.4 + 0.5*rng.Float64()))
			k1p := math.Round(detail * 0.6 * rng.Float64())
			var k1s float64
			if joint {
				k1s = math.Round((detail - k1p) * 0.5 * rng.Float64())
			}
			rs.Passthrough[i] = pt
			rs.PassthroughDetail[i] = detail
			rs.K1Primary[i] = k1p
			rs.K1Secondary[i] = k1s
		}

		if rng.Float64() < 0.55 {
			rs.OtherIncome[i] = math.Round(lognormal(7.5, 1.0))
		}
	}
	return rs
}
