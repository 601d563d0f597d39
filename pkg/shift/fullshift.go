// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package shift implements the earnings-shifting behavioral model:
// recharacterizing wage earnings as pass-through distributions, either
// wholesale or through a seeded stochastic adoption decision.
package shift

import "github.com/AleutianAI/ShiftSim/pkg/records"

// ShiftPrimary recharacterizes row i's primary-earner wages as
// pass-through income. The amount lands in total pass-through income,
// in its active component, and in the primary self-employment K1
// share; wages drop by the same amount so total market income is
// unchanged.
func ShiftPrimary(rs *records.RecordSet, i int) {
	amount := rs.WagePrimary[i]
	rs.Passthrough[i] += amount
	rs.PassthroughDetail[i] += amount
	rs.K1Primary[i] += amount
	rs.WageTotal[i] -= amount
	rs.WagePrimary[i] = 0
}

// ShiftSpouse is the spouse-earner analogue of ShiftPrimary.
func ShiftSpouse(rs *records.RecordSet, i int) {
	amount := rs.WageSecondary[i]
	rs.Passthrough[i] += amount
	rs.PassthroughDetail[i] += amount
	rs.K1Secondary[i] += amount
	rs.WageTotal[i] -= amount
	rs.WageSecondary[i] = 0
}

// Full shifts every row's primary earnings, and every row's spouse
// earnings as well unless taxpayerOnly is set.
func Full(rs *records.RecordSet, taxpayerOnly bool) {
	for i := 0; i < rs.Len(); i++ {
		ShiftPrimary(rs, i)
		if !taxpayerOnly {
			ShiftSpouse(rs, i)
		}
	}
}
