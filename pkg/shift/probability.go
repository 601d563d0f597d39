// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package shift

// Probabilities returns each row's adoption probability: prob where
// both the earner's wages and the tax savings reach their minimums
// (inclusive), zero otherwise. earnings and savings must be the same
// length.
func Probabilities(earnings, savings []float64, minEarnings, minSavings, prob float64) []float64 {
	out := make([]float64, len(earnings))
	for i := range earnings {
		if earnings[i] >= minEarnings && savings[i] >= minSavings {
			out[i] = prob
		}
	}
	return out
}
