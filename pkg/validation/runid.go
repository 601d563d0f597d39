// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation vets user-supplied identifiers before they reach
// a query or the filesystem.
//
// Run IDs arrive through HTTP paths and request bodies and end up
// interpolated into Flux queries and object names; the validators here
// are the chokepoint that keeps injection and path traversal out.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// runIDPattern matches run identifiers as issued by the run store,
// for example es2017_3f8a91c2_20250825T141502.
// Allows: letters, digits, underscores, hyphens. Max length: 64.
var runIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-]{0,63}$`)

// ValidateRunID validates a run identifier to prevent Flux injection.
//
// Valid run IDs:
//   - 1-64 characters
//   - Letters A-Z a-z
//   - Digits 0-9
//   - Underscores (_) and hyphens (-)
//
// Returns an error if the run ID is invalid.
//
// Example:
//
//	if err := validation.ValidateRunID(runID); err != nil {
//	    return nil, fmt.Errorf("invalid run id: %w", err)
//	}
//	// runID can now be interpolated into a Flux filter
func ValidateRunID(runID string) error {
	if runID == "" {
		return fmt.Errorf("run id cannot be empty")
	}

	if !runIDPattern.MatchString(runID) {
		return fmt.Errorf("invalid run id format: %q (must be 1-64 alphanumeric chars, underscores, or hyphens)", runID)
	}

	return nil
}

// SanitizeRunID normalizes and validates a run identifier.
// Returns the trimmed run ID if valid, or an error if invalid.
//
// Use this on any run ID taken from a URL or request body before it
// is interpolated into a Flux query:
//
//	safeID, err := validation.SanitizeRunID(userInput)
//	if err != nil {
//	    return err
//	}
//	// safeID is trimmed and validated
func SanitizeRunID(runID string) (string, error) {
	normalized := strings.TrimSpace(runID)
	if err := ValidateRunID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
