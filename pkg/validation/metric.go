// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that are used in
// database queries. Using these validators prevents injection attacks
// (Flux injection in particular) when identifiers are interpolated into
// query strings.
package validation

import (
	"fmt"
	"regexp"
)

// metricKindPattern matches valid metric kind identifiers.
// Allows: lowercase letters, digits, underscores (blood_pressure)
// Max length: 32 characters
var metricKindPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,31}$`)

// userIdPattern matches valid user identifiers.
// Allows: letters, digits, underscores, hyphens (UUID-style ids included)
// Max length: 64 characters
var userIdPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-]{0,63}$`)

// ValidateMetricKind validates a metric kind identifier to prevent Flux
// injection when the kind is interpolated into a query.
//
// Valid kinds:
//   - 1-32 characters
//   - Lowercase letters a-z
//   - Digits 0-9
//   - Underscores (_) for compound kinds like blood_pressure
//
// Returns an error if the kind is invalid.
func ValidateMetricKind(kind string) error {
	if kind == "" {
		return fmt.Errorf("metric kind cannot be empty")
	}

	if !metricKindPattern.MatchString(kind) {
		return fmt.Errorf("invalid metric kind: %q (must be 1-32 lowercase alphanumeric chars or underscores)", kind)
	}

	return nil
}

// ValidateMetricKinds validates multiple kind identifiers.
// Returns an error listing all invalid kinds if any fail validation.
func ValidateMetricKinds(kinds []string) error {
	var invalid []string
	for _, k := range kinds {
		if err := ValidateMetricKind(k); err != nil {
			invalid = append(invalid, k)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid metric kinds: %v", invalid)
	}
	return nil
}

// ValidateUserId validates a user identifier before it is used as a query
// tag filter or storage key.
func ValidateUserId(userId string) error {
	if userId == "" {
		return fmt.Errorf("user id cannot be empty")
	}

	if !userIdPattern.MatchString(userId) {
		return fmt.Errorf("invalid user id: %q (must be 1-64 alphanumeric chars, underscores, or hyphens)", userId)
	}

	return nil
}
