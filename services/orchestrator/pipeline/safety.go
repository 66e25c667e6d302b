// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"strings"
)

// emergencySigns are the phrases whose presence in a question triggers
// the emergency warning. Matching is case-insensitive substring.
var emergencySigns = [...]string{
	"crushing chest pain",
	"shortness of breath",
	"fainting",
	"stroke",
	"severe bleeding",
	"unconscious",
}

const (
	emergencyWarning = "Possible emergency symptoms mentioned — advise urgent in-person care."
	heartRateWarning = "Unusual heart rate pattern detected; seek medical review if persistent."
)

// SafetyStage runs lightweight heuristics over the question and detected
// anomalies. It is deliberately conservative plumbing, not a guardrail
// model; the composer surfaces its warnings verbatim.
type SafetyStage struct{}

func NewSafetyStage() *SafetyStage { return &SafetyStage{} }

func (s *SafetyStage) Name() string { return "safety" }

func (s *SafetyStage) Run(_ context.Context, state *State) (*Update, error) {
	var warnings []string

	q := strings.ToLower(state.Question)
	for _, sign := range emergencySigns {
		if strings.Contains(q, sign) {
			warnings = append(warnings, emergencyWarning)
			break
		}
	}

	for _, a := range state.Anomalies {
		if strings.HasPrefix(a, "hr:") {
			warnings = append(warnings, heartRateWarning)
			break
		}
	}

	return &Update{SafetyWarnings: warnings}, nil
}
