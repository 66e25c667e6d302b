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

// ParseUserStage extracts the newest user question from the conversation
// and resets every accumulator field, so a run never inherits metrics,
// anomalies, chunks, citations, or warnings from a previous request.
type ParseUserStage struct{}

func NewParseUserStage() *ParseUserStage { return &ParseUserStage{} }

func (s *ParseUserStage) Name() string { return "parse_user" }

// Run walks the conversation newest-first and takes the first user turn.
// Both "user" and "human" count as user roles, since imported histories
// use either convention. If no user turn exists the question is set to
// the empty string, which downstream stages treat as "nothing to
// retrieve".
func (s *ParseUserStage) Run(_ context.Context, state *State) (*Update, error) {
	question := ""
	for i := len(state.Conversation) - 1; i >= 0; i-- {
		if isUserRole(state.Conversation[i].Role) {
			question = strings.TrimSpace(state.Conversation[i].Content)
			break
		}
	}
	return &Update{Question: &question, ResetAccumulators: true}, nil
}

func isUserRole(role string) bool {
	return role == "user" || role == "human"
}
