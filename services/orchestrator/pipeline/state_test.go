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
	"testing"

	"github.com/AleutianAI/AleutianVitals/services/orchestrator/datatypes"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Merge Reducer Tests
// =============================================================================

func TestMerge_OverwriteFields(t *testing.T) {
	s := &State{Question: "old", Answer: "old answer"}

	q := "new question"
	a := "new answer"
	updated := Merge(s, &Update{Question: &q, Answer: &a})

	assert.Equal(t, "new question", s.Question)
	assert.Equal(t, "new answer", s.Answer)
	assert.Equal(t, []string{"question", "answer"}, updated)
}

func TestMerge_OverwriteWithEmptyString(t *testing.T) {
	s := &State{Question: "previous"}

	empty := ""
	updated := Merge(s, &Update{Question: &empty})

	// An explicit empty value replaces the old one; a nil pointer would
	// have left it alone.
	assert.Equal(t, "", s.Question)
	assert.Equal(t, []string{"question"}, updated)
}

func TestMerge_NilPointerLeavesFieldAlone(t *testing.T) {
	s := &State{Question: "keep me"}

	updated := Merge(s, &Update{})

	assert.Equal(t, "keep me", s.Question)
	assert.Empty(t, updated)
}

func TestMerge_AppendFields(t *testing.T) {
	s := &State{Anomalies: []string{"hr: 1 outlier(s) beyond ±2.5σ"}}

	updated := Merge(s, &Update{
		Anomalies:      []string{"sleep: 2 outlier(s) beyond ±2.5σ"},
		SafetyWarnings: []string{"w1"},
	})

	assert.Equal(t, []string{
		"hr: 1 outlier(s) beyond ±2.5σ",
		"sleep: 2 outlier(s) beyond ±2.5σ",
	}, s.Anomalies)
	assert.Equal(t, []string{"w1"}, s.SafetyWarnings)
	assert.Equal(t, []string{"anomalies", "safety_warnings"}, updated)
}

func TestMerge_StatsReplacedWholesale(t *testing.T) {
	s := &State{Stats: map[string]KindStats{"hr": {Mean: 60, Count: 3}}}

	updated := Merge(s, &Update{Stats: map[string]KindStats{"sleep": {Mean: 7.2, Count: 5}}})

	assert.Len(t, s.Stats, 1)
	assert.Contains(t, s.Stats, "sleep")
	assert.NotContains(t, s.Stats, "hr")
	assert.Equal(t, []string{"stats"}, updated)
}

func TestMerge_ResetClearsAccumulators(t *testing.T) {
	s := &State{
		Question:       "stale question",
		Metrics:        []MetricPoint{{Kind: "hr", Value: 60}},
		Anomalies:      []string{"stale"},
		RelevantChunks: []Chunk{{Text: "stale"}},
		Citations:      []datatypes.Citation{{Source: "stale"}},
		SafetyWarnings: []string{"stale"},
	}

	q := "fresh question"
	updated := Merge(s, &Update{Question: &q, ResetAccumulators: true})

	assert.Empty(t, s.Metrics)
	assert.Empty(t, s.Anomalies)
	assert.Empty(t, s.RelevantChunks)
	assert.Empty(t, s.Citations)
	assert.Empty(t, s.SafetyWarnings)
	assert.Equal(t, "fresh question", s.Question)
	// The reset reports every accumulator as changed, then the question.
	assert.Equal(t, []string{
		"metrics", "anomalies", "relevant_chunks", "citations",
		"safety_warnings", "question",
	}, updated)
}

func TestMerge_ResetThenAppendInSameUpdate(t *testing.T) {
	s := &State{Metrics: []MetricPoint{{Kind: "hr", Value: 200}}}

	updated := Merge(s, &Update{
		Metrics:           []MetricPoint{{Kind: "sleep", Value: 7}},
		ResetAccumulators: true,
	})

	// Reset happens first, so only the new points survive.
	assert.Len(t, s.Metrics, 1)
	assert.Equal(t, "sleep", s.Metrics[0].Kind)
	// The field is not reported twice.
	assert.Equal(t, []string{
		"metrics", "anomalies", "relevant_chunks", "citations", "safety_warnings",
	}, updated)
}

func TestMerge_NilUpdate(t *testing.T) {
	s := &State{Question: "q"}
	assert.Nil(t, Merge(s, nil))
	assert.Equal(t, "q", s.Question)
}

func TestMerge_ConversationAppends(t *testing.T) {
	s := &State{Conversation: []datatypes.Message{{Role: "user", Content: "hi"}}}

	Merge(s, &Update{Conversation: []datatypes.Message{{Role: "assistant", Content: "hello"}}})

	assert.Len(t, s.Conversation, 2)
	assert.Equal(t, "assistant", s.Conversation[1].Role)
}
