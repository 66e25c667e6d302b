// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline implements the personalized health QA pipeline: a fixed
// sequence of six stages that progressively enrich one per-request state
// record, culminating in a grounded, cited, safety-annotated answer.
//
// Stage order is:
//
//	parse_user → pull_metrics → analyze_metrics → retrieve_guidance → safety → answer
//
// Each stage returns a partial Update; the runner merges updates into the
// state through an explicit per-field reducer table (overwrite vs. append),
// so the merge policy is a plain, testable function rather than anything
// reflective.
package pipeline

import (
	"time"

	"github.com/AleutianAI/AleutianVitals/services/orchestrator/datatypes"
)

// MetricPoint is a single biometric measurement. Value is always a finite
// float; points that fail numeric coercion are dropped at ingestion.
type MetricPoint struct {
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"ts"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit,omitempty"`
}

// KindStats holds per-kind aggregates. Stdev is the population standard
// deviation (divisor n, not n-1); a single-point group has Stdev 0.
type KindStats struct {
	Mean  float64 `json:"mean"`
	Stdev float64 `json:"stdev"`
	Count int     `json:"n"`
}

// ChunkMetadata is the normalized metadata of one retrieved passage,
// resolved from heterogeneous index payload keys.
type ChunkMetadata struct {
	Id     string `json:"id,omitempty"`
	Source string `json:"source,omitempty"`
	Title  string `json:"title,omitempty"`
	Chunk  string `json:"chunk,omitempty"`
}

// Chunk is one retrieved passage in retrieval-rank order.
type Chunk struct {
	Text     string        `json:"text"`
	Score    float64       `json:"score"`
	Metadata ChunkMetadata `json:"metadata"`
}

// State is the shared record threaded through all six stages. It is
// created once per request, exclusively owned by that run, and discarded
// after the answer and citations are extracted.
type State struct {
	// Caller-supplied identity and scope.
	Conversation []datatypes.Message
	UserId       string
	Timeframe    *datatypes.Timeframe
	MetricKinds  []string

	// Parsed question (empty means no user turn was found).
	Question string

	// User data and derived analytics.
	Metrics   []MetricPoint
	Stats     map[string]KindStats
	Anomalies []string

	// Knowledge retrieval. Citations[i] always refers to the same
	// retrieved item as RelevantChunks[i].
	RelevantChunks []Chunk
	Citations      []datatypes.Citation

	// Safety flags and final output.
	SafetyWarnings []string
	Answer         string
}

// Update is the partial state change returned by a stage. Pointer fields
// use overwrite semantics and apply only when non-nil; slice fields use
// append semantics and apply only when non-empty. ResetAccumulators
// clears every accumulator field before any other merge, so nothing can
// leak across requests when a state object is reused.
type Update struct {
	Conversation   []datatypes.Message
	MetricKinds    []string
	Question       *string
	Metrics        []MetricPoint
	Stats          map[string]KindStats
	Anomalies      []string
	RelevantChunks []Chunk
	Citations      []datatypes.Citation
	SafetyWarnings []string
	Answer         *string

	ResetAccumulators bool
}

// accumulatorFields are the list-merged fields cleared at the start of
// each run. Declared once so the reset path and tests agree.
var accumulatorFields = []string{"metrics", "anomalies", "relevant_chunks", "citations", "safety_warnings"}

// fieldReducer applies one field of an Update to the State and reports
// whether anything changed. The table below is the complete, explicit
// merge policy for the pipeline state.
type fieldReducer struct {
	name  string
	apply func(s *State, u *Update) bool
}

var stateReducers = []fieldReducer{
	{"conversation", func(s *State, u *Update) bool {
		if len(u.Conversation) == 0 {
			return false
		}
		s.Conversation = append(s.Conversation, u.Conversation...)
		return true
	}},
	{"metric_kinds", func(s *State, u *Update) bool {
		if len(u.MetricKinds) == 0 {
			return false
		}
		s.MetricKinds = append(s.MetricKinds, u.MetricKinds...)
		return true
	}},
	{"question", func(s *State, u *Update) bool {
		if u.Question == nil {
			return false
		}
		s.Question = *u.Question
		return true
	}},
	{"metrics", func(s *State, u *Update) bool {
		if len(u.Metrics) == 0 {
			return false
		}
		s.Metrics = append(s.Metrics, u.Metrics...)
		return true
	}},
	{"stats", func(s *State, u *Update) bool {
		if u.Stats == nil {
			return false
		}
		s.Stats = u.Stats
		return true
	}},
	{"anomalies", func(s *State, u *Update) bool {
		if len(u.Anomalies) == 0 {
			return false
		}
		s.Anomalies = append(s.Anomalies, u.Anomalies...)
		return true
	}},
	{"relevant_chunks", func(s *State, u *Update) bool {
		if len(u.RelevantChunks) == 0 {
			return false
		}
		s.RelevantChunks = append(s.RelevantChunks, u.RelevantChunks...)
		return true
	}},
	{"citations", func(s *State, u *Update) bool {
		if len(u.Citations) == 0 {
			return false
		}
		s.Citations = append(s.Citations, u.Citations...)
		return true
	}},
	{"safety_warnings", func(s *State, u *Update) bool {
		if len(u.SafetyWarnings) == 0 {
			return false
		}
		s.SafetyWarnings = append(s.SafetyWarnings, u.SafetyWarnings...)
		return true
	}},
	{"answer", func(s *State, u *Update) bool {
		if u.Answer == nil {
			return false
		}
		s.Answer = *u.Answer
		return true
	}},
}

// Merge applies a stage's partial update to the state and returns the
// names of the fields that changed, in reducer-table order. A reset is
// reported as an update of every accumulator field.
func Merge(s *State, u *Update) []string {
	if u == nil {
		return nil
	}

	var updated []string
	if u.ResetAccumulators {
		s.Metrics = nil
		s.Anomalies = nil
		s.RelevantChunks = nil
		s.Citations = nil
		s.SafetyWarnings = nil
		updated = append(updated, accumulatorFields...)
	}

	for _, r := range stateReducers {
		if r.apply(s, u) && !contains(updated, r.name) {
			updated = append(updated, r.name)
		}
	}
	return updated
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
