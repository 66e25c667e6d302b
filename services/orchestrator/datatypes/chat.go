// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the request, response, and wire types shared
// by the orchestrator's HTTP surface and its collaborating services.
package datatypes

import "time"

// Message is a single conversation turn in provider-neutral form.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Timeframe is a UTC time window for metric retrieval. Both bounds are
// inclusive.
type Timeframe struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DefaultTimeframe returns the trailing window of the given number of
// days, ending now (UTC). Used when a chat request omits an explicit
// timeframe.
func DefaultTimeframe(days int) Timeframe {
	end := time.Now().UTC()
	return Timeframe{Start: end.AddDate(0, 0, -days), End: end}
}

// ChatRequest is the body for POST /v1/chat and /v1/chat/stream.
//
// # Fields
//
//   - UserId: Opaque user identifier. May be empty for anonymous queries,
//     in which case no metrics are fetched.
//   - Message: The user's free-text health question. Required.
//   - Timeframe: Optional explicit window; defaults to the trailing 7 days.
//   - MetricKinds: Optional kind set (e.g. ["hr","hrv","steps","sleep"]);
//     defaults to the configured default set.
type ChatRequest struct {
	UserId      string     `json:"user_id"`
	Message     string     `json:"message"`
	Timeframe   *Timeframe `json:"timeframe,omitempty"`
	MetricKinds []string   `json:"metric_kinds,omitempty"`
}

// Citation is a source reference paired positionally with a retrieved
// passage. Citation numbers shown to the user are the 1-based position
// in this list.
type Citation struct {
	Id     string  `json:"id,omitempty"`
	Source string  `json:"source,omitempty"`
	Score  float64 `json:"score"`
}

// ChatResponse is the body returned by POST /v1/chat.
type ChatResponse struct {
	Reply    string     `json:"reply"`
	UsedDocs []Citation `json:"used_docs,omitempty"`
}
