// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// Stream event types emitted on /v1/chat/stream.
//
// A successful stream is:
//
//	stage* final done
//
// A failed stream is:
//
//	stage* error done
//
// The done event is always the last event so the transport closes
// cleanly regardless of where in the stage sequence a failure occurred.
const (
	// StreamEventStage reports one completed pipeline stage and the
	// state fields it updated.
	StreamEventStage = "stage"

	// StreamEventFinal carries the composed answer and citations.
	StreamEventFinal = "final"

	// StreamEventError carries a failure message in place of further
	// stage events.
	StreamEventError = "error"

	// StreamEventDone is the explicit end-of-stream marker.
	StreamEventDone = "done"
)

// StreamEvent is a single SSE event on the chat stream.
//
// # Fields
//
//   - Id: UUID v4, assigned by the writer.
//   - Type: One of the StreamEvent* constants.
//   - CreatedAt: Unix milliseconds, assigned by the writer.
//   - Stage: Stage name, set on stage events.
//   - Fields: State fields the stage updated, set on stage events.
//   - Answer: Final answer text, set on final events.
//   - Citations: Display-order citations, set on final events.
//   - Error: Failure message, set on error events.
//   - Hash, PrevHash: SHA-256 integrity chain maintained by the writer.
type StreamEvent struct {
	Id        string     `json:"id,omitempty"`
	Type      string     `json:"type"`
	CreatedAt int64      `json:"created_at,omitempty"`
	Stage     string     `json:"stage,omitempty"`
	Fields    []string   `json:"fields,omitempty"`
	Answer    string     `json:"answer,omitempty"`
	Citations []Citation `json:"citations,omitempty"`
	Error     string     `json:"error,omitempty"`
	Hash      string     `json:"hash,omitempty"`
	PrevHash  string     `json:"prev_hash,omitempty"`
}
