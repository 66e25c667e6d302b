// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianVitals/services/orchestrator/datatypes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SSEWriter writes Server-Sent Events for streaming chat responses.
//
// # Description
//
// SSEWriter abstracts SSE serialization from HTTP response mechanics.
// Each event is automatically assigned:
//   - Id: UUID v4 for ordering and deduplication
//   - CreatedAt: Unix timestamp in milliseconds
//   - Hash: SHA-256 hash of event content for integrity
//   - PrevHash: Hash of previous event for chain verification
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; keep-alive pings may
// arrive from a different goroutine than pipeline progress events.
//
// # Assumptions
//
//   - Caller has set Content-Type: text/event-stream before writing
//   - Caller has disabled buffering (X-Accel-Buffering: no)
type SSEWriter interface {
	// WriteEvent writes a single event, populating Id, CreatedAt, Hash,
	// and PrevHash before serialization.
	WriteEvent(event datatypes.StreamEvent) error

	// WriteStage reports a completed pipeline stage and the state fields
	// it updated.
	WriteStage(stage string, fields []string) error

	// WriteFinal writes the composed answer with its citations.
	WriteFinal(answer string, citations []datatypes.Citation) error

	// WriteError writes an error event. The message must already be
	// sanitized for clients.
	WriteError(errMsg string) error

	// WriteDone terminates the stream. No events may follow.
	WriteDone() error

	// WriteKeepAlive sends an SSE comment to keep intermediaries from
	// timing out the connection. Comments are not part of the hash chain.
	WriteKeepAlive() error
}

// =============================================================================
// Implementation
// =============================================================================

// sseWriter wraps an http.ResponseWriter to emit SSE-formatted events in
// the format "event: {type}\ndata: {json}\n\n", maintaining a hash chain
// across events for chain-of-custody verification.
type sseWriter struct {
	writer   http.ResponseWriter
	flusher  http.Flusher
	prevHash string
	mu       sync.Mutex
}

// NewSSEWriter wraps the ResponseWriter, which must support http.Flusher.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}

	return &sseWriter{
		writer:   w,
		flusher:  flusher,
		prevHash: "",
	}, nil
}

// SetSSEHeaders sets the response headers required before streaming.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func (w *sseWriter) WriteEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	event.Id = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()
	event.PrevHash = w.prevHash

	// Hash is computed over the fully populated event minus the Hash
	// field itself, then chained into the next event.
	event.Hash = computeEventHash(event)
	w.prevHash = event.Hash

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	w.flusher.Flush()
	return nil
}

func (w *sseWriter) WriteStage(stage string, fields []string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:   datatypes.StreamEventStage,
		Stage:  stage,
		Fields: fields,
	})
}

func (w *sseWriter) WriteFinal(answer string, citations []datatypes.Citation) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:      datatypes.StreamEventFinal,
		Answer:    answer,
		Citations: citations,
	})
}

func (w *sseWriter) WriteError(errMsg string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:  datatypes.StreamEventError,
		Error: errMsg,
	})
}

func (w *sseWriter) WriteDone() error {
	return w.WriteEvent(datatypes.StreamEvent{Type: datatypes.StreamEventDone})
}

func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprint(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keep-alive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// computeEventHash hashes every content field plus the chain metadata,
// so tampering with any event breaks verification of the whole stream.
func computeEventHash(event datatypes.StreamEvent) string {
	fieldsJSON := ""
	if len(event.Fields) > 0 {
		if data, err := json.Marshal(event.Fields); err == nil {
			fieldsJSON = string(data)
		}
	}
	citationsJSON := ""
	if len(event.Citations) > 0 {
		if data, err := json.Marshal(event.Citations); err == nil {
			citationsJSON = string(data)
		}
	}

	hashInput := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s|%s|%s",
		event.Id,
		event.Type,
		event.CreatedAt,
		event.PrevHash,
		event.Stage,
		fieldsJSON,
		event.Answer,
		event.Error,
		citationsJSON,
	)

	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}
