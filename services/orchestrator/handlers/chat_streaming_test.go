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
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianVitals/services/orchestrator/datatypes"
)

// =============================================================================
// Test Setup
// =============================================================================

func performChatStream(deps ChatDeps, body interface{}) *httptest.ResponseRecorder {
	router := gin.New()
	router.POST("/v1/chat/stream", HandleChatStream(deps))

	jsonBytes, _ := json.Marshal(body)
	req, _ := http.NewRequest("POST", "/v1/chat/stream", bytes.NewBuffer(jsonBytes))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// =============================================================================
// HandleChatStream Tests
// =============================================================================

func TestHandleChatStream_EventFlow(t *testing.T) {
	fx := newChatFixture(t, &MockChatModel{Reply: "Sleep looks steady [1]."})

	w := performChatStream(fx.deps, datatypes.ChatRequest{
		UserId:  "u-1",
		Message: "how is my sleep?",
	})

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := parseSSEEvents(t, w.Body.String())
	require.Len(t, events, 8, "six stage events, final, done")

	wantStages := []string{
		"parse_user", "pull_metrics", "analyze_metrics",
		"retrieve_guidance", "safety", "answer",
	}
	for i, stage := range wantStages {
		assert.Equal(t, "stage", events[i].Type)
		assert.Equal(t, stage, events[i].Stage)
	}

	final := events[6]
	assert.Equal(t, "final", final.Type)
	assert.Contains(t, final.Answer, "Sleep looks steady [1].")
	require.Len(t, final.Citations, 1)
	assert.Equal(t, "hr.md", final.Citations[0].Source)

	assert.Equal(t, "done", events[7].Type)
}

func TestHandleChatStream_HashChainSpansWholeStream(t *testing.T) {
	fx := newChatFixture(t, &MockChatModel{Reply: "ok"})

	w := performChatStream(fx.deps, datatypes.ChatRequest{UserId: "u-1", Message: "hi"})

	events := parseSSEEvents(t, w.Body.String())
	require.NotEmpty(t, events)
	assert.Empty(t, events[0].PrevHash)
	for i := 1; i < len(events); i++ {
		assert.Equal(t, events[i-1].Hash, events[i].PrevHash, "chain broken at event %d", i)
	}
}

func TestHandleChatStream_PipelineFailure(t *testing.T) {
	fx := newChatFixture(t, &MockChatModel{Err: errors.New("upstream: key abc123 rejected")})

	w := performChatStream(fx.deps, datatypes.ChatRequest{UserId: "u-1", Message: "hi"})

	events := parseSSEEvents(t, w.Body.String())
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	assert.Equal(t, "done", last.Type)
	errorEvent := events[len(events)-2]
	assert.Equal(t, "error", errorEvent.Type)
	assert.Equal(t, "Failed to answer the question", errorEvent.Error)
	assert.NotContains(t, w.Body.String(), "abc123", "internal detail must not leak")

	// Stages that completed before the failure still show up.
	assert.Equal(t, "stage", events[0].Type)

	// Nothing is persisted for a failed run.
	turns, err := fx.conversations.FetchRecent("u-1", 0)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestHandleChatStream_InvalidRequestIsPlainJSON(t *testing.T) {
	fx := newChatFixture(t, &MockChatModel{Reply: "ok"})

	w := performChatStream(fx.deps, datatypes.ChatRequest{UserId: "u-1"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotContains(t, w.Body.String(), "event:")
}

func TestHandleChatStream_PersistsTurnsOnSuccess(t *testing.T) {
	fx := newChatFixture(t, &MockChatModel{Reply: "answer"})

	w := performChatStream(fx.deps, datatypes.ChatRequest{UserId: "u-1", Message: "question"})
	require.NotEmpty(t, parseSSEEvents(t, w.Body.String()))

	turns, err := fx.conversations.FetchRecent("u-1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "assistant", turns[1].Role)
}
