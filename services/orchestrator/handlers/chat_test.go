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
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianVitals/services/orchestrator/config"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/conversation"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/pipeline"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// MockMetricsStore returns canned metric points.
type MockMetricsStore struct {
	Points []pipeline.MetricPoint
	Err    error
}

func (m *MockMetricsStore) FetchMetrics(_ context.Context, _ string, _ datatypes.Timeframe, _ []string) ([]pipeline.MetricPoint, error) {
	return m.Points, m.Err
}

// MockEmbedder returns a fixed vector.
type MockEmbedder struct {
	Err error
}

func (m *MockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// MockGuidanceIndex returns canned search hits.
type MockGuidanceIndex struct {
	Hits []pipeline.SearchHit
	Err  error
}

func (m *MockGuidanceIndex) Search(_ context.Context, _ []float32, _ int) ([]pipeline.SearchHit, error) {
	return m.Hits, m.Err
}

// MockChatModel returns a canned completion.
type MockChatModel struct {
	Reply string
	Err   error
}

func (m *MockChatModel) Complete(_ context.Context, _ []datatypes.Message) (string, error) {
	return m.Reply, m.Err
}

type chatFixture struct {
	deps          ChatDeps
	conversations *conversation.Store
}

func newChatFixture(t *testing.T, model *MockChatModel) chatFixture {
	t.Helper()

	store, err := conversation.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	qa := pipeline.New(
		pipeline.NewParseUserStage(),
		pipeline.NewPullMetricsStage(&MockMetricsStore{Points: []pipeline.MetricPoint{
			{Kind: "hr", Value: 60}, {Kind: "hr", Value: 64},
		}}),
		pipeline.NewAnalyzeMetricsStage(),
		pipeline.NewRetrieveGuidanceStage(&MockEmbedder{}, &MockGuidanceIndex{Hits: []pipeline.SearchHit{
			{Payload: map[string]any{"text": "HR guidance.", "source": "hr.md", "id": "g-1"}, Score: 0.9},
		}}),
		pipeline.NewSafetyStage(),
		pipeline.NewAnswerStage(model),
	)

	return chatFixture{
		deps: ChatDeps{
			Pipeline:      qa,
			Conversations: store,
			Config:        config.NewStore(),
		},
		conversations: store,
	}
}

func performChat(deps ChatDeps, body interface{}) *httptest.ResponseRecorder {
	router := gin.New()
	router.POST("/v1/chat", HandleChat(deps))

	jsonBytes, _ := json.Marshal(body)
	req, _ := http.NewRequest("POST", "/v1/chat", bytes.NewBuffer(jsonBytes))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// =============================================================================
// HandleChat Tests
// =============================================================================

func TestHandleChat_HappyPath(t *testing.T) {
	fx := newChatFixture(t, &MockChatModel{Reply: "Your heart rate looks fine [1]."})

	w := performChat(fx.deps, datatypes.ChatRequest{
		UserId:  "u-1",
		Message: "is my heart rate ok?",
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Reply, "Your heart rate looks fine [1].")
	assert.Contains(t, resp.Reply, "not medical advice")
	require.Len(t, resp.UsedDocs, 1)
	assert.Equal(t, "hr.md", resp.UsedDocs[0].Source)
}

func TestHandleChat_PersistsBothTurns(t *testing.T) {
	fx := newChatFixture(t, &MockChatModel{Reply: "ok"})

	w := performChat(fx.deps, datatypes.ChatRequest{UserId: "u-1", Message: "question one"})
	require.Equal(t, http.StatusOK, w.Code)

	turns, err := fx.conversations.FetchRecent("u-1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "question one", turns[0].Content)
	assert.Equal(t, "assistant", turns[1].Role)
}

func TestHandleChat_PersistsMessageAsSubmitted(t *testing.T) {
	fx := newChatFixture(t, &MockChatModel{Reply: "ok"})

	w := performChat(fx.deps, datatypes.ChatRequest{UserId: "u-1", Message: "  padded question  "})
	require.Equal(t, http.StatusOK, w.Code)

	turns, err := fx.conversations.FetchRecent("u-1", 0)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	// The stored turn keeps the surrounding whitespace; only the
	// pipeline's derived question is trimmed.
	assert.Equal(t, "  padded question  ", turns[0].Content)
}

func TestHandleChat_MissingMessage(t *testing.T) {
	fx := newChatFixture(t, &MockChatModel{Reply: "ok"})

	assert.Equal(t, http.StatusBadRequest,
		performChat(fx.deps, datatypes.ChatRequest{UserId: "u-1"}).Code)
}

func TestHandleChat_InvalidUserId(t *testing.T) {
	fx := newChatFixture(t, &MockChatModel{Reply: "ok"})

	w := performChat(fx.deps, datatypes.ChatRequest{UserId: `u") |> drop()`, Message: "hi"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleChat_AnonymousQuerySkipsPersonalization(t *testing.T) {
	fx := newChatFixture(t, &MockChatModel{Reply: "General answer."})

	w := performChat(fx.deps, datatypes.ChatRequest{Message: "how much sleep do adults need?"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.ChatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Reply, "General answer.")
}

func TestHandleChat_RejectsUnavailableKinds(t *testing.T) {
	fx := newChatFixture(t, &MockChatModel{Reply: "ok"})

	w := performChat(fx.deps, datatypes.ChatRequest{
		UserId:      "u-1",
		Message:     "hello",
		MetricKinds: []string{"hr", "not_a_kind"},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "not_a_kind")
}

func TestHandleChat_RejectsInvertedTimeframe(t *testing.T) {
	fx := newChatFixture(t, &MockChatModel{Reply: "ok"})

	tf := datatypes.DefaultTimeframe(7)
	tf.Start, tf.End = tf.End, tf.Start
	w := performChat(fx.deps, datatypes.ChatRequest{
		UserId:    "u-1",
		Message:   "hello",
		Timeframe: &tf,
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleChat_PipelineFailureIsSanitized(t *testing.T) {
	fx := newChatFixture(t, &MockChatModel{Err: errors.New("upstream: key abc123 rejected")})

	w := performChat(fx.deps, datatypes.ChatRequest{UserId: "u-1", Message: "hello"})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "abc123", "internal detail must not leak")
}

func TestHandleChat_HistoryFeedsFollowUpTurns(t *testing.T) {
	fx := newChatFixture(t, &MockChatModel{Reply: "first answer"})

	require.Equal(t, http.StatusOK,
		performChat(fx.deps, datatypes.ChatRequest{UserId: "u-1", Message: "first question"}).Code)
	require.Equal(t, http.StatusOK,
		performChat(fx.deps, datatypes.ChatRequest{UserId: "u-1", Message: "second question"}).Code)

	turns, err := fx.conversations.FetchRecent("u-1", 0)
	require.NoError(t, err)
	assert.Len(t, turns, 4)
}
