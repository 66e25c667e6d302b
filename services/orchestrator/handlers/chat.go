// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the orchestrator's HTTP surface: chat
// (blocking and streaming), guidance index administration, metric
// seeding, and runtime metric configuration.
package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"github.com/AleutianAI/AleutianVitals/pkg/validation"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/config"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/conversation"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/pipeline"
)

var tracer = otel.Tracer("aleutian.ai/orchestrator/handlers")

// DefaultTimeframeDays is the trailing window applied when a chat
// request carries no explicit timeframe.
const DefaultTimeframeDays = 7

// MaxContextMessages caps how much stored history is loaded per turn.
const MaxContextMessages = 12

// ChatDeps bundles what the chat handlers need per request.
type ChatDeps struct {
	Pipeline      *pipeline.Pipeline
	Conversations *conversation.Store
	Config        *config.Store
}

// HandleChat answers a personalized health question in one blocking
// round trip.
//
// # Description
//
//	Loads the user's recent history, applies timeframe and kind
//	defaults, runs the six-stage pipeline, persists both turns, and
//	returns the answer with its citations.
//
// # Inputs
//   - JSON body: datatypes.ChatRequest. Message is required; an empty
//     UserId makes the query anonymous (no metrics, no history).
//     Timeframe and MetricKinds are optional.
//
// # Outputs
//   - 200: datatypes.ChatResponse
//   - 400: malformed request, invalid identifiers, or kinds outside the
//     configured availability list
//   - 500: pipeline failure (sanitized message)
func HandleChat(deps ChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "handlers.HandleChat")
		defer span.End()

		state, ok := prepareChatState(c, deps)
		if !ok {
			return
		}

		if err := deps.Pipeline.Run(ctx, state, nil); err != nil {
			slog.Error("Chat pipeline failed", "user_id", state.UserId, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to answer the question"})
			return
		}

		persistTurns(deps, state)
		c.JSON(http.StatusOK, datatypes.ChatResponse{
			Reply:    state.Answer,
			UsedDocs: state.Citations,
		})
	}
}

// prepareChatState binds and validates the request, loads history, and
// builds the per-request pipeline state. On failure it writes the error
// response itself and returns ok=false.
func prepareChatState(c *gin.Context, deps ChatDeps) (*pipeline.State, bool) {
	var req datatypes.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return nil, false
	}
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return nil, false
	}
	// An empty user id is an anonymous query: no metrics, no history.
	if req.UserId != "" {
		if err := validation.ValidateUserId(req.UserId); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return nil, false
		}
	}

	settings := deps.Config.Current()
	kinds := req.MetricKinds
	if len(kinds) == 0 {
		kinds = settings.DefaultMetricKinds
	} else {
		if err := validateKindsAvailable(kinds, settings.AvailableMetricKinds); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return nil, false
		}
	}

	timeframe := req.Timeframe
	if timeframe == nil {
		tf := datatypes.DefaultTimeframe(DefaultTimeframeDays)
		timeframe = &tf
	}
	if !timeframe.End.After(timeframe.Start) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "timeframe end must be after start"})
		return nil, false
	}

	var history []datatypes.Message
	if req.UserId != "" {
		loaded, err := deps.Conversations.FetchRecent(req.UserId, MaxContextMessages)
		if err != nil {
			slog.Warn("Failed to load conversation history, continuing without it",
				"user_id", req.UserId, "error", err)
		} else {
			history = loaded
		}
	}

	return &pipeline.State{
		Conversation: append(history, datatypes.Message{Role: "user", Content: req.Message}),
		UserId:       req.UserId,
		Timeframe:    timeframe,
		MetricKinds:  kinds,
	}, true
}

// persistTurns stores the user message and the assistant answer. The
// user turn keeps the message exactly as submitted, not the normalized
// question the pipeline derived from it. A storage failure is logged,
// not surfaced: the answer was already produced and belongs to the
// client.
func persistTurns(deps ChatDeps, state *pipeline.State) {
	if state.UserId == "" {
		return
	}
	// Explicit timestamps keep the assistant turn strictly after the
	// user turn even when both writes land in the same nanosecond.
	now := time.Now()
	userTurn := datatypes.Message{Role: "user", Content: latestUserContent(state)}
	if err := deps.Conversations.AppendAt(state.UserId, userTurn, now); err != nil {
		slog.Warn("Failed to persist user turn", "user_id", state.UserId, "error", err)
	}
	if state.Answer == "" {
		return
	}
	assistantTurn := datatypes.Message{Role: "assistant", Content: state.Answer}
	if err := deps.Conversations.AppendAt(state.UserId, assistantTurn, now.Add(time.Nanosecond)); err != nil {
		slog.Warn("Failed to persist assistant turn", "user_id", state.UserId, "error", err)
	}
}

// latestUserContent returns the most recent user turn as submitted.
// prepareChatState appends the raw request message to the conversation,
// so this recovers it before the pipeline's whitespace trimming.
func latestUserContent(state *pipeline.State) string {
	for i := len(state.Conversation) - 1; i >= 0; i-- {
		if state.Conversation[i].Role == "user" {
			return state.Conversation[i].Content
		}
	}
	return state.Question
}

func validateKindsAvailable(kinds, available []string) error {
	if err := validation.ValidateMetricKinds(kinds); err != nil {
		return err
	}
	availableSet := make(map[string]bool, len(available))
	for _, k := range available {
		availableSet[k] = true
	}
	for _, k := range kinds {
		if !availableSet[k] {
			return fmt.Errorf("metric kind %q is not available", k)
		}
	}
	return nil
}
