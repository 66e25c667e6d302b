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
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// keepAliveInterval is how often an SSE comment is sent while the
// pipeline is still working.
const keepAliveInterval = 15 * time.Second

// HandleChatStream answers a chat request over Server-Sent Events.
//
// # Description
//
//	Runs the same pipeline as HandleChat but reports progress as it
//	happens. The event flow is:
//
//	  stage*  one per completed pipeline stage, with updated fields
//	  final   the composed answer plus citations
//	  done    stream terminator
//
//	or, on failure:
//
//	  stage*  for stages that completed
//	  error   sanitized failure message
//	  done
//
//	Events carry a SHA-256 hash chain so clients can verify stream
//	integrity end to end.
func HandleChatStream(deps ChatDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "handlers.HandleChatStream")
		defer span.End()

		state, ok := prepareChatState(c, deps)
		if !ok {
			return
		}

		SetSSEHeaders(c.Writer)
		writer, err := NewSSEWriter(c.Writer)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming not supported"})
			return
		}

		// Keep-alive pings cover the gap while the answer stage waits on
		// the model.
		stopPings := make(chan struct{})
		go func() {
			ticker := time.NewTicker(keepAliveInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := writer.WriteKeepAlive(); err != nil {
						return
					}
				case <-stopPings:
					return
				}
			}
		}()

		runErr := deps.Pipeline.Run(ctx, state, func(stage string, fields []string) {
			if err := writer.WriteStage(stage, fields); err != nil {
				slog.Debug("Client dropped during stage event", "stage", stage, "error", err)
			}
		})
		close(stopPings)

		if runErr != nil {
			slog.Error("Streaming chat pipeline failed", "user_id", state.UserId, "error", runErr)
			_ = writer.WriteError("Failed to answer the question")
			_ = writer.WriteDone()
			return
		}

		persistTurns(deps, state)
		if err := writer.WriteFinal(state.Answer, state.Citations); err != nil {
			slog.Debug("Client dropped before final event", "user_id", state.UserId, "error", err)
			return
		}
		_ = writer.WriteDone()
	}
}
