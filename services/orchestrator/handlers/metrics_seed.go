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
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianVitals/pkg/validation"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/config"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/datatypes"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/metricstore"
)

// HandleAddMetric stores one biometric measurement point.
//
// # Description
//
//	Seeds metric data for a user, chiefly for development and demos;
//	production data normally arrives through a device ingestion path.
//	The kind must be in the configured availability list and the value
//	must be finite.
func HandleAddMetric(store *metricstore.InfluxStore, cfg *config.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "handlers.HandleAddMetric")
		defer span.End()

		var req datatypes.AddMetricRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}
		if math.IsNaN(req.Value) || math.IsInf(req.Value, 0) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "value must be finite"})
			return
		}
		if err := validation.ValidateUserId(req.UserId); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := validateKindsAvailable([]string{req.Kind}, cfg.Current().AvailableMetricKinds); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ts := time.Now()
		if req.Timestamp != nil {
			ts = *req.Timestamp
		}

		if err := store.AddPoint(ctx, req.UserId, req.Kind, req.Value, req.Unit, ts); err != nil {
			slog.Error("Failed to store metric point",
				"user_id", req.UserId, "kind", req.Kind, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store metric"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
