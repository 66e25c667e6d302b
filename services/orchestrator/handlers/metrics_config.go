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
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianVitals/services/orchestrator/config"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/datatypes"
)

// HandleGetMetricConfig returns the live metric configuration snapshot.
func HandleGetMetricConfig(cfg *config.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		settings := cfg.Current()
		c.JSON(http.StatusOK, datatypes.MetricConfigResponse{
			Version:              settings.Version,
			DefaultMetricKinds:   settings.DefaultMetricKinds,
			AvailableMetricKinds: settings.AvailableMetricKinds,
		})
	}
}

// HandleUpdateMetricConfig swaps in a new metric configuration.
//
// # Description
//
//	Fields omitted from the request keep their current values. When the
//	request carries an expected_version, the update is conditional on it
//	and a stale version is rejected with 409 so the caller can re-read
//	and retry; omitting expected_version applies the update against the
//	live version (last-writer-wins for single-admin deployments).
//
// # Outputs
//   - 200: the new snapshot
//   - 400: defaults not a subset of availability
//   - 409: version conflict
func HandleUpdateMetricConfig(cfg *config.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.MetricConfigUpdateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
			return
		}

		current := cfg.Current()
		expected := req.ExpectedVersion
		if expected == 0 {
			expected = current.Version
		}
		defaults := req.DefaultMetricKinds
		if defaults == nil {
			defaults = current.DefaultMetricKinds
		}
		available := req.AvailableMetricKinds
		if available == nil {
			available = current.AvailableMetricKinds
		}

		updated, err := cfg.Update(expected, defaults, available)
		if err != nil {
			switch {
			case config.IsVersionConflict(err):
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			case errors.Is(err, config.ErrDefaultsNotAvailable):
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update configuration"})
			}
			return
		}

		c.JSON(http.StatusOK, datatypes.MetricConfigResponse{
			Version:              updated.Version,
			DefaultMetricKinds:   updated.DefaultMetricKinds,
			AvailableMetricKinds: updated.AvailableMetricKinds,
		})
	}
}
