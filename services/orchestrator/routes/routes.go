// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianVitals/services/orchestrator/config"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/handlers"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/metricstore"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/middleware"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/pipeline"
	"github.com/AleutianAI/AleutianVitals/services/orchestrator/vectorindex"
)

// Deps carries every collaborator the route tree needs.
type Deps struct {
	Chat     handlers.ChatDeps
	Index    *vectorindex.Index
	Embedder pipeline.Embedder
	Metrics  *metricstore.InfluxStore
	Config   *config.Store
	APIKey   string
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.APIKeyAuth(deps.APIKey))
	{
		v1.POST("/chat", handlers.HandleChat(deps.Chat))
		v1.POST("/chat/stream", handlers.HandleChatStream(deps.Chat))

		index := v1.Group("/index")
		{
			index.POST("/upsert", handlers.HandleIndexUpsert(deps.Index, deps.Embedder))
			index.POST("/search", handlers.HandleIndexSearch(deps.Index, deps.Embedder))
			index.POST("/delete", handlers.HandleIndexDelete(deps.Index))
		}

		v1.POST("/metrics", handlers.HandleAddMetric(deps.Metrics, deps.Config))

		configGroup := v1.Group("/config")
		{
			configGroup.GET("/metrics", handlers.HandleGetMetricConfig(deps.Config))
			configGroup.POST("/metrics", handlers.HandleUpdateMetricConfig(deps.Config))
		}
	}
}
