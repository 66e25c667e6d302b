// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the orchestrator service.
//
// # Authentication Flow
//
// The auth middleware compares the X-API-Key header against the key
// configured at startup. When no key is configured the middleware is a
// no-op, which keeps local single-user deployments friction-free.
//
//	Request
//	   │
//	   ▼
//	APIKeyAuth
//	   │
//	   ├─► configured key empty ──► pass through
//	   │
//	   ├─► X-API-Key matches    ──► pass through
//	   │
//	   └─► otherwise            ──► 401, abort
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIKeyAuth guards a route group with a shared API key.
//
// # Description
//
//	Constant-time comparison against the configured key. An empty
//	configured key disables the check entirely.
//
// # Inputs
//   - apiKey: the expected key, typically from ORCHESTRATOR_API_KEY.
//
// # Outputs
//   - gin.HandlerFunc that aborts unauthorized requests with 401.
//
// # Limitations
//   - Single shared key, no per-user identity. Front with a real
//     identity provider for multi-tenant deployments.
func APIKeyAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		provided := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing API key"})
			return
		}
		c.Next()
	}
}
