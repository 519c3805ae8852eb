// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all dashboard routes with the router group.
//
// Endpoints:
//
//	GET    /api/models    - Selectable LLM models
//	POST   /api/scan      - Run a scan over a directory
//	GET    /api/results   - Latest persisted scan results
//	GET    /api/browse    - Directory listing for the file browser
//	POST   /api/test-llm  - OpenRouter connectivity check
//	GET    /api/logs      - Recent log lines
//	DELETE /api/logs      - Clear the log ring
//	POST   /api/test-logs - Emit test log lines
//	GET    /api/health    - Liveness check
//
// Example:
//
//	handlers := server.NewHandlers(logger, ring, llm.LoadConfig(), "")
//	api := router.Group("/api")
//	server.RegisterRoutes(api, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	rg.GET("/models", handlers.HandleModels)
	rg.POST("/scan", handlers.HandleScan)
	rg.GET("/results", handlers.HandleResults)
	rg.GET("/browse", handlers.HandleBrowse)
	rg.POST("/test-llm", handlers.HandleTestLLM)
	rg.GET("/logs", handlers.HandleLogs)
	rg.DELETE("/logs", handlers.HandleClearLogs)
	rg.POST("/test-logs", handlers.HandleTestLogs)
	rg.GET("/health", handlers.HandleHealth)
}
