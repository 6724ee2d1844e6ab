// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sandbox

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all sandbox routes with the router.
//
// Description:
//
//	Registers all /v1/sandbox/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	POST /v1/sandbox/transform - Rewrite a module into the sandbox namespace
//	POST /v1/sandbox/verify - Build and verify the deployment hierarchy
//	POST /v1/sandbox/describe - Summarize module classes
//	GET  /v1/sandbox/catalog - List the platform catalog
//	GET  /v1/sandbox/health - Health check
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	sb := rg.Group("/sandbox")
	{
		sb.POST("/transform", handlers.HandleTransform)
		sb.POST("/verify", handlers.HandleVerify)
		sb.POST("/describe", handlers.HandleDescribe)
		sb.GET("/catalog", handlers.HandleCatalog)
		sb.GET("/health", handlers.HandleHealth)
	}
}
