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
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianRisk/services/riskd/handlers"
	"github.com/AleutianAI/AleutianRisk/services/riskd/middleware"
)

// Deps carries everything SetupRoutes wires handlers over. Signals may
// be nil when no signal backend is configured; its route then answers
// 503 instead of disappearing from the surface.
type Deps struct {
	Assessor      handlers.Assessor
	Signals       handlers.SignalReader
	Version       string
	Backends      handlers.BackendStatus
	EnableMetrics bool
}

func SetupRoutes(router *gin.Engine, deps Deps) {
	router.Use(middleware.RequestID())

	router.GET("/healthz", handlers.HandleHealth(deps.Version, deps.Backends))
	if deps.EnableMetrics {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	// API version 1 group
	v1 := router.Group("/api/v1")
	{
		risk := v1.Group("/risk")
		{
			risk.POST("/assess", handlers.HandleAssess(deps.Assessor))
			if deps.Signals != nil {
				risk.GET("/signals/:ticker", handlers.HandleSignals(deps.Signals))
			} else {
				risk.GET("/signals/:ticker", func(c *gin.Context) {
					c.JSON(http.StatusServiceUnavailable, gin.H{"error": "signal backend not configured"})
				})
			}
		}
	}
}
