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
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRoutes registers all API routes on the router.
func SetupRoutes(router *gin.Engine, opts Options) {
	router.GET("/health", Liveness)

	if opts.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	}

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.GET("/health", GetSystemHealth(opts.Classifier))
		v1.GET("/export", GetExport(opts.Classifier))

		v1.POST("/executions", PostExecution(opts.Recorder))
		v1.POST("/refinements", PostRefinement(opts.Recorder))

		stats := v1.Group("/stats")
		{
			stats.GET("/stages", GetAllStageStats(opts.Aggregator))
			stats.GET("/stages/:stage", GetStageStats(opts.Aggregator))
			stats.GET("/refinements", GetRefinementStats(opts.Aggregator))
		}

		if opts.Validator != nil {
			validation := v1.Group("/validation")
			{
				validation.GET("/stats", GetValidationStats(opts.Validator))
				validation.POST("/reset", ResetValidationStats(opts.Validator))
			}
		}
	}
}

// Liveness reports process liveness for container orchestration probes.
// Pipeline health lives at /v1/health.
func Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
