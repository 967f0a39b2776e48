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
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/sentinel/services/sentinel/metrics"
	"github.com/AleutianAI/sentinel/services/sentinel/shadow"
)

// ExecutionRequest is the POST /v1/executions body.
type ExecutionRequest struct {
	Stage       string `json:"stage" binding:"required"`
	ExecutionMs int64  `json:"execution_ms" binding:"min=0"`
	Success     bool   `json:"success"`
	Error       string `json:"error"`

	Context *struct {
		Product    string `json:"product"`
		URL        string `json:"url"`
		Complexity string `json:"complexity"`
	} `json:"context"`

	Results *struct {
		ItemsProcessed int      `json:"items_processed"`
		SourcesFound   int      `json:"sources_found"`
		QualityScore   *float64 `json:"quality_score"`
	} `json:"results"`
}

// RefinementRequest is the POST /v1/refinements body.
type RefinementRequest struct {
	Attempt      int      `json:"attempt" binding:"required,min=1"`
	QualityScore float64  `json:"quality_score" binding:"min=0,max=100"`
	IssuesFound  []string `json:"issues_found"`
	FixesApplied []string `json:"fixes_applied"`
	DurationMs   int64    `json:"duration_ms" binding:"min=0"`
}

// PostExecution records a completed pipeline stage execution.
func PostExecution(rec *metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ExecutionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		exec := metrics.StageExecution{
			Stage:         req.Stage,
			ExecutionTime: time.Duration(req.ExecutionMs) * time.Millisecond,
			Success:       req.Success,
			Error:         req.Error,
		}
		if req.Context != nil {
			exec.Context = &metrics.ExecutionContext{
				Product:    req.Context.Product,
				URL:        req.Context.URL,
				Complexity: req.Context.Complexity,
			}
		}
		if req.Results != nil {
			exec.Results = &metrics.ExecutionResults{
				ItemsProcessed: req.Results.ItemsProcessed,
				SourcesFound:   req.Results.SourcesFound,
				QualityScore:   req.Results.QualityScore,
			}
		}

		rec.RecordExecution(c.Request.Context(), exec)
		c.JSON(http.StatusAccepted, gin.H{"status": "recorded"})
	}
}

// PostRefinement records one attempt of a refinement loop.
func PostRefinement(rec *metrics.Recorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RefinementRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		rec.RecordRefinement(c.Request.Context(), metrics.RefinementCycle{
			Attempt:      req.Attempt,
			QualityScore: req.QualityScore,
			IssuesFound:  req.IssuesFound,
			FixesApplied: req.FixesApplied,
			Duration:     time.Duration(req.DurationMs) * time.Millisecond,
		})
		c.JSON(http.StatusAccepted, gin.H{"status": "recorded"})
	}
}

// GetSystemHealth classifies current pipeline health.
func GetSystemHealth(classifier *metrics.Classifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, classifier.SystemHealth())
	}
}

// GetExport returns the full telemetry snapshot for offline analysis.
func GetExport(classifier *metrics.Classifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, classifier.Export())
	}
}

// GetAllStageStats returns statistics for every observed stage.
func GetAllStageStats(agg *metrics.Aggregator) gin.HandlerFunc {
	return func(c *gin.Context) {
		names := agg.StageNames()
		stages := make(map[string]metrics.StageStats, len(names))
		for _, name := range names {
			stages[name] = agg.StageStats(name)
		}
		c.JSON(http.StatusOK, gin.H{"stages": stages})
	}
}

// GetStageStats returns statistics for one stage. A stage with no
// recorded executions returns a zero-valued stats object, not 404,
// so dashboards can poll stages that have not run yet.
func GetStageStats(agg *metrics.Aggregator) gin.HandlerFunc {
	return func(c *gin.Context) {
		stage := c.Param("stage")
		c.JSON(http.StatusOK, agg.StageStats(stage))
	}
}

// GetRefinementStats returns aggregate refinement-loop statistics.
func GetRefinementStats(agg *metrics.Aggregator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, agg.RefinementStats())
	}
}

// GetValidationStats returns shadow-validation counters.
func GetValidationStats(validator *shadow.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, validator.Stats())
	}
}

// ResetValidationStats zeroes the shadow-validation counters. Used by
// operators after a divergence investigation concludes.
func ResetValidationStats(validator *shadow.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		slog.Info("Resetting shadow validation statistics")
		validator.Reset()
		c.JSON(http.StatusOK, gin.H{"status": "reset"})
	}
}
