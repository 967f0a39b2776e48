// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metrics

import "time"

// ExecutionContext carries optional request context for a stage execution.
// Absent fields are excluded from aggregation, never defaulted.
type ExecutionContext struct {
	// Product is the product line the request belongs to.
	Product string `json:"product,omitempty"`

	// URL is the source URL being processed, when applicable.
	URL string `json:"url,omitempty"`

	// Complexity is a caller-defined complexity label.
	Complexity string `json:"complexity,omitempty"`
}

// ExecutionResults carries optional outcome measurements for a stage
// execution.
type ExecutionResults struct {
	// ItemsProcessed is the number of items the stage handled.
	ItemsProcessed int `json:"items_processed,omitempty"`

	// SourcesFound is the number of sources the stage discovered.
	SourcesFound int `json:"sources_found,omitempty"`

	// QualityScore is the assessed output quality. Nil means no score was
	// assigned; a nil score is excluded from averages rather than treated
	// as zero.
	QualityScore *float64 `json:"quality_score,omitempty"`
}

// StageExecution records one completed pipeline stage execution.
// Append-only; never mutated after creation.
type StageExecution struct {
	// Stage is the caller-defined stage name.
	Stage string `json:"stage"`

	// ExecutionTime is the wall-clock duration of the stage.
	ExecutionTime time.Duration `json:"execution_time"`

	// Success indicates the stage completed without error.
	Success bool `json:"success"`

	// Error is the failure message. Empty on success.
	Error string `json:"error,omitempty"`

	// Context is optional request context.
	Context *ExecutionContext `json:"context,omitempty"`

	// Results are optional outcome measurements.
	Results *ExecutionResults `json:"results,omitempty"`

	// Timestamp is when the execution completed. The Recorder fills a zero
	// value with the current time.
	Timestamp time.Time `json:"timestamp"`
}

// RefinementCycle records one attempt in a multi-attempt quality-improvement
// loop over pipeline output.
type RefinementCycle struct {
	// Attempt is the 1-based attempt number.
	Attempt int `json:"attempt"`

	// QualityScore is the score assigned to this attempt's output.
	QualityScore float64 `json:"quality_score"`

	// IssuesFound lists the issues identified during the attempt.
	IssuesFound []string `json:"issues_found,omitempty"`

	// FixesApplied lists the fixes applied during the attempt.
	FixesApplied []string `json:"fixes_applied,omitempty"`

	// Duration is the wall-clock time of the attempt.
	Duration time.Duration `json:"duration"`

	// Timestamp is when the attempt completed. The Recorder fills a zero
	// value with the current time.
	Timestamp time.Time `json:"timestamp"`
}
