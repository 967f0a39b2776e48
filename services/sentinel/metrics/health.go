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

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/AleutianAI/sentinel/services/sentinel/shadow"
)

// -----------------------------------------------------------------------------
// Health Status
// -----------------------------------------------------------------------------

// HealthStatus represents the tiered health verdict of the pipeline.
type HealthStatus int

const (
	// HealthUnknown means no recent activity to classify.
	HealthUnknown HealthStatus = iota
	// HealthHealthy means all thresholds are met.
	HealthHealthy
	// HealthDegraded means reduced quality or slow execution.
	HealthDegraded
	// HealthUnhealthy means the success rate fell below the floor.
	HealthUnhealthy
)

// String returns the string representation of a HealthStatus.
func (h HealthStatus) String() string {
	switch h {
	case HealthUnknown:
		return "unknown"
	case HealthHealthy:
		return "healthy"
	case HealthDegraded:
		return "degraded"
	case HealthUnhealthy:
		return "unhealthy"
	default:
		return fmt.Sprintf("health_status(%d)", h)
	}
}

// MarshalJSON encodes the status as its string form.
func (h HealthStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + h.String() + `"`), nil
}

// UnmarshalJSON decodes the string form back into a HealthStatus.
// Unrecognized values decode to HealthUnknown.
func (h *HealthStatus) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "healthy":
		*h = HealthHealthy
	case "degraded":
		*h = HealthDegraded
	case "unhealthy":
		*h = HealthUnhealthy
	default:
		*h = HealthUnknown
	}
	return nil
}

// -----------------------------------------------------------------------------
// Threshold Policy
// -----------------------------------------------------------------------------

// Thresholds is the classification policy applied to recent aggregates.
type Thresholds struct {
	// MinSuccessRate is the success-rate floor in percent; below it the
	// pipeline is unhealthy.
	MinSuccessRate float64

	// MaxAvgExecution is the mean execution time ceiling; above it the
	// pipeline is degraded.
	MaxAvgExecution time.Duration

	// MinQualityScore is the quality floor; a nonzero mean quality below
	// it marks the pipeline degraded.
	MinQualityScore float64
}

// DefaultThresholds returns the deployment-default classification policy.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinSuccessRate:  80,
		MaxAvgExecution: 45 * time.Second,
		MinQualityScore: 70,
	}
}

// DefaultHealthWindow is the trailing look-back used to scope health
// classification to recent activity.
const DefaultHealthWindow = time.Hour

// -----------------------------------------------------------------------------
// Health Types
// -----------------------------------------------------------------------------

// HealthDetails carries the raw aggregates behind a health verdict.
type HealthDetails struct {
	// RecentExecutions is the number of records inside the window.
	RecentExecutions int `json:"recent_executions"`

	// SuccessRate is the windowed success rate in percent.
	SuccessRate float64 `json:"success_rate"`

	// AvgExecutionMs is the windowed mean execution time in milliseconds.
	AvgExecutionMs float64 `json:"avg_execution_ms"`

	// AvgQualityScore is the windowed mean quality over records carrying
	// a score; zero when no record carried one.
	AvgQualityScore float64 `json:"avg_quality_score"`

	// Stages is the per-stage breakdown over the full ledger, keyed by
	// stage name.
	Stages map[string]StageStats `json:"stages"`
}

// Health is a tiered health verdict with supporting details.
type Health struct {
	// Status is the verdict tier.
	Status HealthStatus `json:"status"`

	// Message is a one-line explanation of the verdict.
	Message string `json:"message"`

	// Details carries the aggregates the verdict was derived from.
	Details HealthDetails `json:"details"`
}

// Snapshot bundles raw ledgers, derived statistics, and the health verdict
// for external consumption. The caller owns serialization and delivery.
type Snapshot struct {
	// GeneratedAt is when the snapshot was assembled.
	GeneratedAt time.Time `json:"generated_at"`

	// Executions is the raw execution ledger, oldest first.
	Executions []StageExecution `json:"executions"`

	// Refinements is the raw refinement ledger, oldest first.
	Refinements []RefinementCycle `json:"refinements"`

	// Stages is the per-stage breakdown, keyed by stage name.
	Stages map[string]StageStats `json:"stages"`

	// Overall summarizes the whole execution ledger.
	Overall StageStats `json:"overall"`

	// Refinement summarizes the refinement ledger.
	Refinement RefinementStats `json:"refinement"`

	// Validation holds the shadow validation counters, when a validator
	// is wired.
	Validation *shadow.Stats `json:"validation,omitempty"`

	// Health is the current verdict.
	Health Health `json:"health"`
}

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithThresholds sets the classification policy.
func WithThresholds(t Thresholds) ClassifierOption {
	return func(c *Classifier) { c.thresholds = t }
}

// WithWindow sets the trailing look-back window.
func WithWindow(w time.Duration) ClassifierOption {
	return func(c *Classifier) {
		if w > 0 {
			c.window = w
		}
	}
}

// WithKnownStages sets the deployment-configured stage names always present
// in the per-stage breakdown, even before their first record arrives.
func WithKnownStages(stages []string) ClassifierOption {
	return func(c *Classifier) { c.knownStages = stages }
}

// WithValidationStats wires a provider for shadow validation counters so
// snapshots can include them.
func WithValidationStats(fn func() shadow.Stats) ClassifierOption {
	return func(c *Classifier) { c.validationStats = fn }
}

// WithNow overrides the time source. Tests use this to pin the window.
func WithNow(now func() time.Time) ClassifierOption {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

// -----------------------------------------------------------------------------
// Classifier
// -----------------------------------------------------------------------------

// Classifier derives a tiered health verdict from recent execution records.
//
// Description:
//
//	Classification considers only records inside the trailing window
//	(default one hour). The policy is evaluated in order, first match wins:
//	success rate below floor is unhealthy; slow mean execution or low mean
//	quality is degraded; otherwise healthy. No records in the window yields
//	unknown.
//
// Thread Safety: Safe for concurrent use; reads are ledger snapshots.
type Classifier struct {
	rec             *Recorder
	agg             *Aggregator
	thresholds      Thresholds
	window          time.Duration
	knownStages     []string
	validationStats func() shadow.Stats
	now             func() time.Time
}

// NewClassifier creates a Classifier over the given recorder.
//
// Inputs:
//   - rec: The recorder owning the ledgers. Must not be nil.
//   - opts: Optional thresholds, window, known stages, and clock.
//
// Outputs:
//   - *Classifier: The classifier. Never nil.
func NewClassifier(rec *Recorder, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		rec:        rec,
		agg:        NewAggregator(rec),
		thresholds: DefaultThresholds(),
		window:     DefaultHealthWindow,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SystemHealth classifies pipeline health over the trailing window.
//
// Outputs:
//   - Health: Verdict, message, and the aggregates behind them.
//
// Thread Safety: Safe for concurrent use.
func (c *Classifier) SystemHealth() Health {
	cutoff := c.now().Add(-c.window)

	var recent []StageExecution
	for _, rec := range c.rec.Executions() {
		if rec.Timestamp.After(cutoff) {
			recent = append(recent, rec)
		}
	}

	details := HealthDetails{
		RecentExecutions: len(recent),
		Stages:           c.stageBreakdown(),
	}

	if len(recent) == 0 {
		return Health{
			Status:  HealthUnknown,
			Message: "no recent activity",
			Details: details,
		}
	}

	windowed := computeStageStats(recent, "")
	details.SuccessRate = windowed.SuccessRate
	details.AvgExecutionMs = windowed.AverageExecutionMs
	details.AvgQualityScore = windowed.AverageQualityScore

	maxAvgMs := float64(c.thresholds.MaxAvgExecution.Nanoseconds()) / 1e6

	switch {
	case windowed.SuccessRate < c.thresholds.MinSuccessRate:
		return Health{
			Status: HealthUnhealthy,
			Message: fmt.Sprintf("success rate %.1f%% below %.1f%%",
				windowed.SuccessRate, c.thresholds.MinSuccessRate),
			Details: details,
		}
	case windowed.AverageExecutionMs > maxAvgMs:
		return Health{
			Status: HealthDegraded,
			Message: fmt.Sprintf("average execution %.0fms above %.0fms",
				windowed.AverageExecutionMs, maxAvgMs),
			Details: details,
		}
	case windowed.AverageQualityScore > 0 && windowed.AverageQualityScore < c.thresholds.MinQualityScore:
		return Health{
			Status: HealthDegraded,
			Message: fmt.Sprintf("average quality %.1f below %.1f",
				windowed.AverageQualityScore, c.thresholds.MinQualityScore),
			Details: details,
		}
	default:
		return Health{
			Status:  HealthHealthy,
			Message: "all thresholds met",
			Details: details,
		}
	}
}

// Export assembles a full snapshot of ledgers, statistics, and health.
//
// Description:
//
//	The snapshot is structured in-memory data for the operational consumer
//	(dashboard or alerting endpoint); no wire format or transport is
//	mandated here.
//
// Thread Safety: Safe for concurrent use.
func (c *Classifier) Export() Snapshot {
	snap := Snapshot{
		GeneratedAt: c.now(),
		Executions:  c.rec.Executions(),
		Refinements: c.rec.Refinements(),
		Stages:      c.stageBreakdown(),
		Overall:     c.agg.StageStats(""),
		Refinement:  c.agg.RefinementStats(),
		Health:      c.SystemHealth(),
	}
	if c.validationStats != nil {
		stats := c.validationStats()
		snap.Validation = &stats
	}
	return snap
}

// stageBreakdown computes per-stage statistics for every known stage: the
// deployment-configured set plus any stage observed in the ledger.
func (c *Classifier) stageBreakdown() map[string]StageStats {
	names := make(map[string]struct{}, len(c.knownStages))
	for _, name := range c.knownStages {
		names[name] = struct{}{}
	}
	for _, name := range c.agg.StageNames() {
		names[name] = struct{}{}
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	breakdown := make(map[string]StageStats, len(sorted))
	for _, name := range sorted {
		breakdown[name] = c.agg.StageStats(name)
	}
	return breakdown
}
