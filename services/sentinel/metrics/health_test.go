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
	"context"
	"testing"
	"time"

	"github.com/AleutianAI/sentinel/services/sentinel/shadow"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestClassifier returns a recorder/classifier pair with a fixed clock.
func newTestClassifier(opts ...ClassifierOption) (*Recorder, *Classifier) {
	r := NewRecorder(RecorderConfig{}, withClock(func() time.Time { return testNow }))
	opts = append([]ClassifierOption{WithNow(func() time.Time { return testNow })}, opts...)
	return r, NewClassifier(r, opts...)
}

// record adds an execution inside the health window.
func record(r *Recorder, success bool, execTime time.Duration, quality *float64) {
	exec := StageExecution{
		Stage:         "stage",
		ExecutionTime: execTime,
		Success:       success,
		Timestamp:     testNow.Add(-5 * time.Minute),
	}
	if quality != nil {
		exec.Results = &ExecutionResults{QualityScore: quality}
	}
	r.RecordExecution(context.Background(), exec)
}

func TestHealthStatusString(t *testing.T) {
	cases := map[HealthStatus]string{
		HealthUnknown:   "unknown",
		HealthHealthy:   "healthy",
		HealthDegraded:  "degraded",
		HealthUnhealthy: "unhealthy",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", status, got, want)
		}
	}
}

func TestSystemHealth_NoRecentActivity(t *testing.T) {
	_, c := newTestClassifier()

	health := c.SystemHealth()
	if health.Status != HealthUnknown {
		t.Errorf("Status = %v, want HealthUnknown", health.Status)
	}
	if health.Message != "no recent activity" {
		t.Errorf("Message = %q", health.Message)
	}
	if health.Details.RecentExecutions != 0 {
		t.Errorf("RecentExecutions = %d, want 0", health.Details.RecentExecutions)
	}
}

func TestSystemHealth_OldRecordsOutsideWindow(t *testing.T) {
	r, c := newTestClassifier()

	r.RecordExecution(context.Background(), StageExecution{
		Stage:     "stage",
		Success:   true,
		Timestamp: testNow.Add(-2 * time.Hour),
	})

	health := c.SystemHealth()
	if health.Status != HealthUnknown {
		t.Errorf("Status = %v, want HealthUnknown (record outside 1h window)", health.Status)
	}
}

func TestSystemHealth_Healthy(t *testing.T) {
	r, c := newTestClassifier()

	for i := 0; i < 10; i++ {
		record(r, true, time.Second, score(90))
	}

	health := c.SystemHealth()
	if health.Status != HealthHealthy {
		t.Errorf("Status = %v (%s), want HealthHealthy", health.Status, health.Message)
	}
	if health.Details.SuccessRate != 100 {
		t.Errorf("SuccessRate = %v, want 100", health.Details.SuccessRate)
	}
}

func TestSystemHealth_UnhealthyLowSuccessRate(t *testing.T) {
	r, c := newTestClassifier()

	// 7 of 10 succeed: 70% < 80% floor.
	for i := 0; i < 7; i++ {
		record(r, true, time.Second, nil)
	}
	for i := 0; i < 3; i++ {
		record(r, false, time.Second, nil)
	}

	health := c.SystemHealth()
	if health.Status != HealthUnhealthy {
		t.Errorf("Status = %v (%s), want HealthUnhealthy", health.Status, health.Message)
	}
}

func TestSystemHealth_DegradedSlowExecution(t *testing.T) {
	r, c := newTestClassifier()

	for i := 0; i < 5; i++ {
		record(r, true, 60*time.Second, nil)
	}

	health := c.SystemHealth()
	if health.Status != HealthDegraded {
		t.Errorf("Status = %v (%s), want HealthDegraded", health.Status, health.Message)
	}
}

func TestSystemHealth_DegradedLowQuality(t *testing.T) {
	r, c := newTestClassifier()

	for i := 0; i < 5; i++ {
		record(r, true, time.Second, score(50))
	}

	health := c.SystemHealth()
	if health.Status != HealthDegraded {
		t.Errorf("Status = %v (%s), want HealthDegraded", health.Status, health.Message)
	}
}

func TestSystemHealth_NoQualityScoresIsHealthy(t *testing.T) {
	r, c := newTestClassifier()

	// Zero mean quality means "no scores", not "terrible quality".
	for i := 0; i < 5; i++ {
		record(r, true, time.Second, nil)
	}

	health := c.SystemHealth()
	if health.Status != HealthHealthy {
		t.Errorf("Status = %v (%s), want HealthHealthy", health.Status, health.Message)
	}
}

func TestSystemHealth_UnhealthyTakesPriority(t *testing.T) {
	r, c := newTestClassifier()

	// Both slow and failing: success rate is checked first.
	for i := 0; i < 10; i++ {
		record(r, false, 60*time.Second, score(10))
	}

	health := c.SystemHealth()
	if health.Status != HealthUnhealthy {
		t.Errorf("Status = %v, want HealthUnhealthy to win over degraded causes", health.Status)
	}
}

func TestSystemHealth_CustomThresholds(t *testing.T) {
	r, c := newTestClassifier(WithThresholds(Thresholds{
		MinSuccessRate:  50,
		MaxAvgExecution: 10 * time.Minute,
		MinQualityScore: 10,
	}))

	// 70% success passes a 50% floor.
	for i := 0; i < 7; i++ {
		record(r, true, time.Second, nil)
	}
	for i := 0; i < 3; i++ {
		record(r, false, time.Second, nil)
	}

	health := c.SystemHealth()
	if health.Status != HealthHealthy {
		t.Errorf("Status = %v (%s), want HealthHealthy with relaxed thresholds", health.Status, health.Message)
	}
}

func TestSystemHealth_CustomWindow(t *testing.T) {
	r, c := newTestClassifier(WithWindow(10 * time.Minute))

	r.RecordExecution(context.Background(), StageExecution{
		Stage:     "stage",
		Success:   true,
		Timestamp: testNow.Add(-30 * time.Minute),
	})

	health := c.SystemHealth()
	if health.Status != HealthUnknown {
		t.Errorf("Status = %v, want HealthUnknown with a 10m window", health.Status)
	}
}

func TestSystemHealth_KnownStagesInBreakdown(t *testing.T) {
	r, c := newTestClassifier(WithKnownStages([]string{"collect", "analyze", "synthesize"}))

	record(r, true, time.Second, nil)

	health := c.SystemHealth()
	// Configured stages appear even with no records; observed stage joins them.
	for _, name := range []string{"collect", "analyze", "synthesize", "stage"} {
		if _, ok := health.Details.Stages[name]; !ok {
			t.Errorf("Stages missing %q: %v", name, health.Details.Stages)
		}
	}
}

func TestExport(t *testing.T) {
	r, c := newTestClassifier(WithValidationStats(func() shadow.Stats {
		return shadow.Stats{TotalValidations: 12, DivergenceCount: 3, DivergenceRate: 0.25}
	}))

	record(r, true, time.Second, score(90))
	r.RecordRefinement(context.Background(), RefinementCycle{Attempt: 2, QualityScore: 85})

	snap := c.Export()
	if !snap.GeneratedAt.Equal(testNow) {
		t.Errorf("GeneratedAt = %v, want %v", snap.GeneratedAt, testNow)
	}
	if len(snap.Executions) != 1 || len(snap.Refinements) != 1 {
		t.Errorf("ledgers = %d/%d, want 1/1", len(snap.Executions), len(snap.Refinements))
	}
	if snap.Overall.TotalExecutions != 1 {
		t.Errorf("Overall.TotalExecutions = %d, want 1", snap.Overall.TotalExecutions)
	}
	if snap.Validation == nil || snap.Validation.TotalValidations != 12 {
		t.Errorf("Validation = %+v, want stats included", snap.Validation)
	}
	if snap.Health.Status != HealthHealthy {
		t.Errorf("Health.Status = %v, want HealthHealthy", snap.Health.Status)
	}
}

func TestExport_WithoutValidationStats(t *testing.T) {
	_, c := newTestClassifier()

	snap := c.Export()
	if snap.Validation != nil {
		t.Errorf("Validation = %+v, want nil when no provider is wired", snap.Validation)
	}
}
