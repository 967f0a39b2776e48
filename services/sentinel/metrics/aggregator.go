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

import "sort"

// -----------------------------------------------------------------------------
// Derived Statistics Types
// -----------------------------------------------------------------------------

// StageStats summarizes execution records for one stage, or for the whole
// ledger when no stage filter was applied.
type StageStats struct {
	// Stage is the filter this summary was computed for. Empty means all
	// stages.
	Stage string `json:"stage,omitempty"`

	// TotalExecutions is the number of matching records.
	TotalExecutions int `json:"total_executions"`

	// SuccessRate is the percentage of matching records that succeeded.
	SuccessRate float64 `json:"success_rate"`

	// AverageExecutionMs is the mean execution time in milliseconds.
	AverageExecutionMs float64 `json:"average_execution_ms"`

	// AverageQualityScore is the mean quality score over records that
	// carry one. Records without a score are excluded entirely.
	AverageQualityScore float64 `json:"average_quality_score"`

	// ErrorCount is the number of failed records.
	ErrorCount int `json:"error_count"`

	// RecentErrors holds up to the five most recent error messages,
	// oldest first.
	RecentErrors []string `json:"recent_errors"`
}

// IssueCount pairs a refinement issue with its occurrence count.
type IssueCount struct {
	// Issue is the issue description as reported by the refinement loop.
	Issue string `json:"issue"`

	// Count is how many refinement records reported it.
	Count int `json:"count"`
}

// RefinementStats summarizes the refinement ledger.
type RefinementStats struct {
	// TotalRefinements is the number of refinement records.
	TotalRefinements int `json:"total_refinements"`

	// AverageAttempts is the mean attempt number across records.
	AverageAttempts float64 `json:"average_attempts"`

	// AverageQualityImprovement is the mean quality score over records
	// with Attempt > 1. This approximates late-stage quality, not a true
	// before/after delta.
	AverageQualityImprovement float64 `json:"average_quality_improvement"`

	// CommonIssues holds up to the ten most frequent issues,
	// frequency-ranked with ties broken by first-seen order.
	CommonIssues []IssueCount `json:"common_issues"`
}

// maxRecentErrors bounds StageStats.RecentErrors.
const maxRecentErrors = 5

// maxCommonIssues bounds RefinementStats.CommonIssues.
const maxCommonIssues = 10

// -----------------------------------------------------------------------------
// Aggregator
// -----------------------------------------------------------------------------

// Aggregator derives statistics from a Recorder's ledgers on demand.
//
// Description:
//
//	All computations run over point-in-time ledger snapshots; nothing is
//	cached. Records missing an optional field are excluded from the
//	affected average rather than counted as zero.
//
// Thread Safety: Safe for concurrent use; state lives in the Recorder.
type Aggregator struct {
	rec *Recorder
}

// NewAggregator creates an Aggregator over the given recorder.
//
// Inputs:
//   - rec: The recorder owning the ledgers. Must not be nil.
//
// Outputs:
//   - *Aggregator: The aggregator. Never nil.
func NewAggregator(rec *Recorder) *Aggregator {
	return &Aggregator{rec: rec}
}

// StageStats computes execution statistics for one stage, or for the whole
// ledger when stage is empty.
//
// Description:
//
//	An empty ledger (or a filter matching nothing) yields an all-zero
//	result with an empty RecentErrors slice, never an error.
//
// Inputs:
//   - stage: Stage name filter. Empty means all stages.
//
// Outputs:
//   - StageStats: The derived summary.
//
// Thread Safety: Safe for concurrent use.
func (a *Aggregator) StageStats(stage string) StageStats {
	return computeStageStats(a.rec.Executions(), stage)
}

// StageNames returns the distinct stage names present in the execution
// ledger, sorted.
//
// Thread Safety: Safe for concurrent use.
func (a *Aggregator) StageNames() []string {
	seen := make(map[string]struct{})
	for _, rec := range a.rec.Executions() {
		seen[rec.Stage] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RefinementStats computes statistics over the refinement ledger.
//
// Description:
//
//	AverageQualityImprovement averages the quality score of attempts beyond
//	the first rather than a first-to-final delta; the behavior is kept as
//	the upstream consumers expect it. Common issues are ranked by frequency
//	with first-seen order breaking ties.
//
// Outputs:
//   - RefinementStats: The derived summary; all-zero with empty
//     CommonIssues on an empty ledger.
//
// Thread Safety: Safe for concurrent use.
func (a *Aggregator) RefinementStats() RefinementStats {
	records := a.rec.Refinements()

	stats := RefinementStats{CommonIssues: []IssueCount{}}
	if len(records) == 0 {
		return stats
	}
	stats.TotalRefinements = len(records)

	var attemptSum int
	var lateQualitySum float64
	var lateQualityCount int

	type issueEntry struct {
		issue     string
		count     int
		firstSeen int
	}
	issueIndex := make(map[string]int)
	var issues []issueEntry

	for _, rec := range records {
		attemptSum += rec.Attempt
		if rec.Attempt > 1 {
			lateQualitySum += rec.QualityScore
			lateQualityCount++
		}
		for _, issue := range rec.IssuesFound {
			if idx, ok := issueIndex[issue]; ok {
				issues[idx].count++
				continue
			}
			issueIndex[issue] = len(issues)
			issues = append(issues, issueEntry{issue: issue, count: 1, firstSeen: len(issues)})
		}
	}

	stats.AverageAttempts = float64(attemptSum) / float64(len(records))
	if lateQualityCount > 0 {
		stats.AverageQualityImprovement = lateQualitySum / float64(lateQualityCount)
	}

	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].count != issues[j].count {
			return issues[i].count > issues[j].count
		}
		return issues[i].firstSeen < issues[j].firstSeen
	})
	for i, entry := range issues {
		if i >= maxCommonIssues {
			break
		}
		stats.CommonIssues = append(stats.CommonIssues, IssueCount{Issue: entry.issue, Count: entry.count})
	}

	return stats
}

// computeStageStats derives StageStats from a record snapshot. Shared with
// the health classifier, which aggregates over windowed snapshots.
func computeStageStats(records []StageExecution, stage string) StageStats {
	stats := StageStats{Stage: stage, RecentErrors: []string{}}

	var (
		matched      int
		successCount int
		durationSum  float64
		qualitySum   float64
		qualityCount int
		errs         []string
	)

	for _, rec := range records {
		if stage != "" && rec.Stage != stage {
			continue
		}
		matched++
		durationSum += float64(rec.ExecutionTime.Nanoseconds()) / 1e6
		if rec.Success {
			successCount++
		} else {
			stats.ErrorCount++
			if rec.Error != "" {
				errs = append(errs, rec.Error)
			}
		}
		if rec.Results != nil && rec.Results.QualityScore != nil {
			qualitySum += *rec.Results.QualityScore
			qualityCount++
		}
	}

	if matched == 0 {
		return stats
	}

	stats.TotalExecutions = matched
	stats.SuccessRate = float64(successCount) / float64(matched) * 100
	stats.AverageExecutionMs = durationSum / float64(matched)
	if qualityCount > 0 {
		stats.AverageQualityScore = qualitySum / float64(qualityCount)
	}
	if len(errs) > maxRecentErrors {
		errs = errs[len(errs)-maxRecentErrors:]
	}
	stats.RecentErrors = append(stats.RecentErrors, errs...)

	return stats
}
