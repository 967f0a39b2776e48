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
	"log/slog"
	"sync"
	"time"

	"github.com/AleutianAI/sentinel/services/sentinel/sink"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

const (
	// DefaultMaxLedgerSize caps each ledger when no size is configured.
	DefaultMaxLedgerSize = 500

	// DefaultSlowExecution is the threshold above which a stage execution
	// is logged as slow.
	DefaultSlowExecution = 30 * time.Second
)

// RecorderConfig controls ledger capacity and the slow-execution threshold.
type RecorderConfig struct {
	// MaxLedgerSize caps the execution and refinement ledgers independently.
	// Zero or negative means DefaultMaxLedgerSize.
	MaxLedgerSize int

	// SlowExecution is the warning threshold for stage execution time.
	// Zero or negative means DefaultSlowExecution.
	SlowExecution time.Duration
}

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithSink sets the monitoring sink receiving record summaries.
func WithSink(s sink.Sink) RecorderOption {
	return func(r *Recorder) {
		if s != nil {
			r.sink = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// withClock overrides the time source. Tests only.
func withClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// -----------------------------------------------------------------------------
// Recorder
// -----------------------------------------------------------------------------

// Recorder is the bounded in-memory ledger of pipeline telemetry.
//
// Description:
//
//	Recorder owns two independent FIFO ledgers (stage executions and
//	refinement cycles), each capped at the configured maximum. Every
//	recorded entry is also forwarded to the monitoring sink fire-and-forget:
//	sink errors and panics are contained here and never surface to the
//	recording caller.
//
// Thread Safety: Safe for concurrent use. One long-lived instance per
// process, constructed at bootstrap.
type Recorder struct {
	cfg    RecorderConfig
	sink   sink.Sink
	logger *slog.Logger
	now    func() time.Time

	mu          sync.RWMutex
	executions  *ledger[StageExecution]
	refinements *ledger[RefinementCycle]
}

// NewRecorder creates a Recorder with the given configuration.
//
// Inputs:
//   - cfg: Ledger capacity and slow-execution threshold. Zero values take
//     defaults.
//   - opts: Optional sink and logger.
//
// Outputs:
//   - *Recorder: The recorder. Never nil.
func NewRecorder(cfg RecorderConfig, opts ...RecorderOption) *Recorder {
	if cfg.MaxLedgerSize <= 0 {
		cfg.MaxLedgerSize = DefaultMaxLedgerSize
	}
	if cfg.SlowExecution <= 0 {
		cfg.SlowExecution = DefaultSlowExecution
	}

	r := &Recorder{
		cfg:         cfg,
		sink:        sink.NopSink{},
		logger:      slog.Default(),
		now:         time.Now,
		executions:  newLedger[StageExecution](cfg.MaxLedgerSize),
		refinements: newLedger[RefinementCycle](cfg.MaxLedgerSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RecordExecution appends a stage execution record.
//
// Description:
//
//	Appends to the execution ledger (evicting the oldest entry beyond the
//	cap), forwards a summary to the monitoring sink best-effort, and logs
//	a warning when the execution time exceeds the slow-execution threshold.
//	A zero Timestamp is filled with the current time.
//
// Inputs:
//   - ctx: Context forwarded to the sink. Must not be nil.
//   - rec: The execution record.
//
// Thread Safety: Safe for concurrent use.
func (r *Recorder) RecordExecution(ctx context.Context, rec StageExecution) {
	if ctx == nil {
		ctx = context.Background()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.now()
	}

	r.mu.Lock()
	r.executions.append(rec)
	r.mu.Unlock()

	if rec.ExecutionTime > r.cfg.SlowExecution {
		r.logger.Warn("slow stage execution",
			"stage", rec.Stage,
			"execution_ms", rec.ExecutionTime.Milliseconds(),
			"threshold_ms", r.cfg.SlowExecution.Milliseconds())
	}

	tags := map[string]string{}
	if rec.Context != nil {
		if rec.Context.Product != "" {
			tags["product"] = rec.Context.Product
		}
		if rec.Context.Complexity != "" {
			tags["complexity"] = rec.Context.Complexity
		}
	}

	r.forward(func() error {
		return r.sink.RecordExecution(ctx, &sink.ExecutionData{
			Stage:     rec.Stage,
			Duration:  rec.ExecutionTime,
			Success:   rec.Success,
			Error:     rec.Error,
			Tags:      tags,
			Timestamp: rec.Timestamp,
		})
	})
}

// RecordRefinement appends a refinement-cycle record.
//
// Description:
//
//	Appends to the refinement ledger under the same eviction policy and
//	forwards a summary to the monitoring sink best-effort. A zero Timestamp
//	is filled with the current time.
//
// Thread Safety: Safe for concurrent use.
func (r *Recorder) RecordRefinement(ctx context.Context, rec RefinementCycle) {
	if ctx == nil {
		ctx = context.Background()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.now()
	}

	r.mu.Lock()
	r.refinements.append(rec)
	r.mu.Unlock()

	r.forward(func() error {
		return r.sink.RecordRefinement(ctx, &sink.RefinementData{
			Attempt:      rec.Attempt,
			QualityScore: rec.QualityScore,
			IssueCount:   len(rec.IssuesFound),
			FixCount:     len(rec.FixesApplied),
			Duration:     rec.Duration,
			Timestamp:    rec.Timestamp,
		})
	})
}

// ClearOlderThan removes entries older than the given age from both ledgers.
//
// Description:
//
//	The retention/cleanup job invokes this on a schedule outside the core's
//	control. Entries with a Timestamp before now-age are dropped.
//
// Inputs:
//   - age: Retention window. Non-positive ages remove nothing.
//
// Outputs:
//   - int: Total number of entries removed.
//
// Thread Safety: Safe for concurrent use.
func (r *Recorder) ClearOlderThan(age time.Duration) int {
	if age <= 0 {
		return 0
	}
	cutoff := r.now().Add(-age)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := r.executions.purge(func(e StageExecution) bool {
		return !e.Timestamp.Before(cutoff)
	})
	removed += r.refinements.purge(func(c RefinementCycle) bool {
		return !c.Timestamp.Before(cutoff)
	})

	if removed > 0 {
		r.logger.Info("purged aged metrics",
			"removed", removed,
			"cutoff", cutoff)
	}
	return removed
}

// Executions returns a copy of the execution ledger, oldest first.
//
// Thread Safety: Safe for concurrent use; a point-in-time snapshot.
func (r *Recorder) Executions() []StageExecution {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.executions.snapshot()
}

// Refinements returns a copy of the refinement ledger, oldest first.
//
// Thread Safety: Safe for concurrent use; a point-in-time snapshot.
func (r *Recorder) Refinements() []RefinementCycle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refinements.snapshot()
}

// ExecutionCount returns the current execution ledger length.
func (r *Recorder) ExecutionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.executions.len()
}

// RefinementCount returns the current refinement ledger length.
func (r *Recorder) RefinementCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refinements.len()
}

// forward runs a sink delivery, containing errors and panics. Telemetry must
// never destabilize the pipeline it observes.
func (r *Recorder) forward(deliver func() error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Debug("monitoring sink panicked", "panic", p)
		}
	}()
	if err := deliver(); err != nil {
		r.logger.Debug("monitoring sink rejected event", "error", err)
	}
}
