// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sink

import (
	"context"
	"errors"
	"sync"
	"time"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrNilContext is returned when a nil context is passed.
	ErrNilContext = errors.New("context must not be nil")

	// ErrNilData is returned when nil data is passed to a Record method.
	ErrNilData = errors.New("data must not be nil")

	// ErrSinkClosed is returned when recording to a closed sink.
	ErrSinkClosed = errors.New("sink is closed")
)

// -----------------------------------------------------------------------------
// Data Types
// -----------------------------------------------------------------------------

// ExecutionData summarizes one pipeline stage execution.
type ExecutionData struct {
	// Stage is the pipeline stage name (e.g., "research", "synthesis").
	Stage string

	// Duration is the wall-clock execution time of the stage.
	Duration time.Duration

	// Success indicates whether the stage completed without error.
	Success bool

	// Error is the stage error message. Empty on success.
	Error string

	// Tags are free-form labels forwarded to the backend.
	Tags map[string]string

	// Timestamp is when the execution completed.
	Timestamp time.Time
}

// RefinementData summarizes one refinement-cycle attempt.
type RefinementData struct {
	// Attempt is the 1-based attempt number within the refinement loop.
	Attempt int

	// QualityScore is the score assigned to this attempt's output.
	QualityScore float64

	// IssueCount is the number of issues found during the attempt.
	IssueCount int

	// FixCount is the number of fixes applied during the attempt.
	FixCount int

	// Duration is the wall-clock time of the attempt.
	Duration time.Duration

	// Timestamp is when the attempt completed.
	Timestamp time.Time
}

// ValidationData summarizes one shadow validation.
type ValidationData struct {
	// Stage is the pipeline stage that was validated.
	Stage string

	// Divergence is the normalized divergence score in [0,1].
	Divergence float64

	// Passed indicates whether the divergence stayed within threshold.
	Passed bool

	// ShadowFailed indicates the shadow computation itself failed,
	// meaning no comparison was possible.
	ShadowFailed bool

	// Duration is the wall-clock time of the validation, shadow included.
	Duration time.Duration

	// Timestamp is when the validation completed.
	Timestamp time.Time
}

// -----------------------------------------------------------------------------
// Sink Interface
// -----------------------------------------------------------------------------

// Sink receives telemetry summaries for delivery to a monitoring backend.
//
// Description:
//
//	Sink is the single outbound abstraction of the QA core. Implementations
//	must accept best-effort delivery: a returned error means the event was
//	dropped, nothing more. Implementations must never panic.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Sink interface {
	// RecordExecution delivers a stage execution summary.
	RecordExecution(ctx context.Context, data *ExecutionData) error

	// RecordRefinement delivers a refinement-cycle summary.
	RecordRefinement(ctx context.Context, data *RefinementData) error

	// RecordValidation delivers a shadow validation summary.
	RecordValidation(ctx context.Context, data *ValidationData) error

	// Flush forces export of any buffered telemetry.
	Flush(ctx context.Context) error

	// Close releases resources. Idempotent.
	Close() error
}

// -----------------------------------------------------------------------------
// Nop Sink
// -----------------------------------------------------------------------------

// NopSink discards all telemetry.
//
// Useful as a default when no backend is configured.
type NopSink struct{}

// RecordExecution discards the data (no-op).
func (NopSink) RecordExecution(ctx context.Context, data *ExecutionData) error { return nil }

// RecordRefinement discards the data (no-op).
func (NopSink) RecordRefinement(ctx context.Context, data *RefinementData) error { return nil }

// RecordValidation discards the data (no-op).
func (NopSink) RecordValidation(ctx context.Context, data *ValidationData) error { return nil }

// Flush is a no-op.
func (NopSink) Flush(ctx context.Context) error { return nil }

// Close is a no-op.
func (NopSink) Close() error { return nil }

// Ensure NopSink implements Sink.
var _ Sink = NopSink{}

// -----------------------------------------------------------------------------
// Composite Sink
// -----------------------------------------------------------------------------

// CompositeSink fans telemetry out to multiple sinks.
//
// Description:
//
//	Every event is delivered to every child sink. Delivery continues past
//	failing children; the first error is returned after all children were
//	attempted.
//
// Thread Safety: Safe for concurrent use when all children are.
type CompositeSink struct {
	sinks []Sink
}

// NewCompositeSink creates a sink that fans out to the given children.
//
// Inputs:
//   - sinks: Child sinks. Nil entries are skipped.
//
// Outputs:
//   - *CompositeSink: The composite. Never nil.
func NewCompositeSink(sinks ...Sink) *CompositeSink {
	children := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			children = append(children, s)
		}
	}
	return &CompositeSink{sinks: children}
}

// RecordExecution delivers to all children.
func (c *CompositeSink) RecordExecution(ctx context.Context, data *ExecutionData) error {
	var first error
	for _, s := range c.sinks {
		if err := s.RecordExecution(ctx, data); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// RecordRefinement delivers to all children.
func (c *CompositeSink) RecordRefinement(ctx context.Context, data *RefinementData) error {
	var first error
	for _, s := range c.sinks {
		if err := s.RecordRefinement(ctx, data); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// RecordValidation delivers to all children.
func (c *CompositeSink) RecordValidation(ctx context.Context, data *ValidationData) error {
	var first error
	for _, s := range c.sinks {
		if err := s.RecordValidation(ctx, data); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Flush flushes all children.
func (c *CompositeSink) Flush(ctx context.Context) error {
	var first error
	for _, s := range c.sinks {
		if err := s.Flush(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes all children.
func (c *CompositeSink) Close() error {
	var first error
	for _, s := range c.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Ensure CompositeSink implements Sink.
var _ Sink = (*CompositeSink)(nil)

// -----------------------------------------------------------------------------
// Buffered Sink
// -----------------------------------------------------------------------------

// BufferedSink collects telemetry in memory.
//
// Useful for tests that need to assert on what the recorder forwarded:
//
//	buf := sink.NewBufferedSink()
//	recorder := metrics.NewRecorder(cfg, metrics.WithSink(buf))
//	// ... exercise recorder ...
//	execs := buf.Executions()
type BufferedSink struct {
	mu          sync.Mutex
	executions  []ExecutionData
	refinements []RefinementData
	validations []ValidationData
}

// NewBufferedSink creates an empty BufferedSink.
func NewBufferedSink() *BufferedSink {
	return &BufferedSink{}
}

// RecordExecution appends the data to the buffer.
func (b *BufferedSink) RecordExecution(ctx context.Context, data *ExecutionData) error {
	if data == nil {
		return ErrNilData
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.executions = append(b.executions, *data)
	return nil
}

// RecordRefinement appends the data to the buffer.
func (b *BufferedSink) RecordRefinement(ctx context.Context, data *RefinementData) error {
	if data == nil {
		return ErrNilData
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refinements = append(b.refinements, *data)
	return nil
}

// RecordValidation appends the data to the buffer.
func (b *BufferedSink) RecordValidation(ctx context.Context, data *ValidationData) error {
	if data == nil {
		return ErrNilData
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.validations = append(b.validations, *data)
	return nil
}

// Flush is a no-op (entries are already in memory).
func (b *BufferedSink) Flush(ctx context.Context) error { return nil }

// Close is a no-op.
func (b *BufferedSink) Close() error { return nil }

// Executions returns a copy of all collected execution summaries.
func (b *BufferedSink) Executions() []ExecutionData {
	b.mu.Lock()
	defer b.mu.Unlock()
	result := make([]ExecutionData, len(b.executions))
	copy(result, b.executions)
	return result
}

// Refinements returns a copy of all collected refinement summaries.
func (b *BufferedSink) Refinements() []RefinementData {
	b.mu.Lock()
	defer b.mu.Unlock()
	result := make([]RefinementData, len(b.refinements))
	copy(result, b.refinements)
	return result
}

// Validations returns a copy of all collected validation summaries.
func (b *BufferedSink) Validations() []ValidationData {
	b.mu.Lock()
	defer b.mu.Unlock()
	result := make([]ValidationData, len(b.validations))
	copy(result, b.validations)
	return result
}

// Ensure BufferedSink implements Sink.
var _ Sink = (*BufferedSink)(nil)
