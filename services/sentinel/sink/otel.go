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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrOTelInitFailed is returned when OpenTelemetry initialization fails.
	ErrOTelInitFailed = errors.New("opentelemetry initialization failed")

	// ErrInvalidOTelConfig is returned when the OTel configuration is invalid.
	ErrInvalidOTelConfig = errors.New("invalid opentelemetry configuration")
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// OTelConfig configures the OpenTelemetry sink.
//
// Thread Safety: Immutable after creation; safe for concurrent read access.
type OTelConfig struct {
	// ServiceName is the service name for telemetry.
	// Required.
	ServiceName string

	// ServiceVersion is the service version for telemetry.
	// Optional.
	ServiceVersion string

	// TracerProvider is the tracer provider to use.
	// If nil, uses the global tracer provider.
	TracerProvider trace.TracerProvider

	// MeterProvider is the meter provider to use.
	// If nil, uses the global meter provider.
	MeterProvider metric.MeterProvider

	// TraceEnabled enables trace span creation per recorded event.
	// Default: true.
	TraceEnabled bool

	// MetricsEnabled enables metric recording.
	// Default: true.
	MetricsEnabled bool
}

// DefaultOTelConfig returns a configuration with sensible defaults.
//
// Outputs:
//   - *OTelConfig: Configuration with defaults applied.
//
// Example:
//
//	config := sink.DefaultOTelConfig()
//	config.ServiceName = "sentinel"
//	s, err := sink.NewOTelSink(config)
func DefaultOTelConfig() *OTelConfig {
	return &OTelConfig{
		ServiceName:    "sentinel",
		ServiceVersion: "1.0.0",
		TraceEnabled:   true,
		MetricsEnabled: true,
	}
}

// Validate checks that the configuration is valid.
func (c *OTelConfig) Validate() error {
	if c.ServiceName == "" {
		return errors.New("service name is required")
	}
	return nil
}

// -----------------------------------------------------------------------------
// OpenTelemetry Sink
// -----------------------------------------------------------------------------

// OTelSink exports pipeline telemetry via OpenTelemetry.
//
// Description:
//
//	OTelSink records metrics for stage executions, refinement cycles, and
//	shadow validations, and optionally emits a trace span per event. It
//	integrates with the standard OTel providers so the backend (Prometheus,
//	OTLP collector, stdout) is chosen by the process bootstrap, not here.
//
// Thread Safety: Safe for concurrent use.
type OTelSink struct {
	config *OTelConfig
	tracer trace.Tracer
	meter  metric.Meter

	// Metric instruments
	executionDuration  metric.Float64Histogram
	executionsTotal    metric.Int64Counter
	executionErrors    metric.Int64Counter
	refinementsTotal   metric.Int64Counter
	refinementQuality  metric.Float64Histogram
	validationsTotal   metric.Int64Counter
	validationScore    metric.Float64Histogram
	shadowFailures     metric.Int64Counter
	divergencesTotal   metric.Int64Counter

	mu     sync.RWMutex
	closed bool
}

// NewOTelSink creates a new OpenTelemetry telemetry sink.
//
// Inputs:
//   - config: OpenTelemetry configuration. Must not be nil.
//
// Outputs:
//   - *OTelSink: The created sink. Never nil on success.
//   - error: Non-nil if configuration is invalid or initialization fails.
//
// Limitations:
//   - Requires OpenTelemetry providers to be configured for actual export.
//     Without providers, telemetry is discarded (no-op).
//
// Thread Safety: The returned sink is safe for concurrent use.
func NewOTelSink(config *OTelConfig) (*OTelSink, error) {
	if config == nil {
		return nil, ErrInvalidOTelConfig
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Join(ErrInvalidOTelConfig, err)
	}

	// Copy config to avoid mutation
	cfg := *config

	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := cfg.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	tracer := tp.Tracer(
		"github.com/AleutianAI/sentinel/services/sentinel/sink",
		trace.WithInstrumentationVersion(cfg.ServiceVersion),
	)
	meter := mp.Meter(
		"github.com/AleutianAI/sentinel/services/sentinel/sink",
		metric.WithInstrumentationVersion(cfg.ServiceVersion),
	)

	s := &OTelSink{
		config: &cfg,
		tracer: tracer,
		meter:  meter,
	}

	if cfg.MetricsEnabled {
		if err := s.initializeMetrics(); err != nil {
			return nil, errors.Join(ErrOTelInitFailed, err)
		}
	}

	return s, nil
}

// initializeMetrics creates all metric instruments.
func (s *OTelSink) initializeMetrics() error {
	var err error

	s.executionDuration, err = s.meter.Float64Histogram(
		"pipeline.stage.duration",
		metric.WithDescription("Stage execution duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	s.executionsTotal, err = s.meter.Int64Counter(
		"pipeline.stage.executions",
		metric.WithDescription("Total stage executions"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return err
	}

	s.executionErrors, err = s.meter.Int64Counter(
		"pipeline.stage.errors",
		metric.WithDescription("Total failed stage executions"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	s.refinementsTotal, err = s.meter.Int64Counter(
		"pipeline.refinement.attempts",
		metric.WithDescription("Total refinement-cycle attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return err
	}

	s.refinementQuality, err = s.meter.Float64Histogram(
		"pipeline.refinement.quality",
		metric.WithDescription("Quality score per refinement attempt"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	s.validationsTotal, err = s.meter.Int64Counter(
		"shadow.validations",
		metric.WithDescription("Total shadow validations"),
		metric.WithUnit("{validation}"),
	)
	if err != nil {
		return err
	}

	s.validationScore, err = s.meter.Float64Histogram(
		"shadow.divergence",
		metric.WithDescription("Divergence score per shadow validation"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	s.shadowFailures, err = s.meter.Int64Counter(
		"shadow.failures",
		metric.WithDescription("Shadow computations that failed or timed out"),
		metric.WithUnit("{failure}"),
	)
	if err != nil {
		return err
	}

	s.divergencesTotal, err = s.meter.Int64Counter(
		"shadow.divergences",
		metric.WithDescription("Validations exceeding the divergence threshold"),
		metric.WithUnit("{divergence}"),
	)
	if err != nil {
		return err
	}

	return nil
}

// RecordExecution records stage execution telemetry.
//
// Inputs:
//   - ctx: Context for tracing. Must not be nil.
//   - data: Execution data to record. Must not be nil.
//
// Outputs:
//   - error: Non-nil if sink is closed or inputs are invalid.
//
// Thread Safety: Safe for concurrent use.
func (s *OTelSink) RecordExecution(ctx context.Context, data *ExecutionData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}
	if err := s.checkOpen(); err != nil {
		return err
	}

	stage := data.Stage
	if stage == "" {
		stage = "unknown"
	}

	attrs := []attribute.KeyValue{
		attribute.String("stage.name", stage),
		attribute.Bool("stage.success", data.Success),
	}
	for k, v := range data.Tags {
		attrs = append(attrs, attribute.String("tag."+k, v))
	}

	if s.config.TraceEnabled {
		_, span := s.tracer.Start(ctx, "stage.record",
			trace.WithAttributes(attrs...),
			trace.WithTimestamp(data.Timestamp),
		)
		span.SetAttributes(
			attribute.Float64("stage.duration_seconds", data.Duration.Seconds()),
		)
		if !data.Success {
			span.SetStatus(codes.Error, data.Error)
		}
		span.End()
	}

	if s.config.MetricsEnabled {
		attrSet := metric.WithAttributes(attrs...)
		s.executionDuration.Record(ctx, data.Duration.Seconds(), attrSet)
		s.executionsTotal.Add(ctx, 1, attrSet)
		if !data.Success {
			s.executionErrors.Add(ctx, 1, attrSet)
		}
	}

	return nil
}

// RecordRefinement records refinement-cycle telemetry.
//
// Thread Safety: Safe for concurrent use.
func (s *OTelSink) RecordRefinement(ctx context.Context, data *RefinementData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}
	if err := s.checkOpen(); err != nil {
		return err
	}

	attrs := []attribute.KeyValue{
		attribute.Int("refinement.attempt", data.Attempt),
		attribute.Int("refinement.issues", data.IssueCount),
		attribute.Int("refinement.fixes", data.FixCount),
	}

	if s.config.TraceEnabled {
		_, span := s.tracer.Start(ctx, "refinement.record",
			trace.WithAttributes(attrs...),
			trace.WithTimestamp(data.Timestamp),
		)
		span.SetAttributes(
			attribute.Float64("refinement.quality_score", data.QualityScore),
			attribute.Float64("refinement.duration_seconds", data.Duration.Seconds()),
		)
		span.End()
	}

	if s.config.MetricsEnabled {
		attrSet := metric.WithAttributes(attrs...)
		s.refinementsTotal.Add(ctx, 1, attrSet)
		s.refinementQuality.Record(ctx, data.QualityScore, attrSet)
	}

	return nil
}

// RecordValidation records shadow validation telemetry.
//
// Thread Safety: Safe for concurrent use.
func (s *OTelSink) RecordValidation(ctx context.Context, data *ValidationData) error {
	if ctx == nil {
		return ErrNilContext
	}
	if data == nil {
		return ErrNilData
	}
	if err := s.checkOpen(); err != nil {
		return err
	}

	stage := data.Stage
	if stage == "" {
		stage = "unknown"
	}

	attrs := []attribute.KeyValue{
		attribute.String("validation.stage", stage),
		attribute.Bool("validation.passed", data.Passed),
		attribute.Bool("validation.shadow_failed", data.ShadowFailed),
	}

	if s.config.TraceEnabled {
		_, span := s.tracer.Start(ctx, "validation.record",
			trace.WithAttributes(attrs...),
			trace.WithTimestamp(data.Timestamp),
		)
		span.SetAttributes(
			attribute.Float64("validation.divergence", data.Divergence),
			attribute.Float64("validation.duration_seconds", data.Duration.Seconds()),
		)
		if !data.Passed {
			span.SetStatus(codes.Error, "divergence exceeded threshold")
		}
		span.End()
	}

	if s.config.MetricsEnabled {
		attrSet := metric.WithAttributes(attrs...)
		s.validationsTotal.Add(ctx, 1, attrSet)
		if data.ShadowFailed {
			s.shadowFailures.Add(ctx, 1, attrSet)
		} else {
			s.validationScore.Record(ctx, data.Divergence, attrSet)
			if !data.Passed {
				s.divergencesTotal.Add(ctx, 1, attrSet)
			}
		}
	}

	return nil
}

// Flush forces export of any buffered telemetry.
//
// Description:
//
//	For the OTel sink this is a no-op: batching and export are handled by
//	the SDK providers, which this sink does not own.
//
// Thread Safety: Safe for concurrent use.
func (s *OTelSink) Flush(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return s.checkOpen()
}

// Close marks the sink as closed.
//
// Description:
//
//	Does not shut down the providers as they may be shared; the process
//	bootstrap owns provider shutdown.
//
// Thread Safety: Safe for concurrent use. Idempotent.
func (s *OTelSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// checkOpen returns ErrSinkClosed if the sink has been closed.
func (s *OTelSink) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	return nil
}

// Verify interface compliance at compile time.
var _ Sink = (*OTelSink)(nil)
