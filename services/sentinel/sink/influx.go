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
	"log/slog"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInvalidInfluxConfig is returned when the Influx configuration is invalid.
	ErrInvalidInfluxConfig = errors.New("invalid influxdb configuration")
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// InfluxConfig configures the InfluxDB sink.
type InfluxConfig struct {
	// URL is the InfluxDB server URL (e.g., "http://influxdb:8086").
	// Required.
	URL string

	// Token is the InfluxDB API token.
	// Required.
	Token string

	// Org is the InfluxDB organization.
	Org string

	// Bucket is the destination bucket.
	// Required.
	Bucket string
}

// Validate checks that the configuration is valid.
func (c *InfluxConfig) Validate() error {
	var errs []error
	if c.URL == "" {
		errs = append(errs, errors.New("url is required"))
	}
	if c.Token == "" {
		errs = append(errs, errors.New("token is required"))
	}
	if c.Bucket == "" {
		errs = append(errs, errors.New("bucket is required"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// -----------------------------------------------------------------------------
// InfluxDB Sink
// -----------------------------------------------------------------------------

// InfluxSink delivers telemetry to InfluxDB using the non-blocking write API.
//
// Description:
//
//	Points are queued into the client's internal batch buffer and written
//	asynchronously. Write errors surface on the client's error channel,
//	which this sink drains and logs at debug level; they never reach the
//	recording caller.
//
// Thread Safety: Safe for concurrent use.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   *slog.Logger
	done     chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewInfluxSink creates a sink writing to the configured InfluxDB bucket.
//
// Inputs:
//   - config: InfluxDB configuration. Must not be nil.
//
// Outputs:
//   - *InfluxSink: The created sink. Never nil on success.
//   - error: Non-nil if the configuration is invalid.
//
// Example:
//
//	s, err := sink.NewInfluxSink(&sink.InfluxConfig{
//	    URL:    "http://influxdb:8086",
//	    Token:  os.Getenv("INFLUXDB_TOKEN"),
//	    Org:    "aleutian",
//	    Bucket: "pipeline_qa",
//	})
//
// Thread Safety: The returned sink is safe for concurrent use.
func NewInfluxSink(config *InfluxConfig) (*InfluxSink, error) {
	if config == nil {
		return nil, ErrInvalidInfluxConfig
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Join(ErrInvalidInfluxConfig, err)
	}

	client := influxdb2.NewClient(config.URL, config.Token)
	writeAPI := client.WriteAPI(config.Org, config.Bucket)

	s := &InfluxSink{
		client:   client,
		writeAPI: writeAPI,
		logger:   slog.Default(),
		done:     make(chan struct{}),
	}

	// Drain async write errors so the channel never blocks the writer.
	go func() {
		for {
			select {
			case err, ok := <-writeAPI.Errors():
				if !ok {
					return
				}
				s.logger.Debug("influx write dropped", "error", err)
			case <-s.done:
				return
			}
		}
	}()

	return s, nil
}

// RecordExecution queues a stage execution point.
//
// Thread Safety: Safe for concurrent use.
func (s *InfluxSink) RecordExecution(ctx context.Context, data *ExecutionData) error {
	if data == nil {
		return ErrNilData
	}
	if err := s.checkOpen(); err != nil {
		return err
	}

	tags := map[string]string{
		"stage":   data.Stage,
		"success": strconv.FormatBool(data.Success),
	}
	for k, v := range data.Tags {
		tags[k] = v
	}

	fields := map[string]interface{}{
		"duration_ms": float64(data.Duration) / float64(time.Millisecond),
	}
	if data.Error != "" {
		fields["error"] = data.Error
	}

	s.writeAPI.WritePoint(influxdb2.NewPoint("stage_execution", tags, fields, s.pointTime(data.Timestamp)))
	return nil
}

// RecordRefinement queues a refinement-cycle point.
//
// Thread Safety: Safe for concurrent use.
func (s *InfluxSink) RecordRefinement(ctx context.Context, data *RefinementData) error {
	if data == nil {
		return ErrNilData
	}
	if err := s.checkOpen(); err != nil {
		return err
	}

	tags := map[string]string{
		"attempt": strconv.Itoa(data.Attempt),
	}
	fields := map[string]interface{}{
		"quality_score": data.QualityScore,
		"issues_found":  data.IssueCount,
		"fixes_applied": data.FixCount,
		"duration_ms":   float64(data.Duration) / float64(time.Millisecond),
	}

	s.writeAPI.WritePoint(influxdb2.NewPoint("refinement_cycle", tags, fields, s.pointTime(data.Timestamp)))
	return nil
}

// RecordValidation queues a shadow validation point.
//
// Thread Safety: Safe for concurrent use.
func (s *InfluxSink) RecordValidation(ctx context.Context, data *ValidationData) error {
	if data == nil {
		return ErrNilData
	}
	if err := s.checkOpen(); err != nil {
		return err
	}

	tags := map[string]string{
		"stage":         data.Stage,
		"passed":        strconv.FormatBool(data.Passed),
		"shadow_failed": strconv.FormatBool(data.ShadowFailed),
	}
	fields := map[string]interface{}{
		"divergence":  data.Divergence,
		"duration_ms": float64(data.Duration) / float64(time.Millisecond),
	}

	s.writeAPI.WritePoint(influxdb2.NewPoint("shadow_validation", tags, fields, s.pointTime(data.Timestamp)))
	return nil
}

// Flush forces the write API to send buffered points.
//
// Thread Safety: Safe for concurrent use.
func (s *InfluxSink) Flush(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	s.writeAPI.Flush()
	return nil
}

// Close flushes buffered points and releases the client.
//
// Thread Safety: Safe for concurrent use. Idempotent.
func (s *InfluxSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	s.writeAPI.Flush()
	s.client.Close()
	return nil
}

// checkOpen returns ErrSinkClosed if the sink has been closed.
func (s *InfluxSink) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	return nil
}

// pointTime returns the event time, defaulting to now for zero timestamps.
func (s *InfluxSink) pointTime(ts time.Time) time.Time {
	if ts.IsZero() {
		return time.Now()
	}
	return ts
}

// Verify interface compliance at compile time.
var _ Sink = (*InfluxSink)(nil)
