// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sink provides best-effort delivery of pipeline telemetry to
// external monitoring backends.
//
// # Overview
//
// The sink package is the outbound half of the QA & telemetry core. The
// metrics recorder and the shadow validator forward per-event summaries
// through the Sink interface; concrete sinks translate them into
// OpenTelemetry instruments, InfluxDB line protocol, or in-memory buffers
// for tests.
//
// # Delivery Contract
//
// Every sink is best-effort. Errors returned by Record* methods are
// informational: callers in the recording path swallow them, and a sink
// must never panic into its caller. Telemetry is never allowed to
// destabilize the pipeline it observes.
//
// # Sink Interface
//
//	sink, err := sink.NewOTelSink(sink.DefaultOTelConfig())
//	if err != nil {
//	    return fmt.Errorf("create otel sink: %w", err)
//	}
//	defer sink.Close()
//
//	sink.RecordExecution(ctx, &sink.ExecutionData{
//	    Stage:    "research",
//	    Duration: elapsed,
//	    Success:  true,
//	})
//
// # Composite Sink
//
// Multiple backends can be combined:
//
//	composite := sink.NewCompositeSink(otelSink, influxSink)
//
// # Thread Safety
//
// All Sink implementations are safe for concurrent use from multiple
// goroutines.
package sink
