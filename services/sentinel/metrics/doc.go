// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metrics aggregates execution telemetry for the report pipeline.
//
// # Overview
//
// The package keeps a bounded in-memory ledger of per-stage execution
// records and refinement-cycle records, derives statistics from it on
// demand, and classifies recent pipeline health against a threshold policy:
//
//   - Recorder: bounded FIFO ledgers plus best-effort forwarding of each
//     record to a monitoring sink.
//   - Aggregator: per-stage and refinement statistics computed over ledger
//     snapshots.
//   - Classifier: tiered health verdict (unknown/healthy/degraded/unhealthy)
//     over the trailing one-hour window, and a full snapshot export.
//
// # Ownership and Lifetime
//
// One Recorder instance is constructed at process bootstrap and passed by
// reference to every consumer; there is no ambient global state. Entries
// live until evicted by capacity or purged by age; nothing is persisted.
//
// # Concurrency
//
// Recorder mutations are serialized by an internal mutex. Aggregator and
// Classifier reads operate on copied snapshots: they may race benignly with
// concurrent writers (a slightly stale count is acceptable) but never
// observe a torn record.
package metrics
