// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package shadow implements shadow/canary validation for the report pipeline.
//
// # Overview
//
// Shadow validation runs an alternate computation path alongside production
// and compares the two outputs, without ever letting the alternate path
// affect the user-visible result. The package has two parts:
//
//   - Diff: a pure structural comparison producing per-leaf differences and
//     a normalized divergence score in [0,1].
//   - Validator: sampling, timeout containment, and rolling validation
//     statistics around Diff.
//
// # Availability Over Strictness
//
// A broken canary path must degrade to "skip validation", never to "break
// production". A shadow computation that errors, panics, or times out is
// reported on the result as ShadowErr with Passed=true, and is not counted
// as a divergence because no valid comparison was possible.
//
// # Usage
//
//	validator := shadow.New(shadow.Config{
//	    Enabled:             true,
//	    DivergenceThreshold: 0.1,
//	    SampleRate:          0.05,
//	})
//
//	if validator.ShouldRun() {
//	    go func() {
//	        res := validator.Validate(ctx, primary, shadowCompute, shadow.Context{
//	            Stage: "synthesis",
//	            Input: req,
//	        })
//	        _ = res // folded into validator.Stats()
//	    }()
//	}
//
// Production callers invoke Validate detached from the response path, as
// above; Validate itself awaits the shadow computation to completion
// (bounded by Config.ShadowTimeout) before returning.
package shadow
