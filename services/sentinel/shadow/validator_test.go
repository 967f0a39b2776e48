// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package shadow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/AleutianAI/sentinel/services/sentinel/sink"
)

func newTestValidator(opts ...Option) *Validator {
	return New(Config{
		Enabled:             true,
		DivergenceThreshold: 0.1,
		SampleRate:          1.0,
	}, opts...)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{DivergenceThreshold: 0.1, SampleRate: 1.0}, false},
		{"threshold zero", Config{DivergenceThreshold: 0, SampleRate: 0.5}, true},
		{"threshold above one", Config{DivergenceThreshold: 1.5, SampleRate: 0.5}, true},
		{"negative sample rate", Config{DivergenceThreshold: 0.1, SampleRate: -0.1}, true},
		{"sample rate above one", Config{DivergenceThreshold: 0.1, SampleRate: 1.1}, true},
		{"negative timeout", Config{DivergenceThreshold: 0.1, SampleRate: 0.5, ShadowTimeout: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("Validate() = nil, want error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v should wrap ErrInvalidConfig", err)
			}
		})
	}
}

func TestNew_InvalidConfigDisables(t *testing.T) {
	v := New(Config{Enabled: true, DivergenceThreshold: 5, SampleRate: 1.0})
	if v.Config().Enabled {
		t.Error("invalid config should clamp to disabled")
	}
	if v.ShouldRun() {
		t.Error("ShouldRun() should be false for a disabled validator")
	}
}

func TestShouldRun(t *testing.T) {
	t.Run("disabled never runs", func(t *testing.T) {
		v := New(Config{Enabled: false, DivergenceThreshold: 0.1, SampleRate: 1.0})
		for i := 0; i < 100; i++ {
			if v.ShouldRun() {
				t.Fatal("disabled validator selected a request")
			}
		}
	})

	t.Run("sample rate zero never runs", func(t *testing.T) {
		v := New(Config{Enabled: true, DivergenceThreshold: 0.1, SampleRate: 0})
		for i := 0; i < 100; i++ {
			if v.ShouldRun() {
				t.Fatal("zero sample rate selected a request")
			}
		}
	})

	t.Run("sample rate one always runs", func(t *testing.T) {
		v := newTestValidator()
		for i := 0; i < 100; i++ {
			if !v.ShouldRun() {
				t.Fatal("full sample rate skipped a request")
			}
		}
	})

	t.Run("deterministic draw", func(t *testing.T) {
		draw := 0.4
		v := New(Config{Enabled: true, DivergenceThreshold: 0.1, SampleRate: 0.5},
			WithRand(func() float64 { return draw }))
		if !v.ShouldRun() {
			t.Error("draw 0.4 < rate 0.5 should run")
		}
		draw = 0.6
		if v.ShouldRun() {
			t.Error("draw 0.6 >= rate 0.5 should not run")
		}
	})
}

func TestValidate_MatchingResults(t *testing.T) {
	v := newTestValidator()
	primary := map[string]any{"answer": 42, "sources": []any{"a", "b"}}

	res := v.Validate(context.Background(), primary,
		func(ctx context.Context) (any, error) { return primary, nil },
		Context{Stage: "analyze"})

	if !res.Passed {
		t.Error("identical results should pass")
	}
	if res.Divergence != 0 {
		t.Errorf("Divergence = %v, want 0", res.Divergence)
	}
	if res.ShadowErr != nil {
		t.Errorf("ShadowErr = %v, want nil", res.ShadowErr)
	}
	if res.ID == "" {
		t.Error("result should carry a validation ID")
	}
	if res.Stage != "analyze" {
		t.Errorf("Stage = %q, want %q", res.Stage, "analyze")
	}
}

func TestValidate_DivergenceAboveThreshold(t *testing.T) {
	v := newTestValidator()

	res := v.Validate(context.Background(),
		map[string]any{"a": 1, "b": 2, "c": 3, "d": 4, "e": 5},
		func(ctx context.Context) (any, error) {
			return map[string]any{"a": 9, "b": 8, "c": 7, "d": 6, "e": 5}, nil
		},
		Context{Stage: "analyze"})

	if res.Passed {
		t.Error("divergence 0.8 above threshold 0.1 should fail")
	}
	if res.Divergence != 0.8 {
		t.Errorf("Divergence = %v, want 0.8", res.Divergence)
	}
	if len(res.Differences) != 4 {
		t.Errorf("Differences = %d, want 4", len(res.Differences))
	}
}

func TestValidate_ShadowErrorNeverBlocks(t *testing.T) {
	v := newTestValidator()
	boom := errors.New("shadow exploded")

	res := v.Validate(context.Background(), "primary result",
		func(ctx context.Context) (any, error) { return nil, boom },
		Context{Stage: "collect"})

	if !res.Passed {
		t.Error("shadow failure must not fail the validation")
	}
	if !errors.Is(res.ShadowErr, boom) {
		t.Errorf("ShadowErr = %v, want wrapped %v", res.ShadowErr, boom)
	}
	if res.Shadow != nil {
		t.Errorf("Shadow = %v, want nil", res.Shadow)
	}
	if res.Divergence != 0 {
		t.Errorf("Divergence = %v, want 0", res.Divergence)
	}

	stats := v.Stats()
	if stats.TotalValidations != 1 {
		t.Errorf("TotalValidations = %d, want 1", stats.TotalValidations)
	}
	if stats.DivergenceCount != 0 {
		t.Errorf("DivergenceCount = %d, want 0 (failures are not divergences)", stats.DivergenceCount)
	}
}

func TestValidate_ShadowPanicContained(t *testing.T) {
	v := newTestValidator()

	res := v.Validate(context.Background(), 7,
		func(ctx context.Context) (any, error) { panic("kaboom") },
		Context{Stage: "analyze"})

	if !res.Passed {
		t.Error("panic must not fail the validation")
	}
	if !errors.Is(res.ShadowErr, ErrShadowPanic) {
		t.Errorf("ShadowErr = %v, want ErrShadowPanic", res.ShadowErr)
	}
	if v.Stats().TotalValidations != 1 {
		t.Error("panicked validation still counts toward the total")
	}
}

func TestValidate_ShadowTimeout(t *testing.T) {
	v := New(Config{
		Enabled:             true,
		DivergenceThreshold: 0.1,
		SampleRate:          1.0,
		ShadowTimeout:       20 * time.Millisecond,
	})

	start := time.Now()
	res := v.Validate(context.Background(), "primary",
		func(ctx context.Context) (any, error) {
			select {
			case <-time.After(5 * time.Second):
				return "too late", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
		Context{Stage: "slow"})

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Validate blocked %v, timeout did not bound the shadow", elapsed)
	}
	if !res.Passed {
		t.Error("timeout must not fail the validation")
	}
	if !errors.Is(res.ShadowErr, ErrShadowTimeout) {
		t.Errorf("ShadowErr = %v, want ErrShadowTimeout", res.ShadowErr)
	}
}

func TestValidate_NilCompute(t *testing.T) {
	v := newTestValidator()

	res := v.Validate(context.Background(), "primary", nil, Context{Stage: "x"})
	if !res.Passed {
		t.Error("nil compute must degrade to a pass")
	}
	if res.ShadowErr == nil {
		t.Error("nil compute should surface as ShadowErr")
	}
}

func TestStats_RateAndReset(t *testing.T) {
	v := newTestValidator()

	match := func(ctx context.Context) (any, error) { return "same", nil }
	differ := func(ctx context.Context) (any, error) { return "different", nil }

	v.Validate(context.Background(), "same", match, Context{Stage: "s"})
	v.Validate(context.Background(), "same", match, Context{Stage: "s"})
	v.Validate(context.Background(), "same", match, Context{Stage: "s"})
	v.Validate(context.Background(), "same", differ, Context{Stage: "s"})

	stats := v.Stats()
	if stats.TotalValidations != 4 {
		t.Errorf("TotalValidations = %d, want 4", stats.TotalValidations)
	}
	if stats.DivergenceCount != 1 {
		t.Errorf("DivergenceCount = %d, want 1", stats.DivergenceCount)
	}
	if stats.DivergenceRate != 0.25 {
		t.Errorf("DivergenceRate = %v, want 0.25", stats.DivergenceRate)
	}

	v.Reset()
	stats = v.Stats()
	if stats.TotalValidations != 0 || stats.DivergenceCount != 0 || stats.DivergenceRate != 0 {
		t.Errorf("after Reset stats = %+v, want zeroes", stats)
	}
}

func TestSetConfig(t *testing.T) {
	v := newTestValidator()

	v.Validate(context.Background(), "same",
		func(ctx context.Context) (any, error) { return "same", nil },
		Context{Stage: "s"})

	v.SetConfig(Config{Enabled: false, DivergenceThreshold: 0.5, SampleRate: 0.2})

	cfg := v.Config()
	if cfg.Enabled {
		t.Error("SetConfig should have disabled validation")
	}
	if cfg.DivergenceThreshold != 0.5 {
		t.Errorf("DivergenceThreshold = %v, want 0.5", cfg.DivergenceThreshold)
	}
	if cfg.ShadowTimeout != DefaultShadowTimeout {
		t.Errorf("ShadowTimeout = %v, want default fill", cfg.ShadowTimeout)
	}
	if v.Stats().TotalValidations != 1 {
		t.Error("SetConfig must preserve counters")
	}
}

func TestValidate_ForwardsToSink(t *testing.T) {
	buffered := sink.NewBufferedSink()
	v := newTestValidator(WithSink(buffered))

	v.Validate(context.Background(), "primary",
		func(ctx context.Context) (any, error) { return "different", nil },
		Context{Stage: "analyze"})

	events := buffered.Validations()
	if len(events) != 1 {
		t.Fatalf("sink received %d events, want 1", len(events))
	}
	if events[0].Stage != "analyze" {
		t.Errorf("Stage = %q, want %q", events[0].Stage, "analyze")
	}
	if events[0].Passed {
		t.Error("fully divergent result should record Passed=false")
	}
	if events[0].ShadowFailed {
		t.Error("ShadowFailed should be false for a successful shadow")
	}
}

func TestValidate_SinkPanicContained(t *testing.T) {
	v := newTestValidator(WithSink(panickySink{}))

	res := v.Validate(context.Background(), "x",
		func(ctx context.Context) (any, error) { return "x", nil },
		Context{Stage: "s"})

	if !res.Passed {
		t.Error("sink panic must not affect the validation result")
	}
}

// panickySink panics on every call to exercise the forwarding guard.
type panickySink struct{}

func (panickySink) RecordExecution(context.Context, *sink.ExecutionData) error {
	panic("sink down")
}
func (panickySink) RecordRefinement(context.Context, *sink.RefinementData) error {
	panic("sink down")
}
func (panickySink) RecordValidation(context.Context, *sink.ValidationData) error {
	panic("sink down")
}
func (panickySink) Flush(context.Context) error { return nil }
func (panickySink) Close() error                { return nil }
