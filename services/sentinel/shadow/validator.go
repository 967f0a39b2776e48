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
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/sentinel/services/sentinel/sink"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrInvalidConfig is returned when the validator configuration is invalid.
	ErrInvalidConfig = errors.New("invalid shadow validation configuration")

	// ErrShadowTimeout is reported as ShadowErr when the shadow computation
	// exceeds its timeout.
	ErrShadowTimeout = errors.New("shadow computation timed out")

	// ErrShadowPanic is reported as ShadowErr when the shadow computation
	// panics.
	ErrShadowPanic = errors.New("shadow computation panicked")
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// DefaultShadowTimeout bounds the shadow computation when Config.ShadowTimeout
// is zero. A hanging shadow path must not accumulate unbounded outstanding work.
const DefaultShadowTimeout = 30 * time.Second

// Config controls shadow validation behavior. Replaceable at runtime via
// Validator.SetConfig.
type Config struct {
	// Enabled turns shadow validation on. When false, ShouldRun always
	// returns false.
	Enabled bool

	// DivergenceThreshold is the maximum divergence score considered a
	// pass. Must be in (0,1].
	DivergenceThreshold float64

	// SampleRate is the probability that a given request is selected for
	// shadow validation. Must be in [0,1].
	SampleRate float64

	// ShadowTimeout bounds the shadow computation. Zero means
	// DefaultShadowTimeout.
	ShadowTimeout time.Duration
}

// Validate checks the configuration invariants.
//
// Outputs:
//   - error: Non-nil if any field is out of range.
func (c Config) Validate() error {
	var errs []error
	if c.DivergenceThreshold <= 0 || c.DivergenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("divergence threshold %v outside (0,1]", c.DivergenceThreshold))
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("sample rate %v outside [0,1]", c.SampleRate))
	}
	if c.ShadowTimeout < 0 {
		errs = append(errs, fmt.Errorf("shadow timeout %v is negative", c.ShadowTimeout))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Validation Types
// -----------------------------------------------------------------------------

// ComputeFunc produces the shadow-side value. It runs under the validator's
// timeout and should honor ctx cancellation.
type ComputeFunc func(ctx context.Context) (any, error)

// Context identifies what is being validated. Opaque to the engine.
type Context struct {
	// Stage is the pipeline stage producing the primary result.
	Stage string

	// Input is the stage input, carried for log correlation only.
	Input any
}

// Result is the outcome of one Validate call. Immutable once returned.
type Result struct {
	// ID correlates this validation across logs and telemetry.
	ID string `json:"id"`

	// Stage is the validated pipeline stage.
	Stage string `json:"stage"`

	// Primary is the production-side value.
	Primary any `json:"primary"`

	// Shadow is the shadow-side value. Nil when the shadow computation
	// failed.
	Shadow any `json:"shadow"`

	// Divergence is the normalized divergence score. Zero when the shadow
	// computation failed.
	Divergence float64 `json:"divergence"`

	// Differences lists the differing leaves. Empty when the shadow
	// computation failed.
	Differences []Difference `json:"differences"`

	// Passed is true when divergence stayed within threshold, and always
	// true when the shadow computation failed.
	Passed bool `json:"passed"`

	// ShadowErr is the shadow-side failure, if any. Never propagated to
	// the caller as an error.
	ShadowErr error `json:"-"`

	// Duration is the wall-clock time of the validation, shadow included.
	Duration time.Duration `json:"duration"`
}

// Stats are the rolling validation counters of one Validator.
type Stats struct {
	// TotalValidations is the number of Validate calls since the last reset.
	TotalValidations int64 `json:"total_validations"`

	// DivergenceCount is the number of validations exceeding the threshold.
	DivergenceCount int64 `json:"divergence_count"`

	// DivergenceRate is DivergenceCount / TotalValidations, 0 when no
	// validations have run.
	DivergenceRate float64 `json:"divergence_rate"`
}

// -----------------------------------------------------------------------------
// Options
// -----------------------------------------------------------------------------

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// WithSink sets the monitoring sink receiving validation summaries.
func WithSink(s sink.Sink) Option {
	return func(v *Validator) {
		if s != nil {
			v.sink = s
		}
	}
}

// WithRand sets the uniform random source used for sampling decisions.
// Tests use this for deterministic sampling.
func WithRand(fn func() float64) Option {
	return func(v *Validator) {
		if fn != nil {
			v.randFn = fn
		}
	}
}

// -----------------------------------------------------------------------------
// Validator
// -----------------------------------------------------------------------------

// Validator orchestrates shadow/canary validation.
//
// Description:
//
//	Validator owns the validation configuration and rolling statistics for
//	one process. It samples requests, invokes the caller-supplied shadow
//	computation under a bounded timeout, delegates comparison to Diff, and
//	contains every shadow-side failure as a non-blocking pass.
//
// Thread Safety: Safe for concurrent use. Counter mutations are guarded by
// a mutex; reads are point-in-time snapshots.
type Validator struct {
	cfg    Config
	logger *slog.Logger
	sink   sink.Sink
	randFn func() float64

	mu       sync.Mutex
	total    int64
	diverged int64
}

// New creates a Validator with the given configuration.
//
// Description:
//
//	An invalid configuration is clamped to disabled rather than rejected,
//	keeping startup total. The configuration can be retuned at runtime
//	via SetConfig (config hot reload).
//
// Inputs:
//   - cfg: Validation configuration. See Config.Validate for invariants.
//   - opts: Optional logger, sink, and random source.
//
// Outputs:
//   - *Validator: The validator. Never nil.
func New(cfg Config, opts ...Option) *Validator {
	v := &Validator{
		cfg:    sanitizeConfig(cfg),
		logger: slog.Default(),
		sink:   sink.NopSink{},
		randFn: rand.Float64,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// sanitizeConfig clamps an invalid configuration to disabled and fills
// the default timeout.
func sanitizeConfig(cfg Config) Config {
	if err := cfg.Validate(); err != nil {
		slog.Warn("shadow validation disabled by invalid config", "error", err)
		cfg.Enabled = false
		if cfg.DivergenceThreshold <= 0 || cfg.DivergenceThreshold > 1 {
			cfg.DivergenceThreshold = 1
		}
		if cfg.SampleRate < 0 {
			cfg.SampleRate = 0
		}
		if cfg.SampleRate > 1 {
			cfg.SampleRate = 1
		}
	}
	if cfg.ShadowTimeout <= 0 {
		cfg.ShadowTimeout = DefaultShadowTimeout
	}
	return cfg
}

// Config returns the current configuration of this validator.
//
// Thread Safety: Safe for concurrent use.
func (v *Validator) Config() Config {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cfg
}

// SetConfig replaces the validation configuration. Invalid configurations
// are clamped the same way New clamps them. In-flight validations finish
// under the configuration they started with; counters are preserved.
//
// Thread Safety: Safe for concurrent use.
func (v *Validator) SetConfig(cfg Config) {
	cfg = sanitizeConfig(cfg)
	v.mu.Lock()
	v.cfg = cfg
	v.mu.Unlock()
}

// ShouldRun reports whether the current request should run shadow validation.
//
// Description:
//
//	Returns false immediately when validation is disabled; otherwise draws
//	a uniform value and selects the request iff draw < SampleRate. Pure
//	sampling decision with no state mutation. Callers use it to avoid
//	constructing the shadow computation at all for unsampled requests.
//
// Thread Safety: Safe for concurrent use.
func (v *Validator) ShouldRun() bool {
	cfg := v.Config()
	if !cfg.Enabled {
		return false
	}
	return v.randFn() < cfg.SampleRate
}

// Validate compares the primary result against the shadow computation.
//
// Description:
//
//	Always increments TotalValidations. The shadow computation runs under
//	Config.ShadowTimeout with a panic guard; any shadow-side failure yields
//	a passing result carrying ShadowErr, and does not count toward the
//	divergence counters. On success the divergence score is compared to the
//	threshold; an exceeding score marks the result failed and increments
//	DivergenceCount. A summary is forwarded to the monitoring sink
//	best-effort.
//
// Inputs:
//   - ctx: Context for the shadow computation. Must not be nil.
//   - primary: The production result. Returned unchanged on the result.
//   - compute: Deferred shadow computation. Must not be nil.
//   - vctx: Identifies the validated stage.
//
// Outputs:
//   - Result: The validation outcome. Never an error: shadow failures are
//     contained, production is never penalized.
//
// Thread Safety: Safe for concurrent use.
func (v *Validator) Validate(ctx context.Context, primary any, compute ComputeFunc, vctx Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	v.mu.Lock()
	v.total++
	cfg := v.cfg
	v.mu.Unlock()

	res := Result{
		ID:          uuid.NewString(),
		Stage:       vctx.Stage,
		Primary:     primary,
		Differences: []Difference{},
		Passed:      true,
	}

	shadowVal, err := v.runShadow(ctx, compute, cfg.ShadowTimeout)
	if err != nil {
		// Availability over strictness: a broken canary path degrades to
		// "skip validation", not "break production".
		res.ShadowErr = err
		res.Duration = time.Since(start)
		v.logger.Debug("shadow computation failed",
			"validation_id", res.ID,
			"stage", vctx.Stage,
			"error", err)
		v.forward(ctx, res)
		return res
	}

	diff := Diff(primary, shadowVal)
	res.Shadow = shadowVal
	res.Divergence = diff.Score
	res.Differences = diff.Differences
	res.Passed = diff.Score <= cfg.DivergenceThreshold
	res.Duration = time.Since(start)

	if !res.Passed {
		v.mu.Lock()
		v.diverged++
		v.mu.Unlock()
		v.logger.Warn("shadow validation diverged",
			"validation_id", res.ID,
			"stage", vctx.Stage,
			"divergence", diff.Score,
			"threshold", cfg.DivergenceThreshold,
			"differences", len(diff.Differences))
	}

	v.forward(ctx, res)
	return res
}

// Stats returns a snapshot of the rolling validation counters.
//
// Thread Safety: Safe for concurrent use.
func (v *Validator) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()

	s := Stats{
		TotalValidations: v.total,
		DivergenceCount:  v.diverged,
	}
	if v.total > 0 {
		s.DivergenceRate = float64(v.diverged) / float64(v.total)
	}
	return s
}

// Reset zeroes both counters.
//
// Thread Safety: Safe for concurrent use.
func (v *Validator) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.total = 0
	v.diverged = 0
}

// runShadow invokes the shadow computation under the configured timeout,
// converting panics and timeouts into ordinary errors.
func (v *Validator) runShadow(ctx context.Context, compute ComputeFunc, timeout time.Duration) (any, error) {
	if compute == nil {
		return nil, errors.New("nil shadow computation")
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", ErrShadowPanic, r)}
			}
		}()
		value, err := compute(ctx)
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrShadowTimeout
		}
		return nil, ctx.Err()
	}
}

// forward sends a validation summary to the monitoring sink. Best-effort:
// errors are logged at debug level and panics are contained here.
func (v *Validator) forward(ctx context.Context, res Result) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Debug("validation sink panicked", "panic", r)
		}
	}()

	err := v.sink.RecordValidation(ctx, &sink.ValidationData{
		Stage:        res.Stage,
		Divergence:   res.Divergence,
		Passed:       res.Passed,
		ShadowFailed: res.ShadowErr != nil,
		Duration:     res.Duration,
		Timestamp:    time.Now(),
	})
	if err != nil {
		v.logger.Debug("validation sink rejected event", "error", err)
	}
}
