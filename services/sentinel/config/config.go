// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads and validates sentinel service configuration.
//
// Configuration is layered: built-in defaults, then a YAML file, then
// environment variable overrides. The merged result is validated with
// go-playground/validator before it is handed to callers so invalid
// settings fail at startup rather than at first use.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig indicates the merged configuration failed validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// validate is the shared validator instance for config structs.
var validate = validator.New()

// Config is the root configuration for the sentinel service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Validation ValidationConfig `yaml:"validation"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Retention  RetentionConfig  `yaml:"retention"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Influx     InfluxConfig     `yaml:"influx"`
}

// ServerConfig configures the HTTP API listener.
type ServerConfig struct {
	// Port the HTTP server binds to.
	Port int `yaml:"port" validate:"min=1,max=65535"`

	// ReadTimeoutSec bounds request header+body reads.
	ReadTimeoutSec int `yaml:"read_timeout_sec" validate:"min=1"`

	// WriteTimeoutSec bounds response writes.
	WriteTimeoutSec int `yaml:"write_timeout_sec" validate:"min=1"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" validate:"oneof=debug info warn error"`

	// Dir enables JSON file logging when non-empty.
	Dir string `yaml:"dir"`

	// JSON switches stderr output to JSON format.
	JSON bool `yaml:"json"`
}

// ValidationConfig configures the shadow validator.
type ValidationConfig struct {
	// Enabled turns shadow validation on.
	Enabled bool `yaml:"enabled"`

	// DivergenceThreshold is the maximum tolerated divergence score.
	DivergenceThreshold float64 `yaml:"divergence_threshold" validate:"min=0,max=1"`

	// SampleRate is the fraction of eligible calls that run a shadow.
	SampleRate float64 `yaml:"sample_rate" validate:"min=0,max=1"`

	// ShadowTimeoutMs bounds each shadow computation in milliseconds.
	ShadowTimeoutMs int `yaml:"shadow_timeout_ms" validate:"min=1"`
}

// MetricsConfig configures the execution recorder.
type MetricsConfig struct {
	// MaxLedgerSize caps each rolling record ledger.
	MaxLedgerSize int `yaml:"max_ledger_size" validate:"min=1"`

	// SlowExecutionMs is the warn threshold for stage duration.
	SlowExecutionMs int `yaml:"slow_execution_ms" validate:"min=1"`
}

// RetentionConfig configures background record pruning.
type RetentionConfig struct {
	// Hours is the age past which records are pruned. Zero disables the
	// retention sweep.
	Hours int `yaml:"hours" validate:"min=0"`

	// SweepIntervalMin is how often the prune runs.
	SweepIntervalMin int `yaml:"sweep_interval_min" validate:"min=1"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	// Enabled turns the OTel sink and tracing on.
	Enabled bool `yaml:"enabled"`

	// ServiceName reported in telemetry resource attributes.
	ServiceName string `yaml:"service_name" validate:"required"`

	// OTLPEndpoint is the collector address (host:port). When empty,
	// traces go to stdout (development mode).
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// InfluxConfig configures the optional InfluxDB sink. The sink is wired
// only when URL is non-empty.
type InfluxConfig struct {
	URL    string `yaml:"url" validate:"omitempty,url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8095,
			ReadTimeoutSec:  15,
			WriteTimeoutSec: 30,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Validation: ValidationConfig{
			Enabled:             true,
			DivergenceThreshold: 0.1,
			SampleRate:          1.0,
			ShadowTimeoutMs:     30000,
		},
		Metrics: MetricsConfig{
			MaxLedgerSize:   500,
			SlowExecutionMs: 30000,
		},
		Retention: RetentionConfig{
			Hours:            24,
			SweepIntervalMin: 15,
		},
		Telemetry: TelemetryConfig{
			Enabled:     true,
			ServiceName: "sentinel",
		},
	}
}

// Load builds the effective configuration: defaults, overlaid with the
// YAML file at path (if path is non-empty), overlaid with environment
// variables, then validated.
//
// # Outputs
//
//   - Config: The merged, validated configuration.
//   - error: Non-nil on read, parse, or validation failure.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// ShadowTimeout returns the shadow timeout as a duration.
func (c ValidationConfig) ShadowTimeout() time.Duration {
	return time.Duration(c.ShadowTimeoutMs) * time.Millisecond
}

// SlowExecution returns the slow-execution threshold as a duration.
func (c MetricsConfig) SlowExecution() time.Duration {
	return time.Duration(c.SlowExecutionMs) * time.Millisecond
}

// Window returns the retention age as a duration. Zero means disabled.
func (c RetentionConfig) Window() time.Duration {
	return time.Duration(c.Hours) * time.Hour
}

// SweepInterval returns the prune interval as a duration.
func (c RetentionConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalMin) * time.Minute
}

// applyEnv overlays environment variables onto the config. Variables use
// the SENTINEL_ prefix; unset or malformed values are ignored.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SENTINEL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SENTINEL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SENTINEL_LOG_DIR"); v != "" {
		cfg.Logging.Dir = v
	}
	if v := os.Getenv("SENTINEL_VALIDATION_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Validation.Enabled = enabled
		}
	}
	if v := os.Getenv("SENTINEL_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Validation.SampleRate = rate
		}
	}
	if v := os.Getenv("SENTINEL_DIVERGENCE_THRESHOLD"); v != "" {
		if threshold, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Validation.DivergenceThreshold = threshold
		}
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := os.Getenv("SENTINEL_INFLUX_URL"); v != "" {
		cfg.Influx.URL = v
	}
	if v := os.Getenv("SENTINEL_INFLUX_TOKEN"); v != "" {
		cfg.Influx.Token = v
	}
	if v := os.Getenv("SENTINEL_INFLUX_ORG"); v != "" {
		cfg.Influx.Org = v
	}
	if v := os.Getenv("SENTINEL_INFLUX_BUCKET"); v != "" {
		cfg.Influx.Bucket = v
	}
}
