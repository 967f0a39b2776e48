// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 8095, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Validation.Enabled)
	assert.Equal(t, 0.1, cfg.Validation.DivergenceThreshold)
	assert.Equal(t, 1.0, cfg.Validation.SampleRate)
	assert.Equal(t, 500, cfg.Metrics.MaxLedgerSize)
	assert.Equal(t, 30000, cfg.Metrics.SlowExecutionMs)

	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/sentinel.yaml")
	require.Error(t, err)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
}

func TestLoadOverlaysFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sentinel.yaml")
	yaml := `
server:
  port: 9100
validation:
  enabled: false
  sample_rate: 0.25
metrics:
  max_ledger_size: 200
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.False(t, cfg.Validation.Enabled)
	assert.Equal(t, 0.25, cfg.Validation.SampleRate)
	assert.Equal(t, 200, cfg.Metrics.MaxLedgerSize)

	// Unspecified fields keep their defaults.
	assert.Equal(t, 0.1, cfg.Validation.DivergenceThreshold)
	assert.Equal(t, 30000, cfg.Metrics.SlowExecutionMs)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sentinel.yaml")
	yaml := `
validation:
  sample_rate: 2.5
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SENTINEL_PORT", "9200")
	t.Setenv("SENTINEL_SAMPLE_RATE", "0.5")
	t.Setenv("SENTINEL_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9200, cfg.Server.Port)
	assert.Equal(t, 0.5, cfg.Validation.SampleRate)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestEnvIgnoresMalformed(t *testing.T) {
	t.Setenv("SENTINEL_PORT", "not-a-number")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 30*time.Second, cfg.Validation.ShadowTimeout())
	assert.Equal(t, 30*time.Second, cfg.Metrics.SlowExecution())
	assert.Equal(t, 24*time.Hour, cfg.Retention.Window())
	assert.Equal(t, 15*time.Minute, cfg.Retention.SweepInterval())
}

func TestWatcherReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sentinel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9100\n"), 0644))

	reloaded := make(chan Config, 1)
	watcher, err := NewWatcher(path, nil, func(cfg Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	})
	require.NoError(t, err)
	defer watcher.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watcher.Start(ctx)

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9300\n"), 0644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, 9300, cfg.Server.Port)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
