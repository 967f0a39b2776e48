// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/sentinel/pkg/logging"
	"github.com/AleutianAI/sentinel/services/sentinel/config"
	"github.com/AleutianAI/sentinel/services/sentinel/metrics"
	"github.com/AleutianAI/sentinel/services/sentinel/server"
	"github.com/AleutianAI/sentinel/services/sentinel/shadow"
	"github.com/AleutianAI/sentinel/services/sentinel/sink"
	"github.com/AleutianAI/sentinel/services/sentinel/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sentinel HTTP service",
	Long: `Starts the sentinel service: the telemetry recorder, the stage
statistics aggregator, the health classifier, the shadow validator, and
the HTTP API that pipeline workers and dashboards talk to.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "sentinel",
		JSON:    cfg.Logging.JSON,
	})
	defer logger.Close()
	slogger := logger.Slog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	if cfg.Telemetry.Enabled {
		telCfg := telemetry.DefaultConfig()
		telCfg.ServiceName = cfg.Telemetry.ServiceName
		if cfg.Telemetry.OTLPEndpoint != "" {
			telCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
		} else {
			telCfg.TraceExporter = "stdout"
		}

		shutdown, err := telemetry.Init(ctx, telCfg)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slogger.Warn("Telemetry shutdown error", "error", err)
			}
		}()
	}

	// --- Sinks ---
	sinks, err := buildSinks(cfg)
	if err != nil {
		return fmt.Errorf("build sinks: %w", err)
	}
	defer func() {
		if err := sinks.Close(); err != nil {
			slogger.Warn("Sink close error", "error", err)
		}
	}()

	// --- Core components ---
	recorder := metrics.NewRecorder(metrics.RecorderConfig{
		MaxLedgerSize: cfg.Metrics.MaxLedgerSize,
		SlowExecution: cfg.Metrics.SlowExecution(),
	},
		metrics.WithSink(sinks),
		metrics.WithLogger(slogger),
	)
	aggregator := metrics.NewAggregator(recorder)

	var validator *shadow.Validator
	classifierOpts := []metrics.ClassifierOption{}
	if cfg.Validation.Enabled {
		validator = shadow.New(shadow.Config{
			Enabled:             true,
			DivergenceThreshold: cfg.Validation.DivergenceThreshold,
			SampleRate:          cfg.Validation.SampleRate,
			ShadowTimeout:       cfg.Validation.ShadowTimeout(),
		},
			shadow.WithLogger(slogger),
			shadow.WithSink(sinks),
		)
		classifierOpts = append(classifierOpts, metrics.WithValidationStats(validator.Stats))
	}
	classifier := metrics.NewClassifier(recorder, classifierOpts...)

	// --- HTTP server ---
	srv, err := server.New(server.Options{
		Port:           cfg.Server.Port,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		Recorder:       recorder,
		Aggregator:     aggregator,
		Classifier:     classifier,
		Validator:      validator,
		MetricsHandler: telemetry.MetricsHandler(),
		Logger:         slogger,
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Start(gctx)
	})

	// Retention sweep prunes expired records on a fixed interval.
	if cfg.Retention.Hours > 0 {
		g.Go(func() error {
			runRetention(gctx, recorder, cfg.Retention, slogger)
			return nil
		})
	}

	// Config hot-reload adjusts the shadow validator sampling without a
	// restart. Structural settings (port, ledger size) need a restart.
	if configPath != "" && validator != nil {
		watcher, err := config.NewWatcher(configPath, slogger, func(next config.Config) {
			validator.SetConfig(shadow.Config{
				Enabled:             next.Validation.Enabled,
				DivergenceThreshold: next.Validation.DivergenceThreshold,
				SampleRate:          next.Validation.SampleRate,
				ShadowTimeout:       next.Validation.ShadowTimeout(),
			})
		})
		if err != nil {
			slogger.Warn("Config watcher unavailable", "error", err)
		} else {
			defer watcher.Stop()
			g.Go(func() error {
				watcher.Start(gctx)
				return nil
			})
		}
	}

	slogger.Info("Sentinel started",
		"port", cfg.Server.Port,
		"validation_enabled", cfg.Validation.Enabled,
		"ledger_size", cfg.Metrics.MaxLedgerSize)

	return g.Wait()
}

// buildSinks composes the configured telemetry sinks. Always includes the
// OTel sink when telemetry is enabled; adds InfluxDB when configured.
func buildSinks(cfg config.Config) (sink.Sink, error) {
	var sinks []sink.Sink

	if cfg.Telemetry.Enabled {
		otelSink, err := sink.NewOTelSink(sink.DefaultOTelConfig())
		if err != nil {
			return nil, fmt.Errorf("create otel sink: %w", err)
		}
		sinks = append(sinks, otelSink)
	}

	if cfg.Influx.URL != "" {
		influxSink, err := sink.NewInfluxSink(&sink.InfluxConfig{
			URL:    cfg.Influx.URL,
			Token:  cfg.Influx.Token,
			Org:    cfg.Influx.Org,
			Bucket: cfg.Influx.Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("create influx sink: %w", err)
		}
		sinks = append(sinks, influxSink)
	}

	switch len(sinks) {
	case 0:
		return &sink.NopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return sink.NewCompositeSink(sinks...), nil
	}
}

// runRetention prunes records older than the retention window until the
// context is cancelled.
func runRetention(ctx context.Context, rec *metrics.Recorder, cfg config.RetentionConfig, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.SweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := rec.ClearOlderThan(cfg.Window())
			if removed > 0 {
				logger.Debug("Retention sweep pruned records",
					"removed", removed,
					"window_hours", cfg.Hours)
			}
		case <-ctx.Done():
			return
		}
	}
}
