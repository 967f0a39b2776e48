// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes the sentinel HTTP API.
//
// The API serves two audiences: pipeline workers POST execution and
// refinement records as they complete, and operators GET aggregated
// stage statistics, health classification, and shadow-validation stats.
// Prometheus scrapes /metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/sentinel/services/sentinel/metrics"
	"github.com/AleutianAI/sentinel/services/sentinel/shadow"
)

// Options carries the server's dependencies and listener settings.
type Options struct {
	// Port the server binds to.
	Port int

	// ReadTimeout bounds request reads (default 15s).
	ReadTimeout time.Duration

	// WriteTimeout bounds response writes (default 30s).
	WriteTimeout time.Duration

	// Recorder receives posted execution and refinement records. Required.
	Recorder *metrics.Recorder

	// Aggregator computes stage and refinement statistics. Required.
	Aggregator *metrics.Aggregator

	// Classifier produces health classification and exports. Required.
	Classifier *metrics.Classifier

	// Validator supplies shadow-validation stats. May be nil when shadow
	// validation is disabled; the validation endpoints then return 404.
	Validator *shadow.Validator

	// MetricsHandler serves GET /metrics. May be nil.
	MetricsHandler http.Handler

	// Logger for request diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// ErrMissingDependency indicates Options lacks a required component.
var ErrMissingDependency = errors.New("missing server dependency")

// Server is the sentinel HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server with routes registered but not yet listening.
//
// # Outputs
//
//   - *Server: Ready to Start.
//   - error: ErrMissingDependency if a required component is nil.
func New(opts Options) (*Server, error) {
	if opts.Recorder == nil || opts.Aggregator == nil || opts.Classifier == nil {
		return nil, ErrMissingDependency
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("sentinel"))
	SetupRoutes(router, opts)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", opts.Port),
			Handler:      router,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
		},
		logger: opts.Logger,
	}, nil
}

// Start listens until the context is cancelled, then shuts down
// gracefully. Returns nil on clean shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("HTTP server shutting down")
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
