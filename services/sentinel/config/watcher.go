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
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches a config file for changes and reloads it.
//
// # Description
//
// Detects edits to the config file (including atomic rename-over saves
// made by editors) and invokes the callback with the freshly loaded,
// validated configuration. A file that fails to load keeps the previous
// configuration; the error is logged and the callback is not invoked.
//
// # Thread Safety
//
// Safe for concurrent use. Start should only be called once.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	callback func(Config)
	logger   *slog.Logger
}

// NewWatcher creates a watcher for the config file at path.
//
// # Inputs
//
//   - path: Config file to watch.
//   - logger: Destination for reload diagnostics (may be nil).
//   - callback: Invoked with each successfully reloaded Config.
//
// # Outputs
//
//   - *Watcher: Ready-to-start watcher.
//   - error: Non-nil if watcher creation fails.
func NewWatcher(path string, logger *slog.Logger, callback func(Config)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		path:     path,
		watcher:  watcher,
		callback: callback,
		logger:   logger,
	}, nil
}

// Start begins watching for config changes.
//
// # Description
//
// Watches the config file's directory (editors often replace the file
// rather than writing in place, which would drop a direct file watch).
// Blocks until context is cancelled. Should be run in a goroutine.
//
// # Example
//
//	watcher, _ := config.NewWatcher(path, logger, onReload)
//	go watcher.Start(ctx)
func (w *Watcher) Start(ctx context.Context) {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		w.logger.Warn("Failed to watch config directory",
			"dir", dir,
			"error", err)
		return
	}

	w.logger.Debug("Started watching config file",
		"path", w.path)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error",
				"error", err)

		case <-ctx.Done():
			w.logger.Debug("Config watcher stopping")
			return
		}
	}
}

// handleEvent processes a single fsnotify event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	// Only care about our file being written or replaced.
	if filepath.Clean(event.Name) != filepath.Clean(w.path) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("Config reload failed, keeping previous configuration",
			"path", w.path,
			"error", err)
		return
	}

	w.logger.Info("Config reloaded",
		"path", w.path)

	if w.callback != nil {
		w.callback(cfg)
	}
}

// Stop stops the watcher and releases resources. Safe to call multiple
// times.
func (w *Watcher) Stop() error {
	return w.watcher.Close()
}
