// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

package tracer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of write events an editor's
// save-and-rename produces into one reload.
const reloadDebounce = 500 * time.Millisecond

// WatchTemplates reloads the template catalog into the manager when
// the file changes, and blocks until ctx is cancelled. A reload that
// fails to parse keeps the previous catalog; running traces are never
// affected either way, since each trace copies its template at start.
func WatchTemplates(ctx context.Context, manager *Manager, path string, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating template watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("watching templates %s: %w", path, err)
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				templates, err := LoadTemplates(path)
				if err != nil {
					logger.Warn("template reload failed, keeping previous catalog",
						"path", path, "error", err)
					return
				}
				manager.SetTemplates(templates)
				logger.Info("templates reloaded", "path", path, "count", len(templates))
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("template watcher error", "path", path, "error", err)
		}
	}
}
