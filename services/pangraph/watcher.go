// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pangraph

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchArchive reloads the archive in dir whenever its files change.
//
// Description:
//
//	Events are debounced by ServiceConfig.Debounce so a writer rewriting
//	many tables triggers one reload. A failed reload is logged and the
//	previous graph stays current. Blocks until ctx is cancelled.
//
// Inputs:
//
//	ctx - Cancellation stops watching.
//	dir - Archive directory; must exist.
//
// Outputs:
//
//	error - Non-nil if the watch could not be started.
func (s *Service) WatchArchive(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	s.logger.Info("Watching archive", "dir", dir, "debounce", s.config.Debounce)

	var timer *time.Timer
	var timerC <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
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
			if ignoreArchiveEvent(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(s.config.Debounce)
				timerC = timer.C
			} else {
				timer.Reset(s.config.Debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Archive watcher error", "dir", dir, "error", err)

		case <-timerC:
			timer, timerC = nil, nil
			if _, err := s.LoadArchive(ctx, dir); err != nil {
				s.logger.Warn("Archive reload failed; keeping current graph", "dir", dir, "error", err)
			}
		}
	}
}

// ignoreArchiveEvent drops events that do not change archive content.
func ignoreArchiveEvent(event fsnotify.Event) bool {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return true
	}
	return filepath.Base(event.Name) == "LOCK"
}
