// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"log/slog"
	"runtime"
)

// BuildOptions configures Build.
type BuildOptions struct {
	// Logger receives build progress. Nil means slog.Default().
	Logger *slog.Logger

	// Workers bounds the goroutines building per-path membership bitmaps.
	// Default: GOMAXPROCS.
	Workers int
}

// DefaultBuildOptions returns sensible defaults.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{
		Workers: runtime.GOMAXPROCS(0),
	}
}

// Option is a functional option for configuring Build.
type Option func(*BuildOptions)

// WithLogger sets the build logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *BuildOptions) {
		o.Logger = logger
	}
}

// WithWorkers sets the number of bitmap build workers.
func WithWorkers(n int) Option {
	return func(o *BuildOptions) {
		if n > 0 {
			o.Workers = n
		}
	}
}
