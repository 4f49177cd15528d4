// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package coordsys

import "errors"

var (
	// ErrEmptyRange is returned when a sampling range is empty after
	// clamping to the coordinate system.
	ErrEmptyRange = errors.New("empty bp range")

	// ErrZeroBins is returned when fewer than one bin is requested.
	ErrZeroBins = errors.New("bin count must be at least 1")

	// ErrUnsortedData is returned when sampling data is not strictly
	// increasing by index or references an index outside the system.
	ErrUnsortedData = errors.New("data must be sorted by index and within range")

	// ErrPathNotFound is returned by ForPath for an unknown path.
	ErrPathNotFound = errors.New("path not found")

	// ErrEmptyPath is returned by ForPath for a path with no steps.
	ErrEmptyPath = errors.New("path has no steps")
)
