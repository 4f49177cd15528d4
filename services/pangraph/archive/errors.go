// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package archive

import "errors"

var (
	// ErrVersionMismatch is returned when an archive was written with a
	// different format version.
	ErrVersionMismatch = errors.New("archive format version mismatch")

	// ErrCorruptArchive is returned when a column is missing, truncated or
	// inconsistent with the recorded counts.
	ErrCorruptArchive = errors.New("corrupt archive")

	// ErrNotArchive is returned when the database holds no archive metadata.
	ErrNotArchive = errors.New("not a pangraph archive")
)
