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

import "errors"

// Sentinel errors for index construction and lookup.
var (
	// ErrInvalidStep is returned by Build when a path step references a node
	// outside [0, node_count).
	ErrInvalidStep = errors.New("path step references invalid node")

	// ErrEmptySegment is returned by Build when a segment length is zero.
	ErrEmptySegment = errors.New("segment has zero length")

	// ErrEmptyGraph is returned by Build when the columns hold no segments.
	ErrEmptyGraph = errors.New("graph has no segments")

	// ErrInvalidColumns is returned by Build when column tables disagree in
	// length.
	ErrInvalidColumns = errors.New("inconsistent column lengths")

	// ErrPathNotFound is returned for an unknown path name or id.
	ErrPathNotFound = errors.New("path not found")

	// ErrNodeOutOfRange is returned for a node id outside [0, node_count).
	ErrNodeOutOfRange = errors.New("node out of range")

	// ErrBuildCancelled is returned when the context is cancelled during Build.
	ErrBuildCancelled = errors.New("index build cancelled")
)
