// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gfa

import (
	"errors"
	"fmt"
)

// Sentinel errors for structural problems in a GFA file.
var (
	// ErrUnknownSegment is returned when a link or path references a
	// segment name that no S line defines.
	ErrUnknownSegment = errors.New("unknown segment")

	// ErrDuplicateSegment is returned when two S lines share a name.
	ErrDuplicateSegment = errors.New("duplicate segment name")

	// ErrDuplicatePath is returned when two P lines share a name.
	ErrDuplicatePath = errors.New("duplicate path name")

	// ErrEmptySegment is returned for a segment whose length is zero,
	// either an empty sequence or "*" without an LN tag. Pangenome offsets
	// must be strictly increasing, so zero-length nodes are rejected.
	ErrEmptySegment = errors.New("segment has zero length")

	// ErrParseCancelled is returned when the context is cancelled mid-parse.
	ErrParseCancelled = errors.New("parse cancelled")

	// ErrBadOffsets is returned by Columns.CheckOffsets when an offset table
	// does not describe its byte column.
	ErrBadOffsets = errors.New("bad offset table")
)

// ParseError describes a structural error at a specific record.
type ParseError struct {
	// File is the input file name, empty for anonymous readers.
	File string

	// Line is the 1-based line number of the offending record.
	Line int

	// Record is the GFA record tag ('S', 'L' or 'P').
	Record byte

	// Field names the offending field ("name", "from", "to", "steps", ...).
	Field string

	// Value is the offending field value.
	Value string

	// Err is the underlying sentinel.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	loc := fmt.Sprintf("line %d", e.Line)
	if e.File != "" {
		loc = e.File + ":" + loc
	}
	return fmt.Sprintf("%s: %c record field %s %q: %v", loc, e.Record, e.Field, e.Value, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ParseError) Unwrap() error {
	return e.Err
}
