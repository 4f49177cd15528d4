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
	"fmt"

	"github.com/AleutianAI/pangraph/services/pangraph/genome"
)

// Columns is the columnar form of a parsed GFA file.
//
// Description:
//
//	Variable-length values (names, sequences) are stored concatenated in a
//	single byte slice with an offset table of len+1 entries, so value i is
//	data[offsets[i]:offsets[i+1]]. Links and path steps are packed handles.
//	No per-node or per-edge objects are ever materialized.
//
// Invariants:
//   - len(SegmentNameOffsets) == len(SegmentSequenceOffsets) == SegmentCount()+1
//   - len(SegmentLengths) == SegmentCount(), every length > 0
//   - len(LinkFrom) == len(LinkTo)
//   - len(PathNameOffsets) == len(PathSteps)+1
//
// Ownership: Columns are treated as immutable once returned by Parse or an
// archive reader.
type Columns struct {
	SegmentNames       []byte   `json:"-"`
	SegmentNameOffsets []uint64 `json:"-"`

	// SegmentSequences holds sequence bytes; segments given as "*" contribute
	// no bytes but still have a length in SegmentLengths.
	SegmentSequences       []byte   `json:"-"`
	SegmentSequenceOffsets []uint64 `json:"-"`
	SegmentLengths         []uint64 `json:"-"`

	LinkFrom []genome.Handle `json:"-"`
	LinkTo   []genome.Handle `json:"-"`

	PathNames       []byte            `json:"-"`
	PathNameOffsets []uint64          `json:"-"`
	PathSteps       [][]genome.Handle `json:"-"`
}

// NewColumns returns empty columns with their offset tables seeded.
func NewColumns() *Columns {
	return &Columns{
		SegmentNameOffsets:     []uint64{0},
		SegmentSequenceOffsets: []uint64{0},
		PathNameOffsets:        []uint64{0},
	}
}

// SegmentCount returns the number of segments (nodes).
func (c *Columns) SegmentCount() int {
	return len(c.SegmentLengths)
}

// SegmentName returns the name of segment i.
func (c *Columns) SegmentName(i int) string {
	return string(c.SegmentNames[c.SegmentNameOffsets[i]:c.SegmentNameOffsets[i+1]])
}

// SegmentSequence returns the stored sequence of segment i, empty for "*".
// The returned slice aliases the column and must not be modified.
func (c *Columns) SegmentSequence(i int) []byte {
	return c.SegmentSequences[c.SegmentSequenceOffsets[i]:c.SegmentSequenceOffsets[i+1]]
}

// LinkCount returns the number of links.
func (c *Columns) LinkCount() int {
	return len(c.LinkFrom)
}

// Link returns link i as an edge.
func (c *Columns) Link(i int) genome.Edge {
	return genome.Edge{From: c.LinkFrom[i], To: c.LinkTo[i]}
}

// PathCount returns the number of paths.
func (c *Columns) PathCount() int {
	return len(c.PathSteps)
}

// PathName returns the name of path i.
func (c *Columns) PathName(i int) string {
	return string(c.PathNames[c.PathNameOffsets[i]:c.PathNameOffsets[i+1]])
}

// CheckOffsets verifies that every offset table starts at 0, never
// decreases and ends at the length of its byte column. Columns read from
// outside the parser must pass it before any accessor is used.
func (c *Columns) CheckOffsets() error {
	if err := checkOffsets("segment name", c.SegmentNameOffsets, len(c.SegmentNames)); err != nil {
		return err
	}
	if err := checkOffsets("segment sequence", c.SegmentSequenceOffsets, len(c.SegmentSequences)); err != nil {
		return err
	}
	return checkOffsets("path name", c.PathNameOffsets, len(c.PathNames))
}

func checkOffsets(table string, offsets []uint64, size int) error {
	if len(offsets) == 0 {
		return fmt.Errorf("%w: %s offsets empty", ErrBadOffsets, table)
	}
	if offsets[0] != 0 {
		return fmt.Errorf("%w: %s offsets start at %d", ErrBadOffsets, table, offsets[0])
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] {
			return fmt.Errorf("%w: %s offset %d decreases", ErrBadOffsets, table, i)
		}
	}
	if last := offsets[len(offsets)-1]; last != uint64(size) {
		return fmt.Errorf("%w: %s offsets end at %d, column has %d bytes", ErrBadOffsets, table, last, size)
	}
	return nil
}

// StepCount returns the total number of steps across all paths.
func (c *Columns) StepCount() int {
	n := 0
	for _, steps := range c.PathSteps {
		n += len(steps)
	}
	return n
}

func (c *Columns) appendSegment(name, seq []byte, length uint64) {
	c.SegmentNames = append(c.SegmentNames, name...)
	c.SegmentNameOffsets = append(c.SegmentNameOffsets, uint64(len(c.SegmentNames)))
	c.SegmentSequences = append(c.SegmentSequences, seq...)
	c.SegmentSequenceOffsets = append(c.SegmentSequenceOffsets, uint64(len(c.SegmentSequences)))
	c.SegmentLengths = append(c.SegmentLengths, length)
}

func (c *Columns) appendLink(from, to genome.Handle) {
	c.LinkFrom = append(c.LinkFrom, from)
	c.LinkTo = append(c.LinkTo, to)
}

func (c *Columns) appendPath(name []byte, steps []genome.Handle) {
	c.PathNames = append(c.PathNames, name...)
	c.PathNameOffsets = append(c.PathNameOffsets, uint64(len(c.PathNames)))
	c.PathSteps = append(c.PathSteps, steps)
}
