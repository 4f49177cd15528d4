// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package coordsys maps base-pair ranges onto an ordered sequence of nodes
// and bins per-node scalar data over those ranges.
//
// A CoordSys is either global (every node in id order, the pangenome line)
// or scoped to one path (the path's steps in walk order, so a node visited
// twice occupies two positions). In both cases position i occupies the
// half-open range [Offset(i), Offset(i+1)).
package coordsys

import (
	"fmt"
	"sort"

	"github.com/AleutianAI/pangraph/services/pangraph/genome"
	"github.com/AleutianAI/pangraph/services/pangraph/index"
)

// CoordSys is an immutable coordinate system over an ordered node sequence.
//
// Thread Safety: Safe for concurrent use.
type CoordSys struct {
	idx    *index.Index
	name   string
	path   genome.PathID
	global bool

	// nodes is the iteration order; nil for the global system, where
	// position i is node i.
	nodes []genome.Node

	// offsets has Len()+1 strictly increasing entries.
	offsets []uint64
}

// Global returns the coordinate system over all nodes in id order.
func Global(idx *index.Index) *CoordSys {
	n := idx.NodeCount()
	offsets := make([]uint64, n+1)
	for i := 0; i <= n; i++ {
		off, _ := idx.NodeOffset(genome.Node(i))
		offsets[i] = uint64(off)
	}
	return &CoordSys{idx: idx, global: true, offsets: offsets}
}

// ForPath returns the coordinate system along path id.
//
// Outputs:
//
//	*CoordSys - Positions follow the path's step order.
//	error - ErrPathNotFound or ErrEmptyPath.
func ForPath(idx *index.Index, id genome.PathID) (*CoordSys, error) {
	steps, ok := idx.PathSteps(id)
	if !ok {
		return nil, fmt.Errorf("%w: id %d", ErrPathNotFound, id)
	}
	name, _ := idx.PathName(id)
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmptyPath, name)
	}

	nodes := make([]genome.Node, len(steps))
	offsets := make([]uint64, len(steps)+1)
	for i, h := range steps {
		nodes[i] = h.Node()
		length, ok := idx.NodeLength(h.Node())
		if !ok {
			panic(fmt.Sprintf("coordsys: path %q step %d references node %d outside index", name, i, h.Node()))
		}
		offsets[i+1] = offsets[i] + uint64(length)
	}

	return &CoordSys{
		idx:     idx,
		name:    name,
		path:    id,
		nodes:   nodes,
		offsets: offsets,
	}, nil
}

// ForPathName resolves name and returns its coordinate system.
func ForPathName(idx *index.Index, name string) (*CoordSys, error) {
	id, ok := idx.PathByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPathNotFound, name)
	}
	return ForPath(idx, id)
}

// Name returns the path name, or "" for the global system.
func (c *CoordSys) Name() string { return c.name }

// IsGlobal reports whether c spans the whole pangenome.
func (c *CoordSys) IsGlobal() bool { return c.global }

// Path returns the path id of a path-scoped system.
func (c *CoordSys) Path() (genome.PathID, bool) {
	return c.path, !c.global
}

// Index returns the index c was built from.
func (c *CoordSys) Index() *index.Index { return c.idx }

// Len returns the number of positions.
func (c *CoordSys) Len() int {
	return len(c.offsets) - 1
}

// TotalLength returns the bp length of the system.
func (c *CoordSys) TotalLength() genome.Bp {
	return genome.Bp(c.offsets[len(c.offsets)-1])
}

// NodeAt returns the node at position i.
func (c *CoordSys) NodeAt(i int) (genome.Node, bool) {
	if i < 0 || i >= c.Len() {
		return 0, false
	}
	if c.global {
		return genome.Node(i), true
	}
	return c.nodes[i], true
}

// Offset returns the first bp of position i. Offset(Len()) is TotalLength().
func (c *CoordSys) Offset(i int) (genome.Bp, bool) {
	if i < 0 || i > c.Len() {
		return 0, false
	}
	return genome.Bp(c.offsets[i]), true
}

// Span returns the bp range of position i.
func (c *CoordSys) Span(i int) (genome.BpRange, bool) {
	if i < 0 || i >= c.Len() {
		return genome.BpRange{}, false
	}
	return genome.BpRange{Start: genome.Bp(c.offsets[i]), End: genome.Bp(c.offsets[i+1])}, true
}

// IndexAtPos returns the position whose range contains bp.
//
// The global system answers through the index's offset bitmap rank; path
// systems binary-search their own offsets. Returns false when
// bp >= TotalLength().
func (c *CoordSys) IndexAtPos(bp genome.Bp) (int, bool) {
	if bp >= c.TotalLength() {
		return 0, false
	}
	if c.global {
		n, ok := c.idx.NodeAtPos(bp)
		return int(n), ok
	}
	return c.search(bp), true
}

// search returns the largest i with offsets[i] <= bp.
func (c *CoordSys) search(bp genome.Bp) int {
	return sort.Search(len(c.offsets), func(i int) bool {
		return c.offsets[i] > uint64(bp)
	}) - 1
}

// BpToStepRange returns the half-open position range [start, end) covering r.
//
// Description:
//
//	r is clamped to [0, TotalLength()). A range ending exactly on a boundary
//	excludes the position starting there. An empty range returns start==end,
//	positioned at the position containing r.Start (or Len() past the end).
func (c *CoordSys) BpToStepRange(r genome.BpRange) (start, end int) {
	r = r.Clamp(c.TotalLength())
	if r.Empty() {
		if i, ok := c.IndexAtPos(r.Start); ok {
			return i, i
		}
		return c.Len(), c.Len()
	}
	first, _ := c.IndexAtPos(r.Start)
	last, _ := c.IndexAtPos(r.End - 1)
	return first, last + 1
}

// StepRangeToBp returns the bp range covered by positions [start, end),
// clamped to [0, Len()].
func (c *CoordSys) StepRangeToBp(start, end int) genome.BpRange {
	start = min(max(start, 0), c.Len())
	end = min(max(end, start), c.Len())
	return genome.BpRange{Start: genome.Bp(c.offsets[start]), End: genome.Bp(c.offsets[end])}
}
