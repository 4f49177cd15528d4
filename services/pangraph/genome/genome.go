// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package genome defines the primitive identifiers shared by every layer of
// the pangenome graph: nodes, oriented handles, edges, paths and base-pair
// coordinates.
//
// # Pangenome Space
//
// Pangenome space is the virtual 1D line built by concatenating every node's
// sequence in node-ID order. A Bp is an offset on that line. All ranges in
// this package are half-open: [Start, End).
//
// # Handles
//
// A Handle packs a node with a strand bit:
//
//	handle = node<<1 | reverse
//
// The same packing is used by the GFA parser, the index, the archive and
// the HTTP surface, so raw handle arrays can be passed between them without
// conversion.
package genome

import (
	"fmt"
	"strconv"
)

// Node is a dense, 0-indexed segment identifier in [0, node_count).
type Node uint32

// PathID is a dense, 0-indexed path identifier in [0, path_count).
type PathID uint32

// Bp is an offset into pangenome space, in base pairs.
type Bp uint64

// Handle is a node paired with an orientation.
//
// Two handles of the same node are distinct for adjacency purposes but
// resolve to the same Node for length and sequence lookups.
type Handle uint32

// NewHandle packs a node and orientation into a Handle.
func NewHandle(node Node, reverse bool) Handle {
	h := Handle(node) << 1
	if reverse {
		h |= 1
	}
	return h
}

// Node returns the node the handle refers to.
func (h Handle) Node() Node {
	return Node(h >> 1)
}

// IsReverse reports whether the handle is on the reverse strand.
func (h Handle) IsReverse() bool {
	return h&1 == 1
}

// Flip returns the same node on the opposite strand.
func (h Handle) Flip() Handle {
	return h ^ 1
}

// Forward returns the forward-strand handle of the same node.
func (h Handle) Forward() Handle {
	return h &^ 1
}

// String renders the handle as "<node><+|->", e.g. "12+".
func (h Handle) String() string {
	if h.IsReverse() {
		return strconv.FormatUint(uint64(h.Node()), 10) + "-"
	}
	return strconv.FormatUint(uint64(h.Node()), 10) + "+"
}

// Edge is an ordered pair of handles derived from a GFA link.
type Edge struct {
	From Handle `json:"from"`
	To   Handle `json:"to"`
}

// Reversed returns the same junction traversed in the opposite direction.
//
// A link a+ -> b+ is the same physical junction as b- -> a-.
func (e Edge) Reversed() Edge {
	return Edge{From: e.To.Flip(), To: e.From.Flip()}
}

// Normalized returns whichever of e and e.Reversed() orders first, so that
// both traversal directions of a junction compare equal.
func (e Edge) Normalized() Edge {
	r := e.Reversed()
	if r.Less(e) {
		return r
	}
	return e
}

// Less orders edges by (From, To).
func (e Edge) Less(o Edge) bool {
	if e.From != o.From {
		return e.From < o.From
	}
	return e.To < o.To
}

// String renders the edge as "from->to".
func (e Edge) String() string {
	return e.From.String() + "->" + e.To.String()
}

// BpRange is a half-open range [Start, End) in base pairs.
type BpRange struct {
	Start Bp `json:"start"`
	End   Bp `json:"end"`
}

// Len returns the number of base pairs covered, 0 for inverted ranges.
func (r BpRange) Len() Bp {
	if r.End <= r.Start {
		return 0
	}
	return r.End - r.Start
}

// Empty reports whether the range covers no base pairs.
func (r BpRange) Empty() bool {
	return r.End <= r.Start
}

// Contains reports whether bp lies in [Start, End).
func (r BpRange) Contains(bp Bp) bool {
	return bp >= r.Start && bp < r.End
}

// Clamp restricts the range to [0, total).
func (r BpRange) Clamp(total Bp) BpRange {
	if r.Start > total {
		r.Start = total
	}
	if r.End > total {
		r.End = total
	}
	return r
}

// String renders the range as "[start,end)".
func (r BpRange) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End)
}

// NodeRange is a half-open range of node identifiers.
type NodeRange struct {
	Start Node `json:"start"`
	End   Node `json:"end"`
}

// Len returns the number of nodes in the range.
func (r NodeRange) Len() int {
	if r.End <= r.Start {
		return 0
	}
	return int(r.End - r.Start)
}

// Empty reports whether the range contains no nodes.
func (r NodeRange) Empty() bool {
	return r.End <= r.Start
}

// Contains reports whether n lies in [Start, End).
func (r NodeRange) Contains(n Node) bool {
	return n >= r.Start && n < r.End
}
