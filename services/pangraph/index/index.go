// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package index assembles parsed GFA columns into the queryable path index.
//
// # Coordinate Model
//
// Node n occupies the half-open pangenome range [offset(n), offset(n+1)).
// The offset table has node_count+1 strictly increasing entries; the last is
// the total pangenome length. Offsets are also held in a 64-bit roaring
// bitmap so that
//
//	rank(p)   = node containing bp p   (count of offsets <= p, minus one)
//	select(n) = first bp of node n
//
// are mutual inverses at node boundaries.
//
// # Paths
//
// Each path keeps its ordered step list (packed handles, shared with the
// parser output) and a 32-bit roaring bitmap of the nodes it visits, used
// for range cardinality and reverse lookups.
//
// # Thread Safety
//
// An Index is immutable after Build and safe for concurrent use.
package index

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/pangraph/services/pangraph/genome"
	"github.com/AleutianAI/pangraph/services/pangraph/gfa"
)

// PathInfo is path metadata exposed to collaborators.
type PathInfo struct {
	ID        genome.PathID `json:"id"`
	Name      string        `json:"name"`
	StepCount int           `json:"step_count"`
}

// Index is the structural index over a pangenome graph.
type Index struct {
	cols *gfa.Columns

	// offsets has NodeCount()+1 entries; offsets[n] is the first bp of n.
	offsets    []uint64
	offsetBits *roaring64.Bitmap

	pathMembers []*roaring.Bitmap
	pathByName  map[string]genome.PathID
	nodeByName  map[string]genome.Node

	edges []genome.Edge
}

// Build validates cols and assembles an Index.
//
// Description:
//
//	Computes prefix-sum offsets, the offset bitmap, per-path membership
//	bitmaps (in parallel), the name lookups and the deduplicated edge list.
//	cols is retained by reference and must not be modified afterwards.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	cols - Parser or archive output.
//	opts - Build options.
//
// Outputs:
//
//	*Index - The built index.
//	error - ErrEmptyGraph, ErrEmptySegment, ErrInvalidStep,
//	        ErrInvalidColumns or ErrBuildCancelled.
func Build(ctx context.Context, cols *gfa.Columns, opts ...Option) (*Index, error) {
	options := DefaultBuildOptions()
	for _, opt := range opts {
		opt(&options)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cols == nil {
		return nil, ErrEmptyGraph
	}

	start := time.Now()
	ctx, span := startBuildSpan(ctx, cols.SegmentCount(), cols.PathCount())
	defer span.End()

	idx, err := build(ctx, cols, options)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		recordBuildMetrics(ctx, time.Since(start), 0, 0, false)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int64("index.total_length", int64(idx.TotalLength())),
		attribute.Int("index.edge_count", len(idx.edges)),
	)
	recordBuildMetrics(ctx, time.Since(start), idx.NodeCount(), idx.PathCount(), true)

	logger.Info("path index built",
		slog.Int("nodes", idx.NodeCount()),
		slog.Int("paths", idx.PathCount()),
		slog.Int("edges", len(idx.edges)),
		slog.Uint64("total_bp", uint64(idx.TotalLength())),
		slog.Duration("duration", time.Since(start)),
	)
	return idx, nil
}

func build(ctx context.Context, cols *gfa.Columns, options BuildOptions) (*Index, error) {
	if err := validateColumns(cols); err != nil {
		return nil, err
	}

	n := cols.SegmentCount()
	idx := &Index{
		cols:       cols,
		offsets:    make([]uint64, n+1),
		offsetBits: roaring64.New(),
		nodeByName: make(map[string]genome.Node, n),
	}

	for i, length := range cols.SegmentLengths {
		if length == 0 {
			return nil, fmt.Errorf("%w: node %d", ErrEmptySegment, i)
		}
		idx.offsets[i+1] = idx.offsets[i] + length
		idx.nodeByName[cols.SegmentName(i)] = genome.Node(i)
	}
	idx.offsetBits.AddMany(idx.offsets)
	idx.offsetBits.RunOptimize()

	idx.pathByName = make(map[string]genome.PathID, cols.PathCount())
	for p := 0; p < cols.PathCount(); p++ {
		name := cols.PathName(p)
		if _, dup := idx.pathByName[name]; dup {
			return nil, fmt.Errorf("%w: duplicate path name %q", ErrInvalidColumns, name)
		}
		idx.pathByName[name] = genome.PathID(p)
	}

	members, err := buildMembership(ctx, cols, options.Workers)
	if err != nil {
		return nil, err
	}
	idx.pathMembers = members

	edges, err := buildEdges(cols)
	if err != nil {
		return nil, err
	}
	idx.edges = edges

	return idx, nil
}

func validateColumns(cols *gfa.Columns) error {
	n := cols.SegmentCount()
	if n == 0 {
		return ErrEmptyGraph
	}
	switch {
	case len(cols.SegmentNameOffsets) != n+1:
		return fmt.Errorf("%w: segment name offsets", ErrInvalidColumns)
	case len(cols.SegmentSequenceOffsets) != n+1:
		return fmt.Errorf("%w: segment sequence offsets", ErrInvalidColumns)
	case len(cols.LinkFrom) != len(cols.LinkTo):
		return fmt.Errorf("%w: link endpoints", ErrInvalidColumns)
	case len(cols.PathNameOffsets) != len(cols.PathSteps)+1:
		return fmt.Errorf("%w: path name offsets", ErrInvalidColumns)
	}
	if uint64(n) > 1<<31 {
		return fmt.Errorf("%w: %d segments exceed handle capacity", ErrInvalidColumns, n)
	}
	if err := cols.CheckOffsets(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidColumns, err)
	}
	return nil
}

// buildMembership builds one node-membership bitmap per path.
func buildMembership(ctx context.Context, cols *gfa.Columns, workers int) ([]*roaring.Bitmap, error) {
	n := genome.Node(cols.SegmentCount())
	members := make([]*roaring.Bitmap, cols.PathCount())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for p, steps := range cols.PathSteps {
		g.Go(func() error {
			if gctx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrBuildCancelled, gctx.Err())
			}
			bm := roaring.New()
			for i, h := range steps {
				if h.Node() >= n {
					return fmt.Errorf("%w: path %q step %d node %d", ErrInvalidStep, cols.PathName(p), i, h.Node())
				}
				bm.Add(uint32(h.Node()))
			}
			bm.RunOptimize()
			members[p] = bm
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return members, nil
}

// buildEdges returns the undirected union of links: a link and its reverse
// traversal are stored once, as the normalized form.
func buildEdges(cols *gfa.Columns) ([]genome.Edge, error) {
	n := genome.Node(cols.SegmentCount())
	edges := make([]genome.Edge, 0, cols.LinkCount())
	for i := 0; i < cols.LinkCount(); i++ {
		e := cols.Link(i)
		if e.From.Node() >= n || e.To.Node() >= n {
			return nil, fmt.Errorf("%w: link %d %s", ErrInvalidStep, i, e)
		}
		edges = append(edges, e.Normalized())
	}
	slices.SortFunc(edges, func(a, b genome.Edge) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		default:
			return 0
		}
	})
	return slices.Compact(edges), nil
}

// NodeCount returns the number of nodes.
func (x *Index) NodeCount() int {
	return len(x.offsets) - 1
}

// PathCount returns the number of paths.
func (x *Index) PathCount() int {
	return len(x.pathMembers)
}

// TotalLength returns the pangenome length in bp.
func (x *Index) TotalLength() genome.Bp {
	return genome.Bp(x.offsets[len(x.offsets)-1])
}

// Columns returns the underlying columns. They must not be modified.
func (x *Index) Columns() *gfa.Columns {
	return x.cols
}

// NodeLength returns the length of node n in O(1).
func (x *Index) NodeLength(n genome.Node) (genome.Bp, bool) {
	if int(n) >= x.NodeCount() {
		return 0, false
	}
	return genome.Bp(x.offsets[n+1] - x.offsets[n]), true
}

// NodeOffset returns the first bp of node n (select). NodeOffset(NodeCount())
// returns the total length.
func (x *Index) NodeOffset(n genome.Node) (genome.Bp, bool) {
	if int(n) > x.NodeCount() {
		return 0, false
	}
	return genome.Bp(x.offsets[n]), true
}

// NodeSpan returns the pangenome range occupied by node n.
func (x *Index) NodeSpan(n genome.Node) (genome.BpRange, bool) {
	if int(n) >= x.NodeCount() {
		return genome.BpRange{}, false
	}
	return genome.BpRange{Start: genome.Bp(x.offsets[n]), End: genome.Bp(x.offsets[n+1])}, true
}

// selectOffset answers select through the offset bitmap.
func (x *Index) selectOffset(n genome.Node) genome.Bp {
	v, err := x.offsetBits.Select(uint64(n))
	if err != nil {
		panic(fmt.Sprintf("index: offset select %d: %v", n, err))
	}
	return genome.Bp(v)
}

// rank returns the node containing bp, which must be < TotalLength().
func (x *Index) rank(bp genome.Bp) genome.Node {
	r := x.offsetBits.Rank(uint64(bp))
	if r == 0 || r > uint64(x.NodeCount()) {
		panic(fmt.Sprintf("index: offset rank %d out of range for bp %d", r, bp))
	}
	return genome.Node(r - 1)
}

// NodeAtPos returns the node whose range contains bp.
//
// Returns false when bp >= TotalLength().
func (x *Index) NodeAtPos(bp genome.Bp) (genome.Node, bool) {
	if bp >= x.TotalLength() {
		return 0, false
	}
	return x.rank(bp), true
}

// PosRangeNodes returns the minimal node range covering r.
//
// Description:
//
//	r is clamped to [0, TotalLength()). The start node is the node containing
//	r.Start; the end node is one past the node containing r.End-1, so a range
//	ending exactly on a node boundary does not include the following node.
//	An empty (or fully clamped) range yields an empty NodeRange positioned at
//	the node containing r.Start, or at NodeCount() past the end.
func (x *Index) PosRangeNodes(r genome.BpRange) genome.NodeRange {
	r = r.Clamp(x.TotalLength())
	if r.Empty() {
		at := genome.Node(x.NodeCount())
		if r.Start < x.TotalLength() {
			at = x.rank(r.Start)
		}
		return genome.NodeRange{Start: at, End: at}
	}
	return genome.NodeRange{
		Start: x.rank(r.Start),
		End:   x.rank(r.End-1) + 1,
	}
}

// PathByName resolves a path name.
func (x *Index) PathByName(name string) (genome.PathID, bool) {
	id, ok := x.pathByName[name]
	return id, ok
}

// PathName returns the name of path id.
func (x *Index) PathName(id genome.PathID) (string, bool) {
	if int(id) >= x.PathCount() {
		return "", false
	}
	return x.cols.PathName(int(id)), true
}

// PathSteps returns the step list of path id. The slice must not be modified.
func (x *Index) PathSteps(id genome.PathID) ([]genome.Handle, bool) {
	if int(id) >= x.PathCount() {
		return nil, false
	}
	return x.cols.PathSteps[id], true
}

// PathNodes returns a copy of the node-membership bitmap of path id.
func (x *Index) PathNodes(id genome.PathID) (*roaring.Bitmap, bool) {
	if int(id) >= x.PathCount() {
		return nil, false
	}
	return x.pathMembers[id].Clone(), true
}

// Paths lists metadata for every path in id order.
func (x *Index) Paths() []PathInfo {
	out := make([]PathInfo, x.PathCount())
	for i := range out {
		out[i] = PathInfo{
			ID:        genome.PathID(i),
			Name:      x.cols.PathName(i),
			StepCount: len(x.cols.PathSteps[i]),
		}
	}
	return out
}

// PathTouchesRange reports whether path id visits any node overlapping r,
// using range cardinality on its membership bitmap.
func (x *Index) PathTouchesRange(id genome.PathID, r genome.BpRange) bool {
	if int(id) >= x.PathCount() {
		return false
	}
	nodes := x.PosRangeNodes(r)
	if nodes.Empty() {
		return false
	}
	return x.memberCount(id, nodes) > 0
}

// memberCount returns how many nodes in nodes are visited by path id.
func (x *Index) memberCount(id genome.PathID, nodes genome.NodeRange) uint64 {
	bm := x.pathMembers[id]
	upper := bm.Rank(uint32(nodes.End - 1))
	if nodes.Start == 0 {
		return upper
	}
	return upper - bm.Rank(uint32(nodes.Start-1))
}

// PathStepsInRange yields, in path order, every (step index, handle) of path
// id whose node overlaps r.
//
// The sequence is lazy and restartable. An unknown path or a range the path
// does not touch yields nothing.
func (x *Index) PathStepsInRange(id genome.PathID, r genome.BpRange) iter.Seq2[int, genome.Handle] {
	return func(yield func(int, genome.Handle) bool) {
		if !x.PathTouchesRange(id, r) {
			return
		}
		nodes := x.PosRangeNodes(r)
		for i, h := range x.cols.PathSteps[id] {
			if !nodes.Contains(h.Node()) {
				continue
			}
			if !yield(i, h) {
				return
			}
		}
	}
}

// StepAtPos returns the first step of path id on the node covering bp.
//
// Returns false when bp is beyond the pangenome, the path is unknown, or the
// path does not visit that node.
func (x *Index) StepAtPos(id genome.PathID, bp genome.Bp) (int, genome.Handle, bool) {
	if int(id) >= x.PathCount() {
		return 0, 0, false
	}
	node, ok := x.NodeAtPos(bp)
	if !ok || !x.pathMembers[id].Contains(uint32(node)) {
		return 0, 0, false
	}
	for i, h := range x.cols.PathSteps[id] {
		if h.Node() == node {
			return i, h, true
		}
	}
	panic(fmt.Sprintf("index: path %d membership bitmap contains node %d but steps do not", id, node))
}

// PathsOnNode yields the ids of paths visiting node n, in id order.
func (x *Index) PathsOnNode(n genome.Node) iter.Seq[genome.PathID] {
	return func(yield func(genome.PathID) bool) {
		if int(n) >= x.NodeCount() {
			return
		}
		for p, bm := range x.pathMembers {
			if !bm.Contains(uint32(n)) {
				continue
			}
			if !yield(genome.PathID(p)) {
				return
			}
		}
	}
}

// NodeByName resolves a segment name.
func (x *Index) NodeByName(name string) (genome.Node, bool) {
	n, ok := x.nodeByName[name]
	return n, ok
}

// SegmentName returns the GFA name of node n.
func (x *Index) SegmentName(n genome.Node) (string, bool) {
	if int(n) >= x.NodeCount() {
		return "", false
	}
	return x.cols.SegmentName(int(n)), true
}

// SegmentSequence returns the stored sequence of node n; empty for segments
// declared with "*". The slice must not be modified.
func (x *Index) SegmentSequence(n genome.Node) ([]byte, bool) {
	if int(n) >= x.NodeCount() {
		return nil, false
	}
	return x.cols.SegmentSequence(int(n)), true
}

// Edges returns the deduplicated, sorted edge list. The slice must not be
// modified.
func (x *Index) Edges() []genome.Edge {
	return x.edges
}

// Links returns the links as recorded in the input, in file order and with
// their original orientation.
func (x *Index) Links() []genome.Edge {
	out := make([]genome.Edge, x.cols.LinkCount())
	for i := range out {
		out[i] = x.cols.Link(i)
	}
	return out
}
