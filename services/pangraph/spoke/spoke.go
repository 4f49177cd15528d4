// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package spoke collapses oriented node endpoints joined by links into hubs.
//
// # Hubs
//
// Each node has two endpoints, represented by its two handles: the forward
// handle stands for the right end and the reverse handle for the left end.
// Every link is canonicalized into a pair of endpoint handles and the pair
// is unioned; each resulting equivalence class is a hub. A hub therefore
// corresponds to one side of a junction, and the hub graph is the substrate
// for 3-edge-connected-component and cactus decomposition.
//
// # Adjacency
//
// Hubs are adjacent when one node has an endpoint in each: crossing a node
// from one end to the other moves between hubs. Adjacency is symmetric and
// never contains the hub itself.
package spoke

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/pangraph/services/pangraph/genome"
)

var tracer = otel.Tracer("pangraph.spoke")

// HubID identifies a hub; dense in [0, HubCount()).
type HubID uint32

// NoHub marks a node endpoint that participates in no link.
const NoHub = HubID(math.MaxUint32)

var (
	// ErrInvalidEdge is returned when a link references a node outside
	// [0, nodeCount).
	ErrInvalidEdge = errors.New("edge references invalid node")

	// ErrBuildCancelled is returned when the context is cancelled during Build.
	ErrBuildCancelled = errors.New("spoke graph build cancelled")
)

// Hub is one equivalence class of node endpoints.
type Hub struct {
	ID HubID `json:"id"`

	// Edges are the input links mapped into this hub, in input order.
	Edges []genome.Edge `json:"edges"`

	// Spokes are the canonical endpoint handles of those links, deduplicated
	// in first-seen order.
	Spokes []genome.Handle `json:"spokes"`

	// Adjacent are the other hubs reachable by crossing one node, sorted.
	Adjacent []HubID `json:"adjacent"`
}

// NodeEnds holds the hubs of a node's two endpoints; either may be NoHub.
type NodeEnds struct {
	Left  HubID `json:"left"`
	Right HubID `json:"right"`
}

// Stats summarizes a built SpokeGraph.
type Stats struct {
	Hubs      int
	Spokes    int
	Edges     int
	MaxDegree int
	Duration  time.Duration
}

// SpokeGraph is the hub-level view of a pangenome graph.
//
// Thread Safety: Immutable after Build; safe for concurrent use.
type SpokeGraph struct {
	nodeCount   int
	hubs        []Hub
	endpointHub map[genome.Handle]HubID
	stats       Stats
}

// Canonicalize maps a link to the pair of endpoint handles it joins.
//
// The orientation table:
//
//	from+ to+  ->  (from,        to.Flip())
//	from+ to-  ->  (from,        to)
//	from- to+  ->  (from.Flip(), to.Flip())
//	from- to-  ->  (from.Flip(), to)
func Canonicalize(e genome.Edge) (a, b genome.Handle) {
	switch {
	case !e.From.IsReverse() && !e.To.IsReverse():
		return e.From, e.To.Flip()
	case !e.From.IsReverse() && e.To.IsReverse():
		return e.From, e.To
	case e.From.IsReverse() && !e.To.IsReverse():
		return e.From.Flip(), e.To.Flip()
	default:
		return e.From.Flip(), e.To
	}
}

// Option configures Build.
type Option func(*buildOptions)

type buildOptions struct {
	logger *slog.Logger
}

// WithLogger sets the build logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *buildOptions) {
		o.logger = logger
	}
}

// Build collapses links into hubs.
//
// Description:
//
//	Unions the canonical endpoint pair of every link, allocates one HubID per
//	representative in first-seen link order, records each link and its
//	spokes in its hub, then derives hub adjacency and the endpoint map.
//
// Inputs:
//
//	ctx - Context for cancellation and tracing.
//	links - Links in input orientation (index.Index.Links).
//	nodeCount - Number of nodes; every link endpoint must be below it.
//	opts - Build options.
//
// Outputs:
//
//	*SpokeGraph - The hub graph. A graph without links has zero hubs.
//	error - ErrInvalidEdge or ErrBuildCancelled.
func Build(ctx context.Context, links []genome.Edge, nodeCount int, opts ...Option) (*SpokeGraph, error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	ctx, span := tracer.Start(ctx, "spoke.Build", trace.WithAttributes(
		attribute.Int("spoke.link_count", len(links)),
		attribute.Int("spoke.node_count", nodeCount),
	))
	defer span.End()

	start := time.Now()
	g, err := build(ctx, links, nodeCount)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	g.stats.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("spoke.hub_count", g.stats.Hubs),
		attribute.Int("spoke.max_degree", g.stats.MaxDegree),
	)
	o.logger.Info("spoke graph built",
		slog.Int("hubs", g.stats.Hubs),
		slog.Int("spokes", g.stats.Spokes),
		slog.Int("edges", g.stats.Edges),
		slog.Int("max_degree", g.stats.MaxDegree),
		slog.Duration("duration", g.stats.Duration),
	)
	return g, nil
}

func build(ctx context.Context, links []genome.Edge, nodeCount int) (*SpokeGraph, error) {
	ds := NewDisjointSet[genome.Handle](2 * len(links))
	for i, e := range links {
		if int(e.From.Node()) >= nodeCount || int(e.To.Node()) >= nodeCount {
			return nil, fmt.Errorf("%w: link %d %s", ErrInvalidEdge, i, e)
		}
		if i%4096 == 0 && ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrBuildCancelled, ctx.Err())
		}
		a, b := Canonicalize(e)
		ds.Union(a, b)
	}

	g := &SpokeGraph{
		nodeCount:   nodeCount,
		endpointHub: make(map[genome.Handle]HubID, ds.Len()),
	}

	hubOf := make(map[genome.Handle]HubID)
	for _, e := range links {
		a, b := Canonicalize(e)
		rep, _ := ds.Find(a)
		id, ok := hubOf[rep]
		if !ok {
			id = HubID(len(g.hubs))
			hubOf[rep] = id
			g.hubs = append(g.hubs, Hub{ID: id})
		}
		hub := &g.hubs[id]
		hub.Edges = append(hub.Edges, e)
		for _, s := range [2]genome.Handle{a, b} {
			if _, seen := g.endpointHub[s]; !seen {
				g.endpointHub[s] = id
				hub.Spokes = append(hub.Spokes, s)
			}
		}
	}

	for i := range g.hubs {
		hub := &g.hubs[i]
		for _, s := range hub.Spokes {
			if other, ok := g.endpointHub[s.Flip()]; ok && other != hub.ID {
				hub.Adjacent = append(hub.Adjacent, other)
			}
		}
		slices.Sort(hub.Adjacent)
		hub.Adjacent = slices.Compact(hub.Adjacent)

		g.stats.Spokes += len(hub.Spokes)
		g.stats.MaxDegree = max(g.stats.MaxDegree, len(hub.Adjacent))
	}
	g.stats.Hubs = len(g.hubs)
	g.stats.Edges = len(links)

	return g, nil
}

// HubCount returns the number of hubs.
func (g *SpokeGraph) HubCount() int {
	return len(g.hubs)
}

// NodeCount returns the number of nodes the graph was built over.
func (g *SpokeGraph) NodeCount() int {
	return g.nodeCount
}

// Stats returns build statistics.
func (g *SpokeGraph) Stats() Stats {
	return g.stats
}

// Hub returns hub h. The returned value must not be modified.
func (g *SpokeGraph) Hub(h HubID) (*Hub, bool) {
	if int(h) >= len(g.hubs) {
		return nil, false
	}
	return &g.hubs[h], true
}

// NodeEndpointHub returns the hub containing endpoint handle h.
func (g *SpokeGraph) NodeEndpointHub(h genome.Handle) (HubID, bool) {
	id, ok := g.endpointHub[h]
	return id, ok
}

// NodeHubs returns the hubs at both ends of node n. A missing end (a node
// with no link on that side) is NoHub. Returns false only when n is out of
// range.
func (g *SpokeGraph) NodeHubs(n genome.Node) (NodeEnds, bool) {
	if int(n) >= g.nodeCount {
		return NodeEnds{Left: NoHub, Right: NoHub}, false
	}
	ends := NodeEnds{Left: NoHub, Right: NoHub}
	if id, ok := g.endpointHub[genome.NewHandle(n, true)]; ok {
		ends.Left = id
	}
	if id, ok := g.endpointHub[genome.NewHandle(n, false)]; ok {
		ends.Right = id
	}
	return ends, true
}

// Neighbors returns the hubs adjacent to h. The slice is shared and must
// not be modified; nil for an unknown hub.
func (g *SpokeGraph) Neighbors(h HubID) []HubID {
	if int(h) >= len(g.hubs) {
		return nil
	}
	return g.hubs[h].Adjacent
}

// FindHubFromEdge returns the hub a link maps to. Returns false when the
// canonical endpoints are unknown or fall in different hubs.
func (g *SpokeGraph) FindHubFromEdge(e genome.Edge) (HubID, bool) {
	a, b := Canonicalize(e)
	ha, ok := g.endpointHub[a]
	if !ok {
		return 0, false
	}
	hb, ok := g.endpointHub[b]
	if !ok || ha != hb {
		return 0, false
	}
	return ha, true
}
