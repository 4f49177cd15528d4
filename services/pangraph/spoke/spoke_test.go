// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package spoke

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/pangraph/services/pangraph/genome"
)

func fwd(n genome.Node) genome.Handle { return genome.NewHandle(n, false) }
func rev(n genome.Node) genome.Handle { return genome.NewHandle(n, true) }

func link(from, to genome.Handle) genome.Edge {
	return genome.Edge{From: from, To: to}
}

// bubble: 0 -> (1 | 2) -> 3, plus a reverse-strand record of 2->3 and a
// self loop on 4.
var bubbleLinks = []genome.Edge{
	link(fwd(0), fwd(1)),
	link(fwd(0), fwd(2)),
	link(fwd(1), fwd(3)),
	link(fwd(2), fwd(3)),
	link(rev(3), rev(2)),
	link(fwd(4), fwd(4)),
	link(rev(5), fwd(6)),
	link(fwd(6), rev(7)),
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name string
		e    genome.Edge
		a, b genome.Handle
	}{
		{"++", link(fwd(1), fwd(2)), fwd(1), rev(2)},
		{"+-", link(fwd(1), rev(2)), fwd(1), rev(2)},
		{"-+", link(rev(1), fwd(2)), fwd(1), rev(2)},
		{"--", link(rev(1), rev(2)), fwd(1), rev(2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := Canonicalize(tt.e)
			assert.Equal(t, tt.a, a)
			assert.Equal(t, tt.b, b)
		})
	}
}

func TestBuild_Linear(t *testing.T) {
	links := []genome.Edge{link(fwd(0), fwd(1)), link(fwd(1), fwd(2))}
	g, err := Build(context.Background(), links, 3)
	require.NoError(t, err)

	require.Equal(t, 2, g.HubCount())
	assert.Equal(t, []HubID{1}, g.Neighbors(0))
	assert.Equal(t, []HubID{0}, g.Neighbors(1))

	ends, ok := g.NodeHubs(0)
	require.True(t, ok)
	assert.Equal(t, NodeEnds{Left: NoHub, Right: 0}, ends)
	ends, _ = g.NodeHubs(1)
	assert.Equal(t, NodeEnds{Left: 0, Right: 1}, ends)
	ends, _ = g.NodeHubs(2)
	assert.Equal(t, NodeEnds{Left: 1, Right: NoHub}, ends)

	_, ok = g.NodeHubs(3)
	assert.False(t, ok)

	hub, ok := g.Hub(0)
	require.True(t, ok)
	assert.Equal(t, []genome.Edge{links[0]}, hub.Edges)
	assert.Equal(t, []genome.Handle{fwd(0), rev(1)}, hub.Spokes)

	id, ok := g.FindHubFromEdge(links[1])
	require.True(t, ok)
	assert.Equal(t, HubID(1), id)
	_, ok = g.FindHubFromEdge(link(fwd(0), fwd(2)))
	assert.False(t, ok)
}

func TestBuild_HubSymmetry(t *testing.T) {
	g, err := Build(context.Background(), bubbleLinks, 8)
	require.NoError(t, err)

	for _, e := range bubbleLinks {
		a, b := Canonicalize(e)
		ha, ok := g.NodeEndpointHub(a)
		require.True(t, ok, "edge %s", e)
		hb, ok := g.NodeEndpointHub(b)
		require.True(t, ok, "edge %s", e)
		assert.Equal(t, ha, hb, "edge %s", e)

		h, ok := g.FindHubFromEdge(e)
		require.True(t, ok)
		assert.Equal(t, ha, h)
	}

	for h := range g.HubCount() {
		id := HubID(h)
		adj := g.Neighbors(id)
		assert.NotContains(t, adj, id, "hub %d adjacent to itself", id)
		assert.True(t, slices.IsSorted(adj))
		for _, other := range adj {
			assert.Contains(t, g.Neighbors(other), id, "adjacency %d->%d not symmetric", id, other)
		}
	}
}

func TestBuild_EndpointsPartitioned(t *testing.T) {
	g, err := Build(context.Background(), bubbleLinks, 8)
	require.NoError(t, err)

	seen := make(map[genome.Handle]HubID)
	for h := range g.HubCount() {
		hub, _ := g.Hub(HubID(h))
		for _, s := range hub.Spokes {
			prev, dup := seen[s]
			assert.False(t, dup, "spoke %s in hubs %d and %d", s, prev, h)
			seen[s] = HubID(h)
		}
	}
	assert.Equal(t, g.Stats().Spokes, len(seen))

	// Self loop collapses both ends of node 4 into one hub with no neighbours.
	ends, _ := g.NodeHubs(4)
	assert.Equal(t, ends.Left, ends.Right)
	assert.Empty(t, g.Neighbors(ends.Left))
}

func TestBuild_EmptyAndInvalid(t *testing.T) {
	g, err := Build(context.Background(), nil, 3)
	require.NoError(t, err)
	assert.Zero(t, g.HubCount())
	ends, ok := g.NodeHubs(1)
	require.True(t, ok)
	assert.Equal(t, NodeEnds{Left: NoHub, Right: NoHub}, ends)
	assert.Nil(t, g.Neighbors(0))
	_, ok = g.Hub(0)
	assert.False(t, ok)

	_, err = Build(context.Background(), []genome.Edge{link(fwd(0), fwd(9))}, 3)
	assert.ErrorIs(t, err, ErrInvalidEdge)
}

func TestComponentPartitioner(t *testing.T) {
	g, err := Build(context.Background(), bubbleLinks, 8)
	require.NoError(t, err)

	var p Partitioner = ComponentPartitioner{}
	parts, err := p.PartitionHubs(context.Background(), g)
	require.NoError(t, err)

	total := 0
	for _, part := range parts {
		total += len(part)
		assert.True(t, slices.IsSorted(part))
	}
	assert.Equal(t, g.HubCount(), total)

	// Bubble hubs, self-loop hub, and the 5-6-7 chain are separate components.
	assert.Len(t, parts, 3)

	custom := PartitionerFunc(func(ctx context.Context, g *SpokeGraph) ([][]HubID, error) {
		return [][]HubID{{0}}, nil
	})
	parts, err = custom.PartitionHubs(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, [][]HubID{{0}}, parts)
}
