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
)

// Partitioner splits the hub graph into groups of hubs.
//
// This is the extension point for 3-edge-connected-component
// decomposition, whose output drives cactus graph construction.
// Implementations must return every hub exactly once.
type Partitioner interface {
	PartitionHubs(ctx context.Context, g *SpokeGraph) ([][]HubID, error)
}

// PartitionerFunc adapts a function to Partitioner.
type PartitionerFunc func(ctx context.Context, g *SpokeGraph) ([][]HubID, error)

// PartitionHubs calls f.
func (f PartitionerFunc) PartitionHubs(ctx context.Context, g *SpokeGraph) ([][]HubID, error) {
	return f(ctx, g)
}

// ComponentPartitioner groups hubs by connected component of the hub
// adjacency graph. Groups are sorted internally and ordered by their
// smallest hub.
type ComponentPartitioner struct{}

// PartitionHubs implements Partitioner.
func (ComponentPartitioner) PartitionHubs(ctx context.Context, g *SpokeGraph) ([][]HubID, error) {
	ds := NewDisjointSet[HubID](g.HubCount())
	for h := range g.HubCount() {
		if h%4096 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		id := HubID(h)
		ds.Add(id)
		for _, adj := range g.Neighbors(id) {
			ds.Union(id, adj)
		}
	}

	parts := ds.Sets()
	for _, p := range parts {
		slices.Sort(p)
	}
	slices.SortFunc(parts, func(a, b []HubID) int {
		return int(a[0]) - int(b[0])
	})
	return parts, nil
}
