// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pangraph

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/pangraph/services/pangraph/coordsys"
	"github.com/AleutianAI/pangraph/services/pangraph/datasource"
	"github.com/AleutianAI/pangraph/services/pangraph/index"
	"github.com/AleutianAI/pangraph/services/pangraph/spoke"
)

// Graph is one loaded pangenome with everything derived from it.
//
// Description:
//
//	A Graph is replaced wholesale on reload. Readers that obtained it before
//	a reload keep a consistent view; the coordinate system cache and data
//	source tracks die with it.
//
// Thread Safety: Safe for concurrent use.
type Graph struct {
	// Index is the path index.
	Index *index.Index

	// Sources resolves named per-node tracks.
	Sources *datasource.Registry

	// Cache holds coordinate systems keyed by path name.
	Cache *coordsys.Cache

	// Origin is the archive directory or GFA file the graph came from.
	Origin string

	// LoadedAt is when the graph became current.
	LoadedAt time.Time

	logger *slog.Logger

	spokeMu     sync.Mutex
	spoke       *spoke.SpokeGraph
	spokeFlight singleflight.Group
}

// NewGraph wraps idx with a data source registry and a coordinate system
// cache of the given capacity.
func NewGraph(idx *index.Index, origin string, cacheCapacity int, logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{
		Index:    idx,
		Sources:  datasource.NewRegistry(idx),
		Cache:    coordsys.NewCache(cacheCapacity),
		Origin:   origin,
		LoadedAt: time.Now(),
		logger:   logger,
	}
}

// Spoke returns the hub graph, building it from the raw links on first use.
// Concurrent first callers share one build, which runs without holding
// spokeMu. A failed build is not remembered.
func (g *Graph) Spoke(ctx context.Context) (*spoke.SpokeGraph, error) {
	if sg := g.builtSpoke(); sg != nil {
		return sg, nil
	}
	v, err, _ := g.spokeFlight.Do("spoke", func() (interface{}, error) {
		if sg := g.builtSpoke(); sg != nil {
			return sg, nil
		}
		sg, err := spoke.Build(ctx, g.Index.Links(), g.Index.NodeCount(), spoke.WithLogger(g.logger))
		if err != nil {
			return nil, err
		}
		g.spokeMu.Lock()
		defer g.spokeMu.Unlock()
		if g.spoke == nil {
			g.spoke = sg
		}
		return g.spoke, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*spoke.SpokeGraph), nil
}

func (g *Graph) builtSpoke() *spoke.SpokeGraph {
	g.spokeMu.Lock()
	defer g.spokeMu.Unlock()
	return g.spoke
}

// CoordSys returns the coordinate system for path, or the global system
// when path is empty. The second result reports a cache hit.
func (g *Graph) CoordSys(ctx context.Context, path string) (*coordsys.CoordSys, bool, error) {
	cs, cached, err := g.Cache.GetOrBuild(ctx, path, coordsys.IndexBuilder(g.Index))
	if err == nil {
		if cached {
			cacheLookups.WithLabelValues("hit").Inc()
		} else {
			cacheLookups.WithLabelValues("miss").Inc()
		}
	}
	return cs, cached, err
}
