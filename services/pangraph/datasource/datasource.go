// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datasource provides named per-node scalar tracks for sampling.
//
// A track is a dense []float32 with one value per node; NaN means the node
// has no value. Built-in tracks:
//
//	depth        number of path steps on the node, over all paths
//	node_length  node length in bp
//	gc           GC fraction of the node sequence (NaN when not stored)
//	path:<name>  1 on nodes visited by the path, NaN elsewhere
package datasource

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/pangraph/services/pangraph/coordsys"
	"github.com/AleutianAI/pangraph/services/pangraph/genome"
	"github.com/AleutianAI/pangraph/services/pangraph/index"
)

// Built-in source names.
const (
	Depth      = "depth"
	NodeLength = "node_length"
	GC         = "gc"
	PathPrefix = "path:"
)

// ErrUnknownSource is returned for a source name that is not registered.
var ErrUnknownSource = errors.New("unknown data source")

// ComputeFunc produces a dense per-node track.
type ComputeFunc func(ctx context.Context, idx *index.Index) ([]float32, error)

// Registry resolves source names to per-node tracks over one index.
//
// Tracks are computed on first use and kept for the registry's lifetime.
//
// Thread Safety: Safe for concurrent use.
type Registry struct {
	idx *index.Index

	mu      sync.RWMutex
	sources map[string]ComputeFunc
	tracks  map[string][]float32
	flight  singleflight.Group
}

// NewRegistry returns a registry with the built-in sources.
func NewRegistry(idx *index.Index) *Registry {
	r := &Registry{
		idx:     idx,
		sources: make(map[string]ComputeFunc),
		tracks:  make(map[string][]float32),
	}
	r.Register(Depth, computeDepth)
	r.Register(NodeLength, computeNodeLength)
	r.Register(GC, computeGC)
	return r
}

// Register adds or replaces a named source. Any cached track for name is
// dropped.
func (r *Registry) Register(name string, fn ComputeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = fn
	delete(r.tracks, name)
}

// Names returns the registered source names in sorted order, excluding
// path tracks.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Get returns the track for name. The slice is shared and must not be
// modified.
func (r *Registry) Get(ctx context.Context, name string) ([]float32, error) {
	r.mu.RLock()
	track, ok := r.tracks[name]
	fn := r.sources[name]
	r.mu.RUnlock()
	if ok {
		return track, nil
	}

	if fn == nil {
		pathName, isPath := strings.CutPrefix(name, PathPrefix)
		if !isPath {
			return nil, fmt.Errorf("%w: %q", ErrUnknownSource, name)
		}
		id, found := r.idx.PathByName(pathName)
		if !found {
			return nil, fmt.Errorf("%w: %q", index.ErrPathNotFound, pathName)
		}
		fn = pathTrack(id)
	}

	v, err, _ := r.flight.Do(name, func() (interface{}, error) {
		track, err := fn(ctx, r.idx)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.tracks[name] = track
		r.mu.Unlock()
		return track, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

// Warm computes the named tracks concurrently.
func (r *Registry) Warm(ctx context.Context, names ...string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		g.Go(func() error {
			_, err := r.Get(gctx, name)
			return err
		})
	}
	return g.Wait()
}

// Project converts a per-node track into sparse data over positions
// [start, end) of cs, skipping NaN values.
func Project(cs *coordsys.CoordSys, track []float32, start, end int) []coordsys.Datum {
	start = max(start, 0)
	end = min(end, cs.Len())
	out := make([]coordsys.Datum, 0, max(end-start, 0))
	for i := start; i < end; i++ {
		n, _ := cs.NodeAt(i)
		if int(n) >= len(track) {
			continue
		}
		v := track[n]
		if v != v {
			continue
		}
		out = append(out, coordsys.Datum{Index: i, Value: v})
	}
	return out
}

func computeDepth(ctx context.Context, idx *index.Index) ([]float32, error) {
	track := make([]float32, idx.NodeCount())
	for p := 0; p < idx.PathCount(); p++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		steps, _ := idx.PathSteps(genome.PathID(p))
		for _, h := range steps {
			track[h.Node()]++
		}
	}
	return track, nil
}

func computeNodeLength(_ context.Context, idx *index.Index) ([]float32, error) {
	track := make([]float32, idx.NodeCount())
	for n := range track {
		length, _ := idx.NodeLength(genome.Node(n))
		track[n] = float32(length)
	}
	return track, nil
}

func computeGC(_ context.Context, idx *index.Index) ([]float32, error) {
	nan := float32(math.NaN())
	track := make([]float32, idx.NodeCount())
	for n := range track {
		seq, _ := idx.SegmentSequence(genome.Node(n))
		if len(seq) == 0 {
			track[n] = nan
			continue
		}
		gc := 0
		for _, b := range seq {
			switch b {
			case 'G', 'C', 'g', 'c', 'S', 's':
				gc++
			}
		}
		track[n] = float32(gc) / float32(len(seq))
	}
	return track, nil
}

func pathTrack(id genome.PathID) ComputeFunc {
	return func(_ context.Context, idx *index.Index) ([]float32, error) {
		nan := float32(math.NaN())
		track := make([]float32, idx.NodeCount())
		for n := range track {
			track[n] = nan
		}
		nodes, ok := idx.PathNodes(id)
		if !ok {
			return nil, fmt.Errorf("%w: id %d", index.ErrPathNotFound, id)
		}
		it := nodes.Iterator()
		for it.HasNext() {
			track[it.Next()] = 1
		}
		return track, nil
	}
}
