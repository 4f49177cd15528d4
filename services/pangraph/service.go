// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pangraph serves a loaded pangenome graph: loading and hot reload,
// sampling, and the HTTP query surface.
package pangraph

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/pangraph/services/pangraph/archive"
	"github.com/AleutianAI/pangraph/services/pangraph/coordsys"
	"github.com/AleutianAI/pangraph/services/pangraph/datasource"
	"github.com/AleutianAI/pangraph/services/pangraph/genome"
	"github.com/AleutianAI/pangraph/services/pangraph/gfa"
	"github.com/AleutianAI/pangraph/services/pangraph/index"
)

// ServiceVersion is the pangraph service version.
const ServiceVersion = "0.1.0"

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// CacheCapacity is the coordinate system cache size per graph.
	CacheCapacity int

	// MaxBins bounds SampleRequest.Bins.
	MaxBins int

	// Debounce is the quiet period before an archive change triggers a reload.
	Debounce time.Duration

	// Logger receives service logs; nil means slog.Default().
	Logger *slog.Logger
}

// DefaultServiceConfig returns the configuration used when none is given.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		CacheCapacity: coordsys.DefaultCacheCapacity,
		MaxBins:       65536,
		Debounce:      500 * time.Millisecond,
	}
}

// Service owns the current graph.
//
// Description:
//
//	The graph pointer is swapped atomically on load. Callers take a
//	snapshot with Graph() and use it for the whole request.
//
// Thread Safety: Safe for concurrent use.
type Service struct {
	config ServiceConfig
	logger *slog.Logger
	graph  atomic.Pointer[Graph]
}

// NewService creates a service with no graph loaded.
func NewService(config ServiceConfig) *Service {
	defaults := DefaultServiceConfig()
	if config.CacheCapacity <= 0 {
		config.CacheCapacity = defaults.CacheCapacity
	}
	if config.MaxBins <= 0 {
		config.MaxBins = defaults.MaxBins
	}
	if config.Debounce <= 0 {
		config.Debounce = defaults.Debounce
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{config: config, logger: logger}
}

// Graph returns the current graph, or nil before the first load.
func (s *Service) Graph() *Graph {
	return s.graph.Load()
}

// SetIndex makes idx the current graph.
func (s *Service) SetIndex(idx *index.Index, origin string) *Graph {
	g := NewGraph(idx, origin, s.config.CacheCapacity, s.logger)
	s.graph.Store(g)
	return g
}

// LoadArchive reads the archive in dir, builds its index and makes it current.
//
// Outputs:
//
//	*Graph - The newly loaded graph.
//	error - Read or build failure; the previous graph stays current.
func (s *Service) LoadArchive(ctx context.Context, dir string) (*Graph, error) {
	start := time.Now()
	cols, meta, err := archive.Read(ctx, dir, archive.WithConfig(archive.Config{Logger: s.logger}))
	if err != nil {
		graphLoads.WithLabelValues("archive", "error").Inc()
		return nil, fmt.Errorf("load archive %s: %w", dir, err)
	}
	g, err := s.install(ctx, cols, dir)
	if err != nil {
		graphLoads.WithLabelValues("archive", "error").Inc()
		return nil, err
	}
	graphLoads.WithLabelValues("archive", "ok").Inc()
	s.logger.Info("Loaded archive",
		"dir", dir,
		"version", meta.Version,
		"segments", meta.Segments,
		"paths", meta.Paths,
		"duration", time.Since(start))
	return g, nil
}

// LoadGFA parses a GFA file, builds its index and makes it current.
func (s *Service) LoadGFA(ctx context.Context, path string) (*Graph, error) {
	res, err := gfa.ParseFile(ctx, path, gfa.WithLogger(s.logger))
	if err != nil {
		graphLoads.WithLabelValues("gfa", "error").Inc()
		return nil, err
	}
	g, err := s.install(ctx, res.Columns, path)
	if err != nil {
		graphLoads.WithLabelValues("gfa", "error").Inc()
		return nil, err
	}
	graphLoads.WithLabelValues("gfa", "ok").Inc()
	return g, nil
}

func (s *Service) install(ctx context.Context, cols *gfa.Columns, origin string) (*Graph, error) {
	idx, err := index.Build(ctx, cols, index.WithLogger(s.logger))
	if err != nil {
		return nil, fmt.Errorf("build index for %s: %w", origin, err)
	}
	return s.SetIndex(idx, origin), nil
}

// Sample bins a named track over a range of the requested coordinate system.
//
// Description:
//
//	Resolves the coordinate system (cached per graph), resolves the track,
//	projects it onto the steps overlapping the range and samples it.
//
// Inputs:
//
//	ctx - Context for track computation.
//	req - The request; Bins must be in [1, MaxBins].
//
// Outputs:
//
//	*SampleResponse - Values with NaN mapped to nil.
//	error - ErrGraphNotLoaded, ErrTooManyBins, coordsys.ErrPathNotFound,
//	datasource.ErrUnknownSource or a coordsys sampling error.
func (s *Service) Sample(ctx context.Context, req SampleRequest) (*SampleResponse, error) {
	g := s.Graph()
	if g == nil {
		return nil, ErrGraphNotLoaded
	}
	return s.sample(ctx, g, req)
}

func (s *Service) sample(ctx context.Context, g *Graph, req SampleRequest) (*SampleResponse, error) {
	if req.Bins > s.config.MaxBins {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyBins, req.Bins, s.config.MaxBins)
	}
	if req.Bins < 1 {
		return nil, coordsys.ErrZeroBins
	}

	cs, cached, err := g.CoordSys(ctx, req.Path)
	if err != nil {
		return nil, err
	}
	track, err := g.Sources.Get(ctx, req.Source)
	if err != nil {
		return nil, err
	}

	r := genome.BpRange{Start: req.Start, End: req.End}
	lo, hi := cs.BpToStepRange(r)
	sample, err := cs.Sample(r, datasource.Project(cs, track, lo, hi), req.Bins)
	if err != nil {
		return nil, err
	}
	sampleBins.Observe(float64(req.Bins))

	s.logger.Debug("Sampled track",
		"path", req.Path,
		"source", req.Source,
		"range", sample.Range.String(),
		"bins", req.Bins,
		"cached", cached)

	return &SampleResponse{
		Path:    req.Path,
		Source:  req.Source,
		Start:   sample.Range.Start,
		End:     sample.Range.End,
		Values:  nullable(sample.Values),
		Weights: sample.Weights,
		Cached:  cached,
	}, nil
}

// SampleMany runs requests concurrently against one graph snapshot. The
// first error cancels the rest.
func (s *Service) SampleMany(ctx context.Context, reqs []SampleRequest) ([]*SampleResponse, error) {
	g := s.Graph()
	if g == nil {
		return nil, ErrGraphNotLoaded
	}

	out := make([]*SampleResponse, len(reqs))
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i, req := range reqs {
		eg.Go(func() error {
			resp, err := s.sample(egctx, g, req)
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			out[i] = resp
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
