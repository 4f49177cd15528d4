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
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/pangraph/services/pangraph/archive"
	"github.com/AleutianAI/pangraph/services/pangraph/coordsys"
	"github.com/AleutianAI/pangraph/services/pangraph/datasource"
	"github.com/AleutianAI/pangraph/services/pangraph/genome"
	"github.com/AleutianAI/pangraph/services/pangraph/gfa"
	"github.com/AleutianAI/pangraph/services/pangraph/index"
	"github.com/AleutianAI/pangraph/services/pangraph/spoke"
)

// s1 [0,5) s2 [5,6) s3 [6,7) s4 [7,11) globally; ref is s1 [0,5) s2 [5,6)
// s4 [6,10).
const bubbleGFA = "S\ts1\tACGTA\n" +
	"S\ts2\tC\n" +
	"S\ts3\tG\n" +
	"S\ts4\tTTTT\n" +
	"L\ts1\t+\ts2\t+\t0M\n" +
	"L\ts1\t+\ts3\t+\t0M\n" +
	"L\ts2\t+\ts4\t+\t0M\n" +
	"L\ts3\t+\ts4\t+\t0M\n" +
	"P\tref\ts1+,s2+,s4+\t*\n" +
	"P\talt\ts1+,s3+,s4+\t*\n"

func writeGFA(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.gfa")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	return path
}

func writeArchive(t *testing.T, dir, text string) {
	t.Helper()
	res, err := gfa.Parse(context.Background(), strings.NewReader(text))
	require.NoError(t, err)
	require.NoError(t, archive.Write(context.Background(), dir, res.Columns))
}

func loadedService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(ServiceConfig{MaxBins: 100})
	_, err := svc.LoadGFA(context.Background(), writeGFA(t, bubbleGFA))
	require.NoError(t, err)
	return svc
}

func values(resp *SampleResponse) []any {
	out := make([]any, len(resp.Values))
	for i, v := range resp.Values {
		if v == nil {
			out[i] = nil
			continue
		}
		out[i] = *v
	}
	return out
}

func TestService_NotLoaded(t *testing.T) {
	svc := NewService(ServiceConfig{})
	assert.Nil(t, svc.Graph())

	_, err := svc.Sample(context.Background(), SampleRequest{End: 10, Bins: 1, Source: datasource.Depth})
	assert.ErrorIs(t, err, ErrGraphNotLoaded)
	_, err = svc.SampleMany(context.Background(), nil)
	assert.ErrorIs(t, err, ErrGraphNotLoaded)
}

func TestService_LoadGFA(t *testing.T) {
	svc := loadedService(t)
	g := svc.Graph()
	require.NotNil(t, g)
	assert.Equal(t, 4, g.Index.NodeCount())
	assert.Equal(t, 2, g.Index.PathCount())
	assert.False(t, g.LoadedAt.IsZero())

	_, err := svc.LoadGFA(context.Background(), filepath.Join(t.TempDir(), "missing.gfa"))
	assert.Error(t, err)
	assert.Same(t, g, svc.Graph(), "failed load keeps the current graph")
}

func TestService_LoadArchive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "graph.archive")
	writeArchive(t, dir, bubbleGFA)

	svc := NewService(ServiceConfig{})
	g, err := svc.LoadArchive(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, dir, g.Origin)
	assert.Equal(t, genome.Bp(11), g.Index.TotalLength())

	id, ok := g.Index.PathByName("alt")
	require.True(t, ok)
	steps, _ := g.Index.PathSteps(id)
	assert.Len(t, steps, 3)
}

func TestService_SampleGlobal(t *testing.T) {
	svc := loadedService(t)

	resp, err := svc.Sample(context.Background(), SampleRequest{End: 11, Bins: 11, Source: datasource.Depth})
	require.NoError(t, err)
	assert.Equal(t,
		[]any{float32(2), float32(2), float32(2), float32(2), float32(2), float32(1), float32(1),
			float32(2), float32(2), float32(2), float32(2)},
		values(resp))
	assert.False(t, resp.Cached)

	again, err := svc.Sample(context.Background(), SampleRequest{End: 11, Bins: 1, Source: datasource.Depth})
	require.NoError(t, err)
	assert.True(t, again.Cached)
}

func TestService_SamplePath(t *testing.T) {
	svc := loadedService(t)

	resp, err := svc.Sample(context.Background(), SampleRequest{Path: "ref", End: 10, Bins: 2, Source: datasource.Depth})
	require.NoError(t, err)
	require.Len(t, resp.Values, 2)
	assert.InDelta(t, 2.0, float64(*resp.Values[0]), 1e-6)
	// s2 contributes 1 bp of depth 1, s4 4 bp of depth 2.
	assert.InDelta(t, 1.8, float64(*resp.Values[1]), 1e-6)
	assert.Equal(t, []float64{5, 5}, resp.Weights)

	// alt does not visit s2, so ref's [5,6) has no alt data.
	resp, err = svc.Sample(context.Background(), SampleRequest{Path: "ref", Start: 4, End: 7, Bins: 3, Source: "path:alt"})
	require.NoError(t, err)
	assert.Equal(t, []any{float32(1), nil, float32(1)}, values(resp))
}

func TestService_SampleErrors(t *testing.T) {
	svc := loadedService(t)

	tests := []struct {
		name string
		req  SampleRequest
		want error
	}{
		{"unknown path", SampleRequest{Path: "nope", End: 5, Bins: 1, Source: datasource.Depth}, coordsys.ErrPathNotFound},
		{"unknown source", SampleRequest{End: 5, Bins: 1, Source: "coverage"}, datasource.ErrUnknownSource},
		{"unknown path source", SampleRequest{End: 5, Bins: 1, Source: "path:nope"}, index.ErrPathNotFound},
		{"too many bins", SampleRequest{End: 5, Bins: 101, Source: datasource.Depth}, ErrTooManyBins},
		{"zero bins", SampleRequest{End: 5, Source: datasource.Depth}, coordsys.ErrZeroBins},
		{"empty range", SampleRequest{Start: 3, End: 3, Bins: 1, Source: datasource.Depth}, coordsys.ErrEmptyRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Sample(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestService_SampleMany(t *testing.T) {
	svc := loadedService(t)

	reqs := []SampleRequest{
		{Path: "ref", End: 10, Bins: 1, Source: datasource.NodeLength},
		{Path: "alt", End: 10, Bins: 2, Source: datasource.Depth},
		{End: 11, Bins: 4, Source: datasource.GC},
	}
	out, err := svc.SampleMany(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, out, 3)
	for i, resp := range out {
		assert.Equal(t, reqs[i].Path, resp.Path)
		assert.Len(t, resp.Values, reqs[i].Bins)
	}

	reqs = append(reqs, SampleRequest{Path: "nope", End: 1, Bins: 1, Source: datasource.Depth})
	_, err = svc.SampleMany(context.Background(), reqs)
	assert.ErrorIs(t, err, coordsys.ErrPathNotFound)
}

func TestGraph_SpokeBuiltOnce(t *testing.T) {
	g := loadedService(t).Graph()

	first, err := g.Spoke(context.Background())
	require.NoError(t, err)
	second, err := g.Spoke(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 4, first.NodeCount())
}

func TestGraph_SpokeConcurrentFirstUse(t *testing.T) {
	g := loadedService(t).Graph()

	const callers = 16
	var wg sync.WaitGroup
	got := make([]*spoke.SpokeGraph, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i], errs[i] = g.Spoke(context.Background())
		}()
	}
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Same(t, got[0], got[i])
	}
}

func TestGraph_SpokeFailedBuildRetried(t *testing.T) {
	g := loadedService(t).Graph()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Spoke(ctx)
	assert.ErrorIs(t, err, spoke.ErrBuildCancelled)

	sg, err := g.Spoke(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, sg.NodeCount())
}

func TestService_WatchArchive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "graph.archive")
	writeArchive(t, dir, bubbleGFA)

	svc := NewService(ServiceConfig{Debounce: 200 * time.Millisecond})
	_, err := svc.LoadArchive(context.Background(), dir)
	require.NoError(t, err)
	before := svc.Graph()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.WatchArchive(ctx, dir) }()
	time.Sleep(100 * time.Millisecond)

	writeArchive(t, dir, "S\tonly\tACGT\nP\tsolo\tonly+\t*\n")

	require.Eventually(t, func() bool {
		g := svc.Graph()
		return g != before && g.Index.NodeCount() == 1
	}, 10*time.Second, 50*time.Millisecond)

	// The previous snapshot still answers queries.
	assert.Equal(t, 4, before.Index.NodeCount())

	cancel()
	require.NoError(t, <-done)
}

func TestService_WatchArchive_MissingDir(t *testing.T) {
	svc := NewService(ServiceConfig{})
	err := svc.WatchArchive(context.Background(), filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
