// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/pangraph/pkg/ux"
	"github.com/AleutianAI/pangraph/services/pangraph"
	"github.com/AleutianAI/pangraph/services/pangraph/archive"
	"github.com/AleutianAI/pangraph/services/pangraph/coordsys"
	"github.com/AleutianAI/pangraph/services/pangraph/datasource"
	"github.com/AleutianAI/pangraph/services/pangraph/genome"
	"github.com/AleutianAI/pangraph/services/pangraph/gfa"
	"github.com/AleutianAI/pangraph/services/pangraph/index"
	"github.com/AleutianAI/pangraph/services/pangraph/spoke"
)

func newConvertCmd(a *app) *cobra.Command {
	var gfaPath, outDir string
	var chunkSize int

	cmd := &cobra.Command{
		Use:   "convert --gfa <path> --out <dir>",
		Short: "Convert a GFA file into a pangraph archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			start := time.Now()

			res, err := gfa.ParseFile(ctx, gfaPath, gfa.WithLogger(a.slog()))
			if err != nil {
				return err
			}
			// Building the index validates the columns before anything is written.
			if _, err := index.Build(ctx, res.Columns, index.WithLogger(a.slog())); err != nil {
				return err
			}
			if err := archive.Write(ctx, outDir, res.Columns,
				archive.WithChunkSize(chunkSize),
				archive.WithConfig(archive.Config{Logger: a.slog()})); err != nil {
				return err
			}

			p := ux.NewPrinter(cmd.OutOrStdout())
			p.KeyValues("Converted "+gfaPath, []ux.KV{
				{Key: "archive", Value: outDir},
				{Key: "segments", Value: res.Stats.Segments},
				{Key: "links", Value: res.Stats.Links},
				{Key: "paths", Value: res.Stats.Paths},
				{Key: "steps", Value: res.Stats.Steps},
				{Key: "skipped lines", Value: res.Stats.SkippedLines},
				{Key: "elapsed", Value: time.Since(start).Round(time.Millisecond)},
			})
			if res.Stats.SkippedLines > 0 {
				p.Warning(fmt.Sprintf("%d malformed lines skipped", res.Stats.SkippedLines))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&gfaPath, "gfa", "", "input GFA file")
	cmd.Flags().StringVar(&outDir, "out", "", "output archive directory")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", archive.DefaultChunkSize, "archive column chunk size in bytes")
	cmd.MarkFlagRequired("gfa")
	cmd.MarkFlagRequired("out")
	return cmd
}

func newQueryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "query <archive> <path-name> <bp>",
		Short: "Print the node covering a bp offset along a path",
		Long: `query resolves a 0-based bp offset along the named path and prints the
node index and segment name covering it. Exits 1 when the path does not
cover the offset.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			bp, err := strconv.ParseUint(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid bp %q: %w", args[2], err)
			}
			idx, err := loadIndex(cmd.Context(), a, args[0])
			if err != nil {
				return err
			}
			cs, err := coordsys.ForPathName(idx, args[1])
			if err != nil {
				return err
			}
			step, ok := cs.IndexAtPos(genome.Bp(bp))
			if !ok {
				fmt.Fprintf(cmd.ErrOrStderr(), "bp %d is beyond path %s (length %d)\n", bp, args[1], cs.TotalLength())
				return &exitError{msg: "position not covered"}
			}
			node, _ := cs.NodeAt(step)
			seg, _ := idx.SegmentName(node)
			fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", node, seg)
			return nil
		},
	}
}

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info <archive>",
		Short: "Summarize an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cols, meta, err := archive.Read(ctx, args[0], archive.WithConfig(archive.Config{Logger: a.slog()}))
			if err != nil {
				return err
			}
			idx, err := index.Build(ctx, cols, index.WithLogger(a.slog()))
			if err != nil {
				return err
			}

			p := ux.NewPrinter(cmd.OutOrStdout())
			p.KeyValues(args[0], []ux.KV{
				{Key: "format version", Value: meta.Version},
				{Key: "created", Value: meta.CreatedAt.Format(time.RFC3339)},
				{Key: "segments", Value: meta.Segments},
				{Key: "links", Value: meta.Links},
				{Key: "edges", Value: len(idx.Edges())},
				{Key: "paths", Value: meta.Paths},
				{Key: "steps", Value: meta.Steps},
				{Key: "length", Value: idx.TotalLength()},
			})

			rows := make([][]string, 0, idx.PathCount())
			for _, info := range idx.Paths() {
				cs, err := coordsys.ForPath(idx, info.ID)
				length := "0"
				if err == nil {
					length = strconv.FormatUint(uint64(cs.TotalLength()), 10)
				}
				rows = append(rows, []string{
					strconv.Itoa(int(info.ID)),
					info.Name,
					strconv.Itoa(info.StepCount),
					length,
				})
			}
			p.Table([]string{"id", "path", "steps", "length"}, rows)
			return nil
		},
	}
}

func newSampleCmd(a *app) *cobra.Command {
	var req pangraph.SampleRequest

	cmd := &cobra.Command{
		Use:   "sample <archive>",
		Short: "Bin a data source over a range",
		Long: `sample prints one line per bin: the bin's start bp and its length-weighted
mean, or NA where no data overlapped. --end 0 means the end of the
coordinate system.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			idx, err := loadIndex(ctx, a, args[0])
			if err != nil {
				return err
			}
			svc := pangraph.NewService(pangraph.ServiceConfig{
				CacheCapacity: a.config.Cache.Capacity,
				MaxBins:       a.config.Sampling.MaxBins,
				Logger:        a.slog(),
			})
			g := svc.SetIndex(idx, args[0])

			if req.End == 0 {
				cs, _, err := g.CoordSys(ctx, req.Path)
				if err != nil {
					return err
				}
				req.End = cs.TotalLength()
			}
			resp, err := svc.Sample(ctx, req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			width := float64(resp.End-resp.Start) / float64(len(resp.Values))
			for i, v := range resp.Values {
				start := uint64(float64(resp.Start) + float64(i)*width)
				if v == nil {
					fmt.Fprintf(out, "%d\tNA\n", start)
					continue
				}
				fmt.Fprintf(out, "%d\t%g\n", start, *v)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&req.Path, "path", "", "path name; empty samples the global coordinate system")
	flags.Uint64Var((*uint64)(&req.Start), "start", 0, "range start bp (inclusive)")
	flags.Uint64Var((*uint64)(&req.End), "end", 0, "range end bp (exclusive)")
	flags.IntVar(&req.Bins, "bins", 100, "number of bins")
	flags.StringVar(&req.Source, "source", datasource.Depth, "data source (depth, gc, node_length, path:<name>)")
	return cmd
}

func newHubsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "hubs <archive>",
		Short: "Summarize the hub graph",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			idx, err := loadIndex(ctx, a, args[0])
			if err != nil {
				return err
			}
			sg, err := spoke.Build(ctx, idx.Links(), idx.NodeCount(), spoke.WithLogger(a.slog()))
			if err != nil {
				return err
			}
			parts, err := spoke.ComponentPartitioner{}.PartitionHubs(ctx, sg)
			if err != nil {
				return err
			}
			largest := 0
			for _, part := range parts {
				largest = max(largest, len(part))
			}

			stats := sg.Stats()
			ux.NewPrinter(cmd.OutOrStdout()).KeyValues("Hubs", []ux.KV{
				{Key: "hubs", Value: stats.Hubs},
				{Key: "spokes", Value: stats.Spokes},
				{Key: "links", Value: stats.Edges},
				{Key: "max degree", Value: stats.MaxDegree},
				{Key: "components", Value: len(parts)},
				{Key: "largest component", Value: largest},
			})
			return nil
		},
	}
}

func loadIndex(ctx context.Context, a *app, dir string) (*index.Index, error) {
	cols, _, err := archive.Read(ctx, dir, archive.WithConfig(archive.Config{Logger: a.slog()}))
	if err != nil {
		return nil, err
	}
	return index.Build(ctx, cols, index.WithLogger(a.slog()))
}
