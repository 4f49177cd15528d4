// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("pangraph.index")
	meter  = otel.Meter("pangraph.index")
)

var (
	buildLatency metric.Float64Histogram
	buildTotal   metric.Int64Counter
	nodesIndexed metric.Int64Histogram
	pathsIndexed metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"pangraph_index_build_duration_seconds",
			metric.WithDescription("Duration of path index builds"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		buildTotal, err = meter.Int64Counter(
			"pangraph_index_build_total",
			metric.WithDescription("Total number of path index builds"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		nodesIndexed, err = meter.Int64Histogram(
			"pangraph_index_nodes",
			metric.WithDescription("Number of nodes per index build"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		pathsIndexed, err = meter.Int64Histogram(
			"pangraph_index_paths",
			metric.WithDescription("Number of paths per index build"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordBuildMetrics(ctx context.Context, duration time.Duration, nodeCount, pathCount int, success bool) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.Bool("success", success))
	buildLatency.Record(ctx, duration.Seconds(), attrs)
	buildTotal.Add(ctx, 1, attrs)

	if success {
		nodesIndexed.Record(ctx, int64(nodeCount))
		pathsIndexed.Record(ctx, int64(pathCount))
	}
}

func startBuildSpan(ctx context.Context, nodeCount, pathCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "index.Build",
		trace.WithAttributes(
			attribute.Int("index.node_count", nodeCount),
			attribute.Int("index.path_count", pathCount),
		),
	)
}
