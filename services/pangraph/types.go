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
	"math"
	"time"

	"github.com/AleutianAI/pangraph/services/pangraph/coordsys"
	"github.com/AleutianAI/pangraph/services/pangraph/genome"
	"github.com/AleutianAI/pangraph/services/pangraph/index"
	"github.com/AleutianAI/pangraph/services/pangraph/spoke"
)

// SampleRequest asks for a binned track over a bp range.
type SampleRequest struct {
	// Path selects a path coordinate system; empty means global.
	Path string `json:"path"`

	// Start and End bound the half-open range in that system.
	Start genome.Bp `json:"start"`
	End   genome.Bp `json:"end"`

	// Bins is the number of output values.
	Bins int `json:"bins" binding:"required,min=1"`

	// Source names the track to sample (depth, gc, node_length, path:<name>).
	Source string `json:"source" binding:"required"`
}

// SampleResponse carries one sampled track. Values are null where no data
// overlapped the bin.
type SampleResponse struct {
	Path    string     `json:"path"`
	Source  string     `json:"source"`
	Start   genome.Bp  `json:"start"`
	End     genome.Bp  `json:"end"`
	Values  []*float32 `json:"values"`
	Weights []float64  `json:"weights"`
	Cached  bool       `json:"cached"`
}

// BatchSampleRequest is the body of POST /sample/batch.
type BatchSampleRequest struct {
	Requests []SampleRequest `json:"requests" binding:"required,min=1,dive"`
}

// BatchSampleResponse holds results in request order.
type BatchSampleResponse struct {
	Results []*SampleResponse `json:"results"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse is returned by GET /ready.
type ReadyResponse struct {
	Ready    bool      `json:"ready"`
	Origin   string    `json:"origin,omitempty"`
	LoadedAt time.Time `json:"loaded_at,omitzero"`
	Nodes    int       `json:"nodes"`
	Paths    int       `json:"paths"`
	Length   genome.Bp `json:"length"`

	Cache coordsys.CacheStats `json:"cache"`
}

// PathsResponse lists path metadata.
type PathsResponse struct {
	Paths []index.PathInfo `json:"paths"`
}

// StepsResponse lists a path's steps as "<segment><orientation>".
type StepsResponse struct {
	Path  string   `json:"path"`
	Steps []string `json:"steps"`
}

// StepAtResponse describes the step of a path covering a position.
type StepAtResponse struct {
	Path    string      `json:"path"`
	Bp      genome.Bp   `json:"bp"`
	Step    int         `json:"step"`
	Node    genome.Node `json:"node"`
	Segment string      `json:"segment"`
	Reverse bool        `json:"reverse"`
}

// NodeLengthResponse is returned by GET /nodes/:id/length.
type NodeLengthResponse struct {
	Node    genome.Node `json:"node"`
	Segment string      `json:"segment"`
	Length  genome.Bp   `json:"length"`
}

// NodePathsResponse names the paths visiting a node.
type NodePathsResponse struct {
	Node    genome.Node `json:"node"`
	Segment string      `json:"segment"`
	Paths   []string    `json:"paths"`
}

// NodeHubsResponse gives the hubs at each end of a node; absent when the
// end has no links.
type NodeHubsResponse struct {
	Node    genome.Node  `json:"node"`
	Segment string       `json:"segment"`
	Left    *spoke.HubID `json:"left"`
	Right   *spoke.HubID `json:"right"`
}

// PositionResponse locates a pangenome position.
type PositionResponse struct {
	Bp      genome.Bp   `json:"bp"`
	Node    genome.Node `json:"node"`
	Segment string      `json:"segment"`
	Offset  genome.Bp   `json:"offset"`
}

// NeighborsResponse lists hubs adjacent to a hub.
type NeighborsResponse struct {
	Hub       spoke.HubID   `json:"hub"`
	Spokes    int           `json:"spokes"`
	Neighbors []spoke.HubID `json:"neighbors"`
}

func nullable(values []float32) []*float32 {
	out := make([]*float32, len(values))
	for i := range values {
		if math.IsNaN(float64(values[i])) {
			continue
		}
		out[i] = &values[i]
	}
	return out
}

func hubPtr(h spoke.HubID) *spoke.HubID {
	if h == spoke.NoHub {
		return nil
	}
	return &h
}
