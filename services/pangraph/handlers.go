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
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/pangraph/services/pangraph/archive"
	"github.com/AleutianAI/pangraph/services/pangraph/coordsys"
	"github.com/AleutianAI/pangraph/services/pangraph/datasource"
	"github.com/AleutianAI/pangraph/services/pangraph/genome"
	"github.com/AleutianAI/pangraph/services/pangraph/index"
	"github.com/AleutianAI/pangraph/services/pangraph/spoke"
)

const octetStream = "application/octet-stream"

// Handlers contains the HTTP handlers for pangraph.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleHealth handles GET /v1/pangraph/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: ServiceVersion,
	})
}

// HandleReady handles GET /v1/pangraph/ready.
//
// Response:
//
//	200 OK: ReadyResponse (Ready=true) - A graph is loaded
//	503 Service Unavailable: ReadyResponse (Ready=false) - Nothing loaded yet
func (h *Handlers) HandleReady(c *gin.Context) {
	g := h.svc.Graph()
	if g == nil {
		c.Header("Retry-After", "5")
		c.JSON(http.StatusServiceUnavailable, ReadyResponse{Ready: false})
		return
	}
	c.JSON(http.StatusOK, ReadyResponse{
		Ready:    true,
		Origin:   g.Origin,
		LoadedAt: g.LoadedAt,
		Nodes:    g.Index.NodeCount(),
		Paths:    g.Index.PathCount(),
		Length:   g.Index.TotalLength(),
		Cache:    g.Cache.Stats(),
	})
}

// HandleListPaths handles GET /v1/pangraph/paths.
func (h *Handlers) HandleListPaths(c *gin.Context) {
	g, ok := h.graph(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, PathsResponse{Paths: g.Index.Paths()})
}

// HandlePathSteps handles GET /v1/pangraph/paths/:name/steps.
//
// Description:
//
//	Returns the steps as JSON strings, or as packed little-endian uint32
//	handles when the client accepts application/octet-stream.
//
// Response:
//
//	200 OK: StepsResponse or raw handles
//	404 Not Found: PATH_NOT_FOUND
func (h *Handlers) HandlePathSteps(c *gin.Context) {
	g, ok := h.graph(c)
	if !ok {
		return
	}
	name := c.Param("name")
	id, ok := g.Index.PathByName(name)
	if !ok {
		h.writeError(c, "HandlePathSteps", index.ErrPathNotFound)
		return
	}
	steps, _ := g.Index.PathSteps(id)

	if c.NegotiateFormat(gin.MIMEJSON, octetStream) == octetStream {
		c.Data(http.StatusOK, octetStream, archive.EncodeHandles(steps))
		return
	}

	out := make([]string, len(steps))
	for i, s := range steps {
		seg, _ := g.Index.SegmentName(s.Node())
		if s.IsReverse() {
			out[i] = seg + "-"
		} else {
			out[i] = seg + "+"
		}
	}
	c.JSON(http.StatusOK, StepsResponse{Path: name, Steps: out})
}

// HandleStepAt handles GET /v1/pangraph/paths/:name/step_at?bp=.
//
// Response:
//
//	200 OK: StepAtResponse
//	400 Bad Request: INVALID_REQUEST (missing or malformed bp)
//	404 Not Found: PATH_NOT_FOUND, or NODE_NOT_FOUND when the path does not
//	cover bp
func (h *Handlers) HandleStepAt(c *gin.Context) {
	g, ok := h.graph(c)
	if !ok {
		return
	}
	bp, ok := h.uintParam(c, "HandleStepAt", "bp", c.Query("bp"))
	if !ok {
		return
	}
	name := c.Param("name")
	id, ok := g.Index.PathByName(name)
	if !ok {
		h.writeError(c, "HandleStepAt", index.ErrPathNotFound)
		return
	}
	step, handle, ok := g.Index.StepAtPos(id, genome.Bp(bp))
	if !ok {
		h.writeError(c, "HandleStepAt", index.ErrNodeOutOfRange)
		return
	}
	seg, _ := g.Index.SegmentName(handle.Node())
	c.JSON(http.StatusOK, StepAtResponse{
		Path:    name,
		Bp:      genome.Bp(bp),
		Step:    step,
		Node:    handle.Node(),
		Segment: seg,
		Reverse: handle.IsReverse(),
	})
}

// HandleNodeLength handles GET /v1/pangraph/nodes/:id/length. The id is the
// segment name.
func (h *Handlers) HandleNodeLength(c *gin.Context) {
	g, node, ok := h.node(c, "HandleNodeLength")
	if !ok {
		return
	}
	length, _ := g.Index.NodeLength(node)
	c.JSON(http.StatusOK, NodeLengthResponse{Node: node, Segment: c.Param("id"), Length: length})
}

// HandleNodePaths handles GET /v1/pangraph/nodes/:id/paths.
func (h *Handlers) HandleNodePaths(c *gin.Context) {
	g, node, ok := h.node(c, "HandleNodePaths")
	if !ok {
		return
	}
	paths := []string{}
	for id := range g.Index.PathsOnNode(node) {
		name, _ := g.Index.PathName(id)
		paths = append(paths, name)
	}
	c.JSON(http.StatusOK, NodePathsResponse{Node: node, Segment: c.Param("id"), Paths: paths})
}

// HandleNodeHubs handles GET /v1/pangraph/nodes/:id/hubs.
func (h *Handlers) HandleNodeHubs(c *gin.Context) {
	g, node, ok := h.node(c, "HandleNodeHubs")
	if !ok {
		return
	}
	sg, err := g.Spoke(c.Request.Context())
	if err != nil {
		h.writeError(c, "HandleNodeHubs", err)
		return
	}
	ends, _ := sg.NodeHubs(node)
	c.JSON(http.StatusOK, NodeHubsResponse{
		Node:    node,
		Segment: c.Param("id"),
		Left:    hubPtr(ends.Left),
		Right:   hubPtr(ends.Right),
	})
}

// HandlePosition handles GET /v1/pangraph/position/:bp.
func (h *Handlers) HandlePosition(c *gin.Context) {
	g, ok := h.graph(c)
	if !ok {
		return
	}
	bp, ok := h.uintParam(c, "HandlePosition", "bp", c.Param("bp"))
	if !ok {
		return
	}
	node, ok := g.Index.NodeAtPos(genome.Bp(bp))
	if !ok {
		h.writeError(c, "HandlePosition", index.ErrNodeOutOfRange)
		return
	}
	seg, _ := g.Index.SegmentName(node)
	start, _ := g.Index.NodeOffset(node)
	c.JSON(http.StatusOK, PositionResponse{
		Bp:      genome.Bp(bp),
		Node:    node,
		Segment: seg,
		Offset:  genome.Bp(bp) - start,
	})
}

// HandleSample handles POST /v1/pangraph/sample.
//
// Request Body:
//
//	SampleRequest
//
// Response:
//
//	200 OK: SampleResponse
//	400 Bad Request: INVALID_REQUEST, INVALID_RANGE or UNKNOWN_SOURCE
//	404 Not Found: PATH_NOT_FOUND
//	503 Service Unavailable: GRAPH_NOT_LOADED
func (h *Handlers) HandleSample(c *gin.Context) {
	logger := requestLogger(c, "HandleSample")

	var req SampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	resp, err := h.svc.Sample(c.Request.Context(), req)
	if err != nil {
		h.writeError(c, "HandleSample", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleSampleBatch handles POST /v1/pangraph/sample/batch.
func (h *Handlers) HandleSampleBatch(c *gin.Context) {
	logger := requestLogger(c, "HandleSampleBatch")

	var req BatchSampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	results, err := h.svc.SampleMany(c.Request.Context(), req.Requests)
	if err != nil {
		h.writeError(c, "HandleSampleBatch", err)
		return
	}
	c.JSON(http.StatusOK, BatchSampleResponse{Results: results})
}

// HandleHubNeighbors handles GET /v1/pangraph/hubs/:id/neighbors.
func (h *Handlers) HandleHubNeighbors(c *gin.Context) {
	g, ok := h.graph(c)
	if !ok {
		return
	}
	id, ok := h.uintParam(c, "HandleHubNeighbors", "id", c.Param("id"))
	if !ok {
		return
	}
	if id > math.MaxUint32 {
		h.writeError(c, "HandleHubNeighbors", ErrHubNotFound)
		return
	}
	sg, err := g.Spoke(c.Request.Context())
	if err != nil {
		h.writeError(c, "HandleHubNeighbors", err)
		return
	}
	hub, ok := sg.Hub(spoke.HubID(id))
	if !ok {
		h.writeError(c, "HandleHubNeighbors", ErrHubNotFound)
		return
	}
	neighbors := sg.Neighbors(hub.ID)
	if neighbors == nil {
		neighbors = []spoke.HubID{}
	}
	c.JSON(http.StatusOK, NeighborsResponse{
		Hub:       hub.ID,
		Spokes:    len(hub.Spokes),
		Neighbors: neighbors,
	})
}

// graph returns the current graph or writes GRAPH_NOT_LOADED.
func (h *Handlers) graph(c *gin.Context) (*Graph, bool) {
	g := h.svc.Graph()
	if g == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: ErrGraphNotLoaded.Error(),
			Code:  "GRAPH_NOT_LOADED",
		})
		return nil, false
	}
	return g, true
}

// node resolves the :id segment name.
func (h *Handlers) node(c *gin.Context, handler string) (*Graph, genome.Node, bool) {
	g, ok := h.graph(c)
	if !ok {
		return nil, 0, false
	}
	node, ok := g.Index.NodeByName(c.Param("id"))
	if !ok {
		h.writeError(c, handler, index.ErrNodeOutOfRange)
		return nil, 0, false
	}
	return g, node, true
}

func (h *Handlers) uintParam(c *gin.Context, handler, name, raw string) (uint64, bool) {
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		requestLogger(c, handler).Warn("Invalid parameter", "param", name, "value", raw)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid " + name + ": " + strconv.Quote(raw),
			Code:  "INVALID_REQUEST",
		})
		return 0, false
	}
	return v, true
}

// writeError maps service errors to status codes and stable error codes.
func (h *Handlers) writeError(c *gin.Context, handler string, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL_ERROR"

	switch {
	case errors.Is(err, ErrGraphNotLoaded):
		status, code = http.StatusServiceUnavailable, "GRAPH_NOT_LOADED"
	case errors.Is(err, index.ErrPathNotFound), errors.Is(err, coordsys.ErrPathNotFound):
		status, code = http.StatusNotFound, "PATH_NOT_FOUND"
	case errors.Is(err, index.ErrNodeOutOfRange):
		status, code = http.StatusNotFound, "NODE_NOT_FOUND"
	case errors.Is(err, ErrHubNotFound):
		status, code = http.StatusNotFound, "HUB_NOT_FOUND"
	case errors.Is(err, datasource.ErrUnknownSource):
		status, code = http.StatusBadRequest, "UNKNOWN_SOURCE"
	case errors.Is(err, coordsys.ErrEmptyRange),
		errors.Is(err, coordsys.ErrZeroBins),
		errors.Is(err, coordsys.ErrEmptyPath),
		errors.Is(err, ErrTooManyBins):
		status, code = http.StatusBadRequest, "INVALID_RANGE"
	}

	logger := requestLogger(c, handler)
	if status >= http.StatusInternalServerError && code != "GRAPH_NOT_LOADED" {
		logger.Error("Request failed", "error", err)
	} else {
		logger.Debug("Request rejected", "code", code, "error", err)
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func requestLogger(c *gin.Context, handler string) *slog.Logger {
	return slog.With("request_id", getOrCreateRequestID(c), "handler", handler)
}

func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDKey, requestID)
	c.Header("X-Request-ID", requestID)
	return requestID
}
