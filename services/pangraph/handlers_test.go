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
	"bytes"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, svc *Service) *gin.Engine {
	t.Helper()
	return NewRouter(NewHandlers(svc), RouterConfig{})
}

func do(t *testing.T, router http.Handler, method, target string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHandleHealthAndReady(t *testing.T) {
	svc := NewService(ServiceConfig{})
	router := newTestRouter(t, svc)

	w := do(t, router, http.MethodGet, "/v1/pangraph/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode[HealthResponse](t, w).Status)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = do(t, router, http.MethodGet, "/v1/pangraph/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.False(t, decode[ReadyResponse](t, w).Ready)

	_, err := svc.LoadGFA(t.Context(), writeGFA(t, bubbleGFA))
	require.NoError(t, err)

	w = do(t, router, http.MethodGet, "/v1/pangraph/ready", nil, "X-Request-ID", "req-123")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
	ready := decode[ReadyResponse](t, w)
	assert.True(t, ready.Ready)
	assert.Equal(t, 4, ready.Nodes)
	assert.Equal(t, 2, ready.Paths)
}

func TestHandlers_GraphNotLoaded(t *testing.T) {
	router := newTestRouter(t, NewService(ServiceConfig{}))

	for _, target := range []string{
		"/v1/pangraph/paths",
		"/v1/pangraph/paths/ref/steps",
		"/v1/pangraph/nodes/s1/length",
		"/v1/pangraph/position/3",
		"/v1/pangraph/hubs/0/neighbors",
	} {
		w := do(t, router, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, target)
		assert.Equal(t, "GRAPH_NOT_LOADED", decode[ErrorResponse](t, w).Code, target)
	}

	w := do(t, router, http.MethodPost, "/v1/pangraph/sample", SampleRequest{End: 5, Bins: 1, Source: "depth"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleListPaths(t *testing.T) {
	router := newTestRouter(t, loadedService(t))

	w := do(t, router, http.MethodGet, "/v1/pangraph/paths", nil)
	require.Equal(t, http.StatusOK, w.Code)
	paths := decode[PathsResponse](t, w).Paths
	require.Len(t, paths, 2)
	assert.Equal(t, "ref", paths[0].Name)
	assert.Equal(t, 3, paths[1].StepCount)
}

func TestHandlePathSteps(t *testing.T) {
	svc := loadedService(t)
	router := newTestRouter(t, svc)

	w := do(t, router, http.MethodGet, "/v1/pangraph/paths/alt/steps", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"s1+", "s3+", "s4+"}, decode[StepsResponse](t, w).Steps)

	w = do(t, router, http.MethodGet, "/v1/pangraph/paths/alt/steps", nil, "Accept", octetStream)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, octetStream, w.Header().Get("Content-Type"))
	raw := w.Body.Bytes()
	require.Len(t, raw, 12)
	id, _ := svc.Graph().Index.PathByName("alt")
	steps, _ := svc.Graph().Index.PathSteps(id)
	for i, h := range steps {
		assert.Equal(t, uint32(h), binary.LittleEndian.Uint32(raw[4*i:]))
	}

	w = do(t, router, http.MethodGet, "/v1/pangraph/paths/nope/steps", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "PATH_NOT_FOUND", decode[ErrorResponse](t, w).Code)
}

func TestHandleStepAt(t *testing.T) {
	router := newTestRouter(t, loadedService(t))

	tests := []struct {
		name     string
		target   string
		wantCode int
		wantErr  string
		wantStep int
		wantSeg  string
	}{
		{"first node", "/v1/pangraph/paths/ref/step_at?bp=2", http.StatusOK, "", 0, "s1"},
		{"tail node", "/v1/pangraph/paths/alt/step_at?bp=9", http.StatusOK, "", 2, "s4"},
		{"node not on path", "/v1/pangraph/paths/ref/step_at?bp=6", http.StatusNotFound, "NODE_NOT_FOUND", 0, ""},
		{"beyond graph", "/v1/pangraph/paths/ref/step_at?bp=11", http.StatusNotFound, "NODE_NOT_FOUND", 0, ""},
		{"missing bp", "/v1/pangraph/paths/ref/step_at", http.StatusBadRequest, "INVALID_REQUEST", 0, ""},
		{"bad bp", "/v1/pangraph/paths/ref/step_at?bp=-1", http.StatusBadRequest, "INVALID_REQUEST", 0, ""},
		{"unknown path", "/v1/pangraph/paths/nope/step_at?bp=1", http.StatusNotFound, "PATH_NOT_FOUND", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodGet, tt.target, nil)
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decode[ErrorResponse](t, w).Code)
				return
			}
			resp := decode[StepAtResponse](t, w)
			assert.Equal(t, tt.wantStep, resp.Step)
			assert.Equal(t, tt.wantSeg, resp.Segment)
			assert.False(t, resp.Reverse)
		})
	}
}

func TestHandleNodes(t *testing.T) {
	router := newTestRouter(t, loadedService(t))

	w := do(t, router, http.MethodGet, "/v1/pangraph/nodes/s4/length", nil)
	require.Equal(t, http.StatusOK, w.Code)
	length := decode[NodeLengthResponse](t, w)
	assert.EqualValues(t, 3, length.Node)
	assert.EqualValues(t, 4, length.Length)

	w = do(t, router, http.MethodGet, "/v1/pangraph/nodes/s2/paths", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"ref"}, decode[NodePathsResponse](t, w).Paths)

	w = do(t, router, http.MethodGet, "/v1/pangraph/nodes/s1/hubs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	hubs := decode[NodeHubsResponse](t, w)
	assert.Nil(t, hubs.Left, "s1 has no links on its left end")
	require.NotNil(t, hubs.Right)

	w = do(t, router, http.MethodGet, "/v1/pangraph/nodes/s9/length", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NODE_NOT_FOUND", decode[ErrorResponse](t, w).Code)
}

func TestHandlePosition(t *testing.T) {
	router := newTestRouter(t, loadedService(t))

	w := do(t, router, http.MethodGet, "/v1/pangraph/position/8", nil)
	require.Equal(t, http.StatusOK, w.Code)
	pos := decode[PositionResponse](t, w)
	assert.Equal(t, "s4", pos.Segment)
	assert.EqualValues(t, 1, pos.Offset)

	w = do(t, router, http.MethodGet, "/v1/pangraph/position/11", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, router, http.MethodGet, "/v1/pangraph/position/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleSample(t *testing.T) {
	router := newTestRouter(t, loadedService(t))

	w := do(t, router, http.MethodPost, "/v1/pangraph/sample",
		SampleRequest{Path: "ref", Start: 4, End: 7, Bins: 3, Source: "path:alt"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var raw struct {
		Values []*float64 `json:"values"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	require.Len(t, raw.Values, 3)
	assert.Nil(t, raw.Values[1], "no data encodes as null")
	assert.Contains(t, w.Body.String(), `"values":[1,null,1]`)

	tests := []struct {
		name     string
		body     any
		wantCode int
		wantErr  string
	}{
		{"malformed", map[string]any{"bins": "many"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"missing source", SampleRequest{End: 5, Bins: 1}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"zero bins", SampleRequest{End: 5, Source: "depth"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"empty range", SampleRequest{Start: 4, End: 4, Bins: 1, Source: "depth"}, http.StatusBadRequest, "INVALID_RANGE"},
		{"too many bins", SampleRequest{End: 5, Bins: 1000, Source: "depth"}, http.StatusBadRequest, "INVALID_RANGE"},
		{"unknown source", SampleRequest{End: 5, Bins: 1, Source: "coverage"}, http.StatusBadRequest, "UNKNOWN_SOURCE"},
		{"unknown path", SampleRequest{Path: "nope", End: 5, Bins: 1, Source: "depth"}, http.StatusNotFound, "PATH_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, router, http.MethodPost, "/v1/pangraph/sample", tt.body)
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.Equal(t, tt.wantErr, decode[ErrorResponse](t, w).Code)
		})
	}
}

func TestHandleSampleBatch(t *testing.T) {
	router := newTestRouter(t, loadedService(t))

	body := BatchSampleRequest{Requests: []SampleRequest{
		{Path: "ref", End: 10, Bins: 2, Source: "depth"},
		{End: 11, Bins: 1, Source: "node_length"},
	}}
	w := do(t, router, http.MethodPost, "/v1/pangraph/sample/batch", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	results := decode[BatchSampleResponse](t, w).Results
	require.Len(t, results, 2)
	assert.Equal(t, "ref", results[0].Path)

	w = do(t, router, http.MethodPost, "/v1/pangraph/sample/batch", BatchSampleRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleHubNeighbors(t *testing.T) {
	svc := loadedService(t)
	router := newTestRouter(t, svc)

	sg, err := svc.Graph().Spoke(t.Context())
	require.NoError(t, err)
	require.Positive(t, sg.HubCount())

	for id := range sg.HubCount() {
		w := do(t, router, http.MethodGet, "/v1/pangraph/hubs/"+strconv.Itoa(id)+"/neighbors", nil)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[NeighborsResponse](t, w)
		assert.NotNil(t, resp.Neighbors)
		for _, n := range resp.Neighbors {
			assert.NotEqual(t, resp.Hub, n)
		}
	}

	for _, id := range []string{"999", "4294967296", "4294967297"} {
		w := do(t, router, http.MethodGet, "/v1/pangraph/hubs/"+id+"/neighbors", nil)
		assert.Equal(t, http.StatusNotFound, w.Code, id)
		assert.Equal(t, "HUB_NOT_FOUND", decode[ErrorResponse](t, w).Code, id)
	}
}

func TestRateLimit(t *testing.T) {
	router := NewRouter(NewHandlers(NewService(ServiceConfig{})), RouterConfig{RateLimitRPS: 0.001, RateBurst: 1})

	w := do(t, router, http.MethodGet, "/v1/pangraph/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodGet, "/v1/pangraph/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", decode[ErrorResponse](t, w).Code)

	// /metrics sits outside the limited group.
	w = do(t, router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "pangraph_http_requests_total")
}
