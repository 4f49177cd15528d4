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
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RouterConfig configures NewRouter.
type RouterConfig struct {
	// ServiceName labels otelgin spans.
	ServiceName string

	// RateLimitRPS and RateBurst configure the limiter; zero disables it.
	RateLimitRPS float64
	RateBurst    int
}

// RegisterRoutes registers all pangraph routes with the router.
//
// Description:
//
//	Registers all /v1/pangraph/* endpoints with the given Gin router group.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	GET  /v1/pangraph/health - Health check
//	GET  /v1/pangraph/ready - Readiness and graph summary
//	GET  /v1/pangraph/paths - Path metadata
//	GET  /v1/pangraph/paths/:name/steps - Steps (JSON or octet-stream)
//	GET  /v1/pangraph/paths/:name/step_at?bp= - Step covering bp
//	GET  /v1/pangraph/nodes/:id/length - Segment length
//	GET  /v1/pangraph/nodes/:id/paths - Paths visiting a segment
//	GET  /v1/pangraph/nodes/:id/hubs - Hubs at each segment end
//	GET  /v1/pangraph/position/:bp - Segment at a pangenome position
//	POST /v1/pangraph/sample - Binned track
//	POST /v1/pangraph/sample/batch - Several binned tracks
//	GET  /v1/pangraph/hubs/:id/neighbors - Adjacent hubs
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	pg := rg.Group("/pangraph")
	{
		pg.GET("/health", handlers.HandleHealth)
		pg.GET("/ready", handlers.HandleReady)

		paths := pg.Group("/paths")
		{
			paths.GET("", handlers.HandleListPaths)
			paths.GET("/:name/steps", handlers.HandlePathSteps)
			paths.GET("/:name/step_at", handlers.HandleStepAt)
		}

		nodes := pg.Group("/nodes/:id")
		{
			nodes.GET("/length", handlers.HandleNodeLength)
			nodes.GET("/paths", handlers.HandleNodePaths)
			nodes.GET("/hubs", handlers.HandleNodeHubs)
		}

		pg.GET("/position/:bp", handlers.HandlePosition)
		pg.POST("/sample", handlers.HandleSample)
		pg.POST("/sample/batch", handlers.HandleSampleBatch)
		pg.GET("/hubs/:id/neighbors", handlers.HandleHubNeighbors)
	}
}

// NewRouter builds the engine with middleware, /metrics and the v1 routes.
func NewRouter(handlers *Handlers, cfg RouterConfig) *gin.Engine {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "pangraph"
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(otelgin.Middleware(cfg.ServiceName))
	router.Use(Metrics())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(RateLimit(cfg.RateLimitRPS, cfg.RateBurst))
	RegisterRoutes(v1, handlers)
	return router
}
