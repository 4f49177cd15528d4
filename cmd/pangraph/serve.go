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
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/pangraph/pkg/telemetry"
	"github.com/AleutianAI/pangraph/services/pangraph"
)

func newServeCmd(a *app) *cobra.Command {
	var archiveDir, gfaPath string
	var port int

	cmd := &cobra.Command{
		Use:   "serve --archive <dir> [--port] [--config]",
		Short: "Serve the HTTP query API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.config
			if archiveDir != "" {
				cfg.Archive.Path = archiveDir
			}
			if port != 0 {
				cfg.Server.Port = port
			}
			if cfg.Archive.Path == "" && gfaPath == "" {
				return errors.New("one of --archive or --gfa is required")
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := a.slog()
			shutdown, err := telemetry.Init(ctx, telemetry.Config{
				ServiceName:    "pangraph",
				ServiceVersion: pangraph.ServiceVersion,
				Environment:    cfg.Telemetry.Environment,
				TraceExporter:  cfg.Telemetry.TraceExporter,
				MetricExporter: cfg.Telemetry.MetricExporter,
				OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
				OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
				Output:         cmd.ErrOrStderr(),
			})
			if err != nil {
				return err
			}
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(flushCtx); err != nil {
					logger.Warn("Telemetry shutdown failed", "error", err)
				}
			}()

			svc := pangraph.NewService(pangraph.ServiceConfig{
				CacheCapacity: cfg.Cache.Capacity,
				MaxBins:       cfg.Sampling.MaxBins,
				Debounce:      cfg.Archive.Debounce,
				Logger:        logger,
			})

			if gfaPath != "" {
				if _, err := svc.LoadGFA(ctx, gfaPath); err != nil {
					return err
				}
			} else {
				if _, err := svc.LoadArchive(ctx, cfg.Archive.Path); err != nil {
					return err
				}
				if cfg.Archive.Watch {
					go func() {
						if err := svc.WatchArchive(ctx, cfg.Archive.Path); err != nil {
							logger.Error("Archive watch stopped", "error", err)
						}
					}()
				}
			}

			if !cfg.Server.Debug {
				gin.SetMode(gin.ReleaseMode)
			}
			router := pangraph.NewRouter(pangraph.NewHandlers(svc), pangraph.RouterConfig{
				ServiceName:  "pangraph",
				RateLimitRPS: cfg.Server.RateLimitRPS,
				RateBurst:    cfg.Server.RateBurst,
			})

			return pangraph.Serve(ctx, pangraph.ServerConfig{
				Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}, router, logger)
		},
	}
	cmd.Flags().StringVar(&archiveDir, "archive", "", "archive directory to serve; overrides archive.path")
	cmd.Flags().StringVar(&gfaPath, "gfa", "", "serve a GFA file directly instead of an archive")
	cmd.Flags().IntVar(&port, "port", 0, "listen port; overrides server.port")
	return cmd
}

