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
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/pangraph/pkg/logging"
	"github.com/AleutianAI/pangraph/services/pangraph/config"
)

// app carries state shared by subcommands for one invocation.
type app struct {
	configPath string
	logLevel   string
	logJSON    bool

	config config.Config
	logger *logging.Logger
}

// exitError reports failure through the exit status only; the command has
// already printed what it needed to.
type exitError struct {
	msg string
}

func (e *exitError) Error() string { return e.msg }

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "pangraph",
		Short: "Pangenome graph indexing, sampling and serving",
		Long: `pangraph converts GFA pangenome graphs into a columnar archive and
answers coordinate, path and hub queries against it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				a.logger.Close()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "path to a pangraph YAML config file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides config")
	flags.BoolVar(&a.logJSON, "log-json", false, "force JSON log output")

	root.AddCommand(
		newConvertCmd(a),
		newQueryCmd(a),
		newInfoCmd(a),
		newSampleCmd(a),
		newHubsCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	a.config = cfg
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "pangraph",
		JSON:    cfg.Logging.JSON || a.logJSON,
		Output:  cmd.ErrOrStderr(),
	})
	return nil
}

func (a *app) slog() *slog.Logger {
	if a.logger == nil {
		return slog.Default()
	}
	return a.logger.Slog()
}
