// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command sandbox rewrites untrusted JVM class modules into the sandbox
// namespace, either one-shot from the command line or as an HTTP service.
//
// Usage:
//
//	sandbox transform app.jar -o out/
//	sandbox verify app.jar
//	sandbox describe build/classes --entry-point com.example.Main
//	sandbox catalog -f yaml
//	sandbox serve --config sandbox.yaml
//
// Example requests against a running server:
//
//	# Health check
//	curl http://localhost:12230/v1/sandbox/health
//
//	# Transform a module (class bytes are base64)
//	curl -X POST http://localhost:12230/v1/sandbox/transform \
//	  -H "Content-Type: application/json" \
//	  -d '{"entry_point": "app/Main", "classes": {"app/Main": "yv66vg..."}}'
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSandbox/pkg/logging"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/config"
)

// app holds state shared by every command after PersistentPreRunE.
type app struct {
	configPath string
	logLevel   string
	cfg        config.Config
	logger     *logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "sandbox",
		Short:         "Rewrite JVM class modules into the sandbox namespace",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.logger != nil {
				return a.logger.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override the configured log level")

	root.AddCommand(
		newTransformCmd(a),
		newVerifyCmd(a),
		newDescribeCmd(a),
		newCatalogCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	a.cfg = cfg

	lc, err := cfg.LoggerConfig("sandbox")
	if err != nil {
		return err
	}
	logger, err := logging.New(lc)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	a.logger = logger
	slog.SetDefault(logger.Slog())
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}
