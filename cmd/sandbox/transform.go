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
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianSandbox/services/sandbox"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/archive"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/cache"
)

// newService builds the sandbox service from configuration. The returned
// cleanup closes the outcome cache. persistentOnly skips in-memory caches,
// which are useless to a one-shot command.
func (a *app) newService(persistentOnly bool) (*sandbox.Service, func(), error) {
	p, err := sandbox.NewPipeline(sandbox.WithLogger(a.logger.Slog()))
	if err != nil {
		return nil, nil, err
	}

	var opts []sandbox.ServiceOption
	cleanup := func() {}
	if a.cfg.Cache.Enabled && !(persistentOnly && a.cfg.Cache.InMemory) {
		cc := a.cfg.CacheStoreConfig()
		cc.Logger = a.logger.Slog()
		store, err := cache.Open(cc)
		if err != nil {
			return nil, nil, fmt.Errorf("open outcome cache: %w", err)
		}
		opts = append(opts, sandbox.WithStore(store))
		cleanup = func() {
			if err := store.Close(); err != nil {
				a.logger.Slog().Warn("close outcome cache", "error", err)
			}
		}
	}
	return sandbox.NewService(p, a.cfg.ServiceConfig(), opts...), cleanup, nil
}

type transformFlags struct {
	outDir     string
	entryPoint string
	asDir      bool
	jobs       int
}

func newTransformCmd(a *app) *cobra.Command {
	f := &transformFlags{}
	cmd := &cobra.Command{
		Use:   "transform [jar or class directory...]",
		Short: "Rewrite modules into the sandbox namespace",
		Long: `Reads each input, verifies its class hierarchy and rewrites every class
into the sandbox namespace. Accepted modules are written to the output
directory as <name>.sandbox.jar, or as a class tree with --dir.

Exit status is 2 if any module was rejected.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTransform(cmd.Context(), cmd.OutOrStdout(), f, args)
		},
	}
	cmd.Flags().StringVarP(&f.outDir, "out", "o", ".", "Output directory")
	cmd.Flags().StringVarP(&f.entryPoint, "entry-point", "e", "", "Entry point class (overrides Main-Class)")
	cmd.Flags().BoolVar(&f.asDir, "dir", false, "Write a class directory instead of a JAR")
	cmd.Flags().IntVarP(&f.jobs, "jobs", "j", runtime.NumCPU(), "Modules transformed in parallel")
	return cmd
}

// transformOutcome is one row of the summary.
type transformOutcome struct {
	input  string
	output string
	res    *sandbox.Result
	err    error
}

func (a *app) runTransform(ctx context.Context, out io.Writer, f *transformFlags, inputs []string) error {
	svc, cleanup, err := a.newService(true)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := os.MkdirAll(f.outDir, 0750); err != nil {
		return err
	}

	outcomes := make([]transformOutcome, len(inputs))
	var g errgroup.Group
	g.SetLimit(max(f.jobs, 1))
	for i, input := range inputs {
		g.Go(func() error {
			outcomes[i] = a.transformOne(ctx, svc, f, input)
			return nil
		})
	}
	_ = g.Wait()

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INPUT\tCLASSES\tSTATUS\tOUTPUT")
	var errs []error
	for _, o := range outcomes {
		switch {
		case o.err != nil:
			fmt.Fprintf(tw, "%s\t-\t%s\t-\n", o.input, o.err)
			errs = append(errs, fmt.Errorf("%s: %w", o.input, o.err))
		default:
			status := "ok"
			if o.res.Cached {
				status = "ok (cached)"
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", o.input, o.res.Stats.Classes, status, o.output)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func (a *app) transformOne(ctx context.Context, svc *sandbox.Service, f *transformFlags, input string) transformOutcome {
	o := transformOutcome{input: input}
	m, err := loadModule(input, f.entryPoint, a.cfg.Limits)
	if err != nil {
		o.err = err
		return o
	}
	res, err := svc.Transform(ctx, m)
	if err != nil {
		o.err = err
		return o
	}
	o.res = res

	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	if f.asDir {
		o.output = filepath.Join(f.outDir, base+".sandbox")
		o.err = archive.WriteDir(o.output, res.Module)
		return o
	}
	o.output = filepath.Join(f.outDir, base+".sandbox.jar")
	o.err = writeJarFile(o.output, res.Module)
	return o
}

func writeJarFile(path string, m *sandbox.Module) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := archive.WriteJar(file, m); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
