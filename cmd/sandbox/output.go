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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianSandbox/services/sandbox"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/archive"
)

// Exit codes.
const (
	exitFailure  = 1
	exitRejected = 2
	exitTooLarge = 3
)

func exitCode(err error) int {
	switch {
	case errors.Is(err, sandbox.ErrModuleRejected):
		return exitRejected
	case errors.Is(err, sandbox.ErrModuleTooLarge):
		return exitTooLarge
	default:
		return exitFailure
	}
}

// loadModule reads a JAR or a directory of classes.
func loadModule(path, entryPoint string, limits sandbox.Limits) (*sandbox.Module, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	opts := []archive.Option{archive.WithLimits(limits)}
	if entryPoint != "" {
		opts = append(opts, archive.WithEntryPoint(entryPoint))
	}
	if info.IsDir() {
		return archive.ReadDir(path, opts...)
	}
	return archive.OpenJar(path, opts...)
}

// outputFormat is "json" or "yaml". The default is yaml on a terminal and
// json otherwise.
type outputFormat string

func defaultFormat() outputFormat {
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return "yaml"
	}
	return "json"
}

func parseFormat(s string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(s)); f {
	case "":
		return defaultFormat(), nil
	case "json", "yaml":
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want json or yaml)", s)
	}
}

func (f outputFormat) write(w io.Writer, v any) error {
	if f == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
