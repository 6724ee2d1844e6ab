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
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianSandbox/services/sandbox"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/hierarchy"
)

// verifyReport is the verify command output.
type verifyReport struct {
	Module       string                       `json:"module" yaml:"module"`
	Verification hierarchy.VerificationResult `json:"verification" yaml:"verification"`
	Classes      []sandbox.ClassSummary       `json:"classes" yaml:"classes"`
	Stats        sandbox.Stats                `json:"stats" yaml:"stats"`
}

func newVerifyCmd(a *app) *cobra.Command {
	var entryPoint, format string
	cmd := &cobra.Command{
		Use:   "verify [jar or class directory]",
		Short: "Build and verify a module's class hierarchy without rewriting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFormat(format)
			if err != nil {
				return err
			}
			svc, cleanup, err := a.newService(true)
			if err != nil {
				return err
			}
			defer cleanup()

			m, err := loadModule(args[0], entryPoint, a.cfg.Limits)
			if err != nil {
				return err
			}
			an, err := svc.Verify(cmd.Context(), m)
			if err != nil {
				return err
			}

			report := verifyReport{Module: m.Name, Verification: an.Verification, Stats: an.Stats}
			for _, info := range an.Classes {
				super, _ := info.SuperClassName()
				report.Classes = append(report.Classes, sandbox.ClassSummary{
					Name:       info.Name(),
					Interface:  info.IsInterface(),
					Super:      super,
					Interfaces: info.InterfaceNames(),
				})
			}
			if err := f.write(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			if v := an.Verification; !v.OK() {
				return &sandbox.RejectedError{
					Stage: sandbox.StageHierarchy,
					Fault: v.Fault,
					Name:  v.Name,
					Count: v.Count,
					Err:   v.Err(),
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&entryPoint, "entry-point", "e", "", "Entry point class (overrides Main-Class)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: json or yaml")
	return cmd
}

func newDescribeCmd(a *app) *cobra.Command {
	var entryPoint, format string
	cmd := &cobra.Command{
		Use:   "describe [jar or class directory]",
		Short: "List each class with its sandbox identity, fields and methods",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFormat(format)
			if err != nil {
				return err
			}
			m, err := loadModule(args[0], entryPoint, a.cfg.Limits)
			if err != nil {
				return err
			}
			classes, err := sandbox.Describe(m)
			if err != nil {
				return err
			}
			return f.write(cmd.OutOrStdout(), classes)
		},
	}
	cmd.Flags().StringVarP(&entryPoint, "entry-point", "e", "", "Entry point class (overrides Main-Class)")
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: json or yaml")
	return cmd
}

func newCatalogCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Print the platform catalog modules may extend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseFormat(format)
			if err != nil {
				return err
			}
			h, err := hierarchy.Catalog()
			if err != nil {
				return err
			}
			return f.write(cmd.OutOrStdout(), h.Snapshot())
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "Output format: json or yaml")
	return cmd
}
