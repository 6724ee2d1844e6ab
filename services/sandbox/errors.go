// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sandbox

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianSandbox/services/sandbox/hierarchy"
)

// Sentinel errors for the sandbox pipeline and service.
var (
	// ErrModuleRejected wraps every outcome in which a module fails a
	// pipeline stage. Use errors.As with *RejectedError for the details.
	ErrModuleRejected = errors.New("module rejected")

	// ErrEmptyModule indicates a module with no classes.
	ErrEmptyModule = errors.New("module has no classes")

	// ErrEntryPointMissing indicates the entry point is not one of the
	// module's classes.
	ErrEntryPointMissing = errors.New("entry point is not a module class")

	// ErrNameMismatch indicates a class artifact whose header names a
	// different class than the one it was submitted as.
	ErrNameMismatch = errors.New("class name does not match artifact")

	// ErrReservedName indicates a submitted class whose name lies in a
	// platform, API or sandbox namespace.
	ErrReservedName = errors.New("class name is reserved")

	// ErrDuplicateClass indicates the same class submitted twice.
	ErrDuplicateClass = errors.New("duplicate class")

	// ErrModuleTooLarge indicates a module over the admission limits.
	ErrModuleTooLarge = errors.New("module exceeds admission limits")

	// ErrRateLimited indicates the service is shedding load.
	ErrRateLimited = errors.New("too many transform requests")
)

// Stage identifies where in the pipeline a module was rejected.
type Stage int

const (
	// StageParse covers malformed artifacts, header name problems and
	// structural limits of the class-file format.
	StageParse Stage = iota + 1

	// StageDescriptor covers malformed type descriptors.
	StageDescriptor

	// StageHierarchy covers the verification faults.
	StageHierarchy

	// StageInternal marks a defect in the pipeline itself.
	StageInternal
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageParse:
		return "parse"
	case StageDescriptor:
		return "descriptor"
	case StageHierarchy:
		return "hierarchy"
	case StageInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// MarshalText encodes the stage by name.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a stage name produced by MarshalText.
func (s *Stage) UnmarshalText(text []byte) error {
	for c := StageParse; c <= StageInternal; c++ {
		if c.String() == string(text) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown stage %q", text)
}

// RejectedError describes why a module was rejected. It matches both
// ErrModuleRejected and its cause under errors.Is.
type RejectedError struct {
	// Stage is where the module failed.
	Stage Stage

	// Fault is the verification fault for StageHierarchy, otherwise
	// FaultNone.
	Fault hierarchy.Fault

	// Name is the offending class: the artifact name for parse and
	// descriptor faults, the post-rename node name for hierarchy faults.
	Name string

	// Count is the number of unreachable nodes for FaultUnreachableNodes.
	Count int

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *RejectedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "module rejected at %s", e.Stage)
	if e.Fault != hierarchy.FaultNone {
		fmt.Fprintf(&b, ": %s", e.Fault)
	}
	if e.Name != "" {
		fmt.Fprintf(&b, " (%s)", e.Name)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns ErrModuleRejected and the cause for errors.Is/As support.
func (e *RejectedError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrModuleRejected}
	}
	return []error{ErrModuleRejected, e.Err}
}
