// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rewrite

import (
	"errors"
	"fmt"
)

// Sentinel errors for rewriting.
var (
	// ErrNotVerified is returned when a Rewriter is created from a
	// hierarchy that did not verify or was not frozen.
	ErrNotVerified = errors.New("hierarchy has not been verified")

	// ErrInternalInconsistency marks a defect in the pipeline itself, such
	// as a header naming a type the verified hierarchy does not hold.
	// Never caused by bad input alone.
	ErrInternalInconsistency = errors.New("internal inconsistency")

	// ErrBadBootstrap is returned for a malformed BootstrapMethods table or
	// a dynamic constant that references it incorrectly.
	ErrBadBootstrap = errors.New("malformed bootstrap method")
)

// MemberError attributes a rewrite failure to one member or constant.
type MemberError struct {
	// Class is the pre-rename class name.
	Class string

	// Member identifies the member, e.g. "method run()V" or "constant #12".
	Member string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *MemberError) Error() string {
	return fmt.Sprintf("class %s, %s: %v", e.Class, e.Member, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *MemberError) Unwrap() error {
	return e.Err
}

// StageError records which stage failed.
type StageError struct {
	// Stage is the stage name.
	Stage string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StageError) Error() string {
	return fmt.Sprintf("rewrite stage %s: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StageError) Unwrap() error {
	return e.Err
}
