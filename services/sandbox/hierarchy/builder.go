// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianSandbox/services/sandbox/naming"
)

// BuildStats contains statistics about a build operation.
type BuildStats struct {
	// CatalogNodes is the number of nodes copied from the catalog, root
	// included.
	CatalogNodes int

	// WrapperNodes is the number of wrapper types inserted.
	WrapperNodes int

	// ExceptionNodes is the number of sandbox exception types inserted.
	ExceptionNodes int

	// ModuleClasses is the number of submitted classes inserted.
	ModuleClasses int

	// GhostsCreated is the number of placeholder nodes created.
	GhostsCreated int

	// GhostsResolved is the number of placeholders later defined in the
	// same batch.
	GhostsResolved int

	// EdgesCreated is the number of parent edges added by this build.
	EdgesCreated int

	// DurationMicro is the total build time in microseconds.
	DurationMicro int64
}

// InsertError records a definition the builder could not insert.
type InsertError struct {
	// Name is the post-rename name of the rejected definition.
	Name string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e InsertError) Error() string {
	return fmt.Sprintf("insert %s: %v", e.Name, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e InsertError) Unwrap() error {
	return e.Err
}

// BuildResult contains the result of a build.
//
// Building never fails: every judgment about the shape of the hierarchy is
// left to Verify. Duplicate definitions are recorded here and the first
// definition wins.
type BuildResult struct {
	// Hierarchy is the frozen per-deployment hierarchy.
	Hierarchy *ClassHierarchy

	// InsertErrors lists definitions that were skipped.
	InsertErrors []InsertError

	// Stats contains build statistics.
	Stats BuildStats
}

// HasErrors returns true if any definition was skipped.
func (r *BuildResult) HasErrors() bool {
	return len(r.InsertErrors) > 0
}

// BuilderOptions configures Builder behavior.
type BuilderOptions struct {
	// Catalog is the frozen base hierarchy each build starts from.
	// Default: Catalog()
	Catalog *ClassHierarchy

	// Wrappers are inserted after the catalog.
	// Default: WrapperTypes()
	Wrappers []naming.ClassInformation

	// Exceptions are inserted after the wrappers.
	// Default: ExceptionTypes()
	Exceptions []naming.ClassInformation
}

// BuilderOption is a functional option for configuring Builder.
type BuilderOption func(*BuilderOptions)

// WithCatalog sets the base hierarchy.
func WithCatalog(h *ClassHierarchy) BuilderOption {
	return func(o *BuilderOptions) {
		o.Catalog = h
	}
}

// WithWrappers replaces the wrapper type set.
func WithWrappers(infos []naming.ClassInformation) BuilderOption {
	return func(o *BuilderOptions) {
		o.Wrappers = infos
	}
}

// WithExceptions replaces the sandbox exception type set.
func WithExceptions(infos []naming.ClassInformation) BuilderOption {
	return func(o *BuilderOptions) {
		o.Exceptions = infos
	}
}

// Builder assembles per-deployment hierarchies.
//
// Thread Safety:
//
//	Safe for concurrent use. Each Build works on its own clone of the
//	catalog.
type Builder struct {
	options BuilderOptions
}

// NewBuilder creates a Builder.
//
// Outputs:
//
//	*Builder - Ready to build.
//	error - Wraps ErrCatalogInvalid if no catalog was given and the
//	embedded one fails to load.
func NewBuilder(opts ...BuilderOption) (*Builder, error) {
	options := BuilderOptions{
		Wrappers:   WrapperTypes(),
		Exceptions: ExceptionTypes(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Catalog == nil {
		cat, err := Catalog()
		if err != nil {
			return nil, err
		}
		options.Catalog = cat
	}
	return &Builder{options: options}, nil
}

// Build assembles one deployment's hierarchy.
//
// Description:
//
//	Starts from a clone of the catalog, inserts the wrapper and exception
//	types, then renames and inserts every submitted class. Forward
//	references become ghosts that later definitions resolve, so the
//	resulting shape does not depend on input order. The result is frozen.
//
// Inputs:
//
//	ctx - Context for tracing only.
//	classes - Pre-rename class information of the submitted classes. Names
//	must be valid internal names. Post-rename entries are inserted as-is.
//
// Outputs:
//
//	*BuildResult - Always non-nil.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (b *Builder) Build(ctx context.Context, classes []naming.ClassInformation) *BuildResult {
	ctx, span := startBuildSpan(ctx, len(classes))
	defer span.End()
	start := time.Now()

	h := b.options.Catalog.Clone()
	result := &BuildResult{Hierarchy: h}
	result.Stats.CatalogNodes = h.Len()

	insert := func(info naming.ClassInformation, source Source) bool {
		out, err := h.Insert(info, source)
		result.Stats.GhostsCreated += out.GhostsCreated
		result.Stats.EdgesCreated += out.EdgesCreated
		if out.ResolvedGhost {
			result.Stats.GhostsResolved++
		}
		if err != nil {
			result.InsertErrors = append(result.InsertErrors, InsertError{Name: info.Name(), Err: err})
			if !errors.Is(err, ErrDuplicateNode) {
				slog.Error("hierarchy insert failed",
					slog.String("class", info.Name()),
					slog.String("error", err.Error()),
				)
			}
			return false
		}
		return true
	}

	for _, info := range b.options.Wrappers {
		if insert(info, SourceWrapper) {
			result.Stats.WrapperNodes++
		}
	}
	for _, info := range b.options.Exceptions {
		if insert(info, SourceException) {
			result.Stats.ExceptionNodes++
		}
	}
	for _, info := range classes {
		if insert(naming.RenameClassInformation(info), SourceModule) {
			result.Stats.ModuleClasses++
		}
	}

	h.Freeze()

	duration := time.Since(start)
	result.Stats.DurationMicro = duration.Microseconds()
	setBuildSpanResult(span, result.Stats)
	recordBuildMetrics(ctx, duration, result.Stats)
	return result
}
