// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rewrite moves a parsed class artifact into the sandbox namespace.
//
// The rewrite is an ordered list of independent stages. Each stage takes an
// immutable *classfile.ClassFile, returns a new one plus a Stats value, and
// never touches its input. Original constant pool indices are preserved and
// new Utf8 and NameAndType entries are appended, so instruction widths and
// branch offsets never change. Every original pool entry is handled by
// exactly one stage:
//
//	classes      Class entries, renamed in place
//	members      Fieldref, Methodref, InterfaceMethodref
//	header       this/super/interfaces checked against the hierarchy
//	fields       field descriptors and attributes
//	methods      method descriptors, attributes, Code internals
//	instructions operand kinds validated
//	callsites    MethodType, Dynamic, InvokeDynamic, BootstrapMethods
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/AleutianSandbox/services/sandbox/classfile"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/hierarchy"
)

// Env is the read-only context shared by the stages of one class rewrite.
type Env struct {
	// Hierarchy is the verified, frozen deployment hierarchy.
	Hierarchy *hierarchy.ClassHierarchy

	// Class is the pre-rename class name, for diagnostics.
	Class string

	// OriginalCount is the constant pool count before any stage ran.
	// Stages only rewrite entries below it.
	OriginalCount int
}

// StageFunc transforms one class file. It must not modify in.
type StageFunc func(env *Env, in *classfile.ClassFile) (*classfile.ClassFile, Stats, error)

// Stage is one named rewrite pass.
type Stage struct {
	Name  string
	Apply StageFunc
}

// DefaultStages returns the full rewrite in order.
func DefaultStages() []Stage {
	return []Stage{
		{Name: "classes", Apply: rewriteClasses},
		{Name: "members", Apply: rewriteMemberRefs},
		{Name: "header", Apply: rewriteHeader},
		{Name: "fields", Apply: rewriteFields},
		{Name: "methods", Apply: rewriteMethods},
		{Name: "instructions", Apply: checkInstructions},
		{Name: "callsites", Apply: rewriteCallSites},
	}
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithStages replaces the stage list.
func WithStages(stages []Stage) Option {
	return func(r *Rewriter) {
		r.stages = stages
	}
}

// Rewriter applies the stage list to class files of one deployment.
//
// Thread Safety:
//
//	Safe for concurrent use; it holds only the frozen hierarchy.
type Rewriter struct {
	hierarchy *hierarchy.ClassHierarchy
	stages    []Stage
}

// New creates a Rewriter for a verified hierarchy.
//
// Inputs:
//
//	h - The deployment hierarchy. Must be frozen.
//	result - The verification result for h. Must be successful.
//
// Outputs:
//
//	*Rewriter - Ready to rewrite.
//	error - ErrNotVerified if result failed or h is still building.
func New(h *hierarchy.ClassHierarchy, result hierarchy.VerificationResult, opts ...Option) (*Rewriter, error) {
	if !result.OK() {
		return nil, fmt.Errorf("%w: %s", ErrNotVerified, result)
	}
	if h.State() != hierarchy.StateReadOnly {
		return nil, fmt.Errorf("%w: hierarchy is not frozen", ErrNotVerified)
	}
	r := &Rewriter{hierarchy: h, stages: DefaultStages()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Rewrite produces the sandboxed form of cf.
//
// Description:
//
//	Runs every stage in order, threading the output of one into the next
//	and summing their Stats. cf is not modified.
//
// Inputs:
//
//	ctx - Context for tracing only.
//	cf - A parsed class whose header is present in the hierarchy.
//
// Outputs:
//
//	*classfile.ClassFile - The rewritten class.
//	Stats - Summed stage statistics.
//	error - A *StageError wrapping a descriptor error, a classfile
//	sentinel, ErrBadBootstrap, or ErrInternalInconsistency.
func (r *Rewriter) Rewrite(ctx context.Context, cf *classfile.ClassFile) (*classfile.ClassFile, Stats, error) {
	name, err := cf.Name()
	if err != nil {
		return nil, Stats{}, err
	}
	_, span := startRewriteSpan(ctx, name)
	defer span.End()

	env := &Env{
		Hierarchy:     r.hierarchy,
		Class:         name,
		OriginalCount: cf.Pool.Count(),
	}

	var total Stats
	cur := cf
	for _, stage := range r.stages {
		next, stats, err := stage.Apply(env, cur)
		if err != nil {
			if errors.Is(err, ErrInternalInconsistency) {
				slog.Error("rewrite invariant violated",
					slog.String("class", name),
					slog.String("stage", stage.Name),
					slog.String("error", err.Error()),
				)
			}
			span.RecordError(err)
			return nil, total, &StageError{Stage: stage.Name, Err: err}
		}
		total = total.Add(stats)
		cur = next
	}
	total.ConstantsAdded = cur.Pool.Count() - cf.Pool.Count()

	setRewriteSpanResult(span, total)
	return cur, total, nil
}
