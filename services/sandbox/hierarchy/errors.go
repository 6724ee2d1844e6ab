// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package hierarchy models the whole-program class hierarchy of one
// deployment.
//
// # Model
//
// A ClassHierarchy is an arena of Nodes indexed by post-rename name with a
// single root, the universal base type. Each Node wraps one immutable
// naming.ClassInformation and carries mutable parent/child sets. A name
// that is referenced as an ancestor before (or without) being defined gets
// a ghost Node; a later definition in the same batch resolves the ghost in
// place, so insertion order does not affect the final shape.
//
// # Thread Safety
//
// A ClassHierarchy is single-writer while building. After Freeze() it is
// read-only and may be shared across goroutines; the platform catalog is
// built once per process and only ever read through Clone().
//
// # Lifecycle
//
//  1. Catalog() builds and freezes the platform catalog once.
//  2. Builder.Build clones it, inserts wrappers, exceptions and the
//     renamed module classes, then freezes the result.
//  3. Verify judges the frozen hierarchy.
package hierarchy

import "errors"

// Sentinel errors for hierarchy operations.
var (
	// ErrHierarchyFrozen is returned when inserting into a frozen hierarchy.
	ErrHierarchyFrozen = errors.New("hierarchy is frozen and cannot be modified")

	// ErrDuplicateNode is returned when a name is defined twice.
	ErrDuplicateNode = errors.New("duplicate class definition")

	// ErrNotPostRename is returned when a pre-rename ClassInformation is
	// inserted directly.
	ErrNotPostRename = errors.New("class information is not post-rename")

	// ErrGhostNode is the error form of a ghost-node-found fault.
	ErrGhostNode = errors.New("ghost node found")

	// ErrInterfaceWithConcreteSuperclass is the error form of an
	// interface-with-concrete-superclass fault.
	ErrInterfaceWithConcreteSuperclass = errors.New("interface has concrete superclass")

	// ErrMultipleConcreteSuperclasses is the error form of a
	// multiple-concrete-superclasses fault.
	ErrMultipleConcreteSuperclasses = errors.New("multiple concrete superclasses")

	// ErrUnreachableNodes is the error form of an unreachable-nodes fault.
	ErrUnreachableNodes = errors.New("nodes unreachable from root")

	// ErrCatalogInvalid is returned when the embedded platform catalog
	// cannot be loaded or does not verify. This is a build defect.
	ErrCatalogInvalid = errors.New("platform catalog is invalid")
)
