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
	"fmt"
	"time"
)

// Fault is the kind of a failed verification.
type Fault int

const (
	// FaultNone means verification succeeded.
	FaultNone Fault = iota

	// FaultGhostNode means a ghost was reachable from the root.
	FaultGhostNode

	// FaultInterfaceWithConcreteSuperclass means an interface has a
	// non-interface parent other than the root.
	FaultInterfaceWithConcreteSuperclass

	// FaultMultipleConcreteSuperclasses means a node has more than one
	// non-interface parent.
	FaultMultipleConcreteSuperclasses

	// FaultUnreachableNodes means some nodes are not reachable from the
	// root.
	FaultUnreachableNodes
)

// String returns the string representation of the Fault.
func (f Fault) String() string {
	switch f {
	case FaultNone:
		return "success"
	case FaultGhostNode:
		return "ghost-node-found"
	case FaultInterfaceWithConcreteSuperclass:
		return "interface-with-concrete-superclass"
	case FaultMultipleConcreteSuperclasses:
		return "multiple-concrete-superclasses"
	case FaultUnreachableNodes:
		return "unreachable-nodes"
	default:
		return "unknown"
	}
}

// MarshalText encodes the fault by its diagnostic name.
func (f Fault) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText decodes a fault name produced by MarshalText.
func (f *Fault) UnmarshalText(text []byte) error {
	for c := FaultNone; c <= FaultUnreachableNodes; c++ {
		if c.String() == string(text) {
			*f = c
			return nil
		}
	}
	return fmt.Errorf("unknown fault %q", text)
}

// Sentinel returns the sentinel error for f, or nil for FaultNone.
func (f Fault) Sentinel() error {
	switch f {
	case FaultGhostNode:
		return ErrGhostNode
	case FaultInterfaceWithConcreteSuperclass:
		return ErrInterfaceWithConcreteSuperclass
	case FaultMultipleConcreteSuperclasses:
		return ErrMultipleConcreteSuperclasses
	case FaultUnreachableNodes:
		return ErrUnreachableNodes
	default:
		return nil
	}
}

// VerificationResult is the outcome of Verify: success, or exactly one
// fault with the name or count needed to report it.
type VerificationResult struct {
	// Fault is FaultNone on success.
	Fault Fault `json:"fault"`

	// Name is the offending post-rename name for ghost, interface and
	// multiple-superclass faults.
	Name string `json:"name,omitempty"`

	// Count is the number of unreachable nodes for FaultUnreachableNodes.
	Count int `json:"count,omitempty"`

	// Visited is the number of distinct nodes reached before the result
	// was decided.
	Visited int `json:"visited"`

	// Total is the number of nodes in the hierarchy.
	Total int `json:"total"`
}

// OK reports whether verification succeeded.
func (r VerificationResult) OK() bool {
	return r.Fault == FaultNone
}

// Err returns nil on success, otherwise the fault's sentinel wrapped with
// its diagnostic.
func (r VerificationResult) Err() error {
	switch r.Fault {
	case FaultNone:
		return nil
	case FaultUnreachableNodes:
		return fmt.Errorf("%w: %d", ErrUnreachableNodes, r.Count)
	default:
		return fmt.Errorf("%w: %s", r.Fault.Sentinel(), r.Name)
	}
}

// String returns a one-line description of the result.
func (r VerificationResult) String() string {
	switch r.Fault {
	case FaultNone:
		return fmt.Sprintf("success (%d nodes)", r.Total)
	case FaultUnreachableNodes:
		return fmt.Sprintf("%s(%d)", r.Fault, r.Count)
	default:
		return fmt.Sprintf("%s(%q)", r.Fault, r.Name)
	}
}

// Verify checks that h is consistent and fully rooted.
//
// Description:
//
//	Breadth-first traversal from the root, visiting children in sorted
//	name order so the reported fault is deterministic. For each visited
//	node:
//	  1. a ghost fails with FaultGhostNode naming it
//	  2. an interface child of a node that is neither an interface nor the
//	     root fails with FaultInterfaceWithConcreteSuperclass naming the
//	     child
//	  3. a ghost parent fails with FaultGhostNode naming the parent; more
//	     than one non-interface parent fails with
//	     FaultMultipleConcreteSuperclasses naming the node
//	After traversal, fewer visited nodes than total fails with
//	FaultUnreachableNodes carrying the difference.
//
// Inputs:
//
//	ctx - Context for tracing only; Verify does not block.
//	h - The hierarchy to check. Not modified.
//
// Outputs:
//
//	VerificationResult - Success or exactly one fault.
//
// Thread Safety:
//
//	Safe for concurrent use on a frozen hierarchy.
func Verify(ctx context.Context, h *ClassHierarchy) VerificationResult {
	_, span := startVerifySpan(ctx, h.Len())
	defer span.End()
	start := time.Now()

	result := verify(h)

	setVerifySpanResult(span, result)
	recordVerifyMetrics(ctx, time.Since(start), result)
	return result
}

func verify(h *ClassHierarchy) VerificationResult {
	root := h.Root()
	visited := map[*Node]struct{}{root: {}}
	queue := []*Node{root}

	fail := func(f Fault, name string) VerificationResult {
		return VerificationResult{Fault: f, Name: name, Visited: len(visited), Total: h.Len()}
	}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		if n.IsGhost() {
			return fail(FaultGhostNode, n.Name())
		}

		children := n.Children()
		for _, c := range children {
			if c.IsInterface() && !n.IsInterface() && n != root {
				return fail(FaultInterfaceWithConcreteSuperclass, c.Name())
			}
		}

		concrete := 0
		for _, p := range n.Parents() {
			if p.IsGhost() {
				return fail(FaultGhostNode, p.Name())
			}
			if !p.IsInterface() {
				concrete++
			}
		}
		if concrete > 1 {
			return fail(FaultMultipleConcreteSuperclasses, n.Name())
		}

		for _, c := range children {
			if _, seen := visited[c]; !seen {
				visited[c] = struct{}{}
				queue = append(queue, c)
			}
		}
	}

	if missing := h.Len() - len(visited); missing > 0 {
		return VerificationResult{
			Fault:   FaultUnreachableNodes,
			Count:   missing,
			Visited: len(visited),
			Total:   h.Len(),
		}
	}
	return VerificationResult{Visited: len(visited), Total: h.Len()}
}
