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
	"fmt"
	"maps"
	"slices"

	"github.com/AleutianAI/AleutianSandbox/services/sandbox/naming"
)

// Source records where a node's definition came from.
type Source int

const (
	// SourceGhost is a referenced ancestor with no definition.
	SourceGhost Source = iota

	// SourceRoot is the universal base type.
	SourceRoot

	// SourceCatalog is a platform catalog type.
	SourceCatalog

	// SourceWrapper is a hand-written wrapper type.
	SourceWrapper

	// SourceException is a sandbox exception type.
	SourceException

	// SourceModule is a class submitted with the module.
	SourceModule
)

// String returns the string representation of the Source.
func (s Source) String() string {
	switch s {
	case SourceGhost:
		return "ghost"
	case SourceRoot:
		return "root"
	case SourceCatalog:
		return "catalog"
	case SourceWrapper:
		return "wrapper"
	case SourceException:
		return "exception"
	case SourceModule:
		return "module"
	default:
		return "unknown"
	}
}

// Node is one type in a ClassHierarchy.
type Node struct {
	info     naming.ClassInformation
	source   Source
	parents  map[string]*Node
	children map[string]*Node
}

func newNode(info naming.ClassInformation, source Source) *Node {
	return &Node{
		info:     info,
		source:   source,
		parents:  make(map[string]*Node),
		children: make(map[string]*Node),
	}
}

// Name returns the node's post-rename name.
func (n *Node) Name() string { return n.info.Name() }

// Info returns the node's class information. Ghosts carry identity only.
func (n *Node) Info() naming.ClassInformation { return n.info }

// IsGhost reports whether the node was referenced but never defined.
func (n *Node) IsGhost() bool { return n.source == SourceGhost }

// IsInterface reports whether the node is an interface. Ghosts are not.
func (n *Node) IsInterface() bool { return n.info.IsInterface() }

// Source returns where the node's definition came from.
func (n *Node) Source() Source { return n.source }

// Parents returns the parent nodes sorted by name.
func (n *Node) Parents() []*Node { return sortedNodes(n.parents) }

// Children returns the child nodes sorted by name.
func (n *Node) Children() []*Node { return sortedNodes(n.children) }

func sortedNodes(m map[string]*Node) []*Node {
	out := make([]*Node, 0, len(m))
	for _, name := range slices.Sorted(maps.Keys(m)) {
		out = append(out, m[name])
	}
	return out
}

// State is the lifecycle state of a ClassHierarchy.
type State int

const (
	// StateBuilding accepts inserts.
	StateBuilding State = iota

	// StateReadOnly rejects inserts; safe for concurrent reads.
	StateReadOnly
)

// ClassHierarchy owns every Node of one hierarchy.
//
// Thread Safety:
//
//	Single writer while StateBuilding. Safe for concurrent reads after
//	Freeze().
type ClassHierarchy struct {
	nodes map[string]*Node
	root  *Node
	state State
}

// New creates a hierarchy holding only the root.
func New() *ClassHierarchy {
	root := newNode(naming.NewClassInformation(naming.RootName, false, "", nil, naming.TagPostRename), SourceRoot)
	return &ClassHierarchy{
		nodes: map[string]*Node{naming.RootName: root},
		root:  root,
	}
}

// Root returns the universal base type node.
func (h *ClassHierarchy) Root() *Node { return h.root }

// Node returns the node named name.
func (h *ClassHierarchy) Node(name string) (*Node, bool) {
	n, ok := h.nodes[name]
	return n, ok
}

// Len returns the number of nodes, root and ghosts included.
func (h *ClassHierarchy) Len() int { return len(h.nodes) }

// Names returns every node name, sorted.
func (h *ClassHierarchy) Names() []string {
	return slices.Sorted(maps.Keys(h.nodes))
}

// Ghosts returns the names of unresolved ghost nodes, sorted.
func (h *ClassHierarchy) Ghosts() []string {
	var out []string
	for _, name := range h.Names() {
		if h.nodes[name].IsGhost() {
			out = append(out, name)
		}
	}
	return out
}

// State returns the lifecycle state.
func (h *ClassHierarchy) State() State { return h.state }

// Freeze makes the hierarchy read-only.
func (h *ClassHierarchy) Freeze() { h.state = StateReadOnly }

// InsertOutcome describes what an Insert did.
type InsertOutcome struct {
	// ResolvedGhost is set when the definition replaced a ghost.
	ResolvedGhost bool

	// GhostsCreated counts placeholder nodes created for its ancestors.
	GhostsCreated int

	// EdgesCreated counts parent edges added.
	EdgesCreated int
}

// Insert adds one post-rename class definition.
//
// Description:
//
//	Creates the node, or resolves an existing ghost of the same name in
//	place, then links it under its superclass and interfaces. Ancestors
//	that are not yet present become ghosts attached provisionally under
//	the root, so a traversal from the root reaches and reports them. A
//	missing superclass links the node under the root.
//
// Inputs:
//
//	info - Post-rename class information.
//	source - Where the definition came from. Must not be SourceGhost or
//	SourceRoot.
//
// Outputs:
//
//	InsertOutcome - Counts for build statistics.
//	error - ErrHierarchyFrozen, ErrNotPostRename or ErrDuplicateNode.
//
// Thread Safety:
//
//	NOT safe for concurrent use.
func (h *ClassHierarchy) Insert(info naming.ClassInformation, source Source) (InsertOutcome, error) {
	var out InsertOutcome
	if h.state == StateReadOnly {
		return out, ErrHierarchyFrozen
	}
	if info.Tag() != naming.TagPostRename {
		return out, fmt.Errorf("%w: %s", ErrNotPostRename, info.Name())
	}
	if source == SourceGhost || source == SourceRoot {
		return out, fmt.Errorf("insert %s: invalid source %s", info.Name(), source)
	}

	name := info.Name()
	node, exists := h.nodes[name]
	switch {
	case exists && node.IsGhost():
		h.unlink(h.root, node)
		node.info = info
		node.source = source
		out.ResolvedGhost = true
	case exists:
		return out, fmt.Errorf("%w: %s", ErrDuplicateNode, name)
	default:
		node = newNode(info, source)
		h.nodes[name] = node
	}

	for _, parent := range parentNames(info) {
		p, created := h.getOrCreateGhost(parent)
		if created {
			out.GhostsCreated++
		}
		if h.link(p, node) {
			out.EdgesCreated++
		}
	}
	return out, nil
}

// parentNames returns the declared ancestors of info, the root standing in
// for an absent superclass.
func parentNames(info naming.ClassInformation) []string {
	super, ok := info.SuperClassName()
	if !ok {
		super = naming.RootName
	}
	return append([]string{super}, info.InterfaceNames()...)
}

func (h *ClassHierarchy) getOrCreateGhost(name string) (*Node, bool) {
	if n, ok := h.nodes[name]; ok {
		return n, false
	}
	ghost := newNode(naming.NewClassInformation(name, false, "", nil, naming.TagPostRename), SourceGhost)
	h.nodes[name] = ghost
	h.link(h.root, ghost)
	return ghost, true
}

// link adds a parent/child edge and reports whether it was new.
func (h *ClassHierarchy) link(parent, child *Node) bool {
	if _, ok := child.parents[parent.Name()]; ok {
		return false
	}
	child.parents[parent.Name()] = parent
	parent.children[child.Name()] = child
	return true
}

func (h *ClassHierarchy) unlink(parent, child *Node) {
	delete(child.parents, parent.Name())
	delete(parent.children, child.Name())
}

// Clone returns an independent, unfrozen deep copy.
func (h *ClassHierarchy) Clone() *ClassHierarchy {
	out := &ClassHierarchy{nodes: make(map[string]*Node, len(h.nodes))}
	for name, n := range h.nodes {
		out.nodes[name] = newNode(n.info, n.source)
	}
	for name, n := range h.nodes {
		c := out.nodes[name]
		for pname := range n.parents {
			out.link(out.nodes[pname], c)
		}
	}
	out.root = out.nodes[naming.RootName]
	return out
}

// NodeSummary is a flat, comparable view of one node.
type NodeSummary struct {
	Name       string   `json:"name" yaml:"name"`
	Interface  bool     `json:"interface" yaml:"interface"`
	Source     string   `json:"source" yaml:"source"`
	Parents    []string `json:"parents" yaml:"parents"`
	Interfaces []string `json:"interfaces,omitempty" yaml:"interfaces,omitempty"`
}

// Snapshot returns a summary of every node, sorted by name.
func (h *ClassHierarchy) Snapshot() []NodeSummary {
	out := make([]NodeSummary, 0, len(h.nodes))
	for _, name := range h.Names() {
		n := h.nodes[name]
		parents := make([]string, 0, len(n.parents))
		for _, p := range n.Parents() {
			parents = append(parents, p.Name())
		}
		out = append(out, NodeSummary{
			Name:       name,
			Interface:  n.IsInterface(),
			Source:     n.source.String(),
			Parents:    parents,
			Interfaces: n.info.InterfaceNames(),
		})
	}
	return out
}
