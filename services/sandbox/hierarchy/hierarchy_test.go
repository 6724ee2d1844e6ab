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
	"math/rand/v2"
	"strconv"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSandbox/services/sandbox/naming"
)

func pre(name string, iface bool, super string, ifaces ...string) naming.ClassInformation {
	return naming.NewClassInformation(name, iface, super, ifaces, naming.TagPreRename)
}

func build(t *testing.T, classes ...naming.ClassInformation) *BuildResult {
	t.Helper()
	b, err := NewBuilder()
	require.NoError(t, err)
	return b.Build(context.Background(), classes)
}

func verifyClasses(t *testing.T, classes ...naming.ClassInformation) VerificationResult {
	t.Helper()
	res := build(t, classes...)
	require.False(t, res.HasErrors(), "unexpected insert errors: %v", res.InsertErrors)
	return Verify(context.Background(), res.Hierarchy)
}

func parentNamesOf(t *testing.T, h *ClassHierarchy, name string) []string {
	t.Helper()
	n, ok := h.Node(name)
	require.True(t, ok, "node %s missing", name)
	var out []string
	for _, p := range n.Parents() {
		out = append(out, p.Name())
	}
	return out
}

func TestCatalog_LoadedOnceAndFrozen(t *testing.T) {
	a, err := Catalog()
	require.NoError(t, err)
	b, err := Catalog()
	require.NoError(t, err)
	assert.Same(t, a, b)

	assert.Equal(t, StateReadOnly, a.State())
	assert.Empty(t, a.Ghosts())
	assert.True(t, Verify(context.Background(), a).OK())

	for _, name := range []string{
		naming.ShadowObjectName,
		naming.CapabilityName,
		naming.ShadowThrowableName,
		"s/java/lang/String",
		"s/java/util/ArrayList",
		"a/Contract",
	} {
		_, ok := a.Node(name)
		assert.True(t, ok, name)
	}

	_, err = a.Insert(naming.NewClassInformation("u/X", false, naming.ShadowObjectName, nil, naming.TagPostRename), SourceModule)
	assert.ErrorIs(t, err, ErrHierarchyFrozen)
}

func TestCatalog_InterfacesHangOffRoot(t *testing.T) {
	cat, err := Catalog()
	require.NoError(t, err)
	assert.Equal(t, []string{naming.RootName}, parentNamesOf(t, cat, naming.CapabilityName))
	assert.Equal(t, []string{naming.RootName}, parentNamesOf(t, cat, naming.ShadowObjectName))
	assert.Equal(t,
		[]string{naming.ShadowObjectName, "s/java/io/Serializable", "s/java/lang/CharSequence", "s/java/lang/Comparable"},
		parentNamesOf(t, cat, "s/java/lang/String"),
	)
}

func TestLoadCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad yaml", "types: [\n"},
		{"wrong version", "version: 2\ntypes: []\n"},
		{"unknown field", "version: 1\ntypes:\n  - name: i/A\n    color: red\n"},
		{"pre-rename name", "version: 1\ntypes:\n  - name: java/lang/String\n"},
		{"malformed name", "version: 1\ntypes:\n  - name: i/A;\n"},
		{"missing ancestor", "version: 1\ntypes:\n  - name: i/A\n    super: i/Missing\n"},
		{"duplicate", "version: 1\ntypes:\n  - name: i/A\n  - name: i/A\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCatalog([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrCatalogInvalid)
		})
	}
}

func TestBuild_ScenarioA_ClassUnderRoot(t *testing.T) {
	res := build(t, pre("Root", false, naming.RootName))
	require.True(t, Verify(context.Background(), res.Hierarchy).OK())

	assert.Equal(t, []string{naming.ShadowObjectName}, parentNamesOf(t, res.Hierarchy, "u/Root"))
	assert.Equal(t, 1, res.Stats.ModuleClasses)
	assert.Zero(t, res.Stats.GhostsCreated)
}

func TestBuild_ScenarioB_InterfaceUnderRoot(t *testing.T) {
	res := build(t, pre("I", true, naming.RootName))
	require.True(t, Verify(context.Background(), res.Hierarchy).OK())

	assert.Equal(t, []string{naming.RootName}, parentNamesOf(t, res.Hierarchy, "u/I"))
}

func TestVerify_ScenarioC_GhostSuperclass(t *testing.T) {
	res := verifyClasses(t, pre("A", false, "B"))

	assert.Equal(t, FaultGhostNode, res.Fault)
	assert.Equal(t, naming.Rename("B"), res.Name)
	assert.ErrorIs(t, res.Err(), ErrGhostNode)
}

func TestVerify_Faults(t *testing.T) {
	tests := []struct {
		name    string
		classes []naming.ClassInformation
		want    VerificationResult
	}{
		{
			name:    "ghost interface",
			classes: []naming.ClassInformation{pre("A", false, naming.RootName, "p/Missing")},
			want:    VerificationResult{Fault: FaultGhostNode, Name: "u/p/Missing"},
		},
		{
			name:    "uncatalogued platform ancestor",
			classes: []naming.ClassInformation{pre("A", false, "java/util/TreeMap")},
			want:    VerificationResult{Fault: FaultGhostNode, Name: "s/java/util/TreeMap"},
		},
		{
			name: "interface over concrete",
			classes: []naming.ClassInformation{
				pre("p/C", false, naming.RootName),
				pre("p/I", true, "p/C"),
			},
			want: VerificationResult{Fault: FaultInterfaceWithConcreteSuperclass, Name: "u/p/I"},
		},
		{
			name: "interface over catalog class",
			classes: []naming.ClassInformation{
				pre("p/I", true, "java/lang/Number"),
			},
			want: VerificationResult{Fault: FaultInterfaceWithConcreteSuperclass, Name: "u/p/I"},
		},
		{
			name: "diamond concrete inheritance",
			classes: []naming.ClassInformation{
				pre("A", false, naming.RootName),
				pre("B", false, naming.RootName),
				pre("D", false, "A", "B"),
			},
			want: VerificationResult{Fault: FaultMultipleConcreteSuperclasses, Name: "u/D"},
		},
		{
			name: "two class cycle",
			classes: []naming.ClassInformation{
				pre("A", false, "B"),
				pre("B", false, "A"),
			},
			want: VerificationResult{Fault: FaultUnreachableNodes, Count: 2},
		},
		{
			name:    "self cycle",
			classes: []naming.ClassInformation{pre("A", false, "A")},
			want:    VerificationResult{Fault: FaultUnreachableNodes, Count: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := verifyClasses(t, tt.classes...)
			assert.Equal(t, tt.want.Fault, got.Fault, got.String())
			assert.Equal(t, tt.want.Name, got.Name)
			assert.Equal(t, tt.want.Count, got.Count)
			assert.ErrorIs(t, got.Err(), tt.want.Fault.Sentinel())
		})
	}
}

func TestVerify_ValidModules(t *testing.T) {
	tests := []struct {
		name    string
		classes []naming.ClassInformation
	}{
		{"empty module", nil},
		{
			name: "catalog ancestors",
			classes: []naming.ClassInformation{
				pre("app/Failure", false, "java/lang/RuntimeException"),
				pre("app/Task", false, naming.RootName, "java/lang/Runnable", "java/lang/Comparable"),
				pre("app/Amount", false, "java/math/BigDecimal"),
				pre("app/Items", false, "java/util/ArrayList"),
				pre("app/Flow", false, naming.RootName, "org/aleutian/sandbox/api/Contract"),
			},
		},
		{
			name: "interface extends interfaces",
			classes: []naming.ClassInformation{
				pre("I", true, naming.RootName),
				pre("J", true, naming.RootName, "I", "java/lang/Iterable"),
				pre("K", false, naming.RootName, "J"),
			},
		},
		{
			name: "forward reference resolved",
			classes: []naming.ClassInformation{
				pre("Child", false, "Parent"),
				pre("Parent", false, "GrandParent"),
				pre("GrandParent", false, naming.RootName),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := verifyClasses(t, tt.classes...)
			assert.True(t, got.OK(), got.String())
			assert.Equal(t, got.Total, got.Visited)
		})
	}
}

func TestBuild_GhostResolvedInPlace(t *testing.T) {
	res := build(t,
		pre("Child", false, "Parent"),
		pre("Parent", false, naming.RootName),
	)
	assert.Equal(t, 1, res.Stats.GhostsCreated)
	assert.Equal(t, 1, res.Stats.GhostsResolved)
	assert.Empty(t, res.Hierarchy.Ghosts())

	parent, ok := res.Hierarchy.Node("u/Parent")
	require.True(t, ok)
	assert.Equal(t, SourceModule, parent.Source())
	assert.Equal(t, []string{naming.ShadowObjectName}, parentNamesOf(t, res.Hierarchy, "u/Parent"))

	root := res.Hierarchy.Root()
	for _, c := range root.Children() {
		assert.NotEqual(t, "u/Parent", c.Name(), "provisional root edge must be removed")
	}
}

// randomModule generates a well-formed module: every class extends the
// root or an earlier class and implements earlier interfaces.
func randomModule(r *rand.Rand, n int) []naming.ClassInformation {
	var classes, ifaces []string
	var out []naming.ClassInformation
	for i := 0; i < n; i++ {
		if r.IntN(3) == 0 {
			name := "gen/I" + string(rune('a'+i%26)) + strconv.Itoa(i)
			var ext []string
			if len(ifaces) > 0 {
				ext = append(ext, ifaces[r.IntN(len(ifaces))])
			}
			out = append(out, pre(name, true, naming.RootName, ext...))
			ifaces = append(ifaces, name)
			continue
		}
		name := "gen/C" + strconv.Itoa(i)
		super := naming.RootName
		if len(classes) > 0 && r.IntN(2) == 0 {
			super = classes[r.IntN(len(classes))]
		}
		var impl []string
		if len(ifaces) > 0 && r.IntN(2) == 0 {
			impl = append(impl, ifaces[r.IntN(len(ifaces))])
		}
		out = append(out, pre(name, false, super, impl...))
		classes = append(classes, name)
	}
	return out
}

func TestBuild_OrderIndependentRoundTrip(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for round := 0; round < 20; round++ {
		module := randomModule(r, 40)
		base := build(t, module...)
		require.True(t, Verify(context.Background(), base.Hierarchy).OK())
		want := base.Hierarchy.Snapshot()

		shuffled := append([]naming.ClassInformation(nil), module...)
		r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got := build(t, shuffled...)
		require.True(t, Verify(context.Background(), got.Hierarchy).OK())
		if diff := cmp.Diff(want, got.Hierarchy.Snapshot()); diff != "" {
			t.Fatalf("round %d: shape depends on insertion order (-want +got):\n%s", round, diff)
		}
	}
}

func TestBuild_DuplicateKeepsFirst(t *testing.T) {
	res := build(t,
		pre("A", false, naming.RootName),
		pre("A", true, naming.RootName),
	)
	require.Len(t, res.InsertErrors, 1)
	assert.ErrorIs(t, res.InsertErrors[0], ErrDuplicateNode)
	assert.Equal(t, "u/A", res.InsertErrors[0].Name)

	n, ok := res.Hierarchy.Node("u/A")
	require.True(t, ok)
	assert.False(t, n.IsInterface())
}

func TestBuild_WrappersAndExceptions(t *testing.T) {
	res := build(t)
	assert.Equal(t, len(WrapperTypes()), res.Stats.WrapperNodes)
	assert.Equal(t, len(ExceptionTypes()), res.Stats.ExceptionNodes)

	assert.Equal(t, []string{ArrayBaseName}, parentNamesOf(t, res.Hierarchy, "w/IntArray"))
	assert.Equal(t, []string{"s/java/lang/Error"}, parentNamesOf(t, res.Hierarchy, ThresholdViolationName))
	assert.True(t, Verify(context.Background(), res.Hierarchy).OK())
}

func TestBuild_DoesNotMutateCatalog(t *testing.T) {
	cat, err := Catalog()
	require.NoError(t, err)
	before := cat.Snapshot()

	build(t, pre("A", false, "B"), pre("C", false, "java/lang/Exception"))

	if diff := cmp.Diff(before, cat.Snapshot()); diff != "" {
		t.Errorf("catalog changed (-before +after):\n%s", diff)
	}
}

func TestBuild_ConcurrentDeployments(t *testing.T) {
	b, err := NewBuilder()
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]VerificationResult, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			classes := []naming.ClassInformation{pre("A", false, naming.RootName)}
			if i%2 == 1 {
				classes = append(classes, pre("B", false, "Missing"))
			}
			results[i] = Verify(context.Background(), b.Build(context.Background(), classes).Hierarchy)
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		if i%2 == 1 {
			assert.Equal(t, FaultGhostNode, res.Fault)
		} else {
			assert.True(t, res.OK())
		}
	}
}

func TestInsert_RejectsPreRename(t *testing.T) {
	h := New()
	_, err := h.Insert(pre("A", false, naming.RootName), SourceModule)
	assert.ErrorIs(t, err, ErrNotPostRename)
}

func TestClone_Independent(t *testing.T) {
	h := New()
	_, err := h.Insert(naming.NewClassInformation("i/A", false, "", nil, naming.TagPostRename), SourceCatalog)
	require.NoError(t, err)
	h.Freeze()

	c := h.Clone()
	assert.Equal(t, StateBuilding, c.State())
	_, err = c.Insert(naming.NewClassInformation("i/B", false, "i/A", nil, naming.TagPostRename), SourceCatalog)
	require.NoError(t, err)

	assert.Equal(t, 2, h.Len())
	assert.Equal(t, 3, c.Len())
	a, _ := h.Node("i/A")
	assert.Empty(t, a.Children())
}

func TestFault_Text(t *testing.T) {
	for f := FaultNone; f <= FaultUnreachableNodes; f++ {
		text, err := f.MarshalText()
		require.NoError(t, err)
		var back Fault
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, f, back)
	}
	var f Fault
	assert.Error(t, f.UnmarshalText([]byte("nope")))
	assert.Equal(t, `ghost-node-found("u/B")`, VerificationResult{Fault: FaultGhostNode, Name: "u/B"}.String())
}
