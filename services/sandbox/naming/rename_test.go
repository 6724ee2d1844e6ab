// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package naming

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRename_Rules(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"universal base", "java/lang/Object", "i/ShadowObject"},
		{"exception base", "java/lang/Throwable", "i/ShadowThrowable"},
		{"platform lang", "java/lang/String", "s/java/lang/String"},
		{"platform util", "java/util/ArrayList", "s/java/util/ArrayList"},
		{"platform nested", "java/util/Map$Entry", "s/java/util/Map$Entry"},
		{"platform math", "java/math/BigInteger", "s/java/math/BigInteger"},
		{"platform invoke", "java/lang/invoke/LambdaMetafactory", "s/java/lang/invoke/LambdaMetafactory"},
		{"api", "org/aleutian/sandbox/api/Runtime", "a/Runtime"},
		{"api nested package", "org/aleutian/sandbox/api/crypto/Hash", "a/crypto/Hash"},
		{"user", "com/example/Token", "u/com/example/Token"},
		{"user default package", "Main", "u/Main"},
		{"java but not platform", "java/net/Socket", "u/java/net/Socket"},
		{"api lookalike", "org/aleutian/sandbox/Other", "u/org/aleutian/sandbox/Other"},
		{"already shadow", "s/java/lang/String", "s/java/lang/String"},
		{"already user", "u/Main", "u/Main"},
		{"wrapper", "w/IntArray", "w/IntArray"},
		{"internal", "i/IObject", "i/IObject"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Rename(tt.in))
		})
	}
}

func TestRename_Idempotent(t *testing.T) {
	names := []string{
		"java/lang/Object", "java/lang/Throwable", "java/lang/Exception",
		"java/util/List", "java/io/Serializable", "org/aleutian/sandbox/api/Runtime",
		"Main", "a/b/C", "a/b/C$Inner", "s/x", "u/y", "i/z", "w/IntArray", "a/Runtime",
		"java/lang", "javax/crypto/Cipher", "p/Thing",
	}
	for _, name := range names {
		once := Rename(name)
		assert.Equal(t, once, Rename(once), "rename(rename(%q))", name)
		assert.True(t, IsPostRename(once), "%q should rename into the sandbox namespace", name)
	}
}

func TestRename_PanicsOnMalformed(t *testing.T) {
	for _, name := range []string{"", "java.lang.Object", "[I", "Lfoo;", "/a", "a/", "a//b", "<init>"} {
		t.Run(name, func(t *testing.T) {
			assert.Panics(t, func() { Rename(name) })
		})
	}
}

func TestValidateInternalName(t *testing.T) {
	require.NoError(t, ValidateInternalName("a/b/C$1"))
	assert.ErrorIs(t, ValidateInternalName(""), ErrEmptyName)
	assert.ErrorIs(t, ValidateInternalName("a.b"), ErrIllegalCharacter)
	assert.ErrorIs(t, ValidateInternalName("a;"), ErrIllegalCharacter)
	assert.ErrorIs(t, ValidateInternalName("a//b"), ErrEmptySegment)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, CategoryPlatformBase, Classify("java/lang/Object"))
	assert.Equal(t, CategoryPlatformBase, Classify("java/lang/Throwable"))
	assert.Equal(t, CategoryPlatform, Classify("java/lang/Integer"))
	assert.Equal(t, CategoryAPI, Classify("org/aleutian/sandbox/api/Runtime"))
	assert.Equal(t, CategoryUser, Classify("com/example/Foo"))
	assert.Equal(t, CategoryPostRename, Classify("u/Foo"))
	assert.Equal(t, "platform_base", CategoryPlatformBase.String())
}

func TestMemberName(t *testing.T) {
	tests := []struct {
		name     string
		owner    string
		member   string
		isMethod bool
		want     string
	}{
		{"platform method", "s/java/lang/String", "length", true, "sbx_length"},
		{"shadow base method", "i/ShadowObject", "hashCode", true, "sbx_hashCode"},
		{"platform constructor", "s/java/util/ArrayList", "<init>", true, "<init>"},
		{"platform static init", "s/java/lang/Integer", "<clinit>", true, "<clinit>"},
		{"platform field", "s/java/lang/Integer", "MAX_VALUE", false, "MAX_VALUE"},
		{"user method", "u/com/example/Foo", "run", true, "run"},
		{"api method", "a/Runtime", "getBalance", true, "getBalance"},
		{"array owner", "[I", "clone", true, "clone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MemberName(tt.owner, tt.member, tt.isMethod))
		})
	}
}

func TestRenameClassInformation(t *testing.T) {
	type view struct {
		Name        string
		IsInterface bool
		Super       string
		HasSuper    bool
		Interfaces  []string
		Tag         Tag
	}
	toView := func(c ClassInformation) view {
		s, ok := c.SuperClassName()
		return view{c.Name(), c.IsInterface(), s, ok, c.InterfaceNames(), c.Tag()}
	}

	tests := []struct {
		name string
		in   ClassInformation
		want view
	}{
		{
			name: "class under root",
			in:   NewClassInformation("Root", false, RootName, nil, TagPreRename),
			want: view{"u/Root", false, ShadowObjectName, true, []string{}, TagPostRename},
		},
		{
			name: "interface under root loses superclass",
			in:   NewClassInformation("I", true, RootName, []string{"java/lang/Comparable"}, TagPreRename),
			want: view{"u/I", true, "", false, []string{"s/java/lang/Comparable"}, TagPostRename},
		},
		{
			name: "interface with concrete superclass keeps it",
			in:   NewClassInformation("I", true, "C", nil, TagPreRename),
			want: view{"u/I", true, "u/C", true, []string{}, TagPostRename},
		},
		{
			name: "exception subclass",
			in:   NewClassInformation("app/Boom", false, "java/lang/RuntimeException", nil, TagPreRename),
			want: view{"u/app/Boom", false, "s/java/lang/RuntimeException", true, []string{}, TagPostRename},
		},
		{
			name: "throwable subclass uses dedicated base",
			in:   NewClassInformation("app/Odd", false, ThrowableName, nil, TagPreRename),
			want: view{"u/app/Odd", false, ShadowThrowableName, true, []string{}, TagPostRename},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toView(RenameClassInformation(tt.in))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("RenameClassInformation mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRenameClassInformation_DoesNotMutateInput(t *testing.T) {
	ifaces := []string{"java/lang/Runnable"}
	in := NewClassInformation("Task", false, RootName, ifaces, TagPreRename)
	ifaces[0] = "tampered"

	out := RenameClassInformation(in)

	assert.Equal(t, []string{"java/lang/Runnable"}, in.InterfaceNames())
	assert.Equal(t, "Task", in.Name())
	assert.Equal(t, []string{"s/java/lang/Runnable"}, out.InterfaceNames())
	assert.Equal(t, out, RenameClassInformation(out))
}
