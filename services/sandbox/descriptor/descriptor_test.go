// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package descriptor

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianSandbox/services/sandbox/naming"
)

func TestRewrite_Valid(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"primitive", "I", "I"},
		{"primitive array", "[[J", "[[J"},
		{"object", "Ljava/lang/String;", "Ls/java/lang/String;"},
		{"root", "Ljava/lang/Object;", "Li/ShadowObject;"},
		{"object array", "[Lcom/example/Token;", "[Lu/com/example/Token;"},
		{"void method", "()V", "()V"},
		{"mixed method", "(I[Ljava/lang/String;)V", "(I[Ls/java/lang/String;)V"},
		{"return object", "(JD)Ljava/util/List;", "(JD)Ls/java/util/List;"},
		{"already renamed", "(Li/ShadowObject;)Ls/java/lang/String;", "(Li/ShadowObject;)Ls/java/lang/String;"},
		{"api", "(Lorg/aleutian/sandbox/api/Runtime;)Z", "(La/Runtime;)Z"},
		{"many params", "(BCDFIJSZ[[Ljava/lang/Object;)[I", "(BCDFIJSZ[[Li/ShadowObject;)[I"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Rewrite(tt.in, naming.Rename)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			again, err := Rewrite(got, naming.Rename)
			require.NoError(t, err)
			assert.Equal(t, got, again, "rewrite must be idempotent")
		})
	}
}

func TestRewrite_Malformed(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"empty field", "", ErrEmpty},
		{"unterminated", "Ljava/lang/String", ErrUnterminatedReference},
		{"bad char", "Q", ErrUnexpectedCharacter},
		{"dangling array", "[", ErrUnexpectedEnd},
		{"void field", "V", ErrVoidParameter},
		{"void param", "(V)V", ErrVoidParameter},
		{"void array return", "()[V", ErrVoidParameter},
		{"missing return", "(I)", ErrUnexpectedEnd},
		{"unclosed params", "(I", ErrUnexpectedEnd},
		{"trailing field", "II", ErrTrailingData},
		{"trailing method", "()VV", ErrTrailingData},
		{"empty class", "L;", ErrInvalidClassName},
		{"dotted class", "Ljava.lang.String;", ErrInvalidClassName},
		{"empty segment", "La//b;", ErrInvalidClassName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Rewrite(tt.in, naming.Rename)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var derr *Error
			require.ErrorAs(t, err, &derr)
			assert.Equal(t, tt.in, derr.Descriptor)
		})
	}
}

func TestRewrite_ReportsPosition(t *testing.T) {
	_, err := RewriteMethod("(ILfoo)V", naming.Rename)
	var derr *Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 2, derr.Pos)
}

func TestRewrite_TooManyDimensions(t *testing.T) {
	in := make([]byte, MaxArrayDimensions+1)
	for i := range in {
		in[i] = '['
	}
	_, err := RewriteField(string(in)+"I", naming.Rename)
	assert.ErrorIs(t, err, ErrTooManyDimensions)

	ok, err := RewriteField(string(in[:MaxArrayDimensions])+"I", naming.Rename)
	require.NoError(t, err)
	assert.Len(t, ok, MaxArrayDimensions+1)
}

func TestRewrite_RenameCalledPerName(t *testing.T) {
	var seen []string
	rename := func(name string) string {
		seen = append(seen, name)
		return "x/" + name
	}

	got, err := RewriteMethod("(La;[Lb/C;I)Ld;", rename)
	require.NoError(t, err)
	assert.Equal(t, "(Lx/a;[Lx/b/C;I)Lx/d;", got)
	assert.Equal(t, []string{"a", "b/C", "d"}, seen)
}

func TestRewriteClassRef(t *testing.T) {
	got, err := RewriteClassRef("java/lang/String", naming.Rename)
	require.NoError(t, err)
	assert.Equal(t, "s/java/lang/String", got)

	got, err = RewriteClassRef("[Ljava/lang/Object;", naming.Rename)
	require.NoError(t, err)
	assert.Equal(t, "[Li/ShadowObject;", got)

	got, err = RewriteClassRef("[[I", naming.Rename)
	require.NoError(t, err)
	assert.Equal(t, "[[I", got)

	_, err = RewriteClassRef("Ljava/lang/String;", naming.Rename)
	assert.ErrorIs(t, err, ErrInvalidClassName)

	_, err = RewriteClassRef("", naming.Rename)
	assert.ErrorIs(t, err, naming.ErrEmptyName)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("(I[Ljava/lang/String;)V")
	require.NoError(t, err)

	want := Method{
		Params: []Type{
			{Base: 'I'},
			{Dims: 1, Base: 'L', ClassName: "java/lang/String"},
		},
		Return: Type{Base: 'V'},
	}
	if diff := cmp.Diff(want, m); diff != "" {
		t.Errorf("ParseMethod mismatch (-want +got):\n%s", diff)
	}
}

func TestParseField(t *testing.T) {
	ft, err := ParseField("[[Lcom/example/Token;")
	require.NoError(t, err)
	assert.Equal(t, Type{Dims: 2, Base: 'L', ClassName: "com/example/Token"}, ft)

	_, err = ParseField("()V")
	assert.ErrorIs(t, err, ErrUnexpectedCharacter)
}
