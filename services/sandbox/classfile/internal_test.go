// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package classfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstantPool_Dedup(t *testing.T) {
	p := NewConstantPool()

	a, err := p.AddUtf8("java/lang/String")
	require.NoError(t, err)
	b, err := p.AddUtf8("java/lang/String")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c1, err := p.AddClass("java/lang/String")
	require.NoError(t, err)
	c2, err := p.AddClass("java/lang/String")
	require.NoError(t, err)
	assert.Equal(t, c1, c2)

	n1, err := p.AddNameAndType("length", "()I")
	require.NoError(t, err)
	n2, err := p.AddNameAndType("length", "()I")
	require.NoError(t, err)
	assert.Equal(t, n1, n2)
	assert.Equal(t, 6, p.Count())
}

func TestConstantPool_SetKeepsIndexCurrent(t *testing.T) {
	p := NewConstantPool()
	cls, err := p.AddClass("a/B")
	require.NoError(t, err)
	renamed, err := p.AddUtf8("u/a/B")
	require.NoError(t, err)

	require.NoError(t, p.Set(cls, Constant{Tag: TagClass, A: renamed}))

	got, err := p.AddClass("u/a/B")
	require.NoError(t, err)
	assert.Equal(t, cls, got, "renamed class entry should be found")

	fresh, err := p.AddClass("a/B")
	require.NoError(t, err)
	assert.NotEqual(t, cls, fresh, "old name no longer maps to the renamed entry")

	name, err := p.ClassName(cls)
	require.NoError(t, err)
	assert.Equal(t, "u/a/B", name)
}

func TestConstantPool_SetRejectsWidthChange(t *testing.T) {
	p := NewConstantPool()
	i, err := p.AddUtf8("x")
	require.NoError(t, err)
	err = p.Set(i, Constant{Tag: TagLong})
	assert.ErrorIs(t, err, ErrWrongConstantKind)
}

func TestConstantPool_Overflow(t *testing.T) {
	p := &ConstantPool{entries: make([]Constant, MaxPoolCount-1)}
	_, err := p.Add(Constant{Tag: TagInteger})
	require.NoError(t, err)
	_, err = p.Add(Constant{Tag: TagInteger})
	assert.ErrorIs(t, err, ErrPoolOverflow)
}

func TestConstantPool_MemberRef(t *testing.T) {
	p := NewConstantPool()
	cls, _ := p.AddClass("java/util/List")
	nat, _ := p.AddNameAndType("size", "()I")
	ref, err := p.Add(Constant{Tag: TagInterfaceMethodref, A: cls, B: nat})
	require.NoError(t, err)

	got, err := p.MemberRef(ref)
	require.NoError(t, err)
	assert.Equal(t, MemberRef{
		Tag:        TagInterfaceMethodref,
		Owner:      "java/util/List",
		Name:       "size",
		Descriptor: "()I",
	}, got)

	_, err = p.MemberRef(cls)
	assert.ErrorIs(t, err, ErrWrongConstantKind)
	_, err = p.Get(0)
	assert.ErrorIs(t, err, ErrBadConstantIndex)
}

func TestDecodeInstructions(t *testing.T) {
	tests := []struct {
		name    string
		code    []byte
		lengths []int
		index   uint16
	}{
		{
			name:    "simple",
			code:    []byte{0x2a, 0xb7, 0x00, 0x05, 0xb1},
			lengths: []int{1, 3, 1},
			index:   5,
		},
		{
			name: "tableswitch padded from pc 0",
			code: append([]byte{
				0xaa, 0, 0, 0,
				0, 0, 0, 24,
				0, 0, 0, 0,
				0, 0, 0, 1,
				0, 0, 0, 24,
				0, 0, 0, 24,
			}, 0xb1),
			lengths: []int{24, 1},
		},
		{
			name: "lookupswitch padded from pc 1",
			code: []byte{
				0x00,
				0xab, 0, 0,
				0, 0, 0, 19,
				0, 0, 0, 1,
				0, 0, 0, 7, 0, 0, 0, 19,
				0xb1,
			},
			lengths: []int{1, 19, 1},
		},
		{
			name:    "wide iinc and iload",
			code:    []byte{0xc4, 0x84, 0x01, 0x00, 0x00, 0x05, 0xc4, 0x15, 0x01, 0x00, 0xb1},
			lengths: []int{6, 4, 1},
		},
		{
			name:    "ldc and invokeinterface",
			code:    []byte{0x12, 0x09, 0xb9, 0x00, 0x03, 0x01, 0x00, 0xb1},
			lengths: []int{2, 5, 1},
			index:   9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ins, err := DecodeInstructions(tt.code)
			require.NoError(t, err)
			var lengths []int
			for _, in := range ins {
				lengths = append(lengths, in.Length)
			}
			assert.Equal(t, tt.lengths, lengths)
			for _, in := range ins {
				if in.Kind != OperandNone {
					assert.Equal(t, tt.index, in.Index)
					break
				}
			}
		})
	}
}

func TestDecodeInstructions_OperandKinds(t *testing.T) {
	code := []byte{
		0xbb, 0x00, 0x01, // new
		0xb4, 0x00, 0x02, // getfield
		0xba, 0x00, 0x03, 0x00, 0x00, // invokedynamic
		0x14, 0x00, 0x04, // ldc2_w
		0xb1,
	}
	ins, err := DecodeInstructions(code)
	require.NoError(t, err)
	require.Len(t, ins, 5)

	assert.Equal(t, OperandClass, ins[0].Kind)
	assert.Equal(t, uint16(1), ins[0].Index)
	assert.Equal(t, OperandField, ins[1].Kind)
	assert.Equal(t, OperandInvokeDynamic, ins[2].Kind)
	assert.Equal(t, uint16(3), ins[2].Index)
	assert.Equal(t, OperandLoadable2, ins[3].Kind)
	assert.Equal(t, OperandNone, ins[4].Kind)
	assert.Equal(t, []Tag{TagClass}, OperandClass.Tags())
}

func TestDecodeInstructions_Faults(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want error
	}{
		{"undefined opcode", []byte{0xcb}, ErrBadOpcode},
		{"breakpoint", []byte{0xca}, ErrBadOpcode},
		{"truncated operand", []byte{0xb7, 0x00}, ErrTruncated},
		{"wide of non-local op", []byte{0xc4, 0xb1, 0, 0}, ErrBadOpcode},
		{"wide at end", []byte{0xc4}, ErrTruncated},
		{"tableswitch high below low", []byte{
			0xaa, 0, 0, 0,
			0, 0, 0, 0,
			0, 0, 0, 5,
			0, 0, 0, 1,
		}, ErrBadSwitch},
		{"lookupswitch negative pairs", []byte{
			0xab, 0, 0, 0,
			0, 0, 0, 0,
			0xff, 0xff, 0xff, 0xff,
		}, ErrBadSwitch},
		{"tableswitch range past code end", []byte{
			0xaa, 0, 0, 0,
			0, 0, 0, 0,
			0x80, 0, 0, 0,
			0x7f, 0xff, 0xff, 0xff,
		}, ErrTruncated},
		{"lookupswitch pairs past code end", []byte{
			0xab, 0, 0, 0,
			0, 0, 0, 0,
			0x7f, 0xff, 0xff, 0xff,
		}, ErrTruncated},
		{"tableswitch huge range", []byte{
			0xaa, 0, 0, 0,
			0, 0, 0, 0,
			0x80, 0, 0, 0,
			0x7f, 0xff, 0xff, 0xff,
		}, ErrTruncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeInstructions(tt.code)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
