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
	"encoding/binary"
	"fmt"
)

// Opcodes with constant pool operands, plus the variable-length forms.
const (
	OpLdc             byte = 0x12
	OpLdcW            byte = 0x13
	OpLdc2W           byte = 0x14
	OpTableSwitch     byte = 0xaa
	OpLookupSwitch    byte = 0xab
	OpGetStatic       byte = 0xb2
	OpPutStatic       byte = 0xb3
	OpGetField        byte = 0xb4
	OpPutField        byte = 0xb5
	OpInvokeVirtual   byte = 0xb6
	OpInvokeSpecial   byte = 0xb7
	OpInvokeStatic    byte = 0xb8
	OpInvokeInterface byte = 0xb9
	OpInvokeDynamic   byte = 0xba
	OpNew             byte = 0xbb
	OpANewArray       byte = 0xbd
	OpCheckCast       byte = 0xc0
	OpInstanceOf      byte = 0xc1
	OpWide            byte = 0xc4
	OpMultiANewArray  byte = 0xc5
	OpIinc            byte = 0x84
	OpRet             byte = 0xa9
)

// OperandKind describes what a constant pool operand must refer to.
type OperandKind int

const (
	// OperandNone means the instruction has no pool operand.
	OperandNone OperandKind = iota

	// OperandClass is a Class entry (new, anewarray, checkcast, instanceof,
	// multianewarray).
	OperandClass

	// OperandField is a Fieldref.
	OperandField

	// OperandMethod is a Methodref or, from version 52, an
	// InterfaceMethodref (invokevirtual, invokespecial, invokestatic).
	OperandMethod

	// OperandInterfaceMethod is an InterfaceMethodref (invokeinterface).
	OperandInterfaceMethod

	// OperandInvokeDynamic is an InvokeDynamic entry.
	OperandInvokeDynamic

	// OperandLoadable is a single-slot loadable constant (ldc, ldc_w).
	OperandLoadable

	// OperandLoadable2 is a Long, Double or Dynamic constant (ldc2_w).
	OperandLoadable2
)

// Tags returns the constant tags acceptable for k.
func (k OperandKind) Tags() []Tag {
	switch k {
	case OperandClass:
		return []Tag{TagClass}
	case OperandField:
		return []Tag{TagFieldref}
	case OperandMethod:
		return []Tag{TagMethodref, TagInterfaceMethodref}
	case OperandInterfaceMethod:
		return []Tag{TagInterfaceMethodref}
	case OperandInvokeDynamic:
		return []Tag{TagInvokeDynamic}
	case OperandLoadable:
		return []Tag{TagInteger, TagFloat, TagString, TagClass, TagMethodType, TagMethodHandle, TagDynamic}
	case OperandLoadable2:
		return []Tag{TagLong, TagDouble, TagDynamic}
	default:
		return nil
	}
}

// Instruction is one decoded instruction.
type Instruction struct {
	// Offset is the instruction's byte offset in the method body.
	Offset int

	// Opcode is the instruction's opcode. For wide forms it is the
	// modified opcode and Wide is set.
	Opcode byte

	// Wide is set for instructions prefixed by the wide opcode.
	Wide bool

	// Length is the encoded length in bytes, padding included.
	Length int

	// Index is the constant pool operand when Kind is not OperandNone.
	Index uint16

	// Kind describes the pool operand.
	Kind OperandKind
}

// opLength holds fixed instruction lengths. 0 marks an undefined opcode;
// -1 marks a variable-length form.
var opLength [256]int8

// opKind holds the pool operand kind per opcode.
var opKind [256]OperandKind

func init() {
	set := func(lo, hi byte, n int8) {
		for op := int(lo); op <= int(hi); op++ {
			opLength[op] = n
		}
	}
	set(0x00, 0x0f, 1)
	set(0x10, 0x10, 2)
	set(0x11, 0x11, 3)
	set(0x12, 0x12, 2)
	set(0x13, 0x14, 3)
	set(0x15, 0x19, 2)
	set(0x1a, 0x35, 1)
	set(0x36, 0x3a, 2)
	set(0x3b, 0x83, 1)
	set(0x84, 0x84, 3)
	set(0x85, 0x98, 1)
	set(0x99, 0xa8, 3)
	set(0xa9, 0xa9, 2)
	set(0xaa, 0xab, -1)
	set(0xac, 0xb1, 1)
	set(0xb2, 0xb8, 3)
	set(0xb9, 0xba, 5)
	set(0xbb, 0xbb, 3)
	set(0xbc, 0xbc, 2)
	set(0xbd, 0xbd, 3)
	set(0xbe, 0xbf, 1)
	set(0xc0, 0xc1, 3)
	set(0xc2, 0xc3, 1)
	set(0xc4, 0xc4, -1)
	set(0xc5, 0xc5, 4)
	set(0xc6, 0xc7, 3)
	set(0xc8, 0xc9, 5)

	for _, op := range []byte{OpNew, OpANewArray, OpCheckCast, OpInstanceOf, OpMultiANewArray} {
		opKind[op] = OperandClass
	}
	for _, op := range []byte{OpGetStatic, OpPutStatic, OpGetField, OpPutField} {
		opKind[op] = OperandField
	}
	for _, op := range []byte{OpInvokeVirtual, OpInvokeSpecial, OpInvokeStatic} {
		opKind[op] = OperandMethod
	}
	opKind[OpInvokeInterface] = OperandInterfaceMethod
	opKind[OpInvokeDynamic] = OperandInvokeDynamic
	opKind[OpLdc] = OperandLoadable
	opKind[OpLdcW] = OperandLoadable
	opKind[OpLdc2W] = OperandLoadable2
}

// DecodeInstructions splits a method body into instructions.
//
// Description:
//
//	Walks the bytecode once using the fixed length table, computing
//	tableswitch/lookupswitch padding relative to the start of code and
//	expanding wide forms. Only lengths and pool operands are decoded;
//	branch targets are not interpreted.
//
// Outputs:
//
//	[]Instruction - Instructions in offset order.
//	error - ErrBadOpcode, ErrBadSwitch or ErrTruncated.
func DecodeInstructions(code []byte) ([]Instruction, error) {
	out := make([]Instruction, 0, len(code)/2)
	for pc := 0; pc < len(code); {
		ins, err := decodeAt(code, pc)
		if err != nil {
			return nil, fmt.Errorf("pc %d: %w", pc, err)
		}
		out = append(out, ins)
		pc += ins.Length
	}
	return out, nil
}

func decodeAt(code []byte, pc int) (Instruction, error) {
	op := code[pc]
	ins := Instruction{Offset: pc, Opcode: op, Kind: opKind[op]}

	switch n := opLength[op]; {
	case n > 0:
		ins.Length = int(n)
	case n == 0:
		return ins, fmt.Errorf("%w: 0x%02x", ErrBadOpcode, op)
	case op == OpWide:
		if pc+1 >= len(code) {
			return ins, ErrTruncated
		}
		ins.Opcode = code[pc+1]
		ins.Wide = true
		switch {
		case ins.Opcode == OpIinc:
			ins.Length = 6
		case ins.Opcode >= 0x15 && ins.Opcode <= 0x19,
			ins.Opcode >= 0x36 && ins.Opcode <= 0x3a,
			ins.Opcode == OpRet:
			ins.Length = 4
		default:
			return ins, fmt.Errorf("%w: wide 0x%02x", ErrBadOpcode, ins.Opcode)
		}
	default:
		length, err := switchLength(code, pc)
		if err != nil {
			return ins, err
		}
		ins.Length = length
	}

	if pc+ins.Length > len(code) {
		return ins, ErrTruncated
	}
	switch ins.Kind {
	case OperandNone:
	case OperandLoadable:
		if op == OpLdc {
			ins.Index = uint16(code[pc+1])
		} else {
			ins.Index = binary.BigEndian.Uint16(code[pc+1:])
		}
	default:
		ins.Index = binary.BigEndian.Uint16(code[pc+1:])
	}
	return ins, nil
}

// switchLength computes the length of a tableswitch or lookupswitch at pc.
func switchLength(code []byte, pc int) (int, error) {
	pad := (4 - (pc+1)%4) % 4
	base := pc + 1 + pad
	i32 := func(at int) (int64, bool) {
		if at+4 > len(code) {
			return 0, false
		}
		return int64(int32(binary.BigEndian.Uint32(code[at:]))), true
	}

	if code[pc] == OpTableSwitch {
		low, ok1 := i32(base + 4)
		high, ok2 := i32(base + 8)
		if !ok1 || !ok2 {
			return 0, ErrTruncated
		}
		if high < low {
			return 0, fmt.Errorf("%w: tableswitch high %d < low %d", ErrBadSwitch, high, low)
		}
		n := int64(1+pad+12) + 4*(high-low+1)
		if n > int64(len(code)-pc) {
			return 0, ErrTruncated
		}
		return int(n), nil
	}

	npairs, ok := i32(base + 4)
	if !ok {
		return 0, ErrTruncated
	}
	if npairs < 0 {
		return 0, fmt.Errorf("%w: lookupswitch npairs %d", ErrBadSwitch, npairs)
	}
	n := int64(1+pad+8) + 8*npairs
	if n > int64(len(code)-pc) {
		return 0, ErrTruncated
	}
	return int(n), nil
}
