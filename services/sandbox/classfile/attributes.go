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
	"fmt"
	"math"
)

// Attribute names the pipeline inspects.
const (
	AttrCode                                 = "Code"
	AttrBootstrapMethods                     = "BootstrapMethods"
	AttrLocalVariableTable                   = "LocalVariableTable"
	AttrLocalVariableTypeTable               = "LocalVariableTypeTable"
	AttrSignature                            = "Signature"
	AttrEnclosingMethod                      = "EnclosingMethod"
	AttrSourceDebugExtension                 = "SourceDebugExtension"
	AttrRuntimeVisibleAnnotations            = "RuntimeVisibleAnnotations"
	AttrRuntimeInvisibleAnnotations          = "RuntimeInvisibleAnnotations"
	AttrRuntimeVisibleParameterAnnotations   = "RuntimeVisibleParameterAnnotations"
	AttrRuntimeInvisibleParameterAnnotations = "RuntimeInvisibleParameterAnnotations"
	AttrRuntimeVisibleTypeAnnotations        = "RuntimeVisibleTypeAnnotations"
	AttrRuntimeInvisibleTypeAnnotations      = "RuntimeInvisibleTypeAnnotations"
	AttrAnnotationDefault                    = "AnnotationDefault"
	AttrRecord                               = "Record"
	AttrSourceFile                           = "SourceFile"
)

// ExceptionHandler is one exception_table entry. CatchType is zero for a
// catch-all handler.
type ExceptionHandler struct {
	StartPC   uint16
	EndPC     uint16
	HandlerPC uint16
	CatchType uint16
}

// Code is a decoded Code attribute.
type Code struct {
	MaxStack       uint16
	MaxLocals      uint16
	Bytecode       []byte
	ExceptionTable []ExceptionHandler
	Attributes     []Attribute
}

// ParseCode decodes a Code attribute payload.
func ParseCode(info []byte) (*Code, error) {
	r := &reader{data: info}
	c := &Code{
		MaxStack:  r.u2(),
		MaxLocals: r.u2(),
	}
	length := r.u4()
	if r.err == nil && (length == 0 || length > math.MaxUint16) {
		return nil, fmt.Errorf("%w: code length %d", ErrBadAttribute, length)
	}
	c.Bytecode = r.bytes(int(length))
	n := int(r.u2())
	if r.need(8 * n) {
		c.ExceptionTable = make([]ExceptionHandler, n)
		for i := range c.ExceptionTable {
			c.ExceptionTable[i] = ExceptionHandler{
				StartPC:   r.u2(),
				EndPC:     r.u2(),
				HandlerPC: r.u2(),
				CatchType: r.u2(),
			}
		}
	}
	c.Attributes = parseAttributes(r)
	if err := finish(r, AttrCode); err != nil {
		return nil, err
	}
	return c, nil
}

// Encode serializes c as a Code attribute payload.
func (c *Code) Encode() ([]byte, error) {
	w := &writer{}
	w.u2(c.MaxStack)
	w.u2(c.MaxLocals)
	if len(c.Bytecode) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: code length %d", ErrTooLarge, len(c.Bytecode))
	}
	w.u4(uint32(len(c.Bytecode)))
	w.buf.Write(c.Bytecode)
	w.count(len(c.ExceptionTable), "exception_table")
	for _, h := range c.ExceptionTable {
		w.u2(h.StartPC)
		w.u2(h.EndPC)
		w.u2(h.HandlerPC)
		w.u2(h.CatchType)
	}
	writeAttributes(w, c.Attributes)
	if w.err != nil {
		return nil, w.err
	}
	return w.buf.Bytes(), nil
}

// BootstrapMethod is one BootstrapMethods entry: a MethodHandle index and
// its static argument indices.
type BootstrapMethod struct {
	MethodRef uint16
	Args      []uint16
}

// ParseBootstrapMethods decodes a BootstrapMethods attribute payload.
func ParseBootstrapMethods(info []byte) ([]BootstrapMethod, error) {
	r := &reader{data: info}
	n := int(r.u2())
	out := make([]BootstrapMethod, 0, min(n, 256))
	for i := 0; i < n && r.err == nil; i++ {
		bm := BootstrapMethod{MethodRef: r.u2()}
		argc := int(r.u2())
		if r.need(2 * argc) {
			bm.Args = make([]uint16, argc)
			for j := range bm.Args {
				bm.Args[j] = r.u2()
			}
		}
		out = append(out, bm)
	}
	if err := finish(r, AttrBootstrapMethods); err != nil {
		return nil, err
	}
	return out, nil
}

// EncodeBootstrapMethods serializes a BootstrapMethods attribute payload.
func EncodeBootstrapMethods(bms []BootstrapMethod) ([]byte, error) {
	w := &writer{}
	w.count(len(bms), "bootstrap_methods")
	for _, bm := range bms {
		w.u2(bm.MethodRef)
		w.count(len(bm.Args), "bootstrap_arguments")
		for _, a := range bm.Args {
			w.u2(a)
		}
	}
	if w.err != nil {
		return nil, w.err
	}
	return w.buf.Bytes(), nil
}

// LocalVariable is one LocalVariableTable entry.
type LocalVariable struct {
	StartPC         uint16
	Length          uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Index           uint16
}

// ParseLocalVariableTable decodes a LocalVariableTable attribute payload.
func ParseLocalVariableTable(info []byte) ([]LocalVariable, error) {
	r := &reader{data: info}
	n := int(r.u2())
	var out []LocalVariable
	if r.need(10 * n) {
		out = make([]LocalVariable, n)
		for i := range out {
			out[i] = LocalVariable{
				StartPC:         r.u2(),
				Length:          r.u2(),
				NameIndex:       r.u2(),
				DescriptorIndex: r.u2(),
				Index:           r.u2(),
			}
		}
	}
	if err := finish(r, AttrLocalVariableTable); err != nil {
		return nil, err
	}
	return out, nil
}

// EncodeLocalVariableTable serializes a LocalVariableTable payload.
func EncodeLocalVariableTable(vars []LocalVariable) ([]byte, error) {
	w := &writer{}
	w.count(len(vars), "local_variable_table")
	for _, v := range vars {
		w.u2(v.StartPC)
		w.u2(v.Length)
		w.u2(v.NameIndex)
		w.u2(v.DescriptorIndex)
		w.u2(v.Index)
	}
	if w.err != nil {
		return nil, w.err
	}
	return w.buf.Bytes(), nil
}

// finish converts reader state into an attribute error, rejecting
// trailing bytes.
func finish(r *reader, name string) error {
	if r.err != nil {
		return fmt.Errorf("%w: %s at %d: %v", ErrBadAttribute, name, r.at, r.err)
	}
	if r.pos != len(r.data) {
		return fmt.Errorf("%w: %s has %d trailing bytes", ErrBadAttribute, name, len(r.data)-r.pos)
	}
	return nil
}

// FindAttribute returns the index of the first attribute named name, or
// -1.
func (cf *ClassFile) FindAttribute(as []Attribute, name string) int {
	for i, a := range as {
		if n, err := cf.Pool.Utf8(a.NameIndex); err == nil && n == name {
			return i
		}
	}
	return -1
}
