// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package classtest assembles class-file fixtures for tests.
//
// Builders panic on any encoding error; they are only for constructing
// known-good (or deliberately broken) inputs in tests.
package classtest

import (
	"encoding/binary"
	"fmt"

	"github.com/AleutianAI/AleutianSandbox/services/sandbox/classfile"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/naming"
)

// DefaultMajorVersion is the class-file version used by New (JDK 17).
const DefaultMajorVersion = 61

// Class builds one class file.
type Class struct {
	cf        *classfile.ClassFile
	bootstrap []classfile.BootstrapMethod
}

// New starts a public class named name extending the universal base type.
func New(name string) *Class {
	c := &Class{cf: &classfile.ClassFile{
		MajorVersion: DefaultMajorVersion,
		Pool:         classfile.NewConstantPool(),
		AccessFlags:  classfile.AccPublic | classfile.AccSuper,
	}}
	c.cf.ThisClass = c.ClassRef(name)
	c.cf.SuperClass = c.ClassRef(naming.RootName)
	return c
}

// Super sets the superclass. An empty name clears it.
func (c *Class) Super(name string) *Class {
	if name == "" {
		c.cf.SuperClass = 0
		return c
	}
	c.cf.SuperClass = c.ClassRef(name)
	return c
}

// Interface marks the class as an interface.
func (c *Class) Interface() *Class {
	c.cf.AccessFlags = classfile.AccPublic | classfile.AccInterface | classfile.AccAbstract
	return c
}

// Implements appends declared interfaces.
func (c *Class) Implements(names ...string) *Class {
	for _, n := range names {
		c.cf.Interfaces = append(c.cf.Interfaces, c.ClassRef(n))
	}
	return c
}

// Field declares a field.
func (c *Class) Field(name, desc string, attrs ...classfile.Attribute) *Class {
	c.cf.Fields = append(c.cf.Fields, classfile.Member{
		AccessFlags:     classfile.AccPublic,
		NameIndex:       c.Utf8(name),
		DescriptorIndex: c.Utf8(desc),
		Attributes:      attrs,
	})
	return c
}

// Method declares a method. A nil body declares an abstract method.
func (c *Class) Method(name, desc string, body func(*Code)) *Class {
	m := classfile.Member{
		AccessFlags:     classfile.AccPublic,
		NameIndex:       c.Utf8(name),
		DescriptorIndex: c.Utf8(desc),
	}
	if body == nil {
		m.AccessFlags |= classfile.AccAbstract
	} else {
		code := &Code{class: c, maxStack: 8, maxLocals: 8}
		body(code)
		m.Attributes = append(m.Attributes, code.attribute())
	}
	c.cf.Methods = append(c.cf.Methods, m)
	return c
}

// Attribute appends a class-level attribute.
func (c *Class) Attribute(name string, info []byte) *Class {
	c.cf.Attributes = append(c.cf.Attributes, Attr(c, name, info))
	return c
}

// Attr builds a raw attribute whose name lives in c's pool.
func Attr(c *Class, name string, info []byte) classfile.Attribute {
	return classfile.Attribute{NameIndex: c.Utf8(name), Info: info}
}

// Utf8 interns s.
func (c *Class) Utf8(s string) uint16 {
	return must(c.cf.Pool.AddUtf8(s))
}

// ClassRef interns a Class entry.
func (c *Class) ClassRef(name string) uint16 {
	return must(c.cf.Pool.AddClass(name))
}

// String appends a String constant.
func (c *Class) String(s string) uint16 {
	return must(c.cf.Pool.Add(classfile.Constant{Tag: classfile.TagString, A: c.Utf8(s)}))
}

// Long appends a Long constant.
func (c *Class) Long(v int64) uint16 {
	return must(c.cf.Pool.Add(classfile.Constant{Tag: classfile.TagLong, Bits: uint64(v)}))
}

// MemberRef appends a field or method reference.
func (c *Class) MemberRef(tag classfile.Tag, owner, name, desc string) uint16 {
	return must(c.cf.Pool.Add(classfile.Constant{
		Tag: tag,
		A:   c.ClassRef(owner),
		B:   must(c.cf.Pool.AddNameAndType(name, desc)),
	}))
}

// MethodType appends a MethodType constant.
func (c *Class) MethodType(desc string) uint16 {
	return must(c.cf.Pool.Add(classfile.Constant{Tag: classfile.TagMethodType, A: c.Utf8(desc)}))
}

// Handle appends a MethodHandle constant over a new member reference.
func (c *Class) Handle(kind uint8, tag classfile.Tag, owner, name, desc string) uint16 {
	ref := c.MemberRef(tag, owner, name, desc)
	return must(c.cf.Pool.Add(classfile.Constant{Tag: classfile.TagMethodHandle, Kind: kind, A: ref}))
}

// Bootstrap registers a bootstrap method and returns its table index.
func (c *Class) Bootstrap(handle uint16, args ...uint16) uint16 {
	c.bootstrap = append(c.bootstrap, classfile.BootstrapMethod{MethodRef: handle, Args: args})
	return uint16(len(c.bootstrap) - 1)
}

// Dynamic appends a Dynamic or InvokeDynamic constant.
func (c *Class) Dynamic(tag classfile.Tag, bsm uint16, name, desc string) uint16 {
	return must(c.cf.Pool.Add(classfile.Constant{
		Tag: tag,
		A:   bsm,
		B:   must(c.cf.Pool.AddNameAndType(name, desc)),
	}))
}

// Build returns the assembled ClassFile.
func (c *Class) Build() *classfile.ClassFile {
	out := c.cf.Clone()
	if len(c.bootstrap) > 0 {
		info := must(classfile.EncodeBootstrapMethods(c.bootstrap))
		out.Attributes = append(out.Attributes, classfile.Attribute{
			NameIndex: must(out.Pool.AddUtf8(classfile.AttrBootstrapMethods)),
			Info:      info,
		})
	}
	return out
}

// Bytes returns the encoded class file.
func (c *Class) Bytes() []byte {
	return must(classfile.Encode(c.Build()))
}

// Code assembles a method body.
type Code struct {
	class     *Class
	buf       []byte
	handlers  []classfile.ExceptionHandler
	extra     []classfile.Attribute
	maxStack  uint16
	maxLocals uint16
}

// PC returns the current offset.
func (b *Code) PC() uint16 { return uint16(len(b.buf)) }

// Op appends raw bytes.
func (b *Code) Op(bs ...byte) *Code {
	b.buf = append(b.buf, bs...)
	return b
}

func (b *Code) op2(op byte, idx uint16) *Code {
	b.buf = append(b.buf, op)
	b.buf = binary.BigEndian.AppendUint16(b.buf, idx)
	return b
}

// New emits new.
func (b *Code) New(class string) *Code {
	return b.op2(classfile.OpNew, b.class.ClassRef(class))
}

// CheckCast emits checkcast.
func (b *Code) CheckCast(class string) *Code {
	return b.op2(classfile.OpCheckCast, b.class.ClassRef(class))
}

// InstanceOf emits instanceof.
func (b *Code) InstanceOf(class string) *Code {
	return b.op2(classfile.OpInstanceOf, b.class.ClassRef(class))
}

// ANewArray emits anewarray.
func (b *Code) ANewArray(class string) *Code {
	return b.op2(classfile.OpANewArray, b.class.ClassRef(class))
}

// MultiANewArray emits multianewarray.
func (b *Code) MultiANewArray(desc string, dims byte) *Code {
	b.op2(classfile.OpMultiANewArray, b.class.ClassRef(desc))
	b.buf = append(b.buf, dims)
	return b
}

// GetField emits getfield.
func (b *Code) GetField(owner, name, desc string) *Code {
	return b.op2(classfile.OpGetField, b.class.MemberRef(classfile.TagFieldref, owner, name, desc))
}

// GetStatic emits getstatic.
func (b *Code) GetStatic(owner, name, desc string) *Code {
	return b.op2(classfile.OpGetStatic, b.class.MemberRef(classfile.TagFieldref, owner, name, desc))
}

// InvokeVirtual emits invokevirtual.
func (b *Code) InvokeVirtual(owner, name, desc string) *Code {
	return b.op2(classfile.OpInvokeVirtual, b.class.MemberRef(classfile.TagMethodref, owner, name, desc))
}

// InvokeSpecial emits invokespecial.
func (b *Code) InvokeSpecial(owner, name, desc string) *Code {
	return b.op2(classfile.OpInvokeSpecial, b.class.MemberRef(classfile.TagMethodref, owner, name, desc))
}

// InvokeStatic emits invokestatic.
func (b *Code) InvokeStatic(owner, name, desc string) *Code {
	return b.op2(classfile.OpInvokeStatic, b.class.MemberRef(classfile.TagMethodref, owner, name, desc))
}

// InvokeInterface emits invokeinterface.
func (b *Code) InvokeInterface(owner, name, desc string, count byte) *Code {
	b.op2(classfile.OpInvokeInterface, b.class.MemberRef(classfile.TagInterfaceMethodref, owner, name, desc))
	b.buf = append(b.buf, count, 0)
	return b
}

// InvokeDynamic emits invokedynamic against bootstrap method bsm.
func (b *Code) InvokeDynamic(bsm uint16, name, desc string) *Code {
	b.op2(classfile.OpInvokeDynamic, b.class.Dynamic(classfile.TagInvokeDynamic, bsm, name, desc))
	b.buf = append(b.buf, 0, 0)
	return b
}

// LdcW emits ldc_w for an existing pool index.
func (b *Code) LdcW(idx uint16) *Code {
	return b.op2(classfile.OpLdcW, idx)
}

// LdcClass emits ldc_w of a class literal.
func (b *Code) LdcClass(class string) *Code {
	return b.LdcW(b.class.ClassRef(class))
}

// LdcString emits ldc_w of a string literal.
func (b *Code) LdcString(s string) *Code {
	return b.LdcW(b.class.String(s))
}

// Ldc2W emits ldc2_w for an existing pool index.
func (b *Code) Ldc2W(idx uint16) *Code {
	return b.op2(classfile.OpLdc2W, idx)
}

// Catch adds an exception handler. An empty class adds a catch-all.
func (b *Code) Catch(start, end, handler uint16, class string) *Code {
	h := classfile.ExceptionHandler{StartPC: start, EndPC: end, HandlerPC: handler}
	if class != "" {
		h.CatchType = b.class.ClassRef(class)
	}
	b.handlers = append(b.handlers, h)
	return b
}

// Local records a LocalVariableTable entry spanning the whole body. Call
// after the body is complete.
func (b *Code) Local(slot uint16, name, desc string) *Code {
	info := must(classfile.EncodeLocalVariableTable([]classfile.LocalVariable{{
		Length:          b.PC(),
		NameIndex:       b.class.Utf8(name),
		DescriptorIndex: b.class.Utf8(desc),
		Index:           slot,
	}}))
	b.extra = append(b.extra, Attr(b.class, classfile.AttrLocalVariableTable, info))
	return b
}

// Return emits return.
func (b *Code) Return() *Code { return b.Op(0xb1) }

// AReturn emits areturn.
func (b *Code) AReturn() *Code { return b.Op(0xb0) }

// Pop emits pop.
func (b *Code) Pop() *Code { return b.Op(0x57) }

// ALoad0 emits aload_0.
func (b *Code) ALoad0() *Code { return b.Op(0x2a) }

// Dup emits dup.
func (b *Code) Dup() *Code { return b.Op(0x59) }

func (b *Code) attribute() classfile.Attribute {
	code := &classfile.Code{
		MaxStack:       b.maxStack,
		MaxLocals:      b.maxLocals,
		Bytecode:       b.buf,
		ExceptionTable: b.handlers,
		Attributes:     b.extra,
	}
	return Attr(b.class, classfile.AttrCode, must(code.Encode()))
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(fmt.Sprintf("classtest: %v", err))
	}
	return v
}
