// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package classfile reads and writes compiled JVM class artifacts.
//
// Parse validates the binary layout and the constant pool's internal
// references, then exposes a mutable ClassFile. Attribute payloads are kept
// as raw bytes; Code, BootstrapMethods and LocalVariableTable have typed
// codecs for the stages that need to look inside them. Encode writes the
// structure back out unchanged in layout.
package classfile

import (
	"fmt"
	"slices"

	"github.com/AleutianAI/AleutianSandbox/services/sandbox/naming"
)

// Magic is the class-file signature.
const Magic uint32 = 0xCAFEBABE

// Supported major versions (JDK 1.1 through JDK 25).
const (
	MinMajorVersion = 45
	MaxMajorVersion = 69
)

// Access flags used by the pipeline.
const (
	AccPublic     uint16 = 0x0001
	AccStatic     uint16 = 0x0008
	AccFinal      uint16 = 0x0010
	AccSuper      uint16 = 0x0020
	AccInterface  uint16 = 0x0200
	AccAbstract   uint16 = 0x0400
	AccSynthetic  uint16 = 0x1000
	AccAnnotation uint16 = 0x2000
	AccEnum       uint16 = 0x4000
	AccModule     uint16 = 0x8000
)

// Attribute is a raw attribute: a Utf8 name index and its payload.
// Payloads are never modified in place; replace the slice instead.
type Attribute struct {
	NameIndex uint16
	Info      []byte
}

// Member is a field or method declaration.
type Member struct {
	AccessFlags     uint16
	NameIndex       uint16
	DescriptorIndex uint16
	Attributes      []Attribute
}

// ClassFile is the structured form of one class artifact. Indices refer to
// Pool.
type ClassFile struct {
	MinorVersion uint16
	MajorVersion uint16
	Pool         *ConstantPool
	AccessFlags  uint16
	ThisClass    uint16
	SuperClass   uint16
	Interfaces   []uint16
	Fields       []Member
	Methods      []Member
	Attributes   []Attribute
}

// MemberInfo is the name and descriptor of one declared member.
type MemberInfo struct {
	Name       string `json:"name" yaml:"name"`
	Descriptor string `json:"descriptor" yaml:"descriptor"`
}

// Description is the read-only summary of a class artifact.
type Description struct {
	Info    naming.ClassInformation
	Fields  []MemberInfo
	Methods []MemberInfo
}

// IsInterface reports whether ACC_INTERFACE is set.
func (cf *ClassFile) IsInterface() bool {
	return cf.AccessFlags&AccInterface != 0
}

// Name returns the class's own internal name.
func (cf *ClassFile) Name() (string, error) {
	return cf.Pool.ClassName(cf.ThisClass)
}

// SuperName returns the declared superclass name. ok is false only for
// the universal base type, which has none.
func (cf *ClassFile) SuperName() (name string, ok bool, err error) {
	if cf.SuperClass == 0 {
		return "", false, nil
	}
	name, err = cf.Pool.ClassName(cf.SuperClass)
	return name, err == nil, err
}

// InterfaceNames returns the declared interface names in order.
func (cf *ClassFile) InterfaceNames() ([]string, error) {
	names := make([]string, 0, len(cf.Interfaces))
	for _, idx := range cf.Interfaces {
		n, err := cf.Pool.ClassName(idx)
		if err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, nil
}

// Info returns the class's ClassInformation, tagged with tag.
func (cf *ClassFile) Info(tag naming.Tag) (naming.ClassInformation, error) {
	name, err := cf.Name()
	if err != nil {
		return naming.ClassInformation{}, err
	}
	super, _, err := cf.SuperName()
	if err != nil {
		return naming.ClassInformation{}, err
	}
	ifaces, err := cf.InterfaceNames()
	if err != nil {
		return naming.ClassInformation{}, err
	}
	return naming.NewClassInformation(name, cf.IsInterface(), super, ifaces, tag), nil
}

// Describe summarizes the header and declared members. The class is
// described as submitted, so the result is tagged pre-rename.
func (cf *ClassFile) Describe() (*Description, error) {
	info, err := cf.Info(naming.TagPreRename)
	if err != nil {
		return nil, err
	}
	fields, err := cf.members(cf.Fields)
	if err != nil {
		return nil, fmt.Errorf("fields: %w", err)
	}
	methods, err := cf.members(cf.Methods)
	if err != nil {
		return nil, fmt.Errorf("methods: %w", err)
	}
	return &Description{Info: info, Fields: fields, Methods: methods}, nil
}

func (cf *ClassFile) members(ms []Member) ([]MemberInfo, error) {
	out := make([]MemberInfo, 0, len(ms))
	for _, m := range ms {
		name, err := cf.Pool.Utf8(m.NameIndex)
		if err != nil {
			return nil, err
		}
		desc, err := cf.Pool.Utf8(m.DescriptorIndex)
		if err != nil {
			return nil, err
		}
		out = append(out, MemberInfo{Name: name, Descriptor: desc})
	}
	return out, nil
}

// AttributeName returns the name of a.
func (cf *ClassFile) AttributeName(a Attribute) (string, error) {
	return cf.Pool.Utf8(a.NameIndex)
}

// Clone returns a copy that can be mutated without affecting cf. Attribute
// payloads are shared.
func (cf *ClassFile) Clone() *ClassFile {
	out := *cf
	out.Pool = cf.Pool.Clone()
	out.Interfaces = slices.Clone(cf.Interfaces)
	out.Fields = cloneMembers(cf.Fields)
	out.Methods = cloneMembers(cf.Methods)
	out.Attributes = slices.Clone(cf.Attributes)
	return &out
}

func cloneMembers(ms []Member) []Member {
	if ms == nil {
		return nil
	}
	out := make([]Member, len(ms))
	for i, m := range ms {
		out[i] = m
		out[i].Attributes = slices.Clone(m.Attributes)
	}
	return out
}
