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
	"math"

	"github.com/AleutianAI/AleutianSandbox/services/sandbox/naming"
)

// reader is a bounds-checked big-endian cursor. The first failure sticks;
// later reads return zero values.
type reader struct {
	data []byte
	pos  int
	err  error
	at   int
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if n < 0 || len(r.data)-r.pos < n {
		r.fail(ErrTruncated)
		return false
	}
	return true
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
		r.at = r.pos
	}
}

func (r *reader) u1() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.pos]
	r.pos++
	return v
}

func (r *reader) u2() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v
}

func (r *reader) u4() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v
}

func (r *reader) u8() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.BigEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v
}

func (r *reader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	v := r.data[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return v
}

// Parse decodes one class artifact.
//
// Description:
//
//	Reads the full class-file layout and checks every length field against
//	the input, every constant pool cross reference, and the header indices.
//	No instruction decoding is performed; method bodies are located but not
//	interpreted.
//
// Inputs:
//
//	name - Artifact name used in errors (usually the module entry key).
//	data - The class-file bytes. Retained by the result; do not modify.
//
// Outputs:
//
//	*ClassFile - The decoded structure.
//	error - A *ParseError wrapping one of the package sentinels.
func Parse(name string, data []byte) (*ClassFile, error) {
	r := &reader{data: data}
	cf, err := parse(r)
	if err != nil {
		return nil, &ParseError{Class: name, Offset: r.at, Err: err}
	}
	if err := cf.validateHeader(); err != nil {
		return nil, &ParseError{Class: name, Offset: -1, Err: err}
	}
	return cf, nil
}

func parse(r *reader) (*ClassFile, error) {
	if magic := r.u4(); r.err == nil && magic != Magic {
		r.fail(ErrBadMagic)
	}
	cf := &ClassFile{}
	cf.MinorVersion = r.u2()
	cf.MajorVersion = r.u2()
	if r.err == nil && (cf.MajorVersion < MinMajorVersion || cf.MajorVersion > MaxMajorVersion) {
		r.fail(fmt.Errorf("%w: %d.%d", ErrUnsupportedVersion, cf.MajorVersion, cf.MinorVersion))
	}
	if r.err != nil {
		return nil, r.err
	}

	pool, err := parsePool(r)
	if err != nil {
		return nil, err
	}
	cf.Pool = pool

	cf.AccessFlags = r.u2()
	cf.ThisClass = r.u2()
	cf.SuperClass = r.u2()
	n := int(r.u2())
	if r.need(2 * n) {
		cf.Interfaces = make([]uint16, n)
		for i := range cf.Interfaces {
			cf.Interfaces[i] = r.u2()
		}
	}
	cf.Fields = parseMembers(r)
	cf.Methods = parseMembers(r)
	cf.Attributes = parseAttributes(r)
	if r.err != nil {
		return nil, r.err
	}
	if r.pos != len(r.data) {
		r.fail(ErrTrailingBytes)
		return nil, r.err
	}
	return cf, nil
}

func parsePool(r *reader) (*ConstantPool, error) {
	count := int(r.u2())
	if r.err != nil {
		return nil, r.err
	}
	if count == 0 {
		r.fail(fmt.Errorf("%w: constant_pool_count is 0", ErrBadConstantIndex))
		return nil, r.err
	}
	p := &ConstantPool{entries: make([]Constant, count)}
	for i := 1; i < count; i++ {
		c := Constant{Tag: Tag(r.u1())}
		switch c.Tag {
		case TagUtf8:
			c.Text = string(r.bytes(int(r.u2())))
		case TagInteger, TagFloat:
			c.Bits = uint64(r.u4())
		case TagLong, TagDouble:
			c.Bits = r.u8()
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			c.A = r.u2()
		case TagFieldref, TagMethodref, TagInterfaceMethodref, TagNameAndType,
			TagDynamic, TagInvokeDynamic:
			c.A = r.u2()
			c.B = r.u2()
		case TagMethodHandle:
			c.Kind = r.u1()
			c.A = r.u2()
		default:
			r.pos--
			r.fail(fmt.Errorf("%w: %d at #%d", ErrBadConstantTag, uint8(c.Tag), i))
		}
		if r.err != nil {
			return nil, r.err
		}
		p.entries[i] = c
		if c.Tag.wide() {
			if i+1 >= count {
				r.fail(fmt.Errorf("%w: %s at #%d overruns pool", ErrBadConstantIndex, c.Tag, i))
				return nil, r.err
			}
			i++
		}
	}
	if err := p.validate(); err != nil {
		r.fail(err)
		return nil, r.err
	}
	return p, nil
}

func parseMembers(r *reader) []Member {
	n := int(r.u2())
	if r.err != nil {
		return nil
	}
	ms := make([]Member, 0, min(n, 1024))
	for i := 0; i < n && r.err == nil; i++ {
		m := Member{
			AccessFlags:     r.u2(),
			NameIndex:       r.u2(),
			DescriptorIndex: r.u2(),
		}
		m.Attributes = parseAttributes(r)
		ms = append(ms, m)
	}
	return ms
}

func parseAttributes(r *reader) []Attribute {
	n := int(r.u2())
	if r.err != nil || n == 0 {
		return nil
	}
	as := make([]Attribute, 0, min(n, 64))
	for i := 0; i < n && r.err == nil; i++ {
		a := Attribute{NameIndex: r.u2()}
		length := r.u4()
		if length > math.MaxInt32 {
			r.fail(ErrTruncated)
			break
		}
		a.Info = r.bytes(int(length))
		as = append(as, a)
	}
	return as
}

// validateHeader checks the header and member indices against the pool.
func (cf *ClassFile) validateHeader() error {
	p := cf.Pool
	if _, err := p.Expect(cf.ThisClass, TagClass); err != nil {
		return fmt.Errorf("this_class: %w", err)
	}
	name, err := cf.Name()
	if err != nil {
		return fmt.Errorf("this_class: %w", err)
	}
	if cf.SuperClass == 0 {
		// Rewritten interfaces carry no superclass.
		if name != naming.RootName && !(cf.IsInterface() && naming.IsPostRename(name)) {
			return fmt.Errorf("%w: %s", ErrMissingSuperclass, name)
		}
	} else if _, err := p.Expect(cf.SuperClass, TagClass); err != nil {
		return fmt.Errorf("super_class: %w", err)
	}
	for i, idx := range cf.Interfaces {
		if _, err := p.Expect(idx, TagClass); err != nil {
			return fmt.Errorf("interfaces[%d]: %w", i, err)
		}
	}
	for _, group := range []struct {
		what    string
		members []Member
	}{{"field", cf.Fields}, {"method", cf.Methods}} {
		for i, m := range group.members {
			if _, err := p.Expect(m.NameIndex, TagUtf8); err != nil {
				return fmt.Errorf("%s[%d] name: %w", group.what, i, err)
			}
			if _, err := p.Expect(m.DescriptorIndex, TagUtf8); err != nil {
				return fmt.Errorf("%s[%d] descriptor: %w", group.what, i, err)
			}
			if err := cf.validateAttributes(m.Attributes); err != nil {
				return fmt.Errorf("%s[%d]: %w", group.what, i, err)
			}
		}
	}
	return cf.validateAttributes(cf.Attributes)
}

func (cf *ClassFile) validateAttributes(as []Attribute) error {
	for i, a := range as {
		if _, err := cf.Pool.Expect(a.NameIndex, TagUtf8); err != nil {
			return fmt.Errorf("attribute[%d] name: %w", i, err)
		}
	}
	return nil
}
