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

// Tag identifies the kind of a constant pool entry.
type Tag uint8

// Constant pool tags.
const (
	TagInvalid            Tag = 0
	TagUtf8               Tag = 1
	TagInteger            Tag = 3
	TagFloat              Tag = 4
	TagLong               Tag = 5
	TagDouble             Tag = 6
	TagClass              Tag = 7
	TagString             Tag = 8
	TagFieldref           Tag = 9
	TagMethodref          Tag = 10
	TagInterfaceMethodref Tag = 11
	TagNameAndType        Tag = 12
	TagMethodHandle       Tag = 15
	TagMethodType         Tag = 16
	TagDynamic            Tag = 17
	TagInvokeDynamic      Tag = 18
	TagModule             Tag = 19
	TagPackage            Tag = 20
)

// String returns the string representation of the Tag.
func (t Tag) String() string {
	switch t {
	case TagUtf8:
		return "Utf8"
	case TagInteger:
		return "Integer"
	case TagFloat:
		return "Float"
	case TagLong:
		return "Long"
	case TagDouble:
		return "Double"
	case TagClass:
		return "Class"
	case TagString:
		return "String"
	case TagFieldref:
		return "Fieldref"
	case TagMethodref:
		return "Methodref"
	case TagInterfaceMethodref:
		return "InterfaceMethodref"
	case TagNameAndType:
		return "NameAndType"
	case TagMethodHandle:
		return "MethodHandle"
	case TagMethodType:
		return "MethodType"
	case TagDynamic:
		return "Dynamic"
	case TagInvokeDynamic:
		return "InvokeDynamic"
	case TagModule:
		return "Module"
	case TagPackage:
		return "Package"
	default:
		return fmt.Sprintf("Tag(%d)", uint8(t))
	}
}

// IsMemberRef reports whether t is a field, method or interface method
// reference.
func (t Tag) IsMemberRef() bool {
	return t == TagFieldref || t == TagMethodref || t == TagInterfaceMethodref
}

// wide reports whether the entry occupies two pool slots.
func (t Tag) wide() bool {
	return t == TagLong || t == TagDouble
}

// Method handle reference kinds.
const (
	RefGetField         uint8 = 1
	RefGetStatic        uint8 = 2
	RefPutField         uint8 = 3
	RefPutStatic        uint8 = 4
	RefInvokeVirtual    uint8 = 5
	RefInvokeStatic     uint8 = 6
	RefInvokeSpecial    uint8 = 7
	RefNewInvokeSpecial uint8 = 8
	RefInvokeInterface  uint8 = 9
)

// Constant is one constant pool entry. Which fields are meaningful depends
// on Tag:
//
//	Utf8                         Text
//	Integer, Float               Bits (low 32 bits)
//	Long, Double                 Bits
//	Class, Module, Package       A = name (Utf8)
//	String                       A = value (Utf8)
//	MethodType                   A = descriptor (Utf8)
//	Fieldref, *Methodref         A = class, B = name and type
//	NameAndType                  A = name (Utf8), B = descriptor (Utf8)
//	MethodHandle                 Kind, A = reference
//	Dynamic, InvokeDynamic       A = bootstrap method index, B = name and type
//
// Utf8 text is kept as the raw modified UTF-8 bytes and is never decoded.
type Constant struct {
	Tag  Tag
	Text string
	Bits uint64
	A    uint16
	B    uint16
	Kind uint8
}

// MemberRef is a resolved field or method reference.
type MemberRef struct {
	Tag        Tag
	Owner      string
	Name       string
	Descriptor string
}

// ConstantPool is an indexed constant table. Index 0 and the second slot
// of every long or double are unusable.
//
// Thread Safety: not safe for concurrent mutation. Clone before sharing.
type ConstantPool struct {
	entries []Constant

	// Dedup indexes, built on first Add and kept current by Set.
	utf8  map[string]uint16
	class map[uint16]uint16
	nat   map[[2]uint16]uint16
}

// MaxPoolCount is the largest encodable constant_pool_count.
const MaxPoolCount = math.MaxUint16

// NewConstantPool returns an empty pool with the reserved zero slot.
func NewConstantPool() *ConstantPool {
	return &ConstantPool{entries: make([]Constant, 1, 64)}
}

// Count returns constant_pool_count: one more than the highest index.
func (p *ConstantPool) Count() int {
	return len(p.entries)
}

// Get returns the entry at index i.
func (p *ConstantPool) Get(i uint16) (Constant, error) {
	if i == 0 || int(i) >= len(p.entries) || p.entries[i].Tag == TagInvalid {
		return Constant{}, fmt.Errorf("%w: %d", ErrBadConstantIndex, i)
	}
	return p.entries[i], nil
}

// Expect returns the entry at index i, checking its tag is one of tags.
func (p *ConstantPool) Expect(i uint16, tags ...Tag) (Constant, error) {
	c, err := p.Get(i)
	if err != nil {
		return c, err
	}
	for _, t := range tags {
		if c.Tag == t {
			return c, nil
		}
	}
	return c, fmt.Errorf("%w: #%d is %s, want %v", ErrWrongConstantKind, i, c.Tag, tags)
}

// Utf8 returns the text of the Utf8 entry at index i.
func (p *ConstantPool) Utf8(i uint16) (string, error) {
	c, err := p.Expect(i, TagUtf8)
	if err != nil {
		return "", err
	}
	return c.Text, nil
}

// ClassName returns the name held by the Class entry at index i. Array
// classes yield a field descriptor.
func (p *ConstantPool) ClassName(i uint16) (string, error) {
	c, err := p.Expect(i, TagClass)
	if err != nil {
		return "", err
	}
	return p.Utf8(c.A)
}

// NameAndType returns the name and descriptor of the entry at index i.
func (p *ConstantPool) NameAndType(i uint16) (string, string, error) {
	c, err := p.Expect(i, TagNameAndType)
	if err != nil {
		return "", "", err
	}
	name, err := p.Utf8(c.A)
	if err != nil {
		return "", "", err
	}
	desc, err := p.Utf8(c.B)
	if err != nil {
		return "", "", err
	}
	return name, desc, nil
}

// MemberRef resolves the field or method reference at index i.
func (p *ConstantPool) MemberRef(i uint16) (MemberRef, error) {
	c, err := p.Expect(i, TagFieldref, TagMethodref, TagInterfaceMethodref)
	if err != nil {
		return MemberRef{}, err
	}
	owner, err := p.ClassName(c.A)
	if err != nil {
		return MemberRef{}, err
	}
	name, desc, err := p.NameAndType(c.B)
	if err != nil {
		return MemberRef{}, err
	}
	return MemberRef{Tag: c.Tag, Owner: owner, Name: name, Descriptor: desc}, nil
}

// Each calls fn for every usable entry with index below limit, in index
// order, stopping at the first error. Entries appended by fn are not
// visited when limit is the count at the start of the walk.
func (p *ConstantPool) Each(limit int, fn func(i uint16, c Constant) error) error {
	limit = min(limit, len(p.entries))
	for i := 1; i < limit; i++ {
		c := p.entries[i]
		if c.Tag == TagInvalid {
			continue
		}
		if err := fn(uint16(i), c); err != nil {
			return err
		}
	}
	return nil
}

// Set replaces the entry at index i. The replacement must occupy the same
// number of slots as the original.
func (p *ConstantPool) Set(i uint16, c Constant) error {
	old, err := p.Get(i)
	if err != nil {
		return err
	}
	if old.Tag.wide() != c.Tag.wide() {
		return fmt.Errorf("%w: #%d slot width changes from %s to %s", ErrWrongConstantKind, i, old.Tag, c.Tag)
	}
	if p.utf8 != nil {
		p.unindex(i, old)
		p.entries[i] = c
		p.index(i, c)
		return nil
	}
	p.entries[i] = c
	return nil
}

// Add appends c and returns its index.
func (p *ConstantPool) Add(c Constant) (uint16, error) {
	slots := 1
	if c.Tag.wide() {
		slots = 2
	}
	if len(p.entries)+slots > MaxPoolCount {
		return 0, fmt.Errorf("%w: %d entries", ErrPoolOverflow, len(p.entries)+slots)
	}
	i := uint16(len(p.entries))
	p.entries = append(p.entries, c)
	if slots == 2 {
		p.entries = append(p.entries, Constant{})
	}
	if p.utf8 != nil {
		p.index(i, c)
	}
	return i, nil
}

// AddUtf8 returns the index of a Utf8 entry holding s, appending one if
// none exists.
func (p *ConstantPool) AddUtf8(s string) (uint16, error) {
	p.ensureIndex()
	if i, ok := p.utf8[s]; ok {
		return i, nil
	}
	return p.Add(Constant{Tag: TagUtf8, Text: s})
}

// AddClass returns the index of a Class entry naming name, appending
// entries as needed.
func (p *ConstantPool) AddClass(name string) (uint16, error) {
	n, err := p.AddUtf8(name)
	if err != nil {
		return 0, err
	}
	if i, ok := p.class[n]; ok {
		return i, nil
	}
	return p.Add(Constant{Tag: TagClass, A: n})
}

// AddNameAndType returns the index of a NameAndType entry for name and
// desc, appending entries as needed.
func (p *ConstantPool) AddNameAndType(name, desc string) (uint16, error) {
	n, err := p.AddUtf8(name)
	if err != nil {
		return 0, err
	}
	d, err := p.AddUtf8(desc)
	if err != nil {
		return 0, err
	}
	if i, ok := p.nat[[2]uint16{n, d}]; ok {
		return i, nil
	}
	return p.Add(Constant{Tag: TagNameAndType, A: n, B: d})
}

// Clone returns an independent copy of the pool.
func (p *ConstantPool) Clone() *ConstantPool {
	entries := make([]Constant, len(p.entries), cap(p.entries))
	copy(entries, p.entries)
	return &ConstantPool{entries: entries}
}

// ensureIndex builds the dedup maps. The first occurrence of a value wins.
func (p *ConstantPool) ensureIndex() {
	if p.utf8 != nil {
		return
	}
	p.utf8 = make(map[string]uint16, len(p.entries))
	p.class = make(map[uint16]uint16)
	p.nat = make(map[[2]uint16]uint16)
	for i := 1; i < len(p.entries); i++ {
		p.index(uint16(i), p.entries[i])
	}
}

func (p *ConstantPool) index(i uint16, c Constant) {
	switch c.Tag {
	case TagUtf8:
		if _, ok := p.utf8[c.Text]; !ok {
			p.utf8[c.Text] = i
		}
	case TagClass:
		if _, ok := p.class[c.A]; !ok {
			p.class[c.A] = i
		}
	case TagNameAndType:
		k := [2]uint16{c.A, c.B}
		if _, ok := p.nat[k]; !ok {
			p.nat[k] = i
		}
	}
}

func (p *ConstantPool) unindex(i uint16, c Constant) {
	switch c.Tag {
	case TagUtf8:
		if p.utf8[c.Text] == i {
			delete(p.utf8, c.Text)
		}
	case TagClass:
		if p.class[c.A] == i {
			delete(p.class, c.A)
		}
	case TagNameAndType:
		k := [2]uint16{c.A, c.B}
		if p.nat[k] == i {
			delete(p.nat, k)
		}
	}
}

// validate checks that every reference inside the pool points at an entry
// of the right kind.
func (p *ConstantPool) validate() error {
	for i := 1; i < len(p.entries); i++ {
		c := p.entries[i]
		idx := uint16(i)
		var err error
		switch c.Tag {
		case TagClass, TagString, TagMethodType, TagModule, TagPackage:
			_, err = p.Expect(c.A, TagUtf8)
		case TagFieldref, TagMethodref, TagInterfaceMethodref:
			if _, err = p.Expect(c.A, TagClass); err == nil {
				_, err = p.Expect(c.B, TagNameAndType)
			}
		case TagNameAndType:
			if _, err = p.Expect(c.A, TagUtf8); err == nil {
				_, err = p.Expect(c.B, TagUtf8)
			}
		case TagMethodHandle:
			err = p.validateHandle(c)
		case TagDynamic, TagInvokeDynamic:
			_, err = p.Expect(c.B, TagNameAndType)
		}
		if err != nil {
			return fmt.Errorf("constant #%d (%s): %w", idx, c.Tag, err)
		}
	}
	return nil
}

func (p *ConstantPool) validateHandle(c Constant) error {
	var want []Tag
	switch c.Kind {
	case RefGetField, RefGetStatic, RefPutField, RefPutStatic:
		want = []Tag{TagFieldref}
	case RefInvokeVirtual, RefNewInvokeSpecial:
		want = []Tag{TagMethodref}
	case RefInvokeStatic, RefInvokeSpecial:
		want = []Tag{TagMethodref, TagInterfaceMethodref}
	case RefInvokeInterface:
		want = []Tag{TagInterfaceMethodref}
	default:
		return fmt.Errorf("%w: %d", ErrBadReferenceKind, c.Kind)
	}
	_, err := p.Expect(c.A, want...)
	return err
}
