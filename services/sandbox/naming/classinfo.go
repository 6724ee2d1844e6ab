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

// Tag says which namespace a name belongs to.
type Tag uint8

const (
	// TagPreRename marks a name as submitted or originally declared.
	TagPreRename Tag = iota

	// TagPostRename marks a name already in the sandbox namespace.
	TagPostRename
)

// String returns the string representation of the Tag.
func (t Tag) String() string {
	if t == TagPostRename {
		return "post_rename"
	}
	return "pre_rename"
}

// ClassIdentity is a type name together with its namespace tag.
type ClassIdentity struct {
	Name string
	Tag  Tag
}

// ClassInformation is the immutable header description of one class.
//
// Values are produced by parsing (pre-rename) or by RenameClassInformation
// (post-rename) and are never edited in place. Accessors return copies.
type ClassInformation struct {
	name           string
	isInterface    bool
	superClassName string
	interfaceNames []string
	tag            Tag
}

// NewClassInformation creates a ClassInformation.
//
// superClassName is empty when the class has no superclass. The interface
// slice is copied.
func NewClassInformation(name string, isInterface bool, superClassName string, interfaceNames []string, tag Tag) ClassInformation {
	var ifaces []string
	if len(interfaceNames) > 0 {
		ifaces = make([]string, len(interfaceNames))
		copy(ifaces, interfaceNames)
	}
	return ClassInformation{
		name:           name,
		isInterface:    isInterface,
		superClassName: superClassName,
		interfaceNames: ifaces,
		tag:            tag,
	}
}

// Name returns the class's own name.
func (c ClassInformation) Name() string { return c.name }

// IsInterface reports whether the class is an interface.
func (c ClassInformation) IsInterface() bool { return c.isInterface }

// SuperClassName returns the superclass name and whether one is present.
func (c ClassInformation) SuperClassName() (string, bool) {
	return c.superClassName, c.superClassName != ""
}

// InterfaceNames returns a copy of the declared interface names.
func (c ClassInformation) InterfaceNames() []string {
	out := make([]string, len(c.interfaceNames))
	copy(out, c.interfaceNames)
	return out
}

// Tag returns the namespace tag.
func (c ClassInformation) Tag() Tag { return c.tag }

// Identity returns the ClassIdentity of the class itself.
func (c ClassInformation) Identity() ClassIdentity {
	return ClassIdentity{Name: c.name, Tag: c.tag}
}

// RenameClassInformation returns the post-rename form of info.
//
// Description:
//
//	The class name and every interface name are renamed with Rename. The
//	superclass is renamed too, except that an interface whose pre-rename
//	superclass is RootName gets no superclass at all. Such interfaces hang
//	directly off the root (the capability-only attachment) rather than
//	under ShadowObjectName.
//	A value that is already post-rename is returned unchanged.
//
// Panics if any name is malformed (see Rename).
func RenameClassInformation(info ClassInformation) ClassInformation {
	if info.tag == TagPostRename {
		return info
	}

	superName := ""
	if s, ok := info.SuperClassName(); ok {
		if !(s == RootName && info.isInterface) {
			superName = Rename(s)
		}
	}

	ifaces := make([]string, len(info.interfaceNames))
	for i, name := range info.interfaceNames {
		ifaces[i] = Rename(name)
	}

	return NewClassInformation(Rename(info.name), info.isInterface, superName, ifaces, TagPostRename)
}
