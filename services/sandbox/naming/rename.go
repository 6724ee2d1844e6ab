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
	"fmt"
	"strings"
)

// Category classifies a type name by the rename rule that applies to it.
type Category int

const (
	// CategoryUser is an ordinary submitted type.
	CategoryUser Category = iota

	// CategoryPlatformBase is the universal base type or the base
	// exception type.
	CategoryPlatformBase

	// CategoryPlatform is a type under a platform-library package.
	CategoryPlatform

	// CategoryAPI is a type under the public sandbox API package.
	CategoryAPI

	// CategoryPostRename is a name that is already in the sandbox
	// namespace (shadow, internal, wrapper, API or user).
	CategoryPostRename
)

// String returns the string representation of the Category.
func (c Category) String() string {
	switch c {
	case CategoryUser:
		return "user"
	case CategoryPlatformBase:
		return "platform_base"
	case CategoryPlatform:
		return "platform"
	case CategoryAPI:
		return "api"
	case CategoryPostRename:
		return "post_rename"
	default:
		return "unknown"
	}
}

// ValidateInternalName checks that name is a syntactically valid internal
// class name (slash separated, no array or descriptor syntax).
func ValidateInternalName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if strings.ContainsAny(name, ".;[<>") {
		return fmt.Errorf("%w: %q", ErrIllegalCharacter, name)
	}
	if name[0] == '/' || name[len(name)-1] == '/' || strings.Contains(name, "//") {
		return fmt.Errorf("%w: %q", ErrEmptySegment, name)
	}
	return nil
}

// IsPostRename reports whether name is already in the sandbox namespace.
func IsPostRename(name string) bool {
	for _, prefix := range postRenamePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Classify returns the rename category of name. The checks run in the same
// order as Rename.
func Classify(name string) Category {
	switch {
	case IsPostRename(name):
		return CategoryPostRename
	case name == RootName, name == ThrowableName:
		return CategoryPlatformBase
	}
	for _, prefix := range platformPackages {
		if strings.HasPrefix(name, prefix) {
			return CategoryPlatform
		}
	}
	if strings.HasPrefix(name, APIPackage) {
		return CategoryAPI
	}
	return CategoryUser
}

// Rename maps a type name into the sandbox namespace.
//
// Description:
//
//	First matching rule wins:
//	  1. already post-rename: unchanged
//	  2. RootName: ShadowObjectName
//	  3. ThrowableName: ShadowThrowableName
//	  4. platform package: ShadowPlatformPrefix + name
//	  5. API package: ShadowAPIPrefix replaces APIPackage
//	  6. otherwise: UserPrefix + name
//
//	Rules 2 and 3 must precede rule 4 since both names sit in java/lang/.
//
// Inputs:
//
//	name - An internal class name. Must satisfy ValidateInternalName.
//
// Outputs:
//
//	string - The post-rename name.
//
// Panics if name is malformed. Callers that handle untrusted names must
// validate first; a malformed name reaching Rename is a caller defect.
func Rename(name string) string {
	if err := ValidateInternalName(name); err != nil {
		panic(fmt.Sprintf("naming: rename of malformed name: %v", err))
	}

	switch Classify(name) {
	case CategoryPostRename:
		return name
	case CategoryPlatformBase:
		if name == RootName {
			return ShadowObjectName
		}
		return ShadowThrowableName
	case CategoryPlatform:
		return ShadowPlatformPrefix + name
	case CategoryAPI:
		return ShadowAPIPrefix + strings.TrimPrefix(name, APIPackage)
	default:
		return UserPrefix + name
	}
}

// Identity returns the post-rename ClassIdentity of name.
func Identity(name string) ClassIdentity {
	return ClassIdentity{Name: Rename(name), Tag: TagPostRename}
}

// IsPlatformOwner reports whether a post-rename owner exposes the
// prefixed, parallel method namespace.
func IsPlatformOwner(postRenameOwner string) bool {
	return strings.HasPrefix(postRenameOwner, ShadowPlatformPrefix) ||
		strings.HasPrefix(postRenameOwner, InternalPrefix)
}

// MemberName returns the post-rename name of a member referenced through
// owner.
//
// Method names on platform owners gain MethodPrefix. Constructors, static
// initializers, fields and user-owned members keep their names.
func MemberName(postRenameOwner, name string, isMethod bool) string {
	if !isMethod || name == ConstructorName || name == StaticInitializerName {
		return name
	}
	if !IsPlatformOwner(postRenameOwner) {
		return name
	}
	return MethodPrefix + name
}
