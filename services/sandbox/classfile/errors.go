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
	"errors"
	"fmt"
)

// Sentinel errors for malformed class artifacts.
var (
	// ErrBadMagic is returned when the artifact does not start with 0xCAFEBABE.
	ErrBadMagic = errors.New("bad magic number")

	// ErrUnsupportedVersion is returned for class-file versions outside
	// [MinMajorVersion, MaxMajorVersion].
	ErrUnsupportedVersion = errors.New("unsupported class file version")

	// ErrTruncated is returned when a length or count field points past the
	// end of the input.
	ErrTruncated = errors.New("truncated class file")

	// ErrTrailingBytes is returned when bytes remain after the last
	// attribute.
	ErrTrailingBytes = errors.New("trailing bytes after class file")

	// ErrBadConstantTag is returned for an unknown constant pool tag.
	ErrBadConstantTag = errors.New("bad constant pool tag")

	// ErrBadConstantIndex is returned for a pool index that is zero, out of
	// range, or the unusable second slot of a long or double.
	ErrBadConstantIndex = errors.New("bad constant pool index")

	// ErrWrongConstantKind is returned when a pool index refers to an entry
	// of the wrong kind.
	ErrWrongConstantKind = errors.New("constant pool entry has wrong kind")

	// ErrBadReferenceKind is returned for a method handle with an invalid
	// reference kind.
	ErrBadReferenceKind = errors.New("bad method handle reference kind")

	// ErrMissingSuperclass is returned when a class declares no superclass
	// and is neither the universal base type nor a post-rename interface.
	ErrMissingSuperclass = errors.New("class has no superclass")

	// ErrBadAttribute is returned when an attribute's internal layout
	// disagrees with its declared length.
	ErrBadAttribute = errors.New("malformed attribute")

	// ErrBadOpcode is returned for an undefined or reserved opcode.
	ErrBadOpcode = errors.New("bad opcode")

	// ErrBadSwitch is returned for a tableswitch or lookupswitch with
	// inconsistent bounds.
	ErrBadSwitch = errors.New("malformed switch instruction")

	// ErrPoolOverflow is returned when a constant pool would exceed 65535
	// entries.
	ErrPoolOverflow = errors.New("constant pool overflow")

	// ErrTooLarge is returned when a table or payload cannot be encoded in
	// its length field.
	ErrTooLarge = errors.New("class file structure too large")
)

// ParseError reports a structural fault in one class artifact.
type ParseError struct {
	// Class is the artifact name the caller supplied.
	Class string

	// Offset is the byte offset of the fault, or -1 when not positional.
	Offset int

	// Err is the underlying sentinel.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("class %s: %v", e.Class, e.Err)
	}
	return fmt.Sprintf("class %s at offset %d: %v", e.Class, e.Offset, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ParseError) Unwrap() error {
	return e.Err
}
