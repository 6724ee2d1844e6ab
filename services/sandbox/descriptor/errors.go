// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package descriptor parses and rewrites JVM type descriptors.
//
// Grammar:
//
//	FieldType  = BaseType | ObjectType | ArrayType
//	BaseType   = 'B' | 'C' | 'D' | 'F' | 'I' | 'J' | 'S' | 'Z'
//	ObjectType = 'L' ClassName ';'
//	ArrayType  = '[' FieldType
//	Method     = '(' FieldType* ')' ( FieldType | 'V' )
//
// Rewriting is a recursive descent that passes every ClassName through a
// rename function and re-emits everything else byte for byte.
package descriptor

import (
	"errors"
	"fmt"
)

// MaxArrayDimensions is the JVM limit on array nesting.
const MaxArrayDimensions = 255

// Sentinel errors for malformed descriptors.
var (
	// ErrEmpty is returned for an empty descriptor.
	ErrEmpty = errors.New("empty descriptor")

	// ErrUnexpectedEnd is returned when the descriptor ends mid-type.
	ErrUnexpectedEnd = errors.New("unexpected end of descriptor")

	// ErrUnexpectedCharacter is returned for a character that cannot start
	// a type at that position.
	ErrUnexpectedCharacter = errors.New("unexpected character in descriptor")

	// ErrUnterminatedReference is returned when an object type has no
	// closing ';'.
	ErrUnterminatedReference = errors.New("unterminated object type reference")

	// ErrInvalidClassName is returned when an object type names an invalid
	// internal class name.
	ErrInvalidClassName = errors.New("invalid class name in descriptor")

	// ErrTooManyDimensions is returned when an array type exceeds
	// MaxArrayDimensions.
	ErrTooManyDimensions = errors.New("too many array dimensions")

	// ErrTrailingData is returned when characters follow a complete type.
	ErrTrailingData = errors.New("trailing data after descriptor")

	// ErrVoidParameter is returned when 'V' appears outside a return type.
	ErrVoidParameter = errors.New("void is only valid as a return type")
)

// Error describes a malformed descriptor.
type Error struct {
	// Descriptor is the complete input.
	Descriptor string

	// Pos is the byte offset where parsing failed.
	Pos int

	// Err is the underlying sentinel.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("descriptor %q at %d: %v", e.Descriptor, e.Pos, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}
