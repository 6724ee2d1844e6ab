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

import "errors"

// Sentinel errors for name validation.
var (
	// ErrEmptyName is returned for a zero-length type name.
	ErrEmptyName = errors.New("empty type name")

	// ErrIllegalCharacter is returned when a type name contains a
	// character that cannot appear in an internal class name ('.', ';',
	// '[', '<', '>').
	ErrIllegalCharacter = errors.New("illegal character in type name")

	// ErrEmptySegment is returned when a type name has a leading, trailing
	// or doubled path separator.
	ErrEmptySegment = errors.New("empty package segment in type name")
)
