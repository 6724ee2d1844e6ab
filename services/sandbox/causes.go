// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sandbox

import (
	"errors"

	"github.com/AleutianAI/AleutianSandbox/services/sandbox/classfile"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/descriptor"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/naming"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/rewrite"
)

// rejectionCauses names the sentinels a cached rejection can carry. Codes
// are persisted, so existing entries must keep their code.
var rejectionCauses = []struct {
	code string
	err  error
}{
	{"classfile.bad_magic", classfile.ErrBadMagic},
	{"classfile.unsupported_version", classfile.ErrUnsupportedVersion},
	{"classfile.truncated", classfile.ErrTruncated},
	{"classfile.trailing_bytes", classfile.ErrTrailingBytes},
	{"classfile.bad_constant_tag", classfile.ErrBadConstantTag},
	{"classfile.bad_constant_index", classfile.ErrBadConstantIndex},
	{"classfile.wrong_constant_kind", classfile.ErrWrongConstantKind},
	{"classfile.bad_reference_kind", classfile.ErrBadReferenceKind},
	{"classfile.missing_superclass", classfile.ErrMissingSuperclass},
	{"classfile.bad_attribute", classfile.ErrBadAttribute},
	{"classfile.bad_opcode", classfile.ErrBadOpcode},
	{"classfile.bad_switch", classfile.ErrBadSwitch},
	{"classfile.pool_overflow", classfile.ErrPoolOverflow},
	{"classfile.too_large", classfile.ErrTooLarge},
	{"descriptor.empty", descriptor.ErrEmpty},
	{"descriptor.unexpected_end", descriptor.ErrUnexpectedEnd},
	{"descriptor.unexpected_character", descriptor.ErrUnexpectedCharacter},
	{"descriptor.unterminated_reference", descriptor.ErrUnterminatedReference},
	{"descriptor.invalid_class_name", descriptor.ErrInvalidClassName},
	{"descriptor.too_many_dimensions", descriptor.ErrTooManyDimensions},
	{"descriptor.trailing_data", descriptor.ErrTrailingData},
	{"descriptor.void_parameter", descriptor.ErrVoidParameter},
	{"naming.empty_name", naming.ErrEmptyName},
	{"naming.illegal_character", naming.ErrIllegalCharacter},
	{"naming.empty_segment", naming.ErrEmptySegment},
	{"rewrite.bad_bootstrap", rewrite.ErrBadBootstrap},
	{"module.empty", ErrEmptyModule},
	{"module.entry_point_missing", ErrEntryPointMissing},
	{"module.name_mismatch", ErrNameMismatch},
	{"module.reserved_name", ErrReservedName},
	{"module.duplicate_class", ErrDuplicateClass},
}

// causeCode returns the code of the first known sentinel err matches, or
// "" if none does.
func causeCode(err error) string {
	for _, c := range rejectionCauses {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}

// cachedCause is a rejection cause restored from the outcome cache. It
// keeps the original message and still matches the original sentinel.
type cachedCause struct {
	msg      string
	sentinel error
}

func (c *cachedCause) Error() string { return c.msg }

func (c *cachedCause) Unwrap() error { return c.sentinel }

// restoreCause rebuilds a cause from its message and code. Unknown codes
// leave a plain error.
func restoreCause(msg, code string) error {
	for _, c := range rejectionCauses {
		if c.code == code {
			return &cachedCause{msg: msg, sentinel: c.err}
		}
	}
	return errors.New(msg)
}
