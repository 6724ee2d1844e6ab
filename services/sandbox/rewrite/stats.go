// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rewrite

// Stats is the explicit accumulator each stage returns. The rewriter sums
// stage values; nothing is counted in shared state.
type Stats struct {
	// ClassRefsRenamed counts Class constants renamed.
	ClassRefsRenamed int `json:"class_refs_renamed" cbor:"1,keyasint"`

	// MemberRefsRewritten counts field and method reference constants.
	MemberRefsRewritten int `json:"member_refs_rewritten" cbor:"2,keyasint"`

	// MethodsPrefixed counts method references given the platform marker.
	MethodsPrefixed int `json:"methods_prefixed" cbor:"3,keyasint"`

	// DescriptorsRewritten counts descriptor strings rewritten, including
	// field, method, local variable and constant descriptors.
	DescriptorsRewritten int `json:"descriptors_rewritten" cbor:"4,keyasint"`

	// AttributesStripped counts reflection-only attributes removed.
	AttributesStripped int `json:"attributes_stripped" cbor:"5,keyasint"`

	// InstructionsChecked counts decoded instructions.
	InstructionsChecked int `json:"instructions_checked" cbor:"6,keyasint"`

	// CallSitesRewritten counts InvokeDynamic and Dynamic constants.
	CallSitesRewritten int `json:"call_sites_rewritten" cbor:"7,keyasint"`

	// ConstantsAdded counts pool entries appended.
	ConstantsAdded int `json:"constants_added" cbor:"8,keyasint"`
}

// Add returns the field-wise sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		ClassRefsRenamed:     s.ClassRefsRenamed + o.ClassRefsRenamed,
		MemberRefsRewritten:  s.MemberRefsRewritten + o.MemberRefsRewritten,
		MethodsPrefixed:      s.MethodsPrefixed + o.MethodsPrefixed,
		DescriptorsRewritten: s.DescriptorsRewritten + o.DescriptorsRewritten,
		AttributesStripped:   s.AttributesStripped + o.AttributesStripped,
		InstructionsChecked:  s.InstructionsChecked + o.InstructionsChecked,
		CallSitesRewritten:   s.CallSitesRewritten + o.CallSitesRewritten,
		ConstantsAdded:       s.ConstantsAdded + o.ConstantsAdded,
	}
}
