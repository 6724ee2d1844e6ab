// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hierarchy

import (
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/naming"
)

// Hand-written wrapper types for array values. Every array in sandboxed
// code is modelled as a wrapper object rooted at ArrayInterfaceName.
const (
	ArrayInterfaceName = naming.WrapperPrefix + "IArray"
	ArrayBaseName      = naming.WrapperPrefix + "Array"
	ObjectArrayName    = naming.WrapperPrefix + "ObjectArray"
)

// primitiveArrays lists the wrapper per primitive element code.
var primitiveArrays = []string{
	"BooleanArray",
	"ByteArray",
	"CharArray",
	"ShortArray",
	"IntArray",
	"LongArray",
	"FloatArray",
	"DoubleArray",
}

// Sandbox exception types raised by the metering and rule layers.
const (
	SandboxExceptionName   = naming.InternalPrefix + "SandboxException"
	RuleViolationName      = naming.InternalPrefix + "RuleViolationError"
	ThresholdViolationName = naming.InternalPrefix + "ThresholdViolationError"
)

func post(name string, iface bool, super string, ifaces ...string) naming.ClassInformation {
	return naming.NewClassInformation(name, iface, super, ifaces, naming.TagPostRename)
}

// WrapperTypes returns the fixed wrapper type set, already post-rename.
func WrapperTypes() []naming.ClassInformation {
	out := []naming.ClassInformation{
		post(ArrayInterfaceName, true, ""),
		post(ArrayBaseName, false, naming.ShadowObjectName, ArrayInterfaceName),
		post(ObjectArrayName, false, ArrayBaseName),
	}
	for _, n := range primitiveArrays {
		out = append(out, post(naming.WrapperPrefix+n, false, ArrayBaseName))
	}
	return out
}

// ExceptionTypes returns the fixed sandbox exception set, already
// post-rename. Their parents live in the platform catalog.
func ExceptionTypes() []naming.ClassInformation {
	return []naming.ClassInformation{
		post(SandboxExceptionName, false, naming.ShadowPlatformPrefix+"java/lang/RuntimeException"),
		post(RuleViolationName, false, naming.ShadowPlatformPrefix+"java/lang/Error"),
		post(ThresholdViolationName, false, naming.ShadowPlatformPrefix+"java/lang/Error"),
	}
}
