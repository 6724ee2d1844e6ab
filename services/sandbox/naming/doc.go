// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package naming maps type names between the namespace they were
// submitted in and the isolated sandbox namespace.
//
// Every type that a submitted module can observe is renamed exactly once,
// by category:
//
//	java/lang/Object                 -> i/ShadowObject      (shadow universal base)
//	java/lang/Throwable              -> i/ShadowThrowable   (shadow exception base)
//	java/{lang,util,math,io}/...     -> s/java/...          (shadow platform)
//	org/aleutian/sandbox/api/...     -> a/...               (shadow API)
//	anything else                    -> u/...               (user)
//
// Names that already carry a post-rename prefix are returned unchanged,
// which makes Rename idempotent.
//
// # Thread Safety
//
// All functions in this package are pure and safe for concurrent use.
package naming

// Hierarchy anchors.
const (
	// RootName is the universal base type. It is the root of every
	// class hierarchy and is indexed under this (pre-rename) name.
	RootName = "java/lang/Object"

	// ThrowableName is the always-present base exception type.
	ThrowableName = "java/lang/Throwable"

	// ShadowObjectName is the concrete shadow base every renamed class
	// that extended RootName extends instead.
	ShadowObjectName = InternalPrefix + "ShadowObject"

	// CapabilityName is the capability-only interface attached directly
	// under the root. Interfaces hang off the root through it rather than
	// through ShadowObjectName.
	CapabilityName = InternalPrefix + "IObject"

	// ShadowThrowableName anchors the renamed exception sub-hierarchy.
	ShadowThrowableName = InternalPrefix + "ShadowThrowable"
)

// Post-rename namespace prefixes.
const (
	InternalPrefix       = "i/"
	ShadowPlatformPrefix = "s/"
	ShadowAPIPrefix      = "a/"
	WrapperPrefix        = "w/"
	UserPrefix           = "u/"
)

// APIPackage is the pre-rename prefix of the public sandbox API.
const APIPackage = "org/aleutian/sandbox/api/"

// MethodPrefix marks methods invoked on shadow platform owners. Shadow
// platform types expose their methods under this parallel name.
const MethodPrefix = "sbx_"

// Special method names that are never prefixed.
const (
	ConstructorName       = "<init>"
	StaticInitializerName = "<clinit>"
)

// platformPackages are the pre-rename package prefixes mapped into the
// shadow platform namespace.
var platformPackages = []string{
	"java/lang/",
	"java/util/",
	"java/math/",
	"java/io/",
}

// postRenamePrefixes identify names that are already in the sandbox
// namespace.
var postRenamePrefixes = []string{
	InternalPrefix,
	ShadowPlatformPrefix,
	ShadowAPIPrefix,
	WrapperPrefix,
	UserPrefix,
}

// PlatformPackages returns a copy of the platform package prefixes.
func PlatformPackages() []string {
	out := make([]string, len(platformPackages))
	copy(out, platformPackages)
	return out
}
