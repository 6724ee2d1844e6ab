// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/zeebo/blake3"
)

// Key addresses one module outcome: a keyed BLAKE3 hash over the pipeline
// version, the entry point and every (name, bytes) pair in name order.
type Key [32]byte

// moduleDomainKey separates module keys from any other BLAKE3 use.
var moduleDomainKey = [32]byte{
	'a', 'l', 'e', 'u', 't', 'i', 'a', 'n', '.', 's', 'a', 'n', 'd', 'b', 'o', 'x',
	'.', 'm', 'o', 'd', 'u', 'l', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// NewKey computes the key for a module.
//
// Description:
//
//	Each field is length-prefixed so that no two distinct modules hash the
//	same byte stream. Class order in the map does not matter.
//
// Inputs:
//
//	version - The pipeline version. Outcomes from other versions never match.
//	entryPoint - The module's entry point class.
//	classes - Class bytes keyed by internal name.
//
// Outputs:
//
//	Key - The content address.
func NewKey(version, entryPoint string, classes map[string][]byte) Key {
	hasher, err := blake3.NewKeyed(moduleDomainKey[:])
	if err != nil {
		panic("cache: BLAKE3 keyed hash initialization failed: " + err.Error())
	}

	names := make([]string, 0, len(classes))
	for name := range classes {
		names = append(names, name)
	}
	sort.Strings(names)

	var lenBuf [8]byte
	write := func(b []byte) {
		n := uint64(len(b))
		for i := range lenBuf {
			lenBuf[i] = byte(n >> (8 * i))
		}
		hasher.Write(lenBuf[:])
		hasher.Write(b)
	}

	write([]byte(version))
	write([]byte(entryPoint))
	for _, name := range names {
		write([]byte(name))
		write(classes[name])
	}

	var key Key
	copy(key[:], hasher.Sum(nil))
	return key
}

// String returns the key as lowercase hex.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// ParseKey parses a key produced by String.
func ParseKey(s string) (Key, error) {
	var key Key
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("parsing cache key: %w", err)
	}
	if len(decoded) != len(key) {
		return key, fmt.Errorf("cache key is %d bytes, want %d", len(decoded), len(key))
	}
	copy(key[:], decoded)
	return key, nil
}
