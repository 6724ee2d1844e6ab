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

import "errors"

// Sentinel errors for the result cache.
var (
	// ErrNotFound is returned by Get when no live record exists for a key.
	ErrNotFound = errors.New("cache record not found")

	// ErrCorrupt is returned when a stored record cannot be decoded.
	ErrCorrupt = errors.New("cache record corrupt")

	// ErrUnknownCompression is returned for an unrecognized compression
	// name or tag.
	ErrUnknownCompression = errors.New("unknown compression")

	// ErrClosed is returned by operations on a closed Store.
	ErrClosed = errors.New("cache closed")

	// ErrInvalidConfig is returned by Open for an unusable Config.
	ErrInvalidConfig = errors.New("invalid cache config")
)
