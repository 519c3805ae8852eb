// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import "errors"

// Sentinel errors for the catalog package. All indicate configuration
// problems detected at construction time.
var (
	// ErrInvalidWeight is returned when a category weight is negative.
	ErrInvalidWeight = errors.New("category weight must be non-negative")

	// ErrInvalidBands is returned when the score bands are missing,
	// non-contiguous, or not monotonically increasing.
	ErrInvalidBands = errors.New("risk bands must be contiguous and increasing from 0")
)
