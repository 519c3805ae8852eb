// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import "github.com/AleutianAI/mcpscan/scanner/catalog"

// Finding is one unit of evidence that a dangerous pattern occurred.
//
// Findings are immutable once created. Multiple findings may share category
// and item when the same symbol occurs on multiple lines; each occurrence is
// counted separately, never deduplicated.
//
// The JSON field names are a compatibility surface: downstream formatting
// and the persisted manifest key on them verbatim.
type Finding struct {
	// Category is the risk category the finding belongs to.
	Category catalog.Category `json:"category"`

	// Item is the matched token or resolved call name.
	Item string `json:"item"`

	// Line is the 1-based source line, 0 when unknown.
	Line int `json:"line"`

	// Score is the point value this finding contributed.
	Score int `json:"score"`

	// Description is the human-readable explanation.
	Description string `json:"description"`
}

// Summary holds per-category occurrence counts.
//
// Counts are always derived from the breakdown, never tallied separately,
// so the two can't drift apart.
type Summary struct {
	DangerousImports int `json:"dangerous_imports"`
	DynamicExecution int `json:"dynamic_execution"`
	FileOperations   int `json:"file_operations"`
	NetworkCalls     int `json:"network_calls"`
}

// Result is the outcome of scanning one file.
//
// A Result is constructed fresh per scan, never mutated after return, and
// owned solely by the caller that requested the scan. Every failure mode is
// encoded here rather than returned as an error: parse failures carry level
// UNKNOWN, unexpected per-file failures carry level ERROR, and in both cases
// Error explains what happened.
type Result struct {
	// RiskScore is the non-negative weighted total.
	RiskScore int `json:"risk_score"`

	// RiskLevel is the band-resolved severity.
	RiskLevel catalog.Level `json:"risk_level"`

	// Error explains an UNKNOWN or ERROR outcome. Empty on success.
	Error string `json:"error,omitempty"`

	// Breakdown lists one finding per occurrence, grouped by category in
	// canonical order, then in evidence order within the category.
	Breakdown []Finding `json:"breakdown"`

	// Imports is the sorted, deduplicated set of imported module paths.
	Imports []string `json:"imports"`

	// Summary holds per-category counts derived from Breakdown.
	Summary Summary `json:"summary"`
}

// summarize derives per-category counts from a breakdown.
func summarize(breakdown []Finding) Summary {
	var s Summary
	for _, f := range breakdown {
		switch f.Category {
		case catalog.CategoryDangerousImport:
			s.DangerousImports++
		case catalog.CategoryDynamicExecution:
			s.DynamicExecution++
		case catalog.CategoryFileOperation:
			s.FileOperations++
		case catalog.CategoryNetworkOperation:
			s.NetworkCalls++
		}
	}
	return s
}

// ResolveLevel merges a locally computed level with an externally supplied
// one (for example from the secondary LLM assessment).
//
// The external level is accepted verbatim only when the local level is
// absent; a present local level is never overridden by a missing or present
// external one.
func ResolveLevel(local, external catalog.Level) catalog.Level {
	if local != "" {
		return local
	}
	return external
}
