// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package analysis combines the structural and lexical evidence pipelines
// into a single deterministic risk score per file.
//
// The engine is a pure function of (catalogue, source bytes): no state
// survives between scans, so scanning the same bytes twice always produces
// identical results, including breakdown ordering. Per-file failures never
// escape ScanCode as errors or panics; they are encoded as UNKNOWN or ERROR
// results so a batch over many files cannot be aborted by one bad input.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/AleutianAI/mcpscan/scanner/ast"
	"github.com/AleutianAI/mcpscan/scanner/catalog"
	"github.com/AleutianAI/mcpscan/scanner/lexical"
)

// syntaxErrorMessage is the stable error string for unparseable files. The
// manifest persists it verbatim, so it is a compatibility surface.
const syntaxErrorMessage = "SyntaxError parsing file"

// Analyzer scores Python source for dangerous-capability evidence.
//
// # Thread Safety
//
// An Analyzer is immutable after construction; ScanCode may be called
// concurrently from any number of goroutines.
type Analyzer struct {
	cat    *catalog.Catalog
	parser *ast.PythonParser

	// Lexical scanners are compiled once per category that uses the
	// raw-text pass (dangerous imports and dynamic execution).
	importScan  *lexical.Scanner
	dynamicScan *lexical.Scanner
}

// NewAnalyzer creates an Analyzer driven by the given catalogue.
//
// Inputs:
//   - cat: validated pattern catalogue. Passing nil selects the built-in
//     default catalogue.
//
// Outputs:
//   - *Analyzer: ready-to-use engine, never nil.
func NewAnalyzer(cat *catalog.Catalog) *Analyzer {
	if cat == nil {
		cat = catalog.Default()
	}
	return &Analyzer{
		cat:         cat,
		parser:      ast.NewPythonParser(),
		importScan:  lexical.NewScanner(cat.Tokens(catalog.CategoryDangerousImport)),
		dynamicScan: lexical.NewScanner(cat.Tokens(catalog.CategoryDynamicExecution)),
	}
}

// Catalog returns the catalogue the analyzer scores with.
func (a *Analyzer) Catalog() *catalog.Catalog {
	return a.cat
}

// ScanCode analyzes one Python source buffer and returns its risk result.
//
// Description:
//
//	The four categories are evaluated over the same inputs: dangerous
//	imports and dynamic execution by word-boundary text search with comment
//	suppression, file operations by bare-name call resolution over the
//	syntax tree, and network operations by qualified call resolution. The
//	evidence is aggregated in canonical category order into a breakdown,
//	summed into a score, and band-resolved into a level.
//
// Inputs:
//   - ctx: Context for cancellation and tracing.
//   - content: Raw Python source bytes.
//   - filePath: Path used for reporting and tracing only; no I/O occurs.
//
// Outputs:
//   - *Result: Never nil. Unparseable source yields level UNKNOWN with a
//     zero score and empty breakdown; any unexpected failure (including a
//     recovered panic) yields level ERROR. ScanCode never returns an error
//     because per-file failure must not abort a batch.
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (a *Analyzer) ScanCode(ctx context.Context, content []byte, filePath string) (result *Result) {
	ctx, span := ast.StartScanSpan(ctx, filePath, len(content))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("scan panicked",
				slog.String("file", filePath),
				slog.Any("panic", r))
			result = errorResult(fmt.Sprintf("internal scan failure: %v", r))
		}
	}()

	file, err := a.parser.Parse(ctx, content, filePath)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return errorResult(fmt.Sprintf("scan canceled: %v", err))
		}
		return errorResult(err.Error())
	}
	defer file.Close()

	if file.HasSyntaxError() {
		return &Result{
			RiskScore: 0,
			RiskLevel: catalog.LevelUnknown,
			Error:     syntaxErrorMessage,
			Breakdown: []Finding{},
			Imports:   []string{},
		}
	}

	source := string(content)

	// The four category evaluations share no mutable state, so they run
	// concurrently; the merge below restores the canonical order.
	var (
		wg          sync.WaitGroup
		importHits  []lexical.Hit
		dynamicHits []lexical.Hit
		fileCalls   []ast.Call
		netCalls    []ast.Call
		imports     []string
	)
	wg.Add(5)
	go func() { defer wg.Done(); importHits = a.importScan.Scan(source) }()
	go func() { defer wg.Done(); dynamicHits = a.dynamicScan.Scan(source) }()
	go func() {
		defer wg.Done()
		fileCalls = file.Calls(a.cat.Tokens(catalog.CategoryFileOperation), ast.MatchBareName)
	}()
	go func() {
		defer wg.Done()
		netCalls = file.Calls(a.cat.Tokens(catalog.CategoryNetworkOperation), ast.MatchQualified)
	}()
	go func() { defer wg.Done(); imports = file.Imports() }()
	wg.Wait()

	breakdown := make([]Finding, 0, len(importHits)+len(dynamicHits)+len(fileCalls)+len(netCalls))
	score := 0

	for _, cat := range catalog.Categories() {
		weight := a.cat.Weight(cat)
		switch cat {
		case catalog.CategoryDangerousImport:
			for _, h := range importHits {
				breakdown = append(breakdown, finding(cat, h.Token, h.Line, weight))
				score += weight
			}
		case catalog.CategoryDynamicExecution:
			for _, h := range dynamicHits {
				breakdown = append(breakdown, finding(cat, h.Token, h.Line, weight))
				score += weight
			}
		case catalog.CategoryFileOperation:
			for _, c := range fileCalls {
				breakdown = append(breakdown, finding(cat, c.Name, c.Line, weight))
				score += weight
			}
		case catalog.CategoryNetworkOperation:
			for _, c := range netCalls {
				breakdown = append(breakdown, finding(cat, c.Name, c.Line, weight))
				score += weight
			}
		}
	}

	return &Result{
		RiskScore: score,
		RiskLevel: a.cat.Classify(score),
		Breakdown: breakdown,
		Imports:   imports,
		Summary:   summarize(breakdown),
	}
}

// finding builds one breakdown entry with its category-specific description.
func finding(cat catalog.Category, item string, line, weight int) Finding {
	return Finding{
		Category:    cat,
		Item:        item,
		Line:        line,
		Score:       weight,
		Description: describe(cat, item, weight),
	}
}

// describe renders the human-readable explanation for one finding.
func describe(cat catalog.Category, item string, weight int) string {
	switch cat {
	case catalog.CategoryDangerousImport:
		return fmt.Sprintf("Import/Usage of system module '%s' (+%d)", item, weight)
	case catalog.CategoryDynamicExecution:
		return fmt.Sprintf("Dynamic execution using '%s' (+%d)", item, weight)
	case catalog.CategoryFileOperation:
		return fmt.Sprintf("File operation '%s' detected (+%d)", item, weight)
	case catalog.CategoryNetworkOperation:
		return fmt.Sprintf("Network call '%s' detected (+%d)", item, weight)
	default:
		return fmt.Sprintf("Pattern '%s' detected (+%d)", item, weight)
	}
}

// errorResult builds the fixed-shape result for analysis-level failures.
func errorResult(msg string) *Result {
	return &Result{
		RiskScore: 0,
		RiskLevel: catalog.LevelError,
		Error:     msg,
		Breakdown: []Finding{},
		Imports:   []string{},
	}
}
