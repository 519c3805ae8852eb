// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package pipeline orchestrates the full scan workflow: discovery, static
// analysis, optional LLM assessment, and manifest generation.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/mcpscan/scanner/analysis"
	"github.com/AleutianAI/mcpscan/scanner/catalog"
	"github.com/AleutianAI/mcpscan/scanner/discovery"
	"github.com/AleutianAI/mcpscan/scanner/llm"
	"github.com/AleutianAI/mcpscan/scanner/manifest"
)

// DefaultWorkers bounds concurrent per-file analysis.
const DefaultWorkers = 4

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCatalog overrides the pattern catalogue used for static analysis.
func WithCatalog(cat *catalog.Catalog) Option {
	return func(p *Pipeline) {
		p.analyzer = analysis.NewAnalyzer(cat)
	}
}

// WithLLM enables the second-opinion LLM assessment with the given
// analyzer.
func WithLLM(a *llm.Analyzer) Option {
	return func(p *Pipeline) { p.llm = a }
}

// WithMaxFiles caps how many source files one scan will process.
func WithMaxFiles(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxFiles = n
		}
	}
}

// WithWorkers sets the number of concurrent analysis workers.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// Pipeline wires the scan stages together.
//
// A Pipeline is safe for concurrent Run calls; each run uses its own
// manifest generator.
type Pipeline struct {
	scanner  *discovery.FileScanner
	analyzer *analysis.Analyzer
	llm      *llm.Analyzer
	maxFiles int
	workers  int
}

// New creates a Pipeline with the default catalogue and no LLM pass.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		scanner:  discovery.NewFileScanner(),
		analyzer: analysis.NewAnalyzer(nil),
		maxFiles: discovery.DefaultMaxFiles,
		workers:  DefaultWorkers,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// fileOutcome pairs one discovery item with its analysis results.
type fileOutcome struct {
	item       discovery.Item
	result     *analysis.Result
	assessment *llm.Assessment
}

// Run executes the complete scan pipeline over a directory tree.
//
// Description:
//
//	Discovery collects every scannable source file, duplicates are
//	dropped, and files are analyzed by a bounded worker pool. Python files
//	get the full static analysis; other source files are recorded with
//	level UNKNOWN pending manual review. When an LLM analyzer is
//	configured, every readable file additionally gets the second-opinion
//	assessment. Results are added to the manifest in discovery order
//	regardless of worker completion order, then saved to outputPath.
//
// Outputs:
//   - *manifest.Manifest: the completed manifest, also written to disk.
//   - string: text summary for display.
//   - error: directory not found, scan canceled, or manifest save failure.
//     Per-file failures are encoded in entries, never returned.
func (p *Pipeline) Run(ctx context.Context, directory, outputPath string) (*manifest.Manifest, string, error) {
	info, err := os.Stat(directory)
	if err != nil || !info.IsDir() {
		return nil, "", fmt.Errorf("directory not found: %s", directory)
	}

	slog.Info("starting scan", slog.String("root", directory))

	gen := manifest.NewGenerator()

	items := dedupe(p.scanner.DiscoverAllFiles(ctx, directory, p.maxFiles))
	if len(items) == 0 {
		slog.Warn("no source files found")
		if err := gen.SaveToFile(outputPath); err != nil {
			return nil, "", err
		}
		return gen.Generate(), "Scan complete. No source files found.", nil
	}

	slog.Info("discovered source files", slog.Int("count", len(items)))

	outcomes := make([]fileOutcome, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			outcomes[i] = p.analyzeItem(gctx, item)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, "", fmt.Errorf("scan canceled: %w", err)
	}

	for _, o := range outcomes {
		gen.Add(o.item, o.result, o.assessment)
	}

	if err := gen.SaveToFile(outputPath); err != nil {
		return nil, "", err
	}
	slog.Info("scan results saved", slog.String("path", outputPath))

	return gen.Generate(), gen.Summary(), nil
}

// analyzeItem runs the static and optional LLM passes for one file.
func (p *Pipeline) analyzeItem(ctx context.Context, item discovery.Item) fileOutcome {
	out := fileOutcome{item: item}

	content, err := os.ReadFile(item.Path)
	if err != nil {
		slog.Warn("could not read file",
			slog.String("path", item.Path),
			slog.Any("error", err))
		out.result = &analysis.Result{
			RiskLevel: catalog.LevelError,
			Error:     fmt.Sprintf("could not read file: %v", err),
			Breakdown: []analysis.Finding{},
			Imports:   []string{},
		}
		return out
	}

	if strings.EqualFold(filepath.Ext(item.Path), ".py") || filepath.Ext(item.Path) == ".pyi" {
		out.result = p.analyzer.ScanCode(ctx, content, item.Path)
	} else {
		// Static analysis covers Python only; other files are recorded
		// for visibility and the LLM pass.
		out.result = &analysis.Result{
			RiskLevel: catalog.LevelUnknown,
			Breakdown: []analysis.Finding{},
			Imports:   []string{},
		}
	}

	if p.llm != nil && p.llm.Enabled() {
		slog.Info("running LLM analysis", slog.String("file", filepath.Base(item.Path)))
		out.assessment = p.llm.AnalyzeCode(ctx, string(content), item.Path)
		out.assessment.Normalize()
	}

	return out
}

// dedupe drops items whose path was already seen, keeping first occurrence
// order.
func dedupe(items []discovery.Item) []discovery.Item {
	seen := make(map[string]struct{}, len(items))
	out := make([]discovery.Item, 0, len(items))
	for _, item := range items {
		if _, dup := seen[item.Path]; dup {
			slog.Warn("skipping duplicate", slog.String("path", item.Path))
			continue
		}
		seen[item.Path] = struct{}{}
		out = append(out, item)
	}
	return out
}
