// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog holds the weighted, versioned pattern catalogue that drives
// risk scoring.
//
// A Catalog maps four disjoint risk categories to token sets, per-category
// point weights, and an ordered list of contiguous score bands that resolve a
// total score into a discrete risk level. Catalogs are validated at
// construction time: a malformed catalogue is a configuration error surfaced
// before any file is scanned, never a scan-time failure.
//
// # Thread Safety
//
// A Catalog is immutable after construction and safe for concurrent use from
// any number of scan goroutines.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Category identifies one of the four risk categories.
//
// The declaration order of the constants is the canonical processing order
// for aggregation: findings appear in the breakdown grouped by category in
// exactly this order, which keeps repeated scans of unchanged code
// byte-identical.
type Category string

const (
	// CategoryDangerousImport covers modules whose presence alone is risky
	// (process and OS control, e.g. os, subprocess).
	CategoryDangerousImport Category = "DANGEROUS_IMPORTS"

	// CategoryDynamicExecution covers dynamic code evaluation symbols
	// (eval, exec, __import__).
	CategoryDynamicExecution Category = "DYNAMIC_EXECUTION"

	// CategoryFileOperation covers filesystem access and mutation calls.
	CategoryFileOperation Category = "FILE_OPERATIONS"

	// CategoryNetworkOperation covers network client modules and calls.
	CategoryNetworkOperation Category = "NETWORK_OPERATIONS"
)

// Categories returns the four categories in canonical processing order.
func Categories() []Category {
	return []Category{
		CategoryDangerousImport,
		CategoryDynamicExecution,
		CategoryFileOperation,
		CategoryNetworkOperation,
	}
}

// Level is a discrete risk severity assigned to a scanned file.
type Level string

const (
	// LevelSafe indicates no meaningful risk evidence.
	LevelSafe Level = "SAFE"

	// LevelLow is only produced by the secondary LLM assessment, which
	// scores on a finer 0-10 scale than the static bands.
	LevelLow Level = "LOW"

	// LevelMedium indicates moderate risk evidence.
	LevelMedium Level = "MEDIUM"

	// LevelHigh indicates strong risk evidence.
	LevelHigh Level = "HIGH"

	// LevelCritical is only produced by the secondary LLM assessment.
	LevelCritical Level = "CRITICAL"

	// LevelUnknown marks files that could not be parsed. A parse failure is
	// an expected outcome (malformed or unsupported-dialect source), not an
	// error.
	LevelUnknown Level = "UNKNOWN"

	// LevelError marks files where analysis itself failed unexpectedly.
	LevelError Level = "ERROR"
)

// Band maps a contiguous inclusive score interval to a risk level.
type Band struct {
	// Level assigned to scores within the band.
	Level Level `yaml:"level"`

	// Min is the inclusive lower bound.
	Min int `yaml:"min"`

	// Max is the inclusive upper bound.
	Max int `yaml:"max"`
}

// Catalog is the immutable pattern catalogue consulted during scoring.
type Catalog struct {
	tokens  map[Category][]string
	weights map[Category]int
	bands   []Band
}

// New creates a Catalog from explicit token sets, weights, and bands,
// validating the whole configuration.
//
// Inputs:
//   - tokens: per-category token lists. Order is preserved; the lexical
//     scanner reports hits in token declaration order.
//   - weights: per-category point values. Must be non-negative.
//   - bands: ordered score bands. Must start at 0, be contiguous, and be
//     monotonically increasing with no gaps or overlaps.
//
// Outputs:
//   - *Catalog: validated catalogue.
//   - error: wraps ErrInvalidWeight or ErrInvalidBands on misconfiguration.
func New(tokens map[Category][]string, weights map[Category]int, bands []Band) (*Catalog, error) {
	c := &Catalog{
		tokens:  make(map[Category][]string, len(tokens)),
		weights: make(map[Category]int, len(weights)),
		bands:   make([]Band, len(bands)),
	}
	for cat, toks := range tokens {
		c.tokens[cat] = append([]string(nil), toks...)
	}
	for cat, w := range weights {
		c.weights[cat] = w
	}
	copy(c.bands, bands)

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Default returns the built-in catalogue.
//
// Token sets and weights mirror the shipped scanner policy: dangerous imports
// score 20, file and network operations 15, dynamic execution 10. Bands are
// SAFE [0,30], MEDIUM [31,60], HIGH [61,100]; any score above 100 resolves to
// HIGH via the fail-closed rule in Classify.
func Default() *Catalog {
	c, err := New(
		map[Category][]string{
			CategoryDangerousImport:  {"os", "subprocess"},
			CategoryDynamicExecution: {"eval", "exec", "__import__"},
			CategoryFileOperation:    {"open", "write", "read", "remove", "rmdir"},
			CategoryNetworkOperation: {"requests", "urllib", "socket", "http"},
		},
		map[Category]int{
			CategoryDangerousImport:  20,
			CategoryDynamicExecution: 10,
			CategoryFileOperation:    15,
			CategoryNetworkOperation: 15,
		},
		[]Band{
			{Level: LevelSafe, Min: 0, Max: 30},
			{Level: LevelMedium, Min: 31, Max: 60},
			{Level: LevelHigh, Min: 61, Max: 100},
		},
	)
	if err != nil {
		// The built-in catalogue is validated by tests; reaching this is a
		// programming error, not a runtime condition.
		panic(fmt.Sprintf("catalog: built-in catalogue invalid: %v", err))
	}
	return c
}

// fileFormat is the YAML override schema accepted by LoadFile.
type fileFormat struct {
	DangerousImports  []string `yaml:"dangerous_imports"`
	DynamicExecution  []string `yaml:"dynamic_execution"`
	FileOperations    []string `yaml:"file_operations"`
	NetworkOperations []string `yaml:"network_operations"`

	Weights map[string]int `yaml:"weights"`
	Bands   []Band         `yaml:"bands"`
}

// LoadFile reads a catalogue override from a YAML file.
//
// Any section omitted from the file falls back to the built-in default, so a
// deployment can retune weights without restating every token list. The
// merged catalogue is fully re-validated.
//
// Inputs:
//   - path: path to the YAML override file.
//
// Outputs:
//   - *Catalog: validated merged catalogue.
//   - error: I/O failure, YAML syntax error, or validation failure. All are
//     configuration errors and should abort startup.
func LoadFile(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}

	var ff fileFormat
	if err := yaml.Unmarshal(raw, &ff); err != nil {
		return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
	}

	def := Default()

	tokens := map[Category][]string{
		CategoryDangerousImport:  def.Tokens(CategoryDangerousImport),
		CategoryDynamicExecution: def.Tokens(CategoryDynamicExecution),
		CategoryFileOperation:    def.Tokens(CategoryFileOperation),
		CategoryNetworkOperation: def.Tokens(CategoryNetworkOperation),
	}
	if ff.DangerousImports != nil {
		tokens[CategoryDangerousImport] = ff.DangerousImports
	}
	if ff.DynamicExecution != nil {
		tokens[CategoryDynamicExecution] = ff.DynamicExecution
	}
	if ff.FileOperations != nil {
		tokens[CategoryFileOperation] = ff.FileOperations
	}
	if ff.NetworkOperations != nil {
		tokens[CategoryNetworkOperation] = ff.NetworkOperations
	}

	weights := map[Category]int{}
	for _, cat := range Categories() {
		weights[cat] = def.Weight(cat)
	}
	for name, w := range ff.Weights {
		weights[Category(name)] = w
	}

	bands := def.bands
	if ff.Bands != nil {
		bands = ff.Bands
	}

	c, err := New(tokens, weights, bands)
	if err != nil {
		return nil, fmt.Errorf("catalog file %s: %w", path, err)
	}
	return c, nil
}

// Weight returns the point value added per finding in the category.
// Unknown categories score zero.
func (c *Catalog) Weight(cat Category) int {
	return c.weights[cat]
}

// Tokens returns a copy of the category's token list in declaration order.
func (c *Catalog) Tokens(cat Category) []string {
	return append([]string(nil), c.tokens[cat]...)
}

// Classify resolves a total score into a risk level.
//
// Classification fails closed: a score above the highest declared band
// resolves to the most severe declared level rather than being dropped or
// reported as safe. Negative scores cannot occur (weights are validated
// non-negative) and classify as the first band.
func (c *Catalog) Classify(score int) Level {
	for _, b := range c.bands {
		if score >= b.Min && score <= b.Max {
			return b.Level
		}
	}
	if score < c.bands[0].Min {
		return c.bands[0].Level
	}
	return c.bands[len(c.bands)-1].Level
}

// Bands returns a copy of the declared score bands in order.
func (c *Catalog) Bands() []Band {
	return append([]Band(nil), c.bands...)
}

// validate checks weights and band contiguity.
func (c *Catalog) validate() error {
	for cat, w := range c.weights {
		if w < 0 {
			return fmt.Errorf("%w: category %s has weight %d", ErrInvalidWeight, cat, w)
		}
	}

	if len(c.bands) == 0 {
		return fmt.Errorf("%w: no bands declared", ErrInvalidBands)
	}
	if c.bands[0].Min != 0 {
		return fmt.Errorf("%w: first band must start at 0, got %d", ErrInvalidBands, c.bands[0].Min)
	}
	for i, b := range c.bands {
		if b.Level == "" {
			return fmt.Errorf("%w: band %d has empty level", ErrInvalidBands, i)
		}
		if b.Max < b.Min {
			return fmt.Errorf("%w: band %s has max %d < min %d", ErrInvalidBands, b.Level, b.Max, b.Min)
		}
		if i > 0 && b.Min != c.bands[i-1].Max+1 {
			return fmt.Errorf("%w: band %s starts at %d, previous band ends at %d",
				ErrInvalidBands, b.Level, b.Min, c.bands[i-1].Max)
		}
	}
	return nil
}
