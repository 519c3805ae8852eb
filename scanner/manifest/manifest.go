// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package manifest accumulates per-file scan results into the persisted
// scan manifest.
package manifest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/mcpscan/scanner/analysis"
	"github.com/AleutianAI/mcpscan/scanner/catalog"
	"github.com/AleutianAI/mcpscan/scanner/discovery"
	"github.com/AleutianAI/mcpscan/scanner/llm"
)

// ServerEntry is one scanned server or source file in the manifest.
type ServerEntry struct {
	// Name is the display name from discovery metadata.
	Name string `json:"name"`

	// Path is the file's location.
	Path string `json:"path"`

	// Type is the discovery item type (python-server, python-tool, ...).
	Type string `json:"type"`

	// Description is the discovery description, may be empty.
	Description string `json:"description,omitempty"`

	// RiskAnalysis is the static analysis result for the file.
	RiskAnalysis *analysis.Result `json:"risk_analysis"`

	// LLMAnalysis is the optional second-opinion assessment.
	LLMAnalysis *llm.Assessment `json:"llm_analysis,omitempty"`
}

// Stats counts entries by resolved risk level. Levels outside the three
// static bands (UNKNOWN, ERROR, and the LLM-only levels) are intentionally
// uncounted here; they are visible per entry.
type Stats struct {
	SafeCount   int `json:"safe_count"`
	MediumCount int `json:"medium_count"`
	HighCount   int `json:"high_count"`
}

// Manifest is the complete persisted scan record.
type Manifest struct {
	// ScanDate is the UTC completion time in RFC 3339 format.
	ScanDate string `json:"scan_date"`

	// ScanID uniquely identifies this scan run.
	ScanID string `json:"scan_id"`

	// TotalServersFound is the number of entries.
	TotalServersFound int `json:"total_servers_found"`

	// SummaryStatistics counts entries per static risk level.
	SummaryStatistics Stats `json:"summary_statistics"`

	// Servers lists every scanned entry in insertion order.
	Servers []ServerEntry `json:"servers"`
}

// Generator accumulates scan results and produces the manifest.
//
// # Thread Safety
//
// Add may be called concurrently from scan worker goroutines; the generator
// serializes access internally.
type Generator struct {
	mu      sync.Mutex
	scanID  string
	servers []ServerEntry
	stats   Stats
}

// NewGenerator creates an empty Generator with a fresh scan ID.
func NewGenerator() *Generator {
	return &Generator{
		scanID:  uuid.NewString(),
		servers: make([]ServerEntry, 0),
	}
}

// ScanID returns this run's unique identifier.
func (g *Generator) ScanID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.scanID
}

// Add combines one discovery item with its analysis results into a manifest
// entry and updates the level counters.
//
// The counted level is resolved with analysis.ResolveLevel: a present static
// level always wins, and an accompanying LLM assessment supplies the level
// only for entries that carry no static result at all. An assessment never
// shifts the counters for a file the static pass already classified.
func (g *Generator) Add(item discovery.Item, result *analysis.Result, assessment *llm.Assessment) {
	g.mu.Lock()
	defer g.mu.Unlock()

	name := item.Metadata.Name
	if name == "" {
		name = "Unknown"
	}

	g.servers = append(g.servers, ServerEntry{
		Name:         name,
		Path:         item.Path,
		Type:         item.Type,
		Description:  item.Metadata.Description,
		RiskAnalysis: result,
		LLMAnalysis:  assessment,
	})

	var local, external catalog.Level
	if result != nil {
		local = result.RiskLevel
	}
	if assessment != nil {
		external = assessment.RiskLevel
	}
	switch analysis.ResolveLevel(local, external) {
	case catalog.LevelSafe:
		g.stats.SafeCount++
	case catalog.LevelMedium:
		g.stats.MediumCount++
	case catalog.LevelHigh:
		g.stats.HighCount++
	}
}

// Generate builds the final manifest snapshot.
func (g *Generator) Generate() *Manifest {
	g.mu.Lock()
	defer g.mu.Unlock()

	servers := make([]ServerEntry, len(g.servers))
	copy(servers, g.servers)

	return &Manifest{
		ScanDate:          time.Now().UTC().Format(time.RFC3339),
		ScanID:            g.scanID,
		TotalServersFound: len(servers),
		SummaryStatistics: g.stats,
		Servers:           servers,
	}
}

// SaveToFile writes the manifest as indented JSON, creating parent
// directories as needed.
func (g *Generator) SaveToFile(outputPath string) error {
	m := g.Generate()

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create manifest directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		return fmt.Errorf("write manifest to %s: %w", outputPath, err)
	}

	slog.Info("manifest saved", slog.String("path", outputPath))
	return nil
}

// Summary renders a short text summary for CLI display.
func (g *Generator) Summary() string {
	m := g.Generate()

	var b strings.Builder
	fmt.Fprintf(&b, "Scan Complete: %s\n", m.ScanDate)
	fmt.Fprintf(&b, "Total Servers/Tools Found: %d\n", m.TotalServersFound)
	b.WriteString(strings.Repeat("-", 20) + "\n")
	b.WriteString("Risk Summary:\n")
	fmt.Fprintf(&b, "  SAFE:   %d\n", m.SummaryStatistics.SafeCount)
	fmt.Fprintf(&b, "  MEDIUM: %d\n", m.SummaryStatistics.MediumCount)
	fmt.Fprintf(&b, "  HIGH:   %d\n", m.SummaryStatistics.HighCount)
	b.WriteString(strings.Repeat("-", 20))
	return b.String()
}

// Load reads a previously saved manifest from disk.
func Load(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}
