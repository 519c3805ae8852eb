// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package report renders scan manifests for human consumption: a colored
// console summary table, detailed per-server views, and stable JSON.
package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/AleutianAI/mcpscan/scanner/catalog"
	"github.com/AleutianAI/mcpscan/scanner/manifest"
)

var (
	bold   = color.New(color.Bold)
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
)

// levelColor returns the color used for a risk level. Levels outside the
// three static bands render uncolored.
func levelColor(level catalog.Level) *color.Color {
	switch level {
	case catalog.LevelSafe:
		return green
	case catalog.LevelMedium:
		return yellow
	case catalog.LevelHigh, catalog.LevelCritical:
		return red
	default:
		return color.New(color.FgWhite)
	}
}

// ConsoleOutput renders the manifest as a readable summary table.
func ConsoleOutput(m *manifest.Manifest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "\n%s (%s)\n", bold.Sprint("MCP SCAN REPORT"), m.ScanDate)
	b.WriteString(strings.Repeat("=", 80) + "\n")

	header := fmt.Sprintf("%-30s | %-10s | %-8s | %-8s", "Server Name", "Risk", "Score", "Patterns")
	b.WriteString(bold.Sprint(header) + "\n")
	b.WriteString(strings.Repeat("-", 80) + "\n")

	if len(m.Servers) == 0 {
		b.WriteString("No servers found.\n")
	}
	for _, server := range m.Servers {
		name := server.Name
		if len(name) > 29 {
			name = name[:29]
		}
		level := catalog.LevelUnknown
		score := 0
		patterns := 0
		if server.RiskAnalysis != nil {
			level = server.RiskAnalysis.RiskLevel
			score = server.RiskAnalysis.RiskScore
			patterns = len(server.RiskAnalysis.Breakdown)
		}

		fmt.Fprintf(&b, "%-30s | %s | %-8d | %-8d\n",
			name,
			levelColor(level).Sprintf("%-10s", level),
			score,
			patterns)
	}
	b.WriteString(strings.Repeat("-", 80) + "\n")

	b.WriteString(bold.Sprint("Summary:") + "\n")
	fmt.Fprintf(&b, "  Total Servers: %d\n", m.TotalServersFound)
	fmt.Fprintf(&b, "  %s\n", green.Sprintf("SAFE:   %d", m.SummaryStatistics.SafeCount))
	fmt.Fprintf(&b, "  %s\n", yellow.Sprintf("MEDIUM: %d", m.SummaryStatistics.MediumCount))
	fmt.Fprintf(&b, "  %s\n", red.Sprintf("HIGH:   %d", m.SummaryStatistics.HighCount))
	b.WriteString(strings.Repeat("=", 80))

	return b.String()
}

// JSONOutput renders the manifest as indented JSON.
func JSONOutput(m *manifest.Manifest) (string, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	return string(data), nil
}

// ServerDetails renders one server entry with every detected pattern and
// category-specific recommendations.
func ServerDetails(server manifest.ServerEntry) string {
	var b strings.Builder

	level := catalog.LevelUnknown
	score := 0
	if server.RiskAnalysis != nil {
		level = server.RiskAnalysis.RiskLevel
		score = server.RiskAnalysis.RiskScore
	}

	fmt.Fprintf(&b, "\n%s\n", bold.Sprintf("Server Details: %s", server.Name))
	fmt.Fprintf(&b, "File: %s\n", server.Path)
	fmt.Fprintf(&b, "Risk Level: %s (Score: %d)\n", levelColor(level).Sprint(level), score)

	if server.RiskAnalysis == nil || len(server.RiskAnalysis.Breakdown) == 0 {
		fmt.Fprintf(&b, "\n%s\n", green.Sprint("No dangerous patterns detected."))
		b.WriteString(strings.Repeat("-", 60))
		return b.String()
	}

	fmt.Fprintf(&b, "\n%s\n", bold.Sprint("Dangerous Patterns Detected:"))
	seen := make(map[catalog.Category]struct{})
	for _, f := range server.RiskAnalysis.Breakdown {
		fmt.Fprintf(&b, "  %s Line %-4d [%s] %s (%d pts)\n",
			red.Sprint("x"), f.Line, f.Category, f.Description, f.Score)
		seen[f.Category] = struct{}{}
	}

	fmt.Fprintf(&b, "\n%s\n", bold.Sprint("Recommendations:"))
	for _, rec := range recommendations(seen) {
		fmt.Fprintf(&b, "  - %s\n", rec)
	}

	b.WriteString(strings.Repeat("-", 60))
	return b.String()
}

// recommendations returns remediation advice for the categories present, in
// canonical category order.
func recommendations(seen map[catalog.Category]struct{}) []string {
	advice := map[catalog.Category]string{
		catalog.CategoryDangerousImport:  "Review use of system modules (os, subprocess). Use safer alternatives if possible.",
		catalog.CategoryDynamicExecution: "Avoid dynamic execution (eval, exec) as it poses severe security risks.",
		catalog.CategoryFileOperation:    "Ensure file operations do not allow arbitrary path access.",
		catalog.CategoryNetworkOperation: "Verify that network calls are restricted to trusted endpoints.",
	}

	recs := make([]string, 0, len(seen))
	for _, cat := range catalog.Categories() {
		if _, ok := seen[cat]; ok {
			recs = append(recs, advice[cat])
		}
	}
	return recs
}
