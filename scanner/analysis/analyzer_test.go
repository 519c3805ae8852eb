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

import (
	"context"
	"reflect"
	"testing"

	"github.com/AleutianAI/mcpscan/scanner/catalog"
)

const (
	testPyClean = `"""A harmless helper."""

def add(a, b):
    return a + b
`

	testPyDangerous = `import os
import subprocess

def run(cmd):
    subprocess.call(cmd)
    eval("1+1")
`

	testPyFileOps = `f = open("data.txt")
f.write("x")
`

	testPyNetwork = `import requests

def fetch(url):
    return requests.get(url)
`

	testPyComments = `# import os
# subprocess.call("rm -rf /")
# eval("code")
x = 1
`

	testPyBroken = `def broken(:
    return
`
)

func scan(t *testing.T, source string) *Result {
	t.Helper()
	a := NewAnalyzer(nil)
	return a.ScanCode(context.Background(), []byte(source), "test.py")
}

func TestAnalyzer_ScanCode_CleanFile(t *testing.T) {
	result := scan(t, testPyClean)

	if result.RiskScore != 0 {
		t.Errorf("score = %d, want 0", result.RiskScore)
	}
	if result.RiskLevel != catalog.LevelSafe {
		t.Errorf("level = %s, want SAFE", result.RiskLevel)
	}
	if len(result.Breakdown) != 0 {
		t.Errorf("expected empty breakdown, got %v", result.Breakdown)
	}
	if result.Error != "" {
		t.Errorf("unexpected error field: %q", result.Error)
	}
	if result.Summary != (Summary{}) {
		t.Errorf("expected zero summary, got %+v", result.Summary)
	}
}

func TestAnalyzer_ScanCode_DangerousFile(t *testing.T) {
	result := scan(t, testPyDangerous)

	// Token hits: os@1, subprocess@2, subprocess@5 at 20 points each, plus
	// eval@6 at 10.
	if result.RiskScore != 70 {
		t.Errorf("score = %d, want 70", result.RiskScore)
	}
	if result.RiskLevel != catalog.LevelHigh {
		t.Errorf("level = %s, want HIGH", result.RiskLevel)
	}
	if len(result.Breakdown) != 4 {
		t.Fatalf("expected 4 findings, got %d: %v", len(result.Breakdown), result.Breakdown)
	}

	first := result.Breakdown[0]
	if first.Category != catalog.CategoryDangerousImport || first.Item != "os" || first.Line != 1 {
		t.Errorf("unexpected first finding: %+v", first)
	}
	if first.Description != "Import/Usage of system module 'os' (+20)" {
		t.Errorf("unexpected description: %q", first.Description)
	}

	last := result.Breakdown[3]
	if last.Category != catalog.CategoryDynamicExecution || last.Item != "eval" || last.Line != 6 {
		t.Errorf("unexpected last finding: %+v", last)
	}
	if last.Description != "Dynamic execution using 'eval' (+10)" {
		t.Errorf("unexpected description: %q", last.Description)
	}

	if result.Summary.DangerousImports != 3 || result.Summary.DynamicExecution != 1 {
		t.Errorf("unexpected summary: %+v", result.Summary)
	}

	wantImports := []string{"os", "subprocess"}
	if !reflect.DeepEqual(result.Imports, wantImports) {
		t.Errorf("imports = %v, want %v", result.Imports, wantImports)
	}
}

func TestAnalyzer_ScanCode_FileOperations(t *testing.T) {
	result := scan(t, testPyFileOps)

	if result.RiskScore != 30 {
		t.Errorf("score = %d, want 30", result.RiskScore)
	}
	// 30 is the inclusive upper bound of the SAFE band.
	if result.RiskLevel != catalog.LevelSafe {
		t.Errorf("level = %s, want SAFE", result.RiskLevel)
	}
	if result.Summary.FileOperations != 2 {
		t.Errorf("file operation count = %d, want 2", result.Summary.FileOperations)
	}
	if result.Breakdown[0].Description != "File operation 'open' detected (+15)" {
		t.Errorf("unexpected description: %q", result.Breakdown[0].Description)
	}
}

func TestAnalyzer_ScanCode_NetworkOnlyStaysSafe(t *testing.T) {
	result := scan(t, testPyNetwork)

	if result.RiskScore != 15 {
		t.Errorf("score = %d, want 15", result.RiskScore)
	}
	if result.RiskLevel != catalog.LevelSafe {
		t.Errorf("level = %s, want SAFE", result.RiskLevel)
	}
	if len(result.Breakdown) != 1 {
		t.Fatalf("expected 1 finding, got %v", result.Breakdown)
	}
	f := result.Breakdown[0]
	if f.Item != "requests.get" || f.Line != 4 {
		t.Errorf("unexpected network finding: %+v", f)
	}
	if f.Description != "Network call 'requests.get' detected (+15)" {
		t.Errorf("unexpected description: %q", f.Description)
	}
	if result.Summary.NetworkCalls != 1 {
		t.Errorf("network count = %d, want 1", result.Summary.NetworkCalls)
	}
}

func TestAnalyzer_ScanCode_CommentsSuppressed(t *testing.T) {
	result := scan(t, testPyComments)

	if result.RiskScore != 0 {
		t.Errorf("score = %d, want 0 for comment-only mentions", result.RiskScore)
	}
	if len(result.Breakdown) != 0 {
		t.Errorf("expected empty breakdown, got %v", result.Breakdown)
	}
}

func TestAnalyzer_ScanCode_SyntaxError(t *testing.T) {
	result := scan(t, testPyBroken)

	if result.RiskLevel != catalog.LevelUnknown {
		t.Errorf("level = %s, want UNKNOWN", result.RiskLevel)
	}
	if result.RiskScore != 0 {
		t.Errorf("score = %d, want 0", result.RiskScore)
	}
	if result.Error != "SyntaxError parsing file" {
		t.Errorf("error = %q", result.Error)
	}
	if result.Breakdown == nil || len(result.Breakdown) != 0 {
		t.Errorf("expected empty non-nil breakdown, got %v", result.Breakdown)
	}
}

func TestAnalyzer_ScanCode_InvalidUTF8(t *testing.T) {
	a := NewAnalyzer(nil)

	result := a.ScanCode(context.Background(), []byte{0xff, 0xfe}, "bad.py")
	if result.RiskLevel != catalog.LevelError {
		t.Errorf("level = %s, want ERROR", result.RiskLevel)
	}
	if result.Error == "" {
		t.Error("expected explanatory error message")
	}
}

func TestAnalyzer_ScanCode_Canceled(t *testing.T) {
	a := NewAnalyzer(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := a.ScanCode(ctx, []byte(testPyClean), "canceled.py")
	if result.RiskLevel != catalog.LevelError {
		t.Errorf("level = %s, want ERROR", result.RiskLevel)
	}
}

func TestAnalyzer_ScanCode_Idempotent(t *testing.T) {
	a := NewAnalyzer(nil)
	ctx := context.Background()

	first := a.ScanCode(ctx, []byte(testPyDangerous), "repeat.py")
	second := a.ScanCode(ctx, []byte(testPyDangerous), "repeat.py")

	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated scans differ:\n%+v\n%+v", first, second)
	}
}

func TestAnalyzer_ScanCode_SummaryMatchesBreakdown(t *testing.T) {
	result := scan(t, testPyDangerous)

	if got := summarize(result.Breakdown); got != result.Summary {
		t.Errorf("summary %+v does not match breakdown-derived %+v", result.Summary, got)
	}
}

func TestAnalyzer_ScanCode_ScoreIsSumOfFindings(t *testing.T) {
	result := scan(t, testPyDangerous)

	sum := 0
	for _, f := range result.Breakdown {
		sum += f.Score
	}
	if sum != result.RiskScore {
		t.Errorf("score %d != breakdown sum %d", result.RiskScore, sum)
	}
}

func TestAnalyzer_ScanCode_CustomCatalog(t *testing.T) {
	cat, err := catalog.New(
		map[catalog.Category][]string{
			catalog.CategoryDynamicExecution: {"eval"},
		},
		map[catalog.Category]int{
			catalog.CategoryDynamicExecution: 40,
		},
		[]catalog.Band{
			{Level: catalog.LevelSafe, Min: 0, Max: 10},
			{Level: catalog.LevelHigh, Min: 11, Max: 100},
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	a := NewAnalyzer(cat)
	result := a.ScanCode(context.Background(), []byte("eval(x)\n"), "custom.py")

	if result.RiskScore != 40 {
		t.Errorf("score = %d, want 40", result.RiskScore)
	}
	if result.RiskLevel != catalog.LevelHigh {
		t.Errorf("level = %s, want HIGH", result.RiskLevel)
	}
}

func TestResolveLevel(t *testing.T) {
	cases := []struct {
		local    catalog.Level
		external catalog.Level
		want     catalog.Level
	}{
		{catalog.LevelSafe, catalog.LevelCritical, catalog.LevelSafe},
		{"", catalog.LevelCritical, catalog.LevelCritical},
		{catalog.LevelHigh, "", catalog.LevelHigh},
		{"", "", ""},
	}
	for _, tc := range cases {
		if got := ResolveLevel(tc.local, tc.external); got != tc.want {
			t.Errorf("ResolveLevel(%q, %q) = %q, want %q", tc.local, tc.external, got, tc.want)
		}
	}
}
