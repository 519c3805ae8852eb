// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lexical

import "testing"

func TestScanner_Scan_WordBoundary(t *testing.T) {
	s := NewScanner([]string{"os"})

	// "costs" and "osprey" contain "os" but not as a standalone word.
	hits := s.Scan("total costs = osprey\nimport os")
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d: %v", len(hits), hits)
	}
	if hits[0].Token != "os" || hits[0].Line != 2 {
		t.Errorf("expected os@2, got %s@%d", hits[0].Token, hits[0].Line)
	}
}

func TestScanner_Scan_CommentSuppression(t *testing.T) {
	s := NewScanner([]string{"eval"})

	source := "# eval is dangerous\n    # eval again\neval(x)"
	hits := s.Scan(source)
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].Line != 3 {
		t.Errorf("expected hit on line 3, got %d", hits[0].Line)
	}
}

func TestScanner_Scan_TrailingCommentStillCounts(t *testing.T) {
	s := NewScanner([]string{"exec"})

	// Only lines that START with # are suppressed.
	hits := s.Scan("x = 1  # exec mentioned here")
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit for trailing comment, got %d", len(hits))
	}
}

func TestScanner_Scan_OneHitPerTokenPerLine(t *testing.T) {
	s := NewScanner([]string{"os"})

	hits := s.Scan("os.path.join(os.getcwd(), os.sep)")
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit for repeated token on one line, got %d", len(hits))
	}
}

func TestScanner_Scan_TokenOrderThenLineOrder(t *testing.T) {
	s := NewScanner([]string{"os", "subprocess"})

	source := "import subprocess\nimport os\nsubprocess.run(cmd)"
	hits := s.Scan(source)

	want := []Hit{
		{Token: "os", Line: 2},
		{Token: "subprocess", Line: 1},
		{Token: "subprocess", Line: 3},
	}
	if len(hits) != len(want) {
		t.Fatalf("expected %d hits, got %d: %v", len(want), len(hits), hits)
	}
	for i, h := range want {
		if hits[i] != h {
			t.Errorf("hit[%d] = %v, want %v", i, hits[i], h)
		}
	}
}

func TestScanner_Scan_EmptySource(t *testing.T) {
	s := NewScanner([]string{"os"})
	if hits := s.Scan(""); len(hits) != 0 {
		t.Errorf("expected no hits on empty source, got %v", hits)
	}
}

func TestScanner_Scan_NoTokens(t *testing.T) {
	s := NewScanner(nil)
	if hits := s.Scan("import os"); len(hits) != 0 {
		t.Errorf("expected no hits with empty token set, got %v", hits)
	}
}

func TestScanner_Scan_UnderscoreToken(t *testing.T) {
	s := NewScanner([]string{"__import__"})

	hits := s.Scan(`mod = __import__("os")`)
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit for __import__, got %d", len(hits))
	}
}

func TestScanner_Scan_Deterministic(t *testing.T) {
	s := NewScanner([]string{"eval", "exec"})
	source := "eval(a)\nexec(b)\neval(c)"

	first := s.Scan(source)
	second := s.Scan(source)
	if len(first) != len(second) {
		t.Fatalf("hit counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("hit[%d] differs between scans: %v vs %v", i, first[i], second[i])
		}
	}
}
