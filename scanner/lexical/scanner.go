// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lexical implements the raw-text half of the dual evidence pipeline:
// word-boundary regex search over source lines, independent of the syntax
// tree. It overlaps with the structural queries in scanner/ast on purpose:
// both passes may fire on the same construct and both findings are kept, so
// neither pass can silently suppress the other's evidence.
package lexical

import (
	"regexp"
	"strings"
)

// Hit records one token occurrence on one source line.
type Hit struct {
	// Token is the catalogue token that matched.
	Token string

	// Line is the 1-based line number of the match.
	Line int
}

// Scanner performs line-oriented token search with comment suppression.
//
// A Scanner compiles one word-boundary pattern per token at construction so
// repeated scans don't pay recompilation cost. Scanners are immutable and
// safe for concurrent use.
type Scanner struct {
	tokens   []string
	patterns []*regexp.Regexp
}

// NewScanner compiles word-boundary patterns for the given tokens.
//
// Token order is preserved: Scan reports hits grouped by token in declaration
// order. The boundary match guarantees that a token like "os" does not match
// inside "costs".
func NewScanner(tokens []string) *Scanner {
	s := &Scanner{
		tokens:   append([]string(nil), tokens...),
		patterns: make([]*regexp.Regexp, 0, len(tokens)),
	}
	for _, tok := range s.tokens {
		s.patterns = append(s.patterns, regexp.MustCompile(`\b`+regexp.QuoteMeta(tok)+`\b`))
	}
	return s
}

// Scan searches the source text for the scanner's tokens.
//
// Lines whose first non-whitespace character is '#' are skipped, so
// comment-only mentions of dangerous symbols contribute no evidence. A token
// appearing more than once on the same line yields exactly one hit for that
// line. Results are ordered by token declaration order, then ascending line
// number; this ordering is part of the observable contract because the
// breakdown is shown to humans in hit order.
func (s *Scanner) Scan(source string) []Hit {
	lines := strings.Split(source, "\n")
	hits := make([]Hit, 0)

	for i, pattern := range s.patterns {
		for n, line := range lines {
			if isCommentLine(line) {
				continue
			}
			if pattern.MatchString(line) {
				hits = append(hits, Hit{Token: s.tokens[i], Line: n + 1})
			}
		}
	}
	return hits
}

// isCommentLine reports whether the line is a comment from its first
// non-whitespace character.
func isCommentLine(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "#")
}
