// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast parses Python source into a tree-sitter syntax tree and runs
// the structural queries behind risk scoring: import extraction, call-site
// extraction against a target symbol set, and decorator-path reconstruction
// for entry-point classification.
//
// The package performs no I/O; callers supply already-loaded source bytes.
// Parsers are safe for concurrent use because each Parse call creates its own
// tree-sitter parser instance internally. Each query is an independent full
// traversal of the parsed tree, so queries for different categories may run
// concurrently over the same File.
package ast

import sitter "github.com/smacker/go-tree-sitter"

// EntryPointKind classifies what a decorated definition is exposed as.
type EntryPointKind string

const (
	// KindTool marks a definition decorated as an externally callable tool.
	KindTool EntryPointKind = "tool"

	// KindServer marks a definition decorated as a server entry point.
	KindServer EntryPointKind = "server"

	// KindUnknown marks a decorated definition whose decorators match
	// neither recognized form.
	KindUnknown EntryPointKind = "unknown"
)

// EntryPoint describes one function, async function, or class definition
// together with its reconstructed decorator paths.
//
// Discovery consumes these descriptors to decide whether a file is in scope
// for risk scoring at all.
type EntryPoint struct {
	// Name is the declared identifier of the definition.
	Name string `json:"name"`

	// Decorators holds the reconstructed dotted paths of every decorator
	// attached to the definition, in source order. Call arguments are
	// ignored during reconstruction: @mcp.tool() and @mcp.tool both yield
	// "mcp.tool".
	Decorators []string `json:"decorators"`

	// Kind is the classification derived from Decorators.
	Kind EntryPointKind `json:"kind"`

	// Line is the 1-based line of the definition.
	Line int `json:"line"`
}

// Call records one call expression whose resolved callee name matched a
// target symbol set.
type Call struct {
	// Name is the display name of the callee: a bare name ("open"), a
	// method name ("get"), or a qualified "receiver.method" pair
	// ("requests.get") depending on the resolution policy.
	Name string `json:"name"`

	// Line is the 1-based line of the call expression.
	Line int `json:"line"`
}

// CallPolicy selects how attribute-style calls resolve to a display name.
//
// Different risk categories key on different parts of a dotted call
// expression, so the extraction runs once per category with the policy that
// category needs.
type CallPolicy int

const (
	// MatchBareName matches the simple callee name, or for obj.method(...)
	// the method name alone. Used for file operations, where the verb
	// itself (open, read, write) is the evidence.
	MatchBareName CallPolicy = iota

	// MatchQualified first checks whether the receiver of obj.method(...)
	// is a simple reference in the target set, emitting "obj.method"; when
	// it is not, the method name alone is checked. Bare calls match on the
	// simple name. Used for network operations, where the module
	// (requests, socket) is the evidence.
	MatchQualified
)

// File wraps one parsed source file and owns its tree-sitter tree.
//
// Callers must Close a File when done with it to release the tree. A File is
// read-only after Parse and safe for concurrent queries.
type File struct {
	// Path is the caller-supplied path, used only for reporting.
	Path string

	content []byte
	tree    *sitter.Tree
	root    *sitter.Node
}

// Close releases the underlying tree-sitter tree. Safe to call more than
// once.
func (f *File) Close() {
	if f.tree != nil {
		f.tree.Close()
		f.tree = nil
		f.root = nil
	}
}

// HasSyntaxError reports whether the parsed tree contains syntax errors.
//
// Tree-sitter is error-tolerant and still produces a tree for broken input;
// callers treat a tree with errors as the parse-failure outcome so that
// malformed source classifies as UNKNOWN rather than being half-scored.
func (f *File) HasSyntaxError() bool {
	return f.root == nil || f.root.HasError()
}

// text returns the source text of a node.
func (f *File) text(n *sitter.Node) string {
	return string(f.content[n.StartByte():n.EndByte()])
}

// line returns the 1-based start line of a node.
func line(n *sitter.Node) int {
	return int(n.StartPoint().Row) + 1
}

// walk visits every node of the tree in depth-first pre-order using an
// explicit stack, calling visit for each. Iterative traversal keeps
// pathologically deep trees from overflowing the goroutine stack.
func (f *File) walk(visit func(n *sitter.Node)) {
	if f.root == nil {
		return
	}
	stack := []*sitter.Node{f.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visit(n)
		for i := int(n.ChildCount()) - 1; i >= 0; i-- {
			if child := n.Child(i); child != nil {
				stack = append(stack, child)
			}
		}
	}
}
