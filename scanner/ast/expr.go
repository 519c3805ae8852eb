// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// MaxAttributeDepth bounds decorator chain unwrapping. Chains deeper than
// this (which do not occur in real code) reconstruct to an empty path rather
// than looping on a malformed tree.
const MaxAttributeDepth = 64

// Expr is a tagged-variant view of a decorator expression.
//
// Decorators form a small tree of wrapped expressions: a call wrapping an
// attribute chain wrapping a reference (@mcp.tool(desc="...")), an attribute
// chain (@mcp.tool), or a bare reference (@tool). Only these three shapes
// matter for classification; anything else maps to nil.
type Expr interface {
	// DottedPath reconstructs the expression's dotted name, ignoring call
	// arguments. Returns "" for unreconstructable expressions.
	DottedPath() string
}

// Reference is a bare name expression.
type Reference struct {
	Name string
}

// DottedPath returns the reference name.
func (r *Reference) DottedPath() string { return r.Name }

// AttributeAccess is a member access on a base expression (base.Member).
type AttributeAccess struct {
	Base   Expr
	Member string
}

// DottedPath rebuilds the chain by iteratively unwrapping the outermost
// attribute access and prepending its member, terminating at the innermost
// reference. Traversal depth is bounded by MaxAttributeDepth; a chain that
// exceeds it, or that bottoms out in anything but a Reference, yields "".
func (a *AttributeAccess) DottedPath() string {
	segments := make([]string, 0, 4)
	var cur Expr = a
	for depth := 0; depth < MaxAttributeDepth; depth++ {
		switch e := cur.(type) {
		case *AttributeAccess:
			segments = append(segments, e.Member)
			cur = e.Base
		case *Reference:
			segments = append(segments, e.Name)
			// Collected leaf-to-root; reverse into root-to-leaf order.
			for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
				segments[i], segments[j] = segments[j], segments[i]
			}
			return strings.Join(segments, ".")
		default:
			return ""
		}
	}
	return ""
}

// CallExpr is a call wrapping another expression. Arguments are not modeled;
// they are irrelevant to classification.
type CallExpr struct {
	Callee Expr
}

// DottedPath delegates to the callee.
func (c *CallExpr) DottedPath() string {
	if c.Callee == nil {
		return ""
	}
	return c.Callee.DottedPath()
}

// decoratorExpr converts the expression node inside a decorator into an
// Expr. Unsupported node types yield nil.
func (f *File) decoratorExpr(n *sitter.Node) Expr {
	return f.exprFromNode(n, 0)
}

// exprFromNode recursively builds an Expr, bounding depth against malformed
// trees.
func (f *File) exprFromNode(n *sitter.Node, depth int) Expr {
	if n == nil || depth > MaxAttributeDepth {
		return nil
	}
	switch n.Type() {
	case "identifier":
		return &Reference{Name: f.text(n)}
	case "attribute":
		base := f.exprFromNode(n.ChildByFieldName("object"), depth+1)
		member := n.ChildByFieldName("attribute")
		if base == nil || member == nil {
			return nil
		}
		return &AttributeAccess{Base: base, Member: f.text(member)}
	case "call":
		callee := f.exprFromNode(n.ChildByFieldName("function"), depth+1)
		if callee == nil {
			return nil
		}
		return &CallExpr{Callee: callee}
	default:
		return nil
	}
}

// ClassifyDecorator maps a reconstructed decorator path to an entry-point
// kind.
//
// A definition is a tool when the path is exactly "mcp.tool" or ends in
// ".tool"; a server when the path is exactly "mcp.server" or ends in
// ".server". Everything else is unknown.
func ClassifyDecorator(path string) EntryPointKind {
	switch {
	case path == "mcp.tool" || strings.HasSuffix(path, ".tool"):
		return KindTool
	case path == "mcp.server" || strings.HasSuffix(path, ".server"):
		return KindServer
	default:
		return KindUnknown
	}
}
