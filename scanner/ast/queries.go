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
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Imports collects every imported module path in the file.
//
// Both statement forms are covered: "import a.b" and "import a.b as c"
// record "a.b"; "from a.b import c" records "a.b". Relative imports record
// the named portion when present ("from .utils import x" records "utils"),
// matching what module-level resolution can see without cross-file analysis.
// The result is deduplicated and sorted; import fan-in is not risk-scored,
// only presence.
func (f *File) Imports() []string {
	seen := make(map[string]struct{})

	f.walk(func(n *sitter.Node) {
		switch n.Type() {
		case "import_statement":
			for i := 0; i < int(n.ChildCount()); i++ {
				child := n.Child(i)
				switch child.Type() {
				case "dotted_name":
					seen[f.text(child)] = struct{}{}
				case "aliased_import":
					for j := 0; j < int(child.ChildCount()); j++ {
						if gc := child.Child(j); gc.Type() == "dotted_name" {
							seen[f.text(gc)] = struct{}{}
							break
						}
					}
				}
			}
		case "import_from_statement":
			if module := f.fromImportModule(n); module != "" {
				seen[module] = struct{}{}
			}
		}
	})

	imports := make([]string, 0, len(seen))
	for imp := range seen {
		imports = append(imports, imp)
	}
	sort.Strings(imports)
	return imports
}

// fromImportModule extracts the module path of a "from x import y"
// statement: the dotted_name (or relative_import's dotted_name) that appears
// before the "import" keyword.
func (f *File) fromImportModule(n *sitter.Node) string {
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "import":
			return ""
		case "dotted_name":
			return f.text(child)
		case "relative_import":
			for j := 0; j < int(child.ChildCount()); j++ {
				if gc := child.Child(j); gc.Type() == "dotted_name" {
					return f.text(gc)
				}
			}
			return ""
		}
	}
	return ""
}

// Calls extracts every call expression whose resolved callee name is in
// targets, under the given resolution policy. See CallPolicy for the two
// resolution rules. Results are in tree order; every match carries the
// 1-based line of the call.
func (f *File) Calls(targets []string, policy CallPolicy) []Call {
	set := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		set[t] = struct{}{}
	}

	calls := make([]Call, 0)
	f.walk(func(n *sitter.Node) {
		if n.Type() != "call" {
			return
		}
		callee := n.ChildByFieldName("function")
		if callee == nil {
			return
		}

		switch callee.Type() {
		case "identifier":
			name := f.text(callee)
			if _, ok := set[name]; ok {
				calls = append(calls, Call{Name: name, Line: line(n)})
			}
		case "attribute":
			obj := callee.ChildByFieldName("object")
			attr := callee.ChildByFieldName("attribute")
			if attr == nil {
				return
			}
			method := f.text(attr)

			if policy == MatchQualified && obj != nil && obj.Type() == "identifier" {
				if recv := f.text(obj); hasToken(set, recv) {
					calls = append(calls, Call{Name: recv + "." + method, Line: line(n)})
					return
				}
			}
			if hasToken(set, method) {
				calls = append(calls, Call{Name: method, Line: line(n)})
			}
		}
	})
	return calls
}

func hasToken(set map[string]struct{}, name string) bool {
	_, ok := set[name]
	return ok
}

// EntryPoints walks every decorated function, async function, and class
// definition and reconstructs each decorator into a dotted path.
//
// Only decorators whose path classifies as tool or server are kept in the
// descriptor's Decorators list; the descriptor kind is server when any
// decorator classifies as server, tool when any classifies as tool, and
// unknown otherwise.
func (f *File) EntryPoints() []EntryPoint {
	eps := make([]EntryPoint, 0)

	f.walk(func(n *sitter.Node) {
		if n.Type() != "decorated_definition" {
			return
		}

		def := n.ChildByFieldName("definition")
		if def == nil {
			return
		}
		switch def.Type() {
		case "function_definition", "class_definition":
		default:
			return
		}

		nameNode := def.ChildByFieldName("name")
		if nameNode == nil {
			return
		}

		ep := EntryPoint{
			Name:       f.text(nameNode),
			Decorators: make([]string, 0, 1),
			Kind:       KindUnknown,
			Line:       line(def),
		}

		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			if child.Type() != "decorator" {
				continue
			}
			path := f.decoratorPath(child)
			if path == "" {
				continue
			}
			switch ClassifyDecorator(path) {
			case KindServer:
				ep.Decorators = append(ep.Decorators, path)
				ep.Kind = KindServer
			case KindTool:
				ep.Decorators = append(ep.Decorators, path)
				if ep.Kind != KindServer {
					ep.Kind = KindTool
				}
			}
		}

		eps = append(eps, ep)
	})
	return eps
}

// decoratorPath reconstructs the dotted path of one decorator node.
func (f *File) decoratorPath(dec *sitter.Node) string {
	for i := 0; i < int(dec.ChildCount()); i++ {
		child := dec.Child(i)
		switch child.Type() {
		case "identifier", "attribute", "call":
			if expr := f.decoratorExpr(child); expr != nil {
				return expr.DottedPath()
			}
		}
	}
	return ""
}

// ModuleDocstring returns the first line of the module docstring, or "".
func (f *File) ModuleDocstring() string {
	if f.root == nil {
		return ""
	}
	for i := 0; i < int(f.root.ChildCount()); i++ {
		child := f.root.Child(i)
		switch child.Type() {
		case "comment", "import_statement", "import_from_statement":
			continue
		case "expression_statement":
			if child.ChildCount() > 0 {
				if str := child.Child(0); str.Type() == "string" {
					return firstLine(trimQuotes(f.text(str)))
				}
			}
			return ""
		default:
			return ""
		}
	}
	return ""
}

// ServerClass returns the name and docstring first line of the first class
// whose name contains "Server", or empty strings. Discovery uses this as a
// display-name heuristic for files without module docstrings.
func (f *File) ServerClass() (name, doc string) {
	f.walk(func(n *sitter.Node) {
		if name != "" || n.Type() != "class_definition" {
			return
		}
		nameNode := n.ChildByFieldName("name")
		if nameNode == nil || !strings.Contains(f.text(nameNode), "Server") {
			return
		}
		name = f.text(nameNode)
		if body := n.ChildByFieldName("body"); body != nil && body.ChildCount() > 0 {
			if first := body.Child(0); first.Type() == "expression_statement" && first.ChildCount() > 0 {
				if str := first.Child(0); str.Type() == "string" {
					doc = firstLine(trimQuotes(f.text(str)))
				}
			}
		}
	})
	return name, doc
}

// trimQuotes strips surrounding quote characters from a Python string
// literal, including triple quotes.
func trimQuotes(raw string) string {
	return strings.TrimSpace(strings.Trim(raw, `"'`))
}

// firstLine returns the text up to the first newline, trimmed.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
