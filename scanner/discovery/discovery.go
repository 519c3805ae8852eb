// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package discovery walks a project tree and locates MCP servers, tools,
// configuration files, and plain source files eligible for scanning.
//
// Discovery is deliberately forgiving: unreadable or unparseable files are
// logged and skipped, never fatal, because a single broken file must not
// hide the rest of a project from inspection.
package discovery

import (
	"context"
	"encoding/json"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/mcpscan/scanner/ast"
)

// DefaultMaxFiles caps how many source files a comprehensive scan will
// collect before stopping, to keep scan time bounded on large trees.
const DefaultMaxFiles = 50

// skipDirs are directory names excluded from every walk.
var skipDirs = map[string]struct{}{
	"build":        {},
	"dist":         {},
	"venv":         {},
	"env":          {},
	"__pycache__":  {},
	"node_modules": {},
}

// skipConfigNames are generated-tooling configs excluded from source scans.
var skipConfigNames = map[string]struct{}{
	"jest.config.js":    {},
	"webpack.config.js": {},
	"rollup.config.js":  {},
}

// sourceExtensions are the file extensions collected by comprehensive scans.
var sourceExtensions = map[string]struct{}{
	".py":  {},
	".ts":  {},
	".js":  {},
	".mjs": {},
}

// Metadata describes a discovered file for display and manifest purposes.
type Metadata struct {
	// Name is the display name: a Server class name when one exists,
	// otherwise the file name.
	Name string `json:"name"`

	// Description is the first line of the module or class docstring, or a
	// fixed per-type description for non-Python files.
	Description string `json:"description,omitempty"`

	// EntryPoint is the file path the item was discovered at.
	EntryPoint string `json:"entry_point,omitempty"`

	// Decorators lists the reconstructed MCP decorator paths found in the
	// file, in source order.
	Decorators []string `json:"decorators,omitempty"`
}

// Item is one discovered server, tool, config, or source file.
type Item struct {
	// Type labels the item: python-server, python-tool, python-file,
	// typescript-file, javascript-file, node-server, rust-server, config.
	Type string `json:"type"`

	// Path is the location of the file relative to the walk root argument.
	Path string `json:"path"`

	// Metadata carries the display information extracted from the file.
	Metadata Metadata `json:"metadata"`
}

// FileScanner discovers MCP-related files in a project tree.
//
// A FileScanner is stateless between calls and safe for concurrent use.
type FileScanner struct {
	parser *ast.PythonParser
}

// NewFileScanner creates a FileScanner.
func NewFileScanner() *FileScanner {
	return &FileScanner{parser: ast.NewPythonParser()}
}

// ScanDirectory recursively finds all Python files under root.
//
// Hidden path components and the common build, dist, venv, env, and
// __pycache__ directories are skipped. A missing root yields an empty list,
// not an error, matching the forgiving discovery contract.
func (s *FileScanner) ScanDirectory(ctx context.Context, root string) []string {
	files := make([]string, 0)
	s.walkSources(ctx, root, 0, func(path string) bool {
		if filepath.Ext(path) == ".py" {
			files = append(files, path)
		}
		return true
	})
	return files
}

// ScanAllSourceFiles recursively finds Python, TypeScript, and JavaScript
// files under root, up to maxFiles.
//
// On top of the ScanDirectory skip rules, node_modules, *.test.* files, and
// bundler config files are excluded. When the cap is hit a warning is logged
// and the partial list is returned.
func (s *FileScanner) ScanAllSourceFiles(ctx context.Context, root string, maxFiles int) []string {
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}

	files := make([]string, 0, maxFiles)
	s.walkSources(ctx, root, maxFiles, func(path string) bool {
		name := filepath.Base(path)
		if _, skip := skipConfigNames[name]; skip {
			return true
		}
		if isTestFile(name) {
			return true
		}
		if _, ok := sourceExtensions[filepath.Ext(path)]; !ok {
			return true
		}

		files = append(files, path)
		if len(files) >= maxFiles {
			slog.Warn("reached max file limit, some files will not be scanned",
				slog.Int("max_files", maxFiles),
				slog.String("root", root))
			return false
		}
		return true
	})
	return files
}

// walkSources walks root applying the shared skip rules, invoking visit for
// each regular file. visit returns false to stop the walk.
func (s *FileScanner) walkSources(ctx context.Context, root string, maxFiles int, visit func(path string) bool) {
	if _, err := os.Stat(root); err != nil {
		slog.Error("directory not found", slog.String("root", root), slog.Any("error", err))
		return
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Warn("skipping unreadable path", slog.String("path", path), slog.Any("error", err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if strings.HasPrefix(name, ".") {
				return fs.SkipDir
			}
			if _, skip := skipDirs[name]; skip {
				return fs.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, ".") {
			return nil
		}
		if !visit(path) {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil && err != fs.SkipAll {
		slog.Error("error scanning directory", slog.String("root", root), slog.Any("error", err))
	}
}

// isTestFile reports whether the file name marks a test source file.
func isTestFile(name string) bool {
	return strings.HasSuffix(name, ".test.ts") ||
		strings.HasSuffix(name, ".test.js") ||
		strings.HasSuffix(name, ".test.py")
}

// FindMCPDecorators parses a Python file and returns the reconstructed
// decorator paths of its MCP tool and server entry points, in source order.
//
// Parse failures are logged and yield an empty list.
func (s *FileScanner) FindMCPDecorators(ctx context.Context, filePath string) []string {
	file, ok := s.parseFile(ctx, filePath)
	if !ok {
		return nil
	}
	defer file.Close()

	decorators := make([]string, 0)
	for _, ep := range file.EntryPoints() {
		decorators = append(decorators, ep.Decorators...)
	}
	return decorators
}

// DiscoverServers finds MCP servers and tools under root: Python files with
// tool or server decorators, plus MCP configuration files.
func (s *FileScanner) DiscoverServers(ctx context.Context, root string) []Item {
	discovered := make([]Item, 0)

	for _, path := range s.ScanDirectory(ctx, root) {
		file, ok := s.parseFile(ctx, path)
		if !ok {
			continue
		}

		eps := file.EntryPoints()
		meta, kind := metadataFromFile(file, path, eps)
		file.Close()

		if len(meta.Decorators) == 0 {
			continue
		}
		itemType := "python-tool"
		if kind == ast.KindServer {
			itemType = "python-server"
		}
		discovered = append(discovered, Item{Type: itemType, Path: path, Metadata: meta})
	}

	discovered = append(discovered, s.FindConfigFiles(ctx, root)...)
	return discovered
}

// DiscoverAllFiles finds every scannable source file under root for
// comprehensive scanning, typed by extension and upgraded to python-server
// or python-tool when MCP decorators are present.
func (s *FileScanner) DiscoverAllFiles(ctx context.Context, root string, maxFiles int) []Item {
	discovered := make([]Item, 0)

	for _, path := range s.ScanAllSourceFiles(ctx, root, maxFiles) {
		itemType, desc := classifyExtension(filepath.Ext(path))
		meta := Metadata{
			Name:        filepath.Base(path),
			Description: desc,
			EntryPoint:  path,
		}

		if filepath.Ext(path) == ".py" {
			if file, ok := s.parseFile(ctx, path); ok {
				eps := file.EntryPoints()
				m, kind := metadataFromFile(file, path, eps)
				file.Close()
				if len(m.Decorators) > 0 {
					meta = m
					switch kind {
					case ast.KindServer:
						itemType = "python-server"
						meta.Description = "Python MCP Server"
					case ast.KindTool:
						itemType = "python-tool"
						meta.Description = "Python MCP Tool"
					}
				}
			}
		}

		discovered = append(discovered, Item{Type: itemType, Path: path, Metadata: meta})
	}

	slog.Info("discovered source files for analysis", slog.Int("count", len(discovered)))
	return discovered
}

// FindConfigFiles locates MCP configuration files under root: mcp.json
// anywhere, package.json declaring MCP keys or the MCP SDK dependency, and
// Cargo.toml outside target directories.
func (s *FileScanner) FindConfigFiles(ctx context.Context, root string) []Item {
	items := make([]Item, 0)

	s.walkSources(ctx, root, 0, func(path string) bool {
		switch filepath.Base(path) {
		case "mcp.json":
			items = append(items, Item{
				Type: "config",
				Path: path,
				Metadata: Metadata{
					Name:        "mcp.json",
					Description: "MCP Configuration File",
				},
			})
		case "package.json":
			if isMCPPackageJSON(path) {
				items = append(items, Item{
					Type: "node-server",
					Path: path,
					Metadata: Metadata{
						Name:        "package.json",
						Description: "Node.js MCP Server (No static analysis available)",
					},
				})
			}
		case "Cargo.toml":
			if !pathContains(path, "target") {
				items = append(items, Item{
					Type: "rust-server",
					Path: path,
					Metadata: Metadata{
						Name:        "Cargo.toml",
						Description: "Rust MCP Server (No static analysis available)",
					},
				})
			}
		}
		return true
	})
	return items
}

// packageJSON is the subset of package.json inspected for MCP markers.
type packageJSON struct {
	MCP             json.RawMessage   `json:"mcp"`
	MCPServers      json.RawMessage   `json:"mcpServers"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// isMCPPackageJSON reports whether the package.json declares MCP
// configuration keys or depends on the MCP SDK.
func isMCPPackageJSON(path string) bool {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var pkg packageJSON
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return false
	}
	if pkg.MCP != nil || pkg.MCPServers != nil {
		return true
	}
	_, dep := pkg.Dependencies["@modelcontextprotocol/sdk"]
	_, devDep := pkg.DevDependencies["@modelcontextprotocol/sdk"]
	return dep || devDep
}

// pathContains reports whether any path component equals name.
func pathContains(path, name string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == name {
			return true
		}
	}
	return false
}

// parseFile reads and parses one Python file, logging and absorbing
// failures.
func (s *FileScanner) parseFile(ctx context.Context, path string) (*ast.File, bool) {
	content, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("could not read file", slog.String("path", path), slog.Any("error", err))
		return nil, false
	}
	file, err := s.parser.Parse(ctx, content, path)
	if err != nil {
		slog.Warn("could not parse file", slog.String("path", path), slog.Any("error", err))
		return nil, false
	}
	if file.HasSyntaxError() {
		file.Close()
		slog.Warn("syntax error in file, skipping metadata", slog.String("path", path))
		return nil, false
	}
	return file, true
}

// metadataFromFile extracts display metadata from a parsed Python file and
// reports the strongest entry-point kind found (server takes precedence over
// tool).
func metadataFromFile(file *ast.File, path string, eps []ast.EntryPoint) (Metadata, ast.EntryPointKind) {
	meta := Metadata{
		Name:       filepath.Base(path),
		EntryPoint: path,
		Decorators: make([]string, 0),
	}

	meta.Description = file.ModuleDocstring()
	if name, doc := file.ServerClass(); name != "" {
		meta.Name = name
		if meta.Description == "" {
			meta.Description = doc
		}
	}

	kind := ast.KindUnknown
	for _, ep := range eps {
		meta.Decorators = append(meta.Decorators, ep.Decorators...)
		switch ep.Kind {
		case ast.KindServer:
			kind = ast.KindServer
		case ast.KindTool:
			if kind != ast.KindServer {
				kind = ast.KindTool
			}
		}
	}
	return meta, kind
}

// classifyExtension maps a file extension to its item type and description.
func classifyExtension(ext string) (itemType, description string) {
	switch ext {
	case ".py":
		return "python-file", "Python source file"
	case ".ts":
		return "typescript-file", "TypeScript source file"
	case ".js", ".mjs":
		return "javascript-file", "JavaScript source file"
	default:
		return "source-file", "Source file"
	}
}
