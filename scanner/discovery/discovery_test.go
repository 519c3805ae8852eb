// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package discovery

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const testServerPy = `"""Weather tools for agents."""
import requests

@mcp.tool
def current_weather(city):
    return requests.get("https://api.example.com/" + city)
`

const testServerClassPy = `import mcp

@mcp.server
class WeatherServer:
    """Serves weather data."""
    pass
`

const testPlainPy = `def helper():
    return 1
`

const testMCPPackageJSON = `{
  "name": "demo",
  "dependencies": {"@modelcontextprotocol/sdk": "^1.0.0"}
}`

const testPlainPackageJSON = `{
  "name": "demo",
  "dependencies": {"express": "^4.0.0"}
}`

// writeTree creates files under root, making parent directories as needed.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestFileScanner_ScanDirectory_SkipRules(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"server.py":              testPlainPy,
		"pkg/tool.py":            testPlainPy,
		".hidden/secret.py":      testPlainPy,
		"build/gen.py":           testPlainPy,
		"venv/lib.py":            testPlainPy,
		"__pycache__/cached.py":  testPlainPy,
		"dist/out.py":            testPlainPy,
		"env/activate.py":        testPlainPy,
		"node_modules/dep.py":    testPlainPy,
		"pkg/.dotfile.py":        testPlainPy,
		"readme.md":              "not python",
		"deep/nested/ok/main.py": testPlainPy,
	})

	files := NewFileScanner().ScanDirectory(context.Background(), root)
	if len(files) != 3 {
		t.Fatalf("expected 3 python files, got %d: %v", len(files), files)
	}
	for _, f := range files {
		if filepath.Ext(f) != ".py" {
			t.Errorf("non-python file discovered: %s", f)
		}
	}
}

func TestFileScanner_ScanDirectory_MissingRoot(t *testing.T) {
	files := NewFileScanner().ScanDirectory(context.Background(), filepath.Join(t.TempDir(), "missing"))
	if len(files) != 0 {
		t.Errorf("expected empty result for missing root, got %v", files)
	}
}

func TestFileScanner_ScanAllSourceFiles_ExtensionsAndSkips(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.py":           testPlainPy,
		"index.ts":          "export {}",
		"app.js":            "module.exports = {}",
		"mod.mjs":           "export {}",
		"style.css":         "body {}",
		"app.test.js":       "test()",
		"mod.test.ts":       "test()",
		"check.test.py":     testPlainPy,
		"jest.config.js":    "{}",
		"webpack.config.js": "{}",
		"rollup.config.js":  "{}",
	})

	files := NewFileScanner().ScanAllSourceFiles(context.Background(), root, 0)
	if len(files) != 4 {
		t.Fatalf("expected 4 source files, got %d: %v", len(files), files)
	}
}

func TestFileScanner_ScanAllSourceFiles_MaxFilesCap(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{}
	for _, name := range []string{"a.py", "b.py", "c.py", "d.py", "e.py"} {
		files[name] = testPlainPy
	}
	writeTree(t, root, files)

	got := NewFileScanner().ScanAllSourceFiles(context.Background(), root, 2)
	if len(got) != 2 {
		t.Errorf("expected cap of 2 files, got %d", len(got))
	}
}

func TestFileScanner_FindMCPDecorators(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"server.py": testServerPy})

	decorators := NewFileScanner().FindMCPDecorators(context.Background(), filepath.Join(root, "server.py"))
	if len(decorators) != 1 || decorators[0] != "mcp.tool" {
		t.Errorf("decorators = %v, want [mcp.tool]", decorators)
	}
}

func TestFileScanner_FindMCPDecorators_BrokenFile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"broken.py": "def broken(:\n"})

	decorators := NewFileScanner().FindMCPDecorators(context.Background(), filepath.Join(root, "broken.py"))
	if len(decorators) != 0 {
		t.Errorf("expected no decorators for broken file, got %v", decorators)
	}
}

func TestFileScanner_DiscoverServers(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"tool.py":     testServerPy,
		"server.py":   testServerClassPy,
		"helper.py":   testPlainPy,
		"mcp.json":    `{"servers": {}}`,
		"pkg.json":    "{}",
		"Cargo.toml":  "[package]\nname = \"demo\"",
		"package.json": testMCPPackageJSON,
	})

	items := NewFileScanner().DiscoverServers(context.Background(), root)

	byType := map[string]int{}
	for _, item := range items {
		byType[item.Type]++
	}
	if byType["python-tool"] != 1 {
		t.Errorf("python-tool count = %d, want 1 (items: %+v)", byType["python-tool"], items)
	}
	if byType["python-server"] != 1 {
		t.Errorf("python-server count = %d, want 1", byType["python-server"])
	}
	if byType["config"] != 1 {
		t.Errorf("config count = %d, want 1", byType["config"])
	}
	if byType["node-server"] != 1 {
		t.Errorf("node-server count = %d, want 1", byType["node-server"])
	}
	if byType["rust-server"] != 1 {
		t.Errorf("rust-server count = %d, want 1", byType["rust-server"])
	}

	// Undecorated python files never show up in server discovery.
	for _, item := range items {
		if filepath.Base(item.Path) == "helper.py" {
			t.Error("helper.py without decorators should not be discovered")
		}
	}
}

func TestFileScanner_DiscoverServers_Metadata(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"server.py": testServerClassPy})

	items := NewFileScanner().DiscoverServers(context.Background(), root)
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}

	meta := items[0].Metadata
	if meta.Name != "WeatherServer" {
		t.Errorf("name = %q, want WeatherServer", meta.Name)
	}
	if meta.Description != "Serves weather data." {
		t.Errorf("description = %q", meta.Description)
	}
	if len(meta.Decorators) != 1 || meta.Decorators[0] != "mcp.server" {
		t.Errorf("decorators = %v", meta.Decorators)
	}
}

func TestFileScanner_DiscoverAllFiles_TypeUpgrade(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"tool.py":  testServerPy,
		"plain.py": testPlainPy,
		"index.ts": "export {}",
	})

	items := NewFileScanner().DiscoverAllFiles(context.Background(), root, 0)

	byName := map[string]Item{}
	for _, item := range items {
		byName[filepath.Base(item.Path)] = item
	}

	if got := byName["tool.py"]; got.Type != "python-tool" {
		t.Errorf("tool.py type = %q, want python-tool", got.Type)
	}
	if got := byName["tool.py"]; got.Metadata.Description != "Python MCP Tool" {
		t.Errorf("tool.py description = %q", got.Metadata.Description)
	}
	if got := byName["plain.py"]; got.Type != "python-file" {
		t.Errorf("plain.py type = %q, want python-file", got.Type)
	}
	if got := byName["index.ts"]; got.Type != "typescript-file" {
		t.Errorf("index.ts type = %q, want typescript-file", got.Type)
	}
}

func TestFileScanner_FindConfigFiles_PackageJSONMarkers(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"with/package.json":    testMCPPackageJSON,
		"without/package.json": testPlainPackageJSON,
		"keyed/package.json":   `{"mcpServers": {"demo": {}}}`,
		"target/Cargo.toml":    "[package]",
	})

	items := NewFileScanner().FindConfigFiles(context.Background(), root)

	nodeServers := 0
	for _, item := range items {
		if item.Type == "rust-server" {
			t.Errorf("Cargo.toml under target must be skipped: %s", item.Path)
		}
		if item.Type == "node-server" {
			nodeServers++
		}
	}
	if nodeServers != 2 {
		t.Errorf("node-server count = %d, want 2", nodeServers)
	}
}

func TestClassifyExtension(t *testing.T) {
	cases := []struct {
		ext      string
		wantType string
	}{
		{".py", "python-file"},
		{".ts", "typescript-file"},
		{".js", "javascript-file"},
		{".mjs", "javascript-file"},
		{".rb", "source-file"},
	}
	for _, tc := range cases {
		if got, _ := classifyExtension(tc.ext); got != tc.wantType {
			t.Errorf("classifyExtension(%q) = %q, want %q", tc.ext, got, tc.wantType)
		}
	}
}
