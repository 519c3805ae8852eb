// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/mcpscan/pkg/logging"
	"github.com/AleutianAI/mcpscan/scanner/llm"
)

func newTestServer(t *testing.T) (*gin.Engine, *logging.RingExporter, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ring := logging.NewRingExporter(50)
	logger := logging.New(logging.Config{
		Level:    logging.LevelInfo,
		Service:  "test-dashboard",
		Quiet:    true,
		Exporter: ring,
	})
	t.Cleanup(func() { logger.Close() })

	resultsPath := filepath.Join(t.TempDir(), "scan_results.json")
	handlers := NewHandlers(logger, ring, llm.Config{}, resultsPath)

	router := gin.New()
	RegisterRoutes(router.Group("/api"), handlers)
	return router, ring, resultsPath
}

func doRequest(t *testing.T, router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	router, _, _ := newTestServer(t)

	w := doRequest(t, router, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "healthy") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestHandleModels(t *testing.T) {
	router, _, _ := newTestServer(t)

	w := doRequest(t, router, http.MethodGet, "/api/models", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var models []map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &models); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(models) != 5 {
		t.Errorf("expected 5 models, got %d", len(models))
	}
	for _, m := range models {
		if m["id"] == "" || m["name"] == "" {
			t.Errorf("model missing fields: %v", m)
		}
	}
}

func TestHandleScan_MissingPath(t *testing.T) {
	router, _, _ := newTestServer(t)

	w := doRequest(t, router, http.MethodPost, "/api/scan", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "path is required") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestHandleScan_InvalidDirectory(t *testing.T) {
	router, _, _ := newTestServer(t)

	w := doRequest(t, router, http.MethodPost, "/api/scan",
		`{"path": "/definitely/not/a/real/path"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Invalid directory path") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestHandleScan_RunsPipeline(t *testing.T) {
	router, _, resultsPath := newTestServer(t)

	dir := t.TempDir()
	source := "import subprocess\nsubprocess.call(cmd)\n"
	if err := os.WriteFile(filepath.Join(dir, "runner.py"), []byte(source), 0o644); err != nil {
		t.Fatal(err)
	}

	body, err := json.Marshal(map[string]string{"path": dir})
	if err != nil {
		t.Fatal(err)
	}

	w := doRequest(t, router, http.MethodPost, "/api/scan", string(body))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		TotalServersFound int `json:"total_servers_found"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.TotalServersFound != 1 {
		t.Errorf("total = %d, want 1", resp.TotalServersFound)
	}

	if _, err := os.Stat(resultsPath); err != nil {
		t.Errorf("results not persisted: %v", err)
	}
}

func TestHandleResults_EmptyBeforeScan(t *testing.T) {
	router, _, _ := newTestServer(t)

	w := doRequest(t, router, http.MethodGet, "/api/results", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if strings.TrimSpace(w.Body.String()) != "{}" {
		t.Errorf("body = %s, want empty object", w.Body.String())
	}
}

func TestHandleBrowse_RootListing(t *testing.T) {
	router, _, _ := newTestServer(t)

	w := doRequest(t, router, http.MethodGet, "/api/browse", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var entries []browseEntry
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(entries) != 1 || entries[0].Type != "drive" {
		t.Errorf("entries = %+v, want single drive entry", entries)
	}
}

func TestHandleBrowse_DirectoriesOnly(t *testing.T) {
	router, _, _ := newTestServer(t)

	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "file.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	w := doRequest(t, router, http.MethodGet, "/api/browse?path="+dir, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var entries []browseEntry
	if err := json.Unmarshal(w.Body.Bytes(), &entries); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	hasParent, hasSub := false, false
	for _, e := range entries {
		if e.Type == "parent" && e.Name == ".." {
			hasParent = true
		}
		if e.Type == "dir" && e.Name == "sub" {
			hasSub = true
		}
		if e.Name == "file.txt" {
			t.Error("files must not appear in browse listing")
		}
	}
	if !hasParent || !hasSub {
		t.Errorf("entries = %+v, want parent and sub entries", entries)
	}
}

func TestHandleBrowse_InvalidPath(t *testing.T) {
	router, _, _ := newTestServer(t)

	w := doRequest(t, router, http.MethodGet, "/api/browse?path=/no/such/dir", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleTestLLM_MissingKey(t *testing.T) {
	router, _, _ := newTestServer(t)

	w := doRequest(t, router, http.MethodPost, "/api/test-llm", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "API Key missing") {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestHandleScan_ConcurrentWithLLMTest(t *testing.T) {
	router, _, _ := newTestServer(t)

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tool.py"), []byte("import os\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	body, err := json.Marshal(map[string]string{"path": dir, "model": "openai/gpt-4-turbo"})
	if err != nil {
		t.Fatal(err)
	}

	// Scans persist the model override while connectivity tests read the
	// same config; both must be able to run at once.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			w := doRequest(t, router, http.MethodPost, "/api/scan", string(body))
			if w.Code != http.StatusOK {
				t.Errorf("scan status = %d, body = %s", w.Code, w.Body.String())
			}
		}()
		go func() {
			defer wg.Done()
			w := doRequest(t, router, http.MethodPost, "/api/test-llm", "")
			if w.Code != http.StatusBadRequest {
				t.Errorf("test-llm status = %d, want 400", w.Code)
			}
		}()
	}
	wg.Wait()
}

func TestHandleLogs_Lifecycle(t *testing.T) {
	router, ring, _ := newTestServer(t)

	w := doRequest(t, router, http.MethodPost, "/api/test-logs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	// Exporter delivery is asynchronous; poll until the lines land.
	deadline := time.Now().Add(2 * time.Second)
	for ring.Len() < 3 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if ring.Len() < 3 {
		t.Fatalf("expected 3 log lines, got %d", ring.Len())
	}

	w = doRequest(t, router, http.MethodGet, "/api/logs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Logs []string `json:"logs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	joined := strings.Join(resp.Logs, "\n")
	if !strings.Contains(joined, "Logger is working!") {
		t.Errorf("logs = %v", resp.Logs)
	}

	w = doRequest(t, router, http.MethodDelete, "/api/logs", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ring.Len() != 0 {
		t.Errorf("ring not cleared, %d lines remain", ring.Len())
	}
}

func TestRingExporter_DirectExport(t *testing.T) {
	ring := logging.NewRingExporter(2)

	for i, msg := range []string{"one", "two", "three"} {
		entry := logging.LogEntry{
			Timestamp: time.Date(2025, 6, 1, 12, 0, i, 0, time.UTC),
			Level:     logging.LevelInfo,
			Message:   msg,
		}
		if err := ring.Export(context.Background(), entry); err != nil {
			t.Fatal(err)
		}
	}

	lines := ring.Lines()
	if len(lines) != 2 {
		t.Fatalf("expected ring capped at 2, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "two") || !strings.Contains(lines[1], "three") {
		t.Errorf("oldest line not evicted: %v", lines)
	}
}
