// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes the scan pipeline over HTTP for the dashboard.
package server

import (
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"
	openai "github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/mcpscan/pkg/logging"
	"github.com/AleutianAI/mcpscan/scanner/llm"
	"github.com/AleutianAI/mcpscan/scanner/manifest"
	"github.com/AleutianAI/mcpscan/scanner/pipeline"
)

// DefaultResultsPath is where scan results are persisted between requests.
const DefaultResultsPath = "scan_results.json"

// ScanRequest is the body of POST /api/scan.
type ScanRequest struct {
	// Path is the directory to scan. Required.
	Path string `json:"path" binding:"required"`

	// Model optionally overrides the OpenRouter model for this and
	// subsequent scans.
	Model string `json:"model,omitempty"`
}

// browseEntry is one row in the directory browser listing.
type browseEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
}

// Handlers holds the dashboard's HTTP handlers and their shared state.
//
// One scan runs at a time; a second scan request waits on the mutex rather
// than failing, matching a single-operator dashboard.
type Handlers struct {
	logger      *logging.Logger
	ring        *logging.RingExporter
	resultsPath string

	scanMu sync.Mutex

	// cfgMu guards llmConfig: scans may persist a model override while a
	// connectivity test reads the config concurrently.
	cfgMu     sync.Mutex
	llmConfig llm.Config
}

// NewHandlers creates dashboard handlers.
//
// Inputs:
//   - logger: logger whose exporter feeds the log ring.
//   - ring: the bounded ring the /api/logs endpoint reads from.
//   - llmConfig: OpenRouter settings; a missing key disables LLM passes.
//   - resultsPath: path for persisted scan results, "" for the default.
func NewHandlers(logger *logging.Logger, ring *logging.RingExporter, llmConfig llm.Config, resultsPath string) *Handlers {
	if resultsPath == "" {
		resultsPath = DefaultResultsPath
	}
	return &Handlers{
		logger:      logger,
		ring:        ring,
		llmConfig:   llmConfig,
		resultsPath: resultsPath,
	}
}

// HandleModels returns the selectable OpenRouter models.
func (h *Handlers) HandleModels(c *gin.Context) {
	c.JSON(http.StatusOK, []gin.H{
		{"id": "openai/gpt-3.5-turbo", "name": "GPT-3.5 Turbo"},
		{"id": "openai/gpt-4-turbo", "name": "GPT-4 Turbo"},
		{"id": "anthropic/claude-3-opus", "name": "Claude 3 Opus"},
		{"id": "anthropic/claude-3-sonnet", "name": "Claude 3 Sonnet"},
		{"id": "mistralai/mistral-large", "name": "Mistral Large"},
	})
}

// HandleScan runs the full pipeline on the requested directory and returns
// the resulting manifest.
func (h *Handlers) HandleScan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "path is required"})
		return
	}

	info, err := os.Stat(req.Path)
	if err != nil || !info.IsDir() {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid directory path"})
		return
	}

	h.scanMu.Lock()
	defer h.scanMu.Unlock()

	h.cfgMu.Lock()
	if req.Model != "" {
		h.llmConfig.Model = req.Model
	}
	cfg := h.llmConfig
	h.cfgMu.Unlock()

	p := pipeline.New(pipeline.WithLLM(llm.NewAnalyzer(cfg)))
	m, _, err := p.Run(c.Request.Context(), req.Path, h.resultsPath)
	if err != nil {
		h.logger.Error("scan failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	c.JSON(http.StatusOK, m)
}

// HandleResults returns the latest persisted scan results, or an empty
// object when no scan has run yet.
func (h *Handlers) HandleResults(c *gin.Context) {
	m, err := manifest.Load(h.resultsPath)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, m)
}

// HandleBrowse lists directories for the dashboard's file browser. An empty
// path lists the filesystem root.
func (h *Handlers) HandleBrowse(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusOK, []browseEntry{{Name: "/", Path: "/", Type: "drive"}})
		return
	}

	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Invalid directory"})
		return
	}

	entries := make([]browseEntry, 0)
	if parent := filepath.Dir(path); parent != path {
		entries = append(entries, browseEntry{Name: "..", Path: parent, Type: "parent"})
	}

	dirEntries, err := os.ReadDir(path)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	for _, e := range dirEntries {
		if e.IsDir() {
			entries = append(entries, browseEntry{
				Name: e.Name(),
				Path: filepath.Join(path, e.Name()),
				Type: "dir",
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	c.JSON(http.StatusOK, entries)
}

// HandleTestLLM sends a short ping completion to verify OpenRouter
// connectivity and credentials.
func (h *Handlers) HandleTestLLM(c *gin.Context) {
	h.logger.Info("starting LLM connectivity test")

	h.cfgMu.Lock()
	cfg := h.llmConfig
	h.cfgMu.Unlock()
	if cfg.APIKey == "" {
		h.logger.Error("LLM client not initialized, check API key")
		c.JSON(http.StatusBadRequest, gin.H{"detail": "API Key missing"})
		return
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	client := openai.NewClientWithConfig(clientCfg)

	resp, err := client.CreateChatCompletion(c.Request.Context(), openai.ChatCompletionRequest{
		Model: cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: "Say 'OK' if you can hear me."},
		},
		MaxTokens: 10,
	})
	if err != nil {
		h.logger.Error("LLM test failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}

	answer := ""
	if len(resp.Choices) > 0 {
		answer = resp.Choices[0].Message.Content
	}
	h.logger.Info("LLM test success", "response", answer)
	c.JSON(http.StatusOK, gin.H{"status": "success", "response": answer})
}

// HandleLogs returns the retained log lines, oldest first.
func (h *Handlers) HandleLogs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"logs": h.ring.Lines()})
}

// HandleClearLogs empties the log ring.
func (h *Handlers) HandleClearLogs(c *gin.Context) {
	h.ring.Clear()
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

// HandleTestLogs emits a few log lines so the frontend's polling can be
// verified end to end.
func (h *Handlers) HandleTestLogs(c *gin.Context) {
	h.logger.Info("Test log 1: Logger is working!")
	h.logger.Info("Test log 2: Logs are being captured")
	h.logger.Info("Test log 3: Frontend should display this")
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Added 3 test logs"})
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
