// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command mcpscand starts the MCP Scanner dashboard server.
//
// Usage:
//
//	go run ./cmd/mcpscand
//	go run ./cmd/mcpscand -port 8000
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8000/api/health
//
//	# Run a scan
//	curl -X POST http://localhost:8000/api/scan \
//	  -H "Content-Type: application/json" \
//	  -d '{"path": "/path/to/mcp/servers"}'
//
//	# Latest results
//	curl http://localhost:8000/api/results | jq
//
//	# Recent logs
//	curl http://localhost:8000/api/logs | jq
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/mcpscan/pkg/logging"
	"github.com/AleutianAI/mcpscan/scanner/llm"
	"github.com/AleutianAI/mcpscan/scanner/server"
)

func main() {
	port := flag.Int("port", 8000, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	results := flag.String("results", server.DefaultResultsPath, "Path for persisted scan results")
	flag.Parse()

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Retain recent log lines for the dashboard's polling endpoint and tee
	// library slog output into the same ring.
	ring := logging.NewRingExporter(logging.DefaultRingCapacity)
	logger := logging.New(logging.Config{
		Level:    logging.LevelInfo,
		Service:  "mcp-dashboard",
		Exporter: ring,
	})
	defer logger.Close()
	slog.SetDefault(slog.New(logging.Fanout(
		logger.Slog().Handler(),
		ring.AsHandler(slog.LevelInfo),
	)))

	handlers := server.NewHandlers(logger, ring, llm.LoadConfig(), *results)

	router := gin.New()
	router.Use(gin.Recovery())
	if *debug {
		router.Use(gin.Logger())
	}
	router.Use(corsMiddleware())

	api := router.Group("/api")
	server.RegisterRoutes(api, handlers)

	logger.Info("MCP Scanner server started - logging initialized")

	addr := fmt.Sprintf(":%d", *port)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		log.Printf("Starting MCP Scanner dashboard on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Drain in-flight requests, then return so the deferred logger.Close
	// flushes the exporter and syncs the log file.
	log.Println("\nShutting down MCP Scanner dashboard...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Forced shutdown: %v", err)
	}
}

// corsMiddleware allows the dashboard frontend to call the API from any
// origin.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
