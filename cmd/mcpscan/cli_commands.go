// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/mcpscan/pkg/logging"
	"github.com/AleutianAI/mcpscan/scanner/analysis"
	"github.com/AleutianAI/mcpscan/scanner/catalog"
	"github.com/AleutianAI/mcpscan/scanner/discovery"
	"github.com/AleutianAI/mcpscan/scanner/llm"
	"github.com/AleutianAI/mcpscan/scanner/manifest"
	"github.com/AleutianAI/mcpscan/scanner/pipeline"
	"github.com/AleutianAI/mcpscan/scanner/report"
)

var (
	rootCmd = &cobra.Command{
		Use:   "mcpscan",
		Short: "Discover and analyze MCP servers for dangerous capabilities",
		Long: `mcpscan inspects Model Context Protocol server source for risky
patterns: process execution, dynamic evaluation, filesystem access, and
network calls. Results are scored, banded into risk levels, and saved as a
JSON manifest.`,
	}

	scanCmd = &cobra.Command{
		Use:   "scan [directory]",
		Short: "Run the full scan pipeline on a directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runScanCommand,
	}
	outputPath  string
	catalogPath string
	scanAll     bool
	withLLM     bool
	maxFiles    int

	reportCmd = &cobra.Command{
		Use:   "report [file]",
		Short: "Display saved scan results in readable format",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runReportCommand,
	}
	showDetails bool
)

func init() {
	scanCmd.Flags().StringVarP(&outputPath, "output", "o", "scan_results.json", "Output JSON file path")
	scanCmd.Flags().StringVar(&catalogPath, "catalog", "", "YAML pattern catalogue override")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "Scan every source file, not just decorated MCP servers")
	scanCmd.Flags().BoolVar(&withLLM, "llm", false, "Run the second-opinion LLM assessment (needs OPENROUTER_API_KEY)")
	scanCmd.Flags().IntVar(&maxFiles, "max-files", discovery.DefaultMaxFiles, "Maximum files per comprehensive scan")
	rootCmd.AddCommand(scanCmd)

	reportCmd.Flags().BoolVar(&showDetails, "details", false, "Show per-server pattern details")
	rootCmd.AddCommand(reportCmd)
}

// loadCatalog resolves the catalogue: the YAML override when given,
// otherwise the built-in default.
func loadCatalog() (*catalog.Catalog, error) {
	if catalogPath == "" {
		return catalog.Default(), nil
	}
	return catalog.LoadFile(catalogPath)
}

func runScanCommand(cmd *cobra.Command, args []string) error {
	directory := args[0]

	logger := logging.Default()
	defer logger.Close()
	logger.SetAsDefault()

	cat, err := loadCatalog()
	if err != nil {
		color.Red("Invalid catalogue: %v", err)
		return err
	}

	fmt.Printf("Starting scan of: %s\n", directory)

	if scanAll {
		return runPipelineScan(cmd, directory, cat)
	}
	return runServerScan(cmd, directory, cat)
}

// runPipelineScan runs the comprehensive pipeline over every source file.
func runPipelineScan(cmd *cobra.Command, directory string, cat *catalog.Catalog) error {
	opts := []pipeline.Option{
		pipeline.WithCatalog(cat),
		pipeline.WithMaxFiles(maxFiles),
	}
	if withLLM {
		opts = append(opts, pipeline.WithLLM(llm.NewAnalyzer(llm.LoadConfig())))
	}
	p := pipeline.New(opts...)

	sp := newSpinner("Scanning all source files...")
	sp.Start()
	m, summary, err := p.Run(cmd.Context(), directory, outputPath)
	sp.Stop()
	if err != nil {
		color.Red("Scan failed: %v", err)
		return err
	}

	fmt.Print("Results saved to: ")
	color.New(color.FgBlue, color.Bold).Println(outputPath)
	fmt.Println("\n" + summary)
	fmt.Println(report.ConsoleOutput(m))
	return nil
}

// runServerScan analyzes only discovered MCP servers, tools, and configs.
func runServerScan(cmd *cobra.Command, directory string, cat *catalog.Catalog) error {
	ctx := cmd.Context()

	scanner := discovery.NewFileScanner()
	analyzer := analysis.NewAnalyzer(cat)
	gen := manifest.NewGenerator()

	fmt.Println("Discovering MCP servers...")
	items := scanner.DiscoverServers(ctx, directory)
	if len(items) == 0 {
		color.Yellow("No MCP servers or tools found.")
		return nil
	}
	fmt.Printf("Found %d potential items.\n", len(items))

	sp := newSpinner("Analyzing servers...")
	sp.Start()
	for _, item := range items {
		if strings.HasPrefix(item.Type, "python") {
			content, err := os.ReadFile(item.Path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "\nError analyzing %s: %v\n", item.Path, err)
				continue
			}
			gen.Add(item, analyzer.ScanCode(ctx, content, item.Path), nil)
			continue
		}
		// Config files get no static analysis, only a placeholder entry.
		gen.Add(item, &analysis.Result{
			RiskLevel: catalog.LevelUnknown,
			Breakdown: []analysis.Finding{
				{Description: "Config file - manual review required"},
			},
			Imports: []string{},
		}, nil)
	}
	sp.Stop()

	if err := gen.SaveToFile(outputPath); err != nil {
		color.Red("Failed to save results: %v", err)
		return err
	}
	fmt.Print("Results saved to: ")
	color.New(color.FgBlue, color.Bold).Println(outputPath)

	fmt.Println("\n" + gen.Summary())
	return nil
}

func runReportCommand(cmd *cobra.Command, args []string) error {
	path := "scan_results.json"
	if len(args) > 0 {
		path = args[0]
	}

	m, err := manifest.Load(path)
	if err != nil {
		color.Red("Error reading report: %v", err)
		return err
	}

	fmt.Println(report.ConsoleOutput(m))

	if showDetails {
		for _, srv := range m.Servers {
			fmt.Println(report.ServerDetails(srv))
		}
	}
	return nil
}

// newSpinner creates the standard CLI progress spinner.
func newSpinner(suffix string) *spinner.Spinner {
	sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond,
		spinner.WithWriter(os.Stderr))
	sp.Suffix = " " + suffix
	return sp
}
