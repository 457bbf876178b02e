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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianRisk/services/riskd/datatypes"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	assessTicker   string
	assessMode     string
	assessWindow   int
	assessSeverity string
	assessJSON     bool
	assessQuiet    bool
	assessFailOn   string
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var assessCmd = &cobra.Command{
	Use:   "assess [question]",
	Short: "Ask the risk daemon a question and print the assessment",
	Long: `Send a natural-language risk question through the full pipeline:
mode classification, evidence fan-out, ranking, and LLM reasoning.

Degraded responses carry warnings naming what was skipped, so automation
can distinguish a clean answer from a partial one.

Examples:
  riskctl assess "What risks affect NVDA right now?"
  riskctl assess --ticker NVDA "Any infrastructure incidents this week?"
  riskctl assess --mode OPTIONS --window 24 "Unusual put activity on TSLA?"
  riskctl assess --json "Sector-wide supply chain exposure?"
  riskctl assess --fail-on high "Is AMD safe to hold through earnings?"

Exit Codes:
  0 = Assessment returned (and risk below --fail-on when set)
  1 = Assessed risk level at or above --fail-on
  2 = Error (daemon unreachable, invalid request)`,
	Run: runAssessCommand,
}

func init() {
	assessCmd.Flags().StringVar(&assessTicker, "ticker", "",
		"Scope the question to one instrument")
	assessCmd.Flags().StringVar(&assessMode, "mode", "",
		"Pin the processing mode: RISK, MOVE, OPTIONS, MACRO, GENERAL")
	assessCmd.Flags().IntVar(&assessWindow, "window", 0,
		"Evidence lookback in hours (default: server per-mode default)")
	assessCmd.Flags().StringVar(&assessSeverity, "severity", "",
		"Minimum evidence severity: low, medium, high")
	assessCmd.Flags().BoolVar(&assessJSON, "json", false,
		"Output as JSON")
	assessCmd.Flags().BoolVar(&assessQuiet, "quiet", false,
		"Only exit code, no output")
	assessCmd.Flags().StringVar(&assessFailOn, "fail-on", "",
		"Exit 1 if risk level is at/above: low, medium, high")

	// Add to root
	rootCmd.AddCommand(assessCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runAssessCommand(cmd *cobra.Command, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Error: assess requires a question")
		os.Exit(exitError)
	}

	var failOn datatypes.RiskLevel
	if assessFailOn != "" {
		parsed, err := datatypes.ParseRiskLevel(assessFailOn)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid --fail-on: %v\n", err)
			os.Exit(exitError)
		}
		failOn = parsed
	}

	req := buildAssessRequest(args)

	result, err := sendAssessRequest(req)
	if err != nil {
		outputAssessError("Assessment failed", err)
		os.Exit(exitError)
	}

	if !assessQuiet {
		if assessJSON {
			outputAssessJSON(result)
		} else {
			outputAssessText(result)
		}
	}

	if failOn != "" && riskRank(result.RiskLevel) >= riskRank(failOn) {
		os.Exit(exitRisky)
	}
	os.Exit(exitOK)
}

// buildAssessRequest constructs the request body from args and flags.
func buildAssessRequest(args []string) datatypes.AssessRequest {
	req := datatypes.AssessRequest{
		Text: strings.Join(args, " "),
	}
	if assessTicker != "" {
		req.Ticker = strings.ToUpper(strings.TrimSpace(assessTicker))
	}
	if assessMode != "" {
		req.Mode = strings.ToUpper(strings.TrimSpace(assessMode))
	}
	if assessWindow > 0 {
		req.WindowHours = assessWindow
	} else if cliConfig.DefaultWindowHours > 0 {
		req.WindowHours = cliConfig.DefaultWindowHours
	}
	if assessSeverity != "" {
		req.SeverityThreshold = strings.ToLower(strings.TrimSpace(assessSeverity))
	}
	return req
}

// riskRank orders risk levels for --fail-on gating. Unknown ranks
// lowest: a no-evidence answer is absence of signal, not danger.
func riskRank(level datatypes.RiskLevel) int {
	switch level {
	case datatypes.RiskLevelLow:
		return 1
	case datatypes.RiskLevelMedium:
		return 2
	case datatypes.RiskLevelHigh:
		return 3
	default:
		return 0
	}
}

// sendAssessRequest posts the question to riskd and decodes the result.
func sendAssessRequest(req datatypes.AssessRequest) (*datatypes.RiskAssessment, error) {
	postBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to create request body: %w", err)
	}

	assessURL := fmt.Sprintf("%s/api/v1/risk/assess", getRiskdBaseURL())

	client := &http.Client{Timeout: requestTimeout()}
	resp, err := client.Post(assessURL, "application/json", bytes.NewBuffer(postBody))
	if err != nil {
		return nil, fmt.Errorf("failed to reach riskd: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("riskd returned an error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var assessment datatypes.RiskAssessment
	if err := json.Unmarshal(bodyBytes, &assessment); err != nil {
		return nil, fmt.Errorf("failed to parse riskd response: %w", err)
	}
	return &assessment, nil
}

// =============================================================================
// OUTPUT FUNCTIONS
// =============================================================================

func outputAssessError(msg string, err error) {
	if assessJSON {
		result := map[string]interface{}{
			"success": false,
			"error":   fmt.Sprintf("%s: %v", msg, err),
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		encoder.Encode(result)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	}
}

func outputAssessJSON(result *datatypes.RiskAssessment) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		os.Exit(exitError)
	}
}

func outputAssessText(result *datatypes.RiskAssessment) {
	levelIndicator := getLevelIndicator(result.RiskLevel)
	fmt.Printf("Risk Level: %s %s\n", result.RiskLevel, levelIndicator)
	fmt.Printf("Confidence: %.2f\n", result.Confidence)
	fmt.Println()

	if result.RiskSummary != "" {
		fmt.Println("Summary:")
		fmt.Printf("  %s\n", result.RiskSummary)
		fmt.Println()
	}

	if len(result.PrimaryRisks) > 0 {
		fmt.Println("Primary Risks:")
		for _, r := range result.PrimaryRisks {
			icon := getSeverityIcon(string(r.Severity))
			fmt.Printf("  %s %s (%s): %s\n", icon, r.Type, r.Severity, r.Description)
		}
		fmt.Println()
	}

	if len(result.EvidenceUsed) > 0 {
		fmt.Printf("Evidence (%d items):\n", len(result.EvidenceUsed))
		for _, e := range result.EvidenceUsed {
			fmt.Printf("  - [%s] %s (score %.2f): %s\n",
				e.Source, e.SourceID, e.Score, truncateSnippet(e.Snippet))
		}
		fmt.Println()
	}

	if len(result.MonitoringRecommendations) > 0 {
		fmt.Println("Monitoring Recommendations:")
		for _, rec := range result.MonitoringRecommendations {
			fmt.Printf("  - %s\n", rec)
		}
		fmt.Println()
	}

	if len(result.Warnings) > 0 {
		fmt.Println("Warnings:")
		for _, w := range result.Warnings {
			fmt.Printf("  ! %s\n", w)
		}
		fmt.Println()
	}

	if result.Cached {
		fmt.Println("Served from cache.")
	} else {
		fmt.Printf("Assessment completed in %dms\n", result.ProcessingTimeMs)
	}
}

func getLevelIndicator(level datatypes.RiskLevel) string {
	switch level {
	case datatypes.RiskLevelHigh:
		return "[!!]"
	case datatypes.RiskLevelMedium:
		return "[!]"
	case datatypes.RiskLevelLow:
		return "[ok]"
	default:
		return "[?]"
	}
}

func getSeverityIcon(severity string) string {
	switch severity {
	case "high":
		return "!!!"
	case "medium":
		return " ! "
	default:
		return " - "
	}
}

func truncateSnippet(s string) string {
	const max = 100
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
