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
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianRisk/services/riskd/datatypes"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	signalsWindow int
	signalsJSON   bool
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var signalsCmd = &cobra.Command{
	Use:   "signals [ticker]",
	Short: "Show computed market signals for a ticker",
	Long: `Fetch the price-derived signals riskd computes for one instrument:
volatility regime, anomaly score, and momentum-based sentiment.

These are the same numbers the assessment pipeline consumes as the
ml_signals evidence source, exposed directly for dashboards and
debugging.

Examples:
  riskctl signals NVDA
  riskctl signals --window 24 TSLA
  riskctl signals --json AMD`,
	Run: runSignalsCommand,
}

func init() {
	signalsCmd.Flags().IntVar(&signalsWindow, "window", 0,
		"Lookback window in hours (default: server default)")
	signalsCmd.Flags().BoolVar(&signalsJSON, "json", false,
		"Output as JSON")

	// Add to root
	rootCmd.AddCommand(signalsCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// signalsResponse mirrors the daemon's signals endpoint body.
type signalsResponse struct {
	Ticker      string               `json:"ticker"`
	WindowHours int                  `json:"window_hours"`
	Signals     []datatypes.MLSignal `json:"signals"`
	Cached      bool                 `json:"cached"`
}

func runSignalsCommand(cmd *cobra.Command, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Error: signals requires exactly one ticker")
		os.Exit(exitError)
	}
	ticker := strings.ToUpper(strings.TrimSpace(args[0]))

	result, err := fetchSignals(ticker)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: signals fetch failed: %v\n", err)
		os.Exit(exitError)
	}

	if signalsJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(result); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			os.Exit(exitError)
		}
		os.Exit(exitOK)
	}

	outputSignalsText(result)
	os.Exit(exitOK)
}

// fetchSignals queries the daemon's signals endpoint.
func fetchSignals(ticker string) (*signalsResponse, error) {
	signalsURL := fmt.Sprintf("%s/api/v1/risk/signals/%s",
		getRiskdBaseURL(), url.PathEscape(ticker))
	if signalsWindow > 0 {
		signalsURL = fmt.Sprintf("%s?window_hours=%d", signalsURL, signalsWindow)
	}

	client := &http.Client{Timeout: requestTimeout()}
	resp, err := client.Get(signalsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to reach riskd: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("riskd returned an error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var result signalsResponse
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to parse riskd response: %w", err)
	}
	return &result, nil
}

// =============================================================================
// OUTPUT FUNCTIONS
// =============================================================================

func outputSignalsText(result *signalsResponse) {
	fmt.Printf("Signals for %s (%dh window):\n", result.Ticker, result.WindowHours)

	if len(result.Signals) == 0 {
		fmt.Println("  (no signals: insufficient price history)")
		return
	}

	for _, s := range result.Signals {
		fmt.Printf("  %-12s %8.4f  (confidence %.2f, computed %s)\n",
			s.SignalType, s.Value, s.Confidence,
			s.ComputedAt.Format("2006-01-02 15:04:05 MST"))
	}

	if result.Cached {
		fmt.Println()
		fmt.Println("Served from cache.")
	}
}
