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
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// cliVersion is stamped into version output.
const cliVersion = "0.1.0"

// Exit codes shared by all commands.
const (
	exitOK    = 0 // Success (and risk at/below --fail-on)
	exitRisky = 1 // Assessed risk at/above --fail-on
	exitError = 2 // Error (daemon unreachable, invalid request)
)

// --- Global Command Variables ---
var (
	rootCmd = &cobra.Command{
		Use:   "riskctl",
		Short: "A cli to query the AleutianRisk assessment daemon",
		Long: `Riskctl drives the riskd financial-risk backend: ask it
				natural-language questions, inspect computed market signals,
				and check daemon health.`,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print riskctl and connected riskd versions",
		Run:   runVersionCommand,
	}
)

func init() {
	rootCmd.AddCommand(versionCmd)
}

// getRiskdBaseURL resolves the daemon base URL.
func getRiskdBaseURL() string {
	// 1. Priority: Environment Variable (Used by Tests & Docker overrides)
	if url := os.Getenv("ALEUTIAN_RISKD_URL"); url != "" {
		return url
	}
	// 2. Config file value (seeded with the standard host/port)
	return cliConfig.ServerURL
}

// requestTimeout converts the configured timeout, with a floor so a
// zero config never produces instant cancellations.
func requestTimeout() time.Duration {
	if cliConfig.TimeoutSeconds > 0 {
		return time.Duration(cliConfig.TimeoutSeconds) * time.Second
	}
	return 30 * time.Second
}

func runVersionCommand(cmd *cobra.Command, args []string) {
	fmt.Printf("riskctl %s\n", cliVersion)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(getRiskdBaseURL() + "/healthz")
	if err != nil {
		fmt.Printf("riskd: unreachable at %s (%v)\n", getRiskdBaseURL(), err)
		return
	}
	defer resp.Body.Close()

	var health struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		fmt.Printf("riskd: unexpected response (%v)\n", err)
		return
	}
	fmt.Printf("riskd %s (%s) at %s\n", health.Version, health.Status, getRiskdBaseURL())
}
