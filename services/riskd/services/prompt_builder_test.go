// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRisk/services/riskd/classifier"
	"github.com/AleutianAI/AleutianRisk/services/riskd/datatypes"
)

// =============================================================================
// Fixtures
// =============================================================================

var promptTestRef = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// promptEvidence builds n valid evidence items with distinct snippets.
func promptEvidence(t *testing.T, n int) []datatypes.EvidenceItem {
	t.Helper()
	items := make([]datatypes.EvidenceItem, 0, n)
	for i := 0; i < n; i++ {
		item, err := datatypes.NewEvidenceItem(
			fmt.Sprintf("ev-%d", i),
			datatypes.SourceVectorSearch,
			datatypes.RiskTypeInfra,
			datatypes.SeverityHigh,
			fmt.Sprintf("outage report number %d", i),
			promptTestRef.Add(-time.Duration(i)*time.Hour),
			0.9,
		)
		require.NoError(t, err)
		items = append(items, item)
	}
	return items
}

func promptQuery(ticker string) datatypes.RiskQuery {
	return datatypes.RiskQuery{
		RawText:    "What operational risks affect this name?",
		Ticker:     ticker,
		Mode:       datatypes.ModeRisk,
		TimeWindow: 72 * time.Hour,
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestBuildAssessmentPrompt_Layout(t *testing.T) {
	profile := classifier.ProfileFor(datatypes.ModeRisk)
	evidence := promptEvidence(t, 2)
	signals := []datatypes.MLSignal{
		{Ticker: "NVDA", SignalType: datatypes.SignalSentiment, Value: -0.62, Confidence: 0.8, ComputedAt: promptTestRef},
	}

	prompt := BuildAssessmentPrompt(profile, promptQuery("NVDA"), evidence, signals)

	assert.Contains(t, prompt, "Never give trading advice")
	assert.Contains(t, prompt, "Focus: "+profile.PromptFocus)
	assert.Contains(t, prompt, "Question: What operational risks affect this name?")
	assert.Contains(t, prompt, "Instrument: NVDA")
	assert.Contains(t, prompt, "Evidence window: last 72 hours")
	assert.Contains(t, prompt, "Evidence (2 items, strongest first):")
	assert.Contains(t, prompt, "[1] vector_search | infra | high | 2026-03-14T12:00:00Z")
	assert.Contains(t, prompt, "outage report number 0")
	assert.Contains(t, prompt, "[2] ")
	assert.Contains(t, prompt, "Quantitative signals:")
	assert.Contains(t, prompt, "- sentiment_score: -0.62 (coverage 0.80)")
	assert.Contains(t, prompt, `"risk_summary"`)
	assert.Contains(t, prompt, `"<low|medium|high|unknown>"`)
}

func TestBuildAssessmentPrompt_TruncatesEvidence(t *testing.T) {
	profile := classifier.ProfileFor(datatypes.ModeRisk)
	evidence := promptEvidence(t, 12)

	prompt := BuildAssessmentPrompt(profile, promptQuery("NVDA"), evidence, nil)

	assert.Contains(t, prompt, "Evidence (10 items, strongest first):")
	assert.Contains(t, prompt, "[10] ")
	assert.NotContains(t, prompt, "[11] ")
	assert.NotContains(t, prompt, "outage report number 10")
}

func TestBuildAssessmentPrompt_MarketWide(t *testing.T) {
	profile := classifier.ProfileFor(datatypes.ModeMacro)
	evidence := promptEvidence(t, 1)

	prompt := BuildAssessmentPrompt(profile, promptQuery(""), evidence, nil)

	assert.Contains(t, prompt, "Instrument: market-wide")
}

func TestBuildAssessmentPrompt_NoSignalsOmitsSection(t *testing.T) {
	profile := classifier.ProfileFor(datatypes.ModeRisk)
	evidence := promptEvidence(t, 1)

	prompt := BuildAssessmentPrompt(profile, promptQuery("NVDA"), evidence, nil)

	assert.NotContains(t, prompt, "Quantitative signals")
}

func TestBuildAssessmentPrompt_FocusVariesByMode(t *testing.T) {
	evidence := promptEvidence(t, 1)
	query := promptQuery("NVDA")

	riskPrompt := BuildAssessmentPrompt(classifier.ProfileFor(datatypes.ModeRisk), query, evidence, nil)
	movePrompt := BuildAssessmentPrompt(classifier.ProfileFor(datatypes.ModeMove), query, evidence, nil)

	assert.NotEqual(t, riskPrompt, movePrompt)
	assert.Contains(t, movePrompt, classifier.ProfileFor(datatypes.ModeMove).PromptFocus)
}
