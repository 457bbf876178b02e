// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Risk Level Tests
// =============================================================================

func TestParseRiskLevel_CaseInsensitive(t *testing.T) {
	cases := map[string]RiskLevel{
		"low":      RiskLevelLow,
		"HIGH":     RiskLevelHigh,
		" Medium ": RiskLevelMedium,
		"unknown":  RiskLevelUnknown,
	}
	for input, want := range cases {
		level, err := ParseRiskLevel(input)
		if err != nil {
			t.Errorf("expected %q to parse, got error: %v", input, err)
			continue
		}
		if level != want {
			t.Errorf("%q: expected %s, got %s", input, want, level)
		}
	}
}

func TestParseRiskLevel_Unknown(t *testing.T) {
	if _, err := ParseRiskLevel("extreme"); err == nil {
		t.Error("expected error for unknown risk level, got nil")
	}
}

// =============================================================================
// Warning Vocabulary Tests
// =============================================================================

func TestPartialDataWarning_RoundTrip(t *testing.T) {
	warning := PartialDataWarning(SourceVectorSearch)

	if warning != "partial_data:vector_search" {
		t.Errorf("unexpected warning format: %q", warning)
	}

	source, ok := IsPartialDataWarning(warning)
	if !ok {
		t.Fatal("expected warning to be recognized as partial data")
	}
	if source != SourceVectorSearch {
		t.Errorf("expected source %s, got %s", SourceVectorSearch, source)
	}
}

func TestIsPartialDataWarning_NonMatch(t *testing.T) {
	if _, ok := IsPartialDataWarning(WarningTimeoutFallback); ok {
		t.Error("timeout_fallback must not read as a partial data warning")
	}
}

// =============================================================================
// RiskAssessment Tests
// =============================================================================

func TestNewRiskAssessment_Defaults(t *testing.T) {
	a := NewRiskAssessment()

	if a.ResponseID == "" {
		t.Error("expected generated response_id")
	}
	if a.Timestamp == 0 {
		t.Error("expected generated timestamp")
	}
	if a.RiskLevel != RiskLevelUnknown {
		t.Errorf("expected unknown risk level default, got %s", a.RiskLevel)
	}
	if a.PrimaryRisks == nil || a.EvidenceUsed == nil || a.Warnings == nil || a.MonitoringRecommendations == nil {
		t.Error("slices must be non-nil so the JSON response has [] not null")
	}
}

func TestRiskAssessment_JSONShape(t *testing.T) {
	a := NewRiskAssessment()
	a.RiskSummary = "No significant risks found."

	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	for _, field := range []string{"response_id", "risk_summary", "risk_level", "primary_risks",
		"monitoring_recommendations", "evidence_used", "confidence", "warnings", "processing_time_ms", "cached"} {
		if !strings.Contains(string(data), `"`+field+`"`) {
			t.Errorf("response JSON missing field %q", field)
		}
	}
	if strings.Contains(string(data), "null") {
		t.Errorf("response JSON must not contain null collections: %s", data)
	}
}

func TestNewEvidenceView_ProjectsComputedScore(t *testing.T) {
	item, err := NewEvidenceItem("row-7", SourceRelational, RiskTypeRegulatory, SeverityMedium,
		"Consent decree filed", time.Date(2025, 5, 20, 8, 0, 0, 0, time.UTC), 0.8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	item.ComputedScore = 0.61

	view := NewEvidenceView(item)

	if view.Score != 0.61 {
		t.Errorf("expected computed score 0.61, got %v", view.Score)
	}
	if view.SourceID != "row-7" || view.Source != SourceRelational {
		t.Errorf("view lost identity fields: %+v", view)
	}
}

// =============================================================================
// ReasoningResult Validation Tests
// =============================================================================

func validReasoningResult() *ReasoningResult {
	return &ReasoningResult{
		RiskSummary: "Elevated infrastructure risk from the reported outage.",
		RiskLevel:   RiskLevelHigh,
		PrimaryRisks: []PrimaryRisk{
			{Type: RiskTypeInfra, Severity: SeverityHigh, Description: "Datacenter outage", Confidence: 0.9},
		},
		Confidence: 0.82,
	}
}

func TestReasoningResult_Validate_Success(t *testing.T) {
	if err := validReasoningResult().Validate(); err != nil {
		t.Errorf("expected valid result, got error: %v", err)
	}
}

func TestReasoningResult_Validate_EmptySummary(t *testing.T) {
	r := validReasoningResult()
	r.RiskSummary = "  "

	if err := r.Validate(); err == nil {
		t.Error("expected error for blank summary, got nil")
	}
}

func TestReasoningResult_Validate_BadLevel(t *testing.T) {
	r := validReasoningResult()
	r.RiskLevel = "catastrophic"

	if err := r.Validate(); err == nil {
		t.Error("expected error for unknown risk level, got nil")
	}
}

func TestReasoningResult_Validate_ConfidenceOutOfRange(t *testing.T) {
	r := validReasoningResult()
	r.Confidence = 1.2

	if err := r.Validate(); err == nil {
		t.Error("expected error for confidence above 1, got nil")
	}
}

func TestReasoningResult_Validate_BadPrimaryRisk(t *testing.T) {
	r := validReasoningResult()
	r.PrimaryRisks[0].Type = "cyber"

	if err := r.Validate(); err == nil {
		t.Error("expected error for unknown primary risk type, got nil")
	}
}

func TestReasoningResult_Validate_EmptyPrimaryRisksAllowed(t *testing.T) {
	r := validReasoningResult()
	r.PrimaryRisks = nil
	r.RiskLevel = RiskLevelUnknown

	if err := r.Validate(); err != nil {
		t.Errorf("empty primary_risks must be valid, got error: %v", err)
	}
}

// =============================================================================
// ParseReasoningResult Tests
// =============================================================================

func TestParseReasoningResult_PlainJSON(t *testing.T) {
	raw := `{"risk_summary":"Low risk environment.","risk_level":"low","primary_risks":[],"confidence":0.4}`

	result, err := ParseReasoningResult(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RiskLevel != RiskLevelLow {
		t.Errorf("expected low risk level, got %s", result.RiskLevel)
	}
}

func TestParseReasoningResult_MarkdownFenced(t *testing.T) {
	raw := "```json\n{\"risk_summary\":\"Watch the regulator.\",\"risk_level\":\"medium\",\"primary_risks\":[],\"confidence\":0.5}\n```"

	result, err := ParseReasoningResult(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RiskSummary != "Watch the regulator." {
		t.Errorf("unexpected summary: %q", result.RiskSummary)
	}
}

func TestParseReasoningResult_ProseAroundJSON(t *testing.T) {
	raw := `Here is my assessment:
{"risk_summary":"Mixed signals.","risk_level":"medium","primary_risks":[],"confidence":0.5}
Let me know if you need more.`

	result, err := ParseReasoningResult(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Confidence != 0.5 {
		t.Errorf("expected confidence 0.5, got %v", result.Confidence)
	}
}

func TestParseReasoningResult_UppercaseRiskLevel(t *testing.T) {
	raw := `{"risk_summary":"Elevated risk.","risk_level":"HIGH","primary_risks":[],"confidence":0.7}`

	result, err := ParseReasoningResult(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RiskLevel != RiskLevelHigh {
		t.Errorf("expected normalized high, got %s", result.RiskLevel)
	}
}

func TestParseReasoningResult_NotJSON(t *testing.T) {
	if _, err := ParseReasoningResult("I cannot answer that question."); err == nil {
		t.Error("expected error for non-JSON output, got nil")
	}
}

func TestParseReasoningResult_MissingRequiredFields(t *testing.T) {
	raw := `{"risk_level":"low","confidence":0.5}`

	if _, err := ParseReasoningResult(raw); err == nil {
		t.Error("expected error for missing risk_summary, got nil")
	}
}

func TestParseReasoningResult_MalformedJSON(t *testing.T) {
	raw := `{"risk_summary":"broken", "risk_level": }`

	if _, err := ParseReasoningResult(raw); err == nil {
		t.Error("expected error for malformed JSON, got nil")
	}
}

// =============================================================================
// Fallback Payload Tests
// =============================================================================

func TestFallbackReasoningResult_IsStructurallyValid(t *testing.T) {
	fallback := FallbackReasoningResult()

	if err := fallback.Validate(); err != nil {
		t.Fatalf("fallback payload must always validate, got: %v", err)
	}
	if fallback.RiskLevel != RiskLevelUnknown {
		t.Errorf("expected unknown risk level, got %s", fallback.RiskLevel)
	}
	if fallback.Confidence != 0.0 {
		t.Errorf("expected zero confidence, got %v", fallback.Confidence)
	}
	if len(fallback.PrimaryRisks) != 0 {
		t.Errorf("expected no primary risks, got %d", len(fallback.PrimaryRisks))
	}
}
