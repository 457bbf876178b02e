// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides data structures for the risk assessment service.
//
// This file contains the outbound assessment model: the response body,
// the parsed LLM reasoning payload, and the warning vocabulary.
package datatypes

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Risk Level Enum
// =============================================================================

// RiskLevel is the overall risk grade of an assessment.
type RiskLevel string

const (
	RiskLevelLow     RiskLevel = "low"
	RiskLevelMedium  RiskLevel = "medium"
	RiskLevelHigh    RiskLevel = "high"
	RiskLevelUnknown RiskLevel = "unknown"
)

// Valid reports whether the risk level is one of the known grades.
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLevelLow, RiskLevelMedium, RiskLevelHigh, RiskLevelUnknown:
		return true
	}
	return false
}

// ParseRiskLevel converts a string into a RiskLevel, case-insensitively.
func ParseRiskLevel(s string) (RiskLevel, error) {
	l := RiskLevel(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", fmt.Errorf("unknown risk level: %q", s)
	}
	return l, nil
}

// =============================================================================
// Warning Vocabulary
// =============================================================================

// Warning strings appended to assessments when the pipeline degrades.
// These are part of the response contract; clients match on them.
const (
	// WarningTimeoutFallback means the global deadline fired before all
	// sources finished; the assessment was built from partial evidence.
	WarningTimeoutFallback = "timeout_fallback"

	// WarningLLMFailure means the LLM output failed schema validation on
	// both attempts and the deterministic fallback payload was used.
	WarningLLMFailure = "llm_processing_error"

	// WarningCacheUnavailable means the cache store was unreachable and
	// the request proceeded uncached.
	WarningCacheUnavailable = "cache_unavailable"

	// partialDataPrefix prefixes the name of each source that failed or
	// timed out while the others succeeded.
	partialDataPrefix = "partial_data:"
)

// PartialDataWarning builds the warning for one failed evidence source.
func PartialDataWarning(source string) string {
	return partialDataPrefix + source
}

// IsPartialDataWarning reports whether a warning names a failed source,
// and if so which one.
func IsPartialDataWarning(warning string) (string, bool) {
	if !strings.HasPrefix(warning, partialDataPrefix) {
		return "", false
	}
	return strings.TrimPrefix(warning, partialDataPrefix), true
}

// =============================================================================
// Assessment Response Types
// =============================================================================

// PrimaryRisk is one identified risk in the assessment.
type PrimaryRisk struct {
	Type        RiskType `json:"type"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Confidence  float64  `json:"confidence"`
}

// EvidenceView is the response-facing projection of an EvidenceItem.
//
// It drops the raw relevance (an internal scoring input) and exposes
// the computed score instead, so clients see the same ordering the
// ranking engine produced.
type EvidenceView struct {
	SourceID  string    `json:"source_id"`
	Source    string    `json:"source"`
	RiskType  RiskType  `json:"risk_type"`
	Severity  Severity  `json:"severity"`
	Snippet   string    `json:"snippet"`
	Timestamp time.Time `json:"timestamp"`
	Score     float64   `json:"score"`
}

// NewEvidenceView projects a ranked EvidenceItem into its response form.
func NewEvidenceView(item EvidenceItem) EvidenceView {
	return EvidenceView{
		SourceID:  item.SourceID,
		Source:    item.Source,
		RiskType:  item.RiskType,
		Severity:  item.Severity,
		Snippet:   item.Snippet,
		Timestamp: item.Timestamp,
		Score:     item.ComputedScore,
	}
}

// RiskAssessment is the full response body for an assessment request.
//
// # Description
//
// Constructed by the result assembler from ranking output, the LLM
// reasoning payload, the confidence score, and any degradation
// warnings. Cached keyed by a hash of the normalized query params;
// invalidated by TTL expiry only. Every response carries a unique ID
// and timestamp for audit trails, matching the rest of the Aleutian
// API surface.
//
// # Fields
//
//   - ResponseID: Unique identifier for this response (UUID v4),
//     generated server-side.
//   - Timestamp: Unix milliseconds UTC when the response was built.
//   - RiskSummary: LLM-written summary of the risk picture.
//   - RiskLevel: Overall grade; "unknown" whenever EvidenceUsed is
//     empty.
//   - PrimaryRisks: Identified risks, most significant first.
//   - MonitoringRecommendations: Follow-up suggestions. Never trading
//     advice.
//   - EvidenceUsed: Ranked evidence the assessment rests on, bounded
//     by the configured maximum.
//   - Confidence: Composite confidence in [0,1].
//   - Warnings: Degradation markers (see Warning* constants).
//   - ProcessingTimeMs: Wall time spent building the assessment.
//   - Cached: True when served from the assessment cache.
type RiskAssessment struct {
	ResponseID                string         `json:"response_id"`
	Timestamp                 int64          `json:"timestamp"`
	RiskSummary               string         `json:"risk_summary"`
	RiskLevel                 RiskLevel      `json:"risk_level"`
	PrimaryRisks              []PrimaryRisk  `json:"primary_risks"`
	MonitoringRecommendations []string       `json:"monitoring_recommendations"`
	EvidenceUsed              []EvidenceView `json:"evidence_used"`
	Confidence                float64        `json:"confidence"`
	Warnings                  []string       `json:"warnings"`
	ProcessingTimeMs          int64          `json:"processing_time_ms"`
	Cached                    bool           `json:"cached"`
}

// NewRiskAssessment creates an assessment shell with auto-generated
// response ID and timestamp. The assembler fills in the remaining
// fields before the response leaves the pipeline.
func NewRiskAssessment() *RiskAssessment {
	return &RiskAssessment{
		ResponseID:                uuid.New().String(),
		Timestamp:                 time.Now().UnixMilli(),
		RiskLevel:                 RiskLevelUnknown,
		PrimaryRisks:              []PrimaryRisk{},
		MonitoringRecommendations: []string{},
		EvidenceUsed:              []EvidenceView{},
		Warnings:                  []string{},
	}
}

// =============================================================================
// LLM Reasoning Payload
// =============================================================================

// ReasoningResult is the schema-constrained payload the LLM must return.
//
// # Description
//
// The reasoning gateway prompts the model for strict JSON with exactly
// these fields. ParseReasoningResult extracts and validates the payload;
// on repeated failure the gateway substitutes FallbackReasoningResult
// instead of surfacing an error.
type ReasoningResult struct {
	RiskSummary               string        `json:"risk_summary"`
	RiskLevel                 RiskLevel     `json:"risk_level"`
	PrimaryRisks              []PrimaryRisk `json:"primary_risks"`
	MonitoringRecommendations []string      `json:"monitoring_recommendations,omitempty"`
	Confidence                float64       `json:"confidence"`
}

// Validate checks the reasoning payload against the required-field schema.
//
// # Description
//
// Required: a non-empty summary, a known risk level, and a confidence
// in [0,1]. Each primary risk entry must carry a known type and
// severity, a non-empty description, and a confidence in [0,1]. An
// empty primary_risks list is valid (the no-evidence case).
//
// # Outputs
//
//   - error: Non-nil describing the first schema violation
func (r *ReasoningResult) Validate() error {
	if strings.TrimSpace(r.RiskSummary) == "" {
		return fmt.Errorf("risk_summary is required")
	}
	if !r.RiskLevel.Valid() {
		return fmt.Errorf("risk_level %q is not one of low|medium|high|unknown", r.RiskLevel)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("confidence %v is outside [0,1]", r.Confidence)
	}
	for i, risk := range r.PrimaryRisks {
		if !risk.Type.Valid() {
			return fmt.Errorf("primary_risks[%d].type %q is not a known risk type", i, risk.Type)
		}
		if !risk.Severity.Valid() {
			return fmt.Errorf("primary_risks[%d].severity %q is not a known severity", i, risk.Severity)
		}
		if strings.TrimSpace(risk.Description) == "" {
			return fmt.Errorf("primary_risks[%d].description is required", i)
		}
		if risk.Confidence < 0 || risk.Confidence > 1 {
			return fmt.Errorf("primary_risks[%d].confidence %v is outside [0,1]", i, risk.Confidence)
		}
	}
	return nil
}

// ParseReasoningResult extracts a validated ReasoningResult from raw
// LLM output.
//
// # Description
//
// Cleans up the common output variations (markdown code fences, prose
// around the JSON object), extracts the outermost JSON object, then
// unmarshals and validates it. The risk level is lowercased before
// validation since models drift on casing.
//
// # Inputs
//
//   - raw: Raw completion text from the LLM
//
// # Outputs
//
//   - *ReasoningResult: The validated payload
//   - error: Non-nil if no valid JSON object matching the schema was
//     found; callers treat this as a retryable schema failure
func ParseReasoningResult(raw string) (*ReasoningResult, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	startIdx := strings.Index(cleaned, "{")
	endIdx := strings.LastIndex(cleaned, "}")
	if startIdx == -1 || endIdx == -1 || endIdx <= startIdx {
		return nil, fmt.Errorf("no JSON object found in LLM output")
	}
	jsonStr := cleaned[startIdx : endIdx+1]

	var result ReasoningResult
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return nil, fmt.Errorf("failed to parse LLM output as JSON: %w", err)
	}

	result.RiskLevel = RiskLevel(strings.ToLower(strings.TrimSpace(string(result.RiskLevel))))

	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("LLM output failed schema validation: %w", err)
	}
	return &result, nil
}

// FallbackReasoningResult returns the deterministic payload used when
// the LLM fails schema validation on every attempt. The pipeline never
// leaves without a structurally valid assessment.
func FallbackReasoningResult() *ReasoningResult {
	return &ReasoningResult{
		RiskSummary:  "Risk reasoning is temporarily unavailable. The collected evidence is attached without an interpreted summary.",
		RiskLevel:    RiskLevelUnknown,
		PrimaryRisks: []PrimaryRisk{},
		Confidence:   0.0,
	}
}
