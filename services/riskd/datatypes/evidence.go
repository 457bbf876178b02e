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
// This file contains the evidence model: risk type and severity enums,
// individual evidence items produced by source adapters, ML signals, and
// the per-request evidence bundle. For query types see query.go; for
// response types see assessment.go.
package datatypes

import (
	"fmt"
	"math"
	"time"
)

// =============================================================================
// Risk Type Enum
// =============================================================================

// RiskType categorizes a piece of evidence by the kind of risk it describes.
type RiskType string

const (
	RiskTypeInfra       RiskType = "infra"
	RiskTypeRegulatory  RiskType = "regulatory"
	RiskTypeSentiment   RiskType = "sentiment"
	RiskTypeLiquidity   RiskType = "liquidity"
	RiskTypeTechnical   RiskType = "technical"
	RiskTypeFundamental RiskType = "fundamental"
	RiskTypeMacro       RiskType = "macro"
)

// allRiskTypes is the canonical ordering of risk type categories.
var allRiskTypes = []RiskType{
	RiskTypeInfra,
	RiskTypeRegulatory,
	RiskTypeSentiment,
	RiskTypeLiquidity,
	RiskTypeTechnical,
	RiskTypeFundamental,
	RiskTypeMacro,
}

// AllRiskTypes returns every known risk type category.
//
// The confidence calculator uses the length of this slice as the
// denominator for cross-source agreement, so adding a category here
// changes confidence scores everywhere.
func AllRiskTypes() []RiskType {
	out := make([]RiskType, len(allRiskTypes))
	copy(out, allRiskTypes)
	return out
}

// Valid reports whether the risk type is one of the known categories.
func (r RiskType) Valid() bool {
	for _, t := range allRiskTypes {
		if r == t {
			return true
		}
	}
	return false
}

// ParseRiskType converts a string into a RiskType.
//
// # Description
//
// Returns an error for unknown categories so that adapter-boundary
// validation can reject malformed upstream rows instead of letting
// them flow into ranking with a zero weight.
//
// # Inputs
//
//   - s: Raw risk type string from an external store or signal mapping
//
// # Outputs
//
//   - RiskType: The parsed risk type
//   - error: Non-nil if s is not a known category
func ParseRiskType(s string) (RiskType, error) {
	r := RiskType(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown risk type: %q", s)
	}
	return r, nil
}

// =============================================================================
// Severity Enum
// =============================================================================

// Severity grades how serious a piece of evidence is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether the severity is one of the known grades.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// Rank returns the ordinal position of the severity (low=0, medium=1,
// high=2). Used for threshold filtering: an item passes a threshold t
// when item.Severity.Rank() >= t.Rank(). Unknown severities rank -1.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	}
	return -1
}

// ParseSeverity converts a string into a Severity.
func ParseSeverity(s string) (Severity, error) {
	sev := Severity(s)
	if !sev.Valid() {
		return "", fmt.Errorf("unknown severity: %q", s)
	}
	return sev, nil
}

// =============================================================================
// Evidence Sources
// =============================================================================

// Source adapter names. These appear in partial-failure warnings and in
// the ranking tie-break, so they are part of the response contract.
const (
	SourceVectorSearch = "vector_search"
	SourceRelational   = "relational_features"
	SourceMLSignals    = "ml_signals"
)

// SourcePriority returns the tie-break priority of an evidence source.
// Higher wins. Relational rows beat vector hits beat ML signals because
// relational evidence is exact while the other two are inferred.
func SourcePriority(source string) int {
	switch source {
	case SourceRelational:
		return 3
	case SourceVectorSearch:
		return 2
	case SourceMLSignals:
		return 1
	}
	return 0
}

// =============================================================================
// Evidence Item
// =============================================================================

// EvidenceItem is a single scored, timestamped fact from one source.
//
// # Description
//
// Items are produced by source adapters and are immutable once created,
// with one exception: the ranking engine annotates ComputedScore in
// place. Construction is validated at the adapter boundary via
// NewEvidenceItem so that malformed upstream data never reaches the
// ranking engine or the LLM prompt.
//
// # Fields
//
//   - SourceID: Stable identifier of the underlying record (row ID,
//     vector object ID, or signal name). Never empty.
//   - Source: Name of the producing adapter (see Source* constants).
//   - RiskType: Category of risk this item describes.
//   - Severity: Seriousness grade (low, medium, high).
//   - Snippet: Human-readable text fragment shown to the LLM and in
//     the response's evidence view.
//   - Timestamp: When the underlying event happened. Never zero.
//   - RawRelevance: Source-reported relevance in [0,1] before weighting.
//   - ComputedScore: Final ranking score. Zero until ranked.
type EvidenceItem struct {
	SourceID      string    `json:"source_id"`
	Source        string    `json:"source"`
	RiskType      RiskType  `json:"risk_type"`
	Severity      Severity  `json:"severity"`
	Snippet       string    `json:"snippet"`
	Timestamp     time.Time `json:"timestamp"`
	RawRelevance  float64   `json:"raw_relevance"`
	ComputedScore float64   `json:"computed_score"`
}

// NewEvidenceItem constructs a validated EvidenceItem.
//
// # Description
//
// Rejects structurally invalid items (empty source ID, unknown enum
// values, zero timestamp) and clamps RawRelevance into [0,1]. NaN
// relevance is treated as zero. Adapters must construct items through
// this function rather than with struct literals.
//
// # Inputs
//
//   - sourceID: Stable identifier of the underlying record
//   - source: Producing adapter name (Source* constant)
//   - riskType: Risk category
//   - severity: Severity grade
//   - snippet: Display text
//   - ts: Event timestamp
//   - relevance: Source-reported relevance, clamped into [0,1]
//
// # Outputs
//
//   - EvidenceItem: The validated item with ComputedScore zero
//   - error: Non-nil if the item is structurally invalid
func NewEvidenceItem(sourceID, source string, riskType RiskType, severity Severity, snippet string, ts time.Time, relevance float64) (EvidenceItem, error) {
	if sourceID == "" {
		return EvidenceItem{}, fmt.Errorf("evidence item requires a source_id")
	}
	if SourcePriority(source) == 0 {
		return EvidenceItem{}, fmt.Errorf("unknown evidence source: %q", source)
	}
	if !riskType.Valid() {
		return EvidenceItem{}, fmt.Errorf("unknown risk type: %q", riskType)
	}
	if !severity.Valid() {
		return EvidenceItem{}, fmt.Errorf("unknown severity: %q", severity)
	}
	if ts.IsZero() {
		return EvidenceItem{}, fmt.Errorf("evidence item requires a timestamp")
	}
	if math.IsNaN(relevance) {
		relevance = 0
	}
	relevance = math.Max(0, math.Min(1, relevance))

	return EvidenceItem{
		SourceID:     sourceID,
		Source:       source,
		RiskType:     riskType,
		Severity:     severity,
		Snippet:      snippet,
		Timestamp:    ts.UTC(),
		RawRelevance: relevance,
	}, nil
}

// AgeHours returns the item's age relative to now, in hours. Items with
// timestamps in the future age as zero.
func (e EvidenceItem) AgeHours(now time.Time) float64 {
	age := now.Sub(e.Timestamp).Hours()
	if age < 0 {
		return 0
	}
	return age
}

// FilterBySeverity keeps items at or above the threshold severity.
//
// The zero-value threshold keeps everything, so adapters can pass the
// query's threshold straight through whether or not the caller set one.
// Source adapters apply this client-side when their backing store
// cannot express the condition in its own query language.
func FilterBySeverity(items []EvidenceItem, threshold Severity) []EvidenceItem {
	if threshold == "" {
		return items
	}
	minRank := threshold.Rank()
	out := make([]EvidenceItem, 0, len(items))
	for _, item := range items {
		if item.Severity.Rank() >= minRank {
			out = append(out, item)
		}
	}
	return out
}

// =============================================================================
// ML Signals
// =============================================================================

// SignalType identifies a numeric signal computed by the ML pipeline.
type SignalType string

const (
	// SignalAnomaly is a price anomaly score in [0,1].
	SignalAnomaly SignalType = "anomaly_score"
	// SignalSentiment is a sentiment polarity score in [-1,1] where
	// negative values are bearish.
	SignalSentiment SignalType = "sentiment_score"
	// SignalLiquidity is a liquidity stress score in [0,1].
	SignalLiquidity SignalType = "liquidity_score"
)

// MLSignal is one numeric signal for a ticker, cached independently of
// full assessments (signals move faster than assessments do).
type MLSignal struct {
	Ticker     string     `json:"ticker"`
	SignalType SignalType `json:"signal_type"`
	Value      float64    `json:"value"`
	Confidence float64    `json:"confidence"`
	ComputedAt time.Time  `json:"computed_at"`
}

// NormalizedMagnitude maps the signal value onto [0,1] regardless of the
// signal type's native range. Bipolar signals (sentiment) use their
// absolute value; unipolar signals clamp into [0,1].
func (s MLSignal) NormalizedMagnitude() float64 {
	v := s.Value
	if math.IsNaN(v) {
		return 0
	}
	if s.SignalType == SignalSentiment {
		v = math.Abs(v)
	}
	return math.Max(0, math.Min(1, v))
}

// RiskType maps the signal type onto the risk category its evidence
// items carry. Anomalies read as technical risk, sentiment as sentiment
// risk, liquidity as liquidity risk.
func (s MLSignal) RiskType() RiskType {
	switch s.SignalType {
	case SignalSentiment:
		return RiskTypeSentiment
	case SignalLiquidity:
		return RiskTypeLiquidity
	default:
		return RiskTypeTechnical
	}
}

// =============================================================================
// Evidence Bundle
// =============================================================================

// EvidenceBundle is everything the orchestrator collected for one request.
//
// # Description
//
// Built once per request by the orchestrator's fan-in, consumed by the
// ranking engine and the LLM gateway, then discarded. Items keeps
// arrival order until ranked. SourceFailures names adapters that timed
// out or errored; the assembler turns each into a partial_data warning.
//
// # Thread Safety
//
// Not safe for concurrent mutation. The orchestrator builds the bundle
// on a single goroutine after the fan-in join; everything downstream
// only reads it.
type EvidenceBundle struct {
	Items          []EvidenceItem   `json:"items"`
	RiskTypeCounts map[RiskType]int `json:"risk_type_counts"`
	SourceFailures []string         `json:"source_failures"`
	Signals        []MLSignal       `json:"signals"`
}

// NewEvidenceBundle returns an empty bundle ready for Add calls.
func NewEvidenceBundle() *EvidenceBundle {
	return &EvidenceBundle{
		Items:          []EvidenceItem{},
		RiskTypeCounts: make(map[RiskType]int),
		SourceFailures: []string{},
		Signals:        []MLSignal{},
	}
}

// Add appends evidence items and updates the per-type counts.
func (b *EvidenceBundle) Add(items ...EvidenceItem) {
	for _, item := range items {
		b.Items = append(b.Items, item)
		b.RiskTypeCounts[item.RiskType]++
	}
}

// RecordFailure marks a source adapter as failed for this request.
func (b *EvidenceBundle) RecordFailure(source string) {
	b.SourceFailures = append(b.SourceFailures, source)
}

// DistinctRiskTypes counts how many distinct risk categories appear in
// the collected evidence.
func (b *EvidenceBundle) DistinctRiskTypes() int {
	n := 0
	for _, count := range b.RiskTypeCounts {
		if count > 0 {
			n++
		}
	}
	return n
}

// IsEmpty reports whether no evidence was collected at all.
func (b *EvidenceBundle) IsEmpty() bool {
	return len(b.Items) == 0
}
