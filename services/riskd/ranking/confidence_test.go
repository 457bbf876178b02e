// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ranking

import (
	"math"
	"testing"

	"github.com/AleutianAI/AleutianRisk/services/riskd/datatypes"
)

// =============================================================================
// Confidence Computation Tests
// =============================================================================

func TestComputeConfidence_SaturatedEvidence(t *testing.T) {
	got := ComputeConfidence(10, 1.0, len(datatypes.AllRiskTypes()))

	if got != 1.0 {
		t.Errorf("expected full confidence 1.0, got %v", got)
	}
}

func TestComputeConfidence_HandComputed(t *testing.T) {
	// 0.4×(5/10) + 0.3×0.5 + 0.3×(2/7) = 0.2 + 0.15 + 0.0857142857...
	got := ComputeConfidence(5, 0.5, 2)

	want := 0.2 + 0.15 + 0.3*(2.0/7.0)
	if !almostEqual(got, want) {
		t.Errorf("expected confidence %v, got %v", want, got)
	}
}

func TestComputeConfidence_NoEvidenceCeiling(t *testing.T) {
	// A maxed-out signal term alone would score 0.3; together with a
	// (nonsensical but possible) full breadth term it would reach 0.6.
	// Zero evidence caps it at the insufficient-evidence ceiling.
	got := ComputeConfidence(0, 1.0, len(datatypes.AllRiskTypes()))

	if got > 0.3 {
		t.Errorf("expected zero-evidence confidence capped at 0.3, got %v", got)
	}
}

func TestComputeConfidence_ClampsWildInputs(t *testing.T) {
	if got := ComputeConfidence(500, 3.0, 99); got != 1.0 {
		t.Errorf("expected oversaturated inputs to clamp to 1.0, got %v", got)
	}
	if got := ComputeConfidence(3, -2.0, -4); !almostEqual(got, 0.4*0.3) {
		t.Errorf("expected negative terms to clamp to zero, got %v", got)
	}
}

func TestComputeConfidence_NaNSignal(t *testing.T) {
	got := ComputeConfidence(5, math.NaN(), 1)

	want := 0.2 + 0.3*(1.0/7.0)
	if !almostEqual(got, want) {
		t.Errorf("expected NaN signal to read as zero, got %v (want %v)", got, want)
	}
}

func TestComputeConfidence_BreadthRaisesConfidence(t *testing.T) {
	narrow := ComputeConfidence(6, 0.4, 1)
	broad := ComputeConfidence(6, 0.4, 4)

	if broad <= narrow {
		t.Errorf("expected broader risk coverage to raise confidence: narrow=%v broad=%v", narrow, broad)
	}
}

// =============================================================================
// Signal Strength Tests
// =============================================================================

func TestSignalStrength_MeanOfMagnitudes(t *testing.T) {
	signals := []datatypes.MLSignal{
		{SignalType: datatypes.SignalAnomaly, Value: 0.8},
		{SignalType: datatypes.SignalSentiment, Value: -0.6},
	}

	got := SignalStrength(signals)

	if !almostEqual(got, 0.7) {
		t.Errorf("expected mean magnitude 0.7, got %v", got)
	}
}

func TestSignalStrength_Empty(t *testing.T) {
	if got := SignalStrength(nil); got != 0 {
		t.Errorf("expected zero strength without signals, got %v", got)
	}
}

func TestSignalStrength_ClampsOutOfRange(t *testing.T) {
	signals := []datatypes.MLSignal{
		{SignalType: datatypes.SignalAnomaly, Value: 1.5},
	}

	if got := SignalStrength(signals); !almostEqual(got, 1.0) {
		t.Errorf("expected out-of-range value to clamp to 1.0, got %v", got)
	}
}
