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

	"github.com/AleutianAI/AleutianRisk/services/riskd/datatypes"
)

// Confidence term weights. The three terms grade how much evidence was
// collected, how loud the ML signals are, and how many distinct risk
// categories corroborate each other.
const (
	evidenceTermWeight = 0.4
	signalTermWeight   = 0.3
	breadthTermWeight  = 0.3

	// evidenceSaturation is the item count at which the evidence
	// volume term maxes out.
	evidenceSaturation = 10

	// noEvidenceCeiling caps confidence when nothing was collected,
	// whatever the other terms claim.
	noEvidenceCeiling = 0.3
)

// SignalStrength returns the mean normalized magnitude of the ML
// signals. An empty slice scores zero.
func SignalStrength(signals []datatypes.MLSignal) float64 {
	if len(signals) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range signals {
		sum += s.NormalizedMagnitude()
	}
	return sum / float64(len(signals))
}

// ComputeConfidence grades how trustworthy an assessment is.
//
// # Description
//
// Combines three terms: evidence volume (saturating at
// evidenceSaturation items), ML signal strength, and risk-category
// breadth (distinct categories seen over all known categories). The
// result is clamped into [0,1]. With no evidence at all the result is
// additionally capped at noEvidenceCeiling so a loud signal cannot
// manufacture a confident assessment out of nothing.
//
// # Inputs
//
//   - evidenceCount: Number of evidence items collected
//   - signalStrength: Mean normalized ML signal magnitude (see
//     SignalStrength)
//   - distinctRiskTypes: Distinct risk categories in the evidence
//
// # Outputs
//
//   - float64: Confidence in [0,1]
func ComputeConfidence(evidenceCount int, signalStrength float64, distinctRiskTypes int) float64 {
	if math.IsNaN(signalStrength) {
		signalStrength = 0
	}

	evidenceTerm := clamp01(float64(evidenceCount) / evidenceSaturation)
	signalTerm := clamp01(signalStrength)
	breadthTerm := clamp01(float64(distinctRiskTypes) / float64(len(datatypes.AllRiskTypes())))

	confidence := evidenceTermWeight*evidenceTerm +
		signalTermWeight*signalTerm +
		breadthTermWeight*breadthTerm

	confidence = clamp01(confidence)

	if evidenceCount == 0 {
		confidence = math.Min(confidence, noEvidenceCeiling)
	}
	return confidence
}

// clamp01 clamps v into [0,1].
func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
