// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ranking turns a collected evidence bundle into a bounded,
// score-ordered evidence list.
//
// Scores multiply the source-reported relevance by a per-risk-type
// weight, a per-severity multiplier, and a linear recency decay floored
// at minRecencyFactor. Equal scores break ties by newer timestamp, then
// by source priority, so ranking a fixed bundle always produces the
// identical ordering. Weights are hot-reloadable; see weights.go.
package ranking

import (
	"context"
	"math"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianRisk/services/riskd/datatypes"
)

// minRecencyFactor keeps stale-but-relevant evidence from decaying to
// nothing. Anything older than the query window still contributes a
// tenth of its weighted score.
const minRecencyFactor = 0.1

// Engine ranks evidence bundles.
//
// # Thread Safety
//
// Safe for concurrent use. The engine itself is stateless; all mutable
// state lives in the WeightsSource, which must be safe for concurrent
// readers.
type Engine struct {
	weights WeightsSource
}

// NewEngine creates a ranking engine backed by the given weights
// source. A nil source uses the shipped defaults.
func NewEngine(weights WeightsSource) *Engine {
	if weights == nil {
		weights = StaticWeights(DefaultWeights())
	}
	return &Engine{weights: weights}
}

// Rank scores, orders, and bounds the bundle's evidence.
//
// # Description
//
// Each item's score is its raw relevance weighted by risk type and
// severity, decayed linearly with age across the query window. Items
// scoring below the configured floor are dropped, the survivors are
// stable-sorted score-descending with newer-timestamp then
// source-priority tie-breaks, and the list is truncated to the
// configured maximum. An empty bundle yields an empty list.
//
// # Inputs
//
//   - ctx: Context for tracing only; ranking never blocks.
//   - bundle: Evidence collected by the orchestrator fan-in
//   - ref: Reference instant item ages are measured against
//   - window: Query time window driving the recency decay
//
// # Outputs
//
//   - []datatypes.EvidenceItem: Ranked items with ComputedScore set
func (e *Engine) Rank(ctx context.Context, bundle datatypes.EvidenceBundle, ref time.Time, window time.Duration) []datatypes.EvidenceItem {
	if ctx == nil {
		ctx = context.Background()
	}
	_, span := otel.Tracer("aleutian.riskd.ranking").Start(ctx, "ranking.rank")
	defer span.End()

	w := e.weights.Current()
	windowHours := window.Hours()

	ranked := make([]datatypes.EvidenceItem, 0, len(bundle.Items))
	dropped := 0
	for _, item := range bundle.Items {
		item.ComputedScore = score(item, w, ref, windowHours)
		if item.ComputedScore < w.MinScore {
			dropped++
			continue
		}
		ranked = append(ranked, item)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.ComputedScore != b.ComputedScore {
			return a.ComputedScore > b.ComputedScore
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.After(b.Timestamp)
		}
		return datatypes.SourcePriority(a.Source) > datatypes.SourcePriority(b.Source)
	})

	if len(ranked) > w.MaxItems {
		ranked = ranked[:w.MaxItems]
	}

	span.SetAttributes(
		attribute.Int("evidence_in", len(bundle.Items)),
		attribute.Int("evidence_ranked", len(ranked)),
		attribute.Int("evidence_dropped", dropped),
		attribute.Float64("window_hours", windowHours),
	)

	return ranked
}

// score applies the ranking formula to a single item.
func score(item datatypes.EvidenceItem, w Weights, ref time.Time, windowHours float64) float64 {
	return item.RawRelevance *
		w.RiskType[item.RiskType] *
		w.Severity[item.Severity] *
		recencyDecay(item.AgeHours(ref), windowHours)
}

// recencyDecay decays linearly from 1 at age zero to minRecencyFactor
// at the window edge and beyond. A nonpositive window treats every item
// as fully decayed.
func recencyDecay(ageHours, windowHours float64) float64 {
	if windowHours <= 0 {
		return minRecencyFactor
	}
	return math.Max(minRecencyFactor, 1-ageHours/windowHours)
}
