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
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianRisk/services/llm"
	"github.com/AleutianAI/AleutianRisk/services/riskd/classifier"
	"github.com/AleutianAI/AleutianRisk/services/riskd/datatypes"
	"github.com/AleutianAI/AleutianRisk/services/riskd/observability"
)

// reasoningTracer is the OpenTelemetry tracer for ReasoningGateway operations.
var reasoningTracer = otel.Tracer("aleutian.riskd.services.reasoning")

// Decoding temperatures for the two reasoning attempts. The first
// attempt leaves the model a little room to phrase the summary; the
// retry decodes greedily so a schema failure is not repeated for
// sampling reasons.
const (
	firstAttemptTemperature float32 = 0.2
	retryTemperature        float32 = 0.0
)

// maxReasoningTokens caps the completion length. The schema payload is
// small; a runaway completion is a failure mode, not a feature.
const maxReasoningTokens = 1024

// =============================================================================
// ReasoningGateway
// =============================================================================

// ReasoningGateway turns ranked evidence into a structured risk reading
// via the configured LLM backend.
//
// # Description
//
// The gateway owns the two-attempt protocol: one generation at the
// standard temperature, then on JSON-parse or schema-validation failure
// exactly one retry at temperature zero with a corrective instruction.
// If both attempts fail, or the request deadline expires mid-flight, it
// substitutes the deterministic fallback payload. Assess therefore
// never returns an invalid result and never returns an error; the
// second return value reports whether the fallback was used so the
// assembler can attach the degradation warning.
//
// # Thread Safety
//
// Safe for concurrent use; the gateway holds no mutable state.
type ReasoningGateway struct {
	client llm.LLMClient
}

// NewReasoningGateway creates a gateway over the given LLM backend.
// The backend must not be nil.
func NewReasoningGateway(client llm.LLMClient) *ReasoningGateway {
	return &ReasoningGateway{client: client}
}

// Assess runs the reasoning step for one assessment.
//
// # Inputs
//
//   - ctx: Carries the request's global deadline. Expiry during a
//     generation aborts it and yields the fallback immediately; the
//     retry is skipped when no budget remains.
//   - profile: Mode profile shaping the prompt focus.
//   - query: The normalized query being answered.
//   - evidence: Ranked evidence, strongest first.
//   - signals: Raw ML signals for the quantitative prompt section.
//
// # Outputs
//
//   - *datatypes.ReasoningResult: Always structurally valid.
//   - bool: True when the deterministic fallback was substituted.
func (g *ReasoningGateway) Assess(ctx context.Context, profile classifier.Profile, query datatypes.RiskQuery, evidence []datatypes.EvidenceItem, signals []datatypes.MLSignal) (*datatypes.ReasoningResult, bool) {
	ctx, span := reasoningTracer.Start(ctx, "ReasoningGateway.Assess")
	defer span.End()

	prompt := BuildAssessmentPrompt(profile, query, evidence, signals)
	span.SetAttributes(
		attribute.String("mode", profile.Mode.String()),
		attribute.Int("prompt.chars", len(prompt)),
		attribute.Int("prompt.evidence_items", min(len(evidence), maxPromptEvidence)),
	)

	// Attempt 1: standard temperature.
	result, err := g.attempt(ctx, prompt, firstAttemptTemperature)
	if err == nil {
		return result, false
	}
	span.RecordError(err)
	slog.Warn("reasoning attempt failed", "attempt", 1, "error", err)

	// The global deadline may have fired while the first attempt was in
	// flight; a retry would only burn budget the caller no longer has.
	if ctx.Err() != nil {
		span.SetStatus(codes.Error, "deadline expired during reasoning")
		if m := observability.DefaultMetrics; m != nil {
			m.RecordLLMFallback()
		}
		return datatypes.FallbackReasoningResult(), true
	}

	// Attempt 2: greedy decoding plus the corrective instruction.
	if m := observability.DefaultMetrics; m != nil {
		m.RecordLLMRetry()
	}
	result, err = g.attempt(ctx, prompt+correctiveSuffix, retryTemperature)
	if err == nil {
		span.SetAttributes(attribute.Bool("retried", true))
		return result, false
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, "reasoning failed on both attempts")
	slog.Error("reasoning failed on both attempts, substituting fallback",
		"mode", profile.Mode,
		"error", err,
	)
	if m := observability.DefaultMetrics; m != nil {
		m.RecordLLMFallback()
	}
	return datatypes.FallbackReasoningResult(), true
}

// attempt runs one generation and validates the payload.
func (g *ReasoningGateway) attempt(ctx context.Context, prompt string, temperature float32) (*datatypes.ReasoningResult, error) {
	temp := temperature
	maxTokens := maxReasoningTokens
	params := llm.GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
		JSONOutput:  true,
	}

	raw, err := g.client.Generate(ctx, prompt, params)
	if err != nil {
		return nil, fmt.Errorf("llm generation failed: %w", err)
	}
	return datatypes.ParseReasoningResult(raw)
}
