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
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRisk/services/llm"
	"github.com/AleutianAI/AleutianRisk/services/riskd/classifier"
	"github.com/AleutianAI/AleutianRisk/services/riskd/datatypes"
)

// =============================================================================
// Fixtures
// =============================================================================

const validReasoningJSON = `{
  "risk_summary": "Datacenter incidents dominate the recent evidence and cluster around one vendor.",
  "risk_level": "high",
  "primary_risks": [
    {"type": "infra", "severity": "high", "description": "Repeated outage reports within the window.", "confidence": 0.8}
  ],
  "monitoring_recommendations": ["Watch for follow-up incident disclosures."],
  "confidence": 0.75
}`

// llmOutcome is one scripted Generate result.
type llmOutcome struct {
	reply string
	err   error
}

// scriptedLLM replays a fixed script of Generate outcomes and records
// every call it received.
type scriptedLLM struct {
	mu      sync.Mutex
	script  []llmOutcome
	prompts []string
	params  []llm.GenerationParams

	// blockUntilCtxDone makes every call wait out the context instead
	// of answering, simulating a backend slower than the deadline.
	blockUntilCtxDone bool
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	s.mu.Lock()
	call := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	s.params = append(s.params, params)
	s.mu.Unlock()

	if s.blockUntilCtxDone {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if call >= len(s.script) {
		return "", fmt.Errorf("unscripted llm call %d", call)
	}
	return s.script[call].reply, s.script[call].err
}

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func assessWith(t *testing.T, ctx context.Context, client llm.LLMClient) (*datatypes.ReasoningResult, bool) {
	t.Helper()
	gateway := NewReasoningGateway(client)
	profile := classifier.ProfileFor(datatypes.ModeRisk)
	evidence := promptEvidence(t, 2)
	return gateway.Assess(ctx, profile, promptQuery("NVDA"), evidence, nil)
}

// =============================================================================
// Tests
// =============================================================================

func TestReasoningGateway_FirstAttemptSucceeds(t *testing.T) {
	stub := &scriptedLLM{script: []llmOutcome{{reply: validReasoningJSON}}}

	result, fellBack := assessWith(t, context.Background(), stub)

	assert.False(t, fellBack)
	assert.Equal(t, datatypes.RiskLevelHigh, result.RiskLevel)
	assert.Len(t, result.PrimaryRisks, 1)
	require.Equal(t, 1, stub.calls())

	require.NotNil(t, stub.params[0].Temperature)
	assert.InDelta(t, 0.2, float64(*stub.params[0].Temperature), 1e-6)
	assert.True(t, stub.params[0].JSONOutput)
	assert.NotContains(t, stub.prompts[0], "ONLY the JSON object")
}

func TestReasoningGateway_RetriesOnceOnSchemaFailure(t *testing.T) {
	stub := &scriptedLLM{script: []llmOutcome{
		{reply: "I think the risk is high, good luck out there!"},
		{reply: validReasoningJSON},
	}}

	result, fellBack := assessWith(t, context.Background(), stub)

	assert.False(t, fellBack)
	assert.Equal(t, datatypes.RiskLevelHigh, result.RiskLevel)
	require.Equal(t, 2, stub.calls())

	require.NotNil(t, stub.params[1].Temperature)
	assert.InDelta(t, 0.0, float64(*stub.params[1].Temperature), 1e-6)
	assert.Contains(t, stub.prompts[1], "ONLY the JSON object")
}

func TestReasoningGateway_RetriesOnGenerationError(t *testing.T) {
	stub := &scriptedLLM{script: []llmOutcome{
		{err: errors.New("connection refused")},
		{reply: validReasoningJSON},
	}}

	result, fellBack := assessWith(t, context.Background(), stub)

	assert.False(t, fellBack)
	assert.Equal(t, datatypes.RiskLevelHigh, result.RiskLevel)
	assert.Equal(t, 2, stub.calls())
}

func TestReasoningGateway_FallsBackAfterTwoFailures(t *testing.T) {
	stub := &scriptedLLM{script: []llmOutcome{
		{reply: "{not json"},
		{reply: `{"risk_level": "catastrophic"}`},
	}}

	result, fellBack := assessWith(t, context.Background(), stub)

	assert.True(t, fellBack)
	assert.Equal(t, datatypes.RiskLevelUnknown, result.RiskLevel)
	assert.Empty(t, result.PrimaryRisks)
	assert.Zero(t, result.Confidence)
	assert.NoError(t, result.Validate())
	assert.Equal(t, 2, stub.calls())
}

func TestReasoningGateway_SkipsRetryWhenDeadlineExpired(t *testing.T) {
	stub := &scriptedLLM{blockUntilCtxDone: true}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	result, fellBack := assessWith(t, ctx, stub)

	assert.True(t, fellBack)
	assert.Equal(t, datatypes.RiskLevelUnknown, result.RiskLevel)
	assert.Equal(t, 1, stub.calls(), "no retry once the deadline has fired")
}

func TestReasoningGateway_AcceptsFencedJSON(t *testing.T) {
	fenced := "```json\n" + validReasoningJSON + "\n```"
	stub := &scriptedLLM{script: []llmOutcome{{reply: fenced}}}

	result, fellBack := assessWith(t, context.Background(), stub)

	assert.False(t, fellBack)
	assert.Equal(t, datatypes.RiskLevelHigh, result.RiskLevel)
	assert.Equal(t, 1, stub.calls())
}
