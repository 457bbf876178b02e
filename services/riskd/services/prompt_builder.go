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
	"strings"
	"time"

	"github.com/AleutianAI/AleutianRisk/services/riskd/classifier"
	"github.com/AleutianAI/AleutianRisk/services/riskd/datatypes"
)

// maxPromptEvidence bounds how many ranked items enter the prompt.
// The full ranked list still goes into the response; the model only
// sees the strongest slice.
const maxPromptEvidence = 10

// systemInstruction is the fixed preamble every reasoning prompt opens
// with. The grounding and no-advice rules are part of the product
// contract, not a tuning knob.
const systemInstruction = `You are a financial risk analyst. Ground every statement in the evidence provided below; if the evidence does not support a claim, do not make it. Never give trading advice, price targets, or buy/sell/hold recommendations. Monitoring recommendations describe what to watch, not what to trade.`

// responseSchema is the JSON shape the model must produce. Shown
// verbatim at the end of every prompt.
const responseSchema = `{
  "risk_summary": "<two to four sentences summarizing the risk picture>",
  "risk_level": "<low|medium|high|unknown>",
  "primary_risks": [
    {
      "type": "<infra|regulatory|sentiment|liquidity|technical|fundamental|macro>",
      "severity": "<low|medium|high>",
      "description": "<one sentence grounded in a specific evidence item>",
      "confidence": <number between 0.0 and 1.0>
    }
  ],
  "monitoring_recommendations": ["<condition or event worth watching>"],
  "confidence": <number between 0.0 and 1.0>
}`

// correctiveSuffix is appended to the prompt on the single retry after
// the first reply failed JSON parsing or schema validation.
const correctiveSuffix = "\n\nYour previous reply was not a valid JSON object matching the schema. Reply again with ONLY the JSON object: no prose before or after it, no markdown fences, no commentary."

// BuildAssessmentPrompt renders the reasoning prompt for one assessment.
//
// # Description
//
// Layout: system instruction, the mode's focus line, the question and
// its scope, numbered evidence lines (strongest first, capped at
// maxPromptEvidence), a quantitative signal summary when signals exist,
// and the response schema. Evidence lines carry source, risk type,
// severity, and timestamp so the model can cite them.
//
// # Inputs
//
//   - profile: Mode profile supplying the focus line.
//   - query: The normalized query being answered.
//   - evidence: Ranked evidence, strongest first.
//   - signals: Raw ML signals for the quantitative summary; may be empty.
//
// # Outputs
//
//   - string: The complete prompt.
func BuildAssessmentPrompt(profile classifier.Profile, query datatypes.RiskQuery, evidence []datatypes.EvidenceItem, signals []datatypes.MLSignal) string {
	if len(evidence) > maxPromptEvidence {
		evidence = evidence[:maxPromptEvidence]
	}

	var b strings.Builder
	b.WriteString(systemInstruction)
	b.WriteString("\n\nFocus: ")
	b.WriteString(profile.PromptFocus)

	fmt.Fprintf(&b, "\n\nQuestion: %s\n", query.RawText)
	if query.Ticker != "" {
		fmt.Fprintf(&b, "Instrument: %s\n", query.Ticker)
	} else {
		b.WriteString("Instrument: market-wide\n")
	}
	fmt.Fprintf(&b, "Evidence window: last %.0f hours\n", query.TimeWindow.Hours())

	fmt.Fprintf(&b, "\nEvidence (%d items, strongest first):\n", len(evidence))
	for i, item := range evidence {
		fmt.Fprintf(&b, "[%d] %s | %s | %s | %s\n    %s\n",
			i+1,
			item.Source,
			item.RiskType,
			item.Severity,
			item.Timestamp.UTC().Format(time.RFC3339),
			item.Snippet,
		)
	}

	if len(signals) > 0 {
		b.WriteString("\nQuantitative signals:\n")
		for _, sig := range signals {
			fmt.Fprintf(&b, "  - %s: %+.2f (coverage %.2f)\n",
				sig.SignalType, sig.Value, sig.Confidence)
		}
	}

	b.WriteString("\nRespond with a single JSON object, and nothing else, matching exactly this schema:\n")
	b.WriteString(responseSchema)
	return b.String()
}
