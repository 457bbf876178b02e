// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package classifier

import (
	"context"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianRisk/services/riskd/datatypes"
)

func TestRegexClassifier_ModeSelection(t *testing.T) {
	c := NewRegexClassifier()
	ctx := context.Background()

	tests := []struct {
		name     string
		text     string
		expected datatypes.Mode
	}{
		// Risk vocabulary
		{
			name:     "infrastructure risks",
			text:     "What infrastructure risks affect NVDA?",
			expected: datatypes.ModeRisk,
		},
		{
			name:     "downside exposure",
			text:     "How much downside exposure does this position carry?",
			expected: datatypes.ModeRisk,
		},
		{
			name:     "red flags",
			text:     "Any red flags in the latest filing?",
			expected: datatypes.ModeRisk,
		},

		// Move vocabulary
		{
			name:     "why did it drop",
			text:     "Why did NVDA drop 8% today?",
			expected: datatypes.ModeMove,
		},
		{
			name:     "sell-off",
			text:     "What caused the afternoon sell-off?",
			expected: datatypes.ModeMove,
		},
		{
			name:     "surge",
			text:     "The stock surged after hours, what happened?",
			expected: datatypes.ModeMove,
		},

		// Options vocabulary
		{
			name:     "implied volatility",
			text:     "Is implied volatility elevated ahead of earnings?",
			expected: datatypes.ModeOptions,
		},
		{
			name:     "open interest",
			text:     "Where is open interest concentrated this week?",
			expected: datatypes.ModeOptions,
		},
		{
			name:     "call option flow",
			text:     "Unusual call option activity on NVDA?",
			expected: datatypes.ModeOptions,
		},

		// Macro vocabulary
		{
			name:     "fed meeting",
			text:     "How does the Fed decision change the picture?",
			expected: datatypes.ModeMacro,
		},
		{
			name:     "cpi print",
			text:     "Did the CPI print move rate expectations?",
			expected: datatypes.ModeMacro,
		},
		{
			name:     "yield curve",
			text:     "What is the yield curve signaling?",
			expected: datatypes.ModeMacro,
		},

		// Precedence: macro vocabulary wins over move vocabulary
		{
			name:     "macro beats move",
			text:     "Why did stocks fall after the CPI release?",
			expected: datatypes.ModeMacro,
		},

		// Fallbacks
		{
			name:     "no signal",
			text:     "Tell me about this company",
			expected: datatypes.ModeGeneral,
		},
		{
			name:     "empty text",
			text:     "",
			expected: datatypes.ModeGeneral,
		},

		// Word-boundary false positives we want to avoid
		{
			name:     "risky inside another word",
			text:     "The brisket restaurant earnings call",
			expected: datatypes.ModeGeneral,
		},
		{
			name:     "plain puts is not options vocabulary",
			text:     "What puts pressure on their margins?",
			expected: datatypes.ModeGeneral,
		},

		// Case insensitivity
		{
			name:     "uppercase RISKS",
			text:     "WHAT RISKS SHOULD I WATCH?",
			expected: datatypes.ModeRisk,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(ctx, datatypes.RiskQuery{RawText: tt.text})
			if got.Mode != tt.expected {
				t.Errorf("Classify(%q) mode = %s, want %s", tt.text, got.Mode, tt.expected)
			}
		})
	}
}

func TestRegexClassifier_TrustsExplicitMode(t *testing.T) {
	c := NewRegexClassifier()

	// Text screams MOVE but the caller pinned MACRO.
	q := datatypes.RiskQuery{
		RawText:      "Why did NVDA drop today?",
		Mode:         datatypes.ModeMacro,
		ExplicitMode: true,
	}

	got := c.Classify(context.Background(), q)
	if got.Mode != datatypes.ModeMacro {
		t.Errorf("explicit mode must be trusted, got %s", got.Mode)
	}
	if !got.ExplicitMode {
		t.Error("explicit flag must survive classification")
	}
}

func TestRegexClassifier_InvalidExplicitModeReclassified(t *testing.T) {
	c := NewRegexClassifier()

	q := datatypes.RiskQuery{
		RawText:      "What risks affect NVDA?",
		Mode:         datatypes.Mode("BOGUS"),
		ExplicitMode: true,
	}

	got := c.Classify(context.Background(), q)
	if got.Mode != datatypes.ModeRisk {
		t.Errorf("invalid explicit mode should be reclassified, got %s", got.Mode)
	}
	if got.ExplicitMode {
		t.Error("reclassified query must not keep the explicit flag")
	}
}

func TestRegexClassifier_WindowDefaults(t *testing.T) {
	c := NewRegexClassifier()
	ctx := context.Background()

	windows := map[datatypes.Mode]time.Duration{
		datatypes.ModeRisk:    72 * time.Hour,
		datatypes.ModeMove:    24 * time.Hour,
		datatypes.ModeOptions: 168 * time.Hour,
		datatypes.ModeMacro:   336 * time.Hour,
		datatypes.ModeGeneral: 168 * time.Hour,
	}

	for mode, want := range windows {
		q := c.Classify(ctx, datatypes.RiskQuery{Mode: mode, ExplicitMode: true})
		if q.TimeWindow != want {
			t.Errorf("%s: expected default window %v, got %v", mode, want, q.TimeWindow)
		}
	}
}

func TestRegexClassifier_KeepsCallerWindow(t *testing.T) {
	c := NewRegexClassifier()

	q := datatypes.RiskQuery{
		RawText:    "What risks affect NVDA?",
		TimeWindow: 12 * time.Hour,
	}

	got := c.Classify(context.Background(), q)
	if got.TimeWindow != 12*time.Hour {
		t.Errorf("caller-pinned window must survive, got %v", got.TimeWindow)
	}
}

func TestRegexClassifier_ExtractsCashtag(t *testing.T) {
	c := NewRegexClassifier()

	q := c.Classify(context.Background(), datatypes.RiskQuery{
		RawText: "Why did $nvda sell off this morning?",
	})
	if q.Ticker != "NVDA" {
		t.Errorf("expected extracted ticker NVDA, got %q", q.Ticker)
	}
}

func TestRegexClassifier_ExplicitTickerWinsOverCashtag(t *testing.T) {
	c := NewRegexClassifier()

	q := c.Classify(context.Background(), datatypes.RiskQuery{
		RawText: "Compare against $AMD please",
		Ticker:  "NVDA",
	})
	if q.Ticker != "NVDA" {
		t.Errorf("caller ticker must win, got %q", q.Ticker)
	}
}

func TestRegexClassifier_NoBareTokenExtraction(t *testing.T) {
	c := NewRegexClassifier()

	q := c.Classify(context.Background(), datatypes.RiskQuery{
		RawText: "What risks does the CEO transition create?",
	})
	if q.Ticker != "" {
		t.Errorf("bare uppercase tokens must not extract as tickers, got %q", q.Ticker)
	}
}
