// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package classifier maps incoming risk queries onto processing modes.
//
// The classifier decides which mode profile (evidence window, fetch
// shaping, prompt template) a query runs under. An explicit mode from
// the caller is always trusted; otherwise keyword heuristics select a
// mode, falling back to GENERAL when no vocabulary matches. It never
// errors: every query leaves with a mode and a window.
package classifier

import (
	"context"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianRisk/pkg/validation"
	"github.com/AleutianAI/AleutianRisk/services/riskd/datatypes"
)

// ModeClassifier normalizes a risk query into its processing mode.
//
// Thread Safety: Implementations must be safe for concurrent use.
type ModeClassifier interface {
	// Classify fills in the query's mode, window, and (when the text
	// carries one) ticker.
	//
	// Description:
	//   Pure with respect to the query: it returns a completed copy and
	//   never mutates shared state or errors. Explicit modes are trusted
	//   without reclassification. Unclassifiable text maps to GENERAL
	//   with that profile's wide window.
	//
	// Inputs:
	//   ctx - Context for tracing. Must not be nil.
	//   query - The validated query. RawText may be empty.
	//
	// Outputs:
	//   datatypes.RiskQuery - The query with Mode and TimeWindow set.
	//
	// Thread Safety: This method is safe for concurrent use.
	Classify(ctx context.Context, query datatypes.RiskQuery) datatypes.RiskQuery
}

// modeRules maps query vocabulary onto modes. Order matters - first
// match wins, so the modes with the most specific vocabulary come
// first and RISK, whose keywords are the broadest, comes last.
var modeRules = []struct {
	pattern *regexp.Regexp
	mode    datatypes.Mode
}{
	// Options vocabulary (strikes, greeks, volatility surface).
	// Bare "calls"/"puts"/"strike" are everyday words and would
	// misclassify risk questions, so the compound forms are required.
	{regexp.MustCompile(`(?i)\boptions?\b|\bimplied volatility\b|\bstrike price\b|\bcall option|\bput option|\bopen interest\b|\bstraddle\b|\bgamma\b|\btheta\b|\bvol(atility)? surface\b|\bexpiry\b`), datatypes.ModeOptions},

	// Macro vocabulary (rates, prints, market-wide forces)
	{regexp.MustCompile(`(?i)\bfed\b|\bfomc\b|\binterest rates?\b|\binflation\b|\bcpi\b|\bppi\b|\bgdp\b|\bmacro\b|\brecession\b|\byield curve\b|\btreasur(y|ies)\b|\bunemployment\b|\bmarket[- ]wide\b`), datatypes.ModeMacro},

	// Move vocabulary (explaining price action)
	{regexp.MustCompile(`(?i)\bwhy did\b|\bmoved?\b|\bdropp(ed|ing)\b|\bfell\b|\bfall(ing)?\b|\brall(y|ied)\b|\bsold off\b|\bsell[- ]?off\b|\bplunged?\b|\bsurged?\b|\bspiked?\b|\bjumped?\b|\btanked\b|\bprice action\b`), datatypes.ModeMove},

	// Risk vocabulary (broadest, checked last)
	{regexp.MustCompile(`(?i)\brisks?\b|\brisky\b|\bexposure\b|\bthreats?\b|\bdownside\b|\bwarning signs?\b|\bred flags?\b|\bvulnerab|\bheadwinds?\b|\bconcerns?\b`), datatypes.ModeRisk},
}

// cashtagPattern extracts ticker entities written as cashtags ($NVDA).
// Bare uppercase tokens are deliberately not treated as tickers: words
// like CEO, IPO, or AI would all false-positive.
var cashtagPattern = regexp.MustCompile(`\$([A-Za-z]{1,5})\b`)

// RegexClassifier implements ModeClassifier using compiled keyword rules.
//
// Thread Safety: This type is safe for concurrent use after initialization.
type RegexClassifier struct {
	rules []struct {
		pattern *regexp.Regexp
		mode    datatypes.Mode
	}
}

// NewRegexClassifier creates a classifier with the standard mode rules.
//
// Description:
//
//	The rule table is compiled at package load; construction is cheap
//	and the returned classifier carries no per-request state.
//
// Outputs:
//
//	*RegexClassifier - A new classifier ready for use.
//
// Thread Safety: The returned classifier is safe for concurrent use.
func NewRegexClassifier() *RegexClassifier {
	return &RegexClassifier{rules: modeRules}
}

// Classify fills in the query's mode, window, and extracted ticker.
//
// Description:
//
//	Trusts an explicit mode when the caller supplied one. Otherwise the
//	text is matched against the mode rules in order; the first match
//	wins and GENERAL is the fallback. The mode's profile supplies the
//	default window unless the caller pinned one. When the query has no
//	ticker, a cashtag in the text ($NVDA) is extracted and sanitized.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//	query - The validated query to complete.
//
// Outputs:
//
//	datatypes.RiskQuery - A completed copy. The input is not mutated.
//
// Thread Safety: This method is safe for concurrent use.
func (c *RegexClassifier) Classify(ctx context.Context, query datatypes.RiskQuery) datatypes.RiskQuery {
	if ctx == nil {
		ctx = context.Background()
	}

	_, span := otel.Tracer("aleutian.riskd.classifier").Start(ctx, "classifier.RegexClassifier.Classify",
		trace.WithAttributes(
			attribute.Int("query_length", len(query.RawText)),
			attribute.Bool("explicit_mode", query.ExplicitMode),
		),
	)
	defer span.End()

	if !query.ExplicitMode || !query.Mode.Valid() {
		query.Mode = c.classifyText(query.RawText)
		query.ExplicitMode = false
	}

	if query.TimeWindow <= 0 {
		query.TimeWindow = ProfileFor(query.Mode).DefaultWindow
	}

	if query.Ticker == "" {
		if ticker, ok := extractCashtag(query.RawText); ok {
			query.Ticker = ticker
			span.SetAttributes(attribute.String("extracted_ticker", ticker))
		}
	}

	span.SetAttributes(
		attribute.String("mode", query.Mode.String()),
		attribute.String("window", query.TimeWindow.String()),
	)
	return query
}

// classifyText runs the ordered rule table over the query text.
func (c *RegexClassifier) classifyText(text string) datatypes.Mode {
	if strings.TrimSpace(text) == "" {
		return datatypes.ModeGeneral
	}
	for _, rule := range c.rules {
		if rule.pattern.MatchString(text) {
			return rule.mode
		}
	}
	return datatypes.ModeGeneral
}

// extractCashtag pulls the first valid cashtag ticker out of the text.
func extractCashtag(text string) (string, bool) {
	for _, match := range cashtagPattern.FindAllStringSubmatch(text, -1) {
		ticker, err := validation.SanitizeTicker(match[1])
		if err == nil {
			return ticker, true
		}
	}
	return "", false
}

// Ensure RegexClassifier implements ModeClassifier.
var _ ModeClassifier = (*RegexClassifier)(nil)
