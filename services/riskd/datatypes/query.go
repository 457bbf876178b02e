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
// This file contains the inbound query model: processing modes, the
// external request body with its validation rules, and the normalized
// internal RiskQuery that drives the pipeline.
package datatypes

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/AleutianRisk/pkg/validation"
)

// =============================================================================
// Constants for Request Limits
// =============================================================================

const (
	// MaxQueryTextBytes is the maximum size of the query text field.
	// Risk queries are short natural-language questions; anything larger
	// is either an abuse attempt or a paste accident.
	MaxQueryTextBytes = 8 * 1024 // 8KB

	// MaxWindowHours caps the requestable evidence window at one year.
	MaxWindowHours = 8760
)

// =============================================================================
// Processing Modes
// =============================================================================

// Mode is a query-processing profile. Each mode selects a default
// evidence window, per-source fetch shaping, and a prompt template.
type Mode string

const (
	// ModeRisk answers "what risks affect X" questions.
	ModeRisk Mode = "RISK"
	// ModeMove explains recent price moves.
	ModeMove Mode = "MOVE"
	// ModeOptions covers options-flow and volatility questions.
	ModeOptions Mode = "OPTIONS"
	// ModeMacro covers macro/market-wide questions.
	ModeMacro Mode = "MACRO"
	// ModeGeneral is the fallback for everything else.
	ModeGeneral Mode = "GENERAL"
)

// allModes is the canonical mode list.
var allModes = []Mode{ModeRisk, ModeMove, ModeOptions, ModeMacro, ModeGeneral}

// Valid reports whether the mode is one of the known profiles.
func (m Mode) Valid() bool {
	for _, known := range allModes {
		if m == known {
			return true
		}
	}
	return false
}

// String returns the wire form of the mode.
func (m Mode) String() string {
	return string(m)
}

// ParseMode converts a string into a Mode, case-insensitively.
//
// # Inputs
//
//   - s: Raw mode string from a request or CLI flag
//
// # Outputs
//
//   - Mode: The parsed mode
//   - bool: false if s is empty or not a known mode
func ParseMode(s string) (Mode, bool) {
	m := Mode(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", false
	}
	return m, true
}

// =============================================================================
// Normalized Risk Query
// =============================================================================

// RiskQuery is the normalized, validated form of one inbound question.
//
// # Description
//
// Created per request by AssessRequest.ToRiskQuery, then finalized by
// the mode classifier (which fills Mode and TimeWindow when the caller
// left them unset). Immutable after classification; never persisted
// beyond the request lifetime.
//
// # Fields
//
//   - RawText: The original question text, trimmed.
//   - Ticker: Sanitized uppercase ticker, empty when the question is
//     not scoped to one instrument.
//   - Timestamp: Caller-supplied reference time; zero means "now".
//   - Mode: Processing mode. Empty until classification unless the
//     caller pinned one explicitly.
//   - ExplicitMode: True when the caller supplied Mode themselves, in
//     which case the classifier trusts it and skips its heuristics.
//   - TimeWindow: Evidence lookback window. Zero until classification
//     unless the caller supplied window_hours.
//   - SeverityThreshold: Minimum severity to include; empty means no
//     filtering.
type RiskQuery struct {
	RawText           string        `json:"raw_text"`
	Ticker            string        `json:"ticker,omitempty"`
	Timestamp         time.Time     `json:"timestamp,omitempty"`
	Mode              Mode          `json:"mode,omitempty"`
	ExplicitMode      bool          `json:"explicit_mode,omitempty"`
	TimeWindow        time.Duration `json:"time_window,omitempty"`
	SeverityThreshold Severity      `json:"severity_threshold,omitempty"`
}

// ReferenceTime returns the query's reference instant: the caller's
// timestamp when one was supplied, otherwise now. Recency decay and
// window bounds are computed relative to this instant so that replayed
// queries rank identically.
func (q RiskQuery) ReferenceTime(now time.Time) time.Time {
	if !q.Timestamp.IsZero() {
		return q.Timestamp
	}
	return now
}

// =============================================================================
// Shared Validator Instance
// =============================================================================

// riskValidate is the validator instance for risk datatypes.
// Initialized in init() with custom validators.
var riskValidate *validator.Validate

func init() {
	riskValidate = validator.New()

	_ = riskValidate.RegisterValidation("maxbytes", validateMaxBytes)
	_ = riskValidate.RegisterValidation("ticker", validateTickerField)
}

// validateMaxBytes validates that a string field does not exceed
// MaxQueryTextBytes. Checks byte length, not rune count, to bound
// memory regardless of encoding.
func validateMaxBytes(fl validator.FieldLevel) bool {
	content := fl.Field().String()
	return len(content) <= MaxQueryTextBytes
}

// validateTickerField validates a ticker field using the shared ticker
// rules, after the same normalization ToRiskQuery applies. Keeps the
// request tags and the sanitizer agreeing on what a valid ticker is.
func validateTickerField(fl validator.FieldLevel) bool {
	ticker := fl.Field().String()
	if ticker == "" {
		return true
	}
	_, err := validation.SanitizeTicker(ticker)
	return err == nil
}

// =============================================================================
// External Request Body
// =============================================================================

// AssessRequest is the POST /api/v1/risk/assess request body.
//
// # Description
//
// The minimal contract for driving the assessment pipeline. Only Text
// is required; everything else tunes classification and filtering.
// Timestamps are Unix milliseconds UTC, matching the rest of the
// Aleutian API surface.
//
// # Validation
//
// Uses go-playground/validator:
//   - Text: required, max 8KB (maxbytes custom validator)
//   - Ticker: optional, must sanitize to a valid ticker symbol
//   - Timestamp: optional, must be > 0 when present
//   - Mode: optional, one of RISK MOVE OPTIONS MACRO GENERAL
//   - WindowHours: optional, 1..8760
//   - SeverityThreshold: optional, one of low medium high
//
// # Examples
//
//	req := AssessRequest{
//	    Text:   "What infrastructure risks affect NVDA?",
//	    Ticker: "NVDA",
//	}
type AssessRequest struct {
	Text              string `json:"text" validate:"required,maxbytes"`
	Ticker            string `json:"ticker,omitempty" validate:"omitempty,ticker"`
	Timestamp         int64  `json:"timestamp,omitempty" validate:"omitempty,gt=0"`
	Mode              string `json:"mode,omitempty" validate:"omitempty,oneof=RISK MOVE OPTIONS MACRO GENERAL"`
	WindowHours       int    `json:"window_hours,omitempty" validate:"omitempty,gte=1,lte=8760"`
	SeverityThreshold string `json:"severity_threshold,omitempty" validate:"omitempty,oneof=low medium high"`
}

// Validate validates the AssessRequest fields.
//
// # Description
//
// Performs validation using validator tags and custom validators.
// Call after binding the JSON request and before ToRiskQuery.
//
// # Outputs
//
//   - error: A *ValidationError describing the first failing field,
//     nil when the request is well formed
func (r *AssessRequest) Validate() error {
	if err := riskValidate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field := strings.ToLower(verrs[0].Field())
			return NewValidationError(field, fmt.Sprintf("failed %q constraint", verrs[0].Tag()))
		}
		return NewValidationError("request", err.Error())
	}
	return nil
}

// ToRiskQuery converts a validated request into the normalized internal
// query.
//
// # Description
//
// Trims the text, sanitizes the ticker to its canonical uppercase form,
// converts the millisecond timestamp, and parses the explicit mode when
// one was given. Window and mode stay zero-valued for the classifier to
// fill in unless the caller pinned them.
//
// # Outputs
//
//   - RiskQuery: The normalized query
//   - error: A *ValidationError if the ticker, timestamp, or mode is
//     malformed despite tag validation (defense against direct struct
//     construction skipping Validate)
func (r *AssessRequest) ToRiskQuery() (RiskQuery, error) {
	q := RiskQuery{
		RawText: strings.TrimSpace(r.Text),
	}
	if q.RawText == "" {
		return RiskQuery{}, NewValidationError("text", "must not be empty")
	}

	if r.Ticker != "" {
		ticker, err := validation.SanitizeTicker(r.Ticker)
		if err != nil {
			return RiskQuery{}, NewValidationError("ticker", err.Error())
		}
		q.Ticker = ticker
	}

	if r.Timestamp != 0 {
		if r.Timestamp < 0 {
			return RiskQuery{}, NewValidationError("timestamp", "must be a positive Unix millisecond value")
		}
		q.Timestamp = time.UnixMilli(r.Timestamp).UTC()
	}

	if r.Mode != "" {
		mode, ok := ParseMode(r.Mode)
		if !ok {
			return RiskQuery{}, NewValidationError("mode", fmt.Sprintf("unknown mode: %q", r.Mode))
		}
		q.Mode = mode
		q.ExplicitMode = true
	}

	if r.WindowHours != 0 {
		if err := validation.ValidateWindowHours(r.WindowHours); err != nil {
			return RiskQuery{}, NewValidationError("window_hours", err.Error())
		}
		q.TimeWindow = time.Duration(r.WindowHours) * time.Hour
	}

	if r.SeverityThreshold != "" {
		sev, err := ParseSeverity(r.SeverityThreshold)
		if err != nil {
			return RiskQuery{}, NewValidationError("severity_threshold", err.Error())
		}
		q.SeverityThreshold = sev
	}

	return q, nil
}

// =============================================================================
// Validation Errors
// =============================================================================

// ValidationError reports a malformed request field. Handlers map it to
// HTTP 400; it is never retried.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for a field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidationError checks if an error is a ValidationError.
//
// Type assertion helper for determining the appropriate HTTP status
// code in handlers: validation failures are 400, everything else that
// escapes the pipeline is 500-class.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
