// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sources contains the evidence source adapters: vector search
// over Weaviate, relational features over Postgres, and ML signals over
// InfluxDB. Each adapter runs under its own sub-deadline inside the
// orchestrator's fan-out; a failed or timed-out adapter surfaces a
// *SourceError and the pipeline degrades to partial data instead of
// failing the request.
package sources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AleutianAI/AleutianRisk/services/riskd/datatypes"
)

// =============================================================================
// Probe Parameters
// =============================================================================

// ProbeParams is the per-request fetch envelope handed to every adapter.
//
// # Description
//
// Built once by the orchestrator from the classified query, then shared
// across the fan-out. Mode shaping happens HERE (fetch sizes, windows,
// and signal sets vary by mode), never in the ranking score, so the same
// evidence always ranks the same way.
//
// # Fields
//
//   - Ticker: Sanitized uppercase symbol; empty means market-wide.
//   - QueryText: The natural-language question, used for semantic search.
//   - Window: Evidence lookback window.
//   - SeverityThreshold: Minimum severity to return; empty keeps all.
//   - FetchK: How many items the caller wants from this source.
//   - SignalTypes: Which ML signals to compute; empty computes all.
//   - Reference: The query's reference instant; window bounds and signal
//     math are computed relative to it so replays are deterministic.
type ProbeParams struct {
	Ticker            string
	QueryText         string
	Window            time.Duration
	SeverityThreshold datatypes.Severity
	FetchK            int
	SignalTypes       []datatypes.SignalType
	Reference         time.Time
}

// WindowStart returns the inclusive lower bound of the evidence window.
func (p ProbeParams) WindowStart() time.Time {
	return p.Reference.Add(-p.Window)
}

// WantsSignal reports whether the probe asked for the given signal type.
// An empty SignalTypes set means "all".
func (p ProbeParams) WantsSignal(st datatypes.SignalType) bool {
	if len(p.SignalTypes) == 0 {
		return true
	}
	for _, want := range p.SignalTypes {
		if want == st {
			return true
		}
	}
	return false
}

// =============================================================================
// Source Interface
// =============================================================================

// EvidenceSource is one backing store the orchestrator probes for
// evidence. Implementations must honor ctx cancellation promptly: the
// orchestrator abandons adapters that outlive their sub-deadline.
type EvidenceSource interface {
	// Name returns the stable source identifier recorded on every
	// EvidenceItem and in partial_data warnings.
	Name() string

	// Fetch returns evidence for the probe. On failure it returns an
	// empty slice and a *SourceError; it never returns partial results
	// alongside an error.
	Fetch(ctx context.Context, params ProbeParams) ([]datatypes.EvidenceItem, error)
}

// =============================================================================
// Source Errors
// =============================================================================

// SourceError reports a failed probe of one evidence source. The
// orchestrator absorbs it as a partial_data warning; it never reaches
// the HTTP surface directly.
type SourceError struct {
	Source    string
	Reason    string
	Retryable bool
	Timeout   bool
}

// Error implements the error interface for SourceError.
func (e *SourceError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("source %s timed out: %s", e.Source, e.Reason)
	}
	return fmt.Sprintf("source %s failed: %s", e.Source, e.Reason)
}

// IsSourceError checks if an error is a SourceError.
//
// Type assertion helper for the orchestrator's fan-in loop, which
// treats source failures as degradation and anything else as a bug.
func IsSourceError(err error) bool {
	var serr *SourceError
	return errors.As(err, &serr)
}

// AsSourceError unwraps err into a *SourceError when possible.
func AsSourceError(err error) (*SourceError, bool) {
	var serr *SourceError
	if errors.As(err, &serr) {
		return serr, true
	}
	return nil, false
}

// WrapSourceError converts a backend failure into a SourceError,
// classifying context expiry as a timeout. Timeouts and transport
// failures are retryable on the next request; nothing is retried
// within one request.
func WrapSourceError(source string, err error) *SourceError {
	timeout := errors.Is(err, context.DeadlineExceeded)
	return &SourceError{
		Source:    source,
		Reason:    err.Error(),
		Retryable: true,
		Timeout:   timeout,
	}
}
