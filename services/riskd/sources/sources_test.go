// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sources

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRisk/services/riskd/datatypes"
)

// TestProbeParams_WindowStart verifies the lower bound tracks the
// reference instant, not wall time.
func TestProbeParams_WindowStart(t *testing.T) {
	ref := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	params := ProbeParams{Window: 72 * time.Hour, Reference: ref}

	assert.Equal(t, time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC), params.WindowStart())
}

func TestProbeParams_WantsSignal_EmptyMeansAll(t *testing.T) {
	params := ProbeParams{}

	assert.True(t, params.WantsSignal(datatypes.SignalAnomaly))
	assert.True(t, params.WantsSignal(datatypes.SignalSentiment))
	assert.True(t, params.WantsSignal(datatypes.SignalLiquidity))
}

func TestProbeParams_WantsSignal_FiltersToRequested(t *testing.T) {
	params := ProbeParams{SignalTypes: []datatypes.SignalType{datatypes.SignalAnomaly}}

	assert.True(t, params.WantsSignal(datatypes.SignalAnomaly))
	assert.False(t, params.WantsSignal(datatypes.SignalSentiment))
}

func TestSourceError_Message(t *testing.T) {
	plain := &SourceError{Source: "vector_search", Reason: "connection refused"}
	assert.Equal(t, "source vector_search failed: connection refused", plain.Error())

	timedOut := &SourceError{Source: "ml_signals", Reason: "context deadline exceeded", Timeout: true}
	assert.Equal(t, "source ml_signals timed out: context deadline exceeded", timedOut.Error())
}

func TestIsSourceError(t *testing.T) {
	serr := &SourceError{Source: "relational_features", Reason: "pool closed"}

	assert.True(t, IsSourceError(serr))
	assert.True(t, IsSourceError(fmt.Errorf("probing: %w", serr)))
	assert.False(t, IsSourceError(errors.New("plain failure")))
	assert.False(t, IsSourceError(nil))
}

func TestAsSourceError_Unwraps(t *testing.T) {
	serr := &SourceError{Source: "vector_search", Reason: "down"}

	got, ok := AsSourceError(fmt.Errorf("outer: %w", serr))
	require.True(t, ok)
	assert.Equal(t, "vector_search", got.Source)

	_, ok = AsSourceError(errors.New("plain"))
	assert.False(t, ok)
}

// TestWrapSourceError_ClassifiesDeadline verifies context expiry reads
// as a timeout so the fan-in can distinguish slow sources from broken
// ones.
func TestWrapSourceError_ClassifiesDeadline(t *testing.T) {
	wrapped := WrapSourceError("ml_signals", fmt.Errorf("influxdb query failed: %w", context.DeadlineExceeded))

	assert.True(t, wrapped.Timeout)
	assert.True(t, wrapped.Retryable)
	assert.Equal(t, "ml_signals", wrapped.Source)
}

func TestWrapSourceError_PlainFailure(t *testing.T) {
	wrapped := WrapSourceError("vector_search", errors.New("tcp reset"))

	assert.False(t, wrapped.Timeout)
	assert.True(t, wrapped.Retryable)
	assert.Contains(t, wrapped.Error(), "tcp reset")
}
