// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/AleutianAI/AleutianRisk/services/riskd/datatypes"
)

// Default TTLs per payload class. Signals move faster than assessments,
// so they expire first; vector result sets sit in between.
const (
	TTLAssessment   = 300 * time.Second
	TTLVectorSearch = 120 * time.Second
	TTLMLSignals    = 60 * time.Second
)

// Key prefixes, one per payload class. Prefixes keep the classes
// distinguishable in redis-cli and let operators flush one class
// without touching the others.
const (
	prefixAssessment   = "assess"
	prefixVectorSearch = "vsearch"
	prefixMLSignals    = "mlsig"
)

// AssessmentKey identifies a full cached assessment.
//
// The identity of an assessment is the mode, the normalized ticker, the
// time window, and the severity threshold. Two requests that agree on
// those four produce the same assessment and share the cache slot.
func AssessmentKey(mode datatypes.Mode, ticker string, window time.Duration, threshold datatypes.Severity) string {
	return hashKey(prefixAssessment,
		string(mode),
		ticker,
		windowField(window),
		string(threshold))
}

// MLSignalsKey identifies a cached signal set for one ticker and window.
func MLSignalsKey(ticker string, window time.Duration) string {
	return hashKey(prefixMLSignals, ticker, windowField(window))
}

// VectorSearchKey identifies a cached vector search result set. Unlike
// assessments, vector results depend on the literal query text and the
// requested fetch size, so both participate in the hash.
func VectorSearchKey(queryText, ticker string, window time.Duration, threshold datatypes.Severity, fetchK int) string {
	return hashKey(prefixVectorSearch,
		queryText,
		ticker,
		windowField(window),
		string(threshold),
		strconv.Itoa(fetchK))
}

// windowField renders a window deterministically at second granularity.
func windowField(window time.Duration) string {
	return strconv.FormatInt(int64(window/time.Second), 10)
}

// hashKey builds "<prefix>:<sha256 hex>" over the fields.
//
// Uses full SHA256 (64 hex chars) to eliminate collision risk. Each
// field is length-prefixed before hashing so a free-text field can
// never collide with an adjacent field, whatever characters it holds.
func hashKey(prefix string, fields ...string) string {
	h := sha256.New()
	for _, f := range fields {
		h.Write([]byte(strconv.Itoa(len(f))))
		h.Write([]byte(":"))
		h.Write([]byte(f))
	}
	return prefix + ":" + hex.EncodeToString(h.Sum(nil))
}
