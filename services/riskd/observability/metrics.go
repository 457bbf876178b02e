// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the risk service.
//
// # Description
//
// This package implements Prometheus metrics for monitoring risk
// assessment operations. Metrics include:
//   - Request counters and latency histograms (by mode, status)
//   - Evidence source failure counters (by source, reason)
//   - Cache lookup counters (by artifact, outcome)
//   - LLM retry and fallback counters
//   - Evidence-count histograms
//
// # Integration
//
// Metrics are exposed via /metrics endpoint. Use with Prometheus + Grafana
// for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "aleutian"

// Subsystem for risk assessment metrics
const riskSubsystem = "riskd"

// RiskMetrics holds all Prometheus metrics for risk assessment operations.
//
// # Description
//
// Provides counters and histograms for monitoring assessment latency,
// evidence source health, cache effectiveness, and LLM reliability.
// Initialize once at startup via InitMetrics().
//
// # Fields
//
//   - RequestsTotal: Counter of assessment requests by mode and status
//   - RequestDurationSeconds: Histogram of end-to-end assessment latency
//   - SourceFailuresTotal: Counter of evidence source failures
//   - CacheRequestsTotal: Counter of cache lookups by artifact and outcome
//   - LLMRetriesTotal: Counter of second reasoning attempts
//   - LLMFallbacksTotal: Counter of deterministic fallback substitutions
//   - EvidenceItems: Histogram of evidence items per assessment
type RiskMetrics struct {
	// RequestsTotal counts assessment requests.
	// Labels: mode, status
	RequestsTotal *prometheus.CounterVec

	// RequestDurationSeconds measures end-to-end assessment latency.
	// Labels: mode, status
	RequestDurationSeconds *prometheus.HistogramVec

	// SourceFailuresTotal counts evidence source probe failures.
	// Labels: source, reason
	SourceFailuresTotal *prometheus.CounterVec

	// CacheRequestsTotal counts cache lookups.
	// Labels: artifact, outcome
	CacheRequestsTotal *prometheus.CounterVec

	// LLMRetriesTotal counts second reasoning attempts after a schema failure.
	LLMRetriesTotal prometheus.Counter

	// LLMFallbacksTotal counts deterministic fallback payloads substituted
	// after both reasoning attempts failed.
	LLMFallbacksTotal prometheus.Counter

	// EvidenceItems measures how much evidence each assessment rested on.
	// Labels: mode
	EvidenceItems *prometheus.HistogramVec
}

// DefaultMetrics is the singleton instance of RiskMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *RiskMetrics

// InitMetrics initializes the default metrics instance.
//
// # Description
//
// Creates and registers all Prometheus metrics. Should be called once
// at application startup, after Prometheus registry is available.
//
// # Outputs
//
//   - *RiskMetrics: The initialized metrics instance.
//
// # Examples
//
//	func main() {
//	    observability.InitMetrics()
//	    // ... start server ...
//	}
//
// # Limitations
//
//   - Panics if called twice (duplicate registration).
//
// # Assumptions
//
//   - Prometheus default registry is available.
func InitMetrics() *RiskMetrics {
	DefaultMetrics = &RiskMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: riskSubsystem,
				Name:      "requests_total",
				Help:      "Total number of assessment requests by mode and status",
			},
			[]string{"mode", "status"},
		),

		RequestDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: riskSubsystem,
				Name:      "request_duration_seconds",
				Help:      "End-to-end assessment latency in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 1.6, 2.5, 5.0},
			},
			[]string{"mode", "status"},
		),

		SourceFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: riskSubsystem,
				Name:      "source_failures_total",
				Help:      "Evidence source probe failures by source and reason",
			},
			[]string{"source", "reason"},
		),

		CacheRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: riskSubsystem,
				Name:      "cache_requests_total",
				Help:      "Cache lookups by artifact and outcome",
			},
			[]string{"artifact", "outcome"},
		),

		LLMRetriesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: riskSubsystem,
				Name:      "llm_retries_total",
				Help:      "Second reasoning attempts after a schema failure",
			},
		),

		LLMFallbacksTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: riskSubsystem,
				Name:      "llm_fallbacks_total",
				Help:      "Deterministic fallback payloads substituted for LLM output",
			},
		),

		EvidenceItems: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: riskSubsystem,
				Name:      "evidence_items",
				Help:      "Evidence items backing each assessment",
				Buckets:   []float64{0, 1, 2, 5, 10, 15},
			},
			[]string{"mode"},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Cache Artifacts
// =============================================================================

// Artifact identifies a cached artifact class for metrics labeling.
type Artifact string

const (
	// ArtifactAssessment is the fully assembled assessment response.
	ArtifactAssessment Artifact = "assess"

	// ArtifactVectorSearch is a vector search result set.
	ArtifactVectorSearch Artifact = "vsearch"

	// ArtifactMLSignals is a computed ML signal bundle.
	ArtifactMLSignals Artifact = "mlsig"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed assessment request.
//
// # Inputs
//
//   - mode: The resolved assessment mode.
//   - success: Whether the request completed successfully.
//   - seconds: End-to-end request duration.
func (m *RiskMetrics) RecordRequest(mode string, success bool, seconds float64) {
	status := "success"
	if !success {
		status = "error"
	}
	m.RequestsTotal.WithLabelValues(mode, status).Inc()
	m.RequestDurationSeconds.WithLabelValues(mode, status).Observe(seconds)
}

// RecordSourceFailure records one failed evidence source probe.
//
// # Inputs
//
//   - source: The evidence source that failed.
//   - timeout: Whether the failure was a sub-deadline expiry.
func (m *RiskMetrics) RecordSourceFailure(source string, timeout bool) {
	reason := "error"
	if timeout {
		reason = "timeout"
	}
	m.SourceFailuresTotal.WithLabelValues(source, reason).Inc()
}

// RecordCacheLookup records one cache lookup outcome.
//
// # Inputs
//
//   - artifact: The artifact class looked up.
//   - hit: Whether the lookup found a live entry.
func (m *RiskMetrics) RecordCacheLookup(artifact Artifact, hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.CacheRequestsTotal.WithLabelValues(string(artifact), outcome).Inc()
}

// RecordLLMRetry records a second reasoning attempt.
func (m *RiskMetrics) RecordLLMRetry() {
	m.LLMRetriesTotal.Inc()
}

// RecordLLMFallback records a fallback payload substitution.
func (m *RiskMetrics) RecordLLMFallback() {
	m.LLMFallbacksTotal.Inc()
}

// RecordEvidenceCount records how much evidence an assessment used.
//
// # Inputs
//
//   - mode: The resolved assessment mode.
//   - count: Number of ranked evidence items.
func (m *RiskMetrics) RecordEvidenceCount(mode string, count int) {
	m.EvidenceItems.WithLabelValues(mode).Observe(float64(count))
}
