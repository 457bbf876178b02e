// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package services provides the business logic for the risk daemon.
//
// This package contains service structs that encapsulate business logic,
// separating it from HTTP handlers. Services are responsible for:
//   - Orchestrating the evidence fan-out (Weaviate, Postgres, InfluxDB)
//   - Running the ranking, reasoning, and confidence steps
//   - Assembling and caching the final assessment
//
// Services are designed to be:
//   - Testable: Dependencies are injected via constructors
//   - Composable: Services can call other services
//   - Traceable: All methods accept context for distributed tracing
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianRisk/services/riskd/cache"
	"github.com/AleutianAI/AleutianRisk/services/riskd/classifier"
	"github.com/AleutianAI/AleutianRisk/services/riskd/datatypes"
	"github.com/AleutianAI/AleutianRisk/services/riskd/observability"
	"github.com/AleutianAI/AleutianRisk/services/riskd/ranking"
	"github.com/AleutianAI/AleutianRisk/services/riskd/sources"
)

// assessTracer is the OpenTelemetry tracer for AssessmentService operations.
var assessTracer = otel.Tracer("aleutian.riskd.services.assessment")

// ErrNoEvidence means every evidence source came back empty and no
// cached assessment exists. Handlers map it to 503: there is nothing
// to reason over, and refusing beats fabricating.
var ErrNoEvidence = errors.New("no evidence available and no cached assessment")

// SignalSource is an evidence source that can also expose its raw
// signal set. The ML adapter satisfies it; the raw signals feed the
// confidence formula and the prompt's quantitative section.
type SignalSource interface {
	sources.EvidenceSource
	SignalsFor(ctx context.Context, ticker string, window time.Duration, ref time.Time) ([]datatypes.MLSignal, error)
}

// =============================================================================
// Configuration
// =============================================================================

// AssessmentConfig bounds the assessment pipeline's time budget.
//
// # Description
//
// GlobalDeadline caps the whole pipeline including the LLM call. The
// per-source timeouts nest inside it; an adapter that blows its
// sub-deadline degrades that source without spending the rest of the
// budget. Zero fields take the shipped defaults.
type AssessmentConfig struct {
	GlobalDeadline    time.Duration
	VectorTimeout     time.Duration
	RelationalTimeout time.Duration
	SignalTimeout     time.Duration
}

// applyDefaults fills unset fields with the shipped budget.
func (c *AssessmentConfig) applyDefaults() {
	if c.GlobalDeadline <= 0 {
		c.GlobalDeadline = 1600 * time.Millisecond
	}
	if c.VectorTimeout <= 0 {
		c.VectorTimeout = 60 * time.Millisecond
	}
	if c.RelationalTimeout <= 0 {
		c.RelationalTimeout = 40 * time.Millisecond
	}
	if c.SignalTimeout <= 0 {
		c.SignalTimeout = 40 * time.Millisecond
	}
}

// AssessmentDeps carries the collaborators the pipeline is built from.
//
// Vector, Relational, and Signals may each be nil when the matching
// backend is not configured; the fan-out skips absent sources without
// recording a failure. Gateway must not be nil. A nil Store disables
// caching; a nil Classifier or Engine takes the shipped default.
type AssessmentDeps struct {
	Classifier classifier.ModeClassifier
	Vector     sources.EvidenceSource
	Relational sources.EvidenceSource
	Signals    SignalSource
	Engine     *ranking.Engine
	Gateway    *ReasoningGateway
	Store      cache.Store
}

// =============================================================================
// AssessmentService
// =============================================================================

// AssessmentService answers risk questions end-to-end. It orchestrates
// the flow between:
//   - Mode classifier: Resolves mode, ticker, and window
//   - Evidence sources: Vector search, relational features, ML signals
//   - Ranking engine: Scores and bounds the evidence
//   - Reasoning gateway: LLM risk reading over the ranked evidence
//   - Cache: Serves repeat questions and collapses concurrent misses
//
// The service is stateless apart from the singleflight group - all
// request state is passed through, so instances scale horizontally.
//
// Usage:
//
//	service := NewAssessmentService(deps, config)
//	assessment, err := service.Assess(ctx, &req)
type AssessmentService struct {
	deps   AssessmentDeps
	config AssessmentConfig
	flight singleflight.Group
}

// NewAssessmentService creates an assessment service from its
// collaborators. See AssessmentDeps for which may be nil.
func NewAssessmentService(deps AssessmentDeps, config AssessmentConfig) *AssessmentService {
	config.applyDefaults()
	if deps.Classifier == nil {
		deps.Classifier = classifier.NewRegexClassifier()
	}
	if deps.Engine == nil {
		deps.Engine = ranking.NewEngine(nil)
	}
	if deps.Store == nil {
		deps.Store = cache.NoopStore{}
	}
	return &AssessmentService{deps: deps, config: config}
}

// =============================================================================
// Core Processing Methods
// =============================================================================

// Assess handles one risk question end-to-end.
//
// The processing flow is:
//  1. Normalize and validate the request
//  2. Resolve the processing mode and its profile
//  3. Serve a live cached assessment when one exists
//  4. Collapse concurrent misses for the same key into one computation
//  5. Fan out to evidence sources under the global deadline
//  6. Rank, reason, score confidence, assemble
//  7. Write through to the cache unless the run degraded
//
// # Inputs
//
//   - ctx: Context for cancellation and tracing. The service applies
//     its own global deadline to the computation; the caller's context
//     only needs to outlive it.
//   - req: The assessment request as received from the transport.
//
// # Outputs
//
//   - *datatypes.RiskAssessment: The assembled (or cached) assessment.
//   - error: *datatypes.ValidationError for bad requests, ErrNoEvidence
//     when nothing could be collected, or an internal error.
//
// The method is safe for concurrent use.
func (s *AssessmentService) Assess(ctx context.Context, req *datatypes.AssessRequest) (*datatypes.RiskAssessment, error) {
	ctx, span := assessTracer.Start(ctx, "AssessmentService.Assess")
	defer span.End()
	started := time.Now()

	// Step 1: Normalize and validate the request.
	query, err := req.ToRiskQuery()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return nil, err
	}

	// Step 2: Resolve the processing mode and its profile.
	query = s.deps.Classifier.Classify(ctx, query)
	profile := classifier.ProfileFor(query.Mode)
	span.SetAttributes(
		attribute.String("query.mode", query.Mode.String()),
		attribute.String("query.ticker", query.Ticker),
		attribute.Float64("query.window_hours", query.TimeWindow.Hours()),
	)
	slog.Info("processing assessment",
		"mode", query.Mode,
		"ticker", query.Ticker,
		"window", query.TimeWindow,
	)

	// Step 3: Serve a live cached assessment when one exists.
	key := cache.AssessmentKey(query.Mode, query.Ticker, query.TimeWindow, query.SeverityThreshold)
	cacheDown := false
	cached, hit, err := cache.GetJSON[datatypes.RiskAssessment](ctx, s.deps.Store, key)
	if err != nil {
		cacheDown = true
		slog.Warn("assessment cache read failed, computing uncached", "error", err)
	} else if m := observability.DefaultMetrics; m != nil {
		m.RecordCacheLookup(observability.ArtifactAssessment, hit)
	}
	if hit {
		out := *cached
		out.Cached = true
		out.ProcessingTimeMs = time.Since(started).Milliseconds()
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return &out, nil
	}

	// Step 4: Collapse concurrent misses for the same key into one run.
	resultI, err, shared := s.flight.Do(key, func() (any, error) {
		// Double-check cache inside singleflight (an earlier flight may
		// have populated it between our miss and this call).
		if !cacheDown {
			if inner, ok, err := cache.GetJSON[datatypes.RiskAssessment](ctx, s.deps.Store, key); err == nil && ok {
				out := *inner
				out.Cached = true
				return &out, nil
			}
		}
		return s.compute(ctx, query, profile, key, cacheDown)
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrNoEvidence) {
			span.SetStatus(codes.Error, "no evidence collected")
		} else {
			span.SetStatus(codes.Error, "assessment failed")
		}
		return nil, err
	}

	assessment, ok := resultI.(*datatypes.RiskAssessment)
	if !ok {
		err := fmt.Errorf("unexpected type from singleflight group 'assessGroup': got %T", resultI)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	// Each caller gets its own copy so joined flights don't race on the
	// per-request fields.
	out := *assessment
	out.ProcessingTimeMs = time.Since(started).Milliseconds()
	span.SetAttributes(
		attribute.Bool("cache_hit", false),
		attribute.Bool("flight_shared", shared),
		attribute.String("response.id", out.ResponseID),
		attribute.String("response.risk_level", string(out.RiskLevel)),
		attribute.Float64("response.confidence", out.Confidence),
		attribute.Int("response.evidence_count", len(out.EvidenceUsed)),
	)
	return &out, nil
}

// compute runs the uncached pipeline: collect, rank, reason, assemble.
func (s *AssessmentService) compute(ctx context.Context, query datatypes.RiskQuery, profile classifier.Profile, key string, cacheDown bool) (*datatypes.RiskAssessment, error) {
	ctx, span := assessTracer.Start(ctx, "AssessmentService.compute")
	defer span.End()
	started := time.Now()
	ref := query.ReferenceTime(time.Now())

	// Step 5: Fan out to the evidence sources under the global deadline.
	deadlineCtx, cancel := context.WithTimeout(ctx, s.config.GlobalDeadline)
	defer cancel()
	bundle, timedOut := s.collectEvidence(deadlineCtx, query, profile, ref)
	span.SetAttributes(
		attribute.Int("evidence.collected", len(bundle.Items)),
		attribute.Int("evidence.signals", len(bundle.Signals)),
		attribute.Int("evidence.source_failures", len(bundle.SourceFailures)),
		attribute.Bool("evidence.timed_out", timedOut),
	)

	if bundle.IsEmpty() {
		span.SetStatus(codes.Error, "no evidence collected")
		return nil, ErrNoEvidence
	}

	// Step 6a: Rank the evidence.
	ranked := s.deps.Engine.Rank(ctx, *bundle, ref, query.TimeWindow)

	// Step 6b: Reason over the ranked evidence. When ranking dropped
	// every item, prompting the model with an empty evidence block
	// invites fabrication, so the pipeline answers deterministically.
	var reasoning *datatypes.ReasoningResult
	fellBack := false
	if len(ranked) == 0 {
		reasoning = noEvidenceResult()
	} else {
		reasoning, fellBack = s.deps.Gateway.Assess(deadlineCtx, profile, query, ranked, bundle.Signals)
	}

	// Step 6c: Composite confidence over what was actually used.
	distinct := make(map[datatypes.RiskType]struct{}, len(ranked))
	for _, item := range ranked {
		distinct[item.RiskType] = struct{}{}
	}
	confidence := ranking.ComputeConfidence(len(ranked), ranking.SignalStrength(bundle.Signals), len(distinct))
	if fellBack {
		confidence = 0.0
	}

	// Step 6d: Assemble the response.
	out := datatypes.NewRiskAssessment()
	out.RiskSummary = reasoning.RiskSummary
	out.RiskLevel = reasoning.RiskLevel
	if reasoning.PrimaryRisks != nil {
		out.PrimaryRisks = reasoning.PrimaryRisks
	}
	if reasoning.MonitoringRecommendations != nil {
		out.MonitoringRecommendations = reasoning.MonitoringRecommendations
	}
	out.EvidenceUsed = make([]datatypes.EvidenceView, 0, len(ranked))
	for _, item := range ranked {
		out.EvidenceUsed = append(out.EvidenceUsed, datatypes.NewEvidenceView(item))
	}
	out.Confidence = confidence
	if len(out.EvidenceUsed) == 0 {
		out.RiskLevel = datatypes.RiskLevelUnknown
	}
	if timedOut {
		out.Warnings = append(out.Warnings, datatypes.WarningTimeoutFallback)
	}
	for _, source := range bundle.SourceFailures {
		out.Warnings = append(out.Warnings, datatypes.PartialDataWarning(source))
	}
	if fellBack {
		out.Warnings = append(out.Warnings, datatypes.WarningLLMFailure)
	}
	if cacheDown {
		out.Warnings = append(out.Warnings, datatypes.WarningCacheUnavailable)
	}
	out.ProcessingTimeMs = time.Since(started).Milliseconds()

	if m := observability.DefaultMetrics; m != nil {
		m.RecordEvidenceCount(query.Mode.String(), len(ranked))
	}

	// Step 7: Write through unless this run degraded. A degraded
	// assessment served for the full TTL would outlive the outage that
	// caused it.
	degraded := timedOut || fellBack || len(ranked) == 0
	switch {
	case degraded:
		slog.Info("skipping cache write for degraded assessment",
			"warnings", out.Warnings)
	case !cacheDown:
		if err := cache.SetJSON(ctx, s.deps.Store, key, *out, cache.TTLAssessment); err != nil {
			slog.Warn("assessment cache write failed", "error", err)
		}
	}

	span.SetAttributes(
		attribute.Int("evidence.ranked", len(ranked)),
		attribute.Float64("confidence", confidence),
		attribute.Bool("degraded", degraded),
	)
	return out, nil
}

// noEvidenceResult stands in for the reasoning step when ranking
// dropped every collected item below the score floor.
func noEvidenceResult() *datatypes.ReasoningResult {
	return &datatypes.ReasoningResult{
		RiskSummary:  "No evidence in the requested window cleared the relevance floor, so no risk reading can be made.",
		RiskLevel:    datatypes.RiskLevelUnknown,
		PrimaryRisks: []datatypes.PrimaryRisk{},
		Confidence:   0.0,
	}
}

// =============================================================================
// Evidence Collection
// =============================================================================

// sourceResult is one adapter's contribution arriving on the fan-in
// channel.
type sourceResult struct {
	name    string
	items   []datatypes.EvidenceItem
	signals []datatypes.MLSignal
	err     error
}

// collectEvidence fans out to the configured sources and merges what
// arrives before the global deadline.
//
// # Description
//
// Each source runs in its own goroutine under its own sub-deadline
// nested in ctx's global deadline. Failures are absorbed: the source is
// recorded in SourceFailures and the rest proceed. When ctx expires
// mid-collection the remaining sources are abandoned and their late
// results discarded; the buffered channel lets the stragglers finish
// their sends without leaking.
//
// # Outputs
//
//   - *datatypes.EvidenceBundle: Everything that arrived in time.
//   - bool: True when the global deadline fired before all sources
//     reported.
func (s *AssessmentService) collectEvidence(ctx context.Context, query datatypes.RiskQuery, profile classifier.Profile, ref time.Time) (*datatypes.EvidenceBundle, bool) {
	ctx, span := assessTracer.Start(ctx, "AssessmentService.collectEvidence")
	defer span.End()

	params := sources.ProbeParams{
		Ticker:            query.Ticker,
		QueryText:         query.RawText,
		Window:            query.TimeWindow,
		SeverityThreshold: query.SeverityThreshold,
		FetchK:            profile.VectorTopK,
		SignalTypes:       profile.SignalTypes,
		Reference:         ref,
	}

	type probe struct {
		source      sources.EvidenceSource
		timeout     time.Duration
		withSignals bool
	}
	var probes []probe
	if s.deps.Vector != nil {
		probes = append(probes, probe{s.deps.Vector, s.config.VectorTimeout, false})
	}
	if s.deps.Relational != nil {
		probes = append(probes, probe{s.deps.Relational, s.config.RelationalTimeout, false})
	}
	if s.deps.Signals != nil {
		probes = append(probes, probe{s.deps.Signals, s.config.SignalTimeout, true})
	}

	results := make(chan sourceResult, len(probes))
	for _, p := range probes {
		go func(p probe) {
			probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()

			items, err := p.source.Fetch(probeCtx, params)
			res := sourceResult{name: p.source.Name(), items: items, err: err}
			if err == nil && p.withSignals && query.Ticker != "" {
				// The fetch above already computed and cached the
				// signal set; this read-through hands the raw values to
				// the confidence formula and the prompt.
				sigs, sigErr := s.deps.Signals.SignalsFor(probeCtx, query.Ticker, params.Window, ref)
				if sigErr != nil {
					slog.Debug("signal read-through failed after fetch", "error", sigErr)
				} else {
					res.signals = sigs
				}
			}
			results <- res
		}(p)
	}

	bundle := datatypes.NewEvidenceBundle()
	timedOut := false
	pending := len(probes)
	for pending > 0 {
		select {
		case res := <-results:
			pending--
			if res.err != nil {
				slog.Warn("evidence source failed",
					"source", res.name,
					"error", res.err,
				)
				bundle.RecordFailure(res.name)
				if m := observability.DefaultMetrics; m != nil {
					serr, _ := sources.AsSourceError(res.err)
					m.RecordSourceFailure(res.name, serr != nil && serr.Timeout)
				}
				continue
			}
			bundle.Add(res.items...)
			bundle.Signals = append(bundle.Signals, res.signals...)
		case <-ctx.Done():
			timedOut = true
			pending = 0
		}
	}

	span.SetAttributes(
		attribute.Int("sources.probed", len(probes)),
		attribute.Int("sources.failed", len(bundle.SourceFailures)),
		attribute.Bool("timed_out", timedOut),
	)
	return bundle, timedOut
}
