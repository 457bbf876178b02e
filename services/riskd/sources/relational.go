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
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AleutianAI/AleutianRisk/services/riskd/datatypes"
)

// =============================================================================
// Queries
// =============================================================================

// Every query follows the same shape: optional ticker pin ($1 empty
// means market-wide), window lower bound, severity set, row cap. The
// severity condition stays in SQL so a high-threshold probe never
// drags low rows across the wire.

const incidentQuery = `
	SELECT incident_id, ticker, severity, summary, impact_score, occurred_at
	FROM risk_incidents
	WHERE ($1 = '' OR ticker = $1)
	  AND occurred_at >= $2
	  AND severity = ANY($3)
	ORDER BY occurred_at DESC
	LIMIT $4`

const anomalyQuery = `
	SELECT anomaly_id, ticker, severity, summary, anomaly_score, detected_at
	FROM risk_anomalies
	WHERE ($1 = '' OR ticker = $1)
	  AND detected_at >= $2
	  AND severity = ANY($3)
	ORDER BY detected_at DESC
	LIMIT $4`

const regulatoryQuery = `
	SELECT event_id, ticker, severity, summary, materiality, announced_at
	FROM regulatory_events
	WHERE ($1 = '' OR ticker = $1)
	  AND announced_at >= $2
	  AND severity = ANY($3)
	ORDER BY announced_at DESC
	LIMIT $4`

// Sentiment rows carry a signed score instead of a stored severity, so
// the threshold becomes a minimum magnitude.
const sentimentQuery = `
	SELECT sentiment_id, ticker, headline, sentiment_score, observed_at
	FROM ticker_sentiment
	WHERE ($1 = '' OR ticker = $1)
	  AND observed_at >= $2
	  AND ABS(sentiment_score) >= $3
	ORDER BY observed_at DESC
	LIMIT $4`

// =============================================================================
// Relational Feature Adapter
// =============================================================================

// RelationalFeatureAdapter retrieves structured risk facts from
// Postgres: operational incidents, detected anomalies, regulatory
// events, and news sentiment scores.
//
// # Description
//
// Each table maps onto one risk type (incidents are infra risk,
// anomalies technical, regulatory events regulatory, sentiment rows
// sentiment). The four queries run sequentially inside the adapter's
// sub-deadline; the first failure aborts the probe because a partially
// probed relational source would skew the risk-type mix downstream.
//
// # Thread Safety
//
// Safe for concurrent use; pgxpool manages its own connection state.
type RelationalFeatureAdapter struct {
	pool *pgxpool.Pool
}

// NewRelationalFeatureAdapter creates an adapter over the given pool.
func NewRelationalFeatureAdapter(pool *pgxpool.Pool) *RelationalFeatureAdapter {
	return &RelationalFeatureAdapter{pool: pool}
}

// Name returns the source identifier recorded on relational evidence.
func (r *RelationalFeatureAdapter) Name() string {
	return datatypes.SourceRelational
}

// Fetch probes all four tables and merges the rows.
//
// # Outputs
//
//   - []datatypes.EvidenceItem: Up to FetchK items, newest first
//   - error: A *SourceError if any query fails
func (r *RelationalFeatureAdapter) Fetch(ctx context.Context, params ProbeParams) ([]datatypes.EvidenceItem, error) {
	var (
		start      = params.WindowStart()
		severities = severitiesAtOrAbove(params.SeverityThreshold)
		items      []datatypes.EvidenceItem
	)

	probes := []func(context.Context, ProbeParams, time.Time, []string) ([]datatypes.EvidenceItem, error){
		r.fetchIncidents,
		r.fetchAnomalies,
		r.fetchRegulatory,
		r.fetchSentiment,
	}
	for _, probe := range probes {
		rows, err := probe(ctx, params, start, severities)
		if err != nil {
			return nil, WrapSourceError(datatypes.SourceRelational, err)
		}
		items = append(items, rows...)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].Timestamp.After(items[j].Timestamp)
	})
	if len(items) > params.FetchK {
		items = items[:params.FetchK]
	}
	return items, nil
}

func (r *RelationalFeatureAdapter) fetchIncidents(ctx context.Context, params ProbeParams, start time.Time, severities []string) ([]datatypes.EvidenceItem, error) {
	return r.fetchGraded(ctx, "risk_incidents", incidentQuery, "incident", datatypes.RiskTypeInfra, params, start, severities)
}

func (r *RelationalFeatureAdapter) fetchAnomalies(ctx context.Context, params ProbeParams, start time.Time, severities []string) ([]datatypes.EvidenceItem, error) {
	return r.fetchGraded(ctx, "risk_anomalies", anomalyQuery, "anomaly", datatypes.RiskTypeTechnical, params, start, severities)
}

func (r *RelationalFeatureAdapter) fetchRegulatory(ctx context.Context, params ProbeParams, start time.Time, severities []string) ([]datatypes.EvidenceItem, error) {
	return r.fetchGraded(ctx, "regulatory_events", regulatoryQuery, "regulatory", datatypes.RiskTypeRegulatory, params, start, severities)
}

// fetchGraded runs one of the three severity-graded table queries. They
// share a column shape, so one scan loop serves all of them.
func (r *RelationalFeatureAdapter) fetchGraded(ctx context.Context, table, query, idPrefix string, riskType datatypes.RiskType, params ProbeParams, start time.Time, severities []string) ([]datatypes.EvidenceItem, error) {
	rows, err := r.pool.Query(ctx, query, params.Ticker, start, severities, params.FetchK)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var items []datatypes.EvidenceItem
	for rows.Next() {
		var (
			id        int64
			ticker    string
			severity  string
			summary   string
			relevance float64
			at        time.Time
		)
		if err := rows.Scan(&id, &ticker, &severity, &summary, &relevance, &at); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}

		item, err := gradedRowEvidence(idPrefix, id, riskType, severity, summary, relevance, at)
		if err != nil {
			slog.Warn("skipping malformed relational row",
				"table", table,
				"id", id,
				"error", err)
			continue
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %w", table, err)
	}
	return items, nil
}

func (r *RelationalFeatureAdapter) fetchSentiment(ctx context.Context, params ProbeParams, start time.Time, _ []string) ([]datatypes.EvidenceItem, error) {
	minMagnitude := minSentimentMagnitude(params.SeverityThreshold)
	rows, err := r.pool.Query(ctx, sentimentQuery, params.Ticker, start, minMagnitude, params.FetchK)
	if err != nil {
		return nil, fmt.Errorf("failed to query ticker_sentiment: %w", err)
	}
	defer rows.Close()

	var items []datatypes.EvidenceItem
	for rows.Next() {
		var (
			id       int64
			ticker   string
			headline string
			score    float64
			at       time.Time
		)
		if err := rows.Scan(&id, &ticker, &headline, &score, &at); err != nil {
			return nil, fmt.Errorf("failed to scan ticker_sentiment row: %w", err)
		}

		item, err := sentimentRowEvidence(id, headline, score, at)
		if err != nil {
			slog.Warn("skipping malformed relational row",
				"table", "ticker_sentiment",
				"id", id,
				"error", err)
			continue
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ticker_sentiment rows: %w", err)
	}
	return items, nil
}

// =============================================================================
// Row Mapping
// =============================================================================

// gradedRowEvidence maps a severity-graded table row onto an
// EvidenceItem. The stored severity string is parsed here so unknown
// grades written by an upstream loader are skipped, not propagated.
func gradedRowEvidence(idPrefix string, id int64, riskType datatypes.RiskType, severity, summary string, relevance float64, at time.Time) (datatypes.EvidenceItem, error) {
	sev, err := datatypes.ParseSeverity(severity)
	if err != nil {
		return datatypes.EvidenceItem{}, err
	}
	sourceID := fmt.Sprintf("%s:%d", idPrefix, id)
	return datatypes.NewEvidenceItem(sourceID, datatypes.SourceRelational, riskType, sev, summary, at, relevance)
}

// sentimentRowEvidence maps a sentiment row onto an EvidenceItem. The
// signed score supplies both the severity grade and the relevance: a
// strongly polarized headline matters more than a neutral one in either
// direction.
func sentimentRowEvidence(id int64, headline string, score float64, at time.Time) (datatypes.EvidenceItem, error) {
	magnitude := score
	if magnitude < 0 {
		magnitude = -magnitude
	}
	if magnitude > 1 {
		magnitude = 1
	}
	sourceID := fmt.Sprintf("sentiment:%d", id)
	return datatypes.NewEvidenceItem(sourceID, datatypes.SourceRelational, datatypes.RiskTypeSentiment, magnitudeSeverity(score), headline, at, magnitude)
}

// magnitudeSeverity grades a signed score by absolute magnitude. Shared
// by sentiment rows and ML signals so both sides agree on what counts
// as a high-severity reading.
func magnitudeSeverity(score float64) datatypes.Severity {
	if score < 0 {
		score = -score
	}
	switch {
	case score >= 0.6:
		return datatypes.SeverityHigh
	case score >= 0.3:
		return datatypes.SeverityMedium
	default:
		return datatypes.SeverityLow
	}
}

// minSentimentMagnitude translates a severity threshold into the
// minimum absolute score a sentiment row needs to clear it. The cut
// points mirror magnitudeSeverity so SQL filtering and in-process
// grading agree.
func minSentimentMagnitude(threshold datatypes.Severity) float64 {
	switch threshold {
	case datatypes.SeverityHigh:
		return 0.6
	case datatypes.SeverityMedium:
		return 0.3
	default:
		return 0
	}
}

// severitiesAtOrAbove expands a threshold into the set of grades that
// satisfy it, for `severity = ANY($n)` conditions. The zero threshold
// yields all grades.
func severitiesAtOrAbove(threshold datatypes.Severity) []string {
	all := []datatypes.Severity{datatypes.SeverityLow, datatypes.SeverityMedium, datatypes.SeverityHigh}
	out := make([]string, 0, len(all))
	for _, sev := range all {
		if threshold == "" || sev.Rank() >= threshold.Rank() {
			out = append(out, string(sev))
		}
	}
	return out
}

var _ EvidenceSource = (*RelationalFeatureAdapter)(nil)
