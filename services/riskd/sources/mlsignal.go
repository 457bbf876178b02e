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
	"math"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/AleutianAI/AleutianRisk/pkg/validation"
	"github.com/AleutianAI/AleutianRisk/services/riskd/cache"
	"github.com/AleutianAI/AleutianRisk/services/riskd/datatypes"
	"github.com/AleutianAI/AleutianRisk/services/riskd/observability"
)

// priceMeasurement is the InfluxDB measurement holding OHLC bars.
const priceMeasurement = "stock_prices"

// minSignalPoints is the fewest price bars the signal math accepts.
// Below this the split into baseline and recent segments is too thin to
// mean anything, so the adapter reports no signals rather than noisy
// ones.
const minSignalPoints = 8

// FluxRunner executes a Flux query. Satisfied by api.QueryAPI; narrowed
// so tests can drive the adapter without an InfluxDB instance.
type FluxRunner interface {
	Query(ctx context.Context, query string) (*api.QueryTableResult, error)
}

// =============================================================================
// ML Signal Adapter
// =============================================================================

// MLSignalAdapter computes numeric risk signals from recent price and
// volume history in InfluxDB.
//
// # Description
//
// Fetches OHLC bars for the probe window, then derives three signals in
// process: a volatility anomaly score, a price-drift sentiment score,
// and a liquidity stress score. Each signal doubles as one evidence
// item. Signals are cached per (ticker, window) under a short TTL
// because they move faster than assessments do.
//
// Signals are inherently per-ticker: a market-wide probe (empty ticker)
// yields no signals and no error.
//
// # Thread Safety
//
// Safe for concurrent use; the adapter holds no mutable state.
type MLSignalAdapter struct {
	runner FluxRunner
	bucket string
	store  cache.Store
}

// NewMLSignalAdapter creates an adapter over the given query API and
// bucket. A nil store disables signal caching.
func NewMLSignalAdapter(runner FluxRunner, bucket string, store cache.Store) *MLSignalAdapter {
	if store == nil {
		store = cache.NoopStore{}
	}
	return &MLSignalAdapter{runner: runner, bucket: bucket, store: store}
}

// Name returns the source identifier recorded on signal evidence.
func (m *MLSignalAdapter) Name() string {
	return datatypes.SourceMLSignals
}

// Fetch computes the probe's signals and maps them onto evidence items.
//
// # Outputs
//
//   - []datatypes.EvidenceItem: One item per requested signal type,
//     filtered by the severity threshold
//   - error: A *SourceError on query failure
func (m *MLSignalAdapter) Fetch(ctx context.Context, params ProbeParams) ([]datatypes.EvidenceItem, error) {
	if params.Ticker == "" {
		return nil, nil
	}

	signals, _, err := m.signals(ctx, params.Ticker, params.Window, params.Reference)
	if err != nil {
		return nil, err
	}

	wanted := make([]datatypes.MLSignal, 0, len(signals))
	for _, sig := range signals {
		if params.WantsSignal(sig.SignalType) {
			wanted = append(wanted, sig)
		}
	}

	items := signalEvidence(wanted)
	items = datatypes.FilterBySeverity(items, params.SeverityThreshold)
	if len(items) > params.FetchK {
		items = items[:params.FetchK]
	}
	return items, nil
}

// SignalsFor returns the raw signal set for a ticker, serving the
// orchestrator's confidence input and the prompt's signal section.
func (m *MLSignalAdapter) SignalsFor(ctx context.Context, ticker string, window time.Duration, ref time.Time) ([]datatypes.MLSignal, error) {
	sigs, _, err := m.SignalSnapshot(ctx, ticker, window, ref)
	return sigs, err
}

// SignalSnapshot returns the signal set plus whether it was served from
// cache, for the read endpoint that surfaces freshness to callers.
func (m *MLSignalAdapter) SignalSnapshot(ctx context.Context, ticker string, window time.Duration, ref time.Time) ([]datatypes.MLSignal, bool, error) {
	if ticker == "" {
		return nil, false, nil
	}
	return m.signals(ctx, ticker, window, ref)
}

// signals returns the cached or freshly computed signal set; the bool
// reports a cache hit.
func (m *MLSignalAdapter) signals(ctx context.Context, ticker string, window time.Duration, ref time.Time) ([]datatypes.MLSignal, bool, error) {
	key := cache.MLSignalsKey(ticker, window)

	cached, hit, err := cache.GetJSON[[]datatypes.MLSignal](ctx, m.store, key)
	if err != nil {
		slog.Warn("signal cache read failed, querying influxdb",
			"error", err)
	} else if met := observability.DefaultMetrics; met != nil {
		met.RecordCacheLookup(observability.ArtifactMLSignals, hit)
	}
	if hit {
		slog.Debug("signal cache hit", "ticker", ticker, "signals", len(*cached))
		return *cached, true, nil
	}

	// Revalidate before Flux interpolation. The HTTP layer sanitizes
	// tickers already, but this adapter is also reachable from the CLI
	// path and the query string is built by concatenation.
	if err := validation.ValidateTicker(ticker); err != nil {
		return nil, false, &SourceError{
			Source:    datatypes.SourceMLSignals,
			Reason:    fmt.Sprintf("ticker failed flux safety check: %v", err),
			Retryable: false,
		}
	}

	points, err := m.fetchPriceHistory(ctx, ticker, ref.Add(-window))
	if err != nil {
		return nil, false, WrapSourceError(datatypes.SourceMLSignals, err)
	}

	signals := computeSignals(ticker, points, ref)

	if err := cache.SetJSON(ctx, m.store, key, signals, cache.TTLMLSignals); err != nil {
		slog.Warn("signal cache write failed",
			"error", err)
	}
	return signals, false, nil
}

// pricePoint is one pivoted OHLC row from InfluxDB.
type pricePoint struct {
	Time   time.Time
	Close  float64
	Volume float64
}

// fetchPriceHistory queries close and volume bars since start.
func (m *MLSignalAdapter) fetchPriceHistory(ctx context.Context, ticker string, start time.Time) ([]pricePoint, error) {
	flux := buildPriceHistoryFlux(m.bucket, ticker, start)

	result, err := m.runner.Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("influxdb query failed: %w", err)
	}

	var points []pricePoint
	for result.Next() {
		record := result.Record()

		closeVal, ok := record.ValueByKey("close").(float64)
		if !ok {
			continue
		}
		volume, _ := record.ValueByKey("volume").(float64)

		points = append(points, pricePoint{
			Time:   record.Time(),
			Close:  closeVal,
			Volume: volume,
		})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("influxdb result error: %w", err)
	}
	return points, nil
}

// buildPriceHistoryFlux assembles the Flux query for a ticker's bars.
// The ticker MUST be validated before this runs; it is interpolated
// into the query string.
func buildPriceHistoryFlux(bucket, ticker string, start time.Time) string {
	return fmt.Sprintf(`from(bucket: %q)
  |> range(start: %s)
  |> filter(fn: (r) => r._measurement == %q and r.ticker == %q)
  |> filter(fn: (r) => r._field == "close" or r._field == "volume")
  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")
  |> sort(columns: ["_time"])`,
		bucket, start.UTC().Format(time.RFC3339), priceMeasurement, ticker)
}

// =============================================================================
// Signal Math
// =============================================================================

// computeSignals derives the three risk signals from a bar series.
//
// # Description
//
// The series splits into a baseline (first three quarters) and a recent
// segment (last quarter). Each signal compares recent behavior against
// the baseline:
//
//   - anomaly_score: how far recent return volatility exceeds baseline
//     volatility, folded into [0,1]
//   - sentiment_score: recent mean return expressed as a z-score
//     against baseline volatility, squashed into [-1,1]
//   - liquidity_score: fractional collapse of recent volume versus
//     baseline volume, in [0,1]
//
// Fewer than minSignalPoints bars yields no signals and no error:
// absence of data is not a source failure, and the downstream
// confidence score already discounts thin evidence.
func computeSignals(ticker string, points []pricePoint, ref time.Time) []datatypes.MLSignal {
	if len(points) < minSignalPoints {
		return nil
	}

	returns := barReturns(points)
	splitAt := len(returns) * 3 / 4
	baselineVol := stddev(returns[:splitAt])
	recentVol := stddev(returns[splitAt:])
	recentMean := mean(returns[splitAt:])

	volSplit := len(points) * 3 / 4
	baselineVolume := meanVolume(points[:volSplit])
	recentVolume := meanVolume(points[volSplit:])

	coverage := math.Min(1, float64(len(points))/30.0)

	return []datatypes.MLSignal{
		{
			Ticker:     ticker,
			SignalType: datatypes.SignalAnomaly,
			Value:      anomalyScore(baselineVol, recentVol),
			Confidence: coverage,
			ComputedAt: ref,
		},
		{
			Ticker:     ticker,
			SignalType: datatypes.SignalSentiment,
			Value:      sentimentScore(recentMean, baselineVol),
			Confidence: coverage,
			ComputedAt: ref,
		},
		{
			Ticker:     ticker,
			SignalType: datatypes.SignalLiquidity,
			Value:      liquidityScore(baselineVolume, recentVolume),
			Confidence: coverage,
			ComputedAt: ref,
		},
	}
}

// anomalyScore folds the volatility ratio into [0,1]. Recent volatility
// at or below baseline reads as zero; triple the baseline saturates.
func anomalyScore(baselineVol, recentVol float64) float64 {
	if baselineVol <= 0 {
		if recentVol > 0 {
			return 1
		}
		return 0
	}
	return clamp01((recentVol/baselineVol - 1) / 2)
}

// sentimentScore squashes the recent drift z-score into [-1,1] with
// tanh. Negative drift is bearish sentiment.
func sentimentScore(recentMean, baselineVol float64) float64 {
	if baselineVol <= 0 {
		if recentMean > 0 {
			return 1
		}
		if recentMean < 0 {
			return -1
		}
		return 0
	}
	return math.Tanh(recentMean / baselineVol)
}

// liquidityScore measures volume collapse: 0 means recent volume holds
// the baseline level, 1 means it vanished. Rising volume is not a
// liquidity risk and reads as zero.
func liquidityScore(baselineVolume, recentVolume float64) float64 {
	if baselineVolume <= 0 {
		return 0
	}
	return clamp01(1 - recentVolume/baselineVolume)
}

// barReturns computes simple per-bar returns, skipping zero closes.
func barReturns(points []pricePoint) []float64 {
	returns := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		prev := points[i-1].Close
		if prev == 0 {
			continue
		}
		returns = append(returns, (points[i].Close-prev)/prev)
	}
	return returns
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}

func meanVolume(points []pricePoint) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += p.Volume
	}
	return sum / float64(len(points))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// =============================================================================
// Evidence Mapping
// =============================================================================

// signalEvidence maps signals onto evidence items. The signal magnitude
// supplies both the severity grade and the raw relevance, so a flat
// signal scores itself out of the ranking instead of needing a
// threshold here.
func signalEvidence(signals []datatypes.MLSignal) []datatypes.EvidenceItem {
	items := make([]datatypes.EvidenceItem, 0, len(signals))
	for _, sig := range signals {
		item, err := datatypes.NewEvidenceItem(
			fmt.Sprintf("%s:%s", sig.SignalType, sig.Ticker),
			datatypes.SourceMLSignals,
			sig.RiskType(),
			magnitudeSeverity(sig.NormalizedMagnitude()),
			signalSnippet(sig),
			sig.ComputedAt,
			sig.NormalizedMagnitude(),
		)
		if err != nil {
			slog.Warn("skipping unmappable signal",
				"signal_type", sig.SignalType,
				"error", err)
			continue
		}
		items = append(items, item)
	}
	return items
}

// signalSnippet renders a signal as the one-line fact shown to the LLM.
func signalSnippet(sig datatypes.MLSignal) string {
	switch sig.SignalType {
	case datatypes.SignalSentiment:
		return fmt.Sprintf("%s price-drift sentiment %.2f (negative is bearish)", sig.Ticker, sig.Value)
	case datatypes.SignalLiquidity:
		return fmt.Sprintf("%s liquidity stress %.2f (recent volume vs baseline)", sig.Ticker, sig.Value)
	default:
		return fmt.Sprintf("%s volatility anomaly %.2f (recent vs baseline volatility)", sig.Ticker, sig.Value)
	}
}

var _ EvidenceSource = (*MLSignalAdapter)(nil)
