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
	"os"
	"testing"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianRisk/services/riskd/cache"
	"github.com/AleutianAI/AleutianRisk/services/riskd/datatypes"
)

// =============================================================================
// Test Fixtures
// =============================================================================

// bars builds an hourly series ending just before ref.
func bars(ref time.Time, closes, volumes []float64) []pricePoint {
	points := make([]pricePoint, len(closes))
	for i := range closes {
		points[i] = pricePoint{
			Time:   ref.Add(-time.Duration(len(closes)-i) * time.Hour),
			Close:  closes[i],
			Volume: volumes[i],
		}
	}
	return points
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func signalByType(t *testing.T, signals []datatypes.MLSignal, st datatypes.SignalType) datatypes.MLSignal {
	t.Helper()
	for _, sig := range signals {
		if sig.SignalType == st {
			return sig
		}
	}
	t.Fatalf("signal %s not computed", st)
	return datatypes.MLSignal{}
}

var signalTestRef = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

// =============================================================================
// Flux Query
// =============================================================================

func TestBuildPriceHistoryFlux_QueryCorrectness(t *testing.T) {
	start := time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)
	flux := buildPriceHistoryFlux("financial-data", "NVDA", start)

	assert.Contains(t, flux, `from(bucket: "financial-data")`)
	assert.Contains(t, flux, "range(start: 2026-03-11T12:00:00Z)")
	assert.Contains(t, flux, `r._measurement == "stock_prices"`)
	assert.Contains(t, flux, `r.ticker == "NVDA"`)
	assert.Contains(t, flux, `r._field == "close" or r._field == "volume"`)
	assert.Contains(t, flux, `pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")`)
	assert.Contains(t, flux, `sort(columns: ["_time"])`)
}

// =============================================================================
// Signal Math
// =============================================================================

func TestComputeSignals_TooFewPointsYieldsNone(t *testing.T) {
	points := bars(signalTestRef, repeat(100, 7), repeat(1e6, 7))
	assert.Nil(t, computeSignals("NVDA", points, signalTestRef))
}

func TestComputeSignals_FlatSeriesIsQuiet(t *testing.T) {
	points := bars(signalTestRef, repeat(100, 24), repeat(1e6, 24))
	signals := computeSignals("NVDA", points, signalTestRef)
	require.Len(t, signals, 3)

	assert.Zero(t, signalByType(t, signals, datatypes.SignalAnomaly).Value)
	assert.Zero(t, signalByType(t, signals, datatypes.SignalSentiment).Value)
	assert.Zero(t, signalByType(t, signals, datatypes.SignalLiquidity).Value)

	for _, sig := range signals {
		assert.Equal(t, "NVDA", sig.Ticker)
		assert.Equal(t, signalTestRef, sig.ComputedAt)
		assert.InDelta(t, 0.8, sig.Confidence, 1e-9) // 24 of 30 bars
	}
}

func TestComputeSignals_VolatilitySpikeRaisesAnomaly(t *testing.T) {
	closes := make([]float64, 0, 24)
	for i := 0; i < 18; i++ {
		if i%2 == 0 {
			closes = append(closes, 100.0)
		} else {
			closes = append(closes, 100.1)
		}
	}
	closes = append(closes, 100, 106, 98, 107, 97, 108)
	points := bars(signalTestRef, closes, repeat(1e6, len(closes)))

	signals := computeSignals("NVDA", points, signalTestRef)
	anomaly := signalByType(t, signals, datatypes.SignalAnomaly)

	assert.Greater(t, anomaly.Value, 0.5)
}

func TestComputeSignals_DowntrendReadsBearish(t *testing.T) {
	closes := make([]float64, 0, 24)
	for i := 0; i < 18; i++ {
		if i%2 == 0 {
			closes = append(closes, 100.0)
		} else {
			closes = append(closes, 100.1)
		}
	}
	last := closes[len(closes)-1]
	for i := 0; i < 6; i++ {
		last *= 0.98
		closes = append(closes, last)
	}
	points := bars(signalTestRef, closes, repeat(1e6, len(closes)))

	signals := computeSignals("NVDA", points, signalTestRef)
	sentiment := signalByType(t, signals, datatypes.SignalSentiment)

	assert.Less(t, sentiment.Value, -0.5)
}

func TestComputeSignals_VolumeCollapseRaisesLiquidityStress(t *testing.T) {
	volumes := append(repeat(1e6, 18), repeat(2e5, 6)...)
	points := bars(signalTestRef, repeat(100, 24), volumes)

	signals := computeSignals("NVDA", points, signalTestRef)
	liquidity := signalByType(t, signals, datatypes.SignalLiquidity)

	assert.InDelta(t, 0.8, liquidity.Value, 1e-9)
}

func TestAnomalyScore_Bounds(t *testing.T) {
	assert.Equal(t, 0.0, anomalyScore(0, 0))
	assert.Equal(t, 1.0, anomalyScore(0, 0.1))
	assert.Equal(t, 0.0, anomalyScore(0.01, 0.01))
	assert.InDelta(t, 0.5, anomalyScore(0.01, 0.02), 1e-9)
	assert.Equal(t, 1.0, anomalyScore(0.01, 0.05))
}

func TestSentimentScore_ZeroVolatilityBaseline(t *testing.T) {
	assert.Equal(t, 1.0, sentimentScore(0.01, 0))
	assert.Equal(t, -1.0, sentimentScore(-0.01, 0))
	assert.Equal(t, 0.0, sentimentScore(0, 0))
}

func TestLiquidityScore_RisingVolumeReadsZero(t *testing.T) {
	assert.Equal(t, 0.0, liquidityScore(0, 500))
	assert.Equal(t, 0.0, liquidityScore(100, 150))
	assert.InDelta(t, 0.75, liquidityScore(100, 25), 1e-9)
}

// =============================================================================
// Evidence Mapping
// =============================================================================

func TestSignalEvidence_MapsSignals(t *testing.T) {
	signals := []datatypes.MLSignal{
		{Ticker: "NVDA", SignalType: datatypes.SignalAnomaly, Value: 0.9, Confidence: 0.8, ComputedAt: signalTestRef},
		{Ticker: "NVDA", SignalType: datatypes.SignalSentiment, Value: -0.4, Confidence: 0.8, ComputedAt: signalTestRef},
		{Ticker: "NVDA", SignalType: datatypes.SignalLiquidity, Value: 0.1, Confidence: 0.8, ComputedAt: signalTestRef},
	}

	items := signalEvidence(signals)
	require.Len(t, items, 3)

	assert.Equal(t, "anomaly_score:NVDA", items[0].SourceID)
	assert.Equal(t, datatypes.RiskTypeTechnical, items[0].RiskType)
	assert.Equal(t, datatypes.SeverityHigh, items[0].Severity)
	assert.InDelta(t, 0.9, items[0].RawRelevance, 1e-9)

	assert.Equal(t, "sentiment_score:NVDA", items[1].SourceID)
	assert.Equal(t, datatypes.RiskTypeSentiment, items[1].RiskType)
	assert.Equal(t, datatypes.SeverityMedium, items[1].Severity)
	assert.InDelta(t, 0.4, items[1].RawRelevance, 1e-9)

	assert.Equal(t, "liquidity_score:NVDA", items[2].SourceID)
	assert.Equal(t, datatypes.RiskTypeLiquidity, items[2].RiskType)
	assert.Equal(t, datatypes.SeverityLow, items[2].Severity)

	for _, item := range items {
		assert.Equal(t, datatypes.SourceMLSignals, item.Source)
		assert.Equal(t, signalTestRef, item.Timestamp)
	}
}

// =============================================================================
// Adapter Behavior
// =============================================================================

func TestMLSignalAdapter_Name(t *testing.T) {
	adapter := NewMLSignalAdapter(nil, "financial-data", nil)
	assert.Equal(t, datatypes.SourceMLSignals, adapter.Name())
}

func TestMLSignalAdapter_Fetch_MarketWideYieldsNothing(t *testing.T) {
	adapter := NewMLSignalAdapter(nil, "financial-data", nil)

	items, err := adapter.Fetch(context.Background(), ProbeParams{
		Window:    72 * time.Hour,
		FetchK:    10,
		Reference: signalTestRef,
	})

	require.NoError(t, err)
	assert.Empty(t, items)
}

// TestMLSignalAdapter_Fetch_RejectsUnsafeTicker verifies the flux
// safety check fires before any query is built. The nil runner would
// panic if the adapter got that far.
func TestMLSignalAdapter_Fetch_RejectsUnsafeTicker(t *testing.T) {
	adapter := NewMLSignalAdapter(nil, "financial-data", nil)

	_, err := adapter.Fetch(context.Background(), ProbeParams{
		Ticker:    `AAPL"; drop`,
		Window:    72 * time.Hour,
		FetchK:    10,
		Reference: signalTestRef,
	})

	require.Error(t, err)
	serr, ok := AsSourceError(err)
	require.True(t, ok)
	assert.False(t, serr.Retryable)
}

func seedSignalCache(t *testing.T, store cache.Store, ticker string, window time.Duration, signals []datatypes.MLSignal) {
	t.Helper()
	key := cache.MLSignalsKey(ticker, window)
	require.NoError(t, cache.SetJSON(context.Background(), store, key, signals, time.Minute))
}

func TestMLSignalAdapter_SignalsFor_ServesFromCache(t *testing.T) {
	store, err := cache.NewInMemoryBadgerStore()
	require.NoError(t, err)
	defer store.Close()

	seeded := []datatypes.MLSignal{
		{Ticker: "NVDA", SignalType: datatypes.SignalAnomaly, Value: 0.9, Confidence: 0.8, ComputedAt: signalTestRef},
	}
	seedSignalCache(t, store, "NVDA", 72*time.Hour, seeded)

	adapter := NewMLSignalAdapter(nil, "financial-data", store)
	got, err := adapter.SignalsFor(context.Background(), "NVDA", 72*time.Hour, signalTestRef)

	require.NoError(t, err)
	assert.Equal(t, seeded, got)
}

func TestMLSignalAdapter_Fetch_FiltersCachedSignals(t *testing.T) {
	store, err := cache.NewInMemoryBadgerStore()
	require.NoError(t, err)
	defer store.Close()

	seedSignalCache(t, store, "NVDA", 72*time.Hour, []datatypes.MLSignal{
		{Ticker: "NVDA", SignalType: datatypes.SignalAnomaly, Value: 0.9, Confidence: 0.8, ComputedAt: signalTestRef},
		{Ticker: "NVDA", SignalType: datatypes.SignalSentiment, Value: -0.9, Confidence: 0.8, ComputedAt: signalTestRef},
		{Ticker: "NVDA", SignalType: datatypes.SignalLiquidity, Value: 0.35, Confidence: 0.8, ComputedAt: signalTestRef},
	})

	adapter := NewMLSignalAdapter(nil, "financial-data", store)
	items, err := adapter.Fetch(context.Background(), ProbeParams{
		Ticker:            "NVDA",
		Window:            72 * time.Hour,
		SeverityThreshold: datatypes.SeverityMedium,
		FetchK:            10,
		SignalTypes:       []datatypes.SignalType{datatypes.SignalAnomaly, datatypes.SignalLiquidity},
		Reference:         signalTestRef,
	})
	require.NoError(t, err)

	// Sentiment is excluded by type, the rest clear the medium threshold.
	require.Len(t, items, 2)
	assert.Equal(t, "anomaly_score:NVDA", items[0].SourceID)
	assert.Equal(t, "liquidity_score:NVDA", items[1].SourceID)
}

// =============================================================================
// Integration
// =============================================================================

// TestMLSignalAdapter_SignalsFor_Integration exercises the full
// InfluxDB round trip against a live instance.
//
// Run with: RUN_INTEGRATION_TESTS=1 go test ./services/riskd/sources/
func TestMLSignalAdapter_SignalsFor_Integration(t *testing.T) {
	if os.Getenv("RUN_INTEGRATION_TESTS") == "" {
		t.Skip("Skipping integration test: RUN_INTEGRATION_TESTS not set")
	}

	url := os.Getenv("INFLUXDB_URL")
	if url == "" {
		url = "http://localhost:12130"
	}
	org := os.Getenv("INFLUXDB_ORG")
	if org == "" {
		org = "aleutian-finance"
	}
	bucket := os.Getenv("INFLUXDB_BUCKET")
	if bucket == "" {
		bucket = "financial-data"
	}

	client := influxdb2.NewClient(url, os.Getenv("INFLUXDB_TOKEN"))
	defer client.Close()

	adapter := NewMLSignalAdapter(client.QueryAPI(org), bucket, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	signals, err := adapter.SignalsFor(ctx, "AAPL", 72*time.Hour, time.Now().UTC())
	require.NoError(t, err)
	assert.LessOrEqual(t, len(signals), 3)
}
