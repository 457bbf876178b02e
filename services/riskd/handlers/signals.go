// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianRisk/pkg/validation"
	"github.com/AleutianAI/AleutianRisk/services/riskd/datatypes"
	"github.com/AleutianAI/AleutianRisk/services/riskd/sources"
)

var signalsTracer = otel.Tracer("aleutian.riskd.handlers")

// defaultSignalWindowHours is the lookback when the caller omits
// window_hours.
const defaultSignalWindowHours = 72

// SignalReader serves the raw signal read path. Satisfied by
// *sources.MLSignalAdapter.
type SignalReader interface {
	SignalSnapshot(ctx context.Context, ticker string, window time.Duration, ref time.Time) ([]datatypes.MLSignal, bool, error)
}

// SignalsResponse is the GET /api/v1/risk/signals/:ticker response body.
type SignalsResponse struct {
	Ticker      string               `json:"ticker"`
	WindowHours int                  `json:"window_hours"`
	Signals     []datatypes.MLSignal `json:"signals"`
	Cached      bool                 `json:"cached"`
}

// HandleSignals handles GET /api/v1/risk/signals/:ticker.
//
// Status mapping:
//
//	200 - signal set returned (may be empty for thin price history)
//	400 - bad ticker or window_hours
//	503 - the signal backend is unreachable
func HandleSignals(reader SignalReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := signalsTracer.Start(c.Request.Context(), "HandleSignals")
		defer span.End()

		ticker, err := validation.SanitizeTicker(c.Param("ticker"))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid ticker")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		windowHours := defaultSignalWindowHours
		if raw := c.Query("window_hours"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "window_hours must be a positive integer"})
				return
			}
			if err := validation.ValidateWindowHours(parsed); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			windowHours = parsed
		}

		span.SetAttributes(
			attribute.String("request.ticker", ticker),
			attribute.Int("request.window_hours", windowHours),
		)

		window := time.Duration(windowHours) * time.Hour
		signals, cached, err := reader.SignalSnapshot(ctx, ticker, window, time.Now().UTC())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "signal computation failed")
			slog.Error("Signal fetch failed", "ticker", ticker, "error", err)
			if _, ok := sources.AsSourceError(err); ok {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			} else {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "signal computation failed"})
			}
			return
		}
		if signals == nil {
			signals = []datatypes.MLSignal{}
		}

		span.SetAttributes(
			attribute.Int("response.signals", len(signals)),
			attribute.Bool("response.cached", cached),
		)
		c.JSON(http.StatusOK, SignalsResponse{
			Ticker:      ticker,
			WindowHours: windowHours,
			Signals:     signals,
			Cached:      cached,
		})
	}
}
