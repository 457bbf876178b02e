// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gin HTTP handlers for the risk daemon.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianRisk/services/riskd/datatypes"
	"github.com/AleutianAI/AleutianRisk/services/riskd/observability"
	"github.com/AleutianAI/AleutianRisk/services/riskd/services"
)

var assessTracer = otel.Tracer("aleutian.riskd.handlers")

// Assessor answers risk questions. Satisfied by
// *services.AssessmentService; narrowed so handler tests can script the
// pipeline without standing up its backends.
type Assessor interface {
	Assess(ctx context.Context, req *datatypes.AssessRequest) (*datatypes.RiskAssessment, error)
}

// HandleAssess handles POST /api/v1/risk/assess.
//
// Status mapping:
//
//	200 - assessment produced (inspect warnings for degradation)
//	400 - malformed body or failed validation
//	503 - no evidence from any source and nothing cached
//	500 - anything else escaping the pipeline
func HandleAssess(svc Assessor) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		ctx, span := assessTracer.Start(c.Request.Context(), "HandleAssess")
		defer span.End()

		// The classified mode lives inside the service; the metric label
		// reflects what the caller pinned, or "auto".
		modeLabel := "auto"
		success := false
		defer func() {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordRequest(modeLabel, success, time.Since(startTime).Seconds())
			}
		}()

		var req datatypes.AssessRequest
		if err := c.BindJSON(&req); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "invalid request body")
			slog.Error("Failed to parse assess request", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.Mode != "" {
			modeLabel = req.Mode
		}

		if err := req.Validate(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "validation failed")
			slog.Warn("Assess request failed validation", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		span.SetAttributes(
			attribute.String("request.ticker", req.Ticker),
			attribute.String("request.mode", req.Mode),
			attribute.Int("request.window_hours", req.WindowHours),
		)

		assessment, err := svc.Assess(ctx, &req)
		if err != nil {
			span.RecordError(err)
			switch {
			case datatypes.IsValidationError(err):
				span.SetStatus(codes.Error, "validation failed")
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			case errors.Is(err, services.ErrNoEvidence):
				span.SetStatus(codes.Error, "no evidence available")
				slog.Warn("No evidence for assess request", "ticker", req.Ticker)
				c.Header("Retry-After", "5")
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			default:
				span.SetStatus(codes.Error, err.Error())
				slog.Error("Assessment failed", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "assessment failed"})
			}
			return
		}

		span.SetAttributes(
			attribute.String("response.risk_level", string(assessment.RiskLevel)),
			attribute.Float64("response.confidence", assessment.Confidence),
			attribute.Bool("response.cached", assessment.Cached),
			attribute.Int("response.warnings", len(assessment.Warnings)),
		)
		success = true
		c.JSON(http.StatusOK, assessment)
	}
}
