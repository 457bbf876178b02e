// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func requestIDRouter(captured *string) *gin.Engine {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/ping", func(c *gin.Context) {
		*captured = GetRequestID(c)
		c.Status(http.StatusOK)
	})
	return r
}

func TestRequestID_MintsWhenAbsent(t *testing.T) {
	var seen string
	r := requestIDRouter(&seen)

	req := httptest.NewRequest("GET", "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if seen == "" {
		t.Fatal("handler saw no request id")
	}
	if _, err := uuid.Parse(seen); err != nil {
		t.Errorf("minted id %q is not a uuid: %v", seen, err)
	}
	if got := w.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header = %q, want %q", got, seen)
	}
}

func TestRequestID_ReusesInbound(t *testing.T) {
	var seen string
	r := requestIDRouter(&seen)

	req := httptest.NewRequest("GET", "/ping", nil)
	req.Header.Set(RequestIDHeader, "edge-7f3a")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if seen != "edge-7f3a" {
		t.Errorf("handler saw %q, want the inbound id", seen)
	}
	if got := w.Header().Get(RequestIDHeader); got != "edge-7f3a" {
		t.Errorf("response header = %q, want the inbound id", got)
	}
}

func TestGetRequestID_WithoutMiddleware(t *testing.T) {
	r := gin.New()
	var seen string
	r.GET("/bare", func(c *gin.Context) {
		seen = GetRequestID(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/bare", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "" {
		t.Errorf("GetRequestID = %q, want empty without the middleware", seen)
	}
}
