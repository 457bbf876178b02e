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
	"net/http"

	"github.com/gin-gonic/gin"
)

// BackendStatus reports which backends this deployment wired in. It is
// computed once at startup: a false flag means the backend was never
// configured, not that a configured backend is down.
type BackendStatus struct {
	VectorSearch bool `json:"vector_search"`
	Relational   bool `json:"relational_features"`
	MLSignals    bool `json:"ml_signals"`
	Cache        bool `json:"cache"`
	LLM          bool `json:"llm"`
}

// HealthResponse is the GET /healthz response body.
type HealthResponse struct {
	Status   string        `json:"status"`
	Version  string        `json:"version"`
	Backends BackendStatus `json:"backends"`
}

// HandleHealth handles GET /healthz. Always 200 while the process is
// serving; orchestration layers read the backend flags for topology.
func HandleHealth(version string, backends BackendStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  version,
			Backends: backends,
		})
	}
}
