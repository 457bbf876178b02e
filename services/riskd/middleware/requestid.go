// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the risk daemon.
//
// # Request ID Flow
//
//	Request
//	   │
//	   ▼
//	RequestID middleware
//	   │
//	   ├─► Reuse inbound X-Request-ID, or mint a uuid
//	   │
//	   ├─► Store in Gin context + echo on the response header
//	   │
//	   └─► Handler (retrieves via GetRequestID for log correlation)
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDHeader is the header the request id rides on, both ways.
const RequestIDHeader = "X-Request-ID"

// requestIDKey is the context key for the request id. Typed key string
// prevents collisions with other context values.
const requestIDKey = "aleutian_request_id"

// GetRequestID retrieves the request id from the Gin context. Returns
// the empty string when the RequestID middleware did not run.
func GetRequestID(c *gin.Context) string {
	if v, exists := c.Get(requestIDKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// RequestID creates a middleware that assigns every request an id.
//
// # Description
//
// Reuses the caller's X-Request-ID when one arrives (so ids survive
// proxy hops) and mints a fresh uuid otherwise. The id is stored in the
// Gin context for handlers and echoed on the response so clients can
// quote it in support requests.
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}
