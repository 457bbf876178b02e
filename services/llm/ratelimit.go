// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedClient wraps a backend with a token-bucket limiter.
//
// # Description
//
// Assessment retries and concurrent requests can stack LLM calls faster
// than a local model or a hosted quota tolerates. The limiter makes every
// caller wait its turn; a caller whose context deadline cannot cover the
// wait fails immediately without consuming a slot, which is what the
// assessment path wants under its global deadline.
//
// # Thread Safety
//
// RateLimitedClient is safe for concurrent use.
type RateLimitedClient struct {
	delegate LLMClient
	limiter  *rate.Limiter
}

// NewRateLimitedClient wraps delegate at rps requests per second with the
// given burst. rps <= 0 disables limiting; burst is floored at 1.
func NewRateLimitedClient(delegate LLMClient, rps float64, burst int) *RateLimitedClient {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedClient{
		delegate: delegate,
		limiter:  rate.NewLimiter(limit, burst),
	}
}

// Generate implements the LLMClient interface
func (c *RateLimitedClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm rate limiter: %w", err)
	}
	return c.delegate.Generate(ctx, prompt, params)
}

var _ LLMClient = (*RateLimitedClient)(nil)
