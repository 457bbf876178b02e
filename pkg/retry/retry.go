// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retry provides a bounded retry policy with exponential backoff.
//
// Callers that talk to flaky collaborators (LLM backends, evidence stores)
// share one policy object instead of hand-rolling per-call retry loops. The
// policy is context-aware: waits between attempts abort as soon as the
// caller's deadline fires.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Policy bounds a retryable operation.
//
// # Description
//
// A Policy describes how many times an operation may run and how long to
// wait between attempts. Delays grow by Multiplier after every failed
// attempt and are capped at MaxDelay. The zero value is not usable; start
// from DefaultPolicy() and override fields as needed.
//
// # Fields
//
//   - MaxAttempts: Total attempts including the first. Values < 1 are
//     treated as 1 (no retries).
//   - InitialDelay: Wait before the first retry. Zero means retry
//     immediately.
//   - MaxDelay: Upper bound on the grown delay. Zero means uncapped.
//   - Multiplier: Delay growth factor per attempt. Values <= 1 keep the
//     delay constant.
//
// # Thread Safety
//
// Policy is an immutable value type; copies are safe to share.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultPolicy returns the policy used by most collaborator calls:
// 3 attempts, 100ms initial delay doubling to a 2s cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryableFunc reports whether an error is worth another attempt.
// A nil RetryableFunc retries every error.
type RetryableFunc func(error) bool

// Do runs op under the policy until it succeeds, fails permanently, or the
// context ends.
//
// # Description
//
// The first attempt runs immediately. After a failed attempt, Do consults
// retryable (nil means always retry); a permanent error is returned as-is.
// Between attempts Do waits with the current delay, aborting with ctx.Err()
// if the context is done first. When all attempts are exhausted, the last
// error is returned wrapped with the attempt count.
//
// # Inputs
//
//   - ctx: Cancels waits between attempts. Op receives the same context and
//     is expected to honor it.
//   - op: The operation. Must be safe to invoke repeatedly.
//   - retryable: Optional classifier; return false to stop retrying.
//
// # Outputs
//
//   - error: Nil on success; the permanent error; ctx.Err(); or the last
//     error wrapped after exhaustion.
func (p Policy) Do(ctx context.Context, op func(context.Context) error, retryable RetryableFunc) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, retryable)
	return err
}

// DoValue is Do for operations that produce a value.
//
// On failure the zero value of T is returned alongside the error.
func DoValue[T any](ctx context.Context, p Policy, op func(context.Context) (T, error), retryable RetryableFunc) (T, error) {
	var zero T

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := p.InitialDelay

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			slog.Debug("Retrying operation",
				"attempt", attempt,
				"delay", delay,
				"lastError", lastErr,
			)

			if delay > 0 {
				select {
				case <-ctx.Done():
					return zero, ctx.Err()
				case <-time.After(delay):
				}
			}

			if p.Multiplier > 1 {
				delay = time.Duration(float64(delay) * p.Multiplier)
				if p.MaxDelay > 0 && delay > p.MaxDelay {
					delay = p.MaxDelay
				}
			}
		}

		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if retryable != nil && !retryable(err) {
			return zero, err
		}
	}

	return zero, fmt.Errorf("operation failed after %d attempts: %w", attempts, lastErr)
}
