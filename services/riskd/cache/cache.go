// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides the shared response cache for the risk service.
//
// Three payload classes are cached, each under its own key prefix and
// TTL: full assessments, ML signal sets, and vector search result sets
// (see keys.go). Two backends implement the Store interface: Redis for
// multi-instance deployments and embedded BadgerDB for single-node and
// test use. TTL expiry is the only eviction policy.
//
// The cache is strictly best-effort. A backend failure reads as a miss
// and the request proceeds uncached; the orchestrator attaches a
// warning instead of failing the request.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Store is a raw byte cache with per-entry TTLs.
//
// # Description
//
// Writes are last-write-wins per key: payloads are fully computed
// before Set is called, so concurrent writers never interleave partial
// state. Readers observe either a fully written value or a miss.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the payload cached under key. A missing or expired
	// key is (nil, false, nil); the error is reserved for backend
	// failures.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores payload under key until ttl elapses.
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error

	// Close releases the backing store.
	Close() error
}

// NoopStore is the disabled-cache backend: every Get misses and every
// Set drops. Requests proceed uncached without errors.
type NoopStore struct{}

// Get always misses.
func (NoopStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, nil
}

// Set silently drops the payload.
func (NoopStore) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	return nil
}

// Close is a no-op.
func (NoopStore) Close() error { return nil }

var _ Store = NoopStore{}

// GetJSON fetches the payload cached under key and decodes it into T.
//
// # Description
//
// A payload that fails to decode reads as a miss rather than an error:
// a poisoned entry must never break a request, it just forces a
// recompute that overwrites it.
//
// # Outputs
//
//   - *T: The decoded value, nil on miss
//   - bool: Whether a decodable payload was found
//   - error: Non-nil only for backend failures
func GetJSON[T any](ctx context.Context, store Store, key string) (*T, bool, error) {
	payload, hit, err := store.Get(ctx, key)
	if err != nil || !hit {
		return nil, false, err
	}

	var value T
	if err := json.Unmarshal(payload, &value); err != nil {
		slog.Warn("cache payload failed to decode, treating as miss",
			"key", key,
			"error", err)
		return nil, false, nil
	}
	return &value, true, nil
}

// SetJSON encodes value as JSON and stores it under key.
func SetJSON(ctx context.Context, store Store, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}
	return store.Set(ctx, key, payload, ttl)
}
