// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"sync"
	"testing"
	"time"
)

// stubLLMClient counts calls and returns a canned response.
type stubLLMClient struct {
	mu       sync.Mutex
	calls    int
	response string
	err      error
}

func (s *stubLLMClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.response, s.err
}

func (s *stubLLMClient) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// TestRateLimitedClient_PassesThrough verifies the wrapper delegates the
// call and returns the backend's response untouched.
func TestRateLimitedClient_PassesThrough(t *testing.T) {
	t.Parallel()

	stub := &stubLLMClient{response: "assessment"}
	client := NewRateLimitedClient(stub, 0, 0)

	out, err := client.Generate(context.Background(), "p", GenerationParams{})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if out != "assessment" {
		t.Errorf("unexpected response: %q", out)
	}
	if stub.callCount() != 1 {
		t.Errorf("expected 1 delegate call, got %d", stub.callCount())
	}
}

// TestRateLimitedClient_BurstAllowsImmediate verifies a full bucket serves
// burst-many calls without waiting.
func TestRateLimitedClient_BurstAllowsImmediate(t *testing.T) {
	t.Parallel()

	stub := &stubLLMClient{response: "ok"}
	client := NewRateLimitedClient(stub, 1, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	for i := 0; i < 3; i++ {
		if _, err := client.Generate(ctx, "p", GenerationParams{}); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}
	if stub.callCount() != 3 {
		t.Errorf("expected 3 delegate calls, got %d", stub.callCount())
	}
}

// TestRateLimitedClient_DeadlineTooShortFailsFast verifies a drained
// bucket plus a tight deadline fails without calling the backend.
func TestRateLimitedClient_DeadlineTooShortFailsFast(t *testing.T) {
	t.Parallel()

	stub := &stubLLMClient{response: "ok"}
	client := NewRateLimitedClient(stub, 1, 1)

	if _, err := client.Generate(context.Background(), "p", GenerationParams{}); err != nil {
		t.Fatalf("first call failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := client.Generate(ctx, "p", GenerationParams{})
	if err == nil {
		t.Fatal("expected rate limiter error")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("limiter should fail fast, took %v", elapsed)
	}
	if stub.callCount() != 1 {
		t.Errorf("delegate should not be called past the limit, got %d calls", stub.callCount())
	}
}

// TestRateLimitedClient_CanceledContext verifies a canceled context never
// reaches the backend.
func TestRateLimitedClient_CanceledContext(t *testing.T) {
	t.Parallel()

	stub := &stubLLMClient{response: "ok"}
	client := NewRateLimitedClient(stub, 1, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Generate(ctx, "p", GenerationParams{}); err == nil {
		t.Fatal("expected error for canceled context")
	}
	if stub.callCount() != 0 {
		t.Errorf("delegate should not be called, got %d calls", stub.callCount())
	}
}

// TestRateLimitedClient_ZeroRPSMeansUnlimited verifies rps <= 0 disables
// limiting entirely.
func TestRateLimitedClient_ZeroRPSMeansUnlimited(t *testing.T) {
	t.Parallel()

	stub := &stubLLMClient{response: "ok"}
	client := NewRateLimitedClient(stub, 0, 1)

	for i := 0; i < 10; i++ {
		if _, err := client.Generate(context.Background(), "p", GenerationParams{}); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}
	if stub.callCount() != 10 {
		t.Errorf("expected 10 delegate calls, got %d", stub.callCount())
	}
}
