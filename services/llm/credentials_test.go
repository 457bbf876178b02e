// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// TestSealFromEnv_WipesEnvironment verifies the key is readable through
// Use and gone from the environment after sealing.
func TestSealFromEnv_WipesEnvironment(t *testing.T) {
	t.Setenv("RISKD_TEST_API_KEY", "sk-test-123")

	cred, err := SealFromEnv("RISKD_TEST_API_KEY", "")
	if err != nil {
		t.Fatalf("SealFromEnv returned error: %v", err)
	}
	if got := os.Getenv("RISKD_TEST_API_KEY"); got != "" {
		t.Errorf("environment variable should be wiped, got %q", got)
	}

	var got string
	if err := cred.Use(func(secret string) error {
		got = secret
		return nil
	}); err != nil {
		t.Fatalf("Use returned error: %v", err)
	}
	if got != "sk-test-123" {
		t.Errorf("unexpected secret: %q", got)
	}
}

// TestSealFromEnv_SecretFileFallback verifies the secrets-mount fallback
// path, including whitespace trimming.
func TestSealFromEnv_SecretFileFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "openai_api_key")
	if err := os.WriteFile(path, []byte(" sk-file-456\n"), 0600); err != nil {
		t.Fatalf("writing secret file: %v", err)
	}

	cred, err := SealFromEnv("RISKD_TEST_UNSET_KEY", path)
	if err != nil {
		t.Fatalf("SealFromEnv returned error: %v", err)
	}

	var got string
	if err := cred.Use(func(secret string) error {
		got = secret
		return nil
	}); err != nil {
		t.Fatalf("Use returned error: %v", err)
	}
	if got != "sk-file-456" {
		t.Errorf("unexpected secret: %q", got)
	}
}

// TestSealFromEnv_MissingEverywhere verifies a clear error when neither
// source has the key.
func TestSealFromEnv_MissingEverywhere(t *testing.T) {
	_, err := SealFromEnv("RISKD_TEST_UNSET_KEY", filepath.Join(t.TempDir(), "absent"))
	if err == nil {
		t.Fatal("expected error when no secret source is available")
	}
}

// TestCredential_UseIsRepeatable verifies the enclave can be opened more
// than once.
func TestCredential_UseIsRepeatable(t *testing.T) {
	t.Setenv("RISKD_TEST_API_KEY", "sk-repeat-789")

	cred, err := SealFromEnv("RISKD_TEST_API_KEY", "")
	if err != nil {
		t.Fatalf("SealFromEnv returned error: %v", err)
	}

	for i := 0; i < 2; i++ {
		var got string
		if err := cred.Use(func(secret string) error {
			got = secret
			return nil
		}); err != nil {
			t.Fatalf("Use call %d returned error: %v", i, err)
		}
		if got != "sk-repeat-789" {
			t.Errorf("Use call %d: unexpected secret %q", i, got)
		}
	}
}

// TestCredential_UsePropagatesError verifies callback errors reach the
// caller.
func TestCredential_UsePropagatesError(t *testing.T) {
	t.Setenv("RISKD_TEST_API_KEY", "sk-err-000")

	cred, err := SealFromEnv("RISKD_TEST_API_KEY", "")
	if err != nil {
		t.Fatalf("SealFromEnv returned error: %v", err)
	}

	sentinel := errors.New("backend rejected key")
	if err := cred.Use(func(string) error { return sentinel }); !errors.Is(err, sentinel) {
		t.Errorf("expected sentinel error, got %v", err)
	}
}
