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
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
)

// memguardOnce ensures interrupt handling is installed exactly once.
var memguardOnce sync.Once

// Credential holds an API key sealed in a memguard enclave.
//
// # Description
//
// The key is encrypted at rest in process memory and only decrypted into
// an mlocked buffer for the duration of a Use call. The environment
// variable it was read from is wiped at seal time so the key does not
// linger in /proc/self/environ.
//
// # Thread Safety
//
// Credential is safe for concurrent use.
//
// # Limitations
//
//   - The copy handed to Use's callback lives in ordinary memory; callers
//     must not log it or retain it longer than needed.
type Credential struct {
	enclave *memguard.Enclave
}

// SealFromEnv reads a secret from the named environment variable, falling
// back to secretFile (a container secrets mount), seals it, and wipes the
// environment variable.
func SealFromEnv(envVar, secretFile string) (*Credential, error) {
	memguardOnce.Do(memguard.CatchInterrupt)

	raw := os.Getenv(envVar)
	if raw == "" && secretFile != "" {
		if content, err := os.ReadFile(secretFile); err == nil {
			raw = strings.TrimSpace(string(content))
			slog.Info("Read credential from secrets file", "path", secretFile)
		}
	}
	if raw == "" {
		return nil, fmt.Errorf("%s not set and no usable secret at %q", envVar, secretFile)
	}
	_ = os.Unsetenv(envVar)

	// NewEnclave wipes the source slice after sealing.
	return &Credential{enclave: memguard.NewEnclave([]byte(raw))}, nil
}

// Use decrypts the credential and passes a copy to fn. The sealed buffer
// is destroyed when fn returns, whatever fn does.
func (c *Credential) Use(fn func(secret string) error) error {
	buf, err := c.enclave.Open()
	if err != nil {
		return fmt.Errorf("opening credential enclave: %w", err)
	}
	defer buf.Destroy()
	return fn(string(buf.Bytes()))
}

// PurgeCredentials wipes all sealed material. Call during graceful
// shutdown; every Credential is unusable afterwards.
func PurgeCredentials() {
	memguard.Purge()
	slog.Info("Purged sealed credentials")
}
