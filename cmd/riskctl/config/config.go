// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the riskctl configuration file.
//
// The file lives at ~/.aleutian/riskctl.yaml and is created with
// defaults on first run, so a fresh install works against a local
// daemon without any setup.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds riskctl settings.
type Config struct {
	// ServerURL is the riskd base URL.
	ServerURL string `yaml:"server_url"`

	// TimeoutSeconds bounds each request to the daemon.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// DefaultWindowHours is the lookback window used when a command
	// does not pass --window.
	DefaultWindowHours int `yaml:"default_window_hours"`
}

// Default returns the configuration written on first run.
func Default() Config {
	return Config{
		ServerURL:          "http://localhost:12250",
		TimeoutSeconds:     30,
		DefaultWindowHours: 72,
	}
}

// applyDefaults fills zero-valued fields so a hand-edited file only
// needs the keys the user cares about.
func (c *Config) applyDefaults() {
	d := Default()
	if c.ServerURL == "" {
		c.ServerURL = d.ServerURL
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = d.TimeoutSeconds
	}
	if c.DefaultWindowHours <= 0 {
		c.DefaultWindowHours = d.DefaultWindowHours
	}
}

// DefaultPath returns ~/.aleutian/riskctl.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot resolve home directory: %w", err)
	}
	return filepath.Join(home, ".aleutian", "riskctl.yaml"), nil
}

// Load reads the configuration at path.
//
// A missing file is created with defaults and is not an error. When
// creation itself fails the defaults are still returned alongside the
// error, so the CLI stays usable on a read-only home.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		cfg := Default()
		if err := Save(path, cfg); err != nil {
			return cfg, fmt.Errorf("write default config %s: %w", path, err)
		}
		return cfg, nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// Save writes cfg to path, creating parent directories as needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	header := []byte("# riskctl configuration. Generated on first run; edit freely.\n")
	if err := os.WriteFile(path, append(header, data...), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
