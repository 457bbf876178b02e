// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ranking

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/AleutianAI/AleutianRisk/services/riskd/datatypes"
	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Weights
// =============================================================================

// Weights holds the tunable parameters of the ranking formula.
//
// Risk-type weights express how much a category matters relative to
// infrastructure risk (the 1.0 anchor). Severity multipliers boost or
// dampen by grade. MinScore and MaxItems bound the ranked output.
type Weights struct {
	// RiskType maps each risk category onto its score multiplier.
	RiskType map[datatypes.RiskType]float64 `yaml:"risk_type_weights"`

	// Severity maps each severity grade onto its score multiplier.
	Severity map[datatypes.Severity]float64 `yaml:"severity_multipliers"`

	// MinScore drops items scoring below it before truncation.
	MinScore float64 `yaml:"min_score"`

	// MaxItems bounds the length of the ranked list.
	MaxItems int `yaml:"max_items"`
}

// DefaultWeights returns the shipped ranking parameters.
func DefaultWeights() Weights {
	return Weights{
		RiskType: map[datatypes.RiskType]float64{
			datatypes.RiskTypeInfra:       1.0,
			datatypes.RiskTypeRegulatory:  0.85,
			datatypes.RiskTypeSentiment:   0.7,
			datatypes.RiskTypeLiquidity:   0.6,
			datatypes.RiskTypeTechnical:   0.5,
			datatypes.RiskTypeFundamental: 0.5,
			datatypes.RiskTypeMacro:       0.6,
		},
		Severity: map[datatypes.Severity]float64{
			datatypes.SeverityHigh:   1.3,
			datatypes.SeverityMedium: 1.0,
			datatypes.SeverityLow:    0.7,
		},
		MinScore: 0.05,
		MaxItems: 15,
	}
}

// Validate checks that every known risk type and severity grade carries
// a positive multiplier and that the output bounds are usable.
func (w Weights) Validate() error {
	for _, rt := range datatypes.AllRiskTypes() {
		v, ok := w.RiskType[rt]
		if !ok {
			return fmt.Errorf("risk_type_weights missing %q", rt)
		}
		if v <= 0 {
			return fmt.Errorf("risk_type_weights[%s] must be positive, got %v", rt, v)
		}
	}
	for _, sev := range []datatypes.Severity{datatypes.SeverityLow, datatypes.SeverityMedium, datatypes.SeverityHigh} {
		v, ok := w.Severity[sev]
		if !ok {
			return fmt.Errorf("severity_multipliers missing %q", sev)
		}
		if v <= 0 {
			return fmt.Errorf("severity_multipliers[%s] must be positive, got %v", sev, v)
		}
	}
	if w.MinScore < 0 {
		return fmt.Errorf("min_score must not be negative, got %v", w.MinScore)
	}
	if w.MaxItems < 1 {
		return fmt.Errorf("max_items must be at least 1, got %d", w.MaxItems)
	}
	return nil
}

// LoadWeights reads ranking parameters from a YAML file.
//
// The file is layered over the defaults, so a partial file only
// overrides the parameters it names. The result is validated before it
// is returned; an invalid file never produces usable weights.
func LoadWeights(path string) (Weights, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Weights{}, fmt.Errorf("failed to read the weights file: %w", err)
	}
	w := DefaultWeights()
	if err := yaml.Unmarshal(data, &w); err != nil {
		return Weights{}, fmt.Errorf("failed to parse the weights file: %w", err)
	}
	if err := w.Validate(); err != nil {
		return Weights{}, fmt.Errorf("invalid weights in %s: %w", path, err)
	}
	return w, nil
}

// =============================================================================
// Weights Sources
// =============================================================================

// WeightsSource supplies the active ranking parameters. Implementations
// must be safe for concurrent readers.
type WeightsSource interface {
	// Current returns the parameters to use for the next Rank call.
	Current() Weights
}

// StaticWeights is a WeightsSource that never changes.
type StaticWeights Weights

// Current returns the fixed weights.
func (s StaticWeights) Current() Weights { return Weights(s) }

// =============================================================================
// Hot Reload
// =============================================================================

// WeightsWatcherOptions configures the WeightsWatcher.
type WeightsWatcherOptions struct {
	// DebounceWindow is how long to wait for further file events before
	// reloading. Editors that save via rename emit several events per
	// save. Default: 200ms.
	DebounceWindow time.Duration

	// OnReload is called with the new parameters after each successful
	// swap. Optional.
	OnReload func(Weights)
}

// DefaultWeightsWatcherOptions returns sensible defaults.
func DefaultWeightsWatcherOptions() WeightsWatcherOptions {
	return WeightsWatcherOptions{
		DebounceWindow: 200 * time.Millisecond,
	}
}

// WeightsWatcher serves ranking parameters from a YAML file and reloads
// them when the file changes.
//
// # Description
//
// Operators retune risk-type weights without a daemon restart by
// editing the weights file. The watcher debounces filesystem events,
// re-reads the file, and swaps the parameters atomically. A file that
// fails to parse or validate is ignored and the previous parameters
// stay active.
//
// # Thread Safety
//
// Safe for concurrent use. Current may be called from any goroutine
// while the watcher runs.
type WeightsWatcher struct {
	path     string
	debounce time.Duration
	onReload func(Weights)

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.RWMutex
	current Weights
}

// NewWeightsWatcher loads the weights file and prepares a watcher for it.
//
// # Inputs
//
//   - path: Path to the YAML weights file. Must exist and be valid.
//   - opts: Optional configuration (nil uses defaults).
//
// # Outputs
//
//   - *WeightsWatcher: Ready-to-use source (call Start to begin watching).
//   - error: Non-nil if the initial load failed or the filesystem
//     watcher could not be created.
func NewWeightsWatcher(path string, opts *WeightsWatcherOptions) (*WeightsWatcher, error) {
	if opts == nil {
		defaults := DefaultWeightsWatcherOptions()
		opts = &defaults
	}

	initial, err := LoadWeights(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &WeightsWatcher{
		path:     filepath.Clean(path),
		debounce: opts.DebounceWindow,
		onReload: opts.OnReload,
		watcher:  watcher,
		done:     make(chan struct{}),
		current:  initial,
	}, nil
}

// Start begins watching the weights file for changes.
//
// Watches the containing directory rather than the file itself so that
// atomic saves (write to a temp file, rename over the target) keep
// being observed after the original inode disappears. The watch
// goroutine exits when Stop is called or the context is canceled.
func (w *WeightsWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	go w.run(ctx)
	return nil
}

// Stop stops watching. Current keeps returning the last loaded weights.
func (w *WeightsWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

// Current returns the active ranking parameters.
func (w *WeightsWatcher) Current() Weights {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// run debounces events for the weights file and reloads after the
// window expires without further changes.
func (w *WeightsWatcher) run(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("weights watcher error", "path", w.path, "error", err)
		}
	}
}

// reload re-reads the weights file and swaps the parameters on success.
func (w *WeightsWatcher) reload() {
	loaded, err := LoadWeights(w.path)
	if err != nil {
		slog.Warn("weights reload failed, keeping previous weights",
			"path", w.path,
			"error", err)
		return
	}

	w.mu.Lock()
	w.current = loaded
	w.mu.Unlock()

	slog.Info("ranking weights reloaded", "path", w.path)

	if w.onReload != nil {
		w.onReload(loaded)
	}
}

var _ WeightsSource = StaticWeights{}
var _ WeightsSource = (*WeightsWatcher)(nil)
