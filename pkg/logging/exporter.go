// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// =============================================================================
// Export Interface
// =============================================================================

// LogEntry is the exporter-facing view of one log record.
type LogEntry struct {
	Timestamp time.Time
	Level     Level
	Message   string
	Service   string
	Attrs     map[string]any
}

// LogExporter ships log entries to an external system.
//
// Implementations should buffer internally; Export is called synchronously
// on the logging path and must be cheap. Flush is called during shutdown
// and should block until buffered entries are delivered.
type LogExporter interface {
	Export(entry LogEntry) error
	Flush() error
	Close() error
}

// NopExporter discards everything. Useful as a placeholder in wiring.
type NopExporter struct{}

func (NopExporter) Export(LogEntry) error { return nil }
func (NopExporter) Flush() error          { return nil }
func (NopExporter) Close() error          { return nil }

// BufferedExporter retains entries in memory. It backs tests that assert on
// log output without scraping stderr.
type BufferedExporter struct {
	mu      sync.Mutex
	entries []LogEntry
	closed  bool
}

// NewBufferedExporter returns an empty in-memory exporter.
func NewBufferedExporter() *BufferedExporter {
	return &BufferedExporter{}
}

func (b *BufferedExporter) Export(entry LogEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.entries = append(b.entries, entry)
	return nil
}

func (b *BufferedExporter) Flush() error { return nil }

func (b *BufferedExporter) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Entries returns a copy of everything exported so far.
func (b *BufferedExporter) Entries() []LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]LogEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

// =============================================================================
// slog Plumbing
// =============================================================================

// multiHandler fans one record out to every destination handler.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, record slog.Record) error {
	var firstErr error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		if err := h.Handle(ctx, record.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: next}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: next}
}

// exportHandler adapts a LogExporter into a slog.Handler. Export errors are
// dropped: a broken export destination must never break logging.
type exportHandler struct {
	exporter LogExporter
	service  string
	minLevel slog.Level
	attrs    []slog.Attr
}

func newExportHandler(exporter LogExporter, config Config) *exportHandler {
	return &exportHandler{
		exporter: exporter,
		service:  config.Service,
		minLevel: config.Level.toSlogLevel(),
	}
}

func (e *exportHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= e.minLevel
}

func (e *exportHandler) Handle(_ context.Context, record slog.Record) error {
	entry := LogEntry{
		Timestamp: record.Time,
		Level:     fromSlogLevel(record.Level),
		Message:   record.Message,
		Service:   e.service,
		Attrs:     make(map[string]any, record.NumAttrs()+len(e.attrs)),
	}
	for _, a := range e.attrs {
		entry.Attrs[a.Key] = a.Value.Any()
	}
	record.Attrs(func(a slog.Attr) bool {
		entry.Attrs[a.Key] = a.Value.Any()
		return true
	})
	_ = e.exporter.Export(entry)
	return nil
}

func (e *exportHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *e
	next.attrs = append(append([]slog.Attr{}, e.attrs...), attrs...)
	return &next
}

func (e *exportHandler) WithGroup(string) slog.Handler {
	// Groups are flattened; the export schema is a flat attribute map.
	return e
}

func fromSlogLevel(level slog.Level) Level {
	switch {
	case level <= slog.LevelDebug:
		return LevelDebug
	case level <= slog.LevelInfo:
		return LevelInfo
	case level <= slog.LevelWarn:
		return LevelWarn
	default:
		return LevelError
	}
}
