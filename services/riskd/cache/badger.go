// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerOptions configures the embedded cache backend.
type BadgerOptions struct {
	// Path is the directory for database files. Ignored when InMemory
	// is true.
	Path string

	// InMemory keeps everything in RAM. Used by tests and by
	// deployments that treat the cache as purely ephemeral.
	InMemory bool

	// SyncWrites forces fsync per write. Off by default: cache entries
	// are recomputable, so losing them on a crash costs nothing.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging. Nil disables it.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Zero disables GC (in-memory mode never runs it).
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before a
	// GC pass rewrites the value log.
	GCDiscardRatio float64
}

// DefaultBadgerOptions returns production defaults for an on-disk cache
// at path.
func DefaultBadgerOptions(path string) BadgerOptions {
	return BadgerOptions{
		Path:           path,
		SyncWrites:     false,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// badgerSlogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerSlogger struct {
	logger *slog.Logger
}

func (l *badgerSlogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerSlogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerSlogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerSlogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore is the embedded cache backend for single-node deployments
// and tests.
//
// # Description
//
// Entries carry BadgerDB's native TTL, so expiry needs no sweeper: an
// expired key simply stops being returned, which matches the lazy
// EXPIRED-equals-EMPTY cache model. An optional background goroutine
// garbage-collects the value log on disk-backed stores.
//
// # Thread Safety
//
// Safe for concurrent use.
type BadgerStore struct {
	db *badger.DB

	gcStop    chan struct{}
	gcDone    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewBadgerStore opens the embedded cache with the given options.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	if !opts.InMemory && opts.Path == "" {
		return nil, errors.New("path is required for a persistent cache")
	}

	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", opts.Path, err)
		}
		badgerOpts = badger.DefaultOptions(opts.Path)
	}
	badgerOpts = badgerOpts.WithSyncWrites(opts.SyncWrites)
	badgerOpts = badgerOpts.WithNumVersionsToKeep(1)

	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(&badgerSlogger{logger: opts.Logger})
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}

	store := &BadgerStore{
		db:     db,
		gcStop: make(chan struct{}),
		gcDone: make(chan struct{}),
	}

	if opts.GCInterval > 0 && !opts.InMemory {
		go store.runGC(opts.GCInterval, opts.GCDiscardRatio, opts.Logger)
	} else {
		close(store.gcDone)
	}

	return store, nil
}

// NewInMemoryBadgerStore opens an in-memory cache for tests.
func NewInMemoryBadgerStore() (*BadgerStore, error) {
	return NewBadgerStore(BadgerOptions{InMemory: true})
}

// Get returns the payload cached under key. Expired entries read as
// misses.
func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		payload, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("badger get: %w", err)
	}
	return payload, true, nil
}

// Set stores payload under key until ttl elapses.
func (s *BadgerStore) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), payload)
		if ttl > 0 {
			entry = entry.WithTTL(ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("badger set: %w", err)
	}
	return nil
}

// Close stops the GC goroutine and closes the database. Safe to call
// multiple times.
func (s *BadgerStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.gcStop)
		<-s.gcDone
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}

// runGC periodically garbage-collects the value log.
func (s *BadgerStore) runGC(interval time.Duration, ratio float64, logger *slog.Logger) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite when no GC was needed
			err := s.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) && logger != nil {
				logger.Warn("badger value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}

var _ Store = (*BadgerStore)(nil)
