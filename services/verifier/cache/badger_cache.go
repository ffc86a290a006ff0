// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/clearproof/clearproof/services/verifier/datatypes"
)

// Config holds configuration for the Badger-backed verdict cache.
type Config struct {
	// Path is the directory for cache files. Ignored when InMemory.
	Path string

	// InMemory keeps the cache off disk. Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes. The cache is advisory, so
	// this defaults off.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging. Nil disables it.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Default: 5 minutes. Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	// Default: 0.5
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults for the verdict cache.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerCache is a VerdictCache over an embedded BadgerDB. Expiry is
// delegated to Badger's per-entry TTL.
//
// # Thread Safety
//
//	Safe for concurrent use.
type BadgerCache struct {
	db     *badger.DB
	stopCh chan struct{}
	doneCh chan struct{}
}

// Open creates the cache, opening (or creating) its database.
func Open(cfg Config) (*BadgerCache, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open verdict cache: %w", err)
	}

	c := &BadgerCache{
		db:     db,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 || ratio > 1 {
			ratio = 0.5
		}
		go c.runGC(cfg.GCInterval, ratio)
	} else {
		close(c.doneCh)
	}
	return c, nil
}

// Get looks up a cached response. A missing or expired entry is a miss.
func (c *BadgerCache) Get(ctx context.Context, key string) (*datatypes.VerifyRulesResponse, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var resp datatypes.VerifyRulesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		// A corrupt entry is treated as a miss; it will be overwritten.
		return nil, false, nil
	}
	return &resp, true, nil
}

// Set stores a response with a TTL. Concurrent writers simply overwrite.
func (c *BadgerCache) Set(ctx context.Context, key string, resp *datatypes.VerifyRulesResponse, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}

	err = c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), data).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Close stops garbage collection and closes the database.
func (c *BadgerCache) Close() error {
	select {
	case <-c.stopCh:
	default:
		close(c.stopCh)
	}
	<-c.doneCh
	return c.db.Close()
}

func (c *BadgerCache) runGC(interval time.Duration, ratio float64) {
	defer close(c.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			// ErrNoRewrite means no GC was needed, not an error.
			for {
				if err := c.db.RunValueLogGC(ratio); err != nil {
					break
				}
			}
		}
	}
}
