// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache provides an advisory TTL cache for verification
// verdicts, backed by embedded BadgerDB. Entries are keyed by the
// sorted set of requested rule ids, so identical requests hit the same
// entry regardless of input order. Writes are idempotent overwrites;
// the cache never assumes exclusive ownership of a key.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/clearproof/clearproof/services/verifier/datatypes"
)

// DefaultTTL is the verdict time-to-live when the caller passes zero.
const DefaultTTL = 10 * time.Minute

// VerdictCache stores whole verification responses by request key.
type VerdictCache interface {
	// Get returns the cached response for key, or ok=false on a miss.
	// An expired entry is a miss, never an error.
	Get(ctx context.Context, key string) (*datatypes.VerifyRulesResponse, bool, error)

	// Set stores the response under key for ttl. Zero ttl uses
	// DefaultTTL. Overwrites are idempotent.
	Set(ctx context.Context, key string, resp *datatypes.VerifyRulesResponse, ttl time.Duration) error

	// Close releases the underlying store.
	Close() error
}

// Key derives the cache key for a request: a SHA-256 digest over the
// deduplicated, sorted rule ids. Order of the input never matters.
func Key(ruleIDs []string) string {
	seen := make(map[string]bool, len(ruleIDs))
	ids := make([]string, 0, len(ruleIDs))
	for _, id := range ruleIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	sum := sha256.Sum256([]byte(strings.Join(ids, "\n")))
	return hex.EncodeToString(sum[:])
}

// Nop is a VerdictCache that stores nothing. Used when caching is
// disabled in configuration.
type Nop struct{}

func (Nop) Get(ctx context.Context, key string) (*datatypes.VerifyRulesResponse, bool, error) {
	return nil, false, nil
}

func (Nop) Set(ctx context.Context, key string, resp *datatypes.VerifyRulesResponse, ttl time.Duration) error {
	return nil
}

func (Nop) Close() error { return nil }
