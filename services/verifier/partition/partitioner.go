// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package partition groups verification tasks into bounded batches for
// parallel dispatch. Tasks handed to the partitioner are assumed to be
// mutually independent (a single scheduling level from the dependency
// analyzer); the partitioner never reorders work across levels.
package partition

import (
	"fmt"
	"sort"

	"github.com/clearproof/clearproof/services/verifier/datatypes"
)

// DefaultMaxBatchSize bounds a batch when the caller does not supply a
// positive limit.
const DefaultMaxBatchSize = 50

// Partitioner splits independent tasks into typed batches.
//
// # Description
//
//	Tasks are grouped by TaskType so that a batch is always homogeneous,
//	then each group is chunked into batches of at most maxBatchSize.
//	Batch IDs are derived from the type and chunk index, so the same
//	input always produces the same batches.
//
// # Thread Safety
//
//	A Partitioner is stateless after construction and safe for
//	concurrent use.
type Partitioner struct {
	maxBatchSize int
}

// Option configures a Partitioner.
type Option func(*Partitioner)

// WithMaxBatchSize overrides the per-batch task cap. Non-positive
// values fall back to DefaultMaxBatchSize.
func WithMaxBatchSize(n int) Option {
	return func(p *Partitioner) {
		if n > 0 {
			p.maxBatchSize = n
		}
	}
}

// New creates a Partitioner with the given options.
func New(opts ...Option) *Partitioner {
	p := &Partitioner{maxBatchSize: DefaultMaxBatchSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Partition splits tasks into homogeneous batches of at most the
// configured size.
//
// # Inputs
//
//   - tasks: independent tasks to batch. An empty slice yields nil.
//
// # Outputs
//
//   - []datatypes.ValidationBatch: batches ordered by type name then
//     chunk index. Every input task appears in exactly one batch.
//
// Partitioning is deterministic: identical input (by task ID and type)
// yields identical batch IDs and membership regardless of input order.
func (p *Partitioner) Partition(tasks []datatypes.VerificationTask) []datatypes.ValidationBatch {
	if len(tasks) == 0 {
		return nil
	}

	groups := make(map[datatypes.TaskType][]datatypes.VerificationTask)
	for _, t := range tasks {
		groups[t.Type] = append(groups[t.Type], t)
	}

	types := make([]datatypes.TaskType, 0, len(groups))
	for typ := range groups {
		types = append(types, typ)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	var batches []datatypes.ValidationBatch
	for _, typ := range types {
		group := groups[typ]
		// Stable order within a type so chunk membership does not
		// depend on the caller's slice order.
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })

		for chunk := 0; chunk*p.maxBatchSize < len(group); chunk++ {
			start := chunk * p.maxBatchSize
			end := start + p.maxBatchSize
			if end > len(group) {
				end = len(group)
			}
			batches = append(batches, datatypes.ValidationBatch{
				ID:             fmt.Sprintf("%s-%d", typ, chunk),
				Type:           typ,
				Tasks:          group[start:end],
				MaxConcurrency: p.maxBatchSize,
			})
		}
	}
	return batches
}
