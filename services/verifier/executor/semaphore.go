// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package executor

import (
	"context"
	"sync"
)

// Semaphore implements a counting semaphore with a resizable capacity.
// The resource monitor raises or lowers the capacity at runtime; slots
// already held are never revoked, so shrinking takes effect as workers
// release.
//
// Thread Safety: Safe for concurrent use.
type Semaphore struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	inflight int
}

// NewSemaphore creates a new semaphore with the given capacity.
//
// Inputs:
//   - capacity: Maximum concurrent acquisitions. Must be > 0.
//
// Outputs:
//   - *Semaphore: A new semaphore.
func NewSemaphore(capacity int) *Semaphore {
	if capacity <= 0 {
		capacity = 1
	}
	s := &Semaphore{capacity: capacity}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Acquire acquires a slot, blocking until one is available.
//
// Inputs:
//   - ctx: Context for cancellation.
//
// Outputs:
//   - error: Non-nil if context was cancelled while waiting.
func (s *Semaphore) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Wake waiters when the context dies so they can observe the error.
	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.mu.Unlock()
		s.cond.Broadcast()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.inflight >= s.capacity {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}
	s.inflight++
	return nil
}

// TryAcquire attempts to acquire a slot without blocking.
//
// Outputs:
//   - bool: True if acquired, false if no slots available.
func (s *Semaphore) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight >= s.capacity {
		return false
	}
	s.inflight++
	return true
}

// Release releases a slot back to the semaphore.
// Must be called after Acquire/TryAcquire succeeds.
func (s *Semaphore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight == 0 {
		panic("semaphore: release without acquire")
	}
	s.inflight--
	s.cond.Signal()
}

// SetCapacity resizes the semaphore. Growing wakes blocked waiters;
// shrinking below the current in-flight count lets running work finish.
//
// Inputs:
//   - capacity: New maximum. Values below 1 are clamped to 1.
func (s *Semaphore) SetCapacity(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	s.mu.Lock()
	s.capacity = capacity
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Capacity returns the current maximum concurrency.
func (s *Semaphore) Capacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity
}

// InFlight returns the number of slots currently held.
func (s *Semaphore) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight
}
