// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package remote integrates an optional distributed-execution backend.
// When the backend is unreachable the pipeline falls back to local
// execution, so every error here is advisory rather than fatal.
package remote

import (
	"context"
	"errors"
	"time"

	"github.com/clearproof/clearproof/services/verifier/datatypes"
)

var (
	// ErrBackendUnavailable indicates the backend could not be reached.
	// Callers treat this as a signal to execute locally.
	ErrBackendUnavailable = errors.New("execution backend unavailable")

	// ErrBatchNotFound indicates the backend does not know the batch id.
	ErrBatchNotFound = errors.New("batch not found")
)

// BatchStatus is the remote lifecycle state of a submitted batch.
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "pending"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusFailed    BatchStatus = "failed"
	BatchStatusCancelled BatchStatus = "cancelled"
)

// Terminal reports whether the status will not change again.
func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusCancelled:
		return true
	}
	return false
}

// Backend executes validation batches on remote workers.
type Backend interface {
	// SubmitBatch hands a batch to the backend and returns its remote id.
	SubmitBatch(ctx context.Context, batch datatypes.ValidationBatch) (string, error)

	// GetBatchStatus reports the batch's current lifecycle state.
	GetBatchStatus(ctx context.Context, id string) (BatchStatus, error)

	// GetBatchResults returns per-task results for a completed batch.
	GetBatchResults(ctx context.Context, id string) ([]datatypes.ValidationResult, error)

	// Cancel requests cancellation of an in-flight batch.
	Cancel(ctx context.Context, id string) error
}

// AwaitResults polls the backend until the batch reaches a terminal
// state, then fetches its results.
//
// # Inputs
//
//   - ctx: Bounds the whole wait; cancellation also cancels the batch.
//   - backend: The backend the batch was submitted to.
//   - id: Remote batch id from SubmitBatch.
//   - interval: Poll interval. Non-positive defaults to 500ms.
//
// # Outputs
//
//   - []datatypes.ValidationResult: Results once the batch completes.
//   - error: Context error, backend error, or ErrBackendUnavailable.
func AwaitResults(ctx context.Context, backend Backend, id string, interval time.Duration) ([]datatypes.ValidationResult, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := backend.GetBatchStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		if status.Terminal() {
			if status != BatchStatusCompleted {
				return nil, errors.New("remote batch ended " + string(status))
			}
			return backend.GetBatchResults(ctx, id)
		}

		select {
		case <-ctx.Done():
			// Best-effort cancel with a short detached deadline; the
			// caller's context is already dead.
			cancelCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = backend.Cancel(cancelCtx, id)
			cancel()
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
