// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearproof/clearproof/services/verifier/datatypes"
)

func TestHTTPBackend_SubmitAndFetch(t *testing.T) {
	var polls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/batches":
			var batch datatypes.ValidationBatch
			require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
			assert.Equal(t, "rule_verification-0", batch.ID)
			json.NewEncoder(w).Encode(submitResponse{ID: "remote-42"})

		case r.URL.Path == "/v1/batches/remote-42/status":
			// Pending on the first poll, completed after.
			if atomic.AddInt32(&polls, 1) == 1 {
				json.NewEncoder(w).Encode(statusResponse{Status: BatchStatusRunning})
			} else {
				json.NewEncoder(w).Encode(statusResponse{Status: BatchStatusCompleted})
			}

		case r.URL.Path == "/v1/batches/remote-42/results":
			json.NewEncoder(w).Encode(resultsResponse{Results: []datatypes.ValidationResult{
				{TaskID: "task-1", ValidatorID: "remote-worker", Confidence: 0.9,
					Payload: datatypes.ResultPayload{Status: datatypes.ResultStatusVerified}},
			}})

		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	backend := NewHTTPBackend(srv.URL)
	batch := datatypes.ValidationBatch{
		ID:    "rule_verification-0",
		Type:  datatypes.TaskTypeRuleVerification,
		Tasks: []datatypes.VerificationTask{{ID: "task-1", Type: datatypes.TaskTypeRuleVerification}},
	}

	id, err := backend.SubmitBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, "remote-42", id)

	results, err := AwaitResults(context.Background(), backend, id, 5*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "task-1", results[0].TaskID)
	assert.Equal(t, datatypes.ResultStatusVerified, results[0].Payload.Status)
}

func TestHTTPBackend_UnreachableIsUnavailable(t *testing.T) {
	backend := NewHTTPBackend("http://127.0.0.1:1").WithTimeout(100 * time.Millisecond)
	_, err := backend.SubmitBatch(context.Background(), datatypes.ValidationBatch{ID: "b"})
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestHTTPBackend_StatusNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer srv.Close()

	backend := NewHTTPBackend(srv.URL)
	_, err := backend.GetBatchStatus(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrBatchNotFound)
}

func TestAwaitResults_CancelPropagates(t *testing.T) {
	var cancelled int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete:
			atomic.StoreInt32(&cancelled, 1)
			w.WriteHeader(http.StatusNoContent)
		default:
			// Never finishes.
			json.NewEncoder(w).Encode(statusResponse{Status: BatchStatusRunning})
		}
	}))
	defer srv.Close()

	backend := NewHTTPBackend(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := AwaitResults(ctx, backend, "remote-42", 5*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), atomic.LoadInt32(&cancelled), "expiring the wait should cancel the remote batch")
}

func TestAwaitResults_RemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(statusResponse{Status: BatchStatusFailed})
	}))
	defer srv.Close()

	backend := NewHTTPBackend(srv.URL)
	_, err := AwaitResults(context.Background(), backend, "remote-42", time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
}

func TestBatchStatus_Terminal(t *testing.T) {
	assert.False(t, BatchStatusPending.Terminal())
	assert.False(t, BatchStatusRunning.Terminal())
	assert.True(t, BatchStatusCompleted.Terminal())
	assert.True(t, BatchStatusFailed.Terminal())
	assert.True(t, BatchStatusCancelled.Terminal())
}
