// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clearproof/clearproof/services/verifier/datatypes"
)

// DefaultBackendTimeout is the default timeout for backend requests.
const DefaultBackendTimeout = 15 * time.Second

// HTTPBackend talks to a distributed-execution service over HTTP.
//
// # Thread Safety
//
//	Safe for concurrent use.
type HTTPBackend struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPBackend creates a backend client.
func NewHTTPBackend(baseURL string) *HTTPBackend {
	return &HTTPBackend{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultBackendTimeout,
		},
	}
}

// WithTimeout sets a custom timeout for backend requests.
func (b *HTTPBackend) WithTimeout(timeout time.Duration) *HTTPBackend {
	b.httpClient.Timeout = timeout
	return b
}

type submitResponse struct {
	ID string `json:"id"`
}

type statusResponse struct {
	Status BatchStatus `json:"status"`
}

type resultsResponse struct {
	Results []datatypes.ValidationResult `json:"results"`
}

// SubmitBatch posts the batch for remote execution.
func (b *HTTPBackend) SubmitBatch(ctx context.Context, batch datatypes.ValidationBatch) (string, error) {
	bodyBytes, err := json.Marshal(batch)
	if err != nil {
		return "", fmt.Errorf("marshal batch: %w", err)
	}

	url := b.baseURL + "/v1/batches"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: backend returned status %d: %s", ErrBackendUnavailable, resp.StatusCode, string(body))
	}

	var out submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("%w: backend returned empty batch id", ErrBackendUnavailable)
	}
	return out.ID, nil
}

// GetBatchStatus reads the batch's lifecycle state.
func (b *HTTPBackend) GetBatchStatus(ctx context.Context, id string) (BatchStatus, error) {
	url := fmt.Sprintf("%s/v1/batches/%s/status", b.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: backend returned status %d: %s", ErrBackendUnavailable, resp.StatusCode, string(body))
	}

	var out statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.Status, nil
}

// GetBatchResults fetches per-task results for a completed batch.
func (b *HTTPBackend) GetBatchResults(ctx context.Context, id string) ([]datatypes.ValidationResult, error) {
	url := fmt.Sprintf("%s/v1/batches/%s/results", b.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: backend returned status %d: %s", ErrBackendUnavailable, resp.StatusCode, string(body))
	}

	var out resultsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Results, nil
}

// Cancel requests cancellation of an in-flight batch.
func (b *HTTPBackend) Cancel(ctx context.Context, id string) error {
	url := fmt.Sprintf("%s/v1/batches/%s", b.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: backend returned status %d: %s", ErrBackendUnavailable, resp.StatusCode, string(body))
	}
	return nil
}
