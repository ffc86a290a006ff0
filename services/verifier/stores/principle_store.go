// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stores

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

// PrincipleStore fetches governance principles and their obligations.
type PrincipleStore interface {
	// GetPrinciplesByIDs returns the principles for the given ids.
	// Unknown ids are absent from the result, not an error.
	GetPrinciplesByIDs(ctx context.Context, ids []string) ([]datatypes.Principle, error)
}

// HTTPPrincipleStore talks to the principle service over HTTP.
//
// # Thread Safety
//
//	Safe for concurrent use.
type HTTPPrincipleStore struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPPrincipleStore creates a principle store client.
func NewHTTPPrincipleStore(baseURL string) *HTTPPrincipleStore {
	return &HTTPPrincipleStore{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultStoreTimeout,
		},
	}
}

// WithTimeout sets a custom timeout for store requests.
func (s *HTTPPrincipleStore) WithTimeout(timeout time.Duration) *HTTPPrincipleStore {
	s.httpClient.Timeout = timeout
	return s
}

type principleQueryRequest struct {
	IDs []string `json:"ids"`
}

type principleQueryResponse struct {
	Principles []datatypes.Principle `json:"principles"`
}

// GetPrinciplesByIDs fetches principles in one batch request.
func (s *HTTPPrincipleStore) GetPrinciplesByIDs(ctx context.Context, ids []string) ([]datatypes.Principle, error) {
	if ctx == nil {
		return nil, ErrInvalidInput
	}
	if len(ids) == 0 {
		return nil, nil
	}

	bodyBytes, err := json.Marshal(principleQueryRequest{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := s.baseURL + "/v1/principles/query"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: principle store returned status %d: %s", ErrStoreUnavailable, resp.StatusCode, string(body))
	}

	var out principleQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Principles, nil
}
