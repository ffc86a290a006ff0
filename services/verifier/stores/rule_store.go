// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stores provides HTTP clients for the collaborator services
// that own rules and principles. The verifier persists nothing itself;
// verdicts flow back only through the rule store's status update.
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

// DefaultStoreTimeout is the default timeout for store requests.
const DefaultStoreTimeout = 15 * time.Second

// RuleStore fetches rules and persists verdict status.
type RuleStore interface {
	// GetRulesByIDs returns the rules for the given ids. Unknown ids
	// are simply absent from the result, not an error.
	GetRulesByIDs(ctx context.Context, ids []string) ([]datatypes.Rule, error)

	// UpdateRuleStatus writes a verdict back. Returns the updated rule,
	// or nil with ErrNotFound if the store has no such rule.
	UpdateRuleStatus(ctx context.Context, id, status string) (*datatypes.Rule, error)
}

// HTTPRuleStore talks to the rule service over HTTP.
//
// # Thread Safety
//
//	Safe for concurrent use.
type HTTPRuleStore struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPRuleStore creates a rule store client.
//
// # Inputs
//
//   - baseURL: Base URL of the rule service (e.g. "http://rules:8080").
func NewHTTPRuleStore(baseURL string) *HTTPRuleStore {
	return &HTTPRuleStore{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultStoreTimeout,
		},
	}
}

// WithTimeout sets a custom timeout for store requests.
func (s *HTTPRuleStore) WithTimeout(timeout time.Duration) *HTTPRuleStore {
	s.httpClient.Timeout = timeout
	return s
}

// ruleQueryRequest is the request body for the rule query endpoint.
type ruleQueryRequest struct {
	IDs []string `json:"ids"`
}

// ruleQueryResponse is the response from the rule query endpoint.
type ruleQueryResponse struct {
	Rules []datatypes.Rule `json:"rules"`
}

// statusUpdateRequest is the request body for the status endpoint.
type statusUpdateRequest struct {
	Status string `json:"status"`
}

// GetRulesByIDs fetches rules in one batch request.
func (s *HTTPRuleStore) GetRulesByIDs(ctx context.Context, ids []string) ([]datatypes.Rule, error) {
	if ctx == nil {
		return nil, ErrInvalidInput
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: ids is empty", ErrInvalidInput)
	}

	bodyBytes, err := json.Marshal(ruleQueryRequest{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := s.baseURL + "/v1/rules/query"
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
		return nil, fmt.Errorf("%w: rule store returned status %d: %s", ErrStoreUnavailable, resp.StatusCode, string(body))
	}

	var out ruleQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Rules, nil
}

// UpdateRuleStatus persists a verdict for one rule.
func (s *HTTPRuleStore) UpdateRuleStatus(ctx context.Context, id, status string) (*datatypes.Rule, error) {
	if ctx == nil {
		return nil, ErrInvalidInput
	}
	if id == "" || status == "" {
		return nil, fmt.Errorf("%w: id and status are required", ErrInvalidInput)
	}

	bodyBytes, err := json.Marshal(statusUpdateRequest{Status: status})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/rules/%s/status", s.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: rule %s", ErrNotFound, id)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: rule store returned status %d: %s", ErrStoreUnavailable, resp.StatusCode, string(body))
	}

	var rule datatypes.Rule
	if err := json.NewDecoder(resp.Body).Decode(&rule); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &rule, nil
}
