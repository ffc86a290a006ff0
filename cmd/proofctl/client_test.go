// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearproof/clearproof/services/verifier/datatypes"
)

func TestVerifierClient_Verify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/verify", r.URL.Path)

		var req datatypes.VerifyRulesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"rule-1"}, req.RuleIDs)

		_ = json.NewEncoder(w).Encode(datatypes.VerifyRulesResponse{
			RunID:         "run-1",
			OverallStatus: datatypes.OverallAllVerified,
			Results: []datatypes.RuleVerdict{
				{RuleID: "rule-1", Status: datatypes.ResultStatusVerified, Confidence: 1},
			},
		})
	}))
	defer srv.Close()

	c := newVerifierClient(srv.URL, time.Second)
	resp, err := c.Verify(context.Background(), datatypes.VerifyRulesRequest{RuleIDs: []string{"rule-1"}})
	require.NoError(t, err)

	assert.Equal(t, "run-1", resp.RunID)
	assert.Equal(t, datatypes.OverallAllVerified, resp.OverallStatus)
	require.Len(t, resp.Results, 1)
}

func TestVerifierClient_VerifyErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(datatypes.ErrorResponse{
			Error:  "no_rules",
			Detail: "none of 1 requested rules exist",
		})
	}))
	defer srv.Close()

	c := newVerifierClient(srv.URL, time.Second)
	_, err := c.Verify(context.Background(), datatypes.VerifyRulesRequest{RuleIDs: []string{"ghost"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no_rules")
}

func TestVerifierClient_Health(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer srv.Close()

	c := newVerifierClient(srv.URL, time.Second)
	require.NoError(t, c.Health(context.Background()))
}

func TestVerifierClient_HealthDown(t *testing.T) {
	c := newVerifierClient("http://127.0.0.1:1", 100*time.Millisecond)
	require.Error(t, c.Health(context.Background()))
}
