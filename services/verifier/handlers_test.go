// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearproof/clearproof/services/verifier/datatypes"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// startStores runs fake rule and principle store servers holding the
// given fixtures.
func startStores(t *testing.T, rules []datatypes.Rule, principles []datatypes.Principle) (ruleURL, principleURL string) {
	t.Helper()

	ruleSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/rules/query":
			var q struct {
				IDs []string `json:"ids"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
			var matched []datatypes.Rule
			for _, rule := range rules {
				for _, id := range q.IDs {
					if rule.ID == id {
						matched = append(matched, rule)
					}
				}
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"rules": matched})
		case r.Method == http.MethodPut && strings.HasSuffix(r.URL.Path, "/status"):
			_ = json.NewEncoder(w).Encode(datatypes.Rule{})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(ruleSrv.Close)

	principleSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var q struct {
			IDs []string `json:"ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&q))
		var matched []datatypes.Principle
		for _, p := range principles {
			for _, id := range q.IDs {
				if p.ID == id {
					matched = append(matched, p)
				}
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"principles": matched})
	}))
	t.Cleanup(principleSrv.Close)

	return ruleSrv.URL, principleSrv.URL
}

func newTestService(t *testing.T, rules []datatypes.Rule, principles []datatypes.Principle) *Service {
	t.Helper()

	ruleURL, principleURL := startStores(t, rules, principles)
	svc, err := New(Config{
		ListenAddr:        ":0",
		RuleStoreURL:      ruleURL,
		PrincipleStoreURL: principleURL,
		CacheInMemory:     true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = svc.executor.Shutdown(context.Background())
		_ = svc.cache.Close()
	})
	return svc
}

func postVerify(t *testing.T, svc *Service, body any) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/verify", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	svc := newTestService(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ServiceVersion)
}

func TestVerifyRules_EndToEnd(t *testing.T) {
	svc := newTestService(t,
		[]datatypes.Rule{{
			ID:           "rule-retain",
			Clauses:      []string{"retention_configured"},
			PrincipleIDs: []string{"p-retain"},
		}},
		[]datatypes.Principle{{
			ID:          "p-retain",
			Obligations: []string{"retention_configured"},
		}},
	)

	rec := postVerify(t, svc, datatypes.VerifyRulesRequest{RuleIDs: []string{"rule-retain"}})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp datatypes.VerifyRulesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, datatypes.OverallAllVerified, resp.OverallStatus)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, datatypes.ResultStatusVerified, resp.Results[0].Status)
	assert.NotEmpty(t, resp.RunID)
}

func TestVerifyRules_SecondRequestServedFromCache(t *testing.T) {
	svc := newTestService(t,
		[]datatypes.Rule{{
			ID:           "rule-c",
			Clauses:      []string{"tls_required"},
			PrincipleIDs: []string{"p-c"},
		}},
		[]datatypes.Principle{{ID: "p-c", Obligations: []string{"tls_required"}}},
	)
	req := datatypes.VerifyRulesRequest{RuleIDs: []string{"rule-c"}}

	first := postVerify(t, svc, req)
	require.Equal(t, http.StatusOK, first.Code)

	second := postVerify(t, svc, req)
	require.Equal(t, http.StatusOK, second.Code)

	var resp datatypes.VerifyRulesResponse
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &resp))
	assert.True(t, resp.Cached)
}

func TestVerifyRules_MalformedBody(t *testing.T) {
	svc := newTestService(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/verify", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_request")
}

func TestVerifyRules_EmptyRuleIDs(t *testing.T) {
	svc := newTestService(t, nil, nil)

	rec := postVerify(t, svc, datatypes.VerifyRulesRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_request")
}

func TestVerifyRules_UnknownRules(t *testing.T) {
	svc := newTestService(t, nil, nil)

	rec := postVerify(t, svc, datatypes.VerifyRulesRequest{RuleIDs: []string{"rule-ghost"}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no_rules")
}

func TestResources(t *testing.T) {
	svc := newTestService(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/resources", nil)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Sampled          bool `json:"sampled"`
		ConcurrencyLimit int  `json:"concurrency_limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Sampled)
	assert.Greater(t, body.ConcurrencyLimit, 0)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{ListenAddr: ":0", RuleStoreURL: "not a url"})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestMetricsEndpoint(t *testing.T) {
	svc := newTestService(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
