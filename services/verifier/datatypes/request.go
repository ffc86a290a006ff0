// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// This file contains request and response types for the verification
// endpoint.
package datatypes

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxRulesPerRequest bounds the batch size of one verification request.
	MaxRulesPerRequest = 500

	// MaxPrinciplesPerRequest bounds explicit principle references.
	MaxPrinciplesPerRequest = 200
)

// =============================================================================
// Overall Status
// =============================================================================

// OverallStatus summarizes the worst outcome across all requested rules.
type OverallStatus string

const (
	// OverallAllVerified means every rule verified.
	OverallAllVerified OverallStatus = "all_verified"

	// OverallSomeFailed means at least one rule failed or was inconclusive.
	OverallSomeFailed OverallStatus = "some_failed"

	// OverallError means at least one rule produced an error outcome.
	OverallError OverallStatus = "error"

	// OverallConsensusNotReached means validators disagreed below the
	// required consensus threshold for at least one rule.
	OverallConsensusNotReached OverallStatus = "consensus_not_reached"
)

// =============================================================================
// Request / Response
// =============================================================================

// VerifyRulesRequest submits a batch of rules for verification.
type VerifyRulesRequest struct {
	// RuleIDs are the rules to verify. Required, at least one.
	RuleIDs []string `json:"rule_ids" validate:"required,min=1,max=500,dive,required"`

	// PrincipleIDs optionally narrows which principles' obligations are
	// checked. Empty means all principles referenced by the rules.
	PrincipleIDs []string `json:"principle_ids,omitempty" validate:"max=200"`

	// Strategy optionally selects the aggregation strategy. Empty means
	// the server default (Byzantine fault tolerant).
	Strategy string `json:"strategy,omitempty" validate:"omitempty,oneof=majority_vote weighted_average byzantine_fault_tolerant consensus_threshold first_valid"`
}

// Validate checks the request against its struct tags.
func (r *VerifyRulesRequest) Validate() error {
	return requestValidator.Struct(r)
}

var requestValidator = validator.New()

// RuleVerdict is the per-rule entry in a verification response.
//
// The response contains exactly one RuleVerdict per requested rule id,
// never silently dropped.
type RuleVerdict struct {
	// RuleID is the requested rule.
	RuleID string `json:"rule_id"`

	// Status is the aggregated verdict for the rule.
	Status ResultStatus `json:"status"`

	// Counterexample refutes entailment when Status is failed.
	Counterexample string `json:"counterexample,omitempty"`

	// Confidence is the aggregated confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// ConsensusLevel is the fraction of valid validator results that
	// agree with Status, in [0,1].
	ConsensusLevel float64 `json:"consensus_level"`

	// Conflicts lists human-readable reasons for discarded or
	// overridden validator inputs.
	Conflicts []string `json:"conflicts,omitempty"`

	// Message carries non-fatal warnings (persistence failures,
	// skipped clauses).
	Message string `json:"message,omitempty"`
}

// VerifyRulesResponse is the verification endpoint's reply.
type VerifyRulesResponse struct {
	// RunID identifies this verification run.
	RunID string `json:"run_id"`

	// OverallStatus summarizes the worst outcome across rules.
	OverallStatus OverallStatus `json:"overall_status"`

	// Results holds exactly one verdict per requested rule.
	Results []RuleVerdict `json:"results"`

	// Degraded is true when BFT aggregation fell back to majority vote
	// because of insufficient validators.
	Degraded bool `json:"degraded,omitempty"`

	// Cached is true when the response was served from the verdict cache.
	Cached bool `json:"cached,omitempty"`

	// Duration is the total processing time.
	Duration time.Duration `json:"duration"`
}

// ErrorResponse is the structured error body for failed requests.
type ErrorResponse struct {
	// Error is the error category (dependency_cycle, fetch_failed,
	// invalid_request).
	Error string `json:"error"`

	// Detail is a human-readable diagnostic.
	Detail string `json:"detail,omitempty"`
}
