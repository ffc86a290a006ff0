// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures shared across the verifier
// service packages.
//
// This file contains the task, batch, and validator-result models that flow
// through the scheduling and execution pipeline. For HTTP request and
// response types, see request.go. For collaborator store models, see
// stores.go.
package datatypes

import (
	"time"
)

// =============================================================================
// Task Model
// =============================================================================

// TaskType classifies a verification task for partitioning.
//
// Tasks of the same type within a dependency level are grouped into the
// same batches.
type TaskType string

const (
	// TaskTypeRuleVerification checks that a rule entails its obligations.
	TaskTypeRuleVerification TaskType = "rule_verification"

	// TaskTypeConsistencyCheck checks a rule set for mutual satisfiability.
	TaskTypeConsistencyCheck TaskType = "consistency_check"
)

// TaskStatus represents the lifecycle state of a verification task.
//
// Completed, failed, and cancelled are terminal: a task never leaves a
// terminal state.
type TaskStatus string

const (
	// TaskStatusPending indicates the task hasn't started.
	TaskStatusPending TaskStatus = "pending"

	// TaskStatusRunning indicates the task is executing.
	TaskStatusRunning TaskStatus = "running"

	// TaskStatusCompleted indicates successful completion (terminal).
	TaskStatusCompleted TaskStatus = "completed"

	// TaskStatusFailed indicates the task failed after retries (terminal).
	TaskStatusFailed TaskStatus = "failed"

	// TaskStatusCancelled indicates the task was cancelled (terminal).
	TaskStatusCancelled TaskStatus = "cancelled"
)

// IsTerminal returns true if the status is terminal.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// TaskPayload carries the verification inputs for a single task.
type TaskPayload struct {
	// RuleID is the rule under verification.
	RuleID string `json:"rule_id"`

	// Rules are the clause texts asserted for this task.
	Rules []string `json:"rules"`

	// Obligations are the proof obligations the rules must entail.
	Obligations []string `json:"obligations"`

	// PrincipleIDs are the governance principles the obligations derive from.
	PrincipleIDs []string `json:"principle_ids,omitempty"`
}

// VerificationTask is the unit of scheduled work.
//
// Tasks are created when a request is scheduled and mutated only by the
// executor. Once a task reaches a terminal status it is never modified
// again.
type VerificationTask struct {
	// ID is unique within one verification run.
	ID string `json:"id"`

	// Type classifies the task for partitioning.
	Type TaskType `json:"type"`

	// Payload holds the verification inputs.
	Payload TaskPayload `json:"payload"`

	// Dependencies are the ids of tasks that must reach a terminal
	// status before this task becomes ready.
	Dependencies []string `json:"dependencies,omitempty"`

	// Priority orders tasks within a batch (higher first).
	Priority int `json:"priority"`

	// Status is the current lifecycle state.
	Status TaskStatus `json:"status"`

	// CreatedAt is when the task was scheduled.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the first execution attempt began.
	StartedAt time.Time `json:"started_at,omitzero"`

	// CompletedAt is when the task reached a terminal status.
	CompletedAt time.Time `json:"completed_at,omitzero"`

	// RetryCount is the number of retries consumed so far.
	RetryCount int `json:"retry_count"`

	// MaxRetries is the retry budget for this task.
	MaxRetries int `json:"max_retries"`

	// Timeout is the per-attempt execution deadline.
	Timeout time.Duration `json:"timeout"`

	// FailureCause describes why the task failed, if it did.
	FailureCause string `json:"failure_cause,omitempty"`
}

// =============================================================================
// Batch Model
// =============================================================================

// ValidationBatch is a bounded group of same-type, same-level tasks.
//
// Batch ids are derived deterministically from the task type and chunk
// index, so identical input always yields identical batch ids and
// membership.
type ValidationBatch struct {
	// ID is "{type}-{chunkIndex}".
	ID string `json:"id"`

	// Type is the shared task type of all members.
	Type TaskType `json:"type"`

	// Tasks are the ordered batch members.
	Tasks []VerificationTask `json:"tasks"`

	// MaxConcurrency bounds in-flight tasks for this batch.
	MaxConcurrency int `json:"max_concurrency"`
}

// =============================================================================
// Validator Results
// =============================================================================

// ResultStatus is the per-rule verdict vocabulary.
type ResultStatus string

const (
	// ResultStatusVerified indicates the obligations are entailed.
	ResultStatusVerified ResultStatus = "verified"

	// ResultStatusFailed indicates the obligations are not entailed.
	ResultStatusFailed ResultStatus = "failed"

	// ResultStatusError indicates the task could not produce a verdict.
	ResultStatusError ResultStatus = "error"

	// ResultStatusInconclusive indicates the solver could not decide.
	ResultStatusInconclusive ResultStatus = "inconclusive"

	// ResultStatusConsensusNotReached indicates validators disagreed below
	// the required consensus threshold.
	ResultStatusConsensusNotReached ResultStatus = "consensus_not_reached"
)

// ResultPayload is the structured verdict a validator produces.
type ResultPayload struct {
	// Status is the validator's verdict.
	Status ResultStatus `json:"status"`

	// Counterexample is a satisfying assignment refuting entailment,
	// empty when Status is verified.
	Counterexample string `json:"counterexample,omitempty"`

	// Detail is a human-readable elaboration (solver messages,
	// skipped-clause warnings).
	Detail string `json:"detail,omitempty"`
}

// ValidationResult is one validator's output for one task.
//
// Produced exactly once per validator per task and immutable after
// creation.
type ValidationResult struct {
	// TaskID is the task this result belongs to.
	TaskID string `json:"task_id"`

	// ValidatorID identifies the validator replica that produced it.
	ValidatorID string `json:"validator_id"`

	// Payload is the structured verdict.
	Payload ResultPayload `json:"payload"`

	// Confidence is the validator's self-reported confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// ExecutionTime is how long the validation took.
	ExecutionTime time.Duration `json:"execution_time"`

	// Timestamp is when the result was produced.
	Timestamp time.Time `json:"timestamp"`
}

// IsValid reports whether the result participates in aggregation.
//
// A result is valid when its confidence is positive and its payload
// carries a status.
func (r ValidationResult) IsValid() bool {
	return r.Confidence > 0 && r.Payload.Status != ""
}
