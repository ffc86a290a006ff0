// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package aggregate

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/clearproof/clearproof/services/verifier/datatypes"
)

func result(validator string, status datatypes.ResultStatus, confidence float64) datatypes.ValidationResult {
	return datatypes.ValidationResult{
		TaskID:      "task-1",
		ValidatorID: validator,
		Payload:     datatypes.ResultPayload{Status: status},
		Confidence:  confidence,
		Timestamp:   time.Now(),
	}
}

func results(status datatypes.ResultStatus, confidence float64, n int) []datatypes.ValidationResult {
	out := make([]datatypes.ValidationResult, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, result(fmt.Sprintf("validator-%d", i), status, confidence))
	}
	return out
}

func TestAggregate_ZeroValidResultsIsInconclusive(t *testing.T) {
	a := New(DefaultConfig())

	cases := [][]datatypes.ValidationResult{
		nil,
		{result("v1", datatypes.ResultStatusVerified, 0)},   // zero confidence
		{result("v1", "", 0.9)},                             // empty payload
	}
	for i, input := range cases {
		out, err := a.Aggregate(input, StrategyMajorityVote)
		if err != nil {
			t.Fatalf("case %d: Aggregate returned error: %v", i, err)
		}
		if out.Result.Status != datatypes.ResultStatusInconclusive {
			t.Errorf("case %d: status = %q, want inconclusive, never a default verdict", i, out.Result.Status)
		}
	}
}

func TestMajorityVote_ThreeToTwo(t *testing.T) {
	a := New(DefaultConfig())
	input := append(
		results(datatypes.ResultStatusVerified, 0.9, 3),
		result("v-f1", datatypes.ResultStatusFailed, 0.9),
		result("v-f2", datatypes.ResultStatusFailed, 0.9),
	)

	out, err := a.Aggregate(input, StrategyMajorityVote)
	if err != nil {
		t.Fatalf("Aggregate returned error: %v", err)
	}

	if out.Result.Status != datatypes.ResultStatusVerified {
		t.Errorf("status = %q, want verified", out.Result.Status)
	}
	if math.Abs(out.ConsensusLevel-0.6) > 1e-9 {
		t.Errorf("consensus = %v, want 0.6", out.ConsensusLevel)
	}
	if math.Abs(out.Confidence-0.9) > 1e-9 {
		t.Errorf("confidence = %v, want mean of winning votes 0.9", out.Confidence)
	}
	if len(out.Conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1 for the minority verdict", len(out.Conflicts))
	}
	if got := out.Conflicts[0].ValidatorIDs; len(got) != 2 {
		t.Errorf("conflict names %v, want the 2 failed validators", got)
	}
}

func TestWeightedAverage_ConsensusIsOneMinusVariance(t *testing.T) {
	a := New(DefaultConfig())
	input := []datatypes.ValidationResult{
		result("v1", datatypes.ResultStatusVerified, 0.8),
		result("v2", datatypes.ResultStatusVerified, 0.6),
	}

	out, err := a.Aggregate(input, StrategyWeightedAverage)
	if err != nil {
		t.Fatalf("Aggregate returned error: %v", err)
	}

	// Weighted mean = (0.64 + 0.36) / 1.4; variance of {0.8, 0.6} = 0.01.
	wantConfidence := (0.8*0.8 + 0.6*0.6) / 1.4
	if math.Abs(out.Confidence-wantConfidence) > 1e-9 {
		t.Errorf("confidence = %v, want %v", out.Confidence, wantConfidence)
	}
	if math.Abs(out.ConsensusLevel-0.99) > 1e-9 {
		t.Errorf("consensus = %v, want 0.99", out.ConsensusLevel)
	}
}

func TestByzantine_DiscardsExtremeOutliers(t *testing.T) {
	a := New(DefaultConfig())

	// Seven validators: a cluster of five at 0.9 says verified, two
	// coordinated outliers at 0.01 say failed.
	input := append(
		results(datatypes.ResultStatusVerified, 0.9, 5),
		result("outlier-1", datatypes.ResultStatusFailed, 0.01),
		result("outlier-2", datatypes.ResultStatusFailed, 0.01),
	)

	out, err := a.Aggregate(input, StrategyByzantine)
	if err != nil {
		t.Fatalf("Aggregate returned error: %v", err)
	}

	if out.Degraded {
		t.Fatal("7 validators should not degrade")
	}
	if out.Result.Status != datatypes.ResultStatusVerified {
		t.Errorf("status = %q, want the cluster's verdict", out.Result.Status)
	}
	if math.Abs(out.ConsensusLevel-1.0) > 1e-9 {
		t.Errorf("consensus = %v, want 1.0 over the retained five", out.ConsensusLevel)
	}

	var discarded *Conflict
	for i := range out.Conflicts {
		if len(out.Conflicts[i].ValidatorIDs) == 2 {
			discarded = &out.Conflicts[i]
		}
	}
	if discarded == nil {
		t.Fatalf("no conflict names the 2 discarded outliers: %+v", out.Conflicts)
	}
	want := map[string]bool{"outlier-1": true, "outlier-2": true}
	for _, id := range discarded.ValidatorIDs {
		if !want[id] {
			t.Errorf("discarded unexpected validator %q", id)
		}
	}
}

func TestByzantine_DegradesBelowQuorum(t *testing.T) {
	a := New(DefaultConfig())
	input := results(datatypes.ResultStatusVerified, 0.9, 3)

	out, err := a.Aggregate(input, StrategyByzantine)
	if err != nil {
		t.Fatalf("Aggregate returned error: %v", err)
	}

	if !out.Degraded {
		t.Fatal("3 validators must degrade to majority vote and be flagged")
	}
	if out.Result.Status != datatypes.ResultStatusVerified {
		t.Errorf("status = %q, want verified from the majority fallback", out.Result.Status)
	}
	if len(out.Conflicts) == 0 {
		t.Error("degradation should be recorded as a conflict")
	}
}

func TestByzantine_UnanimousQuorum(t *testing.T) {
	a := New(DefaultConfig())
	input := results(datatypes.ResultStatusVerified, 0.9, 4)

	out, err := a.Aggregate(input, StrategyByzantine)
	if err != nil {
		t.Fatalf("Aggregate returned error: %v", err)
	}
	if out.Degraded {
		t.Fatal("4 validators with f=1 satisfy 3f+1")
	}
	if out.Result.Status != datatypes.ResultStatusVerified || out.ConsensusLevel != 1 {
		t.Errorf("got status=%q consensus=%v, want verified/1.0", out.Result.Status, out.ConsensusLevel)
	}
}

func TestConsensusThreshold_NotReached(t *testing.T) {
	a := New(DefaultConfig())
	input := append(
		results(datatypes.ResultStatusVerified, 0.9, 3),
		result("v-f1", datatypes.ResultStatusFailed, 0.9),
		result("v-f2", datatypes.ResultStatusFailed, 0.9),
	)

	// Consensus 0.6 < required 0.67.
	out, err := a.Aggregate(input, StrategyConsensusThreshold)
	if err != nil {
		t.Fatalf("Aggregate returned error: %v", err)
	}
	if out.Result.Status != datatypes.ResultStatusConsensusNotReached {
		t.Errorf("status = %q, want consensus_not_reached", out.Result.Status)
	}
}

func TestConsensusThreshold_Reached(t *testing.T) {
	a := New(DefaultConfig())
	input := append(
		results(datatypes.ResultStatusVerified, 0.9, 3),
		result("v-f1", datatypes.ResultStatusFailed, 0.9),
	)

	// Consensus 0.75 >= 0.67.
	out, err := a.Aggregate(input, StrategyConsensusThreshold)
	if err != nil {
		t.Fatalf("Aggregate returned error: %v", err)
	}
	if out.Result.Status != datatypes.ResultStatusVerified {
		t.Errorf("status = %q, want verified", out.Result.Status)
	}
}

func TestFirstValid_RequiresOptIn(t *testing.T) {
	a := New(DefaultConfig())
	input := results(datatypes.ResultStatusVerified, 0.9, 2)

	if _, err := a.Aggregate(input, StrategyFirstValid); !errors.Is(err, ErrFirstValidDisabled) {
		t.Fatalf("got %v, want ErrFirstValidDisabled", err)
	}
}

func TestFirstValid_ReturnsEarliest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowFirstValid = true
	a := New(cfg)

	now := time.Now()
	early := result("fast", datatypes.ResultStatusFailed, 0.7)
	early.Timestamp = now.Add(-time.Second)
	late := result("slow", datatypes.ResultStatusVerified, 0.95)
	late.Timestamp = now

	out, err := a.Aggregate([]datatypes.ValidationResult{late, early}, StrategyFirstValid)
	if err != nil {
		t.Fatalf("Aggregate returned error: %v", err)
	}
	if out.Result.Status != datatypes.ResultStatusFailed {
		t.Errorf("status = %q, want the first responder's verdict", out.Result.Status)
	}
	if len(out.Conflicts) != 1 {
		t.Errorf("got %d conflicts, want 1 recording the ignored later result", len(out.Conflicts))
	}
}

func TestAggregate_UnknownStrategy(t *testing.T) {
	a := New(DefaultConfig())
	input := results(datatypes.ResultStatusVerified, 0.9, 1)

	if _, err := a.Aggregate(input, Strategy("quantum_vote")); !errors.Is(err, ErrUnknownStrategy) {
		t.Fatalf("got %v, want ErrUnknownStrategy", err)
	}
}

func TestParseStrategy(t *testing.T) {
	if s, err := ParseStrategy(""); err != nil || s != StrategyByzantine {
		t.Errorf("empty strategy: got (%q, %v), want byzantine default", s, err)
	}
	if s, err := ParseStrategy("  Majority_Vote "); err != nil || s != StrategyMajorityVote {
		t.Errorf("got (%q, %v), want majority_vote", s, err)
	}
	if _, err := ParseStrategy("nope"); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("got %v, want ErrUnknownStrategy", err)
	}
}

func TestMajorityVote_TieBreaksDeterministically(t *testing.T) {
	a := New(DefaultConfig())
	input := []datatypes.ValidationResult{
		result("v1", datatypes.ResultStatusVerified, 0.8),
		result("v2", datatypes.ResultStatusFailed, 0.8),
	}

	first, err := a.Aggregate(input, StrategyMajorityVote)
	if err != nil {
		t.Fatalf("Aggregate returned error: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := a.Aggregate(input, StrategyMajorityVote)
		if err != nil {
			t.Fatalf("Aggregate returned error: %v", err)
		}
		if again.Result.Status != first.Result.Status {
			t.Fatalf("tie broke differently across runs: %q vs %q", again.Result.Status, first.Result.Status)
		}
	}
}
