// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package aggregate combines multiple validators' results for one task
// into a single verdict with a consensus level and a conflict record.
package aggregate

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/clearproof/clearproof/pkg/logging"
	"github.com/clearproof/clearproof/services/verifier/datatypes"
)

// Strategy selects how validator results are combined.
type Strategy string

const (
	StrategyMajorityVote       Strategy = "majority_vote"
	StrategyWeightedAverage    Strategy = "weighted_average"
	StrategyByzantine          Strategy = "byzantine_fault_tolerant"
	StrategyConsensusThreshold Strategy = "consensus_threshold"
	StrategyFirstValid         Strategy = "first_valid"
)

// Conflict records one disagreement or override during aggregation.
type Conflict struct {
	// Reason is a human-readable description of the disagreement.
	Reason string `json:"reason"`

	// ValidatorIDs names the validators involved.
	ValidatorIDs []string `json:"validator_ids,omitempty"`
}

// AggregatedResult is the single verdict computed for one task.
type AggregatedResult struct {
	TaskID           string                  `json:"task_id"`
	Strategy         Strategy                `json:"strategy"`
	Result           datatypes.ResultPayload `json:"result"`
	Confidence       float64                 `json:"confidence"`
	ConsensusLevel   float64                 `json:"consensus_level"`
	Conflicts        []Conflict              `json:"conflicts,omitempty"`
	ResolutionMethod string                  `json:"resolution_method"`

	// Degraded is set when Byzantine aggregation fell back to majority
	// vote for lack of validators.
	Degraded bool `json:"degraded,omitempty"`
}

// Config configures aggregation thresholds. The outlier threshold and
// fault-tolerance ratio are heuristics, not protocol constants, so they
// are configurable.
type Config struct {
	// FaultToleranceRatio is the assumed fraction of faulty validators
	// for Byzantine aggregation. Default: 1/3
	FaultToleranceRatio float64 `json:"fault_tolerance_ratio"`

	// OutlierZScore is the z-score beyond which a validator's confidence
	// is discarded as an outlier. Default: 2.0
	OutlierZScore float64 `json:"outlier_z_score"`

	// ConsensusThreshold is the minimum consensus level for the
	// consensus-threshold strategy. Default: 0.67
	ConsensusThreshold float64 `json:"consensus_threshold"`

	// AllowFirstValid enables the first-valid strategy. Off by default.
	AllowFirstValid bool `json:"allow_first_valid"`
}

// DefaultConfig returns the default aggregation thresholds.
func DefaultConfig() Config {
	return Config{
		FaultToleranceRatio: 1.0 / 3.0,
		OutlierZScore:       2.0,
		ConsensusThreshold:  0.67,
	}
}

// Aggregator combines validator results.
//
// # Thread Safety
//
//	Stateless after construction; safe for concurrent use.
type Aggregator struct {
	cfg    Config
	logger *logging.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Aggregator. Zero-valued config fields fall back to
// DefaultConfig.
func New(cfg Config, opts ...Option) *Aggregator {
	def := DefaultConfig()
	if cfg.FaultToleranceRatio <= 0 || cfg.FaultToleranceRatio >= 1 {
		cfg.FaultToleranceRatio = def.FaultToleranceRatio
	}
	if cfg.OutlierZScore <= 0 {
		cfg.OutlierZScore = def.OutlierZScore
	}
	if cfg.ConsensusThreshold <= 0 || cfg.ConsensusThreshold > 1 {
		cfg.ConsensusThreshold = def.ConsensusThreshold
	}

	a := &Aggregator{cfg: cfg, logger: logging.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate combines results for a single task under the given strategy.
//
// # Inputs
//
//   - results: Per-validator results for one task. Invalid entries
//     (confidence <= 0 or empty payload) are filtered out first.
//   - strategy: One of the Strategy constants.
//
// # Outputs
//
//   - AggregatedResult: The combined verdict. Zero valid results yield
//     an explicit inconclusive verdict, never a default.
//   - error: ErrUnknownStrategy or ErrFirstValidDisabled. Disagreement
//     between validators is never an error.
func (a *Aggregator) Aggregate(results []datatypes.ValidationResult, strategy Strategy) (AggregatedResult, error) {
	taskID := ""
	if len(results) > 0 {
		taskID = results[0].TaskID
	}

	valid, invalid := partitionValid(results)
	if len(valid) == 0 {
		out := AggregatedResult{
			TaskID:   taskID,
			Strategy: strategy,
			Result: datatypes.ResultPayload{
				Status: datatypes.ResultStatusInconclusive,
				Detail: "no valid validator results",
			},
			ResolutionMethod: "no_valid_results",
		}
		if len(invalid) > 0 {
			out.Conflicts = append(out.Conflicts, Conflict{
				Reason:       "validator results rejected as malformed or zero-confidence",
				ValidatorIDs: validatorIDs(invalid),
			})
		}
		return out, nil
	}

	switch strategy {
	case StrategyMajorityVote:
		return a.majorityVote(taskID, valid, strategy, nil), nil
	case StrategyWeightedAverage:
		return a.weightedAverage(taskID, valid), nil
	case StrategyByzantine:
		return a.byzantine(taskID, valid), nil
	case StrategyConsensusThreshold:
		return a.consensusThreshold(taskID, valid), nil
	case StrategyFirstValid:
		if !a.cfg.AllowFirstValid {
			return AggregatedResult{}, ErrFirstValidDisabled
		}
		return a.firstValid(taskID, valid), nil
	default:
		return AggregatedResult{}, fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
}

// majorityVote tallies statuses; the highest count wins. Ties break by
// higher mean confidence, then lexicographic status for determinism.
func (a *Aggregator) majorityVote(taskID string, valid []datatypes.ValidationResult, strategy Strategy, carried []Conflict) AggregatedResult {
	votes := make(map[datatypes.ResultStatus][]datatypes.ValidationResult)
	for _, r := range valid {
		votes[r.Payload.Status] = append(votes[r.Payload.Status], r)
	}

	statuses := make([]datatypes.ResultStatus, 0, len(votes))
	for s := range votes {
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool {
		vi, vj := votes[statuses[i]], votes[statuses[j]]
		if len(vi) != len(vj) {
			return len(vi) > len(vj)
		}
		ci, cj := meanConfidence(vi), meanConfidence(vj)
		if ci != cj {
			return ci > cj
		}
		return statuses[i] < statuses[j]
	})

	winner := statuses[0]
	winners := votes[winner]

	out := AggregatedResult{
		TaskID:           taskID,
		Strategy:         strategy,
		Result:           representativePayload(winners),
		Confidence:       meanConfidence(winners),
		ConsensusLevel:   float64(len(winners)) / float64(len(valid)),
		Conflicts:        carried,
		ResolutionMethod: "majority_vote",
	}
	for _, s := range statuses[1:] {
		out.Conflicts = append(out.Conflicts, Conflict{
			Reason:       fmt.Sprintf("minority verdict %q overruled by majority %q", s, winner),
			ValidatorIDs: validatorIDs(votes[s]),
		})
	}
	return out
}

// weightedAverage computes a confidence-weighted mean confidence with
// consensus_level = 1 - confidence variance, clamped at zero.
func (a *Aggregator) weightedAverage(taskID string, valid []datatypes.ValidationResult) AggregatedResult {
	var weightSum, weighted float64
	for _, r := range valid {
		weightSum += r.Confidence
		weighted += r.Confidence * r.Confidence
	}

	mean := meanConfidence(valid)
	var variance float64
	for _, r := range valid {
		d := r.Confidence - mean
		variance += d * d
	}
	variance /= float64(len(valid))
	consensus := 1 - variance
	if consensus < 0 {
		consensus = 0
	}

	// Status still comes from the majority; the weighting only shapes
	// confidence and consensus.
	out := a.majorityVote(taskID, valid, StrategyWeightedAverage, nil)
	out.Confidence = weighted / weightSum
	out.ConsensusLevel = consensus
	out.ResolutionMethod = "weighted_average"
	return out
}

// byzantine requires at least 3f+1 validators for the configured fault
// ratio. With enough validators it discards confidence outliers by
// leave-one-out z-score, then majority-votes the retained set. A plain
// population z-score would let two coordinated outliers out of seven
// mask themselves by dragging the stddev up, so each validator is
// scored against the statistics of the others.
func (a *Aggregator) byzantine(taskID string, valid []datatypes.ValidationResult) AggregatedResult {
	n := len(valid)
	f := int(a.cfg.FaultToleranceRatio * float64(n))
	if n < 3*f+1 || n < 4 {
		a.logger.Warn("insufficient validators for byzantine aggregation, degrading to majority vote",
			"validators", n, "required", 3*f+1)
		out := a.majorityVote(taskID, valid, StrategyByzantine, []Conflict{{
			Reason: fmt.Sprintf("insufficient validators for byzantine fault tolerance (%d < %d), degraded to majority vote", n, maxInt(4, 3*f+1)),
		}})
		out.Degraded = true
		out.ResolutionMethod = "degraded_majority_vote"
		return out
	}

	var retained, discarded []datatypes.ValidationResult
	for i, r := range valid {
		mean, stddev := leaveOneOutStats(valid, i)
		dev := math.Abs(r.Confidence - mean)
		const eps = 1e-9
		outlier := false
		if stddev < eps {
			outlier = dev > eps
		} else {
			outlier = dev/stddev > a.cfg.OutlierZScore
		}
		if outlier {
			discarded = append(discarded, r)
		} else {
			retained = append(retained, r)
		}
	}

	var carried []Conflict
	if len(discarded) > 0 {
		carried = append(carried, Conflict{
			Reason:       fmt.Sprintf("discarded %d confidence outlier(s) beyond z-score %.2f", len(discarded), a.cfg.OutlierZScore),
			ValidatorIDs: validatorIDs(discarded),
		})
	}
	if len(retained) == 0 {
		// Every validator looked like an outlier to the rest; nothing
		// trustworthy remains.
		return AggregatedResult{
			TaskID:   taskID,
			Strategy: StrategyByzantine,
			Result: datatypes.ResultPayload{
				Status: datatypes.ResultStatusInconclusive,
				Detail: "all validator results discarded as outliers",
			},
			Conflicts:        carried,
			ResolutionMethod: "all_outliers_discarded",
		}
	}

	out := a.majorityVote(taskID, retained, StrategyByzantine, carried)
	out.ResolutionMethod = "byzantine_outlier_filtered_majority"
	return out
}

// consensusThreshold majority-votes, then rejects the answer outright
// when the consensus level falls below the required threshold.
func (a *Aggregator) consensusThreshold(taskID string, valid []datatypes.ValidationResult) AggregatedResult {
	out := a.majorityVote(taskID, valid, StrategyConsensusThreshold, nil)
	if out.ConsensusLevel < a.cfg.ConsensusThreshold {
		out.Conflicts = append(out.Conflicts, Conflict{
			Reason: fmt.Sprintf("consensus level %.2f below required threshold %.2f", out.ConsensusLevel, a.cfg.ConsensusThreshold),
		})
		out.Result = datatypes.ResultPayload{
			Status: datatypes.ResultStatusConsensusNotReached,
			Detail: fmt.Sprintf("majority verdict discarded: consensus %.2f < %.2f", out.ConsensusLevel, a.cfg.ConsensusThreshold),
		}
		out.Confidence = 0
		out.ResolutionMethod = "consensus_threshold_not_met"
	} else {
		out.ResolutionMethod = "consensus_threshold"
	}
	return out
}

// firstValid returns the earliest-timestamped valid result.
func (a *Aggregator) firstValid(taskID string, valid []datatypes.ValidationResult) AggregatedResult {
	earliest := valid[0]
	for _, r := range valid[1:] {
		if r.Timestamp.Before(earliest.Timestamp) {
			earliest = r
		}
	}
	out := AggregatedResult{
		TaskID:           taskID,
		Strategy:         StrategyFirstValid,
		Result:           earliest.Payload,
		Confidence:       earliest.Confidence,
		ConsensusLevel:   1.0 / float64(len(valid)),
		ResolutionMethod: "first_valid",
	}
	if len(valid) > 1 {
		var overridden []datatypes.ValidationResult
		for _, r := range valid {
			if r.ValidatorID != earliest.ValidatorID {
				overridden = append(overridden, r)
			}
		}
		out.Conflicts = append(out.Conflicts, Conflict{
			Reason:       fmt.Sprintf("later results ignored in favor of first responder %q", earliest.ValidatorID),
			ValidatorIDs: validatorIDs(overridden),
		})
	}
	return out
}

// === helpers ===

func partitionValid(results []datatypes.ValidationResult) (valid, invalid []datatypes.ValidationResult) {
	for _, r := range results {
		if r.IsValid() {
			valid = append(valid, r)
		} else {
			invalid = append(invalid, r)
		}
	}
	return valid, invalid
}

func meanConfidence(results []datatypes.ValidationResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.Confidence
	}
	return sum / float64(len(results))
}

// leaveOneOutStats returns the mean and population stddev of all
// confidences except index i.
func leaveOneOutStats(results []datatypes.ValidationResult, i int) (mean, stddev float64) {
	n := len(results) - 1
	if n <= 0 {
		return results[i].Confidence, 0
	}
	var sum float64
	for j, r := range results {
		if j == i {
			continue
		}
		sum += r.Confidence
	}
	mean = sum / float64(n)

	var variance float64
	for j, r := range results {
		if j == i {
			continue
		}
		d := r.Confidence - mean
		variance += d * d
	}
	variance /= float64(n)
	return mean, math.Sqrt(variance)
}

// representativePayload picks the highest-confidence payload among the
// winning votes so counterexamples and details survive aggregation.
func representativePayload(winners []datatypes.ValidationResult) datatypes.ResultPayload {
	best := winners[0]
	for _, r := range winners[1:] {
		if r.Confidence > best.Confidence {
			best = r
		}
	}
	return best.Payload
}

func validatorIDs(results []datatypes.ValidationResult) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		id := r.ValidatorID
		if id == "" {
			id = r.TaskID
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ParseStrategy validates a strategy name from a request.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyMajorityVote:
		return StrategyMajorityVote, nil
	case StrategyWeightedAverage:
		return StrategyWeightedAverage, nil
	case StrategyByzantine, "":
		return StrategyByzantine, nil
	case StrategyConsensusThreshold:
		return StrategyConsensusThreshold, nil
	case StrategyFirstValid:
		return StrategyFirstValid, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}
