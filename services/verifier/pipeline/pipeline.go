// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package pipeline sequences a verification request end to end:
// fetch rules and principles, build the task graph, execute level by
// level, aggregate validator results, persist verdicts, and cache the
// response. Structural failures (fetch failure, dependency cycle)
// abort the whole request; per-task failures never touch sibling tasks.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clearproof/clearproof/pkg/logging"
	"github.com/clearproof/clearproof/services/verifier/aggregate"
	"github.com/clearproof/clearproof/services/verifier/cache"
	"github.com/clearproof/clearproof/services/verifier/dag"
	"github.com/clearproof/clearproof/services/verifier/datatypes"
	"github.com/clearproof/clearproof/services/verifier/executor"
	"github.com/clearproof/clearproof/services/verifier/observability"
	"github.com/clearproof/clearproof/services/verifier/oracle"
	"github.com/clearproof/clearproof/services/verifier/partition"
	"github.com/clearproof/clearproof/services/verifier/remote"
	"github.com/clearproof/clearproof/services/verifier/stores"
)

var tracer = otel.Tracer("clearproof.verifier")

// Config configures pipeline behavior.
type Config struct {
	// ValidatorCount is how many validators verify each task locally.
	// Default: 4 (the smallest Byzantine quorum for f=1).
	ValidatorCount int `json:"validator_count"`

	// MaxBatchSize caps tasks per batch. Default: partition default.
	MaxBatchSize int `json:"max_batch_size"`

	// CacheTTL is how long verdicts stay cached. Default: cache default.
	CacheTTL time.Duration `json:"cache_ttl"`

	// RemotePollInterval is the poll interval for remote batches.
	RemotePollInterval time.Duration `json:"remote_poll_interval"`
}

// DefaultConfig returns pipeline defaults.
func DefaultConfig() Config {
	return Config{
		ValidatorCount:     4,
		RemotePollInterval: 500 * time.Millisecond,
	}
}

// Deps are the required collaborators.
type Deps struct {
	Rules      stores.RuleStore
	Principles stores.PrincipleStore
	Oracle     *oracle.Oracle
	Executor   *executor.Executor
	Aggregator *aggregate.Aggregator
}

// Pipeline orchestrates verification requests.
//
// # Thread Safety
//
//	Safe for concurrent use; each Run keeps its own state.
type Pipeline struct {
	cfg         Config
	rules       stores.RuleStore
	principles  stores.PrincipleStore
	oracle      *oracle.Oracle
	executor    *executor.Executor
	aggregator  *aggregate.Aggregator
	partitioner *partition.Partitioner
	cache       cache.VerdictCache
	backend     remote.Backend
	logger      *logging.Logger
	queueDepth  atomic.Int64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCache attaches an advisory verdict cache.
func WithCache(c cache.VerdictCache) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.cache = c
		}
	}
}

// WithBackend attaches an optional distributed-execution backend.
// Backend failures fall back transparently to local execution.
func WithBackend(b remote.Backend) Option {
	return func(p *Pipeline) { p.backend = b }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Pipeline. Missing required dependencies fail fast.
func New(cfg Config, deps Deps, opts ...Option) (*Pipeline, error) {
	if deps.Rules == nil {
		return nil, fmt.Errorf("%w: rule store", ErrMissingDependency)
	}
	if deps.Principles == nil {
		return nil, fmt.Errorf("%w: principle store", ErrMissingDependency)
	}
	if deps.Oracle == nil {
		return nil, fmt.Errorf("%w: oracle", ErrMissingDependency)
	}
	if deps.Executor == nil {
		return nil, fmt.Errorf("%w: executor", ErrMissingDependency)
	}
	if deps.Aggregator == nil {
		return nil, fmt.Errorf("%w: aggregator", ErrMissingDependency)
	}

	def := DefaultConfig()
	if cfg.ValidatorCount <= 0 {
		cfg.ValidatorCount = def.ValidatorCount
	}
	if cfg.RemotePollInterval <= 0 {
		cfg.RemotePollInterval = def.RemotePollInterval
	}

	var partitionOpts []partition.Option
	if cfg.MaxBatchSize > 0 {
		partitionOpts = append(partitionOpts, partition.WithMaxBatchSize(cfg.MaxBatchSize))
	}

	p := &Pipeline{
		cfg:         cfg,
		rules:       deps.Rules,
		principles:  deps.Principles,
		oracle:      deps.Oracle,
		executor:    deps.Executor,
		aggregator:  deps.Aggregator,
		partitioner: partition.New(partitionOpts...),
		cache:       cache.Nop{},
		logger:      logging.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// QueueDepth reports tasks scheduled but not yet terminal. The resource
// monitor reads this as the scale-up backlog signal.
func (p *Pipeline) QueueDepth() int {
	return int(p.queueDepth.Load())
}

// Run verifies the requested rules and returns exactly one verdict per
// requested rule id.
func (p *Pipeline) Run(ctx context.Context, req datatypes.VerifyRulesRequest) (*datatypes.VerifyRulesResponse, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	strategy, err := aggregate.ParseStrategy(req.Strategy)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	start := time.Now()
	runID := uuid.NewString()

	ctx, span := tracer.Start(ctx, "Pipeline.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("verifier.run_id", runID),
		attribute.Int("verifier.rule_count", len(req.RuleIDs)),
		attribute.String("verifier.strategy", string(strategy)),
	)

	ruleIDs := dedupe(req.RuleIDs)
	key := cache.Key(ruleIDs)
	if resp, ok, cerr := p.cache.Get(ctx, key); cerr == nil && ok {
		observability.RecordCacheHit()
		out := *resp
		out.Cached = true
		out.Duration = time.Since(start)
		return &out, nil
	}
	observability.RecordCacheMiss()

	rules, err := p.rules.GetRulesByIDs(ctx, ruleIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuleFetch, err)
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("%w: none of %d requested rules exist", ErrNoRules, len(ruleIDs))
	}
	ruleByID := make(map[string]datatypes.Rule, len(rules))
	for _, r := range rules {
		ruleByID[r.ID] = r
	}

	principles, principleErr := p.fetchPrinciples(ctx, req, rules)

	tasks := p.buildTasks(rules, principles, req.PrincipleIDs)
	taskPtrs := make([]*datatypes.VerificationTask, len(tasks))
	for i := range tasks {
		taskPtrs[i] = &tasks[i]
	}
	graph, err := dag.Build(taskPtrs)
	if err != nil {
		// A cycle is a structural failure for the whole request.
		return nil, fmt.Errorf("dependency analysis: %w", err)
	}
	levels := graph.Levels()
	critical := graph.CriticalPath()
	span.SetAttributes(
		attribute.Int("verifier.levels", len(levels)),
		attribute.Int("verifier.critical_path_len", len(critical.TaskIDs)),
	)
	p.logger.Debug("scheduled verification run",
		"run_id", runID,
		"tasks", len(tasks),
		"levels", len(levels),
		"critical_path_weight", critical.Weight)

	taskByID := make(map[string]datatypes.VerificationTask, len(tasks))
	for _, t := range tasks {
		taskByID[t.ID] = t
	}

	collector := newResultCollector()
	for _, level := range levels {
		levelTasks := make([]datatypes.VerificationTask, 0, len(level))
		for _, id := range level {
			levelTasks = append(levelTasks, taskByID[id])
		}
		for _, batch := range p.partitioner.Partition(levelTasks) {
			p.runBatch(ctx, batch, collector, principleErr)
		}
	}

	resp := p.assemble(ctx, runID, ruleIDs, ruleByID, principles, collector, strategy, principleErr)
	resp.Duration = time.Since(start)

	observability.RecordRequest(string(resp.OverallStatus), resp.Duration)
	if resp.OverallStatus != datatypes.OverallError {
		if cerr := p.cache.Set(ctx, key, resp, p.cfg.CacheTTL); cerr != nil {
			p.logger.Warn("verdict cache write failed", "run_id", runID, "error", cerr)
		}
	}
	return resp, nil
}

// fetchPrinciples gathers the union of explicitly requested principles
// and those referenced by the fetched rules. A fetch failure is not
// structural: it fails the affected obligations, not the request.
func (p *Pipeline) fetchPrinciples(ctx context.Context, req datatypes.VerifyRulesRequest, rules []datatypes.Rule) ([]datatypes.Principle, error) {
	ids := make([]string, 0, len(req.PrincipleIDs))
	ids = append(ids, req.PrincipleIDs...)
	for _, r := range rules {
		ids = append(ids, r.PrincipleIDs...)
	}
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, nil
	}

	principles, err := p.principles.GetPrinciplesByIDs(ctx, ids)
	if err != nil {
		p.logger.Warn("principle fetch failed, affected obligations will be inconclusive", "error", err)
		return nil, err
	}
	return principles, nil
}

// buildTasks creates one verification task per rule plus one
// consistency-check task per principle. A rule task depends on the
// check tasks of every principle it references, so principle-level
// verdicts are terminal before any rule using them runs.
func (p *Pipeline) buildTasks(rules []datatypes.Rule, principles []datatypes.Principle, explicitPrincipleIDs []string) []datatypes.VerificationTask {
	principleByID := make(map[string]datatypes.Principle, len(principles))
	for _, pr := range principles {
		principleByID[pr.ID] = pr
	}

	// Clauses of every rule referencing a principle, for the
	// principle-wide consistency check.
	referencing := make(map[string][]string)
	for _, r := range rules {
		for _, pid := range r.PrincipleIDs {
			referencing[pid] = append(referencing[pid], r.Clauses...)
		}
	}

	now := time.Now()
	tasks := make([]datatypes.VerificationTask, 0, len(rules)+len(principles))

	for _, pr := range principles {
		clauses := referencing[pr.ID]
		if len(clauses) == 0 {
			// Explicitly requested principle: checked against the
			// whole rule set.
			for _, r := range rules {
				clauses = append(clauses, r.Clauses...)
			}
		}
		tasks = append(tasks, datatypes.VerificationTask{
			ID:   "check-" + pr.ID,
			Type: datatypes.TaskTypeConsistencyCheck,
			Payload: datatypes.TaskPayload{
				Rules:        clauses,
				Obligations:  pr.Obligations,
				PrincipleIDs: []string{pr.ID},
			},
			Status:    datatypes.TaskStatusPending,
			CreatedAt: now,
		})
	}

	explicit := dedupe(explicitPrincipleIDs)
	for _, r := range rules {
		pids := dedupe(append(append([]string{}, r.PrincipleIDs...), explicit...))

		var obligations []string
		var deps []string
		for _, pid := range pids {
			pr, ok := principleByID[pid]
			if !ok {
				continue
			}
			obligations = append(obligations, pr.Obligations...)
			deps = append(deps, "check-"+pid)
		}

		tasks = append(tasks, datatypes.VerificationTask{
			ID:   "verify-" + r.ID,
			Type: datatypes.TaskTypeRuleVerification,
			Payload: datatypes.TaskPayload{
				RuleID:       r.ID,
				Rules:        r.Clauses,
				Obligations:  obligations,
				PrincipleIDs: pids,
			},
			Dependencies: deps,
			Status:       datatypes.TaskStatusPending,
			CreatedAt:    now,
		})
	}
	return tasks
}

// runBatch executes one batch remotely when a backend is configured and
// healthy, locally otherwise. Results land in the collector.
func (p *Pipeline) runBatch(ctx context.Context, batch datatypes.ValidationBatch, collector *resultCollector, principleErr error) {
	p.queueDepth.Add(int64(len(batch.Tasks)))

	if p.backend != nil {
		if done := p.runRemote(ctx, batch, collector); done {
			p.queueDepth.Add(-int64(len(batch.Tasks)))
			return
		}
		p.logger.Warn("remote execution unavailable, falling back to local", "batch_id", batch.ID)
	}

	outcome, err := p.executor.Execute(ctx, batch, p.taskFunc(collector, principleErr), func(completed, total int, last *datatypes.ValidationResult) {
		p.queueDepth.Add(-1)
		if last != nil {
			observability.RecordTask(string(last.Payload.Status), last.ExecutionTime)
		}
	})
	if err != nil {
		// Execute fails only on misuse (closed executor); mark the
		// whole batch so no rule silently loses its result.
		p.logger.Error("batch execution failed", "batch_id", batch.ID, "error", err)
		p.queueDepth.Add(-int64(len(batch.Tasks)))
		for _, task := range batch.Tasks {
			collector.add(datatypes.ValidationResult{
				TaskID:      task.ID,
				ValidatorID: "validator-0",
				Payload: datatypes.ResultPayload{
					Status: datatypes.ResultStatusError,
					Detail: err.Error(),
				},
				Confidence: 1,
				Timestamp:  time.Now(),
			})
		}
		return
	}
	// Terminal error results (exhausted retries, never-started tasks)
	// carry the failure cause. Surface them for any task no validator
	// reached, so its verdict reports the cause instead of an empty
	// aggregation.
	for _, r := range outcome.Results {
		if r.Payload.Status != datatypes.ResultStatusError || collector.has(r.TaskID) {
			continue
		}
		r.ValidatorID = "validator-0"
		r.Confidence = 1
		collector.add(r)
	}
	if outcome.Cancelled {
		p.logger.Warn("batch cancelled before completion",
			"batch_id", batch.ID,
			"completed", len(outcome.Results),
			"total", len(batch.Tasks))
	}
}

// runRemote submits a batch to the backend and waits for its results.
// Any failure reports false so the caller executes locally instead.
// Results are committed only when every task in the batch is covered:
// remote workers may drop tasks, and a partial remote set mixed with a
// local re-run would skew consensus levels across the batch.
func (p *Pipeline) runRemote(ctx context.Context, batch datatypes.ValidationBatch, collector *resultCollector) bool {
	id, err := p.backend.SubmitBatch(ctx, batch)
	if err != nil {
		return false
	}
	results, err := remote.AwaitResults(ctx, p.backend, id, p.cfg.RemotePollInterval)
	if err != nil {
		return false
	}
	covered := make(map[string]bool, len(batch.Tasks))
	for _, r := range results {
		covered[r.TaskID] = true
	}
	for _, task := range batch.Tasks {
		if !covered[task.ID] {
			return false
		}
	}
	for _, r := range results {
		collector.add(r)
	}
	return true
}

// taskFunc builds the executor work function. Each task is verified by
// ValidatorCount independent validators; every validator's result is
// collected for aggregation.
func (p *Pipeline) taskFunc(collector *resultCollector, principleErr error) executor.TaskFunc {
	return func(ctx context.Context, task datatypes.VerificationTask) (datatypes.ValidationResult, error) {
		if principleErr != nil && len(task.Payload.Obligations) == 0 && len(task.Payload.PrincipleIDs) > 0 {
			// Obligations were lost to the failed principle fetch.
			result := datatypes.ValidationResult{
				TaskID:      task.ID,
				ValidatorID: "validator-0",
				Payload: datatypes.ResultPayload{
					Status: datatypes.ResultStatusError,
					Detail: fmt.Sprintf("principle store unavailable: %v", principleErr),
				},
				Confidence: 1,
				Timestamp:  time.Now(),
			}
			collector.add(result)
			return result, nil
		}

		var first datatypes.ValidationResult
		for v := 0; v < p.cfg.ValidatorCount; v++ {
			attemptStart := time.Now()
			outcome, err := p.oracle.Verify(ctx, task.Payload.Rules, task.Payload.Obligations)
			if err != nil {
				return datatypes.ValidationResult{}, err
			}

			payload, confidence := outcomeToPayload(outcome)
			observability.RecordOracleQuery(string(payload.Status))

			result := datatypes.ValidationResult{
				TaskID:        task.ID,
				ValidatorID:   fmt.Sprintf("validator-%d", v),
				Payload:       payload,
				Confidence:    confidence,
				ExecutionTime: time.Since(attemptStart),
				Timestamp:     time.Now(),
			}
			collector.add(result)
			if v == 0 {
				first = result
			}
		}
		return first, nil
	}
}

// outcomeToPayload maps an oracle outcome to a result payload. Unknown
// is a distinct inconclusive state, never failed.
func outcomeToPayload(outcome oracle.Outcome) (datatypes.ResultPayload, float64) {
	switch {
	case outcome.Unknown:
		return datatypes.ResultPayload{
			Status: datatypes.ResultStatusInconclusive,
			Detail: outcome.Message,
		}, 0.5
	case outcome.Entailed:
		return datatypes.ResultPayload{
			Status: datatypes.ResultStatusVerified,
		}, 1
	default:
		return datatypes.ResultPayload{
			Status:         datatypes.ResultStatusFailed,
			Counterexample: outcome.Counterexample,
			Detail:         "obligations are not entailed by the rules",
		}, 1
	}
}

// assemble aggregates collected results into exactly one verdict per
// requested rule id and persists verdicts back to the rule store.
func (p *Pipeline) assemble(
	ctx context.Context,
	runID string,
	ruleIDs []string,
	ruleByID map[string]datatypes.Rule,
	principles []datatypes.Principle,
	collector *resultCollector,
	strategy aggregate.Strategy,
	principleErr error,
) *datatypes.VerifyRulesResponse {
	resp := &datatypes.VerifyRulesResponse{
		RunID:   runID,
		Results: make([]datatypes.RuleVerdict, 0, len(ruleIDs)),
	}

	// Principle-level verdicts first; rule verdicts reference them.
	principleIssue := make(map[string]string)
	for _, pr := range principles {
		agg, err := p.aggregator.Aggregate(collector.get("check-"+pr.ID), strategy)
		if err != nil {
			principleIssue[pr.ID] = fmt.Sprintf("principle %s aggregation failed: %v", pr.ID, err)
			continue
		}
		observability.RecordAggregation(string(agg.Strategy), agg.Degraded)
		if agg.Degraded {
			resp.Degraded = true
		}
		if agg.Result.Status != datatypes.ResultStatusVerified {
			principleIssue[pr.ID] = fmt.Sprintf("principle %s not upheld across its rules (%s)", pr.ID, agg.Result.Status)
		}
	}

	for _, id := range ruleIDs {
		rule, found := ruleByID[id]
		if !found {
			resp.Results = append(resp.Results, datatypes.RuleVerdict{
				RuleID:  id,
				Status:  datatypes.ResultStatusError,
				Message: "rule not found in rule store",
			})
			continue
		}

		agg, err := p.aggregator.Aggregate(collector.get("verify-"+id), strategy)
		if err != nil {
			resp.Results = append(resp.Results, datatypes.RuleVerdict{
				RuleID:  id,
				Status:  datatypes.ResultStatusError,
				Message: fmt.Sprintf("aggregation failed: %v", err),
			})
			continue
		}
		observability.RecordAggregation(string(agg.Strategy), agg.Degraded)
		if agg.Degraded {
			resp.Degraded = true
		}

		verdict := datatypes.RuleVerdict{
			RuleID:         id,
			Status:         agg.Result.Status,
			Counterexample: agg.Result.Counterexample,
			Confidence:     agg.Confidence,
			ConsensusLevel: agg.ConsensusLevel,
			Message:        agg.Result.Detail,
		}
		for _, c := range agg.Conflicts {
			verdict.Conflicts = append(verdict.Conflicts, c.Reason)
		}
		for _, pid := range rule.PrincipleIDs {
			if issue, ok := principleIssue[pid]; ok {
				verdict.Conflicts = append(verdict.Conflicts, issue)
			}
		}

		// Persist the verdict; failure is a warning, never fatal.
		if _, perr := p.rules.UpdateRuleStatus(ctx, id, string(verdict.Status)); perr != nil {
			p.logger.Warn("rule status write-back failed",
				"run_id", runID, "rule_id", id, "error", perr)
			verdict.Message = appendMessage(verdict.Message, fmt.Sprintf("persistence warning: %v", perr))
		}

		resp.Results = append(resp.Results, verdict)
	}

	if principleErr != nil {
		resp.Degraded = true
	}
	resp.OverallStatus = overallStatus(resp.Results)
	return resp
}

// overallStatus summarizes the worst outcome across rules.
func overallStatus(verdicts []datatypes.RuleVerdict) datatypes.OverallStatus {
	worst := datatypes.OverallAllVerified
	for _, v := range verdicts {
		switch v.Status {
		case datatypes.ResultStatusError:
			return datatypes.OverallError
		case datatypes.ResultStatusConsensusNotReached:
			worst = datatypes.OverallConsensusNotReached
		case datatypes.ResultStatusFailed, datatypes.ResultStatusInconclusive:
			if worst != datatypes.OverallConsensusNotReached {
				worst = datatypes.OverallSomeFailed
			}
		}
	}
	return worst
}

// === run-scoped result collection ===

// resultCollector accumulates validator results per task id.
type resultCollector struct {
	mu      sync.Mutex
	results map[string][]datatypes.ValidationResult
}

func newResultCollector() *resultCollector {
	return &resultCollector{results: make(map[string][]datatypes.ValidationResult)}
}

func (c *resultCollector) add(r datatypes.ValidationResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[r.TaskID] = append(c.results[r.TaskID], r)
}

func (c *resultCollector) get(taskID string) []datatypes.ValidationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results[taskID]
}

func (c *resultCollector) has(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results[taskID]) > 0
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func appendMessage(msg, extra string) string {
	if msg == "" {
		return extra
	}
	return msg + "; " + extra
}
