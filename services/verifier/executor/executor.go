// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package executor runs validation batches with bounded concurrency,
// per-task timeouts, and bounded retries.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/clearproof/clearproof/pkg/logging"
	"github.com/clearproof/clearproof/services/verifier/datatypes"
)

// Config configures execution limits.
type Config struct {
	// MaxConcurrency is the maximum tasks running at once. Default: 8
	MaxConcurrency int `json:"max_concurrency"`

	// TaskTimeout bounds a single attempt of a single task. Default: 30s
	TaskTimeout time.Duration `json:"task_timeout"`

	// MaxRetries is the number of retries after the first attempt.
	// A task with MaxRetries=2 runs at most 3 times. Default: 2
	MaxRetries int `json:"max_retries"`

	// RetryBaseDelay is the backoff before the first retry; the delay
	// doubles on each subsequent retry. Default: 100ms
	RetryBaseDelay time.Duration `json:"retry_base_delay"`

	// BatchTimeout bounds an entire batch. Zero means no batch deadline.
	// Default: 10m
	BatchTimeout time.Duration `json:"batch_timeout"`
}

// DefaultConfig returns sensible execution defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 8,
		TaskTimeout:    30 * time.Second,
		MaxRetries:     2,
		RetryBaseDelay: 100 * time.Millisecond,
		BatchTimeout:   10 * time.Minute,
	}
}

// TaskFunc performs one verification attempt for a task. A non-nil
// error marks the attempt as failed and eligible for retry; a nil error
// with any result payload (including a "failed" verdict) is final.
type TaskFunc func(ctx context.Context, task datatypes.VerificationTask) (datatypes.ValidationResult, error)

// ProgressCallback is called after each task reaches a terminal state.
type ProgressCallback func(completed, total int, last *datatypes.ValidationResult)

// BatchOutcome contains results from executing one batch.
type BatchOutcome struct {
	// Results holds one entry per task that reached a terminal state.
	Results []datatypes.ValidationResult

	// Tasks holds every task with its terminal lifecycle state
	// populated: status, started/completed timestamps, retry count,
	// and failure cause.
	Tasks []datatypes.VerificationTask

	// SuccessCount is the number of tasks whose work function succeeded.
	SuccessCount int

	// FailureCount is the number of tasks that exhausted their attempts.
	FailureCount int

	// TotalDuration is the wall time for the batch.
	TotalDuration time.Duration

	// Cancelled indicates the batch context died before all tasks ran.
	// Results gathered before cancellation are preserved.
	Cancelled bool
}

// Executor runs batches of verification tasks.
//
// # Description
//
//	Tasks in a batch run concurrently under a shared semaphore. Each
//	task gets a per-attempt timeout and up to MaxRetries retries with
//	doubling backoff. Cancelling the batch context stops new attempts
//	but lets in-flight attempts finish, so results already produced
//	survive cancellation.
//
// # Thread Safety
//
//	Safe for concurrent use. Multiple batches may execute at once and
//	share the concurrency limit.
type Executor struct {
	cfg    Config
	sem    *Semaphore
	logger *logging.Logger
	wg     sync.WaitGroup
	closed atomic.Bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger used for per-task diagnostics.
func WithLogger(l *logging.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Executor. Zero-valued config fields fall back to
// DefaultConfig.
func New(cfg Config, opts ...Option) *Executor {
	def := DefaultConfig()
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = def.MaxConcurrency
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = def.TaskTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = def.RetryBaseDelay
	}

	e := &Executor{
		cfg:    cfg,
		sem:    NewSemaphore(cfg.MaxConcurrency),
		logger: logging.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetConcurrency resizes the shared concurrency limit. The resource
// monitor calls this when it scales the pool up or down.
func (e *Executor) SetConcurrency(n int) {
	e.sem.SetCapacity(n)
}

// Concurrency returns the current concurrency limit.
func (e *Executor) Concurrency() int {
	return e.sem.Capacity()
}

// InFlight returns the number of tasks currently running.
func (e *Executor) InFlight() int {
	return e.sem.InFlight()
}

// Execute runs every task in the batch and returns one result per task
// that reached a terminal state.
//
// # Inputs
//
//   - ctx: Controls the whole batch. Cancellation stops unstarted work.
//   - batch: Tasks to run. Tasks in a batch are independent.
//   - work: Performs one attempt. Must respect its context.
//   - progress: Optional; called once per terminal task.
//
// # Outputs
//
//   - *BatchOutcome: Per-task results plus batch counters.
//   - error: ErrExecutorClosed after Shutdown, ErrNilWorkFunc, or a nil
//     context.
func (e *Executor) Execute(ctx context.Context, batch datatypes.ValidationBatch, work TaskFunc, progress ProgressCallback) (*BatchOutcome, error) {
	if ctx == nil {
		return nil, errors.New("context cannot be nil")
	}
	if work == nil {
		return nil, ErrNilWorkFunc
	}
	if e.closed.Load() {
		return nil, ErrExecutorClosed
	}

	start := time.Now()
	total := len(batch.Tasks)
	terminalCh := make(chan taskTerminal, total)

	var cancel context.CancelFunc
	if e.cfg.BatchTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.cfg.BatchTimeout)
		defer cancel()
	}

	var wg sync.WaitGroup
	var completed int32

	for _, task := range batch.Tasks {
		task := task

		wg.Add(1)
		e.wg.Add(1)
		go func() {
			defer wg.Done()
			defer e.wg.Done()

			if err := e.sem.Acquire(ctx); err != nil {
				task.Status = datatypes.TaskStatusCancelled
				task.CompletedAt = time.Now()
				task.FailureCause = fmt.Sprintf("not started: %v", err)
				terminalCh <- taskTerminal{task: task, result: errorResult(task, task.FailureCause)}
				count := atomic.AddInt32(&completed, 1)
				if progress != nil {
					progress(int(count), total, nil)
				}
				return
			}
			defer e.sem.Release()

			done := e.runTask(ctx, task, work)
			terminalCh <- done

			count := atomic.AddInt32(&completed, 1)
			if progress != nil {
				progress(int(count), total, &done.result)
			}
		}()
	}

	go func() {
		wg.Wait()
		close(terminalCh)
	}()

	outcome := &BatchOutcome{
		Results: make([]datatypes.ValidationResult, 0, total),
		Tasks:   make([]datatypes.VerificationTask, 0, total),
	}
	for done := range terminalCh {
		outcome.Results = append(outcome.Results, done.result)
		outcome.Tasks = append(outcome.Tasks, done.task)
		if done.result.Payload.Status == datatypes.ResultStatusError {
			outcome.FailureCount++
		} else {
			outcome.SuccessCount++
		}
	}

	outcome.TotalDuration = time.Since(start)
	outcome.Cancelled = ctx.Err() != nil
	return outcome, nil
}

// taskTerminal pairs a task's terminal lifecycle state with its result.
type taskTerminal struct {
	task   datatypes.VerificationTask
	result datatypes.ValidationResult
}

// runTask performs up to MaxRetries+1 attempts with doubling backoff,
// maintaining the task's lifecycle fields along the way.
func (e *Executor) runTask(ctx context.Context, task datatypes.VerificationTask, work TaskFunc) taskTerminal {
	maxRetries := task.MaxRetries
	if maxRetries <= 0 {
		maxRetries = e.cfg.MaxRetries
	}
	timeout := task.Timeout
	if timeout <= 0 {
		timeout = e.cfg.TaskTimeout
	}

	task.Status = datatypes.TaskStatusRunning
	task.StartedAt = time.Now()

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if !e.sleepBackoff(ctx, attempt) {
				break
			}
			task.RetryCount = attempt
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		attemptStart := time.Now()
		result, err := work(attemptCtx, task)
		cancel()

		if err == nil {
			result.TaskID = task.ID
			if result.ExecutionTime <= 0 {
				result.ExecutionTime = time.Since(attemptStart)
			}
			if result.Timestamp.IsZero() {
				result.Timestamp = time.Now()
			}
			task.Status = datatypes.TaskStatusCompleted
			task.CompletedAt = time.Now()
			return taskTerminal{task: task, result: result}
		}

		lastErr = err
		e.logger.Warn("task attempt failed",
			"task_id", task.ID,
			"attempt", attempt+1,
			"max_attempts", maxRetries+1,
			"error", err)

		if ctx.Err() != nil {
			break
		}
	}

	if lastErr == nil {
		lastErr = ctx.Err()
	}
	task.Status = datatypes.TaskStatusFailed
	if ctx.Err() != nil {
		task.Status = datatypes.TaskStatusCancelled
	}
	task.CompletedAt = time.Now()
	task.FailureCause = fmt.Sprintf("%v: %v", ErrAttemptsExhausted, lastErr)
	return taskTerminal{task: task, result: errorResult(task, task.FailureCause)}
}

// sleepBackoff waits base * 2^(attempt-1), returning false if the
// context died first.
func (e *Executor) sleepBackoff(ctx context.Context, attempt int) bool {
	delay := e.cfg.RetryBaseDelay << uint(attempt-1)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Shutdown stops accepting new batches and waits for in-flight work.
//
// Outputs:
//   - error: Non-nil if ctx expired before all tasks finished.
func (e *Executor) Shutdown(ctx context.Context) error {
	e.closed.Store(true)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("executor shutdown: %w", ctx.Err())
	}
}

func errorResult(task datatypes.VerificationTask, detail string) datatypes.ValidationResult {
	return datatypes.ValidationResult{
		TaskID: task.ID,
		Payload: datatypes.ResultPayload{
			Status: datatypes.ResultStatusError,
			Detail: detail,
		},
		Timestamp: time.Now(),
	}
}
