// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package monitor samples host utilization on a periodic schedule and
// adaptively scales the executor's concurrency limit. The sampling loop
// runs as an independent background activity and never blocks request
// processing.
package monitor

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/clearproof/clearproof/pkg/logging"
)

// ResourceMetrics is one utilization sample.
type ResourceMetrics struct {
	// CPUPercent is host CPU utilization in [0,100].
	CPUPercent float64 `json:"cpu_percent"`

	// MemoryPercent is host memory utilization in [0,100].
	MemoryPercent float64 `json:"memory_percent"`

	// ActiveTasks is the number of tasks in flight at sample time.
	ActiveTasks int `json:"active_tasks"`

	// QueueSize is the number of tasks waiting to run.
	QueueSize int `json:"queue_size"`

	// UtilizationEfficiency is (cpu% + mem%) / 200, in [0,1].
	UtilizationEfficiency float64 `json:"utilization_efficiency"`

	// Timestamp is when the sample was taken.
	Timestamp time.Time `json:"timestamp"`
}

// Scaler is the executor surface the monitor adjusts. The concurrency
// limit is the only shared value the monitor mutates.
type Scaler interface {
	Concurrency() int
	SetConcurrency(n int)
	InFlight() int
}

// Config configures the sampling loop and scaling policy.
type Config struct {
	// Interval between samples. Default: 5s
	Interval time.Duration `json:"interval"`

	// HistorySize bounds the rolling metrics history. Default: 120
	HistorySize int `json:"history_size"`

	// TargetUtilization is the efficiency the scaler steers toward,
	// in (0,1]. Default: 0.7
	TargetUtilization float64 `json:"target_utilization"`

	// ScaleFactor is the multiplicative step for each adjustment.
	// Must be > 1. Default: 1.2
	ScaleFactor float64 `json:"scale_factor"`

	// MinMultiplier floors the limit at base*MinMultiplier. Default: 0.5
	MinMultiplier float64 `json:"min_multiplier"`

	// MaxMultiplier caps the limit at base*MaxMultiplier. Default: 4.0
	MaxMultiplier float64 `json:"max_multiplier"`

	// QueueBacklogThreshold is the minimum waiting-task count before
	// the monitor scales up. Default: 4
	QueueBacklogThreshold int `json:"queue_backlog_threshold"`
}

// DefaultConfig returns sensible monitoring defaults.
func DefaultConfig() Config {
	return Config{
		Interval:              5 * time.Second,
		HistorySize:           120,
		TargetUtilization:     0.7,
		ScaleFactor:           1.2,
		MinMultiplier:         0.5,
		MaxMultiplier:         4.0,
		QueueBacklogThreshold: 4,
	}
}

// QueueSizeFunc reports the current number of tasks waiting to run.
type QueueSizeFunc func() int

// OnSampleFunc observes each completed sample (metrics export).
type OnSampleFunc func(ResourceMetrics)

// Monitor periodically samples utilization and scales the executor.
//
// # Thread Safety
//
//	The sampling loop is the single writer of the history; readers go
//	through History/Latest, which copy under a lock.
type Monitor struct {
	cfg       Config
	sampler   Sampler
	scaler    Scaler
	queueSize QueueSizeFunc
	onSample  OnSampleFunc
	logger    *logging.Logger

	base     int
	minLimit int
	maxLimit int

	mu      sync.Mutex
	history []ResourceMetrics
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithSampler replaces the host sampler (tests use a fake).
func WithSampler(s Sampler) Option {
	return func(m *Monitor) {
		if s != nil {
			m.sampler = s
		}
	}
}

// WithQueueSize supplies the waiting-task counter used for scale-up
// decisions. Without it the backlog is treated as zero.
func WithQueueSize(fn QueueSizeFunc) Option {
	return func(m *Monitor) { m.queueSize = fn }
}

// WithOnSample registers a per-sample observer.
func WithOnSample(fn OnSampleFunc) Option {
	return func(m *Monitor) { m.onSample = fn }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// New creates a Monitor bound to a scaler. The scaler's concurrency
// limit at construction time becomes the base for the min/max bounds.
func New(cfg Config, scaler Scaler, opts ...Option) *Monitor {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = def.HistorySize
	}
	if cfg.TargetUtilization <= 0 || cfg.TargetUtilization > 1 {
		cfg.TargetUtilization = def.TargetUtilization
	}
	if cfg.ScaleFactor <= 1 {
		cfg.ScaleFactor = def.ScaleFactor
	}
	if cfg.MinMultiplier <= 0 {
		cfg.MinMultiplier = def.MinMultiplier
	}
	if cfg.MaxMultiplier < cfg.MinMultiplier {
		cfg.MaxMultiplier = def.MaxMultiplier
	}
	if cfg.QueueBacklogThreshold <= 0 {
		cfg.QueueBacklogThreshold = def.QueueBacklogThreshold
	}

	base := scaler.Concurrency()
	if base < 1 {
		base = 1
	}
	m := &Monitor{
		cfg:      cfg,
		sampler:  HostSampler{},
		scaler:   scaler,
		base:     base,
		minLimit: maxInt(1, int(math.Floor(float64(base)*cfg.MinMultiplier))),
		maxLimit: maxInt(1, int(math.Ceil(float64(base)*cfg.MaxMultiplier))),
		logger:   logging.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run starts the sampling loop.
//
// Inputs:
//   - stopCh: Channel that signals the monitor to stop.
//   - wg: WaitGroup to signal when the monitor has stopped.
//
// Thread Safety: Should only be called once. Safe when called from a goroutine.
func (m *Monitor) Run(stopCh <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.logger.Debug("resource monitor started",
		"interval", m.cfg.Interval,
		"target_utilization", m.cfg.TargetUtilization)

	for {
		select {
		case <-stopCh:
			m.logger.Debug("resource monitor stopped")
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.Interval)
			m.sampleOnce(ctx)
			cancel()
		}
	}
}

// sampleOnce takes one sample, appends it to the history, and applies
// the scaling policy.
func (m *Monitor) sampleOnce(ctx context.Context) {
	cpuPercent, memPercent, err := m.sampler.Sample(ctx)
	if err != nil {
		m.logger.Warn("utilization sample failed", "error", err)
		return
	}

	queue := 0
	if m.queueSize != nil {
		queue = m.queueSize()
	}
	metrics := ResourceMetrics{
		CPUPercent:            cpuPercent,
		MemoryPercent:         memPercent,
		ActiveTasks:           m.scaler.InFlight(),
		QueueSize:             queue,
		UtilizationEfficiency: (cpuPercent + memPercent) / 200,
		Timestamp:             time.Now(),
	}

	m.mu.Lock()
	m.history = append(m.history, metrics)
	if len(m.history) > m.cfg.HistorySize {
		m.history = m.history[len(m.history)-m.cfg.HistorySize:]
	}
	m.mu.Unlock()

	m.applyScaling(metrics)

	if m.onSample != nil {
		m.onSample(metrics)
	}
}

// applyScaling grows the limit when the host is underutilized with work
// queued, and shrinks it when the host is overcommitted.
func (m *Monitor) applyScaling(metrics ResourceMetrics) {
	current := m.scaler.Concurrency()
	eff := metrics.UtilizationEfficiency
	target := m.cfg.TargetUtilization

	switch {
	case eff < 0.8*target && metrics.QueueSize > m.cfg.QueueBacklogThreshold:
		next := minInt(m.maxLimit, maxInt(current+1, int(math.Floor(float64(current)*m.cfg.ScaleFactor))))
		if next != current {
			m.scaler.SetConcurrency(next)
			m.logger.Info("scaled concurrency up",
				"from", current, "to", next,
				"utilization_efficiency", eff,
				"queue_size", metrics.QueueSize)
		}
	case eff > 1.1*target:
		next := maxInt(m.minLimit, int(math.Floor(float64(current)/m.cfg.ScaleFactor)))
		if next != current {
			m.scaler.SetConcurrency(next)
			m.logger.Info("scaled concurrency down",
				"from", current, "to", next,
				"utilization_efficiency", eff)
		}
	}
}

// History returns a copy of the rolling metrics history, oldest first.
func (m *Monitor) History() []ResourceMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ResourceMetrics, len(m.history))
	copy(out, m.history)
	return out
}

// Latest returns the most recent sample, if any.
func (m *Monitor) Latest() (ResourceMetrics, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) == 0 {
		return ResourceMetrics{}, false
	}
	return m.history[len(m.history)-1], true
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
