// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability exposes Prometheus metrics for the verifier.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "clearproof"
	subsystem = "verifier"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "requests_total",
		Help:      "Verification requests by overall status",
	}, []string{"overall_status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "request_duration_seconds",
		Help:      "End-to-end verification request duration",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	tasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "tasks_total",
		Help:      "Executed verification tasks by result status",
	}, []string{"status"})

	taskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "task_duration_seconds",
		Help:      "Single task execution duration",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	})

	oracleQueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "oracle_queries_total",
		Help:      "Oracle satisfiability queries by outcome",
	}, []string{"outcome"})

	aggregationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "aggregations_total",
		Help:      "Result aggregations by strategy and degradation",
	}, []string{"strategy", "degraded"})

	concurrencyLimit = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "concurrency_limit",
		Help:      "Current adaptive concurrency limit",
	})

	utilizationEfficiency = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "utilization_efficiency",
		Help:      "Last sampled (cpu%+mem%)/200",
	})

	queueSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "queue_size",
		Help:      "Tasks waiting to run",
	})

	cacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "cache_requests_total",
		Help:      "Verdict cache lookups by outcome",
	}, []string{"outcome"})
)

// RecordRequest records one completed verification request.
func RecordRequest(overallStatus string, duration time.Duration) {
	requestsTotal.WithLabelValues(overallStatus).Inc()
	requestDuration.Observe(duration.Seconds())
}

// RecordTask records one terminal task execution.
func RecordTask(status string, duration time.Duration) {
	tasksTotal.WithLabelValues(status).Inc()
	taskDuration.Observe(duration.Seconds())
}

// RecordOracleQuery records one oracle query by outcome
// (entailed, not_entailed, unknown).
func RecordOracleQuery(outcome string) {
	oracleQueriesTotal.WithLabelValues(outcome).Inc()
}

// RecordAggregation records one aggregation by strategy.
func RecordAggregation(strategy string, degraded bool) {
	label := "false"
	if degraded {
		label = "true"
	}
	aggregationsTotal.WithLabelValues(strategy, label).Inc()
}

// SetConcurrencyLimit reports the current adaptive limit.
func SetConcurrencyLimit(n int) {
	concurrencyLimit.Set(float64(n))
}

// SetUtilization reports the latest resource sample.
func SetUtilization(efficiency float64, queued int) {
	utilizationEfficiency.Set(efficiency)
	queueSize.Set(float64(queued))
}

// RecordCacheHit records a verdict cache hit.
func RecordCacheHit() {
	cacheTotal.WithLabelValues("hit").Inc()
}

// RecordCacheMiss records a verdict cache miss.
func RecordCacheMiss() {
	cacheTotal.WithLabelValues("miss").Inc()
}
