// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package verifier assembles the rule-verification service: oracle,
// executor, adaptive resource monitor, aggregator, verdict cache, and
// the HTTP surface that fronts the pipeline.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/clearproof/clearproof/pkg/logging"
	"github.com/clearproof/clearproof/services/verifier/aggregate"
	"github.com/clearproof/clearproof/services/verifier/cache"
	"github.com/clearproof/clearproof/services/verifier/executor"
	"github.com/clearproof/clearproof/services/verifier/monitor"
	"github.com/clearproof/clearproof/services/verifier/observability"
	"github.com/clearproof/clearproof/services/verifier/oracle"
	"github.com/clearproof/clearproof/services/verifier/pipeline"
	"github.com/clearproof/clearproof/services/verifier/remote"
	"github.com/clearproof/clearproof/services/verifier/stores"
)

// ServiceVersion is the verifier service version.
const ServiceVersion = "0.1.0"

// ErrInvalidConfig reports a configuration the service refuses to start
// with.
var ErrInvalidConfig = errors.New("invalid verifier config")

// Config is the full service configuration. Validated at startup;
// zero-valued subsystem configs fall back to their own defaults.
type Config struct {
	// ListenAddr is the HTTP listen address, e.g. ":12310".
	ListenAddr string `json:"listen_addr" validate:"required"`

	// RuleStoreURL is the base URL of the rule store service.
	RuleStoreURL string `json:"rule_store_url" validate:"required,url"`

	// PrincipleStoreURL is the base URL of the principle store service.
	PrincipleStoreURL string `json:"principle_store_url" validate:"required,url"`

	// RemoteBackendURL optionally points at a distributed execution
	// backend. Empty means all batches run locally.
	RemoteBackendURL string `json:"remote_backend_url,omitempty" validate:"omitempty,url"`

	// CachePath is the on-disk verdict cache directory. Empty with
	// CacheInMemory false disables caching.
	CachePath string `json:"cache_path,omitempty"`

	// CacheInMemory runs the verdict cache without persistence.
	CacheInMemory bool `json:"cache_in_memory,omitempty"`

	// ShutdownGrace bounds graceful HTTP shutdown. Default: 10s.
	ShutdownGrace time.Duration `json:"shutdown_grace,omitempty"`

	Executor  executor.Config  `json:"executor"`
	Monitor   monitor.Config   `json:"monitor"`
	Pipeline  pipeline.Config  `json:"pipeline"`
	Aggregate aggregate.Config `json:"aggregate"`
}

// Service is the assembled verifier.
type Service struct {
	cfg      Config
	logger   *logging.Logger
	pipeline *pipeline.Pipeline
	executor *executor.Executor
	monitor  *monitor.Monitor
	cache    cache.VerdictCache
	router   *gin.Engine
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New validates the configuration and wires every subsystem together.
func New(cfg Config, opts ...Option) (*Service, error) {
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}

	s := &Service{cfg: cfg, logger: logging.Default()}
	for _, opt := range opts {
		opt(s)
	}

	s.executor = executor.New(cfg.Executor, executor.WithLogger(s.logger))

	s.cache = cache.Nop{}
	if cfg.CachePath != "" || cfg.CacheInMemory {
		cacheCfg := cache.DefaultConfig(cfg.CachePath)
		if cfg.CacheInMemory {
			cacheCfg = cache.InMemoryConfig()
		}
		cacheCfg.Logger = s.logger.Slog()
		bc, err := cache.Open(cacheCfg)
		if err != nil {
			// The cache is advisory; a broken cache must not keep the
			// verifier down.
			s.logger.Warn("verdict cache unavailable, continuing without", "error", err)
		} else {
			s.cache = bc
		}
	}

	pipelineOpts := []pipeline.Option{
		pipeline.WithLogger(s.logger),
		pipeline.WithCache(s.cache),
	}
	if cfg.RemoteBackendURL != "" {
		pipelineOpts = append(pipelineOpts, pipeline.WithBackend(remote.NewHTTPBackend(cfg.RemoteBackendURL)))
	}

	p, err := pipeline.New(cfg.Pipeline, pipeline.Deps{
		Rules:      stores.NewHTTPRuleStore(cfg.RuleStoreURL),
		Principles: stores.NewHTTPPrincipleStore(cfg.PrincipleStoreURL),
		Oracle:     oracle.New(oracle.WithLogger(s.logger.Slog())),
		Executor:   s.executor,
		Aggregator: aggregate.New(cfg.Aggregate, aggregate.WithLogger(s.logger)),
	}, pipelineOpts...)
	if err != nil {
		return nil, err
	}
	s.pipeline = p

	s.monitor = monitor.New(cfg.Monitor, s.executor,
		monitor.WithLogger(s.logger),
		monitor.WithQueueSize(p.QueueDepth),
		monitor.WithOnSample(func(m monitor.ResourceMetrics) {
			observability.SetUtilization(m.UtilizationEfficiency, m.QueueSize)
			observability.SetConcurrencyLimit(s.executor.Concurrency())
		}),
	)

	router := gin.New()
	router.Use(gin.Recovery())
	SetupRoutes(router, NewHandlers(s))
	s.router = router

	return s, nil
}

// Router exposes the HTTP handler, mainly for tests.
func (s *Service) Router() http.Handler {
	return s.router
}

// Run serves HTTP until ctx is cancelled, then drains the monitor, the
// executor, and the cache.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("nil context")
	}

	stopCh := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go s.monitor.Run(stopCh, &wg)

	srv := &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("verifier listening", "addr", s.cfg.ListenAddr, "version", ServiceVersion)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		s.logger.Error("http server failed", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http shutdown incomplete", "error", err)
	}

	close(stopCh)
	wg.Wait()

	if err := s.executor.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("executor shutdown incomplete", "error", err)
	}
	if err := s.cache.Close(); err != nil {
		s.logger.Warn("cache close failed", "error", err)
	}
	return runErr
}
