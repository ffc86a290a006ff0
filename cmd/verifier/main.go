// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command verifier starts the Clearproof rule-verification service.
//
// Configuration is environment driven:
//
//	VERIFIER_PORT            - HTTP port (default 12310)
//	RULE_STORE_URL           - Base URL of the rule store (required)
//	PRINCIPLE_STORE_URL      - Base URL of the principle store (required)
//	REMOTE_BACKEND_URL       - Optional distributed-execution backend
//	VERIFIER_CACHE_PATH      - On-disk verdict cache dir (empty: in-memory)
//	VERIFIER_MAX_CONCURRENCY - Initial worker-slot count
//	VERIFIER_VALIDATOR_COUNT - Validators per task
//	VERIFIER_LOG_LEVEL       - debug|info|warn|error (default info)
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/clearproof/clearproof/pkg/logging"
	"github.com/clearproof/clearproof/services/verifier"
	"github.com/clearproof/clearproof/services/verifier/executor"
	"github.com/clearproof/clearproof/services/verifier/pipeline"
	"github.com/clearproof/clearproof/services/verifier/telemetry"
)

func getEnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("ignoring %s=%q: %v", key, v, err)
		return fallback
	}
	return n
}

func main() {
	logger := logging.New(logging.Config{
		Level: logging.ParseLevel(getEnvString("VERIFIER_LOG_LEVEL", "info")),
	})
	defer logger.Close()

	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.DefaultConfig())
	if err != nil {
		log.Fatalf("failed to set up tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	cfg := verifier.Config{
		ListenAddr:        fmt.Sprintf(":%d", getEnvInt("VERIFIER_PORT", 12310)),
		RuleStoreURL:      os.Getenv("RULE_STORE_URL"),
		PrincipleStoreURL: os.Getenv("PRINCIPLE_STORE_URL"),
		RemoteBackendURL:  os.Getenv("REMOTE_BACKEND_URL"),
		CachePath:         os.Getenv("VERIFIER_CACHE_PATH"),
		Executor: executor.Config{
			MaxConcurrency: getEnvInt("VERIFIER_MAX_CONCURRENCY", 0),
		},
		Pipeline: pipeline.Config{
			ValidatorCount: getEnvInt("VERIFIER_VALIDATOR_COUNT", 0),
		},
	}
	if cfg.CachePath == "" {
		cfg.CacheInMemory = true
	}

	svc, err := verifier.New(cfg, verifier.WithLogger(logger))
	if err != nil {
		log.Fatalf("FATAL: could not assemble the verifier: %v", err)
	}

	if err := svc.Run(ctx); err != nil {
		log.Fatalf("verifier exited: %v", err)
	}
	logger.Info("verifier stopped")
}
