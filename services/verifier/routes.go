// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package verifier

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// SetupRoutes registers the verifier's HTTP surface.
//
// Endpoints:
//
//	GET  /health       - Liveness check
//	GET  /metrics      - Prometheus metrics
//	POST /v1/verify    - Verify a set of rules
//	GET  /v1/resources - Latest resource sample and scaling state
func SetupRoutes(router *gin.Engine, h *Handlers) {
	router.Use(otelgin.Middleware("clearproof-verifier"))

	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		v1.POST("/verify", h.VerifyRules)
		v1.GET("/resources", h.Resources)
	}
}
