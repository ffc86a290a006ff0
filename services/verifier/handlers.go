// Copyright (C) 2025 Clearproof Labs (eng@clearproof.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package verifier

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clearproof/clearproof/services/verifier/dag"
	"github.com/clearproof/clearproof/services/verifier/datatypes"
	"github.com/clearproof/clearproof/services/verifier/pipeline"
)

// Handlers contains the HTTP handlers for the verifier service.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": ServiceVersion})
}

// VerifyRules runs a verification request through the pipeline.
//
// Description:
//
//	POST /v1/verify. Binds and validates the request body, runs the
//	pipeline, and returns one verdict per requested rule. Structural
//	pipeline failures map to an error category the caller can branch
//	on; per-rule failures come back inside a 200 response.
func (h *Handlers) VerifyRules(c *gin.Context) {
	var req datatypes.VerifyRulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.svc.logger.Warn("failed to parse verify request", "error", err)
		c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
			Error:  "invalid_request",
			Detail: err.Error(),
		})
		return
	}

	resp, err := h.svc.pipeline.Run(c.Request.Context(), req)
	if err != nil {
		status, category := classifyRunError(err)
		if status >= http.StatusInternalServerError {
			h.svc.logger.Error("verification run failed", "error", err)
		} else {
			h.svc.logger.Warn("verification run rejected", "error", err)
		}
		c.JSON(status, datatypes.ErrorResponse{
			Error:  category,
			Detail: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// Resources reports the latest resource sample and concurrency limit.
func (h *Handlers) Resources(c *gin.Context) {
	latest, ok := h.svc.monitor.Latest()
	c.JSON(http.StatusOK, gin.H{
		"sampled":           ok,
		"metrics":           latest,
		"concurrency_limit": h.svc.executor.Concurrency(),
		"in_flight":         h.svc.executor.InFlight(),
		"queue_depth":       h.svc.pipeline.QueueDepth(),
	})
}

// classifyRunError maps a structural pipeline error to an HTTP status
// and a stable error category.
func classifyRunError(err error) (int, string) {
	var cycleErr *dag.CycleError
	switch {
	case errors.Is(err, pipeline.ErrInvalidRequest), errors.Is(err, pipeline.ErrNilContext):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, pipeline.ErrNoRules):
		return http.StatusNotFound, "no_rules"
	case errors.As(err, &cycleErr):
		return http.StatusUnprocessableEntity, "dependency_cycle"
	case errors.Is(err, pipeline.ErrRuleFetch):
		return http.StatusBadGateway, "fetch_failed"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
