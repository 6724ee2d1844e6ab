// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sandbox

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handlers contains the HTTP handlers for the sandbox service.
type Handlers struct {
	svc *Service
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleTransform handles POST /v1/sandbox/transform.
//
// Request Body:
//
//	ModuleRequest
//
// Response:
//
//	200 OK: TransformResponse
//	400 Bad Request: Malformed body
//	413 Request Entity Too Large: Module exceeds admission limits
//	422 Unprocessable Entity: RejectionResponse
//	429 Too Many Requests: Rate limited
func (h *Handlers) HandleTransform(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleTransform")

	var req ModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return
	}

	res, err := h.svc.Transform(c.Request.Context(), req.Module())
	if err != nil {
		writeError(c, logger, err, "TRANSFORM_FAILED")
		return
	}

	logger.Info("Module transformed",
		"deployment_id", res.DeploymentID,
		"classes", res.Stats.Classes,
		"cached", res.Cached)

	c.JSON(http.StatusOK, TransformResponse{
		DeploymentID: res.DeploymentID,
		EntryPoint:   res.Module.EntryPoint,
		Classes:      res.Module.Classes,
		Verification: res.Verification,
		Stats:        res.Stats,
		Cached:       res.Cached,
	})
}

// HandleVerify handles POST /v1/sandbox/verify.
//
// Description:
//
//	Builds and verifies the deployment hierarchy without rewriting. A
//	hierarchy fault is a successful response whose verification carries
//	the fault; parse failures are 422.
//
// Response:
//
//	200 OK: VerifyResponse
//	400 Bad Request: Malformed body
//	413 Request Entity Too Large: Module exceeds admission limits
//	422 Unprocessable Entity: RejectionResponse
func (h *Handlers) HandleVerify(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleVerify")

	var req ModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return
	}

	a, err := h.svc.Verify(c.Request.Context(), req.Module())
	if err != nil {
		writeError(c, logger, err, "VERIFY_FAILED")
		return
	}

	classes := make([]ClassSummary, len(a.Classes))
	for i, info := range a.Classes {
		super, _ := info.SuperClassName()
		classes[i] = ClassSummary{
			Name:       info.Name(),
			Interface:  info.IsInterface(),
			Super:      super,
			Interfaces: info.InterfaceNames(),
		}
	}
	c.JSON(http.StatusOK, VerifyResponse{
		Verification: a.Verification,
		Classes:      classes,
		Stats:        a.Stats,
	})
}

// HandleDescribe handles POST /v1/sandbox/describe.
//
// Response:
//
//	200 OK: DescribeResponse
//	400 Bad Request: Malformed body
//	422 Unprocessable Entity: A class could not be parsed
func (h *Handlers) HandleDescribe(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDescribe")

	var req ModuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return
	}

	classes, err := h.svc.Describe(req.Module())
	if err != nil {
		writeError(c, logger, err, "DESCRIBE_FAILED")
		return
	}
	c.JSON(http.StatusOK, DescribeResponse{Classes: classes})
}

// HandleCatalog handles GET /v1/sandbox/catalog.
func (h *Handlers) HandleCatalog(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCatalog")

	nodes, err := h.svc.Catalog()
	if err != nil {
		logger.Error("Catalog unavailable", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "CATALOG_FAILED",
		})
		return
	}
	c.JSON(http.StatusOK, CatalogResponse{Count: len(nodes), Nodes: nodes})
}

// HandleHealth handles GET /v1/sandbox/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	resp := HealthResponse{
		Status:          "healthy",
		Version:         ServiceVersion,
		PipelineVersion: PipelineVersion,
	}
	if stats, ok := h.svc.CacheStats(); ok {
		resp.Cache = &stats
	}
	c.JSON(http.StatusOK, resp)
}

// writeError maps a service error to a status code and body.
func writeError(c *gin.Context, logger *slog.Logger, err error, fallbackCode string) {
	var rejected *RejectedError
	switch {
	case errors.As(err, &rejected) && rejected.Stage != StageInternal:
		logger.Warn("Module rejected", "error", err)
		c.JSON(http.StatusUnprocessableEntity, RejectionResponse{
			Error: err.Error(),
			Code:  "MODULE_REJECTED",
			Stage: rejected.Stage,
			Fault: rejected.Fault,
			Name:  rejected.Name,
			Count: rejected.Count,
		})
	case errors.Is(err, ErrModuleTooLarge):
		logger.Warn("Module too large", "error", err)
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error: err.Error(),
			Code:  "MODULE_TOO_LARGE",
		})
	case errors.Is(err, ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Error: err.Error(),
			Code:  "RATE_LIMITED",
		})
	default:
		logger.Error("Request failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  fallbackCode,
		})
	}
}

// getOrCreateRequestID returns the X-Request-ID header, generating one if
// absent, and echoes it on the response.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
