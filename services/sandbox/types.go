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
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/cache"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/hierarchy"
)

// =============================================================================
// Request Types
// =============================================================================

// ModuleRequest is the body of transform, verify and describe requests.
//
// Class bytes are base64 encoded in JSON.
type ModuleRequest struct {
	// Name is a free-form label for logs. Optional.
	Name string `json:"name"`

	// EntryPoint is the internal name of the class the host starts.
	EntryPoint string `json:"entry_point" binding:"required"`

	// Classes maps internal class names to class file bytes.
	Classes map[string][]byte `json:"classes" binding:"required,min=1"`
}

// Module converts the request into a Module.
func (r *ModuleRequest) Module() *Module {
	return &Module{Name: r.Name, EntryPoint: r.EntryPoint, Classes: r.Classes}
}

// =============================================================================
// Response Types
// =============================================================================

// TransformResponse is the response for POST /v1/sandbox/transform.
type TransformResponse struct {
	DeploymentID string                       `json:"deployment_id"`
	EntryPoint   string                       `json:"entry_point"`
	Classes      map[string][]byte            `json:"classes"`
	Verification hierarchy.VerificationResult `json:"verification"`
	Stats        Stats                        `json:"stats"`
	Cached       bool                         `json:"cached"`
}

// ClassSummary is one post-rename class identity.
type ClassSummary struct {
	Name       string   `json:"name" yaml:"name"`
	Interface  bool     `json:"interface" yaml:"interface"`
	Super      string   `json:"super,omitempty" yaml:"super,omitempty"`
	Interfaces []string `json:"interfaces,omitempty" yaml:"interfaces,omitempty"`
}

// VerifyResponse is the response for POST /v1/sandbox/verify.
type VerifyResponse struct {
	Verification hierarchy.VerificationResult `json:"verification"`
	Classes      []ClassSummary               `json:"classes"`
	Stats        Stats                        `json:"stats"`
}

// DescribeResponse is the response for POST /v1/sandbox/describe.
type DescribeResponse struct {
	Classes []ClassDescription `json:"classes"`
}

// CatalogResponse is the response for GET /v1/sandbox/catalog.
type CatalogResponse struct {
	Count int                     `json:"count"`
	Nodes []hierarchy.NodeSummary `json:"nodes"`
}

// HealthResponse is the response for GET /v1/sandbox/health.
type HealthResponse struct {
	Status          string       `json:"status"`
	Version         string       `json:"version"`
	PipelineVersion string       `json:"pipeline_version"`
	Cache           *cache.Stats `json:"cache,omitempty"`
}

// ErrorResponse is returned for request and service errors.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}

// RejectionResponse is returned with 422 when the pipeline rejects a
// module.
type RejectionResponse struct {
	Error string          `json:"error"`
	Code  string          `json:"code"`
	Stage Stage           `json:"stage"`
	Fault hierarchy.Fault `json:"fault"`
	Name  string          `json:"name,omitempty"`
	Count int             `json:"count,omitempty"`
}
