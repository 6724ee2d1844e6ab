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
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianSandbox/services/sandbox/cache"
	"github.com/AleutianAI/AleutianSandbox/services/sandbox/hierarchy"
)

// ServiceVersion is reported by the health endpoint.
const ServiceVersion = "0.1.0"

// ServiceConfig configures the sandbox service.
type ServiceConfig struct {
	// Limits is the admission check run before every pipeline call.
	Limits Limits

	// RateLimit is the sustained number of transforms per second.
	// Zero disables throttling.
	RateLimit float64

	// RateBurst is the token bucket size. Default: 8
	RateBurst int
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Limits:    DefaultLimits(),
		RateLimit: 0,
		RateBurst: 8,
	}
}

// OutcomeStore persists pipeline outcomes by content address.
// *cache.Store implements it.
type OutcomeStore interface {
	Get(ctx context.Context, key cache.Key, v any) error
	Put(ctx context.Context, key cache.Key, v any) error
	Stats() cache.Stats
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithStore enables outcome caching.
func WithStore(store OutcomeStore) ServiceOption {
	return func(s *Service) {
		s.store = store
	}
}

// Service is the sandbox service: admission, caching and duplicate
// suppression around a Pipeline.
//
// Thread Safety:
//
//	Safe for concurrent use. Identical modules submitted concurrently run
//	the pipeline once.
type Service struct {
	pipeline *Pipeline
	config   ServiceConfig
	store    OutcomeStore
	limiter  *rate.Limiter
	flight   singleflight.Group
	logger   *slog.Logger
}

// NewService creates a service around p.
func NewService(p *Pipeline, cfg ServiceConfig, opts ...ServiceOption) *Service {
	s := &Service{pipeline: p, config: cfg, logger: p.logger}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// outcome is the cached form of a deterministic pipeline outcome.
type outcome struct {
	Accepted     bool                         `cbor:"1,keyasint"`
	EntryPoint   string                       `cbor:"2,keyasint,omitempty"`
	Classes      map[string][]byte            `cbor:"3,keyasint,omitempty"`
	Verification hierarchy.VerificationResult `cbor:"4,keyasint"`
	Stats        Stats                        `cbor:"5,keyasint"`
	Stage        Stage                        `cbor:"6,keyasint,omitempty"`
	Fault        hierarchy.Fault              `cbor:"7,keyasint,omitempty"`
	Name         string                       `cbor:"8,keyasint,omitempty"`
	Count        int                          `cbor:"9,keyasint,omitempty"`
	Message      string                       `cbor:"10,keyasint,omitempty"`
	Cause        string                       `cbor:"11,keyasint,omitempty"`
}

func (o *outcome) result(moduleName string) (*Result, error) {
	if !o.Accepted {
		cause := hierarchy.VerificationResult{Fault: o.Fault, Name: o.Name, Count: o.Count}.Err()
		if cause == nil {
			cause = restoreCause(o.Message, o.Cause)
		}
		return nil, &RejectedError{Stage: o.Stage, Fault: o.Fault, Name: o.Name, Count: o.Count, Err: cause}
	}
	return &Result{
		DeploymentID: uuid.NewString(),
		Module:       &Module{Name: moduleName, EntryPoint: o.EntryPoint, Classes: o.Classes},
		Verification: o.Verification,
		Stats:        o.Stats,
		Cached:       true,
	}, nil
}

// Transform admits m, then returns the cached outcome or runs the
// pipeline.
//
// Outputs:
//
//	*Result - The rewritten module.
//	error - ErrRateLimited, ErrModuleTooLarge, or a *RejectedError.
func (s *Service) Transform(ctx context.Context, m *Module) (*Result, error) {
	if s.limiter != nil && !s.limiter.Allow() {
		return nil, ErrRateLimited
	}
	if err := s.config.Limits.Admit(m); err != nil {
		return nil, err
	}

	key := cache.NewKey(PipelineVersion, m.EntryPoint, m.Classes)
	if res, err, ok := s.lookup(ctx, key, m.Name); ok {
		return res, err
	}

	v, err, shared := s.flight.Do(key.String(), func() (any, error) {
		res, err := s.pipeline.Transform(ctx, m)
		s.remember(ctx, key, res, err)
		return res, err
	})
	if err != nil {
		return nil, err
	}
	res := v.(*Result)
	if shared {
		dup := *res
		dup.DeploymentID = uuid.NewString()
		res = &dup
	}
	return res, nil
}

// lookup returns a cached outcome. ok is false on a miss or when caching
// is disabled.
func (s *Service) lookup(ctx context.Context, key cache.Key, moduleName string) (*Result, error, bool) {
	if s.store == nil {
		return nil, nil, false
	}
	var o outcome
	err := s.store.Get(ctx, key, &o)
	switch {
	case err == nil:
		recordCacheLookup(ctx, "hit")
		res, err := o.result(moduleName)
		return res, err, true
	case errors.Is(err, cache.ErrNotFound):
		recordCacheLookup(ctx, "miss")
	default:
		recordCacheLookup(ctx, "error")
		s.logger.Warn("outcome cache read failed",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
	}
	return nil, nil, false
}

// remember caches deterministic outcomes. Pipeline defects are not cached.
func (s *Service) remember(ctx context.Context, key cache.Key, res *Result, err error) {
	if s.store == nil {
		return
	}
	var o outcome
	var rejected *RejectedError
	switch {
	case err == nil:
		o = outcome{
			Accepted:     true,
			EntryPoint:   res.Module.EntryPoint,
			Classes:      res.Module.Classes,
			Verification: res.Verification,
			Stats:        res.Stats,
		}
	case errors.As(err, &rejected) && rejected.Stage != StageInternal:
		o = outcome{
			Stage:   rejected.Stage,
			Fault:   rejected.Fault,
			Name:    rejected.Name,
			Count:   rejected.Count,
			Message: fmt.Sprint(rejected.Err),
			Cause:   causeCode(rejected.Err),
		}
	default:
		return
	}
	if err := s.store.Put(ctx, key, &o); err != nil {
		s.logger.Warn("outcome cache write failed",
			slog.String("key", key.String()),
			slog.String("error", err.Error()),
		)
	}
}

// Verify admits m and runs the pipeline up to verification.
func (s *Service) Verify(ctx context.Context, m *Module) (*Analysis, error) {
	if err := s.config.Limits.Admit(m); err != nil {
		return nil, err
	}
	return s.pipeline.Verify(ctx, m)
}

// Describe admits m and summarizes its classes.
func (s *Service) Describe(m *Module) ([]ClassDescription, error) {
	if err := s.config.Limits.Admit(m); err != nil {
		return nil, err
	}
	return Describe(m)
}

// Catalog returns the platform catalog in name order.
func (s *Service) Catalog() ([]hierarchy.NodeSummary, error) {
	h, err := hierarchy.Catalog()
	if err != nil {
		return nil, err
	}
	return h.Snapshot(), nil
}

// CacheStats returns outcome cache counters, or false when caching is
// disabled.
func (s *Service) CacheStats() (cache.Stats, bool) {
	if s.store == nil {
		return cache.Stats{}, false
	}
	return s.store.Stats(), true
}
