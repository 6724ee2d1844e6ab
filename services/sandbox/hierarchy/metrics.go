// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hierarchy

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for hierarchy operations.
var (
	tracer = otel.Tracer("aleutian.sandbox.hierarchy")
	meter  = otel.Meter("aleutian.sandbox.hierarchy")
)

// Metrics for build and verify operations.
var (
	buildLatency  metric.Float64Histogram
	ghostsCreated metric.Int64Histogram
	verifyLatency metric.Float64Histogram
	verifyTotal   metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		buildLatency, err = meter.Float64Histogram(
			"hierarchy_build_duration_seconds",
			metric.WithDescription("Duration of hierarchy build operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		ghostsCreated, err = meter.Int64Histogram(
			"hierarchy_ghost_nodes",
			metric.WithDescription("Number of ghost placeholders created per build"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		verifyLatency, err = meter.Float64Histogram(
			"hierarchy_verify_duration_seconds",
			metric.WithDescription("Duration of hierarchy verification"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		verifyTotal, err = meter.Int64Counter(
			"hierarchy_verify_total",
			metric.WithDescription("Total number of verifications by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordBuildMetrics records metrics for a build operation.
func recordBuildMetrics(ctx context.Context, duration time.Duration, stats BuildStats) {
	if err := initMetrics(); err != nil {
		return
	}
	buildLatency.Record(ctx, duration.Seconds())
	ghostsCreated.Record(ctx, int64(stats.GhostsCreated))
}

// recordVerifyMetrics records metrics for a verification.
func recordVerifyMetrics(ctx context.Context, duration time.Duration, result VerificationResult) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("fault", result.Fault.String()))
	verifyLatency.Record(ctx, duration.Seconds(), attrs)
	verifyTotal.Add(ctx, 1, attrs)
}

// startBuildSpan creates a span for a build operation.
func startBuildSpan(ctx context.Context, classCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "hierarchy.Builder.Build",
		trace.WithAttributes(
			attribute.Int("hierarchy.class_count", classCount),
		),
	)
}

// setBuildSpanResult sets the result attributes on a build span.
func setBuildSpanResult(span trace.Span, stats BuildStats) {
	span.SetAttributes(
		attribute.Int("hierarchy.module_classes", stats.ModuleClasses),
		attribute.Int("hierarchy.ghosts_created", stats.GhostsCreated),
		attribute.Int("hierarchy.ghosts_resolved", stats.GhostsResolved),
		attribute.Int("hierarchy.edges_created", stats.EdgesCreated),
	)
}

// startVerifySpan creates a span for a verification.
func startVerifySpan(ctx context.Context, nodeCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "hierarchy.Verify",
		trace.WithAttributes(
			attribute.Int("hierarchy.node_count", nodeCount),
		),
	)
}

// setVerifySpanResult sets the result attributes on a verify span.
func setVerifySpanResult(span trace.Span, result VerificationResult) {
	span.SetAttributes(
		attribute.String("hierarchy.fault", result.Fault.String()),
		attribute.String("hierarchy.fault_name", result.Name),
		attribute.Int("hierarchy.visited", result.Visited),
	)
}
