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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for pipeline operations.
var (
	tracer = otel.Tracer("aleutian.sandbox")
	meter  = otel.Meter("aleutian.sandbox")
)

// Metrics for transform operations.
var (
	transformLatency metric.Float64Histogram
	transformTotal   metric.Int64Counter
	rejectionsTotal  metric.Int64Counter
	classesRewritten metric.Int64Counter
	cacheLookups     metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		transformLatency, err = meter.Float64Histogram(
			"sandbox_transform_duration_seconds",
			metric.WithDescription("Duration of module transforms"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		transformTotal, err = meter.Int64Counter(
			"sandbox_transform_total",
			metric.WithDescription("Total number of module transforms by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		rejectionsTotal, err = meter.Int64Counter(
			"sandbox_rejections_total",
			metric.WithDescription("Rejected modules by stage and fault"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		classesRewritten, err = meter.Int64Counter(
			"sandbox_classes_rewritten",
			metric.WithDescription("Total number of classes rewritten"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheLookups, err = meter.Int64Counter(
			"sandbox_cache_lookups_total",
			metric.WithDescription("Outcome cache lookups by result"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordTransformMetrics records one transform. rejected is nil on
// success.
func recordTransformMetrics(ctx context.Context, duration time.Duration, stats Stats, rejected *RejectedError) {
	if err := initMetrics(); err != nil {
		return
	}
	outcome := "accepted"
	if rejected != nil {
		outcome = "rejected"
		rejectionsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("stage", rejected.Stage.String()),
			attribute.String("fault", rejected.Fault.String()),
		))
	} else {
		classesRewritten.Add(ctx, int64(stats.Classes))
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	transformLatency.Record(ctx, duration.Seconds(), attrs)
	transformTotal.Add(ctx, 1, attrs)
}

// recordCacheLookup records a cache hit or miss.
func recordCacheLookup(ctx context.Context, result string) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// startTransformSpan creates a span for a transform.
func startTransformSpan(ctx context.Context, m *Module, deploymentID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "sandbox.Pipeline.Transform",
		trace.WithAttributes(
			attribute.String("sandbox.module", m.Name),
			attribute.String("sandbox.deployment_id", deploymentID),
			attribute.Int("sandbox.class_count", len(m.Classes)),
		),
	)
}

// setTransformSpanResult sets the result attributes on a transform span.
func setTransformSpanResult(span trace.Span, stats Stats) {
	span.SetAttributes(
		attribute.Int("sandbox.nodes", stats.Nodes),
		attribute.Int("sandbox.ghosts_created", stats.GhostsCreated),
		attribute.Int64("sandbox.output_bytes", stats.OutputBytes),
	)
	span.SetStatus(codes.Ok, "")
}

// setTransformSpanRejected marks a transform span as rejected.
func setTransformSpanRejected(span trace.Span, r *RejectedError) {
	span.SetAttributes(
		attribute.String("sandbox.stage", r.Stage.String()),
		attribute.String("sandbox.fault", r.Fault.String()),
		attribute.String("sandbox.fault_name", r.Name),
	)
	span.RecordError(r)
	span.SetStatus(codes.Error, r.Error())
}
