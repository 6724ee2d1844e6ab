// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rewrite

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("aleutian.sandbox.rewrite")

// startRewriteSpan creates a span for one class rewrite.
func startRewriteSpan(ctx context.Context, class string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "rewrite.Rewriter.Rewrite",
		trace.WithAttributes(attribute.String("rewrite.class", class)),
	)
}

// setRewriteSpanResult sets the result attributes on a rewrite span.
func setRewriteSpanResult(span trace.Span, stats Stats) {
	span.SetAttributes(
		attribute.Int("rewrite.class_refs", stats.ClassRefsRenamed),
		attribute.Int("rewrite.member_refs", stats.MemberRefsRewritten),
		attribute.Int("rewrite.descriptors", stats.DescriptorsRewritten),
		attribute.Int("rewrite.call_sites", stats.CallSitesRewritten),
		attribute.Int("rewrite.constants_added", stats.ConstantsAdded),
	)
}
