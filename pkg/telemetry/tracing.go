// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan starts a span on the process-global tracer, saving callers
// from holding tracer instances. tracerName is usually the package
// path ("shiftsim/simulation") and spanName the operation
// ("Driver.Run"). The caller owns the returned span and must End it.
func StartSpan(ctx context.Context, tracerName, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, opts...)
}

// RecordError attaches err to the span as an event and flips the span
// status to Error. A nil span or nil error is a no-op.
func RecordError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if span == nil || err == nil {
		return
	}
	if len(attrs) == 0 {
		span.RecordError(err)
	} else {
		span.RecordError(err, trace.WithAttributes(attrs...))
	}
	span.SetStatus(codes.Error, err.Error())
}

// TraceID returns the hex trace ID from the context, or "" when the
// context carries no trace.
func TraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// SpanID returns the hex span ID from the context, or "" when the
// context carries no span.
func SpanID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasSpanID() {
		return sc.SpanID().String()
	}
	return ""
}

// LoggerWithTrace stamps trace_id and span_id from ctx onto logger so
// log lines correlate with the distributed trace. Without a valid span
// the logger comes back unchanged.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if ctx == nil {
		return logger
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		return logger.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return logger
}
