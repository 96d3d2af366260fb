package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartRunSpan starts the span covering one scan run.
func StartRunSpan(ctx context.Context, mode string) (context.Context, trace.Span) {
	return Tracer.Start(ctx, "scandeck.run",
		trace.WithAttributes(
			attribute.String("scan.mode", mode),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndRunSpan ends a run span with its join outcome.
func EndRunSpan(span trace.Span, succeeded, failed int, err error) {
	span.SetAttributes(
		attribute.Int("scan.targets.succeeded", succeeded),
		attribute.Int("scan.targets.failed", failed),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "run settled")
	}
	span.End()
}

// StartTargetSpan starts a child span for one target scan during fan-out.
func StartTargetSpan(ctx context.Context, targetID string) (context.Context, trace.Span) {
	return Tracer.Start(ctx, "scandeck.scan_target",
		trace.WithAttributes(
			attribute.String("scan.target", targetID),
		),
	)
}

// StartRegionalSpan starts the span covering one regional view assembly.
func StartRegionalSpan(ctx context.Context, region string, forced bool) (context.Context, trace.Span) {
	return Tracer.Start(ctx, "scandeck.regional.load",
		trace.WithAttributes(
			attribute.String("region", region),
			attribute.Bool("forced", forced),
		),
	)
}

// StartFetchSpan starts the span covering one backend metrics fetch behind
// the cache.
func StartFetchSpan(ctx context.Context, key string, forced bool) (context.Context, trace.Span) {
	return Tracer.Start(ctx, "scandeck.metrics.fetch",
		trace.WithAttributes(
			attribute.String("metrics.key", key),
			attribute.Bool("forced", forced),
		),
	)
}

// EndSpan ends a span, recording the error if one occurred.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
